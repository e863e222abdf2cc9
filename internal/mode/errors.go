package mode

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrModeNotFound is returned when a mode is not found
	ErrModeNotFound = errors.New("mode not found")

	// ErrDuplicateMode is returned when a mode ID is already registered
	ErrDuplicateMode = errors.New("duplicate mode")

	// ErrNoCurrentMode is returned when no mode has been activated yet
	ErrNoCurrentMode = errors.New("no current mode")

	// ErrNotAuthorized is returned when a mode lacks the capability a
	// task type requires
	ErrNotAuthorized = errors.New("task type not authorized by mode")
)

// UnavailableError rejects a mode switch because required collaborators
// are unreachable. The current mode is left unchanged.
type UnavailableError struct {
	ModeID      string
	Unavailable []string
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("mode %s unavailable: collaborators unreachable: %s",
		e.ModeID, strings.Join(e.Unavailable, ", "))
}
