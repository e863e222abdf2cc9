package rules

import "errors"

var (
	// ErrRuleNotFound is returned when a rule is not found
	ErrRuleNotFound = errors.New("rule not found")

	// ErrEmptyActions is returned when a rule declares no actions
	ErrEmptyActions = errors.New("rule must declare at least one action")

	// ErrInvalidTrigger is returned when a trigger spec fails validation
	ErrInvalidTrigger = errors.New("invalid trigger")
)
