// Package mode implements the execution mode registry. Exactly one mode
// is current at a time; switching is atomic against collaborator probes
// and a mode's capability set gates which task types may run.
package mode

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/argushq/argus/internal/collab"
	"github.com/argushq/argus/internal/config"
	"github.com/argushq/argus/internal/events"
	"github.com/argushq/argus/internal/model"
)

// requiredCapability maps each task type to the capability a mode must
// grant before tasks of that type may run in it
var requiredCapability = map[model.TaskType]model.Capability{
	model.TaskTypeAnalysis:     model.CapabilityDataAnalysis,
	model.TaskTypeResearch:     model.CapabilityWebScraping,
	model.TaskTypeMonitoring:   model.CapabilityRealTimeMonitoring,
	model.TaskTypePrediction:   model.CapabilityPredictiveModeling,
	model.TaskTypeOptimization: model.CapabilityStrategyOptimization,
}

// Switch records one successful mode activation
type Switch struct {
	From string    `json:"from,omitempty"`
	To   string    `json:"to"`
	At   time.Time `json:"at"`
}

// Registry holds execution modes and the current mode
type Registry struct {
	logger *zap.Logger
	cfg    config.ModeConfig
	probe  collab.CollaboratorProbe
	bus    *events.Bus

	mu       sync.Mutex
	modes    map[string]*model.ExecutionMode
	current  string
	switches []Switch

	// outcomes holds a bounded window of recent task successes/failures
	// per mode, feeding the periodic reliability recompute. Outcomes
	// recorded under one mode never touch another mode's stats.
	outcomes map[string][]bool
	finished map[string]int

	stop chan struct{}
	once sync.Once
}

// NewRegistry creates a new mode registry
func NewRegistry(cfg config.ModeConfig, probe collab.CollaboratorProbe, bus *events.Bus, logger *zap.Logger) *Registry {
	return &Registry{
		logger:   logger.Named("mode-registry"),
		cfg:      cfg,
		probe:    probe,
		bus:      bus,
		modes:    make(map[string]*model.ExecutionMode),
		outcomes: make(map[string][]bool),
		finished: make(map[string]int),
		stop:     make(chan struct{}),
	}
}

// Register adds a mode to the registry
func (r *Registry) Register(m *model.ExecutionMode) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	if _, exists := r.modes[m.ID]; exists {
		return ErrDuplicateMode
	}
	r.modes[m.ID] = m

	r.logger.Info("Mode registered",
		zap.String("mode_id", m.ID),
		zap.Int("capabilities", len(m.Capabilities)))
	return nil
}

// Modes returns a snapshot copy of all registered modes
func (r *Registry) Modes() []*model.ExecutionMode {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]*model.ExecutionMode, 0, len(r.modes))
	for _, m := range r.modes {
		copied := *m
		out = append(out, &copied)
	}
	return out
}

// Mode returns a snapshot copy of one mode
func (r *Registry) Mode(modeID string) (*model.ExecutionMode, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.modes[modeID]
	if !ok {
		return nil, ErrModeNotFound
	}
	copied := *m
	return &copied, nil
}

// Current returns the current mode ID, or empty when none is active
func (r *Registry) Current() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current
}

// Activate switches the current mode. Every collaborator in the target
// mode's required list must report reachable; otherwise the switch is
// rejected atomically and an *UnavailableError lists the missing names.
func (r *Registry) Activate(modeID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.modes[modeID]
	if !ok {
		return ErrModeNotFound
	}

	var unavailable []string
	for _, name := range m.RequiredCollaborators {
		if !r.probe.IsReachable(name) {
			unavailable = append(unavailable, name)
		}
	}
	if len(unavailable) > 0 {
		return &UnavailableError{ModeID: modeID, Unavailable: unavailable}
	}

	prev := r.current
	if prev != "" {
		if prevMode, ok := r.modes[prev]; ok {
			prevMode.Active = false
		}
	}
	m.Active = true
	r.current = modeID

	sw := Switch{From: prev, To: modeID, At: time.Now()}
	r.switches = append(r.switches, sw)
	r.bus.Publish(events.TypeModeSwitched, sw)

	r.logger.Info("Mode activated",
		zap.String("from", prev),
		zap.String("to", modeID))
	return nil
}

// Authorize reports whether a task type may run under the given mode
func (r *Registry) Authorize(taskType model.TaskType, modeID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.modes[modeID]
	if !ok {
		return ErrModeNotFound
	}
	cap, ok := requiredCapability[taskType]
	if !ok {
		return fmt.Errorf("%w: unknown task type %q", ErrNotAuthorized, taskType)
	}
	if !m.HasCapability(cap) {
		return fmt.Errorf("%w: mode %s lacks capability %s for task type %s",
			ErrNotAuthorized, modeID, cap, taskType)
	}
	return nil
}

// RecordOutcome folds one finished task into the mode's rolling stats.
// Accuracy updates immediately; reliability waits for the periodic
// recompute so single outliers do not whipsaw it.
func (r *Registry) RecordOutcome(modeID string, success bool, confidence float64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.modes[modeID]
	if !ok {
		return
	}

	window := append(r.outcomes[modeID], success)
	if len(window) > r.cfg.ReliabilityWindow {
		window = window[len(window)-r.cfg.ReliabilityWindow:]
	}
	r.outcomes[modeID] = window
	r.finished[modeID]++

	if success {
		m.Stats.Accuracy = (m.Stats.Accuracy + confidence) / 2
	}
}

// Switches returns a snapshot copy of the mode switch audit trail
func (r *Registry) Switches() []Switch {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Switch(nil), r.switches...)
}

// Start launches the periodic reliability recompute loop
func (r *Registry) Start(ctx context.Context) {
	go r.recomputeLoop(ctx)
}

// Stop stops the recompute loop
func (r *Registry) Stop() {
	r.once.Do(func() { close(r.stop) })
}

func (r *Registry) recomputeLoop(ctx context.Context) {
	ticker := time.NewTicker(r.cfg.ReliabilityInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-r.stop:
			return
		case <-ticker.C:
			r.recompute()
		}
	}
}

func (r *Registry) recompute() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.current == "" {
		return
	}
	m, ok := r.modes[r.current]
	if !ok {
		return
	}

	window := r.outcomes[r.current]
	if len(window) > 0 {
		successes := 0
		for _, ok := range window {
			if ok {
				successes++
			}
		}
		rate := float64(successes) / float64(len(window))
		m.Stats.Reliability = (m.Stats.Reliability + rate) / 2
	}

	// Throughput proxy: fraction of the window filled since last recompute
	filled := float64(r.finished[r.current]) / float64(r.cfg.ReliabilityWindow)
	if filled > 1 {
		filled = 1
	}
	m.Stats.Throughput = (m.Stats.Throughput + filled) / 2
	r.finished[r.current] = 0
}
