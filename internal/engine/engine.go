// Package engine wires the scheduler, task queue, mode registry, and rule
// engine into one host-facing object. Engines are plain values built by
// the host; there is no ambient global state, so tests can run several
// isolated instances side by side.
package engine

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/argushq/argus/internal/collab"
	"github.com/argushq/argus/internal/config"
	"github.com/argushq/argus/internal/events"
	"github.com/argushq/argus/internal/handler"
	"github.com/argushq/argus/internal/mode"
	"github.com/argushq/argus/internal/model"
	"github.com/argushq/argus/internal/monitor"
	"github.com/argushq/argus/internal/quality"
	"github.com/argushq/argus/internal/queue"
	"github.com/argushq/argus/internal/rules"
	"github.com/argushq/argus/internal/scheduler"
)

// Options carries everything the host supplies to build an engine
type Options struct {
	Config    *config.Config
	Collector collab.Collector
	Sink      collab.Sink
	Notifier  collab.Notifier
	Metrics   collab.MetricLookup
	Feed      collab.TextFeed
	Probe     collab.CollaboratorProbe
	Logger    *zap.Logger

	// JetStream is optional; when set, engine events are mirrored onto
	// JetStream subjects
	JetStream nats.JetStreamContext
}

// Engine is the assembled automation engine
type Engine struct {
	logger *zap.Logger
	cfg    *config.Config

	bus       *events.Bus
	scheduler *scheduler.Scheduler
	queue     *queue.Queue
	modes     *mode.Registry
	rules     *rules.Engine
	monitor   *monitor.ResourceMonitor
	bridge    *events.NATSBridge

	cancel context.CancelFunc
}

// Snapshot is a point-in-time copy of engine state for display and
// reporting. Every slice is a copy; mutating it affects nothing.
type Snapshot struct {
	Targets      []*model.CollectionTarget `json:"targets"`
	QueueDepth   int                       `json:"queue_depth"`
	CurrentMode  string                    `json:"current_mode"`
	Modes        []*model.ExecutionMode    `json:"modes"`
	Rules        []*model.AutomationRule   `json:"rules"`
	History      []*model.Task             `json:"history"`
	Skips        []scheduler.SkipRecord    `json:"skips"`
	ModeSwitches []mode.Switch             `json:"mode_switches"`
	Resources    monitor.ResourceStats     `json:"resources"`
	TakenAt      time.Time                 `json:"taken_at"`
}

// New builds an engine from host-supplied collaborators
func New(opts Options) (*Engine, error) {
	if opts.Config == nil {
		opts.Config = config.Default()
	}
	if opts.Collector == nil || opts.Sink == nil || opts.Notifier == nil ||
		opts.Metrics == nil || opts.Feed == nil || opts.Probe == nil {
		return nil, errors.New("engine requires all collaborator interfaces")
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	logger := opts.Logger
	cfg := opts.Config

	bus := events.NewBus(logger)
	scorer := quality.NewScorer(cfg.Scorer, logger)
	sched := scheduler.New(cfg.Scheduler, opts.Collector, opts.Sink, scorer, bus, logger)
	modes := mode.NewRegistry(cfg.Mode, opts.Probe, bus, logger)
	q := queue.New(cfg.Queue, modes, opts.Sink, bus, logger)

	q.RegisterHandler(model.TaskTypeAnalysis, handler.NewAnalysisHandler(logger))
	q.RegisterHandler(model.TaskTypeResearch, handler.NewResearchHandler(logger))
	q.RegisterHandler(model.TaskTypeMonitoring, handler.NewMonitoringHandler(logger))
	q.RegisterHandler(model.TaskTypePrediction, handler.NewPredictionHandler(logger))
	q.RegisterHandler(model.TaskTypeOptimization, handler.NewOptimizationHandler(logger))

	ruleEngine, err := rules.New(cfg.Rules, sched, q, opts.Sink, opts.Notifier, opts.Metrics, opts.Feed, bus, logger)
	if err != nil {
		return nil, err
	}

	eng := &Engine{
		logger:    logger.Named("engine"),
		cfg:       cfg,
		bus:       bus,
		scheduler: sched,
		queue:     q,
		modes:     modes,
		rules:     ruleEngine,
		monitor:   monitor.NewResourceMonitor(cfg.Monitor.SampleInterval, logger),
	}

	if opts.JetStream != nil {
		bridge, err := events.NewNATSBridge(opts.JetStream, bus, logger)
		if err != nil {
			return nil, err
		}
		eng.bridge = bridge
	}

	return eng, nil
}

// Start launches the drain, rule evaluation, stats, and sampling loops.
// Target timers run from registration independently of Start.
func (e *Engine) Start(ctx context.Context) {
	ctx, e.cancel = context.WithCancel(ctx)

	e.queue.Start(ctx)
	e.rules.Start(ctx)
	e.modes.Start(ctx)
	e.monitor.Start(ctx)

	e.logger.Info("Engine started")
}

// Stop shuts the engine down, letting in-flight collections and running
// tasks complete. The rule engine stops first so no action dispatches
// against an already-stopped scheduler or queue.
func (e *Engine) Stop() {
	if e.cancel != nil {
		e.cancel()
	}

	e.rules.Stop()
	e.scheduler.Stop()
	e.queue.Stop()
	e.modes.Stop()
	e.monitor.Stop()
	if e.bridge != nil {
		e.bridge.Close()
	}

	e.logger.Info("Engine stopped")
}

// RegisterTarget adds a collection target
func (e *Engine) RegisterTarget(target *model.CollectionTarget) (string, error) {
	return e.scheduler.Register(target)
}

// DeregisterTarget removes a collection target
func (e *Engine) DeregisterTarget(targetID string) bool {
	return e.scheduler.Deregister(targetID)
}

// SetTargetActive toggles a collection target
func (e *Engine) SetTargetActive(targetID string, active bool) error {
	return e.scheduler.SetActive(targetID, active)
}

// CollectNow runs an immediate out-of-cycle collection
func (e *Engine) CollectNow(ctx context.Context, targetID string) error {
	return e.scheduler.CollectNow(ctx, targetID)
}

// SubmitTask enqueues a task under the current mode (or modeID when set)
func (e *Engine) SubmitTask(name string, taskType model.TaskType, payload json.RawMessage, priority model.TaskPriority, modeID string) (string, error) {
	return e.queue.Submit(name, taskType, payload, priority, modeID)
}

// CancelTask cancels a pending task
func (e *Engine) CancelTask(taskID string) bool {
	return e.queue.Cancel(taskID)
}

// Task returns a snapshot copy of a task
func (e *Engine) Task(taskID string) (*model.Task, error) {
	return e.queue.Task(taskID)
}

// RegisterMode adds an execution mode
func (e *Engine) RegisterMode(m *model.ExecutionMode) error {
	return e.modes.Register(m)
}

// ActivateMode atomically switches the current execution mode
func (e *Engine) ActivateMode(modeID string) error {
	return e.modes.Activate(modeID)
}

// CurrentMode returns the current mode ID
func (e *Engine) CurrentMode() string {
	return e.modes.Current()
}

// RegisterRule adds or replaces an automation rule
func (e *Engine) RegisterRule(rule *model.AutomationRule) (string, error) {
	return e.rules.Register(rule)
}

// SetRuleActive toggles an automation rule
func (e *Engine) SetRuleActive(ruleID string, active bool) error {
	return e.rules.SetActive(ruleID, active)
}

// RemoveRule removes an automation rule
func (e *Engine) RemoveRule(ruleID string) bool {
	return e.rules.Remove(ruleID)
}

// Subscribe attaches a handler to one event type; the returned function
// unsubscribes it
func (e *Engine) Subscribe(t events.Type, h events.Handler) func() {
	return e.bus.Subscribe(t, h)
}

// Snapshot captures current engine state
func (e *Engine) Snapshot() *Snapshot {
	return &Snapshot{
		Targets:      e.scheduler.Targets(),
		QueueDepth:   e.queue.Depth(),
		CurrentMode:  e.modes.Current(),
		Modes:        e.modes.Modes(),
		Rules:        e.rules.Rules(),
		History:      e.queue.History(),
		Skips:        e.scheduler.Skips(),
		ModeSwitches: e.modes.Switches(),
		Resources:    e.monitor.Stats(),
		TakenAt:      time.Now(),
	}
}
