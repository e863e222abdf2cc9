// Package rules implements the automation rule engine: triggers are
// evaluated on a fixed cadence and a satisfied rule dispatches its
// actions in declaration order. Actions are independent side effects;
// one failing never aborts the rest.
package rules

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/argushq/argus/internal/collab"
	"github.com/argushq/argus/internal/config"
	"github.com/argushq/argus/internal/events"
	"github.com/argushq/argus/internal/model"
)

// TargetScraper triggers out-of-cycle collections; satisfied by the scheduler
type TargetScraper interface {
	CollectNow(ctx context.Context, targetID string) error
	CollectCategory(ctx context.Context, category model.TargetCategory) int
}

// TaskSubmitter enqueues tasks; satisfied by the task queue
type TaskSubmitter interface {
	Submit(name string, taskType model.TaskType, payload json.RawMessage, priority model.TaskPriority, modeID string) (string, error)
}

var cronParser = cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

type ruleEntry struct {
	rule  *model.AutomationRule
	sched cron.Schedule

	// lastEval anchors time_based evaluation; a rule fires when its
	// schedule has a fire instant in (lastEval, now]
	lastEval time.Time

	// metric trigger edge detection
	lastMet bool
	hasLast bool
}

// Engine evaluates automation rules and dispatches their actions
type Engine struct {
	logger   *zap.Logger
	cfg      config.RulesConfig
	loc      *time.Location
	scraper  TargetScraper
	tasks    TaskSubmitter
	sink     collab.Sink
	notifier collab.Notifier
	metrics  collab.MetricLookup
	feed     collab.TextFeed
	bus      *events.Bus

	mu    sync.Mutex
	rules map[string]*ruleEntry

	stop  chan struct{}
	once  sync.Once
	nowFn func() time.Time
}

// New creates a new rule engine
func New(cfg config.RulesConfig, scraper TargetScraper, tasks TaskSubmitter, sink collab.Sink, notifier collab.Notifier, metrics collab.MetricLookup, feed collab.TextFeed, bus *events.Bus, logger *zap.Logger) (*Engine, error) {
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", cfg.Timezone, err)
	}

	return &Engine{
		logger:   logger.Named("rule-engine"),
		cfg:      cfg,
		loc:      loc,
		scraper:  scraper,
		tasks:    tasks,
		sink:     sink,
		notifier: notifier,
		metrics:  metrics,
		feed:     feed,
		bus:      bus,
		rules:    make(map[string]*ruleEntry),
		stop:     make(chan struct{}),
		nowFn:    time.Now,
	}, nil
}

// Register validates and stores a rule. Registering under an existing ID
// replaces the previous rule.
func (e *Engine) Register(rule *model.AutomationRule) (string, error) {
	if len(rule.Actions) == 0 {
		return "", ErrEmptyActions
	}

	sched, err := validateTrigger(&rule.Trigger)
	if err != nil {
		return "", err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if rule.ID == "" {
		rule.ID = uuid.New().String()
	}
	now := e.nowFn()
	if prev, exists := e.rules[rule.ID]; exists {
		rule.CreatedAt = prev.rule.CreatedAt
	} else {
		rule.CreatedAt = now
	}
	rule.UpdatedAt = now

	e.rules[rule.ID] = &ruleEntry{
		rule:     rule,
		sched:    sched,
		lastEval: now,
	}

	e.logger.Info("Rule registered",
		zap.String("rule_id", rule.ID),
		zap.String("trigger", string(rule.Trigger.Type)),
		zap.Int("actions", len(rule.Actions)),
		zap.Bool("active", rule.Active))

	return rule.ID, nil
}

// SetActive toggles a rule
func (e *Engine) SetActive(ruleID string, active bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	entry, ok := e.rules[ruleID]
	if !ok {
		return ErrRuleNotFound
	}
	entry.rule.Active = active
	entry.rule.UpdatedAt = e.nowFn()
	return nil
}

// Remove deletes a rule; it returns false when the rule is unknown
func (e *Engine) Remove(ruleID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.rules[ruleID]; !ok {
		return false
	}
	delete(e.rules, ruleID)
	e.logger.Info("Rule removed", zap.String("rule_id", ruleID))
	return true
}

// Rules returns a snapshot copy of all rules
func (e *Engine) Rules() []*model.AutomationRule {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]*model.AutomationRule, 0, len(e.rules))
	for _, entry := range e.rules {
		copied := *entry.rule
		copied.Actions = append([]model.Action(nil), entry.rule.Actions...)
		out = append(out, &copied)
	}
	return out
}

// Start launches the evaluation loop
func (e *Engine) Start(ctx context.Context) {
	go e.evalLoop(ctx)
}

// Stop halts the evaluation loop
func (e *Engine) Stop() {
	e.once.Do(func() { close(e.stop) })
}

func (e *Engine) evalLoop(ctx context.Context) {
	ticker := time.NewTicker(e.cfg.EvalInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-e.stop:
			return
		case <-ticker.C:
			e.EvaluateOnce(ctx)
		}
	}
}

// EvaluateOnce evaluates every active rule's trigger once and dispatches
// the actions of those that fire. Rules remain active after firing unless
// they carry an explicit disable action.
func (e *Engine) EvaluateOnce(ctx context.Context) {
	now := e.nowFn().In(e.loc)

	e.mu.Lock()
	entries := make([]*ruleEntry, 0, len(e.rules))
	for _, entry := range e.rules {
		if entry.rule.Active {
			entries = append(entries, entry)
		}
	}
	e.mu.Unlock()

	for _, entry := range entries {
		if !e.evalTrigger(ctx, entry, now) {
			continue
		}

		e.bus.Publish(events.TypeRuleFired, entry.rule.ID)
		e.logger.Info("Rule fired",
			zap.String("rule_id", entry.rule.ID),
			zap.String("name", entry.rule.Name))

		e.dispatch(ctx, entry.rule)
	}
}

func (e *Engine) evalTrigger(ctx context.Context, entry *ruleEntry, now time.Time) bool {
	e.mu.Lock()
	rule := entry.rule
	trigger := rule.Trigger
	e.mu.Unlock()

	switch trigger.Type {
	case model.TriggerTimeBased:
		e.mu.Lock()
		last := entry.lastEval
		entry.lastEval = now
		e.mu.Unlock()
		next := entry.sched.Next(last.In(e.loc))
		return !next.After(now)

	case model.TriggerPriceChange, model.TriggerVolumeSpike:
		value, err := e.metrics.GetMetric(ctx, trigger.Metric)
		if err != nil {
			e.logger.Warn("Metric lookup failed",
				zap.String("rule_id", rule.ID),
				zap.String("metric", trigger.Metric),
				zap.Error(err))
			return false
		}
		met := compare(value, trigger.Op, trigger.Threshold)

		e.mu.Lock()
		fired := met && (!entry.hasLast || !entry.lastMet)
		entry.lastMet = met
		entry.hasLast = true
		e.mu.Unlock()
		return fired

	case model.TriggerNewsKeyword:
		items, err := e.feed.RecentItems(ctx, trigger.Source)
		if err != nil {
			e.logger.Warn("Text feed lookup failed",
				zap.String("rule_id", rule.ID),
				zap.Error(err))
			return false
		}
		for _, item := range items {
			lowered := strings.ToLower(item)
			for _, keyword := range trigger.Keywords {
				if strings.Contains(lowered, strings.ToLower(keyword)) {
					return true
				}
			}
		}
		return false

	default:
		return false
	}
}

// dispatch executes the rule's actions in declaration order. Each action
// is an independent side effect; errors are logged and the remaining
// actions still run.
func (e *Engine) dispatch(ctx context.Context, rule *model.AutomationRule) {
	for i, action := range rule.Actions {
		if err := e.runAction(ctx, rule, action); err != nil {
			e.logger.Error("Rule action failed",
				zap.String("rule_id", rule.ID),
				zap.Int("action", i),
				zap.String("kind", model.DescribeAction(action)),
				zap.Error(err))
		}
	}
}

func (e *Engine) runAction(ctx context.Context, rule *model.AutomationRule, action model.Action) error {
	switch act := action.(type) {
	case model.ScrapeAction:
		if act.TargetID != "" {
			return e.scraper.CollectNow(ctx, act.TargetID)
		}
		started := e.scraper.CollectCategory(ctx, act.Category)
		e.logger.Debug("Category scrape dispatched",
			zap.String("category", string(act.Category)),
			zap.Int("targets", started))
		return nil

	case model.AlertAction:
		alert := &model.Alert{
			ID:       uuid.New().String(),
			RuleID:   rule.ID,
			Severity: act.Severity,
			Message:  act.Message,
			Data: map[string]interface{}{
				"rule_name": rule.Name,
				"trigger":   string(rule.Trigger.Type),
			},
			CreatedAt: e.nowFn(),
		}
		if err := e.notifier.Notify(ctx, alert); err != nil {
			return err
		}
		e.bus.Publish(events.TypeAlertRaised, alert)
		return nil

	case model.AnalyzeAction:
		_, err := e.tasks.Submit(act.Name, model.TaskTypeAnalysis, act.Payload, model.TaskPriorityHigh, "")
		return err

	case model.StoreAction:
		return e.sink.Store(ctx, act.Kind, act.Payload)

	case model.DisableAction:
		return e.SetActive(rule.ID, false)

	default:
		return fmt.Errorf("unhandled action kind %T", action)
	}
}

func compare(value float64, op model.CompareOp, threshold float64) bool {
	switch op {
	case model.CompareGT:
		return value > threshold
	case model.CompareGTE:
		return value >= threshold
	case model.CompareLT:
		return value < threshold
	case model.CompareLTE:
		return value <= threshold
	default:
		return false
	}
}

// validateTrigger checks the trigger spec at registration time and, for
// time_based triggers, compiles the cron schedule
func validateTrigger(trigger *model.TriggerSpec) (cron.Schedule, error) {
	switch trigger.Type {
	case model.TriggerTimeBased:
		var hour, minute int
		if _, err := fmt.Sscanf(trigger.Time, "%d:%d", &hour, &minute); err != nil {
			return nil, fmt.Errorf("%w: time must be HH:MM, got %q", ErrInvalidTrigger, trigger.Time)
		}
		if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
			return nil, fmt.Errorf("%w: time out of range %q", ErrInvalidTrigger, trigger.Time)
		}
		days := "*"
		if len(trigger.Days) > 0 {
			days = strings.Join(trigger.Days, ",")
		}
		expr := fmt.Sprintf("0 %d %d * * %s", minute, hour, days)
		sched, err := cronParser.Parse(expr)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidTrigger, err)
		}
		return sched, nil

	case model.TriggerPriceChange, model.TriggerVolumeSpike:
		if trigger.Metric == "" {
			return nil, fmt.Errorf("%w: metric name required", ErrInvalidTrigger)
		}
		switch trigger.Op {
		case model.CompareGT, model.CompareGTE, model.CompareLT, model.CompareLTE:
		default:
			return nil, fmt.Errorf("%w: unknown comparison %q", ErrInvalidTrigger, trigger.Op)
		}
		return nil, nil

	case model.TriggerNewsKeyword:
		if len(trigger.Keywords) == 0 {
			return nil, fmt.Errorf("%w: at least one keyword required", ErrInvalidTrigger)
		}
		return nil, nil

	default:
		return nil, fmt.Errorf("%w: unknown trigger type %q", ErrInvalidTrigger, trigger.Type)
	}
}
