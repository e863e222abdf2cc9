package engine

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"

	"github.com/argushq/argus/internal/config"
	"github.com/argushq/argus/internal/events"
	"github.com/argushq/argus/internal/model"
)

type fakeCollector struct {
	mu    sync.Mutex
	calls int
}

func (c *fakeCollector) Collect(ctx context.Context, target *model.CollectionTarget) (map[string][]model.ExtractedItem, error) {
	c.mu.Lock()
	c.calls++
	c.mu.Unlock()
	return map[string][]model.ExtractedItem{
		"headline": {{Text: "fresh headline text"}},
	}, nil
}

func (c *fakeCollector) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

type fakeSink struct {
	mu    sync.Mutex
	kinds []string
}

func (s *fakeSink) Store(ctx context.Context, kind string, payload interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.kinds = append(s.kinds, kind)
	return nil
}

func (s *fakeSink) has(kind string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, k := range s.kinds {
		if k == kind {
			return true
		}
	}
	return false
}

type fakeNotifier struct {
	mu     sync.Mutex
	alerts []*model.Alert
}

func (n *fakeNotifier) Notify(ctx context.Context, alert *model.Alert) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.alerts = append(n.alerts, alert)
	return nil
}

type fakeMetrics struct{}

func (fakeMetrics) GetMetric(ctx context.Context, name string) (float64, error) { return 0, nil }

type fakeFeed struct {
	mu    sync.Mutex
	items []string
}

func (f *fakeFeed) RecentItems(ctx context.Context, source string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.items...), nil
}

type fakeProbe struct{}

func (fakeProbe) IsReachable(string) bool { return true }

func fastConfig() *config.Config {
	cfg := config.Default()
	cfg.Queue.DrainInterval = 20 * time.Millisecond
	cfg.Rules.EvalInterval = 20 * time.Millisecond
	cfg.Mode.ReliabilityInterval = time.Hour
	cfg.Monitor.SampleInterval = time.Hour
	return cfg
}

type fixture struct {
	engine    *Engine
	collector *fakeCollector
	sink      *fakeSink
	notifier  *fakeNotifier
	feed      *fakeFeed
}

func newEngineFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		collector: &fakeCollector{},
		sink:      &fakeSink{},
		notifier:  &fakeNotifier{},
		feed:      &fakeFeed{},
	}

	eng, err := New(Options{
		Config:    fastConfig(),
		Collector: f.collector,
		Sink:      f.sink,
		Notifier:  f.notifier,
		Metrics:   fakeMetrics{},
		Feed:      f.feed,
		Probe:     fakeProbe{},
		Logger:    zaptest.NewLogger(t),
	})
	require.NoError(t, err)
	f.engine = eng
	return f
}

func registerBaselineMode(t *testing.T, eng *Engine) {
	t.Helper()
	require.NoError(t, eng.RegisterMode(&model.ExecutionMode{
		ID:   "baseline",
		Name: "Baseline",
		Capabilities: []model.Capability{
			model.CapabilityDataAnalysis,
			model.CapabilityWebScraping,
			model.CapabilityRealTimeMonitoring,
			model.CapabilityPredictiveModeling,
			model.CapabilityStrategyOptimization,
		},
	}))
	require.NoError(t, eng.ActivateMode("baseline"))
}

func TestEngine_RequiresCollaborators(t *testing.T) {
	_, err := New(Options{
		Collector: &fakeCollector{},
		Notifier:  &fakeNotifier{},
		Metrics:   fakeMetrics{},
		Feed:      &fakeFeed{},
		Probe:     fakeProbe{},
	})
	require.Error(t, err)
}

func TestEngine_Lifecycle(t *testing.T) {
	defer goleak.VerifyNone(t)

	f := newEngineFixture(t)
	eng := f.engine

	eng.Start(context.Background())
	registerBaselineMode(t, eng)

	var completed int
	var mu sync.Mutex
	unsub := eng.Subscribe(events.TypeTaskCompleted, func(events.Event) {
		mu.Lock()
		completed++
		mu.Unlock()
	})
	defer unsub()

	// Target collects immediately on registration
	_, err := eng.RegisterTarget(&model.CollectionTarget{
		ID:         "wire",
		Name:       "News wire",
		Category:   model.TargetCategoryNews,
		Descriptor: model.TargetDescriptor{"headline": ".headline"},
		Frequency:  time.Hour,
		Active:     true,
	})
	require.NoError(t, err)

	require.Eventually(t, func() bool { return f.sink.has("collection_result") },
		3*time.Second, 10*time.Millisecond)

	// The drain loop picks up submitted tasks without manual draining
	taskID, err := eng.SubmitTask("summarize", model.TaskTypeAnalysis,
		json.RawMessage(`{"fields":{"headline":[{"text":"fresh headline text"}]}}`),
		model.TaskPriorityHigh, "")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		task, err := eng.Task(taskID)
		return err == nil && task.Status == model.TaskStatusCompleted
	}, 3*time.Second, 10*time.Millisecond)

	require.True(t, f.sink.has("task_output"))
	mu.Lock()
	require.Equal(t, 1, completed)
	mu.Unlock()

	snap := eng.Snapshot()
	require.Len(t, snap.Targets, 1)
	require.Equal(t, "baseline", snap.CurrentMode)
	require.Len(t, snap.ModeSwitches, 1)
	require.NotEmpty(t, snap.History)
	require.Zero(t, snap.QueueDepth)

	eng.Stop()
}

func TestEngine_RuleTriggersCollectionAndAlert(t *testing.T) {
	defer goleak.VerifyNone(t)

	f := newEngineFixture(t)
	eng := f.engine

	eng.Start(context.Background())
	registerBaselineMode(t, eng)

	now := time.Now()
	_, err := eng.RegisterTarget(&model.CollectionTarget{
		ID:              "wire",
		Category:        model.TargetCategoryNews,
		Descriptor:      model.TargetDescriptor{"headline": ".headline"},
		Frequency:       time.Hour,
		Active:          true,
		LastCollectedAt: &now,
	})
	require.NoError(t, err)

	_, err = eng.RegisterRule(&model.AutomationRule{
		ID: "merger-watch",
		Trigger: model.TriggerSpec{
			Type:     model.TriggerNewsKeyword,
			Keywords: []string{"merger"},
			Source:   "wire",
		},
		Actions: []model.Action{
			model.ScrapeAction{TargetID: "wire"},
			model.AlertAction{Severity: model.AlertSeverityWarning, Message: "merger coverage spotted"},
			model.DisableAction{},
		},
		Active: true,
	})
	require.NoError(t, err)

	// Quiet feed: nothing happens
	time.Sleep(100 * time.Millisecond)
	require.Zero(t, f.collector.count())

	f.feed.mu.Lock()
	f.feed.items = []string{"Rumors of a merger are circulating"}
	f.feed.mu.Unlock()

	require.Eventually(t, func() bool { return f.collector.count() >= 1 },
		3*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool {
		f.notifier.mu.Lock()
		defer f.notifier.mu.Unlock()
		return len(f.notifier.alerts) == 1
	}, 3*time.Second, 10*time.Millisecond)

	f.notifier.mu.Lock()
	alert := f.notifier.alerts[0]
	f.notifier.mu.Unlock()
	require.Equal(t, "merger-watch", alert.RuleID)
	require.Equal(t, model.AlertSeverityWarning, alert.Severity)

	// The disable action made the rule single-shot
	snap := eng.Snapshot()
	require.Len(t, snap.Rules, 1)
	require.False(t, snap.Rules[0].Active)

	eng.Stop()
}

func TestEngine_ModeGateRejectsUnauthorizedTask(t *testing.T) {
	defer goleak.VerifyNone(t)

	f := newEngineFixture(t)
	eng := f.engine

	eng.Start(context.Background())
	require.NoError(t, eng.RegisterMode(&model.ExecutionMode{
		ID:           "narrow",
		Capabilities: []model.Capability{model.CapabilityDataAnalysis},
	}))
	require.NoError(t, eng.ActivateMode("narrow"))

	taskID, err := eng.SubmitTask("forecast", model.TaskTypePrediction,
		json.RawMessage(`{"series":[1,2,3]}`), model.TaskPriorityHigh, "")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		task, err := eng.Task(taskID)
		return err == nil && task.Status == model.TaskStatusFailed
	}, 3*time.Second, 10*time.Millisecond)

	task, err := eng.Task(taskID)
	require.NoError(t, err)
	require.Contains(t, task.Metadata["error"], "predictive_modeling")

	eng.Stop()
}
