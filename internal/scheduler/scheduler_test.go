package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/argushq/argus/internal/config"
	"github.com/argushq/argus/internal/events"
	"github.com/argushq/argus/internal/model"
	"github.com/argushq/argus/internal/quality"
)

type countingCollector struct {
	mu    sync.Mutex
	calls int
	delay time.Duration
	err   error
}

func (c *countingCollector) Collect(ctx context.Context, target *model.CollectionTarget) (map[string][]model.ExtractedItem, error) {
	c.mu.Lock()
	c.calls++
	c.mu.Unlock()

	if c.delay > 0 {
		select {
		case <-time.After(c.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if c.err != nil {
		return nil, c.err
	}
	return map[string][]model.ExtractedItem{
		"headline": {{Text: "collected text"}},
	}, nil
}

func (c *countingCollector) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

type recordingSink struct {
	mu      sync.Mutex
	results []*model.CollectionResult
}

func (s *recordingSink) Store(ctx context.Context, kind string, payload interface{}) error {
	if kind != SinkKindResult {
		return nil
	}
	result, ok := payload.(*model.CollectionResult)
	if !ok {
		return errors.New("unexpected payload type")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results = append(s.results, result)
	return nil
}

func (s *recordingSink) list() []*model.CollectionResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*model.CollectionResult(nil), s.results...)
}

func newTestScheduler(t *testing.T, collector *countingCollector) (*Scheduler, *recordingSink) {
	t.Helper()
	logger := zaptest.NewLogger(t)
	cfg := config.Default()
	sink := &recordingSink{}
	s := New(cfg.Scheduler, collector, sink, quality.NewScorer(cfg.Scorer, logger), events.NewBus(logger), logger)
	t.Cleanup(s.Stop)
	return s, sink
}

func newTarget(id string, frequency time.Duration) *model.CollectionTarget {
	return &model.CollectionTarget{
		ID:         id,
		Name:       "Target " + id,
		Category:   model.TargetCategoryNews,
		Descriptor: model.TargetDescriptor{"headline": ".headline"},
		Frequency:  frequency,
		Active:     true,
	}
}

func TestScheduler_RegisterValidation(t *testing.T) {
	s, _ := newTestScheduler(t, &countingCollector{})

	_, err := s.Register(newTarget("t1", 0))
	require.ErrorIs(t, err, ErrInvalidFrequency)

	id, err := s.Register(newTarget("t1", time.Hour))
	require.NoError(t, err)
	require.Equal(t, "t1", id)

	_, err = s.Register(newTarget("t1", time.Hour))
	require.ErrorIs(t, err, ErrDuplicateTarget)

	// A blank ID gets assigned
	generated, err := s.Register(newTarget("", time.Hour))
	require.NoError(t, err)
	require.NotEmpty(t, generated)
}

func TestScheduler_ImmediateFirstCollection(t *testing.T) {
	collector := &countingCollector{}
	s, sink := newTestScheduler(t, collector)

	_, err := s.Register(newTarget("t1", time.Hour))
	require.NoError(t, err)

	require.Eventually(t, func() bool { return collector.count() == 1 },
		2*time.Second, 10*time.Millisecond)

	require.Eventually(t, func() bool { return len(sink.list()) == 1 },
		2*time.Second, 10*time.Millisecond)

	result := sink.list()[0]
	require.Equal(t, "t1", result.TargetID)
	require.Equal(t, uint64(1), result.Seq)
	require.Greater(t, result.Quality, 0.0)

	targets := s.Targets()
	require.Len(t, targets, 1)
	require.NotNil(t, targets[0].LastCollectedAt)
}

func TestScheduler_CadenceSurvivesSlowCollector(t *testing.T) {
	// Each collection takes far longer than the frequency; the cycle
	// count still keeps pace because the next timer is armed up front.
	collector := &countingCollector{delay: 250 * time.Millisecond}
	s, _ := newTestScheduler(t, collector)

	target := newTarget("t1", 50*time.Millisecond)
	now := time.Now()
	target.LastCollectedAt = &now

	_, err := s.Register(target)
	require.NoError(t, err)

	require.Eventually(t, func() bool { return collector.count() >= 4 },
		2*time.Second, 10*time.Millisecond)
}

func TestScheduler_IndependentTargetCadence(t *testing.T) {
	slow := &countingCollector{delay: 300 * time.Millisecond}
	s, _ := newTestScheduler(t, slow)

	blocked := newTarget("blocked", time.Hour)
	_, err := s.Register(blocked)
	require.NoError(t, err)

	// The slow target's in-flight collection must not delay this one
	fast := newTarget("fast", 40*time.Millisecond)
	now := time.Now()
	fast.LastCollectedAt = &now
	_, err = s.Register(fast)
	require.NoError(t, err)

	require.Eventually(t, func() bool { return slow.count() >= 4 },
		2*time.Second, 10*time.Millisecond)
}

func TestScheduler_FailedCycleIsSkippedAndAdvancesClock(t *testing.T) {
	collector := &countingCollector{err: errors.New("source unreachable")}
	s, sink := newTestScheduler(t, collector)

	_, err := s.Register(newTarget("t1", time.Hour))
	require.NoError(t, err)

	require.Eventually(t, func() bool { return len(s.Skips()) == 1 },
		2*time.Second, 10*time.Millisecond)

	skip := s.Skips()[0]
	require.Equal(t, "t1", skip.TargetID)
	require.Contains(t, skip.Reason, "source unreachable")

	// No result was delivered, but the cadence clock advanced anyway
	require.Empty(t, sink.list())
	targets := s.Targets()
	require.Len(t, targets, 1)
	require.NotNil(t, targets[0].LastCollectedAt)
}

func TestScheduler_SkipLogBounded(t *testing.T) {
	collector := &countingCollector{err: errors.New("boom")}
	logger := zaptest.NewLogger(t)
	cfg := config.Default()
	cfg.Scheduler.SkipLogSize = 3
	s := New(cfg.Scheduler, collector, &recordingSink{}, quality.NewScorer(cfg.Scorer, logger), events.NewBus(logger), logger)
	t.Cleanup(s.Stop)

	target := newTarget("t1", time.Hour)
	now := time.Now()
	target.LastCollectedAt = &now
	_, err := s.Register(target)
	require.NoError(t, err)

	for i := 0; i < 6; i++ {
		require.NoError(t, s.CollectNow(context.Background(), "t1"))
	}

	require.Eventually(t, func() bool { return collector.count() == 6 },
		2*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool { return len(s.Skips()) == 3 },
		2*time.Second, 10*time.Millisecond)
}

func TestScheduler_InactiveTargetNeverFires(t *testing.T) {
	collector := &countingCollector{}
	s, _ := newTestScheduler(t, collector)

	target := newTarget("t1", 30*time.Millisecond)
	target.Active = false
	_, err := s.Register(target)
	require.NoError(t, err)

	time.Sleep(150 * time.Millisecond)
	require.Zero(t, collector.count())

	require.NoError(t, s.SetActive("t1", true))
	require.Eventually(t, func() bool { return collector.count() >= 1 },
		2*time.Second, 10*time.Millisecond)
}

func TestScheduler_DeactivateCancelsPendingFire(t *testing.T) {
	collector := &countingCollector{}
	s, _ := newTestScheduler(t, collector)

	target := newTarget("t1", 50*time.Millisecond)
	now := time.Now()
	target.LastCollectedAt = &now
	_, err := s.Register(target)
	require.NoError(t, err)

	require.NoError(t, s.SetActive("t1", false))
	time.Sleep(200 * time.Millisecond)
	require.Zero(t, collector.count())

	require.ErrorIs(t, s.SetActive("missing", true), ErrTargetNotFound)
}

func TestScheduler_Deregister(t *testing.T) {
	collector := &countingCollector{}
	s, _ := newTestScheduler(t, collector)

	target := newTarget("t1", 50*time.Millisecond)
	now := time.Now()
	target.LastCollectedAt = &now
	_, err := s.Register(target)
	require.NoError(t, err)

	require.True(t, s.Deregister("t1"))
	require.False(t, s.Deregister("t1"))
	require.Empty(t, s.Targets())

	time.Sleep(200 * time.Millisecond)
	require.Zero(t, collector.count())
}

func TestScheduler_CollectNowBypassesCadence(t *testing.T) {
	collector := &countingCollector{}
	s, sink := newTestScheduler(t, collector)

	target := newTarget("t1", time.Hour)
	now := time.Now()
	target.LastCollectedAt = &now
	_, err := s.Register(target)
	require.NoError(t, err)

	require.ErrorIs(t, s.CollectNow(context.Background(), "missing"), ErrTargetNotFound)
	require.NoError(t, s.CollectNow(context.Background(), "t1"))

	require.Eventually(t, func() bool { return len(sink.list()) == 1 },
		2*time.Second, 10*time.Millisecond)
	require.Equal(t, "t1", sink.list()[0].TargetID)
}

func TestScheduler_CollectCategory(t *testing.T) {
	collector := &countingCollector{}
	s, _ := newTestScheduler(t, collector)

	now := time.Now()
	news := newTarget("news-1", time.Hour)
	news.LastCollectedAt = &now
	market := newTarget("market-1", time.Hour)
	market.Category = model.TargetCategoryMarket
	market.LastCollectedAt = &now
	inactive := newTarget("news-2", time.Hour)
	inactive.Active = false
	inactive.LastCollectedAt = &now

	for _, target := range []*model.CollectionTarget{news, market, inactive} {
		_, err := s.Register(target)
		require.NoError(t, err)
	}

	started := s.CollectCategory(context.Background(), model.TargetCategoryNews)
	require.Equal(t, 1, started)

	require.Eventually(t, func() bool { return collector.count() == 1 },
		2*time.Second, 10*time.Millisecond)
}

func TestScheduler_StopRejectsManualCollections(t *testing.T) {
	collector := &countingCollector{}
	s, _ := newTestScheduler(t, collector)

	target := newTarget("t1", time.Hour)
	now := time.Now()
	target.LastCollectedAt = &now
	_, err := s.Register(target)
	require.NoError(t, err)

	s.Stop()

	require.ErrorIs(t, s.CollectNow(context.Background(), "t1"), ErrStopped)
	require.Zero(t, s.CollectCategory(context.Background(), model.TargetCategoryNews))

	time.Sleep(50 * time.Millisecond)
	require.Zero(t, collector.count())

	_, err = s.Register(newTarget("t2", time.Hour))
	require.ErrorIs(t, err, ErrStopped)
}

func TestScheduler_SeqIsMonotonic(t *testing.T) {
	collector := &countingCollector{}
	s, sink := newTestScheduler(t, collector)

	target := newTarget("t1", time.Hour)
	now := time.Now()
	target.LastCollectedAt = &now
	_, err := s.Register(target)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		require.NoError(t, s.CollectNow(context.Background(), "t1"))
		require.Eventually(t, func() bool { return len(sink.list()) == i+1 },
			2*time.Second, 10*time.Millisecond)
	}

	results := sink.list()
	for i := 1; i < len(results); i++ {
		require.Greater(t, results[i].Seq, results[i-1].Seq)
	}
}
