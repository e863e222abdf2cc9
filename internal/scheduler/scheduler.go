// Package scheduler owns the target registry and fires collection cycles
// on each target's independent cadence. Cadence is calendar-based: a
// failed cycle still advances the target's clock, so a flaky collector
// never degenerates into a tight retry loop.
package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/argushq/argus/internal/collab"
	"github.com/argushq/argus/internal/config"
	"github.com/argushq/argus/internal/events"
	"github.com/argushq/argus/internal/model"
	"github.com/argushq/argus/internal/quality"
)

// SinkKindResult tags collection results handed to the sink
const SinkKindResult = "collection_result"

// SkipRecord describes a collection cycle that was skipped due to an error
type SkipRecord struct {
	TargetID string    `json:"target_id"`
	Reason   string    `json:"reason"`
	At       time.Time `json:"at"`
}

type targetEntry struct {
	target *model.CollectionTarget
	timer  *time.Timer
	// gen invalidates pending timer fires after cancel or reschedule
	gen uint64
}

// Scheduler fires collection cycles for registered targets. Each target
// owns one timer; collections run as bounded concurrent workers so a slow
// target never delays another target's fire time.
type Scheduler struct {
	logger    *zap.Logger
	cfg       config.SchedulerConfig
	collector collab.Collector
	sink      collab.Sink
	scorer    *quality.Scorer
	bus       *events.Bus

	sem *semaphore.Weighted
	seq atomic.Uint64

	mu      sync.Mutex
	targets map[string]*targetEntry
	skips   []SkipRecord
	stopped bool

	wg    sync.WaitGroup
	nowFn func() time.Time
}

// New creates a new scheduler
func New(cfg config.SchedulerConfig, collector collab.Collector, sink collab.Sink, scorer *quality.Scorer, bus *events.Bus, logger *zap.Logger) *Scheduler {
	return &Scheduler{
		logger:    logger.Named("scheduler"),
		cfg:       cfg,
		collector: collector,
		sink:      sink,
		scorer:    scorer,
		bus:       bus,
		sem:       semaphore.NewWeighted(cfg.MaxInFlight),
		targets:   make(map[string]*targetEntry),
		nowFn:     time.Now,
	}
}

// Register validates and stores a target. An active target is scheduled
// immediately when it has never been collected, otherwise at
// lastCollectedAt + frequency, bounded below by now.
func (s *Scheduler) Register(target *model.CollectionTarget) (string, error) {
	if target.Frequency <= 0 {
		return "", ErrInvalidFrequency
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return "", ErrStopped
	}
	if target.ID == "" {
		target.ID = uuid.New().String()
	}
	if _, exists := s.targets[target.ID]; exists {
		return "", ErrDuplicateTarget
	}
	if target.CreatedAt.IsZero() {
		target.CreatedAt = s.nowFn()
	}

	entry := &targetEntry{target: target}
	s.targets[target.ID] = entry

	if target.Active {
		s.scheduleLocked(entry, s.initialDelay(target))
	}

	s.logger.Info("Target registered",
		zap.String("target_id", target.ID),
		zap.String("category", string(target.Category)),
		zap.Duration("frequency", target.Frequency),
		zap.Bool("active", target.Active))

	return target.ID, nil
}

// Deregister cancels the target's pending timer and removes it.
// An in-flight collection is allowed to complete and still delivers.
func (s *Scheduler) Deregister(targetID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.targets[targetID]
	if !ok {
		return false
	}
	s.cancelTimerLocked(entry)
	delete(s.targets, targetID)

	s.logger.Info("Target deregistered", zap.String("target_id", targetID))
	return true
}

// SetActive toggles a target. Activating (re)schedules it; deactivating
// cancels the pending timer without removing the target.
func (s *Scheduler) SetActive(targetID string, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.targets[targetID]
	if !ok {
		return ErrTargetNotFound
	}
	if entry.target.Active == active {
		return nil
	}
	entry.target.Active = active

	if active {
		s.scheduleLocked(entry, s.initialDelay(entry.target))
	} else {
		s.cancelTimerLocked(entry)
	}

	s.logger.Info("Target toggled",
		zap.String("target_id", targetID),
		zap.Bool("active", active))
	return nil
}

// CollectNow runs an out-of-cycle collection for a target, bypassing the
// cadence wait. The pending cadence timer is left untouched.
func (s *Scheduler) CollectNow(ctx context.Context, targetID string) error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return ErrStopped
	}
	entry, ok := s.targets[targetID]
	if !ok {
		s.mu.Unlock()
		return ErrTargetNotFound
	}
	now := s.nowFn()
	entry.target.LastCollectedAt = &now
	target := *entry.target
	s.wg.Add(1)
	s.mu.Unlock()

	go s.collect(ctx, &target)
	return nil
}

// CollectCategory runs an out-of-cycle collection for every active target
// of a category and returns how many were started
func (s *Scheduler) CollectCategory(ctx context.Context, category model.TargetCategory) int {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return 0
	}
	var started []*model.CollectionTarget
	now := s.nowFn()
	for _, entry := range s.targets {
		if entry.target.Active && entry.target.Category == category {
			entry.target.LastCollectedAt = &now
			target := *entry.target
			started = append(started, &target)
		}
	}
	s.wg.Add(len(started))
	s.mu.Unlock()

	for _, target := range started {
		go s.collect(ctx, target)
	}
	return len(started)
}

// Targets returns a snapshot copy of all registered targets
func (s *Scheduler) Targets() []*model.CollectionTarget {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*model.CollectionTarget, 0, len(s.targets))
	for _, entry := range s.targets {
		copied := *entry.target
		if entry.target.LastCollectedAt != nil {
			at := *entry.target.LastCollectedAt
			copied.LastCollectedAt = &at
		}
		out = append(out, &copied)
	}
	return out
}

// Skips returns a snapshot copy of recent skipped cycles
func (s *Scheduler) Skips() []SkipRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]SkipRecord(nil), s.skips...)
}

// Stop cancels all timers and waits for in-flight collections to finish
func (s *Scheduler) Stop() {
	s.mu.Lock()
	s.stopped = true
	for _, entry := range s.targets {
		s.cancelTimerLocked(entry)
	}
	s.mu.Unlock()

	s.wg.Wait()
	s.logger.Info("Scheduler stopped")
}

func (s *Scheduler) initialDelay(target *model.CollectionTarget) time.Duration {
	if target.LastCollectedAt == nil {
		return 0
	}
	delay := time.Until(target.LastCollectedAt.Add(target.Frequency))
	if delay < 0 {
		delay = 0
	}
	return delay
}

func (s *Scheduler) scheduleLocked(entry *targetEntry, delay time.Duration) {
	s.cancelTimerLocked(entry)
	gen := entry.gen
	id := entry.target.ID
	entry.timer = time.AfterFunc(delay, func() {
		s.fire(id, gen)
	})
}

func (s *Scheduler) cancelTimerLocked(entry *targetEntry) {
	entry.gen++
	if entry.timer != nil {
		entry.timer.Stop()
		entry.timer = nil
	}
}

// fire runs one scheduled cycle. The next timer is armed before the
// collection starts so cadence never depends on collector latency.
func (s *Scheduler) fire(targetID string, gen uint64) {
	s.mu.Lock()
	entry, ok := s.targets[targetID]
	if !ok || s.stopped || !entry.target.Active || entry.gen != gen {
		s.mu.Unlock()
		return
	}

	now := s.nowFn()
	entry.target.LastCollectedAt = &now
	target := *entry.target

	s.scheduleLocked(entry, target.Frequency)

	s.wg.Add(1)
	s.mu.Unlock()

	go s.collect(context.Background(), &target)
}

// collect performs one collection attempt: extract, score, deliver.
// Errors skip the cycle; they are recorded and never retried here.
func (s *Scheduler) collect(ctx context.Context, target *model.CollectionTarget) {
	defer s.wg.Done()

	if err := s.sem.Acquire(ctx, 1); err != nil {
		s.recordSkip(target.ID, err)
		return
	}
	defer s.sem.Release(1)

	collectCtx, cancel := context.WithTimeout(ctx, s.cfg.CollectorTimeout)
	defer cancel()

	payload, err := s.collector.Collect(collectCtx, target)
	if err != nil {
		s.recordSkip(target.ID, err)
		return
	}

	now := s.nowFn()
	q, c := s.scorer.Score(target, payload, now, now)
	result := &model.CollectionResult{
		TargetID:    target.ID,
		Payload:     payload,
		CollectedAt: now,
		Seq:         s.seq.Add(1),
		Quality:     q,
		Confidence:  c,
	}

	if err := s.sink.Store(ctx, SinkKindResult, result); err != nil {
		s.logger.Error("Failed to store collection result",
			zap.String("target_id", target.ID),
			zap.Error(err))
	}

	s.bus.Publish(events.TypeResultCollected, result)

	s.logger.Debug("Collection cycle completed",
		zap.String("target_id", target.ID),
		zap.Uint64("seq", result.Seq),
		zap.Float64("quality", q),
		zap.Float64("confidence", c))
}

func (s *Scheduler) recordSkip(targetID string, err error) {
	skip := SkipRecord{
		TargetID: targetID,
		Reason:   err.Error(),
		At:       s.nowFn(),
	}

	s.mu.Lock()
	s.skips = append(s.skips, skip)
	if len(s.skips) > s.cfg.SkipLogSize {
		s.skips = s.skips[len(s.skips)-s.cfg.SkipLogSize:]
	}
	s.mu.Unlock()

	s.bus.Publish(events.TypeCollectionSkipped, skip)

	s.logger.Warn("Collection cycle skipped",
		zap.String("target_id", targetID),
		zap.Error(err))
}
