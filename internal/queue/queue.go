// Package queue implements the priority task queue and its drain loop.
// Tasks execute under the current execution mode's capability gate;
// failures are terminal here, and retry means resubmitting a new task.
package queue

import (
	"container/heap"
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/argushq/argus/internal/collab"
	"github.com/argushq/argus/internal/config"
	"github.com/argushq/argus/internal/events"
	"github.com/argushq/argus/internal/mode"
	"github.com/argushq/argus/internal/model"
)

// SinkKindTaskOutput tags task outputs handed to the sink
const SinkKindTaskOutput = "task_output"

// TaskHandler defines the interface for task-type handlers
type TaskHandler interface {
	Execute(ctx context.Context, task *model.Task, mode *model.ExecutionMode) (*model.TaskResult, error)
}

// Queue is the mode-aware priority task queue
type Queue struct {
	logger *zap.Logger
	cfg    config.QueueConfig
	modes  *mode.Registry
	sink   collab.Sink
	bus    *events.Bus

	handlers map[model.TaskType]TaskHandler
	sem      *semaphore.Weighted

	mu      sync.Mutex
	heap    taskHeap
	pending map[string]*model.Task
	running map[string]*model.Task
	history []*model.Task
	nextSeq uint64
	stopped bool

	wg   sync.WaitGroup
	stop chan struct{}
	once sync.Once
}

// New creates a new task queue
func New(cfg config.QueueConfig, modes *mode.Registry, sink collab.Sink, bus *events.Bus, logger *zap.Logger) *Queue {
	return &Queue{
		logger:   logger.Named("task-queue"),
		cfg:      cfg,
		modes:    modes,
		sink:     sink,
		bus:      bus,
		handlers: make(map[model.TaskType]TaskHandler),
		sem:      semaphore.NewWeighted(cfg.MaxWorkers),
		pending:  make(map[string]*model.Task),
		running:  make(map[string]*model.Task),
		stop:     make(chan struct{}),
	}
}

// RegisterHandler registers the handler for a task type
func (q *Queue) RegisterHandler(t model.TaskType, h TaskHandler) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.handlers[t] = h
}

// Submit creates a pending task and inserts it into the priority queue.
// An empty modeID assigns the current execution mode.
func (q *Queue) Submit(name string, taskType model.TaskType, payload json.RawMessage, priority model.TaskPriority, modeID string) (string, error) {
	if priority < model.TaskPriorityLow || priority > model.TaskPriorityCritical {
		return "", ErrInvalidPriority
	}
	switch taskType {
	case model.TaskTypeAnalysis, model.TaskTypeResearch, model.TaskTypeMonitoring,
		model.TaskTypePrediction, model.TaskTypeOptimization:
	default:
		return "", ErrUnknownTaskType
	}

	if modeID == "" {
		modeID = q.modes.Current()
	}
	if modeID == "" {
		return "", mode.ErrNoCurrentMode
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if q.stopped {
		return "", ErrStopped
	}

	q.nextSeq++
	task := &model.Task{
		ID:        uuid.New().String(),
		Name:      name,
		Type:      taskType,
		Status:    model.TaskStatusPending,
		Priority:  priority,
		Mode:      modeID,
		Payload:   payload,
		Metadata:  make(map[string]string),
		Seq:       q.nextSeq,
		CreatedAt: time.Now(),
	}

	heap.Push(&q.heap, task)
	q.pending[task.ID] = task

	q.logger.Info("Task submitted",
		zap.String("task_id", task.ID),
		zap.String("type", string(taskType)),
		zap.Int("priority", int(priority)),
		zap.Int("queue_depth", len(q.pending)))

	return task.ID, nil
}

// Cancel removes a pending task from the queue. It returns false when the
// task is already running, terminal, or unknown.
func (q *Queue) Cancel(taskID string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	task, ok := q.pending[taskID]
	if !ok {
		return false
	}
	// The heap entry is skipped lazily on the next drain
	delete(q.pending, taskID)

	now := time.Now()
	task.Status = model.TaskStatusCanceled
	task.CompletedAt = &now
	q.appendHistoryLocked(task)

	q.logger.Info("Task canceled", zap.String("task_id", taskID))
	return true
}

// Task returns a snapshot copy of a task by ID, looking through pending,
// running, and history
func (q *Queue) Task(taskID string) (*model.Task, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if task, ok := q.pending[taskID]; ok {
		return copyTask(task), nil
	}
	if task, ok := q.running[taskID]; ok {
		return copyTask(task), nil
	}
	for _, task := range q.history {
		if task.ID == taskID {
			return copyTask(task), nil
		}
	}
	return nil, ErrTaskNotFound
}

// Depth returns the number of pending tasks
func (q *Queue) Depth() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// History returns a snapshot copy of terminal tasks, newest last
func (q *Queue) History() []*model.Task {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]*model.Task, 0, len(q.history))
	for _, task := range q.history {
		out = append(out, copyTask(task))
	}
	return out
}

// Start launches the drain loop
func (q *Queue) Start(ctx context.Context) {
	go q.drainLoop(ctx)
}

// Stop halts the drain loop and waits for running tasks to complete
func (q *Queue) Stop() {
	q.once.Do(func() { close(q.stop) })

	q.mu.Lock()
	q.stopped = true
	q.mu.Unlock()

	q.wg.Wait()
	q.logger.Info("Task queue stopped")
}

func (q *Queue) drainLoop(ctx context.Context) {
	ticker := time.NewTicker(q.cfg.DrainInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-q.stop:
			return
		case <-ticker.C:
			q.DrainOnce(ctx)
		}
	}
}

// DrainOnce pops up to the batch size of highest-priority pending tasks,
// transitions them to running, and executes each as a bounded worker.
// It returns the drained tasks in dequeue order.
func (q *Queue) DrainOnce(ctx context.Context) []*model.Task {
	q.mu.Lock()
	var batch []*model.Task
	for len(batch) < q.cfg.DrainBatchSize && q.heap.Len() > 0 {
		task := heap.Pop(&q.heap).(*model.Task)
		if _, stillPending := q.pending[task.ID]; !stillPending {
			continue // canceled while queued
		}
		delete(q.pending, task.ID)

		now := time.Now()
		task.Status = model.TaskStatusRunning
		task.StartedAt = &now
		q.running[task.ID] = task
		batch = append(batch, task)
	}
	q.wg.Add(len(batch))
	q.mu.Unlock()

	drained := make([]*model.Task, 0, len(batch))
	for _, task := range batch {
		drained = append(drained, copyTask(task))
		go q.execute(ctx, task)
	}
	return drained
}

// execute authorizes and runs one task. An authorization miss fails the
// task without invoking its handler.
func (q *Queue) execute(ctx context.Context, task *model.Task) {
	defer q.wg.Done()

	if err := q.modes.Authorize(task.Type, task.Mode); err != nil {
		q.fail(task, err)
		return
	}

	q.mu.Lock()
	handler, ok := q.handlers[task.Type]
	q.mu.Unlock()
	if !ok {
		q.fail(task, ErrUnknownTaskType)
		return
	}

	execMode, err := q.modes.Mode(task.Mode)
	if err != nil {
		q.fail(task, err)
		return
	}

	if err := q.sem.Acquire(ctx, 1); err != nil {
		q.fail(task, err)
		return
	}
	defer q.sem.Release(1)

	execCtx, cancel := context.WithTimeout(ctx, q.cfg.HandlerTimeout)
	defer cancel()

	result, err := handler.Execute(execCtx, task, execMode)
	if err != nil {
		q.fail(task, err)
		return
	}
	if result.Status == model.TaskStatusFailed {
		q.fail(task, errTaskResult(result.Error))
		return
	}

	q.complete(ctx, task, result)
}

type errTaskResult string

func (e errTaskResult) Error() string { return string(e) }

func (q *Queue) complete(ctx context.Context, task *model.Task, result *model.TaskResult) {
	now := time.Now()

	q.mu.Lock()
	delete(q.running, task.ID)
	task.Status = model.TaskStatusCompleted
	task.Result = result.Result
	task.Confidence = result.Confidence
	task.CompletedAt = &now
	q.appendHistoryLocked(task)
	snapshot := copyTask(task)
	q.mu.Unlock()

	q.modes.RecordOutcome(task.Mode, true, result.Confidence)

	if err := q.sink.Store(ctx, SinkKindTaskOutput, result); err != nil {
		q.logger.Error("Failed to store task output",
			zap.String("task_id", task.ID),
			zap.Error(err))
	}

	q.bus.Publish(events.TypeTaskCompleted, snapshot)

	q.logger.Info("Task completed",
		zap.String("task_id", task.ID),
		zap.String("type", string(task.Type)),
		zap.Float64("confidence", result.Confidence))
}

func (q *Queue) fail(task *model.Task, err error) {
	now := time.Now()

	q.mu.Lock()
	delete(q.running, task.ID)
	task.Status = model.TaskStatusFailed
	task.Metadata["error"] = err.Error()
	task.CompletedAt = &now
	q.appendHistoryLocked(task)
	snapshot := copyTask(task)
	q.mu.Unlock()

	q.modes.RecordOutcome(task.Mode, false, 0)
	q.bus.Publish(events.TypeTaskFailed, snapshot)

	q.logger.Warn("Task failed",
		zap.String("task_id", task.ID),
		zap.String("type", string(task.Type)),
		zap.Error(err))
}

func (q *Queue) appendHistoryLocked(task *model.Task) {
	q.history = append(q.history, task)
	if len(q.history) > q.cfg.HistorySize {
		q.history = q.history[len(q.history)-q.cfg.HistorySize:]
	}
}

func copyTask(task *model.Task) *model.Task {
	copied := *task
	if task.StartedAt != nil {
		at := *task.StartedAt
		copied.StartedAt = &at
	}
	if task.CompletedAt != nil {
		at := *task.CompletedAt
		copied.CompletedAt = &at
	}
	if task.Metadata != nil {
		copied.Metadata = make(map[string]string, len(task.Metadata))
		for k, v := range task.Metadata {
			copied.Metadata[k] = v
		}
	}
	return &copied
}
