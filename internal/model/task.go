package model

import (
	"encoding/json"
	"time"
)

// TaskStatus represents the current status of a task
type TaskStatus string

const (
	TaskStatusPending   TaskStatus = "pending"
	TaskStatusRunning   TaskStatus = "running"
	TaskStatusCompleted TaskStatus = "completed"
	TaskStatusFailed    TaskStatus = "failed"
	TaskStatusCanceled  TaskStatus = "canceled"
)

// TaskType represents the kind of work a task performs
type TaskType string

const (
	TaskTypeAnalysis     TaskType = "analysis"
	TaskTypeResearch     TaskType = "research"
	TaskTypeMonitoring   TaskType = "monitoring"
	TaskTypePrediction   TaskType = "prediction"
	TaskTypeOptimization TaskType = "optimization"
)

// TaskPriority represents the priority level of a task.
// Higher values are dequeued first.
type TaskPriority int

const (
	TaskPriorityLow      TaskPriority = 1
	TaskPriorityMedium   TaskPriority = 2
	TaskPriorityHigh     TaskPriority = 3
	TaskPriorityCritical TaskPriority = 4
)

// Task represents a unit of work to be executed
type Task struct {
	ID       string          `json:"id"`
	Name     string          `json:"name"`
	Type     TaskType        `json:"type"`
	Status   TaskStatus      `json:"status"`
	Priority TaskPriority    `json:"priority"`
	Mode     string          `json:"mode"`
	Payload  json.RawMessage `json:"payload,omitempty"`
	Result   json.RawMessage `json:"result,omitempty"`

	// Confidence stays 0 until the task completes.
	Confidence float64           `json:"confidence"`
	Metadata   map[string]string `json:"metadata,omitempty"`

	// Seq is assigned on submission and breaks priority ties FIFO.
	Seq uint64 `json:"seq"`

	// Timing fields
	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// TaskResult represents the result of a task execution
type TaskResult struct {
	TaskID      string          `json:"task_id"`
	Status      TaskStatus      `json:"status"`
	Result      json.RawMessage `json:"result,omitempty"`
	Confidence  float64         `json:"confidence"`
	Error       string          `json:"error,omitempty"`
	CompletedAt time.Time       `json:"completed_at"`
}
