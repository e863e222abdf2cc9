package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/argushq/argus/internal/model"
)

// MonitoringPayload represents the payload for monitoring tasks
type MonitoringPayload struct {
	Metrics    map[string]float64 `json:"metrics"`
	Thresholds map[string]float64 `json:"thresholds"`
}

// Breach is one metric exceeding its threshold
type Breach struct {
	Metric    string  `json:"metric"`
	Value     float64 `json:"value"`
	Threshold float64 `json:"threshold"`
}

// MonitoringReport is the output of a monitoring task
type MonitoringReport struct {
	Checked  int      `json:"checked"`
	Breaches []Breach `json:"breaches,omitempty"`
}

// MonitoringHandler checks supplied metric samples against thresholds
type MonitoringHandler struct {
	logger *zap.Logger
}

// NewMonitoringHandler creates a new monitoring handler
func NewMonitoringHandler(logger *zap.Logger) *MonitoringHandler {
	return &MonitoringHandler{logger: logger.Named("monitoring")}
}

// Execute performs the threshold checks
func (h *MonitoringHandler) Execute(ctx context.Context, task *model.Task, mode *model.ExecutionMode) (*model.TaskResult, error) {
	var payload MonitoringPayload
	if err := json.Unmarshal(task.Payload, &payload); err != nil {
		return nil, fmt.Errorf("failed to unmarshal payload: %w", err)
	}

	report := MonitoringReport{}
	names := make([]string, 0, len(payload.Thresholds))
	for name := range payload.Thresholds {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		value, ok := payload.Metrics[name]
		if !ok {
			continue
		}
		report.Checked++
		if value > payload.Thresholds[name] {
			report.Breaches = append(report.Breaches, Breach{
				Metric:    name,
				Value:     value,
				Threshold: payload.Thresholds[name],
			})
		}
	}

	result, err := json.Marshal(report)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal report: %w", err)
	}

	// Confidence is the fraction of thresholds we actually had samples for
	confidence := 0.0
	if len(payload.Thresholds) > 0 {
		confidence = float64(report.Checked) / float64(len(payload.Thresholds))
	}

	h.logger.Debug("Monitoring check complete",
		zap.String("task_id", task.ID),
		zap.Int("checked", report.Checked),
		zap.Int("breaches", len(report.Breaches)))

	return &model.TaskResult{
		TaskID:      task.ID,
		Status:      model.TaskStatusCompleted,
		Result:      result,
		Confidence:  confidence,
		CompletedAt: time.Now(),
	}, nil
}
