// Package handler implements the built-in task-type handlers. Every
// handler is deterministic: identical payloads produce identical results
// and confidences. Nothing here fabricates a measurement.
package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/argushq/argus/internal/model"
)

// AnalysisPayload represents the payload for analysis tasks
type AnalysisPayload struct {
	Fields map[string][]model.ExtractedItem `json:"fields"`
}

// AnalysisReport is the output of an analysis task
type AnalysisReport struct {
	FieldCount    int                `json:"field_count"`
	ItemCount     int                `json:"item_count"`
	MeanTextLen   map[string]float64 `json:"mean_text_len"`
	EmptyFields   []string           `json:"empty_fields,omitempty"`
	CrossField    bool               `json:"cross_field"`
	LongestField  string             `json:"longest_field,omitempty"`
}

// AnalysisHandler summarizes extracted data. With the cross-domain
// reasoning capability it additionally reports the field carrying the
// most text, which downstream rules use for re-scrape prioritization.
type AnalysisHandler struct {
	logger *zap.Logger
}

// NewAnalysisHandler creates a new analysis handler
func NewAnalysisHandler(logger *zap.Logger) *AnalysisHandler {
	return &AnalysisHandler{logger: logger.Named("analysis")}
}

// Execute performs the analysis
func (h *AnalysisHandler) Execute(ctx context.Context, task *model.Task, mode *model.ExecutionMode) (*model.TaskResult, error) {
	var payload AnalysisPayload
	if err := json.Unmarshal(task.Payload, &payload); err != nil {
		return nil, fmt.Errorf("failed to unmarshal payload: %w", err)
	}

	report := AnalysisReport{
		FieldCount:  len(payload.Fields),
		MeanTextLen: make(map[string]float64),
	}

	var longest string
	var longestTotal int
	for field, items := range payload.Fields {
		if len(items) == 0 {
			report.EmptyFields = append(report.EmptyFields, field)
			continue
		}
		total := 0
		for _, item := range items {
			total += len(item.Text)
		}
		report.ItemCount += len(items)
		report.MeanTextLen[field] = float64(total) / float64(len(items))
		if total > longestTotal {
			longestTotal = total
			longest = field
		}
	}

	if mode.HasCapability(model.CapabilityCrossDomainReasoning) {
		report.CrossField = true
		report.LongestField = longest
	}

	result, err := json.Marshal(report)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal report: %w", err)
	}

	confidence := 0.0
	if report.FieldCount > 0 {
		confidence = float64(report.FieldCount-len(report.EmptyFields)) / float64(report.FieldCount)
	}

	h.logger.Debug("Analysis complete",
		zap.String("task_id", task.ID),
		zap.Int("fields", report.FieldCount),
		zap.Int("items", report.ItemCount))

	return &model.TaskResult{
		TaskID:      task.ID,
		Status:      model.TaskStatusCompleted,
		Result:      result,
		Confidence:  confidence,
		CompletedAt: time.Now(),
	}, nil
}
