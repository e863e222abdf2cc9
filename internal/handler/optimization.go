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

// Option is one candidate the optimizer ranks
type Option struct {
	Name  string  `json:"name"`
	Score float64 `json:"score"`
	Cost  float64 `json:"cost,omitempty"`
}

// OptimizationPayload represents the payload for optimization tasks
type OptimizationPayload struct {
	Options []Option `json:"options"`
}

// OptimizationReport is the output of an optimization task
type OptimizationReport struct {
	Best    string   `json:"best"`
	Ranking []Option `json:"ranking"`
}

// OptimizationHandler ranks candidate options by score net of cost.
// Ties break by name so the ranking is stable.
type OptimizationHandler struct {
	logger *zap.Logger
}

// NewOptimizationHandler creates a new optimization handler
func NewOptimizationHandler(logger *zap.Logger) *OptimizationHandler {
	return &OptimizationHandler{logger: logger.Named("optimization")}
}

// Execute ranks the options
func (h *OptimizationHandler) Execute(ctx context.Context, task *model.Task, mode *model.ExecutionMode) (*model.TaskResult, error) {
	var payload OptimizationPayload
	if err := json.Unmarshal(task.Payload, &payload); err != nil {
		return nil, fmt.Errorf("failed to unmarshal payload: %w", err)
	}
	if len(payload.Options) == 0 {
		return nil, fmt.Errorf("optimization requires at least one option")
	}

	ranking := append([]Option(nil), payload.Options...)
	sort.Slice(ranking, func(i, j int) bool {
		ni := ranking[i].Score - ranking[i].Cost
		nj := ranking[j].Score - ranking[j].Cost
		if ni != nj {
			return ni > nj
		}
		return ranking[i].Name < ranking[j].Name
	})

	report := OptimizationReport{
		Best:    ranking[0].Name,
		Ranking: ranking,
	}

	result, err := json.Marshal(report)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal report: %w", err)
	}

	// More alternatives considered, more trustworthy the pick; saturates at 10
	confidence := float64(len(ranking)) / 10
	if confidence > 1 {
		confidence = 1
	}

	h.logger.Debug("Optimization complete",
		zap.String("task_id", task.ID),
		zap.String("best", report.Best),
		zap.Int("options", len(ranking)))

	return &model.TaskResult{
		TaskID:      task.ID,
		Status:      model.TaskStatusCompleted,
		Result:      result,
		Confidence:  confidence,
		CompletedAt: time.Now(),
	}, nil
}
