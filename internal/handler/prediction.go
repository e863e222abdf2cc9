package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/argushq/argus/internal/model"
)

// PredictionPayload represents the payload for prediction tasks
type PredictionPayload struct {
	Series  []float64 `json:"series"`
	Horizon int       `json:"horizon"`
}

// PredictionReport is the output of a prediction task
type PredictionReport struct {
	Forecast []float64 `json:"forecast"`
	Slope    float64   `json:"slope"`
}

// PredictionHandler extrapolates a numeric series with an ordinary
// least-squares line. Deliberately simple: the forecast is reproducible
// from the input alone.
type PredictionHandler struct {
	logger *zap.Logger
}

// NewPredictionHandler creates a new prediction handler
func NewPredictionHandler(logger *zap.Logger) *PredictionHandler {
	return &PredictionHandler{logger: logger.Named("prediction")}
}

// Execute computes the forecast
func (h *PredictionHandler) Execute(ctx context.Context, task *model.Task, mode *model.ExecutionMode) (*model.TaskResult, error) {
	var payload PredictionPayload
	if err := json.Unmarshal(task.Payload, &payload); err != nil {
		return nil, fmt.Errorf("failed to unmarshal payload: %w", err)
	}
	if len(payload.Series) < 2 {
		return nil, fmt.Errorf("prediction requires at least 2 samples, got %d", len(payload.Series))
	}
	if payload.Horizon <= 0 {
		payload.Horizon = 1
	}

	n := float64(len(payload.Series))
	var sumX, sumY, sumXY, sumXX float64
	for i, y := range payload.Series {
		x := float64(i)
		sumX += x
		sumY += y
		sumXY += x * y
		sumXX += x * x
	}
	slope := (n*sumXY - sumX*sumY) / (n*sumXX - sumX*sumX)
	intercept := (sumY - slope*sumX) / n

	report := PredictionReport{Slope: slope}
	for i := 0; i < payload.Horizon; i++ {
		x := n + float64(i)
		report.Forecast = append(report.Forecast, intercept+slope*x)
	}

	result, err := json.Marshal(report)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal report: %w", err)
	}

	// Longer series, higher confidence; saturates at 20 samples
	confidence := n / 20
	if confidence > 1 {
		confidence = 1
	}

	h.logger.Debug("Prediction complete",
		zap.String("task_id", task.ID),
		zap.Int("samples", len(payload.Series)),
		zap.Int("horizon", payload.Horizon))

	return &model.TaskResult{
		TaskID:      task.ID,
		Status:      model.TaskStatusCompleted,
		Result:      result,
		Confidence:  confidence,
		CompletedAt: time.Now(),
	}, nil
}
