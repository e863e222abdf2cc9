package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/argushq/argus/internal/model"
)

// ResearchPayload represents the payload for research tasks
type ResearchPayload struct {
	Topics  []string `json:"topics"`
	Sources []string `json:"sources,omitempty"`
}

// ResearchPlan is the output of a research task: an ordered query plan
// for the host's scraping layer to execute
type ResearchPlan struct {
	Queries []string `json:"queries"`
	Sources []string `json:"sources,omitempty"`
}

// ResearchHandler turns a topic list into a deduplicated, ordered query plan
type ResearchHandler struct {
	logger *zap.Logger
}

// NewResearchHandler creates a new research handler
func NewResearchHandler(logger *zap.Logger) *ResearchHandler {
	return &ResearchHandler{logger: logger.Named("research")}
}

// Execute builds the research plan
func (h *ResearchHandler) Execute(ctx context.Context, task *model.Task, mode *model.ExecutionMode) (*model.TaskResult, error) {
	var payload ResearchPayload
	if err := json.Unmarshal(task.Payload, &payload); err != nil {
		return nil, fmt.Errorf("failed to unmarshal payload: %w", err)
	}
	if len(payload.Topics) == 0 {
		return nil, fmt.Errorf("research task requires at least one topic")
	}

	seen := make(map[string]bool)
	plan := ResearchPlan{Sources: payload.Sources}
	for _, topic := range payload.Topics {
		normalized := strings.ToLower(strings.TrimSpace(topic))
		if normalized == "" || seen[normalized] {
			continue
		}
		seen[normalized] = true
		plan.Queries = append(plan.Queries, normalized)
	}
	sort.Strings(plan.Queries)

	result, err := json.Marshal(plan)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal plan: %w", err)
	}

	// Confidence reflects how much of the input survived normalization
	confidence := float64(len(plan.Queries)) / float64(len(payload.Topics))

	h.logger.Debug("Research plan built",
		zap.String("task_id", task.ID),
		zap.Int("queries", len(plan.Queries)))

	return &model.TaskResult{
		TaskID:      task.ID,
		Status:      model.TaskStatusCompleted,
		Result:      result,
		Confidence:  confidence,
		CompletedAt: time.Now(),
	}, nil
}
