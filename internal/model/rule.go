package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// TriggerType represents the kind of condition a rule watches
type TriggerType string

const (
	TriggerTimeBased   TriggerType = "time_based"
	TriggerPriceChange TriggerType = "price_change"
	TriggerVolumeSpike TriggerType = "volume_spike"
	TriggerNewsKeyword TriggerType = "news_keyword"
)

// CompareOp is the comparison applied to metric-backed triggers
type CompareOp string

const (
	CompareGT  CompareOp = "gt"
	CompareGTE CompareOp = "gte"
	CompareLT  CompareOp = "lt"
	CompareLTE CompareOp = "lte"
)

// TriggerSpec holds the condition parameters for a rule trigger.
// Which fields apply depends on Type.
type TriggerSpec struct {
	Type TriggerType `json:"type"`

	// time_based: wall-clock time "HH:MM" plus a weekday set
	// (three-letter names, e.g. "MON"). An empty day set means every day.
	Time string   `json:"time,omitempty"`
	Days []string `json:"days,omitempty"`

	// price_change / volume_spike
	Metric    string    `json:"metric,omitempty"`
	Op        CompareOp `json:"op,omitempty"`
	Threshold float64   `json:"threshold,omitempty"`

	// news_keyword
	Keywords []string `json:"keywords,omitempty"`
	Source   string   `json:"source,omitempty"`
}

// Action is a sealed variant type for rule actions. Adding a new action
// kind means adding a struct here and a case to the dispatcher's type
// switch, which fails compilation if left unhandled.
type Action interface {
	actionKind() string
}

// ScrapeAction requests an immediate out-of-cycle collection for a
// target, or for every active target of a category when Category is set.
type ScrapeAction struct {
	TargetID string         `json:"target_id,omitempty"`
	Category TargetCategory `json:"category,omitempty"`
}

// AlertAction sends a structured alert through the notifier
type AlertAction struct {
	Severity AlertSeverity `json:"severity"`
	Message  string        `json:"message"`
}

// AnalyzeAction submits a high-priority analysis task
type AnalyzeAction struct {
	Name    string          `json:"name"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// StoreAction persists a tagged payload through the sink
type StoreAction struct {
	Kind    string          `json:"kind"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// DisableAction deactivates the owning rule, making it single-shot
type DisableAction struct{}

func (ScrapeAction) actionKind() string  { return "scrape" }
func (AlertAction) actionKind() string   { return "alert" }
func (AnalyzeAction) actionKind() string { return "analyze" }
func (StoreAction) actionKind() string   { return "store" }
func (DisableAction) actionKind() string { return "disable" }

// DescribeAction returns a short human-readable form for snapshots and logs
func DescribeAction(a Action) string {
	switch act := a.(type) {
	case ScrapeAction:
		if act.TargetID != "" {
			return fmt.Sprintf("scrape(%s)", act.TargetID)
		}
		return fmt.Sprintf("scrape(category=%s)", act.Category)
	case AlertAction:
		return fmt.Sprintf("alert(%s)", act.Severity)
	case AnalyzeAction:
		return fmt.Sprintf("analyze(%s)", act.Name)
	case StoreAction:
		return fmt.Sprintf("store(%s)", act.Kind)
	case DisableAction:
		return "disable"
	default:
		return "unknown"
	}
}

// AutomationRule binds a trigger condition to an ordered action list
type AutomationRule struct {
	ID        string      `json:"id"`
	Name      string      `json:"name"`
	Trigger   TriggerSpec `json:"trigger"`
	Actions   []Action    `json:"-"`
	Active    bool        `json:"active"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}
