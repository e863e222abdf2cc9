package model

import "time"

// ExtractedItem is a single piece of data pulled from a target field
type ExtractedItem struct {
	Text       string            `json:"text"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

// CollectionResult represents one scored collection cycle for a target.
// Results are immutable once constructed; quality and confidence are
// computed exactly once by the scorer.
type CollectionResult struct {
	TargetID    string                     `json:"target_id"`
	Payload     map[string][]ExtractedItem `json:"payload"`
	CollectedAt time.Time                  `json:"collected_at"`

	// Seq is a process-wide logical clock so that no two results share
	// (target_id, seq) even when wall clocks collide.
	Seq uint64 `json:"seq"`

	Quality    float64 `json:"quality"`
	Confidence float64 `json:"confidence"`
}
