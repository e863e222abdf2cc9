package model

import "time"

// TargetCategory classifies a collection target. The set is open;
// these are the categories the engine ships with.
type TargetCategory string

const (
	TargetCategoryMarket   TargetCategory = "market"
	TargetCategoryNews     TargetCategory = "news"
	TargetCategorySocial   TargetCategory = "social"
	TargetCategoryResearch TargetCategory = "research"
)

// TargetDescriptor maps declared field names to collector-specific
// selectors. The engine treats selector values as opaque; only the
// field names matter to the quality scorer.
type TargetDescriptor map[string]string

// CollectionTarget represents an independently scheduled source of data
type CollectionTarget struct {
	ID          string           `json:"id"`
	Name        string           `json:"name"`
	Category    TargetCategory   `json:"category"`
	Descriptor  TargetDescriptor `json:"descriptor"`
	Frequency   time.Duration    `json:"frequency"`
	Active      bool             `json:"active"`
	CreatedAt   time.Time        `json:"created_at"`

	// LastCollectedAt is set by the scheduler after every collection
	// attempt, successful or not, and is non-decreasing.
	LastCollectedAt *time.Time `json:"last_collected_at,omitempty"`
}
