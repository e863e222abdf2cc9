// Package collab defines the narrow interfaces through which the engine
// reaches its external collaborators. Hosts supply implementations; the
// engine never assumes a transport.
package collab

import (
	"context"

	"github.com/argushq/argus/internal/model"
)

// Collector performs the actual data extraction for a target. The engine
// invokes it under a bounded timeout carried by ctx.
type Collector interface {
	Collect(ctx context.Context, target *model.CollectionTarget) (map[string][]model.ExtractedItem, error)
}

// Sink persists collection results, task outputs, and tagged rule payloads
type Sink interface {
	Store(ctx context.Context, kind string, payload interface{}) error
}

// Notifier delivers alerts raised by rule actions
type Notifier interface {
	Notify(ctx context.Context, alert *model.Alert) error
}

// MetricLookup resolves named numeric metrics for metric-backed triggers
type MetricLookup interface {
	GetMetric(ctx context.Context, name string) (float64, error)
}

// TextFeed returns recent text items for keyword triggers. Source may be
// empty, in which case the feed decides what "recent" covers.
type TextFeed interface {
	RecentItems(ctx context.Context, source string) ([]string, error)
}

// CollaboratorProbe reports whether a named collaborator is reachable.
// Mode activation checks every required collaborator through it.
type CollaboratorProbe interface {
	IsReachable(name string) bool
}
