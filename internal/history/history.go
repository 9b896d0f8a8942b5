// Package history persists coordinator refresh outcomes to SQLite.
//
// Every refresh, successful or not, becomes one row in refresh_history.
// The Recorder is registered as a coordinator listener so persistence
// rides the same fan-out as entities and metrics; a broken database
// never blocks polling because listener panics are isolated upstream.
package history

import (
	"context"
	"time"
)

// Entry represents one recorded refresh outcome.
type Entry struct {
	ID         int64          `json:"id"`
	Source     string         `json:"source"`
	Success    bool           `json:"success"`
	Error      string         `json:"error,omitempty"`
	Data       map[string]any `json:"data,omitempty"`
	DurationMS int64          `json:"duration_ms"`
	CreatedAt  time.Time      `json:"created_at"`
}

// Filter controls which history entries to return.
type Filter struct {
	Source  string // optional: filter by source identifier
	Success *bool  // optional: filter by outcome
	Limit   int    // default 50, max 200
	Offset  int    // pagination offset
}

// ListResult contains the paginated history results.
type ListResult struct {
	Entries []Entry `json:"entries"`
	Total   int     `json:"total"`
	Limit   int     `json:"limit"`
	Offset  int     `json:"offset"`
}

// Repository defines the interface for refresh history operations.
type Repository interface {
	Create(ctx context.Context, entry *Entry) error
	List(ctx context.Context, filter Filter) (*ListResult, error)
	Prune(ctx context.Context, before time.Time) (int64, error)
}
