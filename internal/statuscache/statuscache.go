// Package statuscache is the ephemeral low-latency store for job status
// polling. It is lossy by contract: entries may expire while the durable
// result store still holds the terminal record, and callers must fall back.
package statuscache

import (
	"context"
	"time"

	"docextract/internal/job"
)

// Record is the cached view of a job. TextPreview carries a truncated slice
// of the extracted text so cheap polls don't hit the durable store.
type Record struct {
	ID           string     `json:"id"`
	Status       job.Status `json:"status"`
	ErrorMessage string     `json:"error_message,omitempty"`
	Filename     string     `json:"filename,omitempty"`
	SourceRef    string     `json:"source_ref,omitempty"`
	SourceHash   string     `json:"source_hash,omitempty"`
	TextPreview  string     `json:"text_preview,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// Cache is the adapter contract the dispatcher consumes. CreateIfAbsent must
// be a single atomic operation on the backing store; it is the sole
// duplicate-work gate in the system. Per-key last-write-wins, no cross-key
// ordering.
type Cache interface {
	// CreateIfAbsent atomically creates the record if no record exists for
	// its id. Returns true when this call created it.
	CreateIfAbsent(ctx context.Context, rec Record) (bool, error)
	// Set unconditionally overwrites the record for rec.ID.
	Set(ctx context.Context, rec Record) error
	// Get returns the record or common.ErrNotFound on a miss.
	Get(ctx context.Context, id string) (*Record, error)
	// Delete removes the record; deleting a missing record is not an error.
	Delete(ctx context.Context, id string) error
	// Ping is a liveness probe for the health aggregator.
	Ping(ctx context.Context) error
}
