// Package resultstore is the durability boundary. One record per job id;
// once a terminal outcome is written it is never replaced by a different
// outcome, and it is the source of truth after the status cache evicts.
package resultstore

import (
	"context"
	"time"

	"docextract/internal/job"
)

// Record is the durable view of a job.
type Record struct {
	ID           string     `json:"id"`
	Status       job.Status `json:"status"`
	Text         string     `json:"text,omitempty"`
	ErrorMessage string     `json:"error_message,omitempty"`
	Filename     string     `json:"filename,omitempty"`
	SourceRef    string     `json:"source_ref,omitempty"`
	SourceHash   string     `json:"source_hash,omitempty"`
	WordCount    int        `json:"word_count,omitempty"`
	CharCount    int        `json:"char_count,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// Store is the adapter contract. Put is an idempotent upsert: re-writing the
// same terminal outcome is harmless, but a terminal record is never
// overwritten with a different outcome for the same id.
type Store interface {
	Put(ctx context.Context, rec Record) error
	// Get returns the record or common.ErrNotFound.
	Get(ctx context.Context, id string) (*Record, error)
	// Ping is a liveness probe for the health aggregator.
	Ping(ctx context.Context) error
}
