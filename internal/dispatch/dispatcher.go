// Package dispatch is the orchestration core: it accepts submissions,
// enforces idempotency, schedules extraction onto the worker pool, writes
// state transitions to both stores, and answers status/result lookups.
package dispatch

import (
	"bytes"
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"docextract/internal/common"
	"docextract/internal/extract"
	"docextract/internal/job"
	"docextract/internal/pool"
	"docextract/internal/resultstore"
	"docextract/internal/statuscache"
	"docextract/internal/storage"
	"docextract/internal/telemetry"
)

// previewLen bounds the text slice kept in the status cache so polls stay
// cheap without duplicating the full result.
const previewLen = 500

// Dispatcher owns the job lifecycle. The atomic create-if-absent against the
// status cache is the single synchronization point: per-id atomicity, no
// global lock, full concurrency across distinct ids.
type Dispatcher struct {
	cache   statuscache.Cache
	store   resultstore.Store
	pool    *pool.Pool
	reg     *extract.Registry
	archive storage.Storage // optional payload archive for source_ref

	now func() time.Time
}

func New(cache statuscache.Cache, store resultstore.Store, p *pool.Pool, reg *extract.Registry, archive storage.Storage) *Dispatcher {
	return &Dispatcher{
		cache:   cache,
		store:   store,
		pool:    p,
		reg:     reg,
		archive: archive,
		now:     time.Now,
	}
}

// Submit accepts a document for asynchronous extraction. The id is the
// client-supplied idempotency key: exactly one scheduling event is ever
// produced per id, no matter how many times or how concurrently it is
// submitted. Duplicate submissions are accepted and their payload discarded.
func (d *Dispatcher) Submit(ctx context.Context, id string, payload []byte, filename string) (job.SubmitOutcome, error) {
	if id == "" {
		return job.SubmitOutcome{}, common.ValidationError{Field: "document_id", Message: "is required"}
	}
	if len(payload) == 0 {
		return job.SubmitOutcome{}, common.ValidationError{Field: "file", Message: "is empty"}
	}

	now := d.now()
	rec := statuscache.Record{
		ID:         id,
		Status:     job.StatusQueued,
		Filename:   filename,
		SourceHash: fmt.Sprintf("%x", sha256.Sum256(payload)),
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	created, err := d.cache.CreateIfAbsent(ctx, rec)
	if err != nil {
		return job.SubmitOutcome{}, err
	}
	if !created {
		// duplicate-suppression path: a record exists (terminal or not);
		// report its current state and do not reschedule
		status, err := d.GetStatus(ctx, id)
		if common.IsNotFound(err) {
			status = job.StatusQueued
		} else if err != nil {
			return job.SubmitOutcome{}, err
		}
		telemetry.SubmitDuplicates.Inc()
		slog.Info("duplicate submission suppressed", "id", id, "status", status)
		return job.SubmitOutcome{ID: id, Status: status, Duplicate: true}, nil
	}

	if d.archive != nil {
		up, err := d.archive.Upload(ctx, filename, bytes.NewReader(payload), "")
		if err != nil {
			// roll back the gate so a retry can succeed
			_ = d.cache.Delete(ctx, id)
			return job.SubmitOutcome{}, fmt.Errorf("archive payload: %w", err)
		}
		rec.SourceRef = up.Key
		if err := d.cache.Set(ctx, rec); err != nil {
			slog.Warn("failed to record source ref in cache", "id", id, "err", err)
		}
	}

	task := d.newTask(rec, payload)
	if err := d.pool.Enqueue(task); err != nil {
		// the record was just created by this call; remove it, along with
		// the archived payload, so the one-scheduling-event-per-id
		// invariant holds for a later retry and no orphan object remains
		_ = d.cache.Delete(ctx, id)
		if d.archive != nil && rec.SourceRef != "" {
			if derr := d.archive.Delete(ctx, rec.SourceRef); derr != nil {
				slog.Warn("failed to remove archived payload after rejection", "id", id, "key", rec.SourceRef, "err", derr)
			}
		}
		if common.IsQueueFull(err) {
			telemetry.SubmitRejected.Inc()
		}
		return job.SubmitOutcome{}, err
	}

	telemetry.SubmitAccepted.Inc()
	telemetry.QueueDepthGauge.Set(float64(d.pool.Len()))
	slog.Info("document accepted", "id", id, "filename", filename, "bytes", len(payload))
	return job.SubmitOutcome{ID: id, Status: job.StatusQueued, Duplicate: false}, nil
}

// GetStatus is the hot polling path: cache first, durable store read-through
// on a miss (the cache is ephemeral and may have evicted a job the store
// still knows terminal).
func (d *Dispatcher) GetStatus(ctx context.Context, id string) (job.Status, error) {
	crec, cerr := d.cache.Get(ctx, id)
	if cerr == nil {
		return crec.Status, nil
	}
	if !common.IsNotFound(cerr) {
		slog.Warn("status cache unavailable, falling back to result store", "id", id, "err", cerr)
	}

	rec, serr := d.store.Get(ctx, id)
	if serr == nil {
		d.backfill(ctx, rec)
		return rec.Status, nil
	}
	if common.IsNotFound(serr) {
		if cerr != nil && !common.IsNotFound(cerr) {
			// can't tell "never existed" from "cache down": surface the outage
			return "", cerr
		}
		return "", common.ErrJobNotFound
	}
	return "", serr
}

// GetResult returns the best currently-known view of a job. For terminal
// jobs the result store is authoritative; for non-terminal jobs only the
// status is returned because no text exists yet.
func (d *Dispatcher) GetResult(ctx context.Context, id string) (*job.Result, error) {
	crec, cerr := d.cache.Get(ctx, id)
	if cerr == nil && !crec.Status.Terminal() {
		return &job.Result{ID: id, Status: crec.Status}, nil
	}

	rec, serr := d.store.Get(ctx, id)
	if serr == nil {
		res := &job.Result{ID: id, Status: rec.Status}
		switch rec.Status {
		case job.StatusCompleted:
			res.Text = rec.Text
		case job.StatusError:
			res.ErrorMessage = rec.ErrorMessage
		}
		return res, nil
	}
	if common.IsNotFound(serr) {
		if cerr == nil {
			// cache says terminal but the durable write hasn't landed
			return nil, common.WrapUnavailable("result store", errors.New("terminal result not yet durable"))
		}
		if common.IsNotFound(cerr) {
			return nil, common.ErrJobNotFound
		}
		return nil, cerr
	}
	return nil, serr
}

// newTask builds the pool task for one owned processing attempt. The task's
// closures are the only writers for this job id, which is what sequences the
// queued -> processing -> terminal transitions for pollers.
func (d *Dispatcher) newTask(rec statuscache.Record, payload []byte) *pool.Task {
	var result *extract.Result
	startedAt := d.now()

	return &pool.Task{
		ID: rec.ID,
		CPU: func(ctx context.Context) (pool.IOFunc, error) {
			d.markProcessing(ctx, rec)

			kind := extract.Classify(payload, rec.Filename)
			ex, ioBound, err := d.reg.For(kind)
			if err != nil {
				return nil, err
			}

			doc := extract.Document{Data: payload, Filename: rec.Filename, Kind: kind}
			if ioBound {
				return func(ctx context.Context) error {
					r, err := ex.Extract(ctx, doc)
					if err != nil {
						return err
					}
					result = r
					return nil
				}, nil
			}

			r, err := ex.Extract(ctx, doc)
			if err != nil {
				return nil, err
			}
			result = r
			return nil, nil
		},
		Done: func(err error) {
			d.complete(rec, result, err, startedAt)
		},
	}
}

// markProcessing records the queued -> processing transition before
// extraction begins, so a crash mid-extraction is observable as stuck
// processing rather than silent loss. Best effort: the cache is lossy.
func (d *Dispatcher) markProcessing(ctx context.Context, rec statuscache.Record) {
	rec.Status = job.StatusProcessing
	rec.UpdatedAt = d.now()
	if err := d.cache.Set(ctx, rec); err != nil {
		slog.Warn("failed to mark job processing", "id", rec.ID, "err", err)
	}
}

// complete performs the terminal two-write transition: result store first
// (authoritative), status cache second. A crash between the writes leaves
// durable data discoverable by the read-through fallback.
func (d *Dispatcher) complete(rec statuscache.Record, result *extract.Result, extractErr error, startedAt time.Time) {
	// the worker outlives the submitting request; use a fresh context
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	now := d.now()
	srec := resultstore.Record{
		ID:         rec.ID,
		Filename:   rec.Filename,
		SourceRef:  rec.SourceRef,
		SourceHash: rec.SourceHash,
		CreatedAt:  rec.CreatedAt,
		UpdatedAt:  now,
	}

	if extractErr != nil {
		srec.Status = job.StatusError
		srec.ErrorMessage = extractErr.Error()
	} else {
		srec.Status = job.StatusCompleted
		srec.Text = result.Text
		srec.WordCount = result.WordCount
		srec.CharCount = result.CharCount
	}

	if err := d.store.Put(ctx, srec); err != nil {
		// completion cannot be claimed while the text is not durable;
		// record the persistence failure as the job's terminal error and
		// try once more to land that error record durably, so the job
		// outlives the cache TTL even when the first write was lost
		slog.Error("failed to persist terminal result", "id", rec.ID, "err", err)
		srec.Status = job.StatusError
		srec.Text = ""
		srec.WordCount = 0
		srec.CharCount = 0
		srec.ErrorMessage = fmt.Sprintf("failed to persist extraction result: %v", err)
		if perr := d.store.Put(ctx, srec); perr != nil {
			slog.Error("failed to persist terminal error record", "id", rec.ID, "err", perr)
		}
	}

	rec.Status = srec.Status
	rec.ErrorMessage = srec.ErrorMessage
	rec.UpdatedAt = now
	rec.TextPreview = preview(srec.Text)
	if err := d.cache.Set(ctx, rec); err != nil {
		slog.Warn("failed to update status cache with terminal state", "id", rec.ID, "err", err)
	}

	telemetry.ExtractDuration.Observe(now.Sub(startedAt).Seconds())
	telemetry.QueueDepthGauge.Set(float64(d.pool.Len()))
	if srec.Status == job.StatusCompleted {
		telemetry.JobsCompleted.Inc()
		slog.Info("job completed", "id", rec.ID, "words", srec.WordCount, "chars", srec.CharCount)
	} else {
		telemetry.JobsFailed.Inc()
		slog.Error("job failed", "id", rec.ID, "err", srec.ErrorMessage)
	}
}

// backfill repopulates the cache after a read-through hit so subsequent
// polls stay on the cheap path.
func (d *Dispatcher) backfill(ctx context.Context, rec *resultstore.Record) {
	crec := statuscache.Record{
		ID:           rec.ID,
		Status:       rec.Status,
		ErrorMessage: rec.ErrorMessage,
		Filename:     rec.Filename,
		SourceRef:    rec.SourceRef,
		SourceHash:   rec.SourceHash,
		TextPreview:  preview(rec.Text),
		CreatedAt:    rec.CreatedAt,
		UpdatedAt:    rec.UpdatedAt,
	}
	if err := d.cache.Set(ctx, crec); err != nil {
		slog.Debug("cache backfill failed", "id", rec.ID, "err", err)
	}
}

func preview(text string) string {
	if len(text) > previewLen {
		return text[:previewLen] + "..."
	}
	return text
}
