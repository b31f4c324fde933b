package dispatch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"docextract/internal/common"
	"docextract/internal/extract"
	"docextract/internal/job"
	"docextract/internal/pool"
	"docextract/internal/resultstore"
	"docextract/internal/statuscache"
	"docextract/internal/storage"
)

type fixture struct {
	d     *Dispatcher
	pool  *pool.Pool
	cache *statuscache.MemoryCache
	store *resultstore.MemoryStore
}

func newFixture(t *testing.T, ex extract.Extractor, poolCfg pool.Config) *fixture {
	t.Helper()

	if poolCfg.CPUWorkers == 0 {
		poolCfg = pool.Config{CPUWorkers: 2, IOWorkers: 2, QueueBuf: 16}
	}

	reg := extract.NewRegistry()
	reg.Register(extract.KindPlainText, ex, false)

	p := pool.New(poolCfg)
	t.Cleanup(p.Close)

	cache := statuscache.NewMemory()
	store := resultstore.NewMemory()

	return &fixture{
		d:     New(cache, store, p, reg, nil),
		pool:  p,
		cache: cache,
		store: store,
	}
}

func textExtractor(text string) extract.Extractor {
	return extract.Func(func(ctx context.Context, doc extract.Document) (*extract.Result, error) {
		return &extract.Result{Text: text, WordCount: 1, CharCount: len(text), Engine: "fake"}, nil
	})
}

func waitTerminal(t *testing.T, d *Dispatcher, id string) job.Status {
	t.Helper()

	var status job.Status
	require.Eventually(t, func() bool {
		s, err := d.GetStatus(context.Background(), id)
		if err != nil {
			return false
		}
		status = s
		return s.Terminal()
	}, 2*time.Second, 5*time.Millisecond, "job %s never reached a terminal state", id)
	return status
}

func TestSubmit_CompletesAndStoresResult(t *testing.T) {
	f := newFixture(t, textExtractor("extracted text"), pool.Config{})
	ctx := context.Background()

	out, err := f.d.Submit(ctx, "doc1", []byte("some plain text payload"), "doc.txt")
	require.NoError(t, err)
	require.False(t, out.Duplicate)
	require.Equal(t, job.StatusQueued, out.Status)

	require.Equal(t, job.StatusCompleted, waitTerminal(t, f.d, "doc1"))

	res, err := f.d.GetResult(ctx, "doc1")
	require.NoError(t, err)
	require.Equal(t, job.StatusCompleted, res.Status)
	require.Equal(t, "extracted text", res.Text)
	require.Empty(t, res.ErrorMessage)
}

func TestSubmit_ValidatesInput(t *testing.T) {
	f := newFixture(t, textExtractor("x"), pool.Config{})
	ctx := context.Background()

	_, err := f.d.Submit(ctx, "", []byte("payload"), "doc.txt")
	require.True(t, common.IsValidation(err))

	_, err = f.d.Submit(ctx, "doc1", nil, "doc.txt")
	require.True(t, common.IsValidation(err))
}

func TestSubmit_ConcurrentDuplicatesScheduleOnce(t *testing.T) {
	var invocations atomic.Int64
	ex := extract.Func(func(ctx context.Context, doc extract.Document) (*extract.Result, error) {
		invocations.Add(1)
		return &extract.Result{Text: "once", WordCount: 1, CharCount: 4}, nil
	})
	f := newFixture(t, ex, pool.Config{})
	ctx := context.Background()

	const n = 32
	var wg sync.WaitGroup
	var accepted, duplicates atomic.Int64
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			out, err := f.d.Submit(ctx, "same-id", []byte("identical payload"), "doc.txt")
			if err != nil {
				return
			}
			if out.Duplicate {
				duplicates.Add(1)
			} else {
				accepted.Add(1)
			}
		}()
	}
	wg.Wait()

	require.Equal(t, int64(1), accepted.Load(), "exactly one submission may win the gate")
	require.Equal(t, int64(n-1), duplicates.Load())

	waitTerminal(t, f.d, "same-id")
	require.Equal(t, int64(1), invocations.Load(), "extraction must run exactly once")
}

func TestSubmit_TerminalResubmissionLeavesResultUntouched(t *testing.T) {
	f := newFixture(t, textExtractor("original"), pool.Config{})
	ctx := context.Background()

	_, err := f.d.Submit(ctx, "doc1", []byte("first payload"), "doc.txt")
	require.NoError(t, err)
	require.Equal(t, job.StatusCompleted, waitTerminal(t, f.d, "doc1"))

	out, err := f.d.Submit(ctx, "doc1", []byte("entirely different payload"), "other.txt")
	require.NoError(t, err)
	require.True(t, out.Duplicate)
	require.Equal(t, job.StatusCompleted, out.Status)

	res, err := f.d.GetResult(ctx, "doc1")
	require.NoError(t, err)
	require.Equal(t, "original", res.Text)
}

func TestSubmit_ExtractionFailureIsTerminalError(t *testing.T) {
	ex := extract.Func(func(ctx context.Context, doc extract.Document) (*extract.Result, error) {
		return nil, errors.New("unreadable input")
	})
	f := newFixture(t, ex, pool.Config{})
	ctx := context.Background()

	_, err := f.d.Submit(ctx, "bad-doc", []byte("text"), "doc.txt")
	require.NoError(t, err)
	require.Equal(t, job.StatusError, waitTerminal(t, f.d, "bad-doc"))

	res, err := f.d.GetResult(ctx, "bad-doc")
	require.NoError(t, err)
	require.Equal(t, job.StatusError, res.Status)
	require.Contains(t, res.ErrorMessage, "unreadable input")
	require.Empty(t, res.Text)
}

func TestSubmit_QueueFullRollsBackGate(t *testing.T) {
	release := make(chan struct{})
	ex := textExtractor("late")
	f := newFixture(t, ex, pool.Config{CPUWorkers: 1, IOWorkers: 1, QueueBuf: 1})
	ctx := context.Background()

	// occupy the single worker, then fill the buffer behind it
	require.NoError(t, f.pool.Enqueue(&pool.Task{
		ID:   "blocker",
		CPU:  func(ctx context.Context) (pool.IOFunc, error) { <-release; return nil, nil },
		Done: func(error) {},
	}))
	var saturated bool
	for i := 0; i < 10 && !saturated; i++ {
		err := f.pool.Enqueue(&pool.Task{
			ID:   fmt.Sprintf("fill-%d", i),
			CPU:  func(ctx context.Context) (pool.IOFunc, error) { return nil, nil },
			Done: func(error) {},
		})
		saturated = common.IsQueueFull(err)
	}
	require.True(t, saturated)

	_, err := f.d.Submit(ctx, "doc1", []byte("text"), "doc.txt")
	require.True(t, common.IsQueueFull(err))

	// the rejected submission must leave no trace so a retry can re-enter
	_, err = f.d.GetStatus(ctx, "doc1")
	require.ErrorIs(t, err, common.ErrNotFound)

	close(release)
	require.Eventually(t, func() bool {
		out, err := f.d.Submit(ctx, "doc1", []byte("text"), "doc.txt")
		return err == nil && !out.Duplicate
	}, 2*time.Second, 10*time.Millisecond, "retry after backpressure should be accepted")

	require.Equal(t, job.StatusCompleted, waitTerminal(t, f.d, "doc1"))
}

func TestGetStatus_UnknownID(t *testing.T) {
	f := newFixture(t, textExtractor("x"), pool.Config{})

	_, err := f.d.GetStatus(context.Background(), "never-submitted")
	require.ErrorIs(t, err, common.ErrNotFound)
}

func TestGetResult_UnknownID(t *testing.T) {
	f := newFixture(t, textExtractor("x"), pool.Config{})

	_, err := f.d.GetResult(context.Background(), "never-submitted")
	require.ErrorIs(t, err, common.ErrNotFound)
}

func TestGetStatus_ReadsThroughToStoreAfterEviction(t *testing.T) {
	f := newFixture(t, textExtractor("survives eviction"), pool.Config{})
	ctx := context.Background()

	_, err := f.d.Submit(ctx, "doc1", []byte("text"), "doc.txt")
	require.NoError(t, err)
	require.Equal(t, job.StatusCompleted, waitTerminal(t, f.d, "doc1"))

	// simulate TTL eviction
	require.NoError(t, f.cache.Delete(ctx, "doc1"))

	status, err := f.d.GetStatus(ctx, "doc1")
	require.NoError(t, err)
	require.Equal(t, job.StatusCompleted, status)

	res, err := f.d.GetResult(ctx, "doc1")
	require.NoError(t, err)
	require.Equal(t, "survives eviction", res.Text)
}

// failingStore refuses a configured number of writes before delegating.
type failingStore struct {
	inner    *resultstore.MemoryStore
	failures atomic.Int32
}

func (s *failingStore) Put(ctx context.Context, rec resultstore.Record) error {
	if s.failures.Load() > 0 {
		s.failures.Add(-1)
		return common.WrapUnavailable("result store", errors.New("connection reset"))
	}
	return s.inner.Put(ctx, rec)
}

func (s *failingStore) Get(ctx context.Context, id string) (*resultstore.Record, error) {
	return s.inner.Get(ctx, id)
}

func (s *failingStore) Ping(ctx context.Context) error { return nil }

func TestComplete_StorePutFailureLandsDurableErrorRecord(t *testing.T) {
	reg := extract.NewRegistry()
	reg.Register(extract.KindPlainText, textExtractor("lost text"), false)

	p := pool.New(pool.Config{CPUWorkers: 1, IOWorkers: 1, QueueBuf: 4})
	t.Cleanup(p.Close)

	store := &failingStore{inner: resultstore.NewMemory()}
	store.failures.Store(1)
	d := New(statuscache.NewMemory(), store, p, reg, nil)
	ctx := context.Background()

	_, err := d.Submit(ctx, "doc1", []byte("text"), "doc.txt")
	require.NoError(t, err)
	require.Equal(t, job.StatusError, waitTerminal(t, d, "doc1"))

	// the outcome must survive cache eviction, not live only in the cache
	rec, err := store.inner.Get(ctx, "doc1")
	require.NoError(t, err)
	require.Equal(t, job.StatusError, rec.Status)
	require.Contains(t, rec.ErrorMessage, "failed to persist")
	require.Empty(t, rec.Text)
}

// memArchive is an in-process storage.Storage recording uploads and deletes.
type memArchive struct {
	mu      sync.Mutex
	objects map[string][]byte
	nextKey int
}

func newMemArchive() *memArchive {
	return &memArchive{objects: make(map[string][]byte)}
}

func (a *memArchive) Upload(ctx context.Context, filename string, content io.Reader, contentType string) (*storage.UploadResult, error) {
	data, err := io.ReadAll(content)
	if err != nil {
		return nil, err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.nextKey++
	key := fmt.Sprintf("documents/%d/%s", a.nextKey, filename)
	a.objects[key] = data
	return &storage.UploadResult{Key: key}, nil
}

func (a *memArchive) Get(ctx context.Context, key string) (io.ReadCloser, string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	data, ok := a.objects[key]
	if !ok {
		return nil, "", errors.New("not found")
	}
	return io.NopCloser(bytes.NewReader(data)), "application/octet-stream", nil
}

func (a *memArchive) Delete(ctx context.Context, key string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.objects, key)
	return nil
}

func (a *memArchive) count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.objects)
}

func TestSubmit_QueueFullRemovesArchivedPayload(t *testing.T) {
	reg := extract.NewRegistry()
	reg.Register(extract.KindPlainText, textExtractor("x"), false)

	p := pool.New(pool.Config{CPUWorkers: 1, IOWorkers: 1, QueueBuf: 1})
	t.Cleanup(p.Close)

	archive := newMemArchive()
	d := New(statuscache.NewMemory(), resultstore.NewMemory(), p, reg, archive)
	ctx := context.Background()

	release := make(chan struct{})
	require.NoError(t, p.Enqueue(&pool.Task{
		ID:   "blocker",
		CPU:  func(ctx context.Context) (pool.IOFunc, error) { <-release; return nil, nil },
		Done: func(error) {},
	}))
	defer close(release)

	var saturated bool
	for i := 0; i < 10 && !saturated; i++ {
		err := p.Enqueue(&pool.Task{
			ID:   fmt.Sprintf("fill-%d", i),
			CPU:  func(ctx context.Context) (pool.IOFunc, error) { return nil, nil },
			Done: func(error) {},
		})
		saturated = common.IsQueueFull(err)
	}
	require.True(t, saturated)

	_, err := d.Submit(ctx, "doc1", []byte("text"), "doc.txt")
	require.True(t, common.IsQueueFull(err))
	require.Zero(t, archive.count(), "rejected submission must not leave an orphaned payload")
}

func TestSubmit_DurableRecordKeepsSubmissionTime(t *testing.T) {
	f := newFixture(t, textExtractor("timed"), pool.Config{})
	submittedAt := time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)
	f.d.now = func() time.Time { return submittedAt }
	ctx := context.Background()

	_, err := f.d.Submit(ctx, "doc1", []byte("text"), "doc.txt")
	require.NoError(t, err)
	require.Equal(t, job.StatusCompleted, waitTerminal(t, f.d, "doc1"))

	rec, err := f.store.Get(ctx, "doc1")
	require.NoError(t, err)
	require.True(t, rec.CreatedAt.Equal(submittedAt), "created_at must carry the submission time, got %v", rec.CreatedAt)
}

func TestSubmit_DuplicateDuringProcessing(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	ex := extract.Func(func(ctx context.Context, doc extract.Document) (*extract.Result, error) {
		close(started)
		<-release
		return &extract.Result{Text: "slow", WordCount: 1, CharCount: 4}, nil
	})
	f := newFixture(t, ex, pool.Config{})
	ctx := context.Background()

	_, err := f.d.Submit(ctx, "doc1", []byte("text"), "doc.txt")
	require.NoError(t, err)
	<-started

	require.Eventually(t, func() bool {
		s, err := f.d.GetStatus(ctx, "doc1")
		return err == nil && s == job.StatusProcessing
	}, 2*time.Second, 5*time.Millisecond)

	out, err := f.d.Submit(ctx, "doc1", []byte("text"), "doc.txt")
	require.NoError(t, err)
	require.True(t, out.Duplicate)
	require.Equal(t, job.StatusProcessing, out.Status)

	close(release)
	require.Equal(t, job.StatusCompleted, waitTerminal(t, f.d, "doc1"))
}
