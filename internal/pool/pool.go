// Package pool bounds concurrent extraction work with two resource classes:
// a CPU tier for decode/classify/local-OCR stages and an I/O tier for
// network-bound model calls. Mixing blocking I/O with CPU-heavy work in one
// pool starves throughput under load, so a CPU stage that needs the network
// hands the task off instead of waiting.
package pool

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"docextract/internal/common"
)

// IOFunc is the network-bound continuation of a task.
type IOFunc func(ctx context.Context) error

// CPUFunc is the first stage of a task. Returning a non-nil IOFunc hands the
// task off to the I/O tier; returning nil finishes it on the CPU tier.
type CPUFunc func(ctx context.Context) (IOFunc, error)

// Task is one unit of document work. Done is invoked exactly once, from
// whichever tier finishes the task, with the task's final error.
type Task struct {
	ID   string
	CPU  CPUFunc
	Done func(err error)
}

type ioTask struct {
	task *Task
	run  IOFunc
}

type Config struct {
	CPUWorkers int
	IOWorkers  int
	QueueBuf   int
	// MaxTaskDuration bounds each stage's execution.
	MaxTaskDuration time.Duration
}

// Pool is the bounded two-tier worker pool.
type Pool struct {
	cpuQueue chan *Task
	ioQueue  chan *ioTask
	maxWait  time.Duration

	wg      sync.WaitGroup
	closing chan struct{}
	once    sync.Once
}

func New(cfg Config) *Pool {
	if cfg.CPUWorkers <= 0 {
		cfg.CPUWorkers = 1
	}
	if cfg.IOWorkers <= 0 {
		cfg.IOWorkers = 1
	}
	if cfg.QueueBuf <= 0 {
		cfg.QueueBuf = 64
	}
	if cfg.MaxTaskDuration <= 0 {
		cfg.MaxTaskDuration = 10 * time.Minute
	}

	p := &Pool{
		cpuQueue: make(chan *Task, cfg.QueueBuf),
		ioQueue:  make(chan *ioTask, cfg.QueueBuf),
		maxWait:  cfg.MaxTaskDuration,
		closing:  make(chan struct{}),
	}
	p.start(cfg.CPUWorkers, cfg.IOWorkers)
	return p
}

func (p *Pool) start(cpuWorkers, ioWorkers int) {
	for i := 0; i < cpuWorkers; i++ {
		p.wg.Add(1)
		go p.cpuWorker(i + 1)
	}
	for i := 0; i < ioWorkers; i++ {
		p.wg.Add(1)
		go p.ioWorker(i + 1)
	}
	slog.Info("worker pool started", "cpu_workers", cpuWorkers, "io_workers", ioWorkers)
}

// Enqueue submits a task without blocking. When the queue is saturated it
// returns common.ErrQueueFull and the caller must apply backpressure.
func (p *Pool) Enqueue(t *Task) error {
	select {
	case <-p.closing:
		return fmt.Errorf("pool closed")
	default:
	}

	select {
	case p.cpuQueue <- t:
		return nil
	default:
		return common.ErrQueueFull
	}
}

// Len returns the current backlog across both tiers.
func (p *Pool) Len() int {
	return len(p.cpuQueue) + len(p.ioQueue)
}

func (p *Pool) cpuWorker(id int) {
	defer p.wg.Done()
	for {
		select {
		case <-p.closing:
			return
		case t := <-p.cpuQueue:
			io, err := p.runCPU(t)
			if err != nil {
				slog.Error("job stage failed", "id", t.ID, "tier", "cpu", "worker", id, "err", err)
				t.Done(err)
				continue
			}
			if io == nil {
				t.Done(nil)
				continue
			}
			// handoff; the I/O tier owns the task from here
			select {
			case <-p.closing:
				t.Done(fmt.Errorf("pool closed during handoff"))
			case p.ioQueue <- &ioTask{task: t, run: io}:
			}
		}
	}
}

func (p *Pool) ioWorker(id int) {
	defer p.wg.Done()
	for {
		select {
		case <-p.closing:
			return
		case it := <-p.ioQueue:
			err := p.runIO(it)
			if err != nil {
				slog.Error("job stage failed", "id", it.task.ID, "tier", "io", "worker", id, "err", err)
			}
			it.task.Done(err)
		}
	}
}

// runCPU executes the CPU stage with panic isolation: a panic inside one
// job's extraction must not take down the worker.
func (p *Pool) runCPU(t *Task) (io IOFunc, err error) {
	defer func() {
		if r := recover(); r != nil {
			io = nil
			err = fmt.Errorf("panic in extraction: %v", r)
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), p.maxWait)
	defer cancel()
	return t.CPU(ctx)
}

func (p *Pool) runIO(it *ioTask) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in extraction: %v", r)
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), p.maxWait)
	defer cancel()
	return it.run(ctx)
}

// Close stops the workers. In-flight stages run to completion; queued tasks
// that never started are dropped.
func (p *Pool) Close() {
	p.once.Do(func() { close(p.closing) })
	p.wg.Wait()
}
