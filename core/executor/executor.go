// Package executor runs classification and curation jobs on a process-wide
// background loop so synchronous callers never block on LLM latency.
package executor

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/pkg/errors"
)

const defaultQueueSize = 256

// Task is one unit of background work. The context is cancelled on shutdown.
type Task func(ctx context.Context) error

// Handle resolves when the submitted task finishes.
type Handle struct {
	done chan struct{}
	err  error
}

// Wait blocks until the task finishes or ctx is cancelled.
func (h *Handle) Wait(ctx context.Context) error {
	select {
	case <-h.done:
		return h.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Done returns a channel closed when the task finishes.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Err returns the task error. Valid only after Done is closed.
func (h *Handle) Err() error {
	return h.err
}

// Stats is a point-in-time snapshot of the executor.
type Stats struct {
	Running     bool `json:"running"`
	ActiveTasks int  `json:"active_tasks"`
	LoopAlive   bool `json:"loop_alive"`
}

type queued struct {
	task   Task
	handle *Handle
}

// Executor owns one long-lived dispatch loop. It lazy-starts on first Submit
// and each task runs in its own goroutine so a slow job cannot starve the
// queue.
type Executor struct {
	mu        sync.Mutex
	queue     chan queued
	cancel    context.CancelFunc
	loopDone  chan struct{}
	running   bool
	active    int
	taskGroup sync.WaitGroup
}

// New creates a stopped executor. The loop starts on first Submit.
func New() *Executor {
	return &Executor{}
}

// Submit enqueues a task, starting the loop if needed. Safe from any
// goroutine.
func (e *Executor) Submit(task Task) (*Handle, error) {
	e.mu.Lock()
	if !e.running {
		e.start()
	}
	queue := e.queue
	e.mu.Unlock()

	handle := &Handle{done: make(chan struct{})}
	select {
	case queue <- queued{task: task, handle: handle}:
		return handle, nil
	default:
		return nil, errors.New("executor queue full")
	}
}

// start must be called with the mutex held.
func (e *Executor) start() {
	ctx, cancel := context.WithCancel(context.Background())
	e.queue = make(chan queued, defaultQueueSize)
	e.cancel = cancel
	e.loopDone = make(chan struct{})
	e.running = true

	go e.loop(ctx, e.queue, e.loopDone)
	slog.Debug("background executor started")
}

func (e *Executor) loop(ctx context.Context, queue chan queued, loopDone chan struct{}) {
	defer close(loopDone)
	for {
		select {
		case <-ctx.Done():
			return
		case item := <-queue:
			e.incActive()
			e.taskGroup.Add(1)
			go func(item queued) {
				defer e.taskGroup.Done()
				defer e.decActive()
				defer close(item.handle.done)
				defer func() {
					if r := recover(); r != nil {
						item.handle.err = errors.Errorf("background task panic: %v", r)
						slog.Error("background task panicked", "panic", r)
					}
				}()
				if err := item.task(ctx); err != nil {
					item.handle.err = err
					slog.Error("background task failed", "error", err)
				}
			}(item)
		}
	}
}

// Shutdown stops accepting work, cancels the loop, and waits up to timeout
// for in-flight tasks.
func (e *Executor) Shutdown(timeout time.Duration) error {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return nil
	}
	e.running = false
	cancel := e.cancel
	loopDone := e.loopDone
	e.mu.Unlock()

	cancel()
	<-loopDone

	finished := make(chan struct{})
	go func() {
		e.taskGroup.Wait()
		close(finished)
	}()
	select {
	case <-finished:
		slog.Debug("background executor stopped")
		return nil
	case <-time.After(timeout):
		return errors.New("executor shutdown timed out")
	}
}

// Stats reports whether the loop runs and how many tasks are in flight.
func (e *Executor) Stats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()

	alive := false
	if e.loopDone != nil {
		select {
		case <-e.loopDone:
		default:
			alive = true
		}
	}
	return Stats{
		Running:     e.running,
		ActiveTasks: e.active,
		LoopAlive:   alive,
	}
}

func (e *Executor) incActive() {
	e.mu.Lock()
	e.active++
	e.mu.Unlock()
}

func (e *Executor) decActive() {
	e.mu.Lock()
	e.active--
	e.mu.Unlock()
}
