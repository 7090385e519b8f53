// Package dispatch serializes work per actor: one FIFO queue per actor
// id, full concurrency across actors. This is the system's only mutual
// exclusion mechanism.
package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Task is one unit of actor work. It runs on the dispatcher goroutine
// for its actor and must honor ctx for cooperative cancellation.
type Task func(ctx context.Context) (string, error)

// Future resolves with the outcome of an enqueued task.
type Future struct {
	done   chan struct{}
	result string
	err    error
}

func newFuture() *Future {
	return &Future{done: make(chan struct{})}
}

func (f *Future) resolve(result string, err error) {
	f.result = result
	f.err = err
	close(f.done)
}

// Done is closed when the task has finished.
func (f *Future) Done() <-chan struct{} { return f.done }

// Wait blocks until the task finishes or ctx is cancelled.
func (f *Future) Wait(ctx context.Context) (string, error) {
	select {
	case <-f.done:
		return f.result, f.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// TimeoutError reports a caller-side deadline. The underlying task
// keeps running and will still resolve its future.
type TimeoutError struct {
	Label string
	After time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s timed out after %s", e.Label, e.After)
}

// WithTimeout races a future against a timer. On timeout the caller
// gets a TimeoutError; the task is NOT cancelled and will finish in the
// background, mutating state and logs as usual.
func WithTimeout(f *Future, d time.Duration, label string) (string, error) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-f.done:
		return f.result, f.err
	case <-timer.C:
		return "", &TimeoutError{Label: label, After: d}
	}
}

type entry struct {
	task       Task
	fut        *Future
	ctx        context.Context
	admittedAt time.Time
}

// Dispatcher owns the per-actor queues and their worker goroutines.
// Failures of background tasks are recorded, never silently dropped.
type Dispatcher struct {
	mu       sync.Mutex
	queues   map[string][]*entry
	busy     map[string]bool
	failures int
	wg       sync.WaitGroup
}

// NewDispatcher creates an empty dispatcher.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{
		queues: make(map[string][]*entry),
		busy:   make(map[string]bool),
	}
}

// Enqueue admits a task to the actor's mailbox and returns its future.
// Tasks for the same actor run one at a time in admission order; tasks
// for different actors run concurrently.
func (d *Dispatcher) Enqueue(ctx context.Context, actorID string, task Task) *Future {
	e := &entry{task: task, fut: newFuture(), ctx: ctx, admittedAt: time.Now()}

	d.mu.Lock()
	if d.busy[actorID] {
		d.queues[actorID] = append(d.queues[actorID], e)
		d.mu.Unlock()
		return e.fut
	}
	d.busy[actorID] = true
	d.wg.Add(1)
	d.mu.Unlock()

	go d.runLoop(actorID, e)
	return e.fut
}

// runLoop executes the head entry, then drains the actor's queue until
// it is empty. Exactly one runLoop exists per busy actor.
func (d *Dispatcher) runLoop(actorID string, e *entry) {
	defer d.wg.Done()
	for {
		result, err := runTask(e)
		if err != nil {
			d.mu.Lock()
			d.failures++
			d.mu.Unlock()
			slog.Warn("Mailbox task failed", "actor", actorID, "queued_for", time.Since(e.admittedAt), "error", err)
		}
		e.fut.resolve(result, err)

		d.mu.Lock()
		queue := d.queues[actorID]
		if len(queue) == 0 {
			d.busy[actorID] = false
			d.mu.Unlock()
			return
		}
		e = queue[0]
		d.queues[actorID] = queue[1:]
		d.mu.Unlock()
	}
}

// runTask runs one task, converting panics into errors so a broken
// task cannot take down the actor's mailbox.
func runTask(e *entry) (result string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task panicked: %v", r)
		}
	}()
	if e.ctx != nil {
		if ctxErr := e.ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
	}
	return e.task(e.ctx)
}

// QueueLen returns the number of queued (not yet started) tasks for an
// actor.
func (d *Dispatcher) QueueLen(actorID string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.queues[actorID])
}

// Failures returns the count of tasks that resolved with an error.
func (d *Dispatcher) Failures() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.failures
}

// Drain waits for all running and queued tasks to finish, or until ctx
// is cancelled.
func (d *Dispatcher) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
