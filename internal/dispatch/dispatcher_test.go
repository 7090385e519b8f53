package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

func TestEnqueue_SameActorRunsInOrder(t *testing.T) {
	d := NewDispatcher()
	var mu sync.Mutex
	var order []string

	record := func(name string, delay time.Duration) Task {
		return func(ctx context.Context) (string, error) {
			time.Sleep(delay)
			mu.Lock()
			order = append(order, name)
			mu.Unlock()
			return name, nil
		}
	}

	futA := d.Enqueue(context.Background(), "chro", record("taskA", 30*time.Millisecond))
	futB := d.Enqueue(context.Background(), "chro", record("taskB", 0))

	if _, err := futA.Wait(context.Background()); err != nil {
		t.Fatalf("taskA failed: %v", err)
	}
	if _, err := futB.Wait(context.Background()); err != nil {
		t.Fatalf("taskB failed: %v", err)
	}
	mu.Lock()
	defer mu.Unlock()
	if len(order) != 2 || order[0] != "taskA" || order[1] != "taskB" {
		t.Fatalf("submission order violated: %v", order)
	}
}

func TestEnqueue_SameActorNeverOverlaps(t *testing.T) {
	d := NewDispatcher()
	var mu sync.Mutex
	running := 0
	maxRunning := 0

	task := func(ctx context.Context) (string, error) {
		mu.Lock()
		running++
		if running > maxRunning {
			maxRunning = running
		}
		mu.Unlock()
		time.Sleep(5 * time.Millisecond)
		mu.Lock()
		running--
		mu.Unlock()
		return "", nil
	}

	var futs []*Future
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			mu.Lock()
			futs = append(futs, d.Enqueue(context.Background(), "ceo", task))
			mu.Unlock()
		}()
	}
	wg.Wait()
	for _, f := range futs {
		if _, err := f.Wait(context.Background()); err != nil {
			t.Fatalf("task failed: %v", err)
		}
	}
	if maxRunning != 1 {
		t.Fatalf("same-actor tasks overlapped: max concurrent %d", maxRunning)
	}
}

func TestEnqueue_SecondTaskStartsAfterFirstEnds(t *testing.T) {
	d := NewDispatcher()
	var aEnd, bStart time.Time

	futA := d.Enqueue(context.Background(), "chro", func(ctx context.Context) (string, error) {
		time.Sleep(20 * time.Millisecond)
		aEnd = time.Now()
		return "", nil
	})
	futB := d.Enqueue(context.Background(), "chro", func(ctx context.Context) (string, error) {
		bStart = time.Now()
		return "", nil
	})
	futA.Wait(context.Background())
	futB.Wait(context.Background())

	if bStart.Before(aEnd) {
		t.Fatalf("taskB started (%v) before taskA ended (%v)", bStart, aEnd)
	}
}

func TestEnqueue_DifferentActorsRunConcurrently(t *testing.T) {
	d := NewDispatcher()
	gate := make(chan struct{})

	futA := d.Enqueue(context.Background(), "ceo", func(ctx context.Context) (string, error) {
		<-gate
		return "a", nil
	})
	futB := d.Enqueue(context.Background(), "cfo", func(ctx context.Context) (string, error) {
		// Unblocks the ceo task; only possible if both run at once.
		close(gate)
		return "b", nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if _, err := futA.Wait(ctx); err != nil {
		t.Fatalf("cross-actor concurrency missing: %v", err)
	}
	if _, err := futB.Wait(ctx); err != nil {
		t.Fatalf("cfo task failed: %v", err)
	}
}

func TestFuture_ResolvesError(t *testing.T) {
	d := NewDispatcher()
	boom := errors.New("boom")
	fut := d.Enqueue(context.Background(), "eng", func(ctx context.Context) (string, error) {
		return "", boom
	})
	if _, err := fut.Wait(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if d.Failures() != 1 {
		t.Fatalf("failure must be recorded, got %d", d.Failures())
	}
}

func TestFuture_PanicBecomesError(t *testing.T) {
	d := NewDispatcher()
	fut := d.Enqueue(context.Background(), "eng", func(ctx context.Context) (string, error) {
		panic("broken tool")
	})
	if _, err := fut.Wait(context.Background()); err == nil {
		t.Fatal("panic should resolve the future with an error")
	}
	// The mailbox must still work afterwards.
	fut2 := d.Enqueue(context.Background(), "eng", func(ctx context.Context) (string, error) {
		return "alive", nil
	})
	res, err := fut2.Wait(context.Background())
	if err != nil || res != "alive" {
		t.Fatalf("mailbox broken after panic: %q %v", res, err)
	}
}

func TestWithTimeout_DoesNotCancelTask(t *testing.T) {
	d := NewDispatcher()
	finished := make(chan struct{})
	fut := d.Enqueue(context.Background(), "cfo", func(ctx context.Context) (string, error) {
		time.Sleep(50 * time.Millisecond)
		close(finished)
		return "late result", nil
	})

	_, err := WithTimeout(fut, 10*time.Millisecond, "cfo call")
	var te *TimeoutError
	if !errors.As(err, &te) {
		t.Fatalf("expected TimeoutError, got %v", err)
	}
	if te.Label != "cfo call" {
		t.Fatalf("timeout error should carry the label, got %+v", te)
	}

	// The underlying task keeps running and still resolves.
	select {
	case <-finished:
	case <-time.After(time.Second):
		t.Fatal("underlying task should have kept running")
	}
	res, err := fut.Wait(context.Background())
	if err != nil || res != "late result" {
		t.Fatalf("future should still resolve: %q %v", res, err)
	}
}

func TestEnqueue_ManyActorsManyTasks(t *testing.T) {
	d := NewDispatcher()
	var mu sync.Mutex
	perActor := make(map[string][]int)

	var futs []*Future
	for i := 0; i < 5; i++ {
		for j := 0; j < 20; j++ {
			actorID := fmt.Sprintf("actor-%d", i)
			seq := j
			futs = append(futs, d.Enqueue(context.Background(), actorID, func(ctx context.Context) (string, error) {
				mu.Lock()
				perActor[actorID] = append(perActor[actorID], seq)
				mu.Unlock()
				return "", nil
			}))
		}
	}
	for _, f := range futs {
		f.Wait(context.Background())
	}
	for actorID, seen := range perActor {
		for i, v := range seen {
			if v != i {
				t.Fatalf("actor %s executed out of order: %v", actorID, seen)
			}
		}
	}
}

func TestDrain(t *testing.T) {
	d := NewDispatcher()
	for i := 0; i < 4; i++ {
		d.Enqueue(context.Background(), "a", func(ctx context.Context) (string, error) {
			time.Sleep(5 * time.Millisecond)
			return "", nil
		})
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := d.Drain(ctx); err != nil {
		t.Fatalf("drain failed: %v", err)
	}
	if d.QueueLen("a") != 0 {
		t.Fatalf("queue should be empty after drain, got %d", d.QueueLen("a"))
	}
}
