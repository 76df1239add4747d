package pool

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mohammed-shakir/pctile-server/internal/store"
	"github.com/mohammed-shakir/pctile-server/internal/store/storetest"
)

func emptySlots() func() *store.Slot {
	return func() *store.Slot { return store.NewSlot("", nil, nil) }
}

func TestSubmit_RunsTask(t *testing.T) {
	p := New(2, emptySlots(), nil)
	defer p.Close()

	var ran atomic.Bool
	if err := p.Submit(context.Background(), func(context.Context, *store.Slot) { ran.Store(true) }); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if !ran.Load() {
		t.Fatal("task did not run")
	}
}

func TestSubmit_PanicIsContained(t *testing.T) {
	p := New(1, emptySlots(), nil)
	defer p.Close()

	err := p.Submit(context.Background(), func(context.Context, *store.Slot) { panic("kaboom") })
	if !errors.Is(err, ErrPanic) {
		t.Fatalf("err=%v want ErrPanic", err)
	}
	// the single worker must still be alive
	if err := p.Submit(context.Background(), func(context.Context, *store.Slot) {}); err != nil {
		t.Fatalf("submit after panic: %v", err)
	}
}

func TestSubmit_QueuedTaskAbandonedOnTimeout(t *testing.T) {
	p := New(1, emptySlots(), nil)
	defer p.Close()

	release := make(chan struct{})
	started := make(chan struct{})
	go func() {
		_ = p.Submit(context.Background(), func(context.Context, *store.Slot) {
			close(started)
			<-release
		})
	}()
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	var ran atomic.Bool
	err := p.Submit(ctx, func(context.Context, *store.Slot) { ran.Store(true) })
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err=%v want deadline exceeded", err)
	}
	close(release)

	// flush: a later task runs after the abandoned one was skipped
	if err := p.Submit(context.Background(), func(context.Context, *store.Slot) {}); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if ran.Load() {
		t.Fatal("abandoned task must not run")
	}
}

func TestSubmit_AfterCloseFails(t *testing.T) {
	p := New(1, emptySlots(), nil)
	p.Close()
	if err := p.Submit(context.Background(), func(context.Context, *store.Slot) {}); !errors.Is(err, ErrClosed) {
		t.Fatalf("err=%v want ErrClosed", err)
	}
	if ready, _ := p.Readiness(); ready {
		t.Fatal("closed pool reports ready")
	}
}

func TestClose_DrainsQueuedTasks(t *testing.T) {
	p := New(1, emptySlots(), nil)

	release := make(chan struct{})
	started := make(chan struct{})
	var done atomic.Int32
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		_ = p.Submit(context.Background(), func(context.Context, *store.Slot) {
			close(started)
			<-release
			done.Add(1)
		})
	}()
	<-started
	go func() {
		defer wg.Done()
		_ = p.Submit(context.Background(), func(context.Context, *store.Slot) { done.Add(1) })
	}()
	for len(p.queue) == 0 {
		time.Sleep(time.Millisecond)
	}

	closed := make(chan struct{})
	go func() {
		p.Close()
		close(closed)
	}()
	close(release)
	<-closed
	wg.Wait()
	if got := done.Load(); got != 2 {
		t.Fatalf("completed=%d want 2", got)
	}
}

func TestWorkersOwnSlots(t *testing.T) {
	const n = 3
	dir := t.TempDir()
	for i := range n + 1 {
		storetest.Write(t, dir, fmt.Sprintf("ds%d", i), storetest.SampleLayer("pts"))
	}
	op := &storetest.CountingOpener{}
	p := New(n, func() *store.Slot { return store.NewSlot(dir, op, nil) }, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var wg sync.WaitGroup
	errs := make(chan error, 40)
	for i := range 40 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			name := fmt.Sprintf("ds%d", i%(n+1))
			err := p.Submit(ctx, func(ctx context.Context, slot *store.Slot) {
				h, err := slot.Resolve(ctx, name)
				if err != nil {
					errs <- err
					return
				}
				if _, err := (store.Accessor{}).ListLayers(ctx, h); err != nil {
					errs <- err
				}
			})
			if err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("request failed: %v", err)
	}
	if peak := op.Peak(); peak > n {
		t.Fatalf("peak open handles=%d want <= %d", peak, n)
	}

	p.Close()
	if open := op.OpenNow(); open != 0 {
		t.Fatalf("handles open after close=%d want 0", open)
	}
}
