package timeline

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func startLoop(t *testing.T) (*Loop, context.Context) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	l := New(0)
	go l.Run(ctx)
	t.Cleanup(func() {
		cancel()
		<-l.Stopped()
	})
	return l, ctx
}

func TestDoSyncRunsInOrder(t *testing.T) {
	l, ctx := startLoop(t)

	var order []int
	for i := 0; i < 5; i++ {
		i := i
		if !l.Do(ctx, func(context.Context) { order = append(order, i) }) {
			t.Fatal("Do() rejected work")
		}
	}

	var got []int
	if err := l.DoSync(ctx, func(context.Context) error {
		got = append(got, order...)
		return nil
	}); err != nil {
		t.Fatalf("DoSync() error: %v", err)
	}

	for i, v := range got {
		if v != i {
			t.Fatalf("work ran out of order: %v", got)
		}
	}
	if len(got) != 5 {
		t.Fatalf("ran %d items, want 5", len(got))
	}
}

func TestDoSyncIsReentrant(t *testing.T) {
	l, ctx := startLoop(t)

	errInner := errors.New("inner")
	err := l.DoSync(ctx, func(c context.Context) error {
		if !l.OnLoop(c) {
			t.Error("OnLoop() = false inside work")
		}
		return l.DoSync(c, func(context.Context) error { return errInner })
	})
	if !errors.Is(err, errInner) {
		t.Fatalf("DoSync() = %v, want inner error", err)
	}
	if l.OnLoop(ctx) {
		t.Error("OnLoop() = true outside work")
	}
}

func TestDoSyncRecoversPanic(t *testing.T) {
	l, ctx := startLoop(t)

	err := l.DoSync(ctx, func(context.Context) error { panic("boom") })
	if err == nil {
		t.Fatal("DoSync() expected error from panicking work")
	}

	// loop keeps running
	if err := l.DoSync(ctx, func(context.Context) error { return nil }); err != nil {
		t.Fatalf("DoSync() after panic: %v", err)
	}
}

func TestClosedLoopRejectsWork(t *testing.T) {
	l, ctx := startLoop(t)
	l.Close()
	<-l.Stopped()

	if l.Do(ctx, func(context.Context) {}) {
		t.Error("Do() accepted work after Close")
	}
	if err := l.DoSync(ctx, func(context.Context) error { return nil }); !errors.Is(err, ErrClosed) {
		t.Errorf("DoSync() = %v, want ErrClosed", err)
	}
}

func TestEveryTicksUntilCancelled(t *testing.T) {
	l, ctx := startLoop(t)

	var ticks atomic.Int32
	var task *Task
	if err := l.DoSync(ctx, func(context.Context) error {
		task = l.Every(5*time.Millisecond, func(context.Context) { ticks.Add(1) })
		return nil
	}); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for ticks.Load() < 3 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if ticks.Load() < 3 {
		t.Fatalf("got %d ticks, want at least 3", ticks.Load())
	}

	var atCancel int32
	if err := l.DoSync(ctx, func(context.Context) error {
		task.Cancel()
		atCancel = ticks.Load()
		return nil
	}); err != nil {
		t.Fatal(err)
	}

	time.Sleep(30 * time.Millisecond)
	if got := ticks.Load(); got != atCancel {
		t.Errorf("task ticked %d more times after Cancel", got-atCancel)
	}

	task.Cancel()
	if !task.Cancelled() {
		t.Error("Cancelled() = false after Cancel")
	}
}

func TestAfterRunsOnce(t *testing.T) {
	l, _ := startLoop(t)

	ran := make(chan bool, 2)
	l.After(time.Millisecond, func(c context.Context) { ran <- l.OnLoop(c) })

	select {
	case onLoop := <-ran:
		if !onLoop {
			t.Error("After() work did not run on the loop")
		}
	case <-time.After(time.Second):
		t.Fatal("After() work never ran")
	}

	select {
	case <-ran:
		t.Error("After() work ran twice")
	case <-time.After(20 * time.Millisecond):
	}
}

func TestNilTaskCancel(t *testing.T) {
	var task *Task
	task.Cancel()
	if !task.Cancelled() {
		t.Error("nil task should report cancelled")
	}
}
