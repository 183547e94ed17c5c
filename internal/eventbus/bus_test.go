package eventbus

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/dokzlo13/ledlink/internal/notify"
)

func waitFor(t *testing.T, wg *sync.WaitGroup) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("handlers did not run")
	}
}

func TestPublishRoutesByTopic(t *testing.T) {
	b := NewWithConfig(2, 16)
	defer b.Close(context.Background())

	var wg sync.WaitGroup
	var mu sync.Mutex
	var link, all []string

	wg.Add(3)
	b.Subscribe(notify.TopicLink, func(e notify.Event) {
		mu.Lock()
		link = append(link, e.Message)
		mu.Unlock()
		wg.Done()
	})
	b.SubscribeAll(func(e notify.Event) {
		mu.Lock()
		all = append(all, e.Message)
		mu.Unlock()
		wg.Done()
	})

	b.Publish(notify.Info(notify.TopicLink, "connected"))
	b.Publish(notify.Info(notify.TopicColor, "color"))
	waitFor(t, &wg)

	mu.Lock()
	defer mu.Unlock()
	if len(link) != 1 || link[0] != "connected" {
		t.Errorf("link handler got %v", link)
	}
	if len(all) != 2 {
		t.Errorf("wildcard handler got %v", all)
	}
}

func TestHandlerPanicDoesNotKillWorker(t *testing.T) {
	b := NewWithConfig(1, 4)
	defer b.Close(context.Background())

	var wg sync.WaitGroup
	wg.Add(1)
	b.Subscribe(notify.TopicSync, func(e notify.Event) {
		if e.Message == "boom" {
			panic("handler failure")
		}
		wg.Done()
	})

	b.Publish(notify.Info(notify.TopicSync, "boom"))
	b.Publish(notify.Info(notify.TopicSync, "ok"))
	waitFor(t, &wg)
}

func TestPublishAfterCloseIsDropped(t *testing.T) {
	b := NewWithConfig(1, 4)
	called := make(chan struct{}, 1)
	b.SubscribeAll(func(notify.Event) { called <- struct{}{} })

	b.Close(context.Background())
	b.Close(context.Background())
	b.Publish(notify.Info(notify.TopicLink, "late"))

	select {
	case <-called:
		t.Error("handler ran after Close")
	case <-time.After(20 * time.Millisecond):
	}
}

func TestConcurrentPublishAndClose(t *testing.T) {
	b := NewWithConfig(2, 8)
	b.SubscribeAll(func(notify.Event) {})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				b.Publish(notify.Info(notify.TopicColor, "tick"))
			}
		}()
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	b.Close(ctx)
	wg.Wait()
}
