package broker

import (
	"context"
	"testing"
	"time"
)

func TestSubscribeAndPublishDeliversEvent(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	b := New(ctx)

	sub := b.Subscribe(ctx, "p1")
	if sub == nil {
		t.Fatalf("expected a subscription")
	}
	defer sub.Close()

	b.Publish("p1", KindItemAdded, map[string]any{"id": "i1"})

	select {
	case ev := <-sub.Events():
		if ev.Type != KindItemAdded {
			t.Fatalf("type = %s, want item-added", ev.Type)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestPublishDoesNotCrossProjects(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	b := New(ctx)

	subA := b.Subscribe(ctx, "a")
	defer subA.Close()
	subB := b.Subscribe(ctx, "b")
	defer subB.Close()

	b.Publish("a", KindItemAdded, nil)

	select {
	case <-subA.Events():
	case <-time.After(time.Second):
		t.Fatal("project a should have received its own event")
	}

	select {
	case ev := <-subB.Events():
		t.Fatalf("project b should not receive project a's events, got %+v", ev)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestSubscriberCountTracksSubscribeAndClose(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	b := New(ctx)

	if b.SubscriberCount() != 0 {
		t.Fatalf("expected 0 subscribers initially, got %d", b.SubscriberCount())
	}

	sub := b.Subscribe(ctx, "p1")
	waitForCount(t, b, 1)

	sub.Close()
	waitForCount(t, b, 0)
}

func TestSlowSubscriberIsClosedAndDropped(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	b := New(ctx)

	sub := b.Subscribe(ctx, "p1")
	waitForCount(t, b, 1)

	// Never drain sub.Events(); flood past queueCapacity so the dispatcher
	// hits its default branch and drops this subscriber.
	for i := 0; i < queueCapacity+10; i++ {
		b.Publish("p1", KindItemUpdated, i)
	}

	waitForCount(t, b, 0)

	if got := b.DroppedCount(); got < 1 {
		t.Fatalf("DroppedCount() = %d, want at least 1", got)
	}

	// The channel should now be closed.
	select {
	case _, ok := <-sub.Events():
		if ok {
			// Draining leftover buffered events is fine; eventually closes.
		}
	case <-time.After(time.Second):
		t.Fatal("expected subscriber channel to be readable (closed or buffered) after drop")
	}
}

func TestMultipleSubscribersEachGetTheEvent(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	b := New(ctx)

	sub1 := b.Subscribe(ctx, "p1")
	defer sub1.Close()
	sub2 := b.Subscribe(ctx, "p1")
	defer sub2.Close()

	b.Publish("p1", KindBoardUpdated, nil)

	for _, s := range []*Subscription{sub1, sub2} {
		select {
		case <-s.Events():
		case <-time.After(time.Second):
			t.Fatal("every subscriber of the project should receive the event")
		}
	}
}

func TestHeartbeatIntervalIsThirtySeconds(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	b := New(ctx)
	sub := b.Subscribe(ctx, "p1")
	defer sub.Close()

	if sub.HeartbeatInterval() != 30*time.Second {
		t.Fatalf("HeartbeatInterval() = %s, want 30s", sub.HeartbeatInterval())
	}
}

func waitForCount(t *testing.T, b *Broker, want int64) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if b.SubscriberCount() == want {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("SubscriberCount() never reached %d, last was %d", want, b.SubscriberCount())
}
