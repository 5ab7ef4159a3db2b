package stream

import (
	"context"
	"testing"
	"time"
)

func TestPublishFansOutInOrder(t *testing.T) {
	s := New()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a := s.Subscribe(ctx)
	b := s.Subscribe(ctx)
	if s.Subscribers() != 2 {
		t.Fatalf("expected 2 subscribers, got %d", s.Subscribers())
	}

	s.Publish(Event{Kind: "announcement", CallID: "c1"})
	s.Publish(Event{Kind: "notify", CallID: "c1"})

	for _, ch := range []<-chan Event{a, b} {
		first := <-ch
		second := <-ch
		if first.Seq != 1 || second.Seq != 2 {
			t.Fatalf("unexpected sequence: %d, %d", first.Seq, second.Seq)
		}
		if first.Kind != "announcement" || first.Timestamp.IsZero() {
			t.Fatalf("unexpected event: %+v", first)
		}
	}
}

func TestSubscriptionClosesWithContext(t *testing.T) {
	s := New()
	ctx, cancel := context.WithCancel(context.Background())
	ch := s.Subscribe(ctx)
	cancel()

	select {
	case _, ok := <-ch:
		if ok {
			t.Fatal("expected closed channel")
		}
	case <-time.After(time.Second):
		t.Fatal("subscription not closed")
	}
}

func TestSlowSubscriberDoesNotBlock(t *testing.T) {
	s := New()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	_ = s.Subscribe(ctx)

	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			s.Publish(Event{Kind: "x"})
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a full subscriber")
	}
}

func TestHeartbeat(t *testing.T) {
	s := New()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch := s.Subscribe(ctx)

	stop := s.StartHeartbeat(10 * time.Millisecond)
	defer stop()

	select {
	case evt := <-ch:
		if evt.Kind != "heartbeat" {
			t.Fatalf("unexpected kind %q", evt.Kind)
		}
	case <-time.After(time.Second):
		t.Fatal("no heartbeat")
	}
}
