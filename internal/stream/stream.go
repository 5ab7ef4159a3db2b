package stream

import (
	"context"
	"sync"
	"time"
)

// Event is one committed engine effect delivered to subscribers.
type Event struct {
	Seq       uint64    `json:"seq"`
	CallID    string    `json:"call_id,omitempty"`
	Action    string    `json:"action,omitempty"`
	Kind      string    `json:"kind"`
	Data      any       `json:"data,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Stream fan-outs events to all active subscribers (SSE clients).
type Stream struct {
	mu   sync.RWMutex
	subs map[int]chan Event
	next int
	seq  uint64
}

// New initialises an empty stream.
func New() *Stream {
	return &Stream{subs: make(map[int]chan Event)}
}

// Subscribe registers a subscriber and returns a channel which will receive events.
// The channel is closed when the provided context ends.
func (s *Stream) Subscribe(ctx context.Context) <-chan Event {
	ch := make(chan Event, 16)

	s.mu.Lock()
	id := s.next
	s.next++
	s.subs[id] = ch
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		s.mu.Lock()
		delete(s.subs, id)
		close(ch)
		s.mu.Unlock()
	}()

	return ch
}

// Publish stamps the event with the next sequence number and fan-outs it.
func (s *Stream) Publish(evt Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	evt.Seq = s.seq
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now().UTC()
	}
	for _, ch := range s.subs {
		select {
		case ch <- evt:
		default:
			// Drop when subscriber is slow to avoid blocking.
		}
	}
}

// Subscribers reports the number of attached subscribers.
func (s *Stream) Subscribers() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.subs)
}

// StartHeartbeat emits a heartbeat event at the provided interval until the
// returned stop function is called. Idle SSE connections stay open through proxies.
func (s *Stream) StartHeartbeat(interval time.Duration) func() {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.Publish(Event{Kind: "heartbeat"})
			}
		}
	}()
	return cancel
}
