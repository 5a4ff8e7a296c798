// apps/go-server/internal/events/events.go
//
// Per-client-session event fan-out, streamed to browsers over SSE.
// Event types:
//   - phase:        session phase changed
//   - saving:       hole save in-flight flag changed
//   - progress:     in-progress totals recomputed after a save
//   - notification: recoverable error the user should see
//
// Publishing never blocks on a slow subscriber: messages to a full
// channel are dropped after a short timeout.

package events

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	TypePhase        = "phase"
	TypeSaving       = "saving"
	TypeProgress     = "progress"
	TypeNotification = "notification"
)

const (
	bufferSize  = 16
	sendTimeout = 250 * time.Millisecond
)

// Event is one message on a session stream.
type Event struct {
	Type string `json:"type"`
	Data string `json:"data"` // JSON payload
}

// Broadcaster fans events out to subscribers grouped by topic (the client
// session key).
type Broadcaster struct {
	mu     sync.RWMutex
	topics map[string]map[chan Event]struct{}
}

// NewBroadcaster constructs an empty Broadcaster.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{topics: make(map[string]map[chan Event]struct{})}
}

// Subscribe opens a buffered channel for topic. Call the returned func to
// unsubscribe; it closes the channel.
func (b *Broadcaster) Subscribe(topic string) (<-chan Event, func()) {
	ch := make(chan Event, bufferSize)
	b.mu.Lock()
	if b.topics[topic] == nil {
		b.topics[topic] = make(map[chan Event]struct{})
	}
	b.topics[topic][ch] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.topics[topic], ch)
			if len(b.topics[topic]) == 0 {
				delete(b.topics, topic)
			}
			b.mu.Unlock()
			close(ch)
		})
	}
}

// Publish marshals data and sends it to every subscriber of topic.
func (b *Broadcaster) Publish(topic, typ string, data any) {
	raw, err := json.Marshal(data)
	if err != nil {
		log.Warn().Err(err).Str("type", typ).Msg("marshal event")
		return
	}
	msg := Event{Type: typ, Data: string(raw)}

	// Hold the read lock while sending so Subscribe's cancel cannot close
	// a channel mid-send.
	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.topics[topic] {
		select {
		case ch <- msg:
		case <-time.After(sendTimeout):
			log.Debug().Str("topic", topic).Str("type", typ).Msg("dropped event for slow subscriber")
		}
	}
}

// Subscribers reports how many channels listen on topic.
func (b *Broadcaster) Subscribers(topic string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.topics[topic])
}

// Topic binds a Broadcaster to one topic.
type Topic struct {
	b     *Broadcaster
	topic string
}

// For returns a publisher bound to topic.
func (b *Broadcaster) For(topic string) Topic { return Topic{b: b, topic: topic} }

// Publish sends to the bound topic. A zero Topic discards events.
func (t Topic) Publish(typ string, data any) {
	if t.b == nil {
		return
	}
	t.b.Publish(t.topic, typ, data)
}
