package stream

import (
	"encoding/json"
	"log"
	"sync"

	"github.com/nebulosa/api/internal/model"
	"github.com/nebulosa/api/pkg/apperr"
)

// Subscriber is one connected event sink. Events arrive on C as
// pre-marshaled SSE payloads. The channel is closed on unsubscribe.
type Subscriber struct {
	C chan []byte

	closeOnce sync.Once
}

func (s *Subscriber) close() {
	s.closeOnce.Do(func() { close(s.C) })
}

// Broker maintains the set of active stream subscribers and broadcasts
// job events to all of them. One broker serves one logical job stream;
// it is injected, not a package singleton, so tests can run brokers in
// isolation.
type Broker struct {
	mu   sync.RWMutex
	subs map[*Subscriber]struct{}
}

func NewBroker() *Broker {
	return &Broker{subs: make(map[*Subscriber]struct{})}
}

// Subscribe registers a new sink.
func (b *Broker) Subscribe() *Subscriber {
	sub := &Subscriber{C: make(chan []byte, 64)}
	b.mu.Lock()
	b.subs[sub] = struct{}{}
	count := len(b.subs)
	b.mu.Unlock()
	log.Printf("[SSE] Client connected. Total clients: %d", count)
	return sub
}

// Unsubscribe removes a sink and closes its channel. Safe to call more
// than once for the same subscriber; disconnects can race the broadcast
// loop. The channel is closed while holding the write lock so Publish,
// which sends under the read lock, can never send on a closed channel.
func (b *Broker) Unsubscribe(sub *Subscriber) {
	b.mu.Lock()
	_, ok := b.subs[sub]
	if ok {
		delete(b.subs, sub)
	}
	count := len(b.subs)
	sub.close()
	b.mu.Unlock()
	if ok {
		log.Printf("[SSE] Client disconnected. Total clients: %d", count)
	}
}

// Publish marshals the event and delivers it to every currently
// registered subscriber. Delivery is best-effort: a full (slow or
// broken) subscriber buffer drops the event for that subscriber only.
// Sends happen under the read lock; they never block, so holding it for
// the whole fan-out is safe and serializes them against channel close.
func (b *Broker) Publish(event interface{}) {
	data, err := json.Marshal(event)
	if err != nil {
		log.Printf("[SSE] Failed to marshal event: %v", err)
		return
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	for sub := range b.subs {
		select {
		case sub.C <- data:
		default:
		}
	}
}

// SubscriberCount reports the number of connected sinks.
func (b *Broker) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// BroadcastProgress sends a progress event for the active job.
func (b *Broker) BroadcastProgress(message string) {
	b.Publish(model.ProgressEvent{Type: model.EventTypeProgress, Message: message})
}

// BroadcastResult sends the terminal result event.
func (b *Broker) BroadcastResult(result *model.AnalysisResult) {
	b.Publish(model.ResultEvent{Type: model.EventTypeResult, Payload: result})
}

// BroadcastError sends the terminal error event.
func (b *Broker) BroadcastError(appErr *apperr.AppError) {
	b.Publish(model.ErrorEvent{Type: model.EventTypeError, Payload: appErr})
}
