package stream

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/nebulosa/api/internal/model"
	"github.com/nebulosa/api/pkg/apperr"
)

func TestBrokerPublish(t *testing.T) {
	b := NewBroker()
	sub := b.Subscribe()
	defer b.Unsubscribe(sub)

	b.BroadcastProgress("Uploading document to Gemini...")

	data := <-sub.C
	var ev model.ProgressEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		t.Fatalf("Failed to unmarshal event: %v", err)
	}
	if ev.Type != model.EventTypeProgress {
		t.Errorf("Expected progress event, got %s", ev.Type)
	}
	if ev.Message != "Uploading document to Gemini..." {
		t.Errorf("Unexpected message: %s", ev.Message)
	}
}

func TestBrokerFanOut(t *testing.T) {
	b := NewBroker()
	first := b.Subscribe()
	second := b.Subscribe()
	defer b.Unsubscribe(first)
	defer b.Unsubscribe(second)

	if b.SubscriberCount() != 2 {
		t.Fatalf("Expected 2 subscribers, got %d", b.SubscriberCount())
	}

	b.BroadcastError(apperr.New(apperr.CodeProcessingFailed, "Processing failed on the server", ""))

	for _, sub := range []*Subscriber{first, second} {
		data := <-sub.C
		var ev model.ErrorEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			t.Fatalf("Failed to unmarshal event: %v", err)
		}
		if ev.Payload == nil || ev.Payload.Code != apperr.CodeProcessingFailed {
			t.Errorf("Unexpected error payload: %+v", ev.Payload)
		}
	}
}

func TestBrokerUnsubscribeIdempotent(t *testing.T) {
	b := NewBroker()
	sub := b.Subscribe()

	b.Unsubscribe(sub)
	b.Unsubscribe(sub)

	if b.SubscriberCount() != 0 {
		t.Errorf("Expected 0 subscribers, got %d", b.SubscriberCount())
	}
	if _, open := <-sub.C; open {
		t.Error("Expected channel closed after unsubscribe")
	}
}

func TestBrokerDropsWhenSubscriberFull(t *testing.T) {
	b := NewBroker()
	slow := b.Subscribe()
	defer b.Unsubscribe(slow)

	// Never drained: overflow past the buffer must not block the
	// publisher.
	for i := 0; i < 200; i++ {
		b.BroadcastProgress("Indexing document...")
	}

	if got := len(slow.C); got != cap(slow.C) {
		t.Errorf("Expected full buffer of %d, got %d", cap(slow.C), got)
	}
}

func TestBrokerBroadcastDuringDisconnect(t *testing.T) {
	b := NewBroker()
	stop := make(chan struct{})

	var broadcasters sync.WaitGroup
	for i := 0; i < 4; i++ {
		broadcasters.Add(1)
		go func() {
			defer broadcasters.Done()
			for {
				select {
				case <-stop:
					return
				default:
					b.BroadcastProgress("Indexing document...")
				}
			}
		}()
	}

	// Connect/disconnect churn racing the broadcasters. A disconnect
	// closes the subscriber channel; broadcasts must never send on it
	// after that.
	var churners sync.WaitGroup
	for i := 0; i < 8; i++ {
		churners.Add(1)
		go func() {
			defer churners.Done()
			for j := 0; j < 500; j++ {
				sub := b.Subscribe()
				b.Unsubscribe(sub)
			}
		}()
	}

	done := make(chan struct{})
	go func() {
		churners.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("broadcast/disconnect churn did not finish")
	}
	close(stop)
	broadcasters.Wait()

	if b.SubscriberCount() != 0 {
		t.Errorf("Expected 0 subscribers after churn, got %d", b.SubscriberCount())
	}
}

func TestBrokerConcurrentSubscribers(t *testing.T) {
	b := NewBroker()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sub := b.Subscribe()
			b.BroadcastProgress("Generating Markdown report...")
			b.Unsubscribe(sub)
		}()
	}
	wg.Wait()

	if b.SubscriberCount() != 0 {
		t.Errorf("Expected 0 subscribers after churn, got %d", b.SubscriberCount())
	}
}
