package sse

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/starford/tramites/internal/apperr"
	"github.com/starford/tramites/internal/collection"
)

// drain collects whatever is buffered on ch after a short pause.
func drain(ch chan []byte) []string {
	time.Sleep(50 * time.Millisecond)
	var out []string
	for {
		select {
		case msg := <-ch:
			out = append(out, string(msg))
		default:
			return out
		}
	}
}

func count(msgs []string, eventType string) int {
	n := 0
	for _, m := range msgs {
		if strings.Contains(m, "event: "+eventType+"\n") {
			n++
		}
	}
	return n
}

func TestSubscribeUnsubscribe(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
	defer b.Close()
	if b.ClientCount() != 0 {
		t.Fatalf("expected 0 clients")
	}
	ch := b.Subscribe()
	if b.ClientCount() != 1 {
		t.Fatalf("expected 1 client")
	}
	b.Unsubscribe(ch)
	if b.ClientCount() != 0 {
		t.Fatalf("expected 0 clients after unsub")
	}
}

func TestPublishDelivery(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
	defer b.Close()
	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	b.Publish(Event{Type: "record.created", Data: RecordData{Collection: "fechas", ID: "f1"}})

	select {
	case msg := <-ch:
		s := string(msg)
		if !strings.Contains(s, "event: record.created") {
			t.Errorf("missing event type in %q", s)
		}
		if !strings.Contains(s, `"collection":"fechas","id":"f1"`) {
			t.Errorf("missing data in %q", s)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for message")
	}
}

func TestPublishRecordEvent_AttentionThrottle(t *testing.T) {
	b := NewBroker(500 * time.Millisecond)
	defer b.Close()
	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	b.PublishRecordEvent(collection.OpCreated, RecordData{Collection: "fechas", ID: "a"})
	b.PublishRecordEvent(collection.OpUpdated, RecordData{Collection: "fechas", ID: "a"})
	b.PublishRecordEvent(collection.OpDeleted, RecordData{Collection: "fechas", ID: "a"})

	msgs := drain(ch)
	if n := count(msgs, "record.created") + count(msgs, "record.updated") + count(msgs, "record.deleted"); n != 3 {
		t.Errorf("record events = %d, want 3", n)
	}
	if n := count(msgs, "attention.updated"); n != 1 {
		t.Errorf("attention events = %d, want 1 (throttled)", n)
	}
}

func TestObserve(t *testing.T) {
	b := NewBroker(time.Hour)
	defer b.Close()
	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	// Rejected operations change nothing and are not published.
	b.Observe(collection.Event{Collection: "estados", Op: collection.OpCreated, Err: apperr.ErrDuplicate})
	// Persistence failures still changed memory.
	b.Observe(collection.Event{Collection: "estados", Op: collection.OpCreated, ID: "e1", Err: apperr.ErrPersistence})
	b.Observe(collection.Event{Collection: "estados", Op: collection.OpImported, ID: "e2"})
	b.Observe(collection.Event{Collection: "estados", Op: collection.OpReloaded})

	msgs := drain(ch)
	if n := count(msgs, "record.created"); n != 2 {
		t.Errorf("record.created = %d, want 2: %q", n, msgs)
	}
	if n := count(msgs, "collection.reloaded"); n != 1 {
		t.Errorf("collection.reloaded = %d, want 1", n)
	}
}

func TestSSEHandler(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
	defer b.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	req := httptest.NewRequest(http.MethodGet, "/api/events", nil)
	req = req.WithContext(ctx)
	w := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		b.ServeHTTP(w, req)
		close(done)
	}()

	time.Sleep(50 * time.Millisecond)
	if b.ClientCount() != 1 {
		t.Fatalf("expected 1 client from handler")
	}

	b.PublishRecordEvent(collection.OpUpdated, RecordData{Collection: "tramites", ID: "t1"})
	time.Sleep(50 * time.Millisecond)

	cancel()
	<-done

	body := w.Body.String()
	if !strings.Contains(body, "event: record.updated") {
		t.Errorf("handler output missing event: %q", body)
	}
	if got := w.Header().Get("Content-Type"); got != "text/event-stream" {
		t.Errorf("content type = %q", got)
	}

	time.Sleep(50 * time.Millisecond)
	if b.ClientCount() != 0 {
		t.Errorf("client not cleaned up after disconnect")
	}
}

func TestPublishDropsOnFullBuffer(t *testing.T) {
	b := NewBroker(time.Second)
	defer b.Close()
	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	// Client buffer holds 64 messages; the broker must not block past that.
	for i := 0; i < 70; i++ {
		b.Publish(Event{Type: "test", Data: map[string]int{"i": i}})
	}
}

func TestCloseClosesSubscribersAndStopsOperations(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
	ch := b.Subscribe()
	if b.ClientCount() != 1 {
		t.Fatalf("expected 1 client")
	}

	b.Close()

	select {
	case _, ok := <-ch:
		if ok {
			t.Fatal("expected subscriber channel to be closed")
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for channel close")
	}

	if b.ClientCount() != 0 {
		t.Fatalf("expected 0 clients after close")
	}

	b.Publish(Event{Type: "record.updated"})
	b.Observe(collection.Event{Collection: "fechas", Op: collection.OpDeleted, ID: "f1"})
}
