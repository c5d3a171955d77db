// Package sse implements a Server-Sent Events broker for record change events.
package sse

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/starford/tramites/internal/apperr"
	"github.com/starford/tramites/internal/collection"
)

const (
	clientBuffer = 64
	keepAlive    = 25 * time.Second
)

// Event represents an SSE event to broadcast.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// RecordData is the payload of record.* events.
type RecordData struct {
	Collection string `json:"collection"`
	ID         string `json:"id,omitempty"`
	OwnerID    string `json:"ownerId,omitempty"`
}

// eventTypes maps store operations to SSE event names.
var eventTypes = map[collection.Op]string{
	collection.OpCreated:  "record.created",
	collection.OpImported: "record.created",
	collection.OpUpdated:  "record.updated",
	collection.OpDeleted:  "record.deleted",
	collection.OpReloaded: "collection.reloaded",
}

// envelope is an event queued for the loop. Record changes set nudge so the
// loop may follow them with an attention.updated event.
type envelope struct {
	event Event
	nudge bool
}

// Broker manages SSE client connections and broadcasts events.
//
// A single loop goroutine owns the client set and the attention throttle.
// Public methods talk to it over channels.
type Broker struct {
	throttle time.Duration

	join   chan chan []byte
	leave  chan chan []byte
	queue  chan envelope
	counts chan chan int

	quit   chan struct{}
	done   chan struct{}
	closed atomic.Bool
}

// NewBroker creates a broker that emits at most one attention.updated event
// per attentionThrottle.
func NewBroker(attentionThrottle time.Duration) *Broker {
	if attentionThrottle <= 0 {
		attentionThrottle = 2 * time.Second
	}
	b := &Broker{
		throttle: attentionThrottle,
		join:     make(chan chan []byte),
		leave:    make(chan chan []byte),
		queue:    make(chan envelope, 256),
		counts:   make(chan chan int),
		quit:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	go b.loop()
	return b
}

// encode renders ev in the text/event-stream wire format.
func encode(ev Event) ([]byte, error) {
	payload, err := json.Marshal(ev.Data)
	if err != nil {
		return nil, err
	}
	return fmt.Appendf(nil, "event: %s\ndata: %s\n\n", ev.Type, payload), nil
}

// fanOut offers msg to every client, dropping it for clients whose buffer is full.
func fanOut(clients map[chan []byte]struct{}, ev Event) {
	msg, err := encode(ev)
	if err != nil {
		return
	}
	for ch := range clients {
		select {
		case ch <- msg:
		default:
		}
	}
}

func (b *Broker) loop() {
	defer close(b.done)

	clients := make(map[chan []byte]struct{})
	var lastNudge time.Time

	for {
		select {
		case <-b.quit:
			for ch := range clients {
				close(ch)
			}
			return

		case ch := <-b.join:
			clients[ch] = struct{}{}

		case ch := <-b.leave:
			if _, ok := clients[ch]; ok {
				delete(clients, ch)
				close(ch)
			}

		case env := <-b.queue:
			fanOut(clients, env.event)
			if env.nudge && time.Since(lastNudge) >= b.throttle {
				lastNudge = time.Now()
				fanOut(clients, Event{Type: "attention.updated", Data: map[string]string{}})
			}

		case resp := <-b.counts:
			resp <- len(clients)
		}
	}
}

// send queues env unless the broker is closed.
func (b *Broker) send(env envelope) {
	if b.closed.Load() {
		return
	}
	select {
	case b.queue <- env:
	case <-b.done:
	}
}

// Close stops the loop and closes every client channel. It is safe to call twice.
func (b *Broker) Close() {
	if b.closed.CompareAndSwap(false, true) {
		close(b.quit)
	}
	<-b.done
}

// Subscribe adds a new client and returns its channel.
func (b *Broker) Subscribe() chan []byte {
	ch := make(chan []byte, clientBuffer)
	if b.closed.Load() {
		close(ch)
		return ch
	}
	select {
	case b.join <- ch:
	case <-b.done:
		close(ch)
	}
	return ch
}

// Unsubscribe removes a client and closes its channel.
func (b *Broker) Unsubscribe(ch chan []byte) {
	if b.closed.Load() {
		return
	}
	select {
	case b.leave <- ch:
	case <-b.done:
	}
}

// ClientCount returns the number of connected clients.
func (b *Broker) ClientCount() int {
	if b.closed.Load() {
		return 0
	}
	resp := make(chan int, 1)
	select {
	case b.counts <- resp:
	case <-b.done:
		return 0
	}
	select {
	case n := <-resp:
		return n
	case <-b.done:
		return 0
	}
}

// Publish sends an event to all connected clients.
func (b *Broker) Publish(event Event) {
	b.send(envelope{event: event})
}

// PublishRecordEvent publishes a record change, followed by a throttled
// attention.updated event.
func (b *Broker) PublishRecordEvent(op collection.Op, data RecordData) {
	typ, ok := eventTypes[op]
	if !ok {
		return
	}
	b.send(envelope{event: Event{Type: typ, Data: data}, nudge: true})
}

// Observe implements collection.Observer. Operations rejected before
// anything changed are not published.
func (b *Broker) Observe(ev collection.Event) {
	if ev.Err != nil && !errors.Is(ev.Err, apperr.ErrPersistence) {
		return
	}
	if ev.Op != collection.OpReloaded && ev.ID == "" {
		return
	}
	b.PublishRecordEvent(ev.Op, RecordData{Collection: ev.Collection, ID: ev.ID, OwnerID: ev.OwnerID})
}

// ServeHTTP is the SSE endpoint handler (GET /api/events).
func (b *Broker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	ping := time.NewTicker(keepAlive)
	defer ping.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-ping.C:
			_, _ = w.Write([]byte(": ping\n\n"))
			flusher.Flush()
		case msg, ok := <-ch:
			if !ok {
				return
			}
			_, _ = w.Write(msg)
			flusher.Flush()
		}
	}
}
