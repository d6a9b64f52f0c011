// Package sse streams document-root events to preview clients.
package sse

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"
)

// Event types.
const (
	FileCreated   = "file.created"
	FileUpdated   = "file.updated"
	FileDeleted   = "file.deleted"
	ScanCompleted = "scan.completed"
	IndexUpdated  = "index.updated"
	ReportStale   = "report.stale"
)

// Heartbeat is the interval of keep-alive comments on idle streams.
const Heartbeat = 25 * time.Second

// Event is one message broadcast to every client.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// hub is the client set. Only the broker loop touches it.
type hub struct {
	clients   map[chan []byte]struct{}
	seq       uint64
	staleMin  time.Duration
	lastStale time.Time
}

// frame renders one SSE message with a sequential id so reconnecting
// clients can tell whether they missed anything.
func (h *hub) frame(e Event) ([]byte, error) {
	payload, err := json.Marshal(e.Data)
	if err != nil {
		return nil, err
	}
	h.seq++
	return []byte(fmt.Sprintf("id: %d\nevent: %s\ndata: %s\n\n", h.seq, e.Type, payload)), nil
}

// send drops the message for clients whose buffer is full.
func (h *hub) send(e Event) {
	raw, err := h.frame(e)
	if err != nil {
		return
	}
	for ch := range h.clients {
		select {
		case ch <- raw:
		default:
		}
	}
}

// file sends a file event and, at most once per staleMin, a report.stale
// hint telling clients the change report no longer matches the disk.
func (h *hub) file(kind, path string, now time.Time) {
	h.send(Event{Type: "file." + kind, Data: map[string]string{"path": path}})
	if now.Sub(h.lastStale) < h.staleMin {
		return
	}
	h.lastStale = now
	h.send(Event{Type: ReportStale, Data: map[string]string{}})
}

// membership is a join or leave request, acknowledged once the hub applied it.
type membership struct {
	ch   chan []byte
	join bool
	ack  chan struct{}
}

// Broker fans events out to connected clients. One loop goroutine owns the
// hub; exported methods reach it over channels.
type Broker struct {
	members chan membership
	events  chan Event
	files   chan [2]string

	clients atomic.Int64
	closing chan struct{}
	done    chan struct{}
	closed  atomic.Bool
}

// NewBroker starts a broker. report.stale hints are sent at most once per
// staleThrottle.
func NewBroker(staleThrottle time.Duration) *Broker {
	if staleThrottle <= 0 {
		staleThrottle = 2 * time.Second
	}
	b := &Broker{
		members: make(chan membership),
		events:  make(chan Event, 256),
		files:   make(chan [2]string, 256),
		closing: make(chan struct{}),
		done:    make(chan struct{}),
	}
	go b.loop(&hub{clients: make(map[chan []byte]struct{}), staleMin: staleThrottle})
	return b
}

func (b *Broker) loop(h *hub) {
	defer close(b.done)
	for {
		select {
		case <-b.closing:
			for ch := range h.clients {
				close(ch)
			}
			b.clients.Store(0)
			return

		case m := <-b.members:
			_, known := h.clients[m.ch]
			switch {
			case m.join:
				h.clients[m.ch] = struct{}{}
			case known:
				delete(h.clients, m.ch)
				close(m.ch)
			}
			b.clients.Store(int64(len(h.clients)))
			close(m.ack)

		case e := <-b.events:
			h.send(e)

		case f := <-b.files:
			h.file(f[0], f[1], time.Now())
		}
	}
}

// Close stops the loop and closes every client channel.
func (b *Broker) Close() {
	if b.closed.CompareAndSwap(false, true) {
		close(b.closing)
	}
	<-b.done
}

// Subscribe registers a client. The channel is closed when the broker stops.
func (b *Broker) Subscribe() chan []byte {
	ch := make(chan []byte, 64)
	m := membership{ch: ch, join: true, ack: make(chan struct{})}
	select {
	case b.members <- m:
		<-m.ack
	case <-b.done:
		close(ch)
	}
	return ch
}

// Unsubscribe removes a client and closes its channel.
func (b *Broker) Unsubscribe(ch chan []byte) {
	m := membership{ch: ch, ack: make(chan struct{})}
	select {
	case b.members <- m:
		<-m.ack
	case <-b.done:
	}
}

// ClientCount returns the number of connected clients.
func (b *Broker) ClientCount() int { return int(b.clients.Load()) }

// Publish broadcasts event.
func (b *Broker) Publish(event Event) {
	select {
	case b.events <- event:
	case <-b.done:
	}
}

// PublishFileEvent broadcasts file.<kind> for path followed by a throttled
// report.stale hint. kind is created, updated or deleted.
func (b *Broker) PublishFileEvent(kind, path string) {
	select {
	case b.files <- [2]string{kind, path}:
	case <-b.done:
	}
}

// ServeHTTP streams events until the client goes away or the broker stops.
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
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	tick := time.NewTicker(Heartbeat)
	defer tick.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-tick.C:
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
