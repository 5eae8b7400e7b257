package http

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"cranecloud/internal/eventing"
)

// SSEBroker fans realtime events out to connected clients. Events are
// renamed to the wire convention the dashboards expect: telemetry:{deviceId},
// device:discovered, device:approved, device:rejected,
// device:location_updated and ticket:{deviceId}.
type SSEBroker struct {
	mu      sync.Mutex
	clients map[chan frame]struct{}
}

type frame struct {
	name string
	data []byte
}

// NewSSEBroker constructs a broker.
func NewSSEBroker() *SSEBroker {
	return &SSEBroker{clients: make(map[chan frame]struct{})}
}

// Attach subscribes the broker to all realtime event types on the bus.
func (b *SSEBroker) Attach(bus eventing.Bus) {
	if b == nil || bus == nil {
		return
	}
	bus.Subscribe(eventing.EventTypeOf[eventing.TelemetryStored](), func(_ context.Context, event any) error {
		if evt, ok := event.(eventing.TelemetryStored); ok {
			b.emit("telemetry:"+evt.DeviceID, evt)
		}
		return nil
	})
	bus.Subscribe(eventing.EventTypeOf[eventing.DeviceDiscovered](), func(_ context.Context, event any) error {
		b.emit("device:discovered", event)
		return nil
	})
	bus.Subscribe(eventing.EventTypeOf[eventing.DeviceApproved](), func(_ context.Context, event any) error {
		b.emit("device:approved", event)
		return nil
	})
	bus.Subscribe(eventing.EventTypeOf[eventing.DeviceRejected](), func(_ context.Context, event any) error {
		b.emit("device:rejected", event)
		return nil
	})
	bus.Subscribe(eventing.EventTypeOf[eventing.DeviceLocationUpdated](), func(_ context.Context, event any) error {
		b.emit("device:location_updated", event)
		return nil
	})
	bus.Subscribe(eventing.EventTypeOf[eventing.TicketChanged](), func(_ context.Context, event any) error {
		if evt, ok := event.(eventing.TicketChanged); ok {
			b.emit("ticket:"+evt.DeviceID, evt)
		}
		return nil
	})
}

func (b *SSEBroker) emit(name string, event any) {
	payload, err := json.Marshal(event)
	if err != nil {
		return
	}
	b.mu.Lock()
	clients := make([]chan frame, 0, len(b.clients))
	for ch := range b.clients {
		clients = append(clients, ch)
	}
	b.mu.Unlock()
	for _, ch := range clients {
		select {
		case ch <- frame{name: name, data: payload}:
		default:
		}
	}
}

// Subscribe registers a new client channel.
func (b *SSEBroker) Subscribe() chan frame {
	if b == nil {
		return nil
	}
	ch := make(chan frame, 16)
	b.mu.Lock()
	b.clients[ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

// Unsubscribe removes a client channel.
func (b *SSEBroker) Unsubscribe(ch chan frame) {
	if b == nil || ch == nil {
		return
	}
	b.mu.Lock()
	delete(b.clients, ch)
	b.mu.Unlock()
	close(ch)
}

// StreamHandler serves the SSE realtime stream.
type StreamHandler struct {
	broker *SSEBroker
}

// NewStreamHandler constructs a stream handler.
func NewStreamHandler(broker *SSEBroker) *StreamHandler {
	return &StreamHandler{broker: broker}
}

// ServeHTTP handles GET /api/v1/stream.
func (h *StreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if h == nil || h.broker == nil {
		http.Error(w, "stream not ready", http.StatusServiceUnavailable)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "stream unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ch := h.broker.Subscribe()
	if ch == nil {
		http.Error(w, "stream not ready", http.StatusServiceUnavailable)
		return
	}
	defer h.broker.Unsubscribe(ch)

	_, _ = w.Write([]byte("event: ready\ndata: {}\n\n"))
	flusher.Flush()

	notify := r.Context().Done()
	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return
			}
			_, _ = w.Write([]byte("event: " + msg.name + "\n"))
			_, _ = w.Write([]byte("data: "))
			_, _ = w.Write(msg.data)
			_, _ = w.Write([]byte("\n\n"))
			flusher.Flush()
		case <-notify:
			return
		}
	}
}
