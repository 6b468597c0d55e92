// Package hub fans realtime frames out to named groups of subscribers.
package hub

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"robofleet/metrics"
)

const defaultBuffer = 64

// Frame is the envelope every published event travels in.
type Frame struct {
	Event string `json:"event"`
	Data  any    `json:"data,omitempty"`
}

// Relay forwards a frame to every process sharing the hub, the sender
// included. Each process hands received frames to Hub.Deliver.
type Relay interface {
	Forward(ctx context.Context, group string, msg []byte) error
}

// Subscriber is one member of one group. Frames are queued on a bounded
// channel; a full queue drops the frame for this subscriber only.
type Subscriber struct {
	ID    string
	Group string

	send chan []byte
	done chan struct{}
	once sync.Once
}

// C yields queued frames in publish order.
func (s *Subscriber) C() <-chan []byte { return s.send }

// Done is closed when the subscriber leaves its group.
func (s *Subscriber) Done() <-chan struct{} { return s.done }

// Send queues msg without blocking and reports whether it was accepted.
func (s *Subscriber) Send(msg []byte) bool {
	select {
	case <-s.done:
		return false
	default:
	}
	select {
	case s.send <- msg:
		return true
	default:
		return false
	}
}

type group struct {
	pub     sync.Mutex
	members map[*Subscriber]struct{}
}

type Hub struct {
	mu      sync.RWMutex
	groups  map[string]*group
	buffer  int
	relay   Relay
	log     *zap.Logger
	metrics *metrics.Metrics
}

func New(buffer int, logger *zap.Logger, m *metrics.Metrics) *Hub {
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	return &Hub{
		groups:  make(map[string]*group),
		buffer:  buffer,
		log:     logger.Named("hub"),
		metrics: m,
	}
}

// SetRelay routes publishes through r. Without a relay, frames are
// delivered to local members only.
func (h *Hub) SetRelay(r Relay) {
	h.mu.Lock()
	h.relay = r
	h.mu.Unlock()
}

// Join adds a new subscriber to name. Frames published after Join returns
// reach it.
func (h *Hub) Join(name string) *Subscriber {
	s := &Subscriber{
		ID:    uuid.NewString(),
		Group: name,
		send:  make(chan []byte, h.buffer),
		done:  make(chan struct{}),
	}
	h.mu.Lock()
	g, ok := h.groups[name]
	if !ok {
		g = &group{members: make(map[*Subscriber]struct{})}
		h.groups[name] = g
	}
	g.members[s] = struct{}{}
	h.mu.Unlock()
	return s
}

// Leave removes s from its group. It is safe to call more than once.
func (h *Hub) Leave(s *Subscriber) {
	h.mu.Lock()
	if g, ok := h.groups[s.Group]; ok {
		delete(g.members, s)
		if len(g.members) == 0 {
			delete(h.groups, s.Group)
		}
	}
	h.mu.Unlock()
	s.once.Do(func() { close(s.done) })
}

// Members returns the local member count of name.
func (h *Hub) Members(name string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if g, ok := h.groups[name]; ok {
		return len(g.members)
	}
	return 0
}

// Publish encodes {event, data} and sends it to every member of name.
func (h *Hub) Publish(ctx context.Context, name, event string, data any) error {
	msg, err := json.Marshal(Frame{Event: event, Data: data})
	if err != nil {
		return err
	}
	h.metrics.Published(event)
	h.PublishRaw(ctx, name, msg)
	return nil
}

// PublishRaw sends an already encoded frame. Relay failures fall back to
// local delivery.
func (h *Hub) PublishRaw(ctx context.Context, name string, msg []byte) {
	h.mu.RLock()
	relay := h.relay
	h.mu.RUnlock()
	if relay != nil {
		err := relay.Forward(ctx, name, msg)
		if err == nil {
			return
		}
		h.log.Warn("hub: relay forward failed, delivering locally", zap.String("group", name), zap.Error(err))
	}
	h.Deliver(name, msg)
}

// Deliver hands msg to the local members of name present right now.
// Deliveries to one group are serialized so members see frames in order.
func (h *Hub) Deliver(name string, msg []byte) int {
	h.mu.RLock()
	g, ok := h.groups[name]
	h.mu.RUnlock()
	if !ok {
		return 0
	}

	g.pub.Lock()
	defer g.pub.Unlock()

	h.mu.RLock()
	members := make([]*Subscriber, 0, len(g.members))
	for s := range g.members {
		members = append(members, s)
	}
	h.mu.RUnlock()

	delivered := 0
	for _, s := range members {
		if s.Send(msg) {
			delivered++
			continue
		}
		h.metrics.Dropped()
		h.log.Debug("hub: dropped frame for slow subscriber", zap.String("group", name), zap.String("subscriber", s.ID))
	}
	return delivered
}
