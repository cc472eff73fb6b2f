package mesh

import (
	"context"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

const eventBuffer = 256

// Hub is an in-memory radio shared by simulated nodes. Every joined node hears every
// other one; frames are dropped with the configured probability.
type Hub struct {
	mu       sync.Mutex
	log      *logrus.Entry
	nodes    map[uint32]*Endpoint
	lossRate float64
	random   *rand.Rand
}

func NewHub(lossRate float64, seed int64, log *logrus.Entry) *Hub {
	return &Hub{
		log:      log,
		nodes:    map[uint32]*Endpoint{},
		lossRate: lossRate,
		random:   rand.New(rand.NewSource(seed)),
	}
}

// SetLossRate changes the drop probability of subsequent frames.
func (h *Hub) SetLossRate(rate float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.lossRate = rate
}

// Join attaches a node and announces it to everyone already present.
func (h *Hub) Join(id uint32) *Endpoint {
	h.mu.Lock()
	defer h.mu.Unlock()
	if existing, ok := h.nodes[id]; ok {
		return existing
	}
	endpoint := &Endpoint{id: id, hub: h, events: make(chan Event, eventBuffer)}
	for _, peer := range h.nodes {
		h.push(peer, Event{Kind: EventPeerJoined, From: id})
		h.push(peer, Event{Kind: EventTopologyChanged})
	}
	h.nodes[id] = endpoint
	if len(h.nodes) > 1 {
		h.push(endpoint, Event{Kind: EventTopologyChanged})
	}
	return endpoint
}

// Attach implements Network.
func (h *Hub) Attach(id uint32) Mesh {
	return h.Join(id)
}

func (h *Hub) leave(id uint32) {
	h.mu.Lock()
	defer h.mu.Unlock()
	endpoint, ok := h.nodes[id]
	if !ok {
		return
	}
	delete(h.nodes, id)
	close(endpoint.events)
	for _, peer := range h.nodes {
		h.push(peer, Event{Kind: EventTopologyChanged})
	}
}

// AdjustTime reports a mesh time correction to one node.
func (h *Hub) AdjustTime(id uint32, offset time.Duration) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if endpoint, ok := h.nodes[id]; ok {
		h.push(endpoint, Event{Kind: EventTimeAdjusted, Offset: offset})
	}
}

// Members lists the ids currently joined, in ascending order.
func (h *Hub) Members() []uint32 {
	h.mu.Lock()
	defer h.mu.Unlock()
	ids := make([]uint32, 0, len(h.nodes))
	for id := range h.nodes {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (h *Hub) deliver(from uint32, to *Endpoint, payload []byte) {
	if h.lossRate > 0 && h.random.Float64() < h.lossRate {
		h.log.Debugf("frame %d -> %d lost", from, to.id)
		return
	}
	h.push(to, Event{Kind: EventReceived, From: from, Payload: append([]byte(nil), payload...)})
}

// push never blocks; a full inbox loses the event like a saturated radio would.
func (h *Hub) push(to *Endpoint, event Event) {
	select {
	case to.events <- event:
	default:
		h.log.Warnf("inbox of %d full, %s event dropped", to.id, event.Kind)
	}
}

// Endpoint is one node's view of the Hub.
type Endpoint struct {
	id     uint32
	hub    *Hub
	events chan Event
}

func (e *Endpoint) NodeID() uint32 {
	return e.id
}

func (e *Endpoint) Broadcast(payload []byte) bool {
	h := e.hub
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, joined := h.nodes[e.id]; !joined {
		return false
	}
	for id, peer := range h.nodes {
		if id != e.id {
			h.deliver(e.id, peer, payload)
		}
	}
	return true
}

func (e *Endpoint) Unicast(to uint32, payload []byte) bool {
	h := e.hub
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, joined := h.nodes[e.id]; !joined {
		return false
	}
	peer, ok := h.nodes[to]
	if !ok || to == e.id {
		return false
	}
	h.deliver(e.id, peer, payload)
	return true
}

func (e *Endpoint) PeerIDs() []uint32 {
	ids := e.hub.Members()
	peers := ids[:0]
	for _, id := range ids {
		if id != e.id {
			peers = append(peers, id)
		}
	}
	return peers
}

func (e *Endpoint) Events() <-chan Event {
	return e.events
}

// Stop detaches the node from the radio and closes its event channel.
func (e *Endpoint) Stop(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		e.hub.leave(e.id)
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
