// Package mesh is the boundary to the radio mesh: best-effort broadcast and unicast of
// flat JSON documents plus topology and time notifications.
package mesh

import (
	"context"
	"time"
)

type EventKind int

const (
	EventReceived EventKind = iota
	EventPeerJoined
	EventTopologyChanged
	EventTimeAdjusted
)

func (k EventKind) String() string {
	switch k {
	case EventReceived:
		return "received"
	case EventPeerJoined:
		return "peerJoined"
	case EventTopologyChanged:
		return "topologyChanged"
	case EventTimeAdjusted:
		return "timeAdjusted"
	}
	return "unknown"
}

// Event is one notification from the mesh layer.
type Event struct {
	Kind    EventKind
	From    uint32
	Payload []byte
	Offset  time.Duration
}

// Mesh sends are fire-and-hope: true only means the frame left this node.
type Mesh interface {
	NodeID() uint32
	Broadcast(payload []byte) bool
	Unicast(to uint32, payload []byte) bool
	PeerIDs() []uint32
	Events() <-chan Event
	Stop(ctx context.Context) error
}

// Network hands out a node's connection to the mesh. A module attaches at every boot
// and stops its connection before each deep sleep.
type Network interface {
	Attach(id uint32) Mesh
}
