package mesh

import (
	"context"

	"github.com/stretchr/testify/mock"
)

type MeshMock struct {
	mock.Mock
	EventsChannel chan Event
}

func NewMeshMock() *MeshMock {
	return &MeshMock{EventsChannel: make(chan Event, eventBuffer)}
}

func (m *MeshMock) NodeID() uint32 {
	args := m.Called()
	return args.Get(0).(uint32)
}

func (m *MeshMock) Broadcast(payload []byte) bool {
	args := m.Called(payload)
	return args.Bool(0)
}

func (m *MeshMock) Unicast(to uint32, payload []byte) bool {
	args := m.Called(to, payload)
	return args.Bool(0)
}

func (m *MeshMock) PeerIDs() []uint32 {
	args := m.Called()
	return args.Get(0).([]uint32)
}

func (m *MeshMock) Events() <-chan Event {
	return m.EventsChannel
}

func (m *MeshMock) Stop(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// StaticNetwork always attaches the same connection.
type StaticNetwork struct {
	Mesh Mesh
}

func (n StaticNetwork) Attach(id uint32) Mesh {
	return n.Mesh
}
