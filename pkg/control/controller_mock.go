package control

import (
	"context"
	"time"

	"github.com/janael-pinheiro/trap-module-golang/pkg/entities"
	"github.com/janael-pinheiro/trap-module-golang/pkg/gateways/camera"
	"github.com/janael-pinheiro/trap-module-golang/pkg/trap"
	"github.com/stretchr/testify/mock"
)

type ControllerMock struct {
	mock.Mock
}

func (m *ControllerMock) ModuleInfo(ctx context.Context) (trap.ModuleInfo, error) {
	args := m.Called(ctx)
	return args.Get(0).(trap.ModuleInfo), args.Error(1)
}

func (m *ControllerMock) MeshGraph(ctx context.Context) (trap.MeshGraph, error) {
	args := m.Called(ctx)
	return args.Get(0).(trap.MeshGraph), args.Error(1)
}

func (m *ControllerMock) SetConfig(ctx context.Context, doc entities.ConfigDocument) (bool, error) {
	args := m.Called(ctx, doc)
	return args.Bool(0), args.Error(1)
}

func (m *ControllerMock) Capture(ctx context.Context, resolution camera.Resolution) (bool, error) {
	args := m.Called(ctx, resolution)
	return args.Bool(0), args.Error(1)
}

func (m *ControllerMock) SendDebug(ctx context.Context, message string, nodeID uint32) (bool, error) {
	args := m.Called(ctx, message, nodeID)
	return args.Bool(0), args.Error(1)
}

func (m *ControllerMock) InitGps(ctx context.Context) (bool, error) {
	args := m.Called(ctx)
	return args.Bool(0), args.Error(1)
}

func (m *ControllerMock) GetGps(ctx context.Context) (bool, error) {
	args := m.Called(ctx)
	return args.Bool(0), args.Error(1)
}

func (m *ControllerMock) SetCurrentTime(ctx context.Context, t time.Time) (bool, error) {
	args := m.Called(ctx, t)
	return args.Bool(0), args.Error(1)
}
