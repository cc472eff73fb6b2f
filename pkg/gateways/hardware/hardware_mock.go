package hardware

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"
)

type BoardMock struct {
	mock.Mock
}

func (m *BoardMock) DeepSleep(ctx context.Context, d time.Duration) error {
	args := m.Called(ctx, d)
	return args.Error(0)
}

func (m *BoardMock) SleepIndefinitely(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}
