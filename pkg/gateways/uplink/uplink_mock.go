package uplink

import (
	"context"

	"github.com/stretchr/testify/mock"
)

type UplinkMock struct {
	mock.Mock
}

func (m *UplinkMock) Deliver(ctx context.Context, report Report, category Category) bool {
	args := m.Called(ctx, report, category)
	return args.Bool(0)
}
