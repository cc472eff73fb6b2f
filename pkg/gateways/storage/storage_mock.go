package storage

import "github.com/stretchr/testify/mock"

type DocumentStoreMock struct {
	mock.Mock
}

func (m *DocumentStoreMock) ReadDocument(path string) ([]byte, bool) {
	args := m.Called(path)
	data, _ := args.Get(0).([]byte)
	return data, args.Bool(1)
}

func (m *DocumentStoreMock) WriteDocument(path string, data []byte) bool {
	args := m.Called(path, data)
	return args.Bool(0)
}
