package uplink

import (
	"context"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/mock"
)

type AmqpMock struct {
	mock.Mock
}

func (m *AmqpMock) Start() error {
	args := m.Called()
	return args.Error(0)
}

func (m *AmqpMock) Stop() error {
	args := m.Called()
	return args.Error(0)
}

func (m *AmqpMock) PublishPersistentMessage(ctx context.Context, exchange, exchangeType, key string, data interface{}, options *MessageOptions) error {
	args := m.Called(ctx, exchange, exchangeType, key, data, options)
	return args.Error(0)
}

func (m *AmqpMock) OnMessage(msgChan chan InMsg, queue, exchange, exchangeType, key string) error {
	args := m.Called(msgChan, queue, exchange, exchangeType, key)
	return args.Error(0)
}

type connectionMock struct {
	mock.Mock
}

func (m *connectionMock) connect() error {
	return m.Called().Error(0)
}

func (m *connectionMock) createChannel() error {
	return m.Called().Error(0)
}

func (m *connectionMock) exchangeDeclare(name, exchangeType string) error {
	return m.Called(name, exchangeType).Error(0)
}

func (m *connectionMock) publish(ctx context.Context, exchange, key string, body []byte, options *MessageOptions) error {
	return m.Called(ctx, exchange, key, body, options).Error(0)
}

func (m *connectionMock) queueDeclare(name string) error {
	return m.Called(name).Error(0)
}

func (m *connectionMock) queueBind(queue, key, exchange string) error {
	return m.Called(queue, key, exchange).Error(0)
}

func (m *connectionMock) consume(queue string) (<-chan amqp.Delivery, error) {
	args := m.Called(queue)
	deliveries, _ := args.Get(0).(<-chan amqp.Delivery)
	return deliveries, args.Error(1)
}

func (m *connectionMock) isOpen() bool {
	return m.Called().Bool(0)
}

func (m *connectionMock) close() error {
	return m.Called().Error(0)
}

func (m *connectionMock) closeChannel() error {
	return m.Called().Error(0)
}

func (m *connectionMock) notifyClose(channel chan *amqp.Error) chan *amqp.Error {
	args := m.Called(channel)
	return args.Get(0).(chan *amqp.Error)
}
