package uplink

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/janael-pinheiro/trap-module-golang/pkg/entities"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

func silentLog() *logrus.Entry {
	logger, _ := test.NewNullLogger()
	return logrus.NewEntry(logger)
}

func createFakeReport() Report {
	return Report{
		ParentID:    42,
		CurrentTime: 1714572000,
		WakeTime:    1714575600,
		ActiveStart: 8,
		ActiveEnd:   20,
		Modules:     []entities.PeerState{{NodeID: 42, BatteryLevel: 3.9}, {NodeID: 7, BatteryLevel: 3.7}},
	}
}

func newFakeUplink(amqpMock *AmqpMock, retries uint64) *amqpUplink {
	u := NewAMQPUplink(amqpMock, Options{
		Exchange:      "trap.modules",
		UserToken:     "token",
		RetryInterval: time.Millisecond,
		Retries:       retries,
	}, silentLog()).(*amqpUplink)
	u.newID = func() string { return "corr-1" }
	return u
}

func TestDeliverPublishesOnCategoryRoutingKey(t *testing.T) {
	amqpMock := new(AmqpMock)
	expected := createFakeReport()
	expected.ID = "corr-1"
	expected.Category = CategorySetting
	options := MessageOptions{Authorization: "token", CorrelationID: "corr-1", Expiration: defaultExpirationTime}
	amqpMock.On("PublishPersistentMessage", mock.Anything, "trap.modules", exchangeTypeTopic, "modules.setting", expected, &options).Return(nil)

	delivered := newFakeUplink(amqpMock, 0).Deliver(context.Background(), createFakeReport(), CategorySetting)

	assert.True(t, delivered)
	amqpMock.AssertExpectations(t)
}

func TestGivenSameReportTwiceThenSecondIsSuppressed(t *testing.T) {
	amqpMock := new(AmqpMock)
	amqpMock.On("PublishPersistentMessage", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)
	uplink := newFakeUplink(amqpMock, 0)

	assert.True(t, uplink.Deliver(context.Background(), createFakeReport(), CategoryPeriod))
	assert.True(t, uplink.Deliver(context.Background(), createFakeReport(), CategoryPeriod))

	amqpMock.AssertNumberOfCalls(t, "PublishPersistentMessage", 1)
}

func TestGivenTransientFailureThenDeliveryIsRetried(t *testing.T) {
	amqpMock := new(AmqpMock)
	amqpMock.On("PublishPersistentMessage", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(errors.New("failed")).Once()
	amqpMock.On("PublishPersistentMessage", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil).Once()

	assert.True(t, newFakeUplink(amqpMock, 2).Deliver(context.Background(), createFakeReport(), CategoryPeriod))
	amqpMock.AssertNumberOfCalls(t, "PublishPersistentMessage", 2)
}

func TestGivenPersistentFailureThenDeliverGivesUpAfterRetries(t *testing.T) {
	amqpMock := new(AmqpMock)
	amqpMock.On("PublishPersistentMessage", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(errors.New("failed"))
	uplink := newFakeUplink(amqpMock, 2)

	assert.False(t, uplink.Deliver(context.Background(), createFakeReport(), CategoryPeriod))
	amqpMock.AssertNumberOfCalls(t, "PublishPersistentMessage", 3)

	assert.False(t, uplink.Deliver(context.Background(), createFakeReport(), CategoryPeriod), "failed reports are not remembered")
}

func TestLogUplinkAlwaysSucceeds(t *testing.T) {
	logger, hook := test.NewNullLogger()
	assert.True(t, NewLogUplink(logrus.NewEntry(logger)).Deliver(context.Background(), createFakeReport(), CategoryTest))
	assert.Equal(t, CategoryTest, hook.LastEntry().Data["category"])
}
