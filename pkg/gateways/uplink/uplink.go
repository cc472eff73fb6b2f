package uplink

import (
	"context"
	"fmt"
	"sync"
	"time"

	bloomFilter "github.com/bits-and-blooms/bloom/v3"
	"github.com/cenkalti/backoff"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const (
	routingKeyPrefix              = "modules."
	defaultExpirationTime         = "60000"
	defaultFilterCapacity         = 10000
	defaultDuplicationProbability = 0.01
	resetFilterUsagePercentage    = 75
)

// Uplink delivers status reports to the remote collector.
type Uplink interface {
	Deliver(ctx context.Context, report Report, category Category) bool
}

// Options tunes delivery retries and duplicate suppression.
type Options struct {
	Exchange      string
	UserToken     string
	RetryInterval time.Duration
	Retries       uint64
}

type amqpUplink struct {
	amqp    Messaging
	options Options
	log     *logrus.Entry
	mu      sync.Mutex
	filter  *bloomFilter.BloomFilter
	newID   func() string
}

// NewAMQPUplink publishes reports on a topic exchange, one routing key per category.
// A report already delivered for the same parent, category and time is not sent again.
func NewAMQPUplink(amqp Messaging, options Options, log *logrus.Entry) Uplink {
	if options.RetryInterval <= 0 {
		options.RetryInterval = time.Second
	}
	return &amqpUplink{
		amqp:    amqp,
		options: options,
		log:     log,
		filter:  bloomFilter.NewWithEstimates(defaultFilterCapacity, defaultDuplicationProbability),
		newID:   func() string { return uuid.New().String() },
	}
}

func (u *amqpUplink) Deliver(ctx context.Context, report Report, category Category) bool {
	fingerprint := []byte(fmt.Sprintf("%s_%d_%d", category, report.ParentID, report.CurrentTime))
	if u.isDuplicated(fingerprint) {
		u.log.Debugf("%s report at %d already delivered", category, report.CurrentTime)
		return true
	}
	report.ID = u.newID()
	report.Category = category
	options := MessageOptions{
		Authorization: u.options.UserToken,
		CorrelationID: report.ID,
		Expiration:    defaultExpirationTime,
	}
	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewConstantBackOff(u.options.RetryInterval), u.options.Retries), ctx)
	err := backoff.Retry(func() error {
		return u.amqp.PublishPersistentMessage(ctx, u.options.Exchange, exchangeTypeTopic, routingKeyPrefix+string(category), report, &options)
	}, policy)
	if err != nil {
		u.log.Warnf("%s report not delivered: %v", category, err)
		return false
	}
	u.rememberDelivery(fingerprint)
	u.log.Infof("%s report %s delivered with %d modules", category, report.ID, len(report.Modules))
	return true
}

func (u *amqpUplink) isDuplicated(fingerprint []byte) bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.filter.Test(fingerprint)
}

func (u *amqpUplink) rememberDelivery(fingerprint []byte) {
	u.mu.Lock()
	defer u.mu.Unlock()
	usage := float64(u.filter.ApproximatedSize()) / float64(u.filter.Cap()) * 100
	if usage >= resetFilterUsagePercentage {
		u.filter.ClearAll()
	}
	u.filter.Add(fingerprint)
}

type logUplink struct {
	log *logrus.Entry
}

// NewLogUplink only logs reports, for nodes without a collector.
func NewLogUplink(log *logrus.Entry) Uplink {
	return &logUplink{log: log}
}

func (u *logUplink) Deliver(ctx context.Context, report Report, category Category) bool {
	u.log.WithFields(logrus.Fields{
		"category": category,
		"parent":   report.ParentID,
		"modules":  len(report.Modules),
		"wakeTime": report.WakeTime,
	}).Info("status report")
	return true
}
