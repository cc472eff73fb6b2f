package uplink

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/pkg/errors"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"
)

const (
	exchangeTypeTopic = "topic"
	durable           = true
	deleteWhenUnused  = false
	internal          = false
	noWait            = false
	exclusive         = false
	noAck             = true
	noLocal           = false
	consumerTag       = ""
)

// Messaging publishes JSON documents to the collector broker and consumes the ones it
// sends back.
type Messaging interface {
	Start() error
	Stop() error
	PublishPersistentMessage(ctx context.Context, exchange, exchangeType, key string, data interface{}, options *MessageOptions) error
	OnMessage(msgChan chan InMsg, queue, exchange, exchangeType, key string) error
}

// MessageOptions represents the message publishing options
type MessageOptions struct {
	Authorization string
	CorrelationID string
	Expiration    string
}

type AMQPHandler struct {
	mu                sync.Mutex
	conn              connection
	log               *logrus.Entry
	declaredExchanges map[string]struct{}
	bindings          []binding
	connectBackOff    func() backoff.BackOff
	reconnectBackOff  func() backoff.BackOff
}

// binding is one OnMessage subscription, replayed after a reconnect.
type binding struct {
	msgChan      chan InMsg
	queue        string
	exchange     string
	exchangeType string
	key          string
}

func NewAMQPHandler(conn connection, log *logrus.Entry) *AMQPHandler {
	return &AMQPHandler{
		conn:              conn,
		log:               log,
		declaredExchanges: map[string]struct{}{},
		connectBackOff: func() backoff.BackOff {
			exponential := backoff.NewExponentialBackOff()
			exponential.MaxElapsedTime = time.Minute
			return exponential
		},
		reconnectBackOff: func() backoff.BackOff {
			exponential := backoff.NewExponentialBackOff()
			exponential.InitialInterval = 30 * time.Second
			exponential.MaxInterval = 5 * time.Minute
			exponential.Multiplier = 1.7
			exponential.MaxElapsedTime = 0
			return exponential
		},
	}
}

func (a *AMQPHandler) Start() error {
	err := backoff.Retry(a.connect, a.connectBackOff())
	if err != nil {
		return errors.Wrap(err, "connect to collector")
	}
	go a.notifyWhenClosed()
	return nil
}

func (a *AMQPHandler) Stop() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.conn.isOpen() {
		return nil
	}
	if err := a.conn.closeChannel(); err != nil {
		a.log.Warnf("close channel: %v", err)
	}
	return a.conn.close()
}

func (a *AMQPHandler) connect() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.conn.connect(); err != nil {
		return err
	}
	a.declaredExchanges = map[string]struct{}{}
	return a.conn.createChannel()
}

func (a *AMQPHandler) PublishPersistentMessage(ctx context.Context, exchange, exchangeType, key string, data interface{}, options *MessageOptions) error {
	body, err := json.Marshal(data)
	if err != nil {
		return errors.Wrap(err, "encode message")
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.conn.isOpen() {
		return errors.New("collector connection is closed")
	}
	// redeclaring an exchange is a round trip to the broker
	if _, declared := a.declaredExchanges[exchange]; !declared {
		if err := a.conn.exchangeDeclare(exchange, exchangeType); err != nil {
			return errors.Wrap(err, "declare exchange")
		}
		a.declaredExchanges[exchange] = struct{}{}
	}
	return errors.Wrap(a.conn.publish(ctx, exchange, key, body, options), "publish message")
}

// OnMessage binds queue to key on exchange and forwards every delivery to msgChan. The
// binding is set up again whenever the connection is restored.
func (a *AMQPHandler) OnMessage(msgChan chan InMsg, queue, exchange, exchangeType, key string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	b := binding{msgChan: msgChan, queue: queue, exchange: exchange, exchangeType: exchangeType, key: key}
	if err := a.bind(b); err != nil {
		return err
	}
	a.bindings = append(a.bindings, b)
	return nil
}

// bind expects a.mu to be held.
func (a *AMQPHandler) bind(b binding) error {
	if !a.conn.isOpen() {
		return errors.New("collector connection is closed")
	}
	if _, declared := a.declaredExchanges[b.exchange]; !declared {
		if err := a.conn.exchangeDeclare(b.exchange, b.exchangeType); err != nil {
			return errors.Wrap(err, "declare exchange")
		}
		a.declaredExchanges[b.exchange] = struct{}{}
	}
	if err := a.conn.queueDeclare(b.queue); err != nil {
		return errors.Wrap(err, "declare queue")
	}
	if err := a.conn.queueBind(b.queue, b.key, b.exchange); err != nil {
		return errors.Wrap(err, "bind queue")
	}
	deliveries, err := a.conn.consume(b.queue)
	if err != nil {
		return errors.Wrap(err, "consume queue")
	}
	go convertDeliveryToInMsg(deliveries, b.msgChan)
	return nil
}

func (a *AMQPHandler) restoreBindings() {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, b := range a.bindings {
		if err := a.bind(b); err != nil {
			a.log.Errorf("restore %s binding on %s: %v", b.key, b.queue, err)
		}
	}
}

func convertDeliveryToInMsg(deliveries <-chan amqp.Delivery, msgChan chan InMsg) {
	for delivery := range deliveries {
		msgChan <- InMsg{RoutingKey: delivery.RoutingKey, Body: delivery.Body}
	}
}

func (a *AMQPHandler) notifyWhenClosed() {
	errReason := <-a.conn.notifyClose(make(chan *amqp.Error, 1))
	if errReason == nil {
		return
	}
	a.log.Warnf("collector connection closed: %v", errReason)

	err := backoff.RetryNotify(a.connect, a.reconnectBackOff(), func(err error, next time.Duration) {
		a.log.Warnf("reconnect to collector failed: %v, retrying in %s", err, next)
	})
	if err != nil {
		return
	}
	a.log.Info("reconnected to collector")
	a.restoreBindings()
	go a.notifyWhenClosed()
}
