package uplink

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/janael-pinheiro/trap-module-golang/pkg/entities"
	"github.com/sirupsen/logrus"
)

const (
	settingsQueuePrefix = "trap-settings-"
	settingsKeyPrefix   = "settings."
	broadcastSettings   = "settings.all"
	applyTimeout        = 10 * time.Second
)

// Subscriber receives settings documents pushed by the collector.
type Subscriber interface {
	SubscribeToSettings(nodeID uint32, msgChan chan InMsg) error
}

type settingsSubscriber struct {
	amqp     Messaging
	exchange string
}

func NewSettingsSubscriber(amqp Messaging, exchange string) Subscriber {
	return &settingsSubscriber{amqp: amqp, exchange: exchange}
}

// SubscribeToSettings binds one queue per node to its own key and to the fleet-wide key.
func (s *settingsSubscriber) SubscribeToSettings(nodeID uint32, msgChan chan InMsg) error {
	queue := fmt.Sprintf("%s%d", settingsQueuePrefix, nodeID)
	var err error
	subscribe := func(key string) {
		if err != nil {
			return
		}
		err = s.amqp.OnMessage(msgChan, queue, s.exchange, exchangeTypeTopic, key)
	}
	subscribe(fmt.Sprintf("%s%d", settingsKeyPrefix, nodeID))
	subscribe(broadcastSettings)
	return err
}

// SettingsApplier applies a config document the way the local control surface does.
type SettingsApplier func(ctx context.Context, doc entities.ConfigDocument) (bool, error)

// ApplySettings feeds consumed documents to apply until ctx ends or msgChan closes.
func ApplySettings(ctx context.Context, msgChan <-chan InMsg, apply SettingsApplier, log *logrus.Entry) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-msgChan:
			if !ok {
				return
			}
			var doc entities.ConfigDocument
			if err := json.Unmarshal(msg.Body, &doc); err != nil {
				log.Warnf("invalid settings on %s: %v", msg.RoutingKey, err)
				continue
			}
			applyCtx, cancel := context.WithTimeout(ctx, applyTimeout)
			applied, err := apply(applyCtx, doc)
			cancel()
			switch {
			case err != nil:
				log.Warnf("settings on %s not applied: %v", msg.RoutingKey, err)
			case !applied:
				log.Warnf("settings on %s refused", msg.RoutingKey)
			default:
				log.Infof("settings on %s applied", msg.RoutingKey)
			}
		}
	}
}
