package messaging

import (
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"robofleet/config"
)

// RawHandler receives one inbound payload.
type RawHandler func(payload []byte)

// TelemetrySubscriber listens for robot reports on an MQTT topic filter and
// hands each payload to a RawHandler. The subscription is restored on every
// reconnect.
type TelemetrySubscriber struct {
	cfg     config.MQTTConfig
	handler RawHandler
	conn    mqtt.Client
	log     *zap.Logger
}

func NewTelemetrySubscriber(cfg config.MQTTConfig, handler RawHandler, logger *zap.Logger) *TelemetrySubscriber {
	return &TelemetrySubscriber{cfg: cfg, handler: handler, log: logger.Named("mqtt")}
}

func (s *TelemetrySubscriber) Connect() error {
	broker := fmt.Sprintf("tcp://%s:%d", s.cfg.Broker, s.cfg.Port)
	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(s.cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectTimeout(10 * time.Second).
		SetOnConnectHandler(func(c mqtt.Client) {
			token := c.Subscribe(s.cfg.TelemetryTopic, 1, s.onMessage)
			token.Wait()
			if err := token.Error(); err != nil {
				s.log.Error("mqtt: subscribe failed", zap.String("topic", s.cfg.TelemetryTopic), zap.Error(err))
				return
			}
			s.log.Info("mqtt: subscribed", zap.String("topic", s.cfg.TelemetryTopic))
		}).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			s.log.Warn("mqtt: connection lost", zap.Error(err))
		})

	client := mqtt.NewClient(opts)
	token := client.Connect()
	token.Wait()
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt connect %s: %w", broker, err)
	}
	s.conn = client
	s.log.Info("mqtt: connected", zap.String("broker", broker))
	return nil
}

func (s *TelemetrySubscriber) onMessage(_ mqtt.Client, msg mqtt.Message) {
	s.handler(msg.Payload())
}

func (s *TelemetrySubscriber) Close() {
	if s.conn != nil && s.conn.IsConnected() {
		s.conn.Disconnect(250)
	}
}
