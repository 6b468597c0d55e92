package messaging

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"robofleet/config"
)

// Publisher delivers one keyed message to a topic.
type Publisher interface {
	Publish(ctx context.Context, topic, key string, payload []byte) error
}

// Client is the Kafka side of messaging. Messages are hashed by key so all
// events for one robot land on one partition in order.
type Client struct {
	mu     sync.RWMutex
	cfg    *config.MessagingConfig
	writer *kafka.Writer
	log    *zap.Logger
}

func NewClient(cfg *config.MessagingConfig, logger *zap.Logger) *Client {
	return &Client{cfg: cfg, log: logger.Named("messaging")}
}

func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.cfg.Kafka.Brokers) == 0 {
		return fmt.Errorf("no kafka brokers configured")
	}

	// Verify at least one broker is reachable
	var conn *kafka.Conn
	var connErr error
	for _, broker := range c.cfg.Kafka.Brokers {
		dctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		conn, connErr = kafka.DialContext(dctx, "tcp", broker)
		cancel()
		if connErr == nil {
			c.log.Info("messaging: kafka connected", zap.String("broker", broker))
			break
		}
	}
	if connErr != nil {
		return fmt.Errorf("kafka connect: %w", connErr)
	}

	c.ensureTopics(conn, c.cfg.EventsTopic)
	conn.Close()

	c.writer = &kafka.Writer{
		Addr:         kafka.TCP(c.cfg.Kafka.Brokers...),
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
	}
	return nil
}

func (c *Client) Publish(ctx context.Context, topic, key string, payload []byte) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.writer == nil {
		return fmt.Errorf("kafka not connected")
	}
	msg := kafka.Message{Topic: topic, Value: payload}
	if key != "" {
		msg.Key = []byte(key)
	}
	return c.writer.WriteMessages(ctx, msg)
}

// ensureTopics creates Kafka topics if they don't already exist. Errors are
// logged only; the broker may auto-create topics anyway.
func (c *Client) ensureTopics(conn *kafka.Conn, topics ...string) {
	if len(topics) == 0 {
		return
	}

	controller, err := conn.Controller()
	if err != nil {
		c.log.Warn("messaging: cannot find controller for topic creation", zap.Error(err))
		return
	}

	controllerAddr := net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port))
	controllerConn, err := kafka.Dial("tcp", controllerAddr)
	if err != nil {
		c.log.Warn("messaging: cannot connect to controller", zap.Error(err))
		return
	}
	defer controllerConn.Close()

	configs := make([]kafka.TopicConfig, len(topics))
	for i, t := range topics {
		configs[i] = kafka.TopicConfig{
			Topic:             t,
			NumPartitions:     1,
			ReplicationFactor: 1,
		}
	}

	if err := controllerConn.CreateTopics(configs...); err != nil {
		c.log.Warn("messaging: topic auto-create", zap.Error(err))
	} else {
		c.log.Info("messaging: ensured topics exist", zap.Strings("topics", topics))
	}
}

func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.writer != nil
}

func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.writer != nil {
		c.writer.Close()
		c.writer = nil
	}
}
