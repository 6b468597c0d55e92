package messaging

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"robofleet/metrics"
	"robofleet/store"
)

const (
	outboxBatch      = 50
	outboxMaxRetries = 20
)

// OutboxDrainer periodically sends pending outbox messages.
type OutboxDrainer struct {
	db       *store.DB
	pub      Publisher
	interval time.Duration
	log      *zap.Logger
	metrics  *metrics.Metrics
	started  atomic.Bool
	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

func NewOutboxDrainer(db *store.DB, pub Publisher, interval time.Duration, logger *zap.Logger, m *metrics.Metrics) *OutboxDrainer {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &OutboxDrainer{
		db:       db,
		pub:      pub,
		interval: interval,
		log:      logger.Named("outbox"),
		metrics:  m,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

func (d *OutboxDrainer) Start(ctx context.Context) {
	if d.started.CompareAndSwap(false, true) {
		go d.run(ctx)
	}
}

// Stop ends the drain loop and waits for an in-flight batch to finish.
func (d *OutboxDrainer) Stop() {
	d.stopOnce.Do(func() { close(d.stop) })
	if d.started.Load() {
		<-d.done
	}
}

func (d *OutboxDrainer) run(ctx context.Context) {
	defer close(d.done)
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-d.stop:
			return
		case <-ticker.C:
			d.Drain(ctx)
		}
	}
}

// Drain publishes one batch and returns how many messages were sent.
func (d *OutboxDrainer) Drain(ctx context.Context) int {
	msgs, err := d.db.ListPendingOutbox(ctx, outboxMaxRetries, outboxBatch)
	if err != nil {
		d.log.Error("outbox: list pending", zap.Error(err))
		return 0
	}
	sent := 0
	for _, msg := range msgs {
		if err := d.pub.Publish(ctx, msg.Topic, msg.Key, msg.Payload); err != nil {
			d.log.Warn("outbox: publish failed", zap.String("topic", msg.Topic), zap.Int64("id", msg.ID), zap.Error(err))
			d.metrics.OutboxResult("failed")
			if err := d.db.IncrementOutboxRetries(ctx, msg.ID); err != nil {
				d.log.Error("outbox: bump retries", zap.Int64("id", msg.ID), zap.Error(err))
			}
			continue
		}
		if err := d.db.AckOutbox(ctx, msg.ID); err != nil {
			d.log.Error("outbox: ack", zap.Int64("id", msg.ID), zap.Error(err))
			continue
		}
		d.metrics.OutboxResult("sent")
		sent++
	}
	return sent
}
