package engine

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"robofleet/config"
	"robofleet/fleetstate"
	"robofleet/hub"
	"robofleet/messaging"
	"robofleet/metrics"
	"robofleet/schedule"
	"robofleet/store"
	"robofleet/tasks"
)

type Config struct {
	AppConfig *config.Config
	DB        *store.DB
	Hub       *hub.Hub
	// Redis is optional. When set it backs the fleet flag cache.
	Redis *redis.Client
	// MsgClient is optional. When set, lifecycle events are queued on the
	// outbox and drained to Kafka.
	MsgClient *messaging.Client
	Metrics   *metrics.Metrics
	Logger    *zap.Logger
}

// Engine owns the domain services and routes their events to the hub,
// the audit log and the outbox.
type Engine struct {
	cfg       *config.Config
	db        *store.DB
	hub       *hub.Hub
	redis     *redis.Client
	msgClient *messaging.Client
	metrics   *metrics.Metrics
	log       *zap.Logger

	Events    *EventBus
	schedules *schedule.Service
	fleet     *fleetstate.Manager
	runner    *tasks.Runner
	drainer   *messaging.OutboxDrainer
}

func New(c Config) *Engine {
	logger := c.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Engine{
		cfg:       c.AppConfig,
		db:        c.DB,
		hub:       c.Hub,
		redis:     c.Redis,
		msgClient: c.MsgClient,
		metrics:   c.Metrics,
		log:       logger.Named("engine"),
		Events:    NewEventBus(logger),
	}

	e.schedules = schedule.NewService(e.db, &scheduleEmitter{bus: e.Events}, e.cfg.Schedule, logger)
	var flagCache *fleetstate.RedisStore
	if e.redis != nil {
		flagCache = fleetstate.NewRedisStore(e.redis)
	}
	e.fleet = fleetstate.NewManager(e.db, flagCache, &fleetEmitter{bus: e.Events}, logger)
	e.runner = tasks.New(e.db, e.schedules, e.cfg.Tasks, logger, e.metrics)
	if e.msgClient != nil {
		e.drainer = messaging.NewOutboxDrainer(e.db, e.msgClient, e.cfg.Messaging.OutboxDrainInterval, logger, e.metrics)
	}

	e.wireEventHandlers()
	return e
}

// Start launches the task runner and, with messaging configured, the
// outbox drainer.
func (e *Engine) Start(ctx context.Context) error {
	if err := e.runner.Start(); err != nil {
		return fmt.Errorf("start task runner: %w", err)
	}
	if e.drainer != nil {
		e.drainer.Start(ctx)
	}
	e.log.Info("engine: started", zap.Bool("outbox", e.drainer != nil), zap.Bool("redis", e.redis != nil))
	return nil
}

func (e *Engine) Stop() {
	e.runner.Stop()
	if e.drainer != nil {
		e.drainer.Stop()
	}
	e.log.Info("engine: stopped")
}

// Accessors
func (e *Engine) DB() *store.DB                { return e.db }
func (e *Engine) AppConfig() *config.Config    { return e.cfg }
func (e *Engine) Hub() *hub.Hub                { return e.hub }
func (e *Engine) Schedules() *schedule.Service { return e.schedules }
func (e *Engine) Fleet() *fleetstate.Manager   { return e.fleet }
func (e *Engine) Runner() *tasks.Runner        { return e.runner }
func (e *Engine) MsgClient() *messaging.Client { return e.msgClient }
func (e *Engine) Logger() *zap.Logger          { return e.log }
func (e *Engine) Metrics() *metrics.Metrics    { return e.metrics }

// Broadcast publishes one event to a hub group.
func (e *Engine) Broadcast(ctx context.Context, group, event string, data any) error {
	return e.hub.Publish(ctx, group, event, data)
}

// Health reports the state of each backing service.
func (e *Engine) Health(ctx context.Context) map[string]string {
	out := map[string]string{"database": "ok"}
	if err := e.db.PingContext(ctx); err != nil {
		out["database"] = err.Error()
	}
	if e.redis != nil {
		out["redis"] = "ok"
		if err := e.redis.Ping(ctx).Err(); err != nil {
			out["redis"] = err.Error()
		}
	}
	if e.msgClient != nil {
		out["kafka"] = "disconnected"
		if e.msgClient.IsConnected() {
			out["kafka"] = "ok"
		}
	}
	return out
}
