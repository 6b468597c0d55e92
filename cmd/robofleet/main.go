package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"robofleet/config"
	"robofleet/engine"
	"robofleet/hub"
	"robofleet/logging"
	"robofleet/messaging"
	"robofleet/metrics"
	"robofleet/protocol"
	"robofleet/store"
	"robofleet/www"
)

var Version = "dev"

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	configPath := flag.String("config", "robofleet.yaml", "path to config file")
	flag.Parse()

	if *showVersion {
		fmt.Println("robofleet", Version)
		return
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format, "robofleet")
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("robofleet: exited with error", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Database
	db, err := store.Open(&cfg.Database)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()
	logger.Info("robofleet: database open", zap.String("driver", cfg.Database.Driver))

	m := metrics.Default()
	h := hub.New(cfg.Web.SendBuffer, logger, m)

	g, gctx := errgroup.WithContext(ctx)

	// Redis
	var redisClient *redis.Client
	candidate := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Address,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	if err := candidate.Ping(pingCtx).Err(); err != nil {
		logger.Warn("robofleet: redis not available, running single-process without flag cache", zap.Error(err))
		candidate.Close()
	} else {
		logger.Info("robofleet: redis connected", zap.String("address", cfg.Redis.Address))
		redisClient = candidate
		defer redisClient.Close()

		relay := hub.NewRedisRelay(redisClient, cfg.Redis.Channel, h, logger)
		h.SetRelay(relay)
		g.Go(func() error {
			if err := relay.Run(gctx); err != nil {
				logger.Error("robofleet: redis relay stopped", zap.Error(err))
			}
			return nil
		})
	}
	cancel()

	// Messaging client
	var msgClient *messaging.Client
	kafkaClient := messaging.NewClient(&cfg.Messaging, logger)
	if err := kafkaClient.Connect(ctx); err != nil {
		logger.Warn("robofleet: messaging connect failed, outbox disabled", zap.Error(err))
	} else {
		logger.Info("robofleet: messaging connected (kafka)", zap.Strings("brokers", cfg.Messaging.Kafka.Brokers))
		msgClient = kafkaClient
		defer msgClient.Close()
	}

	// Engine
	eng := engine.New(engine.Config{
		AppConfig: cfg,
		DB:        db,
		Hub:       h,
		Redis:     redisClient,
		MsgClient: msgClient,
		Metrics:   m,
		Logger:    logger,
	})
	if err := eng.Start(ctx); err != nil {
		return err
	}
	defer eng.Stop()

	// Robot telemetry (inbound over MQTT)
	robotHandler := messaging.NewRobotHandler(eng.Fleet(), h, logger)
	ingestor := protocol.NewIngestor(robotHandler, func(hdr *protocol.RawHeader) bool {
		return hdr.Src.Role == protocol.RoleRobot
	}, logger)
	telemetry := messaging.NewTelemetrySubscriber(cfg.Messaging.MQTT, ingestor.HandleRaw, logger)
	if err := telemetry.Connect(); err != nil {
		logger.Warn("robofleet: telemetry subscriber unavailable", zap.Error(err))
	} else {
		defer telemetry.Close()
	}

	// Web server
	handler, stopWeb := www.NewRouter(eng, prometheus.DefaultGatherer, logger)

	addr := fmt.Sprintf("%s:%d", cfg.Web.Host, cfg.Web.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g.Go(func() error {
		logger.Info("robofleet: web server listening", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("web server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("robofleet: shutting down")
		stopWeb()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		return srv.Shutdown(shutdownCtx)
	})

	logger.Info("robofleet: ready", zap.String("version", Version))
	err = g.Wait()
	logger.Info("robofleet: stopped")
	return err
}
