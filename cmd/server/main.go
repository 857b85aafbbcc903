// Package main provides the channel mirror daemon entry point.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/channel-mirror/internal/api"
	"github.com/channel-mirror/internal/config"
	"github.com/channel-mirror/internal/logging"
	"github.com/channel-mirror/internal/mirror"
	"github.com/channel-mirror/internal/models"
	"github.com/channel-mirror/internal/ratelimit"
	"github.com/channel-mirror/internal/registry"
	"github.com/channel-mirror/internal/retry"
	"github.com/channel-mirror/internal/storage"
	"github.com/channel-mirror/internal/transport"
	"github.com/channel-mirror/internal/types"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		logging.Default().WithError(err).Fatal("Failed to load configuration")
	}

	logging.Init(logging.ParseLevel(cfg.Logging.Level), logging.ParseFormat(cfg.Logging.Format))
	logger := logging.Default()
	logger.WithFields(map[string]interface{}{
		"level":  cfg.Logging.Level,
		"format": cfg.Logging.Format,
	}).Info("Structured logging initialized")

	if err := cfg.Mirror.Validate(); err != nil {
		logger.WithError(err).Fatal("Invalid mirror configuration")
	}

	transmitMode, err := types.ParseTransmitMode(cfg.Mirror.TransmitMode)
	if err != nil {
		logger.WithError(err).Fatal("Invalid transmit mode")
	}

	// Postgres holds the durable cursor store.
	logger.Info("Connecting to databases...")
	postgres, err := storage.NewPostgresDB(&cfg.Database.Postgres)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to Postgres")
	}
	defer postgres.Close()

	if err := storage.RunMigrations(storage.URL(&cfg.Database.Postgres)); err != nil {
		logger.WithError(err).Fatal("Failed to run migrations")
	}

	redis, err := storage.NewRedisCache(&cfg.Database.Redis)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to Redis")
	}
	defer redis.Close()

	// The transfer audit log is optional: a daemon without ClickHouse still
	// mirrors, it just records nothing.
	var transferLog mirror.TransferLog
	if cfg.Database.ClickHouse.Host != "" {
		clickhouse, err := storage.NewClickHouseDB(&cfg.Database.ClickHouse)
		if err != nil {
			logger.WithError(err).Warn("ClickHouse unavailable, transfer audit log disabled")
		} else {
			defer clickhouse.Close()
			ensureCtx, cancel := context.WithTimeout(context.Background(), cfg.Transport.Timeout)
			if err := clickhouse.EnsureTransferTable(ensureCtx); err != nil {
				logger.WithError(err).Warn("Failed to prepare transfer audit table")
			} else {
				transferLog = storage.NewTransferRepository(clickhouse)
			}
			cancel()
		}
	}

	logger.Info("Database connections established")

	channelRepo := storage.NewChannelRepository(postgres)
	progressStore := storage.NewProgressStore(redis, cfg.Mirror.ProgressTTL)

	client := transport.NewHTTPClient(cfg.Transport.BridgeURL, cfg.Transport.Timeout)

	// Mandated waits surface in session status, not just the log.
	pauses := mirror.NewPauseNotifier()
	governor := ratelimit.NewGovernor(logger, ratelimit.WithStatusFunc(pauses.Notify))

	transmitter := mirror.NewTransmitter(client, cfg.Mirror.TargetChannel, transmitMode, cfg.Mirror.TempDir)
	pipeline := mirror.NewPipeline(client, governor, transmitter, retry.Config{
		MaxAttempts: cfg.Mirror.MaxRetries,
		Delay:       cfg.Mirror.RetryDelay,
	}, transferLog)

	loopFactory := func(ch *models.MonitoredChannel) *mirror.WatchLoop {
		return mirror.NewWatchLoop(
			ch.ChannelID,
			ch.Name,
			ch.LastMsgID,
			client,
			pipeline,
			cfg.Mirror.PollInterval,
			cfg.Mirror.WatchItemDelay,
		)
	}

	// Persist each loop's final cursor on stop so a restart resumes from
	// where watching left off instead of re-scanning the whole gap.
	persistCursor := func(id types.ChannelID, cursor types.MessageID) {
		persistCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := channelRepo.UpdateCursor(persistCtx, id, cursor); err != nil {
			logger.WithError(err).WithField("channel_id", id).Warn("Failed to persist watch cursor")
		}
	}

	supervisor := registry.NewSupervisor(loopFactory, registry.WithCursorPersist(persistCursor))

	processor := mirror.NewProcessor(pipeline, progressStore, cfg.Mirror.BackfillItemDelay)
	processor.NotifyPausesTo(pauses)
	service := mirror.NewService(client, governor, processor, channelRepo, supervisor)

	// Resume watching every channel that survived the last run.
	restoreCtx, cancelRestore := context.WithTimeout(context.Background(), cfg.Transport.Timeout)
	channels, err := channelRepo.List(restoreCtx)
	cancelRestore()
	if err != nil {
		logger.WithError(err).Fatal("Failed to load channel registry")
	}
	supervisor.RestoreAll(channels)

	serverConfig := api.DefaultServerConfig(cfg.Server.Host, cfg.Server.Port)
	server := api.NewServer(serverConfig, service, progressStore, channelRepo, supervisor)

	go func() {
		if err := server.Start(); err != nil {
			logger.WithError(err).Error("API server stopped")
		}
	}()

	logger.WithFields(map[string]interface{}{
		"host":   cfg.Server.Host,
		"port":   cfg.Server.Port,
		"target": cfg.Mirror.TargetChannel,
	}).Info("Channel mirror daemon started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), serverConfig.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.WithError(err).Error("API server forced to shutdown")
	}

	service.Shutdown()
	supervisor.StopAll()

	logger.Info("Daemon exited")
}
