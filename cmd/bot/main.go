package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"tg_weather_bot/internal/api"
	"tg_weather_bot/internal/config"
	"tg_weather_bot/internal/domain"
	"tg_weather_bot/internal/feature/broadcast"
	"tg_weather_bot/internal/feature/dispatch"
	"tg_weather_bot/internal/feature/lookup"
	"tg_weather_bot/internal/feature/user"
	"tg_weather_bot/internal/logging"
	"tg_weather_bot/internal/scheduler"
	"tg_weather_bot/internal/store"
	"tg_weather_bot/internal/telegram"
	"tg_weather_bot/internal/weather"
)

const (
	mongoConnectTimeout     = 10 * time.Second
	mongoIndexTimeout       = 5 * time.Second
	mongoDisconnectTimeout  = 5 * time.Second
	telegramShutdownTimeout = 10 * time.Second
	schedulerStopTimeout    = 10 * time.Second
	httpShutdownTimeout     = 10 * time.Second
)

func main() {
	configOnly := flag.Bool("config-only", false, "load and print configuration then exit")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		logging.Error("configuration error", logging.Fields{"error": err})
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.Setup(cfg)
	if err != nil {
		logging.Error("logger setup error", logging.Fields{"error": err})
		fmt.Fprintf(os.Stderr, "logger setup error: %v\n", err)
		os.Exit(1)
	}

	if *configOnly {
		logging.Info("configuration check", logging.Fields{"event": "config_only"})
		fmt.Println("configuration check: ok")
		fmt.Println(config.FormatRedacted(cfg))
		return
	}

	logger.WithFields(logging.Fields{
		"event":     "startup",
		"mongo_db":  cfg.MongoDB,
		"http_port": cfg.HTTPPort,
		"broadcast": cfg.BroadcastEnabled(),
	}).Info("configuration loaded")

	connectCtx, cancel := context.WithTimeout(context.Background(), mongoConnectTimeout)
	mongoManager, err := store.NewManager(connectCtx, cfg)
	cancel()
	if err != nil {
		logger.WithError(err).Error("mongo connection error")
		fmt.Fprintf(os.Stderr, "mongo connection error: %v\n", err)
		os.Exit(1)
	}

	logger.WithField("event", "mongo_connect").Info("connected to mongo")

	indexCtx, cancelIndexes := context.WithTimeout(context.Background(), mongoIndexTimeout)
	if err := mongoManager.EnsureBaseIndexes(indexCtx); err != nil {
		cancelIndexes()
		logger.WithError(err).Error("mongo index setup error")
		fmt.Fprintf(os.Stderr, "mongo index setup error: %v\n", err)
		os.Exit(1)
	}
	cancelIndexes()

	logger.WithField("event", "mongo_indexes").Info("ensured base mongo indexes")

	weatherClient, err := weather.NewClient(cfg, nil, logging.Component(logger, "weather"))
	if err != nil {
		logger.WithError(err).Error("weather client setup error")
		fmt.Fprintf(os.Stderr, "weather client setup error: %v\n", err)
		os.Exit(1)
	}

	userRegistrar := user.NewRegistrar(mongoManager.Users(), logger)
	userRepository := domain.NewUserRepository(mongoManager.Users())
	lookupRepository := domain.NewLookupRepository(mongoManager.WeatherHistory())
	statsProvider := store.NewStatsProvider(mongoManager.Users(), mongoManager.WeatherHistory())

	tgClient, err := telegram.NewClient(cfg, logger)
	if err != nil {
		logger.WithError(err).Error("telegram client setup error")
		fmt.Fprintf(os.Stderr, "telegram client setup error: %v\n", err)
		os.Exit(1)
	}

	logger.WithField("event", "telegram_ready").Info("telegram client initialized")

	lookupService := lookup.NewService(weatherClient, lookupRepository, tgClient, logger)
	dispatcher := dispatch.NewDispatcher(userRegistrar, lookupService, tgClient, logger)
	broadcaster := broadcast.NewService(userRepository, lookupService, logging.Component(logger, "broadcast"))

	httpServer := api.NewServer(cfg, api.Deps{
		Users:     userRepository,
		History:   lookupRepository,
		Broadcast: broadcaster,
		Stats:     statsProvider,
		Health:    mongoManager,
	}, logging.Component(logger, "api"))

	httpDone := make(chan struct{})
	go func() {
		defer close(httpDone)
		if err := httpServer.ListenAndServe(); err != nil {
			logger.WithError(err).Error("http server error")
		}
	}()

	var sched *scheduler.Scheduler
	if cfg.BroadcastEnabled() {
		sched, err = scheduler.New(cfg.BroadcastCron, cfg.BroadcastCity, broadcaster, logger)
		if err != nil {
			logger.WithError(err).Error("scheduler setup error")
			fmt.Fprintf(os.Stderr, "scheduler setup error: %v\n", err)
			os.Exit(1)
		}
		sched.Start()
	}

	signalCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	telegramCtx, cancelTelegram := context.WithCancel(context.Background())
	tgDone := make(chan struct{})

	go func() {
		tgClient.Start(telegramCtx, dispatcher)
		close(tgDone)
	}()

	select {
	case <-signalCtx.Done():
		logger.WithField("event", "shutdown_signal").Info("received termination signal, stopping telegram polling")
	case <-tgDone:
		logger.WithField("event", "telegram_stopped_early").Warn("telegram client stopped before shutdown signal")
	case <-httpDone:
		logger.WithField("event", "http_stopped_early").Warn("http server stopped before shutdown signal")
	}

	cancelTelegram()

	waitCtx, cancelWait := context.WithTimeout(context.Background(), telegramShutdownTimeout)
	select {
	case <-tgDone:
	case <-waitCtx.Done():
		logger.WithField("event", "telegram_shutdown_timeout").Warn("timed out waiting for telegram client to stop")
	}
	cancelWait()

	if sched != nil {
		schedCtx, cancelSched := context.WithTimeout(context.Background(), schedulerStopTimeout)
		sched.Stop(schedCtx)
		cancelSched()
	}

	httpCtx, cancelHTTP := context.WithTimeout(context.Background(), httpShutdownTimeout)
	if err := httpServer.Shutdown(httpCtx); err != nil {
		logger.WithError(err).Error("http shutdown error")
	}
	cancelHTTP()

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), mongoDisconnectTimeout)
	if err := mongoManager.Close(shutdownCtx); err != nil {
		logger.WithError(err).Error("mongo disconnect error")
	} else {
		logger.WithField("event", "mongo_disconnect").Info("mongo client disconnected")
	}
	cancelShutdown()

	logger.WithField("event", "shutdown_complete").Info("shutdown complete")
}
