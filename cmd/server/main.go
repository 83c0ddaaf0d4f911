package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"rifas/internal/clock"
	"rifas/internal/config"
	"rifas/internal/handler"
	"rifas/internal/infrastructure/cache"
	"rifas/internal/infrastructure/database"
	"rifas/internal/infrastructure/logger"
	"rifas/internal/infrastructure/mq"
	"rifas/internal/job"
	"rifas/internal/metrics"
	"rifas/internal/service"
	"rifas/pkg/idgen"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
)

func main() {
	configPath := pflag.String("config", "config/config.yaml", "path to the YAML config file")
	nodeID := pflag.Int64("node-id", 1, "snowflake node id (0-1023)")
	pflag.Parse()

	if err := run(*configPath, *nodeID); err != nil {
		fmt.Fprintln(os.Stderr, "rifas:", err)
		os.Exit(1)
	}
}

func run(configPath string, nodeID int64) error {
	// .env 不存在时忽略
	_ = godotenv.Load()

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return err
	}

	log, err := logger.New(cfg.Log)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	if err := idgen.Init(nodeID); err != nil {
		return err
	}

	db, err := database.InitMySQL(&cfg.MySQL, log)
	if err != nil {
		return err
	}

	// Redis 不可用时票板退回进程内缓存
	var board cache.Board
	redisClient, err := cache.InitRedis(&cfg.Redis)
	if err != nil {
		log.Warn("redis unavailable, using in-process board cache", zap.Error(err))
		board = cache.NewMemoryBoard()
	} else {
		defer func() { _ = redisClient.Close() }()
		board = cache.NewRedisBoard(redisClient, time.Duration(cfg.Redis.BoardTTLSeconds)*time.Second)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	deps := service.Deps{
		DB:      db,
		Config:  cfg,
		Clock:   clock.Real(),
		Board:   board,
		Metrics: metrics.New(registry),
		Logger:  log,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 后台任务
	sweeper := job.NewReservationSweeper(service.NewReservationService(deps), log)
	sweeper.Start(ctx, cfg.Business.SweepInterval())
	defer sweeper.Stop()

	if cfg.Kafka.Enabled {
		producer, err := mq.InitKafka(&cfg.Kafka)
		if err != nil {
			return fmt.Errorf("init kafka: %w", err)
		}
		defer func() { _ = producer.Close() }()

		outboxSender := job.NewOutboxSender(db, cfg, producer, log)
		go outboxSender.Start(ctx)
		defer outboxSender.Stop()
	} else {
		log.Info("kafka disabled, outbox messages stay pending")
	}

	gin.SetMode(gin.ReleaseMode)
	router := handler.SetupRouter(handler.NewHandler(deps), log, registry)

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info("http server listening", zap.Int("port", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-quit:
		log.Info("shutting down", zap.String("signal", sig.String()))
	case err := <-serverErr:
		return fmt.Errorf("http server: %w", err)
	}

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("http server shutdown failed", zap.Error(err))
	}

	log.Info("server stopped")
	return nil
}
