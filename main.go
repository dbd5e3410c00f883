package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/example/facetone/internal/auth"
	"github.com/example/facetone/internal/bootstrap"
	"github.com/example/facetone/internal/config"
	"github.com/example/facetone/internal/detector"
	"github.com/example/facetone/internal/handlers"
	"github.com/example/facetone/internal/logging"
	"github.com/example/facetone/internal/repository"
	"github.com/example/facetone/internal/usecase"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger, err := logging.NewLogger(logging.Options{Level: cfg.LogLevel, File: cfg.LogFile})
	if err != nil {
		panic(err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	db := initDatabase(ctx, cfg.DatabaseDSN, logger)
	repo := repository.NewColorRepository(db, logger)
	if err := repo.AutoMigrate(ctx); err != nil {
		logger.Fatal("auto migrate failed", zap.Error(err))
	}

	redisCtx, redisCancel := context.WithTimeout(ctx, 5*time.Second)
	defer redisCancel()
	redisClient := initRedis(redisCtx, cfg.RedisAddr, logger)

	pipeline, err := bootstrap.Build(ctx, pipelineSettings(cfg), logger)
	if err != nil {
		logger.Fatal("failed to build analysis pipeline", zap.Error(err))
	}
	defer pipeline.Close()

	cache := usecase.NewRedisCache(redisClient, "facetone")
	uc := usecase.NewColorUseCase(repo, cache, pipeline.Analyzer, cfg.CacheTTL, logger)

	r := gin.Default()
	r.MaxMultipartMemory = handlers.MaxUploadSize

	if cfg.JWTSecret == "" {
		logger.Warn("JWT_SECRET not set, requests are attributed to the anonymous user")
	}
	var uploadMiddleware []gin.HandlerFunc
	if cfg.RateLimit > 0 {
		uploadMiddleware = append(uploadMiddleware, handlers.RateLimit(cfg.RateLimit, cfg.RateBurst))
	}
	handlers.RegisterRoutes(r, uc, auth.Middleware(cfg.JWTSecret, cfg.JWTAudience), logger, uploadMiddleware...)

	server := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	logger.Info("facetone API listening", zap.String("addr", cfg.HTTPAddr))
	if err := serveHTTPServer(server, cfg.ShutdownTimeout, logger); err != nil {
		logger.Fatal("server failed", zap.Error(err))
	}
}

func pipelineSettings(cfg config.Config) bootstrap.Settings {
	tuning := detector.DefaultTuning()
	tuning.MinSizePct = cfg.FaceMinSizePct
	tuning.MinQuality = float32(cfg.FaceMinQuality)
	puplocModel := cfg.PuplocModel
	if cfg.Landmarks == config.LandmarksTemplate {
		puplocModel = ""
	}
	return bootstrap.Settings{
		FacefinderModel: cfg.FacefinderModel,
		Tuning:          tuning,
		LandmarkAddr:    cfg.LandmarkAddr,
		PuplocModel:     puplocModel,
		LipCascadeDir:   cfg.LipCascadeDir,
		Serialize:       cfg.DetectorSerialize,
		ColorStrategy:   cfg.ColorStrategy,
		DebugDir:        cfg.DebugDir,
		DebugMasks:      cfg.DebugMasks,
	}
}

func initDatabase(ctx context.Context, dsn string, zapLogger *zap.Logger) *gorm.DB {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Warn)})
	if err != nil {
		zapLogger.Fatal("failed to connect to database", zap.Error(err))
	}

	sqlDB, err := db.DB()
	if err != nil {
		zapLogger.Fatal("failed to access db handle", zap.Error(err))
	}
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetMaxOpenConns(10)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := sqlDB.PingContext(ctx); err != nil {
		zapLogger.Fatal("database ping failed", zap.Error(err))
	}

	return db
}

func initRedis(ctx context.Context, addr string, zapLogger *zap.Logger) *redis.Client {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		zapLogger.Fatal("redis connection failed", zap.Error(err))
	}
	return client
}

func serveHTTPServer(server *http.Server, shutdownTimeout time.Duration, logger *zap.Logger) error {
	return serveHTTPServerWithOptions(server, shutdownTimeout, logger, nil, nil)
}

func serveHTTPServerWithOptions(server *http.Server, shutdownTimeout time.Duration, logger *zap.Logger, listener net.Listener, signalCh <-chan os.Signal) error {
	errCh := make(chan error, 1)
	go func() {
		var err error
		if listener != nil {
			err = server.Serve(listener)
		} else {
			err = server.ListenAndServe()
		}
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		errCh <- err
	}()

	var (
		sigCh       <-chan os.Signal
		stopSignals func()
	)

	if signalCh != nil {
		sigCh = signalCh
		stopSignals = func() {}
	} else {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, os.Interrupt, syscall.SIGTERM)
		sigCh = ch
		stopSignals = func() {
			signal.Stop(ch)
		}
	}
	defer stopSignals()

	select {
	case err := <-errCh:
		return err
	case sig, ok := <-sigCh:
		if !ok {
			return <-errCh
		}
		logger.Info("received shutdown signal", zap.String("signal", sig.String()))
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return <-errCh
	}
}
