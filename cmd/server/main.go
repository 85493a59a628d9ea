package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/PeterNgeno/sangpoint-payments/config"
	"github.com/PeterNgeno/sangpoint-payments/internal/handler"
	"github.com/PeterNgeno/sangpoint-payments/internal/provider/daraja"
	"github.com/PeterNgeno/sangpoint-payments/internal/repository"
	"github.com/PeterNgeno/sangpoint-payments/internal/router"
	"github.com/PeterNgeno/sangpoint-payments/internal/usecase"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	if err := godotenv.Load(); err != nil {
		// Not fatal: production deployments inject env vars directly.
		fmt.Println("no .env file loaded:", err)
	}

	logger, err := zap.NewProduction()
	if err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}
	defer logger.Sync()

	logger.Info("starting sangpoint payments service")

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	logger.Info("configuration loaded",
		zap.String("environment", cfg.Server.Env),
		zap.String("port", cfg.Server.Port),
		zap.String("mpesa_environment", cfg.Daraja.Environment))

	dbConnStr := fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		cfg.Database.User,
		cfg.Database.Password,
		cfg.Database.Host,
		cfg.Database.Port,
		cfg.Database.DBName,
		cfg.Database.SSLMode,
	)

	dbPool, err := pgxpool.New(context.Background(), dbConnStr)
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}
	defer dbPool.Close()

	logger.Info("connected to database", zap.String("database", cfg.Database.DBName))

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Host + ":" + cfg.Redis.Port,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		// The idempotency cache fails open, so a missing Redis degrades
		// rather than blocks startup.
		logger.Warn("redis unreachable, idempotency reservations disabled", zap.Error(err))
	}
	defer rdb.Close()

	paymentStore := repository.NewPaymentStore(dbPool)
	idemCache := repository.NewIdempotencyCache(rdb, cfg.Payments.IdempotencyTTL, logger)

	authClient := daraja.NewAuthClient(cfg.Daraja, logger)
	stkClient := daraja.NewSTKClient(cfg.Daraja, logger)

	paymentUC := usecase.NewPaymentUsecase(
		paymentStore,
		idemCache,
		authClient,
		stkClient,
		cfg.Payments,
		logger,
	)
	callbackUC := usecase.NewCallbackUsecase(paymentStore, cfg.Payments, logger)

	paymentHandler := handler.NewPaymentHandler(paymentUC, logger)
	callbackHandler := handler.NewCallbackHandler(callbackUC, logger)

	r := router.SetupRoutes(paymentHandler, callbackHandler, logger)

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server starting", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("server forced to shutdown", zap.Error(err))
	}

	logger.Info("server stopped")
}
