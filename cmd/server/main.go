package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/stayloop/booking-engine/internal/app"
	"github.com/stayloop/booking-engine/internal/client"
	"github.com/stayloop/booking-engine/internal/config"
	"github.com/stayloop/booking-engine/internal/events"
	"github.com/stayloop/booking-engine/internal/handler"
	"github.com/stayloop/booking-engine/internal/model"
	"github.com/stayloop/booking-engine/internal/repository"
	"github.com/stayloop/booking-engine/internal/route"
	"github.com/stayloop/booking-engine/internal/service"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger := app.NewLogger(cfg.Environment)
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := pgxpool.New(ctx, cfg.DatabaseDSN)
	if err != nil {
		logger.Fatal("failed to create connection pool", zap.Error(err))
	}
	defer pool.Close()

	migrator, err := app.NewMigrator(pool, cfg.MigrationsPath, logger)
	if err != nil {
		logger.Fatal("failed to create migrator", zap.Error(err))
	}
	if err := migrator.Run(ctx); err != nil {
		logger.Fatal("failed to run migrations", zap.Error(err))
	}
	migrator.Close()

	fiberApp, sweeper, notifier := initService(cfg, pool, logger)

	go func() {
		if err := notifier.Run(ctx); err != nil {
			logger.Error("notifier stopped", zap.Error(err))
		}
	}()

	sweeper.Start(ctx)
	defer sweeper.Stop()

	go func() {
		<-ctx.Done()
		logger.Info("shutting down http server")
		if err := fiberApp.Shutdown(); err != nil {
			logger.Error("http server shutdown failed", zap.Error(err))
		}
	}()

	logger.Info("starting booking engine",
		zap.String("environment", cfg.Environment),
		zap.String("port", cfg.HTTPPort),
	)
	if err := fiberApp.Listen(":" + cfg.HTTPPort); err != nil {
		logger.Fatal("http server failed", zap.Error(err))
	}
}

func initService(cfg *config.Config, pool *pgxpool.Pool, logger *zap.Logger) (*fiber.App, *app.Sweeper, *events.Notifier) {
	clock := model.RealClock{}

	bookingRepo := repository.NewBookingRepository(pool)
	availabilityRepo := repository.NewAvailabilityRepository(pool)
	transactionRepo := repository.NewTransactionRepository(pool)

	pubSub := events.NewGoChannel(events.NewWatermillLogger(logger))
	publisher := events.NewPublisher(pubSub, clock, logger)
	notifier := events.NewNotifier(pubSub, logger)

	propertyClient := client.NewPropertyClient(cfg.PropertyServiceURL, logger)
	gateway := client.NewStubGateway(logger)

	bookingService := service.NewBookingService(
		bookingRepo, availabilityRepo, propertyClient, publisher, clock, cfg.RequestTTL, logger)
	availabilityService := service.NewAvailabilityService(availabilityRepo, propertyClient, logger)
	sweepService := service.NewSweepService(bookingRepo, publisher, clock, logger)
	settlementService := service.NewSettlementService(
		transactionRepo, bookingRepo, gateway, clock, cfg.DefaultCurrency, logger)

	sweeper := app.NewSweeper(sweepService, cfg.ExpirySweepInterval, cfg.CompletionSweepInterval, logger)

	h := &handler.Handler{
		Log:          logger,
		Validator:    validator.New(),
		Bookings:     bookingService,
		Availability: availabilityService,
		Settlement:   settlementService,
	}

	fiberApp := route.Initialize(fiber.New(), h)

	return fiberApp, sweeper, notifier
}
