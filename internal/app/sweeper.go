package app

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/stayloop/booking-engine/internal/service"
)

// Sweeper runs the two time-driven sweeps on independent timers: the expiry
// sweep for overdue pending requests and the completion sweep for past-due
// confirmed stays.
type Sweeper struct {
	sweeps             *service.SweepService
	expiryInterval     time.Duration
	completionInterval time.Duration
	logger             *zap.Logger
	stopChan           chan struct{}
}

func NewSweeper(sweeps *service.SweepService, expiryInterval, completionInterval time.Duration, logger *zap.Logger) *Sweeper {
	return &Sweeper{
		sweeps:             sweeps,
		expiryInterval:     expiryInterval,
		completionInterval: completionInterval,
		logger:             logger,
		stopChan:           make(chan struct{}),
	}
}

// Start launches both sweep loops.
func (s *Sweeper) Start(ctx context.Context) {
	s.logger.Info("starting sweeper",
		zap.Duration("expiry_interval", s.expiryInterval),
		zap.Duration("completion_interval", s.completionInterval),
	)

	go s.run(ctx, "expiry", s.expiryInterval, s.sweeps.ExpireOverdueRequests)
	go s.run(ctx, "completion", s.completionInterval, s.sweeps.CompletePastStays)
}

// Stop stops both sweep loops.
func (s *Sweeper) Stop() {
	s.logger.Info("stopping sweeper")
	close(s.stopChan)
}

func (s *Sweeper) run(ctx context.Context, name string, interval time.Duration, sweep func(context.Context) (service.SweepResult, error)) {
	// First pass right away so a restart does not delay overdue transitions
	// by a full interval.
	s.runOnce(ctx, name, sweep)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.runOnce(ctx, name, sweep)
		case <-s.stopChan:
			s.logger.Info("sweep loop stopped", zap.String("sweep", name))
			return
		case <-ctx.Done():
			s.logger.Info("sweep loop cancelled", zap.String("sweep", name))
			return
		}
	}
}

func (s *Sweeper) runOnce(ctx context.Context, name string, sweep func(context.Context) (service.SweepResult, error)) {
	if _, err := sweep(ctx); err != nil {
		s.logger.Error("sweep run failed", zap.String("sweep", name), zap.Error(err))
	}
}
