package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/stayloop/booking-engine/internal/model"
)

// SweepResult summarizes one sweep run. Skipped items (guard already lost to
// a user-driven transition) count as processed but neither succeeded nor failed.
type SweepResult struct {
	Processed int
	Succeeded int
	Failed    int
}

// SweepService owns the two time-driven transitions: pending -> expired and
// confirmed -> completed. No other code path performs them. Both sweeps are
// pure functions of the injected clock plus stored state, idempotent, and
// safe to run concurrently with user-driven transitions because every item
// goes through a guarded status UPDATE.
type SweepService struct {
	bookings BookingStore
	events   EventPublisher
	clock    model.Clock
	logger   *zap.Logger
}

func NewSweepService(bookings BookingStore, events EventPublisher, clock model.Clock, logger *zap.Logger) *SweepService {
	return &SweepService{
		bookings: bookings,
		events:   events,
		clock:    clock,
		logger:   logger,
	}
}

// ExpireOverdueRequests transitions every pending booking past its TTL to
// expired and releases its availability block. One item failing never aborts
// the batch.
func (s *SweepService) ExpireOverdueRequests(ctx context.Context) (SweepResult, error) {
	now := s.clock.Now()

	due, err := s.bookings.ListExpiredPending(ctx, now)
	if err != nil {
		return SweepResult{}, fmt.Errorf("list overdue requests: %w", err)
	}

	var result SweepResult
	for _, booking := range due {
		result.Processed++

		ok, err := s.bookings.Expire(ctx, booking.ID, now)
		if err != nil {
			result.Failed++
			s.logger.Error("expire booking failed",
				zap.Int64("booking_id", booking.ID),
				zap.Error(err),
			)
			continue
		}
		if !ok {
			// Confirmed, rejected or cancelled since we selected it.
			continue
		}

		result.Succeeded++
		booking.Status = model.BookingStatusExpired
		s.events.BookingEvent("booking.expired", booking)
	}

	s.logger.Info("expiry sweep finished",
		zap.Int("processed", result.Processed),
		zap.Int("succeeded", result.Succeeded),
		zap.Int("failed", result.Failed),
	)

	return result, nil
}

// CompletePastStays transitions every confirmed booking whose check-out date
// is before today to completed. The availability block stays as history.
func (s *SweepService) CompletePastStays(ctx context.Context) (SweepResult, error) {
	now := s.clock.Now()
	today := truncateToDay(now)

	due, err := s.bookings.ListPastDueConfirmed(ctx, today)
	if err != nil {
		return SweepResult{}, fmt.Errorf("list past-due stays: %w", err)
	}

	var result SweepResult
	for _, booking := range due {
		result.Processed++

		ok, err := s.bookings.Complete(ctx, booking.ID, today, now)
		if err != nil {
			result.Failed++
			s.logger.Error("complete booking failed",
				zap.Int64("booking_id", booking.ID),
				zap.Error(err),
			)
			continue
		}
		if !ok {
			continue
		}

		result.Succeeded++
		booking.Status = model.BookingStatusCompleted
		s.events.BookingEvent("booking.completed", booking)
	}

	s.logger.Info("completion sweep finished",
		zap.Int("processed", result.Processed),
		zap.Int("succeeded", result.Succeeded),
		zap.Int("failed", result.Failed),
	)

	return result, nil
}
