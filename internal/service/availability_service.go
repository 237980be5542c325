package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/stayloop/booking-engine/internal/model"
)

type AvailabilityService struct {
	ledger     LedgerStore
	properties PropertyService
	logger     *zap.Logger
}

func NewAvailabilityService(ledger LedgerStore, properties PropertyService, logger *zap.Logger) *AvailabilityService {
	return &AvailabilityService{
		ledger:     ledger,
		properties: properties,
		logger:     logger,
	}
}

// HasConflict answers the overlap query for a candidate stay.
func (s *AvailabilityService) HasConflict(ctx context.Context, propertyID int64, checkIn, checkOut time.Time) (bool, error) {
	if !checkOut.After(checkIn) {
		return false, fmt.Errorf("%w: check-out must be after check-in", model.ErrValidationFailed)
	}
	return s.ledger.HasConflict(ctx, propertyID, checkIn, checkOut)
}

// BlockedRanges lists every block intersecting the window [from, to).
func (s *AvailabilityService) BlockedRanges(ctx context.Context, propertyID int64, from, to time.Time) ([]*model.AvailabilityBlock, error) {
	if !to.After(from) {
		return nil, fmt.Errorf("%w: window end must be after window start", model.ErrValidationFailed)
	}
	return s.ledger.ListBlocked(ctx, propertyID, from, to)
}

type CreateBlockInput struct {
	PropertyID      int64
	UnavailableFrom time.Time
	UnavailableTo   time.Time
	Reason          model.BlockReason
}

// CreateOwnerBlock lets a property owner take a date range off the market.
// The "booked" reason is reserved for the booking transaction.
func (s *AvailabilityService) CreateOwnerBlock(ctx context.Context, actor model.Actor, in CreateBlockInput) (*model.AvailabilityBlock, error) {
	if !in.UnavailableTo.After(in.UnavailableFrom) {
		return nil, fmt.Errorf("%w: block end must be after block start", model.ErrValidationFailed)
	}
	switch in.Reason {
	case model.BlockReasonOwnerBlocked, model.BlockReasonMaintenance, model.BlockReasonSeasonalClosure:
	case model.BlockReasonBooked:
		return nil, fmt.Errorf("%w: booked blocks are created by bookings only", model.ErrValidationFailed)
	default:
		return nil, fmt.Errorf("%w: unknown block reason %q", model.ErrValidationFailed, in.Reason)
	}

	if err := s.authorizeOwner(ctx, actor, in.PropertyID); err != nil {
		return nil, err
	}

	block := &model.AvailabilityBlock{
		PropertyID:      in.PropertyID,
		UnavailableFrom: in.UnavailableFrom,
		UnavailableTo:   in.UnavailableTo,
		Reason:          in.Reason,
	}
	if err := s.ledger.CreateOwnerBlock(ctx, block); err != nil {
		return nil, err
	}

	s.logger.Info("owner block created",
		zap.Int64("block_id", block.ID),
		zap.Int64("property_id", block.PropertyID),
		zap.String("reason", string(block.Reason)),
	)

	return block, nil
}

// RemoveOwnerBlock deletes an owner-created block. Booking-owned blocks are
// released only by their booking's transition.
func (s *AvailabilityService) RemoveOwnerBlock(ctx context.Context, actor model.Actor, blockID int64) error {
	block, err := s.ledger.GetBlock(ctx, blockID)
	if err != nil {
		return err
	}
	if block == nil {
		return fmt.Errorf("%w: block %d", model.ErrNotFound, blockID)
	}
	if block.Reason == model.BlockReasonBooked {
		return fmt.Errorf("%w: block belongs to a booking", model.ErrConflict)
	}

	if err := s.authorizeOwner(ctx, actor, block.PropertyID); err != nil {
		return err
	}

	ok, err := s.ledger.DeleteOwnerBlock(ctx, blockID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: block %d", model.ErrNotFound, blockID)
	}

	s.logger.Info("owner block removed",
		zap.Int64("block_id", blockID),
		zap.Int64("property_id", block.PropertyID),
	)

	return nil
}

func (s *AvailabilityService) authorizeOwner(ctx context.Context, actor model.Actor, propertyID int64) error {
	if actor.Admin {
		return nil
	}
	property, err := s.properties.GetProperty(ctx, propertyID)
	if err != nil {
		return fmt.Errorf("get property: %w", err)
	}
	if property == nil {
		return fmt.Errorf("%w: property %d", model.ErrNotFound, propertyID)
	}
	if property.OwnerID != actor.UserID {
		return fmt.Errorf("%w: not the property owner", model.ErrUnauthorized)
	}
	return nil
}
