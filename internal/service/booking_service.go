package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"

	"github.com/stayloop/booking-engine/internal/model"
	"github.com/stayloop/booking-engine/internal/repository/base"
)

const (
	createRetryAttempts = 3
	createRetryBackoff  = 50 * time.Millisecond
)

type BookingService struct {
	bookings   BookingStore
	ledger     LedgerStore
	properties PropertyService
	events     EventPublisher
	clock      model.Clock
	requestTTL time.Duration
	logger     *zap.Logger
}

func NewBookingService(
	bookings BookingStore,
	ledger LedgerStore,
	properties PropertyService,
	events EventPublisher,
	clock model.Clock,
	requestTTL time.Duration,
	logger *zap.Logger,
) *BookingService {
	return &BookingService{
		bookings:   bookings,
		ledger:     ledger,
		properties: properties,
		events:     events,
		clock:      clock,
		requestTTL: requestTTL,
		logger:     logger,
	}
}

type CreateBookingInput struct {
	PropertyID      int64
	RenterID        int64
	CheckInDate     time.Time
	CheckOutDate    time.Time
	NumberOfGuests  int
	ServiceFee      float64
	DiscountAmount  float64
	SpecialRequests string
}

// NewBookingReference builds the externally shown reference, e.g. BK-3F2A81C4D0E9.
func NewBookingReference() string {
	raw := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))
	return "BK-" + raw[:12]
}

// CreateBooking atomically decides "may this stay be booked" and persists the
// pending booking together with its availability block. Two concurrent
// requests for overlapping dates yield exactly one pending booking; the loser
// gets ErrConflict and nothing is persisted for it.
func (s *BookingService) CreateBooking(ctx context.Context, in CreateBookingInput) (*model.Booking, error) {
	now := s.clock.Now()
	today := truncateToDay(now)

	if !in.CheckOutDate.After(in.CheckInDate) {
		return nil, fmt.Errorf("%w: check-out must be after check-in", model.ErrValidationFailed)
	}
	if !in.CheckInDate.After(today) {
		return nil, fmt.Errorf("%w: check-in must be in the future", model.ErrValidationFailed)
	}
	if in.NumberOfGuests < 1 {
		return nil, fmt.Errorf("%w: at least one guest required", model.ErrValidationFailed)
	}
	if in.ServiceFee < 0 || in.DiscountAmount < 0 {
		return nil, fmt.Errorf("%w: fees must not be negative", model.ErrValidationFailed)
	}

	property, err := s.properties.GetProperty(ctx, in.PropertyID)
	if err != nil {
		return nil, fmt.Errorf("get property: %w", err)
	}
	if property == nil {
		return nil, fmt.Errorf("%w: property %d", model.ErrNotFound, in.PropertyID)
	}
	if property.OwnerID == in.RenterID {
		return nil, fmt.Errorf("%w: cannot book your own property", model.ErrValidationFailed)
	}
	if property.MaxGuests > 0 && in.NumberOfGuests > property.MaxGuests {
		return nil, fmt.Errorf("%w: property sleeps at most %d guests", model.ErrValidationFailed, property.MaxGuests)
	}

	nights := model.Nights(in.CheckInDate, in.CheckOutDate)
	subtotal := property.PricePerNight * float64(nights)
	total := subtotal + property.CleaningFee + in.ServiceFee - in.DiscountAmount
	if total < 0 {
		return nil, fmt.Errorf("%w: discount exceeds booking total", model.ErrValidationFailed)
	}

	// Fast pre-check for a friendly error. The exclusion constraint inside
	// CreateWithBlock remains the authority under concurrency.
	conflict, err := s.ledger.HasConflict(ctx, in.PropertyID, in.CheckInDate, in.CheckOutDate)
	if err != nil {
		return nil, fmt.Errorf("check availability: %w", err)
	}
	if conflict {
		return nil, fmt.Errorf("%w: dates overlap an existing block", model.ErrConflict)
	}

	booking := &model.Booking{
		BookingReference: NewBookingReference(),
		PropertyID:       in.PropertyID,
		RenterID:         in.RenterID,
		OwnerID:          property.OwnerID,
		CheckInDate:      in.CheckInDate,
		CheckOutDate:     in.CheckOutDate,
		NumberOfNights:   nights,
		NumberOfGuests:   in.NumberOfGuests,
		PricePerNight:    property.PricePerNight,
		Subtotal:         subtotal,
		CleaningFee:      property.CleaningFee,
		ServiceFee:       in.ServiceFee,
		DiscountAmount:   in.DiscountAmount,
		SecurityDeposit:  property.SecurityDeposit,
		TotalPrice:       total,
		Status:           model.BookingStatusPending,
		PaymentStatus:    model.PaymentStatusUnpaid,
		RequestedAt:      now,
		ExpiresAt:        now.Add(s.requestTTL),
		SpecialRequests:  in.SpecialRequests,
	}

	backoff := retry.WithMaxRetries(createRetryAttempts, retry.NewConstant(createRetryBackoff))
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		if err := s.bookings.CreateWithBlock(ctx, booking); err != nil {
			if base.IsRetryable(err) {
				return retry.RetryableError(err)
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("booking created",
		zap.Int64("booking_id", booking.ID),
		zap.String("reference", booking.BookingReference),
		zap.Int64("property_id", booking.PropertyID),
		zap.Int64("renter_id", booking.RenterID),
		zap.Time("check_in", booking.CheckInDate),
		zap.Time("check_out", booking.CheckOutDate),
	)
	s.events.BookingEvent("booking.created", booking)

	return booking, nil
}

// ConfirmBooking moves a pending booking to confirmed. The TTL guard runs
// both here and inside the store's guarded UPDATE, so a confirm racing the
// expiry sweep can never land after the sweeper wins.
func (s *BookingService) ConfirmBooking(ctx context.Context, actor model.Actor, bookingID int64, ownerResponse string) (*model.Booking, error) {
	booking, err := s.bookings.GetByID(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if booking == nil {
		return nil, fmt.Errorf("%w: booking %d", model.ErrNotFound, bookingID)
	}
	if !actor.Admin && actor.UserID != booking.OwnerID {
		return nil, fmt.Errorf("%w: only the property owner may confirm", model.ErrUnauthorized)
	}
	if !booking.CanTransitionTo(model.BookingStatusConfirmed) {
		return nil, fmt.Errorf("%w: cannot confirm a %s booking", model.ErrConflict, booking.Status)
	}

	now := s.clock.Now()
	if !now.Before(booking.ExpiresAt) {
		return nil, fmt.Errorf("%w: request expired at %s", model.ErrExpired, booking.ExpiresAt.Format(time.RFC3339))
	}

	ok, err := s.bookings.Confirm(ctx, bookingID, ownerResponse, now)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: booking changed concurrently", model.ErrConflict)
	}

	booking, err = s.bookings.GetByID(ctx, bookingID)
	if err != nil {
		return nil, err
	}

	s.logger.Info("booking confirmed",
		zap.Int64("booking_id", bookingID),
		zap.Int64("owner_id", actor.UserID),
	)
	s.events.BookingEvent("booking.confirmed", booking)

	return booking, nil
}

// RejectBooking moves a pending booking to rejected and releases its block.
func (s *BookingService) RejectBooking(ctx context.Context, actor model.Actor, bookingID int64, reason, ownerResponse string) (*model.Booking, error) {
	if strings.TrimSpace(reason) == "" {
		return nil, fmt.Errorf("%w: rejection reason is required", model.ErrValidationFailed)
	}

	booking, err := s.bookings.GetByID(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if booking == nil {
		return nil, fmt.Errorf("%w: booking %d", model.ErrNotFound, bookingID)
	}
	if !actor.Admin && actor.UserID != booking.OwnerID {
		return nil, fmt.Errorf("%w: only the property owner may reject", model.ErrUnauthorized)
	}
	if !booking.CanTransitionTo(model.BookingStatusRejected) {
		return nil, fmt.Errorf("%w: cannot reject a %s booking", model.ErrConflict, booking.Status)
	}

	now := s.clock.Now()
	if !now.Before(booking.ExpiresAt) {
		return nil, fmt.Errorf("%w: request expired at %s", model.ErrExpired, booking.ExpiresAt.Format(time.RFC3339))
	}

	ok, err := s.bookings.Reject(ctx, bookingID, reason, ownerResponse, now)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: booking changed concurrently", model.ErrConflict)
	}

	booking, err = s.bookings.GetByID(ctx, bookingID)
	if err != nil {
		return nil, err
	}

	s.logger.Info("booking rejected",
		zap.Int64("booking_id", bookingID),
		zap.Int64("owner_id", actor.UserID),
	)
	s.events.BookingEvent("booking.rejected", booking)

	return booking, nil
}

type CancelBookingInput struct {
	Reason          string
	CancellationFee float64
}

// CancelBooking cancels a pending or confirmed booking and releases its
// block. A confirmed, paid cancellation records the intended refund; the
// money itself moves through the settlement reconciler.
func (s *BookingService) CancelBooking(ctx context.Context, actor model.Actor, bookingID int64, in CancelBookingInput) (*model.Booking, error) {
	if strings.TrimSpace(in.Reason) == "" {
		return nil, fmt.Errorf("%w: cancellation reason is required", model.ErrValidationFailed)
	}
	if in.CancellationFee < 0 {
		return nil, fmt.Errorf("%w: cancellation fee must not be negative", model.ErrValidationFailed)
	}

	booking, err := s.bookings.GetByID(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if booking == nil {
		return nil, fmt.Errorf("%w: booking %d", model.ErrNotFound, bookingID)
	}
	if !actor.Admin && actor.UserID != booking.RenterID && actor.UserID != booking.OwnerID {
		return nil, fmt.Errorf("%w: only the renter or the owner may cancel", model.ErrUnauthorized)
	}
	if !booking.CanTransitionTo(model.BookingStatusCancelled) {
		return nil, fmt.Errorf("%w: cannot cancel a %s booking", model.ErrConflict, booking.Status)
	}

	fee := 0.0
	refund := 0.0
	if booking.Status == model.BookingStatusConfirmed {
		fee = in.CancellationFee
		if fee > booking.TotalPrice {
			return nil, fmt.Errorf("%w: cancellation fee exceeds booking total", model.ErrValidationFailed)
		}
		if booking.PaymentStatus == model.PaymentStatusPaid {
			refund = booking.TotalPrice - fee
		}
	}

	now := s.clock.Now()
	ok, err := s.bookings.Cancel(ctx, bookingID, booking.Status, in.Reason, fee, refund, now)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: booking changed concurrently", model.ErrConflict)
	}

	booking, err = s.bookings.GetByID(ctx, bookingID)
	if err != nil {
		return nil, err
	}

	s.logger.Info("booking cancelled",
		zap.Int64("booking_id", bookingID),
		zap.Int64("user_id", actor.UserID),
		zap.Float64("cancellation_fee", fee),
		zap.Float64("refund_amount", refund),
	)
	s.events.BookingEvent("booking.cancelled", booking)

	return booking, nil
}

func (s *BookingService) GetBooking(ctx context.Context, actor model.Actor, bookingID int64) (*model.Booking, error) {
	booking, err := s.bookings.GetByID(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if booking == nil {
		return nil, fmt.Errorf("%w: booking %d", model.ErrNotFound, bookingID)
	}
	if err := s.authorizeRead(actor, booking); err != nil {
		return nil, err
	}
	return booking, nil
}

func (s *BookingService) GetBookingByReference(ctx context.Context, actor model.Actor, reference string) (*model.Booking, error) {
	booking, err := s.bookings.GetByReference(ctx, reference)
	if err != nil {
		return nil, err
	}
	if booking == nil {
		return nil, fmt.Errorf("%w: booking %s", model.ErrNotFound, reference)
	}
	if err := s.authorizeRead(actor, booking); err != nil {
		return nil, err
	}
	return booking, nil
}

func (s *BookingService) ListRenterBookings(ctx context.Context, actor model.Actor, renterID int64) ([]*model.Booking, error) {
	if !actor.Admin && actor.UserID != renterID {
		return nil, fmt.Errorf("%w: cannot list another renter's bookings", model.ErrUnauthorized)
	}
	return s.bookings.ListByRenter(ctx, renterID)
}

func (s *BookingService) ListOwnerBookings(ctx context.Context, actor model.Actor, ownerID int64) ([]*model.Booking, error) {
	if !actor.Admin && actor.UserID != ownerID {
		return nil, fmt.Errorf("%w: cannot list another owner's bookings", model.ErrUnauthorized)
	}
	return s.bookings.ListByOwner(ctx, ownerID)
}

func (s *BookingService) authorizeRead(actor model.Actor, booking *model.Booking) error {
	if actor.Admin || actor.UserID == booking.RenterID || actor.UserID == booking.OwnerID {
		return nil
	}
	return fmt.Errorf("%w: not a party to this booking", model.ErrUnauthorized)
}

func truncateToDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
