package service

import (
	"context"
	"time"

	"github.com/stayloop/booking-engine/internal/model"
)

// BookingStore is the persistence contract for bookings. Transition methods
// return false when their status guard lost, which callers translate into a
// domain error or a sweep no-op.
type BookingStore interface {
	CreateWithBlock(ctx context.Context, b *model.Booking) error
	GetByID(ctx context.Context, id int64) (*model.Booking, error)
	GetByReference(ctx context.Context, reference string) (*model.Booking, error)
	ListByRenter(ctx context.Context, renterID int64) ([]*model.Booking, error)
	ListByOwner(ctx context.Context, ownerID int64) ([]*model.Booking, error)
	ListByProperty(ctx context.Context, propertyID int64) ([]*model.Booking, error)
	Confirm(ctx context.Context, id int64, ownerResponse string, now time.Time) (bool, error)
	Reject(ctx context.Context, id int64, reason, ownerResponse string, now time.Time) (bool, error)
	Cancel(ctx context.Context, id int64, from model.BookingStatus, reason string, fee, refund float64, now time.Time) (bool, error)
	Expire(ctx context.Context, id int64, now time.Time) (bool, error)
	Complete(ctx context.Context, id int64, today, now time.Time) (bool, error)
	ListExpiredPending(ctx context.Context, now time.Time) ([]*model.Booking, error)
	ListPastDueConfirmed(ctx context.Context, today time.Time) ([]*model.Booking, error)
}

// LedgerStore is the persistence contract for availability blocks.
type LedgerStore interface {
	HasConflict(ctx context.Context, propertyID int64, checkIn, checkOut time.Time) (bool, error)
	ListBlocked(ctx context.Context, propertyID int64, from, to time.Time) ([]*model.AvailabilityBlock, error)
	CreateOwnerBlock(ctx context.Context, block *model.AvailabilityBlock) error
	GetBlock(ctx context.Context, id int64) (*model.AvailabilityBlock, error)
	DeleteOwnerBlock(ctx context.Context, id int64) (bool, error)
}

// SettlementStore is the persistence contract for payment transactions.
// MarkCompleted guards both the transaction and the booking's payment status
// and returns false when either guard lost. CreateRefund re-verifies the
// refund cap against the net paid amount inside its own transaction.
type SettlementStore interface {
	Create(ctx context.Context, t *model.Transaction) error
	GetByReference(ctx context.Context, reference string) (*model.Transaction, error)
	Totals(ctx context.Context, bookingID int64) (paid, refunded float64, err error)
	MarkCompleted(ctx context.Context, reference, gatewayID string, platformFee, ownerPayout float64, bookingID int64, now time.Time) (bool, error)
	MarkFailed(ctx context.Context, reference, failureReason string, now time.Time) (bool, error)
	CreateRefund(ctx context.Context, t *model.Transaction, now time.Time) error
	ListByBooking(ctx context.Context, bookingID int64) ([]*model.Transaction, error)
}

// PropertyService is the external property collaborator, read at booking
// creation time only.
type PropertyService interface {
	GetProperty(ctx context.Context, propertyID int64) (*model.Property, error)
}

// PaymentGateway is the outbound payment adapter.
type PaymentGateway interface {
	CreateIntent(ctx context.Context, amount float64, currency, method string) (string, error)
}

// EventPublisher delivers fire-and-forget booking lifecycle events. A failed
// publish must never fail the mutation that produced it.
type EventPublisher interface {
	BookingEvent(event string, b *model.Booking)
}
