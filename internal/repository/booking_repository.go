package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stayloop/booking-engine/internal/model"
	"github.com/stayloop/booking-engine/internal/repository/base"
)

const bookingColumns = `
	id, booking_reference, property_id, renter_id, owner_id,
	check_in_date, check_out_date, number_of_nights, number_of_guests,
	price_per_night, subtotal, cleaning_fee, service_fee, discount_amount,
	security_deposit, total_price, status, payment_status,
	requested_at, expires_at, confirmed_at, rejected_at, cancelled_at, completed_at,
	special_requests, owner_response, rejection_reason, cancellation_reason,
	cancellation_fee, refund_amount, created_at, updated_at`

type BookingRepository struct {
	pool *pgxpool.Pool
}

func NewBookingRepository(pool *pgxpool.Pool) *BookingRepository {
	return &BookingRepository{pool: pool}
}

func scanBooking(row pgx.Row) (*model.Booking, error) {
	var b model.Booking
	err := row.Scan(
		&b.ID, &b.BookingReference, &b.PropertyID, &b.RenterID, &b.OwnerID,
		&b.CheckInDate, &b.CheckOutDate, &b.NumberOfNights, &b.NumberOfGuests,
		&b.PricePerNight, &b.Subtotal, &b.CleaningFee, &b.ServiceFee, &b.DiscountAmount,
		&b.SecurityDeposit, &b.TotalPrice, &b.Status, &b.PaymentStatus,
		&b.RequestedAt, &b.ExpiresAt, &b.ConfirmedAt, &b.RejectedAt, &b.CancelledAt, &b.CompletedAt,
		&b.SpecialRequests, &b.OwnerResponse, &b.RejectionReason, &b.CancellationReason,
		&b.CancellationFee, &b.RefundAmount, &b.CreatedAt, &b.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func collectBookings(rows pgx.Rows) ([]*model.Booking, error) {
	defer rows.Close()
	var bookings []*model.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, fmt.Errorf("scan booking: %w", err)
		}
		bookings = append(bookings, b)
	}
	return bookings, rows.Err()
}

// CreateWithBlock persists a pending booking and its availability block as
// one transaction. The exclusion constraint on availability_blocks is the
// authority on overlap: if a concurrent writer wins the range, commit fails
// with 23P01 and the caller gets model.ErrConflict with nothing persisted.
func (r *BookingRepository) CreateWithBlock(ctx context.Context, b *model.Booking) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
		INSERT INTO bookings (
			booking_reference, property_id, renter_id, owner_id,
			check_in_date, check_out_date, number_of_nights, number_of_guests,
			price_per_night, subtotal, cleaning_fee, service_fee, discount_amount,
			security_deposit, total_price, status, payment_status,
			requested_at, expires_at, special_requests
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)
		RETURNING id, created_at, updated_at
	`

	err = tx.QueryRow(
		ctx, query,
		b.BookingReference, b.PropertyID, b.RenterID, b.OwnerID,
		b.CheckInDate, b.CheckOutDate, b.NumberOfNights, b.NumberOfGuests,
		b.PricePerNight, b.Subtotal, b.CleaningFee, b.ServiceFee, b.DiscountAmount,
		b.SecurityDeposit, b.TotalPrice, b.Status, b.PaymentStatus,
		b.RequestedAt, b.ExpiresAt, b.SpecialRequests,
	).Scan(&b.ID, &b.CreatedAt, &b.UpdatedAt)

	if err != nil {
		return fmt.Errorf("create booking: %w", err)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO availability_blocks (property_id, unavailable_from, unavailable_to, reason, booking_id)
		VALUES ($1, $2, $3, $4, $5)
	`, b.PropertyID, b.CheckInDate, b.CheckOutDate, model.BlockReasonBooked, b.ID)

	if err != nil {
		if base.IsExclusionViolation(err) {
			return fmt.Errorf("%w: dates no longer available", model.ErrConflict)
		}
		return fmt.Errorf("create availability block: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		if base.IsExclusionViolation(err) {
			return fmt.Errorf("%w: dates no longer available", model.ErrConflict)
		}
		return fmt.Errorf("commit transaction: %w", err)
	}

	return nil
}

func (r *BookingRepository) GetByID(ctx context.Context, id int64) (*model.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE id = $1`

	b, err := scanBooking(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if base.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get booking by id: %w", err)
	}
	return b, nil
}

func (r *BookingRepository) GetByReference(ctx context.Context, reference string) (*model.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE booking_reference = $1`

	b, err := scanBooking(r.pool.QueryRow(ctx, query, reference))
	if err != nil {
		if base.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get booking by reference: %w", err)
	}
	return b, nil
}

func (r *BookingRepository) ListByRenter(ctx context.Context, renterID int64) ([]*model.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE renter_id = $1 ORDER BY requested_at DESC`

	rows, err := r.pool.Query(ctx, query, renterID)
	if err != nil {
		return nil, fmt.Errorf("list bookings by renter: %w", err)
	}
	return collectBookings(rows)
}

func (r *BookingRepository) ListByOwner(ctx context.Context, ownerID int64) ([]*model.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE owner_id = $1 ORDER BY requested_at DESC`

	rows, err := r.pool.Query(ctx, query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list bookings by owner: %w", err)
	}
	return collectBookings(rows)
}

func (r *BookingRepository) ListByProperty(ctx context.Context, propertyID int64) ([]*model.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE property_id = $1 ORDER BY check_in_date DESC`

	rows, err := r.pool.Query(ctx, query, propertyID)
	if err != nil {
		return nil, fmt.Errorf("list bookings by property: %w", err)
	}
	return collectBookings(rows)
}

// Confirm moves pending -> confirmed. The guard checks status and TTL inside
// the UPDATE itself, so the confirm action and the expiry sweep can race and
// exactly one of them wins. Returns false when the guard lost.
func (r *BookingRepository) Confirm(ctx context.Context, id int64, ownerResponse string, now time.Time) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE bookings
		SET status = $1, confirmed_at = $2, owner_response = $3, updated_at = $2
		WHERE id = $4 AND status = $5 AND expires_at > $2
	`, model.BookingStatusConfirmed, now, ownerResponse, id, model.BookingStatusPending)
	if err != nil {
		return false, fmt.Errorf("confirm booking: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// Reject moves pending -> rejected and releases the availability block in the
// same transaction.
func (r *BookingRepository) Reject(ctx context.Context, id int64, reason, ownerResponse string, now time.Time) (bool, error) {
	return r.transitionAndRelease(ctx, `
		UPDATE bookings
		SET status = $1, rejected_at = $2, rejection_reason = $3, owner_response = $4, updated_at = $2
		WHERE id = $5 AND status = $6
	`, []interface{}{model.BookingStatusRejected, now, reason, ownerResponse, id, model.BookingStatusPending}, id)
}

// Cancel moves pending/confirmed -> cancelled and releases the block. The
// expected current status is part of the guard so a stale caller loses cleanly.
func (r *BookingRepository) Cancel(ctx context.Context, id int64, from model.BookingStatus, reason string, fee, refund float64, now time.Time) (bool, error) {
	return r.transitionAndRelease(ctx, `
		UPDATE bookings
		SET status = $1, cancelled_at = $2, cancellation_reason = $3,
		    cancellation_fee = $4, refund_amount = $5, updated_at = $2
		WHERE id = $6 AND status = $7
	`, []interface{}{model.BookingStatusCancelled, now, reason, fee, refund, id, from}, id)
}

// Expire moves pending -> expired and releases the block. Only the expiry
// sweep calls this; the TTL predicate keeps it a no-op for live requests.
func (r *BookingRepository) Expire(ctx context.Context, id int64, now time.Time) (bool, error) {
	return r.transitionAndRelease(ctx, `
		UPDATE bookings
		SET status = $1, updated_at = $2
		WHERE id = $3 AND status = $4 AND expires_at <= $2
	`, []interface{}{model.BookingStatusExpired, now, id, model.BookingStatusPending}, id)
}

// transitionAndRelease runs a guarded status UPDATE and, if the guard won,
// deletes the booking's availability block in the same transaction.
func (r *BookingRepository) transitionAndRelease(ctx context.Context, query string, args []interface{}, id int64) (bool, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("update booking status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return false, nil
	}

	_, err = tx.Exec(ctx, `DELETE FROM availability_blocks WHERE booking_id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("release availability block: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("commit transaction: %w", err)
	}
	return true, nil
}

// Complete moves confirmed -> completed. The block is retained as history.
// Only the completion sweep calls this.
func (r *BookingRepository) Complete(ctx context.Context, id int64, today, now time.Time) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE bookings
		SET status = $1, completed_at = $2, updated_at = $2
		WHERE id = $3 AND status = $4 AND check_out_date < $5
	`, model.BookingStatusCompleted, now, id, model.BookingStatusConfirmed, today)
	if err != nil {
		return false, fmt.Errorf("complete booking: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// ListExpiredPending returns pending bookings whose request TTL has elapsed.
func (r *BookingRepository) ListExpiredPending(ctx context.Context, now time.Time) ([]*model.Booking, error) {
	query := `SELECT ` + bookingColumns + `
		FROM bookings
		WHERE status = $1 AND expires_at <= $2
		ORDER BY expires_at`

	rows, err := r.pool.Query(ctx, query, model.BookingStatusPending, now)
	if err != nil {
		return nil, fmt.Errorf("list expired pending bookings: %w", err)
	}
	return collectBookings(rows)
}

// ListPastDueConfirmed returns confirmed bookings whose check-out is before today.
func (r *BookingRepository) ListPastDueConfirmed(ctx context.Context, today time.Time) ([]*model.Booking, error) {
	query := `SELECT ` + bookingColumns + `
		FROM bookings
		WHERE status = $1 AND check_out_date < $2
		ORDER BY check_out_date`

	rows, err := r.pool.Query(ctx, query, model.BookingStatusConfirmed, today)
	if err != nil {
		return nil, fmt.Errorf("list past-due confirmed bookings: %w", err)
	}
	return collectBookings(rows)
}
