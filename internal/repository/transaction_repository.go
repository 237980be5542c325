package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stayloop/booking-engine/internal/model"
	"github.com/stayloop/booking-engine/internal/repository/base"
)

const transactionColumns = `
	id, transaction_reference, booking_id, transaction_type, amount, currency,
	payment_method, status, gateway_transaction_id, failure_reason,
	refund_reason, approved_by, platform_fee_amount, owner_payout_amount,
	created_at, updated_at`

type TransactionRepository struct {
	pool *pgxpool.Pool
}

func NewTransactionRepository(pool *pgxpool.Pool) *TransactionRepository {
	return &TransactionRepository{pool: pool}
}

func (r *TransactionRepository) Create(ctx context.Context, t *model.Transaction) error {
	query := `
		INSERT INTO transactions (
			transaction_reference, booking_id, transaction_type, amount, currency,
			payment_method, status, gateway_transaction_id, platform_fee_amount, owner_payout_amount
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id, created_at, updated_at
	`

	err := r.pool.QueryRow(
		ctx, query,
		t.TransactionReference, t.BookingID, t.Type, t.Amount, t.Currency,
		t.PaymentMethod, t.Status, t.GatewayTransactionID, t.PlatformFeeAmount, t.OwnerPayoutAmount,
	).Scan(&t.ID, &t.CreatedAt, &t.UpdatedAt)

	if err != nil {
		if base.IsUniqueViolation(err) {
			return fmt.Errorf("%w: transaction reference already exists", model.ErrConflict)
		}
		return fmt.Errorf("create transaction: %w", err)
	}

	return nil
}

func (r *TransactionRepository) GetByReference(ctx context.Context, reference string) (*model.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE transaction_reference = $1`

	var t model.Transaction
	err := r.pool.QueryRow(ctx, query, reference).Scan(
		&t.ID, &t.TransactionReference, &t.BookingID, &t.Type, &t.Amount, &t.Currency,
		&t.PaymentMethod, &t.Status, &t.GatewayTransactionID, &t.FailureReason,
		&t.RefundReason, &t.ApprovedBy, &t.PlatformFeeAmount, &t.OwnerPayoutAmount,
		&t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		if base.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get transaction by reference: %w", err)
	}

	return &t, nil
}

const settledTotalsQuery = `
	SELECT
		COALESCE(SUM(amount) FILTER (WHERE transaction_type = 'charge'), 0),
		COALESCE(SUM(amount) FILTER (WHERE transaction_type = 'refund'), 0)
	FROM transactions
	WHERE booking_id = $1 AND status = 'completed'`

// Totals returns the sum of completed charges and completed refunds for a
// booking. Net paid is charges minus refunds.
func (r *TransactionRepository) Totals(ctx context.Context, bookingID int64) (float64, float64, error) {
	var paid, refunded float64
	err := r.pool.QueryRow(ctx, settledTotalsQuery, bookingID).Scan(&paid, &refunded)
	if err != nil {
		return 0, 0, fmt.Errorf("sum settled transactions: %w", err)
	}
	return paid, refunded, nil
}

// MarkCompleted settles a charge and flips the owning booking to paid in one
// transaction. Both updates are guarded: a transaction that already settled is
// never updated again, and a booking that is no longer unpaid refuses the
// settlement, so two charges can never both complete against one booking.
// Returns false when either guard lost; nothing is persisted in that case.
func (r *TransactionRepository) MarkCompleted(ctx context.Context, reference, gatewayID string, platformFee, ownerPayout float64, bookingID int64, now time.Time) (bool, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		UPDATE transactions
		SET status = $1, gateway_transaction_id = $2,
		    platform_fee_amount = $3, owner_payout_amount = $4, updated_at = $5
		WHERE transaction_reference = $6 AND status IN ($7, $8)
	`, model.TransactionStatusCompleted, gatewayID, platformFee, ownerPayout, now,
		reference, model.TransactionStatusPending, model.TransactionStatusProcessing)
	if err != nil {
		return false, fmt.Errorf("mark transaction completed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return false, nil
	}

	tag, err = tx.Exec(ctx, `
		UPDATE bookings SET payment_status = $1, updated_at = $2
		WHERE id = $3 AND payment_status = $4
	`, model.PaymentStatusPaid, now, bookingID, model.PaymentStatusUnpaid)
	if err != nil {
		return false, fmt.Errorf("update booking payment status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return false, nil
	}

	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("commit transaction: %w", err)
	}
	return true, nil
}

// MarkFailed records a gateway failure. The booking's payment status is left
// untouched: a failed charge keeps the booking unpaid, it does not reject it.
func (r *TransactionRepository) MarkFailed(ctx context.Context, reference, failureReason string, now time.Time) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE transactions
		SET status = $1, failure_reason = $2, updated_at = $3
		WHERE transaction_reference = $4 AND status IN ($5, $6)
	`, model.TransactionStatusFailed, failureReason, now,
		reference, model.TransactionStatusPending, model.TransactionStatusProcessing)
	if err != nil {
		return false, fmt.Errorf("mark transaction failed: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// CreateRefund inserts a settled refund transaction and moves the booking's
// payment status and cumulative refund amount in the same database
// transaction. The booking row is locked first and the net paid amount
// recomputed under that lock, so two concurrent refunds serialize here and
// the second fails with ErrSettlementMismatch instead of overdrawing.
func (r *TransactionRepository) CreateRefund(ctx context.Context, t *model.Transaction, now time.Time) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var bookingID int64
	err = tx.QueryRow(ctx, `SELECT id FROM bookings WHERE id = $1 FOR UPDATE`, t.BookingID).Scan(&bookingID)
	if err != nil {
		if base.IsNotFound(err) {
			return fmt.Errorf("%w: booking %d", model.ErrNotFound, t.BookingID)
		}
		return fmt.Errorf("lock booking: %w", err)
	}

	var paid, refunded float64
	if err := tx.QueryRow(ctx, settledTotalsQuery, t.BookingID).Scan(&paid, &refunded); err != nil {
		return fmt.Errorf("sum settled transactions: %w", err)
	}
	net := paid - refunded
	if t.Amount > net {
		return fmt.Errorf("%w: refund %.2f exceeds net paid %.2f",
			model.ErrSettlementMismatch, t.Amount, net)
	}

	paymentStatus := model.PaymentStatusPartiallyRefunded
	if t.Amount == net {
		paymentStatus = model.PaymentStatusRefunded
	}

	query := `
		INSERT INTO transactions (
			transaction_reference, booking_id, transaction_type, amount, currency,
			payment_method, status, refund_reason, approved_by
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, created_at, updated_at
	`

	err = tx.QueryRow(
		ctx, query,
		t.TransactionReference, t.BookingID, t.Type, t.Amount, t.Currency,
		t.PaymentMethod, t.Status, t.RefundReason, t.ApprovedBy,
	).Scan(&t.ID, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		if base.IsUniqueViolation(err) {
			return fmt.Errorf("%w: transaction reference already exists", model.ErrConflict)
		}
		return fmt.Errorf("create refund transaction: %w", err)
	}

	_, err = tx.Exec(ctx, `
		UPDATE bookings SET payment_status = $1, refund_amount = $2, updated_at = $3 WHERE id = $4
	`, paymentStatus, refunded+t.Amount, now, t.BookingID)
	if err != nil {
		return fmt.Errorf("update booking payment status: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// ListByBooking returns the booking's settlement history, oldest first.
func (r *TransactionRepository) ListByBooking(ctx context.Context, bookingID int64) ([]*model.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE booking_id = $1 ORDER BY created_at`

	rows, err := r.pool.Query(ctx, query, bookingID)
	if err != nil {
		return nil, fmt.Errorf("list transactions by booking: %w", err)
	}
	defer rows.Close()

	var transactions []*model.Transaction
	for rows.Next() {
		var t model.Transaction
		err := rows.Scan(
			&t.ID, &t.TransactionReference, &t.BookingID, &t.Type, &t.Amount, &t.Currency,
			&t.PaymentMethod, &t.Status, &t.GatewayTransactionID, &t.FailureReason,
			&t.RefundReason, &t.ApprovedBy, &t.PlatformFeeAmount, &t.OwnerPayoutAmount,
			&t.CreatedAt, &t.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		transactions = append(transactions, &t)
	}

	return transactions, rows.Err()
}
