package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stayloop/booking-engine/internal/model"
)

func TestCreatePaymentIntent(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	booking := env.createBooking(t, day(10), day(14))
	renter := model.Actor{UserID: 1}

	intent, err := env.payments.CreatePaymentIntent(ctx, renter, booking.ID, "card")
	require.NoError(t, err)
	assert.Regexp(t, `^TXN-[0-9A-F]{12}$`, intent.TransactionReference)
	assert.Equal(t, model.TransactionTypeCharge, intent.Type)
	assert.Equal(t, model.TransactionStatusPending, intent.Status)
	assert.Equal(t, booking.TotalPrice, intent.Amount)
	assert.Equal(t, "USD", intent.Currency)
	assert.NotEmpty(t, intent.GatewayTransactionID)

	// Only the renter pays.
	_, err = env.payments.CreatePaymentIntent(ctx, model.Actor{UserID: 2}, booking.ID, "card")
	require.ErrorIs(t, err, model.ErrUnauthorized)

	_, err = env.payments.CreatePaymentIntent(ctx, renter, 999, "card")
	require.ErrorIs(t, err, model.ErrNotFound)
}

func TestCreatePaymentIntentRefusesOpenCharge(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	renter := model.Actor{UserID: 1}

	booking := env.createBooking(t, day(10), day(14))

	first, err := env.payments.CreatePaymentIntent(ctx, renter, booking.ID, "card")
	require.NoError(t, err)

	// A second intent while the first charge is unsettled would open the door
	// to charging the booking twice.
	_, err = env.payments.CreatePaymentIntent(ctx, renter, booking.ID, "card")
	require.ErrorIs(t, err, model.ErrConflict)

	// Once the first charge fails, a fresh intent is allowed again.
	_, err = env.payments.ConfirmPayment(ctx, first.TransactionReference, PaymentOutcome{
		Succeeded:     false,
		FailureReason: "card declined",
	})
	require.NoError(t, err)

	_, err = env.payments.CreatePaymentIntent(ctx, renter, booking.ID, "card")
	require.NoError(t, err)
}

func TestConfirmPaymentSecondChargeCannotSettle(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	booking := env.createBooking(t, day(10), day(14))
	intent, err := env.payments.CreatePaymentIntent(ctx, model.Actor{UserID: 1}, booking.ID, "card")
	require.NoError(t, err)

	// A stray open charge for the same booking, as left behind by a race
	// between two intent requests.
	stray := &model.Transaction{
		TransactionReference: NewTransactionReference(),
		BookingID:            booking.ID,
		Type:                 model.TransactionTypeCharge,
		Amount:               booking.TotalPrice,
		Currency:             "USD",
		PaymentMethod:        "card",
		Status:               model.TransactionStatusPending,
	}
	require.NoError(t, env.settlement.Create(ctx, stray))

	_, err = env.payments.ConfirmPayment(ctx, intent.TransactionReference, PaymentOutcome{Succeeded: true})
	require.NoError(t, err)

	// The booking is paid; settling the second charge must be refused.
	_, err = env.payments.ConfirmPayment(ctx, stray.TransactionReference, PaymentOutcome{Succeeded: true})
	require.ErrorIs(t, err, model.ErrConflict)

	paid, refunded, err := env.settlement.Totals(ctx, booking.ID)
	require.NoError(t, err)
	assert.Equal(t, booking.TotalPrice, paid)
	assert.Zero(t, refunded)

	got, err := env.settlement.GetByReference(ctx, stray.TransactionReference)
	require.NoError(t, err)
	assert.Equal(t, model.TransactionStatusPending, got.Status)
}

func TestCreatePaymentIntentAfterPayment(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	booking := env.createBooking(t, day(10), day(14))
	renter := model.Actor{UserID: 1}

	intent, err := env.payments.CreatePaymentIntent(ctx, renter, booking.ID, "card")
	require.NoError(t, err)
	_, err = env.payments.ConfirmPayment(ctx, intent.TransactionReference, PaymentOutcome{Succeeded: true})
	require.NoError(t, err)

	_, err = env.payments.CreatePaymentIntent(ctx, renter, booking.ID, "card")
	require.ErrorIs(t, err, model.ErrConflict)
}

func TestConfirmPayment(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	booking := env.createBooking(t, day(10), day(14))
	intent, err := env.payments.CreatePaymentIntent(ctx, model.Actor{UserID: 1}, booking.ID, "card")
	require.NoError(t, err)

	settled, err := env.payments.ConfirmPayment(ctx, intent.TransactionReference, PaymentOutcome{
		Succeeded:            true,
		GatewayTransactionID: "ch_abc123",
		Amount:               booking.TotalPrice,
	})
	require.NoError(t, err)
	assert.Equal(t, model.TransactionStatusCompleted, settled.Status)
	assert.Equal(t, "ch_abc123", settled.GatewayTransactionID)
	assert.Equal(t, booking.ServiceFee, settled.PlatformFeeAmount)
	assert.Equal(t, booking.TotalPrice-booking.ServiceFee-booking.SecurityDeposit, settled.OwnerPayoutAmount)

	paid, err := env.store.GetByID(ctx, booking.ID)
	require.NoError(t, err)
	assert.Equal(t, model.PaymentStatusPaid, paid.PaymentStatus)

	// A replayed webhook returns the settled state without touching anything.
	replayed, err := env.payments.ConfirmPayment(ctx, intent.TransactionReference, PaymentOutcome{Succeeded: true})
	require.NoError(t, err)
	assert.Equal(t, settled, replayed)

	// Even a contradictory replay is ignored once settled.
	replayed, err = env.payments.ConfirmPayment(ctx, intent.TransactionReference, PaymentOutcome{
		Succeeded:     false,
		FailureReason: "card declined",
	})
	require.NoError(t, err)
	assert.Equal(t, model.TransactionStatusCompleted, replayed.Status)
}

func TestConfirmPaymentAmountMismatch(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	booking := env.createBooking(t, day(10), day(14))
	intent, err := env.payments.CreatePaymentIntent(ctx, model.Actor{UserID: 1}, booking.ID, "card")
	require.NoError(t, err)

	_, err = env.payments.ConfirmPayment(ctx, intent.TransactionReference, PaymentOutcome{
		Succeeded: true,
		Amount:    booking.TotalPrice + 1,
	})
	require.ErrorIs(t, err, model.ErrSettlementMismatch)

	// The charge stays pending and the booking stays unpaid.
	tx, err := env.settlement.GetByReference(ctx, intent.TransactionReference)
	require.NoError(t, err)
	assert.Equal(t, model.TransactionStatusPending, tx.Status)
}

func TestConfirmPaymentFailure(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	booking := env.createBooking(t, day(10), day(14))
	intent, err := env.payments.CreatePaymentIntent(ctx, model.Actor{UserID: 1}, booking.ID, "card")
	require.NoError(t, err)

	failed, err := env.payments.ConfirmPayment(ctx, intent.TransactionReference, PaymentOutcome{
		Succeeded:     false,
		FailureReason: "insufficient funds",
	})
	require.NoError(t, err)
	assert.Equal(t, model.TransactionStatusFailed, failed.Status)
	assert.Equal(t, "insufficient funds", failed.FailureReason)

	got, err := env.store.GetByID(ctx, booking.ID)
	require.NoError(t, err)
	assert.Equal(t, model.PaymentStatusUnpaid, got.PaymentStatus)

	// A failed charge does not block a retry.
	_, err = env.payments.CreatePaymentIntent(ctx, model.Actor{UserID: 1}, booking.ID, "card")
	require.NoError(t, err)
}

func TestConfirmPaymentUnknownReference(t *testing.T) {
	env := newTestEnv()

	_, err := env.payments.ConfirmPayment(context.Background(), "TXN-DOESNOTEXIST", PaymentOutcome{Succeeded: true})
	require.ErrorIs(t, err, model.ErrNotFound)
}

func TestRefund(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	owner := model.Actor{UserID: 2}

	booking := env.createBooking(t, day(10), day(14))
	intent, err := env.payments.CreatePaymentIntent(ctx, model.Actor{UserID: 1}, booking.ID, "card")
	require.NoError(t, err)
	_, err = env.payments.ConfirmPayment(ctx, intent.TransactionReference, PaymentOutcome{Succeeded: true})
	require.NoError(t, err)

	// More than the net paid amount is a mismatch.
	_, err = env.payments.Refund(ctx, owner, booking.ID, booking.TotalPrice+1, "overcharge", "ops")
	require.ErrorIs(t, err, model.ErrSettlementMismatch)

	// Partial refund.
	partial, err := env.payments.Refund(ctx, owner, booking.ID, 100, "late check-in", "ops")
	require.NoError(t, err)
	assert.Equal(t, model.TransactionTypeRefund, partial.Type)
	assert.Equal(t, model.TransactionStatusCompleted, partial.Status)
	assert.Equal(t, "late check-in", partial.RefundReason)
	assert.Equal(t, "ops", partial.ApprovedBy)

	got, err := env.store.GetByID(ctx, booking.ID)
	require.NoError(t, err)
	assert.Equal(t, model.PaymentStatusPartiallyRefunded, got.PaymentStatus)
	assert.Equal(t, 100.0, got.RefundAmount)

	// Refunding the remainder exhausts the net and flips the status.
	_, err = env.payments.Refund(ctx, owner, booking.ID, booking.TotalPrice-100, "cancelled stay", "ops")
	require.NoError(t, err)

	got, err = env.store.GetByID(ctx, booking.ID)
	require.NoError(t, err)
	assert.Equal(t, model.PaymentStatusRefunded, got.PaymentStatus)
	assert.Equal(t, booking.TotalPrice, got.RefundAmount)

	// The well is dry.
	_, err = env.payments.Refund(ctx, owner, booking.ID, 1, "anything", "ops")
	require.ErrorIs(t, err, model.ErrSettlementMismatch)
}

func TestRefundConcurrentFullRefunds(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	owner := model.Actor{UserID: 2}

	booking := env.createBooking(t, day(10), day(14))
	intent, err := env.payments.CreatePaymentIntent(ctx, model.Actor{UserID: 1}, booking.ID, "card")
	require.NoError(t, err)
	_, err = env.payments.ConfirmPayment(ctx, intent.TransactionReference, PaymentOutcome{Succeeded: true})
	require.NoError(t, err)

	// Every caller asks for the full net amount at once; only one may get it.
	const attempts = 8
	start := make(chan struct{})
	errs := make(chan error, attempts)

	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := env.payments.Refund(ctx, owner, booking.ID, booking.TotalPrice, "dispute", "ops")
			errs <- err
		}()
	}
	close(start)
	wg.Wait()
	close(errs)

	var succeeded, mismatched int
	for err := range errs {
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, model.ErrSettlementMismatch):
			mismatched++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, attempts-1, mismatched)

	got, err := env.store.GetByID(ctx, booking.ID)
	require.NoError(t, err)
	assert.Equal(t, model.PaymentStatusRefunded, got.PaymentStatus)
	assert.Equal(t, booking.TotalPrice, got.RefundAmount)

	paid, refunded, err := env.settlement.Totals(ctx, booking.ID)
	require.NoError(t, err)
	assert.Equal(t, paid, refunded)
}

func TestRefundValidation(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	booking := env.createBooking(t, day(10), day(14))

	_, err := env.payments.Refund(ctx, model.Actor{UserID: 2}, booking.ID, 0, "reason", "ops")
	require.ErrorIs(t, err, model.ErrValidationFailed)

	_, err = env.payments.Refund(ctx, model.Actor{UserID: 2}, booking.ID, 50, "  ", "ops")
	require.ErrorIs(t, err, model.ErrValidationFailed)

	// The renter cannot grant themselves a refund.
	_, err = env.payments.Refund(ctx, model.Actor{UserID: 1}, booking.ID, 50, "reason", "ops")
	require.ErrorIs(t, err, model.ErrUnauthorized)
}

func TestBookingTransactions(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	booking := env.createBooking(t, day(10), day(14))
	intent, err := env.payments.CreatePaymentIntent(ctx, model.Actor{UserID: 1}, booking.ID, "card")
	require.NoError(t, err)
	_, err = env.payments.ConfirmPayment(ctx, intent.TransactionReference, PaymentOutcome{Succeeded: true})
	require.NoError(t, err)
	_, err = env.payments.Refund(ctx, model.Actor{UserID: 2}, booking.ID, 100, "goodwill", "ops")
	require.NoError(t, err)

	history, err := env.payments.BookingTransactions(ctx, model.Actor{UserID: 1}, booking.ID)
	require.NoError(t, err)
	require.Len(t, history, 2)

	_, err = env.payments.BookingTransactions(ctx, model.Actor{UserID: 77}, booking.ID)
	require.ErrorIs(t, err, model.ErrUnauthorized)
}

func TestCreatePaymentIntentGatewayError(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	booking := env.createBooking(t, day(10), day(14))
	env.gateway.err = errors.New("gateway unavailable")

	_, err := env.payments.CreatePaymentIntent(ctx, model.Actor{UserID: 1}, booking.ID, "card")
	require.Error(t, err)

	// No transaction row is left behind.
	history, err := env.settlement.ListByBooking(ctx, booking.ID)
	require.NoError(t, err)
	assert.Empty(t, history)
}
