package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/stayloop/booking-engine/internal/model"
)

// SettlementService reconciles externally reported payment outcomes with
// booking payment state. Every operation is idempotent per transaction
// reference so gateway retries and webhook replays are harmless.
type SettlementService struct {
	transactions SettlementStore
	bookings     BookingStore
	gateway      PaymentGateway
	clock        model.Clock
	currency     string
	logger       *zap.Logger
}

func NewSettlementService(
	transactions SettlementStore,
	bookings BookingStore,
	gateway PaymentGateway,
	clock model.Clock,
	currency string,
	logger *zap.Logger,
) *SettlementService {
	return &SettlementService{
		transactions: transactions,
		bookings:     bookings,
		gateway:      gateway,
		clock:        clock,
		currency:     currency,
		logger:       logger,
	}
}

// NewTransactionReference builds the settlement-facing reference, e.g. TXN-9C4E21B7A3F0.
func NewTransactionReference() string {
	raw := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))
	return "TXN-" + raw[:12]
}

// CreatePaymentIntent opens a pending charge for the booking's total through
// the gateway adapter. The charge settles later via ConfirmPayment.
func (s *SettlementService) CreatePaymentIntent(ctx context.Context, actor model.Actor, bookingID int64, paymentMethod string) (*model.Transaction, error) {
	booking, err := s.bookings.GetByID(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if booking == nil {
		return nil, fmt.Errorf("%w: booking %d", model.ErrNotFound, bookingID)
	}
	if !actor.Admin && actor.UserID != booking.RenterID {
		return nil, fmt.Errorf("%w: only the renter may pay", model.ErrUnauthorized)
	}
	switch booking.Status {
	case model.BookingStatusPending, model.BookingStatusConfirmed:
	default:
		return nil, fmt.Errorf("%w: cannot pay a %s booking", model.ErrConflict, booking.Status)
	}
	switch booking.PaymentStatus {
	case model.PaymentStatusUnpaid, model.PaymentStatusFailed:
	default:
		return nil, fmt.Errorf("%w: booking already paid", model.ErrConflict)
	}

	// One open charge at a time. A second intent while the first is still
	// unsettled would let both settle and charge the booking twice.
	history, err := s.transactions.ListByBooking(ctx, booking.ID)
	if err != nil {
		return nil, err
	}
	for _, open := range history {
		if open.Type == model.TransactionTypeCharge && !open.Settled() {
			return nil, fmt.Errorf("%w: charge %s is still awaiting settlement", model.ErrConflict, open.TransactionReference)
		}
	}

	gatewayID, err := s.gateway.CreateIntent(ctx, booking.TotalPrice, s.currency, paymentMethod)
	if err != nil {
		return nil, fmt.Errorf("create payment intent: %w", err)
	}

	transaction := &model.Transaction{
		TransactionReference: NewTransactionReference(),
		BookingID:            booking.ID,
		Type:                 model.TransactionTypeCharge,
		Amount:               booking.TotalPrice,
		Currency:             s.currency,
		PaymentMethod:        paymentMethod,
		Status:               model.TransactionStatusPending,
		GatewayTransactionID: gatewayID,
	}
	if err := s.transactions.Create(ctx, transaction); err != nil {
		return nil, err
	}

	s.logger.Info("payment intent created",
		zap.String("transaction_reference", transaction.TransactionReference),
		zap.Int64("booking_id", booking.ID),
		zap.Float64("amount", transaction.Amount),
	)

	return transaction, nil
}

type PaymentOutcome struct {
	Succeeded            bool
	GatewayTransactionID string
	Amount               float64
	FailureReason        string
}

// ConfirmPayment applies a gateway-reported outcome. Replaying an already
// settled reference returns the current state without changing anything.
// A failed charge leaves the booking's payment status untouched.
func (s *SettlementService) ConfirmPayment(ctx context.Context, reference string, outcome PaymentOutcome) (*model.Transaction, error) {
	transaction, err := s.transactions.GetByReference(ctx, reference)
	if err != nil {
		return nil, err
	}
	if transaction == nil {
		return nil, fmt.Errorf("%w: transaction %s", model.ErrNotFound, reference)
	}
	if transaction.Settled() {
		return transaction, nil
	}

	if outcome.Amount != 0 && outcome.Amount != transaction.Amount {
		return nil, fmt.Errorf("%w: reported amount %.2f does not match charge %.2f",
			model.ErrSettlementMismatch, outcome.Amount, transaction.Amount)
	}

	now := s.clock.Now()

	if !outcome.Succeeded {
		if _, err := s.transactions.MarkFailed(ctx, reference, outcome.FailureReason, now); err != nil {
			return nil, err
		}
		s.logger.Warn("payment failed",
			zap.String("transaction_reference", reference),
			zap.String("failure_reason", outcome.FailureReason),
		)
		return s.transactions.GetByReference(ctx, reference)
	}

	booking, err := s.bookings.GetByID(ctx, transaction.BookingID)
	if err != nil {
		return nil, err
	}
	if booking == nil {
		return nil, fmt.Errorf("%w: booking %d", model.ErrNotFound, transaction.BookingID)
	}

	platformFee := booking.ServiceFee
	ownerPayout := transaction.Amount - platformFee - booking.SecurityDeposit
	if ownerPayout < 0 {
		ownerPayout = 0
	}

	gatewayID := outcome.GatewayTransactionID
	if gatewayID == "" {
		gatewayID = transaction.GatewayTransactionID
	}

	ok, err := s.transactions.MarkCompleted(ctx, reference, gatewayID, platformFee, ownerPayout, transaction.BookingID, now)
	if err != nil {
		return nil, err
	}
	if !ok {
		// Guard lost: either this reference settled in the meantime, which
		// makes the replay a no-op, or another charge already paid the booking.
		current, err := s.transactions.GetByReference(ctx, reference)
		if err != nil {
			return nil, err
		}
		if current != nil && current.Settled() {
			return current, nil
		}
		return nil, fmt.Errorf("%w: booking %d is already paid", model.ErrConflict, transaction.BookingID)
	}

	s.logger.Info("payment settled",
		zap.String("transaction_reference", reference),
		zap.Int64("booking_id", transaction.BookingID),
		zap.Float64("amount", transaction.Amount),
	)

	return s.transactions.GetByReference(ctx, reference)
}

// Refund returns part or all of the net paid amount. The refund amount may
// never exceed completed charges minus completed refunds; the check here is a
// fast pre-check, the store re-verifies it under a lock on the booking row so
// concurrent refunds cannot jointly exceed the net.
func (s *SettlementService) Refund(ctx context.Context, actor model.Actor, bookingID int64, amount float64, reason, approvedBy string) (*model.Transaction, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("%w: refund amount must be positive", model.ErrValidationFailed)
	}
	if strings.TrimSpace(reason) == "" {
		return nil, fmt.Errorf("%w: refund reason is required", model.ErrValidationFailed)
	}

	booking, err := s.bookings.GetByID(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if booking == nil {
		return nil, fmt.Errorf("%w: booking %d", model.ErrNotFound, bookingID)
	}
	if !actor.Admin && actor.UserID != booking.OwnerID {
		return nil, fmt.Errorf("%w: only the owner or an admin may refund", model.ErrUnauthorized)
	}

	paid, refunded, err := s.transactions.Totals(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	net := paid - refunded
	if amount > net {
		return nil, fmt.Errorf("%w: refund %.2f exceeds net paid %.2f",
			model.ErrSettlementMismatch, amount, net)
	}

	transaction := &model.Transaction{
		TransactionReference: NewTransactionReference(),
		BookingID:            bookingID,
		Type:                 model.TransactionTypeRefund,
		Amount:               amount,
		Currency:             s.currency,
		PaymentMethod:        "refund",
		Status:               model.TransactionStatusCompleted,
		RefundReason:         reason,
		ApprovedBy:           approvedBy,
	}

	now := s.clock.Now()
	if err := s.transactions.CreateRefund(ctx, transaction, now); err != nil {
		return nil, err
	}

	s.logger.Info("refund settled",
		zap.String("transaction_reference", transaction.TransactionReference),
		zap.Int64("booking_id", bookingID),
		zap.Float64("amount", amount),
	)

	return transaction, nil
}

// BookingTransactions returns the settlement history of a booking.
func (s *SettlementService) BookingTransactions(ctx context.Context, actor model.Actor, bookingID int64) ([]*model.Transaction, error) {
	booking, err := s.bookings.GetByID(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if booking == nil {
		return nil, fmt.Errorf("%w: booking %d", model.ErrNotFound, bookingID)
	}
	if !actor.Admin && actor.UserID != booking.RenterID && actor.UserID != booking.OwnerID {
		return nil, fmt.Errorf("%w: not a party to this booking", model.ErrUnauthorized)
	}
	return s.transactions.ListByBooking(ctx, bookingID)
}
