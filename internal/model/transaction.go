package model

import "time"

type TransactionStatus string

const (
	TransactionStatusPending    TransactionStatus = "pending"
	TransactionStatusProcessing TransactionStatus = "processing"
	TransactionStatusCompleted  TransactionStatus = "completed"
	TransactionStatusFailed     TransactionStatus = "failed"
	TransactionStatusRefunded   TransactionStatus = "refunded"
	TransactionStatusCancelled  TransactionStatus = "cancelled"
)

type TransactionType string

const (
	TransactionTypeCharge TransactionType = "charge"
	TransactionTypeRefund TransactionType = "refund"
)

// Transaction is a settlement record reported by the payment gateway.
// Rows are append-mostly: status moves forward once, amounts never change.
type Transaction struct {
	ID                   int64             `json:"id"`
	TransactionReference string            `json:"transaction_reference"`
	BookingID            int64             `json:"booking_id"`
	Type                 TransactionType   `json:"type"`
	Amount               float64           `json:"amount"`
	Currency             string            `json:"currency"`
	PaymentMethod        string            `json:"payment_method"`
	Status               TransactionStatus `json:"status"`
	GatewayTransactionID string            `json:"gateway_transaction_id,omitempty"`
	FailureReason        string            `json:"failure_reason,omitempty"`
	RefundReason         string            `json:"refund_reason,omitempty"`
	ApprovedBy           string            `json:"approved_by,omitempty"`
	PlatformFeeAmount    float64           `json:"platform_fee_amount"`
	OwnerPayoutAmount    float64           `json:"owner_payout_amount"`
	CreatedAt            time.Time         `json:"created_at"`
	UpdatedAt            time.Time         `json:"updated_at"`
}

// Settled reports whether the gateway already delivered a final outcome, in
// which case a replayed confirmation must be a no-op.
func (t *Transaction) Settled() bool {
	switch t.Status {
	case TransactionStatusCompleted, TransactionStatusFailed,
		TransactionStatusRefunded, TransactionStatusCancelled:
		return true
	default:
		return false
	}
}
