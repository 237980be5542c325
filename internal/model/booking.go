package model

import "time"

type BookingStatus string

const (
	BookingStatusPending   BookingStatus = "pending"   // waiting for the owner's decision
	BookingStatusConfirmed BookingStatus = "confirmed" // owner accepted, stay is upcoming or in progress
	BookingStatusRejected  BookingStatus = "rejected"  // owner declined
	BookingStatusCancelled BookingStatus = "cancelled" // renter or owner cancelled
	BookingStatusExpired   BookingStatus = "expired"   // request TTL elapsed without a decision
	BookingStatusCompleted BookingStatus = "completed" // stay is over
)

type PaymentStatus string

const (
	PaymentStatusUnpaid            PaymentStatus = "unpaid"
	PaymentStatusPaid              PaymentStatus = "paid"
	PaymentStatusPartiallyRefunded PaymentStatus = "partially_refunded"
	PaymentStatusRefunded          PaymentStatus = "refunded"
	PaymentStatusFailed            PaymentStatus = "failed"
)

type Booking struct {
	ID               int64         `json:"id"`
	BookingReference string        `json:"booking_reference"`
	PropertyID       int64         `json:"property_id"`
	RenterID         int64         `json:"renter_id"`
	OwnerID          int64         `json:"owner_id"`
	CheckInDate      time.Time     `json:"check_in_date"`
	CheckOutDate     time.Time     `json:"check_out_date"`
	NumberOfNights   int           `json:"number_of_nights"`
	NumberOfGuests   int           `json:"number_of_guests"`
	PricePerNight    float64       `json:"price_per_night"`
	Subtotal         float64       `json:"subtotal"`
	CleaningFee      float64       `json:"cleaning_fee"`
	ServiceFee       float64       `json:"service_fee"`
	DiscountAmount   float64       `json:"discount_amount"`
	SecurityDeposit  float64       `json:"security_deposit"`
	TotalPrice       float64       `json:"total_price"`
	Status           BookingStatus `json:"status"`
	PaymentStatus    PaymentStatus `json:"payment_status"`

	RequestedAt time.Time  `json:"requested_at"`
	ExpiresAt   time.Time  `json:"expires_at"`
	ConfirmedAt *time.Time `json:"confirmed_at,omitempty"`
	RejectedAt  *time.Time `json:"rejected_at,omitempty"`
	CancelledAt *time.Time `json:"cancelled_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	SpecialRequests    string  `json:"special_requests,omitempty"`
	OwnerResponse      string  `json:"owner_response,omitempty"`
	RejectionReason    string  `json:"rejection_reason,omitempty"`
	CancellationReason string  `json:"cancellation_reason,omitempty"`
	CancellationFee    float64 `json:"cancellation_fee"`
	RefundAmount       float64 `json:"refund_amount"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// transitions lists every legal status change. Anything absent here is
// an invalid transition; terminal states have no outgoing edges.
var transitions = map[BookingStatus]map[BookingStatus]bool{
	BookingStatusPending: {
		BookingStatusConfirmed: true,
		BookingStatusRejected:  true,
		BookingStatusCancelled: true,
		BookingStatusExpired:   true,
	},
	BookingStatusConfirmed: {
		BookingStatusCancelled: true,
		BookingStatusCompleted: true,
	},
}

// CanTransitionTo reports whether the state machine allows moving from the
// booking's current status to the target status.
func (b *Booking) CanTransitionTo(target BookingStatus) bool {
	return transitions[b.Status][target]
}

// IsTerminal reports whether the booking can never change status again.
func (b *Booking) IsTerminal() bool {
	return len(transitions[b.Status]) == 0
}

// HoldsDates reports whether the booking currently justifies an availability
// block. Completed bookings keep their block as a historical record.
func (b *Booking) HoldsDates() bool {
	switch b.Status {
	case BookingStatusPending, BookingStatusConfirmed, BookingStatusCompleted:
		return true
	default:
		return false
	}
}

// Nights returns the length of the stay [checkIn, checkOut) in nights.
func Nights(checkIn, checkOut time.Time) int {
	return int(checkOut.Sub(checkIn).Hours() / 24)
}
