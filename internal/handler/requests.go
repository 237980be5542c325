package handler

// Request payloads. Dates travel as "2006-01-02" strings and are parsed into
// UTC midnights before they reach the services.

type CreateBookingRequest struct {
	PropertyID      int64   `json:"property_id" validate:"required"`
	CheckInDate     string  `json:"check_in_date" validate:"required,datetime=2006-01-02"`
	CheckOutDate    string  `json:"check_out_date" validate:"required,datetime=2006-01-02"`
	NumberOfGuests  int     `json:"number_of_guests" validate:"required,min=1,max=50"`
	ServiceFee      float64 `json:"service_fee" validate:"gte=0"`
	DiscountAmount  float64 `json:"discount_amount" validate:"gte=0"`
	SpecialRequests string  `json:"special_requests" validate:"max=2000"`
}

type ConfirmBookingRequest struct {
	OwnerResponse string `json:"owner_response" validate:"max=2000"`
}

type RejectBookingRequest struct {
	Reason        string `json:"reason" validate:"required,max=2000"`
	OwnerResponse string `json:"owner_response" validate:"max=2000"`
}

type CancelBookingRequest struct {
	Reason          string  `json:"reason" validate:"required,max=2000"`
	CancellationFee float64 `json:"cancellation_fee" validate:"gte=0"`
}

type CreateBlockRequest struct {
	UnavailableFrom string `json:"unavailable_from" validate:"required,datetime=2006-01-02"`
	UnavailableTo   string `json:"unavailable_to" validate:"required,datetime=2006-01-02"`
	Reason          string `json:"reason" validate:"required,oneof=owner_blocked maintenance seasonal_closure"`
}

type PaymentIntentRequest struct {
	PaymentMethod string `json:"payment_method" validate:"required,oneof=card paypal bank_transfer"`
}

type RefundRequest struct {
	Amount     float64 `json:"amount" validate:"required,gt=0"`
	Reason     string  `json:"reason" validate:"required,max=2000"`
	ApprovedBy string  `json:"approved_by" validate:"required,max=200"`
}

// SettlementWebhookRequest is the inbound payload from the payment gateway.
type SettlementWebhookRequest struct {
	TransactionReference string  `json:"transaction_reference" validate:"required"`
	Status               string  `json:"status" validate:"required,oneof=completed failed"`
	Amount               float64 `json:"amount" validate:"gte=0"`
	GatewayTransactionID string  `json:"gateway_transaction_id"`
	FailureReason        string  `json:"failure_reason"`
}
