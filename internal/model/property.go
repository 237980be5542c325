package model

// Property is the read model served by the external property service.
// The engine only ever reads it at booking-creation time.
type Property struct {
	ID              int64   `json:"id"`
	OwnerID         int64   `json:"owner_id"`
	PricePerNight   float64 `json:"price_per_night"`
	CleaningFee     float64 `json:"cleaning_fee"`
	SecurityDeposit float64 `json:"security_deposit"`
	Currency        string  `json:"currency"`
	MaxGuests       int     `json:"max_guests"`
}

// Actor identifies who is performing a mutating operation. Identity and role
// resolution happen upstream; the engine only checks party membership.
type Actor struct {
	UserID int64
	Admin  bool
}
