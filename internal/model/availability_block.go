package model

import "time"

type BlockReason string

const (
	BlockReasonBooked          BlockReason = "booked"
	BlockReasonOwnerBlocked    BlockReason = "owner_blocked"
	BlockReasonMaintenance     BlockReason = "maintenance"
	BlockReasonSeasonalClosure BlockReason = "seasonal_closure"
)

// AvailabilityBlock is a date range on a property that cannot be booked.
// Blocks with reason "booked" carry the id of the booking that produced them
// and live exactly as long as that booking holds its dates.
type AvailabilityBlock struct {
	ID              int64       `json:"id"`
	PropertyID      int64       `json:"property_id"`
	UnavailableFrom time.Time   `json:"unavailable_from"`
	UnavailableTo   time.Time   `json:"unavailable_to"`
	Reason          BlockReason `json:"reason"`
	BookingID       *int64      `json:"booking_id,omitempty"`
	CreatedAt       time.Time   `json:"created_at"`
}

// RangesOverlap implements the half-open overlap rule: [aFrom, aTo) and
// [bFrom, bTo) conflict iff aFrom < bTo and aTo > bFrom. A check-out equal
// to another range's start does not conflict, so back-to-back stays work.
func RangesOverlap(aFrom, aTo, bFrom, bTo time.Time) bool {
	return aFrom.Before(bTo) && aTo.After(bFrom)
}

// Overlaps reports whether a stay [checkIn, checkOut) conflicts with the block.
func (ab *AvailabilityBlock) Overlaps(checkIn, checkOut time.Time) bool {
	return RangesOverlap(checkIn, checkOut, ab.UnavailableFrom, ab.UnavailableTo)
}
