package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/stayloop/booking-engine/internal/model"
)

// fixedClock is a hand-wound clock shared by the services under test.
type fixedClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFixedClock(now time.Time) *fixedClock {
	return &fixedClock{now: now}
}

func (c *fixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fixedClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// memStore is an in-memory BookingStore plus LedgerStore with the same guard
// semantics as the SQL repositories: transition methods return false when the
// status guard does not match, and creating over an overlapping block fails
// with ErrConflict.
type memStore struct {
	mu       sync.Mutex
	nextID   int64
	bookings map[int64]*model.Booking
	blocks   map[int64]*model.AvailabilityBlock

	expireErrs   map[int64]error
	completeErrs map[int64]error
}

func newMemStore() *memStore {
	return &memStore{
		bookings:     make(map[int64]*model.Booking),
		blocks:       make(map[int64]*model.AvailabilityBlock),
		expireErrs:   make(map[int64]error),
		completeErrs: make(map[int64]error),
	}
}

func (s *memStore) id() int64 {
	s.nextID++
	return s.nextID
}

func copyBooking(b *model.Booking) *model.Booking {
	c := *b
	return &c
}

func (s *memStore) CreateWithBlock(_ context.Context, b *model.Booking) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, block := range s.blocks {
		if block.PropertyID == b.PropertyID && block.Overlaps(b.CheckInDate, b.CheckOutDate) {
			return fmt.Errorf("%w: dates overlap an existing block", model.ErrConflict)
		}
	}

	b.ID = s.id()
	s.bookings[b.ID] = copyBooking(b)

	bookingID := b.ID
	blockID := s.id()
	s.blocks[blockID] = &model.AvailabilityBlock{
		ID:              blockID,
		PropertyID:      b.PropertyID,
		UnavailableFrom: b.CheckInDate,
		UnavailableTo:   b.CheckOutDate,
		Reason:          model.BlockReasonBooked,
		BookingID:       &bookingID,
	}
	return nil
}

func (s *memStore) GetByID(_ context.Context, id int64) (*model.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bookings[id]
	if !ok {
		return nil, nil
	}
	return copyBooking(b), nil
}

func (s *memStore) GetByReference(_ context.Context, reference string) (*model.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, b := range s.bookings {
		if b.BookingReference == reference {
			return copyBooking(b), nil
		}
	}
	return nil, nil
}

func (s *memStore) listBookings(match func(*model.Booking) bool) []*model.Booking {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*model.Booking
	for _, b := range s.bookings {
		if match(b) {
			out = append(out, copyBooking(b))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *memStore) ListByRenter(_ context.Context, renterID int64) ([]*model.Booking, error) {
	return s.listBookings(func(b *model.Booking) bool { return b.RenterID == renterID }), nil
}

func (s *memStore) ListByOwner(_ context.Context, ownerID int64) ([]*model.Booking, error) {
	return s.listBookings(func(b *model.Booking) bool { return b.OwnerID == ownerID }), nil
}

func (s *memStore) ListByProperty(_ context.Context, propertyID int64) ([]*model.Booking, error) {
	return s.listBookings(func(b *model.Booking) bool { return b.PropertyID == propertyID }), nil
}

func (s *memStore) Confirm(_ context.Context, id int64, ownerResponse string, now time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bookings[id]
	if !ok || b.Status != model.BookingStatusPending || !b.ExpiresAt.After(now) {
		return false, nil
	}
	b.Status = model.BookingStatusConfirmed
	b.ConfirmedAt = &now
	b.OwnerResponse = ownerResponse
	b.UpdatedAt = now
	return true, nil
}

func (s *memStore) Reject(_ context.Context, id int64, reason, ownerResponse string, now time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bookings[id]
	if !ok || b.Status != model.BookingStatusPending {
		return false, nil
	}
	b.Status = model.BookingStatusRejected
	b.RejectedAt = &now
	b.RejectionReason = reason
	b.OwnerResponse = ownerResponse
	b.UpdatedAt = now
	s.releaseBlockLocked(id)
	return true, nil
}

func (s *memStore) Cancel(_ context.Context, id int64, from model.BookingStatus, reason string, fee, refund float64, now time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bookings[id]
	if !ok || b.Status != from {
		return false, nil
	}
	b.Status = model.BookingStatusCancelled
	b.CancelledAt = &now
	b.CancellationReason = reason
	b.CancellationFee = fee
	b.RefundAmount = refund
	b.UpdatedAt = now
	s.releaseBlockLocked(id)
	return true, nil
}

func (s *memStore) Expire(_ context.Context, id int64, now time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.expireErrs[id]; err != nil {
		return false, err
	}
	b, ok := s.bookings[id]
	if !ok || b.Status != model.BookingStatusPending || b.ExpiresAt.After(now) {
		return false, nil
	}
	b.Status = model.BookingStatusExpired
	b.UpdatedAt = now
	s.releaseBlockLocked(id)
	return true, nil
}

func (s *memStore) Complete(_ context.Context, id int64, today, now time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.completeErrs[id]; err != nil {
		return false, err
	}
	b, ok := s.bookings[id]
	if !ok || b.Status != model.BookingStatusConfirmed || !b.CheckOutDate.Before(today) {
		return false, nil
	}
	b.Status = model.BookingStatusCompleted
	b.CompletedAt = &now
	b.UpdatedAt = now
	return true, nil
}

func (s *memStore) ListExpiredPending(_ context.Context, now time.Time) ([]*model.Booking, error) {
	return s.listBookings(func(b *model.Booking) bool {
		return b.Status == model.BookingStatusPending && !b.ExpiresAt.After(now)
	}), nil
}

func (s *memStore) ListPastDueConfirmed(_ context.Context, today time.Time) ([]*model.Booking, error) {
	return s.listBookings(func(b *model.Booking) bool {
		return b.Status == model.BookingStatusConfirmed && b.CheckOutDate.Before(today)
	}), nil
}

func (s *memStore) releaseBlockLocked(bookingID int64) {
	for id, block := range s.blocks {
		if block.BookingID != nil && *block.BookingID == bookingID {
			delete(s.blocks, id)
		}
	}
}

func (s *memStore) HasConflict(_ context.Context, propertyID int64, checkIn, checkOut time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, block := range s.blocks {
		if block.PropertyID == propertyID && block.Overlaps(checkIn, checkOut) {
			return true, nil
		}
	}
	return false, nil
}

func (s *memStore) ListBlocked(_ context.Context, propertyID int64, from, to time.Time) ([]*model.AvailabilityBlock, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*model.AvailabilityBlock
	for _, block := range s.blocks {
		if block.PropertyID == propertyID && block.Overlaps(from, to) {
			c := *block
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *memStore) CreateOwnerBlock(_ context.Context, block *model.AvailabilityBlock) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.blocks {
		if existing.PropertyID == block.PropertyID && existing.Overlaps(block.UnavailableFrom, block.UnavailableTo) {
			return fmt.Errorf("%w: dates overlap an existing block", model.ErrConflict)
		}
	}
	block.ID = s.id()
	c := *block
	s.blocks[block.ID] = &c
	return nil
}

func (s *memStore) GetBlock(_ context.Context, id int64) (*model.AvailabilityBlock, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	block, ok := s.blocks[id]
	if !ok {
		return nil, nil
	}
	c := *block
	return &c, nil
}

func (s *memStore) DeleteOwnerBlock(_ context.Context, id int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	block, ok := s.blocks[id]
	if !ok || block.Reason == model.BlockReasonBooked {
		return false, nil
	}
	delete(s.blocks, id)
	return true, nil
}

// memSettlementStore mirrors the transaction repository over the same booking
// state as the memStore, so settlement outcomes update payment status.
type memSettlementStore struct {
	mu           sync.Mutex
	store        *memStore
	transactions map[string]*model.Transaction
}

func newMemSettlementStore(store *memStore) *memSettlementStore {
	return &memSettlementStore{
		store:        store,
		transactions: make(map[string]*model.Transaction),
	}
}

func copyTransaction(t *model.Transaction) *model.Transaction {
	c := *t
	return &c
}

func (s *memSettlementStore) Create(_ context.Context, t *model.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.transactions[t.TransactionReference]; exists {
		return fmt.Errorf("%w: duplicate transaction reference", model.ErrConflict)
	}
	t.ID = int64(len(s.transactions) + 1)
	s.transactions[t.TransactionReference] = copyTransaction(t)
	return nil
}

func (s *memSettlementStore) GetByReference(_ context.Context, reference string) (*model.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.transactions[reference]
	if !ok {
		return nil, nil
	}
	return copyTransaction(t), nil
}

func (s *memSettlementStore) Totals(_ context.Context, bookingID int64) (float64, float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	paid, refunded := s.totalsLocked(bookingID)
	return paid, refunded, nil
}

func (s *memSettlementStore) totalsLocked(bookingID int64) (float64, float64) {
	var paid, refunded float64
	for _, t := range s.transactions {
		if t.BookingID != bookingID || t.Status != model.TransactionStatusCompleted {
			continue
		}
		switch t.Type {
		case model.TransactionTypeCharge:
			paid += t.Amount
		case model.TransactionTypeRefund:
			refunded += t.Amount
		}
	}
	return paid, refunded
}

func (s *memSettlementStore) MarkCompleted(_ context.Context, reference, gatewayID string, platformFee, ownerPayout float64, bookingID int64, now time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.transactions[reference]
	if !ok || t.Settled() {
		return false, nil
	}

	s.store.mu.Lock()
	b, exists := s.store.bookings[bookingID]
	if !exists || b.PaymentStatus != model.PaymentStatusUnpaid {
		s.store.mu.Unlock()
		return false, nil
	}
	b.PaymentStatus = model.PaymentStatusPaid
	b.UpdatedAt = now
	s.store.mu.Unlock()

	t.Status = model.TransactionStatusCompleted
	t.GatewayTransactionID = gatewayID
	t.PlatformFeeAmount = platformFee
	t.OwnerPayoutAmount = ownerPayout
	t.UpdatedAt = now
	return true, nil
}

func (s *memSettlementStore) MarkFailed(_ context.Context, reference, failureReason string, now time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.transactions[reference]
	if !ok || t.Settled() {
		return false, nil
	}
	t.Status = model.TransactionStatusFailed
	t.FailureReason = failureReason
	t.UpdatedAt = now
	return true, nil
}

func (s *memSettlementStore) CreateRefund(_ context.Context, t *model.Transaction, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// The cap is re-verified here, atomically with the insert, matching the
	// row lock the SQL store takes on the booking.
	paid, refunded := s.totalsLocked(t.BookingID)
	net := paid - refunded
	if t.Amount > net {
		return fmt.Errorf("%w: refund %.2f exceeds net paid %.2f",
			model.ErrSettlementMismatch, t.Amount, net)
	}

	paymentStatus := model.PaymentStatusPartiallyRefunded
	if t.Amount == net {
		paymentStatus = model.PaymentStatusRefunded
	}

	t.ID = int64(len(s.transactions) + 1)
	t.CreatedAt = now
	s.transactions[t.TransactionReference] = copyTransaction(t)

	s.store.mu.Lock()
	if b, exists := s.store.bookings[t.BookingID]; exists {
		b.PaymentStatus = paymentStatus
		b.RefundAmount = refunded + t.Amount
		b.UpdatedAt = now
	}
	s.store.mu.Unlock()
	return nil
}

func (s *memSettlementStore) ListByBooking(_ context.Context, bookingID int64) ([]*model.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*model.Transaction
	for _, t := range s.transactions {
		if t.BookingID == bookingID {
			out = append(out, copyTransaction(t))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

type fakeProperties struct {
	properties map[int64]*model.Property
}

func (f *fakeProperties) GetProperty(_ context.Context, propertyID int64) (*model.Property, error) {
	p, ok := f.properties[propertyID]
	if !ok {
		return nil, nil
	}
	c := *p
	return &c, nil
}

type fakeGateway struct {
	err   error
	calls int
}

func (f *fakeGateway) CreateIntent(_ context.Context, _ float64, _, _ string) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	return fmt.Sprintf("pi_test_%d", f.calls), nil
}

type recordedEvent struct {
	event     string
	bookingID int64
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (p *recordingPublisher) BookingEvent(event string, b *model.Booking) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, recordedEvent{event: event, bookingID: b.ID})
}

func (p *recordingPublisher) names() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.events))
	for i, e := range p.events {
		out[i] = e.event
	}
	return out
}

// testEnv wires every service over one shared in-memory store.
type testEnv struct {
	clock      *fixedClock
	store      *memStore
	settlement *memSettlementStore
	properties *fakeProperties
	gateway    *fakeGateway
	published  *recordingPublisher

	bookings     *BookingService
	availability *AvailabilityService
	sweeps       *SweepService
	payments     *SettlementService
}

const testRequestTTL = 48 * time.Hour

func newTestEnv() *testEnv {
	clock := newFixedClock(time.Date(2026, time.September, 1, 10, 0, 0, 0, time.UTC))
	store := newMemStore()
	settlement := newMemSettlementStore(store)
	properties := &fakeProperties{properties: map[int64]*model.Property{
		100: {ID: 100, OwnerID: 2, PricePerNight: 120, CleaningFee: 40, SecurityDeposit: 200, Currency: "USD", MaxGuests: 4},
		101: {ID: 101, OwnerID: 3, PricePerNight: 90, CleaningFee: 0, SecurityDeposit: 0, Currency: "USD", MaxGuests: 2},
	}}
	gateway := &fakeGateway{}
	published := &recordingPublisher{}
	logger := zap.NewNop()

	return &testEnv{
		clock:      clock,
		store:      store,
		settlement: settlement,
		properties: properties,
		gateway:    gateway,
		published:  published,

		bookings:     NewBookingService(store, store, properties, published, clock, testRequestTTL, logger),
		availability: NewAvailabilityService(store, properties, logger),
		sweeps:       NewSweepService(store, published, clock, logger),
		payments:     NewSettlementService(settlement, store, gateway, clock, "USD", logger),
	}
}

func day(d int) time.Time {
	return time.Date(2026, time.September, d, 0, 0, 0, 0, time.UTC)
}

// createBooking makes a pending booking for renter 1 on property 100.
func (e *testEnv) createBooking(t testing.TB, checkIn, checkOut time.Time) *model.Booking {
	t.Helper()
	booking, err := e.bookings.CreateBooking(context.Background(), CreateBookingInput{
		PropertyID:     100,
		RenterID:       1,
		CheckInDate:    checkIn,
		CheckOutDate:   checkOut,
		NumberOfGuests: 2,
		ServiceFee:     30,
	})
	if err != nil {
		t.Fatalf("create booking: %v", err)
	}
	return booking
}
