package handler

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/stayloop/booking-engine/internal/model"
	"github.com/stayloop/booking-engine/internal/service"
)

// BookingUsecase, AvailabilityUsecase and SettlementUsecase are the service
// contracts the transport depends on; the concrete services implement them.
type BookingUsecase interface {
	CreateBooking(ctx context.Context, in service.CreateBookingInput) (*model.Booking, error)
	ConfirmBooking(ctx context.Context, actor model.Actor, bookingID int64, ownerResponse string) (*model.Booking, error)
	RejectBooking(ctx context.Context, actor model.Actor, bookingID int64, reason, ownerResponse string) (*model.Booking, error)
	CancelBooking(ctx context.Context, actor model.Actor, bookingID int64, in service.CancelBookingInput) (*model.Booking, error)
	GetBooking(ctx context.Context, actor model.Actor, bookingID int64) (*model.Booking, error)
	GetBookingByReference(ctx context.Context, actor model.Actor, reference string) (*model.Booking, error)
	ListRenterBookings(ctx context.Context, actor model.Actor, renterID int64) ([]*model.Booking, error)
	ListOwnerBookings(ctx context.Context, actor model.Actor, ownerID int64) ([]*model.Booking, error)
}

type AvailabilityUsecase interface {
	BlockedRanges(ctx context.Context, propertyID int64, from, to time.Time) ([]*model.AvailabilityBlock, error)
	CreateOwnerBlock(ctx context.Context, actor model.Actor, in service.CreateBlockInput) (*model.AvailabilityBlock, error)
	RemoveOwnerBlock(ctx context.Context, actor model.Actor, blockID int64) error
}

type SettlementUsecase interface {
	CreatePaymentIntent(ctx context.Context, actor model.Actor, bookingID int64, paymentMethod string) (*model.Transaction, error)
	ConfirmPayment(ctx context.Context, reference string, outcome service.PaymentOutcome) (*model.Transaction, error)
	Refund(ctx context.Context, actor model.Actor, bookingID int64, amount float64, reason, approvedBy string) (*model.Transaction, error)
	BookingTransactions(ctx context.Context, actor model.Actor, bookingID int64) ([]*model.Transaction, error)
}

type Handler struct {
	Log          *zap.Logger
	Validator    *validator.Validate
	Bookings     BookingUsecase
	Availability AvailabilityUsecase
	Settlement   SettlementUsecase
}

// actor reads the caller identity resolved by the upstream identity layer.
// The gateway sets X-User-ID and, for platform staff, X-User-Role: admin.
func actor(c *fiber.Ctx) (model.Actor, error) {
	userID, err := strconv.ParseInt(c.Get("X-User-ID"), 10, 64)
	if err != nil || userID <= 0 {
		return model.Actor{}, fmt.Errorf("%w: missing caller identity", model.ErrUnauthorized)
	}
	return model.Actor{UserID: userID, Admin: c.Get("X-User-Role") == "admin"}, nil
}

func parseDate(s string) time.Time {
	t, _ := time.Parse("2006-01-02", s)
	return t
}

func (h *Handler) CreateBooking(c *fiber.Ctx) error {
	act, err := actor(c)
	if err != nil {
		return respError(c, h.Log, err)
	}

	var req CreateBookingRequest
	if err := c.BodyParser(&req); err != nil {
		return respError(c, h.Log, fmt.Errorf("%w: %s", model.ErrValidationFailed, "malformed request body"))
	}
	if err := h.Validator.Struct(req); err != nil {
		return respError(c, h.Log, fmt.Errorf("%w: %s", model.ErrValidationFailed, err.Error()))
	}

	booking, err := h.Bookings.CreateBooking(c.UserContext(), service.CreateBookingInput{
		PropertyID:      req.PropertyID,
		RenterID:        act.UserID,
		CheckInDate:     parseDate(req.CheckInDate),
		CheckOutDate:    parseDate(req.CheckOutDate),
		NumberOfGuests:  req.NumberOfGuests,
		ServiceFee:      req.ServiceFee,
		DiscountAmount:  req.DiscountAmount,
		SpecialRequests: req.SpecialRequests,
	})
	if err != nil {
		return respError(c, h.Log, err)
	}

	return respSuccess(c, fiber.StatusCreated, booking)
}

func (h *Handler) GetBooking(c *fiber.Ctx) error {
	act, err := actor(c)
	if err != nil {
		return respError(c, h.Log, err)
	}
	id, err := bookingID(c)
	if err != nil {
		return respError(c, h.Log, err)
	}

	booking, err := h.Bookings.GetBooking(c.UserContext(), act, id)
	if err != nil {
		return respError(c, h.Log, err)
	}
	return respSuccess(c, fiber.StatusOK, booking)
}

func (h *Handler) GetBookingByReference(c *fiber.Ctx) error {
	act, err := actor(c)
	if err != nil {
		return respError(c, h.Log, err)
	}

	booking, err := h.Bookings.GetBookingByReference(c.UserContext(), act, c.Params("reference"))
	if err != nil {
		return respError(c, h.Log, err)
	}
	return respSuccess(c, fiber.StatusOK, booking)
}

func (h *Handler) ListMyBookings(c *fiber.Ctx) error {
	act, err := actor(c)
	if err != nil {
		return respError(c, h.Log, err)
	}

	bookings, err := h.Bookings.ListRenterBookings(c.UserContext(), act, act.UserID)
	if err != nil {
		return respError(c, h.Log, err)
	}
	return respSuccess(c, fiber.StatusOK, bookings)
}

func (h *Handler) ListOwnerBookings(c *fiber.Ctx) error {
	act, err := actor(c)
	if err != nil {
		return respError(c, h.Log, err)
	}

	bookings, err := h.Bookings.ListOwnerBookings(c.UserContext(), act, act.UserID)
	if err != nil {
		return respError(c, h.Log, err)
	}
	return respSuccess(c, fiber.StatusOK, bookings)
}

func (h *Handler) ConfirmBooking(c *fiber.Ctx) error {
	act, err := actor(c)
	if err != nil {
		return respError(c, h.Log, err)
	}
	id, err := bookingID(c)
	if err != nil {
		return respError(c, h.Log, err)
	}

	var req ConfirmBookingRequest
	if err := c.BodyParser(&req); err != nil && len(c.Body()) > 0 {
		return respError(c, h.Log, fmt.Errorf("%w: malformed request body", model.ErrValidationFailed))
	}
	if err := h.Validator.Struct(req); err != nil {
		return respError(c, h.Log, fmt.Errorf("%w: %s", model.ErrValidationFailed, err.Error()))
	}

	booking, err := h.Bookings.ConfirmBooking(c.UserContext(), act, id, req.OwnerResponse)
	if err != nil {
		return respError(c, h.Log, err)
	}
	return respSuccess(c, fiber.StatusOK, booking)
}

func (h *Handler) RejectBooking(c *fiber.Ctx) error {
	act, err := actor(c)
	if err != nil {
		return respError(c, h.Log, err)
	}
	id, err := bookingID(c)
	if err != nil {
		return respError(c, h.Log, err)
	}

	var req RejectBookingRequest
	if err := c.BodyParser(&req); err != nil {
		return respError(c, h.Log, fmt.Errorf("%w: malformed request body", model.ErrValidationFailed))
	}
	if err := h.Validator.Struct(req); err != nil {
		return respError(c, h.Log, fmt.Errorf("%w: %s", model.ErrValidationFailed, err.Error()))
	}

	booking, err := h.Bookings.RejectBooking(c.UserContext(), act, id, req.Reason, req.OwnerResponse)
	if err != nil {
		return respError(c, h.Log, err)
	}
	return respSuccess(c, fiber.StatusOK, booking)
}

func (h *Handler) CancelBooking(c *fiber.Ctx) error {
	act, err := actor(c)
	if err != nil {
		return respError(c, h.Log, err)
	}
	id, err := bookingID(c)
	if err != nil {
		return respError(c, h.Log, err)
	}

	var req CancelBookingRequest
	if err := c.BodyParser(&req); err != nil {
		return respError(c, h.Log, fmt.Errorf("%w: malformed request body", model.ErrValidationFailed))
	}
	if err := h.Validator.Struct(req); err != nil {
		return respError(c, h.Log, fmt.Errorf("%w: %s", model.ErrValidationFailed, err.Error()))
	}

	booking, err := h.Bookings.CancelBooking(c.UserContext(), act, id, service.CancelBookingInput{
		Reason:          req.Reason,
		CancellationFee: req.CancellationFee,
	})
	if err != nil {
		return respError(c, h.Log, err)
	}
	return respSuccess(c, fiber.StatusOK, booking)
}

func (h *Handler) BlockedRanges(c *fiber.Ctx) error {
	propertyID, err := strconv.ParseInt(c.Params("propertyId"), 10, 64)
	if err != nil {
		return respError(c, h.Log, fmt.Errorf("%w: invalid property id", model.ErrValidationFailed))
	}

	from, err1 := time.Parse("2006-01-02", c.Query("from"))
	to, err2 := time.Parse("2006-01-02", c.Query("to"))
	if err1 != nil || err2 != nil {
		return respError(c, h.Log, fmt.Errorf("%w: from and to must be YYYY-MM-DD", model.ErrValidationFailed))
	}

	blocks, err := h.Availability.BlockedRanges(c.UserContext(), propertyID, from, to)
	if err != nil {
		return respError(c, h.Log, err)
	}
	return respSuccess(c, fiber.StatusOK, blocks)
}

func (h *Handler) CreateBlock(c *fiber.Ctx) error {
	act, err := actor(c)
	if err != nil {
		return respError(c, h.Log, err)
	}
	propertyID, err := strconv.ParseInt(c.Params("propertyId"), 10, 64)
	if err != nil {
		return respError(c, h.Log, fmt.Errorf("%w: invalid property id", model.ErrValidationFailed))
	}

	var req CreateBlockRequest
	if err := c.BodyParser(&req); err != nil {
		return respError(c, h.Log, fmt.Errorf("%w: malformed request body", model.ErrValidationFailed))
	}
	if err := h.Validator.Struct(req); err != nil {
		return respError(c, h.Log, fmt.Errorf("%w: %s", model.ErrValidationFailed, err.Error()))
	}

	block, err := h.Availability.CreateOwnerBlock(c.UserContext(), act, service.CreateBlockInput{
		PropertyID:      propertyID,
		UnavailableFrom: parseDate(req.UnavailableFrom),
		UnavailableTo:   parseDate(req.UnavailableTo),
		Reason:          model.BlockReason(req.Reason),
	})
	if err != nil {
		return respError(c, h.Log, err)
	}
	return respSuccess(c, fiber.StatusCreated, block)
}

func (h *Handler) DeleteBlock(c *fiber.Ctx) error {
	act, err := actor(c)
	if err != nil {
		return respError(c, h.Log, err)
	}
	blockID, err := strconv.ParseInt(c.Params("blockId"), 10, 64)
	if err != nil {
		return respError(c, h.Log, fmt.Errorf("%w: invalid block id", model.ErrValidationFailed))
	}

	if err := h.Availability.RemoveOwnerBlock(c.UserContext(), act, blockID); err != nil {
		return respError(c, h.Log, err)
	}
	return respSuccess(c, fiber.StatusOK, fiber.Map{"deleted": blockID})
}

func (h *Handler) CreatePaymentIntent(c *fiber.Ctx) error {
	act, err := actor(c)
	if err != nil {
		return respError(c, h.Log, err)
	}
	id, err := bookingID(c)
	if err != nil {
		return respError(c, h.Log, err)
	}

	var req PaymentIntentRequest
	if err := c.BodyParser(&req); err != nil {
		return respError(c, h.Log, fmt.Errorf("%w: malformed request body", model.ErrValidationFailed))
	}
	if err := h.Validator.Struct(req); err != nil {
		return respError(c, h.Log, fmt.Errorf("%w: %s", model.ErrValidationFailed, err.Error()))
	}

	transaction, err := h.Settlement.CreatePaymentIntent(c.UserContext(), act, id, req.PaymentMethod)
	if err != nil {
		return respError(c, h.Log, err)
	}
	return respSuccess(c, fiber.StatusCreated, transaction)
}

func (h *Handler) Refund(c *fiber.Ctx) error {
	act, err := actor(c)
	if err != nil {
		return respError(c, h.Log, err)
	}
	id, err := bookingID(c)
	if err != nil {
		return respError(c, h.Log, err)
	}

	var req RefundRequest
	if err := c.BodyParser(&req); err != nil {
		return respError(c, h.Log, fmt.Errorf("%w: malformed request body", model.ErrValidationFailed))
	}
	if err := h.Validator.Struct(req); err != nil {
		return respError(c, h.Log, fmt.Errorf("%w: %s", model.ErrValidationFailed, err.Error()))
	}

	transaction, err := h.Settlement.Refund(c.UserContext(), act, id, req.Amount, req.Reason, req.ApprovedBy)
	if err != nil {
		return respError(c, h.Log, err)
	}
	return respSuccess(c, fiber.StatusCreated, transaction)
}

func (h *Handler) BookingTransactions(c *fiber.Ctx) error {
	act, err := actor(c)
	if err != nil {
		return respError(c, h.Log, err)
	}
	id, err := bookingID(c)
	if err != nil {
		return respError(c, h.Log, err)
	}

	transactions, err := h.Settlement.BookingTransactions(c.UserContext(), act, id)
	if err != nil {
		return respError(c, h.Log, err)
	}
	return respSuccess(c, fiber.StatusOK, transactions)
}

// SettlementWebhook receives gateway outcomes. A malformed payload returns a
// 4xx so the gateway retries later; reconciliation itself is idempotent.
func (h *Handler) SettlementWebhook(c *fiber.Ctx) error {
	var req SettlementWebhookRequest
	if err := c.BodyParser(&req); err != nil {
		return respError(c, h.Log, fmt.Errorf("%w: malformed webhook payload", model.ErrValidationFailed))
	}
	if err := h.Validator.Struct(req); err != nil {
		return respError(c, h.Log, fmt.Errorf("%w: %s", model.ErrValidationFailed, err.Error()))
	}

	transaction, err := h.Settlement.ConfirmPayment(c.UserContext(), req.TransactionReference, service.PaymentOutcome{
		Succeeded:            req.Status == "completed",
		GatewayTransactionID: req.GatewayTransactionID,
		Amount:               req.Amount,
		FailureReason:        req.FailureReason,
	})
	if err != nil {
		return respError(c, h.Log, err)
	}
	return respSuccess(c, fiber.StatusOK, transaction)
}

func bookingID(c *fiber.Ctx) (int64, error) {
	id, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: invalid booking id", model.ErrValidationFailed)
	}
	return id, nil
}
