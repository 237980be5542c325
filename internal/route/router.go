package route

import (
	"github.com/gofiber/fiber/v2"

	"github.com/stayloop/booking-engine/internal/handler"
)

func Initialize(app *fiber.App, h *handler.Handler) *fiber.App {

	// health check
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusOK).SendString("OK")
	})

	api := app.Group("/api")

	v1 := api.Group("/v1")
	v1.Post("/bookings", h.CreateBooking)
	v1.Get("/bookings", h.ListMyBookings)
	v1.Get("/bookings/owner", h.ListOwnerBookings)
	v1.Get("/bookings/reference/:reference", h.GetBookingByReference)
	v1.Get("/bookings/:id", h.GetBooking)
	v1.Post("/bookings/:id/confirm", h.ConfirmBooking)
	v1.Post("/bookings/:id/reject", h.RejectBooking)
	v1.Post("/bookings/:id/cancel", h.CancelBooking)
	v1.Post("/bookings/:id/payment", h.CreatePaymentIntent)
	v1.Post("/bookings/:id/refund", h.Refund)
	v1.Get("/bookings/:id/transactions", h.BookingTransactions)

	v1.Get("/properties/:propertyId/blocked", h.BlockedRanges)
	v1.Post("/properties/:propertyId/blocks", h.CreateBlock)
	v1.Delete("/properties/:propertyId/blocks/:blockId", h.DeleteBlock)

	private := api.Group("/private")
	private.Post("/settlement/webhook", h.SettlementWebhook)

	return app
}
