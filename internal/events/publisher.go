package events

import (
	"encoding/json"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"go.uber.org/zap"

	"github.com/stayloop/booking-engine/internal/model"
)

const TopicBookingEvents = "booking.events"

// BookingEvent is the payload published on every booking lifecycle change:
// created, confirmed, rejected, cancelled, expired, completed.
type BookingEvent struct {
	Event            string    `json:"event"`
	BookingID        int64     `json:"booking_id"`
	BookingReference string    `json:"booking_reference"`
	PropertyID       int64     `json:"property_id"`
	RenterID         int64     `json:"renter_id"`
	OwnerID          int64     `json:"owner_id"`
	Status           string    `json:"status"`
	OccurredAt       time.Time `json:"occurred_at"`
}

// NewGoChannel builds the in-process pub/sub shared by the publisher and the
// notification consumer.
func NewGoChannel(logger watermill.LoggerAdapter) *gochannel.GoChannel {
	return gochannel.NewGoChannel(gochannel.Config{}, logger)
}

type Publisher struct {
	pub    message.Publisher
	clock  model.Clock
	logger *zap.Logger
}

func NewPublisher(pub message.Publisher, clock model.Clock, logger *zap.Logger) *Publisher {
	return &Publisher{
		pub:    pub,
		clock:  clock,
		logger: logger,
	}
}

// BookingEvent publishes after the owning transaction committed. Delivery is
// fire-and-forget: a failed publish is logged and never fails the mutation.
func (p *Publisher) BookingEvent(event string, b *model.Booking) {
	payload, err := json.Marshal(BookingEvent{
		Event:            event,
		BookingID:        b.ID,
		BookingReference: b.BookingReference,
		PropertyID:       b.PropertyID,
		RenterID:         b.RenterID,
		OwnerID:          b.OwnerID,
		Status:           string(b.Status),
		OccurredAt:       p.clock.Now(),
	})
	if err != nil {
		p.logger.Error("marshal booking event", zap.String("event", event), zap.Error(err))
		return
	}

	msg := message.NewMessage(watermill.NewUUID(), payload)
	if err := p.pub.Publish(TopicBookingEvents, msg); err != nil {
		p.logger.Warn("publish booking event failed",
			zap.String("event", event),
			zap.Int64("booking_id", b.ID),
			zap.Error(err),
		)
	}
}
