package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ThreeDotsLabs/watermill/message"
	"go.uber.org/zap"
)

// Notifier consumes the booking event feed on behalf of the external
// notification service. The engine never waits for delivery.
type Notifier struct {
	sub    message.Subscriber
	logger *zap.Logger
}

func NewNotifier(sub message.Subscriber, logger *zap.Logger) *Notifier {
	return &Notifier{sub: sub, logger: logger}
}

// Run blocks consuming events until the context is cancelled.
func (n *Notifier) Run(ctx context.Context) error {
	messages, err := n.sub.Subscribe(ctx, TopicBookingEvents)
	if err != nil {
		return fmt.Errorf("subscribe to %s: %w", TopicBookingEvents, err)
	}

	for msg := range messages {
		var event BookingEvent
		if err := json.Unmarshal(msg.Payload, &event); err != nil {
			n.logger.Warn("malformed booking event", zap.Error(err))
			msg.Ack()
			continue
		}

		n.logger.Info("notification dispatched",
			zap.String("event", event.Event),
			zap.String("booking_reference", event.BookingReference),
			zap.Int64("renter_id", event.RenterID),
			zap.Int64("owner_id", event.OwnerID),
		)
		msg.Ack()
	}

	return nil
}
