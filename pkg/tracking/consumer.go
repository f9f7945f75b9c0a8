package tracking

import (
	"encoding/json"
	"errors"

	"github.com/adjust/rmq/v5"
	"github.com/rs/zerolog/log"
	"github.com/travigo/livetrack/pkg/ctdf"
)

const QueueName = "tracking-queue"

// TriggerConsumer turns tracking events from the notification bus into session starts and cancellations
type TriggerConsumer struct {
	Manager *Manager
}

func NewTriggerConsumer(manager *Manager) *TriggerConsumer {
	return &TriggerConsumer{Manager: manager}
}

func (c *TriggerConsumer) Consume(batch rmq.Deliveries) {
	for _, delivery := range batch {
		if c.handle(delivery.Payload()) {
			if err := delivery.Ack(); err != nil {
				log.Error().Err(err).Msg("Failed to ack tracking event")
			}
		} else {
			if err := delivery.Reject(); err != nil {
				log.Error().Err(err).Msg("Failed to reject tracking event")
			}
		}
	}
}

// handle returns false for events that can never be processed
func (c *TriggerConsumer) handle(payload string) bool {
	var event ctdf.TrackingEvent
	if err := json.Unmarshal([]byte(payload), &event); err != nil {
		log.Error().Err(err).Msg("Failed to decode tracking event")
		return false
	}

	switch event.Type {
	case ctdf.EventTypeTrackingRequested:
		_, err := c.Manager.Start(event.Vehicle)

		var validationErr *ctdf.ValidationError
		if errors.As(err, &validationErr) {
			log.Error().Err(err).Msg("Invalid tracking request")
			return false
		} else if err != nil && !errors.Is(err, ErrAlreadyTracking) {
			log.Error().Err(err).Str("vehicle", event.Vehicle.String()).Msg("Failed to start tracking")
		}

		return true
	case ctdf.EventTypeTrackingCancelled:
		if err := event.Vehicle.Validate(); err != nil {
			log.Error().Err(err).Msg("Invalid tracking cancellation")
			return false
		}

		cancelled := c.Manager.Cancel(event.Vehicle)
		log.Info().Str("vehicle", event.Vehicle.StorageKey()).Int("sessions", cancelled).Msg("Cancelled tracking")

		return true
	default:
		log.Error().Str("type", string(event.Type)).Msg("Unknown tracking event type")
		return false
	}
}
