package routes

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"
	"github.com/travigo/livetrack/pkg/ctdf"
)

type EventPublisher interface {
	Publish(ctx context.Context, eventType ctdf.EventType, vehicle ctdf.VehicleIdentity) error
}

func TrackingRouter(router fiber.Router, publisher EventPublisher) {
	router.Post("/", publishTrackingEvent(publisher, ctdf.EventTypeTrackingRequested, "Started tracking the vehicle"))
	router.Delete("/", publishTrackingEvent(publisher, ctdf.EventTypeTrackingCancelled, "Stopped tracking the vehicle"))
}

func publishTrackingEvent(publisher EventPublisher, eventType ctdf.EventType, successMessage string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var vehicle ctdf.VehicleIdentity

		// The body is JSON regardless of the content type the client sent
		if err := json.Unmarshal(c.Body(), &vehicle); err != nil {
			log.Error().Err(err).Msg("Validation Failed")
			return c.Status(fiber.StatusBadRequest).SendString("Missing a required field")
		}

		if err := vehicle.Validate(); err != nil {
			var validationErr *ctdf.ValidationError
			if errors.As(err, &validationErr) {
				log.Error().Strs("fields", validationErr.Fields).Msg("Validation Failed")
			}

			return c.Status(fiber.StatusBadRequest).SendString("Missing a required field")
		}

		if err := publisher.Publish(c.Context(), eventType, vehicle); err != nil {
			log.Error().Err(err).Str("vehicle", vehicle.String()).Msg("Failed to publish tracking event")

			c.Status(fiber.StatusInternalServerError)
			return c.JSON(fiber.Map{
				"error": err.Error(),
			})
		}

		return c.SendString(successMessage)
	}
}
