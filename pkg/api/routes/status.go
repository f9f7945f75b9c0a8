package routes

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/liip/sheriff"
	"github.com/rs/zerolog/log"
	"github.com/travigo/livetrack/pkg/ctdf"
	"github.com/travigo/livetrack/pkg/trajectory"

	iso8601 "github.com/senseyeio/duration"
)

type TrajectoryQuerier interface {
	Query(ctx context.Context, identity ctdf.VehicleIdentity, window time.Duration) (*ctdf.Trajectory, error)
	Positions(ctx context.Context, identity ctdf.VehicleIdentity, window time.Duration) ([]*ctdf.PositionRecord, error)
}

func StatusRouter(router fiber.Router, querier TrajectoryQuerier, defaultWindow time.Duration) {
	router.Get("/:transport_mode/:operator_id/:vehicle_number", getStatus(querier, defaultWindow))
}

func PositionsRouter(router fiber.Router, querier TrajectoryQuerier, defaultWindow time.Duration) {
	router.Get("/:transport_mode/:operator_id/:vehicle_number", listPositions(querier, defaultWindow))
}

func vehicleFromParams(c *fiber.Ctx) ctdf.VehicleIdentity {
	return ctdf.VehicleIdentity{
		TransportMode: c.Params("transport_mode"),
		OperatorID:    c.Params("operator_id"),
		VehicleNumber: c.Params("vehicle_number"),
	}
}

// parseWindow reads the optional ISO-8601 window query parameter, eg. PT2M
func parseWindow(c *fiber.Ctx, defaultWindow time.Duration) (time.Duration, error) {
	windowQuery := c.Query("window")
	if windowQuery == "" {
		return defaultWindow, nil
	}

	windowDuration, err := iso8601.ParseISO8601(windowQuery)
	if err != nil {
		return 0, err
	}

	now := time.Now()
	window := windowDuration.Shift(now).Sub(now)
	if window <= 0 {
		return 0, errors.New("window must be positive")
	}

	return window, nil
}

func getStatus(querier TrajectoryQuerier, defaultWindow time.Duration) fiber.Handler {
	return func(c *fiber.Ctx) error {
		window, err := parseWindow(c, defaultWindow)
		if err != nil {
			c.SendStatus(fiber.StatusBadRequest)
			return c.JSON(fiber.Map{
				"error": "Window must be a positive ISO-8601 duration",
			})
		}

		vehicle := vehicleFromParams(c)
		path, err := querier.Query(c.Context(), vehicle, window)

		switch {
		case errors.Is(err, trajectory.ErrNotFound):
			c.Status(fiber.StatusNotFound)
			return c.JSON(ctdf.NewTrajectory(nil))
		case err != nil:
			log.Error().Err(err).Str("vehicle", vehicle.String()).Msg("Failed to query trajectory")

			c.Status(fiber.StatusInternalServerError)
			return c.JSON(fiber.Map{
				"error": err.Error(),
			})
		}

		return c.JSON(path)
	}
}

func listPositions(querier TrajectoryQuerier, defaultWindow time.Duration) fiber.Handler {
	return func(c *fiber.Ctx) error {
		window, err := parseWindow(c, defaultWindow)
		if err != nil {
			c.SendStatus(fiber.StatusBadRequest)
			return c.JSON(fiber.Map{
				"error": "Window must be a positive ISO-8601 duration",
			})
		}

		vehicle := vehicleFromParams(c)
		records, err := querier.Positions(c.Context(), vehicle, window)

		switch {
		case errors.Is(err, trajectory.ErrNotFound):
			c.Status(fiber.StatusNotFound)
			return c.JSON(fiber.Map{
				"error": "No recent positions for this vehicle",
			})
		case err != nil:
			log.Error().Err(err).Str("vehicle", vehicle.String()).Msg("Failed to query positions")

			c.Status(fiber.StatusInternalServerError)
			return c.JSON(fiber.Map{
				"error": err.Error(),
			})
		}

		groups := []string{"basic"}
		if c.QueryBool("detailed") {
			groups = append(groups, "detailed")
		}

		recordsReduced, err := sheriff.Marshal(&sheriff.Options{
			Groups: groups,
		}, records)
		if err != nil {
			c.Status(fiber.StatusInternalServerError)
			return c.JSON(fiber.Map{
				"error": "Sherrif could not reduce positions",
			})
		}

		return c.JSON(recordsReduced)
	}
}
