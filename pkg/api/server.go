package api

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/travigo/livetrack/pkg/api/routes"
)

func NewApp(publisher routes.EventPublisher, querier routes.TrajectoryQuerier, defaultWindow time.Duration) *fiber.App {
	webApp := fiber.New(fiber.Config{
		DisableStartupMessage: true,
	})
	webApp.Use(NewLogger())

	group := webApp.Group("/core")

	group.Get("version", routes.APIVersion)

	routes.TrackingRouter(group.Group("/tracking"), publisher)

	routes.StatusRouter(group.Group("/status"), querier, defaultWindow)
	routes.PositionsRouter(group.Group("/positions"), querier, defaultWindow)

	return webApp
}

func SetupServer(listen string, publisher routes.EventPublisher, querier routes.TrajectoryQuerier, defaultWindow time.Duration) error {
	return NewApp(publisher, querier, defaultWindow).Listen(listen)
}
