package consumer

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/adjust/rmq/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

const StatsAddress = ":3333"

// HealthCheck reports whether one backing service is reachable
type HealthCheck func(ctx context.Context) error

type StatsServerHandler struct {
	redisConnection rmq.Connection
}

func NewStatsHandler(connection rmq.Connection) *StatsServerHandler {
	return &StatsServerHandler{redisConnection: connection}
}

func (handler *StatsServerHandler) ServeHTTP(writer http.ResponseWriter, request *http.Request) {
	// get redis queue stats
	layout := request.FormValue("layout")
	refresh := request.FormValue("refresh")

	queues, err := handler.redisConnection.GetOpenQueues()
	if err != nil {
		http.Error(writer, err.Error(), http.StatusInternalServerError)
		return
	}

	stats, err := handler.redisConnection.CollectStats(queues)
	if err != nil {
		http.Error(writer, err.Error(), http.StatusInternalServerError)
		return
	}

	fmt.Fprint(writer, stats.GetHtml(layout, refresh))
}

type HealthHandler struct {
	checks map[string]HealthCheck
}

func NewHealthHandler(checks map[string]HealthCheck) *HealthHandler {
	return &HealthHandler{checks: checks}
}

func (handler *HealthHandler) ServeHTTP(writer http.ResponseWriter, request *http.Request) {
	ctx, cancel := context.WithTimeout(request.Context(), 5*time.Second)
	defer cancel()

	for name, check := range handler.checks {
		if err := check(ctx); err != nil {
			writer.WriteHeader(http.StatusInternalServerError)
			fmt.Fprintf(writer, "%s: %s", name, err)

			return
		}
	}

	writer.WriteHeader(http.StatusOK)
	fmt.Fprint(writer, "OK")
}

func NewStatsMux(connection rmq.Connection, queueName string, checks map[string]HealthCheck) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle(fmt.Sprintf("/%s/stats", queueName), NewStatsHandler(connection))
	mux.Handle("/health", NewHealthHandler(checks))
	mux.Handle("/metrics", promhttp.Handler())

	return mux
}

// StartStatsServer serves queue stats, health and prometheus metrics in the background
func StartStatsServer(connection rmq.Connection, queueName string, checks map[string]HealthCheck) {
	mux := NewStatsMux(connection, queueName, checks)

	go func() {
		log.Info().Msgf("Stats server listening on http://localhost%s/%s/stats", StatsAddress, queueName)
		if err := http.ListenAndServe(StatsAddress, mux); err != nil {
			log.Error().Err(err).Msg("Stats server stopped")
		}
	}()
}
