package tracking

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SessionsStarted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "livetrack_sessions_started_total",
		Help: "Tracking sessions started",
	})
	SessionsFinished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "livetrack_sessions_finished_total",
		Help: "Tracking sessions terminated by reason",
	}, []string{"reason"})
	SessionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "livetrack_sessions_active",
		Help: "Tracking sessions currently running",
	})
	SubscriptionFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "livetrack_subscription_failures_total",
		Help: "Feed subscriptions the broker did not acknowledge",
	})
	PositionsReceived = promauto.NewCounter(prometheus.CounterOpts{
		Name: "livetrack_positions_received_total",
		Help: "Feed messages delivered to tracking sessions",
	})
	PositionsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "livetrack_positions_dropped_total",
		Help: "Feed messages discarded for lacking a usable location",
	})
	PositionsOverflowed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "livetrack_positions_overflowed_total",
		Help: "Positions discarded because a session's write buffer was full",
	})
	PositionsWritten = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "livetrack_positions_written_total",
		Help: "Positions accepted by a sink",
	}, []string{"sink"})
	SinkFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "livetrack_sink_failures_total",
		Help: "Positions lost because a sink write failed",
	}, []string{"sink"})
	QueueProvisionFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "livetrack_queue_provision_failures_total",
		Help: "Per vehicle queues that could not be provisioned",
	})
)
