package tracking

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/travigo/livetrack/pkg/elastic_client"
)

const (
	sessionEventStarted  = "Started"
	sessionEventFinished = "Finished"
)

type SessionElasticEvent struct {
	Timestamp time.Time

	SessionID string
	Event     string

	VehicleKey    string
	TransportMode string
	OperatorID    string
	VehicleNumber string

	Sink string

	Reason string `json:",omitempty"`
	Error  string `json:",omitempty"`

	DurationSeconds   float64
	PositionsAccepted int64
	SinkFailures      int64
	PositionsDropped  int64
}

func indexSessionEvent(session *Session, eventType string) {
	currentTime := session.options.Now()
	yearNumber, weekNumber := currentTime.ISOWeek()
	indexName := fmt.Sprintf("livetrack-session-events-%d-%d", yearNumber, weekNumber)

	stats := session.Stats()

	event := SessionElasticEvent{
		Timestamp: currentTime,

		SessionID: session.ID,
		Event:     eventType,

		VehicleKey:    session.Identity.StorageKey(),
		TransportMode: session.Identity.TransportMode,
		OperatorID:    session.Identity.OperatorID,
		VehicleNumber: session.Identity.VehicleNumber,

		Sink: session.sink.Name(),

		DurationSeconds:   currentTime.Sub(session.StartedAt).Seconds(),
		PositionsAccepted: stats.Accepted,
		SinkFailures:      stats.Failed,
		PositionsDropped:  stats.Dropped,
	}

	if eventType == sessionEventFinished {
		event.Reason = string(session.result.Reason)
		if session.result.Err != nil {
			event.Error = session.result.Err.Error()
		}
	}

	elasticEvent, _ := json.Marshal(event)

	elastic_client.IndexRequest(indexName, bytes.NewReader(elasticEvent))
}
