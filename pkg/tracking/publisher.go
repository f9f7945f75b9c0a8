package tracking

import (
	"context"
	"encoding/json"
	"time"

	"github.com/adjust/rmq/v5"
	"github.com/travigo/livetrack/pkg/ctdf"
)

// QueuePublisher puts tracking events on the notification bus
type QueuePublisher struct {
	Queue rmq.Queue
}

func NewQueuePublisher(connection rmq.Connection) (*QueuePublisher, error) {
	queue, err := connection.OpenQueue(QueueName)
	if err != nil {
		return nil, err
	}

	return &QueuePublisher{Queue: queue}, nil
}

func (p *QueuePublisher) Publish(_ context.Context, eventType ctdf.EventType, vehicle ctdf.VehicleIdentity) error {
	event := ctdf.TrackingEvent{
		Type:      eventType,
		Timestamp: time.Now(),
		Vehicle:   vehicle,
	}

	eventBytes, err := json.Marshal(event)
	if err != nil {
		return err
	}

	return p.Queue.PublishBytes(eventBytes)
}
