package tracking

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/rs/zerolog/log"
	"github.com/travigo/livetrack/pkg/ctdf"
	"github.com/travigo/livetrack/pkg/positions"
)

// Sink is where a session routes the positions it captures.
// Accept may be called concurrently for the same session.
type Sink interface {
	Name() string
	Open(ctx context.Context) error
	Accept(ctx context.Context, record *ctdf.PositionRecord) error
	Close() error
}

// SinkFactory creates the session scoped sink for a vehicle
type SinkFactory func(identity ctdf.VehicleIdentity) Sink

// StoreSink writes every position as a new row of the position store
type StoreSink struct {
	Store positions.Store
}

func NewStoreSinkFactory(store positions.Store) SinkFactory {
	return func(ctdf.VehicleIdentity) Sink {
		return &StoreSink{Store: store}
	}
}

func (s *StoreSink) Name() string { return "store" }

func (s *StoreSink) Open(context.Context) error { return nil }

func (s *StoreSink) Accept(ctx context.Context, record *ctdf.PositionRecord) error {
	return s.Store.InsertPosition(ctx, record)
}

func (s *StoreSink) Close() error { return nil }

// QueueSink publishes the original position payloads to a queue named after the vehicle.
// If the queue cannot be provisioned the sink stays closed and rejects everything it is given.
type QueueSink struct {
	Queue      positions.QueueService
	QueueName  string
	Attributes positions.QueueAttributes

	provisioned atomic.Bool
}

func NewQueueSinkFactory(queue positions.QueueService, attributes positions.QueueAttributes) SinkFactory {
	return func(identity ctdf.VehicleIdentity) Sink {
		return &QueueSink{
			Queue:      queue,
			QueueName:  identity.StorageKey(),
			Attributes: attributes,
		}
	}
}

func (s *QueueSink) Name() string { return "queue" }

func (s *QueueSink) Open(ctx context.Context) error {
	created, err := s.Queue.CreateQueue(ctx, s.QueueName, s.Attributes)
	if err != nil {
		QueueProvisionFailures.Inc()
		log.Error().Err(err).Str("queue", s.QueueName).Msg("Failed to provision vehicle queue")
		return err
	}

	if created {
		log.Info().
			Str("queue", s.QueueName).
			Dur("retention", s.Attributes.Retention).
			Dur("visibility", s.Attributes.VisibilityTimeout).
			Msg("Provisioned vehicle queue")
	}

	s.provisioned.Store(true)

	return nil
}

func (s *QueueSink) Accept(ctx context.Context, record *ctdf.PositionRecord) error {
	if !s.provisioned.Load() {
		return fmt.Errorf("queue %s was never provisioned: %w", s.QueueName, ErrSinkUnavailable)
	}

	return s.Queue.SendMessage(ctx, s.QueueName, record.Payload)
}

func (s *QueueSink) Close() error { return nil }
