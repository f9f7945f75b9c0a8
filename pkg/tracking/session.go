package tracking

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc/pool"
	"github.com/travigo/livetrack/pkg/ctdf"
	"github.com/travigo/livetrack/pkg/hfp"
)

const FinishedMessage = "Finished tracking"

var ErrSinkUnavailable = errors.New("sink unavailable")

type State int32

const (
	StatePending State = iota
	StateSubscribing
	StateActive
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "Pending"
	case StateSubscribing:
		return "Subscribing"
	case StateActive:
		return "Active"
	case StateTerminated:
		return "Terminated"
	default:
		return "Unknown"
	}
}

type Reason string

const (
	ReasonDeadline  Reason = "deadline"
	ReasonCancelled Reason = "cancelled"
	ReasonFailed    Reason = "failed"
)

// Result is reported once a session terminates.
// It says nothing about how many positions were captured.
type Result struct {
	Vehicle ctdf.VehicleIdentity
	Reason  Reason
	Message string
	Err     error
}

func (r Result) Success() bool {
	return r.Err == nil
}

type SubscriptionError struct {
	Topic string
	Err   error
}

func (e *SubscriptionError) Error() string {
	return fmt.Sprintf("subscribing to %s: %s", e.Topic, e.Err)
}

func (e *SubscriptionError) Unwrap() error {
	return e.Err
}

// Subscriber is the feed transport a session subscribes through
type Subscriber interface {
	Subscribe(ctx context.Context, topic string, handler hfp.MessageHandler) (hfp.Subscription, error)
}

type SessionOptions struct {
	Duration            time.Duration
	WriteTimeout        time.Duration
	MaxConcurrentWrites int
	// WriteBuffer bounds the positions waiting for a write, newer positions are discarded once it is full
	WriteBuffer int

	Now func() time.Time
}

type SessionStats struct {
	Accepted   int64
	Failed     int64
	Dropped    int64
	Overflowed int64
}

// Session tracks one vehicle for a bounded time.
// It moves Pending -> Subscribing -> Active -> Terminated and terminates on whichever comes
// first of its deadline, Cancel or cancellation of the context passed to Run.
type Session struct {
	ID        string
	Identity  ctdf.VehicleIdentity
	Topic     string
	StartedAt time.Time
	Deadline  time.Time

	subscriber Subscriber
	sink       Sink
	options    SessionOptions
	logger     zerolog.Logger

	mutex        sync.RWMutex
	state        State
	subscription hfp.Subscription

	pending chan *ctdf.PositionRecord
	drained chan struct{}
	writes  *pool.Pool

	cancel        chan struct{}
	cancelOnce    sync.Once
	terminateOnce sync.Once
	done          chan struct{}
	result        Result

	accepted atomic.Int64
	failed   atomic.Int64
	dropped    atomic.Int64
	overflowed atomic.Int64
}

func NewSession(identity ctdf.VehicleIdentity, subscriber Subscriber, sink Sink, options SessionOptions) *Session {
	if options.Now == nil {
		options.Now = time.Now
	}
	if options.MaxConcurrentWrites < 1 {
		options.MaxConcurrentWrites = 1
	}
	if options.WriteBuffer < 1 {
		options.WriteBuffer = 1
	}

	id := uuid.NewString()
	topic := identity.TopicPattern()
	startedAt := options.Now()

	return &Session{
		ID:        id,
		Identity:  identity,
		Topic:     topic,
		StartedAt: startedAt,
		Deadline:  startedAt.Add(options.Duration),

		subscriber: subscriber,
		sink:       sink,
		options:    options,
		logger: log.With().
			Str("session", id).
			Str("vehicle", identity.StorageKey()).
			Str("topic", topic).
			Logger(),

		state:   StatePending,
		pending: make(chan *ctdf.PositionRecord, options.WriteBuffer),
		drained: make(chan struct{}),
		writes:  pool.New().WithMaxGoroutines(options.MaxConcurrentWrites),
		cancel:  make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// Run blocks until the session terminates and returns its result.
// Only the first call runs the session, later calls wait for and return the same result.
func (s *Session) Run(ctx context.Context) Result {
	s.mutex.Lock()
	if s.state != StatePending {
		s.mutex.Unlock()
		<-s.done
		return s.result
	}
	s.state = StateSubscribing
	s.mutex.Unlock()

	SessionsStarted.Inc()
	SessionsActive.Inc()
	defer SessionsActive.Dec()

	go s.drain()

	indexSessionEvent(s, sessionEventStarted)
	s.logger.Info().Time("deadline", s.Deadline).Str("sink", s.sink.Name()).Msg("Starting tracking session")

	timer := time.NewTimer(s.Deadline.Sub(s.options.Now()))
	defer timer.Stop()

	if err := s.sink.Open(ctx); err != nil {
		s.logger.Warn().Err(err).Msg("Continuing without a working sink")
	}

	if reason, err := s.subscribe(ctx); reason != "" {
		return s.terminate(reason, err)
	}

	select {
	case <-timer.C:
		return s.terminate(ReasonDeadline, nil)
	case <-s.cancel:
		return s.terminate(ReasonCancelled, nil)
	case <-ctx.Done():
		return s.terminate(ReasonCancelled, nil)
	}
}

// subscribe returns a non empty reason when the session has to terminate without becoming active
func (s *Session) subscribe(ctx context.Context) (Reason, error) {
	subscribeCtx, stop := context.WithDeadline(ctx, s.Deadline)
	defer stop()

	go func() {
		select {
		case <-s.cancel:
			stop()
		case <-subscribeCtx.Done():
		}
	}()

	subscription, err := s.subscriber.Subscribe(subscribeCtx, s.Topic, s.handleMessage)
	if err != nil {
		if s.Cancelled() || ctx.Err() != nil {
			return ReasonCancelled, nil
		}

		SubscriptionFailures.Inc()
		return ReasonFailed, &SubscriptionError{Topic: s.Topic, Err: err}
	}

	s.mutex.Lock()
	s.subscription = subscription
	s.state = StateActive
	s.mutex.Unlock()

	s.logger.Debug().Msg("Subscribed to feed")

	return "", nil
}

// handleMessage runs on the transport's delivery goroutine for every message on the topic.
// It never waits for the sink, a full write buffer discards the position.
func (s *Session) handleMessage(_ string, payload []byte) {
	PositionsReceived.Inc()

	record, ok := hfp.Normalize(payload, s.Identity, s.options.Now())
	if !ok {
		PositionsDropped.Inc()
		s.dropped.Add(1)
		return
	}

	s.mutex.RLock()
	defer s.mutex.RUnlock()

	if s.state == StateTerminated {
		return
	}

	select {
	case s.pending <- record:
	default:
		PositionsOverflowed.Inc()
		s.overflowed.Add(1)
	}
}

// drain hands buffered positions to the write pool until terminate closes the buffer
func (s *Session) drain() {
	defer close(s.drained)

	for record := range s.pending {
		s.writes.Go(func() {
			s.write(record)
		})
	}
}

// write is not tied to the session lifetime, termination waits for it instead of cancelling it
func (s *Session) write(record *ctdf.PositionRecord) {
	ctx, cancel := context.WithTimeout(context.Background(), s.options.WriteTimeout)
	defer cancel()

	if err := s.sink.Accept(ctx, record); err != nil {
		s.failed.Add(1)
		SinkFailures.WithLabelValues(s.sink.Name()).Inc()
		s.logger.Error().Err(err).Int64("createdAt", record.ObservedAt).Msg("Failed to write position")
		return
	}

	s.accepted.Add(1)
	PositionsWritten.WithLabelValues(s.sink.Name()).Inc()
}

func (s *Session) terminate(reason Reason, err error) Result {
	s.terminateOnce.Do(func() {
		s.mutex.Lock()
		s.state = StateTerminated
		subscription := s.subscription
		close(s.pending)
		s.mutex.Unlock()

		if subscription != nil {
			if unsubscribeErr := subscription.Unsubscribe(); unsubscribeErr != nil {
				s.logger.Warn().Err(unsubscribeErr).Msg("Failed to unsubscribe from feed")
			}
		}

		<-s.drained
		s.writes.Wait()

		if closeErr := s.sink.Close(); closeErr != nil {
			s.logger.Warn().Err(closeErr).Msg("Failed to close sink")
		}

		s.result = Result{
			Vehicle: s.Identity,
			Reason:  reason,
			Message: FinishedMessage,
			Err:     err,
		}

		SessionsFinished.WithLabelValues(string(reason)).Inc()
		indexSessionEvent(s, sessionEventFinished)

		stats := s.Stats()
		event := s.logger.Info()
		if err != nil {
			event = s.logger.Error().Err(err)
		}
		event.
			Str("reason", string(reason)).
			Int64("accepted", stats.Accepted).
			Int64("failed", stats.Failed).
			Int64("dropped", stats.Dropped).
			Int64("overflowed", stats.Overflowed).
			Msg("Tracking session terminated")

		close(s.done)
	})

	return s.result
}

// Cancel asks the session to terminate, calling it again or after termination does nothing
func (s *Session) Cancel() {
	s.cancelOnce.Do(func() {
		close(s.cancel)
	})
}

func (s *Session) Cancelled() bool {
	select {
	case <-s.cancel:
		return true
	default:
		return false
	}
}

func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Result is only meaningful once Done is closed
func (s *Session) Result() Result {
	<-s.done
	return s.result
}

func (s *Session) State() State {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	return s.state
}

func (s *Session) Stats() SessionStats {
	return SessionStats{
		Accepted:   s.accepted.Load(),
		Failed:     s.failed.Load(),
		Dropped:    s.dropped.Load(),
		Overflowed: s.overflowed.Load(),
	}
}
