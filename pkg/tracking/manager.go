package tracking

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc"
	"github.com/travigo/livetrack/pkg/config"
	"github.com/travigo/livetrack/pkg/ctdf"
	"golang.org/x/exp/slices"
)

var ErrAlreadyTracking = errors.New("vehicle is already being tracked")

// Manager owns every running session of the process.
// Sessions for the same vehicle are independent, the duplicate policy decides if more than one may run at once.
type Manager struct {
	Subscriber  Subscriber
	SinkFactory SinkFactory
	Policy      config.DuplicatePolicy
	Options     SessionOptions

	// OnFinished is called from the session goroutine once a session has terminated
	OnFinished func(session *Session, result Result)

	ctx  context.Context
	stop context.CancelFunc

	mutex    sync.Mutex
	sessions map[string][]*Session
	running  conc.WaitGroup
}

func NewManager(subscriber Subscriber, sinkFactory SinkFactory, policy config.DuplicatePolicy, options SessionOptions) *Manager {
	ctx, stop := context.WithCancel(context.Background())

	return &Manager{
		Subscriber:  subscriber,
		SinkFactory: sinkFactory,
		Policy:      policy,
		Options:     options,

		ctx:      ctx,
		stop:     stop,
		sessions: map[string][]*Session{},
	}
}

func NewManagerFromConfig(subscriber Subscriber, sinkFactory SinkFactory, trackingConfig config.TrackingConfig) *Manager {
	return NewManager(subscriber, sinkFactory, trackingConfig.DuplicatePolicy, SessionOptions{
		Duration:            trackingConfig.SessionDuration,
		WriteTimeout:        trackingConfig.WriteTimeout,
		MaxConcurrentWrites: trackingConfig.MaxConcurrentWrites,
		WriteBuffer:         trackingConfig.WriteBuffer,
	})
}

// Start launches a background session for the vehicle and returns immediately
func (m *Manager) Start(identity ctdf.VehicleIdentity) (*Session, error) {
	if err := identity.Validate(); err != nil {
		return nil, err
	}

	if m.ctx.Err() != nil {
		return nil, errors.New("tracking manager has been shut down")
	}

	key := identity.StorageKey()

	m.mutex.Lock()
	existing := m.sessions[key]

	switch m.Policy {
	case config.DuplicatePolicyIgnore:
		if len(existing) > 0 {
			m.mutex.Unlock()
			log.Info().Str("vehicle", key).Msg("Ignoring tracking request, vehicle already tracked")
			return nil, ErrAlreadyTracking
		}
	case config.DuplicatePolicyReplace:
		for _, session := range existing {
			session.Cancel()
		}
	}

	session := NewSession(identity, m.Subscriber, m.SinkFactory(identity), m.Options)

	m.sessions[key] = append(m.sessions[key], session)
	m.mutex.Unlock()

	m.running.Go(func() {
		result := session.Run(m.ctx)

		m.remove(key, session)

		if m.OnFinished != nil {
			m.OnFinished(session, result)
		}
	})

	return session, nil
}

// Cancel cancels every session tracking the vehicle and returns how many there were
func (m *Manager) Cancel(identity ctdf.VehicleIdentity) int {
	sessions := m.Sessions(identity)

	for _, session := range sessions {
		session.Cancel()
	}

	return len(sessions)
}

func (m *Manager) Sessions(identity ctdf.VehicleIdentity) []*Session {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	return slices.Clone(m.sessions[identity.StorageKey()])
}

func (m *Manager) ActiveCount() int {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	count := 0
	for _, sessions := range m.sessions {
		count += len(sessions)
	}

	return count
}

// Shutdown cancels all sessions and waits for them to finish
func (m *Manager) Shutdown() {
	m.stop()
	m.running.Wait()
}

func (m *Manager) remove(key string, session *Session) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.sessions[key] = slices.DeleteFunc(m.sessions[key], func(s *Session) bool {
		return s == session
	})
	if len(m.sessions[key]) == 0 {
		delete(m.sessions, key)
	}
}
