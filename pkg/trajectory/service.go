package trajectory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/eko/gocache/lib/v4/cache"
	"github.com/eko/gocache/lib/v4/store"
	"github.com/rs/zerolog/log"
	"github.com/travigo/livetrack/pkg/config"
	"github.com/travigo/livetrack/pkg/ctdf"
	"github.com/travigo/livetrack/pkg/hfp"
	"github.com/travigo/livetrack/pkg/positions"
)

var ErrNotFound = errors.New("no recent positions for vehicle")

type QueryBackendError struct {
	Backend string
	Err     error
}

func (e *QueryBackendError) Error() string {
	return fmt.Sprintf("querying %s: %s", e.Backend, e.Err)
}

func (e *QueryBackendError) Unwrap() error {
	return e.Err
}

// Service answers where a vehicle has been recently, reading from whichever sink the tracker writes to
type Service struct {
	Mode config.SinkType

	Store positions.Store
	Queue positions.QueueService

	MaxMessages int

	// Cache is optional, non-empty results are kept for CacheTTL
	Cache    *cache.Cache[string]
	CacheTTL time.Duration

	Now func() time.Time
}

func (s *Service) Query(ctx context.Context, identity ctdf.VehicleIdentity, window time.Duration) (*ctdf.Trajectory, error) {
	if err := identity.Validate(); err != nil {
		return nil, err
	}

	cacheKey := fmt.Sprintf("livetrack::trajectory::%s::%s::%d", s.Mode, identity.StorageKey(), window.Milliseconds())
	if trajectory := s.cached(ctx, cacheKey); trajectory != nil {
		return trajectory, nil
	}

	records, err := s.Positions(ctx, identity, window)
	if errors.Is(err, ErrNotFound) {
		return ctdf.NewTrajectory(nil), err
	} else if err != nil {
		return nil, err
	}

	trajectory := ctdf.NewTrajectory(records)

	s.store(ctx, cacheKey, trajectory)

	return trajectory, nil
}

// Positions returns the recent positions of the vehicle oldest first
func (s *Service) Positions(ctx context.Context, identity ctdf.VehicleIdentity, window time.Duration) ([]*ctdf.PositionRecord, error) {
	if err := identity.Validate(); err != nil {
		return nil, err
	}

	var records []*ctdf.PositionRecord
	var err error

	switch s.Mode {
	case config.SinkTypeQueue:
		records, err = s.fromQueue(ctx, identity)
	default:
		records, err = s.fromStore(ctx, identity, window)
	}
	if err != nil {
		return nil, err
	}

	if len(records) == 0 {
		return nil, ErrNotFound
	}

	return records, nil
}

func (s *Service) fromStore(ctx context.Context, identity ctdf.VehicleIdentity, window time.Duration) ([]*ctdf.PositionRecord, error) {
	now := time.Now
	if s.Now != nil {
		now = s.Now
	}

	query := &ctdf.QueryVehiclePositions{
		VehicleKey:    identity.StorageKey(),
		ObservedAfter: now().Add(-window).UnixMilli(),
	}

	records, err := s.Store.FindPositions(ctx, query)
	if err != nil {
		return nil, &QueryBackendError{Backend: "store", Err: err}
	}

	return records, nil
}

// fromQueue does a single non blocking pull, received messages are left to reappear after the visibility timeout
func (s *Service) fromQueue(ctx context.Context, identity ctdf.VehicleIdentity) ([]*ctdf.PositionRecord, error) {
	messages, err := s.Queue.ReceiveMessages(ctx, identity.StorageKey(), s.MaxMessages)
	if errors.Is(err, positions.ErrQueueNotFound) {
		return nil, nil
	} else if err != nil {
		return nil, &QueryBackendError{Backend: "queue", Err: err}
	}

	var records []*ctdf.PositionRecord
	for _, message := range messages {
		record, ok := hfp.NormalizePosition(message.Body, identity, message.SentAt)
		if !ok {
			log.Warn().Str("queue", identity.StorageKey()).Str("message", message.ID).Msg("Skipping undecodable queue message")
			continue
		}

		records = append(records, record)
	}

	return records, nil
}

func (s *Service) cached(ctx context.Context, key string) *ctdf.Trajectory {
	if s.Cache == nil || s.CacheTTL <= 0 {
		return nil
	}

	value, err := s.Cache.Get(ctx, key)
	if err != nil || value == "" {
		return nil
	}

	var trajectory *ctdf.Trajectory
	if err := json.Unmarshal([]byte(value), &trajectory); err != nil || trajectory == nil || trajectory.IsEmpty() {
		return nil
	}

	return trajectory
}

func (s *Service) store(ctx context.Context, key string, trajectory *ctdf.Trajectory) {
	if s.Cache == nil || s.CacheTTL <= 0 || trajectory.IsEmpty() {
		return
	}

	trajectoryJSON, _ := json.Marshal(trajectory)
	if err := s.Cache.Set(ctx, key, string(trajectoryJSON), store.WithExpiration(s.CacheTTL)); err != nil {
		log.Warn().Err(err).Msg("Failed to cache trajectory")
	}
}
