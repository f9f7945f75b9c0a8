package trajectory

import (
	"context"
	"testing"
	"time"

	"github.com/eko/gocache/lib/v4/cache"
	redisstore "github.com/eko/gocache/store/redis/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/travigo/livetrack/pkg/config"
	"github.com/travigo/livetrack/pkg/ctdf"
	"github.com/travigo/livetrack/pkg/positions"
	"github.com/travigo/livetrack/pkg/testutil"
)

var (
	testIdentity = ctdf.VehicleIdentity{TransportMode: "bus", OperatorID: "7", VehicleNumber: "123"}
	testNow      = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
)

func position(key string, lat, long float64, at time.Time) *ctdf.PositionRecord {
	return &ctdf.PositionRecord{VehicleKey: key, Latitude: lat, Longitude: long, ObservedAt: at.UnixMilli()}
}

func newStoreService(store positions.Store) *Service {
	return &Service{
		Mode:  config.SinkTypeStore,
		Store: store,
		Now:   func() time.Time { return testNow },
	}
}

func TestQueryStoreBuildsTrajectoryInOrder(t *testing.T) {
	store := testutil.NewMemoryStore(
		position("bus7123", 60.2, 24.9, testNow.Add(-30*time.Second)),
		position("bus7123", 60.1, 24.8, testNow.Add(-90*time.Second)),
		position("bus7123", 59.0, 24.0, testNow.Add(-10*time.Minute)),
		position("bus7999", 61.0, 25.0, testNow.Add(-20*time.Second)),
	)

	trajectory, err := newStoreService(store).Query(context.Background(), testIdentity, 2*time.Minute)
	require.NoError(t, err)

	assert.Equal(t, []float64{60.2, 24.9}, trajectory.CurrentPosition)
	assert.Equal(t, [][]float64{{60.1, 24.8}, {60.2, 24.9}}, trajectory.Polyline)
}

func TestQueryStoreSinglePosition(t *testing.T) {
	store := testutil.NewMemoryStore(position("bus7123", 60.17, 24.94, testNow.Add(-5*time.Second)))

	trajectory, err := newStoreService(store).Query(context.Background(), testIdentity, 2*time.Minute)
	require.NoError(t, err)

	assert.Equal(t, []float64{60.17, 24.94}, trajectory.CurrentPosition)
	assert.Equal(t, [][]float64{{60.17, 24.94}}, trajectory.Polyline)
}

func TestQueryStoreNotFound(t *testing.T) {
	store := testutil.NewMemoryStore(position("bus7123", 60.17, 24.94, testNow.Add(-5*time.Minute)))

	trajectory, err := newStoreService(store).Query(context.Background(), testIdentity, 2*time.Minute)
	assert.ErrorIs(t, err, ErrNotFound)

	require.NotNil(t, trajectory)
	assert.Nil(t, trajectory.CurrentPosition)
	assert.Empty(t, trajectory.Polyline)
}

func TestQueryStoreBackendError(t *testing.T) {
	store := testutil.NewMemoryStore()
	store.FailFinds = true

	_, err := newStoreService(store).Query(context.Background(), testIdentity, 2*time.Minute)

	var backendErr *QueryBackendError
	require.ErrorAs(t, err, &backendErr)
	assert.Equal(t, "store", backendErr.Backend)
	assert.NotErrorIs(t, err, ErrNotFound)
}

func TestQueryRejectsInvalidIdentity(t *testing.T) {
	_, err := newStoreService(testutil.NewMemoryStore()).Query(context.Background(), ctdf.VehicleIdentity{TransportMode: "bus"}, time.Minute)

	var validationErr *ctdf.ValidationError
	assert.ErrorAs(t, err, &validationErr)
}

func TestQueryQueue(t *testing.T) {
	_, client := testutil.NewRedis(t)
	queue := positions.NewRedisQueue(client)
	ctx := context.Background()

	_, err := queue.CreateQueue(ctx, "bus7123", positions.QueueAttributes{Retention: 2 * time.Minute, VisibilityTimeout: 2 * time.Minute})
	require.NoError(t, err)
	require.NoError(t, queue.SendMessage(ctx, "bus7123", []byte(`{"lat":60.1,"long":24.8,"desi":"550"}`)))
	require.NoError(t, queue.SendMessage(ctx, "bus7123", []byte(`not json`)))
	require.NoError(t, queue.SendMessage(ctx, "bus7123", []byte(`{"lat":60.2,"long":24.9}`)))

	service := &Service{Mode: config.SinkTypeQueue, Queue: queue, MaxMessages: 10}

	trajectory, err := service.Query(ctx, testIdentity, 2*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, []float64{60.2, 24.9}, trajectory.CurrentPosition)
	assert.Equal(t, [][]float64{{60.1, 24.8}, {60.2, 24.9}}, trajectory.Polyline)

	// received messages stay hidden until the visibility timeout passes
	_, err = service.Query(ctx, testIdentity, 2*time.Minute)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestQueryQueueMissingQueueIsNotFound(t *testing.T) {
	_, client := testutil.NewRedis(t)
	service := &Service{Mode: config.SinkTypeQueue, Queue: positions.NewRedisQueue(client), MaxMessages: 10}

	_, err := service.Query(context.Background(), testIdentity, 2*time.Minute)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestQueryUsesCache(t *testing.T) {
	_, client := testutil.NewRedis(t)

	store := testutil.NewMemoryStore(position("bus7123", 60.17, 24.94, testNow.Add(-5*time.Second)))
	service := newStoreService(store)
	service.Cache = cache.New[string](redisstore.NewRedis(client))
	service.CacheTTL = time.Minute

	first, err := service.Query(context.Background(), testIdentity, 2*time.Minute)
	require.NoError(t, err)

	store.FailFinds = true

	second, err := service.Query(context.Background(), testIdentity, 2*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestQueryIgnoresEmptyCachedTrajectory(t *testing.T) {
	_, client := testutil.NewRedis(t)
	ctx := context.Background()

	require.NoError(t, client.Set(ctx, "livetrack::trajectory::store::bus7123::120000", `{"currentPosition":null,"polyline":[]}`, 0).Err())

	store := testutil.NewMemoryStore(position("bus7123", 60.17, 24.94, testNow.Add(-5*time.Second)))
	service := newStoreService(store)
	service.Cache = cache.New[string](redisstore.NewRedis(client))
	service.CacheTTL = time.Minute

	trajectory, err := service.Query(ctx, testIdentity, 2*time.Minute)
	require.NoError(t, err)
	assert.False(t, trajectory.IsEmpty())
	assert.Equal(t, []float64{60.17, 24.94}, trajectory.CurrentPosition)
}
