package tracking

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/travigo/livetrack/pkg/config"
	"github.com/travigo/livetrack/pkg/ctdf"
	livetesting "github.com/travigo/livetrack/pkg/testutil"
	"github.com/travigo/livetrack/pkg/trajectory"
)

func newTestManager(t *testing.T, policy config.DuplicatePolicy) (*Manager, *fakeSubscriber, *livetesting.MemoryStore) {
	subscriber := newFakeSubscriber()
	store := livetesting.NewMemoryStore()

	manager := NewManager(subscriber, NewStoreSinkFactory(store), policy, testOptions(time.Hour))
	t.Cleanup(manager.Shutdown)

	return manager, subscriber, store
}

func waitDone(t *testing.T, session *Session) Result {
	t.Helper()

	select {
	case <-session.Done():
		return session.Result()
	case <-time.After(2 * time.Second):
		t.Fatal("session never terminated")
		return Result{}
	}
}

func TestManagerSpawnRunsIndependentSessions(t *testing.T) {
	manager, subscriber, _ := newTestManager(t, config.DuplicatePolicySpawn)

	first, err := manager.Start(testIdentity)
	require.NoError(t, err)
	second, err := manager.Start(testIdentity)
	require.NoError(t, err)

	waitSubscribed(t, subscriber)
	waitSubscribed(t, subscriber)

	assert.NotEqual(t, first.ID, second.ID)
	assert.Len(t, manager.Sessions(testIdentity), 2)

	first.Cancel()
	waitDone(t, first)

	assert.Equal(t, StateActive, second.State())
	require.Eventually(t, func() bool {
		return len(manager.Sessions(testIdentity)) == 1
	}, time.Second, 5*time.Millisecond)
}

func TestManagerIgnoreDropsDuplicates(t *testing.T) {
	manager, _, _ := newTestManager(t, config.DuplicatePolicyIgnore)

	_, err := manager.Start(testIdentity)
	require.NoError(t, err)

	_, err = manager.Start(testIdentity)
	assert.ErrorIs(t, err, ErrAlreadyTracking)
	assert.Len(t, manager.Sessions(testIdentity), 1)

	_, err = manager.Start(ctdf.VehicleIdentity{TransportMode: "tram", OperatorID: "40", VehicleNumber: "412"})
	assert.NoError(t, err)
	assert.Equal(t, 2, manager.ActiveCount())
}

func TestManagerReplaceCancelsRunningSession(t *testing.T) {
	manager, subscriber, _ := newTestManager(t, config.DuplicatePolicyReplace)

	first, err := manager.Start(testIdentity)
	require.NoError(t, err)
	waitSubscribed(t, subscriber)

	second, err := manager.Start(testIdentity)
	require.NoError(t, err)

	assert.Equal(t, ReasonCancelled, waitDone(t, first).Reason)
	assert.NotEqual(t, StateTerminated, second.State())
}

func TestManagerRejectsInvalidIdentity(t *testing.T) {
	manager, _, _ := newTestManager(t, config.DuplicatePolicySpawn)

	_, err := manager.Start(ctdf.VehicleIdentity{TransportMode: "bus", OperatorID: "7"})

	var validationErr *ctdf.ValidationError
	require.ErrorAs(t, err, &validationErr)
	assert.Equal(t, []string{"vehicle_number"}, validationErr.Fields)
	assert.Equal(t, 0, manager.ActiveCount())
}

func TestManagerCancelAndShutdown(t *testing.T) {
	manager, subscriber, _ := newTestManager(t, config.DuplicatePolicySpawn)

	results := make(chan Result, 4)
	manager.OnFinished = func(_ *Session, result Result) {
		results <- result
	}

	_, err := manager.Start(testIdentity)
	require.NoError(t, err)
	_, err = manager.Start(ctdf.VehicleIdentity{TransportMode: "tram", OperatorID: "40", VehicleNumber: "412"})
	require.NoError(t, err)
	waitSubscribed(t, subscriber)
	waitSubscribed(t, subscriber)

	assert.Equal(t, 1, manager.Cancel(testIdentity))
	assert.Equal(t, ReasonCancelled, waitResult(t, results).Reason)

	manager.Shutdown()
	assert.Equal(t, 0, manager.ActiveCount())
	assert.Equal(t, ReasonCancelled, waitResult(t, results).Reason)

	_, err = manager.Start(testIdentity)
	assert.Error(t, err)
}

func TestTrackedPositionsAreQueryable(t *testing.T) {
	manager, subscriber, store := newTestManager(t, config.DuplicatePolicySpawn)

	session, err := manager.Start(testIdentity)
	require.NoError(t, err)

	topic := waitSubscribed(t, subscriber)
	require.Equal(t, "/hfp/v1/journey/ongoing/bus/0007/00123/+/+/+/+/+/+/#", topic)

	subscriber.publish(topic, `{"VP":{"lat":60.17,"long":24.94}}`)

	session.Cancel()
	waitDone(t, session)

	records := store.Records()
	require.Len(t, records, 1)
	assert.Equal(t, "bus7123", records[0].VehicleKey)

	service := &trajectory.Service{Mode: config.SinkTypeStore, Store: store}
	result, err := service.Query(context.Background(), testIdentity, 2*time.Minute)
	require.NoError(t, err)

	assert.Equal(t, []float64{60.17, 24.94}, result.CurrentPosition)
	assert.Equal(t, [][]float64{{60.17, 24.94}}, result.Polyline)
}
