package tracking

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/travigo/livetrack/pkg/ctdf"
	"github.com/travigo/livetrack/pkg/positions"
	livetesting "github.com/travigo/livetrack/pkg/testutil"
)

var testQueueAttributes = positions.QueueAttributes{Retention: 2 * time.Minute, VisibilityTimeout: 2 * time.Minute}

func TestStoreSinkInsertsRecords(t *testing.T) {
	store := livetesting.NewMemoryStore()
	sink := NewStoreSinkFactory(store)(testIdentity)

	require.NoError(t, sink.Open(context.Background()))
	require.NoError(t, sink.Accept(context.Background(), &ctdf.PositionRecord{VehicleKey: "bus7123", Latitude: 60.17, Longitude: 24.94, ObservedAt: 1}))
	require.NoError(t, sink.Close())

	assert.Equal(t, "store", sink.Name())
	assert.Len(t, store.Records(), 1)
}

func TestQueueSinkProvisionsOnce(t *testing.T) {
	_, client := livetesting.NewRedis(t)
	queue := positions.NewRedisQueue(client)
	factory := NewQueueSinkFactory(queue, testQueueAttributes)
	ctx := context.Background()

	first := factory(testIdentity)
	second := factory(testIdentity)

	require.NoError(t, first.Open(ctx))
	require.NoError(t, second.Open(ctx))

	assert.Equal(t, "bus7123", first.(*QueueSink).QueueName)

	payload := []byte(`{"lat":60.17,"long":24.94,"desi":"550"}`)
	require.NoError(t, first.Accept(ctx, &ctdf.PositionRecord{Latitude: 60.17, Longitude: 24.94, Payload: payload}))
	require.NoError(t, second.Accept(ctx, &ctdf.PositionRecord{Latitude: 60.17, Longitude: 24.94, Payload: payload}))

	messages, err := queue.ReceiveMessages(ctx, "bus7123", 10)
	require.NoError(t, err)
	require.Len(t, messages, 2)
	assert.JSONEq(t, string(payload), string(messages[0].Body))
}

type failingQueue struct {
	positions.QueueService
}

func (failingQueue) CreateQueue(context.Context, string, positions.QueueAttributes) (bool, error) {
	return false, livetesting.ErrInjected
}

func TestQueueSinkRejectsWhenUnprovisioned(t *testing.T) {
	sink := NewQueueSinkFactory(failingQueue{}, testQueueAttributes)(testIdentity)
	ctx := context.Background()

	assert.ErrorIs(t, sink.Open(ctx), livetesting.ErrInjected)
	assert.ErrorIs(t, sink.Accept(ctx, &ctdf.PositionRecord{Payload: []byte(`{}`)}), ErrSinkUnavailable)
}

func TestSessionContinuesWhenQueueProvisioningFails(t *testing.T) {
	subscriber := newFakeSubscriber()

	session := NewSession(testIdentity, subscriber, NewQueueSinkFactory(failingQueue{}, testQueueAttributes)(testIdentity), testOptions(time.Hour))
	results := runSession(session)
	topic := waitSubscribed(t, subscriber)

	subscriber.publish(topic, `{"VP":{"lat":60.17,"long":24.94}}`)

	session.Cancel()
	result := waitResult(t, results)

	assert.True(t, result.Success())
	assert.EqualValues(t, 1, session.Stats().Failed)
}
