package tracking

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/adjust/rmq/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/travigo/livetrack/pkg/ctdf"
)

func TestQueuePublisher(t *testing.T) {
	connection := rmq.NewTestConnection()

	publisher, err := NewQueuePublisher(connection)
	require.NoError(t, err)

	require.NoError(t, publisher.Publish(context.Background(), ctdf.EventTypeTrackingRequested, testIdentity))

	deliveries := connection.GetDeliveries(QueueName)
	require.Len(t, deliveries, 1)

	var event ctdf.TrackingEvent
	require.NoError(t, json.Unmarshal([]byte(deliveries[0]), &event))

	assert.Equal(t, ctdf.EventTypeTrackingRequested, event.Type)
	assert.Equal(t, testIdentity, event.Vehicle)
	assert.False(t, event.Timestamp.IsZero())
}
