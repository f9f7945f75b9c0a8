package ctdf

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
)

func TestVehicleIdentityTopicPattern(t *testing.T) {
	tests := []struct {
		identity VehicleIdentity
		expected string
	}{
		{
			VehicleIdentity{TransportMode: "bus", OperatorID: "7", VehicleNumber: "123"},
			"/hfp/v1/journey/ongoing/bus/0007/00123/+/+/+/+/+/+/#",
		},
		{
			VehicleIdentity{TransportMode: "tram", OperatorID: "40", VehicleNumber: "4"},
			"/hfp/v1/journey/ongoing/tram/0040/00004/+/+/+/+/+/+/#",
		},
		{
			VehicleIdentity{TransportMode: "bus", OperatorID: "12345", VehicleNumber: "123456"},
			"/hfp/v1/journey/ongoing/bus/12345/123456/+/+/+/+/+/+/#",
		},
		{
			VehicleIdentity{TransportMode: "train", OperatorID: "0090", VehicleNumber: "01234"},
			"/hfp/v1/journey/ongoing/train/0090/01234/+/+/+/+/+/+/#",
		},
	}

	for _, test := range tests {
		assert.Equal(t, test.expected, test.identity.TopicPattern())
	}
}

func TestVehicleIdentityStorageKeyIsUnpadded(t *testing.T) {
	identity := VehicleIdentity{TransportMode: "bus", OperatorID: "7", VehicleNumber: "123"}

	assert.Equal(t, "bus7123", identity.StorageKey())
}

func TestVehicleIdentityValidate(t *testing.T) {
	valid := VehicleIdentity{TransportMode: "bus", OperatorID: "7", VehicleNumber: "123"}
	assert.NoError(t, valid.Validate())

	err := VehicleIdentity{TransportMode: "bus"}.Validate()
	require.Error(t, err)

	var validationError *ValidationError
	require.ErrorAs(t, err, &validationError)
	assert.Equal(t, []string{"operator_id", "vehicle_number"}, validationError.Fields)
	assert.Contains(t, err.Error(), "missing a required field")
}

func TestNewTrajectory(t *testing.T) {
	records := []*PositionRecord{
		{VehicleKey: "bus7123", Latitude: 60.16, Longitude: 24.93, ObservedAt: 1000},
		{VehicleKey: "bus7123", Latitude: 60.17, Longitude: 24.94, ObservedAt: 2000},
	}

	trajectory := NewTrajectory(records)

	assert.Equal(t, [][]float64{{60.16, 24.93}, {60.17, 24.94}}, trajectory.Polyline)
	assert.Equal(t, []float64{60.17, 24.94}, trajectory.CurrentPosition)
	assert.False(t, trajectory.IsEmpty())

	empty := NewTrajectory(nil)
	assert.True(t, empty.IsEmpty())
	assert.Nil(t, empty.CurrentPosition)
	assert.NotNil(t, empty.Polyline)
}

func TestQueryVehiclePositionsToBson(t *testing.T) {
	query := QueryVehiclePositions{VehicleKey: "bus7123", ObservedAfter: 5000}

	filter := query.ToBson()
	assert.Equal(t, "bus7123", filter["vehicleId"])
	assert.Equal(t, int64(5000), filter["createdAt"].(bson.M)["$gt"])

	assert.Nil(t, (&QueryVehiclePositions{}).ToBson())
}
