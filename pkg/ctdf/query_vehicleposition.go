package ctdf

import (
	"go.mongodb.org/mongo-driver/bson"
)

type QueryVehiclePositions struct {
	VehicleKey string

	// Exclusive lower bound in epoch milliseconds
	ObservedAfter int64
}

func (q *QueryVehiclePositions) ToBson() bson.M {
	if q.VehicleKey == "" {
		return nil
	}

	return bson.M{
		"vehicleId": q.VehicleKey,
		"createdAt": bson.M{"$gt": q.ObservedAfter},
	}
}
