package database

import (
	"context"

	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Positions are only ever queried over the last few minutes
const positionsExpireAfterSeconds = 24 * 3600

func createIndexes() {
	createVehiclePositionsIndexes()
}

func createVehiclePositionsIndexes() {
	vehiclePositionsCollection := GetCollection("vehicle_positions")
	_, err := vehiclePositionsCollection.Indexes().CreateMany(context.Background(), []mongo.IndexModel{
		{
			Keys: bson.D{
				{Key: "vehicleId", Value: 1},
				{Key: "createdAt", Value: 1},
			},
		},
		{
			Keys:    bson.D{{Key: "recordedAt", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(positionsExpireAfterSeconds),
		},
	}, options.CreateIndexes())
	if err != nil {
		log.Error().Err(err).Msg("Creating Index")
	}
}
