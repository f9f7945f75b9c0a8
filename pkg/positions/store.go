package positions

import (
	"context"
	"time"

	"github.com/travigo/livetrack/pkg/ctdf"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const CollectionName = "vehicle_positions"

// Store is the time ordered position store keyed by vehicle
type Store interface {
	InsertPosition(ctx context.Context, record *ctdf.PositionRecord) error
	FindPositions(ctx context.Context, query *ctdf.QueryVehiclePositions) ([]*ctdf.PositionRecord, error)
}

type MongoStore struct {
	Collection *mongo.Collection
}

func NewMongoStore(collection *mongo.Collection) *MongoStore {
	return &MongoStore{Collection: collection}
}

type positionDocument struct {
	ctdf.PositionRecord `bson:",inline"`

	// Drives the TTL index
	RecordedAt time.Time `bson:"recordedAt"`
}

// InsertPosition always adds a new document, existing positions are never replaced
func (s *MongoStore) InsertPosition(ctx context.Context, record *ctdf.PositionRecord) error {
	_, err := s.Collection.InsertOne(ctx, positionDocument{
		PositionRecord: *record,
		RecordedAt:     record.ObservedAtTime(),
	})

	return err
}

func (s *MongoStore) FindPositions(ctx context.Context, query *ctdf.QueryVehiclePositions) ([]*ctdf.PositionRecord, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}})

	cursor, err := s.Collection.Find(ctx, query.ToBson(), opts)
	if err != nil {
		return nil, err
	}

	records := []*ctdf.PositionRecord{}
	if err := cursor.All(ctx, &records); err != nil {
		return nil, err
	}

	return records, nil
}
