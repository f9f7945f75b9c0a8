package ctdf

import (
	"encoding/json"
	"time"
)

// PositionRecord is a single validated vehicle position
type PositionRecord struct {
	VehicleKey string  `json:"vehicleId" bson:"vehicleId" groups:"basic"`
	Latitude   float64 `json:"lat" bson:"lat" groups:"basic"`
	Longitude  float64 `json:"long" bson:"long" groups:"basic"`

	Route *string  `json:"route,omitempty" bson:"route,omitempty" groups:"detailed"`
	Speed *float64 `json:"speed,omitempty" bson:"speed,omitempty" groups:"detailed"`

	// Epoch milliseconds of when the position arrived, not the feed timestamp
	ObservedAt int64 `json:"createdAt" bson:"createdAt" groups:"basic"`

	// The decoded position object exactly as the feed sent it
	Payload json.RawMessage `json:"-" bson:"-"`
}

func (p *PositionRecord) ObservedAtTime() time.Time {
	return time.UnixMilli(p.ObservedAt)
}

func (p *PositionRecord) Coordinates() []float64 {
	return []float64{p.Latitude, p.Longitude}
}
