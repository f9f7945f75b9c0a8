package hfp

import (
	"encoding/json"
	"time"

	"github.com/travigo/livetrack/pkg/ctdf"
)

type rawMessage struct {
	VP json.RawMessage `json:"VP"`
}

// Normalize turns a feed payload into a position record for identity.
// Payloads that cannot be decoded or lack a usable location are dropped and ok is false.
// The record is stamped with arrival rather than the feed's own timestamp.
func Normalize(payload []byte, identity ctdf.VehicleIdentity, arrival time.Time) (record *ctdf.PositionRecord, ok bool) {
	var raw rawMessage
	if err := json.Unmarshal(payload, &raw); err != nil || len(raw.VP) == 0 {
		return nil, false
	}

	return NormalizePosition(raw.VP, identity, arrival)
}

// NormalizePosition is Normalize for a bare "VP" object
func NormalizePosition(vp json.RawMessage, identity ctdf.VehicleIdentity, arrival time.Time) (record *ctdf.PositionRecord, ok bool) {
	var vehiclePosition *VehiclePosition
	if err := json.Unmarshal(vp, &vehiclePosition); err != nil || vehiclePosition == nil {
		return nil, false
	}

	latitude, longitude, ok := vehiclePosition.Location()
	if !ok {
		return nil, false
	}

	return &ctdf.PositionRecord{
		VehicleKey: identity.StorageKey(),
		Latitude:   latitude,
		Longitude:  longitude,
		Route:      vehiclePosition.Route(),
		Speed:      vehiclePosition.Speed(),
		ObservedAt: arrival.UnixMilli(),
		Payload:    vp,
	}, true
}
