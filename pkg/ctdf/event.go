package ctdf

import "time"

// TrackingEvent is the notification bus payload asking the tracker to start or stop a session
type TrackingEvent struct {
	Type      EventType
	Timestamp time.Time
	Vehicle   VehicleIdentity
}

type EventType string

const (
	EventTypeTrackingRequested EventType = "TrackingRequested"
	EventTypeTrackingCancelled EventType = "TrackingCancelled"
)
