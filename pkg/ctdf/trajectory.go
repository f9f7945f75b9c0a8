package ctdf

// Trajectory is the recent path of a vehicle, oldest point first
type Trajectory struct {
	CurrentPosition []float64   `json:"currentPosition"`
	Polyline        [][]float64 `json:"polyline"`
}

// NewTrajectory builds a trajectory from records already in observation order.
// An empty input gives a nil current position and an empty polyline.
func NewTrajectory(records []*PositionRecord) *Trajectory {
	trajectory := &Trajectory{
		Polyline: [][]float64{},
	}

	for _, record := range records {
		trajectory.Polyline = append(trajectory.Polyline, record.Coordinates())
	}

	if len(records) > 0 {
		trajectory.CurrentPosition = records[len(records)-1].Coordinates()
	}

	return trajectory
}

func (t *Trajectory) IsEmpty() bool {
	return len(t.Polyline) == 0
}
