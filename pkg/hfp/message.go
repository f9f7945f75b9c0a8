package hfp

import "encoding/json"

// VehiclePosition holds the fields of a "VP" object that are carried into a position record.
// Fields are kept raw so an unexpected type on one of them never rejects the whole message,
// the remaining VP fields are not decoded at all.
type VehiclePosition struct {
	Lat  json.RawMessage `json:"lat"`
	Long json.RawMessage `json:"long"`
	Desi json.RawMessage `json:"desi"`
	Spd  json.RawMessage `json:"spd"`
}

// Location returns the coordinates when both are numbers other than zero
func (v *VehiclePosition) Location() (latitude float64, longitude float64, ok bool) {
	lat := decodeNumber(v.Lat)
	long := decodeNumber(v.Long)

	if lat == nil || long == nil || *lat == 0 || *long == 0 {
		return 0, 0, false
	}

	return *lat, *long, true
}

// Route is the line designation, numeric designations are kept in their textual form
func (v *VehiclePosition) Route() *string {
	var route string
	if err := json.Unmarshal(v.Desi, &route); err == nil {
		return &route
	}

	if number := decodeNumber(v.Desi); number != nil {
		route = string(v.Desi)
		return &route
	}

	return nil
}

func (v *VehiclePosition) Speed() *float64 {
	return decodeNumber(v.Spd)
}

// decodeNumber is nil for missing, null or non numeric values
func decodeNumber(raw json.RawMessage) *float64 {
	if len(raw) == 0 {
		return nil
	}

	var number *float64
	if err := json.Unmarshal(raw, &number); err != nil {
		return nil
	}

	return number
}
