package domain

// ObservationRecord mirrors the GeoJSON-style feature the DMI bulk archive
// emits, one per line. Unknown top-level and nested fields are tolerated and
// ignored; stages that must preserve them verbatim work on the raw line
// instead of this struct.
type ObservationRecord struct {
	Properties ObservationProperties `json:"properties"`
	Geometry   *Geometry             `json:"geometry,omitempty"`
}

// ObservationProperties holds the measurement fields used for aggregation.
// Value is a pointer so a JSON null (sensor reported nothing) is
// distinguishable from a true zero reading.
type ObservationProperties struct {
	StationID   string   `json:"stationId"`
	ParameterID string   `json:"parameterId"`
	Value       *float64 `json:"value"`
	From        string   `json:"from"`
	Observed    string   `json:"observed,omitempty"`
}

// Geometry is the station position. Coordinates are [lon, lat] but upstream
// files occasionally carry them as strings or partial arrays, so elements are
// decoded loosely and accessed through Longitude.
type Geometry struct {
	Type        string `json:"type,omitempty"`
	Coordinates []any  `json:"coordinates,omitempty"`
}

// Longitude returns the first coordinate as a float, reporting whether a
// numeric longitude is available at all.
func (g *Geometry) Longitude() (float64, bool) {
	if g == nil || len(g.Coordinates) == 0 {
		return 0, false
	}
	switch v := g.Coordinates[0].(type) {
	case float64:
		return v, true
	case string:
		return parseFloat(v)
	default:
		return 0, false
	}
}

// Valid reports whether the record carries everything station-hour
// aggregation needs: station, parameter, a non-null value, and a time field.
func (p ObservationProperties) Valid() bool {
	return p.StationID != "" && p.ParameterID != "" && p.Value != nil && p.From != ""
}
