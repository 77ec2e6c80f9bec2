package domain

// Zone is an electricity price zone, or UNKNOWN when a record matches
// neither. Derived per record, never persisted as authoritative truth.
type Zone string

const (
	ZoneDK1     Zone = "DK1"
	ZoneDK2     Zone = "DK2"
	ZoneUnknown Zone = "UNKNOWN"
)

// DefaultLongitudeCutoff is the meridian separating DK1 from DK2 for
// stations missing from the catalog: roughly the Great Belt at 11.0°E.
const DefaultLongitudeCutoff = 11.0

// Classifier assigns observations to price zones. The station catalog is
// checked first (authoritative and cheap); a longitude comparison tolerates
// stations not yet catalogued without failing closed.
type Classifier struct {
	catalog *StationCatalog
	cutoff  float64
}

// NewClassifier builds a Classifier around a catalog and a longitude cutoff.
// A nil catalog falls back to the built-in DMI synop station sets.
func NewClassifier(catalog *StationCatalog, cutoff float64) *Classifier {
	if catalog == nil {
		catalog = DefaultCatalog()
	}
	return &Classifier{catalog: catalog, cutoff: cutoff}
}

// Classify maps a station ID and optional geometry to exactly one zone.
// Decision order: catalog membership, then longitude below the cutoff → DK1,
// at or above → DK2, and UNKNOWN when no numeric longitude is available.
func (c *Classifier) Classify(stationID string, geometry *Geometry) Zone {
	if zone, ok := c.catalog.Zone(stationID); ok {
		return zone
	}
	lon, ok := geometry.Longitude()
	if !ok {
		return ZoneUnknown
	}
	if lon < c.cutoff {
		return ZoneDK1
	}
	return ZoneDK2
}
