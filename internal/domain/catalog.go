package domain

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"
)

// StationCatalog maps station IDs to their price zone. Lookups are O(1);
// membership in both zones is impossible by construction.
type StationCatalog struct {
	zones map[string]Zone
}

// Zone returns the catalogued zone for a station ID.
func (c *StationCatalog) Zone(stationID string) (Zone, bool) {
	z, ok := c.zones[stationID]
	return z, ok
}

// Len returns the number of catalogued stations.
func (c *StationCatalog) Len() int {
	return len(c.zones)
}

// LoadCatalog reads a catalog from a CSV file of `station_id,zone` rows.
// A header row starting with "station_id" is skipped. A station listed twice
// with conflicting zones is an error: the catalog must stay unambiguous.
func LoadCatalog(path string) (*StationCatalog, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open station catalog: %w", err)
	}
	defer f.Close()
	return ReadCatalog(f)
}

// ReadCatalog parses catalog CSV from a reader. See LoadCatalog.
func ReadCatalog(r io.Reader) (*StationCatalog, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = 2
	reader.TrimLeadingSpace = true

	zones := make(map[string]Zone)
	line := 0
	for {
		rec, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read station catalog: %w", err)
		}
		line++
		id := strings.TrimSpace(rec[0])
		if line == 1 && strings.EqualFold(id, "station_id") {
			continue
		}
		zone := Zone(strings.ToUpper(strings.TrimSpace(rec[1])))
		if zone != ZoneDK1 && zone != ZoneDK2 {
			return nil, fmt.Errorf("station catalog line %d: unknown zone %q for station %s", line, rec[1], id)
		}
		if existing, ok := zones[id]; ok && existing != zone {
			return nil, fmt.Errorf("station catalog line %d: station %s listed in both %s and %s", line, id, existing, zone)
		}
		zones[id] = zone
	}
	return &StationCatalog{zones: zones}, nil
}

// DefaultCatalog returns the built-in DMI synop station catalog.
// DK1 covers Jutland and Funen, DK2 covers Zealand, Bornholm and the eastern
// islands. Kept as a fallback; deployments override it with a catalog file so
// new stations do not require a rebuild.
func DefaultCatalog() *StationCatalog {
	dk1 := []string{
		"06030", "06041", "06049", "06051", "06052", "06056", "06058", "06060",
		"06065", "06068", "06070", "06072", "06073", "06074", "06079", "06080",
		"06081", "06082", "06088", "06093", "06096", "06102", "06104", "06110",
		"06116", "06118", "06119", "06120", "06123", "06124", "06126", "06132",
	}
	dk2 := []string{
		"06135", "06136", "06138", "06141", "06147", "06149", "06151", "06154",
		"06156", "06159", "06160", "06165", "06168", "06169", "06170", "06174",
		"06180", "06181", "06183", "06184", "06186", "06187", "06188", "06190",
		"06193", "06197",
	}

	zones := make(map[string]Zone, len(dk1)+len(dk2))
	for _, id := range dk1 {
		zones[id] = ZoneDK1
	}
	for _, id := range dk2 {
		zones[id] = ZoneDK2
	}
	return &StationCatalog{zones: zones}
}
