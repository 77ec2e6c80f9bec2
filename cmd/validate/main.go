// Command validate performs end-to-end data integrity checks across the
// pipeline's stage artifacts: the concatenated corpus, per-zone station-hour
// CSVs, regional time series, cleaned tables, and prune reports. It recomputes
// aggregates independently from the upstream artifact and compares them against
// what the pipeline wrote.
//
// Usage:
//
//	go run ./cmd/validate -out-dir data/out
package main

import (
	"encoding/csv"
	"encoding/json"
	"flag"
	"fmt"
	"math"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/meteodk/dmi-preprocess/internal/domain"
	"github.com/meteodk/dmi-preprocess/internal/fsio"
	"github.com/meteodk/dmi-preprocess/internal/pipeline"
)

// phase tracks pass/fail for a validation phase.
type phase struct {
	name   string
	errors []string
}

func (p *phase) errorf(format string, args ...any) {
	p.errors = append(p.errors, fmt.Sprintf(format, args...))
}

func (p *phase) passed() bool { return len(p.errors) == 0 }

func main() {
	outDir := flag.String("out-dir", "", "pipeline output directory containing the stage artifacts")
	catalogPath := flag.String("catalog", "", "optional station catalog CSV (defaults to the built-in catalog)")
	cutoff := flag.Float64("cutoff", domain.DefaultLongitudeCutoff, "longitude cutoff for uncatalogued stations")
	keepList := flag.String("keep", "", "comma-separated parameter allow-list the pipeline ran with (empty keeps everything)")
	flag.Parse()

	if *outDir == "" {
		flag.Usage()
		os.Exit(1)
	}
	if code := run(*outDir, *catalogPath, *cutoff, *keepList); code != 0 {
		os.Exit(code)
	}
}

func run(outDir, catalogPath string, cutoff float64, keepList string) int {
	fmt.Println("=== DMI Preprocess Integrity Validation ===")
	fmt.Println()

	catalog := domain.DefaultCatalog()
	if catalogPath != "" {
		var err error
		catalog, err = domain.LoadCatalog(catalogPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "FATAL: load catalog: %v\n", err)
			return 1
		}
	}
	classifier := domain.NewClassifier(catalog, cutoff)

	var keep map[string]bool
	if keepList != "" {
		keep = map[string]bool{}
		for _, p := range strings.Split(keepList, ",") {
			if p = strings.TrimSpace(p); p != "" {
				keep[p] = true
			}
		}
	}

	paths := pipeline.DefaultPaths(outDir)

	var phases []*phase
	for _, zp := range []struct {
		zone  domain.Zone
		paths pipeline.ZonePaths
	}{
		{domain.ZoneDK1, paths.DK1},
		{domain.ZoneDK2, paths.DK2},
	} {
		phases = append(phases,
			validateStationHour(zp.zone, paths.Corpus, zp.paths.StationHour, classifier, keep),
			validateRegional(zp.zone, zp.paths.StationHour, zp.paths.Regional),
			validatePrune(zp.zone, zp.paths.Regional, zp.paths.Cleaned, zp.paths.PruneReport),
		)
	}

	fmt.Println()
	allPassed := true
	for _, p := range phases {
		status := "\033[32mPASS\033[0m"
		if !p.passed() {
			status = fmt.Sprintf("\033[31mFAIL (%d errors)\033[0m", len(p.errors))
			allPassed = false
		}
		fmt.Printf("  %-48s %s\n", p.name, status)
	}

	for _, p := range phases {
		if p.passed() {
			continue
		}
		fmt.Printf("\n--- %s ---\n", p.name)
		for i, e := range p.errors {
			fmt.Printf("  [%d] %s\n", i+1, e)
		}
	}

	if allPassed {
		fmt.Println("\nAll validations passed.")
		return 0
	}
	fmt.Println("\nValidation FAILED.")
	return 1
}

// ── Phase 1: Station-Hour Integrity ──
// Recomputes per-station hourly means straight from the corpus and compares
// them against the station-hour CSV.

func validateStationHour(zone domain.Zone, corpusPath, stationHourPath string, classifier *domain.Classifier, keep map[string]bool) *phase {
	p := &phase{name: fmt.Sprintf("%s: Station-Hour Integrity", zone)}

	type key struct{ station, hour, param string }
	type acc struct {
		sum   float64
		count int64
	}
	expected := map[key]*acc{}

	f, err := os.Open(corpusPath)
	if err != nil {
		p.errorf("open corpus: %v", err)
		return p
	}
	defer f.Close()

	sc := fsio.NewLineScanner(f)
	for sc.Scan() {
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}
		var rec domain.ObservationRecord
		if err := json.Unmarshal(line, &rec); err != nil {
			// The pipeline skips malformed lines too.
			continue
		}
		if !rec.Properties.Valid() {
			continue
		}
		if keep != nil && !keep[rec.Properties.ParameterID] {
			continue
		}
		if classifier.Classify(rec.Properties.StationID, rec.Geometry) != zone {
			continue
		}
		ts, err := domain.ParseTimestamp(rec.Properties.From)
		if err != nil {
			continue
		}
		k := key{
			station: rec.Properties.StationID,
			hour:    domain.FormatHour(domain.HourBucket(ts)),
			param:   rec.Properties.ParameterID,
		}
		a := expected[k]
		if a == nil {
			a = &acc{}
			expected[k] = a
		}
		a.sum += *rec.Properties.Value
		a.count++
	}
	if err := sc.Err(); err != nil {
		p.errorf("scan corpus: %v", err)
		return p
	}

	rows, header, err := loadCSV(stationHourPath)
	if err != nil {
		p.errorf("load station-hour CSV: %v", err)
		return p
	}
	want := []string{"station_id", "timestamp_utc", "parameter", "value_avg", "count"}
	if strings.Join(header, ",") != strings.Join(want, ",") {
		p.errorf("unexpected header %v", header)
		return p
	}

	seen := map[key]bool{}
	for _, row := range rows {
		k := key{station: row.fields["station_id"], hour: row.fields["timestamp_utc"], param: row.fields["parameter"]}
		if seen[k] {
			p.errorf("line %d: duplicate key %v", row.lineNum, k)
			continue
		}
		seen[k] = true

		a, ok := expected[k]
		if !ok {
			p.errorf("line %d: key %v not derivable from corpus", row.lineNum, k)
			continue
		}
		gotCount, err := strconv.ParseInt(row.fields["count"], 10, 64)
		if err != nil || gotCount != a.count {
			p.errorf("line %d: count: expected %d, got %q", row.lineNum, a.count, row.fields["count"])
		}
		gotAvg, err := strconv.ParseFloat(row.fields["value_avg"], 64)
		if err != nil {
			p.errorf("line %d: value_avg %q: %v", row.lineNum, row.fields["value_avg"], err)
			continue
		}
		wantAvg := a.sum / float64(a.count)
		if !floatEq(gotAvg, wantAvg, 5e-5) {
			p.errorf("line %d: value_avg: expected %.4f, got %.4f", row.lineNum, wantAvg, gotAvg)
		}
	}
	for k := range expected {
		if !seen[k] {
			p.errorf("key %v present in corpus but missing from station-hour CSV", k)
		}
	}
	return p
}

// ── Phase 2: Regional Integrity ──
// Recomputes the regional wide table from the station-hour CSV: unweighted
// mean over station means, plus min/max reporting counts per hour.

func validateRegional(zone domain.Zone, stationHourPath, regionalPath string) *phase {
	p := &phase{name: fmt.Sprintf("%s: Regional Aggregation", zone)}

	shRows, _, err := loadCSV(stationHourPath)
	if err != nil {
		p.errorf("load station-hour CSV: %v", err)
		return p
	}

	type cell struct {
		sum   float64
		count int64
	}
	hours := map[string]map[string]*cell{}
	for _, row := range shRows {
		v, err := strconv.ParseFloat(row.fields["value_avg"], 64)
		if err != nil {
			continue
		}
		ts := row.fields["timestamp_utc"]
		param := row.fields["parameter"]
		if hours[ts] == nil {
			hours[ts] = map[string]*cell{}
		}
		c := hours[ts][param]
		if c == nil {
			c = &cell{}
			hours[ts][param] = c
		}
		c.sum += v
		c.count++
	}

	regRows, header, err := loadCSV(regionalPath)
	if err != nil {
		p.errorf("load regional CSV: %v", err)
		return p
	}
	if len(header) == 0 || header[0] != "Timestamp_UTC" {
		p.errorf("regional header must start with Timestamp_UTC, got %v", header)
		return p
	}
	if n := len(header); n < 3 || header[n-2] != "Stations_Reporting_Min" || header[n-1] != "Stations_Reporting_Max" {
		p.errorf("regional header missing reporting-count columns: %v", header)
		return p
	}
	params := header[1 : len(header)-2]
	if !sort.StringsAreSorted(params) {
		p.errorf("parameter columns not sorted: %v", params)
	}

	if len(regRows) != len(hours) {
		p.errorf("row count: expected %d hours, got %d", len(hours), len(regRows))
	}
	for _, row := range regRows {
		ts := row.fields["Timestamp_UTC"]
		cells, ok := hours[ts]
		if !ok {
			p.errorf("line %d: hour %s absent from station-hour CSV", row.lineNum, ts)
			continue
		}
		var minN, maxN int64 = math.MaxInt64, 0
		for _, param := range params {
			got := row.fields[param]
			c := cells[param]
			if c == nil {
				if got != "" {
					p.errorf("line %d: %s should be empty, got %q", row.lineNum, param, got)
				}
				continue
			}
			if c.count < minN {
				minN = c.count
			}
			if c.count > maxN {
				maxN = c.count
			}
			want := c.sum / float64(c.count)
			gotF, err := strconv.ParseFloat(got, 64)
			if err != nil {
				p.errorf("line %d: %s=%q: %v", row.lineNum, param, got, err)
				continue
			}
			if !floatEq(gotF, want, 5e-5) {
				p.errorf("line %d: %s: expected %.4f, got %.4f", row.lineNum, param, want, gotF)
			}
		}
		if minN == math.MaxInt64 {
			minN = 0
		}
		if got := row.fields["Stations_Reporting_Min"]; got != strconv.FormatInt(minN, 10) {
			p.errorf("line %d: Stations_Reporting_Min: expected %d, got %q", row.lineNum, minN, got)
		}
		if got := row.fields["Stations_Reporting_Max"]; got != strconv.FormatInt(maxN, 10) {
			p.errorf("line %d: Stations_Reporting_Max: expected %d, got %q", row.lineNum, maxN, got)
		}
	}
	return p
}

// ── Phase 3: Prune Consistency ──
// The cleaned table must be a column projection of the regional table, and
// every column difference must be accounted for in the prune report.

func validatePrune(zone domain.Zone, regionalPath, cleanedPath, reportPath string) *phase {
	p := &phase{name: fmt.Sprintf("%s: Prune Consistency", zone)}

	regRows, regHeader, err := loadCSV(regionalPath)
	if err != nil {
		p.errorf("load regional CSV: %v", err)
		return p
	}
	cleanRows, cleanHeader, err := loadCSV(cleanedPath)
	if err != nil {
		p.errorf("load cleaned CSV: %v", err)
		return p
	}
	reportRows, reportHeader, err := loadCSV(reportPath)
	if err != nil {
		p.errorf("load prune report: %v", err)
		return p
	}
	if want := "column,reason,fraction,dominant_value,rows,generated_at"; strings.Join(reportHeader, ",") != want {
		p.errorf("report header: expected %q, got %v", want, reportHeader)
	}

	regCols := map[string]bool{}
	for _, c := range regHeader {
		regCols[c] = true
	}
	cleanCols := map[string]bool{}
	for _, c := range cleanHeader {
		if !regCols[c] {
			p.errorf("cleaned column %q does not exist in the regional table", c)
		}
		cleanCols[c] = true
	}
	if !cleanCols["Timestamp_UTC"] {
		p.errorf("cleaned table is missing Timestamp_UTC")
	}

	dropped := map[string]string{}
	for _, row := range reportRows {
		dropped[row.fields["column"]] = row.fields["reason"]
	}
	for c := range regCols {
		if cleanCols[c] {
			continue
		}
		if _, ok := dropped[c]; !ok {
			p.errorf("column %q was dropped but is absent from the prune report", c)
		}
	}
	for c, reason := range dropped {
		if cleanCols[c] {
			p.errorf("report lists %q (%s) but the column survives in the cleaned table", c, reason)
		}
		if !regCols[c] {
			p.errorf("report lists %q which never existed in the regional table", c)
		}
	}

	if len(cleanRows) != len(regRows) {
		p.errorf("row count: regional has %d rows, cleaned has %d", len(regRows), len(cleanRows))
		return p
	}
	for i := range cleanRows {
		for _, c := range cleanHeader {
			if cleanRows[i].fields[c] != regRows[i].fields[c] {
				p.errorf("line %d: column %q: cleaned=%q, regional=%q",
					cleanRows[i].lineNum, c, cleanRows[i].fields[c], regRows[i].fields[c])
			}
		}
	}
	return p
}

// ── Data loading ──

// csvRow is a parsed CSV row with field values keyed by header name.
type csvRow struct {
	lineNum int
	fields  map[string]string
}

func loadCSV(path string) ([]csvRow, []string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	all, err := r.ReadAll()
	if err != nil {
		return nil, nil, err
	}
	if len(all) == 0 {
		return nil, nil, fmt.Errorf("empty file %s", path)
	}

	header := all[0]
	var rows []csvRow
	for i, row := range all[1:] {
		fields := make(map[string]string, len(header))
		for j, h := range header {
			if j < len(row) {
				fields[h] = row[j]
			}
		}
		rows = append(rows, csvRow{lineNum: i + 2, fields: fields})
	}
	return rows, header, nil
}

// floatEq compares within tol, sized to absorb the %.4f rounding the
// pipeline applies on output.
func floatEq(a, b, tol float64) bool {
	return math.Abs(a-b) < tol
}
