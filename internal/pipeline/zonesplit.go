package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/meteodk/dmi-preprocess/internal/domain"
	"github.com/meteodk/dmi-preprocess/internal/fsio"
	"github.com/meteodk/dmi-preprocess/internal/observability"
)

// ZoneSplitter partitions the corpus into two zone files in a single pass,
// writing matched lines verbatim to the open output for their zone. Memory
// stays O(1) in record count. UNKNOWN records are counted and land in
// neither output; a malformed line is logged and skipped.
type ZoneSplitter struct {
	Input     string
	DK1Output string
	DK2Output string

	classifier *domain.Classifier
	logger     *slog.Logger
	metrics    *observability.Metrics
}

// NewZoneSplitter creates the zone-partition stage.
func NewZoneSplitter(input, dk1Output, dk2Output string, classifier *domain.Classifier, logger *slog.Logger, metrics *observability.Metrics) *ZoneSplitter {
	return &ZoneSplitter{
		Input:      input,
		DK1Output:  dk1Output,
		DK2Output:  dk2Output,
		classifier: classifier,
		logger:     logger,
		metrics:    metrics,
	}
}

func (s *ZoneSplitter) Name() string { return "zonesplit" }

func (s *ZoneSplitter) Run(ctx context.Context) error {
	in, err := os.Open(s.Input)
	if err != nil {
		return fmt.Errorf("open input: %w", err)
	}
	defer in.Close()

	dk1, err := fsio.NewAtomicFile(s.DK1Output)
	if err != nil {
		return err
	}
	dk2, err := fsio.NewAtomicFile(s.DK2Output)
	if err != nil {
		dk1.Discard()
		return err
	}

	counts := map[domain.Zone]int64{}
	var lineNum, parseErrors int64

	sc := fsio.NewLineScanner(in)
	for sc.Scan() {
		if err := ctx.Err(); err != nil {
			dk1.Discard()
			dk2.Discard()
			return err
		}
		line := sc.Bytes()
		lineNum++
		if len(line) == 0 {
			continue
		}

		var rec domain.ObservationRecord
		if err := json.Unmarshal(line, &rec); err != nil {
			parseErrors++
			s.logger.Warn("skipping invalid line", "line", lineNum, "error", err)
			continue
		}

		zone := s.classifier.Classify(rec.Properties.StationID, rec.Geometry)
		counts[zone]++

		var out *fsio.AtomicFile
		switch zone {
		case domain.ZoneDK1:
			out = dk1
		case domain.ZoneDK2:
			out = dk2
		default:
			// Never silently land an unclassified record in either bucket.
			continue
		}
		if _, err := out.Writer().Write(line); err != nil {
			dk1.Discard()
			dk2.Discard()
			return err
		}
		if err := out.Writer().WriteByte('\n'); err != nil {
			dk1.Discard()
			dk2.Discard()
			return err
		}
	}
	if err := sc.Err(); err != nil {
		dk1.Discard()
		dk2.Discard()
		return fmt.Errorf("read input: %w", err)
	}

	if err := dk1.Commit(); err != nil {
		dk2.Discard()
		return err
	}
	if err := dk2.Commit(); err != nil {
		return err
	}

	s.metrics.LinesRead.WithLabelValues(s.Name()).Add(float64(lineNum))
	s.metrics.RecordsSkipped.WithLabelValues(s.Name(), "parse").Add(float64(parseErrors))
	for zone, count := range counts {
		s.metrics.ZoneRecords.WithLabelValues(string(zone)).Add(float64(count))
	}
	s.logger.Info("corpus split by zone",
		"dk1", counts[domain.ZoneDK1],
		"dk2", counts[domain.ZoneDK2],
		"unknown", counts[domain.ZoneUnknown],
		"parse_errors", parseErrors)
	return nil
}
