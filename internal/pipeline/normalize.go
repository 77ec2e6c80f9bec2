package pipeline

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/meteodk/dmi-preprocess/internal/domain"
	"github.com/meteodk/dmi-preprocess/internal/fsio"
	"github.com/meteodk/dmi-preprocess/internal/observability"
)

// TimestampNormalizer rewrites the configured time fields inside each
// record's "properties" to canonical UTC, in place. Lines that are not valid
// JSON pass through verbatim, preserving line-for-line correspondence with
// the input; a field already in canonical form is left untouched so re-runs
// rewrite nothing. The file is replaced atomically on completion.
type TimestampNormalizer struct {
	Path       string
	TimeFields []string

	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewTimestampNormalizer creates the normalization stage for one file.
func NewTimestampNormalizer(path string, timeFields []string, logger *slog.Logger, metrics *observability.Metrics) *TimestampNormalizer {
	return &TimestampNormalizer{Path: path, TimeFields: timeFields, logger: logger, metrics: metrics}
}

func (n *TimestampNormalizer) Name() string { return "normalize" }

func (n *TimestampNormalizer) Run(ctx context.Context) error {
	in, err := os.Open(n.Path)
	if err != nil {
		return fmt.Errorf("open input: %w", err)
	}
	defer in.Close()

	var lines, passthrough int64
	var rewritten int64

	err = fsio.WriteAtomic(n.Path, func(w *bufio.Writer) error {
		sc := fsio.NewLineScanner(in)
		for sc.Scan() {
			if err := ctx.Err(); err != nil {
				return err
			}
			line := sc.Bytes()
			if len(line) == 0 {
				continue
			}
			lines++

			out, changed, ok := n.normalizeLine(line)
			if !ok {
				// Not structured data; carry the line as-is.
				passthrough++
				out = line
			}
			rewritten += changed

			if _, err := w.Write(out); err != nil {
				return err
			}
			if err := w.WriteByte('\n'); err != nil {
				return err
			}
		}
		return sc.Err()
	})
	if err != nil {
		return err
	}

	n.metrics.LinesRead.WithLabelValues(n.Name()).Add(float64(lines))
	n.metrics.RowsWritten.WithLabelValues(n.Name()).Add(float64(lines))
	n.metrics.TimestampsRewritten.Add(float64(rewritten))
	n.logger.Info("timestamps normalized",
		"file", n.Path, "lines", lines, "rewritten", rewritten, "passthrough", passthrough)
	return nil
}

// normalizeLine rewrites time fields in one record. Returns the serialized
// record, the number of fields changed, and false when the line is not JSON.
// Numbers decode as json.Number so re-serialization keeps their exact
// literals; integers wider than a float64 mantissa come through undamaged.
func (n *TimestampNormalizer) normalizeLine(line []byte) ([]byte, int64, bool) {
	dec := json.NewDecoder(bytes.NewReader(line))
	dec.UseNumber()
	var record map[string]any
	if err := dec.Decode(&record); err != nil || dec.More() {
		return nil, 0, false
	}

	var changed int64
	if props, ok := record["properties"].(map[string]any); ok {
		for _, field := range n.TimeFields {
			raw, ok := props[field].(string)
			if !ok {
				continue
			}
			if normalized := domain.NormalizeToUTC(raw); normalized != raw {
				props[field] = normalized
				changed++
			}
		}
	}

	if changed == 0 {
		// Nothing rewritten: keep the original bytes so untouched lines
		// survive re-serialization byte for byte.
		return line, 0, true
	}

	out, err := json.Marshal(record)
	if err != nil {
		return line, 0, true
	}
	return out, changed, true
}
