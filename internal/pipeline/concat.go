package pipeline

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"github.com/meteodk/dmi-preprocess/internal/fsio"
	"github.com/meteodk/dmi-preprocess/internal/observability"
)

// Concatenator streams every raw per-station file matching Glob into one
// corpus file, in sorted filename order. Line-at-a-time so input size never
// matters; a file missing its final newline still separates cleanly from the
// next one.
type Concatenator struct {
	Glob   string
	Output string

	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewConcatenator creates the corpus-merge stage.
func NewConcatenator(glob, output string, logger *slog.Logger, metrics *observability.Metrics) *Concatenator {
	return &Concatenator{Glob: glob, Output: output, logger: logger, metrics: metrics}
}

func (c *Concatenator) Name() string { return "concat" }

func (c *Concatenator) Run(ctx context.Context) error {
	files, err := filepath.Glob(c.Glob)
	if err != nil {
		return fmt.Errorf("glob %q: %w", c.Glob, err)
	}
	if len(files) == 0 {
		c.logger.Info("no raw files found", "glob", c.Glob)
		return ErrNoInput
	}
	sort.Strings(files)

	c.logger.Info("merging raw files", "count", len(files), "output", c.Output)

	var lines int64
	err = fsio.WriteAtomic(c.Output, func(w *bufio.Writer) error {
		for _, path := range files {
			if err := ctx.Err(); err != nil {
				return err
			}
			n, err := appendFile(w, path)
			if err != nil {
				return err
			}
			lines += n
			c.logger.Debug("appended raw file", "file", filepath.Base(path), "lines", n)
		}
		return nil
	})
	if err != nil {
		return err
	}

	c.metrics.LinesRead.WithLabelValues(c.Name()).Add(float64(lines))
	c.metrics.RowsWritten.WithLabelValues(c.Name()).Add(float64(lines))
	c.logger.Info("corpus merged", "files", len(files), "lines", lines)
	return nil
}

func appendFile(w *bufio.Writer, path string) (int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	var lines int64
	sc := fsio.NewLineScanner(f)
	for sc.Scan() {
		if _, err := w.Write(sc.Bytes()); err != nil {
			return lines, err
		}
		if err := w.WriteByte('\n'); err != nil {
			return lines, err
		}
		lines++
	}
	if err := sc.Err(); err != nil {
		return lines, fmt.Errorf("read %s: %w", path, err)
	}
	return lines, nil
}
