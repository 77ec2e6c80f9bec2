package pipeline

import (
	"bufio"
	"context"
	"encoding/csv"
	"fmt"
	"log/slog"
	"os"

	"github.com/meteodk/dmi-preprocess/internal/domain"
	"github.com/meteodk/dmi-preprocess/internal/fsio"
	"github.com/meteodk/dmi-preprocess/internal/observability"
)

// Drop reasons recorded in the prune report.
const (
	reasonSparse        = "sparse"
	reasonQuasiConstant = "quasi_constant"
)

// columnVerdict is the per-column decision with the evidence behind it.
type columnVerdict struct {
	Column   string
	Reason   string
	Fraction float64 // missing fraction (sparse) or dominant-value share (quasi_constant)
	Dominant string  // the repeated value, for quasi_constant only
}

// ColumnPruner drops columns of the wide regional table that carry no
// information: mostly empty (missing fraction strictly above the sparsity
// threshold, measured against all rows) or quasi-constant (one value
// strictly above the dominance threshold of the non-missing cells). Columns
// on the keep list bypass both checks unconditionally. The input is never
// mutated; a new table is written alongside a report enumerating every
// dropped column and why, the audit trail for the disappearance.
type ColumnPruner struct {
	Input      string
	Output     string
	ReportPath string

	SparsityThreshold  float64
	DominanceThreshold float64

	keep map[string]struct{}

	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewColumnPruner creates the column-pruning stage.
func NewColumnPruner(input, output, reportPath string, sparsity, dominance float64, keep []string, logger *slog.Logger, metrics *observability.Metrics) *ColumnPruner {
	keepSet := make(map[string]struct{}, len(keep))
	for _, c := range keep {
		keepSet[c] = struct{}{}
	}
	return &ColumnPruner{
		Input:              input,
		Output:             output,
		ReportPath:         reportPath,
		SparsityThreshold:  sparsity,
		DominanceThreshold: dominance,
		keep:               keepSet,
		logger:             logger,
		metrics:            metrics,
	}
}

func (p *ColumnPruner) Name() string { return "prune" }

func (p *ColumnPruner) Run(ctx context.Context) error {
	in, err := os.Open(p.Input)
	if err != nil {
		return fmt.Errorf("open input: %w", err)
	}
	defer in.Close()

	reader := csv.NewReader(in)
	rows, err := reader.ReadAll()
	if err != nil {
		return fmt.Errorf("read input: %w", err)
	}
	if len(rows) == 0 {
		return fmt.Errorf("input %s has no header", p.Input)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	header := rows[0]
	data := rows[1:]

	var dropped []columnVerdict
	keepIdx := make([]int, 0, len(header))
	for i, name := range header {
		if verdict, drop := p.judgeColumn(name, i, data); drop {
			dropped = append(dropped, verdict)
			continue
		}
		keepIdx = append(keepIdx, i)
	}

	if err := p.writeTable(header, data, keepIdx); err != nil {
		return err
	}
	if err := p.writeReport(len(data), dropped); err != nil {
		return err
	}

	for _, v := range dropped {
		p.metrics.ColumnsDropped.WithLabelValues(v.Reason).Inc()
		p.logger.Info("column dropped", "column", v.Column, "reason", v.Reason, "fraction", v.Fraction)
	}
	p.metrics.RowsWritten.WithLabelValues(p.Name()).Add(float64(len(data)))
	p.logger.Info("table pruned",
		"file", p.Input, "rows", len(data),
		"columns_kept", len(keepIdx), "columns_dropped", len(dropped))
	return nil
}

// judgeColumn applies the sparsity check and then the dominance check, both
// with strict inequality: a fraction exactly at its threshold keeps the
// column. Dominance is computed only over present cells, after sparsity has
// had its chance, so a tiny non-missing remainder cannot hide behind a small
// denominator.
func (p *ColumnPruner) judgeColumn(name string, idx int, data [][]string) (columnVerdict, bool) {
	if _, ok := p.keep[name]; ok {
		return columnVerdict{}, false
	}
	if len(data) == 0 {
		return columnVerdict{}, false
	}

	missing := 0
	valueCounts := make(map[string]int)
	for _, row := range data {
		cell := row[idx]
		if cell == "" {
			missing++
			continue
		}
		valueCounts[cell]++
	}

	if frac := float64(missing) / float64(len(data)); frac > p.SparsityThreshold {
		return columnVerdict{Column: name, Reason: reasonSparse, Fraction: frac}, true
	}

	present := len(data) - missing
	if present == 0 {
		return columnVerdict{}, false
	}
	topValue, topCount := "", 0
	for v, c := range valueCounts {
		if c > topCount || (c == topCount && v < topValue) {
			topValue, topCount = v, c
		}
	}
	if frac := float64(topCount) / float64(present); frac > p.DominanceThreshold {
		return columnVerdict{Column: name, Reason: reasonQuasiConstant, Fraction: frac, Dominant: topValue}, true
	}

	return columnVerdict{}, false
}

func (p *ColumnPruner) writeTable(header []string, data [][]string, keepIdx []int) error {
	return fsio.WriteAtomic(p.Output, func(w *bufio.Writer) error {
		writer := csv.NewWriter(w)

		project := func(row []string) []string {
			out := make([]string, len(keepIdx))
			for i, idx := range keepIdx {
				out[i] = row[idx]
			}
			return out
		}

		if err := writer.Write(project(header)); err != nil {
			return err
		}
		for _, row := range data {
			if err := writer.Write(project(row)); err != nil {
				return err
			}
		}
		writer.Flush()
		return writer.Error()
	})
}

// writeReport emits the audit artifact. Written even when nothing was
// dropped: downstream consumers check the report, not the absence of one.
func (p *ColumnPruner) writeReport(rows int, dropped []columnVerdict) error {
	return fsio.WriteAtomic(p.ReportPath, func(w *bufio.Writer) error {
		writer := csv.NewWriter(w)
		if err := writer.Write([]string{"column", "reason", "fraction", "dominant_value", "rows", "generated_at"}); err != nil {
			return err
		}
		generatedAt := domain.FormatUTC(domain.Now())
		for _, v := range dropped {
			rec := []string{
				v.Column,
				v.Reason,
				fmt.Sprintf("%.4f", v.Fraction),
				v.Dominant,
				fmt.Sprintf("%d", rows),
				generatedAt,
			}
			if err := writer.Write(rec); err != nil {
				return err
			}
		}
		writer.Flush()
		return writer.Error()
	})
}
