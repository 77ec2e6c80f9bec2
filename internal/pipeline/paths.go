package pipeline

import (
	"path/filepath"

	"github.com/meteodk/dmi-preprocess/internal/domain"
)

// ZonePaths names every artifact produced for one price zone.
type ZonePaths struct {
	Records     string // zone-partitioned observation lines (JSONL)
	StationHour string // per-station hourly averages (CSV)
	Regional    string // wide regional time series (CSV)
	Cleaned     string // pruned regional time series (CSV)
	PruneReport string // audit trail of dropped columns (CSV)
}

// Paths is the explicit file set connecting the stages of one run. Stages
// receive these paths directly; nothing downstream globs for its input.
type Paths struct {
	Corpus string
	DK1    ZonePaths
	DK2    ZonePaths
}

// DefaultPaths lays out all artifacts under outputDir.
func DefaultPaths(outputDir string) Paths {
	zone := func(z domain.Zone) ZonePaths {
		prefix := filepath.Join(outputDir, string(z))
		return ZonePaths{
			Records:     prefix + "_records.jsonl",
			StationHour: prefix + "_hourly_avg.csv",
			Regional:    prefix + "_regional_timeseries.csv",
			Cleaned:     prefix + "_regional_timeseries_cleaned.csv",
			PruneReport: prefix + "_prune_report.csv",
		}
	}
	return Paths{
		Corpus: filepath.Join(outputDir, "corpus.jsonl"),
		DK1:    zone(domain.ZoneDK1),
		DK2:    zone(domain.ZoneDK2),
	}
}
