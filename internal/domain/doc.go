// Package domain models DMI (Danish Meteorological Institute) weather-station
// observations and the rules for cleaning and partitioning them.
//
// # Data Source
//
// Observations come from the DMI metObs bulk archive as line-delimited JSON:
// one GeoJSON-style feature per line, with the measurement under "properties"
// and the station position under "geometry". A record carries a station ID, a
// parameter ID (e.g. temp_dry, wind_speed), a float value, and one or more
// time fields. Files are append-only per-station dumps merged into a yearly
// corpus before processing.
//
// # Timestamps
//
// Time fields (from, to, created, calculatedAt, observed) are ISO-8601 strings
// that may carry any offset or none at all. [NormalizeToUTC] rewrites them to
// the same instant in UTC with an explicit "+00:00" offset; strings that do
// not parse as timestamps are returned unchanged so a bad field never kills
// the surrounding record. Timestamps without an offset are taken as UTC,
// which keeps re-runs reproducible across hosts.
//
// # Price zones
//
// Denmark's electricity market is split into two bidding zones: DK1 (Jutland
// and Funen, west of the Great Belt) and DK2 (Zealand, Bornholm and the
// eastern islands). [Classifier.Classify] assigns each observation to a zone:
// the station catalog is authoritative, and for uncatalogued stations a
// longitude cutoff (about 11.0°E over the Great Belt) decides west vs east.
// Records that match neither rule are UNKNOWN and excluded from both zones.
//
// # Hour buckets
//
// Aggregation happens per hour: [HourBucket] truncates an observation time to
// zero minutes and seconds. [FormatHour] renders a bucket without an offset
// ("2024-01-01T14:00:00"), which sorts chronologically as a plain string.
package domain
