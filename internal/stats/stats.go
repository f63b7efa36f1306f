// Stats rows with greptime tags
package stats

import (
	"os"
	"time"
)

// YearStats is one per-realization record emitted at every year close.
type YearStats struct {
	SessionID         string    `json:"session_id"` // TAG
	Run               int       `json:"run"`        // TAG
	Year              int       `json:"year"`       // FIELD
	Susceptible       int64     `json:"susceptible"`
	Infected          int64     `json:"infected"`
	InfectedCells     int64     `json:"infected_cells"`
	OutsideDispersers int64     `json:"outside_dispersers"`
	RateN             float64   `json:"rate_n"`
	RateS             float64   `json:"rate_s"`
	RateE             float64   `json:"rate_e"`
	RateW             float64   `json:"rate_w"`
	Timestamp         time.Time `json:"ts"` // TIME INDEX
}

// YearStatsTableName holds the table name used when writing to GreptimeDB.
// It defaults to "spread_year_stats" but can be overridden via the
// SPREADSIM_STATS_TABLE environment variable.
var YearStatsTableName = func() string {
	if env := os.Getenv("SPREADSIM_STATS_TABLE"); env != "" {
		return env
	}
	return "spread_year_stats"
}()

func (YearStats) TableName() string {
	return YearStatsTableName
}

// Artifact output kinds.
const (
	ArtifactMean        = "mean"
	ArtifactStdDev      = "stddev"
	ArtifactProbability = "probability"
	ArtifactSingleRun   = "single_run"
)

// Artifact records one saved ensemble raster.
type Artifact struct {
	SessionID string    `json:"session_id"` // TAG
	Kind      string    `json:"kind"`       // TAG
	Name      string    `json:"name"`
	Year      int       `json:"year"`
	Timestamp time.Time `json:"ts"` // TIME INDEX
}

// ArtifactTableName can be overridden via SPREADSIM_ARTIFACT_TABLE.
var ArtifactTableName = func() string {
	if env := os.Getenv("SPREADSIM_ARTIFACT_TABLE"); env != "" {
		return env
	}
	return "spread_artifacts"
}()

func (Artifact) TableName() string {
	return ArtifactTableName
}
