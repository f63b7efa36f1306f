package sim

import (
	"fmt"

	"spreadsim/internal/raster"
	"spreadsim/internal/stats"
	"spreadsim/internal/store"
)

// StatsWriter receives per-run statistics at every year close.
type StatsWriter interface {
	Write(row stats.YearStats) error
}

// ArtifactWriter receives a record for every saved ensemble raster.
type ArtifactWriter interface {
	WriteArtifact(row stats.Artifact) error
}

type batchStatsWriter interface {
	WriteBatch(rows []stats.YearStats) error
}

type batchArtifactWriter interface {
	WriteArtifacts(rows []stats.Artifact) error
}

// ArtifactName builds the raster name for an output saved at date, e.g.
// "infected_2003_12_31".
func ArtifactName(basename string, d Date) string {
	return fmt.Sprintf("%s_%d_%02d_%02d", basename, d.Year, d.Month, d.Day)
}

// saveIntArtifact writes one int raster to the store and records it.
func saveIntArtifact(st store.Store, aw ArtifactWriter, sessionID, name, kind string, d Date, g *raster.Grid[int]) error {
	if err := st.WriteInt(name, g); err != nil {
		return fmt.Errorf("save %s: %w", name, err)
	}
	if aw != nil {
		return aw.WriteArtifact(stats.Artifact{
			SessionID: sessionID,
			Kind:      kind,
			Name:      name,
			Year:      d.Year,
			Timestamp: d.Time(),
		})
	}
	return nil
}

// saveFloatArtifact writes one float raster to the store and records it.
func saveFloatArtifact(st store.Store, aw ArtifactWriter, sessionID, name, kind string, d Date, g *raster.Grid[float64]) error {
	if err := st.WriteFloat(name, g); err != nil {
		return fmt.Errorf("save %s: %w", name, err)
	}
	if aw != nil {
		return aw.WriteArtifact(stats.Artifact{
			SessionID: sessionID,
			Kind:      kind,
			Name:      name,
			Year:      d.Year,
			Timestamp: d.Time(),
		})
	}
	return nil
}
