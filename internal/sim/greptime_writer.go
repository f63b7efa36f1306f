package sim

import (
	"context"

	greptime "github.com/GreptimeTeam/greptimedb-ingester-go"
	"github.com/GreptimeTeam/greptimedb-ingester-go/table"
	"github.com/GreptimeTeam/greptimedb-ingester-go/table/types"

	gpb "github.com/GreptimeTeam/greptime-proto/go/greptime/v1"

	"spreadsim/internal/stats"
)

// greptimeClient is the subset of the ingester client the writer needs;
// tests substitute a mock.
type greptimeClient interface {
	Write(ctx context.Context, tables ...*table.Table) (*gpb.GreptimeResponse, error)
}

// GreptimeDBWriter writes year statistics and artifact records to
// GreptimeDB via the ingester client.
type GreptimeDBWriter struct {
	client        greptimeClient
	statsTable    string
	artifactTable string
}

// NewGreptimeDBWriter creates a new GreptimeDB writer.
func NewGreptimeDBWriter(host, database string, port int) (*GreptimeDBWriter, error) {
	cfg := greptime.NewConfig(host).WithDatabase(database)
	if port > 0 {
		cfg.WithPort(port)
	}
	client, err := greptime.NewClient(cfg)
	if err != nil {
		return nil, err
	}
	return &GreptimeDBWriter{
		client:        client,
		statsTable:    stats.YearStatsTableName,
		artifactTable: stats.ArtifactTableName,
	}, nil
}

// Write inserts a single year statistics row.
func (w *GreptimeDBWriter) Write(row stats.YearStats) error {
	return w.WriteBatch([]stats.YearStats{row})
}

// WriteBatch inserts multiple year statistics rows.
func (w *GreptimeDBWriter) WriteBatch(rows []stats.YearStats) error {
	if len(rows) == 0 {
		return nil
	}

	tbl, err := table.New(w.statsTable)
	if err != nil {
		return err
	}
	tbl.AddTagColumn("session_id", types.STRING)
	tbl.AddTagColumn("run", types.INT64)
	tbl.AddFieldColumn("year", types.INT64)
	tbl.AddFieldColumn("susceptible", types.INT64)
	tbl.AddFieldColumn("infected", types.INT64)
	tbl.AddFieldColumn("infected_cells", types.INT64)
	tbl.AddFieldColumn("outside_dispersers", types.INT64)
	tbl.AddFieldColumn("rate_n", types.FLOAT)
	tbl.AddFieldColumn("rate_s", types.FLOAT)
	tbl.AddFieldColumn("rate_e", types.FLOAT)
	tbl.AddFieldColumn("rate_w", types.FLOAT)
	tbl.AddTimestampColumn("ts", types.TIMESTAMP_MILLISECOND)

	for _, r := range rows {
		if err := tbl.AddRow(
			r.SessionID, int64(r.Run), int64(r.Year),
			r.Susceptible, r.Infected, r.InfectedCells, r.OutsideDispersers,
			r.RateN, r.RateS, r.RateE, r.RateW,
			r.Timestamp,
		); err != nil {
			return err
		}
	}

	_, err = w.client.Write(context.Background(), tbl)
	return err
}

// WriteArtifact inserts a single artifact record.
func (w *GreptimeDBWriter) WriteArtifact(row stats.Artifact) error {
	return w.WriteArtifacts([]stats.Artifact{row})
}

// WriteArtifacts inserts multiple artifact records.
func (w *GreptimeDBWriter) WriteArtifacts(rows []stats.Artifact) error {
	if len(rows) == 0 {
		return nil
	}

	tbl, err := table.New(w.artifactTable)
	if err != nil {
		return err
	}
	tbl.AddTagColumn("session_id", types.STRING)
	tbl.AddTagColumn("kind", types.STRING)
	tbl.AddFieldColumn("name", types.STRING)
	tbl.AddFieldColumn("year", types.INT64)
	tbl.AddTimestampColumn("ts", types.TIMESTAMP_MILLISECOND)

	for _, r := range rows {
		if err := tbl.AddRow(r.SessionID, r.Kind, r.Name, int64(r.Year), r.Timestamp); err != nil {
			return err
		}
	}

	_, err = w.client.Write(context.Background(), tbl)
	return err
}
