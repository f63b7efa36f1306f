// Writer implementation printing statistics to STDOUT
package sim

import (
	"encoding/json"
	"fmt"

	"spreadsim/internal/stats"
)

// StdoutWriter prints year statistics rows to STDOUT as JSON lines.
type StdoutWriter struct{}

// Write outputs a single year statistics row.
func (w *StdoutWriter) Write(row stats.YearStats) error {
	data, _ := json.Marshal(row)
	fmt.Println(string(data))
	return nil
}

// WriteBatch outputs multiple year statistics rows.
func (w *StdoutWriter) WriteBatch(rows []stats.YearStats) error {
	for _, r := range rows {
		_ = w.Write(r)
	}
	return nil
}

// WriteArtifact prints an artifact record to STDOUT.
func (w *StdoutWriter) WriteArtifact(row stats.Artifact) error {
	data, _ := json.Marshal(row)
	fmt.Println(string(data))
	return nil
}

// WriteArtifacts prints multiple artifact records.
func (w *StdoutWriter) WriteArtifacts(rows []stats.Artifact) error {
	for _, r := range rows {
		_ = w.WriteArtifact(r)
	}
	return nil
}
