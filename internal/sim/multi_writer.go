package sim

import "spreadsim/internal/stats"

// MultiWriter fan-outs statistics and artifact rows to multiple writers.
type MultiWriter struct {
	statswriters []StatsWriter
	artwriters   []ArtifactWriter
}

// NewMultiWriter creates a new MultiWriter.
func NewMultiWriter(sws []StatsWriter, aws []ArtifactWriter) *MultiWriter {
	return &MultiWriter{statswriters: sws, artwriters: aws}
}

// Write sends a year statistics row to all writers.
func (mw *MultiWriter) Write(row stats.YearStats) error {
	for _, w := range mw.statswriters {
		if err := w.Write(row); err != nil {
			return err
		}
	}
	return nil
}

// WriteBatch sends multiple statistics rows to all writers, using batch if supported.
func (mw *MultiWriter) WriteBatch(rows []stats.YearStats) error {
	for _, w := range mw.statswriters {
		if bw, ok := w.(batchStatsWriter); ok {
			if err := bw.WriteBatch(rows); err != nil {
				return err
			}
			continue
		}
		for _, r := range rows {
			if err := w.Write(r); err != nil {
				return err
			}
		}
	}
	return nil
}

// WriteArtifact sends an artifact record to all artifact writers.
func (mw *MultiWriter) WriteArtifact(row stats.Artifact) error {
	for _, w := range mw.artwriters {
		if err := w.WriteArtifact(row); err != nil {
			return err
		}
	}
	return nil
}

// WriteArtifacts sends multiple artifacts to all artifact writers, using batch if supported.
func (mw *MultiWriter) WriteArtifacts(rows []stats.Artifact) error {
	for _, w := range mw.artwriters {
		if bw, ok := w.(batchArtifactWriter); ok {
			if err := bw.WriteArtifacts(rows); err != nil {
				return err
			}
			continue
		}
		for _, r := range rows {
			if err := w.WriteArtifact(r); err != nil {
				return err
			}
		}
	}
	return nil
}
