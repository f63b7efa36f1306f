package sim

import (
	"encoding/json"
	"os"

	"spreadsim/internal/stats"
)

// FileWriter writes year statistics and artifact records to JSONL files.
type FileWriter struct {
	statsFile *os.File
	artFile   *os.File
	statsEnc  *json.Encoder
	artEnc    *json.Encoder
}

// NewFileWriter creates a FileWriter. artifactPath may be empty to skip
// the artifact log.
func NewFileWriter(statsPath, artifactPath string) (*FileWriter, error) {
	sf, err := os.Create(statsPath)
	if err != nil {
		return nil, err
	}
	fw := &FileWriter{statsFile: sf, statsEnc: json.NewEncoder(sf)}
	if artifactPath != "" {
		af, err := os.Create(artifactPath)
		if err != nil {
			sf.Close()
			return nil, err
		}
		fw.artFile = af
		fw.artEnc = json.NewEncoder(af)
	}
	return fw, nil
}

// Write logs a single year statistics row.
func (f *FileWriter) Write(row stats.YearStats) error {
	return f.statsEnc.Encode(row)
}

// WriteBatch logs multiple year statistics rows.
func (f *FileWriter) WriteBatch(rows []stats.YearStats) error {
	for _, r := range rows {
		if err := f.Write(r); err != nil {
			return err
		}
	}
	return nil
}

// WriteArtifact logs a single artifact record, if enabled.
func (f *FileWriter) WriteArtifact(row stats.Artifact) error {
	if f.artEnc == nil {
		return nil
	}
	return f.artEnc.Encode(row)
}

// WriteArtifacts logs multiple artifact records.
func (f *FileWriter) WriteArtifacts(rows []stats.Artifact) error {
	for _, r := range rows {
		if err := f.WriteArtifact(r); err != nil {
			return err
		}
	}
	return nil
}

// Close closes the underlying files.
func (f *FileWriter) Close() error {
	var err error
	if f.statsFile != nil {
		if e := f.statsFile.Close(); e != nil && err == nil {
			err = e
		}
	}
	if f.artFile != nil {
		if e := f.artFile.Close(); e != nil && err == nil {
			err = e
		}
	}
	return err
}
