package main

import (
	"fmt"
	"os"
	"strconv"

	"spreadsim/internal/sim"
)

// newWriters sets up stats and artifact writers based on flags and env vars.
// It returns the writers and a cleanup function to close any resources.
func newWriters(printOnly bool, logFile string) (sim.StatsWriter, sim.ArtifactWriter, func(), error) {
	cleanup := func() {}

	writer, artifact, err := baseWriters(printOnly)
	if err != nil {
		return nil, nil, nil, err
	}
	if logFile == "" {
		return writer, artifact, cleanup, nil
	}

	fw, err := sim.NewFileWriter(logFile, logFile+".artifacts")
	if err != nil {
		return nil, nil, nil, err
	}
	mw := sim.NewMultiWriter(
		[]sim.StatsWriter{writer, fw},
		[]sim.ArtifactWriter{artifact, fw},
	)
	cleanup = func() { fw.Close() }
	return mw, mw, cleanup, nil
}

// baseWriters chooses the underlying writers based on printOnly flag and env vars.
func baseWriters(printOnly bool) (sim.StatsWriter, sim.ArtifactWriter, error) {
	if printOnly || os.Getenv("GREPTIMEDB_ENDPOINT") == "" {
		w := sim.NewColorStdoutWriter()
		return w, w, nil
	}

	endpoint := os.Getenv("GREPTIMEDB_ENDPOINT")
	database := os.Getenv("GREPTIMEDB_DATABASE")
	if database == "" {
		database = "public"
	}
	port := 4001
	if p := os.Getenv("GREPTIMEDB_PORT"); p != "" {
		v, err := strconv.Atoi(p)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid GREPTIMEDB_PORT: %w", err)
		}
		port = v
	}
	w, err := sim.NewGreptimeDBWriter(endpoint, database, port)
	if err != nil {
		return nil, nil, err
	}
	return w, w, nil
}

// newStatsWriter creates a stats writer without artifact handling.
func newStatsWriter(printOnly bool) (sim.StatsWriter, error) {
	w, _, _, err := newWriters(printOnly, "")
	return w, err
}
