// ColorStdoutWriter prints human-friendly, colorized statistics to STDOUT.
package sim

import (
	"fmt"
	"io"
	"os"
	"time"

	"golang.org/x/term"

	"spreadsim/internal/stats"
)

const (
	colorReset   = "\x1b[0m"
	colorRed     = "\x1b[31m"
	colorGreen   = "\x1b[32m"
	colorYellow  = "\x1b[33m"
	colorBlue    = "\x1b[34m"
	colorMagenta = "\x1b[35m"
	colorCyan    = "\x1b[36m"
	colorGray    = "\x1b[90m"
)

// ColorStdoutWriter prints statistics rows using ANSI colors. Colors are
// disabled automatically when STDOUT is not a terminal.
type ColorStdoutWriter struct {
	out   io.Writer
	color bool
}

// NewColorStdoutWriter creates a ColorStdoutWriter writing to os.Stdout.
func NewColorStdoutWriter() *ColorStdoutWriter {
	return &ColorStdoutWriter{
		out:   os.Stdout,
		color: term.IsTerminal(int(os.Stdout.Fd())),
	}
}

func (w *ColorStdoutWriter) paint(color, s string) string {
	if !w.color {
		return s
	}
	return color + s + colorReset
}

// Write outputs a single year statistics row in colorized format.
func (w *ColorStdoutWriter) Write(row stats.YearStats) error {
	infColor := colorGreen
	if row.Infected > 0 {
		infColor = colorRed
	}
	fmt.Fprintf(w.out, "%s %s %s %s %s %s %s\n",
		w.paint(colorGray, "["+row.Timestamp.Format(time.RFC3339)+"]"),
		w.paint(colorBlue, fmt.Sprintf("run=%d", row.Run)),
		w.paint(colorCyan, fmt.Sprintf("year=%d", row.Year)),
		w.paint(infColor, fmt.Sprintf("infected=%d", row.Infected)),
		w.paint(colorGreen, fmt.Sprintf("susceptible=%d", row.Susceptible)),
		w.paint(colorYellow, fmt.Sprintf("cells=%d", row.InfectedCells)),
		w.paint(colorMagenta, fmt.Sprintf("outside=%d", row.OutsideDispersers)))
	return nil
}

// WriteBatch outputs multiple year statistics rows.
func (w *ColorStdoutWriter) WriteBatch(rows []stats.YearStats) error {
	for _, r := range rows {
		_ = w.Write(r)
	}
	return nil
}

// WriteArtifact prints a saved-output record to STDOUT.
func (w *ColorStdoutWriter) WriteArtifact(row stats.Artifact) error {
	fmt.Fprintf(w.out, "%s %s %s\n",
		w.paint(colorGray, "["+row.Timestamp.Format(time.RFC3339)+"]"),
		w.paint(colorMagenta, "OUTPUT"),
		w.paint(colorCyan, row.Kind+" "+row.Name))
	return nil
}

// WriteArtifacts prints multiple saved-output records.
func (w *ColorStdoutWriter) WriteArtifacts(rows []stats.Artifact) error {
	for _, r := range rows {
		_ = w.WriteArtifact(r)
	}
	return nil
}
