package steering

import (
	"fmt"
	"strconv"
	"strings"
)

// Wire protocol delimiters: frames carry messages separated by ';', fields
// within a message are separated by ':'.
const (
	frameSep = ";"
	fieldSep = ":"
)

// parseMessage turns one wire message into a Command. Recognized forms:
//
//	cmd:play | cmd:pause | cmd:stepf | cmd:stepb | cmd:stop
//	load:<year>:<name>
//	name:<basename>
//	goto:<year>
//	sync
func parseMessage(msg string) (Command, error) {
	fields := strings.Split(msg, fieldSep)
	switch fields[0] {
	case "cmd":
		if len(fields) != 2 {
			return Command{}, fmt.Errorf("cmd message needs one field: %q", msg)
		}
		switch fields[1] {
		case "play":
			return Command{Kind: Play}, nil
		case "pause":
			return Command{Kind: Pause}, nil
		case "stepf":
			return Command{Kind: StepForward}, nil
		case "stepb":
			return Command{Kind: StepBack}, nil
		case "stop":
			return Command{Kind: Stop}, nil
		}
		return Command{}, fmt.Errorf("unknown cmd token %q", fields[1])
	case "load":
		if len(fields) != 3 {
			return Command{}, fmt.Errorf("load message needs year and name: %q", msg)
		}
		year, err := strconv.Atoi(fields[1])
		if err != nil {
			return Command{}, fmt.Errorf("load year: %w", err)
		}
		return Command{Kind: LoadData, Year: year, Name: fields[2]}, nil
	case "name":
		if len(fields) != 2 || fields[1] == "" {
			return Command{}, fmt.Errorf("name message needs a basename: %q", msg)
		}
		return Command{Kind: ChangeName, Name: fields[1]}, nil
	case "goto":
		if len(fields) != 2 {
			return Command{}, fmt.Errorf("goto message needs a year: %q", msg)
		}
		year, err := strconv.Atoi(fields[1])
		if err != nil {
			return Command{}, fmt.Errorf("goto year: %w", err)
		}
		return Command{Kind: GoTo, Year: year}, nil
	case "sync":
		return Command{Kind: SyncRuns}, nil
	}
	return Command{}, fmt.Errorf("unrecognized message %q", msg)
}
