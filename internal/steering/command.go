// Package steering implements the live control channel of a running
// simulation: a typed command vocabulary, a thread-safe command queue, and
// the TCP session that bridges an external steering server to the scheduler.
package steering

// Kind identifies a steering command.
type Kind int

// Steering command kinds.
const (
	None Kind = iota
	Play
	Pause
	StepForward
	StepBack
	Stop
	GoTo
	LoadData
	ChangeName
	SyncRuns
)

// String returns the command kind name for logging.
func (k Kind) String() string {
	switch k {
	case None:
		return "none"
	case Play:
		return "play"
	case Pause:
		return "pause"
	case StepForward:
		return "step-forward"
	case StepBack:
		return "step-back"
	case Stop:
		return "stop"
	case GoTo:
		return "goto"
	case LoadData:
		return "load-data"
	case ChangeName:
		return "change-name"
	case SyncRuns:
		return "sync-runs"
	default:
		return "undefined"
	}
}

// Command is one steering instruction. Payload fields ride inside the
// command itself: Year for GoTo and LoadData, Name for LoadData and
// ChangeName. The zero value means "no command".
type Command struct {
	Kind Kind
	Year int
	Name string
}
