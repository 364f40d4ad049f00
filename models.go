package paging

import "fmt"

// LoadStateKind enumerates the coarse load states of a paginator.
type LoadStateKind int

const (
	// Initial means the first page has not been loaded yet.
	Initial LoadStateKind = iota

	// Idle means no load is in flight and more data may exist.
	Idle

	// Next means at least one non-initial load is in flight.
	Next

	// End means the store confirms no further pages exist.
	End

	// Error means the latest load failed and nothing is cached to fall back on.
	Error
)

// LoadState is the state observed by the UI. Message is only set for Error.
type LoadState struct {
	Kind    LoadStateKind
	Message string
}

var (
	// StateInitial is the state of a new or reset paginator.
	StateInitial = LoadState{Kind: Initial}

	// StateIdle is the state once every load has drained and more data exists.
	StateIdle = LoadState{Kind: Idle}

	// StateNext is the state while non-initial loads are in flight.
	StateNext = LoadState{Kind: Next}

	// StateEnd is the state once every load has drained and no data is left.
	StateEnd = LoadState{Kind: End}
)

// StateError returns the error state carrying message.
func StateError(message string) LoadState {
	return LoadState{Kind: Error, Message: message}
}

// IsError reports whether the state is an error.
func (s LoadState) IsError() bool {
	return s.Kind == Error
}

func (s LoadState) String() string {
	switch s.Kind {
	case Initial:
		return "INITIAL"
	case Idle:
		return "IDLE"
	case Next:
		return "NEXT"
	case End:
		return "END"
	case Error:
		return fmt.Sprintf("ERROR(%s)", s.Message)
	default:
		return fmt.Sprintf("LoadState(%d)", int(s.Kind))
	}
}
