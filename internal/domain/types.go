package domain

// State represents the lifecycle state of a command
type State string

const (
	StatePending State = "pending"
	StatePassed  State = "passed"
	StateFailed  State = "failed"
	StateWarn    State = "warn"
)

// ParseState returns the State for s and whether s named a known state
func ParseState(s string) (State, bool) {
	switch State(s) {
	case StatePending, StatePassed, StateFailed, StateWarn:
		return State(s), true
	}
	return "", false
}

// IsTerminal reports whether no further state transition is allowed
func (s State) IsTerminal() bool {
	return s != StatePending
}

// CommandType distinguishes user-issued parent commands from chained children
type CommandType string

const (
	TypeParent CommandType = "parent"
	TypeChild  CommandType = "child"
)

// ParseCommandType returns the CommandType for s and whether s was known
func ParseCommandType(s string) (CommandType, bool) {
	switch CommandType(s) {
	case TypeParent, TypeChild:
		return CommandType(s), true
	}
	return "", false
}

// Indicator is the status dot rendered next to network event messages
type Indicator string

const (
	IndicatorSuccessful Indicator = "successful"
	IndicatorPending    Indicator = "pending"
	IndicatorAborted    Indicator = "aborted"
	IndicatorBad        Indicator = "bad"
)
