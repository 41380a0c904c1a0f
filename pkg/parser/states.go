package parser

// State is the phase the parser is in.
type State uint8

const (
	AwaitingStatusLine State = iota
	AwaitingHeaders
	AwaitingBody
	Done
	Failed
)

func (s State) String() string {
	switch s {
	case AwaitingStatusLine:
		return "awaiting-status-line"
	case AwaitingHeaders:
		return "awaiting-headers"
	case AwaitingBody:
		return "awaiting-body"
	case Done:
		return "done"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether no more input will be accepted.
func (s State) Terminal() bool {
	return s == Done || s == Failed
}
