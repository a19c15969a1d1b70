package device

// State is a position in the backend lifecycle:
//
//	Closed → Opening → Open → StreamReady ↔ Streaming → Closing → Closed
type State int

const (
	Closed State = iota
	Opening
	Open
	StreamReady
	Streaming
	Closing
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Opening:
		return "opening"
	case Open:
		return "open"
	case StreamReady:
		return "stream-ready"
	case Streaming:
		return "streaming"
	case Closing:
		return "closing"
	default:
		return "unknown"
	}
}

// Direction selects the receive or transmit path.
type Direction int

const (
	RX Direction = iota
	TX
)

func (d Direction) String() string {
	if d == TX {
		return "tx"
	}
	return "rx"
}
