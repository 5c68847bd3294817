package transport

// State enumerates the eleven states a SimpTCP connection progresses
// through during its lifetime (spec.md §4.1).
type State uint8

const (
	StateClosed State = iota
	StateListen
	StateSynSent
	StateSynRcvd
	StateEstablished
	StateCloseWait
	StateFinWait1
	StateFinWait2
	StateClosing
	StateLastAck
	StateTimeWait
)

var stateNames = [...]string{
	StateClosed:      "CLOSED",
	StateListen:      "LISTEN",
	StateSynSent:     "SYN-SENT",
	StateSynRcvd:     "SYN-RCVD",
	StateEstablished: "ESTABLISHED",
	StateCloseWait:   "CLOSE-WAIT",
	StateFinWait1:    "FIN-WAIT-1",
	StateFinWait2:    "FIN-WAIT-2",
	StateClosing:     "CLOSING",
	StateLastAck:     "LAST-ACK",
	StateTimeWait:    "TIME-WAIT",
}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "UNKNOWN"
}

// IsClosed reports whether the CCB can be released: either it never
// existed past CLOSED or it is quiescing in TIME-WAIT.
func (s State) IsClosed() bool { return s == StateClosed || s == StateTimeWait }

// HasActiveConnection reports whether the state represents a connection
// that has been admitted to the descriptor table's demux path (i.e. not a
// bare CLOSED placeholder nor a LISTEN socket, which demuxes by kind
// rather than by 4-tuple).
func (s State) HasActiveConnection() bool {
	return s != StateClosed && s != StateListen
}

// ops returns the stateHandler implementation backing this state. Every
// State value maps to exactly one concrete type in dispatch.go's
// stateTable; every event is routed through this table instead of a single
// function with a switch per event, so the compiler (via the stateHandler
// interface) forces every state to supply (possibly inherited,
// default-rejecting) behavior for all eight events instead of silently no-op'ing an untested combination
// the way the original C per-state stub table could.
func (s State) ops() stateHandler {
	if int(s) >= len(stateTable) {
		return baseState{}
	}
	return stateTable[s]
}
