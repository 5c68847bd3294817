package transport

import (
	"net/netip"

	"simptcp/pdu"
)

// stateHandler is the per-state behavior table spec.md §9 asks for in
// place of the original per-state function-pointer stubs that silently
// no-op'ed untested state/event combinations: every State maps to exactly
// one concrete stateHandler, and baseState's defaults make "wrong state
// for this call" an explicit, uniform error instead of a missing case.
//
// Every method is called with the CCB's mutex already held; none may
// block except accept/send/recv/shutdownConn, which wait on c.cond (this
// releases the mutex for the duration of the wait, per sync.Cond's
// contract, so the receive/timer goroutines can keep making progress).
type stateHandler interface {
	activeOpen(c *CCB) error
	passiveOpen(c *CCB, backlog int) error
	accept(c *CCB) (*CCB, error)
	send(c *CCB, b []byte) (int, error)
	recv(c *CCB, buf []byte) (int, error)
	shutdownConn(c *CCB) error
	processPDU(c *CCB, p pdu.PDU, from, peerUDP netip.AddrPort) error
	handleTimeout(c *CCB) error
}

// baseState supplies the default behavior every concrete state inherits
// by embedding it: API calls invalid in that state are rejected
// uniformly, unsolicited PDUs are dropped, and timer expiry retransmits
// the outstanding segment (the common case for every state that can have
// one in flight). Concrete states override only what differs.
type baseState struct{}

func (baseState) activeOpen(c *CCB) error                { return ErrWrongState }
func (baseState) passiveOpen(c *CCB, backlog int) error   { return ErrWrongState }
func (baseState) accept(c *CCB) (*CCB, error)             { return nil, ErrWrongState }
func (baseState) send(c *CCB, b []byte) (int, error)      { return 0, ErrWrongState }
func (baseState) recv(c *CCB, buf []byte) (int, error)    { return 0, ErrWrongState }
func (baseState) shutdownConn(c *CCB) error               { return ErrWrongState }

func (baseState) processPDU(c *CCB, p pdu.PDU, from, peerUDP netip.AddrPort) error {
	return newDropError("unexpected PDU in state " + c.state.String())
}

func (baseState) handleTimeout(c *CCB) error {
	if !c.out.active {
		return nil
	}
	if c.ent.cfg.MaxRetransmits > 0 && c.retransmitCount >= c.ent.cfg.MaxRetransmits {
		c.aborted = ErrTimeoutExhausted
		c.stopTimer()
		c.setState(StateClosed)
		c.cond.Broadcast()
		return c.aborted
	}
	return c.resendOut()
}

// stateTable is indexed by State; State.ops looks values up here. Built
// once at package init.
var stateTable = [...]stateHandler{
	StateClosed:      closedState{},
	StateListen:      listenState{},
	StateSynSent:     synSentState{},
	StateSynRcvd:     synRcvdState{},
	StateEstablished: establishedState{},
	StateCloseWait:   closeWaitState{},
	StateFinWait1:    finWait1State{},
	StateFinWait2:    finWait2State{},
	StateClosing:     closingState{},
	StateLastAck:     lastAckState{},
	StateTimeWait:    timeWaitState{},
}
