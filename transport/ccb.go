package transport

import (
	"net/netip"
	"sync"
	"time"

	"github.com/rs/xid"

	"simptcp/internal"
	"simptcp/pdu"
)

// Kind classifies a CCB the way spec.md §3.2 does, mostly for statistics
// and demux: a listening_server CCB never carries a remote address and is
// matched against incoming SYNs by local port alone (spec §4.4).
type Kind uint8

const (
	KindUnknown Kind = iota
	KindClient
	KindListeningServer
	KindNonlistening
)

func (k Kind) String() string {
	switch k {
	case KindClient:
		return "client"
	case KindListeningServer:
		return "listening_server"
	case KindNonlistening:
		return "nonlistening_server"
	default:
		return "unknown"
	}
}

// Stats are the per-CCB diagnostic counters named in spec.md §3.2 and §7.
// They are the only observable surface for protocol-layer errors: a
// blocked send/recv simply does not return until the condition holds, but
// ErrorCount/RetransmitCount let an operator see why.
type Stats struct {
	SendCount       uint64
	RecvCount       uint64
	ErrorCount      uint64
	RetransmitCount uint64
}

// outSegment is the single unacknowledged outbound PDU a CCB may have in
// flight at any time (spec §3.2 out_buffer/out_len): the stop-and-wait
// discipline means there is never more than one, so this holds the exact
// encoded bytes to retransmit verbatim plus enough of the original segment
// to recognize the ACK that releases it.
type outSegment struct {
	wire      []byte // encoded PDU bytes, retransmitted verbatim on timeout
	seq       uint32 // SEQ of this segment
	ackWanted uint32 // ACK value that would release this segment (SEQ + 1, whatever the payload length)
	flags     pdu.Flags
	sentAt    time.Time // first transmission time, for the RTT sample on ACK
	active    bool
}

// CCB is a Connection Control Block: the per-connection record described in
// spec.md §3.2. One CCB backs exactly one descriptor-table slot for its
// entire lifetime; Entity.Release retires the slot rather than recycling
// the CCB value, so a stale pointer a blocked goroutine is waiting on is
// never silently reassigned to an unrelated connection.
type CCB struct {
	mu   sync.Mutex
	cond *sync.Cond

	id  xid.ID
	fd  int
	ent *Entity
	internal.Logger

	kind       Kind
	state      State
	localAddr  netip.AddrPort // this side's logical SimpTCP address (IP is cosmetic; one entity shares one real socket)
	remoteAddr netip.AddrPort // peer's logical SimpTCP address: IP + the SimpTCP port from the PDU header, used for demux
	peerUDP    netip.AddrPort // real address the datagram endpoint sends to for this connection

	nextSeq uint32 // next sequence number this side will transmit
	nextAck uint32 // next sequence number expected from peer

	out outSegment
	in  struct {
		payload []byte
		ready   bool
	}

	retransmitCount    int
	retransmitDeadline time.Time
	rttEstimate        time.Duration

	backlogLimit int
	pending      []*CCB // half-open/established children awaiting Accept

	closing bool // shutdown() requested, FIN pending or sent
	aborted error

	stats Stats
}

func newCCB(fd int, ent *Entity) *CCB {
	c := &CCB{
		id:          xid.New(),
		fd:          fd,
		ent:         ent,
		state:       StateClosed,
		kind:        KindUnknown,
		rttEstimate: ent.cfg.InitialRTT,
	}
	c.Logger = internal.Logger{Log: ent.cfg.Logger}
	if c.Log != nil {
		c.Log = c.Log.With("ccb", c.id.String())
	}
	c.cond = sync.NewCond(&c.mu)
	return c
}

// lock/unlock are thin wrappers over c.mu kept only for readability at
// call sites.
func (c *CCB) lock()   { c.mu.Lock() }
func (c *CCB) unlock() { c.mu.Unlock() }

// State returns the CCB's current FSM state under lock.
func (c *CCB) State() State {
	c.lock()
	defer c.unlock()
	return c.state
}

// Snapshot returns a copy of the CCB's statistics counters.
func (c *CCB) Snapshot() Stats {
	c.lock()
	defer c.unlock()
	return c.stats
}

func (c *CCB) localPort() uint16  { return c.localAddr.Port() }
func (c *CCB) remotePort() uint16 { return c.remoteAddr.Port() }

// Kind reports the CCB's classification under lock.
func (c *CCB) Kind() Kind {
	c.lock()
	defer c.unlock()
	return c.kind
}

// PendingSnapshot returns a copy of a listener's pending-children slice,
// used by the timer scanner to reach children not yet registered in the
// descriptor table (spec §3.2 Ownership: a listener holds weak references
// to its children until Accept transfers ownership).
func (c *CCB) PendingSnapshot() []*CCB {
	c.lock()
	defer c.unlock()
	out := make([]*CCB, len(c.pending))
	copy(out, c.pending)
	return out
}

// setState transitions the CCB and wakes any goroutine blocked on it
// (accept/send/recv/shutdown all wait on c.cond). Must be called with c.mu
// held.
func (c *CCB) setState(s State) {
	if c.state == s {
		return
	}
	prev := c.state
	c.state = s
	if c.TraceEnabled() {
		c.Trace("ccb:state-change",
			slogUint("fd", uint64(c.fd)),
			slogStr("old", prev.String()),
			slogStr("new", s.String()))
	}
	c.cond.Broadcast()
}

// stopTimer clears the retransmit/time-wait deadline. Must be called with
// c.mu held.
func (c *CCB) stopTimer() {
	c.retransmitDeadline = time.Time{}
}

// startTimer arms the retransmit deadline d in the future. Must be called
// with c.mu held.
func (c *CCB) startTimer(d time.Duration) {
	c.retransmitDeadline = time.Now().Add(d)
}

// rto returns the current retransmission timeout (spec §4.2: rtt_estimate x 4).
func (c *CCB) rto() time.Duration {
	if c.rttEstimate <= 0 {
		c.rttEstimate = c.ent.cfg.InitialRTT
	}
	return c.rttEstimate * 4
}

// updateRTT folds a freshly observed round trip into rttEstimate with a
// simple exponentially weighted moving average (DESIGN.md Open Question:
// spec §9 allows either a static configured RTT or an EWMA; we choose the
// EWMA so repeated-loss tests in spec §8 converge to a realistic timeout
// instead of the configured default growing stale across a long-lived
// connection).
func (c *CCB) updateRTT(sample time.Duration) {
	const alpha = 0.25
	if c.rttEstimate <= 0 {
		c.rttEstimate = sample
		return
	}
	c.rttEstimate = time.Duration(float64(c.rttEstimate)*(1-alpha) + float64(sample)*alpha)
}
