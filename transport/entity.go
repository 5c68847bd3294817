// Package transport implements the SimpTCP protocol entity: the
// descriptor table, the per-connection state machine, the retransmission
// timer and the demultiplexer described in spec.md §4, layered atop a
// caller-supplied net.PacketConn standing in for the "datagram_endpoint"
// external collaborator named in spec.md §1.
package transport

import (
	"math/rand"
	"net"
	"net/netip"
	"sync"
	"sync/atomic"
	"time"

	"simptcp/internal"
)

// Entity is the protocol entity of spec.md §2 item 4 and §9's "global
// protocol entity" design note, modeled here as an explicit value rather
// than a package-level singleton: callers construct one with NewEntity,
// Start its background goroutines, and Close it when done.
type Entity struct {
	tableMu sync.Mutex // guards every read and write of table, per spec §4.5/§5
	table   []*CCB

	conn net.PacketConn
	cfg  Config
	internal.Logger

	stop chan struct{}
	wg   sync.WaitGroup

	isnRand *rand.Rand
	isnMu   sync.Mutex

	// unparsedErrors counts datagrams whose header could not even be
	// decoded (spec §8 scenario 5): there is no CCB yet to charge these
	// to, so they are tallied at the entity level instead.
	unparsedErrors uint64
}

// NewEntity constructs a protocol entity bound to conn, which stands in
// for the out-of-scope UDP send/recv syscalls (spec §1). conn is not
// touched until Start is called.
func NewEntity(conn net.PacketConn, cfg Config) *Entity {
	cfg.setDefaults()
	e := &Entity{
		conn:    conn,
		cfg:     cfg,
		table:   make([]*CCB, cfg.MaxDescriptors),
		stop:    make(chan struct{}),
		isnRand: rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	e.Logger = internal.Logger{Log: cfg.Logger}
	return e
}

// Start launches the receiver goroutine (demultiplexes arriving datagrams,
// spec §2 item 4 and §4.4) and the timer-scanner goroutine (spec §4.2).
// Both run until Close.
func (e *Entity) Start() {
	e.wg.Add(2)
	go e.receiveLoop()
	go e.scanLoop()
}

// Close stops the background goroutines. It does not close the underlying
// PacketConn; the caller owns that, consistent with conn being an external
// collaborator the Entity was merely given.
func (e *Entity) Close() error {
	close(e.stop)
	e.wg.Wait()
	return nil
}

// UnparsedErrors reports how many received datagrams could not be decoded
// at all (truncated or malformed header), counted separately from any
// CCB's Stats.ErrorCount since no descriptor could be identified for them.
func (e *Entity) UnparsedErrors() uint64 {
	return atomic.LoadUint64(&e.unparsedErrors)
}

func (e *Entity) newISN() uint32 {
	e.isnMu.Lock()
	defer e.isnMu.Unlock()
	// spec.md §9: "spec mandates a pseudo-random initial value"; seeded
	// from crypto-irrelevant math/rand since ISN unpredictability is a
	// security property explicitly out of scope (spec §1 Non-goals).
	return e.isnRand.Uint32()
}

// Create allocates a descriptor (spec §4.5, §6.2 create()). Its local
// SimpTCP port defaults to BasePort+slot and can be overridden with Bind
// before Connect/Listen.
func (e *Entity) Create() (fd int, err error) {
	e.tableMu.Lock()
	defer e.tableMu.Unlock()
	for i, slot := range e.table {
		if slot == nil {
			c := newCCB(i, e)
			c.localAddr = netip.AddrPortFrom(netip.IPv4Unspecified(), e.cfg.BasePort+uint16(i))
			e.table[i] = c
			return i, nil
		}
	}
	return -1, ErrOutOfSlots
}

// Release frees fd's slot (spec §4.5 release(fd)). The CCB must already be
// CLOSED; it is called by Close and by the LAST-ACK and TIME-WAIT handlers
// once the FSM reaches CLOSED.
func (e *Entity) Release(fd int) {
	e.tableMu.Lock()
	defer e.tableMu.Unlock()
	if fd >= 0 && fd < len(e.table) {
		e.table[fd] = nil
	}
}

func (e *Entity) lookup(fd int) (*CCB, error) {
	e.tableMu.Lock()
	defer e.tableMu.Unlock()
	if fd < 0 || fd >= len(e.table) || e.table[fd] == nil {
		return nil, ErrInvalidDescriptor
	}
	return e.table[fd], nil
}

// Bind sets fd's local SimpTCP port (spec §6.2 bind()). Must be called
// before Connect/Listen.
func (e *Entity) Bind(fd int, localPort uint16) error {
	c, err := e.lookup(fd)
	if err != nil {
		return err
	}
	c.lock()
	defer c.unlock()
	if c.state != StateClosed {
		return ErrAlreadyBound
	}
	c.localAddr = netip.AddrPortFrom(c.localAddr.Addr(), localPort)
	return nil
}

// Connect actively opens a connection to a remote SimpTCP endpoint (spec
// §6.2 connect()). remoteEntity is the real address of the remote
// entity's shared datagram endpoint (where datagrams are actually sent);
// remotePort is the logical SimpTCP port of the listener being dialed on
// that entity, carried in the PDU header's destination-port field. The
// call blocks until the handshake completes (ESTABLISHED) or fails,
// matching the blocking discipline the rest of the API already uses for
// accept/send/recv/shutdown (spec §5).
func (e *Entity) Connect(fd int, remoteEntity netip.AddrPort, remotePort uint16) error {
	c, err := e.lookup(fd)
	if err != nil {
		return err
	}
	c.lock()
	defer c.unlock()
	c.kind = KindClient
	c.remoteAddr = netip.AddrPortFrom(remoteEntity.Addr(), remotePort)
	c.peerUDP = remoteEntity
	if err := c.state.ops().activeOpen(c); err != nil {
		return err
	}
	for c.state != StateEstablished && c.aborted == nil {
		c.cond.Wait()
	}
	if c.aborted != nil {
		return c.aborted
	}
	return nil
}

// Listen marks fd as a passive listener with the given backlog (spec §6.2
// listen(), §4.1 CLOSED->passive_open).
func (e *Entity) Listen(fd int, backlog int) error {
	c, err := e.lookup(fd)
	if err != nil {
		return err
	}
	c.lock()
	defer c.unlock()
	if backlog <= 0 {
		backlog = e.cfg.DefaultBacklog
	}
	c.kind = KindListeningServer
	return c.state.ops().passiveOpen(c, backlog)
}

// Accept blocks until a queued connection completes its handshake and
// returns a new descriptor owning it (spec §6.2 accept(), §4.1 LISTEN
// accept()).
func (e *Entity) Accept(fd int) (childFD int, remote netip.AddrPort, err error) {
	c, err := e.lookup(fd)
	if err != nil {
		return -1, netip.AddrPort{}, err
	}
	c.lock()
	child, err := c.state.ops().accept(c)
	c.unlock()
	if err != nil {
		return -1, netip.AddrPort{}, err
	}

	e.tableMu.Lock()
	childFD = -1
	for i, slot := range e.table {
		if slot == nil {
			e.table[i] = child
			childFD = i
			break
		}
	}
	e.tableMu.Unlock()
	if childFD < 0 {
		child.lock()
		child.aborted = ErrOutOfSlots
		child.unlock()
		return -1, netip.AddrPort{}, ErrOutOfSlots
	}
	child.lock()
	child.fd = childFD
	remote = child.remoteAddr
	child.unlock()
	return childFD, remote, nil
}

// Send transmits b over fd's connection (spec §6.2 send()). It blocks
// until the previous in-flight segment (if any) is acknowledged, then
// transmits b and blocks until it is acknowledged too, per the stop-and-wait
// discipline of spec §1/§4.1.
func (e *Entity) Send(fd int, b []byte) (int, error) {
	c, err := e.lookup(fd)
	if err != nil {
		return 0, err
	}
	c.lock()
	defer c.unlock()
	return c.state.ops().send(c, b)
}

// Recv reads the next in-order segment's payload into buf (spec §6.2
// recv()), blocking until data is available or the connection can no
// longer produce any (peer FIN/reset/close).
func (e *Entity) Recv(fd int, buf []byte) (int, error) {
	c, err := e.lookup(fd)
	if err != nil {
		return 0, err
	}
	c.lock()
	defer c.unlock()
	return c.state.ops().recv(c, buf)
}

// Shutdown initiates graceful teardown (spec §6.2 shutdown()) and blocks
// until the connection reaches TIME-WAIT or CLOSED; it returns without
// waiting for TIME-WAIT to elapse. how is accepted
// for API-surface symmetry with a standard sockets shutdown(2) call but is
// not otherwise interpreted: SimpTCP has no half-duplex partial shutdown.
func (e *Entity) Shutdown(fd int, how int) error {
	c, err := e.lookup(fd)
	if err != nil {
		return err
	}
	c.lock()
	err = c.state.ops().shutdownConn(c)
	if err != nil {
		c.unlock()
		return err
	}
	for !c.state.IsClosed() && c.aborted == nil {
		c.cond.Wait()
	}
	aborted := c.aborted
	c.unlock()
	if aborted != nil {
		return aborted
	}
	return nil
}

// Close releases fd's descriptor (spec §6.2 close()). It forcibly aborts
// an open connection; graceful teardown is Shutdown's job (spec §9).
func (e *Entity) Close(fd int) error {
	c, err := e.lookup(fd)
	if err != nil {
		return err
	}
	c.lock()
	if !c.state.IsClosed() {
		c.setState(StateClosed)
		if c.aborted == nil {
			c.aborted = ErrClosed
		}
		c.cond.Broadcast()
	}
	c.unlock()
	e.Release(fd)
	return nil
}

// ConnStats is a point-in-time view of one descriptor's statistics,
// consumed by the metrics package's prometheus collector.
type ConnStats struct {
	FD         int
	LocalPort  uint16
	RemotePort uint16
	State      State
	Stats      Stats
}

// Snapshot returns a stats snapshot for every live descriptor.
func (e *Entity) Snapshot() []ConnStats {
	e.tableMu.Lock()
	ccbs := make([]*CCB, 0, len(e.table))
	for _, c := range e.table {
		if c != nil {
			ccbs = append(ccbs, c)
		}
	}
	e.tableMu.Unlock()

	out := make([]ConnStats, 0, len(ccbs))
	for _, c := range ccbs {
		c.lock()
		out = append(out, ConnStats{
			FD:         c.fd,
			LocalPort:  c.localAddr.Port(),
			RemotePort: c.remoteAddr.Port(),
			State:      c.state,
			Stats:      c.stats,
		})
		c.unlock()
	}
	return out
}
