package transport

import (
	"errors"
	"net"
	"net/netip"
	"sync/atomic"
	"time"

	"simptcp/pdu"
)

// receiveLoop is the Entity's single reader of the shared datagram
// endpoint (spec §4.4): it decodes each datagram into a PDU, demultiplexes
// it to the owning CCB, and dispatches it to that CCB's current state
// handler. It exits when Close closes e.stop; any other read error is
// logged and the loop keeps reading.
func (e *Entity) receiveLoop() {
	defer e.wg.Done()
	buf := make([]byte, pdu.HeaderSize+pdu.MaxPayload)
	for {
		select {
		case <-e.stop:
			return
		default:
		}
		_ = e.conn.SetReadDeadline(time.Now().Add(e.cfg.ScanInterval))
		n, from, err := e.conn.ReadFrom(buf)
		if err != nil {
			if isTimeout(err) {
				continue
			}
			select {
			case <-e.stop:
				return
			default:
			}
			e.Error("entity:read-error", slogStr("err", err.Error()))
			continue
		}
		wire := buf[:n]
		// The header is decoded before the checksum is verified: decoding
		// only validates length/header-length invariants (spec §3.1), and
		// locating the owning CCB first lets a checksum failure be charged
		// to that CCB's own error counter (spec §4.1/§8 scenario 5) instead
		// of being invisible.
		p, err := pdu.Decode(wire)
		if err != nil {
			atomic.AddUint64(&e.unparsedErrors, 1)
			e.Error("entity:decode-error", slogStr("err", err.Error()))
			continue
		}
		ip := udpIP(from)
		if v4 := ip.To4(); v4 != nil {
			ip = v4
		}
		if len(ip) != net.IPv4len {
			e.Error("entity:bad-source-addr", slogStr("err", ErrAddrSizeMismatch.Error()))
			continue
		}
		fromAP, ok := netip.AddrFromSlice(ip)
		if !ok {
			continue
		}
		// The logical SimpTCP remote address pairs the datagram's real
		// source IP with the PDU's own source-port field, not the raw UDP
		// source port: many logical connections multiplex over one real
		// socket per remote entity (spec §4.4).
		e.dispatch(p, wire, netip.AddrPortFrom(fromAP, p.SrcPort), from)
	}
}

func (e *Entity) dispatch(p pdu.PDU, wire []byte, logicalFrom netip.AddrPort, rawFrom net.Addr) {
	c := e.findCCB(p.DstPort, logicalFrom)
	if c == nil {
		return // no matching descriptor: silently drop, spec §4.4/§7
	}
	var peerUDP netip.AddrPort
	if ua, ok := rawFrom.(*net.UDPAddr); ok {
		peerUDP = ua.AddrPort()
	}
	c.lock()
	c.stats.RecvCount++
	if !pdu.VerifyChecksum(wire) {
		c.stats.ErrorCount++
		c.unlock()
		return
	}
	if !c.peerUDP.IsValid() {
		c.peerUDP = peerUDP
	}
	if p.Flags.HasAll(pdu.FlagRST) && c.state.HasActiveConnection() {
		c.aborted = ErrPeerReset
		c.stopTimer()
		c.setState(StateClosed)
		c.unlock()
		return
	}
	if err := c.state.ops().processPDU(c, p, logicalFrom, peerUDP); err != nil {
		c.stats.ErrorCount++
		if isDropError(err) {
			c.Trace("ccb:drop-pdu", slogStr("reason", err.Error()))
		} else {
			c.Error("ccb:process-pdu-error", slogStr("err", err.Error()))
		}
	}
	c.unlock()
}

// findCCB locates the descriptor a PDU is addressed to (spec §4.4): an
// established/non-listening connection is matched by local port and the
// logical remote 4-tuple; a listener is matched by local port alone, with
// kind acting as the wildcard for "any remote".
func (e *Entity) findCCB(dstPort uint16, from netip.AddrPort) *CCB {
	e.tableMu.Lock()
	defer e.tableMu.Unlock()
	var listener *CCB
	for _, c := range e.table {
		if c == nil || c.localAddr.Port() != dstPort {
			continue
		}
		if c.kind == KindListeningServer {
			listener = c
			continue
		}
		if c.remoteAddr == from {
			return c
		}
	}
	return listener
}

// scanLoop periodically checks every live CCB's retransmit/time-wait
// deadline (spec §4.2: "a background process ... periodically scans all
// CCBs"). Coarse polling instead of per-connection timers matches the
// resolution the spec explicitly allows.
func (e *Entity) scanLoop() {
	defer e.wg.Done()
	ticker := time.NewTicker(e.cfg.ScanInterval)
	defer ticker.Stop()
	for {
		select {
		case <-e.stop:
			return
		case <-ticker.C:
			e.scanOnce()
		}
	}
}

func (e *Entity) scanOnce() {
	e.tableMu.Lock()
	ccbs := make([]*CCB, 0, len(e.table))
	for _, c := range e.table {
		if c != nil {
			ccbs = append(ccbs, c)
		}
	}
	e.tableMu.Unlock()

	now := time.Now()
	for _, c := range ccbs {
		e.scanOne(c, now)
		if c.Kind() == KindListeningServer {
			for _, child := range c.PendingSnapshot() {
				e.scanOne(child, now)
			}
		}
	}
}

func (e *Entity) scanOne(c *CCB, now time.Time) {
	c.lock()
	deadline := c.retransmitDeadline
	expired := !deadline.IsZero() && !now.Before(deadline)
	if expired {
		if err := c.state.ops().handleTimeout(c); err != nil {
			c.stats.ErrorCount++
		}
	}
	c.unlock()
}

func isTimeout(err error) bool {
	var ne net.Error
	if errors.As(err, &ne) {
		return ne.Timeout()
	}
	return false
}

func udpIP(a net.Addr) net.IP {
	if u, ok := a.(*net.UDPAddr); ok {
		return u.IP
	}
	return nil
}

