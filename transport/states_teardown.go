package transport

import (
	"net/netip"

	"simptcp/pdu"
)

// closeWaitState implements spec.md §4.1's CLOSE-WAIT row: the peer has
// closed its write side (we already ACKed its FIN); we may still send,
// and shutdown() here sends our own FIN (spec §9: "shutdown initiates
// graceful teardown").
type closeWaitState struct{ baseState }

func (closeWaitState) send(c *CCB, b []byte) (int, error) { return sendData(c, b) }

func (closeWaitState) recv(c *CCB, buf []byte) (int, error) {
	if c.in.ready {
		return recvData(c, buf)
	}
	return 0, nil // peer already sent FIN; nothing more will ever arrive
}

func (closeWaitState) shutdownConn(c *CCB) error {
	for c.out.active && c.aborted == nil {
		c.cond.Wait()
	}
	if c.aborted != nil {
		return c.aborted
	}
	c.closing = true
	if err := c.sendTracked(pdu.FlagFIN, nil); err != nil {
		return err
	}
	c.setState(StateLastAck)
	return nil
}

func (closeWaitState) processPDU(c *CCB, p pdu.PDU, from, peerUDP netip.AddrPort) error {
	if p.Flags.HasAll(pdu.FlagACK) {
		c.ackAccepted(p.Ack)
		return nil
	}
	return newDropError("unexpected PDU in CLOSE-WAIT")
}

// finWait1State implements spec.md §4.1's FIN-WAIT-1 row: our FIN is
// outstanding. recv remains live (spec's half-close discipline: we have
// stopped sending, the peer has not).
type finWait1State struct{ baseState }

func (finWait1State) recv(c *CCB, buf []byte) (int, error) { return recvData(c, buf) }

func (finWait1State) processPDU(c *CCB, p pdu.PDU, from, peerUDP netip.AddrPort) error {
	finAcked := p.Flags.HasAll(pdu.FlagACK) && c.ackAccepted(p.Ack)
	peerFIN := p.Flags.HasAll(pdu.FlagFIN) && p.Seq == c.nextAck

	switch {
	case finAcked && peerFIN:
		// simultaneous close (spec §9 design note: not in the original
		// transition table but reachable, and handled the way a
		// real TCP-style FSM would rather than left to crash or hang).
		c.nextAck++
		if err := c.sendControl(pdu.FlagACK); err != nil {
			return err
		}
		c.setState(StateTimeWait)
		c.startTimer(c.ent.cfg.TimeWaitDuration)
		return nil
	case finAcked:
		c.setState(StateFinWait2)
		return nil
	case peerFIN:
		c.nextAck++
		if err := c.sendControl(pdu.FlagACK); err != nil {
			return err
		}
		c.setState(StateClosing)
		return nil
	case p.Flags.HasAll(pdu.FlagPSH) || len(p.Payload) > 0:
		return acceptData(c, p)
	}
	return newDropError("unexpected PDU in FIN-WAIT-1")
}

// finWait2State implements spec.md §4.1's FIN-WAIT-2 row: our FIN was
// acknowledged; we wait for the peer's FIN while recv remains live.
type finWait2State struct{ baseState }

func (finWait2State) recv(c *CCB, buf []byte) (int, error) { return recvData(c, buf) }

func (finWait2State) processPDU(c *CCB, p pdu.PDU, from, peerUDP netip.AddrPort) error {
	if p.Flags.HasAll(pdu.FlagFIN) {
		if p.Seq != c.nextAck {
			return newDropError("unexpected FIN sequence number")
		}
		c.nextAck++
		if err := c.sendControl(pdu.FlagACK); err != nil {
			return err
		}
		c.setState(StateTimeWait)
		c.startTimer(c.ent.cfg.TimeWaitDuration)
		return nil
	}
	if p.Flags.HasAll(pdu.FlagPSH) || len(p.Payload) > 0 {
		return acceptData(c, p)
	}
	return newDropError("unexpected PDU in FIN-WAIT-2")
}

// closingState implements the simultaneous-close leg (spec §9 design
// note): both sides sent FIN before seeing the other's; we have ACKed
// the peer's FIN and are waiting for our own FIN to be ACKed.
type closingState struct{ baseState }

func (closingState) processPDU(c *CCB, p pdu.PDU, from, peerUDP netip.AddrPort) error {
	if p.Flags.HasAll(pdu.FlagACK) && c.ackAccepted(p.Ack) {
		c.setState(StateTimeWait)
		c.startTimer(c.ent.cfg.TimeWaitDuration)
		return nil
	}
	return newDropError("unexpected PDU in CLOSING")
}

// lastAckState implements spec.md §4.1's LAST-ACK row: our FIN (sent from
// CLOSE-WAIT) is outstanding; once acknowledged the CCB is released.
type lastAckState struct{ baseState }

func (lastAckState) processPDU(c *CCB, p pdu.PDU, from, peerUDP netip.AddrPort) error {
	if p.Flags.HasAll(pdu.FlagACK) && c.ackAccepted(p.Ack) {
		c.setState(StateClosed)
		c.cond.Broadcast()
		if c.fd >= 0 {
			c.ent.Release(c.fd)
		}
		return nil
	}
	return newDropError("unexpected PDU in LAST-ACK")
}

// timeWaitState implements spec.md §4.1's TIME-WAIT row: a quiescent
// period absorbing stray retransmissions of the final ACK before the
// descriptor is recycled. Its handleTimeout overrides baseState's
// retransmit-on-expiry default, since the armed deadline here means
// "time-wait elapsed", not "unacked segment, retry".
type timeWaitState struct{ baseState }

func (timeWaitState) processPDU(c *CCB, p pdu.PDU, from, peerUDP netip.AddrPort) error {
	// A retransmitted final FIN means our last ACK was lost; resend it.
	if p.Flags.HasAll(pdu.FlagFIN) {
		return c.sendControl(pdu.FlagACK)
	}
	return nil
}

func (timeWaitState) handleTimeout(c *CCB) error {
	c.stopTimer()
	c.setState(StateClosed)
	c.cond.Broadcast()
	if c.fd >= 0 {
		c.ent.Release(c.fd)
	}
	return nil
}
