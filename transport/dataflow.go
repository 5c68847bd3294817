package transport

import "simptcp/pdu"

// peerMayStillSend reports whether the peer could still legitimately
// deliver data in the current state: once a FIN has been received the
// state machine has already moved past these three (spec.md §4.1).
func (c *CCB) peerMayStillSend() bool {
	switch c.state {
	case StateEstablished, StateFinWait1, StateFinWait2:
		return true
	default:
		return false
	}
}

// sendData implements the send() operation shared by ESTABLISHED and
// CLOSE-WAIT (spec §6.2 send(), §9): it waits out any segment already in
// flight (stop-and-wait, spec §1), transmits b as a single tracked
// segment, and blocks until that segment is acknowledged.
func sendData(c *CCB, b []byte) (int, error) {
	if len(b) > pdu.MaxPayload {
		return 0, pdu.ErrPayloadTooLarge
	}
	for c.out.active && c.aborted == nil {
		c.cond.Wait()
	}
	if c.aborted != nil {
		return 0, c.aborted
	}
	if err := c.sendTracked(pdu.FlagPSH, b); err != nil {
		return 0, err
	}
	for c.out.active && c.aborted == nil {
		c.cond.Wait()
	}
	if c.aborted != nil {
		return 0, c.aborted
	}
	return len(b), nil
}

// recvData implements the recv() operation shared by ESTABLISHED,
// FIN-WAIT-1 and FIN-WAIT-2 (spec §6.2 recv()): it blocks until a segment
// has been delivered to in_buffer, or until the peer can no longer send
// anything more, in which case it reports EOF as a zero-length read.
func recvData(c *CCB, buf []byte) (int, error) {
	for !c.in.ready && c.aborted == nil && c.peerMayStillSend() {
		c.cond.Wait()
	}
	if c.aborted != nil {
		return 0, c.aborted
	}
	if !c.in.ready {
		return 0, nil
	}
	n := copy(buf, c.in.payload)
	c.in.ready = false
	c.in.payload = nil
	return n, nil
}

// acceptData implements the receiving side of rcv data(seq=next_ack)
// (spec §4.1 ESTABLISHED table): validates the incoming sequence number,
// delivers the payload, advances next_ack, and ACKs. A segment with an
// unexpected sequence number (a duplicate retransmission the peer is
// still resending because our previous ACK was lost) is silently
// re-acknowledged without being redelivered, per spec §7's duplicate
// suppression requirement. If in_buffer is still full (the application
// has not drained the previous segment), the ack is withheld rather than
// sent for data that is then dropped, so the peer retransmits once the
// buffer is free.
func acceptData(c *CCB, p pdu.PDU) error {
	if p.Seq != c.nextAck {
		if p.Seq == c.nextAck-1 {
			return c.sendControl(pdu.FlagACK)
		}
		return newDropError("unexpected data sequence number")
	}
	if c.in.ready {
		return nil
	}
	c.in.payload = append([]byte(nil), p.Payload...)
	c.in.ready = true
	c.nextAck++
	c.cond.Broadcast()
	return c.sendControl(pdu.FlagACK)
}
