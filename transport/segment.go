package transport

import (
	"time"

	"simptcp/pdu"
)

// encodeFor builds and encodes a PDU from c's current addressing, for the
// given flags/seq/ack/payload. Must be called with c.mu held.
func (c *CCB) encodeFor(flags pdu.Flags, seq, ack uint32, payload []byte) ([]byte, error) {
	p := pdu.PDU{
		SrcPort: c.localPort(),
		DstPort: c.remotePort(),
		Seq:     seq,
		Ack:     ack,
		Flags:   flags,
		Window:  1, // stop-and-wait: never more than one segment in flight (spec §1)
		Payload: payload,
	}
	return pdu.Encode(p)
}

// writeWire hands already-encoded bytes to the datagram endpoint. Must be
// called with c.mu held; the PacketConn itself is safe for concurrent use
// but we serialize through the CCB lock anyway since stats/error counters
// are updated alongside.
func (c *CCB) writeWire(wire []byte) error {
	_, err := c.ent.conn.WriteTo(wire, udpAddr(c.peerUDP))
	if err != nil {
		c.stats.ErrorCount++
		return err
	}
	c.stats.SendCount++
	return nil
}

// sendControl transmits a bare control segment (a pure ACK, or a RST) that
// does not consume a sequence number and is not tracked for retransmission.
// Must be called with c.mu held.
func (c *CCB) sendControl(flags pdu.Flags) error {
	wire, err := c.encodeFor(flags, c.nextSeq, c.nextAck, nil)
	if err != nil {
		return err
	}
	return c.writeWire(wire)
}

// sendTracked transmits a segment that consumes exactly one sequence
// number (SYN, FIN, or a data PDU — spec.md §4.2: "payload length does not
// change sequence arithmetic"), records it as the single outstanding
// out_buffer entry, and arms the retransmit timer. Must be called with
// c.mu held.
func (c *CCB) sendTracked(flags pdu.Flags, payload []byte) error {
	seq := c.nextSeq
	wire, err := c.encodeFor(flags, seq, c.nextAck, payload)
	if err != nil {
		return err
	}
	if err := c.writeWire(wire); err != nil {
		return err
	}
	c.nextSeq++
	c.out = outSegment{
		wire:      wire,
		seq:       seq,
		ackWanted: c.nextSeq,
		flags:     flags,
		sentAt:    time.Now(),
		active:    true,
	}
	c.retransmitCount = 0
	c.startTimer(c.rto())
	return nil
}

// resendOut retransmits the single outstanding out_buffer entry verbatim
// (spec §4.2 "on timer expiry: retransmit the contents of out_buffer
// unchanged"). Must be called with c.mu held.
func (c *CCB) resendOut() error {
	if !c.out.active {
		return nil
	}
	if err := c.writeWire(c.out.wire); err != nil {
		return err
	}
	c.stats.RetransmitCount++
	c.retransmitCount++
	c.startTimer(c.rto())
	return nil
}

// ackAccepted reports whether ack releases the currently outstanding
// out_buffer entry, and if so clears it, stops the timer, and folds the
// elapsed time into the RTT estimate. Must be called with c.mu held.
func (c *CCB) ackAccepted(ack uint32) bool {
	if !c.out.active || ack != c.out.ackWanted {
		return false
	}
	if !c.out.sentAt.IsZero() {
		c.updateRTT(time.Since(c.out.sentAt))
	}
	c.out = outSegment{}
	c.stopTimer()
	c.cond.Broadcast()
	return true
}
