package transport

import (
	"net/netip"

	"simptcp/pdu"
)

// establishedState implements spec.md §4.1's ESTABLISHED row: the
// steady-state full-duplex phase where send/recv/shutdown and both
// directions' independent stop-and-wait ACKs are all live.
type establishedState struct{ baseState }

func (establishedState) send(c *CCB, b []byte) (int, error) { return sendData(c, b) }
func (establishedState) recv(c *CCB, buf []byte) (int, error) { return recvData(c, buf) }

func (establishedState) shutdownConn(c *CCB) error {
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
	c.setState(StateFinWait1)
	return nil
}

func (establishedState) processPDU(c *CCB, p pdu.PDU, from, peerUDP netip.AddrPort) error {
	if p.Flags.HasAll(pdu.FlagACK) {
		c.ackAccepted(p.Ack) // piggybacked ack of our independent send direction
	}
	hasData := p.Flags.HasAll(pdu.FlagPSH) || len(p.Payload) > 0
	hasFIN := p.Flags.HasAll(pdu.FlagFIN)
	if !hasData && !hasFIN {
		return nil
	}
	// A segment carries a single sequence number regardless of which of
	// PSH/FIN it sets (spec §4.2), so a combined data+FIN segment is
	// validated and acked once; data is delivered before the state
	// transitions to CLOSE-WAIT (spec §4.1 "deliver data first, then
	// process FIN").
	if p.Seq != c.nextAck {
		if hasData && p.Seq == c.nextAck-1 {
			return c.sendControl(pdu.FlagACK) // duplicate retransmission
		}
		return newDropError("unexpected sequence number")
	}
	if hasData {
		if c.in.ready {
			return nil // in_buffer still full: withhold the ack until it drains
		}
		c.in.payload = append([]byte(nil), p.Payload...)
		c.in.ready = true
		c.cond.Broadcast()
	}
	c.nextAck++
	if err := c.sendControl(pdu.FlagACK); err != nil {
		return err
	}
	if hasFIN {
		c.setState(StateCloseWait)
	}
	return nil
}
