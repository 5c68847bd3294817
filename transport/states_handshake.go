package transport

import (
	"net/netip"

	"simptcp/pdu"
)

// closedState implements spec.md §4.1's CLOSED row: the only state from
// which a connection can be actively or passively opened.
type closedState struct{ baseState }

func (closedState) activeOpen(c *CCB) error {
	if !c.remoteAddr.IsValid() {
		return ErrNoRemoteAddr
	}
	c.kind = KindClient
	c.nextSeq = c.ent.newISN()
	if err := c.sendTracked(pdu.FlagSYN, nil); err != nil {
		return err
	}
	c.setState(StateSynSent)
	return nil
}

func (closedState) passiveOpen(c *CCB, backlog int) error {
	c.backlogLimit = backlog
	c.pending = nil
	c.setState(StateListen)
	return nil
}

// listenState implements spec.md §4.1's LISTEN row. A listener never
// itself holds a remote address; incoming SYNs spawn child CCBs tracked
// in c.pending until Accept transfers ownership to a descriptor-table
// slot (spec §3.2 Ownership, §9's note on not replicating the original
// implementation's queue-position ACK-routing bug).
type listenState struct{ baseState }

func (listenState) accept(c *CCB) (*CCB, error) {
	for {
		for _, child := range c.pending {
			if child.State() == StateEstablished {
				c.removePending(child)
				return child, nil
			}
		}
		c.cond.Wait()
	}
}

func (c *CCB) removePending(target *CCB) {
	out := c.pending[:0]
	for _, p := range c.pending {
		if p != target {
			out = append(out, p)
		}
	}
	c.pending = out
}

func (s listenState) processPDU(c *CCB, p pdu.PDU, from, peerUDP netip.AddrPort) error {
	if p.Flags.HasAll(pdu.FlagSYN) {
		if len(c.pending) >= c.backlogLimit {
			return ErrBacklogFull
		}
		for _, child := range c.pending {
			if child.remoteAddr == from {
				return nil // retransmitted SYN for an already-queued attempt
			}
		}
		child := newCCB(-1, c.ent)
		child.kind = KindNonlistening
		child.localAddr = c.localAddr
		child.remoteAddr = from
		child.peerUDP = peerUDP
		child.nextAck = p.Seq + 1
		child.state = StateSynRcvd
		child.nextSeq = c.ent.newISN()
		// Send the SYN+ACK as soon as the SYN arrives rather than
		// deferring it to Accept, so the handshake's second leg does not
		// wait on the application calling accept().
		if err := child.sendTracked(pdu.FlagSYN|pdu.FlagACK, nil); err != nil {
			return err
		}
		c.pending = append(c.pending, child)
		c.cond.Broadcast()
		return nil
	}
	if p.Flags.HasAll(pdu.FlagACK) {
		for _, child := range c.pending {
			if child.matchesFinalAck(p.Ack) {
				child.lock()
				if child.ackAccepted(p.Ack) {
					child.setState(StateEstablished)
				}
				child.unlock()
				c.cond.Broadcast()
				return nil
			}
		}
	}
	return newDropError("unexpected PDU for listener")
}

func (c *CCB) matchesFinalAck(ack uint32) bool {
	c.lock()
	defer c.unlock()
	return c.state == StateSynRcvd && c.out.active && c.out.ackWanted == ack
}

// synSentState implements spec.md §4.1's SYN-SENT row: the client side of
// the handshake, awaiting the server's SYN+ACK.
type synSentState struct{ baseState }

func (synSentState) processPDU(c *CCB, p pdu.PDU, from, peerUDP netip.AddrPort) error {
	if !p.Flags.HasAll(pdu.FlagSYN | pdu.FlagACK) {
		return newDropError("expected SYN+ACK in SYN-SENT")
	}
	if !c.ackAccepted(p.Ack) {
		return newDropError("unexpected ack in SYN-SENT")
	}
	c.nextAck = p.Seq + 1
	if err := c.sendControl(pdu.FlagACK); err != nil {
		return err
	}
	c.setState(StateEstablished)
	return nil
}

// synRcvdState implements spec.md §4.1's SYN-RCVD row: the server side of
// the handshake, awaiting the client's final ACK. In practice a pending
// child's final ACK is demultiplexed to its listener (children are not
// registered in the descriptor table until Accept), which applies this
// same ack-acceptance logic itself; this handler covers a child reached
// directly, e.g. once some other path has registered it early.
type synRcvdState struct{ baseState }

func (synRcvdState) processPDU(c *CCB, p pdu.PDU, from, peerUDP netip.AddrPort) error {
	if !p.Flags.HasAll(pdu.FlagACK) {
		return newDropError("expected ACK in SYN-RCVD")
	}
	if !c.ackAccepted(p.Ack) {
		return newDropError("unexpected ack in SYN-RCVD")
	}
	c.setState(StateEstablished)
	return nil
}
