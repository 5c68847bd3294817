package pdu

import "math/bits"

// Flags is the SimpTCP header flags bitmask. Bit assignment is internal to
// this implementation but stable across releases, as required by spec §3.1
// and §6.1: two conforming peers must agree on it.
type Flags uint8

const (
	FlagFIN Flags = 1 << iota // no more data from sender
	FlagSYN                   // synchronize sequence numbers
	FlagRST                   // reset the connection
	FlagPSH                   // push buffered data without waiting to fill a segment
	FlagACK                   // acknowledgement field is significant
)

const flagMask = FlagFIN | FlagSYN | FlagRST | FlagPSH | FlagACK

// synack and finack are the two-flag combinations the state machine checks
// for most often.
const (
	synack = FlagSYN | FlagACK
	finack = FlagFIN | FlagACK
)

// HasAll reports whether all bits in mask are set in flags.
func (f Flags) HasAll(mask Flags) bool { return f&mask == mask }

// HasAny reports whether one or more bits in mask are set in flags.
func (f Flags) HasAny(mask Flags) bool { return f&mask != 0 }

// Mask clears any bits outside of the defined flag set.
func (f Flags) Mask() Flags { return f & flagMask }

// String returns a human readable representation, i.e. "[SYN,ACK]".
func (f Flags) String() string {
	switch f {
	case 0:
		return "[]"
	case synack:
		return "[SYN,ACK]"
	case finack:
		return "[FIN,ACK]"
	case FlagACK:
		return "[ACK]"
	case FlagSYN:
		return "[SYN]"
	case FlagFIN:
		return "[FIN]"
	case FlagRST:
		return "[RST]"
	}
	buf := make([]byte, 0, 2+4*bits.OnesCount8(uint8(f)))
	buf = append(buf, '[')
	buf = f.AppendFormat(buf)
	buf = append(buf, ']')
	return string(buf)
}

// AppendFormat appends a comma separated flag list (without brackets) to b.
func (f Flags) AppendFormat(b []byte) []byte {
	const names = "FINSYNRSTPSHACK"
	const width = 3
	first := true
	for f != 0 {
		i := bits.TrailingZeros8(uint8(f))
		if !first {
			b = append(b, ',')
		}
		first = false
		b = append(b, names[i*width:i*width+width]...)
		f &= ^(1 << i)
	}
	return b
}
