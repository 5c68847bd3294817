package pdu

import (
	"testing"

	"github.com/go-test/deep"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	in := PDU{
		SrcPort: 15000,
		DstPort: 15001,
		Seq:     42,
		Ack:     7,
		Flags:   FlagPSH | FlagACK,
		Window:  1,
		Payload: []byte("hello, simptcp"),
	}
	wire, err := Encode(in)
	require.NoError(t, err)
	require.True(t, VerifyChecksum(wire))

	out, err := Decode(wire)
	require.NoError(t, err)
	if diff := deep.Equal(in, out); diff != nil {
		t.Fatalf("round trip mismatch: %v", diff)
	}
}

func TestEncodeEmptyPayload(t *testing.T) {
	wire, err := Encode(PDU{SrcPort: 1, DstPort: 2, Flags: FlagSYN})
	require.NoError(t, err)
	require.Len(t, wire, HeaderSize)
	require.True(t, VerifyChecksum(wire))
}

func TestEncodeRejectsOversizePayload(t *testing.T) {
	_, err := Encode(PDU{Payload: make([]byte, MaxPayload+1)})
	require.ErrorIs(t, err, ErrPayloadTooLarge)
}

func TestVerifyChecksumDetectsCorruption(t *testing.T) {
	wire, err := Encode(PDU{SrcPort: 1, DstPort: 2, Flags: FlagACK, Ack: 9})
	require.NoError(t, err)
	wire[len(wire)-1] ^= 0xFF
	require.False(t, VerifyChecksum(wire))
}

func TestDecodeRejectsTruncated(t *testing.T) {
	wire, err := Encode(PDU{SrcPort: 1, DstPort: 2, Payload: []byte("x")})
	require.NoError(t, err)
	_, err = Decode(wire[:HeaderSize])
	require.ErrorIs(t, err, ErrTruncated)
}

func TestDecodeRejectsShortBuffer(t *testing.T) {
	_, err := Decode(make([]byte, HeaderSize-1))
	require.ErrorIs(t, err, ErrShortBuffer)
}

func TestFlagsString(t *testing.T) {
	require.Equal(t, "[SYN,ACK]", (FlagSYN | FlagACK).String())
	require.Equal(t, "[]", Flags(0).String())
}
