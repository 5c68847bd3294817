// Package pdu implements the SimpTCP wire format: a fixed 20 byte header
// (spec.md §3.1) encoded/decoded to/from a byte buffer carried as the
// payload of a single UDP datagram, plus the Internet-style ones'-complement
// checksum that protects it.
package pdu

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/lunixbochs/struc"
)

// HeaderSize is the size in bytes of the fixed SimpTCP header. Spec
// invariant: header length always equals HeaderSize (no options are
// defined), so unlike TCP there is no variable-length header to frame.
const HeaderSize = 20

var (
	ErrShortBuffer    = errors.New("pdu: buffer shorter than header")
	ErrBadHeaderLen   = errors.New("pdu: header length field does not match fixed header size")
	ErrBadTotalLen    = errors.New("pdu: total length shorter than header length")
	ErrTruncated      = errors.New("pdu: buffer shorter than declared total length")
	ErrChecksum       = errors.New("pdu: checksum mismatch")
	ErrPayloadTooLarge = errors.New("pdu: payload exceeds maximum segment size")
)

// MaxPayload bounds a single segment's payload so that header+payload fits
// comfortably inside one UDP datagram (spec §1: stop-and-wait, one PDU in
// flight, no fragmentation/reassembly).
const MaxPayload = 1400

// wireHeader mirrors the fixed header layout field-for-field; struc packs
// and unpacks it in network byte order using the struct tags below instead
// of hand-rolled encoding/binary calls for every field.
type wireHeader struct {
	SrcPort   uint16 `struc:"uint16,big"`
	DstPort   uint16 `struc:"uint16,big"`
	Seq       uint32 `struc:"uint32,big"`
	Ack       uint32 `struc:"uint32,big"`
	HeaderLen uint8  `struc:"uint8"`
	RawFlags  uint8  `struc:"uint8"`
	Window    uint16 `struc:"uint16,big"`
	Checksum  uint16 `struc:"uint16,big"`
	TotalLen  uint16 `struc:"uint16,big"`
}

// PDU is the decoded, in-memory representation of a SimpTCP segment.
type PDU struct {
	SrcPort, DstPort uint16
	Seq, Ack         uint32
	Flags            Flags
	Window           uint16 // reserved; always 1 per spec §3.1
	Payload          []byte
}

// Encode serializes p to a newly allocated buffer: fixed header followed by
// payload, with the checksum computed last over the whole buffer with the
// checksum field zeroed, per spec §4.3.
func Encode(p PDU) ([]byte, error) {
	if len(p.Payload) > MaxPayload {
		return nil, ErrPayloadTooLarge
	}
	wnd := p.Window
	if wnd == 0 {
		wnd = 1
	}
	hdr := wireHeader{
		SrcPort:   p.SrcPort,
		DstPort:   p.DstPort,
		Seq:       p.Seq,
		Ack:       p.Ack,
		HeaderLen: HeaderSize,
		RawFlags:  uint8(p.Flags.Mask()),
		Window:    wnd,
		Checksum:  0,
		TotalLen:  uint16(HeaderSize + len(p.Payload)),
	}
	var buf bytes.Buffer
	buf.Grow(HeaderSize + len(p.Payload))
	if err := struc.Pack(&buf, &hdr); err != nil {
		return nil, fmt.Errorf("pdu: pack header: %w", err)
	}
	buf.Write(p.Payload)
	out := buf.Bytes()
	cksum := Checksum(out)
	binary.BigEndian.PutUint16(out[16:18], cksum)
	return out, nil
}

// Decode parses buf (exactly one PDU, as delivered by the datagram
// endpoint's recv()) into a PDU. It validates the header/total length
// invariants of spec §3.1 but does NOT verify the checksum; callers must
// call VerifyChecksum separately, mirroring the split between "frame too
// malformed to look at" and "frame corrupted in transit" failure modes.
func Decode(buf []byte) (PDU, error) {
	if len(buf) < HeaderSize {
		return PDU{}, ErrShortBuffer
	}
	var hdr wireHeader
	if err := struc.Unpack(bytes.NewReader(buf[:HeaderSize]), &hdr); err != nil {
		return PDU{}, fmt.Errorf("pdu: unpack header: %w", err)
	}
	if hdr.HeaderLen != HeaderSize {
		return PDU{}, ErrBadHeaderLen
	}
	if int(hdr.TotalLen) < int(hdr.HeaderLen) {
		return PDU{}, ErrBadTotalLen
	}
	if len(buf) < int(hdr.TotalLen) {
		return PDU{}, ErrTruncated
	}
	return PDU{
		SrcPort: hdr.SrcPort,
		DstPort: hdr.DstPort,
		Seq:     hdr.Seq,
		Ack:     hdr.Ack,
		Flags:   Flags(hdr.RawFlags).Mask(),
		Window:  hdr.Window,
		Payload: buf[HeaderSize:hdr.TotalLen:hdr.TotalLen],
	}, nil
}

// Checksum computes the Internet-style ones'-complement checksum (RFC 791)
// over buf with the checksum field (bytes 16:18) treated as zero, folding
// the accumulator to 16 bits. It is used both to stamp an outgoing PDU in
// Encode and to verify an incoming one in VerifyChecksum.
func Checksum(buf []byte) uint16 {
	var sum uint32
	for i := 0; i+1 < len(buf); i += 2 {
		if i == 16 {
			continue // checksum field itself reads as zero
		}
		sum += uint32(binary.BigEndian.Uint16(buf[i:]))
	}
	if len(buf)%2 == 1 {
		sum += uint32(buf[len(buf)-1]) << 8
	}
	sum = (sum & 0xffff) + sum>>16
	sum = (sum & 0xffff) + sum>>16
	return ^uint16(sum)
}

// VerifyChecksum recomputes the checksum over buf (with the checksum field
// read as zero) and compares it against the field actually present,
// per spec §4.3 and §8's corrupted-PDU invariant.
func VerifyChecksum(buf []byte) bool {
	if len(buf) < HeaderSize {
		return false
	}
	want := binary.BigEndian.Uint16(buf[16:18])
	return Checksum(buf) == want
}
