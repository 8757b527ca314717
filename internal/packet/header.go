package packet

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// HeaderSize is the length of the fixed probe header in bytes.
const HeaderSize = 18

// PongPortOffset is added to the header source port to address pong replies.
const PongPortOffset = 1024

const timestampOffset = 10

// ErrMalformedHeader is returned when a datagram is too short to carry a header.
var ErrMalformedHeader = errors.New("malformed probe header")

// Header is the fixed little-endian header at the start of every probe datagram.
type Header struct {
	Sequence        uint32
	FragmentOffset  uint16 // 0 marks the last fragment of a logical packet
	PayloadLength   uint16
	SourcePort      uint16
	SenderTimestamp float64 // seconds, sender clock
}

// IsLast reports whether this fragment terminates its logical packet.
func (h Header) IsLast() bool {
	return h.FragmentOffset == 0
}

// Decode parses the header from the start of a datagram.
func Decode(data []byte) (Header, error) {
	if len(data) < HeaderSize {
		return Header{}, fmt.Errorf("%w: got %d bytes, need %d", ErrMalformedHeader, len(data), HeaderSize)
	}
	return Header{
		Sequence:        binary.LittleEndian.Uint32(data[0:4]),
		FragmentOffset:  binary.LittleEndian.Uint16(data[4:6]),
		PayloadLength:   binary.LittleEndian.Uint16(data[6:8]),
		SourcePort:      binary.LittleEndian.Uint16(data[8:10]),
		SenderTimestamp: math.Float64frombits(binary.LittleEndian.Uint64(data[10:18])),
	}, nil
}

// Encode serializes the header into a new HeaderSize byte slice.
func (h Header) Encode() []byte {
	return h.AppendTo(make([]byte, 0, HeaderSize))
}

// AppendTo appends the encoded header to b and returns the extended slice.
func (h Header) AppendTo(b []byte) []byte {
	b = binary.LittleEndian.AppendUint32(b, h.Sequence)
	b = binary.LittleEndian.AppendUint16(b, h.FragmentOffset)
	b = binary.LittleEndian.AppendUint16(b, h.PayloadLength)
	b = binary.LittleEndian.AppendUint16(b, h.SourcePort)
	b = binary.LittleEndian.AppendUint64(b, math.Float64bits(h.SenderTimestamp))
	return b
}

// EncodeRTTReply builds a pong datagram from the original one. The timestamp
// field is replaced by the measured delay in seconds; every other byte,
// including any payload, is copied unchanged.
func EncodeRTTReply(datagram []byte, delay float64) ([]byte, error) {
	if len(datagram) < HeaderSize {
		return nil, fmt.Errorf("%w: got %d bytes, need %d", ErrMalformedHeader, len(datagram), HeaderSize)
	}
	reply := make([]byte, len(datagram))
	copy(reply, datagram)
	binary.LittleEndian.PutUint64(reply[timestampOffset:HeaderSize], math.Float64bits(delay))
	return reply, nil
}

// PongPort returns the port a sender listens on for pong replies.
func PongPort(sourcePort uint16) int {
	return int(sourcePort) + PongPortOffset
}
