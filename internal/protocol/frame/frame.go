package frame

import (
	"errors"
	"fmt"
	"io"

	"github.com/danmuck/treenet/internal/protocol"
)

var (
	ErrShortHeader  = errors.New("frame: short packet header")
	ErrShortBody    = errors.New("frame: body shorter than declared length")
	ErrBodyTooLarge = errors.New("frame: body too large")
)

// Limits constrains packet decode/encode memory use.
type Limits struct {
	MaxBodyBytes uint32
}

func DefaultLimits() Limits {
	return Limits{
		MaxBodyBytes: 64 * 1024,
	}
}

// ReadRaw reads exactly one header plus its declared body from r and
// returns the encoded frame. io.EOF is returned untouched when r ends
// cleanly between packets.
func ReadRaw(r io.Reader, limits Limits) ([]byte, error) {
	var header [protocol.HeaderSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, ErrShortHeader
		}
		return nil, err
	}

	length, err := protocol.DeclaredBodyLength(header[:])
	if err != nil {
		return nil, err
	}
	if length > limits.MaxBodyBytes {
		return nil, fmt.Errorf("%w: %d > %d", ErrBodyTooLarge, length, limits.MaxBodyBytes)
	}

	buf := make([]byte, protocol.HeaderSize+int(length))
	copy(buf, header[:])
	if length > 0 {
		if _, err := io.ReadFull(r, buf[protocol.HeaderSize:]); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return nil, ErrShortBody
			}
			return nil, err
		}
	}
	return buf, nil
}

// ReadPacket is ReadRaw followed by protocol.Decode.
func ReadPacket(r io.Reader, limits Limits) (protocol.Packet, error) {
	raw, err := ReadRaw(r, limits)
	if err != nil {
		return protocol.Packet{}, err
	}
	return protocol.Decode(raw)
}

// WritePacket encodes p and writes it in a single call.
func WritePacket(w io.Writer, p protocol.Packet, limits Limits) error {
	if uint64(len(p.Body)) > uint64(limits.MaxBodyBytes) {
		return fmt.Errorf("%w: %d > %d", ErrBodyTooLarge, len(p.Body), limits.MaxBodyBytes)
	}
	raw, err := protocol.Encode(p)
	if err != nil {
		return err
	}
	_, err = w.Write(raw)
	return err
}

// WriteRaw writes an already-encoded packet after checking its header.
func WriteRaw(w io.Writer, raw []byte, limits Limits) error {
	length, err := protocol.DeclaredBodyLength(raw)
	if err != nil {
		return err
	}
	if length > limits.MaxBodyBytes {
		return fmt.Errorf("%w: %d > %d", ErrBodyTooLarge, length, limits.MaxBodyBytes)
	}
	if int(length) != len(raw)-protocol.HeaderSize {
		return fmt.Errorf("%w: declared %d, have %d", protocol.ErrEncoding, length, len(raw)-protocol.HeaderSize)
	}
	_, err = w.Write(raw)
	return err
}
