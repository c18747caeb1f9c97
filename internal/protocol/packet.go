package protocol

import (
	"encoding/binary"
	"fmt"
	"unicode/utf8"
)

const (
	Version    uint16 = 1
	HeaderSize        = 20
)

// Type identifies the packet body family.
type Type uint16

const (
	TypeRegister  Type = 1
	TypeAdvertise Type = 2
	TypeJoin      Type = 3
	TypeMessage   Type = 4
	TypeReunion   Type = 5
)

func (t Type) Known() bool {
	return t >= TypeRegister && t <= TypeReunion
}

func (t Type) String() string {
	switch t {
	case TypeRegister:
		return "register"
	case TypeAdvertise:
		return "advertise"
	case TypeJoin:
		return "join"
	case TypeMessage:
		return "message"
	case TypeReunion:
		return "reunion"
	default:
		return fmt.Sprintf("unknown(%d)", uint16(t))
	}
}

// Packet is one decoded wire packet. Length is the declared body length
// and must equal len(Body) for a packet to be encodable.
type Packet struct {
	Version uint16
	Type    Type
	Length  uint32
	Source  Address
	Body    []byte
}

// NewPacket builds a version-1 packet carrying body from source.
func NewPacket(source Address, body Body) (Packet, error) {
	raw, err := body.MarshalBody()
	if err != nil {
		return Packet{}, err
	}
	return Packet{
		Version: Version,
		Type:    body.PacketType(),
		Length:  uint32(len(raw)),
		Source:  source,
		Body:    raw,
	}, nil
}

// Encode renders p as header followed by body.
func Encode(p Packet) ([]byte, error) {
	if int(p.Length) != len(p.Body) {
		return nil, fmt.Errorf("%w: length %d != body %d", ErrEncoding, p.Length, len(p.Body))
	}
	octets, err := p.Source.Octets()
	if err != nil {
		return nil, fmt.Errorf("%w: source: %v", ErrEncoding, err)
	}
	port, err := p.Source.PortNumber()
	if err != nil {
		return nil, fmt.Errorf("%w: source: %v", ErrEncoding, err)
	}

	buf := make([]byte, HeaderSize, HeaderSize+len(p.Body))
	binary.BigEndian.PutUint16(buf[0:2], p.Version)
	binary.BigEndian.PutUint16(buf[2:4], uint16(p.Type))
	binary.BigEndian.PutUint32(buf[4:8], p.Length)
	for i, o := range octets {
		binary.BigEndian.PutUint16(buf[8+2*i:10+2*i], o)
	}
	binary.BigEndian.PutUint32(buf[16:20], port)
	return append(buf, p.Body...), nil
}

// EncodeBody is NewPacket followed by Encode.
func EncodeBody(source Address, body Body) ([]byte, error) {
	p, err := NewPacket(source, body)
	if err != nil {
		return nil, err
	}
	return Encode(p)
}

// Decode parses one packet. Everything after the header is the body.
func Decode(buf []byte) (Packet, error) {
	if len(buf) < HeaderSize {
		return Packet{}, fmt.Errorf("%w: short header (%d bytes)", ErrDecoding, len(buf))
	}
	var octets [4]uint16
	for i := range octets {
		octets[i] = binary.BigEndian.Uint16(buf[8+2*i : 10+2*i])
	}
	source, err := AddressFromWire(octets, binary.BigEndian.Uint32(buf[16:20]))
	if err != nil {
		return Packet{}, fmt.Errorf("%w: source: %v", ErrDecoding, err)
	}
	if !utf8.Valid(buf[HeaderSize:]) {
		return Packet{}, fmt.Errorf("%w: body is not utf-8 text", ErrDecoding)
	}
	body := make([]byte, len(buf)-HeaderSize)
	copy(body, buf[HeaderSize:])
	return Packet{
		Version: binary.BigEndian.Uint16(buf[0:2]),
		Type:    Type(binary.BigEndian.Uint16(buf[2:4])),
		Length:  binary.BigEndian.Uint32(buf[4:8]),
		Source:  source,
		Body:    body,
	}, nil
}

// DeclaredBodyLength reads the length field of an encoded header.
func DeclaredBodyLength(header []byte) (uint32, error) {
	if len(header) < HeaderSize {
		return 0, fmt.Errorf("%w: short header (%d bytes)", ErrDecoding, len(header))
	}
	return binary.BigEndian.Uint32(header[4:8]), nil
}
