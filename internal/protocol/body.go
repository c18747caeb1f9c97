package protocol

import (
	"bytes"
	"fmt"
)

const (
	markReq  = "REQ"
	markRes  = "RES"
	markAck  = "ACK"
	markJoin = "JOIN"
)

// Body is one variant of the packet body union. Each variant knows its
// packet type and fixed-width text layout.
type Body interface {
	PacketType() Type
	MarshalBody() ([]byte, error)
}

// RegisterRequest asks the root to allow-list Address.
type RegisterRequest struct {
	Address Address
}

// RegisterResponse is the root's ACK to a registration.
type RegisterResponse struct{}

// AdvertiseRequest asks the root for a tree neighbor.
type AdvertiseRequest struct{}

// AdvertiseResponse carries the neighbor the requester must join.
type AdvertiseResponse struct {
	Neighbor Address
}

// Join tells the receiver that the sender is now its child.
type Join struct{}

// Message is broadcast text.
type Message struct {
	Text string
}

func (RegisterRequest) PacketType() Type   { return TypeRegister }
func (RegisterResponse) PacketType() Type  { return TypeRegister }
func (AdvertiseRequest) PacketType() Type  { return TypeAdvertise }
func (AdvertiseResponse) PacketType() Type { return TypeAdvertise }
func (Join) PacketType() Type              { return TypeJoin }
func (Message) PacketType() Type           { return TypeMessage }

func (b RegisterRequest) MarshalBody() ([]byte, error) {
	if err := requireCanonical(b.Address); err != nil {
		return nil, err
	}
	out := make([]byte, 0, len(markReq)+AddressSize)
	out = append(out, markReq...)
	return b.Address.appendWire(out), nil
}

func (RegisterResponse) MarshalBody() ([]byte, error) {
	return []byte(markRes + markAck), nil
}

func (AdvertiseRequest) MarshalBody() ([]byte, error) {
	return []byte(markReq), nil
}

func (b AdvertiseResponse) MarshalBody() ([]byte, error) {
	if err := requireCanonical(b.Neighbor); err != nil {
		return nil, err
	}
	out := make([]byte, 0, len(markRes)+AddressSize)
	out = append(out, markRes...)
	return b.Neighbor.appendWire(out), nil
}

func (Join) MarshalBody() ([]byte, error) {
	return []byte(markJoin), nil
}

func (b Message) MarshalBody() ([]byte, error) {
	return []byte(b.Text), nil
}

// ParseBody decodes p.Body as the variant selected by p.Type.
func ParseBody(p Packet) (Body, error) {
	switch p.Type {
	case TypeRegister:
		return parseRegister(p.Body)
	case TypeAdvertise:
		return parseAdvertise(p.Body)
	case TypeJoin:
		return parseJoin(p.Body)
	case TypeMessage:
		return Message{Text: string(p.Body)}, nil
	case TypeReunion:
		return parseReunion(p.Body)
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedType, uint16(p.Type))
	}
}

func parseRegister(b []byte) (Body, error) {
	switch {
	case len(b) == len(markReq)+AddressSize && bytes.HasPrefix(b, []byte(markReq)):
		addr, err := parseWireAddress(b[len(markReq):])
		if err != nil {
			return nil, fmt.Errorf("%w: register: %v", ErrMalformedBody, err)
		}
		return RegisterRequest{Address: addr}, nil
	case string(b) == markRes+markAck:
		return RegisterResponse{}, nil
	default:
		return nil, fmt.Errorf("%w: register body %q", ErrMalformedBody, truncate(b))
	}
}

func parseAdvertise(b []byte) (Body, error) {
	switch {
	case string(b) == markReq:
		return AdvertiseRequest{}, nil
	case len(b) == len(markRes)+AddressSize && bytes.HasPrefix(b, []byte(markRes)):
		addr, err := parseWireAddress(b[len(markRes):])
		if err != nil {
			return nil, fmt.Errorf("%w: advertise: %v", ErrMalformedBody, err)
		}
		return AdvertiseResponse{Neighbor: addr}, nil
	default:
		return nil, fmt.Errorf("%w: advertise body %q", ErrMalformedBody, truncate(b))
	}
}

func parseJoin(b []byte) (Body, error) {
	if string(b) != markJoin {
		return nil, fmt.Errorf("%w: join body %q", ErrMalformedBody, truncate(b))
	}
	return Join{}, nil
}

func requireCanonical(a Address) error {
	canon, err := a.Canonical()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrEncoding, err)
	}
	if canon != a {
		return fmt.Errorf("%w: address %s is not canonical", ErrEncoding, a)
	}
	return nil
}

func truncate(b []byte) string {
	const limit = 32
	if len(b) > limit {
		return string(b[:limit]) + "..."
	}
	return string(b)
}
