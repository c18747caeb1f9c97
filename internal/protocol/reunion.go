package protocol

import (
	"bytes"
	"fmt"
	"strconv"
)

const (
	entryCountSize = 2
	// MaxPathEntries is the largest path a two-digit entry count can declare.
	MaxPathEntries = 99
)

// ReunionKind distinguishes the upward HELLO from the downward HELLO-BACK.
type ReunionKind uint8

const (
	ReunionHello ReunionKind = iota + 1
	ReunionHelloBack
)

func (k ReunionKind) String() string {
	switch k {
	case ReunionHello:
		return "hello"
	case ReunionHelloBack:
		return "hello_back"
	default:
		return "unknown"
	}
}

// Reunion is a heartbeat body carrying a source-routed address path.
// For HELLO the path is the ascent path (origin first); for HELLO-BACK it
// is the descent path (next hop first, origin last).
type Reunion struct {
	Kind ReunionKind
	Path []Address
}

func (Reunion) PacketType() Type { return TypeReunion }

func (r Reunion) MarshalBody() ([]byte, error) {
	var mark string
	switch r.Kind {
	case ReunionHello:
		mark = markReq
	case ReunionHelloBack:
		mark = markRes
	default:
		return nil, fmt.Errorf("%w: reunion kind %d", ErrEncoding, r.Kind)
	}
	if len(r.Path) > MaxPathEntries {
		return nil, fmt.Errorf("%w: %d entries", ErrPathTooLong, len(r.Path))
	}
	out := make([]byte, 0, len(mark)+entryCountSize+len(r.Path)*AddressSize)
	out = append(out, mark...)
	out = append(out, fmt.Sprintf("%02d", len(r.Path))...)
	for _, a := range r.Path {
		if err := requireCanonical(a); err != nil {
			return nil, err
		}
		out = a.appendWire(out)
	}
	return out, nil
}

// Head is the first path entry.
func (r Reunion) Head() (Address, bool) {
	if len(r.Path) == 0 {
		return Address{}, false
	}
	return r.Path[0], true
}

// Origin is the peer that started the heartbeat.
func (r Reunion) Origin() (Address, bool) {
	if len(r.Path) == 0 {
		return Address{}, false
	}
	if r.Kind == ReunionHelloBack {
		return r.Path[len(r.Path)-1], true
	}
	return r.Path[0], true
}

// Append returns a copy with a added to the end of the ascent path.
func (r Reunion) Append(a Address) (Reunion, error) {
	if len(r.Path) >= MaxPathEntries {
		return Reunion{}, fmt.Errorf("%w: cannot append to %d entries", ErrPathTooLong, len(r.Path))
	}
	path := make([]Address, len(r.Path), len(r.Path)+1)
	copy(path, r.Path)
	return Reunion{Kind: r.Kind, Path: append(path, a)}, nil
}

// Reversed turns a HELLO ascent path into the HELLO-BACK descent path.
func (r Reunion) Reversed() Reunion {
	path := make([]Address, len(r.Path))
	for i, a := range r.Path {
		path[len(r.Path)-1-i] = a
	}
	return Reunion{Kind: ReunionHelloBack, Path: path}
}

// StripHead returns a copy without the first entry.
func (r Reunion) StripHead() (Reunion, error) {
	if len(r.Path) == 0 {
		return Reunion{}, ErrEmptyPath
	}
	path := make([]Address, len(r.Path)-1)
	copy(path, r.Path[1:])
	return Reunion{Kind: r.Kind, Path: path}, nil
}

func parseReunion(b []byte) (Body, error) {
	if len(b) < len(markReq)+entryCountSize {
		return nil, fmt.Errorf("%w: reunion body %q", ErrMalformedBody, truncate(b))
	}
	var kind ReunionKind
	switch {
	case bytes.HasPrefix(b, []byte(markReq)):
		kind = ReunionHello
	case bytes.HasPrefix(b, []byte(markRes)):
		kind = ReunionHelloBack
	default:
		return nil, fmt.Errorf("%w: reunion mark %q", ErrMalformedBody, truncate(b))
	}
	rest := b[len(markReq):]
	// two ASCII digits, no sign
	n, err := strconv.ParseUint(string(rest[:entryCountSize]), 10, 8)
	if err != nil {
		return nil, fmt.Errorf("%w: entry count %q", ErrMalformedBody, string(rest[:entryCountSize]))
	}
	declared := int(n)
	entries := rest[entryCountSize:]
	if len(entries)%AddressSize != 0 || len(entries)/AddressSize != declared {
		return nil, fmt.Errorf("%w: declared %d, body carries %d bytes of entries", ErrEntryCount, declared, len(entries))
	}
	path := make([]Address, 0, declared)
	for off := 0; off < len(entries); off += AddressSize {
		a, err := parseWireAddress(entries[off : off+AddressSize])
		if err != nil {
			return nil, fmt.Errorf("%w: reunion entry %d: %v", ErrMalformedBody, off/AddressSize, err)
		}
		path = append(path, a)
	}
	return Reunion{Kind: kind, Path: path}, nil
}
