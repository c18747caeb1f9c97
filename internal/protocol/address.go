package protocol

import (
	"fmt"
	"net"
	"strconv"
	"strings"
)

const (
	IPSize   = 15
	PortSize = 5
	// AddressSize is the fixed width of one IP+port entry in a packet body.
	AddressSize = IPSize + PortSize
)

// Address is a peer server address in canonical form: four zero-padded
// 3-digit octets and a zero-padded 5-digit port. Build it with ParseAddress
// or ParseHostPort; the zero value is "no address".
type Address struct {
	IP   string
	Port string
}

// ParseAddress canonicalizes an IPv4 dotted quad and a decimal port.
// Already-canonical input is returned unchanged.
func ParseAddress(ip, port string) (Address, error) {
	canonIP, err := canonicalIP(ip)
	if err != nil {
		return Address{}, err
	}
	canonPort, err := canonicalPort(port)
	if err != nil {
		return Address{}, err
	}
	return Address{IP: canonIP, Port: canonPort}, nil
}

// ParseHostPort canonicalizes an "ip:port" string.
func ParseHostPort(hostport string) (Address, error) {
	host, port, err := net.SplitHostPort(strings.TrimSpace(hostport))
	if err != nil {
		return Address{}, fmt.Errorf("%w: %q: %v", ErrInvalidAddress, hostport, err)
	}
	if host == "localhost" {
		host = "127.0.0.1"
	}
	return ParseAddress(host, port)
}

// MustParseHostPort is ParseHostPort for constants and tests.
func MustParseHostPort(hostport string) Address {
	a, err := ParseHostPort(hostport)
	if err != nil {
		panic(err)
	}
	return a
}

// AddressFromWire builds an address from the numeric header fields.
func AddressFromWire(octets [4]uint16, port uint32) (Address, error) {
	parts := make([]string, 4)
	for i, o := range octets {
		parts[i] = strconv.Itoa(int(o))
	}
	return ParseAddress(strings.Join(parts, "."), strconv.FormatUint(uint64(port), 10))
}

// Canonical re-normalizes a; it is idempotent on valid addresses.
func (a Address) Canonical() (Address, error) {
	return ParseAddress(a.IP, a.Port)
}

func (a Address) IsZero() bool {
	return a.IP == "" && a.Port == ""
}

func (a Address) String() string {
	if a.IsZero() {
		return "<none>"
	}
	return a.IP + ":" + a.Port
}

// HostPort renders a dialable "ip:port" without zero padding.
func (a Address) HostPort() string {
	octets, err := a.Octets()
	if err != nil {
		return a.String()
	}
	port, _ := a.PortNumber()
	return fmt.Sprintf("%d.%d.%d.%d:%d", octets[0], octets[1], octets[2], octets[3], port)
}

// Octets returns the numeric IP octets as carried in the packet header.
func (a Address) Octets() ([4]uint16, error) {
	var out [4]uint16
	parts := strings.Split(a.IP, ".")
	if len(parts) != 4 {
		return out, fmt.Errorf("%w: ip %q", ErrInvalidAddress, a.IP)
	}
	for i, p := range parts {
		n, err := strconv.ParseUint(p, 10, 16)
		if err != nil || n > 255 {
			return out, fmt.Errorf("%w: ip %q", ErrInvalidAddress, a.IP)
		}
		out[i] = uint16(n)
	}
	return out, nil
}

func (a Address) PortNumber() (uint32, error) {
	n, err := strconv.ParseUint(a.Port, 10, 32)
	if err != nil || n > 65535 {
		return 0, fmt.Errorf("%w: port %q", ErrInvalidAddress, a.Port)
	}
	return uint32(n), nil
}

// MarshalText renders the canonical form; the zero address is empty.
func (a Address) MarshalText() ([]byte, error) {
	if a.IsZero() {
		return []byte{}, nil
	}
	return []byte(a.String()), nil
}

func (a *Address) UnmarshalText(text []byte) error {
	if len(text) == 0 {
		*a = Address{}
		return nil
	}
	parsed, err := ParseHostPort(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// appendWire appends the fixed-width IP(15)+Port(5) body entry.
func (a Address) appendWire(dst []byte) []byte {
	dst = append(dst, a.IP...)
	return append(dst, a.Port...)
}

// parseWireAddress reads one fixed-width entry; it must already be canonical.
func parseWireAddress(b []byte) (Address, error) {
	if len(b) != AddressSize {
		return Address{}, fmt.Errorf("%w: entry length %d", ErrInvalidAddress, len(b))
	}
	raw := Address{IP: string(b[:IPSize]), Port: string(b[IPSize:])}
	canon, err := raw.Canonical()
	if err != nil {
		return Address{}, err
	}
	if canon != raw {
		return Address{}, fmt.Errorf("%w: non-canonical entry %q", ErrInvalidAddress, string(b))
	}
	return canon, nil
}

func canonicalIP(ip string) (string, error) {
	parts := strings.Split(strings.TrimSpace(ip), ".")
	if len(parts) != 4 {
		return "", fmt.Errorf("%w: ip %q", ErrInvalidAddress, ip)
	}
	out := make([]string, 4)
	for i, p := range parts {
		if p == "" || len(p) > 3 {
			return "", fmt.Errorf("%w: ip %q", ErrInvalidAddress, ip)
		}
		n, err := strconv.ParseUint(p, 10, 16)
		if err != nil || n > 255 {
			return "", fmt.Errorf("%w: ip %q", ErrInvalidAddress, ip)
		}
		out[i] = fmt.Sprintf("%03d", n)
	}
	return strings.Join(out, "."), nil
}

func canonicalPort(port string) (string, error) {
	p := strings.TrimSpace(port)
	if p == "" || len(p) > PortSize {
		return "", fmt.Errorf("%w: port %q", ErrInvalidAddress, port)
	}
	n, err := strconv.ParseUint(p, 10, 32)
	if err != nil || n > 65535 {
		return "", fmt.Errorf("%w: port %q", ErrInvalidAddress, port)
	}
	return fmt.Sprintf("%05d", n), nil
}
