package protocol

import (
	"errors"
	"testing"

	"github.com/danmuck/treenet/internal/testutil/testlog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAddressZeroPads(t *testing.T) {
	testlog.Start(t)
	a, err := ParseAddress("127.0.0.1", "8080")
	require.NoError(t, err)
	assert.Equal(t, "127.000.000.001", a.IP)
	assert.Equal(t, "08080", a.Port)
	assert.Equal(t, "127.0.0.1:8080", a.HostPort())
	assert.Equal(t, "127.000.000.001:08080", a.String())
}

func TestCanonicalIsIdempotent(t *testing.T) {
	testlog.Start(t)
	inputs := [][2]string{
		{"10.0.0.1", "1"},
		{"192.168.001.020", "65535"},
		{"000.000.000.000", "00000"},
		{" 8.8.8.8 ", " 53"},
	}
	for _, in := range inputs {
		once, err := ParseAddress(in[0], in[1])
		require.NoError(t, err, "input %v", in)
		twice, err := once.Canonical()
		require.NoError(t, err)
		assert.Equal(t, once, twice)
		assert.Len(t, once.IP, IPSize)
		assert.Len(t, once.Port, PortSize)
	}
}

func TestParseAddressRejectsInvalid(t *testing.T) {
	testlog.Start(t)
	cases := [][2]string{
		{"256.0.0.1", "80"},
		{"1.2.3", "80"},
		{"1.2.3.4.5", "80"},
		{"a.b.c.d", "80"},
		{"1..2.3", "80"},
		{"0001.2.3.4", "80"},
		{"1.2.3.4", "65536"},
		{"1.2.3.4", "123456"},
		{"1.2.3.4", ""},
		{"1.2.3.4", "-1"},
	}
	for _, c := range cases {
		_, err := ParseAddress(c[0], c[1])
		if !errors.Is(err, ErrInvalidAddress) {
			t.Fatalf("ParseAddress(%q, %q): expected ErrInvalidAddress, got %v", c[0], c[1], err)
		}
	}
}

func TestParseHostPortLocalhost(t *testing.T) {
	testlog.Start(t)
	a, err := ParseHostPort("localhost:9000")
	require.NoError(t, err)
	assert.Equal(t, MustParseHostPort("127.0.0.1:9000"), a)

	_, err = ParseHostPort("no-port")
	assert.ErrorIs(t, err, ErrInvalidAddress)
}

func TestAddressFromWireMatchesHeaderFields(t *testing.T) {
	testlog.Start(t)
	a := MustParseHostPort("10.20.30.40:5000")
	octets, err := a.Octets()
	require.NoError(t, err)
	port, err := a.PortNumber()
	require.NoError(t, err)
	assert.Equal(t, [4]uint16{10, 20, 30, 40}, octets)
	assert.Equal(t, uint32(5000), port)

	back, err := AddressFromWire(octets, port)
	require.NoError(t, err)
	assert.Equal(t, a, back)

	_, err = AddressFromWire([4]uint16{300, 0, 0, 1}, 80)
	assert.ErrorIs(t, err, ErrInvalidAddress)
}

func TestZeroAddress(t *testing.T) {
	var a Address
	assert.True(t, a.IsZero())
	assert.Equal(t, "<none>", a.String())
}

func TestAddressTextRoundTrip(t *testing.T) {
	testlog.Start(t)
	a := MustParseHostPort("192.168.1.20:80")
	text, err := a.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "192.168.001.020:00080", string(text))

	var back Address
	require.NoError(t, back.UnmarshalText(text))
	assert.Equal(t, a, back)

	var zero Address
	text, err = zero.MarshalText()
	require.NoError(t, err)
	assert.Empty(t, text)
	require.NoError(t, back.UnmarshalText(nil))
	assert.True(t, back.IsZero())
}
