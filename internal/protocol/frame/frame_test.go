package frame

import (
	"bytes"
	"errors"
	"io"
	"testing"

	"github.com/danmuck/treenet/internal/protocol"
)

var src = protocol.MustParseHostPort("127.0.0.1:7100")

func TestReadWritePacketRoundTrip(t *testing.T) {
	in, err := protocol.NewPacket(src, protocol.Message{Text: "over the wire"})
	if err != nil {
		t.Fatalf("new packet: %v", err)
	}
	var buf bytes.Buffer
	if err := WritePacket(&buf, in, DefaultLimits()); err != nil {
		t.Fatalf("write packet: %v", err)
	}
	out, err := ReadPacket(&buf, DefaultLimits())
	if err != nil {
		t.Fatalf("read packet: %v", err)
	}
	if out.Type != in.Type || out.Source != in.Source || out.Length != in.Length {
		t.Fatalf("header mismatch: got=%+v want=%+v", out, in)
	}
	if !bytes.Equal(out.Body, in.Body) {
		t.Fatalf("body mismatch: %q", string(out.Body))
	}
}

func TestReadPacketSequential(t *testing.T) {
	var buf bytes.Buffer
	for _, body := range []protocol.Body{protocol.Join{}, protocol.AdvertiseRequest{}, protocol.Message{Text: "x"}} {
		raw, err := protocol.EncodeBody(src, body)
		if err != nil {
			t.Fatalf("encode: %v", err)
		}
		if err := WriteRaw(&buf, raw, DefaultLimits()); err != nil {
			t.Fatalf("write raw: %v", err)
		}
	}
	want := []protocol.Type{protocol.TypeJoin, protocol.TypeAdvertise, protocol.TypeMessage}
	for i, typ := range want {
		p, err := ReadPacket(&buf, DefaultLimits())
		if err != nil {
			t.Fatalf("read %d: %v", i, err)
		}
		if p.Type != typ {
			t.Fatalf("packet %d: expected %s, got %s", i, typ, p.Type)
		}
	}
	if _, err := ReadPacket(&buf, DefaultLimits()); !errors.Is(err, io.EOF) {
		t.Fatalf("expected io.EOF after last packet, got %v", err)
	}
}

func TestReadPacketShortHeaderIsDeterministic(t *testing.T) {
	_, err := ReadPacket(bytes.NewReader([]byte{1, 2, 3}), DefaultLimits())
	if !errors.Is(err, ErrShortHeader) {
		t.Fatalf("expected ErrShortHeader, got %v", err)
	}
}

func TestReadPacketShortBody(t *testing.T) {
	raw, err := protocol.EncodeBody(src, protocol.Message{Text: "truncated"})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	_, err = ReadPacket(bytes.NewReader(raw[:len(raw)-2]), DefaultLimits())
	if !errors.Is(err, ErrShortBody) {
		t.Fatalf("expected ErrShortBody, got %v", err)
	}
}

func TestReadPacketBodyTooLarge(t *testing.T) {
	raw, err := protocol.EncodeBody(src, protocol.Message{Text: "0123456789"})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	_, err = ReadPacket(bytes.NewReader(raw), Limits{MaxBodyBytes: 4})
	if !errors.Is(err, ErrBodyTooLarge) {
		t.Fatalf("expected ErrBodyTooLarge, got %v", err)
	}
	p, _ := protocol.Decode(raw)
	if err := WritePacket(io.Discard, p, Limits{MaxBodyBytes: 4}); !errors.Is(err, ErrBodyTooLarge) {
		t.Fatalf("expected ErrBodyTooLarge on write, got %v", err)
	}
}

func TestWriteRawRejectsLengthMismatch(t *testing.T) {
	raw, err := protocol.EncodeBody(src, protocol.Join{})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	err = WriteRaw(io.Discard, append(raw, 'x'), DefaultLimits())
	if !errors.Is(err, protocol.ErrEncoding) {
		t.Fatalf("expected ErrEncoding, got %v", err)
	}
}
