package instruction

import (
	"encoding/binary"
	"errors"
	"reflect"
	"testing"

	"github.com/danmuck/deskwire/internal/testutil/testlog"
)

type futureInstruction struct{ body }

func (futureInstruction) Type() Type { return Type(99) }

func testHeader() Header {
	h := Header{ClientID: 7, ID: 1234}
	copy(h.SessionID[:], "session-0123456789")
	return h
}

func TestEncodeMouseScenario(t *testing.T) {
	testlog.Start(t)
	buf, err := Encode(testHeader(), Mouse{X: 100, Y: 50, ButtonMask: 0x100})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if len(buf) != 44 {
		t.Fatalf("len got=%d want=44", len(buf))
	}
	if v := int32(binary.LittleEndian.Uint32(buf[32:36])); v != 100 {
		t.Fatalf("x got=%d", v)
	}
	if v := int32(binary.LittleEndian.Uint32(buf[36:40])); v != 50 {
		t.Fatalf("y got=%d", v)
	}
	if v := binary.LittleEndian.Uint32(buf[40:44]); v != 256 {
		t.Fatalf("button mask got=%d", v)
	}
}

func TestHeaderLayout(t *testing.T) {
	testlog.Start(t)
	h := testHeader()
	h.Sync = true
	buf, err := Encode(h, Screen{})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if len(buf) != HeaderSize {
		t.Fatalf("empty payload len got=%d", len(buf))
	}
	if string(buf[0:16]) != "session-01234567" {
		t.Fatalf("session id got=%q", buf[0:16])
	}
	if v := binary.LittleEndian.Uint32(buf[16:20]); v != 7 {
		t.Fatalf("client id got=%d", v)
	}
	if v := binary.LittleEndian.Uint32(buf[20:24]); v != SyncFlag|uint32(TypeScreen) {
		t.Fatalf("type field got=%#x", v)
	}
	if v := binary.LittleEndian.Uint32(buf[24:28]); v != 1234 {
		t.Fatalf("id got=%d", v)
	}
	if v := binary.LittleEndian.Uint32(buf[28:32]); v != 0 {
		t.Fatalf("reserved got=%d", v)
	}
}

func TestRoundTripEveryType(t *testing.T) {
	testlog.Start(t)
	ts := [8]byte{1, 2, 3, 4, 5, 6, 7, 8}
	all := []Instruction{
		Connect{},
		Screen{},
		Windows{},
		Mouse{X: -20, Y: 4000, ButtonMask: 0x101},
		Keyboard{Key: 0xFF0D, Pressed: true},
		Keyboard{Key: 65},
		CursorImage{ID: 3},
		Image{ID: 0x10000001},
		Shape{ID: 12},
		Quality{Index: 4},
		Pong{Timestamp: ts},
		DataAck{Timestamp: ts, Length: 65536},
		Clipboard{Text: "copy me, ünïcode too"},
		Clipboard{},
		ScreenResize{Width: 1920, Height: 1080},
	}
	seen := map[Type]bool{}
	for i, in := range all {
		h := testHeader()
		h.ID = uint32(i + 1)
		h.Sync = i%2 == 0
		buf, err := Encode(h, in)
		if err != nil {
			t.Fatalf("encode %s: %v", in.Type(), err)
		}
		gotHeader, got, err := Decode(buf)
		if err != nil {
			t.Fatalf("decode %s: %v", in.Type(), err)
		}
		h.Type = in.Type()
		if gotHeader != h {
			t.Fatalf("%s header got=%+v want=%+v", in.Type(), gotHeader, h)
		}
		if !reflect.DeepEqual(got, in) {
			t.Fatalf("%s body got=%+v want=%+v", in.Type(), got, in)
		}
		seen[in.Type()] = true
	}
	for typ := range typeNames {
		if !seen[typ] {
			t.Fatalf("round trip missing type %s", typ)
		}
	}
}

func TestClipboardLengthPrefixAndAlignment(t *testing.T) {
	testlog.Start(t)
	buf, err := Encode(testHeader(), Clipboard{Text: "abc"})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if len(buf) != HeaderSize+4+3 {
		t.Fatalf("len got=%d", len(buf))
	}
	if v := binary.LittleEndian.Uint32(buf[32:36]); v != 3 {
		t.Fatalf("length prefix got=%d", v)
	}
	if string(buf[36:39]) != "abc" {
		t.Fatalf("text got=%q", buf[36:39])
	}
}

func TestEncodeUnknownInstruction(t *testing.T) {
	testlog.Start(t)
	buf, err := Encode(testHeader(), futureInstruction{})
	if !errors.Is(err, ErrNotEncodable) {
		t.Fatalf("expected ErrNotEncodable, got %v", err)
	}
	if buf != nil {
		t.Fatalf("unexpected bytes for unknown instruction")
	}
	if _, err := Encode(testHeader(), nil); !errors.Is(err, ErrNotEncodable) {
		t.Fatalf("nil instruction should not encode, got %v", err)
	}
}

func TestDecodeFailures(t *testing.T) {
	testlog.Start(t)
	if _, _, err := Decode(make([]byte, 31)); !errors.Is(err, ErrShortHeader) {
		t.Fatalf("expected ErrShortHeader, got %v", err)
	}

	unknown := make([]byte, HeaderSize)
	binary.LittleEndian.PutUint32(unknown[20:24], 77)
	if _, _, err := Decode(unknown); !errors.Is(err, ErrUnknownType) {
		t.Fatalf("expected ErrUnknownType, got %v", err)
	}

	buf, err := Encode(testHeader(), Mouse{X: 1, Y: 2, ButtonMask: 3})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if _, _, err := Decode(buf[:40]); !errors.Is(err, ErrTruncated) {
		t.Fatalf("expected ErrTruncated, got %v", err)
	}

	clip, err := Encode(testHeader(), Clipboard{Text: "abcdef"})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if _, _, err := Decode(clip[:38]); !errors.Is(err, ErrTruncated) {
		t.Fatalf("expected ErrTruncated for clipboard, got %v", err)
	}
}

func TestTypeString(t *testing.T) {
	testlog.Start(t)
	if TypeDataAck.String() != "data_ack" {
		t.Fatalf("got=%q", TypeDataAck.String())
	}
	if Type(500).String() != "type(500)" || Type(500).Known() {
		t.Fatalf("unexpected unknown type rendering")
	}
}
