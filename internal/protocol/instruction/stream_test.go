package instruction

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"testing"

	"github.com/danmuck/deskwire/internal/testutil/testlog"
)

func TestReadFrameSplitsConcatenatedStream(t *testing.T) {
	testlog.Start(t)
	sent := []Instruction{
		Connect{},
		Mouse{X: 1, Y: 2, ButtonMask: 3},
		Clipboard{Text: "héllo"},
		Keyboard{Key: 65, Pressed: true},
		DataAck{Timestamp: [8]byte{1}, Length: 40000},
		Clipboard{},
		ScreenResize{Width: 640, Height: 480},
	}
	var stream bytes.Buffer
	for i, in := range sent {
		buf, err := Encode(Header{ID: uint32(i + 1)}, in)
		if err != nil {
			t.Fatalf("encode %T: %v", in, err)
		}
		stream.Write(buf)
	}

	for i, want := range sent {
		buf, err := ReadFrame(&stream)
		if err != nil {
			t.Fatalf("frame %d: %v", i, err)
		}
		h, got, err := Decode(buf)
		if err != nil {
			t.Fatalf("decode frame %d: %v", i, err)
		}
		if h.ID != uint32(i+1) || got != want {
			t.Fatalf("frame %d got=%#v id=%d want=%#v", i, got, h.ID, want)
		}
	}
	if _, err := ReadFrame(&stream); !errors.Is(err, io.EOF) {
		t.Fatalf("drained stream got=%v", err)
	}
}

func TestReadFrameFailures(t *testing.T) {
	testlog.Start(t)
	unknown := make([]byte, HeaderSize)
	binary.LittleEndian.PutUint32(unknown[20:], 77)
	if _, err := ReadFrame(bytes.NewReader(unknown)); !errors.Is(err, ErrUnknownType) {
		t.Fatalf("unknown type got=%v", err)
	}

	mouse, _ := Encode(Header{}, Mouse{X: 1})
	if _, err := ReadFrame(bytes.NewReader(mouse[:HeaderSize+4])); !errors.Is(err, ErrTruncated) {
		t.Fatalf("short payload got=%v", err)
	}

	huge := make([]byte, HeaderSize+4)
	binary.LittleEndian.PutUint32(huge[20:], uint32(TypeClipboard))
	binary.LittleEndian.PutUint32(huge[HeaderSize:], MaxClipboardBytes+1)
	if _, err := ReadFrame(bytes.NewReader(huge)); !errors.Is(err, ErrTruncated) {
		t.Fatalf("oversized clipboard got=%v", err)
	}
}
