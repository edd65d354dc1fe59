package protocol

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"strings"
	"testing"
	"testing/iotest"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

func roundTripFrames() []Frame {
	return []Frame{
		TextFrame("hello"),
		TextFrame(""),
		TextFrame(strings.Repeat("x", 1024)),
		FileFrame("notes.txt", []byte{0x00, 0x01, 0xFF}),
		FileFrame("", nil),
		ImageFrame("cat.png", bytes.Repeat([]byte{0xAB}, 4096)),
		ImageFrame("not-actually-a-png.png", []byte("plain text payload")),
		AuthRequestFrame(false, "alice", "pw1"),
		AuthRequestFrame(true, "bob", ""),
		AuthResultFrame(true, "welcome"),
		AuthResultFrame(false, "invalid credentials"),
		DisconnectFrame(),
	}
}

func TestRoundTrip(t *testing.T) {
	for _, want := range roundTripFrames() {
		t.Run(want.Tag.String(), func(t *testing.T) {
			var buf bytes.Buffer
			if err := NewWriter(&buf, 0).WriteFrame(want); err != nil {
				t.Fatalf("WriteFrame: %v", err)
			}
			got, err := NewReader(&buf, 0).ReadFrame()
			if err != nil {
				t.Fatalf("ReadFrame: %v", err)
			}
			if diff := cmp.Diff(want, got, cmpopts.EquateEmpty()); diff != "" {
				t.Errorf("frame mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestRoundTripAtMaxPayload(t *testing.T) {
	const max = 64
	want := FileFrame("big.bin", bytes.Repeat([]byte{0x55}, max))

	var buf bytes.Buffer
	if err := NewWriter(&buf, max).WriteFrame(want); err != nil {
		t.Fatalf("WriteFrame at max: %v", err)
	}
	got, err := NewReader(&buf, max).ReadFrame()
	if err != nil {
		t.Fatalf("ReadFrame at max: %v", err)
	}
	if diff := cmp.Diff(want, got, cmpopts.EquateEmpty()); diff != "" {
		t.Errorf("frame mismatch (-want +got):\n%s", diff)
	}
}

// One byte per read must reassemble the identical frame sequence.
func TestPartialReads(t *testing.T) {
	frames := roundTripFrames()

	var buf bytes.Buffer
	w := NewWriter(&buf, 0)
	for _, f := range frames {
		if err := w.WriteFrame(f); err != nil {
			t.Fatalf("WriteFrame: %v", err)
		}
	}

	r := NewReader(iotest.OneByteReader(&buf), 0)
	for i, want := range frames {
		got, err := r.ReadFrame()
		if err != nil {
			t.Fatalf("ReadFrame #%d: %v", i, err)
		}
		if diff := cmp.Diff(want, got, cmpopts.EquateEmpty()); diff != "" {
			t.Errorf("frame #%d mismatch (-want +got):\n%s", i, diff)
		}
	}
	if _, err := r.ReadFrame(); err != io.EOF {
		t.Errorf("ReadFrame after last frame = %v, want io.EOF", err)
	}
}

func TestOversizedDeclaredLength(t *testing.T) {
	const max = 128

	// Hand-build a Text frame declaring a payload larger than max.
	raw := []byte{byte(TagText)}
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], max+1)
	raw = append(raw, lenBuf[:]...)

	_, err := NewReader(bytes.NewReader(raw), max).ReadFrame()
	if !errors.Is(err, ErrFrameTooLarge) {
		t.Fatalf("ReadFrame = %v, want ErrFrameTooLarge", err)
	}
}

func TestWriterRejectsOversizedField(t *testing.T) {
	var buf bytes.Buffer
	err := NewWriter(&buf, 8).WriteFrame(TextFrame("longer than eight"))
	if !errors.Is(err, ErrFrameTooLarge) {
		t.Fatalf("WriteFrame = %v, want ErrFrameTooLarge", err)
	}
	if buf.Len() != 0 {
		t.Errorf("oversized WriteFrame emitted %d bytes, want none", buf.Len())
	}
}

func TestUnknownTag(t *testing.T) {
	_, err := NewReader(bytes.NewReader([]byte{0x7E}), 0).ReadFrame()
	if !errors.Is(err, ErrUnknownTag) {
		t.Fatalf("ReadFrame = %v, want ErrUnknownTag", err)
	}
}

func TestTruncatedFrame(t *testing.T) {
	var buf bytes.Buffer
	if err := NewWriter(&buf, 0).WriteFrame(FileFrame("a.bin", []byte("payload"))); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}

	full := buf.Bytes()
	// Cut the stream at every point inside the frame; none may yield a frame.
	for cut := 1; cut < len(full); cut++ {
		_, err := NewReader(bytes.NewReader(full[:cut]), 0).ReadFrame()
		if err == nil {
			t.Fatalf("ReadFrame with %d/%d bytes succeeded, want error", cut, len(full))
		}
		if !errors.Is(err, io.ErrUnexpectedEOF) {
			t.Fatalf("ReadFrame with %d/%d bytes = %v, want io.ErrUnexpectedEOF", cut, len(full), err)
		}
	}
}

func TestMalformedAuthResultFlag(t *testing.T) {
	raw := []byte{byte(TagAuthResult)}
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], 1)
	raw = append(raw, lenBuf[:]...)
	raw = append(raw, 0x07) // flag must be 0 or 1
	binary.BigEndian.PutUint32(lenBuf[:], 0)
	raw = append(raw, lenBuf[:]...)

	_, err := NewReader(bytes.NewReader(raw), 0).ReadFrame()
	if !errors.Is(err, ErrMalformed) {
		t.Fatalf("ReadFrame = %v, want ErrMalformed", err)
	}
}
