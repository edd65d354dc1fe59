// Package protocol defines the framed chat message format and its codec.
//
// Every frame is one tag byte followed by the variant's logical fields,
// each encoded as [4-byte big-endian length][payload]:
//
//	Text        0x01  text
//	File        0x02  filename, content
//	Image       0x03  filename, content
//	AuthRequest 0x10 (login) / 0x11 (register)  username, password
//	AuthResult  0x12  ok byte, reason
//	Disconnect  0xFF  (no fields)
//
// TCP carries no message boundaries, so decoding reads with io.ReadFull
// and reassembles frames from however many reads the stream needs. A
// frame with an unknown tag or a field longer than the configured
// maximum is a fatal protocol error; the codec makes no attempt to
// resynchronize on bad input.
package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// Tag identifies a frame variant on the wire.
type Tag byte

const (
	TagText         Tag = 0x01
	TagFile         Tag = 0x02
	TagImage        Tag = 0x03
	TagAuthLogin    Tag = 0x10
	TagAuthRegister Tag = 0x11
	TagAuthResult   Tag = 0x12
	TagDisconnect   Tag = 0xFF
)

// DefaultMaxPayload bounds a single field's byte length. File and image
// content counts as one field, so this is the effective transfer cap.
const DefaultMaxPayload = 32 << 20

var (
	ErrUnknownTag    = errors.New("protocol: unknown frame tag")
	ErrFrameTooLarge = errors.New("protocol: field exceeds maximum payload size")
	ErrMalformed     = errors.New("protocol: malformed frame")
)

// Frame is one complete, typed, length-delimited unit of the wire
// protocol. Only the fields belonging to the Tag's variant are set.
type Frame struct {
	Tag Tag

	Text string // Text

	Name string // File, Image
	Data []byte // File, Image

	Username string // AuthRequest
	Password string // AuthRequest

	OK     bool   // AuthResult
	Reason string // AuthResult
}

// TextFrame builds a Text frame.
func TextFrame(text string) Frame {
	return Frame{Tag: TagText, Text: text}
}

// FileFrame builds a File frame carrying an opaque payload.
func FileFrame(name string, data []byte) Frame {
	return Frame{Tag: TagFile, Name: name, Data: data}
}

// ImageFrame builds an Image frame. The payload is not validated as
// image data; the server relays it verbatim.
func ImageFrame(name string, data []byte) Frame {
	return Frame{Tag: TagImage, Name: name, Data: data}
}

// AuthRequestFrame builds a login or register handshake frame.
func AuthRequestFrame(register bool, username, password string) Frame {
	tag := TagAuthLogin
	if register {
		tag = TagAuthRegister
	}
	return Frame{Tag: tag, Username: username, Password: password}
}

// AuthResultFrame builds the server's handshake response.
func AuthResultFrame(ok bool, reason string) Frame {
	return Frame{Tag: TagAuthResult, OK: ok, Reason: reason}
}

// DisconnectFrame builds the explicit quit frame.
func DisconnectFrame() Frame {
	return Frame{Tag: TagDisconnect}
}

// IsAuthRequest reports whether the frame is a login or register request.
func (f Frame) IsAuthRequest() bool {
	return f.Tag == TagAuthLogin || f.Tag == TagAuthRegister
}

func (t Tag) String() string {
	switch t {
	case TagText:
		return "text"
	case TagFile:
		return "file"
	case TagImage:
		return "image"
	case TagAuthLogin:
		return "auth_login"
	case TagAuthRegister:
		return "auth_register"
	case TagAuthResult:
		return "auth_result"
	case TagDisconnect:
		return "disconnect"
	default:
		return fmt.Sprintf("unknown(0x%02x)", byte(t))
	}
}

// fieldCount returns the number of length-prefixed fields a tag carries.
func fieldCount(t Tag) (int, bool) {
	switch t {
	case TagText:
		return 1, true
	case TagFile, TagImage, TagAuthLogin, TagAuthRegister, TagAuthResult:
		return 2, true
	case TagDisconnect:
		return 0, true
	default:
		return 0, false
	}
}

// fields returns the frame's logical fields in wire order.
func (f Frame) fields() ([][]byte, error) {
	switch f.Tag {
	case TagText:
		return [][]byte{[]byte(f.Text)}, nil
	case TagFile, TagImage:
		return [][]byte{[]byte(f.Name), f.Data}, nil
	case TagAuthLogin, TagAuthRegister:
		return [][]byte{[]byte(f.Username), []byte(f.Password)}, nil
	case TagAuthResult:
		ok := byte(0)
		if f.OK {
			ok = 1
		}
		return [][]byte{{ok}, []byte(f.Reason)}, nil
	case TagDisconnect:
		return nil, nil
	default:
		return nil, fmt.Errorf("%w: 0x%02x", ErrUnknownTag, byte(f.Tag))
	}
}

// Writer encodes frames onto a byte stream.
type Writer struct {
	w   io.Writer
	max uint32
}

// NewWriter wraps w. A max of 0 selects DefaultMaxPayload.
func NewWriter(w io.Writer, max uint32) *Writer {
	if max == 0 {
		max = DefaultMaxPayload
	}
	return &Writer{w: w, max: max}
}

// WriteFrame encodes a single frame. Writes are not atomic with respect
// to other goroutines; callers serialize access per connection.
func (w *Writer) WriteFrame(f Frame) error {
	fields, err := f.fields()
	if err != nil {
		return err
	}
	for _, field := range fields {
		if uint64(len(field)) > uint64(w.max) {
			return fmt.Errorf("%w: %d bytes (max %d)", ErrFrameTooLarge, len(field), w.max)
		}
	}

	if _, err := w.w.Write([]byte{byte(f.Tag)}); err != nil {
		return fmt.Errorf("protocol: write tag: %w", err)
	}
	var lenBuf [4]byte
	for _, field := range fields {
		binary.BigEndian.PutUint32(lenBuf[:], uint32(len(field)))
		if _, err := w.w.Write(lenBuf[:]); err != nil {
			return fmt.Errorf("protocol: write length: %w", err)
		}
		if _, err := w.w.Write(field); err != nil {
			return fmt.Errorf("protocol: write payload: %w", err)
		}
	}
	return nil
}

// Reader decodes frames from a byte stream.
type Reader struct {
	r   io.Reader
	max uint32
}

// NewReader wraps r. A max of 0 selects DefaultMaxPayload.
func NewReader(r io.Reader, max uint32) *Reader {
	if max == 0 {
		max = DefaultMaxPayload
	}
	return &Reader{r: r, max: max}
}

// ReadFrame decodes exactly one frame, blocking until the stream has
// delivered it in full. io.EOF is returned only on a clean frame
// boundary; EOF inside a frame becomes io.ErrUnexpectedEOF.
func (r *Reader) ReadFrame() (Frame, error) {
	var tagBuf [1]byte
	if _, err := io.ReadFull(r.r, tagBuf[:]); err != nil {
		return Frame{}, err
	}
	tag := Tag(tagBuf[0])
	n, known := fieldCount(tag)
	if !known {
		return Frame{}, fmt.Errorf("%w: 0x%02x", ErrUnknownTag, tagBuf[0])
	}

	fields := make([][]byte, n)
	for i := range fields {
		field, err := r.readField()
		if err != nil {
			return Frame{}, err
		}
		fields[i] = field
	}
	return assemble(tag, fields)
}

func (r *Reader) readField() ([]byte, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r.r, lenBuf[:]); err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return nil, fmt.Errorf("protocol: read length: %w", err)
	}
	length := binary.BigEndian.Uint32(lenBuf[:])
	if length > r.max {
		return nil, fmt.Errorf("%w: %d bytes (max %d)", ErrFrameTooLarge, length, r.max)
	}
	buf := make([]byte, length)
	if _, err := io.ReadFull(r.r, buf); err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return nil, fmt.Errorf("protocol: read payload: %w", err)
	}
	return buf, nil
}

func assemble(tag Tag, fields [][]byte) (Frame, error) {
	switch tag {
	case TagText:
		return Frame{Tag: tag, Text: string(fields[0])}, nil
	case TagFile, TagImage:
		return Frame{Tag: tag, Name: string(fields[0]), Data: fields[1]}, nil
	case TagAuthLogin, TagAuthRegister:
		return Frame{Tag: tag, Username: string(fields[0]), Password: string(fields[1])}, nil
	case TagAuthResult:
		if len(fields[0]) != 1 || fields[0][0] > 1 {
			return Frame{}, fmt.Errorf("%w: bad auth result flag", ErrMalformed)
		}
		return Frame{Tag: tag, OK: fields[0][0] == 1, Reason: string(fields[1])}, nil
	case TagDisconnect:
		return Frame{Tag: tag}, nil
	default:
		return Frame{}, fmt.Errorf("%w: 0x%02x", ErrUnknownTag, byte(tag))
	}
}
