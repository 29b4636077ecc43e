package net

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/golang/glog"
)

const (
	// HeaderSize is the size of the packet id preceding every frame.
	HeaderSize = 2
	// LengthFieldSize is the size of the explicit length following the packet id
	// of variable-length frames.
	LengthFieldSize = 2

	// Variable marks a packet whose payload length is carried on the wire.
	Variable = -1
)

// Message is a buffer holding the payload of a single record, either being
// encoded for sending or being decoded after receipt.
type Message struct {
	bytes.Buffer
}

// NewMessage returns an empty message ready for writing.
func NewMessage() *Message {
	return &Message{Buffer: bytes.Buffer{}}
}

// NewMessageFromBytes returns a message reading from the passed payload. The
// slice is not copied.
func NewMessageFromBytes(b []byte) *Message {
	return &Message{Buffer: *bytes.NewBuffer(b)}
}

func (msg *Message) Read(b []byte) (int, error) {
	n, err := msg.Buffer.Read(b)
	glog.V(3).Infof("read %d bytes", n)
	return n, err
}

func (msg *Message) ReadUint8() (uint8, error) {
	b, err := msg.ReadByte()
	if err != nil {
		return 0, fmt.Errorf("reading uint8: %s", err)
	}
	return b, nil
}

func (msg *Message) ReadUint16() (uint16, error) {
	var v uint16
	if err := binary.Read(msg, binary.LittleEndian, &v); err != nil {
		return 0, fmt.Errorf("reading uint16: %s", err)
	}
	return v, nil
}

func (msg *Message) ReadUint32() (uint32, error) {
	var v uint32
	if err := binary.Read(msg, binary.LittleEndian, &v); err != nil {
		return 0, fmt.Errorf("reading uint32: %s", err)
	}
	return v, nil
}

// ReadFixedString reads a string stored in a fixed-size, NUL-padded field of
// size bytes. Anything after the first NUL is discarded.
func (msg *Message) ReadFixedString(size int) (string, error) {
	b := make([]byte, size)
	if _, err := io.ReadFull(msg, b); err != nil {
		return "", fmt.Errorf("reading fixed string of %d bytes: %s", size, err)
	}
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	return string(b), nil
}

func (msg *Message) WriteUint8(v uint8) error {
	return msg.WriteByte(v)
}

func (msg *Message) WriteUint16(v uint16) error {
	return binary.Write(msg, binary.LittleEndian, v)
}

func (msg *Message) WriteUint32(v uint32) error {
	return binary.Write(msg, binary.LittleEndian, v)
}

// WriteFixedString writes s into a NUL-padded field of size bytes. Strings
// which do not fit are truncated; the field is always exactly size bytes.
func (msg *Message) WriteFixedString(s string, size int) error {
	b := make([]byte, size)
	copy(b, s)
	n, err := msg.Write(b)
	if err != nil {
		return fmt.Errorf("writing fixed string: %s", err)
	}
	if n != size {
		return fmt.Errorf("writing fixed string: not all was written")
	}
	return nil
}

// LongToIP formats an IPv4 address stored as a little-endian uint32, as found
// in server and character lists.
func LongToIP(long uint32) string {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], long)
	return fmt.Sprintf("%d.%d.%d.%d", b[0], b[1], b[2], b[3])
}
