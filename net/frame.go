package net

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"

	"github.com/golang/glog"
)

// Frame is one complete wire message. Payload aliases the reassembler's buffer
// and is only valid until the emit callback returns.
type Frame struct {
	ID      uint16
	Length  int
	Payload []byte
}

// Lengther resolves the payload length of a packet id for the active protocol
// version. Variable-length ids report Variable. Ids unknown to the active
// version report ok == false.
type Lengther interface {
	Length(id uint16) (n int, ok bool)
}

// Reassembler turns a stream delivered in arbitrary chunks back into frames.
//
// Bytes which do not yet form a complete frame are kept in a carry-over buffer
// and prepended to the next chunk. Nothing is emitted and the cursor is not
// advanced until a complete frame is known to be present.
//
// A Reassembler is not safe for concurrent use; each connection owns one and
// feeds it from a single goroutine.
type Reassembler struct {
	lengths Lengther
	buf     []byte

	// off counts the bytes of buf already emitted by a running Frames call.
	off    int
	resets int
}

// NewReassembler creates a reassembler resolving lengths with the passed table.
func NewReassembler(lengths Lengther) *Reassembler {
	return &Reassembler{lengths: lengths}
}

// Write appends a delivered chunk after any carried-over bytes. It never fails.
func (r *Reassembler) Write(p []byte) (int, error) {
	r.buf = append(r.buf, p...)
	return len(p), nil
}

// ReadRaw hands the buffered bytes to fn before any framing happens. Whatever
// fn reads from the message is removed from the buffer.
func (r *Reassembler) ReadRaw(fn func(*Message)) {
	resets := r.resets
	msg := NewMessageFromBytes(r.buf)
	fn(msg)
	if r.resets != resets {
		return
	}
	r.keep(msg.Bytes())
}

// Frames extracts every complete frame from the buffer, calling emit for each
// in stream order, and returns how many were emitted. A trailing partial frame
// stays buffered.
//
// An id unknown to the length table is taken to span all remaining bytes. This
// is only right when such a message is the last one in the delivery.
//
// If emit calls Reset, Frames returns right after it and the rest of the
// buffer, complete frames included, is discarded.
func (r *Reassembler) Frames(emit func(Frame)) int {
	buf := r.buf
	cursor, count := 0, 0
	resets := r.resets

	for cursor < len(buf) {
		rest := buf[cursor:]
		if len(rest) < HeaderSize {
			break
		}

		id := binary.LittleEndian.Uint16(rest)
		hdr := HeaderSize
		n, ok := r.lengths.Length(id)
		switch {
		case !ok:
			n = len(rest) - HeaderSize
			glog.V(2).Infof("packet 0x%04x has no known length, consuming remaining %d bytes", id, n)
		case n == Variable:
			if len(rest) < HeaderSize+LengthFieldSize {
				glog.V(2).Infof("packet 0x%04x: length field not yet received, deferring", id)
				r.keep(rest)
				return count
			}
			n = int(binary.LittleEndian.Uint16(rest[HeaderSize:]))
			hdr += LengthFieldSize
		}

		if len(rest)-hdr < n {
			glog.V(2).Infof("packet 0x%04x: have %d of %d payload bytes, deferring", id, len(rest)-hdr, n)
			break
		}

		cursor += hdr + n
		r.off = cursor
		emit(Frame{ID: id, Length: n, Payload: rest[hdr : hdr+n]})
		count++
		if r.resets != resets {
			glog.V(2).Infof("reset while emitting packet 0x%04x, stopping", id)
			return count
		}
	}

	r.keep(buf[cursor:])
	return count
}

// Pending returns the number of carried-over bytes.
func (r *Reassembler) Pending() int {
	return len(r.buf) - r.off
}

// Reset discards the carry-over buffer and returns how many bytes were dropped.
// Called from an emit callback, it also ends the running Frames call.
func (r *Reassembler) Reset() int {
	n := len(r.buf) - r.off
	r.buf = nil
	r.off = 0
	r.resets++
	return n
}

func (r *Reassembler) keep(rest []byte) {
	r.off = 0
	if len(rest) == 0 {
		r.buf = nil
		return
	}
	r.buf = append([]byte(nil), rest...)
}

// Dump renders a frame for the diagnostic packet dump: id, name, length and a
// hex dump of the payload.
func Dump(direction string, id uint16, name string, payload []byte) string {
	if name == "" {
		name = "[UNKNOWN]"
	}
	return fmt.Sprintf("dump %s: packet id 0x%04x, name %s, length %d\n%s",
		direction, id, name, len(payload), hex.Dump(payload))
}
