package net

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"reflect"
	"testing"

	"github.com/bradfitz/iter"

	"badc0de.net/pkg/go-ragnarok/ttesting"
)

type lengthMap map[uint16]int

func (m lengthMap) Length(id uint16) (int, bool) {
	n, ok := m[id]
	return n, ok
}

var testLengths = lengthMap{
	0x0001: 4,
	0x0002: 2,
	0x0003: 0,
	0x0069: Variable,
	0x007f: 4,
}

type decodedFrame struct {
	ID      uint16
	Payload string
}

func collect(r *Reassembler, chunks ...[]byte) []decodedFrame {
	var out []decodedFrame
	for _, c := range chunks {
		r.Write(c)
		r.Frames(func(f Frame) {
			out = append(out, decodedFrame{ID: f.ID, Payload: string(f.Payload)})
		})
	}
	return out
}

func testStream() []byte {
	return []byte{
		0x7f, 0x00, 0x01, 0x02, 0x03, 0x04,    // fixed 4
		0x69, 0x00, 0x03, 0x00, 'a', 'b', 'c', // variable, 3 bytes
		0x03, 0x00,                            // empty payload
		0x02, 0x00, 0xAA, 0xBB,                // fixed 2
		0x69, 0x00, 0x00, 0x00,                // variable, empty
		0x7f, 0x00, 0x09, 0x08, 0x07, 0x06,
	}
}

func TestReassemblerWholeStream(t *testing.T) {
	r := NewReassembler(testLengths)
	got := collect(r, testStream())
	want := []decodedFrame{
		{0x007f, "\x01\x02\x03\x04"},
		{0x0069, "abc"},
		{0x0003, ""},
		{0x0002, "\xAA\xBB"},
		{0x0069, ""},
		{0x007f, "\x09\x08\x07\x06"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %+v; want %+v", got, want)
	}
	ttesting.AssertEqualInt(t, "nothing carried over", r.Pending(), 0)
}

func TestReassemblerSplitInvariance(t *testing.T) {
	stream := testStream()
	want := collect(NewReassembler(testLengths), stream)

	for i := range iter.N(len(stream) + 1) {
		for j := range iter.N(len(stream) + 1) {
			if j < i {
				continue
			}
			r := NewReassembler(testLengths)
			got := collect(r, stream[:i], stream[i:j], stream[j:])
			if !reflect.DeepEqual(got, want) {
				t.Fatalf("split at %d,%d: got %+v; want %+v", i, j, got, want)
			}
			if r.Pending() != 0 {
				t.Fatalf("split at %d,%d: %d bytes left over", i, j, r.Pending())
			}
		}
	}
}

func TestReassemblerByteAtATime(t *testing.T) {
	stream := testStream()
	want := collect(NewReassembler(testLengths), stream)

	var chunks [][]byte
	for _, b := range stream {
		chunks = append(chunks, []byte{b})
	}
	got := collect(NewReassembler(testLengths), chunks...)
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %+v; want %+v", got, want)
	}
}

func TestReassemblerExactFixedFrame(t *testing.T) {
	r := NewReassembler(testLengths)
	r.Write([]byte{0x01, 0x00, 1, 2, 3, 4})
	n := r.Frames(func(f Frame) {
		ttesting.AssertEqualUint16(t, "id", f.ID, 0x0001)
		ttesting.AssertEqualInt(t, "length", f.Length, 4)
		ttesting.AssertEqualBytes(t, "payload", f.Payload, []byte{1, 2, 3, 4})
	})
	ttesting.AssertEqualInt(t, "one frame", n, 1)
	ttesting.AssertEqualInt(t, "empty residual", r.Pending(), 0)
}

func TestReassemblerVariableDefersOnMissingLength(t *testing.T) {
	for _, tc := range []struct {
		name  string
		chunk []byte
	}{
		{"id only", []byte{0x69, 0x00}},
		{"id and half a length", []byte{0x69, 0x00, 0x05}},
		{"length but short payload", []byte{0x69, 0x00, 0x05, 0x00, 'a', 'b'}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			r := NewReassembler(testLengths)
			r.Write(tc.chunk)
			n := r.Frames(func(f Frame) {
				t.Errorf("unexpected frame %+v", f)
			})
			ttesting.AssertEqualInt(t, "no frames", n, 0)
			ttesting.AssertEqualInt(t, "everything retained", r.Pending(), len(tc.chunk))
		})
	}
}

func TestReassemblerSingleByteDeferred(t *testing.T) {
	r := NewReassembler(testLengths)
	r.Write([]byte{0x02, 0x00, 0xAA, 0xBB, 0x7f})
	got := 0
	r.Frames(func(Frame) { got++ })
	ttesting.AssertEqualInt(t, "one frame", got, 1)
	ttesting.AssertEqualInt(t, "half an id carried over", r.Pending(), 1)

	r.Write([]byte{0x00, 1, 2, 3, 4})
	r.Frames(func(f Frame) {
		got++
		ttesting.AssertEqualUint16(t, "id across boundary", f.ID, 0x007f)
	})
	ttesting.AssertEqualInt(t, "second frame", got, 2)
	ttesting.AssertEqualInt(t, "idle", r.Pending(), 0)
}

func TestReassemblerUnknownIDConsumesRemainder(t *testing.T) {
	r := NewReassembler(testLengths)
	r.Write([]byte{0x02, 0x00, 0xAA, 0xBB, 0x34, 0x12, 9, 9, 9})
	var frames []Frame
	r.Frames(func(f Frame) {
		frames = append(frames, Frame{ID: f.ID, Length: f.Length, Payload: append([]byte(nil), f.Payload...)})
	})
	if len(frames) != 2 {
		t.Fatalf("got %d frames; want 2", len(frames))
	}
	ttesting.AssertEqualUint16(t, "unknown id", frames[1].ID, 0x1234)
	ttesting.AssertEqualBytes(t, "unknown payload is the remainder", frames[1].Payload, []byte{9, 9, 9})
	ttesting.AssertEqualInt(t, "idle", r.Pending(), 0)
}

func TestReassemblerReadRaw(t *testing.T) {
	r := NewReassembler(testLengths)
	r.Write([]byte{0x78, 0x56, 0x34, 0x12, 0x02, 0x00, 0xAA, 0xBB})

	var account uint32
	r.ReadRaw(func(msg *Message) {
		var err error
		if account, err = msg.ReadUint32(); err != nil {
			t.Fatalf("reading account id: %s", err)
		}
	})
	ttesting.AssertEqualUint32(t, "raw account id", account, 0x12345678)

	var payloads [][]byte
	r.Frames(func(f Frame) { payloads = append(payloads, f.Payload) })
	if len(payloads) != 1 || !bytes.Equal(payloads[0], []byte{0xAA, 0xBB}) {
		t.Errorf("got %v; want one frame with AA BB", payloads)
	}
}

func TestReassemblerReset(t *testing.T) {
	r := NewReassembler(testLengths)
	r.Write([]byte{0x01, 0x00, 1})
	r.Frames(func(Frame) {})
	ttesting.AssertEqualInt(t, "discarded", r.Reset(), 3)
	ttesting.AssertEqualInt(t, "empty after reset", r.Pending(), 0)
}

func TestDump(t *testing.T) {
	got := Dump("recv", 0x0069, "", []byte{0xde, 0xad})
	want := fmt.Sprintf("dump recv: packet id 0x0069, name [UNKNOWN], length 2\n%s", hex.Dump([]byte{0xde, 0xad}))
	ttesting.AssertEqualString(t, "dump", got, want)
}

func TestResetFromEmitStopsFraming(t *testing.T) {
	r := NewReassembler(testLengths)
	r.Write([]byte{0x02, 0x00, 0xAA, 0xBB, 0x02, 0x00, 0xCC, 0xDD, 0x02, 0x00, 0xEE})

	var dropped int
	n := r.Frames(func(Frame) {
		dropped = r.Reset()
	})
	ttesting.AssertEqualInt(t, "emitted before reset", n, 1)
	ttesting.AssertEqualInt(t, "dropped bytes exclude the emitted frame", dropped, 7)
	ttesting.AssertEqualInt(t, "nothing carried over", r.Pending(), 0)

	r.Write([]byte{0x02, 0x00, 0x01, 0x02})
	ttesting.AssertEqualInt(t, "usable after reset", r.Frames(func(Frame) {}), 1)
}

func TestPendingDuringEmit(t *testing.T) {
	r := NewReassembler(testLengths)
	r.Write([]byte{0x02, 0x00, 0xAA, 0xBB, 0x02})
	var during int
	r.Frames(func(Frame) { during = r.Pending() })
	ttesting.AssertEqualInt(t, "pending while emitting", during, 1)
	ttesting.AssertEqualInt(t, "pending after", r.Pending(), 1)
}
