// Package packets maps packet ids to the decoders producing typed records, and
// holds the callback subscribed to each id.
//
// Decoding is table driven: every id is registered once at startup with a
// Descriptor whose Decode function builds the record. No reflection is used.
package packets

import (
	"sort"

	"github.com/golang/glog"
	"github.com/pkg/errors"

	tnet "badc0de.net/pkg/go-ragnarok/net"
)

// ErrNotRegistered is returned when subscribing to an id that was never
// registered.
var ErrNotRegistered = errors.New("packets: packet not registered")

// Record is a decoded or to-be-encoded message body.
type Record interface {
	PacketID() uint16
}

// Encoder is a record which can write its payload. The packet id and, where
// needed, the explicit length are added by Encode.
type Encoder interface {
	Record
	Encode(w *tnet.Message) error
}

// Decoder builds a record from a frame payload.
type Decoder func(msg *tnet.Message) (Record, error)

// Handler receives decoded records.
type Handler func(Record)

// Descriptor describes one incoming packet.
type Descriptor struct {
	ID     uint16
	Name   string
	Length int // fixed payload length, or tnet.Variable
	Decode Decoder
}

type entry struct {
	desc    Descriptor
	handler Handler
}

// Registry holds the descriptors and callbacks for the active protocol.
//
// It is not safe for concurrent use; it is owned by the connection manager and
// only touched from its event loop.
type Registry struct {
	entries map[uint16]*entry
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[uint16]*entry)}
}

// Register adds or replaces the descriptor for d.ID. Replacing a descriptor
// drops any callback subscribed to the previous one.
func (r *Registry) Register(d Descriptor) {
	if _, ok := r.entries[d.ID]; ok {
		glog.V(1).Infof("packet 0x%04x (%s) registered again, replacing", d.ID, d.Name)
	}
	r.entries[d.ID] = &entry{desc: d}
}

// Subscribe sets the callback for id. The last subscription wins.
func (r *Registry) Subscribe(id uint16, h Handler) error {
	e, ok := r.entries[id]
	if !ok {
		return errors.Wrapf(ErrNotRegistered, "subscribing to packet 0x%04x", id)
	}
	e.handler = h
	return nil
}

// Lookup returns the descriptor and callback registered for id. The handler is
// nil if nobody subscribed.
func (r *Registry) Lookup(id uint16) (Descriptor, Handler, bool) {
	e, ok := r.entries[id]
	if !ok {
		return Descriptor{}, nil, false
	}
	return e.desc, e.handler, true
}

// Name returns the registered name of id, or an empty string.
func (r *Registry) Name(id uint16) string {
	if e, ok := r.entries[id]; ok {
		return e.desc.Name
	}
	return ""
}

// Descriptors returns every registered descriptor ordered by id.
func (r *Registry) Descriptors() []Descriptor {
	out := make([]Descriptor, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e.desc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Subscribed reports whether id has a callback.
func (r *Registry) Subscribed(id uint16) bool {
	e, ok := r.entries[id]
	return ok && e.handler != nil
}

// Encode serializes rec into a complete frame. Ids the table marks variable get
// an explicit length; ids with a fixed length must encode exactly that many
// bytes; ids unknown to the table are written without a length.
func Encode(rec Encoder, lengths tnet.Lengther) ([]byte, error) {
	id := rec.PacketID()

	payload := tnet.NewMessage()
	if err := rec.Encode(payload); err != nil {
		return nil, errors.Wrapf(err, "encoding packet 0x%04x", id)
	}

	out := tnet.NewMessage()
	out.Grow(tnet.HeaderSize + tnet.LengthFieldSize + payload.Len())
	if err := out.WriteUint16(id); err != nil {
		return nil, err
	}

	n, ok := lengths.Length(id)
	switch {
	case !ok:
		glog.V(2).Infof("packet 0x%04x has no known length, sending %d bytes as is", id, payload.Len())
	case n == tnet.Variable:
		if payload.Len() > 0xFFFF {
			return nil, errors.Errorf("packet 0x%04x: payload of %d bytes does not fit a length field", id, payload.Len())
		}
		if err := out.WriteUint16(uint16(payload.Len())); err != nil {
			return nil, err
		}
	case n != payload.Len():
		return nil, errors.Errorf("packet 0x%04x: encoded %d payload bytes; want %d", id, payload.Len(), n)
	}

	if _, err := out.Write(payload.Bytes()); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}
