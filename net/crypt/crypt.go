// Package crypt implements the stream transforms applied to outgoing gameplay
// traffic.
//
// Every transform is stateful: each processed packet advances the state, so
// packets must be processed in exactly the order they are sent. Login and
// character selection traffic is never transformed.
package crypt

import (
	"encoding/binary"
	"fmt"

	"golang.org/x/crypto/chacha20"
)

// Cipher transforms one outgoing frame in place.
type Cipher interface {
	// Process transforms pkt and advances the cipher state.
	Process(pkt []byte)
	// Reset restores the state the cipher had right after creation.
	Reset()
}

// Keys are the three packet obfuscation keys of a protocol version.
type Keys [3]uint32

// Obfuscator hides the packet id of every outgoing frame behind a rolling key
// derived from the three obfuscation keys. Payload bytes are untouched.
type Obfuscator struct {
	keys Keys
	key  uint32
}

// NewObfuscator creates an obfuscator for the passed keys. All-zero keys
// disable obfuscation.
func NewObfuscator(keys Keys) *Obfuscator {
	o := &Obfuscator{keys: keys}
	o.Reset()
	return o
}

func (o *Obfuscator) Reset() {
	k1, k2, k3 := o.keys[0], o.keys[1], o.keys[2]
	o.key = (k1*k3+k2)*k3 + k2
}

func (o *Obfuscator) Process(pkt []byte) {
	if o.keys == (Keys{}) || len(pkt) < 2 {
		return
	}
	o.key = o.key*o.keys[2] + o.keys[1]
	id := binary.LittleEndian.Uint16(pkt) ^ uint16((o.key>>16)&0x7FFF)
	binary.LittleEndian.PutUint16(pkt, id)
}

// ChaCha20 encrypts whole frames with a ChaCha20 key stream, for servers
// fronted by an encrypting relay.
type ChaCha20 struct {
	key, nonce []byte
	c          *chacha20.Cipher
}

// NewChaCha20 creates a cipher from a 32-byte key and a 12-byte nonce.
func NewChaCha20(key, nonce []byte) (*ChaCha20, error) {
	c, err := chacha20.NewUnauthenticatedCipher(key, nonce)
	if err != nil {
		return nil, fmt.Errorf("creating chacha20 cipher: %s", err)
	}
	return &ChaCha20{
		key:   append([]byte(nil), key...),
		nonce: append([]byte(nil), nonce...),
		c:     c,
	}, nil
}

func (c *ChaCha20) Process(pkt []byte) {
	c.c.XORKeyStream(pkt, pkt)
}

func (c *ChaCha20) Reset() {
	// Key and nonce sizes were validated in NewChaCha20.
	c.c, _ = chacha20.NewUnauthenticatedCipher(c.key, c.nonce)
}

// Nop leaves frames untouched.
type Nop struct{}

func (Nop) Process([]byte) {}
func (Nop) Reset()         {}

// New creates a cipher by name: "obfuscate" (the default when name is empty),
// "chacha20" or "none".
func New(name string, keys Keys, key, nonce []byte) (Cipher, error) {
	switch name {
	case "", "obfuscate":
		return NewObfuscator(keys), nil
	case "chacha20":
		return NewChaCha20(key, nonce)
	case "none":
		return Nop{}, nil
	}
	return nil, fmt.Errorf("unknown cipher %q", name)
}
