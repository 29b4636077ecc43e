// Package net implements network communication primitives for the login, character
// selection and gameplay protocols.
//
// This includes a message (a buffer used to encode and decode a single record),
// frames (a single communications block as found on the wire) and the reassembler
// which turns an arbitrarily segmented byte stream back into frames.
//
// On the wire every frame is a little-endian 16-bit packet id, followed either by a
// payload of a length known from the packet length table, or by a 16-bit explicit
// length and that many payload bytes. There is no outer envelope.
package net
