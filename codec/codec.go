/*
 * MIT License
 *
 * Copyright (c) 2020 Nicolas JUHEL
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 *
 */

// Package codec defines the framing contract the reactor core consumes (spec §4.1) and
// two dependency-free reference implementations of the §6 wire-format table. Codecs that
// need a compression or checksum algorithm live in the codec/checksum, codec/deflate and
// codec/lz4 sub-packages; codec/checksum wraps an inner codec, while codec/deflate and
// codec/lz4 are standalone codecs with their own headers.
package codec

import "errors"

// ErrInvalidEncoding is returned by Get when the wire buffer does not
// contain a well-formed frame (spec §7: fatal for the connection).
var ErrInvalidEncoding = errors.New("codec: invalid encoding")

// ErrInvalidMessage is returned by Put when the cleartext message cannot be
// framed (spec §7: fatal for the connection).
var ErrInvalidMessage = errors.New("codec: invalid message")

// Codec is a pure transducer between a logical message and a framed byte stream. It has
// no socket knowledge: callers supply byte slices and a read/write cursor (Cursor) and
// the codec only ever reads/writes within the bounds the caller gives it.
//
// Contract (spec §4.1):
//   - Put never writes more than EncodedLen(msg) bytes.
//   - HasNext is pure: it does not mutate in's position.
//   - Get advances in's position by exactly the frame it consumed.
type Codec interface {
	// EncodedLen returns the number of bytes Put will produce for msg.
	EncodedLen(msg []byte) int
	// IsValid reports whether msg can be framed by Put.
	IsValid(msg []byte) bool
	// Put frames msg into out, advancing out's write cursor.
	Put(msg []byte, out *Cursor) error
	// HasNext reports whether in's unread region holds at least one complete frame.
	// It never mutates in's position.
	HasNext(in *Cursor) bool
	// DecodedLen returns the number of cleartext bytes Get will produce, given HasNext(in).
	DecodedLen(in *Cursor) int
	// Get decodes exactly one frame from in into out, advancing in's read position.
	Get(in *Cursor, out []byte) (n int, err error)
	// FrameLength is the fixed header+footer overhead of one frame.
	FrameLength() int
	// MaxBodyLen is the largest cleartext payload this codec can frame.
	MaxBodyLen() int
	// Close releases any codec-owned resources (e.g. a deflate writer).
	Close() error
}

// Cursor is a minimal read/write window over a byte slice, playing the role of a
// java.nio.ByteBuffer's position/limit pair without pulling in a buffer-pool dependency
// the core doesn't need. Reslicing Bytes() after Advance is the caller's job.
type Cursor struct {
	Buf []byte // backing storage
	Pos int    // next read/write offset
	Lim int    // end of valid data (write cursors: end of capacity; read cursors: end of valid bytes)
}

// NewCursor wraps buf as a cursor spanning its full length.
func NewCursor(buf []byte) *Cursor {
	return &Cursor{Buf: buf, Pos: 0, Lim: len(buf)}
}

// Remaining returns the number of unread/unwritten bytes between Pos and Lim.
func (c *Cursor) Remaining() int { return c.Lim - c.Pos }

// Bytes returns the unread/unwritten region.
func (c *Cursor) Bytes() []byte { return c.Buf[c.Pos:c.Lim] }

// Advance moves Pos forward by n bytes.
func (c *Cursor) Advance(n int) { c.Pos += n }

// WriteAt is a convenience used by Put implementations: copy p into the cursor starting
// at Pos, then advance.
func (c *Cursor) WriteAt(p []byte) {
	copy(c.Buf[c.Pos:], p)
	c.Pos += len(p)
}

// Flip switches a cursor from "being written into" to "being read from": the bytes
// just written, [0, Pos), become the readable region, and Pos resets to its start.
// The java.nio.ByteBuffer operation of the same name.
func (c *Cursor) Flip() {
	c.Lim = c.Pos
	c.Pos = 0
}

// Clear resets a cursor to "being written into" over its full capacity, discarding
// any unread bytes.
func (c *Cursor) Clear() {
	c.Pos = 0
	c.Lim = len(c.Buf)
}

// Compact moves any unread bytes, [Pos, Lim), to the start of the buffer and
// switches back to "being written into" from just past them — used when a read
// cursor still has a partial frame after a processing pass, so the next socket read
// can append after it instead of discarding it.
func (c *Cursor) Compact() {
	n := copy(c.Buf, c.Buf[c.Pos:c.Lim])
	c.Pos = n
	c.Lim = len(c.Buf)
}

// Unflip reverts a just-flipped read cursor back to append mode without losing
// position, used when hasNext/a partial read reports "not enough data yet" and the
// next socket read must append after what is already buffered (spec §4.5.2's
// BUFFER_UNDERFLOW/BUFFER_OVERFLOW "un-flip" treatment, also used by the plain TCP
// read path when a frame is incomplete).
func (c *Cursor) Unflip() {
	c.Pos = c.Lim
	c.Lim = len(c.Buf)
}
