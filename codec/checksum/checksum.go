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

// Package checksum wraps an inner codec.Codec with a 4-byte checksum footer over
// header+body (spec §6: "checksum(inner, C)"). The hash.Hash32 factory is constructed
// fresh for every Put/Get so a caller is never tempted to reuse one without Reset
// between frames (spec §9 open question on XXHashChecksum-style reset requirements).
package checksum

import (
	"encoding/binary"
	"hash"
	"hash/crc32"

	"github.com/nabbar/snio/codec"
)

const footerLen = 4
const checksumHeaderLen = 2

type wrap struct {
	inner codec.Codec
	newH  func() hash.Hash32
}

// New wraps inner with a checksum footer computed by newH. A nil newH defaults to
// crc32.NewIEEE, matching the "CRC32" entry of spec §1's excluded-algorithm list now
// given a concrete, wired home.
func New(inner codec.Codec, newH func() hash.Hash32) codec.Codec {
	if newH == nil {
		newH = func() hash.Hash32 { return crc32.NewIEEE() }
	}
	return &wrap{inner: inner, newH: newH}
}

func (w *wrap) FrameLength() int { return checksumHeaderLen + footerLen }
func (w *wrap) MaxBodyLen() int  { return 65521 }
func (w *wrap) Close() error     { return w.inner.Close() }

func (w *wrap) IsValid(msg []byte) bool {
	return len(msg) > 0 && w.inner.EncodedLen(msg)+footerLen <= 1<<16-1 && w.inner.IsValid(msg)
}

func (w *wrap) EncodedLen(msg []byte) int {
	return checksumHeaderLen + w.inner.EncodedLen(msg) + footerLen
}

// Put writes: 2-byte length (= inner-encoded length + footerLen), the inner-encoded
// frame, then a 4-byte checksum computed over those two regions together.
func (w *wrap) Put(msg []byte, out *codec.Cursor) error {
	if !w.IsValid(msg) {
		return codec.ErrInvalidMessage
	}
	innerLen := w.inner.EncodedLen(msg)
	total := innerLen + footerLen
	if out.Remaining() < checksumHeaderLen+total {
		return codec.ErrInvalidMessage
	}

	bodyStart := out.Pos + checksumHeaderLen
	var lenHdr [checksumHeaderLen]byte
	binary.BigEndian.PutUint16(lenHdr[:], uint16(total))
	out.WriteAt(lenHdr[:])

	inner := &codec.Cursor{Buf: out.Buf, Pos: out.Pos, Lim: out.Pos + innerLen}
	if err := w.inner.Put(msg, inner); err != nil {
		return err
	}
	out.Pos = inner.Pos

	h := w.newH()
	h.Write(out.Buf[bodyStart-checksumHeaderLen : bodyStart+innerLen])
	var sum [footerLen]byte
	binary.BigEndian.PutUint32(sum[:], h.Sum32())
	out.WriteAt(sum[:])
	return nil
}

func (w *wrap) HasNext(in *codec.Cursor) bool {
	if in.Remaining() < checksumHeaderLen {
		return false
	}
	l := int(binary.BigEndian.Uint16(in.Buf[in.Pos : in.Pos+checksumHeaderLen]))
	return l >= footerLen && in.Remaining() >= checksumHeaderLen+l
}

func (w *wrap) DecodedLen(in *codec.Cursor) int {
	l := int(binary.BigEndian.Uint16(in.Buf[in.Pos : in.Pos+checksumHeaderLen]))
	innerLen := l - footerLen
	scratch := &codec.Cursor{Buf: in.Buf, Pos: in.Pos + checksumHeaderLen, Lim: in.Pos + checksumHeaderLen + innerLen}
	return w.inner.DecodedLen(scratch)
}

func (w *wrap) Get(in *codec.Cursor, out []byte) (int, error) {
	if !w.HasNext(in) {
		return 0, codec.ErrInvalidEncoding
	}
	l := int(binary.BigEndian.Uint16(in.Buf[in.Pos : in.Pos+checksumHeaderLen]))
	innerLen := l - footerLen

	frameStart := in.Pos
	bodyStart := frameStart + checksumHeaderLen
	footerStart := bodyStart + innerLen

	h := w.newH()
	h.Write(in.Buf[frameStart:footerStart])
	want := h.Sum32()
	got := binary.BigEndian.Uint32(in.Buf[footerStart : footerStart+footerLen])
	if want != got {
		return 0, codec.ErrInvalidEncoding
	}

	inner := &codec.Cursor{Buf: in.Buf, Pos: bodyStart, Lim: footerStart}
	n, err := w.inner.Get(inner, out)
	if err != nil {
		return 0, err
	}
	in.Advance(checksumHeaderLen + l)
	return n, nil
}
