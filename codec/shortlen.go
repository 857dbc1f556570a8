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

package codec

import "encoding/binary"

const shortHeaderLen = 2
const shortMaxBody = 1<<16 - 1 - shortHeaderLen // 65533

type shortLength struct{}

// NewShortLength returns the "short-length" codec of spec §6: a 2-byte unsigned
// big-endian length header covering the body only, max body 65533 bytes.
func NewShortLength() Codec { return shortLength{} }

func (shortLength) FrameLength() int { return shortHeaderLen }
func (shortLength) MaxBodyLen() int  { return shortMaxBody }
func (shortLength) Close() error     { return nil }

func (shortLength) IsValid(msg []byte) bool {
	return len(msg) > 0 && len(msg) <= shortMaxBody
}

func (c shortLength) EncodedLen(msg []byte) int {
	return shortHeaderLen + len(msg)
}

func (c shortLength) Put(msg []byte, out *Cursor) error {
	if !c.IsValid(msg) {
		return ErrInvalidMessage
	}
	if out.Remaining() < c.EncodedLen(msg) {
		return ErrInvalidMessage
	}
	var hdr [shortHeaderLen]byte
	binary.BigEndian.PutUint16(hdr[:], uint16(len(msg)))
	out.WriteAt(hdr[:])
	out.WriteAt(msg)
	return nil
}

func (shortLength) HasNext(in *Cursor) bool {
	if in.Remaining() < shortHeaderLen {
		return false
	}
	l := int(binary.BigEndian.Uint16(in.Buf[in.Pos : in.Pos+shortHeaderLen]))
	return in.Remaining() >= shortHeaderLen+l
}

func (shortLength) DecodedLen(in *Cursor) int {
	return int(binary.BigEndian.Uint16(in.Buf[in.Pos : in.Pos+shortHeaderLen]))
}

func (c shortLength) Get(in *Cursor, out []byte) (int, error) {
	if in.Remaining() < shortHeaderLen {
		return 0, ErrInvalidEncoding
	}
	l := int(binary.BigEndian.Uint16(in.Buf[in.Pos : in.Pos+shortHeaderLen]))
	if l == 0 || l > shortMaxBody || in.Remaining() < shortHeaderLen+l {
		return 0, ErrInvalidEncoding
	}
	if len(out) < l {
		return 0, ErrInvalidEncoding
	}
	n := copy(out, in.Buf[in.Pos+shortHeaderLen:in.Pos+shortHeaderLen+l])
	in.Advance(shortHeaderLen + l)
	return n, nil
}
