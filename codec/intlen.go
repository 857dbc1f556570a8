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

import (
	"encoding/binary"
	"math"
)

const intHeaderLen = 4
const intMaxBody = math.MaxInt32 - 4 // 2^31-5, per spec §6

type intLength struct{}

// NewIntLength returns the "int-length" codec of spec §6: a 4-byte unsigned big-endian
// length header covering the body only, max body 2^31-5 bytes.
func NewIntLength() Codec { return intLength{} }

func (intLength) FrameLength() int { return intHeaderLen }
func (intLength) MaxBodyLen() int  { return intMaxBody }
func (intLength) Close() error     { return nil }

func (intLength) IsValid(msg []byte) bool {
	return len(msg) > 0 && len(msg) <= intMaxBody
}

func (c intLength) EncodedLen(msg []byte) int {
	return intHeaderLen + len(msg)
}

func (c intLength) Put(msg []byte, out *Cursor) error {
	if !c.IsValid(msg) {
		return ErrInvalidMessage
	}
	if out.Remaining() < c.EncodedLen(msg) {
		return ErrInvalidMessage
	}
	var hdr [intHeaderLen]byte
	binary.BigEndian.PutUint32(hdr[:], uint32(len(msg)))
	out.WriteAt(hdr[:])
	out.WriteAt(msg)
	return nil
}

func (intLength) HasNext(in *Cursor) bool {
	if in.Remaining() < intHeaderLen {
		return false
	}
	l := int(binary.BigEndian.Uint32(in.Buf[in.Pos : in.Pos+intHeaderLen]))
	if l < 0 || l > intMaxBody {
		return false
	}
	return in.Remaining() >= intHeaderLen+l
}

func (intLength) DecodedLen(in *Cursor) int {
	return int(binary.BigEndian.Uint32(in.Buf[in.Pos : in.Pos+intHeaderLen]))
}

func (c intLength) Get(in *Cursor, out []byte) (int, error) {
	if in.Remaining() < intHeaderLen {
		return 0, ErrInvalidEncoding
	}
	l := int(binary.BigEndian.Uint32(in.Buf[in.Pos : in.Pos+intHeaderLen]))
	if l <= 0 || l > intMaxBody || in.Remaining() < intHeaderLen+l {
		return 0, ErrInvalidEncoding
	}
	if len(out) < l {
		return 0, ErrInvalidEncoding
	}
	n := copy(out, in.Buf[in.Pos+intHeaderLen:in.Pos+intHeaderLen+l])
	in.Advance(intHeaderLen + l)
	return n, nil
}
