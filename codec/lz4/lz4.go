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

// Package lz4 wraps the "lz4" wire format of spec §6 around github.com/pierrec/lz4/v4's
// fast (non-HC) block compressor: a 4-byte (compressed_len+4) header, a 4-byte
// decompressed_len header, then the compressed block.
package lz4

import (
	"encoding/binary"

	"github.com/nabbar/snio/codec"
	pierrec "github.com/pierrec/lz4/v4"
)

const headerLen = 8
const maxBody = 65252 // per spec §6, approximate cap for the fast block format

type wrap struct{}

// New returns a Codec backed by the fast (not HC) LZ4 block format.
func New() codec.Codec { return wrap{} }

func (wrap) FrameLength() int { return headerLen }
func (wrap) MaxBodyLen() int  { return maxBody }
func (wrap) Close() error     { return nil }

func (wrap) IsValid(msg []byte) bool {
	return len(msg) > 0 && len(msg) <= maxBody
}

func (w wrap) compress(msg []byte) ([]byte, error) {
	dst := make([]byte, pierrec.CompressBlockBound(len(msg)))
	var c pierrec.Compressor
	n, err := c.CompressBlock(msg, dst)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		// incompressible input: lz4 reports this by returning 0; store it raw isn't
		// representable in this fixed wire format, so the caller sees ErrInvalidMessage.
		return nil, codec.ErrInvalidMessage
	}
	return dst[:n], nil
}

func (w wrap) EncodedLen(msg []byte) int {
	compressed, err := w.compress(msg)
	if err != nil {
		return headerLen
	}
	return headerLen + len(compressed)
}

func (w wrap) Put(msg []byte, out *codec.Cursor) error {
	if !w.IsValid(msg) {
		return codec.ErrInvalidMessage
	}
	compressed, err := w.compress(msg)
	if err != nil {
		return codec.ErrInvalidMessage
	}
	if out.Remaining() < headerLen+len(compressed) {
		return codec.ErrInvalidMessage
	}
	var hdr [headerLen]byte
	binary.BigEndian.PutUint32(hdr[0:4], uint32(len(compressed)+4))
	binary.BigEndian.PutUint32(hdr[4:8], uint32(len(msg)))
	out.WriteAt(hdr[:])
	out.WriteAt(compressed)
	return nil
}

func (wrap) HasNext(in *codec.Cursor) bool {
	if in.Remaining() < headerLen {
		return false
	}
	compLen := int(binary.BigEndian.Uint32(in.Buf[in.Pos : in.Pos+4])) - 4
	return compLen >= 0 && in.Remaining() >= headerLen+compLen
}

func (wrap) DecodedLen(in *codec.Cursor) int {
	return int(binary.BigEndian.Uint32(in.Buf[in.Pos+4 : in.Pos+8]))
}

func (w wrap) Get(in *codec.Cursor, out []byte) (int, error) {
	if !w.HasNext(in) {
		return 0, codec.ErrInvalidEncoding
	}
	compLen := int(binary.BigEndian.Uint32(in.Buf[in.Pos:in.Pos+4])) - 4
	decLen := int(binary.BigEndian.Uint32(in.Buf[in.Pos+4 : in.Pos+8]))
	if decLen < 0 || decLen > len(out) {
		return 0, codec.ErrInvalidEncoding
	}
	src := in.Buf[in.Pos+headerLen : in.Pos+headerLen+compLen]
	n, err := pierrec.UncompressBlock(src, out[:decLen])
	if err != nil {
		return 0, codec.ErrInvalidEncoding
	}
	in.Advance(headerLen + compLen)
	return n, nil
}
