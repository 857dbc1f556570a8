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

// Package deflate wraps the "deflate" wire format of spec §6: a 2-byte compressed length
// header followed by one RFC-1950 (zlib) stream per frame.
package deflate

import (
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"io"

	"github.com/nabbar/snio/codec"
)

const headerLen = 2
const maxBody = 65499

type wrap struct {
	level int
}

// New returns a Codec that deflates each message into its own RFC-1950 stream. level is
// passed straight to compress/zlib.NewWriterLevel (zlib.DefaultCompression is used when
// level is 0).
func New(level int) codec.Codec {
	if level == 0 {
		level = zlib.DefaultCompression
	}
	return &wrap{level: level}
}

func (w *wrap) FrameLength() int { return headerLen }
func (w *wrap) MaxBodyLen() int  { return maxBody }
func (w *wrap) Close() error     { return nil }

func (w *wrap) IsValid(msg []byte) bool {
	return len(msg) > 0 && len(msg) <= maxBody
}

func (w *wrap) compress(msg []byte) ([]byte, error) {
	var b bytes.Buffer
	zw, err := zlib.NewWriterLevel(&b, w.level)
	if err != nil {
		return nil, err
	}
	if _, err = zw.Write(msg); err != nil {
		return nil, err
	}
	if err = zw.Close(); err != nil {
		return nil, err
	}
	return b.Bytes(), nil
}

func (w *wrap) EncodedLen(msg []byte) int {
	compressed, err := w.compress(msg)
	if err != nil {
		return headerLen
	}
	return headerLen + len(compressed)
}

func (w *wrap) Put(msg []byte, out *codec.Cursor) error {
	if !w.IsValid(msg) {
		return codec.ErrInvalidMessage
	}
	compressed, err := w.compress(msg)
	if err != nil || len(compressed) > 1<<16-1 {
		return codec.ErrInvalidMessage
	}
	if out.Remaining() < headerLen+len(compressed) {
		return codec.ErrInvalidMessage
	}
	var hdr [headerLen]byte
	binary.BigEndian.PutUint16(hdr[:], uint16(len(compressed)))
	out.WriteAt(hdr[:])
	out.WriteAt(compressed)
	return nil
}

func (w *wrap) HasNext(in *codec.Cursor) bool {
	if in.Remaining() < headerLen {
		return false
	}
	l := int(binary.BigEndian.Uint16(in.Buf[in.Pos : in.Pos+headerLen]))
	return in.Remaining() >= headerLen+l
}

func (w *wrap) DecodedLen(in *codec.Cursor) int {
	l := int(binary.BigEndian.Uint16(in.Buf[in.Pos : in.Pos+headerLen]))
	zr, err := zlib.NewReader(bytes.NewReader(in.Buf[in.Pos+headerLen : in.Pos+headerLen+l]))
	if err != nil {
		return 0
	}
	defer zr.Close()
	n, _ := io.Copy(io.Discard, zr)
	return int(n)
}

func (w *wrap) Get(in *codec.Cursor, out []byte) (int, error) {
	if !w.HasNext(in) {
		return 0, codec.ErrInvalidEncoding
	}
	l := int(binary.BigEndian.Uint16(in.Buf[in.Pos : in.Pos+headerLen]))
	zr, err := zlib.NewReader(bytes.NewReader(in.Buf[in.Pos+headerLen : in.Pos+headerLen+l]))
	if err != nil {
		return 0, codec.ErrInvalidEncoding
	}
	defer zr.Close()

	var b bytes.Buffer
	if _, err = io.Copy(&b, zr); err != nil {
		return 0, codec.ErrInvalidEncoding
	}
	if b.Len() > len(out) {
		return 0, codec.ErrInvalidEncoding
	}
	n := copy(out, b.Bytes())
	in.Advance(headerLen + l)
	return n, nil
}
