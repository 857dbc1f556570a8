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

// Package config holds the runtime knobs of spec §6 as functional options, in the
// idiom hayabusa-cloud-framer uses for its Protocol options, plus the Client/Server
// address+TLS shape nabbar-golib/socket's config test suite implies.
package config

import (
	"crypto/tls"
	"math/bits"

	"github.com/nabbar/snio/codec"
	"github.com/nabbar/snio/ratelimit"

	"golang.org/x/sys/unix"
)

// Processor collects the per-connection runtime knobs of spec §6.
type Processor struct {
	BufferCapacity    int64
	SendBufferSize    int
	ReceiveBufferSize int
	// UseDirectBuffer requests mmap-backed scratch send/receive buffers (see
	// ScratchBuffer) instead of plain heap slices.
	UseDirectBuffer   bool
	UseRingBuffer     bool
	SingleInputBuffer bool
	Codec             codec.Codec
	Limiter           ratelimit.Limiter
}

// Option mutates a Processor at construction time.
type Option func(*Processor)

// Default returns the spec §6 defaults: 256 slots, 64KiB scratch buffers, blocking
// buffer variant, own-input buffering, no rate limit. Codec must still be supplied.
func Default() Processor {
	return Processor{
		BufferCapacity:    256,
		SendBufferSize:    0xFFFF,
		ReceiveBufferSize: 0xFFFF,
		UseDirectBuffer:   false,
		UseRingBuffer:     false,
		SingleInputBuffer: false,
		Limiter:           ratelimit.NoLimit,
	}
}

// New builds a Processor from Default() plus the given options.
func New(opts ...Option) Processor {
	p := Default()
	for _, o := range opts {
		o(&p)
	}
	return p
}

func WithBufferCapacity(n int64) Option {
	return func(p *Processor) { p.BufferCapacity = n }
}

func WithSendBufferSize(n int) Option {
	return func(p *Processor) { p.SendBufferSize = n }
}

func WithReceiveBufferSize(n int) Option {
	return func(p *Processor) { p.ReceiveBufferSize = n }
}

// WithDirectBuffer toggles mmap-backed scratch buffers; see ScratchBuffer.
func WithDirectBuffer(v bool) Option {
	return func(p *Processor) { p.UseDirectBuffer = v }
}

func WithRingBuffer(v bool) Option {
	return func(p *Processor) { p.UseRingBuffer = v }
}

func WithSingleInputBuffer(v bool) Option {
	return func(p *Processor) { p.SingleInputBuffer = v }
}

func WithCodec(c codec.Codec) Option {
	return func(p *Processor) { p.Codec = c }
}

func WithRateLimiter(l ratelimit.Limiter) Option {
	return func(p *Processor) { p.Limiter = l }
}

// ScratchSize rounds want up to the next power of two and raises it to at least
// frameLength, per spec §6 "Scratch sizes are rounded up to the next power of two
// and raised to at least codec.frameLength".
func ScratchSize(want, frameLength int) int {
	if want < frameLength {
		want = frameLength
	}
	if want <= 0 {
		return 1
	}
	return 1 << bits.Len(uint(want-1))
}

// ScratchBuffer allocates one of a processor's scratch wire buffers at size n. When
// p.UseDirectBuffer is set the buffer is backed by an anonymous mmap (spec §6
// "UseDirectBuffer requests an off-heap scratch buffer the GC never moves or scans"),
// matching the fixed-address guarantee a direct ByteBuffer gives the original; runtime
// default (UseDirectBuffer false) returns a plain heap slice instead. release must be
// called once the buffer is no longer needed; it is a no-op in the heap-backed case.
func (p Processor) ScratchBuffer(n int) (buf []byte, release func(), err error) {
	if !p.UseDirectBuffer {
		return make([]byte, n), func() {}, nil
	}
	b, merr := unix.Mmap(-1, 0, n, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if merr != nil {
		return nil, nil, merr
	}
	return b, func() { _ = unix.Munmap(b) }, nil
}

// Validate rejects configurations the core cannot honour: a missing codec, or a
// non-positive buffer capacity (spec §3 "C is a power of two for the lock-free
// variant"; a blocking buffer only requires C >= 1, but both constructors reject
// non-power-of-two capacities uniformly, see buffer.errInvalidCapacity).
func (p Processor) Validate() error {
	if p.Codec == nil {
		return errMissingCodec
	}
	if p.BufferCapacity <= 0 {
		return errBadCapacity
	}
	if p.BufferCapacity&(p.BufferCapacity-1) != 0 {
		return errBadCapacity
	}
	return nil
}

// TLSConfig wraps the standard library's tls.Config; present purely so
// config.Server/config.Client can carry "TLS enabled or not" plus its settings as
// one optional field, the way nabbar-golib/socket's config.Client.TLS does.
type TLSConfig struct {
	Enabled bool
	Config  *tls.Config
}
