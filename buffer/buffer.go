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

// Package buffer implements the bounded handoff buffer of spec §4.2: a fixed-capacity
// slot array connecting application threads to the reactor, in two interchangeable
// flavors (NewRing, lock-free; NewBlocking, lock+condition). A buffer is constructed
// once and exposes two role-scoped handles, Producer and Consumer, sharing one slot
// array the way spec §3's BufferProvider pairs an appOut producer with a chnIn consumer
// over the same ring.
package buffer

import (
	"github.com/nabbar/snio/errors"
)

// Payload is a slot's preallocated, expandable byte container. Cap is fixed at
// construction (the codec's max body length); Len tracks how much of it is in use.
type Payload struct {
	Buf []byte
	Len int
}

// Reset clears Len without releasing the backing array, so a slot's payload can be
// reused across many publish/consume cycles without allocating.
func (p *Payload) Reset() { p.Len = 0 }

// Bytes returns the in-use region of the payload.
func (p *Payload) Bytes() []byte { return p.Buf[:p.Len] }

// Set copies b into the payload, growing Buf if b does not fit.
func (p *Payload) Set(b []byte) {
	if cap(p.Buf) < len(b) {
		p.Buf = make([]byte, len(b))
	} else {
		p.Buf = p.Buf[:len(b)]
	}
	copy(p.Buf, b)
	p.Len = len(b)
}

// ErrInterruptedByClose is the distinguished, non-error outcome of spec §7: any blocked
// Acquire unblocks with this value when the buffer is closed. Callers must treat it as a
// normal loop termination, not a failure.
var ErrInterruptedByClose = errors.New(errors.CodeInterruptedByClose, "handoff buffer closed")

// errInvalidCapacity is returned by NewRing and NewBlocking when capacity is not a
// strictly positive power of two (spec §8 boundary case).
var errInvalidCapacity = errors.New(errors.CodeBug, "buffer capacity must be a power of two")

// Producer is the write-side handle of a HandoffBuffer (spec §4.2).
type Producer interface {
	// Acquire claims the next sequence, blocking until a slot is free or the buffer
	// closes (ErrInterruptedByClose). The buffer supports many concurrent producers
	// (needed for BufferProvider's shared-input fan-in, spec §3); a single dedicated
	// producer never contends.
	Acquire() (seq int64, err error)
	// AcquireN claims up to n sequences, returning the highest claimed sequence.
	AcquireN(n int64) (seq int64, err error)
	// Get borrows the payload at seq for writing. Valid only while the caller holds seq.
	Get(seq int64) *Payload
	// Attach sets the per-slot attachment (spec §3: peer address, or echo back-reference).
	Attach(seq int64, v any)
	// Release publishes seq so the consumer can observe it.
	Release(seq int64)
	// Remaining is the approximate number of free slots.
	Remaining() int64
	// Capacity returns the buffer's fixed slot count.
	Capacity() int64
	// SetWriteRearmer installs the wakeup-strategy hook of spec §4.2: when set, Release
	// calls fn instead of signalling the consumer's wait condition, so filling the
	// application-facing buffer directly rearms OP_WRITE on the reactor instead of
	// waking a consumer that (per spec §5) never blocks.
	SetWriteRearmer(fn func())
	// Close is idempotent and releases every blocked Acquire/AcquireN.
	Close() error
}

// Consumer is the read-side handle of a HandoffBuffer (spec §4.2).
type Consumer interface {
	// Acquire claims the next published sequence, blocking until the producer has
	// released one or the buffer closes (ErrInterruptedByClose).
	Acquire() (seq int64, err error)
	// AcquireN claims up to n published sequences, returning the highest claimed.
	AcquireN(n int64) (seq int64, err error)
	// Get borrows the payload at seq for reading. Valid only while the caller holds seq.
	Get(seq int64) *Payload
	// Attachment reads the per-slot attachment set by the producer.
	Attachment(seq int64) any
	// Release frees seq, making its slot available to the producer again.
	Release(seq int64)
	// Remaining is the approximate number of published-but-unread slots.
	Remaining() int64
	// Capacity returns the buffer's fixed slot count.
	Capacity() int64
	// Close is idempotent and releases every blocked Acquire/AcquireN.
	Close() error
}
