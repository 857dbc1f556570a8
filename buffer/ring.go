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

package buffer

import (
	"sync/atomic"
)

// ring is a power-of-two capacity lock-free bounded queue (spec §4.2 "ring variant").
// Sequences are monotone int64 counters; slot index is seq & mask. A per-slot
// "published" flag lets more than one producer claim sequences via CompareAndSwap
// (needed for BufferProvider's shared-input fan-in) while keeping the gating check
// itself allocation- and lock-free.
type ring struct {
	mask int64
	cap  int64

	payloads    []Payload
	attachments []atomic.Value
	published   []atomic.Bool

	producerSeq atomic.Int64 // highest sequence claimed by a producer (next to claim - 1)
	consumerSeq atomic.Int64 // highest sequence claimed by the consumer

	notify chan struct{} // buffered(1) wakeup for blocked waiters on either side
	closed atomic.Bool

	rearm atomic.Value // func(), the wakeup-strategy hook (spec §4.2)
}

// WakeupStrategy lets a caller override how a ring wakes a blocked waiter; the default
// (nil) uses the internal notify channel.
type WakeupStrategy func()

// NewRing constructs a ring-backed HandoffBuffer of the given power-of-two capacity and
// returns its producer and consumer endpoints. factory creates one Payload per slot,
// pre-sized to the codec's max body length (spec §3).
func NewRing(capacity int64, factory func() Payload) (Producer, Consumer, error) {
	if capacity <= 0 || capacity&(capacity-1) != 0 {
		return nil, nil, errInvalidCapacity
	}
	r := &ring{
		mask:        capacity - 1,
		cap:         capacity,
		payloads:    make([]Payload, capacity),
		attachments: make([]atomic.Value, capacity),
		published:   make([]atomic.Bool, capacity),
		notify:      make(chan struct{}, 1),
	}
	r.producerSeq.Store(-1)
	r.consumerSeq.Store(-1)
	for i := range r.payloads {
		r.payloads[i] = factory()
	}
	return (*ringProducer)(r), (*ringConsumer)(r), nil
}

func (r *ring) wake() {
	select {
	case r.notify <- struct{}{}:
	default:
	}
}

func (r *ring) wait() {
	<-r.notify
}

func (r *ring) Close() error {
	if r.closed.CompareAndSwap(false, true) {
		close(r.notify)
	}
	return nil
}

func (r *ring) isClosed() bool { return r.closed.Load() }

// ringProducer is the Producer endpoint over a ring.
type ringProducer ring

func (p *ringProducer) r() *ring { return (*ring)(p) }

func (p *ringProducer) Capacity() int64 { return p.r().cap }

func (p *ringProducer) Remaining() int64 {
	r := p.r()
	inFlight := r.producerSeq.Load() - r.consumerSeq.Load()
	return r.cap - inFlight
}

func (p *ringProducer) SetWriteRearmer(fn func()) {
	p.r().rearm.Store(WakeupStrategy(fn))
}

func (p *ringProducer) Close() error { return p.r().Close() }

func (p *ringProducer) Acquire() (int64, error) { return p.AcquireN(1) }

// AcquireN claims up to n sequences via a CAS loop so multiple producer goroutines can
// safely share one ring (BufferProvider's shared-input mode, spec §3). It returns the
// highest sequence claimed in this call.
func (p *ringProducer) AcquireN(n int64) (int64, error) {
	r := p.r()
	if n <= 0 {
		n = 1
	}
	if n > r.cap {
		n = r.cap
	}
	for {
		if r.isClosed() {
			return 0, ErrInterruptedByClose
		}
		cur := r.producerSeq.Load()
		claimed := n
		for cur-r.consumerSeq.Load()+claimed > r.cap {
			claimed--
			if claimed <= 0 {
				break
			}
		}
		if claimed <= 0 {
			r.wait()
			continue
		}
		next := cur + claimed
		if r.producerSeq.CompareAndSwap(cur, next) {
			return next, nil
		}
	}
}

func (p *ringProducer) Get(seq int64) *Payload {
	r := p.r()
	return &r.payloads[seq&r.mask]
}

func (p *ringProducer) Attach(seq int64, v any) {
	r := p.r()
	r.attachments[seq&r.mask].Store(attachmentBox{v: v})
}

// Release publishes seq. If a write-rearmer is installed it is invoked instead of the
// default notify signal (spec §4.2/§5: the reactor never blocks on a buffer condition).
func (p *ringProducer) Release(seq int64) {
	r := p.r()
	r.published[seq&r.mask].Store(true)
	if fn, _ := r.rearm.Load().(WakeupStrategy); fn != nil {
		fn()
		return
	}
	r.wake()
}

// ringConsumer is the Consumer endpoint over a ring.
type ringConsumer ring

func (c *ringConsumer) r() *ring { return (*ring)(c) }

func (c *ringConsumer) Capacity() int64 { return c.r().cap }

func (c *ringConsumer) Remaining() int64 {
	r := c.r()
	n := r.producerSeq.Load() - r.consumerSeq.Load()
	if n < 0 {
		return 0
	}
	return n
}

func (c *ringConsumer) Close() error { return c.r().Close() }

func (c *ringConsumer) Acquire() (int64, error) { return c.AcquireN(1) }

func (c *ringConsumer) AcquireN(n int64) (int64, error) {
	r := c.r()
	if n <= 0 {
		n = 1
	}
	for {
		avail := r.producerSeq.Load() - r.consumerSeq.Load()
		if avail <= 0 {
			if r.isClosed() {
				return 0, ErrInterruptedByClose
			}
			r.wait()
			continue
		}
		claim := n
		if claim > avail {
			claim = avail
		}
		cur := r.consumerSeq.Load()
		next := cur + claim
		// single consumer: no CAS race expected, but guard against a mis-paired
		// caller running two consumer goroutines (would be a caller bug, spec §4.2
		// invariant "only one thread plays each role").
		for i := cur + 1; i <= next; i++ {
			if !r.published[i&r.mask].Load() {
				next = i - 1
				break
			}
		}
		if next <= cur {
			if r.isClosed() {
				return 0, ErrInterruptedByClose
			}
			r.wait()
			continue
		}
		r.consumerSeq.Store(next)
		return next, nil
	}
}

func (c *ringConsumer) Get(seq int64) *Payload {
	r := c.r()
	return &r.payloads[seq&r.mask]
}

func (c *ringConsumer) Attachment(seq int64) any {
	r := c.r()
	if v, ok := r.attachments[seq&r.mask].Load().(attachmentBox); ok {
		return v.v
	}
	return nil
}

// Release frees seq's slot, clearing its published flag so the producer can reclaim it.
func (c *ringConsumer) Release(seq int64) {
	r := c.r()
	r.published[seq&r.mask].Store(false)
	r.wake()
}

type attachmentBox struct{ v any }
