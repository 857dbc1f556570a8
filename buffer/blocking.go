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
	"sync"
)

// blocking is the lock+condition variant of the bounded handoff buffer (spec §4.2
// "blocking variant"): a plain mutex-guarded ring plus two condition variables, one
// per direction. Simpler and cheaper under heavy contention on a single consumer
// goroutine than the lock-free ring; used when a caller has not opted into NewRing.
type blocking struct {
	mu       sync.Mutex
	notFull  *sync.Cond
	notEmpty *sync.Cond

	cap   int64
	mask  int64
	head  int64 // highest sequence handed to the consumer
	tail  int64 // highest sequence handed to the producer

	payloads    []Payload
	attachments []any

	closed bool
	rearm  func()
}

// NewBlocking constructs a blocking-backed HandoffBuffer of the given power-of-two
// capacity and returns its producer and consumer endpoints.
func NewBlocking(capacity int64, factory func() Payload) (Producer, Consumer, error) {
	if capacity <= 0 || capacity&(capacity-1) != 0 {
		return nil, nil, errInvalidCapacity
	}
	b := &blocking{
		cap:         capacity,
		mask:        capacity - 1,
		payloads:    make([]Payload, capacity),
		attachments: make([]any, capacity),
	}
	b.notFull = sync.NewCond(&b.mu)
	b.notEmpty = sync.NewCond(&b.mu)
	for i := range b.payloads {
		b.payloads[i] = factory()
	}
	return (*blockingProducer)(b), (*blockingConsumer)(b), nil
}

func (b *blocking) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	b.notFull.Broadcast()
	b.notEmpty.Broadcast()
	return nil
}

type blockingProducer blocking

func (p *blockingProducer) b() *blocking { return (*blocking)(p) }

func (p *blockingProducer) Capacity() int64 { return p.b().cap }

func (p *blockingProducer) Remaining() int64 {
	b := p.b()
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.cap - (b.tail - b.head)
}

func (p *blockingProducer) SetWriteRearmer(fn func()) {
	b := p.b()
	b.mu.Lock()
	b.rearm = fn
	b.mu.Unlock()
}

func (p *blockingProducer) Close() error { return p.b().Close() }

func (p *blockingProducer) Acquire() (int64, error) { return p.AcquireN(1) }

func (p *blockingProducer) AcquireN(n int64) (int64, error) {
	b := p.b()
	if n <= 0 {
		n = 1
	}
	if n > b.cap {
		n = b.cap
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for b.tail-b.head+n > b.cap {
		if b.closed {
			return 0, ErrInterruptedByClose
		}
		b.notFull.Wait()
	}
	if b.closed {
		return 0, ErrInterruptedByClose
	}
	b.tail += n
	return b.tail, nil
}

func (p *blockingProducer) Get(seq int64) *Payload {
	b := p.b()
	b.mu.Lock()
	defer b.mu.Unlock()
	return &b.payloads[seq&b.mask]
}

func (p *blockingProducer) Attach(seq int64, v any) {
	b := p.b()
	b.mu.Lock()
	b.attachments[seq&b.mask] = v
	b.mu.Unlock()
}

// Release is a no-op past the mutation already performed by AcquireN: the slot becomes
// visible to the consumer as soon as tail advances, so Release only needs to wake a
// blocked reader (or the reactor's write-rearmer, spec §4.2/§5).
func (p *blockingProducer) Release(seq int64) {
	b := p.b()
	b.mu.Lock()
	fn := b.rearm
	b.mu.Unlock()
	if fn != nil {
		fn()
		return
	}
	b.mu.Lock()
	b.notEmpty.Broadcast()
	b.mu.Unlock()
}

type blockingConsumer blocking

func (c *blockingConsumer) b() *blocking { return (*blocking)(c) }

func (c *blockingConsumer) Capacity() int64 { return c.b().cap }

func (c *blockingConsumer) Remaining() int64 {
	b := c.b()
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.tail - b.head
}

func (c *blockingConsumer) Close() error { return c.b().Close() }

func (c *blockingConsumer) Acquire() (int64, error) { return c.AcquireN(1) }

func (c *blockingConsumer) AcquireN(n int64) (int64, error) {
	b := c.b()
	if n <= 0 {
		n = 1
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for b.tail-b.head <= 0 {
		if b.closed {
			return 0, ErrInterruptedByClose
		}
		b.notEmpty.Wait()
	}
	if b.closed && b.tail-b.head <= 0 {
		return 0, ErrInterruptedByClose
	}
	avail := b.tail - b.head
	if n > avail {
		n = avail
	}
	b.head += n
	return b.head, nil
}

func (c *blockingConsumer) Get(seq int64) *Payload {
	b := c.b()
	b.mu.Lock()
	defer b.mu.Unlock()
	return &b.payloads[seq&b.mask]
}

func (c *blockingConsumer) Attachment(seq int64) any {
	b := c.b()
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.attachments[seq&b.mask]
}

func (c *blockingConsumer) Release(seq int64) {
	b := c.b()
	b.mu.Lock()
	b.notFull.Broadcast()
	b.mu.Unlock()
}
