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

// Package future implements the single-shot completion signals of spec §3/§4.5:
// connectRead, connectWrite, closeRead, closeWrite, shutdown, and the two merged
// futures (getConnectionFuture, getCloseFuture) callers observe.
package future

import (
	"context"
	"sync"
)

// Future is a single-shot success/failure signal. It collapses the deep
// AsyncBindable/AsyncConnectable/AsyncCloseable interface hierarchy of spec §9 into
// one small type: every lifecycle signal in this module is a Future.
type Future struct {
	mu   sync.Mutex
	done chan struct{}
	err  error
}

// New returns an incomplete Future.
func New() *Future {
	return &Future{done: make(chan struct{})}
}

// Complete resolves f with err (nil for success). Only the first call has effect;
// it reports whether this call was the one that resolved f.
func (f *Future) Complete(err error) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	select {
	case <-f.done:
		return false
	default:
		f.err = err
		close(f.done)
		return true
	}
}

// Done returns a channel closed once f resolves.
func (f *Future) Done() <-chan struct{} { return f.done }

// IsDone reports whether f has already resolved.
func (f *Future) IsDone() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}

// Err returns the resolution error; only meaningful after Done() is closed.
func (f *Future) Err() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.err
}

// Wait blocks until f resolves or ctx is cancelled.
func (f *Future) Wait(ctx context.Context) error {
	select {
	case <-f.done:
		return f.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Join returns a Future that resolves once every future in fs has resolved,
// failing with the first non-nil error observed (spec §4.5 "getConnectionFuture":
// joins two connects; "getCloseFuture": joins three close-side futures).
func Join(fs ...*Future) *Future {
	out := New()
	if len(fs) == 0 {
		out.Complete(nil)
		return out
	}
	go func() {
		var firstErr error
		for _, f := range fs {
			<-f.Done()
			if err := f.Err(); err != nil && firstErr == nil {
				firstErr = err
			}
		}
		out.Complete(firstErr)
	}()
	return out
}
