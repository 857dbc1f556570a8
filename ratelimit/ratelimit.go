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

// Package ratelimit implements the token-bucket traffic shaper of spec §4,
// consulted on each processor read/write (spec §5: "internally synchronised and
// safe for many readers"). Built directly on golang.org/x/time/rate, the idiomatic
// Go token bucket, rather than a hand-rolled one.
package ratelimit

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// Limiter shapes byte throughput. Consume blocks the calling goroutine until n
// bytes may pass, or the context is cancelled.
type Limiter interface {
	Consume(ctx context.Context, n int) error
	Limit() float64 // bytes/sec; 0 means unlimited
}

// noop is the default, global no-op singleton rate limiter (spec §9: "construct
// once per reactor; never mutated").
type noop struct{}

func (noop) Consume(_ context.Context, _ int) error { return nil }
func (noop) Limit() float64                         { return 0 }

// NoLimit is the shared no-op limiter used when a reactor is not configured
// with one.
var NoLimit Limiter = noop{}

// bucket adapts rate.Limiter, whose unit is "events", to a byte-oriented
// Limiter by burning n tokens per call.
type bucket struct {
	l *rate.Limiter
}

// New constructs a token bucket accepting bytesPerSec sustained throughput with
// a burst of burstBytes (at least bytesPerSec if burstBytes <= 0).
func New(bytesPerSec float64, burstBytes int) Limiter {
	if burstBytes <= 0 {
		burstBytes = int(bytesPerSec)
		if burstBytes <= 0 {
			burstBytes = 1
		}
	}
	return &bucket{l: rate.NewLimiter(rate.Limit(bytesPerSec), burstBytes)}
}

func (b *bucket) Consume(ctx context.Context, n int) error {
	if n <= 0 {
		return nil
	}
	return b.l.WaitN(ctx, n)
}

func (b *bucket) Limit() float64 { return float64(b.l.Limit()) }

// NewAt is a test seam: constructs a bucket whose last refill time is fixed,
// useful for deterministic scenario 5 (spec §8) without sleeping for the full
// window in unit tests below the channel level.
func NewAt(now time.Time, bytesPerSec float64, burstBytes int) Limiter {
	l := rate.NewLimiter(rate.Limit(bytesPerSec), burstBytes)
	l.AllowN(now, 0)
	return &bucket{l: l}
}
