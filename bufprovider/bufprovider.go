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

// Package bufprovider pairs two handoff buffers into the bidirectional app<->channel
// transport a processor needs (spec §3 BufferProvider, §4 "Buffer Provider" component).
package bufprovider

import (
	"github.com/nabbar/snio/buffer"
)

// Config describes how to build each of a provider's handoff buffers.
type Config struct {
	Capacity       int64
	UseRing        bool
	PayloadFactory func() buffer.Payload
}

func (c Config) build() (buffer.Producer, buffer.Consumer, error) {
	if c.UseRing {
		return buffer.NewRing(c.Capacity, c.PayloadFactory)
	}
	return buffer.NewBlocking(c.Capacity, c.PayloadFactory)
}

// Provider is the quadruple of endpoints a KeyProcessor drives (spec §3/§4.5):
// AppOut/ChnIn share one ring (the write path), ChnOut/AppIn share another (the read
// path). AppIn is nil in shared-input mode, where ChnOut instead publishes into an
// externally supplied, shared consumer (fan-in).
type Provider struct {
	AppOut buffer.Producer
	ChnIn  buffer.Consumer
	ChnOut buffer.Producer
	AppIn  buffer.Consumer
}

// Close releases every endpoint this provider owns. In shared-input mode the shared
// ring's consumer is owned by whoever built it via NewShared, not by this Provider, so
// Close never touches it.
func (p *Provider) Close() error {
	if p.AppOut != nil {
		_ = p.AppOut.Close()
	}
	if p.AppIn != nil {
		_ = p.AppIn.Close()
	}
	return nil
}

// NewOwnInput builds a provider with a dedicated chnOut<->appIn ring per connection
// (spec §3 "own-input" mode).
func NewOwnInput(out, in Config) (*Provider, error) {
	appOut, chnIn, err := out.build()
	if err != nil {
		return nil, err
	}
	chnOut, appIn, err := in.build()
	if err != nil {
		_ = appOut.Close()
		return nil, err
	}
	return &Provider{AppOut: appOut, ChnIn: chnIn, ChnOut: chnOut, AppIn: appIn}, nil
}

// NewSharedInput builds a provider whose read path (ChnOut) publishes into an
// externally supplied shared producer instead of a dedicated ring (spec §3
// "shared-input" mode, enabling N-to-1 fan-in: many connections, one application
// reader). The caller owns the shared ring's consumer and its lifetime.
func NewSharedInput(out Config, shared buffer.Producer) (*Provider, error) {
	appOut, chnIn, err := out.build()
	if err != nil {
		return nil, err
	}
	return &Provider{AppOut: appOut, ChnIn: chnIn, ChnOut: shared, AppIn: nil}, nil
}

// NewShared builds the ring backing a shared-input fan-in group. Resolved Open
// Question (spec §9 / SPEC_FULL §9.1): regardless of cfg.UseRing, a shared-input ring
// is always the lock-free ring variant, never the blocking one — "ring wins" when
// fan-in is requested, because the ring's CAS-based Acquire already supports many
// concurrent producers with no extra locking, which is exactly what N-to-1 fan-in
// needs; forcing the blocking variant here would only add contention for no benefit.
func NewShared(cfg Config) (buffer.Producer, buffer.Consumer, error) {
	return buffer.NewRing(cfg.Capacity, cfg.PayloadFactory)
}
