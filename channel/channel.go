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

// Package channel is the thin facade of spec §4.6: bind/connect/close plus the two
// application-side handoff buffers, exposed identically whether the transport is
// plain TCP, TLS, or UDP. Each facade owns its OS socket and delegates every I/O-side
// concern to a keyprocessor and the reactor it is registered with.
package channel

import (
	"github.com/nabbar/snio/buffer"
	"github.com/nabbar/snio/config"
	"github.com/nabbar/snio/future"
)

// Channel is the facade spec.md §4.6 describes: bind a local address, connect to a
// remote one, close, and the pair of application-facing handoff buffers.
type Channel interface {
	// Bind associates the channel with a local address before Connect (spec §4.6
	// "bind(local)"). Optional for TCP/TLS clients; the primary entry point for UDP.
	Bind(local config.Server) *future.Future
	// Connect establishes the channel to remote (spec §4.6 "connect(remote)").
	Connect(remote config.Client) *future.Future
	// Close tears the channel down asynchronously (spec §5 "submits a shutdown
	// command and returns").
	Close() error

	// InputBuffer is the consumer side of decoded inbound messages.
	InputBuffer() buffer.Consumer
	// OutputBuffer is the producer side of outbound application messages.
	OutputBuffer() buffer.Producer

	BindFuture() *future.Future
	ConnectFuture() *future.Future
	CloseFuture() *future.Future
}
