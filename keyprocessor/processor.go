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

// Package keyprocessor implements the per-connection state machines of spec §4.5:
// TCP, UDP, and TLS processors. Each owns a bufprovider.Provider, drives a codec
// across two scratch wire buffers, and reports lifecycle through futures.
package keyprocessor

import (
	"strings"
	"sync"
	"sync/atomic"

	"github.com/nabbar/snio/bufprovider"
	"github.com/nabbar/snio/codec"
	"github.com/nabbar/snio/config"
	"github.com/nabbar/snio/errors"
	"github.com/nabbar/snio/future"
	"github.com/nabbar/snio/logger"
	"github.com/nabbar/snio/metrics"
	"github.com/nabbar/snio/ratelimit"
	"github.com/nabbar/snio/selector"
)

// base is the common state and future bookkeeping shared by TCP, UDP, and TLS
// processors (spec §4.5 "Key Processor (common infrastructure)").
type base struct {
	fd       int
	name     string // short transport label ("tcp", "udp", "tls") used for metrics
	provider *bufprovider.Provider
	codec    codec.Codec
	limiter  ratelimit.Limiter
	cfg      config.Processor
	log      logger.Logger

	readKey  *selector.Key
	writeKey *selector.Key
	readThr  *selector.Thread
	writeThr *selector.Thread

	connectRead  *future.Future
	connectWrite *future.Future
	closeRead    *future.Future
	closeWrite   *future.Future
	shutdown     *future.Future

	closedInternally atomic.Bool
	closed           atomic.Bool

	closeOnce sync.Once
	userClose func() error

	// onConnected, when set, runs once after a pending client connect() succeeds
	// (spec §4.5 event 2's "triggers the channel's subsequent register(channel,
	// processor)"); the channel facade uses it to submit the WRITE registration.
	onConnected func()
}

// SetOnConnected installs the hook run after a successful client-side connect.
func (b *base) SetOnConnected(fn func()) { b.onConnected = fn }

// codeOf extracts the CodeError carried by cause, if any, for metric labeling.
func codeOf(cause error) errors.CodeError {
	var e errors.Error
	if errors.As(cause, &e) {
		return e.Code()
	}
	return errors.CodeUnknown
}

// scratchOrFallback allocates a scratch buffer via cfg.ScratchBuffer, falling back to
// a plain heap slice (and logging once) if the direct-buffer mmap fails; a transient
// ENOMEM on a rarely-exercised knob shouldn't take the whole processor down.
func scratchOrFallback(cfg config.Processor, n int, log logger.Logger) ([]byte, func()) {
	buf, release, err := cfg.ScratchBuffer(n)
	if err != nil {
		log.WithError(err).Error("direct scratch buffer allocation failed, falling back to heap")
		return make([]byte, n), func() {}
	}
	return buf, release
}

func newBase(fd int, provider *bufprovider.Provider, cfg config.Processor, name string) *base {
	if cfg.Limiter == nil {
		cfg.Limiter = ratelimit.NoLimit
	}
	return &base{
		fd:           fd,
		name:         strings.TrimPrefix(name, "keyprocessor."),
		provider:     provider,
		codec:        cfg.Codec,
		limiter:      cfg.Limiter,
		cfg:          cfg,
		log:          logger.New(name),
		connectRead:  future.New(),
		connectWrite: future.New(),
		closeRead:    future.New(),
		closeWrite:   future.New(),
		shutdown:     future.New(),
	}
}

// ConnectionFuture joins connectRead and connectWrite (spec §4.5
// "getConnectionFuture(): satisfied when both READ and WRITE registrations have
// completed").
func (b *base) ConnectionFuture() *future.Future {
	return future.Join(b.connectRead, b.connectWrite)
}

// CloseFuture joins closeRead, closeWrite and shutdown (spec §4.5 "getCloseFuture():
// joins the three close-side futures").
func (b *base) CloseFuture() *future.Future {
	return future.Join(b.closeRead, b.closeWrite, b.shutdown)
}

// OnRegistered implements spec §4.5 lifecycle event 1. A nil thread/key pair means
// registration failed (selector closed before registration, spec §7 "Registration
// failure"); both connect futures resolve with the cause and neither read nor write
// path is ever reached.
func (b *base) OnRegistered(t *selector.Thread, k *selector.Key) {
	if k == nil {
		cause := errors.New(errors.CodeRegistrationFailed, "selector closed before registration")
		metrics.ProcessorErrors.WithLabelValues(b.name, errors.CodeRegistrationFailed.String()).Inc()
		b.connectRead.Complete(cause)
		b.connectWrite.Complete(cause)
		return
	}
	switch k.Role() {
	case selector.RoleRead:
		b.readKey = k
		b.readThr = t
		if !k.Connecting() {
			// Already-connected fd (server-accepted or UDP): registration alone
			// satisfies the read side of the connection future.
			b.connectRead.Complete(nil)
		}
		// Otherwise OnConnect resolves connectRead once the pending connect()
		// finishes (spec §4.5 event 2).
	case selector.RoleWrite:
		b.writeKey = k
		b.writeThr = t
		b.connectWrite.Complete(nil)
		b.provider.AppOut.SetWriteRearmer(func() {
			if b.writeThr != nil && b.writeKey != nil {
				b.writeThr.RearmWrite(b.writeKey)
			}
		})
	default:
		b.log.Error("duplicate or unsupported registration role")
	}
}

// shutdownCommon runs the shared half of spec §4.5 lifecycle event 3: close the
// buffer provider, then cancel both keys from their owning threads, completing
// closeRead/closeWrite as each cancellation runs. Role-specific code (TCP/UDP run the
// user task immediately, TLS runs it right after closing the tls.Conn) calls this then
// resolves b.shutdown itself.
func (b *base) shutdownCommon(userTask func() error) {
	b.closeOnce.Do(func() {
		_ = b.provider.Close()
		b.userClose = userTask
		if b.readThr != nil && b.readKey != nil {
			b.readThr.Cancel(b.readKey, func() { b.closeRead.Complete(nil) })
		} else {
			b.closeRead.Complete(nil)
		}
		if b.writeThr != nil && b.writeKey != nil {
			b.writeThr.Cancel(b.writeKey, func() { b.closeWrite.Complete(nil) })
		} else {
			b.closeWrite.Complete(nil)
		}
	})
}
