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

package channel

import (
	"context"
	"crypto/tls"
	"net"
	"sync"
	"time"

	"github.com/nabbar/snio/buffer"
	"github.com/nabbar/snio/bufprovider"
	"github.com/nabbar/snio/config"
	"github.com/nabbar/snio/errors"
	"github.com/nabbar/snio/future"
	"github.com/nabbar/snio/keyprocessor"
	"github.com/nabbar/snio/logger"
)

// TLS is spec §4.6's client-side facade for a TLS channel. It shares TCP's
// Channel contract but, per SPEC_FULL §4.5.G, the underlying processor runs its own
// handshake and read/write goroutines rather than registering on the reactor.
type TLS struct {
	cfg           config.Processor
	outCfg, inCfg bufprovider.Config
	tlsCfg        *tls.Config

	mu        sync.Mutex
	localAddr string

	provider *bufprovider.Provider
	proc     *keyprocessor.TLS

	bindFuture    *future.Future
	connectFuture *future.Future
	closeFuture   *future.Future

	log logger.Logger
}

// NewTLS constructs an unconnected TLS channel. tlsCfg is the default; a per-call
// remote.TLS.Config passed to Connect overrides it when non-nil.
func NewTLS(cfg config.Processor, tlsCfg *tls.Config, outCfg, inCfg bufprovider.Config) *TLS {
	return &TLS{
		cfg:           cfg,
		outCfg:        outCfg,
		inCfg:         inCfg,
		tlsCfg:        tlsCfg,
		bindFuture:    future.New(),
		connectFuture: future.New(),
		closeFuture:   future.New(),
		log:           logger.New("channel.tls"),
	}
}

// Bind records a local address for the eventual dial; crypto/tls has no bring-your-
// own-socket bind step, so this just remembers the address for net.Dialer.LocalAddr.
func (c *TLS) Bind(local config.Server) *future.Future {
	if err := local.Validate(); err != nil {
		c.bindFuture.Complete(err)
		return c.bindFuture
	}
	c.mu.Lock()
	c.localAddr = local.Address
	c.mu.Unlock()
	c.bindFuture.Complete(nil)
	return c.bindFuture
}

// Connect dials remote, wraps the connection in a keyprocessor.TLS, and starts its
// handshake plus pump goroutines (spec §4.6 "connect(remote)").
func (c *TLS) Connect(remote config.Client) *future.Future {
	if err := remote.Validate(); err != nil {
		c.connectFuture.Complete(err)
		return c.connectFuture
	}

	dialer := &net.Dialer{Timeout: connectWait}
	c.mu.Lock()
	local := c.localAddr
	c.mu.Unlock()
	if local != "" {
		if la, err := net.ResolveTCPAddr(remote.Network.String(), local); err == nil {
			dialer.LocalAddr = la
		}
	}

	conn, derr := dialer.Dial(remote.Network.String(), remote.Address)
	if derr != nil {
		c.connectFuture.Complete(errors.New(errors.CodeIOError, "dial failed", derr))
		return c.connectFuture
	}

	tlsCfg := c.tlsCfg
	if remote.TLS.Config != nil {
		tlsCfg = remote.TLS.Config
	}

	provider, perr := bufprovider.NewOwnInput(c.outCfg, c.inCfg)
	if perr != nil {
		_ = conn.Close()
		c.connectFuture.Complete(perr)
		return c.connectFuture
	}
	c.provider = provider
	c.proc = keyprocessor.NewTLS(conn, tlsCfg, false, provider, c.cfg)
	c.proc.Start()

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), connectWait)
		defer cancel()
		c.connectFuture.Complete(c.proc.ConnectionFuture().Wait(ctx))
	}()
	return c.connectFuture
}

// Close implements spec §5's asynchronous channel close.
func (c *TLS) Close() error {
	if c.proc == nil {
		c.closeFuture.Complete(nil)
		return nil
	}
	err := c.proc.Close(nil)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), closeWait)
		defer cancel()
		c.closeFuture.Complete(c.proc.CloseFuture().Wait(ctx))
	}()
	return err
}

func (c *TLS) InputBuffer() buffer.Consumer  { return c.provider.AppIn }
func (c *TLS) OutputBuffer() buffer.Producer { return c.provider.AppOut }

func (c *TLS) BindFuture() *future.Future    { return c.bindFuture }
func (c *TLS) ConnectFuture() *future.Future { return c.connectFuture }
func (c *TLS) CloseFuture() *future.Future   { return c.closeFuture }

var _ Channel = (*TLS)(nil)
