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
	"sync"
	"time"

	"github.com/nabbar/snio/buffer"
	"github.com/nabbar/snio/bufprovider"
	"github.com/nabbar/snio/config"
	"github.com/nabbar/snio/errors"
	"github.com/nabbar/snio/future"
	"github.com/nabbar/snio/keyprocessor"
	"github.com/nabbar/snio/logger"
	"github.com/nabbar/snio/selector"

	"golang.org/x/sys/unix"
)

// connectWait bounds how long Connect's background goroutine waits on the
// processor's ConnectionFuture before giving up on it ever resolving.
const connectWait = 10 * time.Second

// closeWait bounds how long Close's background goroutine waits on the processor's
// CloseFuture.
const closeWait = 5 * time.Second

// TCP is spec §4.6's client-side facade for a plain TCP channel: a thin wrapper over
// a non-blocking socket, a keyprocessor.TCP, and the reactor pool it registers with.
type TCP struct {
	pool           *selector.Pool
	cfg            config.Processor
	outCfg, inCfg  bufprovider.Config

	mu     sync.Mutex
	fd     int
	domain int
	bound  bool

	provider *bufprovider.Provider
	proc     *keyprocessor.TCP

	bindFuture    *future.Future
	connectFuture *future.Future
	closeFuture   *future.Future

	log logger.Logger
}

// NewTCP constructs an unconnected TCP channel routed through pool, with outCfg/inCfg
// describing the own-input BufferProvider pair Connect builds once the socket exists.
func NewTCP(pool *selector.Pool, cfg config.Processor, outCfg, inCfg bufprovider.Config) *TCP {
	return &TCP{
		pool:          pool,
		cfg:           cfg,
		outCfg:        outCfg,
		inCfg:         inCfg,
		fd:            -1,
		bindFuture:    future.New(),
		connectFuture: future.New(),
		closeFuture:   future.New(),
		log:           logger.New("channel.tcp"),
	}
}

// Bind pre-binds the client socket to a local address before Connect.
func (c *TCP) Bind(local config.Server) *future.Future {
	if err := local.Validate(); err != nil {
		c.bindFuture.Complete(err)
		return c.bindFuture
	}
	addr, domain, rerr := resolveTCP(local.Network.String(), local.Address)
	if rerr != nil {
		c.bindFuture.Complete(errors.New(errors.CodeBindFailed, "resolve local address failed", rerr))
		return c.bindFuture
	}
	fd, serr := newNonblockingStream(domain)
	if serr != nil {
		c.bindFuture.Complete(errors.New(errors.CodeBindFailed, "socket() failed", serr))
		return c.bindFuture
	}
	if berr := bindTCP(fd, domain, addr.IP, addr.Port); berr != nil {
		_ = unix.Close(fd)
		c.bindFuture.Complete(errors.New(errors.CodeBindFailed, "bind() failed", berr))
		return c.bindFuture
	}
	c.mu.Lock()
	c.fd, c.domain, c.bound = fd, domain, true
	c.mu.Unlock()
	c.bindFuture.Complete(nil)
	return c.bindFuture
}

// Connect implements spec §4.6's "connect(remote)": resolves remote, opens a socket
// if Bind wasn't called first, builds the own-input BufferProvider and processor, and
// registers the READ key (OP_CONNECT-pending) on the next reactor; OnConnect's success
// hook (wired via SetOnConnected) submits the WRITE key once the handshake finishes.
func (c *TCP) Connect(remote config.Client) *future.Future {
	if err := remote.Validate(); err != nil {
		c.connectFuture.Complete(err)
		return c.connectFuture
	}
	addr, domain, rerr := resolveTCP(remote.Network.String(), remote.Address)
	if rerr != nil {
		c.connectFuture.Complete(errors.New(errors.CodeIOError, "resolve remote address failed", rerr))
		return c.connectFuture
	}

	c.mu.Lock()
	if c.fd < 0 {
		fd, serr := newNonblockingStream(domain)
		if serr != nil {
			c.mu.Unlock()
			c.connectFuture.Complete(errors.New(errors.CodeIOError, "socket() failed", serr))
			return c.connectFuture
		}
		c.fd, c.domain = fd, domain
	}
	fd := c.fd
	c.mu.Unlock()

	provider, perr := bufprovider.NewOwnInput(c.outCfg, c.inCfg)
	if perr != nil {
		c.connectFuture.Complete(perr)
		return c.connectFuture
	}
	c.provider = provider
	proc := keyprocessor.NewTCP(fd, provider, c.cfg)
	c.proc = proc

	reactor := c.pool.Next()
	proc.SetOnConnected(func() {
		writeKey := selector.NewProcKey(fd, selector.RoleWrite, proc, false)
		reactor.Write.Register(writeKey)
	})

	if cerr := connectTCP(fd, domain, addr.IP, addr.Port); cerr != nil {
		c.connectFuture.Complete(errors.New(errors.CodeIOError, "connect() failed", cerr))
		return c.connectFuture
	}

	readKey := selector.NewProcKey(fd, selector.RoleRead, proc, true)
	reactor.Read.Register(readKey)

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), connectWait)
		defer cancel()
		c.connectFuture.Complete(proc.ConnectionFuture().Wait(ctx))
	}()
	return c.connectFuture
}

// Close implements spec §5's asynchronous channel close.
func (c *TCP) Close() error {
	if c.proc == nil {
		c.mu.Lock()
		if c.fd >= 0 {
			_ = unix.Close(c.fd)
		}
		c.mu.Unlock()
		c.closeFuture.Complete(nil)
		return nil
	}
	c.mu.Lock()
	fd := c.fd
	c.mu.Unlock()
	err := c.proc.Close(func() error {
		return unix.Close(fd)
	})
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), closeWait)
		defer cancel()
		c.closeFuture.Complete(c.proc.CloseFuture().Wait(ctx))
	}()
	return err
}

func (c *TCP) InputBuffer() buffer.Consumer  { return c.provider.AppIn }
func (c *TCP) OutputBuffer() buffer.Producer { return c.provider.AppOut }

func (c *TCP) BindFuture() *future.Future    { return c.bindFuture }
func (c *TCP) ConnectFuture() *future.Future { return c.connectFuture }
func (c *TCP) CloseFuture() *future.Future   { return c.closeFuture }

var _ Channel = (*TCP)(nil)
