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

package acceptor

import (
	"context"
	"net"
	"time"

	"github.com/nabbar/snio/bufprovider"
	"github.com/nabbar/snio/future"
	"github.com/nabbar/snio/keyprocessor"
	"github.com/nabbar/snio/logger"
	"github.com/nabbar/snio/selector"

	"golang.org/x/sys/unix"
)

// ProcessorFactory builds a fresh {provider, processor} pair for one accepted
// connection (spec §4.4 "construct per-connection {codec, limiter, provider} from
// the acceptor's factories").
type ProcessorFactory func(fd int) (*bufprovider.Provider, *keyprocessor.TCP)

// OnAcceptFunc is invoked once a child connection has finished registering (and, for
// TLS, handshaking).
type OnAcceptFunc func(remote net.Addr, proc *keyprocessor.TCP, provider *bufprovider.Provider)

// TCP is spec §4.4's Key Acceptor for plain TCP.
type TCP struct {
	pool    *selector.Pool
	factory ProcessorFactory
	onAccept OnAcceptFunc

	listenFD int
	key      *selector.Key
	addr     net.Addr

	bindFuture  *future.Future
	closeFuture *future.Future

	log logger.Logger
}

// Addr returns the socket's actual bound local address (useful when binding to port
// 0 and letting the kernel choose one, spec §8 scenario 2's "bind to a free port").
func (a *TCP) Addr() net.Addr { return a.addr }

// NewTCP constructs a TCP acceptor routing accepted connections across pool via its
// policy.
func NewTCP(pool *selector.Pool, factory ProcessorFactory, onAccept OnAcceptFunc) *TCP {
	return &TCP{
		pool:        pool,
		factory:     factory,
		onAccept:    onAccept,
		bindFuture:  future.New(),
		closeFuture: future.New(),
		log:         logger.New("acceptor.tcp"),
	}
}

// Bind listens on the caller's goroutine, then submits the registration to the ACCEPT
// thread of the reactor the pool's Policy returns from Next (spec
// §4.4 "Bind: submits a bind command; the ACCEPT thread registers the socket with
// OP_ACCEPT").
func (a *TCP) Bind(network, address string) *future.Future {
	fd, localAddr, err := listen(network, address)
	if err != nil {
		a.bindFuture.Complete(err)
		return a.bindFuture
	}
	a.listenFD = fd
	a.addr = boundAddr(fd, localAddr)
	reactor := a.pool.Next()
	key := selector.NewAcceptKey(fd, a)
	key.Attachment = a
	a.key = key
	reactor.Accept.Register(key)
	// Registration itself cannot fail once bind/listen succeeded; OnAccept only
	// ever runs after Register's command completes.
	a.bindFuture.Complete(nil)
	return a.bindFuture
}

// BindFuture exposes the completion signal set by Bind.
func (a *TCP) BindFuture() *future.Future { return a.bindFuture }

// CloseFuture exposes the completion signal set by Close.
func (a *TCP) CloseFuture() *future.Future { return a.closeFuture }

// OnAccept implements selector.AcceptHandler: runs on the ACCEPT thread when the
// listening socket is readable (spec §4.4 "Accept (ACCEPT thread)").
func (a *TCP) OnAccept() {
	for {
		childFD, sa, err := unix.Accept4(a.listenFD, unix.SOCK_NONBLOCK)
		if err == unix.EAGAIN {
			return
		}
		if err != nil {
			a.log.WithError(err).Error("accept4 failed")
			return
		}
		remote := sockaddrToAddr(sa)
		provider, proc := a.factory(childFD)

		reactor := a.pool.Next()
		readKey := selector.NewProcKey(childFD, selector.RoleRead, proc, false)
		writeKey := selector.NewProcKey(childFD, selector.RoleWrite, proc, false)
		reactor.Read.Register(readKey)
		reactor.Write.Register(writeKey)

		go func(remote net.Addr, proc *keyprocessor.TCP, provider *bufprovider.Provider) {
			defer logger.Recover(a.log, "acceptor.tcp.OnAccept")
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := proc.ConnectionFuture().Wait(ctx); err != nil {
				a.log.WithError(err).Error("accepted connection failed to register")
				_ = proc.Close(nil)
				return
			}
			if a.onAccept != nil {
				a.onAccept(remote, proc, provider)
			}
		}(remote, proc, provider)
	}
}

// Close submits a cancel command for the listening key and completes CloseFuture
// once the ACCEPT thread has processed it (spec §4.4 "Close").
func (a *TCP) Close() error {
	if a.key == nil {
		a.closeFuture.Complete(nil)
		return nil
	}
	reactor := a.pool.Next()
	reactor.Accept.Cancel(a.key, func() {
		_ = unix.Close(a.listenFD)
		a.closeFuture.Complete(nil)
	})
	return nil
}

var _ selector.AcceptHandler = (*TCP)(nil)
