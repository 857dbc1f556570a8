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
	"os"
	"time"

	"github.com/nabbar/snio/bufprovider"
	"github.com/nabbar/snio/future"
	"github.com/nabbar/snio/keyprocessor"
	"github.com/nabbar/snio/logger"
	"github.com/nabbar/snio/selector"

	"golang.org/x/sys/unix"
)

// TLSProcessorFactory builds a fresh {provider, processor} pair for one accepted TLS
// connection over conn (already a raw, not-yet-wrapped net.Conn).
type TLSProcessorFactory func(conn net.Conn) (*bufprovider.Provider, *keyprocessor.TLS)

// OnTLSAcceptFunc is invoked once a child TLS connection has finished its handshake
// (spec §4.4 "for TLS this returns only after handshake").
type OnTLSAcceptFunc func(remote net.Addr, proc *keyprocessor.TLS, provider *bufprovider.Provider)

// TLS is spec §4.4's Key Acceptor for a TLS server socket. It shares the plain TCP
// acceptor's bind/listen/accept4 loop on the ACCEPT thread, but each accepted
// connection is handed to keyprocessor.TLS's dedicated goroutines (SPEC_FULL §4.5.G)
// instead of being registered on the reactor's READ/WRITE threads.
type TLS struct {
	pool     *selector.Pool
	factory  TLSProcessorFactory
	onAccept OnTLSAcceptFunc

	listenFD int
	key      *selector.Key
	addr     net.Addr

	bindFuture  *future.Future
	closeFuture *future.Future

	log logger.Logger
}

// Addr returns the socket's actual bound local address (useful when binding to port
// 0 and letting the kernel choose one).
func (a *TLS) Addr() net.Addr { return a.addr }

// NewTLS constructs a TLS acceptor.
func NewTLS(pool *selector.Pool, factory TLSProcessorFactory, onAccept OnTLSAcceptFunc) *TLS {
	return &TLS{
		pool:        pool,
		factory:     factory,
		onAccept:    onAccept,
		bindFuture:  future.New(),
		closeFuture: future.New(),
		log:         logger.New("acceptor.tls"),
	}
}

// Bind opens and registers the listening socket on the ACCEPT thread.
func (a *TLS) Bind(network, address string) *future.Future {
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
	a.bindFuture.Complete(nil)
	return a.bindFuture
}

// BindFuture exposes the completion signal set by Bind.
func (a *TLS) BindFuture() *future.Future { return a.bindFuture }

// CloseFuture exposes the completion signal set by Close.
func (a *TLS) CloseFuture() *future.Future { return a.closeFuture }

// OnAccept implements selector.AcceptHandler.
func (a *TLS) OnAccept() {
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

		// TLS connections run their own handshake + read/write goroutines, not the
		// reactor threads, so the fd must be blocking from crypto/tls's point of
		// view; clear O_NONBLOCK before handing it to net.FileConn.
		_ = unix.SetNonblock(childFD, false)
		f := os.NewFile(uintptr(childFD), "")
		conn, cerr := net.FileConn(f)
		_ = f.Close()
		if cerr != nil {
			a.log.WithError(cerr).Error("failed to adopt accepted fd as net.Conn")
			_ = unix.Close(childFD)
			continue
		}

		provider, proc := a.factory(conn)
		proc.Start()

		go func(remote net.Addr, proc *keyprocessor.TLS, provider *bufprovider.Provider) {
			defer logger.Recover(a.log, "acceptor.tls.OnAccept")
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := proc.ConnectionFuture().Wait(ctx); err != nil {
				a.log.WithError(err).Error("accepted TLS connection failed to handshake")
				_ = proc.Close(nil)
				return
			}
			if a.onAccept != nil {
				a.onAccept(remote, proc, provider)
			}
		}(remote, proc, provider)
	}
}

// Close submits a cancel command for the listening key.
func (a *TLS) Close() error {
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

var _ selector.AcceptHandler = (*TLS)(nil)
