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
	"net"
	"os"
	"sync"

	"github.com/nabbar/snio/buffer"
	"github.com/nabbar/snio/bufprovider"
	"github.com/nabbar/snio/config"
	"github.com/nabbar/snio/errors"
	"github.com/nabbar/snio/future"
	"github.com/nabbar/snio/keyprocessor"
	"github.com/nabbar/snio/logger"
	"github.com/nabbar/snio/selector"

	"golang.org/x/net/ipv4"
	"golang.org/x/sys/unix"
)

// UDP is spec §4.6's bound-datagram facade. Bind is the primary entry point (a UDP
// channel is usually "receive from many peers") and joins the multicast group when the
// local address names one. Connect is optional and fixes the socket's default
// destination (unicast); it does not join a multicast group itself, and a multicast
// remote is accepted only when Bind has already joined a group.
type UDP struct {
	pool          *selector.Pool
	cfg           config.Processor
	outCfg, inCfg bufprovider.Config

	mu        sync.Mutex
	fd        int
	file      *os.File // keeps the dup'd fd alive; never closed except by Close
	group     *ipv4.PacketConn
	groupAddr net.Addr

	provider *bufprovider.Provider
	proc     *keyprocessor.UDP

	bindFuture    *future.Future
	connectFuture *future.Future
	closeFuture   *future.Future

	log logger.Logger
}

// NewUDP constructs an unbound UDP channel.
func NewUDP(pool *selector.Pool, cfg config.Processor, outCfg, inCfg bufprovider.Config) *UDP {
	return &UDP{
		pool:          pool,
		cfg:           cfg,
		outCfg:        outCfg,
		inCfg:         inCfg,
		fd:            -1,
		bindFuture:    future.New(),
		connectFuture: future.New(),
		closeFuture:   future.New(),
		log:           logger.New("channel.udp"),
	}
}

// Bind opens the datagram socket, joins a multicast group via golang.org/x/net/ipv4
// when local.Address names one, and registers the processor on the reactor pool.
func (c *UDP) Bind(local config.Server) *future.Future {
	if err := local.Validate(); err != nil {
		c.bindFuture.Complete(err)
		return c.bindFuture
	}
	addr, rerr := net.ResolveUDPAddr(local.Network.String(), local.Address)
	if rerr != nil {
		c.bindFuture.Complete(errors.New(errors.CodeBindFailed, "resolve local address failed", rerr))
		return c.bindFuture
	}
	conn, lerr := net.ListenUDP(local.Network.String(), addr)
	if lerr != nil {
		c.bindFuture.Complete(errors.New(errors.CodeBindFailed, "listen udp failed", lerr))
		return c.bindFuture
	}

	var group *ipv4.PacketConn
	var groupAddr net.Addr
	if addr.IP != nil && addr.IP.IsMulticast() {
		pc := ipv4.NewPacketConn(conn)
		ga := &net.UDPAddr{IP: addr.IP}
		if jerr := pc.JoinGroup(nil, ga); jerr != nil {
			_ = conn.Close()
			c.bindFuture.Complete(errors.New(errors.CodeBindFailed, "multicast join failed", jerr))
			return c.bindFuture
		}
		group, groupAddr = pc, ga
	}

	fd, file, ferr := extractUDPFD(conn)
	_ = conn.Close()
	if ferr != nil {
		c.bindFuture.Complete(errors.New(errors.CodeBindFailed, "extract fd failed", ferr))
		return c.bindFuture
	}

	provider, perr := bufprovider.NewOwnInput(c.outCfg, c.inCfg)
	if perr != nil {
		_ = file.Close()
		c.bindFuture.Complete(perr)
		return c.bindFuture
	}

	c.mu.Lock()
	c.fd, c.file, c.group, c.groupAddr = fd, file, group, groupAddr
	c.provider = provider
	c.proc = keyprocessor.NewUDP(fd, provider, c.cfg)
	proc := c.proc
	c.mu.Unlock()

	reactor := c.pool.Next()
	reactor.Read.Register(selector.NewProcKey(fd, selector.RoleRead, proc, false))
	reactor.Write.Register(selector.NewProcKey(fd, selector.RoleWrite, proc, false))

	c.bindFuture.Complete(nil)
	return c.bindFuture
}

// Connect fixes the socket's default destination (unicast). It does not join a
// multicast group: a multicast remote fails with a Bug error unless Bind already
// joined a group.
func (c *UDP) Connect(remote config.Client) *future.Future {
	if err := remote.Validate(); err != nil {
		c.connectFuture.Complete(err)
		return c.connectFuture
	}

	c.mu.Lock()
	fd := c.fd
	c.mu.Unlock()
	if fd < 0 {
		bindFut := c.Bind(config.Server{Network: remote.Network, Address: ephemeralAddr(remote.Network)})
		if err := bindFut.Wait(context.Background()); err != nil {
			c.connectFuture.Complete(err)
			return c.connectFuture
		}
		c.mu.Lock()
		fd = c.fd
		c.mu.Unlock()
	}

	addr, domain, rerr := resolveUDP(remote.Network.String(), remote.Address)
	if rerr != nil {
		c.connectFuture.Complete(errors.New(errors.CodeIOError, "resolve remote address failed", rerr))
		return c.connectFuture
	}

	if addr.IP != nil && addr.IP.IsMulticast() {
		c.mu.Lock()
		alreadyJoined := c.group != nil
		c.mu.Unlock()
		if !alreadyJoined {
			c.connectFuture.Complete(errors.Bug("multicast destination requires Bind to join the group first"))
			return c.connectFuture
		}
	} else if cerr := unix.Connect(fd, toSockaddr(domain, addr.IP, addr.Port)); cerr != nil {
		c.connectFuture.Complete(errors.New(errors.CodeIOError, "connect() failed", cerr))
		return c.connectFuture
	}

	c.mu.Lock()
	proc := c.proc
	c.mu.Unlock()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c.connectFuture.Complete(proc.ConnectionFuture().Wait(ctx))
	return c.connectFuture
}

// Close implements spec §5's asynchronous channel close.
func (c *UDP) Close() error {
	c.mu.Lock()
	proc := c.proc
	c.mu.Unlock()
	if proc == nil {
		c.closeFuture.Complete(nil)
		return nil
	}
	c.mu.Lock()
	file := c.file
	c.mu.Unlock()
	err := proc.Close(func() error {
		if file != nil {
			return file.Close()
		}
		return nil
	})
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), closeWait)
		defer cancel()
		c.closeFuture.Complete(proc.CloseFuture().Wait(ctx))
		c.mu.Lock()
		if c.group != nil {
			_ = c.group.LeaveGroup(nil, c.groupAddr)
		}
		c.mu.Unlock()
	}()
	return err
}

func (c *UDP) InputBuffer() buffer.Consumer  { return c.provider.AppIn }
func (c *UDP) OutputBuffer() buffer.Producer { return c.provider.AppOut }

func (c *UDP) BindFuture() *future.Future    { return c.bindFuture }
func (c *UDP) ConnectFuture() *future.Future { return c.connectFuture }
func (c *UDP) CloseFuture() *future.Future   { return c.closeFuture }

var _ Channel = (*UDP)(nil)

// extractUDPFD dups conn's descriptor via File() and switches it to non-blocking
// mode for the reactor; the returned *os.File must be kept alive for the fd's
// lifetime (closing it closes the dup, which is the working fd from here on).
func extractUDPFD(conn *net.UDPConn) (int, *os.File, error) {
	f, err := conn.File()
	if err != nil {
		return -1, nil, err
	}
	fd := int(f.Fd())
	if err := unix.SetNonblock(fd, true); err != nil {
		_ = f.Close()
		return -1, nil, err
	}
	return fd, f, nil
}

func resolveUDP(network, address string) (*net.UDPAddr, int, error) {
	addr, err := net.ResolveUDPAddr(network, address)
	if err != nil {
		return nil, 0, err
	}
	domain := unix.AF_INET
	if addr.IP != nil && addr.IP.To4() == nil {
		domain = unix.AF_INET6
	}
	return addr, domain, nil
}

func ephemeralAddr(n config.Network) string {
	switch n {
	case config.NetworkUDP6:
		return "[::]:0"
	default:
		return "0.0.0.0:0"
	}
}
