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

// Package acceptor implements the Key Acceptor of spec §4.4: server-socket lifecycle
// (bind, accept, close) driving the selector pool's ACCEPT thread.
package acceptor

import (
	"net"

	"github.com/nabbar/snio/errors"

	"golang.org/x/sys/unix"
)

// listen opens a non-blocking, reusable TCP listening socket bound to addr.
func listen(network, addr string) (fd int, localAddr net.Addr, err error) {
	tcpAddr, rerr := net.ResolveTCPAddr(network, addr)
	if rerr != nil {
		return -1, nil, errors.New(errors.CodeBindFailed, "resolve address failed", rerr)
	}
	domain := unix.AF_INET
	if tcpAddr.IP != nil && tcpAddr.IP.To4() == nil {
		domain = unix.AF_INET6
	}
	fd, serr := unix.Socket(domain, unix.SOCK_STREAM|unix.SOCK_NONBLOCK, 0)
	if serr != nil {
		return -1, nil, errors.New(errors.CodeBindFailed, "socket() failed", serr)
	}
	_ = unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)

	sa := toSockaddr(domain, tcpAddr.IP, tcpAddr.Port)
	if err := unix.Bind(fd, sa); err != nil {
		_ = unix.Close(fd)
		return -1, nil, errors.New(errors.CodeBindFailed, "bind() failed", err)
	}
	if err := unix.Listen(fd, 1024); err != nil {
		_ = unix.Close(fd)
		return -1, nil, errors.New(errors.CodeBindFailed, "listen() failed", err)
	}
	return fd, tcpAddr, nil
}

func toSockaddr(domain int, ip net.IP, port int) unix.Sockaddr {
	if domain == unix.AF_INET6 {
		var a [16]byte
		copy(a[:], ip.To16())
		return &unix.SockaddrInet6{Port: port, Addr: a}
	}
	var a [4]byte
	if ip4 := ip.To4(); ip4 != nil {
		copy(a[:], ip4)
	}
	return &unix.SockaddrInet4{Port: port, Addr: a}
}

// boundAddr resolves the actual local address a listening fd ended up bound to,
// filling in the kernel-chosen port when the caller asked for port 0.
func boundAddr(fd int, requested net.Addr) net.Addr {
	sa, err := unix.Getsockname(fd)
	if err != nil {
		return requested
	}
	if addr := sockaddrToAddr(sa); addr != nil {
		return addr
	}
	return requested
}

// sockaddrToAddr converts an accepted connection's unix.Sockaddr into a net.Addr for
// the onAccept callback.
func sockaddrToAddr(sa unix.Sockaddr) net.Addr {
	switch v := sa.(type) {
	case *unix.SockaddrInet4:
		return &net.TCPAddr{IP: net.IP(v.Addr[:]), Port: v.Port}
	case *unix.SockaddrInet6:
		return &net.TCPAddr{IP: net.IP(v.Addr[:]), Port: v.Port}
	default:
		return nil
	}
}
