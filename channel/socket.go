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
	"net"

	"golang.org/x/sys/unix"
)

// resolveTCP resolves address under network and reports the socket domain it needs.
func resolveTCP(network, address string) (*net.TCPAddr, int, error) {
	addr, err := net.ResolveTCPAddr(network, address)
	if err != nil {
		return nil, 0, err
	}
	domain := unix.AF_INET
	if addr.IP != nil && addr.IP.To4() == nil {
		domain = unix.AF_INET6
	}
	return addr, domain, nil
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

// newNonblockingStream creates a non-blocking SOCK_STREAM socket for domain.
func newNonblockingStream(domain int) (int, error) {
	return unix.Socket(domain, unix.SOCK_STREAM|unix.SOCK_NONBLOCK, 0)
}

func bindTCP(fd, domain int, ip net.IP, port int) error {
	_ = unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
	return unix.Bind(fd, toSockaddr(domain, ip, port))
}

// connectTCP starts a non-blocking connect; EINPROGRESS is the expected outcome, not
// a failure (spec §4.3 event 2 "OP_CONNECT fires ... finishes the socket's connect").
func connectTCP(fd, domain int, ip net.IP, port int) error {
	err := unix.Connect(fd, toSockaddr(domain, ip, port))
	if err != nil && err != unix.EINPROGRESS {
		return err
	}
	return nil
}
