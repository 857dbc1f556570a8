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

package config

import (
	"net"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Network enumerates the host address families the channel facade binds/connects,
// grounded on the shape of nabbar-golib/socket's NetworkProtocol enum.
type Network uint8

const (
	NetworkEmpty Network = iota
	NetworkTCP
	NetworkTCP4
	NetworkTCP6
	NetworkUDP
	NetworkUDP4
	NetworkUDP6
	NetworkUnix
	NetworkUnixGram
)

// String returns the net.Dial/net.Listen network name for n.
func (n Network) String() string {
	switch n {
	case NetworkTCP:
		return "tcp"
	case NetworkTCP4:
		return "tcp4"
	case NetworkTCP6:
		return "tcp6"
	case NetworkUDP:
		return "udp"
	case NetworkUDP4:
		return "udp4"
	case NetworkUDP6:
		return "udp6"
	case NetworkUnix:
		return "unix"
	case NetworkUnixGram:
		return "unixgram"
	default:
		return ""
	}
}

// ParseNetwork parses a net.Dial-style network name into a Network.
func ParseNetwork(s string) Network {
	switch strings.ToLower(s) {
	case "tcp":
		return NetworkTCP
	case "tcp4":
		return NetworkTCP4
	case "tcp6":
		return NetworkTCP6
	case "udp":
		return NetworkUDP
	case "udp4":
		return NetworkUDP4
	case "udp6":
		return NetworkUDP6
	case "unix":
		return NetworkUnix
	case "unixgram":
		return NetworkUnixGram
	default:
		return NetworkEmpty
	}
}

// Client is the address+TLS shape a channel's Connect call consumes, validated with
// struct tags via github.com/go-playground/validator/v10 the way nabbar-golib's
// socket/config tests exercise their Client config.
type Client struct {
	Network Network `validate:"required"`
	Address string  `validate:"required"`
	TLS     TLSConfig
}

// Server is the address+TLS shape a channel's Bind call consumes.
type Server struct {
	Network Network `validate:"required"`
	Address string  `validate:"required"`
	TLS     TLSConfig
}

var validate = validator.New()

func checkAddress(n Network, addr string) error {
	if n == NetworkUnix || n == NetworkUnixGram {
		if addr == "" {
			return errBadAddress
		}
		return nil
	}
	if _, _, err := net.SplitHostPort(addr); err != nil {
		return errBadAddress
	}
	return nil
}

// Validate runs struct-tag validation over c, then network-specific address shape
// checks (host:port for TCP/UDP, non-empty path for Unix sockets).
func (c Client) Validate() error {
	if err := validate.Struct(c); err != nil {
		return err
	}
	return checkAddress(c.Network, c.Address)
}

// Validate runs struct-tag validation over s, then network-specific address shape
// checks.
func (s Server) Validate() error {
	if err := validate.Struct(s); err != nil {
		return err
	}
	return checkAddress(s.Network, s.Address)
}
