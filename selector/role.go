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

// Package selector is the epoll-backed reactor of spec §4.3: one selector thread per
// role (accept, read, write), an MPSC command queue per thread, and a write-interest
// rearm set. Grounded on golang.org/x/sys/unix, the direct Go analogue of a Java NIO
// Selector; this is the one package in the module that talks to the kernel directly
// instead of wrapping net.Conn, because spec §8's testable properties ("OP_WRITE rearms
// only through wakeupWriter") describe epoll-style readiness polling precisely.
package selector

// Role identifies which of the three responsibilities a Thread serves.
type Role uint8

const (
	RoleAccept Role = iota
	RoleRead
	RoleWrite
)

func (r Role) String() string {
	switch r {
	case RoleAccept:
		return "accept"
	case RoleRead:
		return "read"
	case RoleWrite:
		return "write"
	default:
		return "unknown"
	}
}
