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

// Package errors implements the reactor's fatal/non-fatal error taxonomy (spec §7):
// invalid encoding, invalid message, peer closed, local I/O error, interrupted-by-close,
// registration failure, bind failure and bug, each carrying a CodeError, an optional
// parent chain and the call-site trace that created it.
package errors

import (
	"errors"
	"fmt"
	"runtime"
	"strings"
)

// As and Is re-export the standard library's type-assertion helpers so callers of this
// package never need a second import for errors.As / errors.Is.
var (
	As = errors.As
	Is = errors.Is
)

// CodeError classifies an Error the way an HTTP status classifies a response.
type CodeError uint16

const (
	CodeUnknown CodeError = iota
	// CodeInvalidEncoding: a codec's HasNext/Get reported a malformed frame. Fatal for the connection.
	CodeInvalidEncoding
	// CodeInvalidMessage: a codec could not encode an application-supplied buffer. Fatal for the connection.
	CodeInvalidMessage
	// CodePeerClosed: socket read returned negative, or TLS observed CLOSED. Not an error outcome.
	CodePeerClosed
	// CodeIOError: a local I/O error occurred during read or write.
	CodeIOError
	// CodeInterruptedByClose: a buffer wait unblocked because the buffer was closed.
	CodeInterruptedByClose
	// CodeRegistrationFailed: the selector was closed before a key could register.
	CodeRegistrationFailed
	// CodeBindFailed: the listening socket's address was already in use.
	CodeBindFailed
	// CodeBug: an impossible state was reached; fatal to the process.
	CodeBug
)

func (c CodeError) String() string {
	switch c {
	case CodeInvalidEncoding:
		return "invalid encoding"
	case CodeInvalidMessage:
		return "invalid message"
	case CodePeerClosed:
		return "peer closed"
	case CodeIOError:
		return "I/O error"
	case CodeInterruptedByClose:
		return "interrupted by close"
	case CodeRegistrationFailed:
		return "registration failed"
	case CodeBindFailed:
		return "bind failed"
	case CodeBug:
		return "bug"
	default:
		return "unknown error"
	}
}

// Error is the reactor's error interface: a code, a message, a parent chain and the
// runtime.Frame of the call site that created it. Safe for concurrent reads; Add is not
// safe for concurrent use on the same Error.
type Error interface {
	error

	Code() CodeError
	Is(err error) bool
	Unwrap() []error

	// Add appends non-nil parents to this error's chain.
	Add(parent ...error)
	// HasCode reports whether this error or any parent carries code.
	HasCode(code CodeError) bool
}

type ers struct {
	code   CodeError
	msg    string
	parent []error
	frame  runtime.Frame
}

func frame() runtime.Frame {
	pc := make([]uintptr, 1)
	if runtime.Callers(3, pc) < 1 {
		return runtime.Frame{}
	}
	f, _ := runtime.CallersFrames(pc).Next()
	return f
}

// New creates an Error with the given code, message and optional parents.
func New(code CodeError, message string, parent ...error) Error {
	return &ers{code: code, msg: message, parent: nonNil(parent), frame: frame()}
}

// Newf is New with fmt.Sprintf-style message formatting.
func Newf(code CodeError, pattern string, args ...any) Error {
	return &ers{code: code, msg: fmt.Sprintf(pattern, args...), frame: frame()}
}

// Bug creates a CodeBug error; callers should treat it as unrecoverable (spec §7).
func Bug(message string, args ...any) Error {
	return &ers{code: CodeBug, msg: fmt.Sprintf(message, args...), frame: frame()}
}

func nonNil(in []error) []error {
	out := make([]error, 0, len(in))
	for _, e := range in {
		if e != nil {
			out = append(out, e)
		}
	}
	return out
}

func (e *ers) Error() string {
	var b strings.Builder
	b.WriteString(e.code.String())
	if e.msg != "" {
		b.WriteString(": ")
		b.WriteString(e.msg)
	}
	for _, p := range e.parent {
		b.WriteString("; ")
		b.WriteString(p.Error())
	}
	return b.String()
}

func (e *ers) Code() CodeError { return e.code }

func (e *ers) Unwrap() []error { return e.parent }

func (e *ers) Add(parent ...error) {
	e.parent = append(e.parent, nonNil(parent)...)
}

func (e *ers) HasCode(code CodeError) bool {
	if e.code == code {
		return true
	}
	for _, p := range e.parent {
		var pe Error
		if As(p, &pe) && pe.HasCode(code) {
			return true
		}
	}
	return false
}

func (e *ers) Is(err error) bool {
	var oe *ers
	if !As(err, &oe) {
		return false
	}
	return e.code == oe.code && e.msg == oe.msg
}

// Frame returns the call site that created err, if err is an Error.
func Frame(err error) (runtime.Frame, bool) {
	var e *ers
	if As(err, &e) {
		return e.frame, true
	}
	return runtime.Frame{}, false
}
