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

// Package logger is the reactor's structured logging facade over logrus. The core never
// panics or prints on its own (spec §7); reactor threads, processors and acceptors log
// lifecycle and error events through this package instead.
package logger

import (
	"sync"

	"github.com/sirupsen/logrus"
)

// Logger is the small subset of logging surface the reactor components need.
type Logger interface {
	WithField(key string, val any) Logger
	WithFields(fields Fields) Logger
	WithError(err error) Logger

	Debug(args ...any)
	Info(args ...any)
	Warn(args ...any)
	Error(args ...any)
}

// Fields is a set of structured key/value pairs attached to a log entry.
type Fields map[string]any

type entry struct {
	e *logrus.Entry
}

func (l *entry) WithField(key string, val any) Logger {
	return &entry{e: l.e.WithField(key, val)}
}

func (l *entry) WithFields(fields Fields) Logger {
	return &entry{e: l.e.WithFields(logrus.Fields(fields))}
}

func (l *entry) WithError(err error) Logger {
	return &entry{e: l.e.WithError(err)}
}

func (l *entry) Debug(args ...any) { l.e.Debug(args...) }
func (l *entry) Info(args ...any)  { l.e.Info(args...) }
func (l *entry) Warn(args ...any)  { l.e.Warn(args...) }
func (l *entry) Error(args ...any) { l.e.Error(args...) }

var (
	mu   sync.RWMutex
	base = logrus.New()
)

// SetLevel sets the minimum level the default logger emits.
func SetLevel(lvl Level) {
	mu.Lock()
	defer mu.Unlock()
	base.SetLevel(logrus.Level(lvl))
}

// SetOutput is the escape hatch used by tests to capture log output.
func SetOutput(w interface{ Write([]byte) (int, error) }) {
	mu.Lock()
	defer mu.Unlock()
	base.SetOutput(w)
}

// New returns a Logger scoped to component, the way every reactor/processor/acceptor
// instance tags its log lines so multi-reactor deployments can be told apart.
func New(component string) Logger {
	mu.RLock()
	defer mu.RUnlock()
	return &entry{e: base.WithField("component", component)}
}

// Recover must be deferred by every goroutine that runs user-supplied callbacks
// (the acceptors' per-connection onAccept goroutines, the TLS processor's pumps). It logs a recovered panic instead
// of letting it kill the process, per spec §7's "forwarded to standard error without
// killing the thread".
func Recover(log Logger, where string) {
	if r := recover(); r != nil {
		log.WithField("where", where).WithField("panic", r).Error("recovered panic in user callback")
	}
}
