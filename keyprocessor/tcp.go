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

package keyprocessor

import (
	"context"

	"github.com/nabbar/snio/bufprovider"
	"github.com/nabbar/snio/codec"
	"github.com/nabbar/snio/config"
	"github.com/nabbar/snio/errors"
	"github.com/nabbar/snio/metrics"
	"github.com/nabbar/snio/selector"

	"golang.org/x/sys/unix"
)

// TCP implements spec §4.5.1: plain-TCP read and write paths over a non-blocking
// socket fd driven by the reactor's READ and WRITE threads.
type TCP struct {
	*base

	recv *codec.Cursor
	send *codec.Cursor

	freeRecv func()
	freeSend func()

	pendingSeq int64
	hasPending bool
}

// NewTCP constructs a TCP processor over fd, ready for registration on a reactor.
func NewTCP(fd int, provider *bufprovider.Provider, cfg config.Processor) *TCP {
	recvSize := config.ScratchSize(cfg.ReceiveBufferSize, cfg.Codec.FrameLength())
	sendSize := config.ScratchSize(cfg.SendBufferSize, cfg.Codec.FrameLength())
	b := newBase(fd, provider, cfg, "keyprocessor.tcp")
	recvBuf, freeRecv := scratchOrFallback(cfg, recvSize, b.log)
	sendBuf, freeSend := scratchOrFallback(cfg, sendSize, b.log)
	return &TCP{
		base:     b,
		recv:     codec.NewCursor(recvBuf),
		send:     codec.NewCursor(sendBuf),
		freeRecv: freeRecv,
		freeSend: freeSend,
	}
}

// OnConnect is only relevant to connecting clients; TCP finishes connect() on the
// READ thread then lets the channel register the WRITE side (spec §4.5 event 2).
func (p *TCP) OnConnect(k *selector.Key) {
	if err := finishConnect(p.fd); err != nil {
		p.connectRead.Complete(err)
		return
	}
	if p.readThr != nil {
		p.readThr.ArmReadNow(k)
	}
	p.connectRead.Complete(nil)
	if p.onConnected != nil {
		p.onConnected()
	}
}

// OnRead implements spec §4.5.1's read path.
func (p *TCP) OnRead(k *selector.Key) {
	n, err := unix.Read(p.fd, p.recv.Buf[p.recv.Pos:p.recv.Lim])
	if err == unix.EAGAIN {
		return
	}
	if err != nil || n == 0 {
		p.onPeerClosed()
		return
	}
	p.recv.Pos += n
	metrics.BytesRead.WithLabelValues("tcp").Add(float64(n))
	_ = p.limiter.Consume(context.Background(), n)

	p.recv.Flip()
	for p.codec.HasNext(p.recv) {
		seq, aerr := p.provider.ChnOut.Acquire()
		if aerr != nil {
			break
		}
		slot := p.provider.ChnOut.Get(seq)
		if cap(slot.Buf) < p.codec.DecodedLen(p.recv) {
			slot.Buf = make([]byte, p.codec.DecodedLen(p.recv))
		} else {
			slot.Buf = slot.Buf[:cap(slot.Buf)]
		}
		dn, derr := p.codec.Get(p.recv, slot.Buf)
		if derr != nil {
			p.provider.ChnOut.Release(seq)
			p.fail(errors.New(errors.CodeInvalidEncoding, "malformed frame", derr))
			return
		}
		slot.Len = dn
		metrics.FramesDecoded.WithLabelValues("tcp").Inc()
		p.provider.ChnOut.Attach(seq, p.provider.AppOut)
		p.provider.ChnOut.Release(seq)
	}
	metrics.BufferOccupancy.WithLabelValues("chnOut").Set(float64(p.provider.ChnOut.Remaining()))
	if p.recv.Remaining() > 0 {
		p.recv.Compact()
	} else {
		p.recv.Clear()
	}
}

// OnWrite implements spec §4.5.1's write path.
func (p *TCP) OnWrite(k *selector.Key) {
	for p.send.Remaining() > 0 && !p.hasPending {
		seq, aerr := p.provider.ChnIn.Acquire()
		if aerr != nil {
			break
		}
		msg := p.provider.ChnIn.Get(seq).Bytes()
		need := p.codec.EncodedLen(msg)
		if need > len(p.send.Buf) {
			p.provider.ChnIn.Release(seq)
			p.fail(errors.New(errors.CodeInvalidMessage, "message too large for configured send buffer"))
			return
		}
		if need > p.send.Remaining() {
			p.pendingSeq = seq
			p.hasPending = true
			break
		}
		if err := p.codec.Put(msg, p.send); err != nil {
			p.provider.ChnIn.Release(seq)
			p.fail(errors.New(errors.CodeInvalidMessage, "codec rejected message", err))
			return
		}
		metrics.FramesEncoded.WithLabelValues("tcp").Inc()
		p.provider.ChnIn.Release(seq)
	}
	if p.hasPending {
		msg := p.provider.ChnIn.Get(p.pendingSeq).Bytes()
		need := p.codec.EncodedLen(msg)
		if need <= p.send.Remaining() {
			if err := p.codec.Put(msg, p.send); err == nil {
				p.provider.ChnIn.Release(p.pendingSeq)
				p.hasPending = false
			}
		}
	}

	p.send.Flip()
	if p.send.Remaining() > 0 {
		_ = p.limiter.Consume(context.Background(), p.send.Remaining())
		n, err := unix.Write(p.fd, p.send.Bytes())
		if err != nil && err != unix.EAGAIN {
			p.fail(errors.New(errors.CodeIOError, "write failed", err))
			return
		}
		if n > 0 {
			p.send.Pos += n
			metrics.BytesWritten.WithLabelValues("tcp").Add(float64(n))
		}
	}
	if p.send.Remaining() > 0 {
		p.send.Compact()
		return
	}
	p.send.Clear()
	metrics.BufferOccupancy.WithLabelValues("chnIn").Set(float64(p.provider.ChnIn.Remaining()))
	if p.provider.ChnIn.Remaining() == 0 && !p.hasPending {
		if p.writeThr != nil {
			p.writeThr.DisableWriteNow(k)
		}
	}
}

func (p *TCP) onPeerClosed() {
	p.closedInternally.Store(true)
	_ = p.Close(nil)
}

func (p *TCP) fail(cause error) {
	p.log.WithError(cause).Error("tcp processor fatal error")
	metrics.ProcessorErrors.WithLabelValues("tcp", codeOf(cause).String()).Inc()
	_ = p.Close(nil)
}

// Close runs spec §4.5 lifecycle event 3: TCP runs the user close task immediately.
func (p *TCP) Close(userTask func() error) error {
	if !p.closed.CompareAndSwap(false, true) {
		return nil
	}
	p.shutdownCommon(userTask)
	_ = p.codec.Close()
	p.freeRecv()
	p.freeSend()
	if userTask != nil {
		if err := userTask(); err != nil {
			p.shutdown.Complete(err)
			return err
		}
	}
	p.shutdown.Complete(nil)
	return nil
}

// finishConnect completes a non-blocking connect() by checking SO_ERROR.
func finishConnect(fd int) error {
	errno, gerr := unix.GetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_ERROR)
	if gerr != nil {
		return gerr
	}
	if errno != 0 {
		return unix.Errno(errno)
	}
	return nil
}

var _ selector.ProcHandler = (*TCP)(nil)
