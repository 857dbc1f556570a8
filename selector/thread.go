package selector

import (
	"sync"
	"sync/atomic"

	"github.com/nabbar/snio/logger"
	"github.com/nabbar/snio/metrics"

	"golang.org/x/sys/unix"
)

const maxEvents = 256

// Thread is one selector-per-role goroutine: an epoll instance, an MPSC command
// queue, a "commands pending" flag, and (RoleWrite only) a rearm set (spec §3
// "SelectorThread role ... owns a selector, an MPSC command queue, a pending flag,
// and (WRITE only) a concurrent set of keys to rearm for OP_WRITE").
type Thread struct {
	role Role
	epfd int
	wake int // eventfd used as the self-pipe-trick wakeup, registered in the epoll set

	cmdMu   sync.Mutex
	cmdQ    []func()
	pending atomic.Bool

	rearmMu sync.Mutex
	rearm   map[int]*Key

	keys map[int]*Key

	closed atomic.Bool
	done   chan struct{}

	log logger.Logger
}

// NewThread creates one role's epoll instance and its wakeup eventfd.
func NewThread(role Role) (*Thread, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, err
	}
	wfd, err := unix.Eventfd(0, unix.EFD_CLOEXEC|unix.EFD_NONBLOCK)
	if err != nil {
		_ = unix.Close(epfd)
		return nil, err
	}
	t := &Thread{
		role: role,
		epfd: epfd,
		wake: wfd,
		keys: make(map[int]*Key),
		done: make(chan struct{}),
		log:  logger.New("selector." + role.String()),
	}
	if role == RoleWrite {
		t.rearm = make(map[int]*Key)
	}
	ev := unix.EpollEvent{Events: unix.EPOLLIN, Fd: int32(wfd)}
	if err := unix.EpollCtl(epfd, unix.EPOLL_CTL_ADD, wfd, &ev); err != nil {
		_ = unix.Close(wfd)
		_ = unix.Close(epfd)
		return nil, err
	}
	return t, nil
}

// Submit enqueues cmd to run exclusively on this thread's own goroutine, per spec
// §4.3's command contract ("a closure run exclusively on the owning selector thread
// ... blocking primitives inside a command are a bug"). Safe to call from any
// goroutine.
func (t *Thread) Submit(cmd func()) {
	t.cmdMu.Lock()
	t.cmdQ = append(t.cmdQ, cmd)
	t.cmdMu.Unlock()
	if t.pending.CompareAndSwap(false, true) {
		t.wakeup()
	}
}

func (t *Thread) wakeup() {
	var buf [8]byte
	buf[7] = 1
	_, _ = unix.Write(t.wake, buf[:])
}

func (t *Thread) drainWake() {
	var buf [8]byte
	for {
		_, err := unix.Read(t.wake, buf[:])
		if err != nil {
			return
		}
	}
}

func (t *Thread) drainCommands() {
	t.cmdMu.Lock()
	q := t.cmdQ
	t.cmdQ = nil
	t.cmdMu.Unlock()
	t.pending.Store(false)
	for _, cmd := range q {
		cmd()
	}
}

// drainRearm ORs EPOLLOUT back into every key queued by RearmWrite (spec §4.3 step 3,
// "WRITE role only: key maintenance"). RoleWrite only; no-op otherwise.
func (t *Thread) drainRearm() {
	if t.rearm == nil {
		return
	}
	t.rearmMu.Lock()
	pending := t.rearm
	t.rearm = make(map[int]*Key)
	t.rearmMu.Unlock()
	for fd, k := range pending {
		if k.Canceled() {
			continue
		}
		ev := unix.EpollEvent{Events: unix.EPOLLOUT, Fd: int32(fd)}
		_ = unix.EpollCtl(t.epfd, unix.EPOLL_CTL_MOD, fd, &ev)
	}
}

// RearmWrite requests that fd's key have OP_WRITE ORed back into its interest set.
// Called by any goroutine (spec §4.3 "wakeupWriter"); only the WRITE thread itself
// ever touches interestOps.
func (t *Thread) RearmWrite(k *Key) {
	if t.rearm == nil {
		return
	}
	t.rearmMu.Lock()
	t.rearm[k.fd] = k
	t.rearmMu.Unlock()
	t.wakeup()
}

// DisableWriteNow clears k's OP_WRITE interest immediately. Must be called only from
// within a ProcHandler callback running on this very Thread's own Loop goroutine
// (e.g. from OnWrite, spec §4.5.1 "if chnIn.remaining() is zero, disable OP_WRITE on
// the write key"); calling it from any other goroutine races the epoll fd.
func (t *Thread) DisableWriteNow(k *Key) {
	if t.role != RoleWrite || k.Canceled() {
		return
	}
	ev := unix.EpollEvent{Events: 0, Fd: int32(k.fd)}
	_ = unix.EpollCtl(t.epfd, unix.EPOLL_CTL_MOD, k.fd, &ev)
}

// ArmReadNow switches k from its connect-pending OP_WRITE interest to plain OP_READ.
// Must be called only from within OnConnect, which always runs on this Thread's own
// Loop goroutine (spec §4.3 event 2: "on success, clears OP_CONNECT, sets OP_READ").
func (t *Thread) ArmReadNow(k *Key) {
	if t.role != RoleRead || k.Canceled() {
		return
	}
	ev := unix.EpollEvent{Events: unix.EPOLLIN, Fd: int32(k.fd)}
	_ = unix.EpollCtl(t.epfd, unix.EPOLL_CTL_MOD, k.fd, &ev)
}

// Register submits a command that adds fd to this thread's epoll set under the
// thread's role interest and stores k, then invokes proc.OnRegistered (or
// acceptor.OnAccept's registration path) on this thread.
func (t *Thread) Register(k *Key) {
	t.Submit(func() {
		if t.closed.Load() {
			if k.proc != nil {
				k.proc.OnRegistered(nil, nil)
			}
			return
		}
		var events uint32
		switch t.role {
		case RoleAccept:
			events = unix.EPOLLIN
		case RoleRead:
			if k.connect {
				events = unix.EPOLLOUT
			} else {
				events = unix.EPOLLIN
			}
		case RoleWrite:
			events = unix.EPOLLOUT
		}
		ev := unix.EpollEvent{Events: events, Fd: int32(k.fd)}
		if err := unix.EpollCtl(t.epfd, unix.EPOLL_CTL_ADD, k.fd, &ev); err != nil {
			t.log.WithError(err).Error("registration failed")
			if k.proc != nil {
				k.proc.OnRegistered(nil, nil)
			}
			return
		}
		t.keys[k.fd] = k
		metrics.KeysRegistered.WithLabelValues(t.role.String()).Inc()
		if k.proc != nil {
			k.proc.OnRegistered(t, k)
		}
	})
}

// Cancel submits a command that removes k from this thread's epoll set, then runs
// done. It does not close k.fd: the fd may still be registered on another role's
// Thread (a TCP connection's READ and WRITE keys share one fd), so the caller alone
// knows when it is safe to close and must do so itself from done.
func (t *Thread) Cancel(k *Key, done func()) {
	t.Submit(func() {
		if k.canceled.CompareAndSwap(false, true) {
			_ = unix.EpollCtl(t.epfd, unix.EPOLL_CTL_DEL, k.fd, nil)
			if _, ok := t.keys[k.fd]; ok {
				metrics.KeysRegistered.WithLabelValues(t.role.String()).Dec()
			}
			delete(t.keys, k.fd)
		}
		if done != nil {
			done()
		}
	})
}

// Loop is the per-thread main loop of spec §4.3: select, drain commands, do role
// maintenance, dispatch ready keys, repeat until closed. Run it on its own goroutine.
func (t *Thread) Loop() {
	events := make([]unix.EpollEvent, maxEvents)
	for {
		n, err := unix.EpollWait(t.epfd, events, -1)
		if t.closed.Load() {
			return
		}
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			t.log.WithError(err).Error("epoll_wait failed")
			continue
		}
		sawWake := false
		for i := 0; i < n; i++ {
			fd := int(events[i].Fd)
			if fd == t.wake {
				sawWake = true
				continue
			}
			t.dispatch(fd, events[i].Events)
		}
		if sawWake {
			t.drainWake()
			t.drainCommands()
		}
		t.drainRearm()
	}
}

func (t *Thread) dispatch(fd int, mask uint32) {
	k, ok := t.keys[fd]
	if !ok || k.Canceled() {
		return
	}
	switch t.role {
	case RoleAccept:
		if k.acceptor != nil {
			k.acceptor.OnAccept()
		}
	case RoleRead:
		if k.connect {
			k.connect = false
			if k.proc != nil {
				k.proc.OnConnect(k)
			}
			return
		}
		if mask&(unix.EPOLLIN|unix.EPOLLHUP|unix.EPOLLERR) != 0 && k.proc != nil {
			k.proc.OnRead(k)
		}
	case RoleWrite:
		if mask&(unix.EPOLLOUT|unix.EPOLLHUP|unix.EPOLLERR) != 0 && k.proc != nil {
			k.proc.OnWrite(k)
		}
	}
}

// Close submits a final command cancelling every still-registered key (invoking
// the owning processor/acceptor's close path via its attachment) before closing the
// epoll and wakeup file descriptors. Idempotent.
func (t *Thread) Close(onKeyClose func(k *Key)) {
	select {
	case <-t.done:
		return
	default:
	}
	t.Submit(func() {
		for _, k := range t.keys {
			k.canceled.Store(true)
			if onKeyClose != nil {
				onKeyClose(k)
			}
		}
		t.keys = make(map[int]*Key)
		t.closed.Store(true)
		close(t.done)
	})
	<-t.done
	_ = unix.Close(t.epfd)
	_ = unix.Close(t.wake)
}

// NewAcceptKey builds a Key bound to an accept-role fd and handler.
func NewAcceptKey(fd int, h AcceptHandler) *Key {
	return &Key{fd: fd, role: RoleAccept, acceptor: h}
}

// NewProcKey builds a Key bound to a read- or write-role fd and handler. connect
// marks a READ-role key as awaiting OP_CONNECT rather than OP_READ.
func NewProcKey(fd int, role Role, h ProcHandler, connect bool) *Key {
	return &Key{fd: fd, role: role, proc: h, connect: connect}
}
