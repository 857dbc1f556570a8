package selector_test

import (
	"time"

	"github.com/nabbar/snio/selector"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"golang.org/x/sys/unix"
)

type recordingProc struct {
	registered chan struct{}
	read       chan struct{}
	write      chan struct{}
}

func newRecordingProc() *recordingProc {
	return &recordingProc{
		registered: make(chan struct{}, 1),
		read:       make(chan struct{}, 1),
		write:      make(chan struct{}, 1),
	}
}

func (p *recordingProc) OnRegistered(t *selector.Thread, k *selector.Key) {
	select {
	case p.registered <- struct{}{}:
	default:
	}
}
func (p *recordingProc) OnConnect(k *selector.Key) {}
func (p *recordingProc) OnRead(k *selector.Key) {
	select {
	case p.read <- struct{}{}:
	default:
	}
}
func (p *recordingProc) OnWrite(k *selector.Key) {
	select {
	case p.write <- struct{}{}:
	default:
	}
}

var _ = Describe("Thread", func() {
	It("dispatches OnRead when a registered fd becomes readable", func() {
		fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
		Expect(err).NotTo(HaveOccurred())
		defer unix.Close(fds[0])
		defer unix.Close(fds[1])

		th, err := selector.NewThread(selector.RoleRead)
		Expect(err).NotTo(HaveOccurred())
		go th.Loop()
		defer th.Close(nil)

		proc := newRecordingProc()
		key := selector.NewProcKey(fds[0], selector.RoleRead, proc, false)
		th.Register(key)

		Eventually(proc.registered, time.Second).Should(Receive())

		_, err = unix.Write(fds[1], []byte("x"))
		Expect(err).NotTo(HaveOccurred())

		Eventually(proc.read, time.Second).Should(Receive())
	})

	It("fires OnWrite on registration and again after RearmWrite", func() {
		fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
		Expect(err).NotTo(HaveOccurred())
		defer unix.Close(fds[0])
		defer unix.Close(fds[1])

		th, err := selector.NewThread(selector.RoleWrite)
		Expect(err).NotTo(HaveOccurred())
		go th.Loop()
		defer th.Close(nil)

		proc := newRecordingProc()
		key := selector.NewProcKey(fds[0], selector.RoleWrite, proc, false)
		th.Register(key)
		Eventually(proc.registered, time.Second).Should(Receive())

		// A write-capable socket is immediately writable; OnWrite should fire once
		// registration applies EPOLLOUT.
		Eventually(proc.write, time.Second).Should(Receive())

		th.RearmWrite(key)
		Eventually(proc.write, time.Second).Should(Receive())
	})
})

var _ = Describe("Pool", func() {
	It("routes successive registrations round robin across reactors", func() {
		pool, err := selector.NewPool(3, nil)
		Expect(err).NotTo(HaveOccurred())
		defer pool.Close()

		first := pool.Next()
		second := pool.Next()
		third := pool.Next()
		fourth := pool.Next()
		Expect(first).NotTo(Equal(second))
		Expect(second).NotTo(Equal(third))
		Expect(fourth).To(Equal(first))
	})
})
