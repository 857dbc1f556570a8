package keyprocessor_test

import (
	"time"

	"github.com/nabbar/snio/buffer"
	"github.com/nabbar/snio/bufprovider"
	"github.com/nabbar/snio/codec"
	"github.com/nabbar/snio/config"
	"github.com/nabbar/snio/keyprocessor"
	"github.com/nabbar/snio/selector"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"golang.org/x/sys/unix"
)

func newProvider(frameLen int) *bufprovider.Provider {
	cfg := bufprovider.Config{
		Capacity: 16,
		UseRing:  true,
		PayloadFactory: func() buffer.Payload {
			return buffer.Payload{Buf: make([]byte, 0, frameLen+64)}
		},
	}
	p, err := bufprovider.NewOwnInput(cfg, cfg)
	Expect(err).NotTo(HaveOccurred())
	return p
}

var _ = Describe("TCP processor", func() {
	It("frames application messages onto the wire and decodes frames off it", func() {
		fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
		Expect(err).NotTo(HaveOccurred())
		peer := fds[1]
		defer unix.Close(peer)
		Expect(unix.SetNonblock(fds[0], true)).To(Succeed())
		Expect(unix.SetNonblock(peer, true)).To(Succeed())

		c := codec.NewShortLength()
		cfg := config.New(config.WithCodec(c))
		provider := newProvider(c.FrameLength())

		proc := keyprocessor.NewTCP(fds[0], provider, cfg)

		pool, err := selector.NewPool(1, nil)
		Expect(err).NotTo(HaveOccurred())
		defer pool.Close()
		reactor := pool.Next()

		readKey := selector.NewProcKey(fds[0], selector.RoleRead, proc, false)
		writeKey := selector.NewProcKey(fds[0], selector.RoleWrite, proc, false)
		reactor.Read.Register(readKey)
		reactor.Write.Register(writeKey)

		Eventually(proc.ConnectionFuture().Done(), time.Second).Should(BeClosed())

		seq, err := provider.AppOut.Acquire()
		Expect(err).NotTo(HaveOccurred())
		provider.AppOut.Get(seq).Set([]byte("ping"))
		provider.AppOut.Release(seq)

		var frame [64]byte
		var n int
		Eventually(func() bool {
			var rerr error
			n, rerr = unix.Read(peer, frame[:])
			return rerr == nil && n > 0
		}, time.Second).Should(BeTrue())

		in := codec.NewCursor(frame[:n])
		Expect(c.HasNext(in)).To(BeTrue())
		dst := make([]byte, c.DecodedLen(in))
		dn, err := c.Get(in, dst)
		Expect(err).NotTo(HaveOccurred())
		Expect(dst[:dn]).To(Equal([]byte("ping")))

		out := codec.NewCursor(make([]byte, 64))
		Expect(c.Put([]byte("pong"), out)).To(Succeed())
		_, err = unix.Write(peer, out.Buf[:out.Pos])
		Expect(err).NotTo(HaveOccurred())

		Eventually(func() int64 { return provider.AppIn.Remaining() }, time.Second).Should(Equal(int64(1)))
		seq, err = provider.AppIn.Acquire()
		Expect(err).NotTo(HaveOccurred())
		Expect(provider.AppIn.Get(seq).Bytes()).To(Equal([]byte("pong")))
	})
})
