package acceptor_test

import (
	"net"
	"time"

	"github.com/nabbar/snio/acceptor"
	"github.com/nabbar/snio/buffer"
	"github.com/nabbar/snio/bufprovider"
	"github.com/nabbar/snio/codec"
	"github.com/nabbar/snio/config"
	"github.com/nabbar/snio/keyprocessor"
	"github.com/nabbar/snio/selector"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("TCP acceptor", func() {
	It("binds, accepts a connection, and can bind the same port again after closing", func() {
		pool, err := selector.NewPool(2, nil)
		Expect(err).NotTo(HaveOccurred())
		defer pool.Close()

		c := codec.NewShortLength()
		cfg := config.New(config.WithCodec(c))

		factory := func(fd int) (*bufprovider.Provider, *keyprocessor.TCP) {
			pcfg := bufprovider.Config{
				Capacity: 16,
				UseRing:  true,
				PayloadFactory: func() buffer.Payload {
					return buffer.Payload{Buf: make([]byte, 0, 128)}
				},
			}
			provider, perr := bufprovider.NewOwnInput(pcfg, pcfg)
			Expect(perr).NotTo(HaveOccurred())
			return provider, keyprocessor.NewTCP(fd, provider, cfg)
		}

		accepted := make(chan net.Addr, 1)
		a := acceptor.NewTCP(pool, factory, func(remote net.Addr, proc *keyprocessor.TCP, provider *bufprovider.Provider) {
			accepted <- remote
		})

		bindFut := a.Bind("tcp", "127.0.0.1:0")
		Eventually(bindFut.Done(), time.Second).Should(BeClosed())
		Expect(bindFut.Err()).NotTo(HaveOccurred())
		Expect(a.Addr()).NotTo(BeNil())

		conn, derr := net.Dial("tcp", a.Addr().String())
		Expect(derr).NotTo(HaveOccurred())
		defer conn.Close()

		var remote net.Addr
		Eventually(accepted, time.Second).Should(Receive(&remote))
		Expect(remote).NotTo(BeNil())

		Expect(a.Close()).To(Succeed())
		Eventually(a.CloseFuture().Done(), time.Second).Should(BeClosed())

		second := acceptor.NewTCP(pool, factory, func(net.Addr, *keyprocessor.TCP, *bufprovider.Provider) {})
		secondBind := second.Bind("tcp", a.Addr().String())
		Eventually(secondBind.Done(), time.Second).Should(BeClosed())
		Expect(secondBind.Err()).NotTo(HaveOccurred())
		Expect(second.Close()).To(Succeed())
		Eventually(second.CloseFuture().Done(), time.Second).Should(BeClosed())
	})
})
