package channel_test

import (
	"io"
	"net"
	"os"
	"time"

	"github.com/nabbar/snio/acceptor"
	"github.com/nabbar/snio/buffer"
	"github.com/nabbar/snio/bufprovider"
	"github.com/nabbar/snio/channel"
	"github.com/nabbar/snio/codec"
	"github.com/nabbar/snio/config"
	"github.com/nabbar/snio/keyprocessor"
	"github.com/nabbar/snio/ratelimit"
	"github.com/nabbar/snio/selector"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

// openFDCount reads /proc/self/fd to count this process's open file descriptors, used
// to catch fd leaks across repeated channel connect/close cycles.
func openFDCount() int {
	entries, err := os.ReadDir("/proc/self/fd")
	Expect(err).NotTo(HaveOccurred())
	return len(entries)
}

func newPayloadFactory(size int) func() buffer.Payload {
	return func() buffer.Payload { return buffer.Payload{Buf: make([]byte, 0, size)} }
}

func bufProviderCfg(capacity int64, ring bool, payloadSize int) (out, in bufprovider.Config) {
	cfg := bufprovider.Config{Capacity: capacity, UseRing: ring, PayloadFactory: newPayloadFactory(payloadSize)}
	return cfg, cfg
}

var _ = Describe("TCP channel", func() {
	It("binds, accepts, connects, and exchanges a framed message", func() {
		pool, err := selector.NewPool(2, nil)
		Expect(err).NotTo(HaveOccurred())
		defer pool.Close()

		c := codec.NewShortLength()
		pcfg := config.New(config.WithCodec(c))
		outCfg, inCfg := bufProviderCfg(16, true, 256)

		var serverProvider *bufprovider.Provider
		serverAccepted := make(chan struct{}, 1)
		factory := func(fd int) (*bufprovider.Provider, *keyprocessor.TCP) {
			p, perr := bufprovider.NewOwnInput(outCfg, inCfg)
			Expect(perr).NotTo(HaveOccurred())
			return p, keyprocessor.NewTCP(fd, p, pcfg)
		}
		a := acceptor.NewTCP(pool, factory, func(remote net.Addr, proc *keyprocessor.TCP, provider *bufprovider.Provider) {
			serverProvider = provider
			serverAccepted <- struct{}{}
		})

		bindFut := a.Bind("tcp", "127.0.0.1:0")
		Eventually(bindFut.Done(), time.Second).Should(BeClosed())
		Expect(bindFut.Err()).NotTo(HaveOccurred())

		client := channel.NewTCP(pool, pcfg, outCfg, inCfg)
		addr := a.Addr().(*net.TCPAddr)
		connFut := client.Connect(config.Client{Network: config.NetworkTCP, Address: addr.String()})
		Eventually(connFut.Done(), time.Second).Should(BeClosed())
		Expect(connFut.Err()).NotTo(HaveOccurred())

		Eventually(serverAccepted, time.Second).Should(Receive())

		seq, aerr := client.OutputBuffer().Acquire()
		Expect(aerr).NotTo(HaveOccurred())
		client.OutputBuffer().Get(seq).Set([]byte("hello server"))
		client.OutputBuffer().Release(seq)

		var rseq int64
		Eventually(func() error {
			var err error
			rseq, err = serverProvider.AppIn.Acquire()
			return err
		}, time.Second).Should(Succeed())
		Expect(string(serverProvider.AppIn.Get(rseq).Bytes())).To(Equal("hello server"))
		serverProvider.AppIn.Release(rseq)

		Expect(client.Close()).To(Succeed())
		Eventually(client.CloseFuture().Done(), time.Second).Should(BeClosed())
		Expect(a.Close()).To(Succeed())
		Eventually(a.CloseFuture().Done(), time.Second).Should(BeClosed())
	})

	It("binds the same free port again after closing (bind/close twice)", func() {
		pool, err := selector.NewPool(1, nil)
		Expect(err).NotTo(HaveOccurred())
		defer pool.Close()

		factory := func(fd int) (*bufprovider.Provider, *keyprocessor.TCP) {
			outCfg, inCfg := bufProviderCfg(8, true, 64)
			p, _ := bufprovider.NewOwnInput(outCfg, inCfg)
			return p, keyprocessor.NewTCP(fd, p, config.New(config.WithCodec(codec.NewShortLength())))
		}
		noop := func(net.Addr, *keyprocessor.TCP, *bufprovider.Provider) {}

		first := acceptor.NewTCP(pool, factory, noop)
		bindFut := first.Bind("tcp", "127.0.0.1:0")
		Eventually(bindFut.Done(), time.Second).Should(BeClosed())
		Expect(bindFut.Err()).NotTo(HaveOccurred())
		addr := first.Addr().String()

		Expect(first.Close()).To(Succeed())
		Eventually(first.CloseFuture().Done(), time.Second).Should(BeClosed())

		second := acceptor.NewTCP(pool, factory, noop)
		secondBind := second.Bind("tcp", addr)
		Eventually(secondBind.Done(), time.Second).Should(BeClosed())
		Expect(secondBind.Err()).NotTo(HaveOccurred())

		Expect(second.Close()).To(Succeed())
		Eventually(second.CloseFuture().Done(), time.Second).Should(BeClosed())
	})

	It("surfaces interrupted-by-close on the input buffer when the peer closes mid-read", func() {
		ln, lerr := net.Listen("tcp", "127.0.0.1:0")
		Expect(lerr).NotTo(HaveOccurred())
		defer ln.Close()

		accepted := make(chan net.Conn, 1)
		go func() {
			conn, aerr := ln.Accept()
			if aerr == nil {
				accepted <- conn
			}
		}()

		pool, err := selector.NewPool(1, nil)
		Expect(err).NotTo(HaveOccurred())
		defer pool.Close()

		outCfg, inCfg := bufProviderCfg(8, true, 64)
		pcfg := config.New(config.WithCodec(codec.NewShortLength()))
		client := channel.NewTCP(pool, pcfg, outCfg, inCfg)
		connFut := client.Connect(config.Client{Network: config.NetworkTCP, Address: ln.Addr().String()})
		Eventually(connFut.Done(), time.Second).Should(BeClosed())
		Expect(connFut.Err()).NotTo(HaveOccurred())

		var serverConn net.Conn
		Eventually(accepted, time.Second).Should(Receive(&serverConn))

		errCh := make(chan error, 1)
		go func() {
			_, aerr := client.InputBuffer().Acquire()
			errCh <- aerr
		}()

		Expect(serverConn.Close()).To(Succeed())

		var acquireErr error
		Eventually(errCh, time.Second).Should(Receive(&acquireErr))
		Expect(acquireErr).To(Equal(buffer.ErrInterruptedByClose))
		Eventually(client.CloseFuture().Done(), time.Second).Should(BeClosed())
	})

	It("shapes throughput through a configured rate limiter", func() {
		pool, err := selector.NewPool(1, nil)
		Expect(err).NotTo(HaveOccurred())
		defer pool.Close()

		const frameSize = 4096
		const frameOverhead = 64 // short-length header plus headroom
		limiter := ratelimit.New(frameSize+frameOverhead, frameSize+frameOverhead)
		pcfg := config.New(
			config.WithCodec(codec.NewShortLength()),
			config.WithRateLimiter(limiter),
			config.WithSendBufferSize(frameSize+frameOverhead),
		)
		outCfg, inCfg := bufProviderCfg(32, true, frameSize)

		var serverProvider *bufprovider.Provider
		accepted := make(chan struct{}, 1)
		factory := func(fd int) (*bufprovider.Provider, *keyprocessor.TCP) {
			p, _ := bufprovider.NewOwnInput(outCfg, inCfg)
			return p, keyprocessor.NewTCP(fd, p, pcfg)
		}
		a := acceptor.NewTCP(pool, factory, func(remote net.Addr, proc *keyprocessor.TCP, provider *bufprovider.Provider) {
			serverProvider = provider
			accepted <- struct{}{}
		})
		bindFut := a.Bind("tcp", "127.0.0.1:0")
		Eventually(bindFut.Done(), time.Second).Should(BeClosed())

		client := channel.NewTCP(pool, pcfg, outCfg, inCfg)
		addr := a.Addr().(*net.TCPAddr)
		connFut := client.Connect(config.Client{Network: config.NetworkTCP, Address: addr.String()})
		Eventually(connFut.Done(), time.Second).Should(BeClosed())
		Eventually(accepted, time.Second).Should(Receive())

		payload := make([]byte, frameSize)
		const messageCount = 5
		start := time.Now()
		for i := 0; i < messageCount; i++ {
			seq, aerr := client.OutputBuffer().Acquire()
			Expect(aerr).NotTo(HaveOccurred())
			client.OutputBuffer().Get(seq).Set(payload)
			client.OutputBuffer().Release(seq)
		}
		for i := 0; i < messageCount; i++ {
			Eventually(func() error {
				_, err := serverProvider.AppIn.Acquire()
				return err
			}, 5*time.Second).Should(Succeed())
		}
		// 5 frames against a one-frame burst force at least 4 refill waits; comfortably
		// over the 800ms floor even allowing for scheduler jitter.
		Expect(time.Since(start)).To(BeNumerically(">=", 800*time.Millisecond))

		Expect(client.Close()).To(Succeed())
		Expect(a.Close()).To(Succeed())
	})

	It("does not leak the connection's socket fd across repeated connect/close", func() {
		ln, lerr := net.Listen("tcp", "127.0.0.1:0")
		Expect(lerr).NotTo(HaveOccurred())
		defer ln.Close()
		go func() {
			for {
				conn, aerr := ln.Accept()
				if aerr != nil {
					return
				}
				go io.Copy(io.Discard, conn)
			}
		}()

		pool, err := selector.NewPool(1, nil)
		Expect(err).NotTo(HaveOccurred())
		defer pool.Close()

		pcfg := config.New(config.WithCodec(codec.NewShortLength()))
		outCfg, inCfg := bufProviderCfg(8, true, 64)

		const rounds = 50
		before := openFDCount()
		for i := 0; i < rounds; i++ {
			client := channel.NewTCP(pool, pcfg, outCfg, inCfg)
			connFut := client.Connect(config.Client{Network: config.NetworkTCP, Address: ln.Addr().String()})
			Eventually(connFut.Done(), time.Second).Should(BeClosed())
			Expect(connFut.Err()).NotTo(HaveOccurred())
			Expect(client.Close()).To(Succeed())
			Eventually(client.CloseFuture().Done(), time.Second).Should(BeClosed())
		}
		Eventually(openFDCount, 2*time.Second).Should(BeNumerically("<", before+10))
	})
})

var _ = Describe("UDP channel", func() {
	It("does not leak the channel's fd across repeated bind/close", func() {
		pool, err := selector.NewPool(1, nil)
		Expect(err).NotTo(HaveOccurred())
		defer pool.Close()

		pcfg := config.New(config.WithCodec(codec.NewShortLength()))
		outCfg, inCfg := bufProviderCfg(8, true, 64)

		const rounds = 50
		before := openFDCount()
		for i := 0; i < rounds; i++ {
			c := channel.NewUDP(pool, pcfg, outCfg, inCfg)
			bindFut := c.Bind(config.Server{Network: config.NetworkUDP, Address: "127.0.0.1:0"})
			Eventually(bindFut.Done(), time.Second).Should(BeClosed())
			Expect(bindFut.Err()).NotTo(HaveOccurred())
			Expect(c.Close()).To(Succeed())
			Eventually(c.CloseFuture().Done(), time.Second).Should(BeClosed())
		}
		Eventually(openFDCount, 2*time.Second).Should(BeNumerically("<", before+10))
	})
})

var _ = Describe("TLS channel", func() {
	It("echoes framed messages over a handshaked connection", func() {
		serverTLS, clientTLS := selfSignedTLSPair()

		pool, err := selector.NewPool(1, nil)
		Expect(err).NotTo(HaveOccurred())
		defer pool.Close()

		c := codec.NewShortLength()
		pcfg := config.New(config.WithCodec(c))
		outCfg, inCfg := bufProviderCfg(16, true, 2048)

		var serverProvider *bufprovider.Provider
		accepted := make(chan struct{}, 1)
		factory := func(conn net.Conn) (*bufprovider.Provider, *keyprocessor.TLS) {
			p, perr := bufprovider.NewOwnInput(outCfg, inCfg)
			Expect(perr).NotTo(HaveOccurred())
			return p, keyprocessor.NewTLS(conn, serverTLS, true, p, pcfg)
		}
		a := acceptor.NewTLS(pool, factory, func(remote net.Addr, proc *keyprocessor.TLS, provider *bufprovider.Provider) {
			serverProvider = provider
			accepted <- struct{}{}
			go func() {
				for i := 0; i < 512; i++ {
					seq, aerr := provider.AppIn.Acquire()
					if aerr != nil {
						return
					}
					msg := append([]byte(nil), provider.AppIn.Get(seq).Bytes()...)
					provider.AppIn.Release(seq)
					oseq, oerr := provider.AppOut.Acquire()
					if oerr != nil {
						return
					}
					provider.AppOut.Get(oseq).Set(msg)
					provider.AppOut.Release(oseq)
				}
			}()
		})

		bindFut := a.Bind("tcp", "127.0.0.1:0")
		Eventually(bindFut.Done(), time.Second).Should(BeClosed())
		Expect(bindFut.Err()).NotTo(HaveOccurred())

		client := channel.NewTLS(pcfg, clientTLS, outCfg, inCfg)
		connFut := client.Connect(config.Client{Network: config.NetworkTCP, Address: a.Addr().(*net.TCPAddr).String()})
		Eventually(connFut.Done(), 2*time.Second).Should(BeClosed())
		Expect(connFut.Err()).NotTo(HaveOccurred())
		Eventually(accepted, time.Second).Should(Receive())

		frame := make([]byte, 1024)
		for i := 0; i < 512; i++ {
			frame[0] = byte(i)
			seq, aerr := client.OutputBuffer().Acquire()
			Expect(aerr).NotTo(HaveOccurred())
			client.OutputBuffer().Get(seq).Set(frame)
			client.OutputBuffer().Release(seq)

			var rseq int64
			Eventually(func() error {
				var err error
				rseq, err = client.InputBuffer().Acquire()
				return err
			}, 2*time.Second).Should(Succeed())
			Expect(client.InputBuffer().Get(rseq).Bytes()[0]).To(Equal(byte(i)))
			client.InputBuffer().Release(rseq)
		}

		Expect(client.Close()).To(Succeed())
		Eventually(client.CloseFuture().Done(), 2*time.Second).Should(BeClosed())
		Expect(a.Close()).To(Succeed())
		_ = serverProvider
	})
})
