package config_test

import (
	"testing"

	"github.com/nabbar/snio/codec"
	"github.com/nabbar/snio/config"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func TestConfig(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "config Suite")
}

var _ = Describe("Processor", func() {
	It("applies defaults and options", func() {
		p := config.New(config.WithCodec(codec.NewShortLength()), config.WithBufferCapacity(512))
		Expect(p.BufferCapacity).To(Equal(int64(512)))
		Expect(p.SendBufferSize).To(Equal(0xFFFF))
		Expect(p.Validate()).To(Succeed())
	})

	It("rejects a missing codec", func() {
		p := config.New()
		Expect(p.Validate()).To(HaveOccurred())
	})

	It("rejects a non-power-of-two capacity", func() {
		p := config.New(config.WithCodec(codec.NewShortLength()), config.WithBufferCapacity(3))
		Expect(p.Validate()).To(HaveOccurred())
	})
})

var _ = Describe("ScratchSize", func() {
	It("rounds up to the next power of two, at least frameLength", func() {
		Expect(config.ScratchSize(100, 8)).To(Equal(128))
		Expect(config.ScratchSize(4, 16)).To(Equal(16))
	})
})

var _ = Describe("Client", func() {
	It("validates a tcp host:port address", func() {
		c := config.Client{Network: config.NetworkTCP, Address: "127.0.0.1:9000"}
		Expect(c.Validate()).To(Succeed())
	})

	It("rejects a tcp address without a port", func() {
		c := config.Client{Network: config.NetworkTCP, Address: "127.0.0.1"}
		Expect(c.Validate()).To(HaveOccurred())
	})

	It("accepts a unix socket path", func() {
		c := config.Client{Network: config.NetworkUnix, Address: "/tmp/snio.sock"}
		Expect(c.Validate()).To(Succeed())
	})
})
