package lz4_test

import (
	"bytes"
	"testing"

	"github.com/nabbar/snio/codec"
	"github.com/nabbar/snio/codec/lz4"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func TestLZ4(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "codec/lz4 Suite")
}

var _ = Describe("lz4 codec", func() {
	It("round trips a compressible message", func() {
		c := lz4.New()
		msg := bytes.Repeat([]byte("lz4-frame-payload-"), 50)

		out := codec.NewCursor(make([]byte, c.EncodedLen(msg)))
		Expect(c.Put(msg, out)).To(Succeed())

		in := codec.NewCursor(out.Buf)
		Expect(c.HasNext(in)).To(BeTrue())
		dst := make([]byte, c.DecodedLen(in))
		n, err := c.Get(in, dst)
		Expect(err).NotTo(HaveOccurred())
		Expect(dst[:n]).To(Equal(msg))
	})
})
