package deflate_test

import (
	"testing"

	"github.com/nabbar/snio/codec"
	"github.com/nabbar/snio/codec/deflate"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func TestDeflate(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "codec/deflate Suite")
}

var _ = Describe("deflate codec", func() {
	It("round trips a compressible message", func() {
		c := deflate.New(0)
		msg := []byte("aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")

		out := codec.NewCursor(make([]byte, c.EncodedLen(msg)))
		Expect(c.Put(msg, out)).To(Succeed())
		Expect(out.Pos).To(BeNumerically("<", len(msg)))

		in := codec.NewCursor(out.Buf)
		Expect(c.HasNext(in)).To(BeTrue())
		dst := make([]byte, c.DecodedLen(in))
		n, err := c.Get(in, dst)
		Expect(err).NotTo(HaveOccurred())
		Expect(dst[:n]).To(Equal(msg))
	})
})
