package checksum_test

import (
	"testing"

	"github.com/nabbar/snio/codec"
	"github.com/nabbar/snio/codec/checksum"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func TestChecksum(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "codec/checksum Suite")
}

var _ = Describe("checksum codec", func() {
	It("round trips and detects corruption", func() {
		c := checksum.New(codec.NewShortLength(), nil)
		msg := []byte("checked message")

		out := codec.NewCursor(make([]byte, c.EncodedLen(msg)))
		Expect(c.Put(msg, out)).To(Succeed())

		in := codec.NewCursor(append([]byte(nil), out.Buf...))
		Expect(c.HasNext(in)).To(BeTrue())
		dst := make([]byte, len(msg))
		n, err := c.Get(in, dst)
		Expect(err).NotTo(HaveOccurred())
		Expect(dst[:n]).To(Equal(msg))

		corrupt := codec.NewCursor(append([]byte(nil), out.Buf...))
		corrupt.Buf[len(corrupt.Buf)-1] ^= 0xFF
		_, err = c.Get(corrupt, dst)
		Expect(err).To(MatchError(codec.ErrInvalidEncoding))
	})
})
