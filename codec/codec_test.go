package codec_test

import (
	"github.com/nabbar/snio/codec"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("reference codecs", func() {
	for _, tc := range []struct {
		name string
		new  func() codec.Codec
	}{
		{"short-length", func() codec.Codec { return codec.NewShortLength() }},
		{"int-length", func() codec.Codec { return codec.NewIntLength() }},
	} {
		tc := tc
		Context(tc.name, func() {
			It("round trips get(put(m)) == m", func() {
				c := tc.new()
				msg := []byte("hello, reactor")
				out := codec.NewCursor(make([]byte, c.EncodedLen(msg)))
				Expect(c.Put(msg, out)).To(Succeed())

				in := codec.NewCursor(out.Buf)
				Expect(c.HasNext(in)).To(BeTrue())
				Expect(c.DecodedLen(in)).To(Equal(len(msg)))

				dst := make([]byte, len(msg))
				n, err := c.Get(in, dst)
				Expect(err).NotTo(HaveOccurred())
				Expect(dst[:n]).To(Equal(msg))
				Expect(in.Remaining()).To(Equal(0))
			})

			It("rejects a zero-length body as invalid", func() {
				c := tc.new()
				Expect(c.IsValid(nil)).To(BeFalse())
				Expect(c.IsValid([]byte{})).To(BeFalse())
			})

			It("rejects a body one byte over MaxBodyLen", func() {
				c := tc.new()
				big := make([]byte, c.MaxBodyLen()+1)
				Expect(c.IsValid(big)).To(BeFalse())
			})

			It("HasNext is pure and leaves position unchanged", func() {
				c := tc.new()
				msg := []byte("partial")
				buf := make([]byte, c.EncodedLen(msg))
				Expect(c.Put(msg, codec.NewCursor(buf))).To(Succeed())

				in := codec.NewCursor(buf[:c.FrameLength()]) // header only, no body
				before := in.Pos
				Expect(c.HasNext(in)).To(BeFalse())
				Expect(in.Pos).To(Equal(before))
			})
		})
	}
})
