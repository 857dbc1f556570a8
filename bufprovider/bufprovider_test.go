package bufprovider_test

import (
	"testing"

	"github.com/nabbar/snio/buffer"
	"github.com/nabbar/snio/bufprovider"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func TestBufProvider(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "bufprovider Suite")
}

func cfg() bufprovider.Config {
	return bufprovider.Config{
		Capacity:       16,
		UseRing:        true,
		PayloadFactory: func() buffer.Payload { return buffer.Payload{Buf: make([]byte, 0, 32)} },
	}
}

var _ = Describe("Provider", func() {
	It("builds independent own-input rings for write and read paths", func() {
		p, err := bufprovider.NewOwnInput(cfg(), cfg())
		Expect(err).NotTo(HaveOccurred())
		Expect(p.AppOut).NotTo(BeNil())
		Expect(p.ChnIn).NotTo(BeNil())
		Expect(p.ChnOut).NotTo(BeNil())
		Expect(p.AppIn).NotTo(BeNil())

		seq, err := p.AppOut.Acquire()
		Expect(err).NotTo(HaveOccurred())
		p.AppOut.Get(seq).Set([]byte("hello"))
		p.AppOut.Release(seq)

		seq2, err := p.ChnIn.Acquire()
		Expect(err).NotTo(HaveOccurred())
		Expect(p.ChnIn.Get(seq2).Bytes()).To(Equal([]byte("hello")))

		Expect(p.Close()).To(Succeed())
	})

	It("fans two providers' ChnOut into one shared AppIn consumer", func() {
		sharedProd, sharedCons, err := bufprovider.NewShared(cfg())
		Expect(err).NotTo(HaveOccurred())

		p1, err := bufprovider.NewSharedInput(cfg(), sharedProd)
		Expect(err).NotTo(HaveOccurred())
		p2, err := bufprovider.NewSharedInput(cfg(), sharedProd)
		Expect(err).NotTo(HaveOccurred())
		Expect(p1.AppIn).To(BeNil())
		Expect(p2.AppIn).To(BeNil())

		seq, err := p1.ChnOut.Acquire()
		Expect(err).NotTo(HaveOccurred())
		p1.ChnOut.Attach(seq, "from-p1")
		p1.ChnOut.Release(seq)

		seq, err = p2.ChnOut.Acquire()
		Expect(err).NotTo(HaveOccurred())
		p2.ChnOut.Attach(seq, "from-p2")
		p2.ChnOut.Release(seq)

		seen := map[string]bool{}
		for i := 0; i < 2; i++ {
			s, err := sharedCons.Acquire()
			Expect(err).NotTo(HaveOccurred())
			seen[sharedCons.Attachment(s).(string)] = true
			sharedCons.Release(s)
		}
		Expect(seen).To(HaveKey("from-p1"))
		Expect(seen).To(HaveKey("from-p2"))
	})
})
