package buffer_test

import (
	"time"

	"github.com/nabbar/snio/buffer"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func newPayload() buffer.Payload {
	return buffer.Payload{Buf: make([]byte, 0, 64)}
}

var _ = Describe("ring buffer", func() {
	It("rejects a capacity that is not a power of two", func() {
		_, _, err := buffer.NewRing(3, newPayload)
		Expect(err).To(HaveOccurred())
	})

	It("round trips N=100000 integers between one producer and one consumer", func() {
		const n = 100000
		prod, cons, err := buffer.NewRing(1024, newPayload)
		Expect(err).NotTo(HaveOccurred())

		done := make(chan struct{})
		go func() {
			defer close(done)
			for i := 0; i < n; i++ {
				seq, aerr := cons.Acquire()
				Expect(aerr).NotTo(HaveOccurred())
				p := cons.Get(seq)
				Expect(p.Bytes()).To(Equal([]byte{byte(i)}))
				Expect(cons.Attachment(seq)).To(Equal(i))
				cons.Release(seq)
			}
		}()

		for i := 0; i < n; i++ {
			seq, aerr := prod.Acquire()
			Expect(aerr).NotTo(HaveOccurred())
			p := prod.Get(seq)
			p.Set([]byte{byte(i)})
			prod.Attach(seq, i)
			prod.Release(seq)
		}

		Eventually(done, 5*time.Second).Should(BeClosed())
		Expect(cons.Remaining()).To(Equal(int64(0)))
	})

	It("blocks AcquireN(capacity+1 worth) until exactly one slot is released", func() {
		prod, cons, err := buffer.NewRing(4, newPayload)
		Expect(err).NotTo(HaveOccurred())

		for i := 0; i < 4; i++ {
			seq, aerr := prod.Acquire()
			Expect(aerr).NotTo(HaveOccurred())
			prod.Release(seq)
		}
		Expect(prod.Remaining()).To(Equal(int64(0)))

		unblocked := make(chan int64, 1)
		go func() {
			seq, aerr := prod.Acquire()
			Expect(aerr).NotTo(HaveOccurred())
			unblocked <- seq
		}()

		Consistently(unblocked, 100*time.Millisecond).ShouldNot(Receive())

		seq, aerr := cons.Acquire()
		Expect(aerr).NotTo(HaveOccurred())
		cons.Release(seq)

		Eventually(unblocked, time.Second).Should(Receive())
	})

	It("unblocks a pending Acquire with ErrInterruptedByClose on Close", func() {
		prod, _, err := buffer.NewRing(1, newPayload)
		Expect(err).NotTo(HaveOccurred())

		seq, aerr := prod.Acquire()
		Expect(aerr).NotTo(HaveOccurred())
		prod.Release(seq)

		errc := make(chan error, 1)
		go func() {
			_, aerr := prod.Acquire()
			errc <- aerr
		}()

		Consistently(errc, 50*time.Millisecond).ShouldNot(Receive())
		Expect(prod.Close()).To(Succeed())
		Eventually(errc, time.Second).Should(Receive(MatchError(buffer.ErrInterruptedByClose)))
	})
})

var _ = Describe("blocking buffer", func() {
	It("rejects a capacity that is not a power of two", func() {
		_, _, err := buffer.NewBlocking(5, newPayload)
		Expect(err).To(HaveOccurred())
	})

	It("round trips values between one producer and one consumer", func() {
		const n = 5000
		prod, cons, err := buffer.NewBlocking(256, newPayload)
		Expect(err).NotTo(HaveOccurred())

		done := make(chan struct{})
		go func() {
			defer close(done)
			for i := 0; i < n; i++ {
				seq, aerr := cons.Acquire()
				Expect(aerr).NotTo(HaveOccurred())
				Expect(cons.Attachment(seq)).To(Equal(i))
				cons.Release(seq)
			}
		}()

		for i := 0; i < n; i++ {
			seq, aerr := prod.Acquire()
			Expect(aerr).NotTo(HaveOccurred())
			prod.Attach(seq, i)
			prod.Release(seq)
		}

		Eventually(done, 5*time.Second).Should(BeClosed())
	})
})
