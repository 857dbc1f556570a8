package future_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nabbar/snio/future"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func TestFuture(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "future Suite")
}

var _ = Describe("Future", func() {
	It("resolves once and ignores later completions", func() {
		f := future.New()
		Expect(f.Complete(nil)).To(BeTrue())
		Expect(f.Complete(errors.New("too late"))).To(BeFalse())
		Expect(f.Err()).NotTo(HaveOccurred())
	})

	It("blocks Wait until resolved", func() {
		f := future.New()
		go func() {
			time.Sleep(10 * time.Millisecond)
			f.Complete(nil)
		}()
		Expect(f.Wait(context.Background())).NotTo(HaveOccurred())
	})

	It("joins several futures and surfaces the first error", func() {
		f1, f2 := future.New(), future.New()
		boom := errors.New("boom")
		f1.Complete(nil)
		f2.Complete(boom)
		j := future.Join(f1, f2)
		Expect(j.Wait(context.Background())).To(MatchError(boom))
	})
})
