package ratelimit_test

import (
	"context"
	"testing"
	"time"

	"github.com/nabbar/snio/ratelimit"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func TestRateLimit(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "ratelimit Suite")
}

var _ = Describe("ratelimit", func() {
	It("never blocks with the no-op limiter", func() {
		Expect(ratelimit.NoLimit.Consume(context.Background(), 1<<20)).To(Succeed())
		Expect(ratelimit.NoLimit.Limit()).To(Equal(float64(0)))
	})

	It("shapes throughput to roughly the configured rate", func() {
		l := ratelimit.New(100_000, 100_000) // 100 kB/s, burst = one message
		start := time.Now()
		for i := 0; i < 10; i++ {
			Expect(l.Consume(context.Background(), 100_000)).To(Succeed())
		}
		Expect(time.Since(start)).To(BeNumerically(">=", 800*time.Millisecond))
	})
})
