package metrics_test

import (
	"github.com/nabbar/snio/metrics"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func counterValue(c prometheus.Counter) float64 {
	m := &dto.Metric{}
	Expect(c.Write(m)).To(Succeed())
	return m.GetCounter().GetValue()
}

func gaugeValue(g prometheus.Gauge) float64 {
	m := &dto.Metric{}
	Expect(g.Write(m)).To(Succeed())
	return m.GetGauge().GetValue()
}

var _ = Describe("metrics", func() {
	It("registers every collector against a fresh registry without collision", func() {
		reg := prometheus.NewRegistry()
		Expect(func() { metrics.MustRegister(reg) }).NotTo(Panic())
	})

	It("accumulates bytes and frame counters by transport label", func() {
		before := counterValue(metrics.BytesRead.WithLabelValues("tcp"))
		metrics.BytesRead.WithLabelValues("tcp").Add(128)
		Expect(counterValue(metrics.BytesRead.WithLabelValues("tcp"))).To(Equal(before + 128))

		metrics.FramesEncoded.WithLabelValues("udp").Inc()
		Expect(counterValue(metrics.FramesEncoded.WithLabelValues("udp"))).To(BeNumerically(">=", 1))
	})

	It("tracks keys registered as a gauge that can rise and fall", func() {
		metrics.KeysRegistered.WithLabelValues("read").Set(0)
		metrics.KeysRegistered.WithLabelValues("read").Inc()
		Expect(gaugeValue(metrics.KeysRegistered.WithLabelValues("read"))).To(Equal(1.0))
		metrics.KeysRegistered.WithLabelValues("read").Dec()
		Expect(gaugeValue(metrics.KeysRegistered.WithLabelValues("read"))).To(Equal(0.0))
	})

	It("labels processor errors by transport and code", func() {
		before := counterValue(metrics.ProcessorErrors.WithLabelValues("tls", "I/O error"))
		metrics.ProcessorErrors.WithLabelValues("tls", "I/O error").Inc()
		Expect(counterValue(metrics.ProcessorErrors.WithLabelValues("tls", "I/O error"))).To(Equal(before + 1))
	})
})
