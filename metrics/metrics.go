/*
 * MIT License
 *
 * Copyright (c) 2020 Nicolas JUHEL
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 *
 */

// Package metrics exposes the reactor's and processors' runtime counters as
// Prometheus collectors (SPEC_FULL §2.G), ambient observability the spec itself
// does not require but that every long-running component in the pack carries.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// KeysRegistered tracks the number of selector keys currently registered per role
// ("accept", "read", "write"), incremented by Thread.Register and decremented by
// Thread.Cancel.
var KeysRegistered = prometheus.NewGaugeVec(prometheus.GaugeOpts{
	Namespace: "snio",
	Name:      "keys_registered",
	Help:      "Number of selector keys currently registered, by role.",
}, []string{"role"})

// BytesRead counts bytes read off the wire, by transport ("tcp", "udp", "tls").
var BytesRead = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "snio",
	Name:      "bytes_read_total",
	Help:      "Total bytes read from peers, by transport.",
}, []string{"transport"})

// BytesWritten counts bytes written to the wire, by transport.
var BytesWritten = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "snio",
	Name:      "bytes_written_total",
	Help:      "Total bytes written to peers, by transport.",
}, []string{"transport"})

// FramesDecoded counts complete frames a codec has decoded, by transport.
var FramesDecoded = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "snio",
	Name:      "frames_decoded_total",
	Help:      "Total frames decoded from the wire, by transport.",
}, []string{"transport"})

// FramesEncoded counts complete frames a codec has encoded, by transport.
var FramesEncoded = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "snio",
	Name:      "frames_encoded_total",
	Help:      "Total frames encoded onto the wire, by transport.",
}, []string{"transport"})

// ProcessorErrors counts fatal processor errors, by transport and error code.
var ProcessorErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "snio",
	Name:      "processor_errors_total",
	Help:      "Total fatal processor errors, by transport and error code.",
}, []string{"transport", "code"})

// BufferOccupancy reports a handoff buffer endpoint's Remaining() value (free slots
// for a Producer endpoint, published-but-unread slots for a Consumer endpoint), by
// the endpoint name a processor labels it with (e.g. "chnIn", "chnOut").
var BufferOccupancy = prometheus.NewGaugeVec(prometheus.GaugeOpts{
	Namespace: "snio",
	Name:      "buffer_occupancy",
	Help:      "Handoff buffer endpoint Remaining() value, by endpoint.",
}, []string{"endpoint"})

// MustRegister registers every collector in this package against reg. Callers
// typically pass prometheus.DefaultRegisterer once at process startup.
func MustRegister(reg prometheus.Registerer) {
	reg.MustRegister(KeysRegistered, BytesRead, BytesWritten, FramesDecoded, FramesEncoded, ProcessorErrors, BufferOccupancy)
}
