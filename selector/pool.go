package selector

import (
	"sync/atomic"

	"golang.org/x/sync/errgroup"
)

// Policy chooses which reactor a new channel is routed to (spec §3 "SelectorPool: N
// reactors plus a selection policy").
type Policy interface {
	Next(reactors []*Reactor) *Reactor
}

// RoundRobin is the default policy (spec §4.3 "default: round-robin").
type RoundRobin struct {
	i atomic.Uint64
}

func (p *RoundRobin) Next(reactors []*Reactor) *Reactor {
	if len(reactors) == 0 {
		return nil
	}
	n := p.i.Add(1) - 1
	return reactors[n%uint64(len(reactors))]
}

// Pool is N reactors behind one Policy (spec §3/§4.3). A channel is registered onto
// whichever reactor Next() returns at bind/connect time.
type Pool struct {
	reactors []*Reactor
	policy   Policy
}

// NewPool starts n reactors and pairs them with policy (RoundRobin{} if nil).
func NewPool(n int, policy Policy) (*Pool, error) {
	if n <= 0 {
		n = 1
	}
	if policy == nil {
		policy = &RoundRobin{}
	}
	reactors := make([]*Reactor, 0, n)
	for i := 0; i < n; i++ {
		r, err := NewReactor()
		if err != nil {
			for _, done := range reactors {
				_ = done.Close()
			}
			return nil, err
		}
		reactors = append(reactors, r)
	}
	return &Pool{reactors: reactors, policy: policy}, nil
}

// Next returns the reactor a new channel should register on.
func (p *Pool) Next() *Reactor {
	return p.policy.Next(p.reactors)
}

// Close closes every reactor in the pool concurrently and returns the first error,
// if any (spec §4.3 "close(): closes every processor/acceptor attached to the
// selector, then the selector itself").
func (p *Pool) Close() error {
	var g errgroup.Group
	for _, r := range p.reactors {
		r := r
		g.Go(r.Close)
	}
	return g.Wait()
}
