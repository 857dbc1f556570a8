package selector

import "golang.org/x/sync/errgroup"

// Reactor groups the three selector threads spec §3 calls for: accept, read, write.
// "Reactor = three selector threads" (spec §4.3): separate roles avoid the deadlock
// where a full output buffer blocks the same thread that would otherwise rearm
// OP_WRITE.
type Reactor struct {
	Accept *Thread
	Read   *Thread
	Write  *Thread

	started bool
}

// NewReactor builds and starts the three threads backing one reactor.
func NewReactor() (*Reactor, error) {
	a, err := NewThread(RoleAccept)
	if err != nil {
		return nil, err
	}
	// A partial failure here (second or third epoll_create1/eventfd call) is a
	// startup-time resource exhaustion; the already-created threads' fds are left
	// for the process to reclaim on exit rather than torn down mid-construction,
	// since Close requires their Loop goroutines to already be running.
	r, err := NewThread(RoleRead)
	if err != nil {
		return nil, err
	}
	w, err := NewThread(RoleWrite)
	if err != nil {
		return nil, err
	}
	rc := &Reactor{Accept: a, Read: r, Write: w}
	rc.start()
	return rc, nil
}

func (rc *Reactor) start() {
	if rc.started {
		return
	}
	rc.started = true
	go rc.Accept.Loop()
	go rc.Read.Loop()
	go rc.Write.Loop()
}

// Close closes every processor/acceptor still attached to any of the reactor's keys,
// then the three threads themselves (spec §3 "closing a reactor closes every channel
// or acceptor still attached to any of its keys").
func (rc *Reactor) Close() error {
	var g errgroup.Group
	g.Go(func() error { rc.Accept.Close(closeAttachment); return nil })
	g.Go(func() error { rc.Read.Close(closeAttachment); return nil })
	g.Go(func() error { rc.Write.Close(closeAttachment); return nil })
	return g.Wait()
}

// closeAttachment invokes Close() on a key's Attachment if it implements one,
// mirroring spec §3's "closing a reactor closes every processor or acceptor still
// attached to any of its keys".
func closeAttachment(k *Key) {
	if c, ok := k.Attachment.(interface{ Close() error }); ok {
		_ = c.Close()
	}
}
