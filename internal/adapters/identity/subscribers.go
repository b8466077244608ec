package identity

import (
	"sync"

	domainauth "github.com/target/storefront-admin/internal/domain/auth"
	"github.com/target/storefront-admin/internal/ports"
)

// subscriber delivers identity changes to one callback on its own goroutine.
// Pending states are coalesced: a slow callback only ever sees the latest state.
type subscriber struct {
	fn ports.ChangeFunc

	mu         sync.Mutex
	pending    *domainauth.Identity
	hasPending bool

	wake     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

func newSubscriber(fn ports.ChangeFunc) *subscriber {
	s := &subscriber{
		fn:   fn,
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
	go s.run()
	return s
}

// offer records id as the latest state and wakes the delivery loop. Never blocks.
func (s *subscriber) offer(id *domainauth.Identity) {
	var cp *domainauth.Identity
	if id != nil {
		v := *id
		cp = &v
	}
	s.mu.Lock()
	s.pending = cp
	s.hasPending = true
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *subscriber) run() {
	for {
		select {
		case <-s.done:
			return
		case <-s.wake:
		}

		s.mu.Lock()
		if !s.hasPending {
			s.mu.Unlock()
			continue
		}
		id := s.pending
		s.pending, s.hasPending = nil, false
		s.mu.Unlock()

		select {
		case <-s.done:
			return
		default:
		}
		s.fn(id)
	}
}

func (s *subscriber) stop() {
	s.stopOnce.Do(func() { close(s.done) })
}
