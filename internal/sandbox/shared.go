package sandbox

import (
	"context"
	"sync"

	"golang.org/x/sync/singleflight"
)

// Shared boots its Booter at most once per process. Concurrent callers join the
// boot in flight; a failed boot is not cached so the next caller starts over.
type Shared struct {
	booter Booter
	group  singleflight.Group

	mu      sync.Mutex
	session Session
}

// NewShared wraps b.
func NewShared(b Booter) *Shared {
	return &Shared{booter: b}
}

// Boot returns the shared session, booting it if needed. Cancelling ctx
// abandons the wait but not the boot other callers may be sharing.
func (s *Shared) Boot(ctx context.Context) (Session, error) {
	if sess := s.Session(); sess != nil {
		return sess, nil
	}

	ch := s.group.DoChan("boot", func() (any, error) {
		if sess := s.Session(); sess != nil {
			return sess, nil
		}
		sess, err := s.booter.Boot(context.WithoutCancel(ctx))
		if err != nil {
			return nil, err
		}
		s.mu.Lock()
		s.session = sess
		s.mu.Unlock()
		return sess, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(Session), nil
	}
}

// Session returns the booted session or nil.
func (s *Shared) Session() Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.session
}

// Reset forgets the booted session so the next Boot starts a new one.
func (s *Shared) Reset() {
	s.mu.Lock()
	s.session = nil
	s.mu.Unlock()
}
