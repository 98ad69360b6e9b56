package client

import (
	"context"
	"sync"
)

// Session owns the client-side view of the signed-in profile. Subscribers
// are told whenever it changes; nil means signed out or not registered.
type Session struct {
	client *Client

	// notifyMu orders updates so subscribers see them in the same order
	// as Profile does. It is taken before mu.
	notifyMu sync.Mutex

	mu      sync.Mutex
	profile *Profile
	subs    map[int]func(*Profile)
	nextSub int
}

func NewSession(c *Client) *Session {
	return &Session{client: c, subs: make(map[int]func(*Profile))}
}

// Profile returns the last known profile.
func (s *Session) Profile() *Profile {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.profile
}

// Subscribe registers fn for profile changes and returns a function that
// removes it. fn runs on the goroutine that caused the change and must not
// call Refresh, Register or SignOut.
func (s *Session) Subscribe(fn func(*Profile)) (unsubscribe func()) {
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs, id)
			s.mu.Unlock()
		})
	}
}

func (s *Session) set(p *Profile) {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	s.mu.Lock()
	s.profile = p
	subs := make([]func(*Profile), 0, len(s.subs))
	for _, fn := range s.subs {
		subs = append(subs, fn)
	}
	s.mu.Unlock()

	for _, fn := range subs {
		fn(p)
	}
}

// Refresh reloads the profile from the server. A missing profile clears
// the session without error so the caller can offer registration; a
// rejected credential clears it and returns the error. Other failures keep
// the last known profile.
func (s *Session) Refresh(ctx context.Context) (*Profile, error) {
	me, err := s.client.Me(ctx)
	switch {
	case err == nil:
		s.set(me.Profile)
		return me.Profile, nil
	case HasCode(err, CodeProfileMissing):
		s.set(nil)
		return nil, nil
	case HasCode(err, CodeUnauthenticated):
		s.set(nil)
		return nil, err
	default:
		return nil, err
	}
}

// Register completes sign-up and stores the new profile.
func (s *Session) Register(ctx context.Context, reg Registration) (*Profile, error) {
	p, err := s.client.Register(ctx, reg)
	if err != nil {
		return nil, err
	}
	s.set(p)
	return p, nil
}

// SignOut revokes the credential and clears the session. The session is
// cleared even when the server call fails.
func (s *Session) SignOut(ctx context.Context) error {
	err := s.client.Logout(ctx)
	s.set(nil)
	if HasCode(err, CodeUnauthenticated) {
		return nil
	}
	return err
}
