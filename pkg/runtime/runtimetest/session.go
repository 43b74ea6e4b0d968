// Package runtimetest provides in-memory sessions and dispatchers for tests.
package runtimetest

import (
	"context"
	"sync"
	"taglogger/pkg/runtime"
	"taglogger/pkg/runtime/constant"
)

type Subscription struct {
	Tag     string
	Profile string

	session   *Session
	onValue   func(runtime.Value)
	cancelled bool
}

func (s *Subscription) Cancel() {
	s.session.mu.Lock()
	defer s.session.mu.Unlock()
	s.cancelled = true
	if s.session.subs[s.Tag] == s {
		delete(s.session.subs, s.Tag)
	}
}

// Session is a scriptable runtime.Session. Hooks run on the caller's goroutine.
type Session struct {
	mu sync.Mutex

	LoginFunc     func(ctx context.Context, user, password string) error
	LogoutFunc    func(ctx context.Context) error
	ReadFunc      func(ctx context.Context, tag string) (runtime.Value, error)
	SubscribeFunc func(tag string) error

	connected     bool
	loggedIn      bool
	logins        int
	logouts       int
	timeoutChecks int
	reads         map[string]int
	subs          map[string]*Subscription
}

var _ runtime.Session = (*Session)(nil)

func NewSession() *Session {
	return &Session{
		reads: make(map[string]int),
		subs:  make(map[string]*Subscription),
	}
}

func (s *Session) Login(ctx context.Context, user, password string) error {
	s.mu.Lock()
	s.logins++
	fn := s.LoginFunc
	s.mu.Unlock()

	var err error
	if fn != nil {
		err = fn(ctx, user, password)
	}
	s.mu.Lock()
	s.loggedIn = err == nil
	s.connected = err == nil
	s.mu.Unlock()
	return err
}

func (s *Session) Logout(ctx context.Context) error {
	s.mu.Lock()
	s.logouts++
	fn := s.LogoutFunc
	s.mu.Unlock()

	var err error
	if fn != nil {
		err = fn(ctx)
	}
	s.mu.Lock()
	s.loggedIn = false
	s.connected = false
	s.mu.Unlock()
	return err
}

func (s *Session) Subscribe(tag string, profile string, onValue func(runtime.Value)) (runtime.Subscription, error) {
	s.mu.Lock()
	fn := s.SubscribeFunc
	s.mu.Unlock()
	if fn != nil {
		if err := fn(tag); err != nil {
			return nil, err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	sub := &Subscription{Tag: tag, Profile: profile, session: s, onValue: onValue}
	s.subs[tag] = sub
	return sub, nil
}

func (s *Session) Read(ctx context.Context, tag string) (runtime.Value, error) {
	s.mu.Lock()
	s.reads[tag]++
	fn := s.ReadFunc
	loggedIn := s.loggedIn
	s.mu.Unlock()

	if fn != nil {
		return fn(ctx, tag)
	}
	if !loggedIn {
		return runtime.Value{}, constant.ErrNotConnected
	}
	return runtime.NullValue(runtime.DataTypeToString[runtime.UNKNOWN]), nil
}

func (s *Session) ConnectionOK() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

func (s *Session) TestTimeouts() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.timeoutChecks++
}

// SetConnected overrides the connection health reported by ConnectionOK.
func (s *Session) SetConnected(ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connected = ok
}

// Emit delivers v to the active subscription of tag, reporting whether one exists.
func (s *Session) Emit(tag string, v runtime.Value) bool {
	s.mu.Lock()
	sub, ok := s.subs[tag]
	s.mu.Unlock()
	if !ok {
		return false
	}
	sub.onValue(v)
	return true
}

func (s *Session) Subscribed(tag string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.subs[tag]
	return ok
}

func (s *Session) Logins() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.logins
}

func (s *Session) Logouts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.logouts
}

func (s *Session) Reads(tag string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reads[tag]
}

func (s *Session) TimeoutChecks() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.timeoutChecks
}
