package sim

import (
	"context"
	"fmt"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
	"k8s.io/utils/clock"
	"math"
	"strconv"
	"strings"
	"sync"
	"taglogger/pkg/runtime"
	"taglogger/pkg/runtime/constant"
	"time"
)

const Scheme = "sim"

// Session simulates a device. The prefix of a tag before ':' picks the signal:
// bool, counter, text, null, error; anything else is a DOUBLE wave.
type Session struct {
	name  string
	opts  Options
	clock clock.WithTicker

	mu          sync.Mutex
	loggedIn    bool
	connectedAt time.Time
	attempts    int
	seq         map[string]int64
	subs        map[*subscription]struct{}
}

var _ runtime.Session = (*Session)(nil)

func NewSession(address string, _ runtime.SessionOptions) (runtime.Session, error) {
	return newSession(address, clock.RealClock{})
}

func newSession(address string, c clock.WithTicker) (*Session, error) {
	name, opts, err := parseOptions(address)
	if err != nil {
		return nil, err
	}
	return &Session{
		name:  name,
		opts:  opts,
		clock: c,
		seq:   make(map[string]int64),
		subs:  make(map[*subscription]struct{}),
	}, nil
}

func (s *Session) Login(ctx context.Context, user string, password string) error {
	if s.opts.LoginDelay > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.clock.After(s.opts.LoginDelay):
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.attempts++
	if s.attempts <= s.opts.LoginFailures {
		return errors.Wrapf(constant.ErrLoginRejected, "%s: attempt %d", s.name, s.attempts)
	}
	if len(s.opts.User) > 0 && (user != s.opts.User || password != s.opts.Password) {
		return errors.Wrapf(constant.ErrLoginRejected, "%s: bad credentials for %q", s.name, user)
	}
	s.loggedIn = true
	s.connectedAt = s.clock.Now()
	klog.V(4).InfoS("Simulator logged in", "device", s.name, "attempt", s.attempts)
	return nil
}

func (s *Session) Logout(ctx context.Context) error {
	s.mu.Lock()
	subs := s.subs
	s.subs = make(map[*subscription]struct{})
	s.loggedIn = false
	s.mu.Unlock()

	for sub := range subs {
		sub.Cancel()
	}
	return nil
}

func (s *Session) ConnectionOK() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connectionOK()
}

func (s *Session) connectionOK() bool {
	if !s.loggedIn {
		return false
	}
	return s.opts.DropAfter <= 0 || s.clock.Since(s.connectedAt) < s.opts.DropAfter
}

// TestTimeouts is a no-op, simulated reads answer immediately.
func (s *Session) TestTimeouts() {}

func (s *Session) Read(ctx context.Context, tag string) (runtime.Value, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.connectionOK() {
		return runtime.Value{}, constant.ErrNotConnected
	}
	return s.sample(tag), nil
}

type subscription struct {
	session  *Session
	stop     chan struct{}
	stopOnce sync.Once
}

func (sub *subscription) Cancel() {
	sub.stopOnce.Do(func() {
		close(sub.stop)
		s := sub.session
		s.mu.Lock()
		delete(s.subs, sub)
		s.mu.Unlock()
	})
}

func (s *Session) Subscribe(tag string, profile string, onValue func(runtime.Value)) (runtime.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.loggedIn {
		return nil, constant.ErrNotConnected
	}
	sub := &subscription{session: s, stop: make(chan struct{})}
	s.subs[sub] = struct{}{}
	ticker := s.clock.NewTicker(s.opts.Period)

	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-sub.stop:
				return
			case <-ticker.C():
				s.mu.Lock()
				ok := s.connectionOK()
				var v runtime.Value
				if ok {
					v = s.sample(tag)
				}
				s.mu.Unlock()
				if !ok {
					continue
				}
				select {
				case <-sub.stop:
					return
				default:
					onValue(v)
				}
			}
		}
	}()
	return sub, nil
}

func (s *Session) sample(tag string) runtime.Value {
	s.seq[tag]++
	n := s.seq[tag]

	kind := ""
	if i := strings.IndexByte(tag, ':'); i > 0 {
		kind = tag[:i]
	}

	var v runtime.Value
	switch kind {
	case "bool":
		v = runtime.TextValue(runtime.DataTypeToString[runtime.BOOL], strconv.FormatBool(n%2 == 0))
	case "counter":
		v = runtime.NumberValue(runtime.DataTypeToString[runtime.INT32], float64(n), strconv.FormatInt(n, 10))
	case "text":
		v = runtime.TextValue(runtime.DataTypeToString[runtime.STRING], fmt.Sprintf("%s-%d", tag[len(kind)+1:], n))
	case "null":
		return runtime.NullValue(runtime.DataTypeToString[runtime.UNKNOWN])
	case "error":
		return runtime.ErrorValue(runtime.DataTypeToString[runtime.UNKNOWN], "simulated error")
	default:
		x := 20 + 5*math.Sin(float64(n)/10)
		v = runtime.NumberValue(runtime.DataTypeToString[runtime.DOUBLE], x, "")
	}
	if s.opts.NullEvery > 0 && n%int64(s.opts.NullEvery) == 0 {
		return runtime.NullValue(v.Type)
	}
	return v
}
