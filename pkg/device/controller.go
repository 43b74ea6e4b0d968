package device

import (
	"context"
	"github.com/pkg/errors"
	"go.uber.org/atomic"
	"k8s.io/klog/v2"
	"k8s.io/utils/clock"
	"sync"
	"taglogger/pkg/runtime"
	"taglogger/pkg/runtime/constant"
	"taglogger/pkg/sampler"
	"taglogger/pkg/storage"
	v1 "taglogger/pkg/v1"
	"time"
)

const (
	DefaultRetryDelay = 30 * time.Second
)

type Options struct {
	Session    runtime.Session
	Sink       storage.Sink
	Dispatcher runtime.Dispatcher
	Clock      clock.PassiveClock
	// RetryDelay is both the wait in fail and the login deadline.
	RetryDelay time.Duration
	Publisher  sampler.Publisher
	// OnTransition is called on the loop for every state change.
	OnTransition func(from, to State)
}

// Controller drives the lifecycle of one device. Everything except Status and
// Name must be called on the supervision loop.
type Controller struct {
	cfg          *v1.Device
	name         string
	session      runtime.Session
	sink         storage.Sink
	samplers     []*sampler.Sampler
	dispatcher   runtime.Dispatcher
	clock        clock.PassiveClock
	retryDelay   time.Duration
	publisher    sampler.Publisher
	onTransition func(from, to State)

	state          State
	closeRequested bool
	deadline       time.Time
	loginAttempt   uint64
	// mirrors loginAttempt for the logout goroutines
	loginsIssued *atomic.Uint64

	// serializes login and logout, which run off the loop
	sessionMu sync.Mutex

	done     chan struct{}
	doneOnce sync.Once

	statusMu  sync.RWMutex
	status    State
	since     time.Time
	lastError string
}

var _ sampler.Recorder = (*Controller)(nil)

func NewController(cfg *v1.Device, opts Options) (*Controller, error) {
	c := &Controller{
		cfg:          cfg,
		name:         cfg.GetName(),
		session:      opts.Session,
		sink:         opts.Sink,
		dispatcher:   opts.Dispatcher,
		clock:        opts.Clock,
		retryDelay:   opts.RetryDelay,
		publisher:    opts.Publisher,
		onTransition: opts.OnTransition,
		state:        Idle,
		loginsIssued: atomic.NewUint64(0),
		done:         make(chan struct{}),
	}
	if c.clock == nil {
		c.clock = clock.RealClock{}
	}
	if c.retryDelay <= 0 {
		c.retryDelay = DefaultRetryDelay
	}
	c.since = c.clock.Now()

	for _, tag := range cfg.Tags {
		s, err := sampler.New(tag, sampler.Options{
			Device:     c.name,
			Session:    c.session,
			Dispatcher: c.dispatcher,
			Recorder:   c,
			Clock:      c.clock,
		})
		if err != nil {
			return nil, errors.Wrapf(err, "device %s tag %s", c.name, tag.Tag)
		}
		c.samplers = append(c.samplers, s)
	}
	return c, nil
}

func (c *Controller) Name() string {
	return c.name
}

func (c *Controller) State() State {
	return c.state
}

// Start leaves idle and begins the first login.
func (c *Controller) Start() {
	c.handle(EventStart)
}

// Done is closed once the device reached closed.
func (c *Controller) Done() <-chan struct{} {
	return c.done
}

// Close requests shutdown. It is idempotent and returns Done.
func (c *Controller) Close() <-chan struct{} {
	if !c.closeRequested {
		klog.V(2).InfoS("Close requested", "device", c.name, "state", c.state)
	}
	c.closeRequested = true
	c.handle(EventCloseRequested)
	return c.done
}

// DoTimer runs the per tick checks.
func (c *Controller) DoTimer(now time.Time) {
	switch c.state {
	case Fail:
		if !now.Before(c.deadline) {
			c.handle(EventRetryElapsed)
		}
	case Running:
		if !c.session.ConnectionOK() {
			klog.InfoS("Connection lost", "device", c.name)
			c.setLastError("connection lost")
			c.handle(EventConnectionLost)
			return
		}
		c.session.TestTimeouts()
		for _, s := range c.samplers {
			s.OnTick(now)
		}
	}
}

func (c *Controller) handle(ev Event) {
	to, ok := Next(c.state, ev)
	if !ok {
		klog.V(5).InfoS("Ignored event", "device", c.name, "state", c.state, "event", ev)
		return
	}
	c.enterState(to)
}

func (c *Controller) enterState(s State) {
	for s != c.state {
		from := c.state
		c.state = s
		klog.InfoS("Device entered state", "device", c.name, "from", from, "to", s)
		c.statusMu.Lock()
		c.status = s
		c.since = c.clock.Now()
		c.statusMu.Unlock()
		if c.onTransition != nil {
			c.onTransition(from, s)
		}

		effects, next, chained := Enter(s, c.closeRequested)
		for _, e := range effects {
			c.apply(e)
		}
		if !chained {
			return
		}
		s = next
	}
}

func (c *Controller) apply(e Effect) {
	klog.V(4).InfoS("Applying effect", "device", c.name, "effect", e)
	switch e {
	case ArmTimeout:
		c.deadline = c.clock.Now().Add(c.retryDelay)
	case Login:
		c.login()
	case StartSamplers:
		for _, s := range c.samplers {
			s.Start()
		}
	case StopSamplers:
		for _, s := range c.samplers {
			s.Stop()
		}
	case Logout:
		c.logout(nil)
	case LogoutAwait:
		c.logout(func() {
			c.handle(EventLogoutDone)
		})
	case CloseSink:
		if c.sink != nil {
			if err := c.sink.Close(); err != nil {
				klog.ErrorS(err, "Failed to close output file", "device", c.name)
			}
			c.sink = nil
		}
	case SignalClosed:
		c.doneOnce.Do(func() {
			close(c.done)
		})
	}
}

func (c *Controller) login() {
	c.loginAttempt++
	attempt := c.loginAttempt
	c.loginsIssued.Store(attempt)
	c.dispatcher.Go(func() error {
		ctx, cancel := context.WithTimeout(context.Background(), c.retryDelay)
		defer cancel()
		c.sessionMu.Lock()
		defer c.sessionMu.Unlock()
		return c.session.Login(ctx, c.cfg.User, c.cfg.Password)
	}, func(err error) {
		if attempt != c.loginAttempt || c.state != Connecting {
			klog.V(4).InfoS("Discarded stale login result", "device", c.name, "attempt", attempt)
			return
		}
		if err != nil {
			klog.ErrorS(err, "Failed to log in", "device", c.name, "url", c.cfg.URL)
			c.setLastError(err.Error())
			c.handle(EventLoginFailed)
			return
		}
		c.setLastError("")
		c.handle(EventLoginSucceeded)
	})
}

// logout is skipped when a newer login was issued meanwhile, that login
// replaces the session itself.
func (c *Controller) logout(then func()) {
	attempt := c.loginAttempt
	c.dispatcher.Go(func() error {
		ctx, cancel := context.WithTimeout(context.Background(), c.retryDelay)
		defer cancel()
		c.sessionMu.Lock()
		defer c.sessionMu.Unlock()
		if c.loginsIssued.Load() != attempt {
			klog.V(4).InfoS("Skipped stale logout", "device", c.name, "attempt", attempt)
			return nil
		}
		return c.session.Logout(ctx)
	}, func(err error) {
		if err != nil {
			klog.V(2).InfoS("Failed to log out", "device", c.name, "err", err)
		}
		if then != nil {
			then()
		}
	})
}

// Record writes rec to the device file, the diagnostic log and the publisher.
func (c *Controller) Record(rec *sampler.Record) {
	if c.sink == nil {
		return
	}
	if err := c.sink.WriteLine(rec.Line()); err != nil {
		if !errors.Is(err, constant.ErrSinkClosed) {
			klog.ErrorS(err, "Failed to write sample", "device", c.name, "tag", rec.Tag)
		}
		return
	}
	klog.V(2).InfoS("Sample", "device", rec.Device, "tag", rec.Tag, "type", rec.Type, "value", rec.Value)
	if c.publisher != nil {
		c.publisher.Publish(rec)
	}
}

func (c *Controller) setLastError(msg string) {
	c.statusMu.Lock()
	defer c.statusMu.Unlock()
	c.lastError = msg
}

type Status struct {
	Name      string           `json:"name"`
	URL       string           `json:"url"`
	Filename  string           `json:"filename"`
	State     string           `json:"state"`
	Since     time.Time        `json:"since"`
	LastError string           `json:"lastError,omitempty"`
	Tags      []sampler.Status `json:"tags"`
}

// Status may be called from any goroutine.
func (c *Controller) Status() *Status {
	c.statusMu.RLock()
	st := &Status{
		Name:      c.name,
		URL:       c.cfg.URL,
		Filename:  c.cfg.Filename,
		State:     c.status.String(),
		Since:     c.since,
		LastError: c.lastError,
		Tags:      make([]sampler.Status, 0, len(c.samplers)),
	}
	c.statusMu.RUnlock()
	for _, s := range c.samplers {
		st.Tags = append(st.Tags, s.Status())
	}
	return st
}
