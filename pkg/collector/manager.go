package collector

import (
	"context"
	"github.com/pkg/errors"
	"go.uber.org/atomic"
	"k8s.io/klog/v2"
	"k8s.io/utils/clock"
	"net/url"
	"sync"
	"taglogger/pkg/device"
	"taglogger/pkg/runtime"
	"taglogger/pkg/runtime/constant"
	"taglogger/pkg/sampler"
	"taglogger/pkg/storage"
	v1 "taglogger/pkg/v1"
	"time"
)

type Option func(*Manager)

func WithSessionFactory(scheme string, fn runtime.NewSession) Option {
	return func(m *Manager) {
		m.factories[scheme] = fn
	}
}

func WithClock(c clock.WithTicker) Option {
	return func(m *Manager) {
		m.clock = c
	}
}

func WithTickPeriod(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.tickPeriod = d
		}
	}
}

func WithRetryDelay(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.retryDelay = d
		}
	}
}

func WithRequestTimeout(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.requestTimeout = d
		}
	}
}

func WithPublisher(p sampler.Publisher) Option {
	return func(m *Manager) {
		m.publisher = p
	}
}

// Manager supervises every configured device from a single loop goroutine.
// Device controllers and samplers are only touched on that loop.
type Manager struct {
	configs        []*v1.Device
	factories      map[string]runtime.NewSession
	clock          clock.WithTicker
	tickPeriod     time.Duration
	retryDelay     time.Duration
	requestTimeout time.Duration
	publisher      sampler.Publisher

	controllers []*device.Controller
	byName      map[string]*device.Controller

	qmu    sync.Mutex
	queue  []func()
	exited bool
	wake   chan struct{}
	quit   chan struct{}
	exit   chan struct{}

	ticking  bool
	started  *atomic.Bool
	ticks    *atomic.Int64
	quitOnce sync.Once
}

var _ runtime.Dispatcher = (*Manager)(nil)

func NewCollectorManager(devices []*v1.Device, opts ...Option) *Manager {
	m := &Manager{
		configs:        devices,
		factories:      make(map[string]runtime.NewSession),
		clock:          clock.RealClock{},
		tickPeriod:     DefaultTickPeriod,
		retryDelay:     device.DefaultRetryDelay,
		requestTimeout: DefaultRequestTimeout,
		byName:         make(map[string]*device.Controller),
		wake:           make(chan struct{}, 1),
		quit:           make(chan struct{}),
		exit:           make(chan struct{}),
		started:        atomic.NewBool(false),
		ticks:          atomic.NewInt64(0),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Init opens every output file and builds the device controllers. Any failure
// is fatal and leaves no file open.
func (m *Manager) Init() error {
	var sinks []storage.Sink
	cleanup := func() {
		for _, s := range sinks {
			_ = s.Close()
		}
		m.controllers = nil
		m.byName = make(map[string]*device.Controller)
	}

	for _, cfg := range m.configs {
		session, err := m.newSession(cfg.URL)
		if err != nil {
			cleanup()
			return errors.Wrapf(err, "device %s", cfg.GetName())
		}

		sink, err := storage.OpenFileSink(cfg.Filename, cfg.Append)
		if err != nil {
			klog.ErrorS(err, "Failed to open output file", "device", cfg.GetName(), "file", cfg.Filename)
			cleanup()
			return err
		}
		sinks = append(sinks, sink)

		c, err := device.NewController(cfg, device.Options{
			Session:    session,
			Sink:       sink,
			Dispatcher: m,
			Clock:      m.clock,
			RetryDelay: m.retryDelay,
			Publisher:  m.publisher,
		})
		if err != nil {
			cleanup()
			return err
		}
		m.controllers = append(m.controllers, c)
		m.byName[c.Name()] = c
	}
	klog.V(2).InfoS("Initialized devices", "count", len(m.controllers))
	return nil
}

func (m *Manager) newSession(address string) (runtime.Session, error) {
	u, err := url.Parse(address)
	if err != nil {
		return nil, err
	}
	fn, ok := m.factories[u.Scheme]
	if !ok {
		return nil, errors.Wrapf(constant.ErrUnsupportedScheme, "%q", u.Scheme)
	}
	return fn(address, runtime.SessionOptions{RequestTimeout: m.requestTimeout})
}

// Start runs the supervision loop and moves every device out of idle.
func (m *Manager) Start() {
	if !m.started.CAS(false, true) {
		return
	}
	m.ticking = true
	go m.loop()
	m.Post(func() {
		for _, c := range m.controllers {
			c.Start()
		}
	})
}

func (m *Manager) loop() {
	ticker := m.clock.NewTicker(m.tickPeriod)
	defer func() {
		ticker.Stop()
		m.qmu.Lock()
		m.exited = true
		m.queue = nil
		m.qmu.Unlock()
		close(m.exit)
	}()

	for {
		select {
		case <-m.quit:
			return
		case <-m.wake:
			m.runQueued()
		case now := <-ticker.C():
			if !m.ticking {
				continue
			}
			for _, c := range m.controllers {
				c.DoTimer(now)
			}
			m.ticks.Inc()
		}
	}
}

func (m *Manager) runQueued() {
	for {
		m.qmu.Lock()
		queue := m.queue
		m.queue = nil
		m.qmu.Unlock()
		if len(queue) == 0 {
			return
		}
		for _, fn := range queue {
			fn()
		}
	}
}

// Post queues fn onto the loop. It never blocks and drops fn once the loop exited.
func (m *Manager) Post(fn func()) {
	m.qmu.Lock()
	if m.exited {
		m.qmu.Unlock()
		return
	}
	m.queue = append(m.queue, fn)
	m.qmu.Unlock()

	select {
	case m.wake <- struct{}{}:
	default:
	}
}

func (m *Manager) Go(work func() error, done func(error)) {
	go func() {
		err := work()
		m.Post(func() {
			done(err)
		})
	}()
}

// Shutdown stops the tick, closes every device and returns once all of them
// reached closed. The loop exits afterwards.
func (m *Manager) Shutdown(ctx context.Context) error {
	if !m.started.Load() {
		for _, c := range m.controllers {
			c.Close()
		}
		return nil
	}

	pending := make(chan []<-chan struct{}, 1)
	m.Post(func() {
		m.ticking = false
		dones := make([]<-chan struct{}, 0, len(m.controllers))
		for _, c := range m.controllers {
			dones = append(dones, c.Close())
		}
		pending <- dones
	})

	var dones []<-chan struct{}
	select {
	case dones = <-pending:
	case <-m.exit:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}

	for i, done := range dones {
		select {
		case <-done:
			klog.V(2).InfoS("Device closed", "device", m.controllers[i].Name())
		case <-ctx.Done():
			klog.ErrorS(ctx.Err(), "Devices did not close in time", "closed", i, "total", len(dones))
			return ctx.Err()
		}
	}

	m.quitOnce.Do(func() {
		close(m.quit)
	})
	<-m.exit
	klog.InfoS("All devices closed")
	return nil
}

func (m *Manager) Ticks() int64 {
	return m.ticks.Load()
}

func (m *Manager) ListDevices() []*device.Status {
	out := make([]*device.Status, 0, len(m.controllers))
	for _, c := range m.controllers {
		out = append(out, c.Status())
	}
	return out
}

func (m *Manager) GetDevice(name string) (*device.Status, bool) {
	c, ok := m.byName[name]
	if !ok {
		return nil, false
	}
	return c.Status(), true
}

// OutputFiles lists the configured output file of every device.
func (m *Manager) OutputFiles() []string {
	files := make([]string, 0, len(m.configs))
	for _, cfg := range m.configs {
		files = append(files, cfg.Filename)
	}
	return files
}
