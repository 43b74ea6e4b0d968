package sampler

import (
	"context"
	"go.uber.org/atomic"
	"k8s.io/klog/v2"
	"k8s.io/utils/clock"
	"taglogger/pkg/runtime"
	"taglogger/pkg/utils/floatutil"
	v1 "taglogger/pkg/v1"
	"time"
)

type Mode int8

const (
	ModeSubscription Mode = iota
	ModePolling
)

func (m Mode) String() string {
	if m == ModePolling {
		return "polling"
	}
	return "subscription"
}

type Options struct {
	Device     string
	Session    runtime.Session
	Dispatcher runtime.Dispatcher
	Recorder   Recorder
	Clock      clock.PassiveClock
}

// Sampler logs one tag of a device. All methods except Status run on the
// supervision loop.
type Sampler struct {
	device     string
	tag        string
	profile    string
	format     runtime.FloatFormat
	mode       Mode
	interval   time.Duration
	session    runtime.Session
	dispatcher runtime.Dispatcher
	recorder   Recorder
	clock      clock.PassiveClock

	// polling
	nextPoll time.Time
	inFlight bool
	seen     bool
	lastText string
	lastErr  string

	// subscription
	sub        runtime.Subscription
	active     bool
	subFailing bool
	gen        uint64
	lastNull   bool
	lastEF     bool

	samples  *atomic.Int64
	failures *atomic.Int64
	pending  *atomic.Bool
}

// New configures a sampler for tag. The tag is expected to have passed
// v1.ValidateTag.
func New(tag *v1.Tag, opts Options) (*Sampler, error) {
	interval, err := tag.PollInterval()
	if err != nil {
		return nil, err
	}
	s := &Sampler{
		device:     opts.Device,
		tag:        tag.Tag,
		profile:    tag.FloatRes,
		session:    opts.Session,
		dispatcher: opts.Dispatcher,
		recorder:   opts.Recorder,
		clock:      opts.Clock,
		samples:    atomic.NewInt64(0),
		failures:   atomic.NewInt64(0),
		pending:    atomic.NewBool(false),
	}
	if s.clock == nil {
		s.clock = clock.RealClock{}
	}
	if len(tag.FloatRes) > 0 {
		r, err := floatutil.ParseResolution(tag.FloatRes)
		if err != nil {
			return nil, err
		}
		s.format = r
	}
	if interval > 0 {
		s.mode = ModePolling
		s.interval = interval
	}
	return s, nil
}

func (s *Sampler) Tag() string {
	return s.tag
}

func (s *Sampler) Mode() Mode {
	return s.mode
}

func (s *Sampler) Interval() time.Duration {
	return s.interval
}

// Start registers the standing subscription. No-op in polling mode. A failed
// registration is retried on every OnTick until Stop.
func (s *Sampler) Start() {
	if s.mode != ModeSubscription {
		return
	}
	s.active = true
	s.subscribe()
}

func (s *Sampler) subscribe() {
	if s.sub != nil {
		return
	}
	s.gen++
	gen := s.gen
	sub, err := s.session.Subscribe(s.tag, s.profile, func(v runtime.Value) {
		s.dispatcher.Post(func() {
			if s.gen != gen || s.sub == nil {
				return
			}
			s.onSubscriptionValue(v)
		})
	})
	if err != nil {
		s.failures.Inc()
		if !s.subFailing {
			klog.ErrorS(err, "Failed to subscribe", "device", s.device, "tag", s.tag)
		} else {
			klog.V(2).InfoS("Failed to subscribe", "device", s.device, "tag", s.tag, "err", err)
		}
		s.subFailing = true
		s.pending.Store(true)
		return
	}
	if s.subFailing {
		klog.InfoS("Subscribed after failure", "device", s.device, "tag", s.tag)
	}
	s.subFailing = false
	s.pending.Store(false)
	s.sub = sub
}

// Stop cancels the standing subscription. Safe to call when not started.
func (s *Sampler) Stop() {
	s.active = false
	s.subFailing = false
	s.pending.Store(false)
	if s.mode != ModeSubscription || s.sub == nil {
		return
	}
	s.sub.Cancel()
	s.sub = nil
	s.gen++
}

func (s *Sampler) onSubscriptionValue(v runtime.Value) {
	if (v.Null || v.Err) && v.Null == s.lastNull && v.Err == s.lastEF {
		return
	}
	s.lastNull = v.Null
	s.lastEF = v.Err
	s.record(v)
}

// OnTick issues a read when the poll deadline passed and no read is in flight.
// In subscription mode it retries a failed registration.
func (s *Sampler) OnTick(now time.Time) {
	if s.mode != ModePolling {
		if s.active {
			s.subscribe()
		}
		return
	}
	if s.nextPoll.IsZero() {
		s.nextPoll = now
	}
	if s.inFlight || now.Before(s.nextPoll) {
		return
	}

	s.inFlight = true
	s.nextPoll = s.nextPoll.Add(s.interval)
	if !s.nextPoll.After(now) {
		missed := now.Sub(s.nextPoll) / s.interval
		s.nextPoll = s.nextPoll.Add((missed + 1) * s.interval)
	}

	var v runtime.Value
	s.dispatcher.Go(func() error {
		var err error
		v, err = s.session.Read(context.Background(), s.tag)
		return err
	}, func(err error) {
		s.inFlight = false
		if err != nil {
			s.failures.Inc()
			klog.V(2).InfoS("Failed to read tag", "device", s.device, "tag", s.tag, "err", err)
			return
		}
		s.onPollValue(v)
	})
}

func (s *Sampler) onPollValue(v runtime.Value) {
	text := v.Format(s.format)
	errText := v.ErrorText()
	if s.seen && text == s.lastText && errText == s.lastErr {
		klog.V(5).InfoS("Unchanged", "device", s.device, "tag", s.tag)
		return
	}
	s.seen = true
	s.lastText = text
	s.lastErr = errText
	s.record(v)
}

func (s *Sampler) record(v runtime.Value) {
	s.samples.Inc()
	s.recorder.Record(&Record{
		Time:   s.clock.Now(),
		Device: s.device,
		Tag:    s.tag,
		Type:   v.Type,
		Value:  v.Format(s.format),
	})
}

type Status struct {
	Tag      string `json:"tag"`
	Mode     string `json:"mode"`
	Interval string `json:"interval,omitempty"`
	Samples  int64  `json:"samples"`
	Failures int64  `json:"failures"`
	// Pending is set while a failed subscription waits for its retry.
	Pending bool `json:"pending,omitempty"`
}

// Status may be called from any goroutine.
func (s *Sampler) Status() Status {
	st := Status{
		Tag:      s.tag,
		Mode:     s.mode.String(),
		Samples:  s.samples.Load(),
		Failures: s.failures.Load(),
		Pending:  s.pending.Load(),
	}
	if s.mode == ModePolling {
		st.Interval = s.interval.String()
	}
	return st
}
