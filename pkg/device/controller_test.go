package device

import (
	"context"
	"errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"k8s.io/apimachinery/pkg/util/intstr"
	clocktesting "k8s.io/utils/clock/testing"
	"os"
	"path/filepath"
	"strings"
	"taglogger/pkg/runtime"
	"taglogger/pkg/runtime/runtimetest"
	"taglogger/pkg/sampler"
	"taglogger/pkg/storage"
	v1 "taglogger/pkg/v1"
	"testing"
	"time"
)

type fakeSink struct {
	lines  []string
	closes int
}

func (s *fakeSink) WriteLine(line string) error {
	s.lines = append(s.lines, line)
	return nil
}

func (s *fakeSink) Close() error {
	s.closes++
	return nil
}

func (s *fakeSink) Path() string {
	return "fake"
}

var _ storage.Sink = (*fakeSink)(nil)

type fakePublisher struct {
	records []*sampler.Record
}

func (p *fakePublisher) Publish(rec *sampler.Record) {
	p.records = append(p.records, rec)
}

type harness struct {
	c       *Controller
	session *runtimetest.Session
	d       *runtimetest.Dispatcher
	clock   *clocktesting.FakeClock
	sink    *fakeSink
	pub     *fakePublisher
	path    []State
}

func newHarness(t *testing.T, cfg *v1.Device) *harness {
	t.Helper()
	h := &harness{
		session: runtimetest.NewSession(),
		d:       &runtimetest.Dispatcher{},
		clock:   clocktesting.NewFakeClock(time.Date(2024, 3, 1, 0, 0, 0, 0, time.Local)),
		sink:    &fakeSink{},
		pub:     &fakePublisher{},
	}
	c, err := NewController(cfg, Options{
		Session:    h.session,
		Sink:       h.sink,
		Dispatcher: h.d,
		Clock:      h.clock,
		Publisher:  h.pub,
		OnTransition: func(from, to State) {
			if !Allowed(from, to) {
				t.Errorf("transition %s -> %s is not in the lifecycle graph", from, to)
			}
			h.path = append(h.path, to)
		},
	})
	require.NoError(t, err)
	h.c = c
	return h
}

func (h *harness) tick() {
	h.c.DoTimer(h.clock.Now())
	h.d.Drain()
}

func isClosed(ch <-chan struct{}) bool {
	select {
	case <-ch:
		return true
	default:
		return false
	}
}

func testDevice(tags ...*v1.Tag) *v1.Device {
	return &v1.Device{URL: "sim://press", User: "u", Password: "p", Filename: "press.txt", Tags: tags}
}

func TestControllerLoginAndRun(t *testing.T) {
	h := newHarness(t, testDevice(&v1.Tag{Tag: "temp"}))

	h.c.Start()
	assert.Equal(t, Connecting, h.c.State())
	h.d.Drain()

	assert.Equal(t, Running, h.c.State())
	assert.Equal(t, []State{Connecting, StartSubscr, Running}, h.path)
	assert.True(t, h.session.Subscribed("temp"))

	h.session.Emit("temp", runtime.TextValue("INT32", "5"))
	h.d.Drain()
	require.Len(t, h.sink.lines, 1)
	assert.True(t, strings.HasSuffix(h.sink.lines[0], "\ttemp\tINT32\t5\r\n"))
	require.Len(t, h.pub.records, 1)
	assert.Equal(t, "sim://press", h.pub.records[0].Device)

	h.tick()
	assert.Equal(t, 1, h.session.TimeoutChecks())
}

func TestControllerRetryAfterLoginFailure(t *testing.T) {
	h := newHarness(t, testDevice())
	h.session.LoginFunc = func(ctx context.Context, user, password string) error {
		return errors.New("bad credentials")
	}

	h.c.Start()
	h.d.Drain()
	require.Equal(t, Fail, h.c.State())
	assert.Equal(t, 1, h.session.Logouts(), "fail issues a logout")

	for i := 0; i < 29; i++ {
		h.clock.Step(time.Second)
		h.tick()
		require.Equal(t, Fail, h.c.State(), "retried after %ds", i+1)
	}
	h.clock.Step(time.Second)
	h.c.DoTimer(h.clock.Now())
	assert.Equal(t, Connecting, h.c.State())
	h.d.Drain()
	assert.Equal(t, Fail, h.c.State())
	assert.Equal(t, 2, h.session.Logins())

	st := h.c.Status()
	assert.Equal(t, "fail", st.State)
	assert.Equal(t, "bad credentials", st.LastError)
}

func TestControllerConnectionLost(t *testing.T) {
	h := newHarness(t, testDevice(&v1.Tag{Tag: "temp"}))
	h.c.Start()
	h.d.Drain()
	require.Equal(t, Running, h.c.State())

	h.session.SetConnected(false)
	h.tick()
	assert.Equal(t, Fail, h.c.State())
	assert.False(t, h.session.Subscribed("temp"))

	h.clock.Step(DefaultRetryDelay)
	h.tick()
	assert.Equal(t, Running, h.c.State())
	assert.True(t, h.session.Subscribed("temp"))
	assert.Equal(t, []State{Connecting, StartSubscr, Running, Fail, Connecting, StartSubscr, Running}, h.path)
}

func TestControllerSkipsLogoutOvertakenByLogin(t *testing.T) {
	h := newHarness(t, testDevice(&v1.Tag{Tag: "temp"}))
	h.c.Start()
	h.d.Drain()
	require.Equal(t, Running, h.c.State())

	h.session.SetConnected(false)
	h.c.DoTimer(h.clock.Now())
	require.Equal(t, Fail, h.c.State())

	// the logout from fail is still queued when the retry logs in again
	h.clock.Step(DefaultRetryDelay)
	h.c.DoTimer(h.clock.Now())
	require.Equal(t, Connecting, h.c.State())
	h.d.Drain()

	assert.Equal(t, Running, h.c.State())
	assert.Zero(t, h.session.Logouts())
	assert.Equal(t, 2, h.session.Logins())
	assert.True(t, h.session.ConnectionOK())
}

func TestControllerPollsOnlyWhileRunning(t *testing.T) {
	iv := intstr.FromInt(1000)
	h := newHarness(t, testDevice(&v1.Tag{Tag: "counter", Interval: &iv}))
	h.session.LoginFunc = func(ctx context.Context, user, password string) error {
		return errors.New("down")
	}
	h.c.Start()
	h.d.Drain()
	h.tick()
	assert.Zero(t, h.session.Reads("counter"))

	h.session.LoginFunc = nil
	h.clock.Step(DefaultRetryDelay)
	h.tick()
	require.Equal(t, Running, h.c.State())
	h.tick()
	assert.Equal(t, 1, h.session.Reads("counter"))
}

func TestControllerGracefulClose(t *testing.T) {
	h := newHarness(t, testDevice(&v1.Tag{Tag: "temp"}))
	h.c.Start()
	h.d.Drain()

	done := h.c.Close()
	assert.Equal(t, Close, h.c.State())
	assert.False(t, isClosed(done), "waits for logout")
	assert.Zero(t, h.sink.closes)

	again := h.c.Close()
	h.d.Drain()
	assert.Equal(t, Closed, h.c.State())
	assert.True(t, isClosed(done))
	assert.True(t, isClosed(again))
	assert.Equal(t, 1, h.sink.closes)
	assert.Equal(t, 1, h.session.Logouts())

	h.c.Close()
	h.d.Drain()
	assert.Equal(t, 1, h.sink.closes)
	assert.Equal(t, []State{Connecting, StartSubscr, Running, Close, Closed}, h.path)
}

func TestControllerCloseFromFail(t *testing.T) {
	h := newHarness(t, testDevice())
	h.session.LoginFunc = func(ctx context.Context, user, password string) error {
		return errors.New("down")
	}
	h.c.Start()
	h.d.Drain()
	require.Equal(t, Fail, h.c.State())

	done := h.c.Close()
	assert.Equal(t, Closed, h.c.State())
	assert.True(t, isClosed(done))
	assert.Equal(t, 1, h.sink.closes)
}

func TestControllerCloseFromIdle(t *testing.T) {
	h := newHarness(t, testDevice())
	done := h.c.Close()
	assert.True(t, isClosed(done))
	assert.Equal(t, []State{Closed}, h.path)
	assert.Zero(t, h.session.Logins())
}

func TestControllerCloseWhileConnecting(t *testing.T) {
	for _, loginErr := range []error{nil, errors.New("down")} {
		h := newHarness(t, testDevice(&v1.Tag{Tag: "temp"}))
		h.session.LoginFunc = func(ctx context.Context, user, password string) error {
			return loginErr
		}
		h.c.Start()
		done := h.c.Close()
		assert.Equal(t, Connecting, h.c.State())
		assert.False(t, isClosed(done))

		h.d.Drain()
		assert.Equal(t, Closed, h.c.State())
		assert.True(t, isClosed(done))
		assert.False(t, h.session.Subscribed("temp"), "samplers never start once close was requested")
		assert.Equal(t, 1, h.sink.closes)
	}
}

func TestControllerWritesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "press.txt")
	sink, err := storage.OpenFileSink(path, false)
	require.NoError(t, err)

	sess := runtimetest.NewSession()
	d := &runtimetest.Dispatcher{}
	c, err := NewController(testDevice(&v1.Tag{Tag: "temp", FloatRes: "0.01"}), Options{
		Session:    sess,
		Sink:       sink,
		Dispatcher: d,
		Clock:      clocktesting.NewFakeClock(time.Date(2024, 3, 1, 8, 0, 0, 0, time.Local)),
	})
	require.NoError(t, err)

	c.Start()
	d.Drain()
	sess.Emit("temp", runtime.NumberValue("DOUBLE", 21.4567, ""))
	d.Drain()
	c.Close()
	d.Drain()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "2024-03-01 08:00:00.000\ttemp\tDOUBLE\t21.46\r\n", string(data))
}
