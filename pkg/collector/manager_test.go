package collector

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
	"sync"
	"taglogger/pkg/runtime"
	"taglogger/pkg/runtime/constant"
	"taglogger/pkg/runtime/runtimetest"
	"taglogger/pkg/sampler"
	v1 "taglogger/pkg/v1"
	"testing"
	"time"
)

const waitFor = 5 * time.Second
const pollEvery = 5 * time.Millisecond

type memPublisher struct {
	mu      sync.Mutex
	records []*sampler.Record
}

func (p *memPublisher) Publish(rec *sampler.Record) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.records = append(p.records, rec)
}

func (p *memPublisher) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.records)
}

func (p *memPublisher) Get(i int) *sampler.Record {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.records[i]
}

type fixture struct {
	m        *Manager
	clock    *clocktesting.FakeClock
	sessions map[string]*runtimetest.Session
	pub      *memPublisher
}

func newFixture(t *testing.T, devices []*v1.Device) *fixture {
	t.Helper()
	f := &fixture{
		clock:    clocktesting.NewFakeClock(time.Date(2024, 3, 1, 0, 0, 0, 0, time.Local)),
		sessions: make(map[string]*runtimetest.Session),
		pub:      &memPublisher{},
	}
	for _, d := range devices {
		f.sessions[d.URL] = runtimetest.NewSession()
	}
	f.m = NewCollectorManager(devices,
		WithClock(f.clock),
		WithPublisher(f.pub),
		WithSessionFactory("fake", func(address string, opts runtime.SessionOptions) (runtime.Session, error) {
			return f.sessions[address], nil
		}),
	)
	return f
}

func (f *fixture) waitState(t *testing.T, name, state string) {
	t.Helper()
	require.Eventually(t, func() bool {
		d, ok := f.m.GetDevice(name)
		return ok && d.State == state
	}, waitFor, pollEvery, "device %s never reached %s", name, state)
}

// step advances the fake clock by d and waits until the loop handled the tick.
func (f *fixture) step(t *testing.T, d time.Duration) {
	t.Helper()
	before := f.m.Ticks()
	f.clock.Step(d)
	require.Eventually(t, func() bool {
		return f.m.Ticks() > before
	}, waitFor, pollEvery)
}

func TestManagerInitRejectsUnknownScheme(t *testing.T) {
	dir := t.TempDir()
	f := newFixture(t, []*v1.Device{
		{URL: "fake://a", Filename: filepath.Join(dir, "a.txt")},
		{URL: "modbus://b", Filename: filepath.Join(dir, "b.txt")},
	})
	err := f.m.Init()
	require.Error(t, err)
	assert.True(t, errors.Is(err, constant.ErrUnsupportedScheme))

	// the first file must be unlocked again
	f2 := newFixture(t, []*v1.Device{{URL: "fake://a", Filename: filepath.Join(dir, "a.txt")}})
	require.NoError(t, f2.m.Init())
	require.NoError(t, f2.m.Shutdown(context.Background()))
}

func TestManagerShutdownWithoutStart(t *testing.T) {
	f := newFixture(t, []*v1.Device{{URL: "fake://a", Filename: filepath.Join(t.TempDir(), "a.txt")}})
	require.NoError(t, f.m.Init())
	require.NoError(t, f.m.Shutdown(context.Background()))
	d, ok := f.m.GetDevice("fake://a")
	require.True(t, ok)
	assert.Equal(t, "closed", d.State)
	assert.Zero(t, f.sessions["fake://a"].Logins())
}

func TestManagerEndToEnd(t *testing.T) {
	path := filepath.Join(t.TempDir(), "press.txt")
	poll := intstr.FromInt(2000)
	f := newFixture(t, []*v1.Device{{
		Name:     "press",
		URL:      "fake://press",
		Filename: path,
		Tags: []*v1.Tag{
			{Tag: "sub"},
			{Tag: "poll", Interval: &poll},
		},
	}})
	sess := f.sessions["fake://press"]
	var reads int
	var mu sync.Mutex
	sess.ReadFunc = func(ctx context.Context, tag string) (runtime.Value, error) {
		mu.Lock()
		defer mu.Unlock()
		reads++
		if reads == 1 {
			return runtime.Value{}, errors.New("device busy")
		}
		return runtime.TextValue("INT32", "42"), nil
	}

	require.NoError(t, f.m.Init())
	f.m.Start()
	f.waitState(t, "press", "running")
	require.Eventually(t, func() bool { return sess.Subscribed("sub") && f.clock.HasWaiters() }, waitFor, pollEvery)

	// subscription value at 100ms
	f.clock.Step(100 * time.Millisecond)
	require.True(t, sess.Emit("sub", runtime.NumberValue("DOUBLE", 1.5, "1.5")))
	require.Eventually(t, func() bool { return f.pub.Len() == 1 }, waitFor, pollEvery)

	// first poll fails: diagnostic only
	f.step(t, 900*time.Millisecond)
	require.Eventually(t, func() bool {
		d, _ := f.m.GetDevice("press")
		return d.Tags[1].Failures == 1
	}, waitFor, pollEvery)
	assert.Equal(t, 1, f.pub.Len())

	f.step(t, time.Second)
	assert.Equal(t, 1, sess.Reads("poll"), "next poll is due one interval after the first")

	f.step(t, time.Second)
	require.Eventually(t, func() bool { return f.pub.Len() == 2 }, waitFor, pollEvery)
	assert.Equal(t, "poll", f.pub.Get(1).Tag)

	require.NoError(t, f.m.Shutdown(context.Background()))
	assert.Equal(t, 1, sess.Logouts())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSuffix(string(data), "\r\n"), "\r\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "2024-03-01 00:00:00.100\tsub\tDOUBLE\t1.5", lines[0])
	assert.Equal(t, "2024-03-01 00:00:03.000\tpoll\tINT32\t42", lines[1])
}

func TestManagerShutdownWaitsForSlowLogout(t *testing.T) {
	dir := t.TempDir()
	f := newFixture(t, []*v1.Device{
		{Name: "fast", URL: "fake://fast", Filename: filepath.Join(dir, "fast.txt")},
		{Name: "slow", URL: "fake://slow", Filename: filepath.Join(dir, "slow.txt")},
	})
	release := make(chan struct{})
	f.sessions["fake://slow"].LogoutFunc = func(ctx context.Context) error {
		<-release
		return nil
	}

	require.NoError(t, f.m.Init())
	f.m.Start()
	f.waitState(t, "fast", "running")
	f.waitState(t, "slow", "running")

	returned := make(chan error, 1)
	go func() {
		returned <- f.m.Shutdown(context.Background())
	}()

	f.waitState(t, "fast", "closed")
	f.waitState(t, "slow", "close")
	select {
	case <-returned:
		t.Fatal("shutdown returned before every device closed")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	select {
	case err := <-returned:
		require.NoError(t, err)
	case <-time.After(waitFor):
		t.Fatal("shutdown did not return")
	}
	for _, d := range f.m.ListDevices() {
		assert.Equal(t, "closed", d.State, d.Name)
	}
}

func TestManagerShutdownContextExpires(t *testing.T) {
	f := newFixture(t, []*v1.Device{{URL: "fake://slow", Filename: filepath.Join(t.TempDir(), "slow.txt")}})
	release := make(chan struct{})
	defer close(release)
	f.sessions["fake://slow"].LogoutFunc = func(ctx context.Context) error {
		<-release
		return nil
	}
	require.NoError(t, f.m.Init())
	f.m.Start()
	f.waitState(t, "fake://slow", "running")

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, f.m.Shutdown(ctx), context.DeadlineExceeded)
}

func TestManagerRetriesAfterConnectionLoss(t *testing.T) {
	f := newFixture(t, []*v1.Device{{Name: "press", URL: "fake://press", Filename: filepath.Join(t.TempDir(), "press.txt")}})
	sess := f.sessions["fake://press"]
	require.NoError(t, f.m.Init())
	f.m.Start()
	f.waitState(t, "press", "running")
	require.Eventually(t, f.clock.HasWaiters, waitFor, pollEvery)

	sess.SetConnected(false)
	f.step(t, time.Second)
	f.waitState(t, "press", "fail")

	for i := 0; i < 29; i++ {
		f.step(t, time.Second)
	}
	d, _ := f.m.GetDevice("press")
	assert.Equal(t, "fail", d.State)
	assert.Equal(t, 1, sess.Logins())

	f.step(t, time.Second)
	f.waitState(t, "press", "running")
	assert.Equal(t, 2, sess.Logins())

	require.NoError(t, f.m.Shutdown(context.Background()))
}
