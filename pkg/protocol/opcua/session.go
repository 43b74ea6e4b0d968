package opcua

import (
	"context"
	"github.com/gopcua/opcua"
	"github.com/gopcua/opcua/ua"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
	"k8s.io/utils/clock"
	"sync"
	"taglogger/pkg/runtime"
	"taglogger/pkg/runtime/constant"
	"time"
)

const (
	Scheme = "opc.tcp"

	defaultRequestTimeout  = 10 * time.Second
	defaultPublishInterval = 500 * time.Millisecond
	notifyBuffer           = 64
)

type request struct {
	start    time.Time
	cancel   context.CancelFunc
	timedOut bool
}

// Session is an OPC UA session speaking to one server endpoint. Tags are node
// ids such as "ns=2;s=Temperature".
type Session struct {
	endpoint        string
	requestTimeout  time.Duration
	publishInterval time.Duration
	dial            func(endpoint string, opts ...opcua.Option) (Messenger, error)
	clock           clock.PassiveClock

	mu          sync.Mutex
	client      Messenger
	sub         Monitor
	stopPump    context.CancelFunc
	items       map[uint32]*monitoredItem
	nextHandle  uint32
	requests    map[uint64]*request
	nextRequest uint64
}

var _ runtime.Session = (*Session)(nil)

func NewSession(address string, opts runtime.SessionOptions) (runtime.Session, error) {
	return newSession(address, opts), nil
}

func newSession(address string, opts runtime.SessionOptions) *Session {
	s := &Session{
		endpoint:        address,
		requestTimeout:  opts.RequestTimeout,
		publishInterval: defaultPublishInterval,
		dial:            dial,
		clock:           clock.RealClock{},
		items:           make(map[uint32]*monitoredItem),
		requests:        make(map[uint64]*request),
	}
	if s.requestTimeout <= 0 {
		s.requestTimeout = defaultRequestTimeout
	}
	return s
}

// Login opens a new client. A client left over from an earlier login is
// closed first.
func (s *Session) Login(ctx context.Context, user string, password string) error {
	if err := s.teardown(ctx); err != nil {
		klog.V(4).InfoS("Failed to close previous client", "endpoint", s.endpoint, "err", err)
	}

	opts := []opcua.Option{
		opcua.SecurityPolicy(ua.SecurityPolicyURINone),
		opcua.SecurityMode(ua.MessageSecurityModeNone),
		opcua.AutoReconnect(false),
		opcua.RequestTimeout(s.requestTimeout),
	}
	if len(user) > 0 {
		opts = append(opts, opcua.AuthUsername(user, password))
	} else {
		opts = append(opts, opcua.AuthAnonymous())
	}

	c, err := s.dial(s.endpoint, opts...)
	if err != nil {
		return errors.Wrapf(err, "create client for %s", s.endpoint)
	}
	if err = c.Connect(ctx); err != nil {
		_ = c.Close(context.Background())
		return errors.Wrapf(err, "connect %s", s.endpoint)
	}

	notifyCh := make(chan *opcua.PublishNotificationData, notifyBuffer)
	sub, err := c.Subscribe(ctx, &opcua.SubscriptionParameters{Interval: s.publishInterval}, notifyCh)
	if err != nil {
		_ = c.Close(context.Background())
		return errors.Wrapf(err, "create subscription on %s", s.endpoint)
	}

	pumpCtx, cancel := context.WithCancel(context.Background())
	s.mu.Lock()
	s.client = c
	s.sub = sub
	s.stopPump = cancel
	s.mu.Unlock()
	go s.pump(pumpCtx, notifyCh)

	klog.V(2).InfoS("Connected OPC UA server", "endpoint", s.endpoint)
	return nil
}

func (s *Session) Logout(ctx context.Context) error {
	return s.teardown(ctx)
}

func (s *Session) teardown(ctx context.Context) error {
	s.mu.Lock()
	c, sub, stop := s.client, s.sub, s.stopPump
	s.client, s.sub, s.stopPump = nil, nil, nil
	for h, item := range s.items {
		item.cancelled = true
		delete(s.items, h)
	}
	for _, r := range s.requests {
		r.cancel()
	}
	s.mu.Unlock()

	if stop != nil {
		stop()
	}
	if sub != nil {
		if err := sub.Cancel(ctx); err != nil {
			klog.V(4).InfoS("Failed to cancel subscription", "endpoint", s.endpoint, "err", err)
		}
	}
	if c == nil {
		return nil
	}
	return c.Close(ctx)
}

func (s *Session) ConnectionOK() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Available(s.client)
}

// TestTimeouts cancels reads that have been running longer than the request timeout.
func (s *Session) TestTimeouts() {
	now := s.clock.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.requests {
		if !r.timedOut && now.Sub(r.start) >= s.requestTimeout {
			r.timedOut = true
			r.cancel()
		}
	}
}

func (s *Session) Read(ctx context.Context, tag string) (runtime.Value, error) {
	id, err := ua.ParseNodeID(tag)
	if err != nil {
		return runtime.Value{}, errors.Wrapf(constant.ErrUnknownTag, "%s: %v", tag, err)
	}

	s.mu.Lock()
	c := s.client
	if c == nil {
		s.mu.Unlock()
		return runtime.Value{}, constant.ErrNotConnected
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	s.nextRequest++
	key := s.nextRequest
	r := &request{start: s.clock.Now(), cancel: cancel}
	s.requests[key] = r
	s.mu.Unlock()

	resp, err := c.Read(ctx, &ua.ReadRequest{
		MaxAge:             2000,
		TimestampsToReturn: ua.TimestampsToReturnBoth,
		NodesToRead: []*ua.ReadValueID{
			{NodeID: id, AttributeID: ua.AttributeIDValue},
		},
	})

	s.mu.Lock()
	delete(s.requests, key)
	timedOut := r.timedOut
	s.mu.Unlock()

	if err != nil {
		if timedOut {
			return runtime.Value{}, errors.Wrapf(constant.ErrRequestTimeout, "read %s", tag)
		}
		return runtime.Value{}, errors.Wrapf(err, "read %s", tag)
	}
	if resp == nil || len(resp.Results) == 0 {
		return runtime.Value{}, errors.Errorf("read %s: empty response", tag)
	}
	return toValue(resp.Results[0]), nil
}

type monitoredItem struct {
	session   *Session
	handle    uint32
	tag       string
	node      *ua.NodeID
	onValue   func(runtime.Value)
	id        uint32
	cancelled bool
}

func (s *Session) Subscribe(tag string, profile string, onValue func(runtime.Value)) (runtime.Subscription, error) {
	id, err := ua.ParseNodeID(tag)
	if err != nil {
		return nil, errors.Wrapf(constant.ErrUnknownTag, "%s: %v", tag, err)
	}

	s.mu.Lock()
	sub := s.sub
	if sub == nil {
		s.mu.Unlock()
		return nil, constant.ErrNotConnected
	}
	s.nextHandle++
	item := &monitoredItem{
		session: s,
		handle:  s.nextHandle,
		tag:     tag,
		node:    id,
		onValue: onValue,
	}
	s.items[item.handle] = item
	s.mu.Unlock()

	go s.monitor(sub, item)
	return item, nil
}

func (s *Session) monitor(sub Monitor, item *monitoredItem) {
	ctx, cancel := context.WithTimeout(context.Background(), s.requestTimeout)
	defer cancel()

	req := opcua.NewMonitoredItemCreateRequestWithDefaults(item.node, ua.AttributeIDValue, item.handle)
	res, err := sub.Monitor(ctx, ua.TimestampsToReturnBoth, req)
	if err == nil && (res == nil || len(res.Results) == 0) {
		err = errors.New("empty monitor response")
	}
	if err == nil && res.Results[0].StatusCode != ua.StatusOK {
		err = res.Results[0].StatusCode
	}

	s.mu.Lock()
	cancelled := item.cancelled
	if err == nil {
		item.id = res.Results[0].MonitoredItemID
	}
	s.mu.Unlock()

	if err != nil {
		klog.V(2).InfoS("Failed to monitor tag", "endpoint", s.endpoint, "tag", item.tag, "err", err)
		if !cancelled {
			item.onValue(runtime.ErrorValue(typeName(runtime.UNKNOWN), err.Error()))
		}
		return
	}
	if cancelled {
		s.unmonitor(sub, res.Results[0].MonitoredItemID)
	}
}

func (s *Session) unmonitor(sub Monitor, id uint32) {
	ctx, cancel := context.WithTimeout(context.Background(), s.requestTimeout)
	defer cancel()
	if _, err := sub.Unmonitor(ctx, id); err != nil {
		klog.V(4).InfoS("Failed to unmonitor", "endpoint", s.endpoint, "id", id, "err", err)
	}
}

func (item *monitoredItem) Cancel() {
	s := item.session
	s.mu.Lock()
	if item.cancelled {
		s.mu.Unlock()
		return
	}
	item.cancelled = true
	delete(s.items, item.handle)
	id, sub := item.id, s.sub
	s.mu.Unlock()

	if id != 0 && sub != nil {
		go s.unmonitor(sub, id)
	}
}

func (s *Session) pump(ctx context.Context, notifyCh <-chan *opcua.PublishNotificationData) {
	for {
		select {
		case <-ctx.Done():
			return
		case res, ok := <-notifyCh:
			if !ok {
				return
			}
			if res.Error != nil {
				klog.V(2).InfoS("Subscription error", "endpoint", s.endpoint, "err", res.Error)
				continue
			}
			switch x := res.Value.(type) {
			case *ua.DataChangeNotification:
				for _, n := range x.MonitoredItems {
					s.deliver(n.ClientHandle, n.Value)
				}
			case *ua.StatusChangeNotification:
				klog.V(2).InfoS("Subscription status changed", "endpoint", s.endpoint, "status", x.Status)
			}
		}
	}
}

func (s *Session) deliver(handle uint32, dv *ua.DataValue) {
	s.mu.Lock()
	item, ok := s.items[handle]
	s.mu.Unlock()
	if !ok {
		return
	}
	item.onValue(toValue(dv))
}
