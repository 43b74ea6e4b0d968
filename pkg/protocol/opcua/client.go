package opcua

import (
	"context"
	"github.com/gopcua/opcua"
	"github.com/gopcua/opcua/ua"
)

type Messenger interface {
	Connect(ctx context.Context) error
	Close(ctx context.Context) error
	State() opcua.ConnState
	Read(ctx context.Context, req *ua.ReadRequest) (*ua.ReadResponse, error)
	Subscribe(ctx context.Context, params *opcua.SubscriptionParameters, notifyCh chan<- *opcua.PublishNotificationData) (Monitor, error)
}

type Monitor interface {
	Monitor(ctx context.Context, ts ua.TimestampsToReturn, items ...*ua.MonitoredItemCreateRequest) (*ua.CreateMonitoredItemsResponse, error)
	Unmonitor(ctx context.Context, monitoredItemIDs ...uint32) (*ua.DeleteMonitoredItemsResponse, error)
	Cancel(ctx context.Context) error
}

type UaClient struct {
	*opcua.Client
}

var _ Messenger = (*UaClient)(nil)

func (u *UaClient) Subscribe(ctx context.Context, params *opcua.SubscriptionParameters, notifyCh chan<- *opcua.PublishNotificationData) (Monitor, error) {
	sub, err := u.Client.Subscribe(ctx, params, notifyCh)
	if err != nil {
		return nil, err
	}
	return sub, nil
}

func Available(m Messenger) bool {
	return m != nil && m.State() == opcua.Connected
}

func dial(endpoint string, opts ...opcua.Option) (Messenger, error) {
	c, err := opcua.NewClient(endpoint, opts...)
	if err != nil {
		return nil, err
	}
	return &UaClient{Client: c}, nil
}
