package mqtt

import (
	mqtt "github.com/eclipse/paho.mqtt.golang"
	"k8s.io/klog/v2"
	"taglogger/pkg/utils/uuidutil"
	"time"
)

const (
	_defaultTopic = "taglogger"
	_defaultQueue = 1024
	mqttTimeout   = 5 * time.Second
)

type Options struct {
	// Broker like tcp://127.0.0.1:1883. Publishing is off when empty.
	Broker   string `json:"broker"`
	Topic    string `json:"topic"`
	ClientID string `json:"clientId"`
	Username string `json:"username"`
	Password string `json:"password"`
	QoS      byte   `json:"qos"`
	Queue    int    `json:"queue"`
}

func NewDefaultOptions() Options {
	return Options{
		Topic: _defaultTopic,
		Queue: _defaultQueue,
	}
}

func (o *Options) Enabled() bool {
	return len(o.Broker) > 0
}

// NewClient builds a paho client that keeps reconnecting in the background.
func NewClient(o Options) mqtt.Client {
	clientID := o.ClientID
	if len(clientID) == 0 {
		clientID = "taglogger-" + uuidutil.ShortUUID()
	}
	opts := mqtt.NewClientOptions().
		AddBroker(o.Broker).
		SetClientID(clientID).
		SetUsername(o.Username).
		SetPassword(o.Password).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetOnConnectHandler(func(c mqtt.Client) {
			klog.InfoS("Connected to MQTT broker", "broker", o.Broker, "clientId", clientID)
		}).
		SetConnectionLostHandler(func(c mqtt.Client, err error) {
			klog.InfoS("Lost MQTT connection", "broker", o.Broker, "err", err)
		})
	return mqtt.NewClient(opts)
}
