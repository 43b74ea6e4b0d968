package options

import (
	"context"
	"github.com/spf13/pflag"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"taglogger/cmd/taglogger/config"
	"taglogger/pkg/collector"
	"taglogger/pkg/device"
	"taglogger/pkg/gateway"
	"taglogger/pkg/generic"
	baseoptions "taglogger/pkg/generic/options"
	"taglogger/pkg/mqtt"
	"taglogger/pkg/runtime"
	v1 "taglogger/pkg/v1"
	"time"
)

type Options struct {
	Devices        []*v1.Device    `json:"devices"`
	TickPeriod     metav1.Duration `json:"tickPeriod"`
	RetryDelay     metav1.Duration `json:"retryDelay"`
	RequestTimeout metav1.Duration `json:"requestTimeout"`
	// Port of the status API, disabled when empty.
	Port     string          `json:"port"`
	CertFile string          `json:"certFile,omitempty"`
	KeyFile  string          `json:"keyFile,omitempty"`
	Wait     metav1.Duration `json:"gracefulTimeout"`
	MQTT     mqtt.Options    `json:"mqtt"`
	baseoptions.BaseOptions
}

const (
	_defaultWait = 15 * time.Second
)

func NewDefaultOptions() *Options {
	return &Options{
		Devices:        []*v1.Device{},
		TickPeriod:     metav1.Duration{Duration: collector.DefaultTickPeriod},
		RetryDelay:     metav1.Duration{Duration: device.DefaultRetryDelay},
		RequestTimeout: metav1.Duration{Duration: collector.DefaultRequestTimeout},
		Wait:           metav1.Duration{Duration: _defaultWait},
		MQTT:           mqtt.NewDefaultOptions(),
		BaseOptions:    baseoptions.NewDefaultBaseOptions(),
	}
}

func (o *Options) AddFlags(fs *pflag.FlagSet) {
	fs.StringVarP(&o.Port, "port", "P", o.Port, "Port of the status API, the API is off when empty")
	fs.DurationVar(&o.TickPeriod.Duration, "tick-period", o.TickPeriod.Duration, "Period of the supervision tick driving retries, health checks and polling")
	fs.DurationVar(&o.RetryDelay.Duration, "retry-delay", o.RetryDelay.Duration, "Time a failed device waits before logging in again")
	fs.DurationVar(&o.RequestTimeout.Duration, "request-timeout", o.RequestTimeout.Duration, "Timeout of a single poll read")
	fs.DurationVar(&o.Wait.Duration, "graceful-timeout", o.Wait.Duration, "The duration for which the status API and the MQTT publisher wait on shutdown - e.g. 15s or 1m")
	fs.StringVar(&o.MQTT.Broker, "mqtt-broker", o.MQTT.Broker, "MQTT broker samples are mirrored to, e.g. tcp://127.0.0.1:1883")
	fs.StringVar(&o.MQTT.Topic, "mqtt-topic", o.MQTT.Topic, "Root topic of mirrored samples")
}

// Config builds the supervisor and its optional companions. Output files are
// opened here, any failure is fatal.
func (o *Options) Config() (*config.Config, error) {
	c := &config.Config{
		CertFile: o.CertFile,
		KeyFile:  o.KeyFile,
	}

	opts := []collector.Option{
		collector.WithTickPeriod(o.TickPeriod.Duration),
		collector.WithRetryDelay(o.RetryDelay.Duration),
		collector.WithRequestTimeout(o.RequestTimeout.Duration),
	}
	for scheme, fn := range generic.SessionFactories {
		opts = append(opts, collector.WithSessionFactory(scheme, fn))
	}
	if o.MQTT.Enabled() {
		c.Publisher = mqtt.NewPublisher(mqtt.NewClient(o.MQTT), o.MQTT)
		opts = append(opts, collector.WithPublisher(c.Publisher))
	}

	collectorMgr := collector.NewCollectorManager(o.Devices, opts...)
	if err := collectorMgr.Init(); err != nil {
		return nil, err
	}
	c.CollectorMgr = collectorMgr
	c.GatewayMgr = gateway.NewGatewayManager(gateway.WithOutputFiles(collectorMgr.OutputFiles()...))

	// devices first: the publisher must outlive the last samples
	c.Closers = append(c.Closers, runtime.LabeledCloser{
		Label: "devices",
		Closer: func(context.Context) error {
			return collectorMgr.Shutdown(context.Background())
		},
	})
	if c.Publisher != nil {
		c.Closers = append(c.Closers, runtime.LabeledCloser{Label: "mqtt", Closer: c.Publisher.Close})
	}
	return c, nil
}
