package mqtt

import (
	"context"
	"encoding/json"
	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/atomic"
	"k8s.io/klog/v2"
	"strings"
	"taglogger/pkg/sampler"
)

// wildcards are not allowed in a publish topic
var topicEscaper = strings.NewReplacer("+", "_", "#", "_")

// Publisher mirrors recorded samples to an MQTT broker. Publish only enqueues,
// samples are dropped when the queue is full.
type Publisher struct {
	client mqtt.Client
	topic  string
	qos    byte

	queue     chan *sampler.Record
	stop      chan struct{}
	done      chan struct{}
	started   *atomic.Bool
	closed    *atomic.Bool
	published *atomic.Int64
	dropped   *atomic.Int64
}

var _ sampler.Publisher = (*Publisher)(nil)

func NewPublisher(client mqtt.Client, o Options) *Publisher {
	size := o.Queue
	if size <= 0 {
		size = _defaultQueue
	}
	topic := strings.TrimSuffix(o.Topic, "/")
	if len(topic) == 0 {
		topic = _defaultTopic
	}
	return &Publisher{
		client:    client,
		topic:     topic,
		qos:       o.QoS,
		queue:     make(chan *sampler.Record, size),
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
		started:   atomic.NewBool(false),
		closed:    atomic.NewBool(false),
		published: atomic.NewInt64(0),
		dropped:   atomic.NewInt64(0),
	}
}

// Start connects the client and begins draining the queue.
func (p *Publisher) Start() error {
	if !p.started.CAS(false, true) {
		return nil
	}
	token := p.client.Connect()
	if token.WaitTimeout(mqttTimeout) && token.Error() != nil {
		p.started.Store(false)
		return token.Error()
	}
	go p.run()
	return nil
}

func (p *Publisher) Publish(rec *sampler.Record) {
	if p.closed.Load() {
		return
	}
	select {
	case p.queue <- rec:
	default:
		p.dropped.Inc()
		klog.V(4).InfoS("Dropped MQTT sample", "device", rec.Device, "tag", rec.Tag)
	}
}

func (p *Publisher) Topic(rec *sampler.Record) string {
	return p.topic + "/" + topicEscaper.Replace(rec.Device) + "/" + topicEscaper.Replace(rec.Tag)
}

func (p *Publisher) run() {
	defer close(p.done)
	for {
		select {
		case <-p.stop:
			return
		case rec := <-p.queue:
			p.send(rec)
		}
	}
}

func (p *Publisher) send(rec *sampler.Record) {
	payload, err := json.Marshal(rec)
	if err != nil {
		klog.V(1).InfoS("Failed to marshal sample", "err", err)
		return
	}
	topic := p.Topic(rec)
	token := p.client.Publish(topic, p.qos, false, payload)
	if token.WaitTimeout(mqttTimeout) && token.Error() == nil {
		p.published.Inc()
		klog.V(5).InfoS("Succeed to publish MQTT", "topic", topic)
	} else {
		klog.V(1).InfoS("Failed to publish MQTT", "topic", topic, "err", token.Error())
	}
}

// Close stops publishing, flushing what is queued until ctx expires.
func (p *Publisher) Close(ctx context.Context) error {
	if !p.closed.CAS(false, true) {
		return nil
	}
	if !p.started.Load() {
		return nil
	}
	close(p.stop)
	<-p.done
flush:
	for {
		select {
		case <-ctx.Done():
			break flush
		case rec := <-p.queue:
			p.send(rec)
		default:
			break flush
		}
	}
	p.client.Disconnect(250)
	return ctx.Err()
}

func (p *Publisher) Published() int64 {
	return p.published.Load()
}

func (p *Publisher) Dropped() int64 {
	return p.dropped.Load()
}
