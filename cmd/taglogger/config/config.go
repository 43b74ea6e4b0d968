package config

import (
	"taglogger/pkg/collector"
	"taglogger/pkg/gateway"
	"taglogger/pkg/mqtt"
	"taglogger/pkg/runtime"
)

type Config struct {
	CollectorMgr *collector.Manager
	GatewayMgr   *gateway.Manager
	// Publisher is nil unless a broker is configured.
	Publisher *mqtt.Publisher
	CertFile  string
	KeyFile   string
	// Closers run in order on shutdown.
	Closers []runtime.LabeledCloser
}
