package collector

import (
	"time"
)

const (
	DefaultTickPeriod     = 1 * time.Second
	DefaultRequestTimeout = 10 * time.Second
)
