package sampler

import (
	"strings"
	"time"
)

const TimestampLayout = "2006-01-02 15:04:05.000"

// Record is one logged sample.
type Record struct {
	Time   time.Time `json:"timestamp"`
	Device string    `json:"device"`
	Tag    string    `json:"tag"`
	Type   string    `json:"type"`
	Value  string    `json:"value"`
}

// Line renders r as a tab separated, CRLF terminated log file line.
func (r *Record) Line() string {
	var b strings.Builder
	b.Grow(len(TimestampLayout) + len(r.Tag) + len(r.Type) + len(r.Value) + 5)
	b.WriteString(r.Time.Format(TimestampLayout))
	b.WriteByte('\t')
	b.WriteString(r.Tag)
	b.WriteByte('\t')
	b.WriteString(r.Type)
	b.WriteByte('\t')
	b.WriteString(r.Value)
	b.WriteString("\r\n")
	return b.String()
}

// Recorder receives every sample that passed change detection.
type Recorder interface {
	Record(rec *Record)
}

type RecorderFunc func(rec *Record)

func (f RecorderFunc) Record(rec *Record) {
	f(rec)
}

// Publisher mirrors recorded samples to an external sink. Publish must not block.
type Publisher interface {
	Publish(rec *Record)
}
