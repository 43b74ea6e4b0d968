package v1

import (
	"github.com/pkg/errors"
	"k8s.io/apimachinery/pkg/util/intstr"
	"time"
)

type Device struct {
	// Name identifies the device in diagnostics, defaults to URL.
	Name     string `json:"name,omitempty"`
	URL      string `json:"url"`
	User     string `json:"user,omitempty"`
	Password string `json:"password,omitempty"`
	Filename string `json:"filename"`
	Append   bool   `json:"append,omitempty"`
	Tags     []*Tag `json:"tags,omitempty"`
}

type Tag struct {
	Tag      string `json:"tag"`
	FloatRes string `json:"floatres,omitempty"`
	// Interval is milliseconds when an integer, a duration like "5s" when a string.
	// Absent or zero selects subscription mode, negative is invalid.
	Interval *intstr.IntOrString `json:"interval,omitempty"`
}

func (d *Device) GetName() string {
	if len(d.Name) > 0 {
		return d.Name
	}
	return d.URL
}

// PollInterval returns the polling period, zero for subscription mode.
func (t *Tag) PollInterval() (time.Duration, error) {
	if t.Interval == nil {
		return 0, nil
	}
	var d time.Duration
	switch t.Interval.Type {
	case intstr.Int:
		d = time.Duration(t.Interval.IntValue()) * time.Millisecond
	case intstr.String:
		if len(t.Interval.StrVal) == 0 {
			return 0, nil
		}
		var err error
		d, err = time.ParseDuration(t.Interval.StrVal)
		if err != nil {
			return 0, errors.Wrapf(err, "interval %q", t.Interval.StrVal)
		}
	}
	if d < 0 {
		return 0, errors.Errorf("interval %s must not be negative", t.Interval.String())
	}
	return d, nil
}
