package v1

import (
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"k8s.io/apimachinery/pkg/util/intstr"
	"k8s.io/apimachinery/pkg/util/validation/field"
	"sigs.k8s.io/yaml"
	"testing"
	"time"
)

func TestPollInterval(t *testing.T) {
	ms := intstr.FromInt(1500)
	str := intstr.FromString("2s")
	neg := intstr.FromInt(-1)
	negStr := intstr.FromString("-5s")
	bad := intstr.FromString("soon")
	empty := intstr.FromString("")

	tests := []struct {
		name     string
		interval *intstr.IntOrString
		want     time.Duration
		wantErr  bool
	}{
		{name: "absent"},
		{name: "millis", interval: &ms, want: 1500 * time.Millisecond},
		{name: "duration", interval: &str, want: 2 * time.Second},
		{name: "negative millis", interval: &neg, wantErr: true},
		{name: "negative duration", interval: &negStr, wantErr: true},
		{name: "empty", interval: &empty},
		{name: "invalid", interval: &bad, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := (&Tag{Tag: "t", Interval: tt.interval}).PollInterval()
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDecodeDevices(t *testing.T) {
	data := []byte(`
- url: opc.tcp://10.0.0.5:4840
  user: keylogic
  password: secret
  filename: press-1.txt
  tags:
  - tag: ns=2;s=Temperature
    floatres: "0.01"
  - tag: ns=2;s=Counter
    interval: 2000
  - tag: ns=2;s=State
    interval: 5s
`)
	var devices []*Device
	require.NoError(t, yaml.Unmarshal(data, &devices))
	require.Len(t, devices, 1)
	d := devices[0]
	assert.Equal(t, "opc.tcp://10.0.0.5:4840", d.GetName())
	require.Len(t, d.Tags, 3)

	iv, err := d.Tags[0].PollInterval()
	require.NoError(t, err)
	assert.Zero(t, iv)
	iv, err = d.Tags[1].PollInterval()
	require.NoError(t, err)
	assert.Equal(t, 2*time.Second, iv)
	iv, err = d.Tags[2].PollInterval()
	require.NoError(t, err)
	assert.Equal(t, 5*time.Second, iv)

	assert.Empty(t, ValidateDevices(devices, nil, field.NewPath("devices")))
}

func TestValidateDevices(t *testing.T) {
	bad := intstr.FromString("later")
	neg := intstr.FromString("-5s")
	devices := []*Device{
		{URL: "opc.tcp://a:4840", Filename: "a.txt", Tags: []*Tag{{Tag: "x"}, {Tag: "x"}}},
		{URL: "modbus://b:502", Filename: "a.txt"},
		{URL: "not a url", Tags: []*Tag{{Tag: "", FloatRes: "zero", Interval: &bad}}},
		{URL: "opc.tcp://c:4840", Filename: "c.txt", Tags: []*Tag{{Tag: "y", Interval: &neg}}},
	}
	supported := []string{"opc.tcp"}

	errs := ValidateDevices(devices, supported, field.NewPath("devices"))
	fields := make([]string, 0, len(errs))
	for _, e := range errs {
		fields = append(fields, e.Field)
	}
	assert.ElementsMatch(t, []string{
		"devices[0].tags[1].tag",
		"devices[1].url.scheme",
		"devices[1].filename",
		"devices[2].url",
		"devices[2].filename",
		"devices[2].tags[0].tag",
		"devices[2].tags[0].floatres",
		"devices[2].tags[0].interval",
		"devices[3].tags[0].interval",
	}, fields)
}
