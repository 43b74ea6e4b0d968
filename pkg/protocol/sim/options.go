package sim

import (
	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"
	"net/url"
	"time"
)

// Options tune the simulated device through the query string of its address,
// e.g. sim://press?loginFailures=2&period=500ms&dropAfter=1m.
type Options struct {
	// LoginFailures rejects that many logins before accepting one.
	LoginFailures int           `mapstructure:"loginFailures"`
	LoginDelay    time.Duration `mapstructure:"loginDelay"`
	// User and Password, when set, are the only accepted credentials.
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	// Period is the update rate of subscriptions.
	Period time.Duration `mapstructure:"period"`
	// DropAfter reports the connection lost that long after login, zero never drops.
	DropAfter time.Duration `mapstructure:"dropAfter"`
	// NullEvery turns every n-th sample of a tag into a null reading.
	NullEvery int `mapstructure:"nullEvery"`
}

func defaultOptions() Options {
	return Options{
		Period: time.Second,
	}
}

func parseOptions(address string) (string, Options, error) {
	opts := defaultOptions()
	u, err := url.Parse(address)
	if err != nil {
		return "", opts, err
	}

	query := make(map[string]interface{}, len(u.Query()))
	for k, v := range u.Query() {
		if len(v) > 0 {
			query[k] = v[len(v)-1]
		}
	}
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
		WeaklyTypedInput: true,
		ErrorUnused:      true,
		Result:           &opts,
	})
	if err != nil {
		return "", opts, err
	}
	if err = decoder.Decode(query); err != nil {
		return "", opts, errors.Wrapf(err, "simulator options of %s", address)
	}
	if opts.Period <= 0 {
		return "", opts, errors.Errorf("simulator period of %s must be positive", address)
	}
	return u.Host, opts, nil
}
