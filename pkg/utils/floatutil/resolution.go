package floatutil

import (
	"github.com/pkg/errors"
	"math"
	"strconv"
	"strings"
	"taglogger/pkg/runtime/constant"
)

// Resolution rounds readings to a multiple of Step and prints them with the
// number of decimals of the step. A profile of "0.01" turns 21.4567 into "21.46".
type Resolution struct {
	Step     float64
	Decimals int
}

func ParseResolution(profile string) (*Resolution, error) {
	profile = strings.TrimSpace(profile)
	step, err := strconv.ParseFloat(profile, 64)
	if err != nil {
		return nil, errors.Wrapf(constant.ErrFloatProfile, "%q", profile)
	}
	if step <= 0 || math.IsInf(step, 0) || math.IsNaN(step) {
		return nil, errors.Wrapf(constant.ErrFloatProfile, "%q must be a positive step", profile)
	}

	// decimals of the shortest plain form, so "1e-2" and "0.010" both give 2
	decimals := 0
	if plain := strconv.FormatFloat(step, 'f', -1, 64); strings.IndexByte(plain, '.') >= 0 {
		decimals = len(plain) - strings.IndexByte(plain, '.') - 1
	}
	return &Resolution{Step: step, Decimals: decimals}, nil
}

func (r *Resolution) Format(v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return strconv.FormatFloat(v, 'f', -1, 64)
	}
	rounded := math.Round(v/r.Step) * r.Step
	if rounded == 0 {
		// drop the sign of -0
		rounded = 0
	}
	return strconv.FormatFloat(rounded, 'f', r.Decimals, 64)
}
