package audio

import (
	"fmt"
	"math"
	"strings"
)

// ConversionPolicy selects how out-of-range float samples map to 16-bit PCM.
type ConversionPolicy string

const (
	// ConversionClamp limits input to [-1, 1] and rounds to nearest.
	ConversionClamp ConversionPolicy = "clamp"
	// ConversionWrap truncates toward zero and lets out-of-range values
	// wrap through 16-bit integer truncation.
	ConversionWrap ConversionPolicy = "wrap"
)

const maxSample = math.MaxInt16

// ParseConversionPolicy validates a policy name from configuration
func ParseConversionPolicy(name string) (ConversionPolicy, error) {
	switch ConversionPolicy(strings.ToLower(strings.TrimSpace(name))) {
	case "", ConversionClamp:
		return ConversionClamp, nil
	case ConversionWrap:
		return ConversionWrap, nil
	default:
		return "", fmt.Errorf("unknown conversion policy %q (valid: clamp, wrap)", name)
	}
}

// ConvertSample converts one normalized float sample to a signed 16-bit value.
// NaN always converts to 0.
func ConvertSample(s float32, policy ConversionPolicy) int16 {
	v := float64(s)
	if math.IsNaN(v) {
		return 0
	}

	if policy == ConversionWrap {
		if math.IsInf(v, 0) {
			return 0
		}
		t := math.Mod(math.Trunc(v*maxSample), 1<<16)
		return int16(int32(t))
	}

	if v > 1 {
		v = 1
	} else if v < -1 {
		v = -1
	}
	return int16(math.Round(v * maxSample))
}

// ConvertBuffer appends the converted form of src to dst and returns it.
func ConvertBuffer(dst []int, src []float32, policy ConversionPolicy) []int {
	for _, s := range src {
		dst = append(dst, int(ConvertSample(s, policy)))
	}
	return dst
}
