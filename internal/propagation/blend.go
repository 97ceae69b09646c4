package propagation

import (
	"fmt"
	"strings"

	"github.com/Faultbox/roomtone/pkg/math"
)

// BlendPolicy combines direct-ray obstruction with portal-chain obstruction
// into the single fraction that drives the low-pass cutoff.
type BlendPolicy int

const (
	// BlendAverage takes the mean of the two fractions.
	BlendAverage BlendPolicy = iota
	// BlendMax lets the more obstructed estimate win.
	BlendMax
	// BlendMin lets the less obstructed estimate win.
	BlendMin
)

var blendNames = map[BlendPolicy]string{
	BlendAverage: "average",
	BlendMax:     "max",
	BlendMin:     "min",
}

func (b BlendPolicy) String() string {
	if s, ok := blendNames[b]; ok {
		return s
	}
	return fmt.Sprintf("BlendPolicy(%d)", int(b))
}

// ParseBlendPolicy accepts "average", "max" or "min". Empty means average.
func ParseBlendPolicy(s string) (BlendPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "average", "avg", "mean":
		return BlendAverage, nil
	case "max":
		return BlendMax, nil
	case "min":
		return BlendMin, nil
	}
	return BlendAverage, fmt.Errorf("unknown blend policy %q", s)
}

// MarshalText implements encoding.TextMarshaler.
func (b BlendPolicy) MarshalText() ([]byte, error) {
	return []byte(b.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (b *BlendPolicy) UnmarshalText(text []byte) error {
	p, err := ParseBlendPolicy(string(text))
	if err != nil {
		return err
	}
	*b = p
	return nil
}

// Blend combines ray and portal fractions. The result is in [0,1].
func (b BlendPolicy) Blend(ray, portal float32) float32 {
	ray, portal = math.Clamp01(ray), math.Clamp01(portal)
	switch b {
	case BlendMax:
		return max(ray, portal)
	case BlendMin:
		return min(ray, portal)
	default:
		return 0.5 * (ray + portal)
	}
}
