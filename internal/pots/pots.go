// Package pots maps raw control positions onto echo effect parameters.
//
// Each pot holds an integer position in [0, 100]. The value sent to the
// processing service is always position/100 with three decimals, whatever the
// display transform of the pot says. Display strings are cosmetic.
package pots

import (
	"fmt"
	"math"
)

// ControlValue is a raw pot position in [MinValue, MaxValue]
type ControlValue int

const (
	MinValue ControlValue = 0
	MaxValue ControlValue = 100
)

// Clamp bounds an arbitrary integer to the pot range
func Clamp(v int) ControlValue {
	if v < int(MinValue) {
		return MinValue
	}
	if v > int(MaxValue) {
		return MaxValue
	}
	return ControlValue(v)
}

// FromUnits converts a normalized value in [0, 1] back to a pot position
func FromUnits(u float64) ControlValue {
	if math.IsNaN(u) {
		return MinValue
	}
	return Clamp(int(math.Round(u * 100)))
}

// Kind identifies which effect parameter a pot drives
type Kind int

const (
	Delay Kind = iota
	Mix
	LFO
	Feedback
)

// Kinds lists the pots in wire order (pot1..pot4)
var Kinds = [...]Kind{Delay, Mix, LFO, Feedback}

func (k Kind) String() string {
	switch k {
	case Delay:
		return "Delay"
	case Mix:
		return "Mix"
	case LFO:
		return "LFO"
	case Feedback:
		return "Feedback"
	default:
		return "Unknown"
	}
}

// WireName is the request field carrying this pot
func (k Kind) WireName() string {
	return fmt.Sprintf("pot%d", int(k)+1)
}

// FormatDelay renders delay time: 0-1000ms in 10ms steps
func FormatDelay(v ControlValue) string {
	return fmt.Sprintf("%dms", int(math.Round(float64(v)*10)))
}

// FormatGeneric renders a plain ratio: 0.00-1.00
func FormatGeneric(v ControlValue) string {
	return fmt.Sprintf("%.2f", float64(v)/100)
}

// FormatLFO renders LFO modulation depth: 0.00-4.00ms.
// The 0.04 factor matches the effect engine's lfo_ms = pot3 * 4.
func FormatLFO(v ControlValue) string {
	return fmt.Sprintf("%.2fms", float64(v)*0.04)
}

// FormatFeedback renders feedback: 0-100%
func FormatFeedback(v ControlValue) string {
	return fmt.Sprintf("%d%%", int(math.Round(float64(v))))
}

// Display renders v using the transform of the given parameter kind
func Display(kind Kind, v ControlValue) string {
	switch kind {
	case Delay:
		return FormatDelay(v)
	case LFO:
		return FormatLFO(v)
	case Feedback:
		return FormatFeedback(v)
	default:
		return FormatGeneric(v)
	}
}

// EffectUnits renders the wire value for v: v/100 with exactly three decimals
func EffectUnits(v ControlValue) string {
	return fmt.Sprintf("%.3f", float64(v)/100)
}

// Rotation returns the knob indicator angle in degrees (-135 to +135)
func Rotation(v ControlValue) float64 {
	return float64(v)/100*270 - 135
}
