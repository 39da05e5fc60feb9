package pots

import (
	"fmt"
	"strconv"
	"strings"
)

// Controls holds the four pot positions of one session.
// It is a value type; assigning a Controls replaces all four pots at once.
type Controls struct {
	Delay    ControlValue
	Mix      ControlValue
	LFO      ControlValue
	Feedback ControlValue
}

// Get returns the position of one pot
func (c Controls) Get(kind Kind) ControlValue {
	switch kind {
	case Delay:
		return c.Delay
	case Mix:
		return c.Mix
	case LFO:
		return c.LFO
	default:
		return c.Feedback
	}
}

// With returns a copy of c with one pot moved
func (c Controls) With(kind Kind, v ControlValue) Controls {
	v = Clamp(int(v))
	switch kind {
	case Delay:
		c.Delay = v
	case Mix:
		c.Mix = v
	case LFO:
		c.LFO = v
	case Feedback:
		c.Feedback = v
	}
	return c
}

// Effect maps the positions into the normalized parameter set for the service
func (c Controls) Effect() EffectSet {
	return EffectSet{
		Pot1: EffectUnits(c.Delay),
		Pot2: EffectUnits(c.Mix),
		Pot3: EffectUnits(c.LFO),
		Pot4: EffectUnits(c.Feedback),
	}
}

// ParseControls parses "delay,mix,lfo,feedback" raw positions, e.g. "30,0,0,50"
func ParseControls(s string) (Controls, error) {
	fields := strings.Split(s, ",")
	if len(fields) != len(Kinds) {
		return Controls{}, fmt.Errorf("expected four comma separated pot positions, got %q", s)
	}
	var vals [4]int
	for i, f := range fields {
		v, err := strconv.Atoi(strings.TrimSpace(f))
		if err != nil {
			return Controls{}, fmt.Errorf("expected four comma separated pot positions, got %q", s)
		}
		vals[i] = v
	}
	var c Controls
	for i, kind := range Kinds {
		if vals[i] < int(MinValue) || vals[i] > int(MaxValue) {
			return Controls{}, fmt.Errorf("%s position %d out of range 0-100", kind, vals[i])
		}
		c = c.With(kind, ControlValue(vals[i]))
	}
	return c, nil
}

// EffectSet is the parameter set of one process request.
// Every field is a decimal string in [0.000, 1.000] with three decimals.
type EffectSet struct {
	Pot1 string `json:"pot1"`
	Pot2 string `json:"pot2"`
	Pot3 string `json:"pot3"`
	Pot4 string `json:"pot4"`
}

// Validate rejects partial or out of range parameter sets
func (e EffectSet) Validate() error {
	for i, v := range []string{e.Pot1, e.Pot2, e.Pot3, e.Pot4} {
		if v == "" {
			return fmt.Errorf("pot%d missing", i+1)
		}
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("pot%d: %w", i+1, err)
		}
		if f < 0 || f > 1 {
			return fmt.Errorf("pot%d value %s outside 0.000-1.000", i+1, v)
		}
	}
	return nil
}

// Request is the JSON body of POST /process/{session_id}
type Request struct {
	Effect string `json:"effect"`
	EffectSet
}

// EchoEffect is the only effect this controller drives
const EchoEffect = "echo"

// NewRequest wraps a parameter set for the echo effect
func NewRequest(e EffectSet) Request {
	return Request{Effect: EchoEffect, EffectSet: e}
}
