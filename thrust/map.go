package thrust

import (
	"errors"
	"fmt"
	"slices"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/pthm-cable/shipyard/geom"
)

// ErrMapMismatch is returned when a map's slots do not line up with a model.
var ErrMapMismatch = errors.New("thrust: map does not match model")

// Element is the throttle for one contribution slot, in [0, 1].
type Element struct {
	Index   int     `yaml:"index" csv:"thruster"`
	Sub     int     `yaml:"sub" csv:"sub"`
	Percent float64 `yaml:"percent" csv:"percent"`
}

// Map is a flattened throttle assignment, one element per model contribution
// in model order.
type Map struct {
	Flattened []Element `yaml:"flattened"`
}

// NewMap returns a map for model with every slot at percent.
func NewMap(model *Model, percent float64) Map {
	m := Map{Flattened: make([]Element, len(model.Contributions))}
	for i, c := range model.Contributions {
		m.Flattened[i] = Element{Index: c.Index, Sub: c.Sub, Percent: percent}
	}
	return m
}

// Clone returns a deep copy.
func (m Map) Clone() Map {
	return Map{Flattened: slices.Clone(m.Flattened)}
}

// Percents returns the throttle values in slot order.
func (m Map) Percents() []float64 {
	out := make([]float64, len(m.Flattened))
	for i, e := range m.Flattened {
		out[i] = e.Percent
	}
	return out
}

// WithPercents returns a copy of m with the throttles replaced. values must
// have one entry per slot.
func (m Map) WithPercents(values []float64) Map {
	out := m.Clone()
	for i := range out.Flattened {
		out.Flattened[i].Percent = values[i]
	}
	return out
}

// UsedThrusters returns the sorted indexes of thrusters with any slot firing.
func (m Map) UsedThrusters() []int {
	var used []int
	for _, e := range m.Flattened {
		if e.Percent > geom.NearZero && !slices.Contains(used, e.Index) {
			used = append(used, e.Index)
		}
	}
	slices.Sort(used)
	return used
}

// Validate checks that m has exactly the slots of model, in order, with
// throttles in [0, 1].
func (m Map) Validate(model *Model) error {
	if len(m.Flattened) != len(model.Contributions) {
		return fmt.Errorf("%w: %d slots, model has %d", ErrMapMismatch, len(m.Flattened), len(model.Contributions))
	}
	for i, e := range m.Flattened {
		c := model.Contributions[i]
		if e.Index != c.Index || e.Sub != c.Sub {
			return fmt.Errorf("%w: slot %d is (%d,%d), model has (%d,%d)", ErrMapMismatch, i, e.Index, e.Sub, c.Index, c.Sub)
		}
		if e.Percent < 0 || e.Percent > 1 {
			return fmt.Errorf("%w: slot %d percent %v out of range", ErrMapMismatch, i, e.Percent)
		}
	}
	return nil
}

// Net returns the total linear force and torque m produces on model. The map
// must already be valid for the model.
func (m Map) Net(model *Model) (force, torque r3.Vec) {
	for i, e := range m.Flattened {
		if e.Percent == 0 {
			continue
		}
		c := model.Contributions[i]
		force = r3.Add(force, r3.Scale(e.Percent, c.TranslationForce))
		torque = r3.Add(torque, r3.Scale(e.Percent, c.Torque))
	}
	return force, torque
}
