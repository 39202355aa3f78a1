// Package thrust decides how hard each thruster on a ship should fire to
// produce a requested linear force and torque.
//
// A Model precomputes what every thruster sub-direction contributes at full
// throttle. A Map assigns a throttle percent to every contribution slot.
// The solver searches Map space with the generic search loop and scores
// candidates against an Objective.
package thrust

import (
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/pthm-cable/shipyard/damage"
	"github.com/pthm-cable/shipyard/geom"
)

// Thruster is a single engine that can push along one or more directions.
type Thruster struct {
	Position   r3.Vec
	Directions []r3.Vec
	MaxForce   float64
	// Damage may be nil for a thruster that cannot be destroyed.
	Damage damage.Witness
}

// Destroyed reports whether the thruster is currently out of action.
func (t Thruster) Destroyed() bool {
	return t.Damage != nil && t.Damage.IsDestroyed()
}

// Contribution is what one thruster sub-direction produces at full throttle,
// split into the force that moves the ship and the torque that turns it.
type Contribution struct {
	Index int
	Sub   int

	TranslationForce  r3.Vec
	TranslationUnit   r3.Vec
	TranslationLength float64

	Torque       r3.Vec
	TorqueUnit   r3.Vec
	TorqueLength float64

	Destroyed bool
}

// Model is the precomputed contribution table for a set of thrusters about a
// center of mass. The contribution order is fixed by thruster index then
// sub-direction index and does not change when thrusters are destroyed.
type Model struct {
	Thrusters     []Thruster
	CenterOfMass  r3.Vec
	Contributions []Contribution
}

// NewModel builds the contribution table. Destroyed thrusters keep their
// slots with zero vectors.
func NewModel(thrusters []Thruster, centerOfMass r3.Vec) *Model {
	m := &Model{
		Thrusters:    append([]Thruster(nil), thrusters...),
		CenterOfMass: centerOfMass,
	}

	for i, t := range m.Thrusters {
		destroyed := t.Destroyed()
		offset := r3.Sub(t.Position, centerOfMass)
		for j, dir := range t.Directions {
			c := Contribution{Index: i, Sub: j, Destroyed: destroyed}
			if !destroyed {
				c.TranslationForce, c.Torque = geom.SplitForceIntoTranslationAndTorque(offset, r3.Scale(t.MaxForce, dir))
				c.TranslationLength = r3.Norm(c.TranslationForce)
				c.TranslationUnit = geom.SafeUnit(c.TranslationForce)
				c.TorqueLength = r3.Norm(c.Torque)
				c.TorqueUnit = geom.SafeUnit(c.Torque)
			}
			m.Contributions = append(m.Contributions, c)
		}
	}
	return m
}

// Len returns the number of contribution slots.
func (m *Model) Len() int {
	return len(m.Contributions)
}

// MaxTranslation returns the largest total linear force the model can push
// along unit, summing only the contributions that point its way.
func (m *Model) MaxTranslation(unit r3.Vec) float64 {
	var total float64
	for _, c := range m.Contributions {
		if d := r3.Dot(c.TranslationForce, unit); d > 0 {
			total += d
		}
	}
	return total
}

// MaxTorque is MaxTranslation for the rotational part.
func (m *Model) MaxTorque(unit r3.Vec) float64 {
	var total float64
	for _, c := range m.Contributions {
		if d := r3.Dot(c.Torque, unit); d > 0 {
			total += d
		}
	}
	return total
}
