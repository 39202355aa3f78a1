package thrust

import (
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/pthm-cable/shipyard/container"
	"github.com/pthm-cable/shipyard/geom"
)

// FuelUsage returns the fuel m burns over dt. Each slot burns
// percent·maxForce·burnRate per second. Destroyed thrusters burn nothing.
func FuelUsage(model *Model, m Map, dt, burnRate float64) float64 {
	var total float64
	for i, e := range m.Flattened {
		c := model.Contributions[i]
		if c.Destroyed || e.Percent <= 0 {
			continue
		}
		total += e.Percent * model.Thrusters[c.Index].MaxForce
	}
	return total * burnRate * dt
}

// Burn is the outcome of firing a map for one step.
type Burn struct {
	Force    r3.Vec
	Torque   r3.Vec
	Fuel     float64
	Throttle float64
}

// Fire drains fuel for one step of m and returns the force and torque
// produced. When the tank cannot cover the full burn every slot is throttled
// down by the same fraction.
func Fire(model *Model, m Map, fuel container.Reservoir, dt, burnRate float64) (Burn, error) {
	if err := m.Validate(model); err != nil {
		return Burn{}, err
	}
	need := FuelUsage(model, m, dt, burnRate)
	if geom.IsNearZero(need) {
		return Burn{}, nil
	}

	leftover := fuel.RemoveQuantity(need, false)
	used := need - leftover
	throttle := used / need

	force, torque := m.Net(model)
	return Burn{
		Force:    r3.Scale(throttle, force),
		Torque:   r3.Scale(throttle, torque),
		Fuel:     used,
		Throttle: throttle,
	}, nil
}
