package thrust

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/pthm-cable/shipyard/geom"
)

// MaxError is the score given to every component of a map that produces no
// useful output.
const MaxError = 1e9

// Inefficiency penalty ramp: contributions whose direction dots against the
// objective at or above inefficiencyFree cost nothing, at or below
// inefficiencyFull they cost their whole share.
const (
	inefficiencyFree = 0.7
	inefficiencyFull = -0.9
)

// Score is the single-objective error of m: balance plus underpowered,
// summed over the requested axes. Lower is better.
func Score(model *Model, obj Objective, m Map) float64 {
	s := Score3(model, obj, m)
	if s[0] >= MaxError {
		return MaxError
	}
	return s[0] + s[1]
}

// Score3 is the multi-objective error of m as [balance, underpowered,
// inefficiency], each summed over the requested axes.
func Score3(model *Model, obj Objective, m Map) []float64 {
	force, torque := m.Net(model)
	if geom.IsNearZeroVec(force) && geom.IsNearZeroVec(torque) {
		return []float64{MaxError, MaxError, MaxError}
	}

	var out [3]float64
	if obj.Linear != nil {
		out[0] += balance(force, *obj.Linear, obj.MaxLinear)
		out[1] += underpowered(force, *obj.Linear, obj.MaxLinear)
		out[2] += inefficiency(model, m, *obj.Linear, false)
	}
	if obj.Rotation != nil {
		out[0] += balance(torque, *obj.Rotation, obj.MaxRotation)
		out[1] += underpowered(torque, *obj.Rotation, obj.MaxRotation)
		out[2] += inefficiency(model, m, *obj.Rotation, true)
	}
	return out[:]
}

// balance penalizes achieved output pointing away from want. The penalty
// grows with the square of the achieved magnitude relative to what the model
// can deliver, so overshooting sideways costs more than a small wobble. No
// output at all has no direction and gets the full base penalty.
func balance(achieved, want r3.Vec, maxReach float64) float64 {
	length := r3.Norm(achieved)
	dot := 0.0
	if !geom.IsNearZero(length) {
		dot = r3.Dot(r3.Scale(1/length, achieved), want)
	}
	rel := length
	if maxReach > geom.NearZero {
		rel = length / maxReach
	}
	return (1 - dot) * (1 + rel*rel)
}

// underpowered is the share of the reachable maximum that the achieved output
// fails to deliver along want.
func underpowered(achieved, want r3.Vec, maxReach float64) float64 {
	if maxReach <= geom.NearZero {
		return 0
	}
	along := r3.Dot(achieved, want)
	return math.Max(0, maxReach-along) / maxReach
}

// inefficiency charges each firing contribution for how far its direction
// strays from want, weighted by the force it spends. The result is in [0, 1].
func inefficiency(model *Model, m Map, want r3.Vec, rotational bool) float64 {
	var spent, penalty float64
	for i, e := range m.Flattened {
		if e.Percent <= 0 {
			continue
		}
		c := model.Contributions[i]
		unit, length := c.TranslationUnit, c.TranslationLength
		if rotational {
			unit, length = c.TorqueUnit, c.TorqueLength
		}
		if geom.IsNearZero(length) {
			continue
		}
		w := e.Percent * length
		spent += w
		penalty += w * inefficiencyRamp(r3.Dot(unit, want))
	}
	if geom.IsNearZero(spent) {
		return 0
	}
	return penalty / spent
}

func inefficiencyRamp(dot float64) float64 {
	switch {
	case dot >= inefficiencyFree:
		return 0
	case dot <= inefficiencyFull:
		return 1
	}
	return (inefficiencyFree - dot) / (inefficiencyFree - inefficiencyFull)
}
