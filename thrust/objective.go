package thrust

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/pthm-cable/shipyard/geom"
)

// ErrEmptyObjective is returned when neither a linear nor a rotational goal is given.
var ErrEmptyObjective = errors.New("thrust: objective has no direction")

// Objective is the direction a thrust map should push and/or turn the ship.
// A nil component means that axis is not scored.
type Objective struct {
	Linear   *r3.Vec
	Rotation *r3.Vec

	// MaxLinear and MaxRotation are the largest projections the model can
	// reach along each requested direction at full throttle.
	MaxLinear   float64
	MaxRotation float64
}

// NewObjective normalizes the requested directions and precomputes how much
// the model can deliver along them. Zero vectors count as not requested.
func NewObjective(model *Model, linear, rotation *r3.Vec) (Objective, error) {
	var o Objective
	if linear != nil {
		if u := geom.SafeUnit(*linear); u != (r3.Vec{}) {
			o.Linear = &u
			o.MaxLinear = model.MaxTranslation(u)
		}
	}
	if rotation != nil {
		if u := geom.SafeUnit(*rotation); u != (r3.Vec{}) {
			o.Rotation = &u
			o.MaxRotation = model.MaxTorque(u)
		}
	}
	if o.Linear == nil && o.Rotation == nil {
		return Objective{}, ErrEmptyObjective
	}
	return o, nil
}

// ObjectiveFromAcceleration converts desired accelerations into the force and
// torque that would produce them: F = m·a and τ = I·α. Either acceleration may
// be nil.
func ObjectiveFromAcceleration(mass float64, inertia mat.Matrix, linAccel, rotAccel *r3.Vec) (linear, rotation *r3.Vec, err error) {
	if linAccel != nil {
		f := r3.Scale(mass, *linAccel)
		linear = &f
	}
	if rotAccel != nil {
		if err := checkInertia(inertia); err != nil {
			return nil, nil, err
		}
		var tau mat.VecDense
		tau.MulVec(inertia, vecDense(*rotAccel))
		t := r3.Vec{X: tau.AtVec(0), Y: tau.AtVec(1), Z: tau.AtVec(2)}
		rotation = &t
	}
	return linear, rotation, nil
}

// AngularAcceleration solves I·α = τ for α.
func AngularAcceleration(inertia mat.Matrix, torque r3.Vec) (r3.Vec, error) {
	if err := checkInertia(inertia); err != nil {
		return r3.Vec{}, err
	}
	var alpha mat.VecDense
	if err := alpha.SolveVec(inertia, vecDense(torque)); err != nil {
		return r3.Vec{}, fmt.Errorf("thrust: solving inertia: %w", err)
	}
	return r3.Vec{X: alpha.AtVec(0), Y: alpha.AtVec(1), Z: alpha.AtVec(2)}, nil
}

// DiagonalInertia returns the inertia tensor of a body with principal moments
// along the axes.
func DiagonalInertia(x, y, z float64) *mat.Dense {
	return mat.NewDense(3, 3, []float64{
		x, 0, 0,
		0, y, 0,
		0, 0, z,
	})
}

func checkInertia(inertia mat.Matrix) error {
	if inertia == nil {
		return errors.New("thrust: nil inertia tensor")
	}
	if r, c := inertia.Dims(); r != 3 || c != 3 {
		return fmt.Errorf("thrust: inertia tensor is %dx%d, want 3x3", r, c)
	}
	return nil
}

func vecDense(v r3.Vec) *mat.VecDense {
	return mat.NewVecDense(3, []float64{v.X, v.Y, v.Z})
}
