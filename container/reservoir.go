// Package container implements bounded resource reservoirs (fuel, energy, ammo,
// plasma, matter) and groups of reservoirs that behave as one.
//
// All types are safe for concurrent use. Each instance guards itself with its
// own mutex. A Container never holds its lock while calling another
// reservoir. A Group holds its lock while pulling from its source, so two
// groups transferring into each other at the same time can deadlock.
package container

import (
	"errors"
	"math"

	"github.com/pthm-cable/shipyard/geom"
)

var (
	// ErrNegativeQuantity is returned when a quantity setter is given a value
	// below zero (beyond rounding noise).
	ErrNegativeQuantity = errors.New("container: quantity cannot be negative")
	// ErrUnknownContainer is returned when removing a reservoir a group does not track.
	ErrUnknownContainer = errors.New("container: reservoir is not a member of the group")
	// ErrDuplicateContainer is returned when adding a reservoir twice.
	ErrDuplicateContainer = errors.New("container: reservoir is already a member of the group")
)

// Reservoir is anything that holds a bounded quantity of a resource.
type Reservoir interface {
	QuantityCurrent() float64
	SetQuantityCurrent(v float64) error

	// QuantityMax is the nominal capacity.
	QuantityMax() float64
	SetQuantityMax(v float64) error

	// QuantityMaxUsable is the capacity currently available, which damage may
	// hold below QuantityMax.
	QuantityMaxUsable() float64

	// QuantityMaxMinusCurrent is the remaining headroom.
	QuantityMaxMinusCurrent() float64

	OnlyRemoveMultiples() bool
	RemovalMultiple() float64

	// AddQuantity adds up to amount and returns what did not fit. With
	// exactOnly, either everything is added or nothing is.
	AddQuantity(amount float64, exactOnly bool) float64

	// AddQuantityFrom pulls up to amount out of pullFrom and returns the part
	// of amount that could not be transferred.
	AddQuantityFrom(pullFrom Reservoir, amount float64, exactOnly bool) float64

	// AddAllFrom pulls the entire current quantity of pullFrom.
	AddAllFrom(pullFrom Reservoir, exactOnly bool) float64

	// RemoveQuantity removes up to amount and returns the part of amount that
	// was not removed.
	RemoveQuantity(amount float64, exactOnly bool) float64
}

// GetRemoveAmount previews how much RemoveQuantity would take out of r without
// changing it. Current quantity and the multiple settings are read separately,
// so the preview can be stale if another goroutine mutates r in between.
func GetRemoveAmount(r Reservoir, amount float64, exactOnly bool) float64 {
	return removeAmount(r.QuantityCurrent(), amount, r.OnlyRemoveMultiples(), r.RemovalMultiple(), exactOnly)
}

func removeAmount(current, amount float64, onlyMultiples bool, multiple float64, exactOnly bool) float64 {
	if amount <= 0 || current <= 0 {
		return 0
	}

	actual := amount
	if actual > current {
		actual = current
	}

	if onlyMultiples && multiple > 0 {
		// Small bias keeps 0.3/0.1 from flooring to 2.
		actual = math.Floor(actual/multiple+geom.NearZero) * multiple
		if actual > current {
			if geom.IsNearValue(actual, current) {
				actual = current
			} else {
				actual -= multiple
			}
		}
	}

	if exactOnly && !geom.IsNearValue(actual, amount) {
		return 0
	}

	if actual < 0 {
		return 0
	}
	return actual
}

// snap pulls values within rounding noise of zero to exactly zero.
func snap(v float64) float64 {
	if geom.IsNearZero(v) {
		return 0
	}
	return v
}

// checkNonNegative snaps near-zero negatives and rejects real negatives.
func checkNonNegative(v float64) (float64, error) {
	if v < 0 {
		if !geom.IsNearZero(v) {
			return 0, ErrNegativeQuantity
		}
		return 0, nil
	}
	return snap(v), nil
}
