package ship

import (
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/pthm-cable/shipyard/container"
	"github.com/pthm-cable/shipyard/damage"
)

// Part is carried by every part entity.
type Part struct {
	ID     int
	Name   string
	Kind   Kind
	Mass   float64
	Size   float64
	Damage *damage.State
}

// Position is the part's location in the ship frame.
type Position struct {
	r3.Vec
}

// Tank holds one resource and belongs to the ship's group for it.
type Tank struct {
	Resource  string
	Reservoir *container.Container
}

// Engine is a thruster. Index is its slot in the thrust model.
type Engine struct {
	Index      int
	Directions []r3.Vec
	MaxForce   float64
}

// Refinery converts one resource group into another.
type Refinery struct {
	Converter *container.Converter
	Rate      float64
}

// Neuron marks sensors and brains. Index is the part's position within its
// kind.
type Neuron struct {
	Index int
}
