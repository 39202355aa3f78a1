package container

import (
	"fmt"

	"github.com/pthm-cable/shipyard/geom"
)

// Converter turns quantity pulled from Source into Ratio times as much
// quantity pushed into Dest (matter into fuel, fuel into energy).
type Converter struct {
	Source Reservoir
	Dest   Reservoir
	// Ratio is output units per input unit.
	Ratio float64
}

// NewConverter validates and returns a converter.
func NewConverter(source, dest Reservoir, ratio float64) (*Converter, error) {
	if source == nil || dest == nil {
		return nil, fmt.Errorf("container: converter needs a source and a destination")
	}
	if source == dest {
		return nil, fmt.Errorf("container: converter source and destination must differ")
	}
	if ratio <= 0 || geom.IsNearZero(ratio) {
		return nil, fmt.Errorf("container: converter ratio must be positive, got %g", ratio)
	}
	return &Converter{Source: source, Dest: dest, Ratio: ratio}, nil
}

// Convert consumes up to input from Source. The amount consumed is limited by
// what Source holds and by the room left in Dest. Anything Dest refuses goes
// back to Source, so input is never lost.
func (c *Converter) Convert(input float64) (consumed, produced float64) {
	if input <= 0 {
		return 0, 0
	}

	if room := c.Dest.QuantityMaxMinusCurrent() / c.Ratio; input > room {
		input = room
	}
	if input <= 0 || geom.IsNearZero(input) {
		return 0, 0
	}

	consumed = input - c.Source.RemoveQuantity(input, false)
	if consumed <= 0 {
		return 0, 0
	}

	leftover := c.Dest.AddQuantity(consumed*c.Ratio, false)
	if leftover > 0 {
		// Dest filled up in between; refund the unconverted input.
		refund := leftover / c.Ratio
		c.Source.AddQuantity(refund, false)
		consumed -= refund
	}
	produced = consumed * c.Ratio
	return snap(consumed), snap(produced)
}
