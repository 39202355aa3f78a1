package ship

import (
	"fmt"
	"math"

	"github.com/aquilax/go-perlin"
)

// HullOptions shapes a procedurally generated blueprint.
type HullOptions struct {
	Length    float64
	Radius    float64
	Tanks     int
	Thrusters int
	Sensors   int
	Brains    int
}

// DefaultHullOptions describes a small scout.
func DefaultHullOptions() HullOptions {
	return HullOptions{Length: 10, Radius: 2, Tanks: 3, Thrusters: 8, Sensors: 6, Brains: 5}
}

// Procedural lays parts out along a noisy cylindrical hull pointing down +Z.
// Tanks run along the spine, thrusters ring the stern, sensors cluster on the
// bow and brains sit in the core. The same seed gives the same blueprint.
func Procedural(name string, opts HullOptions, seed int64) Blueprint {
	noise := perlin.NewPerlin(2, 2, 3, seed)
	// Noise2D is roughly in [-1, 1]; sample row picks the feature.
	jitter := func(row, i float64) float64 {
		return noise.Noise2D(row+0.5, i*0.37+0.5)
	}

	bp := Blueprint{Name: name}
	add := func(p PartSpec) { bp.Parts = append(bp.Parts, p) }

	for i := 0; i < opts.Tanks; i++ {
		z := opts.Length * (float64(i)/float64(max(opts.Tanks, 1)) - 0.5)
		resource := ResourceFuel
		if i == 0 {
			resource = ResourceMatter
		}
		add(PartSpec{
			Name:     fmt.Sprintf("tank-%d", i),
			Kind:     KindTank,
			Resource: resource,
			Position: Vec{0, 0.2 * opts.Radius * jitter(0, float64(i)), z},
			Size:     1,
			Mass:     5,
			Capacity: 100 * (1 + 0.5*jitter(1, float64(i))),
			Fill:     0.8,
		})
	}
	if opts.Tanks > 1 {
		add(PartSpec{
			Name:     "refinery",
			Kind:     KindConverter,
			Input:    ResourceMatter,
			Resource: ResourceFuel,
			Position: Vec{0, -0.5 * opts.Radius, 0},
			Mass:     3,
			Ratio:    0.5,
			Rate:     2,
		})
	}

	stern := -opts.Length / 2
	for i := 0; i < opts.Thrusters; i++ {
		angle := 2*math.Pi*float64(i)/float64(max(opts.Thrusters, 1)) + 0.2*jitter(2, float64(i))
		x, y := math.Cos(angle)*opts.Radius, math.Sin(angle)*opts.Radius
		// Every other thruster fires sideways so the ship can turn.
		dirs := []Vec{{0, 0, 1}}
		if i%2 == 1 {
			dirs = append(dirs, Vec{-math.Sin(angle), math.Cos(angle), 0})
		}
		add(PartSpec{
			Name:       fmt.Sprintf("thruster-%d", i),
			Kind:       KindThruster,
			Position:   Vec{x, y, stern},
			Directions: dirs,
			MaxForce:   20 * (1 + 0.3*jitter(3, float64(i))),
			Mass:       2,
			Size:       1,
		})
	}

	bow := opts.Length / 2
	for i := 0; i < opts.Sensors; i++ {
		angle := 2 * math.Pi * float64(i) / float64(max(opts.Sensors, 1))
		r := 0.5 * opts.Radius * (1 + 0.5*jitter(4, float64(i)))
		add(PartSpec{
			Name:     fmt.Sprintf("sensor-%d", i),
			Kind:     KindSensor,
			Position: Vec{math.Cos(angle) * r, math.Sin(angle) * r, bow},
			Size:     0.5 + 0.25*(1+jitter(5, float64(i))),
			Mass:     0.5,
		})
	}

	for i := 0; i < opts.Brains; i++ {
		add(PartSpec{
			Name: fmt.Sprintf("brain-%d", i),
			Kind: KindBrain,
			Position: Vec{
				0.5 * opts.Radius * jitter(6, float64(i)),
				0.5 * opts.Radius * jitter(7, float64(i)),
				0.25 * opts.Length * jitter(8, float64(i)),
			},
			Size: 1 + 0.5*jitter(9, float64(i)),
			Mass: 1,
		})
	}
	return bp
}
