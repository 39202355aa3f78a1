package ship

import (
	"fmt"
	"io"
	"os"

	"gonum.org/v1/gonum/spatial/r3"
	"gopkg.in/yaml.v3"
)

// Kind is the role of a part.
type Kind string

const (
	KindTank      Kind = "tank"
	KindThruster  Kind = "thruster"
	KindConverter Kind = "converter"
	KindSensor    Kind = "sensor"
	KindBrain     Kind = "brain"
)

// Resource names used by the built-in parts.
const (
	ResourceFuel   = "fuel"
	ResourceMatter = "matter"
	ResourceEnergy = "energy"
)

// Vec is a YAML friendly 3D vector, written as [x, y, z].
type Vec [3]float64

// R3 converts v to a gonum vector.
func (v Vec) R3() r3.Vec { return r3.Vec{X: v[0], Y: v[1], Z: v[2]} }

// VecOf converts a gonum vector to a Vec.
func VecOf(v r3.Vec) Vec { return Vec{v.X, v.Y, v.Z} }

// PartSpec is the DNA of a single part.
type PartSpec struct {
	Name     string  `yaml:"name"`
	Kind     Kind    `yaml:"kind"`
	Position Vec     `yaml:"position"`
	Size     float64 `yaml:"size"`
	Mass     float64 `yaml:"mass"`

	// Tanks
	Resource string  `yaml:"resource,omitempty"`
	Capacity float64 `yaml:"capacity,omitempty"`
	Fill     float64 `yaml:"fill,omitempty"`

	// Thrusters
	Directions []Vec   `yaml:"directions,omitempty"`
	MaxForce   float64 `yaml:"max_force,omitempty"`

	// Converters pull Input and push Resource.
	Input string  `yaml:"input,omitempty"`
	Ratio float64 `yaml:"ratio,omitempty"`
	Rate  float64 `yaml:"rate,omitempty"`
}

// Synapse is a weighted link between two brains, by brain order.
type Synapse struct {
	From   int     `yaml:"from"`
	To     int     `yaml:"to"`
	Weight float64 `yaml:"weight"`
}

// Blueprint is the DNA of a whole ship.
type Blueprint struct {
	Name  string     `yaml:"name"`
	Parts []PartSpec `yaml:"parts"`
	// Synapses, when set, replace the brain links computed at build time.
	Synapses []Synapse `yaml:"synapses,omitempty"`
}

// Validate checks the blueprint for values Build cannot use.
func (bp Blueprint) Validate() error {
	for i, p := range bp.Parts {
		switch p.Kind {
		case KindTank:
			if p.Resource == "" {
				return fmt.Errorf("ship: part %d (%s): tank without resource", i, p.Name)
			}
			if p.Capacity < 0 || p.Fill < 0 || p.Fill > 1 {
				return fmt.Errorf("ship: part %d (%s): bad capacity %v or fill %v", i, p.Name, p.Capacity, p.Fill)
			}
		case KindThruster:
			if len(p.Directions) == 0 || p.MaxForce <= 0 {
				return fmt.Errorf("ship: part %d (%s): thruster needs directions and max force", i, p.Name)
			}
		case KindConverter:
			if p.Input == "" || p.Resource == "" || p.Input == p.Resource {
				return fmt.Errorf("ship: part %d (%s): converter needs distinct input and output", i, p.Name)
			}
			if p.Ratio <= 0 || p.Rate < 0 {
				return fmt.Errorf("ship: part %d (%s): bad ratio %v or rate %v", i, p.Name, p.Ratio, p.Rate)
			}
		case KindSensor, KindBrain:
		default:
			return fmt.Errorf("ship: part %d (%s): unknown kind %q", i, p.Name, p.Kind)
		}
		if p.Size < 0 || p.Mass < 0 {
			return fmt.Errorf("ship: part %d (%s): negative size or mass", i, p.Name)
		}
	}
	return nil
}

// ReadBlueprint decodes a YAML blueprint.
func ReadBlueprint(r io.Reader) (Blueprint, error) {
	var bp Blueprint
	if err := yaml.NewDecoder(r).Decode(&bp); err != nil {
		return Blueprint{}, fmt.Errorf("ship: decoding blueprint: %w", err)
	}
	return bp, bp.Validate()
}

// LoadBlueprint reads a YAML blueprint file.
func LoadBlueprint(path string) (Blueprint, error) {
	f, err := os.Open(path)
	if err != nil {
		return Blueprint{}, fmt.Errorf("ship: opening blueprint: %w", err)
	}
	defer f.Close()
	return ReadBlueprint(f)
}

// WriteYAML encodes the blueprint.
func (bp Blueprint) WriteYAML(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(bp); err != nil {
		return err
	}
	return enc.Close()
}
