// Package ship assembles a blueprint into a running ship. Every part is an
// entity in an ark ECS world; tanks of the same resource share a container
// group, thrusters feed the thrust model, and sensors and brains are wired
// together with the item linker.
package ship

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/google/uuid"
	"github.com/mlange-42/ark/ecs"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/pthm-cable/shipyard/container"
	"github.com/pthm-cable/shipyard/damage"
	"github.com/pthm-cable/shipyard/geom"
	"github.com/pthm-cable/shipyard/itemlink"
	"github.com/pthm-cable/shipyard/mutate"
	"github.com/pthm-cable/shipyard/rng"
	"github.com/pthm-cable/shipyard/thrust"
)

var (
	// ErrUnknownPart is returned for a part ID the ship does not have.
	ErrUnknownPart = errors.New("ship: unknown part")
	// ErrNoFuel is returned by Step when the ship has no fuel tanks.
	ErrNoFuel = errors.New("ship: no fuel tanks")
)

// Settings tunes assembly and the per-step systems.
type Settings struct {
	// BurnRate is fuel per second per unit of thruster force.
	BurnRate float64
	// ResourceDensity is the mass of one unit of stored resource.
	ResourceDensity float64

	Combine  itemlink.CombineArgs
	Overflow *itemlink.OverflowArgs
	Extra    *itemlink.ExtraArgs

	PositionMutation mutate.Factor
	// MaxSynapses caps brain links after remutation. Zero keeps the count.
	MaxSynapses     int
	MaxIntermediate int
}

// DefaultSettings returns the settings used by the demo ship.
func DefaultSettings() Settings {
	return Settings{
		BurnRate:         0.01,
		ResourceDensity:  0.01,
		Combine:          itemlink.DefaultCombineArgs(),
		Overflow:         &itemlink.OverflowArgs{LinkResistanceMult: 1},
		PositionMutation: mutate.Factor{Chance: 0.2, MaxDistance: 0.1, Absolute: true},
		MaxIntermediate:  3,
	}
}

// Ship is an assembled blueprint.
type Ship struct {
	ID       uuid.UUID
	Name     string
	settings Settings

	world          *ecs.World
	parts          *ecs.Map2[Part, Position]
	partMap        *ecs.Map[Part]
	posMap         *ecs.Map[Position]
	tanks          *ecs.Map[Tank]
	engines        *ecs.Map[Engine]
	refineries     *ecs.Map[Refinery]
	neurons        *ecs.Map[Neuron]
	partFilter     *ecs.Filter2[Part, Position]
	engineFilter   *ecs.Filter3[Part, Position, Engine]
	refineryFilter *ecs.Filter2[Part, Refinery]
	neuronFilter   *ecs.Filter3[Part, Position, Neuron]

	entities    []ecs.Entity
	groups      map[string]*container.Group
	groupOrder  []string
	sensorLinks []itemlink.Link
	synapses    []Synapse
}

// Build creates the ECS world for bp. rnd drives link generation.
func Build(bp Blueprint, settings Settings, rnd rng.Source) (*Ship, error) {
	if err := bp.Validate(); err != nil {
		return nil, err
	}

	world := ecs.NewWorld()
	s := &Ship{
		ID:             uuid.New(),
		Name:           bp.Name,
		settings:       settings,
		world:          world,
		parts:          ecs.NewMap2[Part, Position](world),
		partMap:        ecs.NewMap[Part](world),
		posMap:         ecs.NewMap[Position](world),
		tanks:          ecs.NewMap[Tank](world),
		engines:        ecs.NewMap[Engine](world),
		refineries:     ecs.NewMap[Refinery](world),
		neurons:        ecs.NewMap[Neuron](world),
		partFilter:     ecs.NewFilter2[Part, Position](world),
		engineFilter:   ecs.NewFilter3[Part, Position, Engine](world),
		refineryFilter: ecs.NewFilter2[Part, Refinery](world),
		neuronFilter:   ecs.NewFilter3[Part, Position, Neuron](world),
		groups:         make(map[string]*container.Group),
	}

	var converters []int
	engines, sensors, brains := 0, 0, 0
	for i, spec := range bp.Parts {
		part := Part{ID: i, Name: spec.Name, Kind: spec.Kind, Mass: spec.Mass, Size: spec.Size, Damage: damage.NewState()}
		pos := Position{spec.Position.R3()}
		e := s.parts.NewEntity(&part, &pos)
		s.entities = append(s.entities, e)

		switch spec.Kind {
		case KindTank:
			c, err := container.NewContainerWithMax(spec.Capacity)
			if err != nil {
				return nil, fmt.Errorf("ship: part %d: %w", i, err)
			}
			if err := c.SetQuantityCurrent(spec.Capacity * spec.Fill); err != nil {
				return nil, fmt.Errorf("ship: part %d: %w", i, err)
			}
			s.tanks.Add(e, &Tank{Resource: spec.Resource, Reservoir: c})
			if err := s.group(spec.Resource).AddContainer(c, part.Damage); err != nil {
				return nil, fmt.Errorf("ship: part %d: %w", i, err)
			}
		case KindThruster:
			dirs := make([]r3.Vec, len(spec.Directions))
			for j, d := range spec.Directions {
				dirs[j] = geom.SafeUnit(d.R3())
			}
			s.engines.Add(e, &Engine{Index: engines, Directions: dirs, MaxForce: spec.MaxForce})
			engines++
		case KindConverter:
			converters = append(converters, i)
		case KindSensor:
			s.neurons.Add(e, &Neuron{Index: sensors})
			sensors++
		case KindBrain:
			s.neurons.Add(e, &Neuron{Index: brains})
			brains++
		}
	}

	// Converters go last so every tank group exists.
	for _, i := range converters {
		spec := bp.Parts[i]
		conv, err := container.NewConverter(s.group(spec.Input), s.group(spec.Resource), spec.Ratio)
		if err != nil {
			return nil, fmt.Errorf("ship: part %d: %w", i, err)
		}
		s.refineries.Add(s.entities[i], &Refinery{Converter: conv, Rate: spec.Rate})
	}

	brainItems := s.neuronItems(KindBrain)
	s.sensorLinks = itemlink.Link12(brainItems, s.neuronItems(KindSensor), settings.Overflow, settings.Extra, rnd)
	if len(bp.Synapses) > 0 {
		for _, syn := range bp.Synapses {
			if syn.From < 0 || syn.From >= brains || syn.To < 0 || syn.To >= brains {
				return nil, fmt.Errorf("ship: synapse %d->%d out of range for %d brains", syn.From, syn.To, brains)
			}
		}
		s.synapses = slices.Clone(bp.Synapses)
	} else {
		pairs := itemlink.LinkSelf(brainItems, &settings.Combine, rnd)
		for _, l := range itemlink.LinksFromSetPairs(pairs) {
			s.synapses = append(s.synapses, Synapse{From: l.Index1, To: l.Index2, Weight: rnd.Float64()*2 - 1})
		}
	}

	slog.Info("ship: built", "ship", s.ID.String(), "name", s.Name,
		"parts", len(s.entities), "thrusters", engines, "sensors", sensors, "brains", brains,
		"sensor_links", len(s.sensorLinks), "synapses", len(s.synapses))
	return s, nil
}

func (s *Ship) group(resource string) *container.Group {
	g, ok := s.groups[resource]
	if !ok {
		g = container.NewGroup(container.QuantitiesCanChange)
		s.groups[resource] = g
		s.groupOrder = append(s.groupOrder, resource)
	}
	return g
}

// Group returns the tank group for resource, or nil.
func (s *Ship) Group(resource string) *container.Group {
	return s.groups[resource]
}

// Resources lists the resources the ship stores, in first-seen order.
func (s *Ship) Resources() []string {
	return slices.Clone(s.groupOrder)
}

// Len returns the number of parts.
func (s *Ship) Len() int {
	return len(s.entities)
}

// SensorLinks returns brain to sensor links: Index1 is the brain, Index2 the
// sensor.
func (s *Ship) SensorLinks() []itemlink.Link {
	return slices.Clone(s.sensorLinks)
}

// Synapses returns the brain to brain links.
func (s *Ship) Synapses() []Synapse {
	return slices.Clone(s.synapses)
}

// neuronItems returns the neurons of kind in index order.
func (s *Ship) neuronItems(kind Kind) []itemlink.Item {
	type indexed struct {
		index int
		item  itemlink.Item
	}
	var found []indexed
	query := s.neuronFilter.Query()
	for query.Next() {
		part, pos, n := query.Get()
		if part.Kind != kind {
			continue
		}
		found = append(found, indexed{n.Index, itemlink.Item{Position: pos.Vec, Size: part.Size}})
	}
	slices.SortFunc(found, func(a, b indexed) int { return a.index - b.index })

	items := make([]itemlink.Item, len(found))
	for i, f := range found {
		items[i] = f.item
	}
	return items
}

// Thrusters returns the ship's thrusters in model order.
func (s *Ship) Thrusters() []thrust.Thruster {
	var out []thrust.Thruster
	query := s.engineFilter.Query()
	for query.Next() {
		part, pos, eng := query.Get()
		for len(out) <= eng.Index {
			out = append(out, thrust.Thruster{})
		}
		out[eng.Index] = thrust.Thruster{
			Position:   pos.Vec,
			Directions: slices.Clone(eng.Directions),
			MaxForce:   eng.MaxForce,
			Damage:     part.Damage,
		}
	}
	return out
}

// CenterOfMass returns the mass weighted center of the parts, stored
// resources included, and the total mass.
func (s *Ship) CenterOfMass() (r3.Vec, float64) {
	var weighted r3.Vec
	var total float64
	var positions []r3.Vec

	query := s.partFilter.Query()
	for query.Next() {
		part, pos := query.Get()
		mass := part.Mass
		if e := query.Entity(); s.tanks.Has(e) {
			mass += s.tanks.Get(e).Reservoir.QuantityCurrent() * s.settings.ResourceDensity
		}
		weighted = r3.Add(weighted, r3.Scale(mass, pos.Vec))
		total += mass
		positions = append(positions, pos.Vec)
	}
	if geom.IsNearZero(total) {
		return geom.Centroid(positions), 0
	}
	return r3.Scale(1/total, weighted), total
}

// Model builds the thrust model for the current layout and damage.
func (s *Ship) Model() *thrust.Model {
	com, _ := s.CenterOfMass()
	return thrust.NewModel(s.Thrusters(), com)
}

// Step advances the ship by dt: refineries convert first, then the thrusters
// fire m against the fuel group.
func (s *Ship) Step(dt float64, m thrust.Map) (thrust.Burn, error) {
	s.Refine(dt)
	return s.Fire(dt, m)
}

// Refine runs every intact refinery for dt and returns the totals consumed and
// produced.
func (s *Ship) Refine(dt float64) (consumed, produced float64) {
	query := s.refineryFilter.Query()
	for query.Next() {
		part, ref := query.Get()
		if part.Damage.IsDestroyed() || ref.Rate <= 0 {
			continue
		}
		c, p := ref.Converter.Convert(ref.Rate * dt)
		consumed += c
		produced += p
	}
	return consumed, produced
}

// Fire burns fuel for map m over dt.
func (s *Ship) Fire(dt float64, m thrust.Map) (thrust.Burn, error) {
	fuel := s.groups[ResourceFuel]
	if fuel == nil {
		return thrust.Burn{}, ErrNoFuel
	}
	return thrust.Fire(s.Model(), m, fuel, dt, s.settings.BurnRate)
}

// Remutate nudges part positions and re-projects the brain links onto the new
// layout. It returns how many parts moved.
func (s *Ship) Remutate(rnd rng.Source) int {
	oldBrains := s.neuronItems(KindBrain)

	moved := 0
	query := s.partFilter.Query()
	for query.Next() {
		_, pos := query.Get()
		if v, ok := mutate.Vector(pos.Vec, s.settings.PositionMutation, rnd); ok {
			pos.Vec = v
			moved++
		}
	}
	if moved == 0 {
		return 0
	}

	brains := s.neuronItems(KindBrain)
	s.sensorLinks = itemlink.Link12(brains, s.neuronItems(KindSensor), s.settings.Overflow, s.settings.Extra, rnd)
	s.synapses = reproject(s.synapses, oldBrains, brains, s.settings, rnd)
	return moved
}

func reproject(synapses []Synapse, before, after []itemlink.Item, settings Settings, rnd rng.Source) []Synapse {
	if len(synapses) == 0 {
		return nil
	}
	existing := make([]itemlink.WeightedLink, len(synapses))
	for i, syn := range synapses {
		existing[i] = itemlink.WeightedLink{From: before[syn.From].Position, To: before[syn.To].Position, Weight: syn.Weight}
	}
	points := make([]r3.Vec, len(after))
	for i, it := range after {
		points[i] = it.Position
	}

	maxFinal := settings.MaxSynapses
	if maxFinal <= 0 {
		maxFinal = len(synapses)
	}
	maxIntermediate := max(settings.MaxIntermediate, 1)

	var out []Synapse
	for _, r := range itemlink.FuzzyLink(existing, points, maxFinal, maxIntermediate, rnd) {
		out = append(out, Synapse{From: r.Index1, To: r.Index2, Weight: r.Weight})
	}
	return out
}

// Damage destroys part id.
func (s *Ship) Damage(id int) error {
	part, err := s.part(id)
	if err != nil {
		return err
	}
	part.Damage.Destroy()
	slog.Debug("ship: part destroyed", "ship", s.ID.String(), "part", id, "kind", part.Kind)
	return nil
}

// Repair brings part id back.
func (s *Ship) Repair(id int) error {
	part, err := s.part(id)
	if err != nil {
		return err
	}
	part.Damage.Resurrect()
	slog.Debug("ship: part repaired", "ship", s.ID.String(), "part", id, "kind", part.Kind)
	return nil
}

// Part returns a copy of part id and its position.
func (s *Ship) Part(id int) (Part, r3.Vec, error) {
	part, err := s.part(id)
	if err != nil {
		return Part{}, r3.Vec{}, err
	}
	return *part, s.posMap.Get(s.entities[id]).Vec, nil
}

func (s *Ship) part(id int) (*Part, error) {
	if id < 0 || id >= len(s.entities) {
		return nil, fmt.Errorf("%w: %d", ErrUnknownPart, id)
	}
	return s.partMap.Get(s.entities[id]), nil
}

// Close drops every tank group's damage subscriptions.
func (s *Ship) Close() {
	for _, name := range s.groupOrder {
		s.groups[name].Close()
	}
}
