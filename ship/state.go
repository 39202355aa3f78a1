package ship

import (
	"errors"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/pthm-cable/shipyard/itemlink"
)

// ErrStateMismatch is returned when saved state does not fit the ship.
var ErrStateMismatch = errors.New("ship: state does not match ship")

// PartState is the persisted state of one part.
type PartState struct {
	ID        int  `yaml:"id"`
	Kind      Kind `yaml:"kind"`
	Position  Vec  `yaml:"position"`
	Destroyed bool `yaml:"destroyed,omitempty"`
	// Tanks only.
	Quantity *float64 `yaml:"quantity,omitempty"`
	Capacity *float64 `yaml:"capacity,omitempty"`
}

// SensorLink is a persisted brain to sensor link.
type SensorLink struct {
	Brain  int `yaml:"brain"`
	Sensor int `yaml:"sensor"`
}

// State is the persisted container and link state of a ship.
type State struct {
	Ship        string       `yaml:"ship"`
	Name        string       `yaml:"name"`
	Parts       []PartState  `yaml:"parts"`
	SensorLinks []SensorLink `yaml:"sensor_links"`
	Synapses    []Synapse    `yaml:"synapses"`
}

// State captures the current quantities, positions, damage and links.
func (s *Ship) State() State {
	st := State{Ship: s.ID.String(), Name: s.Name}
	for id, e := range s.entities {
		part := s.partMap.Get(e)
		ps := PartState{
			ID:        id,
			Kind:      part.Kind,
			Position:  VecOf(s.posMap.Get(e).Vec),
			Destroyed: part.Damage.IsDestroyed(),
		}
		if s.tanks.Has(e) {
			res := s.tanks.Get(e).Reservoir
			q, c := res.QuantityCurrent(), res.QuantityMax()
			ps.Quantity, ps.Capacity = &q, &c
		}
		st.Parts = append(st.Parts, ps)
	}
	for _, l := range s.sensorLinks {
		st.SensorLinks = append(st.SensorLinks, SensorLink{Brain: l.Index1, Sensor: l.Index2})
	}
	st.Synapses = append(st.Synapses, s.synapses...)
	return st
}

// SaveState writes State as YAML.
func (s *Ship) SaveState(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(s.State()); err != nil {
		return fmt.Errorf("ship: encoding state: %w", err)
	}
	return enc.Close()
}

// LoadState reads YAML written by SaveState and applies it. Parts are matched
// by ID and must have the same kinds. Nothing is applied when validation
// fails.
func (s *Ship) LoadState(r io.Reader) error {
	var st State
	if err := yaml.NewDecoder(r).Decode(&st); err != nil {
		return fmt.Errorf("ship: decoding state: %w", err)
	}
	return s.ApplyState(st)
}

// ApplyState applies st. See LoadState.
func (s *Ship) ApplyState(st State) error {
	if err := s.checkState(st); err != nil {
		return err
	}

	for _, ps := range st.Parts {
		e := s.entities[ps.ID]
		part := s.partMap.Get(e)
		s.posMap.Get(e).Vec = ps.Position.R3()
		if ps.Destroyed {
			part.Damage.Destroy()
		} else {
			part.Damage.Resurrect()
		}
	}

	// Quantities go in after damage so destroyed tanks are not zeroed later.
	for _, ps := range st.Parts {
		if ps.Quantity == nil {
			continue
		}
		res := s.tanks.Get(s.entities[ps.ID]).Reservoir
		if err := res.SetQuantityMax(*ps.Capacity); err != nil {
			return fmt.Errorf("ship: part %d: %w", ps.ID, err)
		}
		if err := res.SetQuantityCurrent(*ps.Quantity); err != nil {
			return fmt.Errorf("ship: part %d: %w", ps.ID, err)
		}
	}

	s.sensorLinks = s.sensorLinks[:0]
	for _, l := range st.SensorLinks {
		s.sensorLinks = append(s.sensorLinks, itemlink.Link{Index1: l.Brain, Index2: l.Sensor})
	}
	s.synapses = append([]Synapse(nil), st.Synapses...)
	return nil
}

func (s *Ship) checkState(st State) error {
	if len(st.Parts) != len(s.entities) {
		return fmt.Errorf("%w: %d parts, ship has %d", ErrStateMismatch, len(st.Parts), len(s.entities))
	}
	brains, sensors := 0, 0
	for _, e := range s.entities {
		switch s.partMap.Get(e).Kind {
		case KindBrain:
			brains++
		case KindSensor:
			sensors++
		}
	}

	seen := make(map[int]bool, len(st.Parts))
	for _, ps := range st.Parts {
		if ps.ID < 0 || ps.ID >= len(s.entities) || seen[ps.ID] {
			return fmt.Errorf("%w: bad part id %d", ErrStateMismatch, ps.ID)
		}
		seen[ps.ID] = true
		e := s.entities[ps.ID]
		if kind := s.partMap.Get(e).Kind; kind != ps.Kind {
			return fmt.Errorf("%w: part %d is %s, state says %s", ErrStateMismatch, ps.ID, kind, ps.Kind)
		}
		if (ps.Quantity != nil) != s.tanks.Has(e) || (ps.Quantity != nil && ps.Capacity == nil) {
			return fmt.Errorf("%w: part %d tank state", ErrStateMismatch, ps.ID)
		}
	}
	for _, l := range st.SensorLinks {
		if l.Brain < 0 || l.Brain >= brains || l.Sensor < 0 || l.Sensor >= sensors {
			return fmt.Errorf("%w: sensor link %d->%d", ErrStateMismatch, l.Brain, l.Sensor)
		}
	}
	for _, syn := range st.Synapses {
		if syn.From < 0 || syn.From >= brains || syn.To < 0 || syn.To >= brains {
			return fmt.Errorf("%w: synapse %d->%d", ErrStateMismatch, syn.From, syn.To)
		}
	}
	return nil
}
