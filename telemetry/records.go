package telemetry

import (
	"github.com/pthm-cable/shipyard/ship"
	"github.com/pthm-cable/shipyard/thrust"
)

// SolverRecordOf flattens a solver solution. polished is the CMA-ES score,
// NaN when no polish ran.
func SolverRecordOf(step int, req thrust.Request, sol thrust.Solution, polished float64) SolverRecord {
	r := SolverRecord{
		Step:       step,
		Request:    req.Name,
		Generation: sol.Generation,
		Final:      sol.Final,
		Polished:   polished,
		Used:       len(sol.Map.UsedThrusters()),
	}
	parts := []*float64{&r.Balance, &r.Underpowered, &r.Inefficiency}
	for i, v := range sol.Score {
		if i < len(parts) {
			*parts[i] = v
		}
		r.Total += v
	}
	return r
}

// ContainerRecords reports every resource group of s.
func ContainerRecords(step int, s *ship.Ship) []ContainerRecord {
	var out []ContainerRecord
	for _, name := range s.Resources() {
		g := s.Group(name)
		destroyed := 0
		for _, d := range g.Destroyed() {
			if d {
				destroyed++
			}
		}
		out = append(out, ContainerRecord{
			Step:      step,
			Resource:  name,
			Members:   g.Len(),
			Destroyed: destroyed,
			Current:   g.QuantityCurrent(),
			Max:       g.QuantityMax(),
			Usable:    g.QuantityMaxUsable(),
		})
	}
	return out
}

// LinkRecords reports the sensor links and synapses of s.
func LinkRecords(step int, s *ship.Ship) []LinkRecord {
	var out []LinkRecord
	for _, l := range s.SensorLinks() {
		out = append(out, LinkRecord{Step: step, Kind: "sensor", From: l.Index1, To: l.Index2, Weight: 1})
	}
	for _, syn := range s.Synapses() {
		out = append(out, LinkRecord{Step: step, Kind: "synapse", From: syn.From, To: syn.To, Weight: syn.Weight})
	}
	return out
}

// LevelsOf samples fuel, matter and mass from s.
func LevelsOf(s *ship.Ship) Levels {
	var lv Levels
	if g := s.Group(ship.ResourceFuel); g != nil {
		lv.Fuel = g.QuantityCurrent()
	}
	if g := s.Group(ship.ResourceMatter); g != nil {
		lv.Matter = g.QuantityCurrent()
	}
	_, lv.Mass = s.CenterOfMass()
	return lv
}
