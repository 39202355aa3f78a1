package sim

import (
	"log/slog"

	"github.com/pthm-cable/shipyard/rng"
	"github.com/pthm-cable/shipyard/telemetry"
)

// applyEvents rolls random damage and repair and runs the periodic
// remutation.
func (s *Sim) applyEvents() {
	if rng.Chance(s.rnd, s.opts.DamageChance) {
		if id, ok := s.pickPart(false); ok {
			if err := s.ship.Damage(id); err == nil {
				s.collector.RecordDamage()
			}
		}
	}
	if rng.Chance(s.rnd, s.opts.RepairChance) {
		if id, ok := s.pickPart(true); ok {
			if err := s.ship.Repair(id); err == nil {
				s.collector.RecordRepair()
			}
		}
	}

	if s.opts.RemutateEvery > 0 && (s.step+1)%s.opts.RemutateEvery == 0 {
		s.remutate()
	}
}

// pickPart returns a random part that is destroyed, or intact when destroyed
// is false.
func (s *Sim) pickPart(destroyed bool) (int, bool) {
	var ids []int
	for id := 0; id < s.ship.Len(); id++ {
		part, _, err := s.ship.Part(id)
		if err != nil {
			continue
		}
		if part.Damage.IsDestroyed() == destroyed {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return 0, false
	}
	return ids[s.rnd.IntN(len(ids))], true
}

// remutate moves parts and hands the new thruster layout to the solver.
func (s *Sim) remutate() {
	moved := s.ship.Remutate(s.rnd)
	if moved == 0 {
		return
	}
	s.collector.RecordRemutation()
	s.solver.SetThrusters(s.ship.Thrusters())
	slog.Debug("remutated", "step", s.step, "moved", moved, "synapses", len(s.ship.Synapses()))

	if err := s.output.WriteLinks(telemetry.LinkRecords(s.step+1, s.ship)); err != nil {
		slog.Error("failed to write links", "error", err)
	}
}
