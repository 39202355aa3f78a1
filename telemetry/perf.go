package telemetry

import (
	"log/slog"
	"slices"
	"time"

	"gonum.org/v1/gonum/stat"
)

// Phase is one timed section of a ship step.
type Phase int

const (
	PhaseSolve Phase = iota
	PhaseRefine
	PhaseFire
	PhaseRemutate
	PhaseTelemetry
	numPhases
)

var phaseNames = [numPhases]string{"solve", "refine", "fire", "remutate", "telemetry"}

func (p Phase) String() string {
	if p < 0 || p >= numPhases {
		return "unknown"
	}
	return phaseNames[p]
}

type stepTiming struct {
	total  time.Duration
	phases [numPhases]time.Duration
}

// PerfCollector times steps and their phases over a ring of recent steps.
// Not safe for concurrent use; the sim loop owns it.
type PerfCollector struct {
	ring   []stepTiming
	next   int
	filled int

	now     func() time.Time
	cur     stepTiming
	started time.Time
	mark    time.Time
	phase   Phase
	timing  bool // a phase is open
}

// NewPerfCollector keeps the last window steps.
func NewPerfCollector(window int) *PerfCollector {
	if window < 1 {
		window = 60
	}
	return &PerfCollector{ring: make([]stepTiming, window), now: time.Now}
}

// StartStep opens a step. Any phase left open from the last step is dropped.
func (p *PerfCollector) StartStep() {
	p.started = p.now()
	p.cur = stepTiming{}
	p.timing = false
}

// StartPhase closes the open phase, if any, and opens ph.
func (p *PerfCollector) StartPhase(ph Phase) {
	t := p.now()
	p.closePhase(t)
	p.phase, p.mark, p.timing = ph, t, true
}

// EndStep closes the step and stores it in the ring.
func (p *PerfCollector) EndStep() {
	t := p.now()
	p.closePhase(t)
	p.cur.total = t.Sub(p.started)

	p.ring[p.next] = p.cur
	p.next = (p.next + 1) % len(p.ring)
	p.filled = min(p.filled+1, len(p.ring))
}

func (p *PerfCollector) closePhase(t time.Time) {
	if p.timing && p.phase >= 0 && p.phase < numPhases {
		p.cur.phases[p.phase] += t.Sub(p.mark)
	}
	p.timing = false
}

// PerfStats summarises the steps currently in the ring.
type PerfStats struct {
	Steps          int
	Mean           time.Duration
	P95            time.Duration
	Max            time.Duration
	StepsPerSecond float64
	// Share is each phase's fraction of total step time.
	Share [numPhases]float64
}

// Stats summarises the ring. An empty collector yields zero stats.
func (p *PerfCollector) Stats() PerfStats {
	if p.filled == 0 {
		return PerfStats{}
	}

	secs := make([]float64, p.filled)
	var phaseSum [numPhases]time.Duration
	var total time.Duration
	for i, s := range p.ring[:p.filled] {
		secs[i] = s.total.Seconds()
		total += s.total
		for ph, d := range s.phases {
			phaseSum[ph] += d
		}
	}
	slices.Sort(secs)

	mean := stat.Mean(secs, nil)
	out := PerfStats{
		Steps: p.filled,
		Mean:  seconds(mean),
		P95:   seconds(stat.Quantile(0.95, stat.Empirical, secs, nil)),
		Max:   seconds(secs[len(secs)-1]),
	}
	if mean > 0 {
		out.StepsPerSecond = 1 / mean
	}
	if total > 0 {
		for ph, d := range phaseSum {
			out.Share[ph] = float64(d) / float64(total)
		}
	}
	return out
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

// LogStats logs the summary, listing only phases above 0.1% of step time.
func (s PerfStats) LogStats() {
	attrs := []any{
		"steps", s.Steps,
		"mean_us", s.Mean.Microseconds(),
		"p95_us", s.P95.Microseconds(),
		"max_us", s.Max.Microseconds(),
		"steps_per_sec", int(s.StepsPerSecond),
	}
	for ph, share := range s.Share {
		if share > 0.001 {
			attrs = append(attrs, Phase(ph).String()+"_pct", float64(int(share*1000))/10)
		}
	}
	slog.Info("perf", attrs...)
}

// PerfRecord is one row of perf.csv.
type PerfRecord struct {
	WindowEnd    int     `csv:"window_end"`
	Steps        int     `csv:"steps"`
	MeanUS       int64   `csv:"mean_step_us"`
	P95US        int64   `csv:"p95_step_us"`
	MaxUS        int64   `csv:"max_step_us"`
	StepsPerSec  float64 `csv:"steps_per_sec"`
	SolvePct     float64 `csv:"solve_pct"`
	RefinePct    float64 `csv:"refine_pct"`
	FirePct      float64 `csv:"fire_pct"`
	RemutatePct  float64 `csv:"remutate_pct"`
	TelemetryPct float64 `csv:"telemetry_pct"`
}

// Record flattens the stats into a perf.csv row.
func (s PerfStats) Record(windowEnd int) PerfRecord {
	return PerfRecord{
		WindowEnd:    windowEnd,
		Steps:        s.Steps,
		MeanUS:       s.Mean.Microseconds(),
		P95US:        s.P95.Microseconds(),
		MaxUS:        s.Max.Microseconds(),
		StepsPerSec:  s.StepsPerSecond,
		SolvePct:     s.Share[PhaseSolve] * 100,
		RefinePct:    s.Share[PhaseRefine] * 100,
		FirePct:      s.Share[PhaseFire] * 100,
		RemutatePct:  s.Share[PhaseRemutate] * 100,
		TelemetryPct: s.Share[PhaseTelemetry] * 100,
	}
}
