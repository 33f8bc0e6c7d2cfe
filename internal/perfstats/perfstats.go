// Package perfstats tracks per-phase tick timing over a rolling window,
// for the optional -perf report.
package perfstats

import "time"

// Phase names for the per-tick pipeline.
const (
	PhaseForce     = "force"
	PhaseIntegrate = "integrate"
	PhaseMigrate   = "migrate"
	PhaseGhosts    = "ghosts"
	PhaseSnapshot  = "snapshot"
)

// Sample holds timing data for a single tick.
type Sample struct {
	TickDuration time.Duration
	Phases       map[string]time.Duration
}

// Collector tracks tick and phase timings over a rolling window of the
// most recent ticks.
type Collector struct {
	windowSize  int
	samples     []Sample
	writeIndex  int
	sampleCount int

	currentPhases map[string]time.Duration
	tickStart     time.Time
	phaseStart    time.Time
	lastPhase     string
}

// NewCollector creates a collector averaging over the last windowSize
// ticks. windowSize < 1 defaults to 100.
func NewCollector(windowSize int) *Collector {
	if windowSize < 1 {
		windowSize = 100
	}
	return &Collector{
		windowSize:    windowSize,
		samples:       make([]Sample, windowSize),
		currentPhases: make(map[string]time.Duration),
	}
}

// StartTick begins timing a new tick.
func (c *Collector) StartTick(now time.Time) {
	c.tickStart = now
	c.currentPhases = make(map[string]time.Duration)
	c.lastPhase = ""
}

// StartPhase begins timing a named phase, ending whichever phase was
// previously open.
func (c *Collector) StartPhase(phase string, now time.Time) {
	if c.lastPhase != "" {
		c.currentPhases[c.lastPhase] += now.Sub(c.phaseStart)
	}
	c.phaseStart = now
	c.lastPhase = phase
}

// EndTick closes out the current phase and records the completed tick.
func (c *Collector) EndTick(now time.Time) {
	if c.lastPhase != "" {
		c.currentPhases[c.lastPhase] += now.Sub(c.phaseStart)
		c.lastPhase = ""
	}
	c.samples[c.writeIndex] = Sample{
		TickDuration: now.Sub(c.tickStart),
		Phases:       c.currentPhases,
	}
	c.writeIndex = (c.writeIndex + 1) % c.windowSize
	if c.sampleCount < c.windowSize {
		c.sampleCount++
	}
}

// Stats holds aggregated statistics over the current window.
type Stats struct {
	AvgTick        time.Duration
	MinTick        time.Duration
	MaxTick        time.Duration
	PhaseAvg       map[string]time.Duration
	PhasePct       map[string]float64
	TicksPerSecond float64
	SampleCount    int
}

// Stats computes aggregated statistics over the window recorded so far.
func (c *Collector) Stats() Stats {
	if c.sampleCount == 0 {
		return Stats{PhaseAvg: map[string]time.Duration{}, PhasePct: map[string]float64{}}
	}

	var total, min, max time.Duration
	phaseSum := make(map[string]time.Duration)
	for i := 0; i < c.sampleCount; i++ {
		s := c.samples[i]
		total += s.TickDuration
		if i == 0 || s.TickDuration < min {
			min = s.TickDuration
		}
		if s.TickDuration > max {
			max = s.TickDuration
		}
		for phase, d := range s.Phases {
			phaseSum[phase] += d
		}
	}

	avg := total / time.Duration(c.sampleCount)
	phaseAvg := make(map[string]time.Duration, len(phaseSum))
	phasePct := make(map[string]float64, len(phaseSum))
	for phase, sum := range phaseSum {
		a := sum / time.Duration(c.sampleCount)
		phaseAvg[phase] = a
		if avg > 0 {
			phasePct[phase] = float64(a) / float64(avg) * 100
		}
	}

	var tps float64
	if avg > 0 {
		tps = float64(time.Second) / float64(avg)
	}

	return Stats{
		AvgTick:        avg,
		MinTick:        min,
		MaxTick:        max,
		PhaseAvg:       phaseAvg,
		PhasePct:       phasePct,
		TicksPerSecond: tps,
		SampleCount:    c.sampleCount,
	}
}
