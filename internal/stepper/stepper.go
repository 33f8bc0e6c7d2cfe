// Package stepper orchestrates one rank's per-tick pipeline: force
// accumulation over the local-plus-ghost set, integration of locally
// owned particles, ownership migration, ghost-zone publication, and
// (on root) snapshot emission.
package stepper

import (
	"time"

	"github.com/pthm-cable/rankswarm/config"
	"github.com/pthm-cable/rankswarm/internal/comm"
	"github.com/pthm-cable/rankswarm/internal/exchange"
	"github.com/pthm-cable/rankswarm/internal/forcekernel"
	"github.com/pthm-cable/rankswarm/internal/integrate"
	"github.com/pthm-cable/rankswarm/internal/logging"
	"github.com/pthm-cable/rankswarm/internal/partition"
	"github.com/pthm-cable/rankswarm/internal/perfstats"
	"github.com/pthm-cable/rankswarm/internal/snapshot"
	"github.com/pthm-cable/rankswarm/internal/worldmap"
	"github.com/pthm-cable/rankswarm/particle"
)

// Stepper owns one rank's working particle set and drives it through
// the tick pipeline until the configured step limit.
type Stepper struct {
	comm  *comm.Comm
	table *partition.Table
	m     *worldmap.Map
	cfg   *config.Config

	local  []particle.Particle
	ghosts []particle.Particle

	snap *snapshot.Writer // non-nil only on root
	perf *perfstats.Collector

	limit        int
	perfLogEvery int
}

// New builds a Stepper for this rank, seeded with its initial owned
// particle set from bootstrap. snap must be non-nil exactly when
// c.Rank() == 0.
func New(c *comm.Comm, table *partition.Table, m *worldmap.Map, cfg *config.Config, initial []particle.Particle, snap *snapshot.Writer, limit, perfLogEvery int) *Stepper {
	return &Stepper{
		comm:         c,
		table:        table,
		m:            m,
		cfg:          cfg,
		local:        initial,
		snap:         snap,
		perf:         perfstats.NewCollector(perfLogEvery),
		limit:        limit,
		perfLogEvery: perfLogEvery,
	}
}

// Run drives the tick loop until the step limit is reached (limit == 0
// means run indefinitely) or a fatal error occurs.
func (s *Stepper) Run() error {
	for tick := 0; s.limit == 0 || tick < s.limit; tick++ {
		if err := s.Tick(); err != nil {
			return err
		}
		if s.perfLogEvery > 0 && (tick+1)%s.perfLogEvery == 0 {
			s.logPerf()
		}
	}
	return nil
}

// Tick runs exactly the pipeline in the order the invariants require:
// force, then integrate, then migrate, then ghost publication, then
// (on root) snapshot. The force and integrate phases never suspend;
// only the exchange and gather calls inside migrate/publish/snapshot
// touch the network.
func (s *Stepper) Tick() error {
	s.perf.StartTick(time.Now())

	s.perf.StartPhase(perfstats.PhaseForce, time.Now())
	s.applyForces()

	s.perf.StartPhase(perfstats.PhaseIntegrate, time.Now())
	integrateParams := integrate.Params{
		DT:            s.cfg.Physics.DT,
		Precision:     s.cfg.Physics.Precision,
		VelocityClamp: s.cfg.Physics.VelocityClamp,
	}
	for i := range s.local {
		if err := integrate.Step(&s.local[i], s.m, integrateParams); err != nil {
			return err
		}
	}

	s.perf.StartPhase(perfstats.PhaseMigrate, time.Now())
	migrated, err := exchange.Migrate(s.comm, s.table, s.local)
	if err != nil {
		return err
	}
	s.local = migrated

	s.perf.StartPhase(perfstats.PhaseGhosts, time.Now())
	ghosts, err := exchange.PublishGhosts(s.comm, s.table, s.cfg.Exchange.GhostPad, s.local)
	if err != nil {
		return err
	}
	s.ghosts = ghosts

	s.perf.StartPhase(perfstats.PhaseSnapshot, time.Now())
	if err := s.emitSnapshot(); err != nil {
		return err
	}

	s.perf.EndTick(time.Now())
	return nil
}

// applyForces zeroes every local particle's acceleration, then
// accumulates the pairwise repulsion from every other known particle
// (local peers and this tick's ghosts). It is not symmetric: only the
// particle on the left of each call is updated, matching the reference
// implementation's single-pass loop.
func (s *Stepper) applyForces() {
	forceParams := forcekernel.Params{
		Cutoff: s.cfg.Physics.Cutoff,
		MinR:   s.cfg.Physics.MinR,
		Mass:   s.cfg.Physics.Mass,
	}
	for i := range s.local {
		s.local[i].AX, s.local[i].AY = 0, 0
	}
	for i := range s.local {
		for j := range s.local {
			if j == i {
				continue
			}
			forcekernel.ApplyForce(&s.local[i], s.local[j], forceParams)
		}
		for _, g := range s.ghosts {
			forcekernel.ApplyForce(&s.local[i], g, forceParams)
		}
	}
}

// emitSnapshot gathers this rank's minimal per-particle records to
// root; root appends them as one frame, in rank order, to the output
// stream.
func (s *Stepper) emitSnapshot() error {
	records := make([]snapshot.Record, len(s.local))
	for i, p := range s.local {
		records[i] = snapshot.Record{X: p.X, Y: p.Y, CR: p.CR, CG: p.CG, CB: p.CB}
	}

	gathered, err := comm.Gather(s.comm, 0, records)
	if err != nil {
		return err
	}
	if s.comm.Rank() != 0 {
		return nil
	}

	var flat []snapshot.Record
	for _, batch := range gathered {
		flat = append(flat, batch...)
	}
	return s.snap.WriteFrame(flat)
}

func (s *Stepper) logPerf() {
	stats := s.perf.Stats()
	logging.Logf("perf avg_tick=%s force_pct=%.1f integrate_pct=%.1f migrate_pct=%.1f ghosts_pct=%.1f snapshot_pct=%.1f",
		stats.AvgTick,
		stats.PhasePct[perfstats.PhaseForce],
		stats.PhasePct[perfstats.PhaseIntegrate],
		stats.PhasePct[perfstats.PhaseMigrate],
		stats.PhasePct[perfstats.PhaseGhosts],
		stats.PhasePct[perfstats.PhaseSnapshot],
	)
}
