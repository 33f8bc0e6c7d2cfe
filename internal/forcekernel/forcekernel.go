// Package forcekernel implements the short-range pairwise repulsive
// force between particles.
package forcekernel

import (
	"math"

	"github.com/pthm-cable/rankswarm/particle"
)

// Default tuned constants, matching the reference implementation.
// Callers that don't need an overlay can pass DefaultParams.
const (
	Cutoff = 1e-2
	MinR   = Cutoff / 100
	Mass   = 1e-2
)

// Params holds the force law's tuned constants, sourced from
// config.PhysicsConfig so a -config overlay actually changes the force
// computed, not just what the snapshot header reports.
type Params struct {
	Cutoff float64
	MinR   float64
	Mass   float64
}

// DefaultParams matches the reference implementation's hardcoded
// tuning.
var DefaultParams = Params{Cutoff: Cutoff, MinR: MinR, Mass: Mass}

// ApplyForce accumulates the repulsive force of q acting on p into
// p.AX/p.AY. It never modifies q. Acceleration is not reset here — the
// caller zeroes AX/AY once per particle at the start of each force
// phase.
func ApplyForce(p *particle.Particle, q particle.Particle, params Params) {
	dx := (q.X - p.X) + 0.1*sign(q.X-p.X)
	dy := (q.Y - p.Y) + 0.1*sign(q.Y-p.Y)

	rSq := dx*dx + dy*dy
	if rSq > params.Cutoff*params.Cutoff {
		return
	}

	minRSq := params.MinR * params.MinR
	if rSq < minRSq {
		rSq = minRSq
	}
	r := math.Sqrt(rSq)

	coef := (1 - params.Cutoff/r) / rSq / params.Mass

	p.AX += clampMag(coef*dx, 1000)
	p.AY += clampMag(coef*dy, 1000)
}

// clampMag returns v with its magnitude capped at limit, preserving
// sign. This prevents explosive acceleration when particles clump.
func clampMag(v, limit float64) float64 {
	if v > limit {
		return limit
	}
	if v < -limit {
		return -limit
	}
	return v
}

func sign(v float64) float64 {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	default:
		return 0
	}
}
