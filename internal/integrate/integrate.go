// Package integrate implements the per-particle goal-biased velocity
// update and wall-reflection move.
package integrate

import (
	"fmt"
	"math"

	"github.com/pthm-cable/rankswarm/internal/worldmap"
	"github.com/pthm-cable/rankswarm/particle"
)

// Default tuned constants, matching the reference implementation.
// Callers that don't need an overlay can pass DefaultParams.
const (
	DT        = 5e-4
	Precision = 2
)

// VelocityClamp is the per-axis velocity magnitude cap applied before
// every integrate step, absent an overlay.
const VelocityClamp = 2.0

// Params holds the integrator's tuned constants, sourced from
// config.PhysicsConfig so a -config overlay actually changes motion,
// not just what the snapshot header reports.
type Params struct {
	DT            float64
	Precision     int
	VelocityClamp float64
}

// DefaultParams matches the reference implementation's hardcoded
// tuning.
var DefaultParams = Params{DT: DT, Precision: Precision, VelocityClamp: VelocityClamp}

// ViolationError is raised when a particle ends its integrate step on a
// non-walkable cell — an assertion failure that indicates a bug
// upstream in the reflection logic.
type ViolationError struct {
	X, Y float64
}

func (e *ViolationError) Error() string {
	return fmt.Sprintf("integrator invariant violation: (%v, %v) is not walkable", e.X, e.Y)
}

// Step advances one particle by one tick: velocity update biased toward
// its goal, a tentative move, then wall-reflection until the particle
// rests in a walkable cell. params carries the tuned DT/Precision/
// VelocityClamp constants, sourced from config.PhysicsConfig.
func Step(p *particle.Particle, m *worldmap.Map, params Params) error {
	ox, oy := p.X, p.Y

	p.VX = clampSigned(p.VX, params.VelocityClamp)
	p.VY = clampSigned(p.VY, params.VelocityClamp)

	dirX := signedDirection(p.X, p.GX, params.Precision)
	dirY := signedDirection(p.Y, p.GY, params.Precision)

	switch {
	case dirX > 0:
		p.VX += p.AX * params.DT
	case dirX < 0:
		p.VX += p.AX * params.DT * -1
	default:
		p.VX = 0
	}
	switch {
	case dirY > 0:
		p.VY += p.AY * params.DT
	case dirY < 0:
		p.VY += p.AY * params.DT * -1
	default:
		p.VY = 0
	}

	if !atGoal(p, params.Precision) {
		p.X += p.VX * params.DT
		p.Y += p.VY * params.DT
	}

	reflectX(p, m, ox, oy, params)
	// The Y reflection pass tests against the already-updated p.X rather
	// than the pre-move position, matching the reference implementation.
	reflectY(p, m, oy, params)

	if !m.IsWalkable(p.X, p.Y) {
		return &ViolationError{X: p.X, Y: p.Y}
	}
	return nil
}

// reflectX mirrors the particle across the wall boundary crossed during
// the move, as many times as the straddle condition against the
// *original* boundary still holds. The boundary itself is computed once
// up front and held fixed through the loop, matching the reference
// implementation this spec distills from.
func reflectX(p *particle.Particle, m *worldmap.Map, ox, oy float64, params Params) {
	wallX, ok := m.WallBetween(worldmap.AxisX, ox, oy, p.X)
	if !ok {
		return
	}
	for straddles(p.X, ox, wallX) {
		p.X = 2*wallX - p.X
		dirX := signedDirection(p.X, p.GX, params.Precision)
		switch {
		case dirX < 0:
			p.VX = -p.VX + p.AX*params.DT
		case dirX == 0:
			p.VX = 0
			p.VY += p.AY * p.AY
		}
	}
}

// reflectY is the Y-axis counterpart, tested against the already-
// updated p.X.
func reflectY(p *particle.Particle, m *worldmap.Map, oy float64, params Params) {
	wallY, ok := m.WallBetween(worldmap.AxisY, p.X, oy, p.Y)
	if !ok {
		return
	}
	for straddles(p.Y, oy, wallY) {
		p.Y = 2*wallY - p.Y
		dirY := signedDirection(p.Y, p.GY, params.Precision)
		switch {
		case dirY < 0:
			p.VY = -p.VY + p.AY*params.DT
		case dirY == 0:
			p.VY = 0
			p.VX += p.AX * p.AX
		}
	}
}

// straddles reports whether cur lies strictly between orig and wall,
// i.e. the particle has not yet crossed back over the wall boundary
// toward its origin side.
func straddles(cur, orig, wall float64) bool {
	return (cur > wall && wall > orig) || (orig > wall && wall > cur)
}

// signedDirection returns +1/-1/0 for the signed direction from a
// toward b, where 0 means "within tolerance 0.1^precision *
// max(|a|,|b|)". Both-zero is defined as "on target" to avoid a NaN
// comparison.
func signedDirection(a, b float64, precision int) int {
	if a == 0 && b == 0 {
		return 0
	}
	m := math.Abs(a)
	if ab := math.Abs(b); ab > m {
		m = ab
	}
	tol := math.Pow(0.1, float64(precision)) * m
	d := b - a
	if math.Abs(d) <= tol {
		return 0
	}
	if d > 0 {
		return 1
	}
	return -1
}

// SignedDirection exposes the goal-direction sign test (with its "on
// target" tolerance, at the default precision) for callers outside this
// package, such as initial velocity assignment at bootstrap.
func SignedDirection(a, b float64) int {
	return signedDirection(a, b, Precision)
}

func atGoal(p *particle.Particle, precision int) bool {
	return signedDirection(p.X, p.GX, precision) == 0 && signedDirection(p.Y, p.GY, precision) == 0
}

func clampSigned(v, limit float64) float64 {
	if v > limit {
		return limit
	}
	if v < -limit {
		return -limit
	}
	return v
}
