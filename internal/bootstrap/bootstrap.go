// Package bootstrap builds the initial particle population on root —
// map broadcast, agent-pin parsing, rejection-sampled random placement,
// initial velocity/color assignment — and distributes it to every rank
// by owning sub-domain.
package bootstrap

import (
	"fmt"
	"io"
	"math/rand"

	"github.com/gocarina/gocsv"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/pthm-cable/rankswarm/internal/comm"
	"github.com/pthm-cable/rankswarm/internal/integrate"
	"github.com/pthm-cable/rankswarm/internal/partition"
	"github.com/pthm-cable/rankswarm/internal/worldmap"
	"github.com/pthm-cable/rankswarm/particle"
)

// TagInit is the point-to-point tag root uses to distribute the
// initial particle population to each rank.
const TagInit comm.Tag = 1

// AgentFormatError is returned when the pin file is malformed or its
// line count doesn't match the declared count.
type AgentFormatError struct {
	Reason string
}

func (e *AgentFormatError) Error() string {
	return fmt.Sprintf("agent file format error: %s", e.Reason)
}

// UnreachableInit is returned when rejection sampling for a particle's
// position or goal exceeds the configured retry cap — the map is too
// dense (or too small) to place the requested population.
type UnreachableInit struct {
	RetryCap int
}

func (e *UnreachableInit) Error() string {
	return fmt.Sprintf("bootstrap: exceeded %d placement retries without finding a walkable cell", e.RetryCap)
}

// AgentPin is the headerless four-column CSV row: start position,
// goal position.
type AgentPin struct {
	SX float64
	SY float64
	GX float64
	GY float64
}

// LoadAgentPins parses the agent pin file: one "sx,sy,gx,gy" line per
// agent. wantCount must match the number of parsed lines exactly.
func LoadAgentPins(r io.Reader, wantCount int) ([]AgentPin, error) {
	var records []AgentPin
	if err := gocsv.UnmarshalWithoutHeaders(r, &records); err != nil {
		return nil, &AgentFormatError{Reason: err.Error()}
	}
	if len(records) != wantCount {
		return nil, &AgentFormatError{Reason: fmt.Sprintf("got %d agent lines, want %d", len(records), wantCount)}
	}
	return records, nil
}

// BroadcastMap distributes root's map to every rank. Non-root callers
// pass nil and receive the broadcast map back.
func BroadcastMap(c *comm.Comm, m *worldmap.Map) (*worldmap.Map, error) {
	var send worldmap.Map
	if c.Rank() == 0 && m != nil {
		send = *m
	}
	got, err := comm.Bcast(c, 0, send)
	if err != nil {
		return nil, err
	}
	return &got, nil
}

// samplePoint rejection-samples a walkable (x, y) from the unit square,
// failing with UnreachableInit after retryCap attempts.
func samplePoint(m *worldmap.Map, rng *distuv.Uniform, retryCap int) (x, y float64, err error) {
	for attempt := 0; attempt < retryCap; attempt++ {
		x, y = rng.Rand(), rng.Rand()
		if m.IsWalkable(x, y) {
			return x, y, nil
		}
	}
	return 0, 0, &UnreachableInit{RetryCap: retryCap}
}

// Build assembles the full initial particle population on root: agent
// pins first, then randomCount additional rejection-sampled particles.
// seed makes the random placement, velocity, and color draws
// reproducible across runs.
func Build(m *worldmap.Map, pins []AgentPin, randomCount int, retryCap int, seed uint64) ([]particle.Particle, error) {
	posRng := &distuv.Uniform{Min: 0, Max: 1, Src: rand.NewSource(seed)}
	velRng := &distuv.Uniform{Min: 0, Max: 1, Src: rand.NewSource(seed + 1)}
	colorRng := &distuv.Uniform{Min: 0, Max: 1, Src: rand.NewSource(seed + 2)}

	particles := make([]particle.Particle, 0, len(pins)+randomCount)

	for _, pin := range pins {
		particles = append(particles, newParticle(pin.SX, pin.SY, pin.GX, pin.GY, velRng, colorRng))
	}

	for i := 0; i < randomCount; i++ {
		sx, sy, err := samplePoint(m, posRng, retryCap)
		if err != nil {
			return nil, err
		}
		gx, gy, err := samplePoint(m, posRng, retryCap)
		if err != nil {
			return nil, err
		}
		particles = append(particles, newParticle(sx, sy, gx, gy, velRng, colorRng))
	}

	return particles, nil
}

// newParticle assigns initial velocity and color to a particle pinned
// at (sx,sy) with goal (gx,gy): magnitude drawn U(0,1)*2+1 on each
// axis, signed by the direction toward the goal, zeroed when already
// within tolerance.
func newParticle(sx, sy, gx, gy float64, velRng, colorRng *distuv.Uniform) particle.Particle {
	p := particle.Particle{X: sx, Y: sy, GX: gx, GY: gy}

	u := velRng.Rand()*2 + 1
	v := velRng.Rand()*2 + 1

	switch integrate.SignedDirection(p.X, p.GX) {
	case 1:
		p.VX = u
	case -1:
		p.VX = -u
	default:
		p.VX = 0
	}
	switch integrate.SignedDirection(p.Y, p.GY) {
	case 1:
		p.VY = v
	case -1:
		p.VY = -v
	default:
		p.VY = 0
	}

	p.CR = colorRng.Rand()
	p.CG = colorRng.Rand()
	p.CB = colorRng.Rand()

	return p
}

// BucketByRank groups particles by their owning sub-domain.
func BucketByRank(particles []particle.Particle, table *partition.Table) map[int][]particle.Particle {
	buckets := make(map[int][]particle.Particle)
	for _, p := range particles {
		rank := table.RankOf(p.X, p.Y)
		buckets[rank] = append(buckets[rank], p)
	}
	return buckets
}

// Distribute sends each non-root bucket to its owning rank and returns
// root's own bucket. Only root should call this.
func Distribute(c *comm.Comm, buckets map[int][]particle.Particle) ([]particle.Particle, error) {
	for rank := 0; rank < c.Size(); rank++ {
		if rank == c.Rank() {
			continue
		}
		if err := c.Send(rank, TagInit, buckets[rank]); err != nil {
			return nil, err
		}
	}
	return buckets[c.Rank()], nil
}

// Receive blocks until root's initial bucket for this rank arrives.
// Only non-root ranks should call this.
func Receive(c *comm.Comm) ([]particle.Particle, error) {
	env := <-c.IRecv(0, TagInit)
	var particles []particle.Particle
	if err := env.Decode(&particles); err != nil {
		return nil, &comm.CommError{Op: "bootstrap-decode", Peer: 0, Err: err}
	}
	return particles, nil
}
