// Package exchange implements the end-of-tick cross-rank bookkeeping:
// ownership migration (a particle that moved into another sub-domain
// changes owner) and ghost-zone publication (particles near an edge
// are copied to neighboring ranks for next tick's force phase only).
package exchange

import (
	"github.com/pthm-cable/rankswarm/internal/comm"
	"github.com/pthm-cable/rankswarm/internal/partition"
	"github.com/pthm-cable/rankswarm/particle"
)

// Tags for the two all-to-all exchanges this package runs. Each is a
// count exchange followed by a payload exchange for non-zero counts.
const (
	TagMigrateCount   comm.Tag = 10
	TagMigratePayload comm.Tag = 11
	TagGhostCount     comm.Tag = 12
	TagGhostPayload   comm.Tag = 13
)

// Migrate partitions local into particles that stay on this rank and
// emigrants reassigned by table, exchanges emigrants with every other
// rank, and returns the updated local set: survivors plus immigrants.
// Must run before PublishGhosts, and ghost particles must never be
// passed to Migrate.
func Migrate(c *comm.Comm, table *partition.Table, local []particle.Particle) ([]particle.Particle, error) {
	rank := c.Rank()

	outgoing := make(map[int][]particle.Particle)
	var stayed []particle.Particle
	for _, p := range local {
		dest := table.RankOf(p.X, p.Y)
		if dest == rank {
			stayed = append(stayed, p)
			continue
		}
		outgoing[dest] = append(outgoing[dest], p)
	}

	return exchangeAllToAll(c, stayed, outgoing, TagMigrateCount, TagMigratePayload)
}

// PublishGhosts identifies which locally owned particles lie within
// ghostPad of a sub-domain edge, sends each to every neighboring rank
// that might need it for pairwise force, and returns the ghost
// particles received from neighbors this tick. Ghosts are never
// persisted: the caller appends the result to its working set for the
// force phase only, then drops it again before the next migrate.
func PublishGhosts(c *comm.Comm, table *partition.Table, ghostPad float64, local []particle.Particle) ([]particle.Particle, error) {
	rank := c.Rank()

	outgoing := make(map[int][]particle.Particle)
	for _, p := range local {
		for _, dest := range candidateRecipients(table, p, ghostPad) {
			if dest == rank {
				continue
			}
			outgoing[dest] = append(outgoing[dest], p)
		}
	}

	return exchangeAllToAll(c, nil, outgoing, TagGhostCount, TagGhostPayload)
}

// candidateRecipients enumerates the up to 8 neighboring sub-domains
// that might need a ghost copy of p, deduplicated, via rank_of(p.x ±
// pad, p.y ± pad) over the eight direction combinations.
func candidateRecipients(table *partition.Table, p particle.Particle, pad float64) []int {
	seen := make(map[int]bool, 8)
	var out []int
	offsets := [3]float64{-pad, 0, pad}
	for _, dx := range offsets {
		for _, dy := range offsets {
			if dx == 0 && dy == 0 {
				continue
			}
			x, y := p.X+dx, p.Y+dy
			if x < 0 || x >= 1 || y < 0 || y >= 1 {
				continue
			}
			r := table.RankOf(x, y)
			if !seen[r] {
				seen[r] = true
				out = append(out, r)
			}
		}
	}
	return out
}

// exchangeAllToAll runs one count-then-payload all-to-all exchange:
// every rank learns how many items every other rank is sending it
// before it posts its payload receives and sends. A payload that
// arrives before its receive is posted is buffered by comm until the
// matching IRecv. base seeds the returned slice
// (the locally retained particles, or nil for a ghost-only exchange).
func exchangeAllToAll(c *comm.Comm, base []particle.Particle, outgoing map[int][]particle.Particle, countTag, payloadTag comm.Tag) ([]particle.Particle, error) {
	rank := c.Rank()
	size := c.Size()

	countCh := make(map[int]<-chan comm.Envelope, size-1)
	for r := 0; r < size; r++ {
		if r != rank {
			countCh[r] = c.IRecv(r, countTag)
		}
	}
	for r := 0; r < size; r++ {
		if r == rank {
			continue
		}
		if err := c.Send(r, countTag, len(outgoing[r])); err != nil {
			return nil, err
		}
	}

	incomingCounts := make(map[int]int, size-1)
	for r, ch := range countCh {
		env := <-ch
		var n int
		if err := env.Decode(&n); err != nil {
			return nil, &comm.CommError{Op: "exchange-count-decode", Peer: r, Err: err}
		}
		incomingCounts[r] = n
	}

	payloadCh := make(map[int]<-chan comm.Envelope)
	for r, n := range incomingCounts {
		if n > 0 {
			payloadCh[r] = c.IRecv(r, payloadTag)
		}
	}
	for r := 0; r < size; r++ {
		if r == rank {
			continue
		}
		if batch := outgoing[r]; len(batch) > 0 {
			if err := c.Send(r, payloadTag, batch); err != nil {
				return nil, err
			}
		}
	}

	result := append([]particle.Particle{}, base...)
	for r, ch := range payloadCh {
		env := <-ch
		var batch []particle.Particle
		if err := env.Decode(&batch); err != nil {
			return nil, &comm.CommError{Op: "exchange-payload-decode", Peer: r, Err: err}
		}
		result = append(result, batch...)
	}
	return result, nil
}
