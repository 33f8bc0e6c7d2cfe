package exchange

import (
	"net"
	"testing"
	"time"

	"github.com/pthm-cable/rankswarm/internal/comm"
	"github.com/pthm-cable/rankswarm/internal/partition"
	"github.com/pthm-cable/rankswarm/particle"
)

func freeAddrs(t *testing.T, n int) []string {
	t.Helper()
	addrs := make([]string, n)
	for i := 0; i < n; i++ {
		ln, err := net.Listen("tcp", "127.0.0.1:0")
		if err != nil {
			t.Fatalf("listen: %v", err)
		}
		addrs[i] = ln.Addr().String()
		ln.Close()
	}
	return addrs
}

func dialMesh(t *testing.T, n int) []*comm.Comm {
	t.Helper()
	addrs := freeAddrs(t, n)
	comms := make([]*comm.Comm, n)
	errs := make(chan error, n)
	for r := 0; r < n; r++ {
		r := r
		go func() {
			c, err := comm.Dial(r, addrs, addrs[r])
			if err != nil {
				errs <- err
				return
			}
			comms[r] = c
			errs <- nil
		}()
	}
	for i := 0; i < n; i++ {
		if err := <-errs; err != nil {
			t.Fatalf("Dial: %v", err)
		}
	}
	return comms
}

func closeAll(comms []*comm.Comm) {
	for _, c := range comms {
		c.Close()
	}
}

func TestMigrateMovesParticlesToTheirOwningRank(t *testing.T) {
	comms := dialMesh(t, 4)
	defer closeAll(comms)
	table, err := partition.BuildTable(4)
	if err != nil {
		t.Fatalf("BuildTable: %v", err)
	}

	// Rank 0 (quadrant [0,0.5)x[0,0.5)) holds one particle that has
	// moved into rank 1's quadrant ([0.5,1)x[0,0.5)); every other rank
	// has nothing to migrate.
	locals := map[int][]particle.Particle{
		0: {{X: 0.6, Y: 0.1}},
	}

	results := make([][]particle.Particle, 4)
	errs := make(chan error, 4)
	done := make(chan int, 4)
	for _, c := range comms {
		c := c
		go func() {
			out, err := Migrate(c, table, locals[c.Rank()])
			if err != nil {
				errs <- err
				return
			}
			results[c.Rank()] = out
			done <- c.Rank()
		}()
	}
	for i := 0; i < 4; i++ {
		select {
		case err := <-errs:
			t.Fatalf("Migrate: %v", err)
		case <-done:
		case <-time.After(3 * time.Second):
			t.Fatal("timed out waiting for migrate")
		}
	}

	if len(results[0]) != 0 {
		t.Fatalf("rank 0 kept %d particles, want 0 (its only particle emigrated)", len(results[0]))
	}
	if len(results[1]) != 1 {
		t.Fatalf("rank 1 received %d particles, want 1", len(results[1]))
	}
	if results[1][0].X != 0.6 {
		t.Fatalf("migrated particle has X=%v, want 0.6", results[1][0].X)
	}
}

func TestPublishGhostsDeliversNearEdgeCopiesToNeighbors(t *testing.T) {
	comms := dialMesh(t, 4)
	defer closeAll(comms)
	table, err := partition.BuildTable(4)
	if err != nil {
		t.Fatalf("BuildTable: %v", err)
	}

	// A particle just inside rank 0's quadrant near the (0.5,0.5)
	// corner should be published to ranks 1, 2, and 3.
	locals := map[int][]particle.Particle{
		0: {{X: 0.49, Y: 0.49}},
	}
	const ghostPad = 0.1

	results := make([][]particle.Particle, 4)
	errs := make(chan error, 4)
	done := make(chan int, 4)
	for _, c := range comms {
		c := c
		go func() {
			out, err := PublishGhosts(c, table, ghostPad, locals[c.Rank()])
			if err != nil {
				errs <- err
				return
			}
			results[c.Rank()] = out
			done <- c.Rank()
		}()
	}
	for i := 0; i < 4; i++ {
		select {
		case err := <-errs:
			t.Fatalf("PublishGhosts: %v", err)
		case <-done:
		case <-time.After(3 * time.Second):
			t.Fatal("timed out waiting for ghost publication")
		}
	}

	for _, rank := range []int{1, 2, 3} {
		if len(results[rank]) != 1 {
			t.Fatalf("rank %d got %d ghosts, want 1", rank, len(results[rank]))
		}
	}
	if len(results[0]) != 0 {
		t.Fatalf("rank 0 got %d ghosts of its own particle, want 0", len(results[0]))
	}
}
