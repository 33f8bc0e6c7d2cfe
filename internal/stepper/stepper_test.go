package stepper

import (
	"bytes"
	"net"
	"strings"
	"testing"

	"github.com/pthm-cable/rankswarm/config"
	"github.com/pthm-cable/rankswarm/internal/comm"
	"github.com/pthm-cable/rankswarm/internal/partition"
	"github.com/pthm-cable/rankswarm/internal/snapshot"
	"github.com/pthm-cable/rankswarm/internal/worldmap"
	"github.com/pthm-cable/rankswarm/particle"
)

func singleRankComm(t *testing.T) *comm.Comm {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()
	ln.Close()
	c, err := comm.Dial(0, []string{addr}, addr)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	return c
}

func TestTickAdvancesParticlesTowardGoalsOnSingleRank(t *testing.T) {
	c := singleRankComm(t)
	defer c.Close()

	table, err := partition.BuildTable(1)
	if err != nil {
		t.Fatalf("BuildTable: %v", err)
	}
	m, err := worldmap.Load(strings.NewReader("h 4\nw 4\n1111\n1111\n1111\n1111\n"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	cfg, err := config.Load("")
	if err != nil {
		t.Fatalf("Load config: %v", err)
	}

	var buf bytes.Buffer
	snap := snapshot.NewWriter(&buf, cfg.Physics.Cutoff, m.Denom())

	// Initial velocities point toward each goal at the clamp, as
	// bootstrap assigns them; Step itself only changes velocity by AX*DT.
	initial := []particle.Particle{
		{X: 0.2, Y: 0.2, VX: 2, VY: 2, GX: 0.8, GY: 0.8},
		{X: 0.8, Y: 0.8, VX: -2, VY: -2, GX: 0.2, GY: 0.2},
	}
	s := New(c, table, m, cfg, initial, snap, 1000, 0)

	if err := s.Run(); err != nil {
		t.Fatalf("Run: %v", err)
	}

	for i, p := range s.local {
		if !m.IsWalkable(p.X, p.Y) {
			t.Fatalf("particle %d ended at non-walkable (%v, %v)", i, p.X, p.Y)
		}
	}
	if s.local[0].X < 0.6 || s.local[0].Y < 0.6 {
		t.Fatalf("particle 0 did not approach its goal: ended at (%v, %v)", s.local[0].X, s.local[0].Y)
	}
	if s.local[1].X > 0.4 || s.local[1].Y > 0.4 {
		t.Fatalf("particle 1 did not approach its goal: ended at (%v, %v)", s.local[1].X, s.local[1].Y)
	}

	lines := strings.Count(buf.String(), "\n")
	if lines == 0 {
		t.Fatal("expected snapshot output, got none")
	}
}
