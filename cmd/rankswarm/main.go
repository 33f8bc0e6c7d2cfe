// Command rankswarm runs one rank process of the distributed particle
// simulator. Every rank in a run is a separate invocation of this
// binary; -rank/-ranks/-peers describe the topology they form.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/pthm-cable/rankswarm/config"
	"github.com/pthm-cable/rankswarm/internal/bootstrap"
	"github.com/pthm-cable/rankswarm/internal/comm"
	"github.com/pthm-cable/rankswarm/internal/logging"
	"github.com/pthm-cable/rankswarm/internal/partition"
	"github.com/pthm-cable/rankswarm/internal/snapshot"
	"github.com/pthm-cable/rankswarm/internal/stepper"
	"github.com/pthm-cable/rankswarm/internal/worldmap"
	"github.com/pthm-cable/rankswarm/particle"
)

// Exit codes, per the driver's external contract.
const (
	exitOK                   = 0
	exitBadArgsOrIO          = 1
	exitUnsupportedRankCount = 2
	exitFormatError          = 3
)

func main() {
	os.Exit(run())
}

func run() int {
	var (
		pinFile     = flag.String("p", "", "agent pin file")
		pinCount    = flag.Int("y", -1, "agent-pin count (must match -p line count)")
		randomCount = flag.Int("r", -1, "additional random-agent count (default 2 when -p unset, else 0)")
		mapFile     = flag.String("c", "map.cfg", "map file")
		outPath     = flag.String("o", "stdout", "snapshot sink: a file path or \"stdout\"")
		stepLimit   = flag.Int("t", -1, "step limit (default 1000 when -o is a file or stdout; 0 = infinite)")
		configFile  = flag.String("config", "", "optional YAML config overlay")
		seed        = flag.Uint64("seed", 1, "RNG seed for reproducible placement and velocity draws")

		rank      = flag.Int("rank", 0, "this process's rank")
		numRanks  = flag.Int("ranks", 1, "total rank count (must be 1, 4, 16, 64, ...)")
		peersFlag = flag.String("peers", "", "comma-separated list of rank addresses, indexed by rank")
		listen    = flag.String("listen", "", "this rank's own bind address (default: its entry in -peers)")

		perfLog      = flag.Bool("perf", false, "log per-phase timing periodically")
		perfInterval = flag.Int("perf-interval", 100, "ticks between perf log lines")
		logFile      = flag.String("logfile", "", "write logs to a file instead of stdout")
	)
	flag.Parse()

	if *logFile != "" {
		f, err := os.Create(*logFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "rankswarm: opening logfile: %v\n", err)
			return exitBadArgsOrIO
		}
		defer f.Close()
		logging.SetWriter(f)
	}
	if *rank != 0 {
		logging.SetRankPrefix(*rank)
	}

	peers := strings.Split(*peersFlag, ",")
	if *peersFlag == "" {
		peers = nil
	}
	if len(peers) != *numRanks {
		fmt.Fprintf(os.Stderr, "rankswarm: -peers lists %d addresses, want %d (-ranks)\n", len(peers), *numRanks)
		return exitBadArgsOrIO
	}
	if *rank < 0 || *rank >= *numRanks {
		fmt.Fprintf(os.Stderr, "rankswarm: -rank %d out of range [0,%d)\n", *rank, *numRanks)
		return exitBadArgsOrIO
	}

	cfg, err := config.Load(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "rankswarm: loading config: %v\n", err)
		return exitBadArgsOrIO
	}

	table, err := partition.BuildTable(*numRanks)
	if err != nil {
		fmt.Fprintf(os.Stderr, "rankswarm: %v\n", err)
		return exitUnsupportedRankCount
	}

	listenAddr := *listen
	if listenAddr == "" {
		listenAddr = peers[*rank]
	}
	c, err := comm.Dial(*rank, peers, listenAddr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "rankswarm: %v\n", err)
		return exitBadArgsOrIO
	}
	defer c.Close()

	m, err := loadAndBroadcastMap(c, *mapFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "rankswarm: %v\n", err)
		switch err.(type) {
		case *worldmap.FormatError:
			return exitFormatError
		default:
			return exitBadArgsOrIO
		}
	}

	local, err := bootstrapParticles(c, table, m, cfg, *pinFile, *pinCount, *randomCount, *seed)
	if err != nil {
		fmt.Fprintf(os.Stderr, "rankswarm: %v\n", err)
		switch err.(type) {
		case *bootstrap.AgentFormatError:
			return exitFormatError
		default:
			return exitBadArgsOrIO
		}
	}

	var snap *snapshot.Writer
	if c.Rank() == 0 {
		out, closeOut, err := openSink(*outPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "rankswarm: %v\n", err)
			return exitBadArgsOrIO
		}
		defer closeOut()
		snap = snapshot.NewWriter(out, cfg.Physics.Cutoff, m.Denom())
	}

	limit := *stepLimit
	if limit < 0 {
		limit = cfg.Step.DefaultLimit
	}

	perfInterval2 := 0
	if *perfLog {
		perfInterval2 = *perfInterval
	}

	s := stepper.New(c, table, m, cfg, local, snap, limit, perfInterval2)
	if err := s.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "rankswarm: %v\n", err)
		return exitBadArgsOrIO
	}
	return exitOK
}

func loadAndBroadcastMap(c *comm.Comm, path string) (*worldmap.Map, error) {
	var local *worldmap.Map
	if c.Rank() == 0 {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		m, err := worldmap.Load(f)
		if err != nil {
			return nil, err
		}
		local = m
	}
	return bootstrap.BroadcastMap(c, local)
}

func bootstrapParticles(c *comm.Comm, table *partition.Table, m *worldmap.Map, cfg *config.Config, pinFile string, pinCount, randomCount int, seed uint64) ([]particle.Particle, error) {
	if c.Rank() != 0 {
		return bootstrap.Receive(c)
	}

	var pins []bootstrap.AgentPin
	if pinFile != "" {
		f, err := os.Open(pinFile)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		want := pinCount
		if want < 0 {
			want = 0
		}
		parsed, err := bootstrap.LoadAgentPins(f, want)
		if err != nil {
			return nil, err
		}
		pins = parsed
	}
	if randomCount < 0 {
		if pinFile == "" {
			randomCount = 2
		} else {
			randomCount = 0
		}
	}

	particles, err := bootstrap.Build(m, pins, randomCount, cfg.Bootstrap.RetryCap, seed)
	if err != nil {
		return nil, err
	}

	buckets := bootstrap.BucketByRank(particles, table)
	return bootstrap.Distribute(c, buckets)
}

func openSink(path string) (out *bufio.Writer, closeFn func(), err error) {
	if path == "stdout" || path == "" {
		w := bufio.NewWriter(os.Stdout)
		return w, func() { w.Flush() }, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, err
	}
	w := bufio.NewWriter(f)
	return w, func() { w.Flush(); f.Close() }, nil
}
