// Initial configuration generator - scatters particles over a mesh with a
// minimum separation and writes them in the initial configuration format.
//
// Usage: go run ./cmd/initgen -mesh sphere.off -n 100 -out ini.txt
package main

import (
	"flag"
	"log"
	"os"

	"github.com/pthm-cable/manifold/mesh"
	"github.com/pthm-cable/manifold/sim"
	"github.com/pthm-cable/manifold/telemetry"
)

func main() {
	meshPath := flag.String("mesh", "", "Mesh file in OFF format")
	n := flag.Int("n", 2, "Number of particles")
	minSep := flag.Float64("min-sep", 2.5, "Minimum center distance in radii")
	seed := flag.Uint64("seed", 1, "RNG seed")
	tries := flag.Int("tries", 10000, "Placement attempts per particle")
	outPath := flag.String("out", "", "Output file (empty = stdout)")
	flag.Parse()

	if *meshPath == "" {
		log.Fatal("--mesh is required")
	}

	m, err := mesh.Load(*meshPath)
	if err != nil {
		log.Fatalf("failed to load mesh: %v", err)
	}

	surfaces, err := sim.Place(m, *n, *minSep, *seed, *tries)
	if err != nil {
		log.Fatalf("placement failed: %v", err)
	}

	out := os.Stdout
	if *outPath != "" {
		out, err = os.Create(*outPath)
		if err != nil {
			log.Fatalf("failed to create output: %v", err)
		}
	}

	frame := make([]telemetry.TrajectoryRecord, len(surfaces))
	for i, s := range surfaces {
		p := m.Embed(s.Face, s.Local)
		frame[i] = telemetry.TrajectoryRecord{
			Index:  i,
			Local0: s.Local.X,
			Local1: s.Local.Y,
			Face:   s.Face,
			X:      p.X,
			Y:      p.Y,
			Z:      p.Z,
		}
	}

	tw := telemetry.NewTrajectoryWriter(out)
	if err := tw.WriteFrame(frame); err != nil {
		log.Fatalf("writing configuration: %v", err)
	}
	if err := tw.Close(); err != nil {
		log.Fatalf("closing output: %v", err)
	}
	log.Printf("placed %d particles on %d faces", len(surfaces), m.NumFaces())
}
