package sim

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/spatial/r2"

	"github.com/pthm-cable/manifold/components"
	"github.com/pthm-cable/manifold/mesh"
)

// ReadInitial reads n particle positions, one per line:
//
//	<index> <local0> <local1> <face>
//
// Fields are separated by any whitespace and extra columns are ignored,
// so the first frame of a trajectory file is a valid initial
// configuration. Particles are numbered by line order; blank lines are
// skipped.
func ReadInitial(r io.Reader, n int) ([]components.Surface, error) {
	out := make([]components.Surface, 0, n)
	sc := bufio.NewScanner(r)
	line := 0
	for len(out) < n && sc.Scan() {
		line++
		fields := strings.Fields(sc.Text())
		if len(fields) == 0 {
			continue
		}
		if len(fields) < 4 {
			return nil, fmt.Errorf("initial configuration line %d: want 4 fields, got %d", line, len(fields))
		}

		q0, err := strconv.ParseFloat(fields[1], 64)
		if err != nil {
			return nil, fmt.Errorf("initial configuration line %d: %w", line, err)
		}
		q1, err := strconv.ParseFloat(fields[2], 64)
		if err != nil {
			return nil, fmt.Errorf("initial configuration line %d: %w", line, err)
		}
		face, err := strconv.Atoi(fields[3])
		if err != nil {
			return nil, fmt.Errorf("initial configuration line %d: %w", line, err)
		}

		out = append(out, components.Surface{Face: face, Local: r2.Vec{X: q0, Y: q1}})
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("reading initial configuration: %w", err)
	}
	if len(out) < n {
		return nil, fmt.Errorf("initial configuration has %d particles, want %d", len(out), n)
	}
	return out, nil
}

// CheckInitial reads the initial configuration at path and confirms it
// holds n particles on faces of m, so a run can fail before any output
// file is truncated.
func CheckInitial(path string, n int, m *mesh.Mesh) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening initial configuration: %w", err)
	}
	defer f.Close()

	surfaces, err := ReadInitial(f, n)
	if err != nil {
		return err
	}
	return checkFaces(surfaces, m.NumFaces())
}

func checkFaces(surfaces []components.Surface, faces int) error {
	for i, surf := range surfaces {
		if surf.Face < 0 || surf.Face >= faces {
			return fmt.Errorf("initial configuration: particle %d on face %d, mesh has %d faces",
				i, surf.Face, faces)
		}
	}
	return nil
}
