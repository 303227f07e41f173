package mesh

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/spatial/r3"
)

// ErrFormat reports a malformed mesh file.
var ErrFormat = errors.New("mesh: malformed OFF data")

// Load reads an OFF mesh from path.
func Load(path string) (*Mesh, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening mesh file: %w", err)
	}
	defer f.Close()

	m, err := ReadOFF(f)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return m, nil
}

// ReadOFF parses a triangulated mesh in OFF format. Comments start with
// '#'. Faces must be triangles. Values after the coordinates of a vertex
// line or the indices of a face line (normals, colours) are ignored.
func ReadOFF(r io.Reader) (*Mesh, error) {
	lines, err := records(r)
	if err != nil {
		return nil, err
	}
	if len(lines) == 0 {
		return nil, fmt.Errorf("empty input: %w", ErrFormat)
	}
	if strings.EqualFold(lines[0][0], "OFF") {
		lines[0] = lines[0][1:]
		if len(lines[0]) == 0 {
			lines = lines[1:]
		}
	}

	next := func(what string, min int) ([]string, error) {
		if len(lines) == 0 {
			return nil, fmt.Errorf("unexpected end of input reading %s: %w", what, ErrFormat)
		}
		rec := lines[0]
		lines = lines[1:]
		if len(rec) < min {
			return nil, fmt.Errorf("%s %q: want %d values: %w", what, strings.Join(rec, " "), min, ErrFormat)
		}
		return rec, nil
	}
	atoi := func(what, s string) (int, error) {
		v, err := strconv.Atoi(s)
		if err != nil {
			return 0, fmt.Errorf("%s %q: %w", what, s, ErrFormat)
		}
		return v, nil
	}

	counts, err := next("counts", 3)
	if err != nil {
		return nil, err
	}
	nv, err := atoi("vertex count", counts[0])
	if err != nil {
		return nil, err
	}
	nf, err := atoi("face count", counts[1])
	if err != nil {
		return nil, err
	}
	if _, err := atoi("edge count", counts[2]); err != nil {
		return nil, err
	}
	if nv <= 0 || nf <= 0 {
		return nil, fmt.Errorf("need vertices and faces, got %d and %d: %w", nv, nf, ErrFormat)
	}

	vertices := make([]r3.Vec, nv)
	for i := range vertices {
		rec, err := next("vertex", 3)
		if err != nil {
			return nil, err
		}
		var c [3]float64
		for k := range c {
			if c[k], err = strconv.ParseFloat(rec[k], 64); err != nil {
				return nil, fmt.Errorf("vertex %d coordinate %q: %w", i, rec[k], ErrFormat)
			}
		}
		vertices[i] = r3.Vec{X: c[0], Y: c[1], Z: c[2]}
	}

	triangles := make([][3]int, nf)
	for i := range triangles {
		rec, err := next("face", 1)
		if err != nil {
			return nil, err
		}
		n, err := atoi("face size", rec[0])
		if err != nil {
			return nil, err
		}
		if n != 3 {
			return nil, fmt.Errorf("face %d has %d vertices, only triangles are supported: %w", i, n, ErrFormat)
		}
		if len(rec) < 4 {
			return nil, fmt.Errorf("face %d: want 3 indices, got %d: %w", i, len(rec)-1, ErrFormat)
		}
		for k := 0; k < 3; k++ {
			if triangles[i][k], err = atoi("face index", rec[k+1]); err != nil {
				return nil, err
			}
		}
	}

	return New(vertices, triangles)
}

// records splits OFF input into the fields of each non-empty line,
// comments removed.
func records(r io.Reader) ([][]string, error) {
	var out [][]string
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := sc.Text()
		if i := strings.IndexByte(line, '#'); i >= 0 {
			line = line[:i]
		}
		if fields := strings.Fields(line); len(fields) > 0 {
			out = append(out, fields)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("scanning OFF data: %w", err)
	}
	return out, nil
}
