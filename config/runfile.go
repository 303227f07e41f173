package config

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// runFileKeys lists the values of a legacy run file in order. Each value
// line is preceded by a label line. Empty keys are parameters of other
// physics models that are parsed for position only.
var runFileKeys = []string{
	"N", "radius", "nCycles", "numStep", "dt", "diffu_t", "Bpp",
	"", "", // osmotic pressure, depletion length
	"cutoff", "kappa",
	"", "", "", "", "", "", // dipole, wall and surface-tension terms
	"seed",
	"", // PDE_dt PDE_nstep
	"trajOutputInterval", "iniConfig", "filetag", "meshFile",
	"fieldStrength",
}

// LoadRunFile reads a legacy run.txt style parameter file.
func LoadRunFile(path string, withField bool) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening run file: %w", err)
	}
	defer f.Close()
	return ReadRunFile(f, withField)
}

// ReadRunFile parses the label/value line pairs of a legacy parameter
// file over the embedded defaults. The trailing field strength is only
// present, and only read, when withField is set. The trajectory tag is
// used as a path prefix in the current directory as before.
func ReadRunFile(r io.Reader, withField bool) (*Config, error) {
	cfg, err := defaults()
	if err != nil {
		return nil, err
	}

	keys := runFileKeys
	if !withField {
		keys = keys[:len(keys)-1]
	}

	sc := bufio.NewScanner(r)
	for i, key := range keys {
		if !sc.Scan() { // label
			return nil, fmt.Errorf("run file: missing label for value %d (%s)", i+1, key)
		}
		if !sc.Scan() {
			return nil, fmt.Errorf("run file: missing value %d (%s)", i+1, key)
		}
		if key == "" {
			continue
		}
		if err := cfg.setRunValue(key, strings.TrimSpace(sc.Text())); err != nil {
			return nil, fmt.Errorf("run file: %s: %w", key, err)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("reading run file: %w", err)
	}

	cfg.Output.Dir = "."
	cfg.computeDerived()
	return cfg, nil
}

func (c *Config) setRunValue(key, val string) error {
	var err error
	num := func() float64 {
		var v float64
		v, err = strconv.ParseFloat(firstField(val), 64)
		return v
	}
	integer := func() int {
		var v int
		v, err = strconv.Atoi(firstField(val))
		return v
	}

	switch key {
	case "N":
		c.Particles.Count = integer()
	case "radius":
		c.Particles.Radius = num()
	case "nCycles":
		c.Run.Cycles = integer()
	case "numStep":
		c.Run.Steps = integer()
	case "dt":
		c.Run.DT = num()
	case "diffu_t":
		c.Physics.Diffusivity = num()
	case "Bpp":
		c.Physics.Bpp = num()
	case "cutoff":
		c.Physics.Cutoff = num()
	case "kappa":
		c.Physics.Kappa = num()
	case "seed":
		var v uint64
		v, err = strconv.ParseUint(firstField(val), 10, 64)
		c.Run.Seed = v
	case "trajOutputInterval":
		c.Output.Interval = integer()
	case "iniConfig":
		c.Files.Initial = val
	case "filetag":
		c.Output.Tag = val
	case "meshFile":
		c.Files.Mesh = val
	case "fieldStrength":
		c.Field.Strength = num()
	}
	return err
}

func firstField(s string) string {
	if f := strings.Fields(s); len(f) > 0 {
		return f[0]
	}
	return s
}
