// Package config provides configuration loading and validation for the simulation.
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"math"
	"os"

	"gonum.org/v1/gonum/spatial/r3"
	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var defaultsYAML []byte

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("invalid configuration")

// Config holds all simulation configuration parameters.
type Config struct {
	Particles ParticlesConfig `yaml:"particles"`
	Run       RunConfig       `yaml:"run"`
	Physics   PhysicsConfig   `yaml:"physics"`
	Field     FieldConfig     `yaml:"field"`
	Output    OutputConfig    `yaml:"output"`
	Files     FilesConfig     `yaml:"files"`

	// Derived values computed after loading
	Derived DerivedConfig `yaml:"-"`
}

// ParticlesConfig describes the colloids.
type ParticlesConfig struct {
	Count  int     `yaml:"count"`
	Radius float64 `yaml:"radius"` // meters
}

// Policy selects how geometric violations during transport are handled.
type Policy string

const (
	BestEffort Policy = "best_effort" // record and continue
	FailFast   Policy = "fail_fast"   // abort the run on the first violation
)

// RunConfig holds integration and scheduling parameters.
type RunConfig struct {
	Cycles     int     `yaml:"cycles"`
	Steps      int     `yaml:"steps"` // per cycle
	DT         float64 `yaml:"dt"`    // seconds
	Seed       uint64  `yaml:"seed"`
	RandomMove bool    `yaml:"random_move"` // thermal noise on/off
	Policy     Policy  `yaml:"policy"`
	Workers    int     `yaml:"workers"` // 0 = GOMAXPROCS, 1 = serial
	VerifyMesh bool    `yaml:"verify_mesh"`
}

// PhysicsConfig holds the interaction parameters. Distances are in units
// of the particle radius.
type PhysicsConfig struct {
	Diffusivity     float64 `yaml:"diffusivity"` // m^2/s
	Bpp             float64 `yaml:"bpp"`         // kT per nm per radius
	Kappa           float64 `yaml:"kappa"`       // inverse screening length times radius
	Cutoff          float64 `yaml:"cutoff"`
	OverlapDistance float64 `yaml:"overlap_distance"`
	OverlapClamp    float64 `yaml:"overlap_clamp"`
}

// FieldConfig holds the uniform external body force.
type FieldConfig struct {
	Strength float64    `yaml:"strength"`
	Axis     [3]float64 `yaml:"axis"`
}

// OutputConfig holds trajectory and diagnostics output settings.
type OutputConfig struct {
	Dir         string `yaml:"dir"`
	Tag         string `yaml:"tag"`      // trajectory file prefix
	Interval    int    `yaml:"interval"` // steps between frames
	Diagnostics bool   `yaml:"diagnostics"`
	StatsWindow int    `yaml:"stats_window"`
	PerfWindow  int    `yaml:"perf_window"`
}

// FilesConfig holds input paths.
type FilesConfig struct {
	Mesh    string `yaml:"mesh"`
	Initial string `yaml:"initial"`
}

// DerivedConfig holds computed values derived from the loaded config.
type DerivedConfig struct {
	Diffusivity float64 // radius^2/s, doubles as mobility in kT units
	Bpp         float64 // kT
	FieldAxis   r3.Vec  // unit vector
}

// Load reads configuration from a YAML file, using embedded defaults for
// missing values. If path is empty, only defaults are used.
func Load(path string) (*Config, error) {
	cfg, err := defaults()
	if err != nil {
		return nil, err
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	cfg.computeDerived()
	return cfg, nil
}

func defaults() (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal(defaultsYAML, cfg); err != nil {
		return nil, fmt.Errorf("parsing embedded defaults: %w", err)
	}
	return cfg, nil
}

// computeDerived converts the physical parameters into the reduced units
// the integrator works in.
func (c *Config) computeDerived() {
	r := c.Particles.Radius
	if r > 0 {
		c.Derived.Diffusivity = c.Physics.Diffusivity / (r * r)
	}
	c.Derived.Bpp = c.Physics.Bpp * 1e9 * r

	axis := r3.Vec{X: c.Field.Axis[0], Y: c.Field.Axis[1], Z: c.Field.Axis[2]}
	if n := r3.Norm(axis); n > 0 {
		c.Derived.FieldAxis = r3.Scale(1/n, axis)
	} else {
		c.Derived.FieldAxis = r3.Vec{}
	}
}

// Validate checks the configuration and refreshes derived values.
func (c *Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalid}, args...)...))
		}
	}

	check(c.Particles.Count > 0, "particles.count must be positive, got %d", c.Particles.Count)
	check(c.Particles.Radius > 0, "particles.radius must be positive, got %g", c.Particles.Radius)
	check(c.Run.Cycles > 0, "run.cycles must be positive, got %d", c.Run.Cycles)
	check(c.Run.Steps > 0, "run.steps must be positive, got %d", c.Run.Steps)
	check(c.Run.DT > 0, "run.dt must be positive, got %g", c.Run.DT)
	check(c.Run.Workers >= 0, "run.workers must not be negative, got %d", c.Run.Workers)
	check(c.Run.Policy == BestEffort || c.Run.Policy == FailFast,
		"run.policy must be %q or %q, got %q", BestEffort, FailFast, c.Run.Policy)
	check(c.Physics.Diffusivity >= 0, "physics.diffusivity must not be negative, got %g", c.Physics.Diffusivity)
	check(c.Physics.Cutoff > 0, "physics.cutoff must be positive, got %g", c.Physics.Cutoff)
	check(c.Physics.OverlapClamp > 0, "physics.overlap_clamp must be positive, got %g", c.Physics.OverlapClamp)
	check(c.Output.Interval > 0, "output.interval must be positive, got %d", c.Output.Interval)
	check(c.Output.StatsWindow >= 0, "output.stats_window must not be negative, got %d", c.Output.StatsWindow)
	check(c.Output.PerfWindow >= 0, "output.perf_window must not be negative, got %d", c.Output.PerfWindow)
	check(c.Files.Mesh != "", "files.mesh is required")
	check(c.Files.Initial != "", "files.initial is required")

	c.computeDerived()
	check(c.Field.Strength == 0 || c.Derived.FieldAxis != (r3.Vec{}), "field.axis must be non-zero")
	for _, v := range []float64{c.Derived.Diffusivity, c.Derived.Bpp, c.Physics.Kappa, c.Field.Strength} {
		check(!math.IsNaN(v) && !math.IsInf(v, 0), "non-finite physical parameter %g", v)
	}

	return errors.Join(errs...)
}

// WriteYAML writes the config to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}
