// Package sim drives the simulation: it owns the particle world, runs the
// force, velocity and transport phases each step, and routes anomalies
// to the log and the diagnostics output.
package sim

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/mlange-42/ark/ecs"
	"gonum.org/v1/gonum/spatial/r2"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/pthm-cable/manifold/components"
	"github.com/pthm-cable/manifold/config"
	"github.com/pthm-cable/manifold/mesh"
	"github.com/pthm-cable/manifold/systems"
	"github.com/pthm-cable/manifold/telemetry"
)

// ErrGeometry is returned under the fail_fast policy when transport or
// the mesh check reports a geometric violation.
var ErrGeometry = errors.New("geometric violation")

// MeshTolerance is the largest transition-map round-trip error accepted
// by CheckMesh.
const MeshTolerance = 1e-9

// Options holds the collaborators of a Simulation.
type Options struct {
	Logger *slog.Logger             // nil uses slog.Default()
	Output *telemetry.OutputManager // nil disables file output
}

// Simulation holds the state of one run.
type Simulation struct {
	cfg *config.Config
	geo *mesh.Mesh
	log *slog.Logger
	out *telemetry.OutputManager

	// ECS
	world    *ecs.World
	mapper   *ecs.Map4[components.Tag, components.Surface, components.Position, components.Kinematics]
	filter   *ecs.Filter4[components.Tag, components.Surface, components.Position, components.Kinematics]
	entities []ecs.Entity // by particle index

	// Step buffers, indexed by particle
	particles []systems.Particle
	walks     []systems.Walk
	disp      []float64
	positions []r3.Vec
	frame     []telemetry.TrajectoryRecord

	forces     *systems.ForceEngine
	thermostat *systems.Thermostat
	pool       *workerPool
	stats      *telemetry.Collector
	perf       *telemetry.PerfCollector

	cycle   int
	step    int
	resumed bool // cycle state came from a snapshot
	traj    *telemetry.TrajectoryWriter

	counts    telemetry.DiagnosticCounts // current cycle
	totals    telemetry.DiagnosticCounts // whole run
	crossings int                        // current cycle
	pending   []telemetry.Diagnostic
}

// New creates a simulation on mesh m. cfg must be validated.
func New(cfg *config.Config, m *mesh.Mesh, opts Options) *Simulation {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	world := ecs.NewWorld()
	pool := newWorkerPool(cfg.Run.Workers)

	s := &Simulation{
		cfg:    cfg,
		geo:    m,
		log:    logger,
		out:    opts.Output,
		world:  world,
		mapper: ecs.NewMap4[components.Tag, components.Surface, components.Position, components.Kinematics](world),
		filter: ecs.NewFilter4[components.Tag, components.Surface, components.Position, components.Kinematics](world),
		forces: systems.NewForceEngine(systems.ForceParams{
			Bpp:             cfg.Derived.Bpp,
			Kappa:           cfg.Physics.Kappa,
			Cutoff:          cfg.Physics.Cutoff,
			OverlapDistance: cfg.Physics.OverlapDistance,
			OverlapClamp:    cfg.Physics.OverlapClamp,
			FieldStrength:   cfg.Field.Strength,
			FieldAxis:       cfg.Derived.FieldAxis,
		}, pool),
		thermostat: systems.NewThermostat(cfg.Derived.Diffusivity, cfg.Run.DT, cfg.Run.RandomMove, cfg.Run.Seed),
		pool:       pool,
		stats:      telemetry.NewCollector(cfg.Output.StatsWindow),
		perf:       telemetry.NewPerfCollector(cfg.Output.PerfWindow),
		counts:     telemetry.DiagnosticCounts{},
		totals:     telemetry.DiagnosticCounts{},
	}
	return s
}

// Close stops the worker pool.
func (s *Simulation) Close() {
	s.pool.stopWorkers()
}

// CheckMesh verifies every transition map of the mesh. Mismatches are
// recorded as diagnostics; under fail_fast they are an error.
func (s *Simulation) CheckMesh() error {
	rep := s.geo.Verify(MeshTolerance)
	s.log.Info("mesh check",
		"faces", s.geo.NumFaces(),
		"edges", rep.Edges,
		"boundary_edges", rep.BoundaryEdges,
		"max_vector_error", rep.MaxVectorError,
		"max_point_error", rep.MaxPointError,
		"max_embed_error", rep.MaxEmbedError,
	)

	for _, mm := range rep.Mismatches {
		s.report(telemetry.Diagnostic{
			Cycle:    s.cycle,
			Step:     -1,
			Particle: -1,
			Other:    mm.Edge,
			Kind:     telemetry.KindMeshMismatch,
			Face:     mm.Face,
			Value:    max(mm.VectorError, mm.PointError, mm.EmbedError),
		})
	}
	if err := s.flushDiagnostics(); err != nil {
		return err
	}

	if !rep.OK() && s.cfg.Run.Policy == config.FailFast {
		return fmt.Errorf("%w: %d mesh edges fail the transition-map round trip", ErrGeometry, len(rep.Mismatches))
	}
	return nil
}

// LoadInitial reads the initial configuration, places the particles and
// resets the clock. Pairs closer than the cutoff are reported but not
// rejected.
func (s *Simulation) LoadInitial(r io.Reader) error {
	n := s.cfg.Particles.Count
	surfaces, err := ReadInitial(r, n)
	if err != nil {
		return err
	}
	if err := checkFaces(surfaces, s.geo.NumFaces()); err != nil {
		return err
	}

	if s.entities == nil {
		s.spawn(n)
	}

	for i, e := range s.entities {
		_, surf, pos, kin := s.mapper.Get(e)
		*surf = surfaces[i]
		pos.R = s.geo.Embed(surf.Face, surf.Local)
		*kin = components.Kinematics{}
	}
	s.step = 0

	s.snapshot()
	s.stats.StartCycle(s.cycle, 0, s.embedded())
	s.checkSeparation()
	return s.flushDiagnostics()
}

func (s *Simulation) spawn(n int) {
	s.entities = make([]ecs.Entity, n)
	for i := range s.entities {
		tag := components.Tag{Index: i}
		var surf components.Surface
		var pos components.Position
		var kin components.Kinematics
		s.entities[i] = s.mapper.NewEntity(&tag, &surf, &pos, &kin)
	}

	s.particles = make([]systems.Particle, n)
	s.walks = make([]systems.Walk, n)
	s.disp = make([]float64, n)
	s.positions = make([]r3.Vec, n)
	s.frame = make([]telemetry.TrajectoryRecord, n)
}

func (s *Simulation) checkSeparation() {
	cutoff := s.cfg.Physics.Cutoff
	for i := 0; i < len(s.particles)-1; i++ {
		for j := i + 1; j < len(s.particles); j++ {
			d := r3.Norm(r3.Sub(s.particles[i].Pos, s.particles[j].Pos))
			if d < cutoff {
				s.report(telemetry.Diagnostic{
					Cycle:    s.cycle,
					Step:     s.step,
					Particle: i,
					Other:    j,
					Kind:     telemetry.KindInitialTooClose,
					Face:     -1,
					Value:    d,
				})
			}
		}
	}
}

// Step advances the simulation by one timestep. Under fail_fast it
// returns an error wrapping ErrGeometry on the first geometric violation;
// the step is still completed for every particle.
func (s *Simulation) Step() error {
	if s.entities == nil {
		return errors.New("step before initial configuration was loaded")
	}
	s.perf.StartStep()
	s.snapshot()

	if s.step == 0 || (s.step+1)%s.cfg.Output.Interval == 0 {
		s.perf.StartPhase(telemetry.PhaseOutput)
		if err := s.writeFrame(); err != nil {
			return err
		}
	}

	s.perf.StartPhase(telemetry.PhaseForces)
	for _, o := range s.forces.Compute(s.particles) {
		s.report(telemetry.Diagnostic{
			Cycle:    s.cycle,
			Step:     s.step,
			Particle: o.I,
			Other:    o.J,
			Kind:     telemetry.KindOverlap,
			Face:     -1,
			Value:    o.Dist,
		})
	}

	s.perf.StartPhase(telemetry.PhaseVelocity)
	s.thermostat.Update(s.particles)

	s.perf.StartPhase(telemetry.PhaseTransport)
	dt := s.cfg.Run.DT
	s.pool.Run(len(s.particles), func(start, end int) {
		for i := start; i < end; i++ {
			before := s.particles[i].Pos
			// a stopping violation is also the walk's last issue
			s.walks[i], _ = systems.Move(s.geo, &s.particles[i], dt)
			s.disp[i] = r3.Norm(r3.Sub(s.particles[i].Pos, before))
		}
	})
	stepErr := s.collectWalks()

	s.apply()
	s.step++
	s.perf.EndStep()

	if err := s.flushDiagnostics(); err != nil {
		return err
	}
	if err := s.recordStats(); err != nil {
		return err
	}
	if err := s.recordPerf(); err != nil {
		return err
	}
	return stepErr
}

// collectWalks turns transport anomalies into diagnostics in particle
// order and returns the first geometric one under fail_fast.
func (s *Simulation) collectWalks() error {
	var first error
	crossings := 0
	for i := range s.walks {
		w := &s.walks[i]
		crossings += w.Crossings
		for j := range w.Issues {
			v := &w.Issues[j]
			s.report(telemetry.Diagnostic{
				Cycle:    s.cycle,
				Step:     s.step,
				Particle: i,
				Other:    -1,
				Kind:     string(v.Kind),
				Face:     v.Face,
				Local0:   v.Local.X,
				Local1:   v.Local.Y,
				Value:    v.Budget,
			})
			if first == nil && v.Kind.Geometric() && s.cfg.Run.Policy == config.FailFast {
				first = fmt.Errorf("%w: cycle %d step %d particle %d: %w", ErrGeometry, s.cycle, s.step, i, v)
			}
		}
	}
	s.crossings += crossings
	s.stats.RecordStep(s.disp, crossings)
	return first
}

// snapshot copies particle state out of the ECS.
func (s *Simulation) snapshot() {
	query := s.filter.Query()
	for query.Next() {
		tag, surf, pos, kin := query.Get()
		p := &s.particles[tag.Index]
		p.Surface = *surf
		p.Pos = pos.R
		p.Vel = kin.Vel
		p.Force = kin.Force
	}
}

// apply writes step results back to the ECS.
func (s *Simulation) apply() {
	for i, e := range s.entities {
		p := &s.particles[i]
		_, surf, pos, kin := s.mapper.Get(e)
		*surf = p.Surface
		pos.R = p.Pos
		kin.Vel = p.Vel
		kin.Force = p.Force
	}
}

func (s *Simulation) writeFrame() error {
	t := float64(s.step) * s.cfg.Run.DT
	for i := range s.particles {
		p := &s.particles[i]
		s.frame[i] = telemetry.TrajectoryRecord{
			Index:  i,
			Local0: p.Surface.Local.X,
			Local1: p.Surface.Local.Y,
			Face:   p.Surface.Face,
			X:      p.Pos.X,
			Y:      p.Pos.Y,
			Z:      p.Pos.Z,
			Time:   t,
		}
	}
	return s.traj.WriteFrame(s.frame)
}

// embedded returns the current embedded positions in particle order.
func (s *Simulation) embedded() []r3.Vec {
	for i := range s.particles {
		s.positions[i] = s.particles[i].Pos
	}
	return s.positions
}

func (s *Simulation) report(d telemetry.Diagnostic) {
	s.stats.RecordDiagnostic()
	s.counts.Add(d)
	s.totals.Add(d)
	s.log.Warn("anomaly", "diagnostic", d)
	s.pending = append(s.pending, d)
}

func (s *Simulation) flushDiagnostics() error {
	if len(s.pending) == 0 {
		return nil
	}
	err := s.out.WriteDiagnostics(s.pending)
	s.pending = s.pending[:0]
	return err
}

func (s *Simulation) recordStats() error {
	if !s.stats.ShouldFlush(s.step) {
		return nil
	}
	stats := s.stats.Flush(s.step, s.Time(), s.embedded())
	s.log.Info("stats", "stats", stats)
	return s.out.WriteStats(stats)
}

func (s *Simulation) recordPerf() error {
	window := s.cfg.Output.PerfWindow
	if window <= 0 || s.step%window != 0 {
		return nil
	}
	stats := s.perf.Stats()
	s.log.Debug("perf", "cycle", s.cycle, "step", s.step, "stats", stats)
	return s.out.WritePerf(stats, s.cycle, s.step)
}

// Snapshot captures the state needed to continue the current cycle,
// including the noise generator.
func (s *Simulation) Snapshot(reason string) (*telemetry.Snapshot, error) {
	rng, err := s.thermostat.State()
	if err != nil {
		return nil, fmt.Errorf("noise state: %w", err)
	}
	snap := &telemetry.Snapshot{
		Version:   telemetry.SnapshotVersion,
		Seed:      s.cfg.Run.Seed,
		Reason:    reason,
		Cycle:     s.cycle,
		Step:      s.step,
		Time:      s.Time(),
		RNGState:  rng,
		Particles: make([]telemetry.ParticleState, len(s.entities)),
	}
	origin := s.stats.Origin()
	for i, p := range s.Particles() {
		o := origin[i]
		snap.Particles[i] = telemetry.ParticleState{
			Index:  i,
			Face:   p.Surface.Face,
			Local0: p.Surface.Local.X,
			Local1: p.Surface.Local.Y,
			Pos:    [3]float64{p.Pos.X, p.Pos.Y, p.Pos.Z},
			Origin: [3]float64{o.X, o.Y, o.Z},
		}
	}
	return snap, nil
}

// Resume restores a snapshot. The next RunCycle for the snapshot's cycle
// continues from its step and appends to the cycle's trajectory.
func (s *Simulation) Resume(snap *telemetry.Snapshot) error {
	n := s.cfg.Particles.Count
	if len(snap.Particles) != n {
		return fmt.Errorf("snapshot has %d particles, want %d", len(snap.Particles), n)
	}
	if snap.Seed != s.cfg.Run.Seed {
		s.log.Warn("snapshot seed differs from config", "snapshot", snap.Seed, "config", s.cfg.Run.Seed)
	}
	for i, ps := range snap.Particles {
		if ps.Index != i {
			return fmt.Errorf("snapshot particle %d has index %d", i, ps.Index)
		}
		if ps.Face < 0 || ps.Face >= s.geo.NumFaces() {
			return fmt.Errorf("snapshot particle %d on face %d, mesh has %d faces", i, ps.Face, s.geo.NumFaces())
		}
	}
	if err := s.thermostat.SetState(snap.RNGState); err != nil {
		return fmt.Errorf("noise state: %w", err)
	}

	if s.entities == nil {
		s.spawn(n)
	}
	for i, e := range s.entities {
		ps := &snap.Particles[i]
		_, surf, pos, kin := s.mapper.Get(e)
		surf.Face = ps.Face
		surf.Local = r2.Vec{X: ps.Local0, Y: ps.Local1}
		pos.R = s.geo.Embed(surf.Face, surf.Local)
		*kin = components.Kinematics{}
	}
	s.snapshot()

	s.cycle = snap.Cycle
	s.step = snap.Step
	s.resumed = true

	origin := make([]r3.Vec, n)
	for i, ps := range snap.Particles {
		origin[i] = r3.Vec{X: ps.Origin[0], Y: ps.Origin[1], Z: ps.Origin[2]}
	}
	s.stats.StartCycle(s.cycle, s.step, origin)
	s.log.Info("resumed", "cycle", s.cycle, "step", s.step, "time", s.Time())
	return nil
}

// RunCycle loads the initial configuration, opens the cycle's trajectory
// stream and runs the configured number of steps. A cycle restored by
// Resume keeps its particles and runs only the remaining steps.
func (s *Simulation) RunCycle(cycle int) error {
	s.crossings = 0
	s.counts = telemetry.DiagnosticCounts{}

	var err error
	if s.resumed && s.cycle == cycle {
		s.resumed = false
		s.traj, err = s.out.ResumeCycle(cycle)
	} else {
		s.resumed = false
		s.cycle = cycle
		if err := s.loadInitialFile(); err != nil {
			return err
		}
		s.traj, err = s.out.OpenCycle(cycle)
	}
	if err != nil {
		return err
	}
	s.log.Info("cycle start",
		"cycle", cycle,
		"step", s.step,
		"particles", len(s.particles),
		"trajectory", s.out.TrajectoryPath(cycle),
	)

	for s.step < s.cfg.Run.Steps {
		if err := s.Step(); err != nil {
			return fmt.Errorf("cycle %d: %w", cycle, err)
		}
	}

	s.log.Info("cycle done",
		"cycle", cycle,
		"steps", s.step,
		"time", float64(s.step)*s.cfg.Run.DT,
		"crossings", s.crossings,
		"diagnostics", s.counts,
	)
	return nil
}

func (s *Simulation) loadInitialFile() error {
	f, err := os.Open(s.cfg.Files.Initial)
	if err != nil {
		return fmt.Errorf("opening initial configuration: %w", err)
	}
	defer f.Close()
	return s.LoadInitial(f)
}

// Run checks the mesh if configured and executes every cycle, starting
// from a resumed one if Resume was called. With file output enabled a
// snapshot is saved after every cycle and when a cycle aborts.
func (s *Simulation) Run() error {
	if s.cfg.Run.VerifyMesh {
		if err := s.CheckMesh(); err != nil {
			return err
		}
	}

	first := 0
	if s.resumed {
		first = s.cycle
	}
	for c := first; c < s.cfg.Run.Cycles; c++ {
		if err := s.RunCycle(c); err != nil {
			s.saveSnapshot(telemetry.ReasonAborted)
			return err
		}
		s.saveSnapshot(telemetry.ReasonCycleEnd)
	}
	s.log.Info("run done", "cycles", s.cfg.Run.Cycles, "diagnostics", s.totals, "total", s.totals.Total())
	return nil
}

// saveSnapshot writes a snapshot to the output directory. Failures are
// logged; they never mask the run's own result.
func (s *Simulation) saveSnapshot(reason string) {
	if s.out == nil || s.entities == nil {
		return
	}
	snap, err := s.Snapshot(reason)
	if err == nil {
		var path string
		path, err = s.out.WriteSnapshot(snap)
		if err == nil {
			s.log.Info("snapshot saved", "path", path, "cycle", snap.Cycle, "step", snap.Step)
			return
		}
	}
	s.log.Error("snapshot failed", "reason", reason, "error", err)
}

// Particles returns a copy of the current particle state.
func (s *Simulation) Particles() []systems.Particle {
	if s.entities != nil {
		s.snapshot()
	}
	return append([]systems.Particle(nil), s.particles...)
}

// StepCount returns the steps taken in the current cycle.
func (s *Simulation) StepCount() int { return s.step }

// Time returns the elapsed simulated time in the current cycle.
func (s *Simulation) Time() float64 { return float64(s.step) * s.cfg.Run.DT }

// Counts returns the diagnostics recorded over the whole run by kind.
func (s *Simulation) Counts() telemetry.DiagnosticCounts { return s.totals }
