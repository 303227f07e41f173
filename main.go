package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/pthm-cable/manifold/config"
	"github.com/pthm-cable/manifold/mesh"
	"github.com/pthm-cable/manifold/sim"
	"github.com/pthm-cable/manifold/telemetry"
)

func main() {
	// CLI flags
	configPath := flag.String("config", "", "Path to config.yaml, or a legacy run.txt (empty = use defaults)")
	outputDir := flag.String("output-dir", "", "Output directory for trajectories and CSV logs (empty = use config)")
	meshPath := flag.String("mesh", "", "Mesh file in OFF format (empty = use config)")
	initialPath := flag.String("initial", "", "Initial configuration file (empty = use config)")
	seed := flag.Uint64("seed", 0, "RNG seed (0 = use config)")
	steps := flag.Int("steps", 0, "Steps per cycle (0 = use config)")
	cycles := flag.Int("cycles", 0, "Number of cycles (0 = use config)")
	policy := flag.String("policy", "", "Violation policy: best_effort or fail_fast (empty = use config)")
	workers := flag.Int("workers", -1, "Worker goroutines (0 = GOMAXPROCS, -1 = use config)")
	resumePath := flag.String("resume", "", "Snapshot file to resume from (empty = start fresh)")
	logFormat := flag.String("log-format", "json", "Log format: json or text")
	logLevel := flag.String("log-level", "info", "Log level: debug, info, warn or error")

	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: %s [flags] single|multi\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	// Set up slog (JSON to stdout for structured logging)
	var level slog.Level
	if err := level.UnmarshalText([]byte(*logLevel)); err != nil {
		fmt.Fprintf(os.Stderr, "invalid -log-level %q\n", *logLevel)
		os.Exit(2)
	}
	handlerOpts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler = slog.NewJSONHandler(os.Stdout, handlerOpts)
	if *logFormat == "text" {
		handler = slog.NewTextHandler(os.Stdout, handlerOpts)
	}
	logger := slog.New(handler)
	slog.SetDefault(logger)

	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}
	mode, err := config.ParseMode(flag.Arg(0))
	if err != nil {
		slog.Error("bad mode", "error", err)
		os.Exit(2)
	}

	cfg, err := loadConfig(*configPath, mode)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// CLI overrides
	if *outputDir != "" {
		cfg.Output.Dir = *outputDir
	}
	if *meshPath != "" {
		cfg.Files.Mesh = *meshPath
	}
	if *initialPath != "" {
		cfg.Files.Initial = *initialPath
	}
	if *seed != 0 {
		cfg.Run.Seed = *seed
	}
	if *steps > 0 {
		cfg.Run.Steps = *steps
	}
	if *cycles > 0 {
		cfg.Run.Cycles = *cycles
	}
	if *policy != "" {
		cfg.Run.Policy = config.Policy(*policy)
	}
	if *workers >= 0 {
		cfg.Run.Workers = *workers
	}
	cfg.ApplyMode(mode)

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	if err := run(cfg, mode, *resumePath, logger); err != nil {
		slog.Error("run failed", "error", err)
		os.Exit(1)
	}
}

// loadConfig reads YAML configs, or the legacy line-pair format for .txt
// files. The legacy multi-population file carries a field strength.
func loadConfig(path string, mode config.Mode) (*config.Config, error) {
	if strings.HasSuffix(path, ".txt") {
		return config.LoadRunFile(path, mode == config.Multi)
	}
	return config.Load(path)
}

func run(cfg *config.Config, mode config.Mode, resumePath string, logger *slog.Logger) error {
	m, err := mesh.Load(cfg.Files.Mesh)
	if err != nil {
		return err
	}
	// Fail before the output manager truncates the trajectory and CSV files.
	if err := sim.CheckInitial(cfg.Files.Initial, cfg.Particles.Count, m); err != nil {
		return err
	}

	out, err := telemetry.NewOutputManager(cfg.Output.Dir, cfg.Output.Tag, cfg.Output.Diagnostics)
	if err != nil {
		return err
	}
	defer out.Close()

	if err := out.WriteConfig(cfg); err != nil {
		return err
	}

	s := sim.New(cfg, m, sim.Options{Logger: logger, Output: out})
	defer s.Close()

	if resumePath != "" {
		snap, err := telemetry.LoadSnapshot(resumePath)
		if err != nil {
			return err
		}
		if err := s.Resume(snap); err != nil {
			return fmt.Errorf("resuming from %s: %w", resumePath, err)
		}
	}

	logger.Info("starting simulation",
		"mode", mode,
		"mesh", cfg.Files.Mesh,
		"faces", m.NumFaces(),
		"particles", cfg.Particles.Count,
		"cycles", cfg.Run.Cycles,
		"steps", cfg.Run.Steps,
		"dt", cfg.Run.DT,
		"seed", cfg.Run.Seed,
		"field", cfg.Field.Strength,
		"policy", cfg.Run.Policy,
		"output_dir", out.Dir(),
	)

	start := time.Now()
	if err := s.Run(); err != nil {
		return err
	}
	logger.Info("simulation finished", "elapsed", time.Since(start).Round(time.Millisecond).String())
	return out.Close()
}
