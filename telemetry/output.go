package telemetry

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gocarina/gocsv"

	"github.com/pthm-cable/manifold/config"
)

// OutputManager handles run output: one trajectory stream per cycle plus
// CSV logs of motion statistics, diagnostics and performance.
type OutputManager struct {
	dir            string
	tag            string
	statsFile      *os.File
	diagnosticFile *os.File
	perfFile       *os.File
	trajectory     *TrajectoryWriter

	// Track if headers have been written
	statsHeaderWritten      bool
	diagnosticHeaderWritten bool
	perfHeaderWritten       bool
}

// NewOutputManager creates a new output manager and initializes the output directory.
// Returns nil if dir is empty (output disabled). diagnostics.csv is only
// created when diagnostics is set.
func NewOutputManager(dir, tag string, diagnostics bool) (*OutputManager, error) {
	if dir == "" {
		return nil, nil
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating output directory: %w", err)
	}

	om := &OutputManager{dir: dir, tag: tag}

	f, err := os.Create(filepath.Join(dir, "stats.csv"))
	if err != nil {
		return nil, fmt.Errorf("creating stats.csv: %w", err)
	}
	om.statsFile = f

	f, err = os.Create(filepath.Join(dir, "perf.csv"))
	if err != nil {
		om.statsFile.Close()
		return nil, fmt.Errorf("creating perf.csv: %w", err)
	}
	om.perfFile = f

	if diagnostics {
		f, err = os.Create(filepath.Join(dir, "diagnostics.csv"))
		if err != nil {
			om.statsFile.Close()
			om.perfFile.Close()
			return nil, fmt.Errorf("creating diagnostics.csv: %w", err)
		}
		om.diagnosticFile = f
	}

	return om, nil
}

// TrajectoryPath returns the trajectory file of a cycle:
// <dir>/<tag>xyz_<cycle>.txt.
func (om *OutputManager) TrajectoryPath(cycle int) string {
	if om == nil {
		return ""
	}
	return filepath.Join(om.dir, fmt.Sprintf("%sxyz_%d.txt", om.tag, cycle))
}

// OpenCycle closes the previous trajectory stream and opens the one for
// cycle, truncating it.
func (om *OutputManager) OpenCycle(cycle int) (*TrajectoryWriter, error) {
	return om.openCycle(cycle, os.O_TRUNC)
}

// ResumeCycle is OpenCycle for a resumed cycle: new frames are appended.
func (om *OutputManager) ResumeCycle(cycle int) (*TrajectoryWriter, error) {
	return om.openCycle(cycle, os.O_APPEND)
}

func (om *OutputManager) openCycle(cycle, mode int) (*TrajectoryWriter, error) {
	if om == nil {
		return nil, nil
	}
	if err := om.trajectory.Close(); err != nil {
		return nil, err
	}
	om.trajectory = nil

	path := om.TrajectoryPath(cycle)
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|mode, 0644)
	if err != nil {
		return nil, fmt.Errorf("creating %s: %w", filepath.Base(path), err)
	}
	om.trajectory = NewTrajectoryWriter(f)
	return om.trajectory, nil
}

// WriteSnapshot saves a snapshot into the output directory.
func (om *OutputManager) WriteSnapshot(snap *Snapshot) (string, error) {
	if om == nil {
		return "", nil
	}
	return SaveSnapshot(snap, om.dir)
}

// WriteConfig saves the current configuration as YAML.
func (om *OutputManager) WriteConfig(cfg *config.Config) error {
	if om == nil {
		return nil
	}
	return cfg.WriteYAML(filepath.Join(om.dir, "config.yaml"))
}

// WriteStats writes a window stats record to stats.csv.
func (om *OutputManager) WriteStats(stats WindowStats) error {
	if om == nil || om.statsFile == nil {
		return nil
	}

	records := []WindowStats{stats}

	if !om.statsHeaderWritten {
		// First write includes headers
		if err := gocsv.Marshal(records, om.statsFile); err != nil {
			return fmt.Errorf("writing stats: %w", err)
		}
		om.statsHeaderWritten = true
	} else {
		// Subsequent writes skip headers
		if err := gocsv.MarshalWithoutHeaders(records, om.statsFile); err != nil {
			return fmt.Errorf("writing stats: %w", err)
		}
	}

	return nil
}

// WriteDiagnostics appends records to diagnostics.csv.
func (om *OutputManager) WriteDiagnostics(records []Diagnostic) error {
	if om == nil || om.diagnosticFile == nil || len(records) == 0 {
		return nil
	}

	if !om.diagnosticHeaderWritten {
		// First write includes headers
		if err := gocsv.Marshal(records, om.diagnosticFile); err != nil {
			return fmt.Errorf("writing diagnostics: %w", err)
		}
		om.diagnosticHeaderWritten = true
	} else {
		if err := gocsv.MarshalWithoutHeaders(records, om.diagnosticFile); err != nil {
			return fmt.Errorf("writing diagnostics: %w", err)
		}
	}

	return nil
}

// WriteDiagnostic appends a single record to diagnostics.csv.
func (om *OutputManager) WriteDiagnostic(d Diagnostic) error {
	return om.WriteDiagnostics([]Diagnostic{d})
}

// WritePerf writes a performance stats record to perf.csv.
func (om *OutputManager) WritePerf(stats PerfStats, cycle, windowEnd int) error {
	if om == nil || om.perfFile == nil {
		return nil
	}

	records := []PerfStatsCSV{stats.ToCSV(cycle, windowEnd)}

	if !om.perfHeaderWritten {
		if err := gocsv.Marshal(records, om.perfFile); err != nil {
			return fmt.Errorf("writing perf: %w", err)
		}
		om.perfHeaderWritten = true
	} else {
		if err := gocsv.MarshalWithoutHeaders(records, om.perfFile); err != nil {
			return fmt.Errorf("writing perf: %w", err)
		}
	}

	return nil
}

// Dir returns the output directory path.
func (om *OutputManager) Dir() string {
	if om == nil {
		return ""
	}
	return om.dir
}

// Close flushes and closes all output files. Later calls are no-ops.
func (om *OutputManager) Close() error {
	if om == nil {
		return nil
	}

	var firstErr error

	if err := om.trajectory.Close(); err != nil {
		firstErr = err
	}
	om.trajectory = nil

	if om.statsFile != nil {
		if err := om.statsFile.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		om.statsFile = nil
	}

	if om.diagnosticFile != nil {
		if err := om.diagnosticFile.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		om.diagnosticFile = nil
	}

	if om.perfFile != nil {
		if err := om.perfFile.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		om.perfFile = nil
	}

	return firstErr
}
