package telemetry

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// SnapshotVersion is incremented when the format changes.
const SnapshotVersion = 1

// Snapshot reasons.
const (
	ReasonCycleEnd = "cycle_end"
	ReasonAborted  = "aborted"
)

// Snapshot holds the complete simulation state needed to resume a cycle.
type Snapshot struct {
	Version int    `json:"version"`
	Seed    uint64 `json:"seed"`
	Reason  string `json:"reason,omitempty"`

	Cycle int     `json:"cycle"`
	Step  int     `json:"step"`
	Time  float64 `json:"time"`

	// RNGState is the binary state of the noise generator.
	RNGState []byte `json:"rng_state"`

	Particles []ParticleState `json:"particles"`
}

// ParticleState holds one particle's surface position. Embedded
// coordinates are informational; they are recomputed on restore. Origin
// is the particle's position at the start of the cycle.
type ParticleState struct {
	Index  int        `json:"index"`
	Face   int        `json:"face"`
	Local0 float64    `json:"local0"`
	Local1 float64    `json:"local1"`
	Pos    [3]float64 `json:"pos"`
	Origin [3]float64 `json:"origin"`
}

// SaveSnapshot writes a snapshot to disk.
// Returns the filepath where it was saved.
func SaveSnapshot(snapshot *Snapshot, dir string) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create snapshot dir: %w", err)
	}

	name := fmt.Sprintf("snapshot_%d_%d", snapshot.Cycle, snapshot.Step)
	if snapshot.Reason != "" {
		name += "_" + snapshot.Reason
	}
	name += ".json"

	path := filepath.Join(dir, name)

	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal snapshot: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("write snapshot: %w", err)
	}

	return path, nil
}

// LoadSnapshot reads a snapshot from disk.
func LoadSnapshot(path string) (*Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}

	var snapshot Snapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot: %w", err)
	}
	if snapshot.Version != SnapshotVersion {
		return nil, fmt.Errorf("snapshot version %d, want %d", snapshot.Version, SnapshotVersion)
	}

	return &snapshot, nil
}
