package telemetry

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pthm-cable/manifold/config"
)

func TestTrajectoryWriterFormat(t *testing.T) {
	var buf bytes.Buffer
	tw := NewTrajectoryWriter(&buf)

	frame := []TrajectoryRecord{
		{Index: 0, Local0: 0.25, Local1: 0.5, Face: 3, X: 1, Y: -0.5, Z: 2.5, Time: 0},
		{Index: 1, Local0: 0.1, Local1: 0.2, Face: 0, X: 0, Y: 0, Z: 1, Time: 0},
	}
	require.NoError(t, tw.WriteFrame(frame))
	frame[0].Time = 0.1
	require.NoError(t, tw.WriteFrame(frame[:1]))
	require.NoError(t, tw.Close())

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3, "no header, one line per particle")
	assert.Equal(t, "0\t0.25\t0.5\t3\t1\t-0.5\t2.5\t0", lines[0])
	assert.Equal(t, "1\t0.1\t0.2\t0\t0\t0\t1\t0", lines[1])
	assert.Equal(t, "0\t0.25\t0.5\t3\t1\t-0.5\t2.5\t0.1", lines[2])
	assert.Equal(t, 2, tw.Frames())
}

func TestTrajectoryWriterNil(t *testing.T) {
	var tw *TrajectoryWriter
	assert.NoError(t, tw.WriteFrame([]TrajectoryRecord{{}}))
	assert.NoError(t, tw.Close())
	assert.Zero(t, tw.Frames())
}

func TestOutputManagerDisabled(t *testing.T) {
	om, err := NewOutputManager("", "run", true)
	require.NoError(t, err)
	assert.Nil(t, om)

	tw, err := om.OpenCycle(0)
	assert.NoError(t, err)
	assert.Nil(t, tw)
	assert.NoError(t, om.WriteDiagnostic(Diagnostic{}))
	assert.NoError(t, om.WritePerf(PerfStats{}, 0, 0))
	assert.NoError(t, om.WriteStats(WindowStats{}))
	path, err := om.WriteSnapshot(&Snapshot{})
	assert.NoError(t, err)
	assert.Empty(t, path)
	assert.NoError(t, om.Close())
}

func TestOutputManagerFiles(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out")
	om, err := NewOutputManager(dir, "sphere_", true)
	require.NoError(t, err)

	tw, err := om.OpenCycle(0)
	require.NoError(t, err)
	require.NoError(t, tw.WriteFrame([]TrajectoryRecord{{Index: 0, Face: 1}}))

	tw, err = om.OpenCycle(1)
	require.NoError(t, err)
	require.NoError(t, tw.WriteFrame([]TrajectoryRecord{{Index: 7}}))

	tw, err = om.ResumeCycle(0)
	require.NoError(t, err)
	require.NoError(t, tw.WriteFrame([]TrajectoryRecord{{Index: 0, Face: 2}}))

	snapPath, err := om.WriteSnapshot(&Snapshot{Version: SnapshotVersion, Cycle: 1, Step: 4})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "snapshot_1_4.json"), snapPath)

	require.NoError(t, om.WriteDiagnostic(Diagnostic{Step: 3, Particle: 1, Other: -1, Kind: "no_edge_hit", Face: 2}))
	require.NoError(t, om.WriteDiagnostics([]Diagnostic{
		{Step: 4, Particle: 0, Other: 1, Kind: KindOverlap, Face: -1, Value: 1.5},
	}))
	require.NoError(t, om.WritePerf(PerfStats{StepsPerSecond: 10}, 0, 100))
	require.NoError(t, om.WritePerf(PerfStats{StepsPerSecond: 20}, 0, 200))
	require.NoError(t, om.WriteStats(WindowStats{Cycle: 1, WindowEnd: 100, MSD: 4}))
	require.NoError(t, om.WriteStats(WindowStats{Cycle: 1, WindowEnd: 200, MSD: 8}))

	cfg, err := config.Load("")
	require.NoError(t, err)
	require.NoError(t, om.WriteConfig(cfg))
	require.NoError(t, om.Close())

	read := func(name string) []string {
		data, err := os.ReadFile(filepath.Join(dir, name))
		require.NoError(t, err)
		return strings.Split(strings.TrimSpace(string(data)), "\n")
	}

	assert.Equal(t, []string{"0\t0\t0\t1\t0\t0\t0\t0", "0\t0\t0\t2\t0\t0\t0\t0"}, read("sphere_xyz_0.txt"), "resume appends")
	assert.Equal(t, []string{"7\t0\t0\t0\t0\t0\t0\t0"}, read("sphere_xyz_1.txt"))
	assert.Equal(t, filepath.Join(dir, "sphere_xyz_1.txt"), om.TrajectoryPath(1))

	diag := read("diagnostics.csv")
	require.Len(t, diag, 3, "header written once")
	assert.Equal(t, "cycle,step,particle,other,kind,face,local0,local1,value", diag[0])
	assert.True(t, strings.HasPrefix(diag[2], "0,4,0,1,overlap,-1,"))

	perf := read("perf.csv")
	require.Len(t, perf, 3)
	assert.True(t, strings.HasPrefix(perf[0], "cycle,window_end,"))

	stats := read("stats.csv")
	require.Len(t, stats, 3)
	assert.Equal(t, "cycle,window_end,time,crossings,diagnostics,step_mean,step_std,step_p10,step_p50,step_p90,msd,diffusivity_est", stats[0])
	assert.True(t, strings.HasPrefix(stats[2], "1,200,"))

	back, err := config.Load(filepath.Join(dir, "config.yaml"))
	require.NoError(t, err)
	assert.Equal(t, cfg, back)
}

func TestOutputManagerWithoutDiagnostics(t *testing.T) {
	dir := t.TempDir()
	om, err := NewOutputManager(dir, "", false)
	require.NoError(t, err)
	require.NoError(t, om.WriteDiagnostic(Diagnostic{Kind: "x"}))
	require.NoError(t, om.Close())

	_, err = os.Stat(filepath.Join(dir, "diagnostics.csv"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestDiagnosticCounts(t *testing.T) {
	c := DiagnosticCounts{}
	c.Add(Diagnostic{Kind: KindOverlap})
	c.Add(Diagnostic{Kind: KindOverlap})
	c.Add(Diagnostic{Kind: "boundary_edge"})
	assert.Equal(t, 2, c[KindOverlap])
	assert.Equal(t, 3, c.Total())
	assert.Len(t, c.LogValue().Group(), 2)
}
