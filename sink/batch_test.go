package sink

import (
	"context"
	"errors"
	"os"
	"path"
	"slices"
	"strings"
	"testing"

	"github.com/gammadia/batcher/emitter"
	"github.com/gammadia/batcher/grid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBatchArtifactRoundTrip(t *testing.T) {
	root := t.TempDir()
	b, err := NewBatch(NewDir(root), "bandit")
	require.NoError(t, err)

	job := grid.NewJob(
		grid.Option{Name: "n_arm", Value: 2},
		grid.Option{Name: "sample_cost", Value: 0.002},
		grid.Option{Name: "job_name", Value: "bandit"},
	)
	require.NoError(t, b.WriteArtifact(context.Background(), 1, job))

	buf, err := os.ReadFile(path.Join(root, "bandit", "jobs", "1.json"))
	require.NoError(t, err)
	assert.Equal(t, `{"n_arm":2,"sample_cost":0.002,"job_name":"bandit"}`+"\n", string(buf))

	read, err := b.ReadArtifact(1)
	require.NoError(t, err)
	assert.Equal(t, []string{"n_arm", "sample_cost", "job_name"}, read.Names())
	assert.Equal(t, map[string]any{"n_arm": int64(2), "sample_cost": 0.002, "job_name": "bandit"}, read.Map())

	_, err = os.Stat(path.Join(root, "bandit", "out"))
	assert.NoError(t, err, "the output directory must exist for the scheduler")
}

func TestBatchRejectsInvalidIndex(t *testing.T) {
	b, err := NewBatch(NewDir(t.TempDir()), "bandit")
	require.NoError(t, err)
	assert.EqualError(t, b.WriteArtifact(context.Background(), 0, grid.Job{}), "invalid artifact index 0")
}

func TestBatchIndices(t *testing.T) {
	root := t.TempDir()
	b, err := NewBatch(NewDir(root), "bandit")
	require.NoError(t, err)

	for _, name := range []string{"10.json", "2.json", "1.json", ".3.json.tmp-123", "notes.txt", "0.json", "01.json"} {
		require.NoError(t, os.WriteFile(path.Join(root, "bandit", "jobs", name), []byte("{}"), 0644))
	}

	indices, err := b.Indices()
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 10}, indices)
}

func TestBatchIndicesOfMissingBatch(t *testing.T) {
	indices, err := OpenBatch(NewDir(t.TempDir()), "nothing").Indices()
	assert.NoError(t, err)
	assert.Empty(t, indices)
}

func TestBatchPrune(t *testing.T) {
	b, err := NewBatch(NewDir(t.TempDir()), "bandit")
	require.NoError(t, err)
	for index := 1; index <= 5; index++ {
		require.NoError(t, b.WriteArtifact(context.Background(), index, grid.Job{}))
	}

	pruned, err := b.Prune(context.Background(), 3)
	require.NoError(t, err)
	assert.Equal(t, 2, pruned)

	indices, err := b.Indices()
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3}, indices)
}

func TestEmitToDirectory(t *testing.T) {
	root := t.TempDir()
	d := NewDir(root)

	write := func(g grid.Grid) int {
		b, err := NewBatch(d.Scope("runs"), "bandit")
		require.NoError(t, err)
		jobs, err := grid.Expand(g)
		require.NoError(t, err)

		count, err := emitter.Emit(context.Background(), jobs, emitter.Dispatch{
			JobName:     "bandit",
			Time:        "10",
			MemPerCPU:   100,
			CPUsPerTask: 1,
		}, b, &ScriptFile{FS: d, Path: "run.sbatch"})
		require.NoError(t, err)
		return count
	}

	assert.Equal(t, 4, write(grid.Grid{{Name: "a", Value: []int{1, 2, 3, 4}}}))
	assert.Equal(t, 2, write(grid.Grid{{Name: "a", Value: []int{1, 2}}, {Name: "b", Value: 5}}))

	b := OpenBatch(d.Scope("runs"), "bandit")
	indices, err := b.Indices()
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, indices, "artifacts of the previous batch must be pruned")

	job, err := b.ReadArtifact(2)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"a": int64(2), "b": int64(5), "job_name": "bandit"}, job.Map())

	script, err := os.ReadFile(path.Join(root, "run.sbatch"))
	require.NoError(t, err)
	lines := strings.Split(string(script), "\n")
	assert.True(t, slices.Contains(lines, "#SBATCH --array=1-2"))
	assert.True(t, slices.Contains(lines, "#SBATCH --output=runs/bandit/out/%A_%a"))
}

func TestWriterPrintsBatch(t *testing.T) {
	var out strings.Builder
	w := &Writer{W: &out}

	require.NoError(t, w.WriteArtifact(context.Background(), 1, grid.NewJob(grid.Option{Name: "a", Value: 1}, grid.Option{Name: "job_name", Value: "x"})))
	require.NoError(t, w.WriteScript(context.Background(), "#!/bin/sh\n"))

	assert.Equal(t, "--- # 1\na: 1\njob_name: x\n--- # script\n#!/bin/sh\n", out.String())
}

type failingArtifacts struct {
	*Batch
	failAt int
}

func (f failingArtifacts) WriteArtifact(ctx context.Context, index int, job grid.Job) error {
	if index == f.failAt {
		return errors.New("quota exceeded")
	}
	return f.Batch.WriteArtifact(ctx, index, job)
}

func TestFailedEmitRemovesPreviousScript(t *testing.T) {
	root := t.TempDir()
	d := NewDir(root)
	script := &ScriptFile{FS: d, Path: "run.sbatch"}
	dispatch := emitter.Dispatch{JobName: "bandit", Time: "10", MemPerCPU: 100, CPUsPerTask: 1}

	b, err := NewBatch(d.Scope("runs"), "bandit")
	require.NoError(t, err)
	jobs, err := grid.Expand(grid.Grid{{Name: "a", Value: []int{1, 2, 3, 4}}})
	require.NoError(t, err)
	_, err = emitter.Emit(context.Background(), jobs, dispatch, b, script)
	require.NoError(t, err)
	require.FileExists(t, script.HostPath())

	_, err = emitter.Emit(context.Background(), jobs, dispatch, failingArtifacts{b, 2}, script)
	assert.EqualError(t, err, "write artifact 2: quota exceeded")
	assert.NoFileExists(t, script.HostPath(), "no script may describe a mix of two batches")
}

func TestRemoveMissingScript(t *testing.T) {
	script := &ScriptFile{FS: NewDir(t.TempDir()), Path: "run.sbatch"}
	assert.NoError(t, script.RemoveScript(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, script.RemoveScript(ctx), context.Canceled)
}
