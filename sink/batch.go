// Package sink stores the artifacts and submission script of a batch.
package sink

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"path"
	"regexp"
	"slices"
	"strconv"

	"github.com/gammadia/batcher/emitter"
	"github.com/gammadia/batcher/grid"
	"github.com/samber/lo"
)

const (
	JobsDir   = "jobs"
	OutputDir = "out"
)

var artifactRegex = regexp.MustCompile(`^([1-9][0-9]*)\.json$`)

// Batch stores job configurations under <job>/jobs/<index>.json and reserves
// <job>/out for the scheduler output.
type Batch struct {
	fs      FS
	jobName string
}

// Batch implements emitter.ArtifactSink and emitter.Pruner
var _ emitter.ArtifactSink = (*Batch)(nil)
var _ emitter.Pruner = (*Batch)(nil)

// NewBatch creates the directories of the batch named jobName in root.
func NewBatch(root FS, jobName string) (*Batch, error) {
	b := OpenBatch(root, jobName)
	for _, dir := range []string{JobsDir, OutputDir} {
		if err := b.fs.MkDir(dir); err != nil {
			return nil, fmt.Errorf("create %s directory: %w", dir, err)
		}
	}
	return b, nil
}

// OpenBatch returns the batch named jobName in root without touching the
// storage.
func OpenBatch(root FS, jobName string) *Batch {
	return &Batch{fs: root.Scope(jobName), jobName: jobName}
}

func (b *Batch) JobName() string {
	return b.jobName
}

// FS returns the storage scoped to the batch directory.
func (b *Batch) FS() FS {
	return b.fs
}

func (b *Batch) artifactPath(index int) string {
	return path.Join(JobsDir, fmt.Sprintf("%d.json", index))
}

// ArtifactPath returns the host path of the artifact at index.
func (b *Batch) ArtifactPath(index int) string {
	return b.fs.HostPath(b.artifactPath(index))
}

func (b *Batch) WriteArtifact(ctx context.Context, index int, job grid.Job) error {
	if index < 1 {
		return fmt.Errorf("invalid artifact index %d", index)
	}
	return b.fs.WriteFile(ctx, b.artifactPath(index), 0644, func(w io.Writer) error {
		return json.NewEncoder(w).Encode(job)
	})
}

func (b *Batch) ReadArtifact(index int) (grid.Job, error) {
	var job grid.Job
	buf, err := b.fs.ReadFile(b.artifactPath(index))
	if err != nil {
		return job, fmt.Errorf("read artifact %d: %w", index, err)
	}
	if err := json.Unmarshal(buf, &job); err != nil {
		return job, fmt.Errorf("decode artifact %d: %w", index, err)
	}
	return job, nil
}

// Indices returns the indices of the stored artifacts, in increasing order.
// A batch that was never written has none.
func (b *Batch) Indices() ([]int, error) {
	names, err := b.fs.List(JobsDir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	} else if err != nil {
		return nil, err
	}

	indices := lo.FilterMap(names, func(name string, _ int) (int, bool) {
		match := artifactRegex.FindStringSubmatch(name)
		if match == nil {
			return 0, false
		}
		index, err := strconv.Atoi(match[1])
		return index, err == nil
	})
	slices.Sort(indices)
	return indices, nil
}

// Prune removes the artifacts whose index is greater than count.
func (b *Batch) Prune(ctx context.Context, count int) (int, error) {
	indices, err := b.Indices()
	if err != nil {
		return 0, err
	}

	pruned := 0
	for _, index := range indices {
		if index <= count {
			continue
		}
		if err := ctx.Err(); err != nil {
			return pruned, err
		}
		if err := b.fs.Delete(b.artifactPath(index)); err != nil {
			return pruned, fmt.Errorf("delete artifact %d: %w", index, err)
		}
		pruned++
	}
	return pruned, nil
}
