// Package emitter materializes the jobs of an expanded grid and the scheduler
// submission script describing them.
package emitter

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"

	"github.com/gammadia/batcher/grid"
)

// ArtifactSink stores the configuration of each job, addressed by its index.
type ArtifactSink interface {
	WriteArtifact(ctx context.Context, index int, job grid.Job) error
}

// Pruner is implemented by artifact sinks that can drop artifacts left over by
// an earlier, larger batch.
type Pruner interface {
	Prune(ctx context.Context, count int) (int, error)
}

// ScriptSink stores the rendered submission script.
type ScriptSink interface {
	WriteScript(ctx context.Context, script string) error
}

// ScriptRemover is implemented by script sinks that keep the script of an
// earlier batch. The emitter removes it before writing the first artifact.
type ScriptRemover interface {
	RemoveScript(ctx context.Context) error
}

type State int

const (
	Idle State = iota
	Expanding
	Finalizing
	Done
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Expanding:
		return "expanding"
	case Finalizing:
		return "finalizing"
	case Done:
		return "done"
	case Failed:
		return "failed"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

var (
	ErrNoJobs      = errors.New("no job configurations to emit")
	ErrEmitterUsed = errors.New("emitter has already run")
)

// ArtifactError reports the artifact a batch failed on.
type ArtifactError struct {
	Index int
	Err   error
}

func (e *ArtifactError) Error() string {
	return fmt.Sprintf("write artifact %d: %s", e.Index, e.Err)
}

func (e *ArtifactError) Unwrap() error {
	return e.Err
}

// PruneError reports a failure to remove artifacts left by an earlier batch.
type PruneError struct {
	Err error
}

func (e *PruneError) Error() string {
	return fmt.Sprintf("prune stale artifacts: %s", e.Err)
}

func (e *PruneError) Unwrap() error {
	return e.Err
}

// ScriptError reports a failure to prepare or store the submission script.
type ScriptError struct {
	Err error
}

func (e *ScriptError) Error() string {
	return fmt.Sprintf("write script: %s", e.Err)
}

func (e *ScriptError) Unwrap() error {
	return e.Err
}

type Config struct {
	Dispatch  Dispatch
	Layout    Layout
	Template  *Template
	Artifacts ArtifactSink
	Script    ScriptSink
	Logger    *slog.Logger
	// OnArtifact is called after each artifact has been written
	OnArtifact func(index int)
}

func Validate(config Config) error {
	if err := config.Dispatch.Validate(); err != nil {
		return err
	}
	if config.Artifacts == nil {
		return fmt.Errorf("artifact sink is required")
	}
	if config.Script == nil {
		return fmt.Errorf("script sink is required")
	}
	return nil
}

// Emitter writes one artifact per job then the submission script. An Emitter
// runs a single batch.
type Emitter struct {
	config Config
	time   string
	log    *slog.Logger
	state  State
	count  int
}

func New(config Config) (*Emitter, error) {
	if err := Validate(config); err != nil {
		return nil, err
	}

	limit, err := NormalizeTime(config.Dispatch.Time)
	if err != nil {
		return nil, err
	}
	if config.Template == nil {
		config.Template = DefaultTemplate
	}
	if config.Logger == nil {
		config.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	config.Layout = config.Layout.withDefaults(config.Dispatch.JobName)

	return &Emitter{
		config: config,
		time:   limit,
		log:    config.Logger.With("component", "emitter", "job", config.Dispatch.JobName),
		state:  Idle,
	}, nil
}

func (e *Emitter) State() State {
	return e.state
}

// Count is the number of artifacts written so far.
func (e *Emitter) Count() int {
	return e.count
}

// Emit writes every job of the sequence, indexed from 1, then renders and
// writes the submission script for the resulting count. The script is only
// written once every artifact has been, and the script of an earlier batch is
// removed before the first one, so a failed batch never ends up with a script
// describing jobs that do not exist.
func (e *Emitter) Emit(ctx context.Context, jobs iter.Seq[grid.Job]) (count int, err error) {
	if e.state != Idle {
		return 0, ErrEmitterUsed
	}
	defer func() {
		if err != nil {
			from := e.state
			e.state = Failed
			e.log.Debug("Batch failed", "from", from, "written", e.count, "error", err)
		}
	}()

	if jobs == nil {
		return 0, ErrNoJobs
	}

	for index, job := range grid.Enumerate(jobs) {
		if e.state == Idle {
			e.state = Expanding
			if remover, ok := e.config.Script.(ScriptRemover); ok {
				if err := remover.RemoveScript(ctx); err != nil {
					return 0, &ScriptError{Err: fmt.Errorf("remove previous script: %w", err)}
				}
			}
			e.log.Debug("Writing artifacts")
		}
		if err := ctx.Err(); err != nil {
			return e.count, &ArtifactError{Index: index, Err: err}
		}

		job = job.With(grid.JobNameKey, e.config.Dispatch.JobName)
		if err := e.config.Artifacts.WriteArtifact(ctx, index, job); err != nil {
			return e.count, &ArtifactError{Index: index, Err: err}
		}

		e.count = index
		e.log.Debug("Wrote artifact", "index", index)
		if e.config.OnArtifact != nil {
			e.config.OnArtifact(index)
		}
	}

	if e.count == 0 {
		return 0, ErrNoJobs
	}

	e.state = Finalizing
	if pruner, ok := e.config.Artifacts.(Pruner); ok {
		pruned, err := pruner.Prune(ctx, e.count)
		if err != nil {
			return e.count, &PruneError{Err: err}
		}
		if pruned > 0 {
			e.log.Warn("Removed stale artifacts from a previous batch", "count", pruned)
		}
	}

	script, err := e.config.Template.Render(e.scriptData())
	if err != nil {
		return e.count, &ScriptError{Err: err}
	}
	if err := e.config.Script.WriteScript(ctx, script); err != nil {
		return e.count, &ScriptError{Err: err}
	}

	e.state = Done
	e.log.Info("Batch emitted", "jobs", e.count)
	return e.count, nil
}

func (e *Emitter) scriptData() ScriptData {
	return ScriptData{
		JobName:         e.config.Dispatch.JobName,
		JobCount:        e.count,
		Time:            e.time,
		MemPerCPU:       e.config.Dispatch.MemPerCPU,
		CPUsPerTask:     e.config.Dispatch.CPUsPerTask,
		OutputPattern:   e.config.Layout.OutputPattern,
		ArtifactPattern: e.config.Layout.ArtifactPattern,
		TaskID:          TaskIDVar,
	}
}

// Emit runs a single batch with the default template.
func Emit(ctx context.Context, jobs iter.Seq[grid.Job], dispatch Dispatch, artifacts ArtifactSink, script ScriptSink) (int, error) {
	e, err := New(Config{
		Dispatch:  dispatch,
		Artifacts: artifacts,
		Script:    script,
	})
	if err != nil {
		return 0, err
	}
	return e.Emit(ctx, jobs)
}
