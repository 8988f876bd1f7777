package sink

import (
	"context"
	"fmt"
	"io"

	"github.com/gammadia/batcher/emitter"
	"github.com/gammadia/batcher/grid"
	"gopkg.in/yaml.v3"
)

// ScriptFile writes the submission script to Path in FS.
type ScriptFile struct {
	FS   FS
	Path string
}

// ScriptFile implements emitter.ScriptSink and emitter.ScriptRemover
var _ emitter.ScriptSink = (*ScriptFile)(nil)
var _ emitter.ScriptRemover = (*ScriptFile)(nil)

func (s *ScriptFile) WriteScript(ctx context.Context, script string) error {
	return s.FS.WriteFile(ctx, s.Path, 0644, func(w io.Writer) error {
		_, err := io.WriteString(w, script)
		return err
	})
}

// RemoveScript deletes the script, if there is one.
func (s *ScriptFile) RemoveScript(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.FS.Delete(s.Path)
}

// HostPath returns the location of the script on the host.
func (s *ScriptFile) HostPath() string {
	return s.FS.HostPath(s.Path)
}

// Writer prints the batch instead of storing it: every artifact as a YAML
// document headed by its index, then the script.
type Writer struct {
	W io.Writer
}

// Writer implements emitter.ArtifactSink and emitter.ScriptSink
var _ emitter.ArtifactSink = (*Writer)(nil)
var _ emitter.ScriptSink = (*Writer)(nil)

func (p *Writer) WriteArtifact(ctx context.Context, index int, job grid.Job) error {
	buf, err := yaml.Marshal(job)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(p.W, "--- # %d\n%s", index, buf)
	return err
}

func (p *Writer) WriteScript(ctx context.Context, script string) error {
	_, err := fmt.Fprintf(p.W, "--- # script\n%s", script)
	return err
}
