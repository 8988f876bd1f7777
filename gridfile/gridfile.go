package gridfile

import (
	"fmt"

	"github.com/gammadia/batcher/emitter"
	"github.com/gammadia/batcher/grid"
)

const GridfileVersion = "1"

// Gridfile describes a batch: its options and, optionally, its name and the
// scheduler resources it defaults to.
type Gridfile struct {
	path string

	Version  string
	Name     string
	Dispatch GridfileDispatch
	Options  grid.Grid
}

// GridfileDispatch holds default dispatch parameters. Zero values are unset.
type GridfileDispatch struct {
	Time        string `yaml:"time"`
	MemPerCPU   int    `yaml:"mem-per-cpu"`
	CPUsPerTask int    `yaml:"cpus-per-task"`
}

// Path returns the directory the gridfile was read from.
func (gridfile Gridfile) Path() string {
	return gridfile.path
}

func (gridfile Gridfile) Validate() error {
	if gridfile.Version != GridfileVersion {
		return fmt.Errorf("unsupported version '%s'", gridfile.Version)
	}

	if gridfile.Name != "" && !emitter.ValidJobName(gridfile.Name) {
		return fmt.Errorf("name must be a valid identifier")
	}

	if gridfile.Dispatch.Time != "" {
		if _, err := emitter.NormalizeTime(gridfile.Dispatch.Time); err != nil {
			return fmt.Errorf("dispatch.time is not valid: %w", err)
		}
	}
	if gridfile.Dispatch.MemPerCPU < 0 {
		return fmt.Errorf("dispatch.mem-per-cpu must be greater than 0")
	}
	if gridfile.Dispatch.CPUsPerTask < 0 {
		return fmt.Errorf("dispatch.cpus-per-task must be greater than 0")
	}

	return gridfile.Options.Validate()
}
