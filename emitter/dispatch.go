package emitter

import (
	"fmt"
	"path"
	"regexp"
	"strings"
	"time"
)

// TaskIDVar is the variable the scheduler sets to the array index of a task.
const TaskIDVar = "$SLURM_ARRAY_TASK_ID"

var jobNameRegex = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)
var slurmTimeRegex = regexp.MustCompile(`^(\d+-\d+(:\d+(:\d+)?)?|\d+(:\d+(:\d+)?)?)$`)

// Dispatch holds the scheduler parameters shared by every task of a batch.
type Dispatch struct {
	JobName     string `json:"job-name" yaml:"job-name"`
	Time        string `json:"time" yaml:"time"`
	MemPerCPU   int    `json:"mem-per-cpu" yaml:"mem-per-cpu"`
	CPUsPerTask int    `json:"cpus-per-task" yaml:"cpus-per-task"`
}

// ValidJobName reports whether name can be used as a job name. Job names end
// up in paths, so they are restricted to letters, digits, '.', '_' and '-'.
func ValidJobName(name string) bool {
	return jobNameRegex.MatchString(name)
}

func (d Dispatch) Validate() error {
	if !ValidJobName(d.JobName) {
		return fmt.Errorf("job-name must be a valid identifier")
	}
	if _, err := NormalizeTime(d.Time); err != nil {
		return err
	}
	if d.MemPerCPU <= 0 {
		return fmt.Errorf("mem-per-cpu must be greater than 0")
	}
	if d.CPUsPerTask <= 0 {
		return fmt.Errorf("cpus-per-task must be greater than 0")
	}
	return nil
}

// NormalizeTime returns the time limit in a form the scheduler accepts. Slurm
// formats are kept as is, Go durations are converted to [D-]HH:MM:SS.
func NormalizeTime(limit string) (string, error) {
	limit = strings.TrimSpace(limit)
	switch {
	case limit == "":
		return "", fmt.Errorf("time is required")
	case strings.EqualFold(limit, "UNLIMITED"), strings.EqualFold(limit, "INFINITE"):
		return strings.ToUpper(limit), nil
	case slurmTimeRegex.MatchString(limit):
		return limit, nil
	}

	d, err := time.ParseDuration(limit)
	if err != nil {
		return "", fmt.Errorf("time '%s' is neither a scheduler time limit nor a duration", limit)
	}
	if d < time.Second {
		return "", fmt.Errorf("time must be at least one second")
	}

	d = d.Round(time.Second)
	days := d / (24 * time.Hour)
	d -= days * 24 * time.Hour
	hours := d / time.Hour
	d -= hours * time.Hour
	minutes := d / time.Minute
	seconds := (d - minutes*time.Minute) / time.Second

	clock := fmt.Sprintf("%02d:%02d:%02d", hours, minutes, seconds)
	if days > 0 {
		return fmt.Sprintf("%d-%s", days, clock), nil
	}
	return clock, nil
}

// Layout locates the files of a batch from the point of view of a task.
type Layout struct {
	// Path of the artifact a task reads, with TaskIDVar in place of the index
	ArtifactPattern string `json:"artifact-pattern" yaml:"artifact-pattern"`
	// Scheduler output path, %A is the job id and %a the array index
	OutputPattern string `json:"output-pattern" yaml:"output-pattern"`
}

// DefaultLayout returns the layout used under runsDir for the given job.
func DefaultLayout(runsDir, jobName string) Layout {
	return Layout{
		ArtifactPattern: path.Join(runsDir, jobName, "jobs", TaskIDVar+".json"),
		OutputPattern:   path.Join(runsDir, jobName, "out", "%A_%a"),
	}
}

func (l Layout) withDefaults(jobName string) Layout {
	defaults := DefaultLayout("runs", jobName)
	if l.ArtifactPattern == "" {
		l.ArtifactPattern = defaults.ArtifactPattern
	}
	if l.OutputPattern == "" {
		l.OutputPattern = defaults.OutputPattern
	}
	return l
}
