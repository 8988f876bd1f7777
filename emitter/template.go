package emitter

import (
	"fmt"
	"strings"
	"text/template"
	"text/template/parse"

	"github.com/alessio/shellescape"
	sprig "github.com/go-task/slim-sprig/v3"
	"github.com/samber/lo"
)

// Placeholders lists the fields a submission script template may reference.
var Placeholders = []string{
	"JobName",
	"JobCount",
	"Time",
	"MemPerCPU",
	"CPUsPerTask",
	"OutputPattern",
	"ArtifactPattern",
	"TaskID",
}

// ScriptData is the data a submission script template is rendered with.
type ScriptData struct {
	JobName         string
	JobCount        int
	Time            string
	MemPerCPU       int
	CPUsPerTask     int
	OutputPattern   string
	ArtifactPattern string
	TaskID          string
}

func (data ScriptData) Validate() error {
	if data.JobCount < 1 {
		return fmt.Errorf("job count must be at least 1, got %d", data.JobCount)
	}
	for name, value := range map[string]string{
		"JobName":         data.JobName,
		"Time":            data.Time,
		"OutputPattern":   data.OutputPattern,
		"ArtifactPattern": data.ArtifactPattern,
		"TaskID":          data.TaskID,
	} {
		if value == "" {
			return fmt.Errorf("%s is required", name)
		}
	}
	if data.MemPerCPU <= 0 || data.CPUsPerTask <= 0 {
		return fmt.Errorf("resources must be greater than 0")
	}
	return nil
}

const defaultTemplateSource = `#!/usr/bin/env bash
#SBATCH --job-name={{ .JobName }}
#SBATCH --output={{ .OutputPattern }}
#SBATCH --array=1-{{ .JobCount }}
#SBATCH --time={{ .Time }}
#SBATCH --mem-per-cpu={{ .MemPerCPU }}
#SBATCH --cpus-per-task={{ .CPUsPerTask }}

module load julia
julia -L optimize.jl -e "main(\"{{ .ArtifactPattern }}\")"
`

// DefaultTemplate renders a Slurm array job running one julia task per index.
var DefaultTemplate = lo.Must(ParseTemplate("sbatch", defaultTemplateSource))

// Template is a parsed submission script template.
type Template struct {
	tmpl   *template.Template
	fields []string
}

// ParseTemplate parses a submission script template. Every field the template
// references must be one of Placeholders, and JobCount must be referenced.
func ParseTemplate(name, source string) (*Template, error) {
	funcs := sprig.TxtFuncMap()
	funcs["shellquote"] = shellescape.Quote

	tmpl, err := template.New(name).Option("missingkey=error").Funcs(funcs).Parse(source)
	if err != nil {
		return nil, fmt.Errorf("failed to parse template: %w", err)
	}

	var fields []string
	for _, t := range tmpl.Templates() {
		if t.Tree != nil {
			fields = append(fields, referencedFields(t.Tree.Root)...)
		}
	}
	fields = lo.Uniq(fields)

	if unknown, _ := lo.Difference(fields, Placeholders); len(unknown) > 0 {
		return nil, fmt.Errorf("template references unknown placeholders: %s (allowed: %s)", strings.Join(unknown, ", "), strings.Join(Placeholders, ", "))
	}
	if !lo.Contains(fields, "JobCount") {
		return nil, fmt.Errorf("template must reference .JobCount for the array range")
	}

	return &Template{tmpl: tmpl, fields: fields}, nil
}

// Fields returns the placeholders the template references.
func (t *Template) Fields() []string {
	return append([]string(nil), t.fields...)
}

func (t *Template) Render(data ScriptData) (string, error) {
	if err := data.Validate(); err != nil {
		return "", fmt.Errorf("invalid script data: %w", err)
	}

	var output strings.Builder
	if err := t.tmpl.Execute(&output, data); err != nil {
		return "", fmt.Errorf("failed to execute template: %w", err)
	}
	return output.String(), nil
}

// referencedFields returns the top-level fields of the data used below node.
func referencedFields(node parse.Node) []string {
	var fields []string
	var walk func(parse.Node)
	walk = func(node parse.Node) {
		switch n := node.(type) {
		case nil:
		case *parse.ListNode:
			if n == nil {
				return
			}
			for _, child := range n.Nodes {
				walk(child)
			}
		case *parse.ActionNode:
			walk(n.Pipe)
		case *parse.IfNode:
			walk(&n.BranchNode)
		case *parse.RangeNode:
			walk(&n.BranchNode)
		case *parse.WithNode:
			walk(&n.BranchNode)
		case *parse.BranchNode:
			walk(n.Pipe)
			walk(n.List)
			walk(n.ElseList)
		case *parse.TemplateNode:
			walk(n.Pipe)
		case *parse.PipeNode:
			if n == nil {
				return
			}
			for _, cmd := range n.Cmds {
				walk(cmd)
			}
		case *parse.CommandNode:
			for _, arg := range n.Args {
				walk(arg)
			}
		case *parse.ChainNode:
			walk(n.Node)
		case *parse.FieldNode:
			fields = append(fields, n.Ident[0])
		case *parse.VariableNode:
			if len(n.Ident) > 1 && n.Ident[0] == "$" {
				fields = append(fields, n.Ident[1])
			}
		}
	}
	walk(node)
	return fields
}
