package gridfile

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"maps"
	"os"
	"os/exec"
	"path"
	"strings"
	"text/template"

	sprig "github.com/go-task/slim-sprig/v3"
	"github.com/samber/lo"
)

type ReadOptions struct {
	// Gridfile arguments
	Args []string
	// Gridfile parameters
	Params map[string]string
	// Use the reduced cardinalities meant for smoke tests
	Quick bool
}

type UnmarshalError struct {
	error
	Source string
}

func (e UnmarshalError) Unwrap() error {
	return e.error
}

// Read evaluates the gridfile as a template then decodes it according to its
// extension (.yaml, .yml or .hcl).
func Read(file string, options ReadOptions) (*Gridfile, error) {
	workDir := path.Join(lo.Must(os.Getwd()), path.Dir(file))
	if path.IsAbs(file) {
		workDir = path.Dir(file)
	}

	buf, err := os.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}

	source, err := evaluateTemplate(string(buf), workDir, options)
	if err != nil {
		return nil, fmt.Errorf("evaluate template: %w", err)
	}

	var gridfile *Gridfile
	switch ext := strings.ToLower(path.Ext(file)); ext {
	case ".yaml", ".yml":
		gridfile, err = decodeYAML([]byte(source))
	case ".hcl":
		gridfile, err = decodeHCL([]byte(source), file)
	default:
		return nil, fmt.Errorf("unsupported gridfile extension '%s'", ext)
	}
	if err != nil {
		return nil, UnmarshalError{fmt.Errorf("unmarshal: %w", err), source}
	}

	gridfile.path = workDir
	if err = gridfile.Validate(); err != nil {
		return nil, UnmarshalError{fmt.Errorf("validate: %w", err), source}
	}

	return gridfile, nil
}

type TemplateData struct {
	Env    map[string]string
	Args   []string
	Params map[string]string
	Quick  bool
}

func evaluateTemplate(source string, dir string, options ReadOptions) (string, error) {
	funcs := sprig.TxtFuncMap()
	maps.Copy(funcs, template.FuncMap{
		"base64": func(s string) string {
			return base64.StdEncoding.EncodeToString([]byte(s))
		},
		"env": func(key string) string {
			return os.Getenv(key)
		},
		"json": func(v any) (string, error) {
			buf, err := json.Marshal(v)
			return string(buf), err
		},
		"lines": func(s string) []string {
			return lo.WithoutEmpty(strings.Split(s, "\n"))
		},
		"shell": func(script string) (string, error) {
			return shell(script, dir)
		},
		"split": func(sep string, s string) []string {
			return strings.Split(s, sep)
		},
	})

	tmpl, err := template.New("gridfile").Option("missingkey=zero").Funcs(funcs).Parse(source)
	if err != nil {
		return "", fmt.Errorf("failed to parse template: %w", err)
	}

	data := TemplateData{
		Env:    lo.SliceToMap(os.Environ(), func(env string) (key, val string) { key, val, _ = strings.Cut(env, "="); return }),
		Args:   options.Args,
		Params: lo.Ternary(options.Params != nil, options.Params, map[string]string{}),
		Quick:  options.Quick,
	}

	var output strings.Builder
	if err := tmpl.Execute(&output, data); err != nil {
		return "", fmt.Errorf("failed to execute template: %w", err)
	}

	return output.String(), nil
}

func shell(script string, dir string) (string, error) {
	var shell, arg string
	if strings.HasPrefix(script, "#!") {
		shell, script, _ = strings.Cut(script, "\n")
		shell, arg, _ = strings.Cut(strings.TrimPrefix(shell, "#!"), " ")
	} else {
		shell = lo.Must(lo.Coalesce(os.Getenv("SHELL"), "sh"))
	}

	cmd := exec.Command(shell, lo.Ternary(arg != "", []string{arg}, []string{})...)
	cmd.Stdin = strings.NewReader(script)
	cmd.Stderr = os.Stderr
	cmd.Dir = dir

	output, err := cmd.Output()
	return strings.TrimRight(string(output), "\n"), err
}
