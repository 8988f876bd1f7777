package gridfile

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/gammadia/batcher/grid"
	"gopkg.in/yaml.v3"
)

type yamlGridfile struct {
	Version  string           `yaml:"version"`
	Name     string           `yaml:"name"`
	Dispatch GridfileDispatch `yaml:"dispatch"`
	// Decoded by hand to keep the order of the options
	Options yaml.Node `yaml:"options"`
}

func decodeYAML(source []byte) (*Gridfile, error) {
	dec := yaml.NewDecoder(bytes.NewReader(source))
	dec.KnownFields(true)

	var raw yamlGridfile
	if err := dec.Decode(&raw); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("gridfile is empty")
		}
		return nil, err
	}

	options, err := optionsFromYAML(&raw.Options)
	if err != nil {
		return nil, err
	}

	return &Gridfile{
		Version:  raw.Version,
		Name:     raw.Name,
		Dispatch: raw.Dispatch,
		Options:  options,
	}, nil
}

func optionsFromYAML(node *yaml.Node) (grid.Grid, error) {
	if node.Kind == 0 {
		return grid.Grid{}, nil
	}
	if node.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("line %d: options must be a mapping", node.Line)
	}

	options := make(grid.Grid, 0, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		key, value := node.Content[i], node.Content[i+1]
		decoded, err := valueFromYAML(key.Value, value)
		if err != nil {
			return nil, err
		}
		options = append(options, grid.Option{Name: key.Value, Value: decoded})
	}
	return options, nil
}

// valueFromYAML decodes a scalar or a sequence of scalars. Anything else is
// reported with its line.
func valueFromYAML(name string, node *yaml.Node) (any, error) {
	if node.Kind == yaml.AliasNode {
		node = node.Alias
	}

	switch node.Kind {
	case yaml.ScalarNode:
		return scalarFromYAML(name, node)
	case yaml.SequenceNode:
		values := make([]any, 0, len(node.Content))
		for _, item := range node.Content {
			if item.Kind == yaml.AliasNode {
				item = item.Alias
			}
			if item.Kind != yaml.ScalarNode {
				return nil, fmt.Errorf("line %d: options[%s] %w", item.Line, name, grid.ErrNotScalar)
			}
			value, err := scalarFromYAML(name, item)
			if err != nil {
				return nil, err
			}
			values = append(values, value)
		}
		return values, nil
	}
	return nil, fmt.Errorf("line %d: options[%s] %w", node.Line, name, grid.ErrNotScalar)
}

func scalarFromYAML(name string, node *yaml.Node) (any, error) {
	var value any
	if err := node.Decode(&value); err != nil {
		return nil, fmt.Errorf("line %d: options[%s]: %w", node.Line, name, err)
	}
	if !grid.IsScalar(value) {
		return nil, fmt.Errorf("line %d: options[%s] %w", node.Line, name, grid.ErrNotScalar)
	}
	return value, nil
}

// ParseOverride parses a name=value assignment. The value is read as YAML, so
// "seed=[1,2,3]" binds a list and "lr=0.1" a number.
func ParseOverride(assignment string) (grid.Option, error) {
	name, source, ok := bytes.Cut([]byte(assignment), []byte("="))
	if !ok || len(name) == 0 {
		return grid.Option{}, fmt.Errorf("invalid override '%s', expected name=value", assignment)
	}

	var node yaml.Node
	if err := yaml.Unmarshal(source, &node); err != nil {
		return grid.Option{}, fmt.Errorf("invalid override '%s': %w", assignment, err)
	}

	// An empty value binds the empty string
	if len(node.Content) == 0 {
		return grid.Option{Name: string(name), Value: ""}, nil
	}

	value, err := valueFromYAML(string(name), node.Content[0])
	if err != nil {
		return grid.Option{}, fmt.Errorf("invalid override '%s': %w", assignment, err)
	}
	return grid.Option{Name: string(name), Value: value}, nil
}
