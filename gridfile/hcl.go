package gridfile

import (
	"fmt"
	"math/big"
	"slices"

	"github.com/gammadia/batcher/grid"
	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/zclconf/go-cty/cty"
)

type hclGridfile struct {
	Version  string       `hcl:"version"`
	Name     string       `hcl:"name,optional"`
	Dispatch *hclDispatch `hcl:"dispatch,block"`
	Options  *hclOptions  `hcl:"options,block"`
}

type hclDispatch struct {
	Time        string `hcl:"time,optional"`
	MemPerCPU   int    `hcl:"mem_per_cpu,optional"`
	CPUsPerTask int    `hcl:"cpus_per_task,optional"`
}

// Options are free-form attributes, read once the rest of the file is decoded.
type hclOptions struct {
	Body hcl.Body `hcl:",remain"`
}

func decodeHCL(source []byte, filename string) (*Gridfile, error) {
	file, diags := hclparse.NewParser().ParseHCL(source, filename)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse HCL file %s: %w", filename, diags)
	}

	var raw hclGridfile
	if diags = gohcl.DecodeBody(file.Body, nil, &raw); diags.HasErrors() {
		return nil, fmt.Errorf("failed to decode HCL file %s: %w", filename, diags)
	}

	gridfile := &Gridfile{
		Version: raw.Version,
		Name:    raw.Name,
		Options: grid.Grid{},
	}
	if raw.Dispatch != nil {
		gridfile.Dispatch = GridfileDispatch(*raw.Dispatch)
	}
	if raw.Options != nil {
		options, err := optionsFromHCL(raw.Options.Body)
		if err != nil {
			return nil, err
		}
		gridfile.Options = options
	}

	return gridfile, nil
}

func optionsFromHCL(body hcl.Body) (grid.Grid, error) {
	attrs, diags := body.JustAttributes()
	if diags.HasErrors() {
		return nil, fmt.Errorf("options: %w", diags)
	}

	// Attributes come back as a map, the source order is the option order
	sorted := make([]*hcl.Attribute, 0, len(attrs))
	for _, attr := range attrs {
		sorted = append(sorted, attr)
	}
	slices.SortFunc(sorted, func(a, b *hcl.Attribute) int {
		return a.Range.Start.Byte - b.Range.Start.Byte
	})

	options := make(grid.Grid, 0, len(sorted))
	for _, attr := range sorted {
		value, diags := attr.Expr.Value(nil)
		if diags.HasErrors() {
			return nil, fmt.Errorf("options[%s]: %w", attr.Name, diags)
		}

		native, err := ctyToNative(attr.Name, value)
		if err != nil {
			return nil, err
		}
		options = append(options, grid.Option{Name: attr.Name, Value: native})
	}
	return options, nil
}

// ctyToNative converts a primitive value or a list of primitives.
func ctyToNative(name string, v cty.Value) (any, error) {
	ty := v.Type()
	if ty.IsListType() || ty.IsTupleType() || ty.IsSetType() {
		if v.IsNull() {
			return nil, fmt.Errorf("options[%s] %w", name, grid.ErrNotScalar)
		}
		values := make([]any, 0, v.LengthInt())
		for it := v.ElementIterator(); it.Next(); {
			_, element := it.Element()
			if !element.Type().IsPrimitiveType() {
				return nil, fmt.Errorf("options[%s] %w", name, grid.ErrNotScalar)
			}
			value, err := primitiveToNative(name, element)
			if err != nil {
				return nil, err
			}
			values = append(values, value)
		}
		return values, nil
	}
	return primitiveToNative(name, v)
}

func primitiveToNative(name string, v cty.Value) (any, error) {
	if v.IsNull() || !v.IsKnown() {
		return nil, fmt.Errorf("options[%s] %w", name, grid.ErrNotScalar)
	}

	switch v.Type() {
	case cty.String:
		return v.AsString(), nil
	case cty.Bool:
		return v.True(), nil
	case cty.Number:
		n := v.AsBigFloat()
		if n.IsInt() {
			if i, accuracy := n.Int64(); accuracy == big.Exact {
				return int(i), nil
			}
		}
		f, _ := n.Float64()
		return f, nil
	}
	return nil, fmt.Errorf("options[%s] %w", name, grid.ErrNotScalar)
}
