// Package grid expands an option grid into the cartesian product of its
// candidate values.
package grid

import (
	"errors"
	"fmt"
	"math"
	"reflect"

	"github.com/samber/lo"
)

// JobNameKey is the field injected into every job configuration by the emitter.
// An option grid may not define it.
const JobNameKey = "job_name"

var (
	ErrEmptyGrid       = errors.New("grid has no options")
	ErrEmptyName       = errors.New("name is required")
	ErrDuplicateOption = errors.New("is defined more than once")
	ErrReservedOption  = errors.New("is reserved")
	ErrNoCandidates    = errors.New("must not be an empty list")
	ErrNotScalar       = errors.New("must be a scalar or a list of scalars")
	ErrNotFinite       = errors.New("must not hold NaN or infinite numbers")
)

// ValidationError reports why an option grid cannot be expanded.
type ValidationError struct {
	Option string
	Err    error
}

func (e *ValidationError) Error() string {
	if e.Option == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("options[%s] %s", e.Option, e.Err)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// Option binds a name to either a single value or a list of candidate values.
type Option struct {
	Name  string
	Value any
}

// Grid is an ordered set of options. Order matters: it decides the order in
// which combinations are produced.
type Grid []Option

// With returns a copy of the grid where name is bound to value. An existing
// option keeps its position, a new one is appended.
func (g Grid) With(name string, value any) Grid {
	out := make(Grid, len(g), len(g)+1)
	copy(out, g)
	if _, i, ok := lo.FindIndexOf(out, func(o Option) bool { return o.Name == name }); ok {
		out[i].Value = value
		return out
	}
	return append(out, Option{Name: name, Value: value})
}

// Names returns the option names in grid order.
func (g Grid) Names() []string {
	return lo.Map(g, func(o Option, _ int) string { return o.Name })
}

func (g Grid) Validate() error {
	if len(g) == 0 {
		return &ValidationError{Err: ErrEmptyGrid}
	}

	seen := make(map[string]bool, len(g))
	for _, option := range g {
		if option.Name == "" {
			return &ValidationError{Err: fmt.Errorf("options: %w", ErrEmptyName)}
		}
		if option.Name == JobNameKey {
			return &ValidationError{Option: option.Name, Err: ErrReservedOption}
		}
		if seen[option.Name] {
			return &ValidationError{Option: option.Name, Err: ErrDuplicateOption}
		}
		seen[option.Name] = true

		values, isList := asList(option.Value)
		if !isList {
			values = []any{option.Value}
		} else if len(values) == 0 {
			return &ValidationError{Option: option.Name, Err: ErrNoCandidates}
		}
		for _, value := range values {
			if err := checkScalar(value); err != nil {
				return &ValidationError{Option: option.Name, Err: err}
			}
		}
	}

	return nil
}

// Normalized is a validated grid where every option holds a non-empty list of
// candidates. It shares nothing with the grid it was built from.
type Normalized struct {
	names  []string
	values [][]any
}

// Normalize validates the grid and returns a normalized copy, turning every
// scalar into a single-element list.
func (g Grid) Normalize() (Normalized, error) {
	if err := g.Validate(); err != nil {
		return Normalized{}, err
	}

	n := Normalized{
		names:  make([]string, len(g)),
		values: make([][]any, len(g)),
	}
	for i, option := range g {
		n.names[i] = option.Name
		if values, ok := asList(option.Value); ok {
			n.values[i] = values
		} else {
			n.values[i] = []any{option.Value}
		}
	}
	return n, nil
}

func (n Normalized) Names() []string {
	return append([]string(nil), n.names...)
}

// Candidates returns a copy of the candidate list of the named option.
func (n Normalized) Candidates(name string) ([]any, bool) {
	i := lo.IndexOf(n.names, name)
	if i < 0 {
		return nil, false
	}
	return append([]any(nil), n.values[i]...), true
}

// Count is the number of combinations the grid expands to. It saturates at
// math.MaxInt.
func (n Normalized) Count() int {
	if len(n.values) == 0 {
		return 0
	}
	return lo.Reduce(n.values, func(count int, values []any, _ int) int {
		if count > math.MaxInt/len(values) {
			return math.MaxInt
		}
		return count * len(values)
	}, 1)
}

// IsScalar reports whether v is a value a job configuration can hold.
func IsScalar(v any) bool {
	switch v.(type) {
	case string, bool,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64:
		return true
	}
	return false
}

// checkScalar is IsScalar with the reason of the rejection. NaN and infinite
// numbers have no JSON encoding.
func checkScalar(v any) error {
	if !IsScalar(v) {
		return ErrNotScalar
	}
	switch f := v.(type) {
	case float32:
		if math.IsNaN(float64(f)) || math.IsInf(float64(f), 0) {
			return ErrNotFinite
		}
	case float64:
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return ErrNotFinite
		}
	}
	return nil
}

// asList returns the elements of v when v is a slice or an array. Byte slices
// are not candidate lists.
func asList(v any) ([]any, bool) {
	switch values := v.(type) {
	case []any:
		return append([]any(nil), values...), true
	case []byte:
		return nil, false
	}
	rv := reflect.ValueOf(v)
	if !rv.IsValid() {
		return nil, false
	}
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		values := make([]any, rv.Len())
		for i := range values {
			values[i] = rv.Index(i).Interface()
		}
		return values, true
	}
	return nil, false
}
