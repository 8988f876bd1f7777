package grid

import (
	"errors"
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var validatetests = []struct {
	name     string
	grid     Grid
	expected string
}{
	{"scalars", Grid{{"a", 1}, {"b", "x"}, {"c", true}, {"d", 0.5}}, ""},
	{"lists", Grid{{"a", []any{1, 2}}, {"b", []string{"x", "y"}}}, ""},
	{"array", Grid{{"a", [2]int{1, 2}}}, ""},

	{"empty grid", Grid{}, "grid has no options"},
	{"empty name", Grid{{"", 1}}, "options: name is required"},
	{"duplicate", Grid{{"a", 1}, {"a", 2}}, "options[a] is defined more than once"},
	{"reserved", Grid{{"job_name", "x"}}, "options[job_name] is reserved"},
	{"empty list", Grid{{"a", 1}, {"b", []any{}}}, "options[b] must not be an empty list"},
	{"nil value", Grid{{"a", nil}}, "options[a] must be a scalar or a list of scalars"},
	{"nested list", Grid{{"a", []any{1, []any{2}}}}, "options[a] must be a scalar or a list of scalars"},
	{"map value", Grid{{"a", map[string]any{"x": 1}}}, "options[a] must be a scalar or a list of scalars"},
	{"bytes", Grid{{"a", []byte("raw")}}, "options[a] must be a scalar or a list of scalars"},
	{"nan candidate", Grid{{"a", []any{1.0, math.NaN()}}}, "options[a] must not hold NaN or infinite numbers"},
	{"infinite scalar", Grid{{"a", math.Inf(1)}}, "options[a] must not hold NaN or infinite numbers"},
	{"infinite float32", Grid{{"a", []float32{float32(math.Inf(-1))}}}, "options[a] must not hold NaN or infinite numbers"},
}

func TestGridValidate(t *testing.T) {
	for _, tt := range validatetests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.grid.Validate()
			if tt.expected == "" {
				assert.NoError(t, err)
				return
			}

			require.Error(t, err)
			assert.Equal(t, tt.expected, err.Error())

			var validationErr *ValidationError
			assert.True(t, errors.As(err, &validationErr))
		})
	}
}

func TestGridValidateSentinels(t *testing.T) {
	assert.ErrorIs(t, Grid{}.Validate(), ErrEmptyGrid)
	assert.ErrorIs(t, Grid{{"a", []int{}}}.Validate(), ErrNoCandidates)
	assert.ErrorIs(t, Grid{{"a", 1}, {"a", 1}}.Validate(), ErrDuplicateOption)
	assert.ErrorIs(t, Grid{{JobNameKey, 1}}.Validate(), ErrReservedOption)
	assert.ErrorIs(t, Grid{{"a", struct{}{}}}.Validate(), ErrNotScalar)
	assert.ErrorIs(t, Grid{{"a", math.NaN()}}.Validate(), ErrNotFinite)
}

func TestNormalizeDoesNotAliasInput(t *testing.T) {
	values := []any{1, 2}
	g := Grid{{"a", values}, {"b", 5}}

	n, err := g.Normalize()
	require.NoError(t, err)

	values[0] = 42
	candidates, ok := n.Candidates("a")
	require.True(t, ok)
	assert.Equal(t, []any{1, 2}, candidates)

	// The input grid still holds its scalar
	assert.Equal(t, 5, g[1].Value)
	candidates, _ = n.Candidates("b")
	assert.Equal(t, []any{5}, candidates)
}

func TestNormalizeCount(t *testing.T) {
	n, err := Grid{{"a", []int{1, 2, 3}}, {"b", 5}, {"c", []string{"x", "y"}}}.Normalize()
	require.NoError(t, err)
	assert.Equal(t, 6, n.Count())
	assert.Equal(t, []string{"a", "b", "c"}, n.Names())

	_, ok := n.Candidates("missing")
	assert.False(t, ok)
}

func TestNormalizeCountSaturates(t *testing.T) {
	g := make(Grid, 64)
	for i := range g {
		g[i] = Option{Name: fmt.Sprintf("flag_%d", i), Value: []any{0, 1}}
	}

	n, err := g.Normalize()
	require.NoError(t, err)
	assert.Equal(t, math.MaxInt, n.Count())

	produced := 0
	for range n.All() {
		produced++
		if produced == 3 {
			break
		}
	}
	assert.Equal(t, 3, produced)
}

func TestZeroNormalizedIsEmpty(t *testing.T) {
	var n Normalized
	assert.Equal(t, 0, n.Count())
	for range n.All() {
		t.Fatal("zero value must not produce jobs")
	}
}

func TestGridWith(t *testing.T) {
	g := Grid{{"a", 1}, {"b", 2}}

	replaced := g.With("a", []int{3, 4})
	assert.Equal(t, Grid{{"a", []int{3, 4}}, {"b", 2}}, replaced)
	assert.Equal(t, 1, g[0].Value, "With must not modify the receiver")

	added := g.With("c", 3)
	assert.Equal(t, []string{"a", "b", "c"}, added.Names())
	assert.Len(t, g, 2)
}
