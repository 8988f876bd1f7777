package gridfile

import (
	"github.com/gammadia/batcher/grid"
	"github.com/samber/lo"
)

// Default returns the grid used when no gridfile is given. Quick mode keeps
// every cardinality at its smallest so a batch can be smoke tested.
func Default(quick bool) grid.Grid {
	return grid.Grid{
		{Name: "n_arm", Value: 2},
		{Name: "n_iter", Value: lo.Ternary(quick, 2, 200)},
		{Name: "n_roll", Value: lo.Ternary(quick, 2, 1000)},
		{Name: "n_sim", Value: lo.Ternary(quick, 2, 10000)},
		{Name: "obs_sigma", Value: []any{5}},
		{Name: "sample_cost", Value: []any{0.002}},
		{Name: "switch_cost", Value: []any{1, 8}},
		{Name: "seed", Value: lo.Ternary[any](quick, 0, []any{1, 2})},
	}
}
