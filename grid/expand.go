package grid

import (
	"iter"
)

// Expand validates the grid and returns the lazy sequence of every
// combination of its candidate values.
//
// Combinations follow the lexicographic product over the grid order, the last
// option varying fastest. Ranging over the sequence again restarts it from the
// first combination.
func Expand(g Grid) (iter.Seq[Job], error) {
	n, err := g.Normalize()
	if err != nil {
		return nil, err
	}
	return n.All(), nil
}

// All returns the sequence of combinations of the normalized grid.
func (n Normalized) All() iter.Seq[Job] {
	return func(yield func(Job) bool) {
		if len(n.values) == 0 {
			return
		}

		cursor := make([]int, len(n.values))
		for {
			values := make([]any, len(cursor))
			for i, c := range cursor {
				values[i] = n.values[i][c]
			}
			if !yield(Job{names: n.names, values: values}) {
				return
			}

			// Odometer step, rightmost position first
			i := len(cursor) - 1
			for ; i >= 0; i-- {
				if cursor[i]++; cursor[i] < len(n.values[i]) {
					break
				}
				cursor[i] = 0
			}
			if i < 0 {
				return
			}
		}
	}
}

// Enumerate pairs every job of the sequence with its 1-based position.
func Enumerate(jobs iter.Seq[Job]) iter.Seq2[int, Job] {
	return func(yield func(int, Job) bool) {
		index := 0
		for job := range jobs {
			index++
			if !yield(index, job) {
				return
			}
		}
	}
}
