package grid

import (
	"encoding/json"
	"math"
	"slices"
	"testing"

	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func collect(t *testing.T, g Grid) []Job {
	t.Helper()
	jobs, err := Expand(g)
	require.NoError(t, err)
	return slices.Collect(jobs)
}

func TestExpandMixedScalarAndList(t *testing.T) {
	jobs := collect(t, Grid{{"a", []any{1, 2}}, {"b", 5}})

	require.Len(t, jobs, 2)
	assert.Equal(t, map[string]any{"a": 1, "b": 5}, jobs[0].Map())
	assert.Equal(t, map[string]any{"a": 2, "b": 5}, jobs[1].Map())
}

func TestExpandLastKeyFastest(t *testing.T) {
	jobs := collect(t, Grid{{"x", []string{"a", "b"}}, {"y", []int{1, 2, 3}}})

	got := lo.Map(jobs, func(j Job, _ int) []any {
		x, _ := j.Get("x")
		y, _ := j.Get("y")
		return []any{x, y}
	})
	assert.Equal(t, [][]any{
		{"a", 1}, {"a", 2}, {"a", 3},
		{"b", 1}, {"b", 2}, {"b", 3},
	}, got)
}

func TestExpandCountIsProductOfLengths(t *testing.T) {
	grids := []Grid{
		{{"a", 1}},
		{{"a", []int{1, 2}}, {"b", []int{1, 2, 3}}},
		{{"a", []int{1, 2}}, {"b", "s"}, {"c", []float64{0.1, 0.2, 0.3, 0.4}}, {"d", []bool{true, false}}},
	}
	for _, g := range grids {
		n, err := g.Normalize()
		require.NoError(t, err)

		expected := 1
		for _, o := range g {
			if values, ok := asList(o.Value); ok {
				expected *= len(values)
			}
		}

		assert.Equal(t, expected, n.Count())
		assert.Len(t, collect(t, g), expected)
	}
}

func TestExpandJobsHoldExactlyGridKeys(t *testing.T) {
	g := Grid{{"lr", []float64{0.1, 0.01}}, {"seed", []int{1, 2, 3}}, {"model", "mlp"}}
	n, err := g.Normalize()
	require.NoError(t, err)

	for _, job := range collect(t, g) {
		assert.Equal(t, g.Names(), job.Names())
		for _, name := range job.Names() {
			value, _ := job.Get(name)
			candidates, _ := n.Candidates(name)
			assert.Contains(t, candidates, value)
		}
	}
}

func TestExpandIsDeterministic(t *testing.T) {
	g := Grid{{"a", []int{3, 1, 2}}, {"b", []string{"z", "y"}}, {"c", 7}}
	first := collect(t, g)
	second := collect(t, g)

	require.Len(t, second, len(first))
	for i := range first {
		assert.True(t, first[i].Equal(second[i]), "job %d differs", i+1)
	}
}

func TestExpandSequenceRestarts(t *testing.T) {
	jobs, err := Expand(Grid{{"a", []int{1, 2, 3}}})
	require.NoError(t, err)

	assert.Len(t, slices.Collect(jobs), 3)
	assert.Len(t, slices.Collect(jobs), 3)
}

func TestExpandScalarEqualsSingleton(t *testing.T) {
	scalar := collect(t, Grid{{"a", []int{1, 2}}, {"b", 5}})
	singleton := collect(t, Grid{{"a", []int{1, 2}}, {"b", []any{5}}})

	require.Len(t, singleton, len(scalar))
	for i := range scalar {
		assert.True(t, scalar[i].Equal(singleton[i]))
	}
}

func TestExpandAllScalars(t *testing.T) {
	jobs := collect(t, Grid{{"a", 1}, {"b", "x"}, {"c", 2.5}})
	require.Len(t, jobs, 1)
	assert.Equal(t, map[string]any{"a": 1, "b": "x", "c": 2.5}, jobs[0].Map())
}

func TestExpandFailsBeforeProducing(t *testing.T) {
	jobs, err := Expand(Grid{{"a", []int{1, 2}}, {"b", []int{}}})
	assert.ErrorIs(t, err, ErrNoCandidates)
	assert.Nil(t, jobs)
}

func TestExpandEarlyBreak(t *testing.T) {
	jobs, err := Expand(Grid{{"a", []int{1, 2, 3, 4}}})
	require.NoError(t, err)

	seen := 0
	for range jobs {
		seen++
		if seen == 2 {
			break
		}
	}
	assert.Equal(t, 2, seen)
}

func TestEnumerateIsContiguousFromOne(t *testing.T) {
	jobs, err := Expand(Grid{{"a", []int{1, 2}}, {"b", []int{1, 2, 3}}})
	require.NoError(t, err)

	var indices []int
	for index := range Enumerate(jobs) {
		indices = append(indices, index)
	}
	assert.Equal(t, []int{1, 2, 3, 4, 5, 6}, indices)
}

func TestJobWithDoesNotModifyReceiver(t *testing.T) {
	job := collect(t, Grid{{"a", 1}})[0]

	named := job.With(JobNameKey, "bandit")
	assert.Equal(t, 1, job.Len())
	assert.Equal(t, []string{"a", JobNameKey}, named.Names())

	renamed := named.With(JobNameKey, "other")
	value, _ := named.Get(JobNameKey)
	assert.Equal(t, "bandit", value)
	value, _ = renamed.Get(JobNameKey)
	assert.Equal(t, "other", value)
}

func TestJobJSONKeepsOrder(t *testing.T) {
	job := NewJob(Option{"z", 1}, Option{"a", 0.002}, Option{"m", "x"}, Option{JobNameKey, "bandit"})

	buf, err := json.Marshal(job)
	require.NoError(t, err)
	assert.Equal(t, `{"z":1,"a":0.002,"m":"x","job_name":"bandit"}`, string(buf))
}

func TestJobJSONNumberFidelity(t *testing.T) {
	var job Job
	require.NoError(t, json.Unmarshal([]byte(`{"n_iter":200,"sample_cost":0.002,"big":1e3,"name":"x","on":true}`), &job))

	assert.Equal(t, []string{"n_iter", "sample_cost", "big", "name", "on"}, job.Names())
	assert.Equal(t, map[string]any{
		"n_iter":      int64(200),
		"sample_cost": 0.002,
		"big":         float64(1000),
		"name":        "x",
		"on":          true,
	}, job.Map())
}

var numbertests = []struct {
	name     string
	input    string
	expected any
}{
	{"int64", `{"a":-9223372036854775808}`, int64(math.MinInt64)},
	{"uint64 above int64", `{"a":18446744073709551615}`, uint64(math.MaxUint64)},
	{"beyond uint64", `{"a":18446744073709551616}`, float64(1 << 64)},
	{"fraction", `{"a":0.5}`, 0.5},
}

func TestJobJSONIntegerRange(t *testing.T) {
	for _, tt := range numbertests {
		t.Run(tt.name, func(t *testing.T) {
			var job Job
			require.NoError(t, json.Unmarshal([]byte(tt.input), &job))
			assert.Equal(t, tt.expected, job.Map()["a"])

			buf, err := json.Marshal(job)
			require.NoError(t, err)
			assert.JSONEq(t, tt.input, string(buf))
		})
	}
}

func TestJobJSONRejectsNested(t *testing.T) {
	var job Job
	assert.EqualError(t, json.Unmarshal([]byte(`{"a":[1,2]}`), &job), "job[a] must be a scalar")
	assert.Error(t, json.Unmarshal([]byte(`[1]`), &job))
}

func TestJobYAMLKeepsOrder(t *testing.T) {
	job := NewJob(Option{"seed", 2}, Option{"obs_sigma", 5}, Option{JobNameKey, "bandit"})

	buf, err := yaml.Marshal(job)
	require.NoError(t, err)
	assert.Equal(t, "seed: 2\nobs_sigma: 5\njob_name: bandit\n", string(buf))
}
