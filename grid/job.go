package grid

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/samber/lo"
	"gopkg.in/yaml.v3"
)

// Job is one combination of the grid: every option bound to a single value.
// A Job is immutable, With returns a modified copy.
type Job struct {
	names  []string
	values []any
}

// NewJob builds a job from its fields, in order. A repeated name replaces the
// earlier value.
func NewJob(fields ...Option) Job {
	var job Job
	for _, field := range fields {
		job = job.With(field.Name, field.Value)
	}
	return job
}

func (j Job) Len() int {
	return len(j.names)
}

func (j Job) Names() []string {
	return append([]string(nil), j.names...)
}

func (j Job) Get(name string) (any, bool) {
	i := lo.IndexOf(j.names, name)
	if i < 0 {
		return nil, false
	}
	return j.values[i], true
}

// With returns a copy of the job where name is bound to value.
func (j Job) With(name string, value any) Job {
	out := Job{
		names:  append(make([]string, 0, len(j.names)+1), j.names...),
		values: append(make([]any, 0, len(j.values)+1), j.values...),
	}
	if i := lo.IndexOf(out.names, name); i >= 0 {
		out.values[i] = value
		return out
	}
	out.names = append(out.names, name)
	out.values = append(out.values, value)
	return out
}

// Map returns the fields of the job as a plain map.
func (j Job) Map() map[string]any {
	m := make(map[string]any, len(j.names))
	for i, name := range j.names {
		m[name] = j.values[i]
	}
	return m
}

func (j Job) Equal(other Job) bool {
	if len(j.names) != len(other.names) {
		return false
	}
	for i := range j.names {
		if j.names[i] != other.names[i] || j.values[i] != other.values[i] {
			return false
		}
	}
	return true
}

// MarshalJSON encodes the job as an object whose keys keep the job order.
func (j Job) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, name := range j.names {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(name)
		if err != nil {
			return nil, err
		}
		value, err := json.Marshal(j.values[i])
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(value)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes a flat object of scalars. Integral numbers decode to
// int64, or uint64 above math.MaxInt64, other numbers to float64.
func (j *Job) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	if tok, err := dec.Token(); err != nil {
		return err
	} else if tok != json.Delim('{') {
		return fmt.Errorf("job must be a JSON object")
	}

	var job Job
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		name := tok.(string)

		if tok, err = dec.Token(); err != nil {
			return err
		}
		var value any
		switch v := tok.(type) {
		case json.Delim:
			return fmt.Errorf("job[%s] must be a scalar", name)
		case json.Number:
			if i, err := v.Int64(); err == nil {
				value = i
			} else if u, err := strconv.ParseUint(v.String(), 10, 64); err == nil {
				value = u
			} else if value, err = v.Float64(); err != nil {
				return fmt.Errorf("job[%s]: %w", name, err)
			}
		default:
			value = v
		}
		job = job.With(name, value)
	}

	if _, err := dec.Token(); err != nil {
		return err
	}
	if _, err := dec.Token(); err != io.EOF {
		return fmt.Errorf("unexpected data after job object")
	}

	*j = job
	return nil
}

// MarshalYAML encodes the job as a mapping whose keys keep the job order.
func (j Job) MarshalYAML() (any, error) {
	node := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
	for i, name := range j.names {
		var key, value yaml.Node
		if err := key.Encode(name); err != nil {
			return nil, err
		}
		if err := value.Encode(j.values[i]); err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		node.Content = append(node.Content, &key, &value)
	}
	return node, nil
}
