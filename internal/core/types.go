package core

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// ActiveKey is the reserved ParameterSet key carrying the isActive flag.
const ActiveKey = "isActive"

// Parameter is a single editable strategy input.
type Parameter struct {
	Name        string
	Value       any // float64 or string
	Description string
	Step        *float64
}

// ParameterSet is one ordered snapshot of editable strategy inputs.
type ParameterSet struct {
	Params   []Parameter
	IsActive bool
}

type parameterJSON struct {
	Value       any      `json:"value"`
	Description string   `json:"description,omitempty"`
	Step        *float64 `json:"step,omitempty"`
}

// NewParameterSet builds a set from params, normalizing numeric values to float64.
func NewParameterSet(params ...Parameter) ParameterSet {
	var ps ParameterSet
	for _, p := range params {
		ps.Set(p)
	}
	return ps
}

// Len returns the number of parameters.
func (ps ParameterSet) Len() int { return len(ps.Params) }

// Names returns the parameter names in order.
func (ps ParameterSet) Names() []string {
	names := make([]string, len(ps.Params))
	for i, p := range ps.Params {
		names[i] = p.Name
	}
	return names
}

// Get returns the parameter with the given name.
func (ps ParameterSet) Get(name string) (Parameter, bool) {
	for _, p := range ps.Params {
		if p.Name == name {
			return p, true
		}
	}
	return Parameter{}, false
}

// Set replaces the parameter with the same name in place, or appends it.
func (ps *ParameterSet) Set(p Parameter) {
	p.Value = normalizeScalar(p.Value)
	for i := range ps.Params {
		if ps.Params[i].Name == p.Name {
			ps.Params[i] = p
			return
		}
	}
	ps.Params = append(ps.Params, p)
}

// SetValue updates only the value of an existing parameter.
func (ps *ParameterSet) SetValue(name string, value any) bool {
	for i := range ps.Params {
		if ps.Params[i].Name == name {
			ps.Params[i].Value = normalizeScalar(value)
			return true
		}
	}
	return false
}

// Clone returns a deep copy.
func (ps ParameterSet) Clone() ParameterSet {
	out := ParameterSet{IsActive: ps.IsActive}
	if ps.Params != nil {
		out.Params = make([]Parameter, len(ps.Params))
	}
	for i, p := range ps.Params {
		if p.Step != nil {
			step := *p.Step
			p.Step = &step
		}
		out.Params[i] = p
	}
	return out
}

// WithActive returns a copy with the isActive flag set.
func (ps ParameterSet) WithActive(active bool) ParameterSet {
	out := ps.Clone()
	out.IsActive = active
	return out
}

// Values strips description, step and isActive, leaving raw name -> value pairs.
func (ps ParameterSet) Values() map[string]any {
	values := make(map[string]any, len(ps.Params))
	for _, p := range ps.Params {
		values[p.Name] = p.Value
	}
	return values
}

// Equal reports whether both sets hold the same parameters in the same
// order. The isActive flag is ignored.
func (ps ParameterSet) Equal(other ParameterSet) bool {
	if len(ps.Params) != len(other.Params) {
		return false
	}
	for i, p := range ps.Params {
		o := other.Params[i]
		if p.Name != o.Name || p.Description != o.Description {
			return false
		}
		if normalizeScalar(p.Value) != normalizeScalar(o.Value) {
			return false
		}
		if (p.Step == nil) != (o.Step == nil) {
			return false
		}
		if p.Step != nil && *p.Step != *o.Step {
			return false
		}
	}
	return true
}

// MarshalJSON writes the parameters as one object in order, followed by isActive.
func (ps ParameterSet) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for _, p := range ps.Params {
		key, err := json.Marshal(p.Name)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(parameterJSON{Value: p.Value, Description: p.Description, Step: p.Step})
		if err != nil {
			return nil, fmt.Errorf("parameter %q: %w", p.Name, err)
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
		buf.WriteByte(',')
	}
	fmt.Fprintf(&buf, "%q:%t}", ActiveKey, ps.IsActive)
	return buf.Bytes(), nil
}

// UnmarshalJSON reads an object of parameters, keeping key order. Keys whose
// value is not an object (e.g. a "preset" label) are skipped.
func (ps *ParameterSet) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("parameter set: expected object")
	}

	out := ParameterSet{}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key := tok.(string)

		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return fmt.Errorf("parameter %q: %w", key, err)
		}

		if key == ActiveKey {
			if err := json.Unmarshal(raw, &out.IsActive); err != nil {
				return fmt.Errorf("%s: %w", ActiveKey, err)
			}
			continue
		}

		trimmed := bytes.TrimSpace(raw)
		if len(trimmed) == 0 || trimmed[0] != '{' {
			continue
		}

		var p parameterJSON
		if err := json.Unmarshal(trimmed, &p); err != nil {
			return fmt.Errorf("parameter %q: %w", key, err)
		}
		switch p.Value.(type) {
		case float64, string:
		default:
			return fmt.Errorf("parameter %q: value must be a number or string", key)
		}
		out.Set(Parameter{Name: key, Value: p.Value, Description: p.Description, Step: p.Step})
	}

	if _, err := dec.Token(); err != nil {
		return err
	}
	*ps = out
	return nil
}

func normalizeScalar(v any) any {
	switch n := v.(type) {
	case int:
		return float64(n)
	case int32:
		return float64(n)
	case int64:
		return float64(n)
	case float32:
		return float64(n)
	case uint:
		return float64(n)
	case json.Number:
		if f, err := n.Float64(); err == nil {
			return f
		}
		return n.String()
	}
	return v
}
