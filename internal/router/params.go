package router

import "maps"

// Params holds the placeholder values captured by a matched pattern.
// A Params value is never modified after dispatch returns it.
type Params struct {
	values map[string]string
}

// NewParams returns Params holding a copy of values.
func NewParams(values map[string]string) Params {
	return Params{values: maps.Clone(values)}
}

// Has reports whether name was captured.
func (p Params) Has(name string) bool {
	_, ok := p.values[name]
	return ok
}

// Get returns the captured value for name, or def if absent.
func (p Params) Get(name, def string) string {
	if v, ok := p.values[name]; ok {
		return v
	}
	return def
}

// Len returns the number of captured parameters.
func (p Params) Len() int {
	return len(p.values)
}

// Map returns a copy of the captured values.
func (p Params) Map() map[string]string {
	if p.values == nil {
		return map[string]string{}
	}
	return maps.Clone(p.values)
}
