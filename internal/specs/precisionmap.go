package specs

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"martianoff/roundel/internal/frontend"
	"martianoff/roundel/precision"
)

// PrecisionMap assigns a precision to every identifier: a uniform default
// with optional per-variable overrides from a mixed-precision file.
type PrecisionMap struct {
	Default precision.Precision
	byName  map[string]precision.Precision
}

// NewPrecisionMap creates a uniform assignment.
func NewPrecisionMap(def precision.Precision) *PrecisionMap {
	return &PrecisionMap{Default: def}
}

// For returns the precision assigned to id.
func (m *PrecisionMap) For(id *frontend.Identifier) precision.Precision {
	if p, ok := m.byName[id.Name()]; ok {
		return p
	}
	return m.Default
}

// Override assigns a precision to every identifier with the given name.
func (m *PrecisionMap) Override(name string, p precision.Precision) {
	if m.byName == nil {
		m.byName = make(map[string]precision.Precision)
	}
	m.byName[name] = p
}

// LoadMixedPrecision reads a YAML file mapping variable names to precision
// names and merges it over the map:
//
//	u: float32
//	t: fixed16
func (m *PrecisionMap) LoadMixedPrecision(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading mixed-precision file: %w", err)
	}
	return m.MergeMixedPrecision(data)
}

// MergeMixedPrecision parses YAML mixed-precision content and merges it.
func (m *PrecisionMap) MergeMixedPrecision(data []byte) error {
	var raw map[string]string
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("parsing mixed-precision file: %w", err)
	}
	for name, ps := range raw {
		p, err := precision.Parse(ps)
		if err != nil {
			return fmt.Errorf("mixed-precision entry %q: %w", name, err)
		}
		m.Override(name, p)
	}
	return nil
}
