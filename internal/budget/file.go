package budget

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// ErrEmptyBudgetFile is returned when a budget file defines no rules
var ErrEmptyBudgetFile = errors.New("budget file defines no rules")

// fileFormat is the YAML layout of a budget file:
//
//	budgets:
//	  - metric: largest_contentful_paint
//	    threshold: 2500
//	    direction: below
type fileFormat struct {
	Budgets []Rule `yaml:"budgets"`
}

// LoadFile reads rules from a YAML budget file
func LoadFile(path string) ([]Rule, error) {
	// #nosec G304 - path is provided by the user on the command line
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read budget file %s: %w", path, err)
	}

	rules, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("invalid budget file %s: %w", path, err)
	}
	return rules, nil
}

// Parse decodes and validates YAML budget rules. A direction may be omitted,
// in which case the metric's natural direction is used.
func Parse(data []byte) ([]Rule, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var f fileFormat
	if err := dec.Decode(&f); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, ErrEmptyBudgetFile
		}
		return nil, err
	}
	if len(f.Budgets) == 0 {
		return nil, ErrEmptyBudgetFile
	}

	for i := range f.Budgets {
		if f.Budgets[i].Direction == "" {
			f.Budgets[i].Direction = knownMetrics[f.Budgets[i].Metric]
		}
		if err := f.Budgets[i].Validate(); err != nil {
			return nil, fmt.Errorf("budget %d: %w", i+1, err)
		}
	}
	return f.Budgets, nil
}
