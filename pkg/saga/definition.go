package saga

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// StepFunc runs a step. The returned map is merged into the saga data and
// is visible to later steps and to compensations.
type StepFunc func(ctx context.Context, data map[string]interface{}) (map[string]interface{}, error)

// CompensateFunc undoes a completed step.
type CompensateFunc func(ctx context.Context, data map[string]interface{}) error

// Step is one unit of a saga
type Step struct {
	Name        string
	Description string
	Execute     StepFunc
	// Compensate may be nil when the step has nothing to undo.
	Compensate CompensateFunc
	Timeout    time.Duration
	Retries    int
	// Optional steps log their failure and let the saga continue.
	Optional bool
}

// Definition is an ordered list of steps
type Definition struct {
	Name        string
	Description string
	Timeout     time.Duration
	Steps       []*Step
}

// NewDefinition creates an empty definition
func NewDefinition(name, description string) *Definition {
	return &Definition{Name: name, Description: description}
}

// WithTimeout bounds the whole forward run
func (d *Definition) WithTimeout(timeout time.Duration) *Definition {
	d.Timeout = timeout
	return d
}

// AddStep appends a step
func (d *Definition) AddStep(step *Step) *Definition {
	d.Steps = append(d.Steps, step)
	return d
}

// Validate checks names and functions
func (d *Definition) Validate() error {
	if d.Name == "" {
		return errors.New("saga definition name is required")
	}
	if len(d.Steps) == 0 {
		return fmt.Errorf("saga %s has no steps", d.Name)
	}
	seen := make(map[string]bool, len(d.Steps))
	for i, s := range d.Steps {
		if s == nil || s.Name == "" {
			return fmt.Errorf("saga %s step %d has no name", d.Name, i)
		}
		if s.Execute == nil {
			return fmt.Errorf("saga %s step %s has no Execute", d.Name, s.Name)
		}
		if seen[s.Name] {
			return fmt.Errorf("saga %s has duplicate step %s", d.Name, s.Name)
		}
		seen[s.Name] = true
	}
	return nil
}
