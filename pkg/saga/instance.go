package saga

import (
	"context"
	"errors"
	"time"
)

// Status is the lifecycle status of a saga instance
type Status string

const (
	StatusRunning      Status = "RUNNING"
	StatusCompleted    Status = "COMPLETED"
	StatusCompensating Status = "COMPENSATING"
	StatusCompensated  Status = "COMPENSATED"
	// StatusFailed means a compensation itself failed; manual cleanup is needed.
	StatusFailed Status = "FAILED"
)

// IsTerminal returns true if no further transitions happen
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusCompensated || s == StatusFailed
}

// StepStatus is the outcome of one step
type StepStatus string

const (
	StepStatusCompleted   StepStatus = "COMPLETED"
	StepStatusFailed      StepStatus = "FAILED"
	StepStatusSkipped     StepStatus = "SKIPPED" // optional step failed, saga continued
	StepStatusCompensated StepStatus = "COMPENSATED"
	StepStatusCompFailed  StepStatus = "COMPENSATION_FAILED"
)

var (
	ErrInstanceNotFound   = errors.New("saga instance not found")
	ErrDefinitionNotFound = errors.New("saga definition not found")
	ErrDuplicateInstance  = errors.New("saga instance already exists")
)

// StepResult records one step attempt sequence
type StepResult struct {
	StepName    string     `json:"step_name"`
	Status      StepStatus `json:"status"`
	Attempts    int        `json:"attempts"`
	Error       string     `json:"error,omitempty"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Instance is one execution of a Definition
type Instance struct {
	ID             string                 `json:"id"`
	DefinitionName string                 `json:"definition_name"`
	Status         Status                 `json:"status"`
	Data           map[string]interface{} `json:"data"`
	StepResults    []StepResult           `json:"step_results"`
	ErrorMessage   string                 `json:"error_message,omitempty"`
	CreatedAt      time.Time              `json:"created_at"`
	UpdatedAt      time.Time              `json:"updated_at"`
	CompletedAt    *time.Time             `json:"completed_at,omitempty"`
}

// Result returns the recorded result for a step, if any
func (i *Instance) Result(step string) (StepResult, bool) {
	for _, r := range i.StepResults {
		if r.StepName == step {
			return r, true
		}
	}
	return StepResult{}, false
}

func (i *Instance) clone() *Instance {
	c := *i
	c.Data = make(map[string]interface{}, len(i.Data))
	for k, v := range i.Data {
		c.Data[k] = v
	}
	c.StepResults = append([]StepResult(nil), i.StepResults...)
	if i.CompletedAt != nil {
		t := *i.CompletedAt
		c.CompletedAt = &t
	}
	return &c
}

// Store persists saga instances
type Store interface {
	Save(ctx context.Context, instance *Instance) error
	Get(ctx context.Context, id string) (*Instance, error)
	Update(ctx context.Context, instance *Instance) error
	ListByStatus(ctx context.Context, status Status, limit int) ([]*Instance, error)
}
