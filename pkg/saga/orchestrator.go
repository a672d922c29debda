package saga

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prohmpiriya/gym-platform/pkg/logger"
	"go.uber.org/zap"
)

// ExecutionError is returned when a required step fails. Unwrap yields the
// step's own error so callers can classify it.
type ExecutionError struct {
	Step             string
	Err              error
	CompensationErrs map[string]error
}

func (e *ExecutionError) Error() string {
	if len(e.CompensationErrs) > 0 {
		return fmt.Sprintf("saga step %s failed: %v (%d compensations failed)", e.Step, e.Err, len(e.CompensationErrs))
	}
	return fmt.Sprintf("saga step %s failed: %v", e.Step, e.Err)
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}

// OrchestratorConfig configures an Orchestrator
type OrchestratorConfig struct {
	Store  Store
	Logger *logger.Logger
	// RetryBackoff is the pause between step retries.
	RetryBackoff time.Duration
	// CompensationTimeout bounds each compensation, which runs on a context
	// detached from the caller's cancellation.
	CompensationTimeout time.Duration
}

// Orchestrator runs registered definitions in-process
type Orchestrator struct {
	config      *OrchestratorConfig
	log         *logger.Logger
	mu          sync.RWMutex
	definitions map[string]*Definition
}

// NewOrchestrator creates an orchestrator. A nil Store defaults to memory.
func NewOrchestrator(config *OrchestratorConfig) *Orchestrator {
	if config == nil {
		config = &OrchestratorConfig{}
	}
	if config.Store == nil {
		config.Store = NewMemoryStore()
	}
	if config.RetryBackoff <= 0 {
		config.RetryBackoff = 100 * time.Millisecond
	}
	if config.CompensationTimeout <= 0 {
		config.CompensationTimeout = 30 * time.Second
	}
	log := config.Logger
	if log == nil {
		log = logger.Nop()
	}
	return &Orchestrator{
		config:      config,
		log:         log.Named("saga"),
		definitions: make(map[string]*Definition),
	}
}

// RegisterDefinition validates and stores def under its name
func (o *Orchestrator) RegisterDefinition(def *Definition) error {
	if def == nil {
		return errors.New("nil saga definition")
	}
	if err := def.Validate(); err != nil {
		return err
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	o.definitions[def.Name] = def
	return nil
}

// Execute runs the named saga to completion or full compensation. The
// instance is returned in both cases; err is an *ExecutionError when a
// required step failed.
func (o *Orchestrator) Execute(ctx context.Context, name string, data map[string]interface{}) (*Instance, error) {
	o.mu.RLock()
	def, ok := o.definitions[name]
	o.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrDefinitionNotFound, name)
	}

	now := time.Now().UTC()
	inst := &Instance{
		ID:             uuid.NewString(),
		DefinitionName: name,
		Status:         StatusRunning,
		Data:           make(map[string]interface{}, len(data)),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	for k, v := range data {
		inst.Data[k] = v
	}
	if err := o.config.Store.Save(ctx, inst); err != nil {
		return nil, fmt.Errorf("save saga instance: %w", err)
	}

	log := o.log.WithContext(ctx).WithFields(zap.String("saga", name), zap.String("instance_id", inst.ID))

	runCtx := ctx
	if def.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, def.Timeout)
		defer cancel()
	}

	completed := make([]*Step, 0, len(def.Steps))
	for _, step := range def.Steps {
		log.Info("saga step started", zap.String("step", step.Name))
		result, out, err := o.runStep(runCtx, step, inst.Data)
		if err == nil {
			for k, v := range out {
				inst.Data[k] = v
			}
			inst.StepResults = append(inst.StepResults, result)
			completed = append(completed, step)
			o.persist(ctx, inst, log)
			log.Info("saga step completed", zap.String("step", step.Name), zap.Int("attempts", result.Attempts))
			continue
		}

		if step.Optional {
			result.Status = StepStatusSkipped
			inst.StepResults = append(inst.StepResults, result)
			o.persist(ctx, inst, log)
			log.Warn("optional saga step failed, continuing", zap.String("step", step.Name), zap.Error(err))
			continue
		}

		inst.StepResults = append(inst.StepResults, result)
		inst.ErrorMessage = err.Error()
		log.Error("saga step failed, compensating", zap.String("step", step.Name), zap.Error(err))

		compErrs := o.compensate(ctx, inst, completed, log)
		execErr := &ExecutionError{Step: step.Name, Err: err}
		if len(compErrs) > 0 {
			execErr.CompensationErrs = compErrs
			o.finish(ctx, inst, StatusFailed, log)
		} else {
			o.finish(ctx, inst, StatusCompensated, log)
		}
		return inst, execErr
	}

	o.finish(ctx, inst, StatusCompleted, log)
	return inst, nil
}

func (o *Orchestrator) runStep(ctx context.Context, step *Step, data map[string]interface{}) (StepResult, map[string]interface{}, error) {
	result := StepResult{StepName: step.Name, StartedAt: time.Now().UTC()}

	var lastErr error
attempts:
	for attempt := 0; attempt <= step.Retries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				lastErr = errors.Join(lastErr, ctx.Err())
				break attempts
			case <-time.After(o.config.RetryBackoff):
			}
		}
		result.Attempts++

		stepCtx, cancel := ctx, context.CancelFunc(func() {})
		if step.Timeout > 0 {
			stepCtx, cancel = context.WithTimeout(ctx, step.Timeout)
		}
		out, err := step.Execute(stepCtx, snapshot(data))
		cancel()

		if err == nil {
			done := time.Now().UTC()
			result.Status = StepStatusCompleted
			result.CompletedAt = &done
			return result, out, nil
		}
		lastErr = err
		if !IsRetryable(err) {
			break
		}
	}

	result.Status = StepStatusFailed
	result.Error = lastErr.Error()
	return result, nil, lastErr
}

func (o *Orchestrator) compensate(ctx context.Context, inst *Instance, completed []*Step, log *logger.Logger) map[string]error {
	inst.Status = StatusCompensating
	o.persist(ctx, inst, log)

	errs := make(map[string]error)
	base := context.WithoutCancel(ctx)
	for i := len(completed) - 1; i >= 0; i-- {
		step := completed[i]
		if step.Compensate == nil {
			continue
		}

		compCtx, cancel := context.WithTimeout(base, o.config.CompensationTimeout)
		err := step.Compensate(compCtx, snapshot(inst.Data))
		cancel()

		status := StepStatusCompensated
		if err != nil {
			status = StepStatusCompFailed
			errs[step.Name] = err
			log.Error("saga compensation failed", zap.String("step", step.Name), zap.Error(err))
		} else {
			log.Info("saga step compensated", zap.String("step", step.Name))
		}
		for j := range inst.StepResults {
			if inst.StepResults[j].StepName == step.Name {
				inst.StepResults[j].Status = status
			}
		}
	}
	return errs
}

func (o *Orchestrator) finish(ctx context.Context, inst *Instance, status Status, log *logger.Logger) {
	now := time.Now().UTC()
	inst.Status = status
	inst.CompletedAt = &now
	o.persist(ctx, inst, log)
	log.Info("saga finished", zap.String("status", string(status)))
}

// persist records progress. Store failures do not change the saga outcome.
func (o *Orchestrator) persist(ctx context.Context, inst *Instance, log *logger.Logger) {
	inst.UpdatedAt = time.Now().UTC()
	if err := o.config.Store.Update(context.WithoutCancel(ctx), inst); err != nil {
		log.Warn("saga state update failed", zap.Error(err))
	}
}

// GetInstance loads a stored instance
func (o *Orchestrator) GetInstance(ctx context.Context, id string) (*Instance, error) {
	return o.config.Store.Get(ctx, id)
}

func snapshot(data map[string]interface{}) map[string]interface{} {
	c := make(map[string]interface{}, len(data))
	for k, v := range data {
		c[k] = v
	}
	return c
}

// permanent marks errors that retrying cannot fix.
type permanent struct{ err error }

func (p permanent) Error() string { return p.err.Error() }
func (p permanent) Unwrap() error { return p.err }

// Permanent wraps err so the orchestrator does not retry it.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return permanent{err: err}
}

// IsRetryable reports whether a step error may succeed on retry.
func IsRetryable(err error) bool {
	var p permanent
	if errors.As(err, &p) {
		return false
	}
	return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}
