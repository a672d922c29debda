package saga

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore implements Store on the saga_instances table
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) Save(ctx context.Context, inst *Instance) error {
	dataJSON, resultsJSON, err := marshalInstance(inst)
	if err != nil {
		return err
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO saga_instances (
			id, definition_name, status, data, step_results,
			error_message, created_at, updated_at, completed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		inst.ID, inst.DefinitionName, string(inst.Status), dataJSON, resultsJSON,
		nullString(inst.ErrorMessage), inst.CreatedAt, inst.UpdatedAt, inst.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save saga: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (*Instance, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, definition_name, status, data, step_results,
		       error_message, created_at, updated_at, completed_at
		FROM saga_instances
		WHERE id = $1`, id)
	return scanInstance(row)
}

func (s *PostgresStore) Update(ctx context.Context, inst *Instance) error {
	dataJSON, resultsJSON, err := marshalInstance(inst)
	if err != nil {
		return err
	}

	tag, err := s.pool.Exec(ctx, `
		UPDATE saga_instances
		SET status = $2, data = $3, step_results = $4, error_message = $5,
		    updated_at = $6, completed_at = $7
		WHERE id = $1`,
		inst.ID, string(inst.Status), dataJSON, resultsJSON,
		nullString(inst.ErrorMessage), inst.UpdatedAt, inst.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update saga: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrInstanceNotFound
	}
	return nil
}

func (s *PostgresStore) ListByStatus(ctx context.Context, status Status, limit int) ([]*Instance, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, definition_name, status, data, step_results,
		       error_message, created_at, updated_at, completed_at
		FROM saga_instances
		WHERE status = $1
		ORDER BY created_at ASC
		LIMIT $2`, string(status), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list sagas: %w", err)
	}
	defer rows.Close()

	var out []*Instance
	for rows.Next() {
		inst, err := scanInstance(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, inst)
	}
	return out, rows.Err()
}

func scanInstance(row pgx.Row) (*Instance, error) {
	var (
		inst        Instance
		status      string
		dataJSON    []byte
		resultsJSON []byte
		errMsg      *string
	)
	err := row.Scan(&inst.ID, &inst.DefinitionName, &status, &dataJSON, &resultsJSON,
		&errMsg, &inst.CreatedAt, &inst.UpdatedAt, &inst.CompletedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrInstanceNotFound
		}
		return nil, fmt.Errorf("failed to scan saga: %w", err)
	}

	inst.Status = Status(status)
	if errMsg != nil {
		inst.ErrorMessage = *errMsg
	}
	inst.Data = make(map[string]interface{})
	if len(dataJSON) > 0 {
		if err := json.Unmarshal(dataJSON, &inst.Data); err != nil {
			return nil, fmt.Errorf("failed to unmarshal saga data: %w", err)
		}
	}
	if len(resultsJSON) > 0 {
		if err := json.Unmarshal(resultsJSON, &inst.StepResults); err != nil {
			return nil, fmt.Errorf("failed to unmarshal step results: %w", err)
		}
	}
	return &inst, nil
}

func marshalInstance(inst *Instance) ([]byte, []byte, error) {
	dataJSON, err := json.Marshal(inst.Data)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to marshal saga data: %w", err)
	}
	resultsJSON, err := json.Marshal(inst.StepResults)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to marshal step results: %w", err)
	}
	return dataJSON, resultsJSON, nil
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
