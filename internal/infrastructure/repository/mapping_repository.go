package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	domain "github.com/trackerlabs/migrate/internal/domain/migration"
)

// MappingRepository implements the pipeline's MappingStore on Postgres.
// Mappings are append-only per job: the first internal id stored for an
// external id wins for the lifetime of the job. Snapshot records are
// upserted per key value, so each page's flush overwrites matching records
// instead of appending history.
type MappingRepository struct {
	pool *pgxpool.Pool
}

func NewMappingRepository(pool *pgxpool.Pool) *MappingRepository {
	return &MappingRepository{pool: pool}
}

func (r *MappingRepository) StoreMappings(ctx context.Context, jobID, stepName string, mappings []domain.Mapping) error {
	if len(mappings) == 0 {
		return nil
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	rows := make([][]any, 0, len(mappings))
	for _, m := range mappings {
		rows = append(rows, []any{jobID, stepName, m.ExternalID, m.InternalID})
	}

	if _, err := tx.CopyFrom(
		ctx,
		pgx.Identifier{"stg_step_mappings"},
		[]string{"job_id", "step_name", "external_id", "internal_id"},
		pgx.CopyFromRows(rows),
	); err != nil {
		return fmt.Errorf("copy mappings staging: %w", err)
	}

	if _, err := tx.Exec(ctx, `
INSERT INTO step_mappings (job_id, step_name, external_id, internal_id, created_at)
SELECT DISTINCT ON (external_id) job_id, step_name, external_id, internal_id, NOW()
FROM stg_step_mappings
WHERE job_id = $1 AND step_name = $2
ORDER BY external_id
ON CONFLICT (job_id, step_name, external_id) DO NOTHING
`, jobID, stepName); err != nil {
		return fmt.Errorf("upsert mappings: %w", err)
	}

	if _, err := tx.Exec(ctx, "DELETE FROM stg_step_mappings WHERE job_id = $1 AND step_name = $2", jobID, stepName); err != nil {
		return fmt.Errorf("cleanup mappings staging: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit mappings: %w", err)
	}
	return nil
}

func (r *MappingRepository) StoreData(ctx context.Context, jobID, stepName string, records []map[string]any, keyField string) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	rows := make([][]any, 0, len(records))
	for _, record := range records {
		keyValue, ok := record[keyField]
		if !ok {
			continue
		}
		payload, err := json.Marshal(record)
		if err != nil {
			return fmt.Errorf("marshal snapshot record: %w", err)
		}
		rows = append(rows, []any{jobID, stepName, keyField, fmt.Sprint(keyValue), payload})
	}
	if len(rows) == 0 {
		return nil
	}

	if _, err := tx.CopyFrom(
		ctx,
		pgx.Identifier{"stg_step_snapshots"},
		[]string{"job_id", "step_name", "key_field", "key_value", "record"},
		pgx.CopyFromRows(rows),
	); err != nil {
		return fmt.Errorf("copy snapshot staging: %w", err)
	}

	if _, err := tx.Exec(ctx, `
INSERT INTO step_snapshots (job_id, step_name, key_field, key_value, record, updated_at)
SELECT DISTINCT ON (key_value) job_id, step_name, key_field, key_value, record, NOW()
FROM stg_step_snapshots
WHERE job_id = $1 AND step_name = $2
ORDER BY key_value
ON CONFLICT (job_id, step_name, key_value)
DO UPDATE SET key_field = EXCLUDED.key_field, record = EXCLUDED.record, updated_at = NOW()
`, jobID, stepName); err != nil {
		return fmt.Errorf("upsert snapshot: %w", err)
	}

	if _, err := tx.Exec(ctx, "DELETE FROM stg_step_snapshots WHERE job_id = $1 AND step_name = $2", jobID, stepName); err != nil {
		return fmt.Errorf("cleanup snapshot staging: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit snapshot: %w", err)
	}
	return nil
}

func (r *MappingRepository) GetData(ctx context.Context, jobID, stepName string) ([]map[string]any, error) {
	rows, err := r.pool.Query(ctx, `
SELECT record FROM step_snapshots
WHERE job_id = $1 AND step_name = $2
ORDER BY key_value
`, jobID, stepName)
	if err != nil {
		return nil, fmt.Errorf("query snapshot: %w", err)
	}
	defer rows.Close()

	var records []map[string]any
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan snapshot record: %w", err)
		}
		var record map[string]any
		if err := json.Unmarshal(payload, &record); err != nil {
			return nil, fmt.Errorf("unmarshal snapshot record: %w", err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate snapshot records: %w", err)
	}
	return records, nil
}

// GetMapping resolves one external id for a job and step. Steps normally
// resolve references through snapshots; this is the direct lookup used by
// operational tooling.
func (r *MappingRepository) GetMapping(ctx context.Context, jobID, stepName, externalID string) (string, error) {
	var internalID string
	err := r.pool.QueryRow(ctx, `
SELECT internal_id FROM step_mappings
WHERE job_id = $1 AND step_name = $2 AND external_id = $3
`, jobID, stepName, externalID).Scan(&internalID)
	if err != nil {
		if err == pgx.ErrNoRows {
			return "", domain.ErrMappingNotFound
		}
		return "", fmt.Errorf("query mapping: %w", err)
	}
	return internalID, nil
}
