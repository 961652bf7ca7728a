package store

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"time"

	appErrors "resumescan/internal/errors"
	"resumescan/internal/types"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

const jobColumns = `id::text, owner_id, file_reference, file_name, title, job_description, company_name,
	status, analysis_payload, failure_code, failure_reason, status_changed_at, created_at, updated_at`

// Postgres is a Store backed by a pgx connection pool
type Postgres struct {
	pool   *pgxpool.Pool
	logger *appErrors.Logger
}

var _ Store = (*Postgres)(nil)

// ConnectPostgres opens a pool and verifies it with a ping
func ConnectPostgres(ctx context.Context, databaseURL string, maxConns int32, logger *appErrors.Logger) (*Postgres, error) {
	if logger == nil {
		logger = appErrors.NewNopLogger()
	}

	poolCfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, appErrors.NewConfigError(appErrors.ErrCodeInvalidConfig, "invalid database url", err)
	}
	if maxConns > 0 {
		poolCfg.MaxConns = maxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, storageFailed("failed to connect to database", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, storageFailed("failed to ping database", err)
	}

	logger.Info("Connected to PostgreSQL", "max_conns", poolCfg.MaxConns)
	return &Postgres{pool: pool, logger: logger}, nil
}

// Migrate applies the embedded schema files in name order. Every file is
// idempotent.
func (p *Postgres) Migrate(ctx context.Context) error {
	names, err := fs.Glob(migrationFiles, "migrations/*.sql")
	if err != nil {
		return err
	}
	sort.Strings(names)

	for _, name := range names {
		sql, err := migrationFiles.ReadFile(name)
		if err != nil {
			return fmt.Errorf("failed to read migration %s: %w", name, err)
		}
		if _, err := p.pool.Exec(ctx, string(sql)); err != nil {
			p.logger.LogError(err, "Migration failed", "name", name)
			return storageFailed("migration "+name+" failed", err)
		}
		p.logger.Info("Migration applied", "name", name)
	}
	return nil
}

func (p *Postgres) Create(ctx context.Context, params CreateParams) (*types.Job, error) {
	params, err := params.Normalize()
	if err != nil {
		return nil, err
	}

	row := p.pool.QueryRow(ctx, `
		INSERT INTO resumes (id, owner_id, file_reference, file_name, title, job_description, company_name, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, 'PENDING')
		RETURNING `+jobColumns,
		uuid.NewString(), params.OwnerID, params.FileReference, params.FileName,
		params.Title, params.JobDescription, params.CompanyName)

	job, err := scanJob(row)
	if err != nil {
		return nil, storageFailed("failed to create resume", err)
	}
	return job, nil
}

func (p *Postgres) Get(ctx context.Context, id string) (*types.Job, error) {
	if uuid.Validate(id) != nil {
		return nil, notFound(id)
	}
	row := p.pool.QueryRow(ctx, `SELECT `+jobColumns+` FROM resumes WHERE id = $1`, id)
	job, err := scanJob(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, notFound(id)
	}
	if err != nil {
		return nil, storageFailed("failed to load resume", err)
	}
	return job, nil
}

func (p *Postgres) SetStatus(ctx context.Context, id string, status types.Status, reason string) error {
	if _, err := stateFor(status, reason, time.Now); err != nil {
		return err
	}
	return p.exec(ctx, id, `
		UPDATE resumes
		SET status = $2, analysis_payload = NULL, failure_code = '', failure_reason = $3,
		    status_changed_at = NOW(), updated_at = NOW()
		WHERE id = $1`, id, string(status), failureReason(status, reason))
}

func (p *Postgres) Fail(ctx context.Context, id, code, reason string) error {
	return p.exec(ctx, id, `
		UPDATE resumes
		SET status = 'FAILED', analysis_payload = NULL, failure_code = $2, failure_reason = $3,
		    status_changed_at = NOW(), updated_at = NOW()
		WHERE id = $1`, id, code, reason)
}

// BeginProcessing is a single conditional UPDATE, so two callers racing on
// the same id cannot both win.
func (p *Postgres) BeginProcessing(ctx context.Context, id string) (*types.Job, error) {
	if uuid.Validate(id) != nil {
		return nil, notFound(id)
	}
	row := p.pool.QueryRow(ctx, `
		UPDATE resumes
		SET status = 'PROCESSING', analysis_payload = NULL, failure_code = '', failure_reason = '',
		    status_changed_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND status IN ('PENDING', 'FAILED')
		RETURNING `+jobColumns, id)

	job, err := scanJob(row)
	if err == nil {
		return job, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, storageFailed("failed to begin processing", err)
	}

	current, getErr := p.Get(ctx, id)
	if getErr != nil {
		return nil, getErr
	}
	return nil, conflict(id, current.Status())
}

func (p *Postgres) Complete(ctx context.Context, id string, result types.AnalysisResult) error {
	payload, err := json.Marshal(result)
	if err != nil {
		return appErrors.NewInternalError(appErrors.ErrCodeStorageFailed, "failed to encode analysis", err)
	}
	if uuid.Validate(id) != nil {
		return notFound(id)
	}
	tag, err := p.pool.Exec(ctx, `
		UPDATE resumes
		SET status = 'COMPLETED', analysis_payload = $2, failure_code = '', failure_reason = '',
		    status_changed_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND status = 'PROCESSING'`, id, payload)
	if err != nil {
		return storageFailed("failed to complete resume", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	current, err := p.Get(ctx, id)
	if err != nil {
		return err
	}
	return conflict(id, current.Status())
}

func (p *Postgres) ListByOwner(ctx context.Context, ownerID string, limit int) ([]*types.Job, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT `+jobColumns+`
		FROM resumes
		WHERE owner_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2`, ownerID, clampLimit(limit))
	if err != nil {
		return nil, storageFailed("failed to list resumes", err)
	}
	defer rows.Close()

	var jobs []*types.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, storageFailed("failed to read resume row", err)
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, storageFailed("failed to list resumes", err)
	}
	return jobs, nil
}

func (p *Postgres) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

func (p *Postgres) Close() {
	p.pool.Close()
}

func (p *Postgres) exec(ctx context.Context, id, sql string, args ...any) error {
	if uuid.Validate(id) != nil {
		return notFound(id)
	}
	tag, err := p.pool.Exec(ctx, sql, args...)
	if err != nil {
		return storageFailed("failed to update resume", err)
	}
	if tag.RowsAffected() == 0 {
		return notFound(id)
	}
	return nil
}

func failureReason(status types.Status, reason string) string {
	if status == types.StatusFailed {
		return reason
	}
	return ""
}

func scanJob(row pgx.Row) (*types.Job, error) {
	var (
		job           types.Job
		status        string
		payload       []byte
		failureCode   string
		failureReason string
		changedAt     time.Time
	)
	err := row.Scan(&job.ID, &job.OwnerID, &job.FileReference, &job.FileName, &job.Title,
		&job.JobDescription, &job.CompanyName, &status, &payload, &failureCode, &failureReason,
		&changedAt, &job.CreatedAt, &job.UpdatedAt)
	if err != nil {
		return nil, err
	}

	switch types.Status(status) {
	case types.StatusPending:
		job.State = types.Pending{}
	case types.StatusProcessing:
		job.State = types.Processing{StartedAt: changedAt}
	case types.StatusCompleted:
		var result types.AnalysisResult
		if err := json.Unmarshal(payload, &result); err != nil {
			return nil, fmt.Errorf("decode analysis payload: %w", err)
		}
		job.State = types.Completed{Result: result, CompletedAt: changedAt}
	case types.StatusFailed:
		job.State = types.Failed{Code: failureCode, Reason: failureReason, FailedAt: changedAt}
	default:
		return nil, fmt.Errorf("unknown status %q", status)
	}
	return &job, nil
}

func storageFailed(message string, cause error) error {
	return appErrors.NewIOError(appErrors.ErrCodeStorageFailed, message, cause)
}
