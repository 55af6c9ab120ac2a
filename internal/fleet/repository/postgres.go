package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"dispatch_backend/internal/fleet/domain"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore keeps each collection in its own table as JSONB documents.
// A batch is one transaction; every update is conditional on the version
// that was read.
type PostgresStore struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

// NewPostgresStore creates a store over the given pool.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool, now: time.Now}
}

func getDoc[T any](ctx context.Context, pool *pgxpool.Pool, table string, companyID, id uuid.UUID) (T, error) {
	var out T
	var raw []byte
	query := fmt.Sprintf(`SELECT doc FROM %s WHERE id = $1 AND company_id = $2`, table)
	err := pool.QueryRow(ctx, query, id, companyID).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return out, ErrNotFound
	}
	if err != nil {
		return out, errors.Wrapf(err, "get %s", table)
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, errors.Wrapf(err, "decode %s/%s", table, id)
	}
	return out, nil
}

func listDocs[T any](ctx context.Context, pool *pgxpool.Pool, table, query string, args ...any) ([]T, error) {
	rows, err := pool.Query(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrapf(err, "list %s", table)
	}
	defer rows.Close()

	out := make([]T, 0)
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, errors.Wrapf(err, "scan %s", table)
		}
		var doc T
		if err := json.Unmarshal(raw, &doc); err != nil {
			return nil, errors.Wrapf(err, "decode %s", table)
		}
		out = append(out, doc)
	}
	return out, rows.Err()
}

// GetJob implements JobReader.
func (s *PostgresStore) GetJob(ctx context.Context, companyID, id uuid.UUID) (domain.Job, error) {
	return getDoc[domain.Job](ctx, s.pool, CollectionJobs, companyID, id)
}

// ListJobs implements JobReader.
func (s *PostgresStore) ListJobs(ctx context.Context, companyID uuid.UUID, filter JobFilter) ([]domain.Job, error) {
	conds := []string{"company_id = $1"}
	args := []any{companyID}
	next := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if len(filter.Statuses) > 0 {
		statuses := make([]string, len(filter.Statuses))
		for i, st := range filter.Statuses {
			statuses[i] = string(st)
		}
		conds = append(conds, "doc->>'status' = ANY("+next(statuses)+")")
	}
	if filter.TechnicianID != nil {
		conds = append(conds, "doc->>'assignedTechnicianId' = "+next(filter.TechnicianID.String()))
	}
	if filter.ContractID != nil {
		conds = append(conds, "doc->>'sourceContractId' = "+next(filter.ContractID.String()))
	}
	if filter.ScheduledFrom != nil {
		conds = append(conds, "(doc->>'scheduledTime')::timestamptz >= "+next(*filter.ScheduledFrom))
	}
	if filter.ScheduledUntil != nil {
		conds = append(conds, "(doc->>'scheduledTime')::timestamptz <= "+next(*filter.ScheduledUntil))
	}

	query := `SELECT doc FROM jobs WHERE ` + strings.Join(conds, " AND ") + ` ORDER BY created_at, id`
	if filter.Limit > 0 {
		query += " LIMIT " + next(filter.Limit)
	}
	return listDocs[domain.Job](ctx, s.pool, CollectionJobs, query, args...)
}

// FindJobByToken implements TokenLookup.
func (s *PostgresStore) FindJobByToken(ctx context.Context, kind domain.TokenKind, token string) (domain.Job, error) {
	field := "trackingToken"
	if kind == domain.TokenTriage {
		field = "triageToken"
	}
	query := fmt.Sprintf(`SELECT doc FROM jobs WHERE doc->'%s'->>'value' = $1 LIMIT 1`, field)
	jobs, err := listDocs[domain.Job](ctx, s.pool, CollectionJobs, query, token)
	if err != nil {
		return domain.Job{}, err
	}
	if len(jobs) == 0 {
		return domain.Job{}, ErrNotFound
	}
	return jobs[0], nil
}

// GetTechnician implements TechnicianReader.
func (s *PostgresStore) GetTechnician(ctx context.Context, companyID, id uuid.UUID) (domain.Technician, error) {
	return getDoc[domain.Technician](ctx, s.pool, CollectionTechnicians, companyID, id)
}

// ListTechnicians implements TechnicianReader.
func (s *PostgresStore) ListTechnicians(ctx context.Context, companyID uuid.UUID) ([]domain.Technician, error) {
	return listDocs[domain.Technician](ctx, s.pool, CollectionTechnicians,
		`SELECT doc FROM technicians WHERE company_id = $1 ORDER BY doc->>'name', id`, companyID)
}

// GetContract implements ContractReader.
func (s *PostgresStore) GetContract(ctx context.Context, companyID, id uuid.UUID) (domain.Contract, error) {
	return getDoc[domain.Contract](ctx, s.pool, CollectionContracts, companyID, id)
}

// ListActiveContracts implements ContractReader.
func (s *PostgresStore) ListActiveContracts(ctx context.Context, companyID uuid.UUID) ([]domain.Contract, error) {
	return listDocs[domain.Contract](ctx, s.pool, CollectionContracts,
		`SELECT doc FROM contracts WHERE company_id = $1 AND (doc->>'isActive')::boolean ORDER BY id`, companyID)
}

// GetChangeRequest implements ChangeRequestReader.
func (s *PostgresStore) GetChangeRequest(ctx context.Context, companyID, id uuid.UUID) (domain.ProfileChangeRequest, error) {
	return getDoc[domain.ProfileChangeRequest](ctx, s.pool, CollectionChangeRequests, companyID, id)
}

// ListChangeRequests implements ChangeRequestReader.
func (s *PostgresStore) ListChangeRequests(ctx context.Context, companyID uuid.UUID, status domain.ChangeRequestStatus) ([]domain.ProfileChangeRequest, error) {
	return listDocs[domain.ProfileChangeRequest](ctx, s.pool, CollectionChangeRequests,
		`SELECT doc FROM profile_change_requests
		 WHERE company_id = $1 AND ($2 = '' OR doc->>'status' = $2)
		 ORDER BY created_at`, companyID, string(status))
}

// ListCompanies implements CompanyLister.
func (s *PostgresStore) ListCompanies(ctx context.Context) ([]uuid.UUID, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT company_id FROM technicians
		UNION SELECT company_id FROM contracts
		UNION SELECT company_id FROM jobs
		ORDER BY 1`)
	if err != nil {
		return nil, errors.Wrap(err, "list companies")
	}
	defer rows.Close()

	out := make([]uuid.UUID, 0)
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, errors.Wrap(err, "scan company")
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// Commit implements Committer.
func (s *PostgresStore) Commit(ctx context.Context, b *Batch) error {
	if b == nil || b.Len() == 0 {
		return nil
	}

	stamped := b.stampAll(s.now())

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return errors.Wrap(err, "begin batch")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	for _, o := range stamped {
		if err := execOp(ctx, tx, o); err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return errors.Wrap(err, "commit batch")
	}
	b.settle(stamped)
	return nil
}

func execOp(ctx context.Context, tx pgx.Tx, o op) error {
	if o.kind == opAppend {
		doc, err := json.Marshal(o.feedback)
		if err != nil {
			return errors.Wrap(err, "encode feedback")
		}
		_, err = tx.Exec(ctx,
			`INSERT INTO dispatcher_feedback (id, company_id, job_id, doc, created_at) VALUES ($1, $2, $3, $4, $5)`,
			o.feedback.ID, o.feedback.CompanyID, o.feedback.JobID, doc, o.feedback.CreatedAt)
		return errors.Wrap(err, "append feedback")
	}

	if o.kind == opDelete {
		tag, err := tx.Exec(ctx,
			fmt.Sprintf(`DELETE FROM %s WHERE id = $1 AND company_id = $2 AND version = $3`, o.collection),
			o.id, o.companyID, o.expected)
		if err != nil {
			return errors.Wrapf(err, "delete %s/%s", o.collection, o.id)
		}
		if tag.RowsAffected() == 0 {
			return errors.Wrapf(ErrVersionConflict, "%s/%s", o.collection, o.id)
		}
		return nil
	}

	doc, createdAt, updatedAt, err := encodeOp(o)
	if err != nil {
		return err
	}

	if o.expected == 0 {
		tag, err := tx.Exec(ctx,
			fmt.Sprintf(`INSERT INTO %s (id, company_id, version, doc, created_at, updated_at)
				VALUES ($1, $2, 1, $3, $4, $5) ON CONFLICT (id) DO NOTHING`, o.collection),
			o.id, o.companyID, doc, createdAt, updatedAt)
		if err != nil {
			return errors.Wrapf(err, "insert %s/%s", o.collection, o.id)
		}
		if tag.RowsAffected() == 0 {
			return errors.Wrapf(ErrVersionConflict, "%s/%s already exists", o.collection, o.id)
		}
		return nil
	}

	tag, err := tx.Exec(ctx,
		fmt.Sprintf(`UPDATE %s SET doc = $1, version = $2, updated_at = $3
			WHERE id = $4 AND company_id = $5 AND version = $6`, o.collection),
		doc, o.expected+1, updatedAt, o.id, o.companyID, o.expected)
	if err != nil {
		return errors.Wrapf(err, "update %s/%s", o.collection, o.id)
	}
	if tag.RowsAffected() == 0 {
		return errors.Wrapf(ErrVersionConflict, "%s/%s at version %d", o.collection, o.id, o.expected)
	}
	return nil
}

func encodeOp(o op) ([]byte, time.Time, time.Time, error) {
	var (
		v                    any
		createdAt, updatedAt time.Time
	)
	switch {
	case o.job != nil:
		v, createdAt, updatedAt = o.job, o.job.CreatedAt, o.job.UpdatedAt
	case o.tech != nil:
		v, createdAt, updatedAt = o.tech, o.tech.CreatedAt, o.tech.UpdatedAt
	case o.contract != nil:
		v, createdAt, updatedAt = o.contract, o.contract.CreatedAt, o.contract.UpdatedAt
	case o.request != nil:
		v, createdAt, updatedAt = o.request, o.request.CreatedAt, o.request.UpdatedAt
	default:
		return nil, time.Time{}, time.Time{}, errors.Newf("empty write for %s/%s", o.collection, o.id)
	}
	doc, err := json.Marshal(v)
	if err != nil {
		return nil, time.Time{}, time.Time{}, errors.Wrapf(err, "encode %s/%s", o.collection, o.id)
	}
	return doc, createdAt, updatedAt, nil
}
