package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jciecuador/workspace-console/modules/requests/domain/request"
)

const requestColumns = `
	id,
	type,
	status,
	organizational_unit,
	requestor_email,
	requestor_role,
	approved_by,
	rejected_by,
	executor_email,
	execution_mode,
	batch_id,
	dry_run,
	payload,
	result,
	error,
	created_at,
	updated_at,
	executed_at`

// PgStore is the relational backend. Read-modify-write updates run in a row
// scoped transaction (SELECT ... FOR UPDATE), and the execution lock is an
// expiring row in execution_locks with conditional stale takeover.
type PgStore struct {
	pool    *pgxpool.Pool
	lockKey string
	lockTTL time.Duration
}

var _ request.Store = (*PgStore)(nil)

func NewPgStore(pool *pgxpool.Pool, lockKey string, lockTTL time.Duration) *PgStore {
	return &PgStore{pool: pool, lockKey: lockKey, lockTTL: lockTTL}
}

func pgUUID(id uuid.UUID) pgtype.UUID {
	return pgtype.UUID{Bytes: id, Valid: true}
}

func asUUID(v pgtype.UUID) uuid.UUID {
	if !v.Valid {
		return uuid.Nil
	}
	return uuid.UUID(v.Bytes)
}

func asText(v pgtype.Text) string {
	if !v.Valid {
		return ""
	}
	return v.String
}

func pgText(v string) pgtype.Text {
	if v == "" {
		return pgtype.Text{}
	}
	return pgtype.Text{String: v, Valid: true}
}

func asTime(v pgtype.Timestamptz) time.Time {
	if !v.Valid {
		return time.Time{}
	}
	return v.Time
}

func asTimePtr(v pgtype.Timestamptz) *time.Time {
	if !v.Valid {
		return nil
	}
	t := v.Time
	return &t
}

func pgTimePtr(v *time.Time) pgtype.Timestamptz {
	if v == nil || v.IsZero() {
		return pgtype.Timestamptz{}
	}
	return pgtype.Timestamptz{Time: v.UTC(), Valid: true}
}

func marshalMap(v map[string]any) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	return json.Marshal(v)
}

func unmarshalMap(raw []byte) map[string]any {
	if len(raw) == 0 {
		return nil
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil
	}
	return out
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRequest(row rowScanner) (*request.WorkspaceRequest, error) {
	var (
		id                    pgtype.UUID
		typ, status, mode     string
		orgUnit, email, role  string
		approved, rejected    pgtype.Text
		executor, batchID     pgtype.Text
		dryRun                pgtype.Bool
		payloadRaw, resultRaw []byte
		errText               pgtype.Text
		createdAt, updatedAt  pgtype.Timestamptz
		executedAt            pgtype.Timestamptz
	)
	if err := row.Scan(
		&id, &typ, &status, &orgUnit, &email, &role,
		&approved, &rejected, &executor, &mode, &batchID, &dryRun,
		&payloadRaw, &resultRaw, &errText,
		&createdAt, &updatedAt, &executedAt,
	); err != nil {
		return nil, err
	}

	var payload request.Payload
	if len(payloadRaw) > 0 {
		if err := json.Unmarshal(payloadRaw, &payload); err != nil {
			return nil, err
		}
	}

	return &request.WorkspaceRequest{
		ID:                 asUUID(id),
		Type:               typ,
		Status:             status,
		OrganizationalUnit: orgUnit,
		RequestorEmail:     email,
		RequestorRole:      role,
		ApprovedBy:         asText(approved),
		RejectedBy:         asText(rejected),
		ExecutorEmail:      asText(executor),
		ExecutionMode:      mode,
		BatchID:            asText(batchID),
		DryRun:             dryRun.Valid && dryRun.Bool,
		Payload:            payload,
		Result:             unmarshalMap(resultRaw),
		Error:              asText(errText),
		CreatedAt:          asTime(createdAt),
		UpdatedAt:          asTime(updatedAt),
		ExecutedAt:         asTimePtr(executedAt),
	}, nil
}

func scanAuditEvent(row rowScanner) (*request.AuditEvent, error) {
	var (
		id, requestID       pgtype.UUID
		batchID             pgtype.Text
		actor, action       string
		beforeRaw, afterRaw []byte
		message             pgtype.Text
		createdAt           pgtype.Timestamptz
	)
	if err := row.Scan(
		&id, &requestID, &batchID, &actor, &action,
		&beforeRaw, &afterRaw, &message, &createdAt,
	); err != nil {
		return nil, err
	}
	return &request.AuditEvent{
		ID:        asUUID(id),
		RequestID: asUUID(requestID),
		BatchID:   asText(batchID),
		Actor:     actor,
		Action:    action,
		Before:    unmarshalMap(beforeRaw),
		After:     unmarshalMap(afterRaw),
		Message:   asText(message),
		CreatedAt: asTime(createdAt),
	}, nil
}

func mapPgError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return request.ErrRequestNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return request.ErrDuplicateRequest
	}
	return err
}

func (s *PgStore) ListRequests(ctx context.Context) ([]*request.WorkspaceRequest, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+requestColumns+`
		FROM workspace_requests
		ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]*request.WorkspaceRequest, 0)
	for rows.Next() {
		item, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	return out, rows.Err()
}

func (s *PgStore) ListAuditEvents(ctx context.Context) ([]*request.AuditEvent, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, request_id, batch_id, actor, action, before, after, message, created_at
		FROM request_audit_events
		ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]*request.AuditEvent, 0)
	for rows.Next() {
		event, err := scanAuditEvent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, event)
	}
	return out, rows.Err()
}

func (s *PgStore) GetRequestByID(ctx context.Context, id uuid.UUID) (*request.WorkspaceRequest, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+requestColumns+`
		FROM workspace_requests
		WHERE id = $1
	`, pgUUID(id))
	item, err := scanRequest(row)
	if err != nil {
		return nil, mapPgError(err)
	}
	return item, nil
}

func requestInsertArgs(req *request.WorkspaceRequest) ([]any, error) {
	payloadRaw, err := json.Marshal(req.Payload)
	if err != nil {
		return nil, err
	}
	resultRaw, err := marshalMap(req.Result)
	if err != nil {
		return nil, err
	}
	return []any{
		pgUUID(req.ID),
		req.Type,
		req.Status,
		req.OrganizationalUnit,
		req.RequestorEmail,
		req.RequestorRole,
		pgText(req.ApprovedBy),
		pgText(req.RejectedBy),
		pgText(req.ExecutorEmail),
		req.ExecutionMode,
		pgText(req.BatchID),
		req.DryRun,
		payloadRaw,
		resultRaw,
		pgText(req.Error),
		req.CreatedAt.UTC(),
		req.UpdatedAt.UTC(),
		pgTimePtr(req.ExecutedAt),
	}, nil
}

// CreateRequest inserts the request. Re-insertion of an existing id is a
// no-op: the stored row is returned unchanged so imports stay idempotent.
func (s *PgStore) CreateRequest(ctx context.Context, req *request.WorkspaceRequest) (*request.WorkspaceRequest, error) {
	args, err := requestInsertArgs(req)
	if err != nil {
		return nil, err
	}
	row := s.pool.QueryRow(ctx, `
		INSERT INTO workspace_requests (
			id, type, status, organizational_unit, requestor_email, requestor_role,
			approved_by, rejected_by, executor_email, execution_mode, batch_id, dry_run,
			payload, result, error, created_at, updated_at, executed_at
		)
		VALUES (
			$1, $2::request_type, $3::request_status, $4, $5, $6,
			$7, $8, $9, $10::execution_mode, $11, $12,
			$13::jsonb, $14::jsonb, $15, $16, $17, $18
		)
		ON CONFLICT (id) DO NOTHING
		RETURNING `+requestColumns,
		args...,
	)
	created, err := scanRequest(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return s.GetRequestByID(ctx, req.ID)
	}
	if err != nil {
		return nil, mapPgError(err)
	}
	return created, nil
}

func (s *PgStore) UpdateRequestByID(ctx context.Context, id uuid.UUID, update request.UpdateFn) (*request.WorkspaceRequest, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	row := tx.QueryRow(ctx, `
		SELECT `+requestColumns+`
		FROM workspace_requests
		WHERE id = $1
		FOR UPDATE
	`, pgUUID(id))
	current, err := scanRequest(row)
	if err != nil {
		return nil, mapPgError(err)
	}

	next := update(*current)
	payloadRaw, err := json.Marshal(next.Payload)
	if err != nil {
		return nil, err
	}
	resultRaw, err := marshalMap(next.Result)
	if err != nil {
		return nil, err
	}

	row = tx.QueryRow(ctx, `
		UPDATE workspace_requests
		SET
			type = $2::request_type,
			status = $3::request_status,
			organizational_unit = $4,
			requestor_email = $5,
			requestor_role = $6,
			approved_by = $7,
			rejected_by = $8,
			executor_email = $9,
			execution_mode = $10::execution_mode,
			batch_id = $11,
			dry_run = $12,
			payload = $13::jsonb,
			result = $14::jsonb,
			error = $15,
			updated_at = $16,
			executed_at = $17
		WHERE id = $1
		RETURNING `+requestColumns,
		pgUUID(id),
		next.Type,
		next.Status,
		next.OrganizationalUnit,
		next.RequestorEmail,
		next.RequestorRole,
		pgText(next.ApprovedBy),
		pgText(next.RejectedBy),
		pgText(next.ExecutorEmail),
		next.ExecutionMode,
		pgText(next.BatchID),
		next.DryRun,
		payloadRaw,
		resultRaw,
		pgText(next.Error),
		next.UpdatedAt.UTC(),
		pgTimePtr(next.ExecutedAt),
	)
	updated, err := scanRequest(row)
	if err != nil {
		return nil, mapPgError(err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return updated, nil
}

func (s *PgStore) DeleteRequestByID(ctx context.Context, id uuid.UUID) (*request.WorkspaceRequest, error) {
	row := s.pool.QueryRow(ctx, `
		DELETE FROM workspace_requests
		WHERE id = $1
		RETURNING `+requestColumns,
		pgUUID(id),
	)
	deleted, err := scanRequest(row)
	if err != nil {
		return nil, mapPgError(err)
	}
	return deleted, nil
}

func (s *PgStore) AppendAuditEvent(ctx context.Context, event *request.AuditEvent) (*request.AuditEvent, error) {
	beforeRaw, err := marshalMap(event.Before)
	if err != nil {
		return nil, err
	}
	afterRaw, err := marshalMap(event.After)
	if err != nil {
		return nil, err
	}
	row := s.pool.QueryRow(ctx, `
		INSERT INTO request_audit_events (id, request_id, batch_id, actor, action, before, after, message, created_at)
		VALUES ($1, $2, $3, $4, $5, $6::jsonb, $7::jsonb, $8, NOW())
		RETURNING id, request_id, batch_id, actor, action, before, after, message, created_at
	`,
		pgUUID(uuid.New()),
		pgUUID(event.RequestID),
		pgText(event.BatchID),
		event.Actor,
		event.Action,
		beforeRaw,
		afterRaw,
		pgText(event.Message),
	)
	stored, err := scanAuditEvent(row)
	if err != nil {
		return nil, err
	}
	return stored, nil
}

// WithExecutionLock acquires the cluster-wide lock row. The upsert only
// takes over a row whose lease already expired, and the release only
// deletes the row while this holder still owns it, so a slow expired
// holder cannot release a newer owner's lock.
func (s *PgStore) WithExecutionLock(ctx context.Context, task func(ctx context.Context) error) (err error) {
	holderID := uuid.New()
	expiresAt := time.Now().UTC().Add(s.lockTTL)

	var acquiredKey string
	err = s.pool.QueryRow(ctx, `
		INSERT INTO execution_locks (lock_key, holder_id, acquired_at, expires_at)
		VALUES ($1, $2, NOW(), $3)
		ON CONFLICT (lock_key) DO UPDATE
		SET
			holder_id = EXCLUDED.holder_id,
			acquired_at = NOW(),
			expires_at = EXCLUDED.expires_at
		WHERE execution_locks.expires_at < NOW()
		RETURNING lock_key
	`, s.lockKey, pgUUID(holderID), expiresAt).Scan(&acquiredKey)
	if errors.Is(err, pgx.ErrNoRows) {
		return request.ErrLockHeld
	}
	if err != nil {
		return err
	}

	defer func() {
		// The release must outlive the caller's context: a canceled ctx is
		// precisely the case where leaving the row behind would block every
		// execution until the lease expires.
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if _, releaseErr := s.pool.Exec(releaseCtx, `
			DELETE FROM execution_locks
			WHERE lock_key = $1 AND holder_id = $2
		`, s.lockKey, pgUUID(holderID)); releaseErr != nil {
			err = errors.Join(err, fmt.Errorf("release execution lock: %w", releaseErr))
		}
	}()

	return task(ctx)
}
