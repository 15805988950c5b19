package graph

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore implements Store on a pgx pool. Expected tables: records,
// record_edges, record_permissions, record_groups, users (see
// migrations/schema.sql).
type PostgresStore struct {
	db *pgxpool.Pool
}

// NewPostgresStore creates a Store backed by the given pool.
func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

const recordColumns = `id, connector_id, external_id, name, path, content_type, size_bytes,
is_container, fingerprint, version, group_id, parent_external_id, parent_id, access_url,
source_created_at, source_modified_at, created_at, updated_at`

func (s *PostgresStore) GetRecordByExternalID(ctx context.Context, connectorID, externalID string) (*Record, error) {
	stmt := fmt.Sprintf(`SELECT %s FROM records WHERE connector_id=$1 AND external_id=$2`, recordColumns)
	return s.queryRecord(ctx, stmt, connectorID, externalID)
}

func (s *PostgresStore) GetRecordByFingerprint(ctx context.Context, connectorID, fingerprint string) (*Record, error) {
	stmt := fmt.Sprintf(`SELECT %s FROM records WHERE connector_id=$1 AND fingerprint=$2 AND fingerprint <> ''
ORDER BY updated_at DESC LIMIT 1`, recordColumns)
	return s.queryRecord(ctx, stmt, connectorID, fingerprint)
}

func (s *PostgresStore) queryRecord(ctx context.Context, stmt string, args ...any) (*Record, error) {
	var r Record
	err := s.db.QueryRow(ctx, stmt, args...).Scan(
		&r.ID, &r.ConnectorID, &r.ExternalID, &r.Name, &r.Path, &r.ContentType, &r.Size,
		&r.IsContainer, &r.Fingerprint, &r.Version, &r.GroupID, &r.ParentExternalID, &r.ParentID,
		&r.AccessURL, &r.SourceCreatedAt, &r.SourceModifiedAt, &r.CreatedAt, &r.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, classifyPgError(err)
	}
	return &r, nil
}

func (s *PostgresStore) DeleteParentEdges(ctx context.Context, recordID string) error {
	_, err := s.db.Exec(ctx, `DELETE FROM record_edges WHERE child_id=$1 AND edge_type='parent'`, recordID)
	if err != nil {
		return classifyPgError(err)
	}
	return nil
}

func (s *PostgresStore) BatchUpsert(ctx context.Context, upserts []Upsert) error {
	if len(upserts) == 0 {
		return nil
	}
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return classifyPgError(err)
	}
	defer tx.Rollback(ctx)

	for i := range upserts {
		if err := s.upsertOne(ctx, tx, &upserts[i]); err != nil {
			return err
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return classifyPgError(err)
	}
	return nil
}

func (s *PostgresStore) upsertOne(ctx context.Context, tx pgx.Tx, u *Upsert) error {
	r := &u.Record
	_, err := tx.Exec(ctx, `
INSERT INTO records (id, connector_id, external_id, name, path, content_type, size_bytes,
  is_container, fingerprint, version, group_id, parent_external_id, parent_id, access_url,
  source_created_at, source_modified_at, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,now(),now())
ON CONFLICT (connector_id, external_id) DO UPDATE SET
  name = EXCLUDED.name,
  path = EXCLUDED.path,
  content_type = EXCLUDED.content_type,
  size_bytes = EXCLUDED.size_bytes,
  is_container = EXCLUDED.is_container,
  fingerprint = EXCLUDED.fingerprint,
  version = EXCLUDED.version,
  group_id = EXCLUDED.group_id,
  parent_external_id = EXCLUDED.parent_external_id,
  parent_id = EXCLUDED.parent_id,
  access_url = EXCLUDED.access_url,
  source_created_at = EXCLUDED.source_created_at,
  source_modified_at = EXCLUDED.source_modified_at,
  updated_at = now()`,
		r.ID, r.ConnectorID, r.ExternalID, r.Name, r.Path, r.ContentType, r.Size,
		r.IsContainer, r.Fingerprint, r.Version, nullable(r.GroupID), r.ParentExternalID,
		nullable(r.ParentID), r.AccessURL, r.SourceCreatedAt, r.SourceModifiedAt)
	if err != nil {
		return classifyPgError(err)
	}

	// Parent linkage is replaced wholesale so a moved record carries exactly
	// one parent edge.
	if _, err := tx.Exec(ctx, `DELETE FROM record_edges WHERE child_id=$1 AND edge_type='parent'`, r.ID); err != nil {
		return classifyPgError(err)
	}
	if r.ParentID != "" {
		_, err = tx.Exec(ctx, `
INSERT INTO record_edges (id, child_id, parent_id, edge_type, created_at)
VALUES ($1,$2,$3,'parent',now())
ON CONFLICT (child_id, parent_id, edge_type) DO NOTHING`,
			uuid.NewString(), r.ID, r.ParentID)
		if err != nil {
			return classifyPgError(err)
		}
	}

	// Permissions are recomputed each sync, not patched.
	if _, err := tx.Exec(ctx, `DELETE FROM record_permissions WHERE record_id=$1`, r.ID); err != nil {
		return classifyPgError(err)
	}
	for _, p := range u.Permissions {
		_, err = tx.Exec(ctx, `
INSERT INTO record_permissions (id, record_id, kind, role, user_id, created_at)
VALUES ($1,$2,$3,$4,$5,now())`,
			uuid.NewString(), r.ID, p.Kind, p.Role, nullable(p.UserID))
		if err != nil {
			return classifyPgError(err)
		}
	}
	return nil
}

func (s *PostgresStore) CreateReplyEdge(ctx context.Context, childID, parentID string) error {
	_, err := s.db.Exec(ctx, `
INSERT INTO record_edges (id, child_id, parent_id, edge_type, created_at)
VALUES ($1,$2,$3,'reply_to',now())
ON CONFLICT (child_id, parent_id, edge_type) DO NOTHING`,
		uuid.NewString(), childID, parentID)
	if err != nil {
		return classifyPgError(err)
	}
	return nil
}

func (s *PostgresStore) EnsureGroup(ctx context.Context, group RecordGroup) (*RecordGroup, error) {
	if group.ID == "" {
		group.ID = uuid.NewString()
	}
	var id string
	err := s.db.QueryRow(ctx, `
INSERT INTO record_groups (id, connector_id, external_id, name, resource_type, created_at)
VALUES ($1,$2,$3,$4,$5,now())
ON CONFLICT (connector_id, external_id) DO UPDATE SET
  name = EXCLUDED.name,
  resource_type = EXCLUDED.resource_type
RETURNING id`,
		group.ID, group.ConnectorID, group.ExternalID, group.Name, group.ResourceType).Scan(&id)
	if err != nil {
		return nil, classifyPgError(err)
	}
	group.ID = id
	return &group, nil
}

func (s *PostgresStore) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	return s.queryUser(ctx, `SELECT id, email, name FROM users WHERE lower(email)=lower($1)`, email)
}

func (s *PostgresStore) GetUserByID(ctx context.Context, id string) (*User, error) {
	return s.queryUser(ctx, `SELECT id, email, name FROM users WHERE id=$1`, id)
}

func (s *PostgresStore) queryUser(ctx context.Context, stmt string, arg any) (*User, error) {
	var u User
	if err := s.db.QueryRow(ctx, stmt, arg).Scan(&u.ID, &u.Email, &u.Name); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, classifyPgError(err)
	}
	return &u, nil
}

var _ Store = (*PostgresStore)(nil)

// classifyPgError maps pgx failures onto the tagged taxonomy. Serialization
// failures, deadlocks, lock waits, and duplicate-key races from concurrent
// writers all count as contention; the pipeline retry loop absorbs them.
func classifyPgError(err error) *Error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", "40P01", "55P03", "23505":
			return WrapError(CodeContention, err)
		}
		return WrapError(CodeFatal, err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return WrapError(CodeContention, err)
	}
	return WrapError(CodeFatal, err)
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

// PoolConfigDefaults applies conservative pool sizing for sync workloads.
func PoolConfigDefaults(cfg *pgxpool.Config) {
	cfg.MaxConns = 10
	cfg.MaxConnIdleTime = 5 * time.Minute
}
