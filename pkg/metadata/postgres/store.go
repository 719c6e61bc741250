package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/sirupsen/logrus"

	"github.com/TheEntropyCollective/mediavault/pkg/common/vaulterr"
	"github.com/TheEntropyCollective/mediavault/pkg/metadata"
)

// Store implements metadata.Store on PostgreSQL.
type Store struct {
	db  *Database
	log *logrus.Entry
}

var _ metadata.Store = (*Store)(nil)

// Open connects to PostgreSQL, applies pending migrations and returns a store.
func Open(ctx context.Context, config *DatabaseConfig, logger *logrus.Logger) (*Store, error) {
	db, err := NewDatabase(ctx, config)
	if err != nil {
		return nil, err
	}

	if err := db.MigrateToLatest(ctx); err != nil {
		db.Close()
		return nil, err
	}

	if logger == nil {
		logger = logrus.StandardLogger()
	}

	return &Store{
		db:  db,
		log: logger.WithField("component", "postgres-metadata"),
	}, nil
}

// Database exposes the underlying pool wrapper for migrations and tooling.
func (s *Store) Database() *Database {
	return s.db
}

// translate maps driver errors onto the shared error taxonomy.
func translate(op string, err error) error {
	if err == nil {
		return nil
	}
	for _, known := range []error{
		vaulterr.ErrResourceNotFound, vaulterr.ErrRecordNotFound,
		vaulterr.ErrGrantNotFound, vaulterr.ErrInvalidInput,
	} {
		if errors.Is(err, known) {
			return err
		}
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case codeForeignKeyViolation:
			return fmt.Errorf("postgres %s: %w", op, vaulterr.ErrResourceNotFound)
		case codeUniqueViolation:
			return fmt.Errorf("postgres %s: duplicate %s: %w", op, pgErr.ConstraintName, vaulterr.ErrInvalidInput)
		case codeCheckViolation:
			return fmt.Errorf("postgres %s: constraint %s: %w", op, pgErr.ConstraintName, vaulterr.ErrInvalidInput)
		}
	}

	return fmt.Errorf("postgres %s: %w: %w", op, vaulterr.ErrStorageUnavailable, err)
}

const resourceColumns = `
	r.id, r.name, r.description, COALESCE(r.catalog_ref, ''), r.created_by, r.created_at, r.sealed_secret,
	COUNT(o.id), COALESCE(SUM(o.ciphertext_length), 0)::BIGINT`

const resourceFrom = `
	FROM protected_resources r
	LEFT JOIN encrypted_object_records o ON o.resource_id = r.id`

func scanResource(row pgx.Row) (*metadata.Resource, error) {
	resource := &metadata.Resource{}
	err := row.Scan(
		&resource.ID, &resource.Name, &resource.Description, &resource.CatalogRef,
		&resource.CreatedBy, &resource.CreatedAt, &resource.SealedSecret,
		&resource.ObjectCount, &resource.TotalBytes,
	)
	if err != nil {
		return nil, err
	}
	return resource, nil
}

func (s *Store) CreateResource(ctx context.Context, resource *metadata.Resource) error {
	if resource.ID == "" {
		return fmt.Errorf("resource id is required: %w", vaulterr.ErrInvalidInput)
	}

	_, err := s.db.pool.Exec(ctx, `
		INSERT INTO protected_resources (id, name, description, catalog_ref, created_by, created_at, sealed_secret)
		VALUES ($1, $2, $3, NULLIF($4, ''), $5, $6, $7)`,
		resource.ID, resource.Name, resource.Description, resource.CatalogRef,
		resource.CreatedBy, resource.CreatedAt, resource.SealedSecret,
	)
	return translate("create resource", err)
}

func (s *Store) GetResource(ctx context.Context, id string) (*metadata.Resource, error) {
	row := s.db.pool.QueryRow(ctx,
		`SELECT `+resourceColumns+resourceFrom+` WHERE r.id = $1 GROUP BY r.id`, id)

	resource, err := scanResource(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("resource %s: %w", id, vaulterr.ErrResourceNotFound)
	}
	if err != nil {
		return nil, translate("get resource", err)
	}
	return resource, nil
}

func (s *Store) ListResources(ctx context.Context) ([]*metadata.Resource, error) {
	rows, err := s.db.pool.Query(ctx,
		`SELECT `+resourceColumns+resourceFrom+` GROUP BY r.id ORDER BY r.created_at, r.id`)
	if err != nil {
		return nil, translate("list resources", err)
	}
	defer rows.Close()

	resources := make([]*metadata.Resource, 0)
	for rows.Next() {
		resource, err := scanResource(rows)
		if err != nil {
			return nil, translate("list resources", err)
		}
		resources = append(resources, resource)
	}
	if err := rows.Err(); err != nil {
		return nil, translate("list resources", err)
	}
	return resources, nil
}

// DeleteResource removes the resource together with its records and grants
// in one transaction.
func (s *Store) DeleteResource(ctx context.Context, id string) error {
	err := s.db.WithTransaction(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM access_grants WHERE resource_id = $1`, id); err != nil {
			return err
		}
		records, err := tx.Exec(ctx, `DELETE FROM encrypted_object_records WHERE resource_id = $1`, id)
		if err != nil {
			return err
		}
		tag, err := tx.Exec(ctx, `DELETE FROM protected_resources WHERE id = $1`, id)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("resource %s: %w", id, vaulterr.ErrResourceNotFound)
		}
		s.log.WithFields(logrus.Fields{
			"resource_id": id,
			"records":     records.RowsAffected(),
		}).Debug("deleted resource")
		return nil
	})
	return translate("delete resource", err)
}

const recordColumns = `
	id, object_key, resource_id, ciphertext_length, salt, nonce,
	original_content_type, original_byte_length, display_order, created_at`

func scanRecord(row pgx.Row) (*metadata.ObjectRecord, error) {
	record := &metadata.ObjectRecord{}
	err := row.Scan(
		&record.ID, &record.ObjectKey, &record.ResourceID, &record.CiphertextLength,
		&record.Metadata.Salt, &record.Metadata.Nonce,
		&record.Metadata.OriginalContentType, &record.Metadata.OriginalByteLength,
		&record.Order, &record.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return record, nil
}

func (s *Store) CreateRecord(ctx context.Context, record *metadata.ObjectRecord) error {
	if record.ID == "" || record.ResourceID == "" || record.ObjectKey == "" {
		return fmt.Errorf("record id, resource id and object key are required: %w", vaulterr.ErrInvalidInput)
	}

	_, err := s.db.pool.Exec(ctx, `
		INSERT INTO encrypted_object_records (`+recordColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		record.ID, record.ObjectKey, record.ResourceID, record.CiphertextLength,
		record.Metadata.Salt, record.Metadata.Nonce,
		record.Metadata.OriginalContentType, record.Metadata.OriginalByteLength,
		record.Order, record.CreatedAt,
	)
	return translate("create record", err)
}

func (s *Store) GetRecord(ctx context.Context, id string) (*metadata.ObjectRecord, error) {
	row := s.db.pool.QueryRow(ctx,
		`SELECT `+recordColumns+` FROM encrypted_object_records WHERE id = $1`, id)

	record, err := scanRecord(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("record %s: %w", id, vaulterr.ErrRecordNotFound)
	}
	if err != nil {
		return nil, translate("get record", err)
	}
	return record, nil
}

func (s *Store) ListRecords(ctx context.Context, resourceID string) ([]*metadata.ObjectRecord, error) {
	rows, err := s.db.pool.Query(ctx, `
		SELECT `+recordColumns+` FROM encrypted_object_records
		WHERE resource_id = $1
		ORDER BY display_order, created_at, id`, resourceID)
	if err != nil {
		return nil, translate("list records", err)
	}
	defer rows.Close()

	records := make([]*metadata.ObjectRecord, 0)
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, translate("list records", err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, translate("list records", err)
	}
	return records, nil
}

func (s *Store) DeleteRecord(ctx context.Context, id string) error {
	tag, err := s.db.pool.Exec(ctx, `DELETE FROM encrypted_object_records WHERE id = $1`, id)
	if err != nil {
		return translate("delete record", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("record %s: %w", id, vaulterr.ErrRecordNotFound)
	}
	return nil
}

func (s *Store) MaxOrder(ctx context.Context, resourceID string) (int, error) {
	var maxOrder int
	err := s.db.pool.QueryRow(ctx,
		`SELECT COALESCE(MAX(display_order), 0) FROM encrypted_object_records WHERE resource_id = $1`,
		resourceID).Scan(&maxOrder)
	if err != nil {
		return 0, translate("max order", err)
	}
	return maxOrder, nil
}

func (s *Store) ListObjectKeys(ctx context.Context) ([]string, error) {
	rows, err := s.db.pool.Query(ctx, `SELECT object_key FROM encrypted_object_records`)
	if err != nil {
		return nil, translate("list object keys", err)
	}

	keys, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, translate("list object keys", err)
	}
	return keys, nil
}

const grantColumns = `user_id, resource_id, can_view, can_upload, granted_by, granted_at`

func scanGrant(row pgx.Row) (*metadata.AccessGrant, error) {
	grant := &metadata.AccessGrant{}
	err := row.Scan(
		&grant.UserID, &grant.ResourceID, &grant.CanView, &grant.CanUpload,
		&grant.GrantedBy, &grant.GrantedAt,
	)
	if err != nil {
		return nil, err
	}
	return grant, nil
}

func (s *Store) UpsertGrant(ctx context.Context, grant *metadata.AccessGrant) error {
	if grant.UserID == "" || grant.ResourceID == "" {
		return fmt.Errorf("grant user id and resource id are required: %w", vaulterr.ErrInvalidInput)
	}

	err := s.db.WithRetry(ctx, func(ctx context.Context) error {
		_, err := s.db.pool.Exec(ctx, `
			INSERT INTO access_grants (`+grantColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (user_id, resource_id) DO UPDATE SET
				can_view = EXCLUDED.can_view,
				can_upload = EXCLUDED.can_upload,
				granted_by = EXCLUDED.granted_by,
				granted_at = EXCLUDED.granted_at`,
			grant.UserID, grant.ResourceID, grant.CanView, grant.CanUpload,
			grant.GrantedBy, grant.GrantedAt,
		)
		return err
	})
	return translate("upsert grant", err)
}

func (s *Store) GetGrant(ctx context.Context, userID, resourceID string) (*metadata.AccessGrant, error) {
	row := s.db.pool.QueryRow(ctx,
		`SELECT `+grantColumns+` FROM access_grants WHERE user_id = $1 AND resource_id = $2`,
		userID, resourceID)

	grant, err := scanGrant(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("grant for %s on %s: %w", userID, resourceID, vaulterr.ErrGrantNotFound)
	}
	if err != nil {
		return nil, translate("get grant", err)
	}
	return grant, nil
}

func (s *Store) DeleteGrant(ctx context.Context, userID, resourceID string) error {
	_, err := s.db.pool.Exec(ctx,
		`DELETE FROM access_grants WHERE user_id = $1 AND resource_id = $2`, userID, resourceID)
	return translate("delete grant", err)
}

func (s *Store) queryGrants(ctx context.Context, op, where string, arg string) ([]*metadata.AccessGrant, error) {
	rows, err := s.db.pool.Query(ctx,
		`SELECT `+grantColumns+` FROM access_grants WHERE `+where+` ORDER BY granted_at, user_id, resource_id`, arg)
	if err != nil {
		return nil, translate(op, err)
	}
	defer rows.Close()

	grants := make([]*metadata.AccessGrant, 0)
	for rows.Next() {
		grant, err := scanGrant(rows)
		if err != nil {
			return nil, translate(op, err)
		}
		grants = append(grants, grant)
	}
	if err := rows.Err(); err != nil {
		return nil, translate(op, err)
	}
	return grants, nil
}

func (s *Store) ListGrants(ctx context.Context, resourceID string) ([]*metadata.AccessGrant, error) {
	return s.queryGrants(ctx, "list grants", "resource_id = $1", resourceID)
}

func (s *Store) ListUserGrants(ctx context.Context, userID string) ([]*metadata.AccessGrant, error) {
	return s.queryGrants(ctx, "list user grants", "user_id = $1", userID)
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.HealthCheck(ctx)
}

func (s *Store) Close() error {
	s.db.Close()
	return nil
}
