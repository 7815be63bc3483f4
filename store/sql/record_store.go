package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-adconnect/core"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

const defaultTokenKeyID = "default"

// RecordStore persists one connection record per tenant. Access tokens are
// sealed with the configured SecretProvider before they reach the database.
type RecordStore struct {
	db      *bun.DB
	repo    repository.Repository[*connectionRecordModel]
	secrets core.SecretProvider
	now     func() time.Time
}

func NewRecordStore(db *bun.DB, secrets core.SecretProvider) (*RecordStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	if secrets == nil {
		return nil, fmt.Errorf("sqlstore: secret provider is required")
	}
	repo := repository.NewRepository[*connectionRecordModel](db, connectionRecordHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid connection record repository wiring: %w", err)
		}
	}
	return &RecordStore{
		db:      db,
		repo:    repo,
		secrets: secrets,
		now:     func() time.Time { return time.Now().UTC() },
	}, nil
}

func (s *RecordStore) Read(ctx context.Context, tenantID string) (core.ConnectionRecord, error) {
	if s == nil || s.db == nil {
		return core.ConnectionRecord{}, fmt.Errorf("sqlstore: record store is not configured")
	}
	tenantID = strings.TrimSpace(tenantID)
	if tenantID == "" {
		return core.ConnectionRecord{}, fmt.Errorf("sqlstore: tenant id is required")
	}
	model, err := findRecordTx(ctx, s.db, tenantID)
	if err != nil {
		return core.ConnectionRecord{}, err
	}
	if model == nil {
		return core.NewDisconnectedRecord(tenantID), nil
	}
	return s.toDomain(ctx, model)
}

// CompareAndSwap inserts the first row for a tenant when expectedVersion is 0
// and otherwise issues a version-guarded update. A lost race on either path
// surfaces as core.ErrVersionConflict.
func (s *RecordStore) CompareAndSwap(
	ctx context.Context,
	tenantID string,
	expectedVersion int64,
	next core.ConnectionRecord,
) (core.ConnectionRecord, error) {
	if s == nil || s.db == nil || s.repo == nil {
		return core.ConnectionRecord{}, fmt.Errorf("sqlstore: record store is not configured")
	}
	tenantID = strings.TrimSpace(tenantID)
	if tenantID == "" {
		return core.ConnectionRecord{}, fmt.Errorf("sqlstore: tenant id is required")
	}
	if expectedVersion < 0 {
		return core.ConnectionRecord{}, fmt.Errorf("sqlstore: expected version must not be negative")
	}

	next.TenantID = tenantID
	model, err := s.toModel(ctx, next)
	if err != nil {
		return core.ConnectionRecord{}, err
	}
	model.Version = expectedVersion + 1
	if model.UpdatedAt.IsZero() {
		model.UpdatedAt = s.now()
	}

	err = s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		current, findErr := findRecordTx(ctx, tx, tenantID)
		if findErr != nil {
			return findErr
		}
		if current == nil {
			if expectedVersion != 0 {
				return versionConflict(tenantID, expectedVersion, 0)
			}
			model.ID = uuid.NewString()
			model.CreatedAt = model.UpdatedAt
			if _, insertErr := s.repo.CreateTx(ctx, tx, model); insertErr != nil {
				if isUniqueViolation(insertErr) {
					return versionConflict(tenantID, expectedVersion, -1)
				}
				return insertErr
			}
			return nil
		}
		if current.Version != expectedVersion {
			return versionConflict(tenantID, expectedVersion, current.Version)
		}

		model.ID = current.ID
		model.CreatedAt = current.CreatedAt
		res, updateErr := tx.NewUpdate().
			Model(model).
			ExcludeColumn("id", "tenant_id", "created_at").
			Where("id = ?", current.ID).
			Where("version = ?", expectedVersion).
			Exec(ctx)
		if updateErr != nil {
			return updateErr
		}
		if affected, _ := res.RowsAffected(); affected == 0 {
			return versionConflict(tenantID, expectedVersion, -1)
		}
		return nil
	})
	if err != nil {
		return core.ConnectionRecord{}, err
	}

	stored := next.Clone()
	stored.Version = model.Version
	stored.UpdatedAt = model.UpdatedAt
	return stored, nil
}

// ListStale returns records in filter.Status whose last verification happened
// before filter.VerifiedBefore, least recently verified first.
func (s *RecordStore) ListStale(ctx context.Context, filter core.StaleRecordFilter) ([]core.ConnectionRecord, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("sqlstore: record store is not configured")
	}
	models := []*connectionRecordModel{}
	query := s.db.NewSelect().Model(&models)
	if filter.Status != "" {
		query = query.Where("?TableAlias.status = ?", string(filter.Status))
	}
	if !filter.VerifiedBefore.IsZero() {
		query = query.WhereGroup(" AND ", func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.
				Where("?TableAlias.last_verified_at IS NULL").
				WhereOr("?TableAlias.last_verified_at < ?", filter.VerifiedBefore.UTC())
		})
	}
	query = query.
		OrderExpr("?TableAlias.last_verified_at ASC").
		OrderExpr("?TableAlias.tenant_id ASC")
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}
	if err := query.Scan(ctx); err != nil {
		return nil, err
	}

	out := make([]core.ConnectionRecord, 0, len(models))
	for _, model := range models {
		// an unreadable token stays listed so the sweep still reports the tenant
		record, err := s.toDomain(ctx, model)
		if err != nil && !errors.Is(err, core.ErrCredentialUnreadable) {
			return nil, err
		}
		out = append(out, record)
	}
	return out, nil
}

func findRecordTx(ctx context.Context, db bun.IDB, tenantID string) (*connectionRecordModel, error) {
	model := &connectionRecordModel{}
	err := db.NewSelect().
		Model(model).
		Where("?TableAlias.tenant_id = ?", tenantID).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return model, nil
}

func (s *RecordStore) toModel(ctx context.Context, record core.ConnectionRecord) (*connectionRecordModel, error) {
	model := &connectionRecordModel{
		TenantID:         record.TenantID,
		ExpiresAt:        copyTime(record.ExpiresAt),
		Status:           string(record.Status),
		LinkedAccounts:   append([]string{}, record.LinkedAccounts...),
		PrimaryAccountID: record.PrimaryAccountID,
		LastVerifiedAt:   copyTime(record.LastVerifiedAt),
		StatusReason:     record.StatusReason,
		UpdatedAt:        record.UpdatedAt.UTC(),
		TokenKeyID:       defaultTokenKeyID,
	}
	if keyed, ok := s.secrets.(core.SecretMetadataProvider); ok {
		keyID, version := keyed.Metadata()
		if strings.TrimSpace(keyID) != "" {
			model.TokenKeyID = keyID
		}
		model.TokenKeyVersion = version
	}
	if token := strings.TrimSpace(record.AccessToken); token != "" {
		sealed, err := s.secrets.Encrypt(ctx, []byte(token))
		if err != nil {
			return nil, fmt.Errorf("sqlstore: encrypt access token: %w", err)
		}
		model.EncryptedToken = sealed
	}
	return model, nil
}

func (s *RecordStore) toDomain(ctx context.Context, model *connectionRecordModel) (core.ConnectionRecord, error) {
	record := core.ConnectionRecord{
		TenantID:         model.TenantID,
		ExpiresAt:        copyTime(model.ExpiresAt),
		Status:           core.ConnectionStatus(model.Status),
		LinkedAccounts:   append([]string{}, model.LinkedAccounts...),
		PrimaryAccountID: model.PrimaryAccountID,
		LastVerifiedAt:   copyTime(model.LastVerifiedAt),
		StatusReason:     model.StatusReason,
		Version:          model.Version,
		UpdatedAt:        model.UpdatedAt.UTC(),
	}
	if len(model.EncryptedToken) > 0 {
		plaintext, err := s.secrets.Decrypt(ctx, model.EncryptedToken)
		if err != nil {
			return record, fmt.Errorf(
				"%w: tenant %q (key %s v%d): %w",
				core.ErrCredentialUnreadable,
				model.TenantID,
				model.TokenKeyID,
				model.TokenKeyVersion,
				err,
			)
		}
		record.AccessToken = string(plaintext)
	}
	return record, nil
}

func versionConflict(tenantID string, expected int64, found int64) error {
	if found < 0 {
		return fmt.Errorf("%w: tenant %q expected version %d", core.ErrVersionConflict, tenantID, expected)
	}
	return fmt.Errorf("%w: tenant %q expected version %d, found %d", core.ErrVersionConflict, tenantID, expected, found)
}

func isUniqueViolation(err error) bool {
	message := strings.ToLower(strings.TrimSpace(err.Error()))
	return strings.Contains(message, "unique constraint failed") ||
		strings.Contains(message, "duplicate key value violates unique constraint")
}

func copyTime(value *time.Time) *time.Time {
	if value == nil {
		return nil
	}
	copied := value.UTC()
	return &copied
}

var (
	_ core.ConnectionRecordStore = (*RecordStore)(nil)
	_ core.RecordLister          = (*RecordStore)(nil)
)
