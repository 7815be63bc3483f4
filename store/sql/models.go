package sqlstore

import (
	"time"

	"github.com/uptrace/bun"
)

type connectionRecordModel struct {
	bun.BaseModel `bun:"table:adconnect_connection_records,alias:acr"`

	ID               string     `bun:"id,pk"`
	TenantID         string     `bun:"tenant_id,notnull"`
	EncryptedToken   []byte     `bun:"encrypted_token"`
	TokenKeyID       string     `bun:"token_key_id,notnull"`
	TokenKeyVersion  int        `bun:"token_key_version,notnull"`
	ExpiresAt        *time.Time `bun:"expires_at,nullzero"`
	Status           string     `bun:"status,notnull"`
	LinkedAccounts   []string   `bun:"linked_accounts,type:jsonb,notnull"`
	PrimaryAccountID string     `bun:"primary_account_id,notnull"`
	LastVerifiedAt   *time.Time `bun:"last_verified_at,nullzero"`
	StatusReason     string     `bun:"status_reason,notnull"`
	Version          int64      `bun:"version,notnull"`
	CreatedAt        time.Time  `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt        time.Time  `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}
