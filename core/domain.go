package core

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"
)

var (
	ErrInvalidConnectionStatusTransition = errors.New("core: invalid connection status transition")
	ErrInvalidConnectionRecord           = errors.New("core: invalid connection record")
	ErrVersionConflict                   = errors.New("core: connection record version conflict")
	// ErrCredentialUnreadable marks a stored token the SecretProvider could
	// not open. Stores return it together with the record, token omitted.
	ErrCredentialUnreadable = errors.New("core: stored credential could not be decrypted")
)

type ConnectionStatus string

const (
	ConnectionStatusDisconnected ConnectionStatus = "disconnected"
	ConnectionStatusConnected    ConnectionStatus = "connected"
	ConnectionStatusExpired      ConnectionStatus = "expired"
	ConnectionStatusInvalid      ConnectionStatus = "invalid"
)

func (s ConnectionStatus) Valid() bool {
	switch s {
	case ConnectionStatusDisconnected,
		ConnectionStatusConnected,
		ConnectionStatusExpired,
		ConnectionStatusInvalid:
		return true
	default:
		return false
	}
}

// ConnectionRecord is the per-tenant credential and connection state. It is
// mutated only through Service operations and persisted by compare-and-swap.
type ConnectionRecord struct {
	TenantID         string
	AccessToken      string
	ExpiresAt        *time.Time
	Status           ConnectionStatus
	LinkedAccounts   []string
	PrimaryAccountID string
	LastVerifiedAt   *time.Time
	StatusReason     string
	Version          int64
	UpdatedAt        time.Time
}

// NewDisconnectedRecord returns the default record for a tenant that never
// supplied a credential.
func NewDisconnectedRecord(tenantID string) ConnectionRecord {
	return ConnectionRecord{
		TenantID:       strings.TrimSpace(tenantID),
		Status:         ConnectionStatusDisconnected,
		LinkedAccounts: []string{},
	}
}

func (r ConnectionRecord) HasAccessToken() bool {
	return strings.TrimSpace(r.AccessToken) != ""
}

// PastExpiry reports whether the record carries a known expiry that now has
// passed. An absent expiry is never past.
func (r ConnectionRecord) PastExpiry(now time.Time) bool {
	if r.ExpiresAt == nil {
		return false
	}
	return now.UTC().After(r.ExpiresAt.UTC())
}

// Fresh reports whether the record is connected and was verified within ttl.
func (r ConnectionRecord) Fresh(now time.Time, ttl time.Duration) bool {
	if r.Status != ConnectionStatusConnected || r.LastVerifiedAt == nil || !r.HasAccessToken() {
		return false
	}
	if ttl <= 0 {
		return false
	}
	age := now.UTC().Sub(r.LastVerifiedAt.UTC())
	return age >= 0 && age < ttl
}

// Validate checks the structural invariants that hold regardless of time.
func (r ConnectionRecord) Validate() error {
	if strings.TrimSpace(r.TenantID) == "" {
		return fmt.Errorf("%w: tenant id is required", ErrInvalidConnectionRecord)
	}
	if !r.Status.Valid() {
		return fmt.Errorf("%w: unknown status %q", ErrInvalidConnectionRecord, r.Status)
	}
	switch r.Status {
	case ConnectionStatusConnected:
		if !r.HasAccessToken() {
			return fmt.Errorf("%w: connected record has no access token", ErrInvalidConnectionRecord)
		}
		if r.LastVerifiedAt == nil {
			return fmt.Errorf("%w: connected record was never verified", ErrInvalidConnectionRecord)
		}
	case ConnectionStatusDisconnected:
		if r.HasAccessToken() {
			return fmt.Errorf("%w: disconnected record retains an access token", ErrInvalidConnectionRecord)
		}
	}
	if r.PrimaryAccountID != "" && !slices.Contains(r.LinkedAccounts, r.PrimaryAccountID) {
		return fmt.Errorf("%w: primary account %q is not linked", ErrInvalidConnectionRecord, r.PrimaryAccountID)
	}
	if r.Version < 0 {
		return fmt.Errorf("%w: negative version", ErrInvalidConnectionRecord)
	}
	return nil
}

func (r ConnectionRecord) Clone() ConnectionRecord {
	cloned := r
	cloned.ExpiresAt = cloneTime(r.ExpiresAt)
	cloned.LastVerifiedAt = cloneTime(r.LastVerifiedAt)
	cloned.LinkedAccounts = append([]string{}, r.LinkedAccounts...)
	return cloned
}

// ValidatedCredential is handed to advertising operations once the gate
// confirmed the tenant connection.
type ValidatedCredential struct {
	TenantID         string
	AccessToken      string
	ExpiresAt        *time.Time
	LinkedAccounts   []string
	PrimaryAccountID string
	VerifiedAt       time.Time
	Version          int64
	CacheHit         bool
}

func validatedCredentialFrom(record ConnectionRecord, cacheHit bool) ValidatedCredential {
	credential := ValidatedCredential{
		TenantID:         record.TenantID,
		AccessToken:      record.AccessToken,
		ExpiresAt:        cloneTime(record.ExpiresAt),
		LinkedAccounts:   append([]string{}, record.LinkedAccounts...),
		PrimaryAccountID: record.PrimaryAccountID,
		Version:          record.Version,
		CacheHit:         cacheHit,
	}
	if record.LastVerifiedAt != nil {
		credential.VerifiedAt = record.LastVerifiedAt.UTC()
	}
	return credential
}

// ConnectionStatusView is the read-only projection of a record. It never
// exposes the access token.
type ConnectionStatusView struct {
	TenantID         string
	Status           ConnectionStatus
	HasCredential    bool
	Fresh            bool
	LinkedAccounts   []string
	PrimaryAccountID string
	ExpiresAt        *time.Time
	LastVerifiedAt   *time.Time
	StatusReason     string
	Version          int64
}

func statusViewFrom(record ConnectionRecord, now time.Time, ttl time.Duration) ConnectionStatusView {
	return ConnectionStatusView{
		TenantID:         record.TenantID,
		Status:           record.Status,
		HasCredential:    record.HasAccessToken(),
		Fresh:            record.Fresh(now, ttl),
		LinkedAccounts:   append([]string{}, record.LinkedAccounts...),
		PrimaryAccountID: record.PrimaryAccountID,
		ExpiresAt:        cloneTime(record.ExpiresAt),
		LastVerifiedAt:   cloneTime(record.LastVerifiedAt),
		StatusReason:     record.StatusReason,
		Version:          record.Version,
	}
}

type VerificationResult string

const (
	VerificationValid       VerificationResult = "valid"
	VerificationInvalid     VerificationResult = "invalid"
	VerificationUnreachable VerificationResult = "unreachable"
)

// VerificationOutcome is the classified result of a single remote check.
type VerificationOutcome struct {
	Result           VerificationResult
	LinkedAccounts   []string
	PrimaryAccountID string
	ExpiresAt        *time.Time
	Reason           string
}

func ValidOutcome(linkedAccounts []string, primaryAccountID string) VerificationOutcome {
	return VerificationOutcome{
		Result:           VerificationValid,
		LinkedAccounts:   normalizeAccounts(linkedAccounts),
		PrimaryAccountID: strings.TrimSpace(primaryAccountID),
	}
}

func InvalidOutcome(reason string) VerificationOutcome {
	return VerificationOutcome{Result: VerificationInvalid, Reason: strings.TrimSpace(reason)}
}

func UnreachableOutcome(reason string) VerificationOutcome {
	return VerificationOutcome{Result: VerificationUnreachable, Reason: strings.TrimSpace(reason)}
}

// StatusChange is published to lifecycle hooks after a persisted status change.
type StatusChange struct {
	TenantID string
	From     ConnectionStatus
	To       ConnectionStatus
	Reason   string
	Version  int64
	At       time.Time
}

func normalizeAccounts(accounts []string) []string {
	out := make([]string, 0, len(accounts))
	for _, account := range accounts {
		trimmed := strings.TrimSpace(account)
		if trimmed == "" || slices.Contains(out, trimmed) {
			continue
		}
		out = append(out, trimmed)
	}
	return out
}

func cloneTime(value *time.Time) *time.Time {
	if value == nil {
		return nil
	}
	copied := value.UTC()
	return &copied
}
