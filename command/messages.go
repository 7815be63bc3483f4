package command

import (
	"strings"
	"time"

	"github.com/goliatone/go-adconnect/core"
)

const (
	TypeConnect              = "adconnect.command.connect"
	TypeDisconnect           = "adconnect.command.disconnect"
	TypeEnsureConnected      = "adconnect.command.ensure_connected"
	TypeSelectPrimaryAccount = "adconnect.command.primary_account.select"
	TypeReverifyStale        = "adconnect.command.reverify_stale"
)

type ConnectMessage struct {
	Request core.ConnectRequest
}

func (ConnectMessage) Type() string { return TypeConnect }

func (m ConnectMessage) Validate() error {
	if err := validateTenant(m.Request.TenantID); err != nil {
		return err
	}
	if strings.TrimSpace(m.Request.AccessToken) == "" {
		return commandValidationError("access_token", "access token is required")
	}
	return nil
}

type DisconnectMessage struct {
	TenantID string
	Reason   string
}

func (DisconnectMessage) Type() string { return TypeDisconnect }

func (m DisconnectMessage) Validate() error {
	return validateTenant(m.TenantID)
}

// EnsureConnectedMessage runs the gate for a tenant ahead of an advertising
// operation. The validated credential is stored in the command result.
type EnsureConnectedMessage struct {
	TenantID string
}

func (EnsureConnectedMessage) Type() string { return TypeEnsureConnected }

func (m EnsureConnectedMessage) Validate() error {
	return validateTenant(m.TenantID)
}

type SelectPrimaryAccountMessage struct {
	TenantID  string
	AccountID string
}

func (SelectPrimaryAccountMessage) Type() string { return TypeSelectPrimaryAccount }

func (m SelectPrimaryAccountMessage) Validate() error {
	if err := validateTenant(m.TenantID); err != nil {
		return err
	}
	if strings.TrimSpace(m.AccountID) == "" {
		return commandValidationError("account_id", "account id is required")
	}
	return nil
}

type ReverifyStaleMessage struct {
	Limit int
	Lead  time.Duration
}

func (ReverifyStaleMessage) Type() string { return TypeReverifyStale }

func (m ReverifyStaleMessage) Validate() error {
	if m.Limit < 0 {
		return commandValidationError("limit", "limit must be >= 0")
	}
	if m.Lead < 0 {
		return commandValidationError("lead", "lead must be >= 0")
	}
	return nil
}

func (m ReverifyStaleMessage) options() core.SweepOptions {
	return core.SweepOptions{Limit: m.Limit, Lead: m.Lead}
}

func validateTenant(tenantID string) error {
	if strings.TrimSpace(tenantID) == "" {
		return commandValidationError("tenant_id", "tenant id is required")
	}
	return nil
}
