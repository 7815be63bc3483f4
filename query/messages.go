package query

import "strings"

const TypeGetConnectionStatus = "adconnect.query.connection_status.get"

type GetConnectionStatusMessage struct {
	TenantID string
}

func (GetConnectionStatusMessage) Type() string { return TypeGetConnectionStatus }

func (m GetConnectionStatusMessage) Validate() error {
	if strings.TrimSpace(m.TenantID) == "" {
		return queryValidationError("tenant_id", "tenant id is required")
	}
	return nil
}
