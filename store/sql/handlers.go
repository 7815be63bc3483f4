package sqlstore

import (
	"strings"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
)

func connectionRecordHandlers() repository.ModelHandlers[*connectionRecordModel] {
	return repository.ModelHandlers[*connectionRecordModel]{
		NewRecord: func() *connectionRecordModel {
			return &connectionRecordModel{}
		},
		GetID: func(record *connectionRecordModel) uuid.UUID {
			if record == nil {
				return uuid.Nil
			}
			return parseUUID(record.ID)
		},
		SetID: func(record *connectionRecordModel, id uuid.UUID) {
			if record == nil {
				return
			}
			record.ID = id.String()
		},
		GetIdentifier: func() string {
			return "tenant_id"
		},
		GetIdentifierValue: func(record *connectionRecordModel) string {
			if record == nil {
				return ""
			}
			return strings.TrimSpace(record.TenantID)
		},
	}
}

func parseUUID(value string) uuid.UUID {
	parsed, err := uuid.Parse(strings.TrimSpace(value))
	if err != nil {
		return uuid.Nil
	}
	return parsed
}
