package query

import (
	"context"

	"github.com/goliatone/go-adconnect/core"
)

// ConnectionStatusReader reports a tenant's connection without touching the
// remote provider.
type ConnectionStatusReader interface {
	GetConnectionStatus(ctx context.Context, tenantID string) (core.ConnectionStatusView, error)
}

type GetConnectionStatusQuery struct {
	reader ConnectionStatusReader
}

func NewGetConnectionStatusQuery(reader ConnectionStatusReader) *GetConnectionStatusQuery {
	return &GetConnectionStatusQuery{reader: reader}
}

func (q *GetConnectionStatusQuery) Query(
	ctx context.Context,
	msg GetConnectionStatusMessage,
) (core.ConnectionStatusView, error) {
	if q == nil || q.reader == nil {
		return core.ConnectionStatusView{}, queryDependencyError("query: connection status reader is required")
	}
	return q.reader.GetConnectionStatus(ctx, msg.TenantID)
}
