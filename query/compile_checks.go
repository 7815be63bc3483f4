package query

import (
	"github.com/goliatone/go-adconnect/core"
	gocmd "github.com/goliatone/go-command"
)

var (
	_ gocmd.Querier[GetConnectionStatusMessage, core.ConnectionStatusView] = (*GetConnectionStatusQuery)(nil)
	_ ConnectionStatusReader                                               = (*core.Service)(nil)
)
