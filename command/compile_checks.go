package command

import (
	"github.com/goliatone/go-adconnect/core"
	gocmd "github.com/goliatone/go-command"
)

var (
	_ gocmd.Commander[ConnectMessage]              = (*ConnectCommand)(nil)
	_ gocmd.Commander[DisconnectMessage]           = (*DisconnectCommand)(nil)
	_ gocmd.Commander[EnsureConnectedMessage]      = (*EnsureConnectedCommand)(nil)
	_ gocmd.Commander[SelectPrimaryAccountMessage] = (*SelectPrimaryAccountCommand)(nil)
	_ gocmd.Commander[ReverifyStaleMessage]        = (*ReverifyStaleCommand)(nil)

	_ MutatingService = (*core.Service)(nil)
)
