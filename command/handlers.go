package command

import (
	"context"

	"github.com/goliatone/go-adconnect/core"
	gocmd "github.com/goliatone/go-command"
)

// MutatingService is the slice of the connection gate the commands drive.
type MutatingService interface {
	Connect(ctx context.Context, req core.ConnectRequest) (core.ValidatedCredential, error)
	Disconnect(ctx context.Context, tenantID string, reason string) error
	EnsureConnected(ctx context.Context, tenantID string) (core.ValidatedCredential, error)
	SelectPrimaryAccount(ctx context.Context, tenantID string, accountID string) (core.ConnectionStatusView, error)
	ReverifyStale(ctx context.Context, opts core.SweepOptions) (core.SweepResult, error)
}

type ConnectCommand struct {
	service MutatingService
}

func NewConnectCommand(service MutatingService) *ConnectCommand {
	return &ConnectCommand{service: service}
}

func (c *ConnectCommand) Execute(ctx context.Context, msg ConnectMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: connect service is required")
	}
	out, err := c.service.Connect(ctx, msg.Request)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type DisconnectCommand struct {
	service MutatingService
}

func NewDisconnectCommand(service MutatingService) *DisconnectCommand {
	return &DisconnectCommand{service: service}
}

func (c *DisconnectCommand) Execute(ctx context.Context, msg DisconnectMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: disconnect service is required")
	}
	return c.service.Disconnect(ctx, msg.TenantID, msg.Reason)
}

type EnsureConnectedCommand struct {
	service MutatingService
}

func NewEnsureConnectedCommand(service MutatingService) *EnsureConnectedCommand {
	return &EnsureConnectedCommand{service: service}
}

func (c *EnsureConnectedCommand) Execute(ctx context.Context, msg EnsureConnectedMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: connection gate is required")
	}
	out, err := c.service.EnsureConnected(ctx, msg.TenantID)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type SelectPrimaryAccountCommand struct {
	service MutatingService
}

func NewSelectPrimaryAccountCommand(service MutatingService) *SelectPrimaryAccountCommand {
	return &SelectPrimaryAccountCommand{service: service}
}

func (c *SelectPrimaryAccountCommand) Execute(ctx context.Context, msg SelectPrimaryAccountMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: primary account service is required")
	}
	out, err := c.service.SelectPrimaryAccount(ctx, msg.TenantID, msg.AccountID)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type ReverifyStaleCommand struct {
	service MutatingService
}

func NewReverifyStaleCommand(service MutatingService) *ReverifyStaleCommand {
	return &ReverifyStaleCommand{service: service}
}

func (c *ReverifyStaleCommand) Execute(ctx context.Context, msg ReverifyStaleMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: re-verification service is required")
	}
	out, err := c.service.ReverifyStale(ctx, msg.options())
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

func storeResult[T any](ctx context.Context, value T) {
	collector := gocmd.ResultFromContext[T](ctx)
	if collector == nil {
		return
	}
	collector.Store(value)
}
