package command

import (
	"context"
	"net/http"
	"testing"

	"github.com/goliatone/go-adconnect/core"
	goerrors "github.com/goliatone/go-errors"
)

func TestMessageValidation_NamesOffendingField(t *testing.T) {
	tests := []struct {
		name  string
		msg   interface{ Validate() error }
		field string
	}{
		{name: "connect without tenant", msg: ConnectMessage{}, field: "tenant_id"},
		{name: "connect without token", msg: ConnectMessage{Request: core.ConnectRequest{TenantID: "tenant_1", AccessToken: " "}}, field: "access_token"},
		{name: "disconnect without tenant", msg: DisconnectMessage{Reason: "cleanup"}, field: "tenant_id"},
		{name: "ensure without tenant", msg: EnsureConnectedMessage{}, field: "tenant_id"},
		{name: "select without account", msg: SelectPrimaryAccountMessage{TenantID: "tenant_1"}, field: "account_id"},
		{name: "sweep with negative limit", msg: ReverifyStaleMessage{Limit: -1}, field: "limit"},
		{name: "sweep with negative lead", msg: ReverifyStaleMessage{Lead: -1}, field: "lead"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var rich *goerrors.Error
			if !goerrors.As(tc.msg.Validate(), &rich) {
				t.Fatalf("expected go-errors envelope")
			}
			if rich.Category != goerrors.CategoryValidation || rich.Code != http.StatusBadRequest {
				t.Fatalf("expected 400 validation error, got %q/%d", rich.Category, rich.Code)
			}
			if rich.TextCode != core.ServiceErrorBadInput {
				t.Fatalf("expected %q text code, got %q", core.ServiceErrorBadInput, rich.TextCode)
			}
			if len(rich.ValidationErrors) != 1 || rich.ValidationErrors[0].Field != tc.field {
				t.Fatalf("expected field %q, got %#v", tc.field, rich.ValidationErrors)
			}
		})
	}
}

func TestCommands_WithoutGateReturnInternalError(t *testing.T) {
	ctx := context.Background()
	executions := map[string]func() error{
		"connect":    func() error { return (*ConnectCommand)(nil).Execute(ctx, ConnectMessage{}) },
		"disconnect": func() error { return NewDisconnectCommand(nil).Execute(ctx, DisconnectMessage{TenantID: "tenant_1"}) },
		"ensure":     func() error { return NewEnsureConnectedCommand(nil).Execute(ctx, EnsureConnectedMessage{TenantID: "tenant_1"}) },
		"select": func() error {
			return NewSelectPrimaryAccountCommand(nil).Execute(ctx, SelectPrimaryAccountMessage{TenantID: "tenant_1", AccountID: "act_1"})
		},
		"sweep": func() error { return NewReverifyStaleCommand(nil).Execute(ctx, ReverifyStaleMessage{}) },
	}
	for name, execute := range executions {
		t.Run(name, func(t *testing.T) {
			var rich *goerrors.Error
			if !goerrors.As(execute(), &rich) {
				t.Fatalf("expected go-errors envelope")
			}
			if rich.Category != goerrors.CategoryInternal || rich.TextCode != core.ServiceErrorInternal {
				t.Fatalf("expected internal error, got %q/%q", rich.Category, rich.TextCode)
			}
		})
	}
}
