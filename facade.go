package adconnect

import (
	"fmt"

	adcommand "github.com/goliatone/go-adconnect/command"
	adquery "github.com/goliatone/go-adconnect/query"
)

// CommandQueryService is what the facade needs from a connection gate.
type CommandQueryService interface {
	adcommand.MutatingService
	adquery.ConnectionStatusReader
}

type Commands struct {
	Connect              *adcommand.ConnectCommand
	Disconnect           *adcommand.DisconnectCommand
	EnsureConnected      *adcommand.EnsureConnectedCommand
	SelectPrimaryAccount *adcommand.SelectPrimaryAccountCommand
	ReverifyStale        *adcommand.ReverifyStaleCommand
}

type Queries struct {
	GetConnectionStatus *adquery.GetConnectionStatusQuery
}

type Facade struct {
	service  CommandQueryService
	commands Commands
	queries  Queries
}

func NewFacade(service CommandQueryService) (*Facade, error) {
	if service == nil {
		return nil, fmt.Errorf("adconnect: command/query service is required")
	}
	return &Facade{
		service: service,
		commands: Commands{
			Connect:              adcommand.NewConnectCommand(service),
			Disconnect:           adcommand.NewDisconnectCommand(service),
			EnsureConnected:      adcommand.NewEnsureConnectedCommand(service),
			SelectPrimaryAccount: adcommand.NewSelectPrimaryAccountCommand(service),
			ReverifyStale:        adcommand.NewReverifyStaleCommand(service),
		},
		queries: Queries{
			GetConnectionStatus: adquery.NewGetConnectionStatusQuery(service),
		},
	}, nil
}

func (f *Facade) Commands() Commands {
	if f == nil {
		return Commands{}
	}
	return f.commands
}

func (f *Facade) Queries() Queries {
	if f == nil {
		return Queries{}
	}
	return f.queries
}

func (f *Facade) Service() CommandQueryService {
	if f == nil {
		return nil
	}
	return f.service
}
