package gocommand

import (
	"fmt"

	adcommand "github.com/goliatone/go-adconnect/command"
	"github.com/goliatone/go-adconnect/core"
	adquery "github.com/goliatone/go-adconnect/query"
	commanddispatcher "github.com/goliatone/go-command/dispatcher"
	"github.com/goliatone/go-command/runner"
)

// GateSubscriptions holds the dispatcher subscriptions created for one gate.
type GateSubscriptions []commanddispatcher.Subscription

func (s GateSubscriptions) Unsubscribe() {
	for _, subscription := range s {
		unsubscribe(subscription)
	}
}

// RegisterConnectionGate registers every connection command and the status
// query against registry and subscribes them on the global dispatcher. A
// failure unsubscribes everything registered so far.
func RegisterConnectionGate(
	registry *Registry,
	gate core.ConnectionGate,
	runnerOpts ...runner.Option,
) (GateSubscriptions, error) {
	if registry == nil || registry.registry == nil {
		return nil, fmt.Errorf("gocommand: registry is not configured")
	}
	if gate == nil {
		return nil, fmt.Errorf("gocommand: connection gate is required")
	}

	subscriptions := GateSubscriptions{}
	track := func(subscription commanddispatcher.Subscription, err error) error {
		if err != nil {
			subscriptions.Unsubscribe()
			return err
		}
		subscriptions = append(subscriptions, subscription)
		return nil
	}

	if err := track(RegisterCommand[adcommand.ConnectMessage](registry, adcommand.NewConnectCommand(gate), runnerOpts...)); err != nil {
		return nil, err
	}
	if err := track(RegisterCommand[adcommand.DisconnectMessage](registry, adcommand.NewDisconnectCommand(gate), runnerOpts...)); err != nil {
		return nil, err
	}
	if err := track(RegisterCommand[adcommand.EnsureConnectedMessage](registry, adcommand.NewEnsureConnectedCommand(gate), runnerOpts...)); err != nil {
		return nil, err
	}
	if err := track(RegisterCommand[adcommand.SelectPrimaryAccountMessage](registry, adcommand.NewSelectPrimaryAccountCommand(gate), runnerOpts...)); err != nil {
		return nil, err
	}
	if err := track(RegisterCommand[adcommand.ReverifyStaleMessage](registry, adcommand.NewReverifyStaleCommand(gate), runnerOpts...)); err != nil {
		return nil, err
	}
	if err := track(RegisterQuery[adquery.GetConnectionStatusMessage, core.ConnectionStatusView](
		registry,
		adquery.NewGetConnectionStatusQuery(gate),
		runnerOpts...,
	)); err != nil {
		return nil, err
	}
	return subscriptions, nil
}
