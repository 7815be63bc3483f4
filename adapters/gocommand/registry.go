package gocommand

import (
	"context"
	"fmt"
	"strings"

	"github.com/goliatone/go-command"
	commanddispatcher "github.com/goliatone/go-command/dispatcher"
	"github.com/goliatone/go-command/runner"
	jobqueuecommand "github.com/goliatone/go-job/queue/command"
)

const messageTypePrefix = "adconnect."

// ValidateMessage checks that msg names a type in the adconnect namespace and
// passes its own Validate, if it has one.
func ValidateMessage(msg any) error {
	typed, ok := msg.(command.Message)
	if !ok {
		return fmt.Errorf("gocommand: %T does not implement Type() string", msg)
	}
	if err := checkMessageType(typed.Type()); err != nil {
		return err
	}
	return command.ValidateMessage(msg)
}

func checkMessageType(messageType string) error {
	messageType = strings.TrimSpace(messageType)
	if messageType == "" {
		return fmt.Errorf("gocommand: message type is required")
	}
	if !strings.HasPrefix(messageType, messageTypePrefix) {
		return fmt.Errorf("gocommand: message type %q is outside the %s namespace", messageType, strings.TrimSuffix(messageTypePrefix, "."))
	}
	return nil
}

// messageTypeOf resolves the type a handler for T is registered under.
func messageTypeOf[T any]() (string, error) {
	var zero T
	typed, ok := any(zero).(command.Message)
	if !ok {
		return "", fmt.Errorf("gocommand: %T does not implement Type() string", zero)
	}
	if err := checkMessageType(typed.Type()); err != nil {
		return "", err
	}
	return typed.Type(), nil
}

// Registry holds the connection commands and the status query on top of a
// go-command registry.
type Registry struct {
	registry *command.Registry
}

func NewRegistry(registry *command.Registry) *Registry {
	if registry == nil {
		registry = command.NewRegistry()
	}
	return &Registry{registry: registry}
}

func (r *Registry) Unwrap() *command.Registry {
	if r == nil {
		return nil
	}
	return r.registry
}

func (r *Registry) AddResolver(key string, resolver command.Resolver) error {
	if r == nil || r.registry == nil {
		return fmt.Errorf("gocommand: registry is not configured")
	}
	return r.registry.AddResolver(strings.TrimSpace(key), resolver)
}

// MirrorToQueue copies every registered connection command into
// queueRegistry when the registry initializes, so go-job workers can run
// them.
func (r *Registry) MirrorToQueue(key string, queueRegistry *jobqueuecommand.Registry) error {
	if queueRegistry == nil {
		return fmt.Errorf("gocommand: queue registry is required")
	}
	return r.AddResolver(key, jobqueuecommand.QueueResolver(queueRegistry))
}

func (r *Registry) HasResolver(key string) bool {
	if r == nil || r.registry == nil {
		return false
	}
	return r.registry.HasResolver(strings.TrimSpace(key))
}

func (r *Registry) Initialize() error {
	if r == nil || r.registry == nil {
		return fmt.Errorf("gocommand: registry is not configured")
	}
	return r.registry.Initialize()
}

// RegisterCommand subscribes cmd on the global dispatcher and adds it to the
// registry. The subscription is dropped again when registration fails.
func RegisterCommand[T any](
	r *Registry,
	cmd command.Commander[T],
	runnerOpts ...runner.Option,
) (commanddispatcher.Subscription, error) {
	if r == nil || r.registry == nil {
		return nil, fmt.Errorf("gocommand: registry is not configured")
	}
	if cmd == nil {
		return nil, fmt.Errorf("gocommand: command is required")
	}
	messageType, err := messageTypeOf[T]()
	if err != nil {
		return nil, err
	}
	subscription := commanddispatcher.SubscribeCommand(cmd, runnerOpts...)
	if err := r.registry.RegisterCommand(cmd); err != nil {
		unsubscribe(subscription)
		return nil, fmt.Errorf("gocommand: register command %s: %w", messageType, err)
	}
	return subscription, nil
}

// RegisterQuery is RegisterCommand for queries.
func RegisterQuery[T any, R any](
	r *Registry,
	qry command.Querier[T, R],
	runnerOpts ...runner.Option,
) (commanddispatcher.Subscription, error) {
	if r == nil || r.registry == nil {
		return nil, fmt.Errorf("gocommand: registry is not configured")
	}
	if qry == nil {
		return nil, fmt.Errorf("gocommand: query is required")
	}
	messageType, err := messageTypeOf[T]()
	if err != nil {
		return nil, err
	}
	subscription := commanddispatcher.SubscribeQuery(qry, runnerOpts...)
	if err := r.registry.RegisterCommand(qry); err != nil {
		unsubscribe(subscription)
		return nil, fmt.Errorf("gocommand: register query %s: %w", messageType, err)
	}
	return subscription, nil
}

// Dispatch rejects malformed messages before they reach the dispatcher.
func Dispatch[T any](ctx context.Context, msg T) error {
	if err := ValidateMessage(msg); err != nil {
		return err
	}
	return commanddispatcher.Dispatch(ctx, msg)
}

func Query[T any, R any](ctx context.Context, msg T) (R, error) {
	if err := ValidateMessage(msg); err != nil {
		var zero R
		return zero, err
	}
	return commanddispatcher.Query[T, R](ctx, msg)
}

func unsubscribe(subscription commanddispatcher.Subscription) {
	if subscription != nil {
		subscription.Unsubscribe()
	}
}
