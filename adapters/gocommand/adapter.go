package gocommand

import (
	"context"
	"fmt"
	"strings"

	"github.com/goliatone/go-command"
	commanddispatcher "github.com/goliatone/go-command/dispatcher"
	"github.com/goliatone/go-command/runner"
	connectionscommand "github.com/goliatone/go-connections/command"
	"github.com/goliatone/go-connections/core"
	connectionsquery "github.com/goliatone/go-connections/query"
	jobqueuecommand "github.com/goliatone/go-job/queue/command"
)

// ValidateMessageContract checks that msg has a non-empty Type() and passes
// its own Validate() when it has one.
func ValidateMessageContract(msg any) error {
	if err := command.ValidateMessage(msg); err != nil {
		return err
	}
	m, ok := msg.(command.Message)
	if !ok {
		return fmt.Errorf("gocommand: message must implement Type() string")
	}
	if strings.TrimSpace(m.Type()) == "" {
		return fmt.Errorf("gocommand: message type is required")
	}
	return nil
}

type RegistryAdapter struct {
	registry *command.Registry
}

func NewRegistryAdapter(registry *command.Registry) *RegistryAdapter {
	if registry == nil {
		registry = command.NewRegistry()
	}
	return &RegistryAdapter{registry: registry}
}

func (a *RegistryAdapter) Registry() *command.Registry {
	if a == nil {
		return nil
	}
	return a.registry
}

func (a *RegistryAdapter) RegisterCommand(cmd any) error {
	if a == nil || a.registry == nil {
		return fmt.Errorf("gocommand: registry is not configured")
	}
	return a.registry.RegisterCommand(cmd)
}

// AddQueueResolver mirrors registered commands into a go-job queue registry
// so they can also run from background workers.
func (a *RegistryAdapter) AddQueueResolver(key string, queueRegistry *jobqueuecommand.Registry) error {
	if a == nil || a.registry == nil {
		return fmt.Errorf("gocommand: registry is not configured")
	}
	if queueRegistry == nil {
		return fmt.Errorf("gocommand: queue registry is required")
	}
	return a.registry.AddResolver(strings.TrimSpace(key), jobqueuecommand.QueueResolver(queueRegistry))
}

func (a *RegistryAdapter) Initialize() error {
	if a == nil || a.registry == nil {
		return fmt.Errorf("gocommand: registry is not configured")
	}
	return a.registry.Initialize()
}

func Dispatch[T any](ctx context.Context, msg T) error {
	return commanddispatcher.Dispatch(ctx, msg)
}

func Query[T any, R any](ctx context.Context, msg T) (R, error) {
	return commanddispatcher.Query[T, R](ctx, msg)
}

func RegisterAndSubscribe[T any](
	adapter *RegistryAdapter,
	cmd command.Commander[T],
	runnerOpts ...runner.Option,
) (commanddispatcher.Subscription, error) {
	if adapter == nil || adapter.registry == nil {
		return nil, fmt.Errorf("gocommand: registry is not configured")
	}
	if cmd == nil {
		return nil, fmt.Errorf("gocommand: command is required")
	}
	subscription := commanddispatcher.SubscribeCommand(cmd, runnerOpts...)
	if err := adapter.RegisterCommand(cmd); err != nil {
		if subscription != nil {
			subscription.Unsubscribe()
		}
		return nil, err
	}
	return subscription, nil
}

func SubscribeQuery[T any, R any](
	qry command.Querier[T, R],
	runnerOpts ...runner.Option,
) (commanddispatcher.Subscription, error) {
	if qry == nil {
		return nil, fmt.Errorf("gocommand: query is required")
	}
	return commanddispatcher.SubscribeQuery(qry, runnerOpts...), nil
}

// Subscriptions groups the bus subscriptions created for one directory.
type Subscriptions []commanddispatcher.Subscription

func (s Subscriptions) Unsubscribe() {
	for _, subscription := range s {
		if subscription != nil {
			subscription.Unsubscribe()
		}
	}
}

// RegisterConnectionHandlers subscribes every connection command and query
// served by directory. Commands are also added to the adapter's registry.
func RegisterConnectionHandlers(
	adapter *RegistryAdapter,
	directory core.UsersConnectionRepository,
	runnerOpts ...runner.Option,
) (Subscriptions, error) {
	if directory == nil {
		return nil, fmt.Errorf("gocommand: connection directory is required")
	}
	var subs Subscriptions
	fail := func(err error) (Subscriptions, error) {
		subs.Unsubscribe()
		return nil, err
	}

	commands := []func() (commanddispatcher.Subscription, error){
		func() (commanddispatcher.Subscription, error) {
			return RegisterAndSubscribe(adapter, connectionscommand.NewAddConnectionCommand(directory), runnerOpts...)
		},
		func() (commanddispatcher.Subscription, error) {
			return RegisterAndSubscribe(adapter, connectionscommand.NewUpdateConnectionCommand(directory), runnerOpts...)
		},
		func() (commanddispatcher.Subscription, error) {
			return RegisterAndSubscribe(adapter, connectionscommand.NewRemoveConnectionCommand(directory), runnerOpts...)
		},
		func() (commanddispatcher.Subscription, error) {
			return RegisterAndSubscribe(adapter, connectionscommand.NewRemoveConnectionsCommand(directory), runnerOpts...)
		},
		func() (commanddispatcher.Subscription, error) {
			return RegisterAndSubscribe(adapter, connectionscommand.NewCompleteSignInCommand(directory), runnerOpts...)
		},
		func() (commanddispatcher.Subscription, error) {
			return SubscribeQuery(connectionsquery.NewFindAllConnectionsQuery(directory), runnerOpts...)
		},
		func() (commanddispatcher.Subscription, error) {
			return SubscribeQuery(connectionsquery.NewFindConnectionsQuery(directory), runnerOpts...)
		},
		func() (commanddispatcher.Subscription, error) {
			return SubscribeQuery(connectionsquery.NewGetConnectionQuery(directory), runnerOpts...)
		},
		func() (commanddispatcher.Subscription, error) {
			return SubscribeQuery(connectionsquery.NewFindPrimaryConnectionQuery(directory), runnerOpts...)
		},
		func() (commanddispatcher.Subscription, error) {
			return SubscribeQuery(connectionsquery.NewFindConnectionsToUsersQuery(directory), runnerOpts...)
		},
		func() (commanddispatcher.Subscription, error) {
			return SubscribeQuery(connectionsquery.NewFindUserIDsWithConnectionQuery(directory), runnerOpts...)
		},
		func() (commanddispatcher.Subscription, error) {
			return SubscribeQuery(connectionsquery.NewFindUserIDsConnectedToQuery(directory), runnerOpts...)
		},
	}
	for _, subscribe := range commands {
		subscription, err := subscribe()
		if err != nil {
			return fail(err)
		}
		subs = append(subs, subscription)
	}
	return subs, nil
}
