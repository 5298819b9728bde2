package main

import (
	"fmt"

	"github.com/relaymq/amqp-go/rabbitmq"
)

// dialRecovering connects once and wraps the result in a RecoveringConnection
// so every subcommand benefits from automatic reconnect without repeating
// the orchestrator wiring.
func dialRecovering(opts *globalOptions) (*rabbitmq.RecoveringConnection, error) {
	factory := opts.factory()

	conn, err := factory.NewConnection()
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}

	endpoint := fmt.Sprintf("%s:%d", opts.host, opts.port)
	orchestrator := rabbitmq.NewRecoveryOrchestrator(factory, []string{endpoint}, conn)
	orchestrator.OnRecoveryError(func(e rabbitmq.ConnectionRecoveryError) {
		fmt.Printf("reconnect attempt %d failed: %v\n", e.Attempt, e.Err)
	})
	orchestrator.OnRecoverySucceeded(func(e rabbitmq.RecoverySucceeded) {
		fmt.Printf("reconnected (attempt %d), %d topology rename(s) replayed\n", e.Attempt, len(e.Renames))
	})

	return rabbitmq.NewRecoveringConnection(orchestrator), nil
}
