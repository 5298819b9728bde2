package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/relaymq/amqp-go/rabbitmq"
)

type declareOptions struct {
	durable    bool
	autoDelete bool
	exclusive  bool
	kind       string
	bindTo     string
	routingKey string
}

// newDeclareCommand declares an exchange and/or a queue, optionally binding
// the queue to the exchange -- the topology half of what a production
// application would record through TopologyRecorder automatically on first
// use.
func newDeclareCommand(opts *globalOptions) *cobra.Command {
	d := &declareOptions{kind: "direct"}

	cmd := &cobra.Command{
		Use:   "declare exchange|queue NAME",
		Short: "Declare an exchange or queue, optionally binding it",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			rc, err := dialRecovering(opts)
			if err != nil {
				return err
			}
			defer rc.Close()

			rm, err := rc.NewChannel()
			if err != nil {
				return fmt.Errorf("open channel: %w", err)
			}
			ch := rm.Underlying()

			kind, name := args[0], args[1]
			switch kind {
			case "exchange":
				if err := ch.ExchangeDeclare(name, d.kind, rabbitmq.ExchangeDeclareOptions{
					Durable:    d.durable,
					AutoDelete: d.autoDelete,
				}); err != nil {
					return fmt.Errorf("declare exchange: %w", err)
				}
				fmt.Printf("declared exchange %q (%s)\n", name, d.kind)

			case "queue":
				q, err := ch.QueueDeclare(name, rabbitmq.QueueDeclareOptions{
					Durable:    d.durable,
					AutoDelete: d.autoDelete,
					Exclusive:  d.exclusive,
				})
				if err != nil {
					return fmt.Errorf("declare queue: %w", err)
				}
				fmt.Printf("declared queue %q (messages=%d consumers=%d)\n", q.Name, q.Messages, q.Consumers)

				if d.bindTo != "" {
					if err := ch.QueueBind(q.Name, d.bindTo, d.routingKey, nil); err != nil {
						return fmt.Errorf("bind queue: %w", err)
					}
					fmt.Printf("bound %q to exchange %q with routing key %q\n", q.Name, d.bindTo, d.routingKey)
				}

			default:
				return fmt.Errorf("unknown declare target %q (want exchange or queue)", kind)
			}

			return nil
		},
	}

	flags := cmd.Flags()
	flags.BoolVar(&d.durable, "durable", false, "survive broker restart")
	flags.BoolVar(&d.autoDelete, "auto-delete", false, "delete when no longer used")
	flags.BoolVar(&d.exclusive, "exclusive", false, "queue only: restrict to this connection")
	flags.StringVar(&d.kind, "type", "direct", "exchange only: direct, fanout, topic, or headers")
	flags.StringVar(&d.bindTo, "bind-to", "", "queue only: exchange to bind this queue to")
	flags.StringVar(&d.routingKey, "routing-key", "", "queue only: routing key for --bind-to")

	return cmd
}
