package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/relaymq/amqp-go/rabbitmq"
)

type publishOptions struct {
	exchange     string
	routingKey   string
	mandatory    bool
	contentType  string
	deliveryMode uint8
}

// newPublishCommand publishes one message's body (the command's sole
// positional argument) to an exchange/routing-key pair.
func newPublishCommand(opts *globalOptions) *cobra.Command {
	p := &publishOptions{deliveryMode: 1}

	cmd := &cobra.Command{
		Use:   "publish BODY",
		Short: "Publish a single message",
		Args:  cobra.ExactArgs(1),
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

			msg := rabbitmq.Publishing{
				Properties: rabbitmq.Properties{
					ContentType:  p.contentType,
					DeliveryMode: p.deliveryMode,
				},
				Body: []byte(args[0]),
			}

			if err := ch.Publish(p.exchange, p.routingKey, p.mandatory, false, msg); err != nil {
				return fmt.Errorf("publish: %w", err)
			}

			fmt.Printf("published %d byte(s) to exchange %q routing key %q\n", len(msg.Body), p.exchange, p.routingKey)
			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&p.exchange, "exchange", "", "destination exchange (empty string for the default exchange)")
	flags.StringVar(&p.routingKey, "routing-key", "", "routing key")
	flags.BoolVar(&p.mandatory, "mandatory", false, "return the message if unroutable")
	flags.StringVar(&p.contentType, "content-type", "text/plain", "message content type")
	flags.Uint8Var(&p.deliveryMode, "delivery-mode", 1, "1=non-persistent, 2=persistent")

	return cmd
}
