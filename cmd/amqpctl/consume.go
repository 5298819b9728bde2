package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/relaymq/amqp-go/rabbitmq"
)

type consumeOptions struct {
	autoAck   bool
	exclusive bool
}

// newConsumeCommand subscribes to QUEUE and prints each delivery until
// interrupted. Deliveries are acked one at a time unless --auto-ack is set,
// so a killed process leaves unacked messages for redelivery rather than
// silently dropping them.
func newConsumeCommand(opts *globalOptions) *cobra.Command {
	c := &consumeOptions{}

	cmd := &cobra.Command{
		Use:   "consume QUEUE",
		Short: "Consume messages from a queue until interrupted",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			queue := args[0]

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

			deliveries, err := ch.Consume(queue, "", rabbitmq.ConsumeOptions{
				AutoAck:   c.autoAck,
				Exclusive: c.exclusive,
			})
			if err != nil {
				return fmt.Errorf("consume: %w", err)
			}

			sig := make(chan os.Signal, 1)
			signal.Notify(sig, os.Interrupt, syscall.SIGTERM)

			for {
				select {
				case <-sig:
					fmt.Println("interrupted, closing")
					return nil
				case d, ok := <-deliveries:
					if !ok {
						fmt.Println("consumer channel closed")
						return nil
					}
					fmt.Printf("delivery tag=%d routing_key=%q body=%q\n", d.DeliveryTag, d.RoutingKey, d.Body)
					if !c.autoAck {
						if err := d.Ack(false); err != nil {
							fmt.Printf("ack failed: %v\n", err)
						}
					}
				}
			}
		},
	}

	flags := cmd.Flags()
	flags.BoolVar(&c.autoAck, "auto-ack", false, "let the broker consider messages acknowledged as soon as delivered")
	flags.BoolVar(&c.exclusive, "exclusive", false, "restrict the queue to this consumer")

	return cmd
}
