package main

import (
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/relaymq/amqp-go/rabbitmq"
)

// globalOptions holds the persistent flags shared by every subcommand,
// mirroring the connection settings on rabbitmq.ConnectionFactory.
type globalOptions struct {
	host     string
	port     int
	vhost    string
	username string
	password string

	heartbeat        time.Duration
	recoveryInterval time.Duration
	topologyRecovery bool
	verbose          bool
}

func (o *globalOptions) factory() *rabbitmq.ConnectionFactory {
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
	if !o.verbose {
		logger = logger.Level(zerolog.WarnLevel)
	}

	return rabbitmq.NewConnectionFactory(
		rabbitmq.WithHost(o.host),
		rabbitmq.WithPort(o.port),
		rabbitmq.WithVHost(o.vhost),
		rabbitmq.WithCredentials(o.username, o.password),
		rabbitmq.WithHeartbeat(o.heartbeat),
		rabbitmq.WithAutomaticRecovery(true),
		rabbitmq.WithTopologyRecovery(o.topologyRecovery),
		rabbitmq.WithRecoveryInterval(o.recoveryInterval),
		rabbitmq.WithZerologLogger(&logger),
	)
}

// NewRootCommand builds the amqpctl root command, following the
// New<Name>Command-returns-*cobra.Command shape used across the corpus's
// cobra consumers.
func NewRootCommand() *cobra.Command {
	opts := &globalOptions{}

	cmd := &cobra.Command{
		Use:          "amqpctl",
		Short:        "Inspect and drive an AMQP 0-9-1 broker from the command line",
		SilenceUsage: true,
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&opts.host, "host", "localhost", "broker host")
	flags.IntVar(&opts.port, "port", 5672, "broker port")
	flags.StringVar(&opts.vhost, "vhost", "/", "virtual host")
	flags.StringVar(&opts.username, "username", "guest", "AMQP username")
	flags.StringVar(&opts.password, "password", "guest", "AMQP password")
	flags.DurationVar(&opts.heartbeat, "heartbeat", 10*time.Second, "requested heartbeat interval")
	flags.DurationVar(&opts.recoveryInterval, "recovery-interval", 5*time.Second, "delay between reconnect attempts")
	flags.BoolVar(&opts.topologyRecovery, "topology-recovery", true, "replay recorded topology after a reconnect")
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "log internal connection/recovery events")

	cmd.AddCommand(
		newConnectCommand(opts),
		newDeclareCommand(opts),
		newPublishCommand(opts),
		newConsumeCommand(opts),
	)

	return cmd
}

func main() {
	if err := NewRootCommand().Execute(); err != nil {
		fmt.Println(err)
	}
}
