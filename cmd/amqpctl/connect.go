package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

// newConnectCommand opens a RecoveringConnection, prints the negotiated
// parameters, and blocks until interrupted -- useful for watching automatic
// recovery kick in against a broker that's being bounced.
func newConnectCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "connect",
		Short: "Open a connection and hold it open, reconnecting automatically",
		RunE: func(cmd *cobra.Command, args []string) error {
			rc, err := dialRecovering(opts)
			if err != nil {
				return err
			}
			defer rc.Close()

			conn := rc.Underlying()
			fmt.Printf("connected: channel_max=%d frame_max=%d heartbeat=%s\n",
				conn.GetChannelMax(), conn.GetFrameMax(), conn.GetHeartbeat())

			sig := make(chan os.Signal, 1)
			signal.Notify(sig, os.Interrupt, syscall.SIGTERM)

			ticker := time.NewTicker(5 * time.Second)
			defer ticker.Stop()

			for {
				select {
				case <-sig:
					fmt.Println("interrupted, closing")
					return nil
				case <-ticker.C:
					fmt.Printf("open=%v channels=%d\n", rc.IsOpen(), rc.Underlying().GetChannelCount())
				}
			}
		},
	}
}
