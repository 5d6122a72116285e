package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:   "eventbus",
		Short: "Publish and consume coded events over Kafka",
		Long: `eventbus moves {code, sender, body} envelopes through a shared Kafka topic.
Run "eventbus listen" to dispatch incoming events to the subscribers declared in
EVENTBUS_SUBSCRIPTIONS_FILE, or "eventbus publish" to send one event.`,
		Version:      version,
		SilenceUsage: true,
	}

	rootCmd.AddCommand(
		newListenCmd(),
		newPublishCmd(),
		newVersionCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
