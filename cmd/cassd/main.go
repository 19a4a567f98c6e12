// Command cassd is the CASS-GO pipeline daemon: spec.md §4.O's CLI
// front end. It builds the Config, constructs the ProcessorManager,
// picks a reader for the configured input, and drives N worker
// goroutines that pull events and feed them through the graph until
// EOF, a signal, or an admin "quit" command.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var rootFlags struct {
	configPath string
	input      string
	workers    int
	logLevel   string
	dev        bool
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitCodeFor(err))
	}
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "cassd",
		Short: "CASS-GO pixel-detector and waveform processing daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDaemon(cmd.Context())
		},
	}

	root.PersistentFlags().StringVar(&rootFlags.configPath, "config", "cass.yaml", "path to the processor/config file")
	root.PersistentFlags().StringVar(&rootFlags.input, "input", "", "event source: a file path, or tcp://host:port")
	root.PersistentFlags().IntVar(&rootFlags.workers, "workers", 4, "number of concurrent event-processing workers")
	root.PersistentFlags().StringVar(&rootFlags.logLevel, "log-level", "info", "log level: debug, info, warn, error")
	root.PersistentFlags().BoolVar(&rootFlags.dev, "dev", false, "use human-readable console logging instead of JSON")

	_ = viper.BindPFlag("input", root.PersistentFlags().Lookup("input"))
	_ = viper.BindPFlag("workers", root.PersistentFlags().Lookup("workers"))
	_ = viper.BindPFlag("log-level", root.PersistentFlags().Lookup("log-level"))

	return root
}
