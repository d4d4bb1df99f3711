package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"LineageMarket/internal/logger"
)

func main() {
	logger.Init()

	if err := rootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// rootCommand assembles the marketd command tree.
func rootCommand() *cobra.Command {
	c := &cobra.Command{
		Use:           "marketd",
		Short:         "Lineage-linked digital asset market node",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(c *cobra.Command, _ []string) error {
			return setLogLevel(c)
		},
	}

	flags := c.PersistentFlags()
	flags.String(ConfigKey, "", "YAML config file")
	flags.String(LogLevelKey, "info", "Minimum log level (debug, info, warn, error)")

	c.AddCommand(runCommand(), snapshotCommand(), keygenCommand())

	return c
}

// setLogLevel applies --log-level when it was set explicitly.
// The run command also honors log_level from the config file.
func setLogLevel(c *cobra.Command) error {
	if !c.Flags().Changed(LogLevelKey) {
		return nil
	}

	s, err := c.Flags().GetString(LogLevelKey)
	if err != nil {
		return err
	}

	lvl, err := logger.ParseLevel(s)
	if err != nil {
		return err
	}

	logger.SetLevel(lvl)

	return nil
}
