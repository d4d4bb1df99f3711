package main

import (
	"encoding/hex"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"LineageMarket/internal/clock"
	"LineageMarket/internal/logger"
	"LineageMarket/internal/snapshot"
)

const (
	outKey = "out"
	inKey  = "in"
)

func runCommand() *cobra.Command {
	c := &cobra.Command{
		Use:   "run",
		Short: "Runs a market node",
		Args:  cobra.NoArgs,
		RunE:  runFunc,
	}
	AddRunFlags(c.Flags())
	return c
}

func runFunc(c *cobra.Command, _ []string) error {
	cfg, err := configFromCommand(c)
	if err != nil {
		return err
	}

	cfg.PrivateKey, err = loadOrGenerateKey(cfg.KeyPath)
	if err != nil {
		return fmt.Errorf("load key:\n%w", err)
	}

	node, err := NewNode(cfg)
	if err != nil {
		return fmt.Errorf("create node:\n%w", err)
	}

	printStartupInfo(cfg)

	ctx, stop := signal.NotifyContext(c.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return node.Run(ctx)
}

// configFromCommand loads the config file named by --config and applies flags.
func configFromCommand(c *cobra.Command) (*Config, error) {
	path, err := c.Flags().GetString(ConfigKey)
	if err != nil {
		return nil, err
	}

	cfg, err := loadConfig(path)
	if err != nil {
		return nil, err
	}

	if err := applyFlags(cfg, c.Flags()); err != nil {
		return nil, fmt.Errorf("apply flags:\n%w", err)
	}

	lvl, err := logger.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}

	logger.SetLevel(lvl)

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config:\n%w", err)
	}

	return cfg, nil
}

// printStartupInfo displays node configuration at startup.
func printStartupInfo(cfg *Config) {
	logger.Info("starting market node",
		"operator", addressOf(cfg.PrivateKey).String(),
		"http", cfg.HTTPAddress,
		"data", cfg.DataPath,
		"min_auction_duration", cfg.Market.MinAuctionDuration,
		"delivery_quorum", cfg.Market.DeliveryQuorum,
		"oracle", cfg.Oracle.Enabled,
		"faucet", cfg.Faucet,
	)
}

func snapshotCommand() *cobra.Command {
	c := &cobra.Command{
		Use:   "snapshot",
		Short: "Exports, imports or inspects state snapshots",
	}

	export := &cobra.Command{
		Use:   "export",
		Short: "Writes the node state to a snapshot file",
		Args:  cobra.NoArgs,
		RunE:  exportFunc,
	}
	export.Flags().String(DataKey, "./data", "Data directory path")
	export.Flags().String(outKey, "market.snap", "Snapshot output file")

	restore := &cobra.Command{
		Use:   "import",
		Short: "Restores a snapshot file into an empty data directory",
		Args:  cobra.NoArgs,
		RunE:  importFunc,
	}
	restore.Flags().String(DataKey, "./data", "Data directory path")
	restore.Flags().String(inKey, "market.snap", "Snapshot input file")

	inspect := &cobra.Command{
		Use:   "inspect",
		Short: "Verifies a snapshot file and prints its summary",
		Args:  cobra.NoArgs,
		RunE:  inspectFunc,
	}
	inspect.Flags().String(inKey, "market.snap", "Snapshot input file")

	c.AddCommand(export, restore, inspect)

	return c
}

func exportFunc(c *cobra.Command, _ []string) error {
	dataPath, _ := c.Flags().GetString(DataKey)
	out, _ := c.Flags().GetString(outKey)

	db, err := openStorage(dataPath)
	if err != nil {
		return err
	}
	defer db.Close()

	data, info, err := snapshot.Create(db, clock.System{}.Now())
	if err != nil {
		return fmt.Errorf("create snapshot:\n%w", err)
	}

	if err := os.WriteFile(out, data, 0644); err != nil {
		return fmt.Errorf("write snapshot:\n%w", err)
	}

	logger.Info("snapshot exported",
		"file", out,
		"entries", info.Entries,
		"bytes", len(data),
		"checksum", hex.EncodeToString(info.Checksum[:8]),
	)

	return nil
}

func importFunc(c *cobra.Command, _ []string) error {
	dataPath, _ := c.Flags().GetString(DataKey)
	in, _ := c.Flags().GetString(inKey)

	data, err := os.ReadFile(in)
	if err != nil {
		return fmt.Errorf("read snapshot:\n%w", err)
	}

	db, err := openStorage(dataPath)
	if err != nil {
		return err
	}
	defer db.Close()

	info, err := snapshot.Restore(db, data)
	if err != nil {
		return fmt.Errorf("restore snapshot:\n%w", err)
	}

	logger.Info("snapshot imported",
		"data", dataPath,
		"entries", info.Entries,
		"created_at", info.CreatedAt,
		"checksum", hex.EncodeToString(info.Checksum[:8]),
	)

	return nil
}

func inspectFunc(c *cobra.Command, _ []string) error {
	in, _ := c.Flags().GetString(inKey)

	data, err := os.ReadFile(in)
	if err != nil {
		return fmt.Errorf("read snapshot:\n%w", err)
	}

	info, err := snapshot.Inspect(data)
	if err != nil {
		return err
	}

	fmt.Fprintf(c.OutOrStdout(), "version:    %d\ncreated_at: %d\nentries:    %d\nchecksum:   %x\n",
		info.Version, info.CreatedAt, info.Entries, info.Checksum)

	return nil
}

func keygenCommand() *cobra.Command {
	c := &cobra.Command{
		Use:   "keygen",
		Short: "Generates an Ed25519 key file and prints its address",
		Args:  cobra.NoArgs,
		RunE: func(c *cobra.Command, _ []string) error {
			out, _ := c.Flags().GetString(outKey)

			if _, err := os.Stat(out); err == nil {
				return fmt.Errorf("%s already exists", out)
			}

			priv, err := generateAndSaveKey(out)
			if err != nil {
				return err
			}

			fmt.Fprintln(c.OutOrStdout(), addressOf(priv).String())

			return nil
		},
	}
	c.Flags().String(outKey, "node.key", "Key output file")
	return c
}
