package main

import (
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"LineageMarket/internal/ids"
	"LineageMarket/internal/market"
	"LineageMarket/internal/oracle"
)

// Flag keys.
const (
	ConfigKey             = "config"
	LogLevelKey           = "log-level"
	DataKey               = "data"
	HTTPKey               = "http"
	KeyPathKey            = "key"
	FaucetKey             = "faucet"
	MinAuctionDurationKey = "min-auction-duration"
	DeliveryQuorumKey     = "delivery-quorum"
	OracleKey             = "oracle"
	OracleIntervalKey     = "oracle-interval"
)

// Config holds the node configuration.
type Config struct {
	// DataPath is the directory for persistent storage.
	DataPath string `yaml:"data"`

	// HTTPAddress is the HTTP API listen address.
	HTTPAddress string `yaml:"http"`

	// KeyPath is the path to the Ed25519 private key file.
	// The key's public half is the market operator address.
	KeyPath string `yaml:"key"`

	// LogLevel is the minimum log level.
	LogLevel string `yaml:"log_level"`

	// Faucet enables POST /faucet wallet funding.
	Faucet bool `yaml:"faucet"`

	Market MarketConfig `yaml:"market"`
	Oracle OracleConfig `yaml:"oracle"`

	// Genesis lists wallet deposits applied when the store is created.
	Genesis []Deposit `yaml:"genesis"`

	// PrivateKey is the node's Ed25519 signing key, loaded from KeyPath.
	PrivateKey ed25519.PrivateKey `yaml:"-"`
}

// MarketConfig tunes the market engine.
type MarketConfig struct {
	MinAuctionDuration uint64 `yaml:"min_auction_duration"` // seconds
	DeliveryQuorum     uint32 `yaml:"delivery_quorum"`
	AssetCacheSize     int    `yaml:"asset_cache_size"`
}

// OracleConfig controls the built-in time oracle.
type OracleConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Interval time.Duration `yaml:"interval"`
}

// Deposit is one genesis wallet credit.
type Deposit struct {
	Address string `yaml:"address"`
	Amount  uint64 `yaml:"amount"`
}

// defaultConfig returns the configuration used when neither file nor flag sets a value.
func defaultConfig() *Config {
	return &Config{
		DataPath:    "./data",
		HTTPAddress: ":8080",
		LogLevel:    "info",
		Market: MarketConfig{
			MinAuctionDuration: market.DefaultMinAuctionDuration,
			DeliveryQuorum:     market.DefaultDeliveryQuorum,
		},
		Oracle: OracleConfig{
			Interval: oracle.DefaultInterval,
		},
	}
}

// AddRunFlags registers the node flags.
func AddRunFlags(flags *pflag.FlagSet) {
	flags.String(DataKey, "./data", "Data directory path")
	flags.String(HTTPKey, ":8080", "HTTP API address")
	flags.String(KeyPathKey, "", "Ed25519 private key path (generates new if missing)")
	flags.Bool(FaucetKey, false, "Enable the wallet faucet endpoint")
	flags.Uint64(MinAuctionDurationKey, market.DefaultMinAuctionDuration, "Minimum auction duration in seconds")
	flags.Uint32(DeliveryQuorumKey, market.DefaultDeliveryQuorum, "Distinct REP submissions confirming a delivery")
	flags.Bool(OracleKey, false, "Run the built-in time oracle with the node key")
	flags.Duration(OracleIntervalKey, oracle.DefaultInterval, "Time oracle sweep interval")
}

// loadConfig reads the YAML file at path over the defaults. An empty path
// returns the defaults.
func loadConfig(path string) (*Config, error) {
	cfg := defaultConfig()

	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config:\n%w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s:\n%w", path, err)
	}

	return cfg, nil
}

// applyFlags overrides cfg with every flag set on the command line.
func applyFlags(cfg *Config, flags *pflag.FlagSet) error {
	stringFlags := map[string]*string{
		LogLevelKey: &cfg.LogLevel,
		DataKey:     &cfg.DataPath,
		HTTPKey:     &cfg.HTTPAddress,
		KeyPathKey:  &cfg.KeyPath,
	}

	for key, dst := range stringFlags {
		if !flags.Changed(key) {
			continue
		}

		v, err := flags.GetString(key)
		if err != nil {
			return err
		}

		*dst = v
	}

	boolFlags := map[string]*bool{
		FaucetKey: &cfg.Faucet,
		OracleKey: &cfg.Oracle.Enabled,
	}

	for key, dst := range boolFlags {
		if !flags.Changed(key) {
			continue
		}

		v, err := flags.GetBool(key)
		if err != nil {
			return err
		}

		*dst = v
	}

	if flags.Changed(MinAuctionDurationKey) {
		v, err := flags.GetUint64(MinAuctionDurationKey)
		if err != nil {
			return err
		}

		cfg.Market.MinAuctionDuration = v
	}

	if flags.Changed(DeliveryQuorumKey) {
		v, err := flags.GetUint32(DeliveryQuorumKey)
		if err != nil {
			return err
		}

		cfg.Market.DeliveryQuorum = v
	}

	if flags.Changed(OracleIntervalKey) {
		v, err := flags.GetDuration(OracleIntervalKey)
		if err != nil {
			return err
		}

		cfg.Oracle.Interval = v
	}

	return nil
}

// validate checks the configuration before the node starts.
func (c *Config) validate() error {
	if c.DataPath == "" {
		return errors.New("data path is required")
	}

	if c.HTTPAddress == "" {
		return errors.New("http address is required")
	}

	if c.Market.DeliveryQuorum == 0 {
		return errors.New("delivery quorum must be positive")
	}

	if c.Oracle.Enabled && c.Oracle.Interval <= 0 {
		return errors.New("oracle interval must be positive")
	}

	for i, d := range c.Genesis {
		if _, err := ids.ParseAddress(d.Address); err != nil {
			return fmt.Errorf("genesis deposit %d:\n%w", i, err)
		}

		if d.Amount == 0 {
			return fmt.Errorf("genesis deposit %d: amount must be positive", i)
		}
	}

	return nil
}

// marketConfig builds the engine configuration. The node key is the operator.
func (c *Config) marketConfig() market.Config {
	return market.Config{
		MinAuctionDuration: c.Market.MinAuctionDuration,
		DeliveryQuorum:     c.Market.DeliveryQuorum,
		Operator:           addressOf(c.PrivateKey),
		AssetCacheSize:     c.Market.AssetCacheSize,
	}
}

// addressOf returns the market address of a private key.
func addressOf(priv ed25519.PrivateKey) ids.Address {
	var a ids.Address
	copy(a[:], priv.Public().(ed25519.PublicKey))
	return a
}

// loadOrGenerateKey loads the private key from file or generates a new one.
func loadOrGenerateKey(keyPath string) (ed25519.PrivateKey, error) {
	if keyPath == "" {
		return generateNewKey()
	}

	data, err := os.ReadFile(keyPath)
	if os.IsNotExist(err) {
		return generateAndSaveKey(keyPath)
	}

	if err != nil {
		return nil, fmt.Errorf("read key file:\n%w", err)
	}

	if len(data) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("invalid key size: got %d, want %d", len(data), ed25519.PrivateKeySize)
	}

	return ed25519.PrivateKey(data), nil
}

// generateNewKey creates a new Ed25519 private key.
func generateNewKey() (ed25519.PrivateKey, error) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate key:\n%w", err)
	}

	return priv, nil
}

// generateAndSaveKey creates a new key and saves it to the given path.
func generateAndSaveKey(path string) (ed25519.PrivateKey, error) {
	priv, err := generateNewKey()
	if err != nil {
		return nil, err
	}

	if err := os.WriteFile(path, priv, 0600); err != nil {
		return nil, fmt.Errorf("save key to %s:\n%w", path, err)
	}

	return priv, nil
}
