package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/sync/errgroup"

	"LineageMarket/internal/api"
	"LineageMarket/internal/clock"
	"LineageMarket/internal/ids"
	"LineageMarket/internal/logger"
	"LineageMarket/internal/market"
	"LineageMarket/internal/oracle"
	"LineageMarket/internal/snapshot"
	"LineageMarket/internal/storage"
)

// Node represents a running market node.
type Node struct {
	cfg     *Config
	storage *storage.Storage
	engine  *market.Engine
	api     *api.Server
	sweeper *oracle.Sweeper // sweeper is nil unless the time oracle is enabled
}

// NewNode creates and initializes a new node.
func NewNode(cfg *Config) (*Node, error) {
	n := &Node{cfg: cfg}

	if err := n.initStorage(); err != nil {
		return nil, err
	}

	fresh, err := snapshot.IsEmpty(n.storage)
	if err != nil {
		n.Close()
		return nil, fmt.Errorf("inspect storage:\n%w", err)
	}

	if err := n.initEngine(); err != nil {
		n.Close()
		return nil, err
	}

	if fresh {
		if err := n.applyGenesis(); err != nil {
			n.Close()
			return nil, err
		}
	}

	n.api = api.New(cfg.HTTPAddress, n.engine, cfg.Faucet)

	if cfg.Oracle.Enabled {
		n.sweeper = oracle.New(n.engine, addressOf(cfg.PrivateKey), cfg.Oracle.Interval)
	}

	return n, nil
}

// initStorage initializes the Pebble storage.
func (n *Node) initStorage() error {
	db, err := openStorage(n.cfg.DataPath)
	if err != nil {
		return err
	}

	n.storage = db

	return nil
}

// openStorage opens the store under dataPath, creating the directory.
func openStorage(dataPath string) (*storage.Storage, error) {
	if err := os.MkdirAll(dataPath, 0755); err != nil {
		return nil, fmt.Errorf("create data directory:\n%w", err)
	}

	db, err := storage.New(filepath.Join(dataPath, "db"))
	if err != nil {
		return nil, fmt.Errorf("init storage:\n%w", err)
	}

	return db, nil
}

// initEngine creates the market engine on the wall clock.
func (n *Node) initEngine() error {
	engine, err := market.New(n.storage, clock.System{}, n.cfg.marketConfig())
	if err != nil {
		return fmt.Errorf("init market:\n%w", err)
	}

	n.engine = engine

	return nil
}

// applyGenesis credits the configured genesis deposits.
func (n *Node) applyGenesis() error {
	for _, d := range n.cfg.Genesis {
		addr, err := ids.ParseAddress(d.Address)
		if err != nil {
			return fmt.Errorf("genesis address:\n%w", err)
		}

		if err := n.engine.Deposit(addr, d.Amount); err != nil {
			return fmt.Errorf("genesis deposit:\n%w", err)
		}
	}

	if len(n.cfg.Genesis) > 0 {
		logger.Info("genesis deposits applied", "count", len(n.cfg.Genesis))
	}

	return nil
}

// Run serves the API and, when enabled, the time oracle until ctx is
// cancelled, then shuts everything down.
func (n *Node) Run(ctx context.Context) error {
	defer n.Close()

	if err := n.api.Start(); err != nil {
		return fmt.Errorf("start api:\n%w", err)
	}

	g, ctx := errgroup.WithContext(ctx)

	if n.sweeper != nil {
		g.Go(func() error {
			return n.sweeper.Run(ctx)
		})
	}

	g.Go(func() error {
		<-ctx.Done()
		logger.Info("shutting down")

		return n.api.Stop()
	})

	return g.Wait()
}

// Close releases the node resources.
func (n *Node) Close() {
	if n.storage != nil {
		if err := n.storage.Close(); err != nil {
			logger.Error("close storage", "error", err)
		}

		n.storage = nil
	}
}
