// Package oracle runs the time oracle that closes auctions once their end
// time has passed.
package oracle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"LineageMarket/internal/ids"
	"LineageMarket/internal/logger"
	"LineageMarket/internal/market"
)

// DefaultInterval is the default delay between sweeps.
const DefaultInterval = time.Second

// Market is the surface the sweeper drives.
type Market interface {
	RegisterOracle(caller ids.Address) error
	IsOracle(addr ids.Address) (bool, error)
	DueAuctions(now uint64) []market.Deadline
	EndAuction(caller ids.Address, assetID market.AssetID) error
	Now() uint64
}

// Sweeper periodically ends every auction whose end time has passed,
// acting as a registered time oracle.
type Sweeper struct {
	market   Market        // market is the engine to sweep
	addr     ids.Address   // addr is the oracle identity used for EndAuction
	interval time.Duration // interval is the delay between sweeps
}

// New creates a sweeper acting as addr. A zero interval uses DefaultInterval.
func New(m Market, addr ids.Address, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = DefaultInterval
	}

	return &Sweeper{
		market:   m,
		addr:     addr,
		interval: interval,
	}
}

// Enroll registers the sweeper's address as a time oracle if it is not one yet.
func (s *Sweeper) Enroll() error {
	ok, err := s.market.IsOracle(s.addr)
	if err != nil {
		return fmt.Errorf("check oracle:\n%w", err)
	}

	if ok {
		return nil
	}

	if err := s.market.RegisterOracle(s.addr); err != nil {
		return fmt.Errorf("register oracle:\n%w", err)
	}

	logger.Info("time oracle enrolled", "addr", s.addr.Short())

	return nil
}

// Sweep ends every due auction and returns how many were closed.
// An auction its seller closed concurrently is skipped.
func (s *Sweeper) Sweep() int {
	now := s.market.Now()
	closed := 0

	for _, d := range s.market.DueAuctions(now) {
		err := s.market.EndAuction(s.addr, d.AssetID)

		switch {
		case err == nil:
			closed++
			logger.Info("auction ended by oracle", "auction", d.Auction, "asset", d.AssetID, "end", d.EndTime)
		case errors.Is(err, market.ErrAlreadyEnded):
		default:
			logger.Warn("end auction failed", "auction", d.Auction, "asset", d.AssetID, "error", err)
		}
	}

	return closed
}

// Run enrolls the oracle and sweeps until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) error {
	if err := s.Enroll(); err != nil {
		return err
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.Sweep()
		case <-ctx.Done():
			return nil
		}
	}
}
