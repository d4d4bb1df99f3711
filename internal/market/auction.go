package market

import (
	"encoding/binary"
	"errors"
	"fmt"

	"LineageMarket/internal/ids"
	"LineageMarket/internal/ledger"
	"LineageMarket/internal/logger"
)

// RegisterOracle enrolls caller as a time oracle.
func (e *Engine) RegisterOracle(caller ids.Address) error {
	return e.update("register_oracle", func(tx *txn) error {
		return tx.registerOracle(caller)
	})
}

// IsOracle reports whether addr is a registered time oracle.
func (e *Engine) IsOracle(addr ids.Address) (bool, error) {
	var ok bool

	err := e.view(func(tx *txn) error {
		var err error
		ok, err = tx.flag(addrKey(oraclePrefix, addr))
		return err
	})

	return ok, err
}

// StartAuction opens an auction of assetID ending at endTime.
func (e *Engine) StartAuction(caller, seller ids.Address, assetID AssetID, endTime uint64) (AuctionID, error) {
	var id AuctionID

	err := e.update("start_auction", func(tx *txn) error {
		var err error
		id, err = tx.startAuction(caller, seller, assetID, endTime)
		return err
	})

	return id, err
}

// BidOnAuction places a bid of amount, paid from caller's wallet into escrow.
func (e *Engine) BidOnAuction(caller ids.Address, assetID AssetID, amount uint64) error {
	return e.update("bid_on_auction", func(tx *txn) error {
		return tx.bid(caller, assetID, amount)
	})
}

// WithdrawBid releases every escrowed bid of caller that is not locked as the
// highest bid of an unsettled auction. Returns the amount released.
func (e *Engine) WithdrawBid(caller ids.Address) (uint64, error) {
	var released uint64

	err := e.update("withdraw_bid", func(tx *txn) error {
		var err error
		released, err = tx.withdrawBid(caller)
		return err
	})

	return released, err
}

// EndAuction closes the auction of assetID. The seller may end it at any
// time; a time oracle only once its end time has passed.
func (e *Engine) EndAuction(caller ids.Address, assetID AssetID) error {
	return e.update("end_auction", func(tx *txn) error {
		return tx.endAuction(caller, assetID)
	})
}

// Auction returns the latest auction of assetID.
func (e *Engine) Auction(assetID AssetID) (*Auction, error) {
	var a *Auction

	err := e.view(func(tx *txn) error {
		var err error
		a, err = tx.mustAuctionOf(assetID)
		return err
	})

	return a, err
}

// BidEscrow returns the amount bidder holds in escrow for auction.
func (e *Engine) BidEscrow(bidder ids.Address, auction AuctionID) (uint64, error) {
	var amount uint64

	err := e.view(func(tx *txn) error {
		var err error
		amount, err = tx.getU64(bidEscrowKey(bidder, auction))
		return err
	})

	return amount, err
}

func (tx *txn) registerOracle(caller ids.Address) error {
	key := addrKey(oraclePrefix, caller)

	enrolled, err := tx.flag(key)
	if err != nil {
		return err
	}

	if enrolled {
		return ErrAlreadyRegistered
	}

	if err := tx.setFlag(key); err != nil {
		return fmt.Errorf("store oracle:\n%w", err)
	}

	tx.afterCommit(func() {
		logger.Info("oracle registered", "oracle", caller.Short())
	})

	return nil
}

func (tx *txn) auction(id AuctionID) (*Auction, error) {
	return load(tx.kv, idKey(auctionPrefix, uint64(id)), decodeAuction)
}

func (tx *txn) putAuction(a *Auction) error {
	if err := tx.kv.Set(idKey(auctionPrefix, uint64(a.ID)), encodeAuction(a)); err != nil {
		return fmt.Errorf("store auction:\n%w", err)
	}

	return nil
}

// auctionOf returns the latest auction of assetID, nil if there is none.
func (tx *txn) auctionOf(assetID AssetID) (*Auction, error) {
	id, err := tx.getU64(idKey(assetSalePrefix, uint64(assetID)))
	if err != nil {
		return nil, err
	}

	if id == 0 {
		return nil, nil
	}

	a, err := tx.auction(AuctionID(id))
	if err != nil {
		return nil, err
	}

	if a == nil {
		return nil, fmt.Errorf("asset %d names missing auction %d", assetID, id)
	}

	return a, nil
}

func (tx *txn) mustAuctionOf(assetID AssetID) (*Auction, error) {
	a, err := tx.auctionOf(assetID)
	if err != nil {
		return nil, err
	}

	if a == nil {
		return nil, ErrNotFound
	}

	return a, nil
}

func (tx *txn) startAuction(caller, seller ids.Address, assetID AssetID, endTime uint64) (AuctionID, error) {
	if caller != seller {
		return 0, ErrUnauthorized
	}

	if endTime < tx.now || endTime-tx.now < tx.cfg.MinAuctionDuration {
		return 0, ErrInvalidTimeframe
	}

	asset, err := tx.asset(assetID)
	if err != nil {
		return 0, err
	}

	if asset == nil {
		return 0, fmt.Errorf("asset %d does not exist: %w", assetID, ErrInvalidAsset)
	}

	verified, err := tx.flag(idKey(verifiedPrefix, uint64(assetID)))
	if err != nil {
		return 0, err
	}

	if !verified {
		return 0, fmt.Errorf("asset %d is not verified: %w", assetID, ErrInvalidAsset)
	}

	owner, err := tx.ownerOf(assetID)
	if err != nil {
		return 0, err
	}

	if owner != seller {
		return 0, ErrUnauthorized
	}

	approved, err := tx.ledger.IsApprovedOrOwner(tx.cfg.Operator, uint64(assetID))
	if err != nil {
		return 0, ledgerError(err)
	}

	if !approved {
		return 0, fmt.Errorf("market operator not approved by seller: %w", ErrUnauthorized)
	}

	prev, err := tx.auctionOf(assetID)
	if err != nil {
		return 0, err
	}

	if prev != nil && !prev.Settled {
		return 0, ErrAuctionInProgress
	}

	seq, err := tx.nextID(metaAuctionSeq)
	if err != nil {
		return 0, fmt.Errorf("next auction id:\n%w", err)
	}

	a := &Auction{
		ID:        AuctionID(seq),
		AssetID:   assetID,
		Seller:    seller,
		StartTime: tx.now,
		EndTime:   endTime,
		State:     AuctionActive,
	}

	if err := tx.putAuction(a); err != nil {
		return 0, err
	}

	if err := tx.setU64(idKey(assetSalePrefix, uint64(assetID)), seq); err != nil {
		return 0, fmt.Errorf("index auction:\n%w", err)
	}

	if err := tx.setFlag(openSaleKey(seller, a.ID)); err != nil {
		return 0, fmt.Errorf("index open sale:\n%w", err)
	}

	tx.afterCommit(func() {
		tx.deadlines.add(a)
		logger.Info("auction started", "auction", a.ID, "asset", assetID, "seller", seller.Short(), "end", endTime)
	})

	return a.ID, nil
}

func (tx *txn) bid(caller ids.Address, assetID AssetID, amount uint64) error {
	a, err := tx.auctionOf(assetID)
	if err != nil {
		return err
	}

	if a == nil || a.State != AuctionActive || tx.now >= a.EndTime {
		return ErrAuctionNotActive
	}

	if caller == a.Seller {
		return ErrUnauthorized
	}

	if amount <= a.HighestBid {
		return ErrBidTooLow
	}

	if err := tx.wallets.Debit(caller, amount); err != nil {
		if errors.Is(err, ledger.ErrInsufficientFunds) {
			return ErrInsufficientFunds
		}

		return fmt.Errorf("debit bidder:\n%w", err)
	}

	escrowed, err := tx.addU64(bidEscrowKey(caller, a.ID), amount)
	if err != nil {
		return fmt.Errorf("escrow bid:\n%w", err)
	}

	previous := a.HighestBidder
	a.HighestBid = amount
	a.HighestBidder = caller

	if err := tx.putAuction(a); err != nil {
		return err
	}

	tx.afterCommit(func() {
		logger.Info("bid accepted",
			"auction", a.ID,
			"bidder", caller.Short(),
			"amount", amount,
			"escrowed", escrowed,
			"outbid", previous.Short(),
		)
	})

	return nil
}

// escrowEntry is one bid escrow of a bidder.
type escrowEntry struct {
	key     []byte
	auction AuctionID
	amount  uint64
}

// bidEscrows lists every bid escrow entry of bidder.
func (tx *txn) bidEscrows(bidder ids.Address) ([]escrowEntry, error) {
	prefix := makeKey(bidEscrowPrefix, bidder[:])

	var entries []escrowEntry

	err := tx.kv.IteratePrefix(prefix, func(key, value []byte) error {
		if len(key) != len(prefix)+8 || len(value) != 8 {
			return fmt.Errorf("malformed escrow entry %x", key)
		}

		entries = append(entries, escrowEntry{
			key:     append([]byte(nil), key...),
			auction: AuctionID(binary.BigEndian.Uint64(key[len(prefix):])),
			amount:  binary.LittleEndian.Uint64(value),
		})

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan escrow:\n%w", err)
	}

	return entries, nil
}

func (tx *txn) withdrawBid(caller ids.Address) (uint64, error) {
	entries, err := tx.bidEscrows(caller)
	if err != nil {
		return 0, err
	}

	var total, locked uint64

	for _, entry := range entries {
		a, err := tx.auction(entry.auction)
		if err != nil {
			return 0, err
		}

		var hold uint64
		if a != nil && !a.Settled && a.HighestBidder == caller {
			hold = min(a.HighestBid, entry.amount)
		}

		locked += hold
		free := entry.amount - hold

		if free == 0 {
			continue
		}

		if err := tx.setU64(entry.key, hold); err != nil {
			return 0, fmt.Errorf("zero escrow:\n%w", err)
		}

		total += free
	}

	if total == 0 {
		if locked > 0 {
			return 0, ErrCannotWithdrawWhileHighestBidder
		}

		return 0, ErrNoFundsToWithdraw
	}

	if err := tx.wallets.Credit(caller, total); err != nil {
		return 0, fmt.Errorf("credit bidder:\n%w", err)
	}

	tx.afterCommit(func() {
		logger.Info("bids withdrawn", "bidder", caller.Short(), "amount", total, "locked", locked)
	})

	return total, nil
}

func (tx *txn) endAuction(caller ids.Address, assetID AssetID) error {
	a, err := tx.mustAuctionOf(assetID)
	if err != nil {
		return err
	}

	if a.State == AuctionEnded {
		return ErrAlreadyEnded
	}

	if caller != a.Seller {
		oracle, err := tx.flag(addrKey(oraclePrefix, caller))
		if err != nil {
			return err
		}

		if !oracle {
			return ErrUnauthorized
		}

		if tx.now < a.EndTime {
			return ErrTooEarly
		}
	}

	a.State = AuctionEnded

	if err := tx.putAuction(a); err != nil {
		return err
	}

	early := tx.now < a.EndTime

	tx.afterCommit(func() {
		tx.deadlines.remove(a)
		logger.Info("auction ended",
			"auction", a.ID,
			"asset", assetID,
			"by", caller.Short(),
			"early", early,
			"highest_bid", a.HighestBid,
		)
	})

	return nil
}
