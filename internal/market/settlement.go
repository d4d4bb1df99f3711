package market

import (
	"fmt"

	"LineageMarket/internal/ids"
	"LineageMarket/internal/logger"
)

// TransferAndRecieveFunds settles the ended auction of assetID: the highest
// bid is split across the asset's lineage into escrow balances and the asset
// moves to the highest bidder. Returns the payouts credited.
func (e *Engine) TransferAndRecieveFunds(caller ids.Address, assetID AssetID) ([]Payout, error) {
	var payouts []Payout

	err := e.update("transfer_and_recieve_funds", func(tx *txn) error {
		var err error
		payouts, err = tx.settle(caller, assetID)
		return err
	})

	return payouts, err
}

// WithdrawFunds moves caller's whole escrow balance to its wallet.
func (e *Engine) WithdrawFunds(caller ids.Address) (uint64, error) {
	var amount uint64

	err := e.update("withdraw_funds", func(tx *txn) error {
		var err error
		amount, err = tx.withdrawFunds(caller)
		return err
	})

	return amount, err
}

// EscrowBalance returns the settlement proceeds addr has not withdrawn.
func (e *Engine) EscrowBalance(addr ids.Address) (uint64, error) {
	var amount uint64

	err := e.view(func(tx *txn) error {
		var err error
		amount, err = tx.getU64(addrKey(balancePrefix, addr))
		return err
	})

	return amount, err
}

// Deposit funds addr's wallet.
func (e *Engine) Deposit(addr ids.Address, amount uint64) error {
	return e.update("deposit", func(tx *txn) error {
		if err := tx.wallets.Credit(addr, amount); err != nil {
			return fmt.Errorf("credit wallet:\n%w", err)
		}

		tx.afterCommit(func() {
			logger.Debug("wallet funded", "addr", addr.Short(), "amount", amount)
		})

		return nil
	})
}

// Balance returns addr's wallet balance.
func (e *Engine) Balance(addr ids.Address) (uint64, error) {
	var amount uint64

	err := e.view(func(tx *txn) error {
		var err error
		amount, err = tx.wallets.Balance(addr)
		return err
	})

	return amount, err
}

func (tx *txn) settle(caller ids.Address, assetID AssetID) ([]Payout, error) {
	a, err := tx.mustAuctionOf(assetID)
	if err != nil {
		return nil, err
	}

	if caller != a.Seller {
		return nil, ErrNotSeller
	}

	if a.State != AuctionEnded {
		return nil, ErrAuctionNotEnded
	}

	if a.Settled {
		return nil, ErrAlreadySettled
	}

	a.Settled = true

	if err := tx.kv.Delete(openSaleKey(a.Seller, a.ID)); err != nil {
		return nil, fmt.Errorf("close open sale:\n%w", err)
	}

	if a.HighestBid == 0 {
		if err := tx.putAuction(a); err != nil {
			return nil, err
		}

		tx.afterCommit(func() {
			logger.Info("auction settled without bids", "auction", a.ID, "asset", assetID)
		})

		return nil, nil
	}

	delivery, err := load(tx.kv, deliveryKey(assetID, a.ID), decodeDelivery)
	if err != nil {
		return nil, err
	}

	if delivery == nil || !delivery.Confirmed {
		return nil, ErrDeliveryNotConfirmed
	}

	chain, err := tx.ancestors(assetID)
	if err != nil {
		return nil, err
	}

	creators := make([]ids.Address, len(chain))
	for i, anc := range chain {
		creators[i] = anc.Creator
	}

	payouts := SplitRoyalties(a.HighestBid, a.Seller, creators)

	for _, p := range payouts {
		if p.Amount == 0 {
			continue
		}

		if _, err := tx.addU64(addrKey(balancePrefix, p.To), p.Amount); err != nil {
			return nil, fmt.Errorf("credit escrow balance:\n%w", err)
		}
	}

	winnerKey := bidEscrowKey(a.HighestBidder, a.ID)

	escrowed, err := tx.getU64(winnerKey)
	if err != nil {
		return nil, err
	}

	if escrowed < a.HighestBid {
		return nil, fmt.Errorf("winner escrow %d below highest bid %d", escrowed, a.HighestBid)
	}

	if err := tx.setU64(winnerKey, escrowed-a.HighestBid); err != nil {
		return nil, fmt.Errorf("debit winner escrow:\n%w", err)
	}

	if err := tx.ledger.Transfer(tx.cfg.Operator, a.Seller, a.HighestBidder, uint64(assetID)); err != nil {
		return nil, ledgerError(err)
	}

	if err := tx.putAuction(a); err != nil {
		return nil, err
	}

	tx.afterCommit(func() {
		logger.Info("auction settled",
			"auction", a.ID,
			"asset", assetID,
			"winner", a.HighestBidder.Short(),
			"amount", a.HighestBid,
			"payees", len(payouts),
		)
	})

	return payouts, nil
}

func (tx *txn) withdrawFunds(caller ids.Address) (uint64, error) {
	key := addrKey(balancePrefix, caller)

	balance, err := tx.getU64(key)
	if err != nil {
		return 0, err
	}

	if balance == 0 {
		return 0, ErrNoBalance
	}

	if err := tx.setU64(key, 0); err != nil {
		return 0, fmt.Errorf("zero escrow balance:\n%w", err)
	}

	if err := tx.wallets.Credit(caller, balance); err != nil {
		return 0, fmt.Errorf("credit wallet:\n%w", err)
	}

	tx.afterCommit(func() {
		logger.Info("funds withdrawn", "addr", caller.Short(), "amount", balance)
	})

	return balance, nil
}
