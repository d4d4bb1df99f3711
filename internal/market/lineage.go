package market

import (
	"errors"
	"fmt"

	"LineageMarket/internal/ids"
	"LineageMarket/internal/ledger"
	"LineageMarket/internal/logger"
)

// Mint creates an asset owned by owner. parent is RootAsset or an existing asset.
func (e *Engine) Mint(owner ids.Address, contentID string, parent AssetID) (AssetID, error) {
	var id AssetID

	err := e.update("mint", func(tx *txn) error {
		var err error
		id, err = tx.mint(owner, contentID, parent)
		return err
	})

	return id, err
}

// Asset returns a copy of the lineage record of id.
func (e *Engine) Asset(id AssetID) (*Asset, error) {
	var a *Asset

	err := e.view(func(tx *txn) error {
		var err error
		stored, err := tx.mustAsset(id)
		if err != nil {
			return err
		}

		// Cached records are shared.
		clone := *stored
		a = &clone

		return nil
	})

	return a, err
}

// GetParent returns the parent id of id, RootAsset for roots.
func (e *Engine) GetParent(id AssetID) (AssetID, error) {
	a, err := e.Asset(id)
	if err != nil {
		return 0, err
	}

	return a.Parent, nil
}

// GetParentCreator returns the creator of id's parent, the zero address for roots.
func (e *Engine) GetParentCreator(id AssetID) (ids.Address, error) {
	var creator ids.Address

	err := e.view(func(tx *txn) error {
		a, err := tx.mustAsset(id)
		if err != nil {
			return err
		}

		if a.Parent == RootAsset {
			return nil
		}

		p, err := tx.asset(a.Parent)
		if err != nil {
			return err
		}

		if p == nil {
			return fmt.Errorf("asset %d names missing parent %d: %w", id, a.Parent, ErrCorruptLineage)
		}

		creator = p.Creator

		return nil
	})

	return creator, err
}

// TokenURI returns the content identifier of id.
func (e *Engine) TokenURI(id AssetID) (string, error) {
	a, err := e.Asset(id)
	if err != nil {
		return "", err
	}

	return a.ContentID, nil
}

// IsVerified reports whether a verification task for id has completed.
func (e *Engine) IsVerified(id AssetID) (bool, error) {
	var ok bool

	err := e.view(func(tx *txn) error {
		if _, err := tx.mustAsset(id); err != nil {
			return err
		}

		var err error
		ok, err = tx.flag(idKey(verifiedPrefix, uint64(id)))
		return err
	})

	return ok, err
}

// SetApprovalForAll lets operator move every asset caller owns, or revokes it.
func (e *Engine) SetApprovalForAll(caller, operator ids.Address, approved bool) error {
	return e.update("set_approval_for_all", func(tx *txn) error {
		return tx.setApprovalForAll(caller, operator, approved)
	})
}

// setApprovalForAll refuses to revoke the market operator while caller has
// an unsettled sale, since settlement moves the asset through that approval.
func (tx *txn) setApprovalForAll(caller, operator ids.Address, approved bool) error {
	if !approved && operator == tx.cfg.Operator {
		open, err := tx.hasOpenSale(caller)
		if err != nil {
			return err
		}

		if open {
			return fmt.Errorf("revoke market operator: %w", ErrAuctionInProgress)
		}
	}

	if err := tx.ledger.SetApprovalForAll(caller, operator, approved); err != nil {
		return fmt.Errorf("set approval:\n%w", err)
	}

	tx.afterCommit(func() {
		logger.Debug("operator approval", "owner", caller.Short(), "operator", operator.Short(), "approved", approved)
	})

	return nil
}

// hasOpenSale reports whether seller started an auction that is not settled.
func (tx *txn) hasOpenSale(seller ids.Address) (bool, error) {
	found := false

	err := tx.kv.IteratePrefix(addrKey(openSalePrefix, seller), func(_, _ []byte) error {
		found = true
		return errStopIteration
	})

	if err != nil && !errors.Is(err, errStopIteration) {
		return false, fmt.Errorf("scan open sales:\n%w", err)
	}

	return found, nil
}

// OwnerOf returns the ledger owner of id.
func (e *Engine) OwnerOf(id AssetID) (ids.Address, error) {
	var owner ids.Address

	err := e.view(func(tx *txn) error {
		var err error
		owner, err = tx.ownerOf(id)
		return err
	})

	return owner, err
}

// IsApprovedOrOwner reports whether spender owns id or is approved by its owner.
func (e *Engine) IsApprovedOrOwner(spender ids.Address, id AssetID) (bool, error) {
	var ok bool

	err := e.view(func(tx *txn) error {
		var err error
		ok, err = tx.ledger.IsApprovedOrOwner(spender, uint64(id))
		return ledgerError(err)
	})

	return ok, err
}

// asset returns the asset record, nil if it does not exist.
// Committed assets are served from the cache.
func (tx *txn) asset(id AssetID) (*Asset, error) {
	if id == RootAsset {
		return nil, nil
	}

	if v, ok := tx.assets.Get(id); ok {
		return v.(*Asset), nil
	}

	a, err := load(tx.kv, idKey(assetPrefix, uint64(id)), decodeAsset)
	if err != nil {
		return nil, err
	}

	if a != nil && tx.readOnly {
		tx.assets.Add(id, a)
	}

	return a, nil
}

// mustAsset is asset with ErrNotFound for missing ids.
func (tx *txn) mustAsset(id AssetID) (*Asset, error) {
	a, err := tx.asset(id)
	if err != nil {
		return nil, err
	}

	if a == nil {
		return nil, ErrNotFound
	}

	return a, nil
}

func (tx *txn) ownerOf(id AssetID) (ids.Address, error) {
	owner, err := tx.ledger.OwnerOf(uint64(id))
	return owner, ledgerError(err)
}

func (tx *txn) mint(owner ids.Address, contentID string, parent AssetID) (AssetID, error) {
	if parent != RootAsset {
		p, err := tx.asset(parent)
		if err != nil {
			return 0, err
		}

		if p == nil {
			return 0, fmt.Errorf("parent %d: %w", parent, ErrInvalidAsset)
		}
	}

	seq, err := tx.nextID(metaAssetSeq)
	if err != nil {
		return 0, fmt.Errorf("next asset id:\n%w", err)
	}

	a := &Asset{
		ID:        AssetID(seq),
		Creator:   owner,
		ContentID: contentID,
		Parent:    parent,
		CreatedAt: tx.now,
	}

	if err := tx.kv.Set(idKey(assetPrefix, seq), encodeAsset(a)); err != nil {
		return 0, fmt.Errorf("store asset:\n%w", err)
	}

	if err := tx.ledger.Mint(owner, seq); err != nil {
		return 0, fmt.Errorf("mint on ledger:\n%w", err)
	}

	tx.afterCommit(func() {
		tx.assets.Add(a.ID, a)
		logger.Info("asset minted", "asset", a.ID, "owner", owner.Short(), "parent", parent)
	})

	return a.ID, nil
}

// ledgerError classifies ownership ledger failures.
func ledgerError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ledger.ErrUnknownAsset):
		return fmt.Errorf("%v: %w", err, ErrNotFound)
	case errors.Is(err, ledger.ErrNotOwner), errors.Is(err, ledger.ErrNotApproved):
		return fmt.Errorf("%v: %w", err, ErrUnauthorized)
	default:
		return err
	}
}
