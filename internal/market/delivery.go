package market

import (
	"fmt"

	"LineageMarket/internal/ids"
	"LineageMarket/internal/logger"
)

// RegisterREP enrolls caller as a delivery confirmation submitter.
func (e *Engine) RegisterREP(caller ids.Address) error {
	return e.update("register_rep", func(tx *txn) error {
		return tx.registerREP(caller)
	})
}

// IsREP reports whether addr is a registered delivery submitter.
func (e *Engine) IsREP(addr ids.Address) (bool, error) {
	var ok bool

	err := e.view(func(tx *txn) error {
		var err error
		ok, err = tx.flag(addrKey(repPrefix, addr))
		return err
	})

	return ok, err
}

// SendAsset records caller's confirmation that assetID was delivered in its
// current sale round. The round confirms once DeliveryQuorum REPs submitted.
func (e *Engine) SendAsset(caller ids.Address, assetID AssetID, contentID, hash1, hash2 string) error {
	return e.update("send_asset", func(tx *txn) error {
		return tx.sendAsset(caller, assetID, contentID, hash1, hash2)
	})
}

// Delivery returns the confirmation state of assetID's current sale round.
func (e *Engine) Delivery(assetID AssetID) (*Delivery, error) {
	var d *Delivery

	err := e.view(func(tx *txn) error {
		if _, err := tx.mustAsset(assetID); err != nil {
			return err
		}

		var err error
		d, err = tx.currentDelivery(assetID)
		return err
	})

	return d, err
}

// DeliveryConfirmed reports whether assetID's current sale round is confirmed.
func (e *Engine) DeliveryConfirmed(assetID AssetID) (bool, error) {
	d, err := e.Delivery(assetID)
	if err != nil {
		return false, err
	}

	return d.Confirmed, nil
}

// Submissions returns the REP submissions of assetID's current sale round.
func (e *Engine) Submissions(assetID AssetID) ([]*DeliverySubmission, error) {
	var subs []*DeliverySubmission

	err := e.view(func(tx *txn) error {
		round, err := tx.saleRound(assetID)
		if err != nil {
			return err
		}

		prefix := makeKey(submissionPrefix, u64(uint64(assetID)), u64(uint64(round)))

		return tx.kv.IteratePrefix(prefix, func(_, value []byte) error {
			s, err := decodeSubmission(value)
			if err != nil {
				return err
			}

			subs = append(subs, s)

			return nil
		})
	})

	return subs, err
}

func (tx *txn) registerREP(caller ids.Address) error {
	key := addrKey(repPrefix, caller)

	enrolled, err := tx.flag(key)
	if err != nil {
		return err
	}

	if enrolled {
		return ErrAlreadyRegistered
	}

	if err := tx.setFlag(key); err != nil {
		return fmt.Errorf("store rep:\n%w", err)
	}

	tx.afterCommit(func() {
		logger.Info("rep registered", "rep", caller.Short())
	})

	return nil
}

// saleRound is the asset's latest auction id, 0 before its first auction.
func (tx *txn) saleRound(assetID AssetID) (AuctionID, error) {
	id, err := tx.getU64(idKey(assetSalePrefix, uint64(assetID)))
	return AuctionID(id), err
}

// currentDelivery returns the delivery record of the current round,
// an empty record if nothing was submitted yet.
func (tx *txn) currentDelivery(assetID AssetID) (*Delivery, error) {
	round, err := tx.saleRound(assetID)
	if err != nil {
		return nil, err
	}

	d, err := load(tx.kv, deliveryKey(assetID, round), decodeDelivery)
	if err != nil {
		return nil, err
	}

	if d == nil {
		d = &Delivery{AssetID: assetID, Round: round}
	}

	return d, nil
}

func (tx *txn) sendAsset(caller ids.Address, assetID AssetID, contentID, hash1, hash2 string) error {
	rep, err := tx.flag(addrKey(repPrefix, caller))
	if err != nil {
		return err
	}

	if !rep {
		return ErrNotREP
	}

	if _, err := tx.mustAsset(assetID); err != nil {
		return err
	}

	d, err := tx.currentDelivery(assetID)
	if err != nil {
		return err
	}

	subKey := submissionKey(assetID, d.Round, caller)

	submitted, err := tx.flag(subKey)
	if err != nil {
		return err
	}

	if submitted {
		return ErrAlreadySubmitted
	}

	s := &DeliverySubmission{
		Submitter:   caller,
		ContentID:   contentID,
		Hash1:       hash1,
		Hash2:       hash2,
		SubmittedAt: tx.now,
	}

	if err := tx.kv.Set(subKey, encodeSubmission(s)); err != nil {
		return fmt.Errorf("store submission:\n%w", err)
	}

	d.Count++

	confirmed := !d.Confirmed && d.Count >= tx.cfg.DeliveryQuorum
	if confirmed {
		d.Confirmed = true
	}

	if err := tx.kv.Set(deliveryKey(assetID, d.Round), encodeDelivery(d)); err != nil {
		return fmt.Errorf("store delivery:\n%w", err)
	}

	tx.afterCommit(func() {
		logger.Debug("delivery submission", "asset", assetID, "round", d.Round, "rep", caller.Short(), "count", d.Count)

		if confirmed {
			logger.Info("delivery confirmed", "asset", assetID, "round", d.Round)
		}
	})

	return nil
}
