// Package ledger is the ownership ledger the market consults: who owns an
// asset, which operators an owner approved, and ownership transfer. It reads
// and writes through a storage.KV so a caller holding a batch gets ledger
// effects committed atomically with its own.
package ledger

import (
	"encoding/binary"
	"errors"
	"fmt"

	"LineageMarket/internal/ids"
	"LineageMarket/internal/storage"
)

var (
	// ErrUnknownAsset is returned for an asset the ledger never minted.
	ErrUnknownAsset = errors.New("ledger: unknown asset")

	// ErrAlreadyMinted is returned when minting an id twice.
	ErrAlreadyMinted = errors.New("ledger: asset already minted")

	// ErrNotOwner is returned when a transfer names the wrong current owner.
	ErrNotOwner = errors.New("ledger: from is not the owner")

	// ErrNotApproved is returned when the operator may not move the asset.
	ErrNotApproved = errors.New("ledger: operator not approved")
)

// Key prefixes. The "l:" namespace keeps ledger keys apart from market keys.
var (
	ownerPrefix    = []byte("l:o:")
	approvalPrefix = []byte("l:a:")
)

// Ledger maps asset ids to owners and owners to approved operators.
type Ledger struct {
	kv storage.KV
}

// Open returns a ledger over kv.
func Open(kv storage.KV) *Ledger {
	return &Ledger{kv: kv}
}

// Mint records to as the first owner of asset.
func (l *Ledger) Mint(to ids.Address, asset uint64) error {
	existing, err := l.kv.Get(ownerKey(asset))
	if err != nil {
		return fmt.Errorf("read owner:\n%w", err)
	}

	if existing != nil {
		return fmt.Errorf("%w: %d", ErrAlreadyMinted, asset)
	}

	return l.kv.Set(ownerKey(asset), to[:])
}

// OwnerOf returns the current owner of asset.
func (l *Ledger) OwnerOf(asset uint64) (ids.Address, error) {
	data, err := l.kv.Get(ownerKey(asset))
	if err != nil {
		return ids.Address{}, fmt.Errorf("read owner:\n%w", err)
	}

	if data == nil {
		return ids.Address{}, fmt.Errorf("%w: %d", ErrUnknownAsset, asset)
	}

	return ids.AddressFromBytes(data)
}

// SetApprovalForAll lets operator move every asset owned by owner, or revokes it.
func (l *Ledger) SetApprovalForAll(owner, operator ids.Address, approved bool) error {
	key := approvalKey(owner, operator)

	if !approved {
		return l.kv.Delete(key)
	}

	return l.kv.Set(key, []byte{1})
}

// IsApprovedForAll reports whether operator may move owner's assets.
func (l *Ledger) IsApprovedForAll(owner, operator ids.Address) (bool, error) {
	data, err := l.kv.Get(approvalKey(owner, operator))
	if err != nil {
		return false, fmt.Errorf("read approval:\n%w", err)
	}

	return data != nil, nil
}

// IsApprovedOrOwner reports whether spender owns asset or is an approved operator of its owner.
func (l *Ledger) IsApprovedOrOwner(spender ids.Address, asset uint64) (bool, error) {
	owner, err := l.OwnerOf(asset)
	if err != nil {
		return false, err
	}

	if owner == spender {
		return true, nil
	}

	return l.IsApprovedForAll(owner, spender)
}

// Transfer moves asset from its owner to to on behalf of operator.
func (l *Ledger) Transfer(operator, from, to ids.Address, asset uint64) error {
	owner, err := l.OwnerOf(asset)
	if err != nil {
		return err
	}

	if owner != from {
		return fmt.Errorf("%w: asset %d owned by %s", ErrNotOwner, asset, owner.Short())
	}

	if operator != from {
		approved, err := l.IsApprovedForAll(from, operator)
		if err != nil {
			return err
		}

		if !approved {
			return fmt.Errorf("%w: %s for %s", ErrNotApproved, operator.Short(), from.Short())
		}
	}

	return l.kv.Set(ownerKey(asset), to[:])
}

// ownerKey builds "l:o:" + asset id (u64 big-endian, so ids sort numerically).
func ownerKey(asset uint64) []byte {
	key := make([]byte, len(ownerPrefix)+8)
	copy(key, ownerPrefix)
	binary.BigEndian.PutUint64(key[len(ownerPrefix):], asset)

	return key
}

// approvalKey builds "l:a:" + owner + operator.
func approvalKey(owner, operator ids.Address) []byte {
	key := make([]byte, 0, len(approvalPrefix)+2*ids.AddressSize)
	key = append(key, approvalPrefix...)
	key = append(key, owner[:]...)
	key = append(key, operator[:]...)

	return key
}
