package ledger

import (
	"encoding/binary"
	"errors"
	"fmt"

	"LineageMarket/internal/ids"
	"LineageMarket/internal/storage"
)

var (
	// ErrInsufficientFunds is returned when a debit exceeds the balance.
	ErrInsufficientFunds = errors.New("ledger: insufficient funds")

	// ErrOverflow is returned when a credit would wrap the balance.
	ErrOverflow = errors.New("ledger: balance overflow")
)

var walletPrefix = []byte("l:w:")

// Wallets holds the spendable balance of every address. Bids are paid from
// here and every release (bid withdrawal, escrow withdrawal) lands here.
type Wallets struct {
	kv storage.KV
}

// OpenWallets returns the wallet table over kv.
func OpenWallets(kv storage.KV) *Wallets {
	return &Wallets{kv: kv}
}

// Balance returns addr's balance. Unknown addresses hold 0.
func (w *Wallets) Balance(addr ids.Address) (uint64, error) {
	data, err := w.kv.Get(walletKey(addr))
	if err != nil {
		return 0, fmt.Errorf("read wallet:\n%w", err)
	}

	if data == nil {
		return 0, nil
	}

	if len(data) != 8 {
		return 0, fmt.Errorf("wallet entry for %s has %d bytes", addr.Short(), len(data))
	}

	return binary.LittleEndian.Uint64(data), nil
}

// Credit adds amount to addr's balance.
func (w *Wallets) Credit(addr ids.Address, amount uint64) error {
	if amount == 0 {
		return nil
	}

	balance, err := w.Balance(addr)
	if err != nil {
		return err
	}

	// Overflow check: balance + amount must not wrap
	newBalance := balance + amount
	if newBalance < balance {
		return fmt.Errorf("%w: balance=%d + amount=%d", ErrOverflow, balance, amount)
	}

	return w.write(addr, newBalance)
}

// Debit removes amount from addr's balance, failing without change if it is short.
func (w *Wallets) Debit(addr ids.Address, amount uint64) error {
	balance, err := w.Balance(addr)
	if err != nil {
		return err
	}

	if balance < amount {
		return fmt.Errorf("%w: have %d, need %d", ErrInsufficientFunds, balance, amount)
	}

	return w.write(addr, balance-amount)
}

// write stores a balance, deleting the entry when it reaches zero.
func (w *Wallets) write(addr ids.Address, balance uint64) error {
	if balance == 0 {
		return w.kv.Delete(walletKey(addr))
	}

	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], balance)

	return w.kv.Set(walletKey(addr), buf[:])
}

// walletKey builds "l:w:" + address.
func walletKey(addr ids.Address) []byte {
	key := make([]byte, 0, len(walletPrefix)+ids.AddressSize)
	key = append(key, walletPrefix...)

	return append(key, addr[:]...)
}
