package market

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru"

	"LineageMarket/internal/clock"
	"LineageMarket/internal/ids"
	"LineageMarket/internal/ledger"
	"LineageMarket/internal/logger"
	"LineageMarket/internal/storage"
)

const (
	// DefaultMinAuctionDuration is the shortest allowed auction, in seconds.
	DefaultMinAuctionDuration = 300

	// DefaultDeliveryQuorum is the number of REP submissions that confirm a delivery.
	DefaultDeliveryQuorum = 2

	// defaultAssetCacheSize is the number of decoded assets kept in memory.
	defaultAssetCacheSize = 4096
)

// errStopIteration ends a prefix scan early.
var errStopIteration = errors.New("stop iteration")

// Ledger is the ownership ledger collaborator.
type Ledger interface {
	Mint(to ids.Address, asset uint64) error
	OwnerOf(asset uint64) (ids.Address, error)
	IsApprovedOrOwner(spender ids.Address, asset uint64) (bool, error)
	SetApprovalForAll(owner, operator ids.Address, approved bool) error
	Transfer(operator, from, to ids.Address, asset uint64) error
}

// Wallets holds spendable balances outside the market's escrow.
type Wallets interface {
	Balance(addr ids.Address) (uint64, error)
	Credit(addr ids.Address, amount uint64) error
	Debit(addr ids.Address, amount uint64) error
}

// Config holds market parameters.
type Config struct {
	// MinAuctionDuration is the minimum endTime - now at auction start, in seconds.
	MinAuctionDuration uint64

	// DeliveryQuorum is the number of distinct REP submissions that confirm a delivery.
	DeliveryQuorum uint32

	// Operator is the market's own address. Sellers approve it on the
	// ledger so settlement can transfer the sold asset.
	Operator ids.Address

	// AssetCacheSize bounds the decoded asset cache.
	AssetCacheSize int
}

// Option customizes an Engine.
type Option func(*Engine)

// WithLedger replaces the Pebble-backed ownership ledger.
// open is called with the batch of every operation.
func WithLedger(open func(storage.KV) Ledger) Option {
	return func(e *Engine) {
		e.openLedger = open
	}
}

// WithWallets replaces the Pebble-backed wallet table.
func WithWallets(open func(storage.KV) Wallets) Option {
	return func(e *Engine) {
		e.openWallets = open
	}
}

// Engine is the market state machine. Every mutating operation runs to
// completion under one lock inside one storage batch: it either commits all
// of its writes or none.
type Engine struct {
	mu          sync.RWMutex
	db          *storage.Storage
	clock       clock.Clock
	cfg         Config
	openLedger  func(storage.KV) Ledger
	openWallets func(storage.KV) Wallets
	assets      *lru.Cache     // assets caches immutable *Asset records by id
	deadlines   *deadlineIndex // deadlines orders Active auctions by end time
}

// New creates an engine over db and rebuilds in-memory indexes from it.
func New(db *storage.Storage, clk clock.Clock, cfg Config, opts ...Option) (*Engine, error) {
	if cfg.MinAuctionDuration == 0 {
		cfg.MinAuctionDuration = DefaultMinAuctionDuration
	}

	if cfg.DeliveryQuorum == 0 {
		cfg.DeliveryQuorum = DefaultDeliveryQuorum
	}

	if cfg.AssetCacheSize <= 0 {
		cfg.AssetCacheSize = defaultAssetCacheSize
	}

	cache, err := lru.New(cfg.AssetCacheSize)
	if err != nil {
		return nil, fmt.Errorf("create asset cache:\n%w", err)
	}

	e := &Engine{
		db:    db,
		clock: clk,
		cfg:   cfg,
		openLedger: func(kv storage.KV) Ledger {
			return ledger.Open(kv)
		},
		openWallets: func(kv storage.KV) Wallets {
			return ledger.OpenWallets(kv)
		},
		assets:    cache,
		deadlines: newDeadlineIndex(),
	}

	for _, opt := range opts {
		opt(e)
	}

	if err := e.loadDeadlines(); err != nil {
		return nil, fmt.Errorf("load auction deadlines:\n%w", err)
	}

	return e, nil
}

// Config returns the engine parameters.
func (e *Engine) Config() Config {
	return e.cfg
}

// Now returns the engine clock reading.
func (e *Engine) Now() uint64 {
	return e.clock.Now()
}

// txn is the view of the store handed to one operation.
type txn struct {
	kv        storage.KV
	ledger    Ledger
	wallets   Wallets
	now       uint64
	cfg       *Config
	assets    *lru.Cache
	deadlines *deadlineIndex
	readOnly  bool
	committed []func() // committed run in order after a successful commit
}

// afterCommit registers fn to run once the operation's batch is committed.
// Reads inside a view run fn immediately.
func (tx *txn) afterCommit(fn func()) {
	if tx.readOnly {
		fn()
		return
	}

	tx.committed = append(tx.committed, fn)
}

func (e *Engine) newTxn(kv storage.KV, readOnly bool) *txn {
	return &txn{
		kv:        kv,
		ledger:    e.openLedger(kv),
		wallets:   e.openWallets(kv),
		now:       e.clock.Now(),
		cfg:       &e.cfg,
		assets:    e.assets,
		deadlines: e.deadlines,
		readOnly:  readOnly,
	}
}

// update runs fn in a fresh batch and commits it if fn returns nil.
func (e *Engine) update(op string, fn func(tx *txn) error) error {
	start := time.Now()

	e.mu.Lock()
	defer e.mu.Unlock()

	batch := e.db.NewBatch()
	defer batch.Close()

	tx := e.newTxn(batch, false)

	if err := fn(tx); err != nil {
		logger.Debug("operation rejected", "op", op, "error", err)
		return err
	}

	if err := batch.Commit(); err != nil {
		return fmt.Errorf("commit %s:\n%w", op, err)
	}

	for _, f := range tx.committed {
		f()
	}

	logger.Debug("operation committed", "op", op, logger.Timed(start))

	return nil
}

// view runs a read-only fn against committed state.
func (e *Engine) view(fn func(tx *txn) error) error {
	e.mu.RLock()
	defer e.mu.RUnlock()

	return fn(e.newTxn(e.db, true))
}

// load reads and decodes a record. A missing key yields (nil, nil).
func load[T any](kv storage.KV, key []byte, decode func([]byte) (*T, error)) (*T, error) {
	data, err := kv.Get(key)
	if err != nil {
		return nil, fmt.Errorf("read %q:\n%w", key[:min(len(key), 3)], err)
	}

	if data == nil {
		return nil, nil
	}

	return decode(data)
}

// flag reports whether key is present.
func (tx *txn) flag(key []byte) (bool, error) {
	data, err := tx.kv.Get(key)
	if err != nil {
		return false, fmt.Errorf("read flag:\n%w", err)
	}

	return data != nil, nil
}

// setFlag marks key present.
func (tx *txn) setFlag(key []byte) error {
	return tx.kv.Set(key, []byte{1})
}

// getU64 reads a little-endian counter or amount; missing keys read 0.
func (tx *txn) getU64(key []byte) (uint64, error) {
	data, err := tx.kv.Get(key)
	if err != nil {
		return 0, fmt.Errorf("read amount:\n%w", err)
	}

	if data == nil {
		return 0, nil
	}

	if len(data) != 8 {
		return 0, fmt.Errorf("amount entry has %d bytes", len(data))
	}

	return binary.LittleEndian.Uint64(data), nil
}

// setU64 writes an amount, deleting the key at zero.
func (tx *txn) setU64(key []byte, v uint64) error {
	if v == 0 {
		return tx.kv.Delete(key)
	}

	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], v)

	return tx.kv.Set(key, buf[:])
}

// addU64 adds delta to the amount at key with an overflow check.
func (tx *txn) addU64(key []byte, delta uint64) (uint64, error) {
	cur, err := tx.getU64(key)
	if err != nil {
		return 0, err
	}

	next := cur + delta
	if next < cur {
		return 0, fmt.Errorf("amount overflow: %d + %d wraps", cur, delta)
	}

	return next, tx.setU64(key, next)
}

// nextID increments and returns the named sequence. The first id is 1.
func (tx *txn) nextID(name string) (uint64, error) {
	return tx.addU64(metaKey(name), 1)
}

// counter returns the current value of a named sequence.
func (tx *txn) counter(name string) (uint64, error) {
	return tx.getU64(metaKey(name))
}
