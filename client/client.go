// Package client talks to a market node over HTTP: signed calls through a
// Wallet and read-only queries through a Client.
package client

import (
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"LineageMarket/internal/envelope"
	"LineageMarket/internal/ids"
	"LineageMarket/internal/market"
)

// ErrNotFound is returned by queries for entities the node does not hold.
var ErrNotFound = errors.New("not found")

// Client connects to a market node via HTTP.
type Client struct {
	nodeAddr string       // nodeAddr is the HTTP address (e.g. "127.0.0.1:8080")
	http     *http.Client // http is the transport
}

// Wallet holds a keypair and a nonce counter. Its public key is the caller
// address of every call it signs.
type Wallet struct {
	privKey ed25519.PrivateKey // privKey is the Ed25519 private key
	pubKey  ed25519.PublicKey  // pubKey is the Ed25519 public key
	nonce   atomic.Uint64      // nonce makes repeated identical calls distinct
}

// Status is the node status.
type Status struct {
	Time           uint64 `json:"time"`
	ActiveAuctions int    `json:"activeAuctions"`
	UptimeSeconds  int64  `json:"uptimeSeconds"`
	Faucet         bool   `json:"faucet"`
}

// WorkerInfo is a worker record.
type WorkerInfo struct {
	Address    ids.Address `json:"address"`
	Status     string      `json:"status"`
	Positive   uint32      `json:"positive"`
	Negative   uint32      `json:"negative"`
	VerifiedAt uint64      `json:"verifiedAt"`
}

// AssetInfo is an asset with its current owner.
type AssetInfo struct {
	ID        market.AssetID `json:"id"`
	Creator   ids.Address    `json:"creator"`
	Owner     ids.Address    `json:"owner"`
	ContentID string         `json:"contentId"`
	Parent    market.AssetID `json:"parent"`
	CreatedAt uint64         `json:"createdAt"`
	Verified  bool           `json:"verified"`
}

// TaskInfo is a verification task.
type TaskInfo struct {
	ID          market.TaskID     `json:"id"`
	AssetID     market.AssetID    `json:"assetId"`
	Requester   ids.Address       `json:"requester"`
	Capacity    uint32            `json:"capacity"`
	Quorum      uint32            `json:"quorum"`
	Registrants []ids.Address     `json:"registrants"`
	Heads       []ids.Address     `json:"heads"`
	Scores      map[string]uint32 `json:"scores"`
	Verified    bool              `json:"verified"`
	MeanScore   uint32            `json:"meanScore"`
}

// AuctionInfo is the latest auction of an asset.
type AuctionInfo struct {
	ID            market.AuctionID `json:"id"`
	AssetID       market.AssetID   `json:"assetId"`
	Seller        ids.Address      `json:"seller"`
	StartTime     uint64           `json:"startTime"`
	EndTime       uint64           `json:"endTime"`
	HighestBid    uint64           `json:"highestBid"`
	HighestBidder ids.Address      `json:"highestBidder"`
	State         string           `json:"state"`
	Settled       bool             `json:"settled"`
}

// DeliveryInfo is the delivery state of an asset's current sale round.
type DeliveryInfo struct {
	AssetID   market.AssetID   `json:"assetId"`
	Round     market.AuctionID `json:"round"`
	Count     uint32           `json:"count"`
	Confirmed bool             `json:"confirmed"`
}

// Receipt is the result of an executed call.
type Receipt struct {
	Hash     string          `json:"hash"`
	Function string          `json:"function"`
	Value    uint64          `json:"value"`
	Payouts  []market.Payout `json:"payouts"`
}

// NewClient creates a client for the node at nodeAddr.
// It checks the node is reachable via /health.
func NewClient(nodeAddr string) (*Client, error) {
	c := &Client{
		nodeAddr: strings.TrimPrefix(nodeAddr, "http://"),
		http:     &http.Client{Timeout: 10 * time.Second},
	}

	var health struct {
		Status string `json:"status"`
	}

	if err := c.httpGet("/health", &health); err != nil {
		return nil, fmt.Errorf("get health:\n%w", err)
	}

	if health.Status != "ok" {
		return nil, fmt.Errorf("node unhealthy: %q", health.Status)
	}

	return c, nil
}

func (c *Client) url(path string) string {
	return "http://" + c.nodeAddr + path
}

// NewWallet creates a new wallet with a random Ed25519 keypair.
func NewWallet() *Wallet {
	_, priv, _ := ed25519.GenerateKey(rand.Reader)

	return WalletFromKey(priv)
}

// WalletFromKey creates a wallet for an existing private key.
func WalletFromKey(priv ed25519.PrivateKey) *Wallet {
	w := &Wallet{
		privKey: priv,
		pubKey:  priv.Public().(ed25519.PublicKey),
	}

	// Seed from the clock so a reloaded key does not reuse nonces.
	w.nonce.Store(uint64(time.Now().UnixNano()))

	return w
}

// Address returns the wallet's public key as a market address.
func (w *Wallet) Address() ids.Address {
	var a ids.Address
	copy(a[:], w.pubKey)
	return a
}

// Call signs and submits a market call.
func (w *Wallet) Call(c *Client, fn string, args []byte) (*Receipt, error) {
	data, _ := envelope.BuildSigned(w.privKey, w.nonce.Add(1), fn, args)

	var receipt Receipt
	if err := c.submitCall(data, &receipt); err != nil {
		return nil, fmt.Errorf("%s:\n%w", fn, err)
	}

	return &receipt, nil
}

// Status returns the node status.
func (c *Client) Status() (*Status, error) {
	var s Status
	if err := c.httpGet("/status", &s); err != nil {
		return nil, fmt.Errorf("get status:\n%w", err)
	}

	return &s, nil
}

// Worker returns the worker record of addr.
func (c *Client) Worker(addr ids.Address) (*WorkerInfo, error) {
	var w WorkerInfo
	if err := c.httpGet("/workers/"+addr.String(), &w); err != nil {
		return nil, fmt.Errorf("get worker:\n%w", err)
	}

	return &w, nil
}

// Asset returns asset id with its owner and verified flag.
func (c *Client) Asset(id market.AssetID) (*AssetInfo, error) {
	var a AssetInfo
	if err := c.httpGet(fmt.Sprintf("/assets/%d", id), &a); err != nil {
		return nil, fmt.Errorf("get asset:\n%w", err)
	}

	return &a, nil
}

// Task returns verification task id.
func (c *Client) Task(id market.TaskID) (*TaskInfo, error) {
	var t TaskInfo
	if err := c.httpGet(fmt.Sprintf("/tasks/%d", id), &t); err != nil {
		return nil, fmt.Errorf("get task:\n%w", err)
	}

	return &t, nil
}

// Auction returns the latest auction of asset.
func (c *Client) Auction(asset market.AssetID) (*AuctionInfo, error) {
	var a AuctionInfo
	if err := c.httpGet(fmt.Sprintf("/auctions/%d", asset), &a); err != nil {
		return nil, fmt.Errorf("get auction:\n%w", err)
	}

	return &a, nil
}

// Delivery returns the delivery state of asset.
func (c *Client) Delivery(asset market.AssetID) (*DeliveryInfo, error) {
	var d DeliveryInfo
	if err := c.httpGet(fmt.Sprintf("/delivery/%d", asset), &d); err != nil {
		return nil, fmt.Errorf("get delivery:\n%w", err)
	}

	return &d, nil
}

// Balance returns the wallet balance of addr.
func (c *Client) Balance(addr ids.Address) (uint64, error) {
	return c.amount("/wallets/", addr)
}

// EscrowBalance returns the settlement proceeds addr has not withdrawn.
func (c *Client) EscrowBalance(addr ids.Address) (uint64, error) {
	return c.amount("/escrow/", addr)
}

func (c *Client) amount(path string, addr ids.Address) (uint64, error) {
	var resp struct {
		Balance uint64 `json:"balance"`
	}

	if err := c.httpGet(path+addr.String(), &resp); err != nil {
		return 0, fmt.Errorf("get balance:\n%w", err)
	}

	return resp.Balance, nil
}

// Faucet funds addr's wallet and returns the new balance.
func (c *Client) Faucet(addr ids.Address, amount uint64) (uint64, error) {
	body := map[string]any{
		"address": addr.String(),
		"amount":  amount,
	}

	var resp struct {
		Balance uint64 `json:"balance"`
	}

	if err := c.httpPostJSON("/faucet", body, &resp); err != nil {
		return 0, fmt.Errorf("faucet:\n%w", err)
	}

	return resp.Balance, nil
}
