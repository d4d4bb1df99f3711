package api

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"LineageMarket/internal/ids"
	"LineageMarket/internal/logger"
	"LineageMarket/internal/market"
)

const (
	// maxCallSize is the maximum call envelope size in bytes.
	maxCallSize = 1 << 20 // 1 MB

	// maxFaucetBody bounds the faucet request body.
	maxFaucetBody = 4 << 10
)

// Market is the state machine the API exposes.
type Market interface {
	Execute(call *market.Call) (market.Receipt, error)
	Worker(addr ids.Address) (*market.Worker, error)
	Asset(id market.AssetID) (*market.Asset, error)
	OwnerOf(id market.AssetID) (ids.Address, error)
	IsVerified(id market.AssetID) (bool, error)
	Task(id market.TaskID) (*market.Task, error)
	Auction(asset market.AssetID) (*market.Auction, error)
	Delivery(asset market.AssetID) (*market.Delivery, error)
	EscrowBalance(addr ids.Address) (uint64, error)
	Balance(addr ids.Address) (uint64, error)
	Deposit(addr ids.Address, amount uint64) error
	ActiveAuctions() int
	Now() uint64
}

// Server is the HTTP API server.
type Server struct {
	addr    string       // addr is the HTTP listen address
	market  Market       // market executes calls and answers queries
	faucet  bool         // faucet enables POST /faucet wallet funding
	started time.Time    // started is when the server was created
	server  *http.Server // server is the underlying HTTP server
}

// New creates a new HTTP API server.
func New(addr string, m Market, faucet bool) *Server {
	return &Server{
		addr:    addr,
		market:  m,
		faucet:  faucet,
		started: time.Now(),
	}
}

// Handler returns the request router.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /call", s.handleCall)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /status", s.handleStatus)
	mux.HandleFunc("GET /workers/{addr}", s.handleWorker)
	mux.HandleFunc("GET /assets/{id}", s.handleAsset)
	mux.HandleFunc("GET /tasks/{id}", s.handleTask)
	mux.HandleFunc("GET /auctions/{asset}", s.handleAuction)
	mux.HandleFunc("GET /delivery/{asset}", s.handleDelivery)
	mux.HandleFunc("GET /escrow/{addr}", s.handleEscrow)
	mux.HandleFunc("GET /wallets/{addr}", s.handleWallet)

	if s.faucet {
		mux.HandleFunc("POST /faucet", s.handleFaucet)
	}

	return mux
}

// Start starts the HTTP server in a goroutine.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         s.addr,
		Handler:      s.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("http api started", "addr", s.addr)

		if err := s.server.ListenAndServe(); err != http.ErrServerClosed {
			logger.Error("http server error", "error", err)
		}
	}()

	return nil
}

// Stop gracefully shuts down the HTTP server.
func (s *Server) Stop() error {
	if s.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	return s.server.Shutdown(ctx)
}

// handleCall handles POST /call requests.
func (s *Server) handleCall(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxCallSize+1))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read body")
		return
	}

	if len(body) == 0 {
		writeError(w, http.StatusBadRequest, "empty call")
		return
	}

	if len(body) > maxCallSize {
		writeError(w, http.StatusRequestEntityTooLarge, "call too large")
		return
	}

	call, err := validateCall(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid call: %v", err))
		return
	}

	hash := hex.EncodeToString(call.Hash[:])

	receipt, err := s.market.Execute(call)
	if err != nil {
		logger.Debug("call rejected", "hash", hash[:16], "fn", call.Function, "error", err)
		writeMarketError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"hash":     hash,
		"function": receipt.Function,
		"value":    receipt.Value,
		"payouts":  receipt.Payouts,
	})
}

// handleHealth handles GET /health requests.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
	})
}

// handleStatus handles GET /status requests.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"time":           s.market.Now(),
		"activeAuctions": s.market.ActiveAuctions(),
		"uptimeSeconds":  int64(time.Since(s.started).Seconds()),
		"faucet":         s.faucet,
	})
}

// handleWorker handles GET /workers/{addr} requests.
func (s *Server) handleWorker(w http.ResponseWriter, r *http.Request) {
	addr, ok := pathAddress(w, r, "addr")
	if !ok {
		return
	}

	worker, err := s.market.Worker(addr)
	if err != nil {
		writeQueryError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"address":    worker.Address,
		"status":     worker.Status.String(),
		"positive":   worker.Positive,
		"negative":   worker.Negative,
		"verifiedAt": worker.VerifiedAt,
	})
}

// handleAsset handles GET /assets/{id} requests.
func (s *Server) handleAsset(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUint(w, r, "id")
	if !ok {
		return
	}

	asset, err := s.market.Asset(market.AssetID(id))
	if err != nil {
		writeQueryError(w, err)
		return
	}

	owner, err := s.market.OwnerOf(asset.ID)
	if err != nil {
		writeQueryError(w, err)
		return
	}

	verified, err := s.market.IsVerified(asset.ID)
	if err != nil {
		writeQueryError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"id":        asset.ID,
		"creator":   asset.Creator,
		"owner":     owner,
		"contentId": asset.ContentID,
		"parent":    asset.Parent,
		"createdAt": asset.CreatedAt,
		"verified":  verified,
	})
}

// handleTask handles GET /tasks/{id} requests.
func (s *Server) handleTask(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUint(w, r, "id")
	if !ok {
		return
	}

	task, err := s.market.Task(market.TaskID(id))
	if err != nil {
		writeQueryError(w, err)
		return
	}

	heads := task.Registrants[:min(int(task.Quorum), len(task.Registrants))]

	scores := make(map[string]uint32, len(task.Scores))
	for _, sc := range task.Scores {
		scores[sc.Head.String()] = sc.Score
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"id":          task.ID,
		"assetId":     task.AssetID,
		"requester":   task.Requester,
		"capacity":    task.Capacity,
		"quorum":      task.Quorum,
		"registrants": task.Registrants,
		"heads":       heads,
		"scores":      scores,
		"verified":    task.Verified,
		"meanScore":   task.MeanScore,
	})
}

// handleAuction handles GET /auctions/{asset} requests.
func (s *Server) handleAuction(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUint(w, r, "asset")
	if !ok {
		return
	}

	a, err := s.market.Auction(market.AssetID(id))
	if err != nil {
		writeQueryError(w, err)
		return
	}

	resp := map[string]any{
		"id":         a.ID,
		"assetId":    a.AssetID,
		"seller":     a.Seller,
		"startTime":  a.StartTime,
		"endTime":    a.EndTime,
		"highestBid": a.HighestBid,
		"state":      a.State.String(),
		"settled":    a.Settled,
	}

	if a.HighestBid > 0 {
		resp["highestBidder"] = a.HighestBidder
	}

	writeJSON(w, http.StatusOK, resp)
}

// handleDelivery handles GET /delivery/{asset} requests.
func (s *Server) handleDelivery(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUint(w, r, "asset")
	if !ok {
		return
	}

	d, err := s.market.Delivery(market.AssetID(id))
	if err != nil {
		writeQueryError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"assetId":   d.AssetID,
		"round":     d.Round,
		"count":     d.Count,
		"confirmed": d.Confirmed,
	})
}

// handleEscrow handles GET /escrow/{addr} requests.
func (s *Server) handleEscrow(w http.ResponseWriter, r *http.Request) {
	s.writeAmount(w, r, s.market.EscrowBalance)
}

// handleWallet handles GET /wallets/{addr} requests.
func (s *Server) handleWallet(w http.ResponseWriter, r *http.Request) {
	s.writeAmount(w, r, s.market.Balance)
}

func (s *Server) writeAmount(w http.ResponseWriter, r *http.Request, get func(ids.Address) (uint64, error)) {
	addr, ok := pathAddress(w, r, "addr")
	if !ok {
		return
	}

	amount, err := get(addr)
	if err != nil {
		writeQueryError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"address": addr,
		"balance": amount,
	})
}

// faucetRequest is the body of POST /faucet.
type faucetRequest struct {
	Address string `json:"address"` // Address is the hex wallet to fund
	Amount  uint64 `json:"amount"`  // Amount is the credit
}

// handleFaucet handles POST /faucet requests.
func (s *Server) handleFaucet(w http.ResponseWriter, r *http.Request) {
	var req faucetRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxFaucetBody)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	addr, err := ids.ParseAddress(req.Address)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid address")
		return
	}

	if req.Amount == 0 {
		writeError(w, http.StatusBadRequest, "amount must be positive")
		return
	}

	if err := s.market.Deposit(addr, req.Amount); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	logger.Debug("faucet deposit", "addr", addr.Short(), "amount", req.Amount)

	balance, err := s.market.Balance(addr)
	if err != nil {
		writeQueryError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"address": addr,
		"balance": balance,
	})
}

// pathAddress parses a hex address path value, writing a 400 on failure.
func pathAddress(w http.ResponseWriter, r *http.Request, name string) (ids.Address, bool) {
	addr, err := ids.ParseAddress(r.PathValue(name))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid address")
		return ids.Address{}, false
	}

	return addr, true
}

// pathUint parses a decimal id path value, writing a 400 on failure.
func pathUint(w http.ResponseWriter, r *http.Request, name string) (uint64, bool) {
	v, err := strconv.ParseUint(r.PathValue(name), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid "+name)
		return 0, false
	}

	return v, true
}

// statusFor maps a market rejection kind to an HTTP status.
func statusFor(kind market.Kind) int {
	switch kind {
	case market.KindAuthorization:
		return http.StatusForbidden
	case market.KindState:
		return http.StatusConflict
	case market.KindValue:
		return http.StatusBadRequest
	case market.KindResource:
		return http.StatusPaymentRequired
	default:
		return http.StatusInternalServerError
	}
}

// writeMarketError writes a classified market error.
func writeMarketError(w http.ResponseWriter, err error) {
	kind := market.KindOf(err)
	if kind == market.KindUnknown {
		logger.Error("call failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	writeJSON(w, statusFor(kind), map[string]string{
		"error": market.CodeOf(err),
		"kind":  kind.String(),
	})
}

// writeQueryError writes a query failure; missing entities are 404.
func writeQueryError(w http.ResponseWriter, err error) {
	if errors.Is(err, market.ErrNotFound) {
		writeError(w, http.StatusNotFound, "not found")
		return
	}

	writeMarketError(w, err)
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeError writes an error response.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{
		"error": message,
	})
}
