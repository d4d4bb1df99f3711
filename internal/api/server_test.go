package api

import (
	"bytes"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	flatbuffers "github.com/google/flatbuffers/go"

	"LineageMarket/internal/clock"
	"LineageMarket/internal/envelope"
	"LineageMarket/internal/ids"
	"LineageMarket/internal/market"
	"LineageMarket/internal/storage"
	"LineageMarket/internal/types"
)

// newTestServer creates a server over a fresh engine.
func newTestServer(t *testing.T, faucet bool) (*Server, *market.Engine) {
	t.Helper()

	dir, err := os.MkdirTemp("", "api_test_*")
	if err != nil {
		t.Fatalf("failed to create temp dir: %v", err)
	}

	t.Cleanup(func() {
		os.RemoveAll(dir)
	})

	db, err := storage.New(filepath.Join(dir, "db"))
	if err != nil {
		t.Fatalf("failed to create storage: %v", err)
	}

	t.Cleanup(func() {
		db.Close()
	})

	engine, err := market.New(db, clock.NewMock(1_700_000_000), market.Config{Operator: ids.Address{0x4D}})
	if err != nil {
		t.Fatalf("failed to create engine: %v", err)
	}

	return New(":0", engine, faucet), engine
}

// do sends a request through the server router.
func do(s *Server, method, path string, body []byte) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	w := httptest.NewRecorder()

	s.Handler().ServeHTTP(w, req)

	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()

	var resp map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}

	return resp
}

func newKey(t *testing.T) (ids.Address, ed25519.PrivateKey) {
	t.Helper()

	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}

	addr, _ := ids.AddressFromBytes(pub)

	return addr, priv
}

func TestHealthEndpoint(t *testing.T) {
	server, _ := newTestServer(t, false)

	w := do(server, "GET", "/health", nil)

	if w.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", w.Code)
	}

	if resp := decode(t, w); resp["status"] != "ok" {
		t.Errorf("expected status ok, got %v", resp["status"])
	}
}

func TestCall_Success(t *testing.T) {
	server, engine := newTestServer(t, false)
	addr, priv := newKey(t)

	data, hash := envelope.BuildSigned(priv, 1, market.FnRegisterVerifier, nil)

	w := do(server, "POST", "/call", data)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
	}

	resp := decode(t, w)
	if resp["hash"] != hex.EncodeToString(hash[:]) {
		t.Errorf("hash = %v, want %x", resp["hash"], hash)
	}

	if ok, _ := engine.IsVerifier(addr); !ok {
		t.Error("sender was not enrolled as verifier")
	}
}

func TestCall_MintAndQueryAsset(t *testing.T) {
	server, _ := newTestServer(t, false)
	addr, priv := newKey(t)

	args := (&market.MintArgs{Owner: addr, ContentID: "ipfs://model"}).Encode()
	data, _ := envelope.BuildSigned(priv, 1, market.FnMint, args)

	w := do(server, "POST", "/call", data)
	if w.Code != http.StatusOK {
		t.Fatalf("mint: expected 200, got %d: %s", w.Code, w.Body.String())
	}

	if resp := decode(t, w); resp["value"] != float64(1) {
		t.Errorf("minted id = %v, want 1", resp["value"])
	}

	w = do(server, "GET", "/assets/1", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("asset: expected 200, got %d: %s", w.Code, w.Body.String())
	}

	resp := decode(t, w)
	if resp["owner"] != addr.String() || resp["creator"] != addr.String() {
		t.Errorf("owner = %v creator = %v, want %s", resp["owner"], resp["creator"], addr)
	}

	if resp["contentId"] != "ipfs://model" || resp["verified"] != false {
		t.Errorf("unexpected asset response: %v", resp)
	}
}

func TestCall_Replay(t *testing.T) {
	server, _ := newTestServer(t, false)
	_, priv := newKey(t)

	data, _ := envelope.BuildSigned(priv, 7, market.FnRegisterOracle, nil)

	if w := do(server, "POST", "/call", data); w.Code != http.StatusOK {
		t.Fatalf("first call: expected 200, got %d", w.Code)
	}

	w := do(server, "POST", "/call", data)
	if w.Code != http.StatusConflict {
		t.Errorf("replay: expected 409, got %d", w.Code)
	}

	if resp := decode(t, w); resp["error"] != "ReplayedCall" || resp["kind"] != "StateError" {
		t.Errorf("unexpected replay response: %v", resp)
	}
}

func TestCall_RejectionStatus(t *testing.T) {
	server, _ := newTestServer(t, false)
	_, priv := newKey(t)

	tests := []struct {
		name   string
		fn     string
		args   []byte
		status int
		code   string
	}{
		{"not a REP", market.FnSendAsset, (&market.SendAssetArgs{AssetID: 1}).Encode(), http.StatusForbidden, "NotREP"},
		{"unknown function", "selfDestruct", nil, http.StatusBadRequest, "UnknownFunction"},
		{"malformed args", market.FnMint, []byte{1}, http.StatusBadRequest, "MalformedArgs"},
		{"nothing to withdraw", market.FnWithdrawFunds, nil, http.StatusPaymentRequired, "NoBalance"},
		{"missing auction", market.FnEndAuction, (&market.AssetArgs{AssetID: 9}).Encode(), http.StatusConflict, "NotFound"},
	}

	for i, tt := range tests {
		data, _ := envelope.BuildSigned(priv, uint64(i+1), tt.fn, tt.args)

		w := do(server, "POST", "/call", data)

		if w.Code != tt.status {
			t.Errorf("[%s] expected %d, got %d: %s", tt.name, tt.status, w.Code, w.Body.String())
			continue
		}

		if resp := decode(t, w); resp["error"] != tt.code {
			t.Errorf("[%s] error = %v, want %s", tt.name, resp["error"], tt.code)
		}
	}
}

func TestCall_EmptyBody(t *testing.T) {
	server, _ := newTestServer(t, false)

	if w := do(server, "POST", "/call", nil); w.Code != http.StatusBadRequest {
		t.Errorf("expected status 400, got %d", w.Code)
	}
}

func TestCall_InvalidData(t *testing.T) {
	server, _ := newTestServer(t, false)

	if w := do(server, "POST", "/call", []byte("invalid")); w.Code != http.StatusBadRequest {
		t.Errorf("expected status 400, got %d", w.Code)
	}
}

func TestCall_BodyTooLarge(t *testing.T) {
	server, _ := newTestServer(t, false)

	w := do(server, "POST", "/call", make([]byte, 2*1024*1024))

	if w.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("expected 413 for oversized body, got %d", w.Code)
	}
}

func TestCall_ValidationFailures(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*callOptions)
	}{
		{"corrupt signature", func(o *callOptions) { o.corruptSignature = true }},
		{"tampered hash", func(o *callOptions) { o.tamperedHash = true }},
		{"signed by different key", func(o *callOptions) { o.wrongSender = true }},
		{"short sender", func(o *callOptions) { o.senderSize = 16 }},
		{"short signature", func(o *callOptions) { o.signatureSize = 32 }},
		{"empty function name", func(o *callOptions) { o.functionName = "" }},
		{"long function name", func(o *callOptions) { o.functionName = string(make([]byte, 65)) }},
	}

	for _, tt := range tests {
		server, engine := newTestServer(t, false)

		w := do(server, "POST", "/call", buildTestCall(t, tt.modify))

		assertRejected(t, w, engine, tt.name)
	}
}

func TestGetAsset_NotFound(t *testing.T) {
	server, _ := newTestServer(t, false)

	if w := do(server, "GET", "/assets/42", nil); w.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", w.Code)
	}
}

func TestGetAsset_InvalidID(t *testing.T) {
	server, _ := newTestServer(t, false)

	if w := do(server, "GET", "/assets/abc", nil); w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
}

func TestGetWorker(t *testing.T) {
	server, engine := newTestServer(t, false)
	addr, _ := newKey(t)

	if w := do(server, "GET", "/workers/"+addr.String(), nil); w.Code != http.StatusNotFound {
		t.Errorf("unregistered worker: expected 404, got %d", w.Code)
	}

	if err := engine.RegisterWorker(addr, []byte("quote")); err != nil {
		t.Fatalf("RegisterWorker: %v", err)
	}

	w := do(server, "GET", "/workers/"+addr.String(), nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	if resp := decode(t, w); resp["status"] != "Pending" {
		t.Errorf("status = %v, want Pending", resp["status"])
	}

	if w := do(server, "GET", "/workers/deadbeef", nil); w.Code != http.StatusBadRequest {
		t.Errorf("bad address: expected 400, got %d", w.Code)
	}
}

func TestGetWallet(t *testing.T) {
	server, engine := newTestServer(t, false)
	addr, _ := newKey(t)

	if err := engine.Deposit(addr, 250); err != nil {
		t.Fatalf("Deposit: %v", err)
	}

	w := do(server, "GET", "/wallets/"+addr.String(), nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	if resp := decode(t, w); resp["balance"] != float64(250) {
		t.Errorf("balance = %v, want 250", resp["balance"])
	}

	w = do(server, "GET", "/escrow/"+addr.String(), nil)
	if resp := decode(t, w); resp["balance"] != float64(0) {
		t.Errorf("escrow = %v, want 0", resp["balance"])
	}
}

func TestStatus_Success(t *testing.T) {
	server, _ := newTestServer(t, true)

	w := do(server, "GET", "/status", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	resp := decode(t, w)

	if resp["time"] != float64(1_700_000_000) {
		t.Errorf("time = %v", resp["time"])
	}

	if resp["activeAuctions"] != float64(0) || resp["faucet"] != true {
		t.Errorf("unexpected status: %v", resp)
	}
}

// =============================================================================
// Faucet Tests
// =============================================================================

func TestFaucet_Valid(t *testing.T) {
	server, engine := newTestServer(t, true)
	addr, _ := newKey(t)

	body := `{"address":"` + addr.String() + `","amount":1000}`

	w := do(server, "POST", "/faucet", []byte(body))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	if balance, _ := engine.Balance(addr); balance != 1000 {
		t.Errorf("balance = %d, want 1000", balance)
	}
}

func TestFaucet_ZeroAmount(t *testing.T) {
	server, _ := newTestServer(t, true)

	body := `{"address":"` + hex.EncodeToString(make([]byte, 32)) + `","amount":0}`

	if w := do(server, "POST", "/faucet", []byte(body)); w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for zero amount, got %d: %s", w.Code, w.Body.String())
	}
}

func TestFaucet_InvalidAddress(t *testing.T) {
	server, _ := newTestServer(t, true)

	body := `{"address":"deadbeef","amount":1000}`

	if w := do(server, "POST", "/faucet", []byte(body)); w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for invalid address, got %d: %s", w.Code, w.Body.String())
	}
}

func TestFaucet_Disabled(t *testing.T) {
	server, _ := newTestServer(t, false)

	body := `{"address":"` + hex.EncodeToString(make([]byte, 32)) + `","amount":1000}`

	if w := do(server, "POST", "/faucet", []byte(body)); w.Code != http.StatusNotFound {
		t.Errorf("expected 404 with faucet disabled, got %d", w.Code)
	}
}

func assertRejected(t *testing.T, w *httptest.ResponseRecorder, engine *market.Engine, label string) {
	t.Helper()

	if w.Code != http.StatusBadRequest {
		t.Errorf("[%s] expected 400, got %d: %s", label, w.Code, w.Body.String())
	}

	if n, _ := engine.VerifierCount(); n != 0 {
		t.Errorf("[%s] should not execute on validation failure", label)
	}
}

// callOptions controls how buildTestCall constructs the envelope.
type callOptions struct {
	senderSize       int    // override sender byte size (default 32)
	signatureSize    int    // override signature byte size (default 64)
	functionName     string // override function name (default registerVerifier)
	corruptSignature bool   // flip a bit in the signature
	tamperedHash     bool   // use a wrong hash
	wrongSender      bool   // sign with one key, put different sender
}

// buildTestCall creates a signed call envelope. The optional modifier can
// alter the options to produce invalid envelopes.
func buildTestCall(t *testing.T, modify func(*callOptions)) []byte {
	t.Helper()

	opts := &callOptions{
		senderSize:    32,
		signatureSize: 64,
		functionName:  market.FnRegisterVerifier,
	}

	if modify != nil {
		modify(opts)
	}

	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}

	sender := pub[:opts.senderSize]

	hash := envelope.Hash(sender, 1, opts.functionName, nil)

	if opts.tamperedHash {
		hash[0] ^= 0xFF
	}

	sig := ed25519.Sign(priv, hash[:])

	if opts.corruptSignature {
		sig[0] ^= 0xFF
	}

	if opts.wrongSender {
		otherPub, _, _ := ed25519.GenerateKey(rand.Reader)
		sender = otherPub[:opts.senderSize]
	}

	builder := flatbuffers.NewBuilder(512)

	hashVec := builder.CreateByteVector(hash[:])
	sigVec := builder.CreateByteVector(sig[:opts.signatureSize])
	senderVec := builder.CreateByteVector(sender)
	funcNameOff := builder.CreateString(opts.functionName)

	types.CallStart(builder)
	types.CallAddHash(builder, hashVec)
	types.CallAddSender(builder, senderVec)
	types.CallAddNonce(builder, 1)
	types.CallAddFunctionName(builder, funcNameOff)
	types.CallAddSignature(builder, sigVec)
	builder.Finish(types.CallEnd(builder))

	return builder.FinishedBytes()
}
