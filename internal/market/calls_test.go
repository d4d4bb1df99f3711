package market

import (
	"errors"
	"testing"

	"LineageMarket/internal/ids"
)

// call builds a call with a hash unique to the test sequence.
func call(seq byte, sender ids.Address, fn string, args []byte) *Call {
	return &Call{Hash: [32]byte{0xCA, seq}, Sender: sender, Function: fn, Args: args}
}

func TestExecuteMint(t *testing.T) {
	f := newFixture(t)

	args := (&MintArgs{Owner: u2, ContentID: "ipfs://x", Parent: RootAsset}).Encode()

	receipt, err := f.e.Execute(call(1, u1, FnMint, args))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}

	if receipt.Function != FnMint || receipt.Value != 1 {
		t.Errorf("receipt = %+v", receipt)
	}

	if owner, _ := f.e.OwnerOf(1); owner != u2 {
		t.Errorf("owner = %s, want %s", owner.Short(), u2.Short())
	}

	if _, err := f.e.Execute(call(1, u1, FnMint, args)); !errors.Is(err, ErrReplayedCall) {
		t.Errorf("replay: got %v, want ErrReplayedCall", err)
	}

	if _, err := f.e.Asset(2); !errors.Is(err, ErrNotFound) {
		t.Error("replayed call minted a second asset")
	}
}

func TestExecuteRejectedCallCanBeRetried(t *testing.T) {
	f := newFixture(t)

	c := call(1, u1, FnRegisterVerifier, nil)

	if _, err := f.e.Execute(c); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	// A rejected call leaves no replay marker.
	rejected := call(2, u1, FnRegisterVerifier, nil)
	if _, err := f.e.Execute(rejected); !errors.Is(err, ErrAlreadyRegistered) {
		t.Fatalf("second enrollment: got %v, want ErrAlreadyRegistered", err)
	}

	rejected.Sender = u2
	if _, err := f.e.Execute(rejected); err != nil {
		t.Errorf("retry of rejected hash: %v", err)
	}
}

func TestExecuteRejectsBadInput(t *testing.T) {
	f := newFixture(t)

	if _, err := f.e.Execute(call(1, u1, "self_destruct", nil)); !errors.Is(err, ErrUnknownFunction) {
		t.Errorf("unknown function: got %v, want ErrUnknownFunction", err)
	}

	if _, err := f.e.Execute(call(2, u1, FnMint, []byte{1, 2, 3})); !errors.Is(err, ErrMalformedArgs) {
		t.Errorf("short args: got %v, want ErrMalformedArgs", err)
	}

	trailing := append((&AssetArgs{AssetID: 1}).Encode(), 0)
	if _, err := f.e.Execute(call(3, u1, FnEndAuction, trailing)); !errors.Is(err, ErrMalformedArgs) {
		t.Errorf("trailing bytes: got %v, want ErrMalformedArgs", err)
	}

	if _, err := f.e.Execute(call(4, u1, FnWithdrawBid, []byte{0})); !errors.Is(err, ErrMalformedArgs) {
		t.Errorf("args on no-arg function: got %v, want ErrMalformedArgs", err)
	}
}

func TestExecuteFullSale(t *testing.T) {
	f := newFixture(t)
	f.makeWorkers()

	var seq byte
	exec := func(sender ids.Address, fn string, args []byte) Receipt {
		t.Helper()

		seq++

		r, err := f.e.Execute(call(seq, sender, fn, args))
		if err != nil {
			t.Fatalf("%s: %v", fn, err)
		}

		return r
	}

	asset := AssetID(exec(u1, FnMint, (&MintArgs{Owner: u1, ContentID: "ipfs://m"}).Encode()).Value)

	task := TaskID(exec(u1, FnModelVerificationReq, (&VerificationReqArgs{
		AssetID: asset, Requester: u1, Capacity: 1, Quorum: 1,
	}).Encode()).Value)

	exec(f.evaluator, FnRegisterForTask, (&TaskArgs{TaskID: task}).Encode())
	exec(f.evaluator, FnSubmitResult, (&SubmitResultArgs{TaskID: task, Position: 0, Score: 70}).Encode())
	exec(u1, FnSetApprovalForAll, (&SetApprovalArgs{Operator: operator, Approved: true}).Encode())
	exec(u1, FnStartAuction, (&StartAuctionArgs{Seller: u1, AssetID: asset, EndTime: f.clock.Now() + 600}).Encode())

	f.fund(bidder1, 40)
	exec(bidder1, FnBidOnAuction, (&BidArgs{AssetID: asset, Amount: 40}).Encode())

	f.clock.Advance(600)
	exec(oracle, FnRegisterOracle, nil)
	exec(oracle, FnEndAuction, (&AssetArgs{AssetID: asset}).Encode())

	for _, r := range []ids.Address{rep1, rep2} {
		exec(r, FnRegisterREP, nil)
		exec(r, FnSendAsset, (&SendAssetArgs{AssetID: asset, ContentID: "ipfs://m", Hash1: "a", Hash2: "b"}).Encode())
	}

	settled := exec(u1, FnTransferAndRecieveFunds, (&AssetArgs{AssetID: asset}).Encode())
	if settled.Value != 40 || len(settled.Payouts) != 1 {
		t.Errorf("settlement receipt = %+v", settled)
	}

	if got := exec(u1, FnWithdrawFunds, nil).Value; got != 40 {
		t.Errorf("withdrawn = %d, want 40", got)
	}
}

func TestVerifyWorkerCall(t *testing.T) {
	f := newFixture(t)

	if _, err := f.e.Execute(call(1, verifier, FnRegisterVerifier, nil)); err != nil {
		t.Fatalf("register verifier: %v", err)
	}

	att := (&RegisterWorkerArgs{Attestation: []byte("quote")}).Encode()
	if _, err := f.e.Execute(call(2, u1, FnRegisterWorker, att)); err != nil {
		t.Fatalf("register worker: %v", err)
	}

	vote := (&VerifyWorkerArgs{Worker: u1, Vote: VoteApprove}).Encode()
	if _, err := f.e.Execute(call(3, verifier, FnVerifyWorker, vote)); err != nil {
		t.Fatalf("verify worker: %v", err)
	}

	if ok, _ := f.e.IsWorker(u1); !ok {
		t.Error("worker not verified")
	}

	if len(Functions()) != 17 {
		t.Errorf("functions = %d, want 17", len(Functions()))
	}
}
