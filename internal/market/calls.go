package market

import (
	"fmt"

	"LineageMarket/internal/borsh"
	"LineageMarket/internal/ids"
	"LineageMarket/internal/logger"
)

// Function names accepted by Execute.
const (
	FnRegisterWorker          = "register_worker"
	FnRegisterVerifier        = "register_verifier"
	FnVerifyWorker            = "verify_worker"
	FnMint                    = "mint"
	FnSetApprovalForAll       = "set_approval_for_all"
	FnModelVerificationReq    = "model_verification_req"
	FnRegisterForTask         = "register_for_task"
	FnSubmitResult            = "submit_result"
	FnRegisterOracle          = "register_oracle"
	FnStartAuction            = "start_auction"
	FnBidOnAuction            = "bid_on_auction"
	FnWithdrawBid             = "withdraw_bid"
	FnEndAuction              = "end_auction"
	FnRegisterREP             = "register_rep"
	FnSendAsset               = "send_asset"
	FnTransferAndRecieveFunds = "transfer_and_recieve_funds"
	FnWithdrawFunds           = "withdraw_funds"
)

// Call is an authenticated operation request. Hash uniquely identifies the
// call; Sender is the verified signer and becomes the operation's caller.
type Call struct {
	Hash     [32]byte
	Sender   ids.Address
	Function string
	Args     []byte
}

// Receipt is the result of an executed call.
type Receipt struct {
	Function string   `json:"function"`
	Value    uint64   `json:"value"`             // Value is the new id or the amount moved, if any
	Payouts  []Payout `json:"payouts,omitempty"` // Payouts lists settlement credits
}

type handler func(tx *txn, caller ids.Address, args []byte) (Receipt, error)

var handlers = map[string]handler{
	FnRegisterWorker: func(tx *txn, caller ids.Address, args []byte) (Receipt, error) {
		var a RegisterWorkerArgs
		if err := a.decode(args); err != nil {
			return Receipt{}, err
		}

		return Receipt{}, tx.registerWorker(caller, a.Attestation)
	},
	FnRegisterVerifier: noArgs(func(tx *txn, caller ids.Address) (uint64, error) {
		return 0, tx.registerVerifier(caller)
	}),
	FnVerifyWorker: func(tx *txn, caller ids.Address, args []byte) (Receipt, error) {
		var a VerifyWorkerArgs
		if err := a.decode(args); err != nil {
			return Receipt{}, err
		}

		return Receipt{}, tx.verifyWorker(caller, a.Worker, a.Vote)
	},
	FnMint: func(tx *txn, _ ids.Address, args []byte) (Receipt, error) {
		var a MintArgs
		if err := a.decode(args); err != nil {
			return Receipt{}, err
		}

		id, err := tx.mint(a.Owner, a.ContentID, a.Parent)
		return Receipt{Value: uint64(id)}, err
	},
	FnSetApprovalForAll: func(tx *txn, caller ids.Address, args []byte) (Receipt, error) {
		var a SetApprovalArgs
		if err := a.decode(args); err != nil {
			return Receipt{}, err
		}

		return Receipt{}, tx.setApprovalForAll(caller, a.Operator, a.Approved)
	},
	FnModelVerificationReq: func(tx *txn, caller ids.Address, args []byte) (Receipt, error) {
		var a VerificationReqArgs
		if err := a.decode(args); err != nil {
			return Receipt{}, err
		}

		id, err := tx.openTask(caller, a.AssetID, a.Requester, a.Capacity, a.Quorum)
		return Receipt{Value: uint64(id)}, err
	},
	FnRegisterForTask: func(tx *txn, caller ids.Address, args []byte) (Receipt, error) {
		var a TaskArgs
		if err := a.decode(args); err != nil {
			return Receipt{}, err
		}

		return Receipt{}, tx.registerForTask(caller, a.TaskID)
	},
	FnSubmitResult: func(tx *txn, caller ids.Address, args []byte) (Receipt, error) {
		var a SubmitResultArgs
		if err := a.decode(args); err != nil {
			return Receipt{}, err
		}

		return Receipt{}, tx.submitResult(caller, a.TaskID, a.Position, a.Score)
	},
	FnRegisterOracle: noArgs(func(tx *txn, caller ids.Address) (uint64, error) {
		return 0, tx.registerOracle(caller)
	}),
	FnStartAuction: func(tx *txn, caller ids.Address, args []byte) (Receipt, error) {
		var a StartAuctionArgs
		if err := a.decode(args); err != nil {
			return Receipt{}, err
		}

		id, err := tx.startAuction(caller, a.Seller, a.AssetID, a.EndTime)
		return Receipt{Value: uint64(id)}, err
	},
	FnBidOnAuction: func(tx *txn, caller ids.Address, args []byte) (Receipt, error) {
		var a BidArgs
		if err := a.decode(args); err != nil {
			return Receipt{}, err
		}

		return Receipt{Value: a.Amount}, tx.bid(caller, a.AssetID, a.Amount)
	},
	FnWithdrawBid: noArgs(func(tx *txn, caller ids.Address) (uint64, error) {
		return tx.withdrawBid(caller)
	}),
	FnEndAuction: func(tx *txn, caller ids.Address, args []byte) (Receipt, error) {
		var a AssetArgs
		if err := a.decode(args); err != nil {
			return Receipt{}, err
		}

		return Receipt{}, tx.endAuction(caller, a.AssetID)
	},
	FnRegisterREP: noArgs(func(tx *txn, caller ids.Address) (uint64, error) {
		return 0, tx.registerREP(caller)
	}),
	FnSendAsset: func(tx *txn, caller ids.Address, args []byte) (Receipt, error) {
		var a SendAssetArgs
		if err := a.decode(args); err != nil {
			return Receipt{}, err
		}

		return Receipt{}, tx.sendAsset(caller, a.AssetID, a.ContentID, a.Hash1, a.Hash2)
	},
	FnTransferAndRecieveFunds: func(tx *txn, caller ids.Address, args []byte) (Receipt, error) {
		var a AssetArgs
		if err := a.decode(args); err != nil {
			return Receipt{}, err
		}

		payouts, err := tx.settle(caller, a.AssetID)
		if err != nil {
			return Receipt{}, err
		}

		var total uint64
		for _, p := range payouts {
			total += p.Amount
		}

		return Receipt{Value: total, Payouts: payouts}, nil
	},
	FnWithdrawFunds: noArgs(func(tx *txn, caller ids.Address) (uint64, error) {
		return tx.withdrawFunds(caller)
	}),
}

// noArgs adapts an operation that takes no arguments.
func noArgs(fn func(tx *txn, caller ids.Address) (uint64, error)) handler {
	return func(tx *txn, caller ids.Address, args []byte) (Receipt, error) {
		if len(args) != 0 {
			return Receipt{}, fmt.Errorf("unexpected %d argument bytes: %w", len(args), ErrMalformedArgs)
		}

		v, err := fn(tx, caller)
		return Receipt{Value: v}, err
	}
}

// Execute applies call atomically. A call hash is accepted once; replays
// fail with ErrReplayedCall.
func (e *Engine) Execute(call *Call) (Receipt, error) {
	h, ok := handlers[call.Function]
	if !ok {
		return Receipt{}, fmt.Errorf("%q: %w", call.Function, ErrUnknownFunction)
	}

	var receipt Receipt

	err := e.update(call.Function, func(tx *txn) error {
		key := makeKey(callPrefix, call.Hash[:])

		seen, err := tx.flag(key)
		if err != nil {
			return err
		}

		if seen {
			return ErrReplayedCall
		}

		if receipt, err = h(tx, call.Sender, call.Args); err != nil {
			return err
		}

		if err := tx.setFlag(key); err != nil {
			return fmt.Errorf("record call:\n%w", err)
		}

		return nil
	})
	if err != nil {
		return Receipt{}, err
	}

	receipt.Function = call.Function

	logger.Debug("call executed", "fn", call.Function, "sender", call.Sender.Short(), "value", receipt.Value)

	return receipt, nil
}

// Functions returns every function name accepted by Execute.
func Functions() []string {
	names := make([]string, 0, len(handlers))
	for name := range handlers {
		names = append(names, name)
	}

	return names
}

// RegisterWorkerArgs are the arguments of register_worker.
type RegisterWorkerArgs struct {
	Attestation []byte
}

func (a *RegisterWorkerArgs) Encode() []byte {
	w := borsh.NewWriter(4 + len(a.Attestation))
	w.Vec(a.Attestation)

	return w.Finish()
}

func (a *RegisterWorkerArgs) decode(data []byte) error {
	r := borsh.NewReader(data)
	a.Attestation = r.Vec()

	return argsDone(r)
}

// VerifyWorkerArgs are the arguments of verify_worker.
type VerifyWorkerArgs struct {
	Worker ids.Address
	Vote   int8
}

func (a *VerifyWorkerArgs) Encode() []byte {
	w := borsh.NewWriter(33)
	w.Fixed32(a.Worker)
	w.I8(a.Vote)

	return w.Finish()
}

func (a *VerifyWorkerArgs) decode(data []byte) error {
	r := borsh.NewReader(data)
	a.Worker = r.Fixed32()
	a.Vote = r.I8()

	return argsDone(r)
}

// MintArgs are the arguments of mint.
type MintArgs struct {
	Owner     ids.Address
	ContentID string
	Parent    AssetID
}

func (a *MintArgs) Encode() []byte {
	w := borsh.NewWriter(44 + len(a.ContentID))
	w.Fixed32(a.Owner)
	w.String(a.ContentID)
	w.U64(uint64(a.Parent))

	return w.Finish()
}

func (a *MintArgs) decode(data []byte) error {
	r := borsh.NewReader(data)
	a.Owner = r.Fixed32()
	a.ContentID = r.String()
	a.Parent = AssetID(r.U64())

	return argsDone(r)
}

// SetApprovalArgs are the arguments of set_approval_for_all.
type SetApprovalArgs struct {
	Operator ids.Address
	Approved bool
}

func (a *SetApprovalArgs) Encode() []byte {
	w := borsh.NewWriter(33)
	w.Fixed32(a.Operator)
	w.Bool(a.Approved)

	return w.Finish()
}

func (a *SetApprovalArgs) decode(data []byte) error {
	r := borsh.NewReader(data)
	a.Operator = r.Fixed32()
	a.Approved = r.Bool()

	return argsDone(r)
}

// VerificationReqArgs are the arguments of model_verification_req.
type VerificationReqArgs struct {
	AssetID   AssetID
	Requester ids.Address
	Capacity  uint32
	Quorum    uint32
}

func (a *VerificationReqArgs) Encode() []byte {
	w := borsh.NewWriter(48)
	w.U64(uint64(a.AssetID))
	w.Fixed32(a.Requester)
	w.U32(a.Capacity)
	w.U32(a.Quorum)

	return w.Finish()
}

func (a *VerificationReqArgs) decode(data []byte) error {
	r := borsh.NewReader(data)
	a.AssetID = AssetID(r.U64())
	a.Requester = r.Fixed32()
	a.Capacity = r.U32()
	a.Quorum = r.U32()

	return argsDone(r)
}

// TaskArgs are the arguments of register_for_task.
type TaskArgs struct {
	TaskID TaskID
}

func (a *TaskArgs) Encode() []byte {
	w := borsh.NewWriter(8)
	w.U64(uint64(a.TaskID))

	return w.Finish()
}

func (a *TaskArgs) decode(data []byte) error {
	r := borsh.NewReader(data)
	a.TaskID = TaskID(r.U64())

	return argsDone(r)
}

// SubmitResultArgs are the arguments of submit_result.
type SubmitResultArgs struct {
	TaskID   TaskID
	Position uint32
	Score    uint32
}

func (a *SubmitResultArgs) Encode() []byte {
	w := borsh.NewWriter(16)
	w.U64(uint64(a.TaskID))
	w.U32(a.Position)
	w.U32(a.Score)

	return w.Finish()
}

func (a *SubmitResultArgs) decode(data []byte) error {
	r := borsh.NewReader(data)
	a.TaskID = TaskID(r.U64())
	a.Position = r.U32()
	a.Score = r.U32()

	return argsDone(r)
}

// StartAuctionArgs are the arguments of start_auction.
type StartAuctionArgs struct {
	Seller  ids.Address
	AssetID AssetID
	EndTime uint64
}

func (a *StartAuctionArgs) Encode() []byte {
	w := borsh.NewWriter(48)
	w.Fixed32(a.Seller)
	w.U64(uint64(a.AssetID))
	w.U64(a.EndTime)

	return w.Finish()
}

func (a *StartAuctionArgs) decode(data []byte) error {
	r := borsh.NewReader(data)
	a.Seller = r.Fixed32()
	a.AssetID = AssetID(r.U64())
	a.EndTime = r.U64()

	return argsDone(r)
}

// BidArgs are the arguments of bid_on_auction.
type BidArgs struct {
	AssetID AssetID
	Amount  uint64
}

func (a *BidArgs) Encode() []byte {
	w := borsh.NewWriter(16)
	w.U64(uint64(a.AssetID))
	w.U64(a.Amount)

	return w.Finish()
}

func (a *BidArgs) decode(data []byte) error {
	r := borsh.NewReader(data)
	a.AssetID = AssetID(r.U64())
	a.Amount = r.U64()

	return argsDone(r)
}

// AssetArgs are the arguments of end_auction and transfer_and_recieve_funds.
type AssetArgs struct {
	AssetID AssetID
}

func (a *AssetArgs) Encode() []byte {
	w := borsh.NewWriter(8)
	w.U64(uint64(a.AssetID))

	return w.Finish()
}

func (a *AssetArgs) decode(data []byte) error {
	r := borsh.NewReader(data)
	a.AssetID = AssetID(r.U64())

	return argsDone(r)
}

// SendAssetArgs are the arguments of send_asset.
type SendAssetArgs struct {
	AssetID   AssetID
	ContentID string
	Hash1     string
	Hash2     string
}

func (a *SendAssetArgs) Encode() []byte {
	w := borsh.NewWriter(20 + len(a.ContentID) + len(a.Hash1) + len(a.Hash2))
	w.U64(uint64(a.AssetID))
	w.String(a.ContentID)
	w.String(a.Hash1)
	w.String(a.Hash2)

	return w.Finish()
}

func (a *SendAssetArgs) decode(data []byte) error {
	r := borsh.NewReader(data)
	a.AssetID = AssetID(r.U64())
	a.ContentID = r.String()
	a.Hash1 = r.String()
	a.Hash2 = r.String()

	return argsDone(r)
}

// argsDone classifies decoding failures as ErrMalformedArgs.
func argsDone(r *borsh.Reader) error {
	if err := r.Done(); err != nil {
		return fmt.Errorf("%v: %w", err, ErrMalformedArgs)
	}

	return nil
}
