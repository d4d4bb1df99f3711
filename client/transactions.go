package client

import (
	"LineageMarket/internal/ids"
	"LineageMarket/internal/market"
)

// RegisterWorker applies for worker status with an attestation quote.
func (w *Wallet) RegisterWorker(c *Client, attestation []byte) error {
	args := (&market.RegisterWorkerArgs{Attestation: attestation}).Encode()

	_, err := w.Call(c, market.FnRegisterWorker, args)
	return err
}

// RegisterVerifier enrolls the wallet as a verifier.
func (w *Wallet) RegisterVerifier(c *Client) error {
	_, err := w.Call(c, market.FnRegisterVerifier, nil)
	return err
}

// VerifyWorker votes on a pending worker.
func (w *Wallet) VerifyWorker(c *Client, worker ids.Address, vote int8) error {
	args := (&market.VerifyWorkerArgs{Worker: worker, Vote: vote}).Encode()

	_, err := w.Call(c, market.FnVerifyWorker, args)
	return err
}

// Mint creates an asset owned by owner and returns its id.
func (w *Wallet) Mint(c *Client, owner ids.Address, contentID string, parent market.AssetID) (market.AssetID, error) {
	args := (&market.MintArgs{Owner: owner, ContentID: contentID, Parent: parent}).Encode()

	r, err := w.Call(c, market.FnMint, args)
	if err != nil {
		return 0, err
	}

	return market.AssetID(r.Value), nil
}

// SetApprovalForAll grants or revokes operator over all the wallet's assets.
func (w *Wallet) SetApprovalForAll(c *Client, operator ids.Address, approved bool) error {
	args := (&market.SetApprovalArgs{Operator: operator, Approved: approved}).Encode()

	_, err := w.Call(c, market.FnSetApprovalForAll, args)
	return err
}

// RequestVerification opens a verification task for an asset the wallet owns.
func (w *Wallet) RequestVerification(c *Client, asset market.AssetID, capacity, quorum uint32) (market.TaskID, error) {
	args := (&market.VerificationReqArgs{
		AssetID:   asset,
		Requester: w.Address(),
		Capacity:  capacity,
		Quorum:    quorum,
	}).Encode()

	r, err := w.Call(c, market.FnModelVerificationReq, args)
	if err != nil {
		return 0, err
	}

	return market.TaskID(r.Value), nil
}

// RegisterForTask joins a verification task.
func (w *Wallet) RegisterForTask(c *Client, task market.TaskID) error {
	args := (&market.TaskArgs{TaskID: task}).Encode()

	_, err := w.Call(c, market.FnRegisterForTask, args)
	return err
}

// SubmitResult submits a score from head slot position.
func (w *Wallet) SubmitResult(c *Client, task market.TaskID, position, score uint32) error {
	args := (&market.SubmitResultArgs{TaskID: task, Position: position, Score: score}).Encode()

	_, err := w.Call(c, market.FnSubmitResult, args)
	return err
}

// RegisterOracle enrolls the wallet as a time oracle.
func (w *Wallet) RegisterOracle(c *Client) error {
	_, err := w.Call(c, market.FnRegisterOracle, nil)
	return err
}

// StartAuction auctions an asset the wallet owns until endTime.
func (w *Wallet) StartAuction(c *Client, asset market.AssetID, endTime uint64) (market.AuctionID, error) {
	args := (&market.StartAuctionArgs{Seller: w.Address(), AssetID: asset, EndTime: endTime}).Encode()

	r, err := w.Call(c, market.FnStartAuction, args)
	if err != nil {
		return 0, err
	}

	return market.AuctionID(r.Value), nil
}

// Bid places a bid paid from the wallet balance.
func (w *Wallet) Bid(c *Client, asset market.AssetID, amount uint64) error {
	args := (&market.BidArgs{AssetID: asset, Amount: amount}).Encode()

	_, err := w.Call(c, market.FnBidOnAuction, args)
	return err
}

// WithdrawBid releases every unlocked bid escrow and returns the amount.
func (w *Wallet) WithdrawBid(c *Client) (uint64, error) {
	r, err := w.Call(c, market.FnWithdrawBid, nil)
	if err != nil {
		return 0, err
	}

	return r.Value, nil
}

// EndAuction closes the auction of asset.
func (w *Wallet) EndAuction(c *Client, asset market.AssetID) error {
	args := (&market.AssetArgs{AssetID: asset}).Encode()

	_, err := w.Call(c, market.FnEndAuction, args)
	return err
}

// RegisterREP enrolls the wallet as a delivery peer.
func (w *Wallet) RegisterREP(c *Client) error {
	_, err := w.Call(c, market.FnRegisterREP, nil)
	return err
}

// SendAsset confirms delivery of an asset's content.
func (w *Wallet) SendAsset(c *Client, asset market.AssetID, contentID, hash1, hash2 string) error {
	args := (&market.SendAssetArgs{AssetID: asset, ContentID: contentID, Hash1: hash1, Hash2: hash2}).Encode()

	_, err := w.Call(c, market.FnSendAsset, args)
	return err
}

// Settle settles an ended auction the wallet sold and returns the payouts.
func (w *Wallet) Settle(c *Client, asset market.AssetID) ([]market.Payout, error) {
	args := (&market.AssetArgs{AssetID: asset}).Encode()

	r, err := w.Call(c, market.FnTransferAndRecieveFunds, args)
	if err != nil {
		return nil, err
	}

	return r.Payouts, nil
}

// WithdrawFunds moves the wallet's settlement proceeds to its balance.
func (w *Wallet) WithdrawFunds(c *Client) (uint64, error) {
	r, err := w.Call(c, market.FnWithdrawFunds, nil)
	if err != nil {
		return 0, err
	}

	return r.Value, nil
}
