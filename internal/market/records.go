package market

import (
	"fmt"

	"LineageMarket/internal/borsh"
	"LineageMarket/internal/ids"
)

// recordVersion prefixes every stored record.
const recordVersion = 1

// readVersion checks the leading version byte.
func readVersion(r *borsh.Reader, what string) error {
	if v := r.U8(); r.Err() == nil && v != recordVersion {
		return fmt.Errorf("%s record version %d, want %d", what, v, recordVersion)
	}

	return r.Err()
}

func encodeWorker(w *Worker) []byte {
	b := borsh.NewWriter(64 + len(w.Attestation))
	b.U8(recordVersion)
	b.Fixed32(w.Address)
	b.Vec(w.Attestation)
	b.U32(w.Positive)
	b.U32(w.Negative)
	b.U8(uint8(w.Status))
	b.U64(w.VerifiedAt)

	return b.Finish()
}

func decodeWorker(data []byte) (*Worker, error) {
	r := borsh.NewReader(data)
	if err := readVersion(r, "worker"); err != nil {
		return nil, err
	}

	w := &Worker{
		Address:     r.Fixed32(),
		Attestation: r.Vec(),
		Positive:    r.U32(),
		Negative:    r.U32(),
		Status:      WorkerStatus(r.U8()),
		VerifiedAt:  r.U64(),
	}

	if err := r.Done(); err != nil {
		return nil, fmt.Errorf("decode worker:\n%w", err)
	}

	return w, nil
}

func encodeAsset(a *Asset) []byte {
	b := borsh.NewWriter(64 + len(a.ContentID))
	b.U8(recordVersion)
	b.U64(uint64(a.ID))
	b.Fixed32(a.Creator)
	b.String(a.ContentID)
	b.U64(uint64(a.Parent))
	b.U64(a.CreatedAt)

	return b.Finish()
}

func decodeAsset(data []byte) (*Asset, error) {
	r := borsh.NewReader(data)
	if err := readVersion(r, "asset"); err != nil {
		return nil, err
	}

	a := &Asset{
		ID:        AssetID(r.U64()),
		Creator:   r.Fixed32(),
		ContentID: r.String(),
		Parent:    AssetID(r.U64()),
		CreatedAt: r.U64(),
	}

	if err := r.Done(); err != nil {
		return nil, fmt.Errorf("decode asset:\n%w", err)
	}

	return a, nil
}

func encodeTask(t *Task) []byte {
	b := borsh.NewWriter(64 + 32*len(t.Registrants) + 36*len(t.Scores))
	b.U8(recordVersion)
	b.U64(uint64(t.ID))
	b.U64(uint64(t.AssetID))
	b.Fixed32(t.Requester)
	b.U32(t.Capacity)
	b.U32(t.Quorum)

	b.U32(uint32(len(t.Registrants)))
	for _, r := range t.Registrants {
		b.Fixed32(r)
	}

	b.U32(uint32(len(t.Scores)))
	for _, s := range t.Scores {
		b.Fixed32(s.Head)
		b.U32(s.Score)
	}

	b.Bool(t.Verified)
	b.U32(t.MeanScore)

	return b.Finish()
}

func decodeTask(data []byte) (*Task, error) {
	r := borsh.NewReader(data)
	if err := readVersion(r, "task"); err != nil {
		return nil, err
	}

	t := &Task{
		ID:        TaskID(r.U64()),
		AssetID:   AssetID(r.U64()),
		Requester: r.Fixed32(),
		Capacity:  r.U32(),
		Quorum:    r.U32(),
	}

	n := r.U32()
	if r.Err() == nil && n > t.Capacity {
		return nil, fmt.Errorf("decode task: %d registrants exceed capacity %d", n, t.Capacity)
	}

	t.Registrants = make([]ids.Address, 0, n)
	for i := uint32(0); i < n && r.Err() == nil; i++ {
		t.Registrants = append(t.Registrants, r.Fixed32())
	}

	m := r.U32()
	if r.Err() == nil && m > t.Quorum {
		return nil, fmt.Errorf("decode task: %d scores exceed quorum %d", m, t.Quorum)
	}

	t.Scores = make([]HeadScore, 0, m)
	for i := uint32(0); i < m && r.Err() == nil; i++ {
		t.Scores = append(t.Scores, HeadScore{Head: r.Fixed32(), Score: r.U32()})
	}

	t.Verified = r.Bool()
	t.MeanScore = r.U32()

	if err := r.Done(); err != nil {
		return nil, fmt.Errorf("decode task:\n%w", err)
	}

	return t, nil
}

func encodeAuction(a *Auction) []byte {
	b := borsh.NewWriter(128)
	b.U8(recordVersion)
	b.U64(uint64(a.ID))
	b.U64(uint64(a.AssetID))
	b.Fixed32(a.Seller)
	b.U64(a.StartTime)
	b.U64(a.EndTime)
	b.U64(a.HighestBid)
	b.Fixed32(a.HighestBidder)
	b.U8(uint8(a.State))
	b.Bool(a.Settled)

	return b.Finish()
}

func decodeAuction(data []byte) (*Auction, error) {
	r := borsh.NewReader(data)
	if err := readVersion(r, "auction"); err != nil {
		return nil, err
	}

	a := &Auction{
		ID:            AuctionID(r.U64()),
		AssetID:       AssetID(r.U64()),
		Seller:        r.Fixed32(),
		StartTime:     r.U64(),
		EndTime:       r.U64(),
		HighestBid:    r.U64(),
		HighestBidder: r.Fixed32(),
		State:         AuctionState(r.U8()),
		Settled:       r.Bool(),
	}

	if err := r.Done(); err != nil {
		return nil, fmt.Errorf("decode auction:\n%w", err)
	}

	return a, nil
}

func encodeDelivery(d *Delivery) []byte {
	b := borsh.NewWriter(32)
	b.U8(recordVersion)
	b.U64(uint64(d.AssetID))
	b.U64(uint64(d.Round))
	b.U32(d.Count)
	b.Bool(d.Confirmed)

	return b.Finish()
}

func decodeDelivery(data []byte) (*Delivery, error) {
	r := borsh.NewReader(data)
	if err := readVersion(r, "delivery"); err != nil {
		return nil, err
	}

	d := &Delivery{
		AssetID:   AssetID(r.U64()),
		Round:     AuctionID(r.U64()),
		Count:     r.U32(),
		Confirmed: r.Bool(),
	}

	if err := r.Done(); err != nil {
		return nil, fmt.Errorf("decode delivery:\n%w", err)
	}

	return d, nil
}

func encodeSubmission(s *DeliverySubmission) []byte {
	b := borsh.NewWriter(64 + len(s.ContentID) + len(s.Hash1) + len(s.Hash2))
	b.U8(recordVersion)
	b.Fixed32(s.Submitter)
	b.String(s.ContentID)
	b.String(s.Hash1)
	b.String(s.Hash2)
	b.U64(s.SubmittedAt)

	return b.Finish()
}

func decodeSubmission(data []byte) (*DeliverySubmission, error) {
	r := borsh.NewReader(data)
	if err := readVersion(r, "submission"); err != nil {
		return nil, err
	}

	s := &DeliverySubmission{
		Submitter:   r.Fixed32(),
		ContentID:   r.String(),
		Hash1:       r.String(),
		Hash2:       r.String(),
		SubmittedAt: r.U64(),
	}

	if err := r.Done(); err != nil {
		return nil, fmt.Errorf("decode submission:\n%w", err)
	}

	return s, nil
}
