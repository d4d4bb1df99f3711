package market

import "LineageMarket/internal/ids"

// AssetID identifies an asset. Ids are assigned sequentially from 1.
type AssetID uint64

// RootAsset is the parent sentinel for assets without a parent.
const RootAsset AssetID = 0

// TaskID identifies a verification task. Ids are assigned sequentially from 1.
type TaskID uint64

// AuctionID identifies an auction. Ids are assigned sequentially from 1.
type AuctionID uint64

// WorkerStatus is the verification status of a worker.
type WorkerStatus uint8

const (
	WorkerPending WorkerStatus = iota
	WorkerVerified
)

func (s WorkerStatus) String() string {
	if s == WorkerVerified {
		return "Verified"
	}

	return "Pending"
}

// AuctionState is the lifecycle state of an auction.
type AuctionState uint8

const (
	AuctionNotStarted AuctionState = iota
	AuctionActive
	AuctionEnded
)

func (s AuctionState) String() string {
	switch s {
	case AuctionActive:
		return "Active"
	case AuctionEnded:
		return "Ended"
	default:
		return "NotStarted"
	}
}

// Worker is a participant applying for, or holding, worker status.
// Votes are stored separately, one key per verifier.
type Worker struct {
	Address     ids.Address  // Address is the worker
	Attestation []byte       // Attestation is the opaque value supplied at registration
	Positive    uint32       // Positive counts +1 votes
	Negative    uint32       // Negative counts -1 votes
	Status      WorkerStatus // Status latches to Verified and never reverts
	VerifiedAt  uint64       // VerifiedAt is the unix time of the latching vote
}

// Asset is an immutable lineage record. Ownership lives in the ledger and the
// verified flag in its own key, so a stored Asset never changes.
type Asset struct {
	ID        AssetID     // ID is the sequential asset id
	Creator   ids.Address // Creator is the owner at mint, the lineage payee
	ContentID string      // ContentID is an opaque content store identifier
	Parent    AssetID     // Parent is RootAsset or a lower asset id
	CreatedAt uint64      // CreatedAt is the unix mint time
}

// HeadScore is one head's submitted result.
type HeadScore struct {
	Head  ids.Address // Head is the submitting registrant
	Score uint32      // Score is the evaluation result, 0 to MaxScore
}

// Task is a quorum-gated evaluation of an asset.
type Task struct {
	ID          TaskID
	AssetID     AssetID
	Requester   ids.Address
	Capacity    uint32        // Capacity bounds the registrant list
	Quorum      uint32        // Quorum is the number of heads and of scores required
	Registrants []ids.Address // Registrants in arrival order; the first Quorum are heads
	Scores      []HeadScore   // Scores in submission order
	Verified    bool          // Verified latches once len(Scores) == Quorum
	MeanScore   uint32        // MeanScore is set when the task verifies
}

// IsHead reports whether position names a head slot held by addr.
func (t *Task) IsHead(addr ids.Address, position uint32) bool {
	return position < t.Quorum &&
		int(position) < len(t.Registrants) &&
		t.Registrants[position] == addr
}

// hasRegistered reports whether addr is in the registrant list.
func (t *Task) hasRegistered(addr ids.Address) bool {
	for _, r := range t.Registrants {
		if r == addr {
			return true
		}
	}

	return false
}

// hasSubmitted reports whether addr already submitted a score.
func (t *Task) hasSubmitted(addr ids.Address) bool {
	for _, s := range t.Scores {
		if s.Head == addr {
			return true
		}
	}

	return false
}

// Auction is the sale of one asset.
type Auction struct {
	ID            AuctionID
	AssetID       AssetID
	Seller        ids.Address
	StartTime     uint64
	EndTime       uint64 // EndTime is when the time oracle may close the auction
	HighestBid    uint64
	HighestBidder ids.Address
	State         AuctionState
	Settled       bool // Settled latches when proceeds are distributed
}

// Delivery is the confirmation state of one sale round of an asset.
type Delivery struct {
	AssetID   AssetID
	Round     AuctionID // Round is the asset's auction at submission time, 0 if none
	Count     uint32    // Count is the number of distinct REP submissions
	Confirmed bool      // Confirmed latches once Count reaches the quorum
}

// DeliverySubmission is one REP's confirmation of an out-of-band delivery.
type DeliverySubmission struct {
	Submitter   ids.Address
	ContentID   string
	Hash1       string
	Hash2       string
	SubmittedAt uint64
}

// Payout is one credit produced by settlement.
type Payout struct {
	To     ids.Address `json:"to"`
	Amount uint64      `json:"amount"`
}
