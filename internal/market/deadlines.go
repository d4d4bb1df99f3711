package market

import (
	"fmt"

	"github.com/google/btree"
)

const deadlineTreeDegree = 16

// Deadline is an Active auction ordered by its end time.
type Deadline struct {
	EndTime uint64
	Auction AuctionID
	AssetID AssetID
}

var _ btree.LessFunc[Deadline] = Deadline.Less

// Less orders by end time, then auction id.
func (d Deadline) Less(than Deadline) bool {
	if d.EndTime != than.EndTime {
		return d.EndTime < than.EndTime
	}

	return d.Auction < than.Auction
}

// deadlineIndex holds every Active auction. It is mutated only by commit
// hooks, under the engine write lock.
type deadlineIndex struct {
	tree *btree.BTreeG[Deadline]
}

func newDeadlineIndex() *deadlineIndex {
	return &deadlineIndex{tree: btree.NewG(deadlineTreeDegree, Deadline.Less)}
}

func (d *deadlineIndex) add(a *Auction) {
	d.tree.ReplaceOrInsert(Deadline{EndTime: a.EndTime, Auction: a.ID, AssetID: a.AssetID})
}

func (d *deadlineIndex) remove(a *Auction) {
	d.tree.Delete(Deadline{EndTime: a.EndTime, Auction: a.ID, AssetID: a.AssetID})
}

// due returns the entries whose end time is at or before now, oldest first.
func (d *deadlineIndex) due(now uint64) []Deadline {
	var out []Deadline

	d.tree.Ascend(func(item Deadline) bool {
		if item.EndTime > now {
			return false
		}

		out = append(out, item)

		return true
	})

	return out
}

// DueAuctions returns the Active auctions whose end time has passed at now.
func (e *Engine) DueAuctions(now uint64) []Deadline {
	e.mu.RLock()
	defer e.mu.RUnlock()

	return e.deadlines.due(now)
}

// ActiveAuctions returns the number of Active auctions.
func (e *Engine) ActiveAuctions() int {
	e.mu.RLock()
	defer e.mu.RUnlock()

	return e.deadlines.tree.Len()
}

// loadDeadlines rebuilds the index from stored auctions.
func (e *Engine) loadDeadlines() error {
	return e.db.IteratePrefix(auctionPrefix, func(_, value []byte) error {
		a, err := decodeAuction(value)
		if err != nil {
			return fmt.Errorf("decode stored auction:\n%w", err)
		}

		if a.State == AuctionActive {
			e.deadlines.add(a)
		}

		return nil
	})
}
