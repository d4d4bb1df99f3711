package oracle

import (
	"context"
	"sync"
	"testing"
	"time"

	"LineageMarket/internal/ids"
	"LineageMarket/internal/market"
)

// mockMarket records oracle activity.
type mockMarket struct {
	mu       sync.Mutex
	now      uint64
	oracles  map[ids.Address]bool
	due      []market.Deadline
	ended    []market.AssetID
	endErr   map[market.AssetID]error
	enrolled int
}

func newMockMarket(now uint64) *mockMarket {
	return &mockMarket{
		now:     now,
		oracles: make(map[ids.Address]bool),
		endErr:  make(map[market.AssetID]error),
	}
}

func (m *mockMarket) RegisterOracle(caller ids.Address) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.oracles[caller] {
		return market.ErrAlreadyRegistered
	}

	m.oracles[caller] = true
	m.enrolled++

	return nil
}

func (m *mockMarket) IsOracle(addr ids.Address) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.oracles[addr], nil
}

func (m *mockMarket) DueAuctions(now uint64) []market.Deadline {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []market.Deadline
	for _, d := range m.due {
		if d.EndTime <= now {
			out = append(out, d)
		}
	}

	return out
}

func (m *mockMarket) EndAuction(caller ids.Address, assetID market.AssetID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.endErr[assetID]; err != nil {
		return err
	}

	m.ended = append(m.ended, assetID)

	kept := m.due[:0]
	for _, d := range m.due {
		if d.AssetID != assetID {
			kept = append(kept, d)
		}
	}
	m.due = kept

	return nil
}

func (m *mockMarket) Now() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.now
}

func (m *mockMarket) endedCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return len(m.ended)
}

var oracleAddr = ids.Address{0x0C}

func TestEnrollOnce(t *testing.T) {
	m := newMockMarket(100)
	s := New(m, oracleAddr, 0)

	for range 2 {
		if err := s.Enroll(); err != nil {
			t.Fatalf("Enroll: %v", err)
		}
	}

	if m.enrolled != 1 {
		t.Errorf("enrolled = %d, want 1", m.enrolled)
	}

	if s.interval != DefaultInterval {
		t.Errorf("interval = %v, want %v", s.interval, DefaultInterval)
	}
}

func TestSweepEndsDueAuctions(t *testing.T) {
	m := newMockMarket(100)
	m.due = []market.Deadline{
		{EndTime: 50, Auction: 1, AssetID: 10},
		{EndTime: 100, Auction: 2, AssetID: 20},
		{EndTime: 150, Auction: 3, AssetID: 30},
	}

	s := New(m, oracleAddr, time.Millisecond)

	if closed := s.Sweep(); closed != 2 {
		t.Errorf("closed = %d, want 2", closed)
	}

	if len(m.ended) != 2 || m.ended[0] != 10 || m.ended[1] != 20 {
		t.Errorf("ended = %v, want [10 20]", m.ended)
	}

	// Nothing else is due until the clock moves.
	if closed := s.Sweep(); closed != 0 {
		t.Errorf("second sweep closed = %d, want 0", closed)
	}
}

func TestSweepSkipsRejected(t *testing.T) {
	m := newMockMarket(100)
	m.due = []market.Deadline{
		{EndTime: 10, Auction: 1, AssetID: 1},
		{EndTime: 20, Auction: 2, AssetID: 2},
		{EndTime: 30, Auction: 3, AssetID: 3},
	}
	m.endErr[1] = market.ErrAlreadyEnded
	m.endErr[2] = market.ErrUnauthorized

	s := New(m, oracleAddr, time.Millisecond)

	if closed := s.Sweep(); closed != 1 {
		t.Errorf("closed = %d, want 1", closed)
	}

	if len(m.ended) != 1 || m.ended[0] != 3 {
		t.Errorf("ended = %v, want [3]", m.ended)
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	m := newMockMarket(100)
	m.due = []market.Deadline{{EndTime: 90, Auction: 1, AssetID: 7}}

	s := New(m, oracleAddr, time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)

	go func() {
		done <- s.Run(ctx)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for m.endedCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}

	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop after cancel")
	}

	if m.endedCount() != 1 {
		t.Errorf("ended = %d, want 1", m.endedCount())
	}

	if ok, _ := m.IsOracle(oracleAddr); !ok {
		t.Error("Run did not enroll the oracle")
	}
}
