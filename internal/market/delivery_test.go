package market

import (
	"errors"
	"testing"
)

func TestDeliveryQuorum(t *testing.T) {
	f := newFixture(t)

	a := f.mint(u1, RootAsset)

	if err := f.e.SendAsset(rep1, a, "ipfs://c", "h1", "h2"); !errors.Is(err, ErrNotREP) {
		t.Errorf("unregistered: got %v, want ErrNotREP", err)
	}

	if err := f.e.RegisterREP(rep1); err != nil {
		t.Fatalf("RegisterREP: %v", err)
	}

	if err := f.e.RegisterREP(rep1); !errors.Is(err, ErrAlreadyRegistered) {
		t.Errorf("REP twice: got %v, want ErrAlreadyRegistered", err)
	}

	if err := f.e.RegisterREP(rep2); err != nil {
		t.Fatalf("RegisterREP: %v", err)
	}

	if err := f.e.SendAsset(rep1, 99, "ipfs://c", "h1", "h2"); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing asset: got %v, want ErrNotFound", err)
	}

	if err := f.e.SendAsset(rep1, a, "ipfs://c", "h1", "h2"); err != nil {
		t.Fatalf("SendAsset: %v", err)
	}

	if ok, _ := f.e.DeliveryConfirmed(a); ok {
		t.Fatal("confirmed after one submission")
	}

	if err := f.e.SendAsset(rep1, a, "ipfs://c", "h1", "h2"); !errors.Is(err, ErrAlreadySubmitted) {
		t.Errorf("same REP twice: got %v, want ErrAlreadySubmitted", err)
	}

	// Hashes are opaque and need not match between submitters.
	if err := f.e.SendAsset(rep2, a, "ipfs://c", "other", "values"); err != nil {
		t.Fatalf("SendAsset: %v", err)
	}

	ok, err := f.e.DeliveryConfirmed(a)
	if err != nil {
		t.Fatalf("DeliveryConfirmed: %v", err)
	}

	if !ok {
		t.Fatal("not confirmed after two submissions")
	}

	subs, err := f.e.Submissions(a)
	if err != nil {
		t.Fatalf("Submissions: %v", err)
	}

	if len(subs) != 2 {
		t.Errorf("submissions = %d, want 2", len(subs))
	}
}

func TestConfirmationStaysConfirmed(t *testing.T) {
	f := newFixture(t)

	a := f.mint(u1, RootAsset)
	f.confirmDelivery(a)

	if err := f.e.RegisterREP(rep3); err != nil {
		t.Fatalf("RegisterREP: %v", err)
	}

	if err := f.e.SendAsset(rep3, a, "ipfs://c", "h1", "h2"); err != nil {
		t.Fatalf("third submission: %v", err)
	}

	d, err := f.e.Delivery(a)
	if err != nil {
		t.Fatalf("Delivery: %v", err)
	}

	if !d.Confirmed || d.Count != 3 {
		t.Errorf("delivery = %+v", d)
	}
}

func TestDeliveryRoundFollowsAuction(t *testing.T) {
	f := newFixture(t)

	a := f.mint(u1, RootAsset)

	// Confirmations before the auction belong to round 0.
	f.confirmDelivery(a)

	id := f.auction(u1, a)

	d, err := f.e.Delivery(a)
	if err != nil {
		t.Fatalf("Delivery: %v", err)
	}

	if d.Round != id || d.Confirmed || d.Count != 0 {
		t.Errorf("delivery after auction start = %+v", d)
	}

	f.confirmDelivery(a)

	if ok, _ := f.e.DeliveryConfirmed(a); !ok {
		t.Error("round not confirmed")
	}
}
