package market

import (
	"errors"
	"testing"

	"LineageMarket/internal/ids"
)

func TestWorkerVerifiedByMajority(t *testing.T) {
	f := newFixture(t)

	verifiers := make([]ids.Address, 5)
	for i := range verifiers {
		verifiers[i] = addr(byte(i))
		if err := f.e.RegisterVerifier(verifiers[i]); err != nil {
			t.Fatalf("RegisterVerifier: %v", err)
		}
	}

	w := addr(0x50)
	if err := f.e.RegisterWorker(w, []byte("tee-quote")); err != nil {
		t.Fatalf("RegisterWorker: %v", err)
	}

	votes := []int8{VoteReject, VoteApprove, VoteApprove}
	for i, v := range votes {
		if err := f.e.VerifyWorker(verifiers[i], w, v); err != nil {
			t.Fatalf("vote %d: %v", i, err)
		}

		if ok, _ := f.e.IsWorker(w); ok {
			t.Fatalf("worker verified after %d votes", i+1)
		}
	}

	// Third positive vote of five verifiers crosses the majority.
	if err := f.e.VerifyWorker(verifiers[3], w, VoteApprove); err != nil {
		t.Fatalf("vote 3: %v", err)
	}

	ok, err := f.e.IsWorker(w)
	if err != nil {
		t.Fatalf("IsWorker: %v", err)
	}

	if !ok {
		t.Fatal("worker should be verified at 3 positive votes of 5")
	}

	rec, err := f.e.Worker(w)
	if err != nil {
		t.Fatalf("Worker: %v", err)
	}

	if rec.Positive != 3 || rec.Negative != 1 || rec.VerifiedAt != testStart {
		t.Errorf("worker record = %+v", rec)
	}

	if string(rec.Attestation) != "tee-quote" {
		t.Errorf("attestation = %q", rec.Attestation)
	}

	if err := f.e.VerifyWorker(verifiers[4], w, VoteApprove); !errors.Is(err, ErrAlreadyVerified) {
		t.Errorf("vote after latch: got %v, want ErrAlreadyVerified", err)
	}
}

func TestVerifiedWorkerStaysVerified(t *testing.T) {
	f := newFixture(t)

	v := addr(1)
	w := addr(2)

	if err := f.e.RegisterVerifier(v); err != nil {
		t.Fatalf("RegisterVerifier: %v", err)
	}

	if err := f.e.RegisterWorker(w, nil); err != nil {
		t.Fatalf("RegisterWorker: %v", err)
	}

	if err := f.e.VerifyWorker(v, w, VoteApprove); err != nil {
		t.Fatalf("VerifyWorker: %v", err)
	}

	// Enrolling more verifiers shrinks the worker's share below a majority.
	for i := byte(10); i < 15; i++ {
		if err := f.e.RegisterVerifier(addr(i)); err != nil {
			t.Fatalf("RegisterVerifier: %v", err)
		}
	}

	if err := f.e.VerifyWorker(addr(10), w, VoteReject); !errors.Is(err, ErrAlreadyVerified) {
		t.Errorf("negative vote: got %v, want ErrAlreadyVerified", err)
	}

	if ok, _ := f.e.IsWorker(w); !ok {
		t.Error("verified status reverted")
	}

	if n, _ := f.e.VerifierCount(); n != 6 {
		t.Errorf("verifier count = %d, want 6", n)
	}
}

func TestVerifyWorkerRejections(t *testing.T) {
	f := newFixture(t)

	v := addr(1)
	w := addr(2)

	if err := f.e.RegisterVerifier(v); err != nil {
		t.Fatalf("RegisterVerifier: %v", err)
	}

	if err := f.e.RegisterVerifier(addr(3)); err != nil {
		t.Fatalf("RegisterVerifier: %v", err)
	}

	if err := f.e.RegisterWorker(w, nil); err != nil {
		t.Fatalf("RegisterWorker: %v", err)
	}

	if err := f.e.VerifyWorker(addr(9), w, VoteApprove); !errors.Is(err, ErrNotAVerifier) {
		t.Errorf("non-verifier: got %v, want ErrNotAVerifier", err)
	}

	if err := f.e.VerifyWorker(v, addr(8), VoteApprove); !errors.Is(err, ErrNotFound) {
		t.Errorf("unknown worker: got %v, want ErrNotFound", err)
	}

	if err := f.e.VerifyWorker(v, w, 0); !errors.Is(err, ErrInvalidVote) {
		t.Errorf("zero vote: got %v, want ErrInvalidVote", err)
	}

	if err := f.e.VerifyWorker(v, w, VoteApprove); err != nil {
		t.Fatalf("VerifyWorker: %v", err)
	}

	// One of two verifiers is not a strict majority.
	if ok, _ := f.e.IsWorker(w); ok {
		t.Fatal("worker verified by 1 of 2 verifiers")
	}

	if err := f.e.VerifyWorker(v, w, VoteReject); !errors.Is(err, ErrAlreadyVoted) {
		t.Errorf("second vote: got %v, want ErrAlreadyVoted", err)
	}

	rec, _ := f.e.Worker(w)
	if rec.Positive != 1 || rec.Negative != 0 {
		t.Errorf("tally changed by rejected vote: %+v", rec)
	}
}

func TestRegisterTwice(t *testing.T) {
	f := newFixture(t)

	if err := f.e.RegisterWorker(u1, nil); err != nil {
		t.Fatalf("RegisterWorker: %v", err)
	}

	if err := f.e.RegisterWorker(u1, []byte("again")); !errors.Is(err, ErrAlreadyRegistered) {
		t.Errorf("worker: got %v, want ErrAlreadyRegistered", err)
	}

	if err := f.e.RegisterVerifier(u1); err != nil {
		t.Fatalf("RegisterVerifier: %v", err)
	}

	if err := f.e.RegisterVerifier(u1); !errors.Is(err, ErrAlreadyRegistered) {
		t.Errorf("verifier: got %v, want ErrAlreadyRegistered", err)
	}

	if n, _ := f.e.VerifierCount(); n != 1 {
		t.Errorf("verifier count = %d, want 1", n)
	}

	if _, err := f.e.Worker(u2); !errors.Is(err, ErrNotFound) {
		t.Errorf("unknown worker: got %v, want ErrNotFound", err)
	}

	if ok, err := f.e.IsWorker(u2); ok || err != nil {
		t.Errorf("IsWorker(unknown) = %v, %v", ok, err)
	}
}
