package market

import (
	"errors"
	"testing"

	"LineageMarket/internal/ids"
)

func TestTaskHeadsVerifyAsset(t *testing.T) {
	f := newFixture(t)

	a1 := f.mint(u1, RootAsset)
	a2 := f.mint(u2, a1)

	workers := []ids.Address{addr(1), addr(2), addr(3), addr(4), addr(5)}
	f.makeWorkers(workers...)

	task, err := f.e.ModelVerificationReq(u2, a2, u2, 3, 2)
	if err != nil {
		t.Fatalf("ModelVerificationReq: %v", err)
	}

	for i, w := range workers {
		err := f.e.RegisterForTask(w, task)

		switch {
		case i < 3 && err != nil:
			t.Fatalf("register %d: %v", i, err)
		case i >= 3 && !errors.Is(err, ErrTaskFull):
			t.Fatalf("register %d: got %v, want ErrTaskFull", i, err)
		}
	}

	// Registrant 3 is not a head; workers 4 and 5 never registered.
	for i, w := range workers[2:] {
		for pos := uint32(0); pos < 3; pos++ {
			if err := f.e.SubmitResult(w, task, pos, 50); !errors.Is(err, ErrNotHead) {
				t.Errorf("worker %d position %d: got %v, want ErrNotHead", i+2, pos, err)
			}
		}
	}

	if err := f.e.SubmitResult(workers[0], task, 0, 80); err != nil {
		t.Fatalf("head 0: %v", err)
	}

	if ok, _ := f.e.IsVerified(a2); ok {
		t.Fatal("asset verified before quorum")
	}

	if err := f.e.SubmitResult(workers[0], task, 0, 80); !errors.Is(err, ErrAlreadySubmitted) {
		t.Errorf("resubmit: got %v, want ErrAlreadySubmitted", err)
	}

	if err := f.e.SubmitResult(workers[1], task, 1, 91); err != nil {
		t.Fatalf("head 1: %v", err)
	}

	ok, err := f.e.IsVerified(a2)
	if err != nil {
		t.Fatalf("IsVerified: %v", err)
	}

	if !ok {
		t.Fatal("asset not verified after quorum")
	}

	rec, err := f.e.Task(task)
	if err != nil {
		t.Fatalf("Task: %v", err)
	}

	if !rec.Verified || rec.MeanScore != 85 || len(rec.Scores) != 2 {
		t.Errorf("task = %+v", rec)
	}

	if err := f.e.RegisterForTask(f.evaluator, task); !errors.Is(err, ErrTaskClosed) {
		t.Errorf("register after verify: got %v, want ErrTaskClosed", err)
	}
}

func TestHeadMustMatchPosition(t *testing.T) {
	f := newFixture(t)

	a := f.mint(u1, RootAsset)
	f.makeWorkers(addr(1), addr(2))

	task, err := f.e.ModelVerificationReq(u1, a, u1, 2, 2)
	if err != nil {
		t.Fatalf("ModelVerificationReq: %v", err)
	}

	for _, w := range []ids.Address{addr(1), addr(2)} {
		if err := f.e.RegisterForTask(w, task); err != nil {
			t.Fatalf("RegisterForTask: %v", err)
		}
	}

	if err := f.e.SubmitResult(addr(1), task, 1, 50); !errors.Is(err, ErrNotHead) {
		t.Errorf("wrong position: got %v, want ErrNotHead", err)
	}

	if err := f.e.SubmitResult(addr(3), task, 0, MaxScore+1); !errors.Is(err, ErrNotHead) {
		t.Errorf("non-head with score over max: got %v, want ErrNotHead", err)
	}

	if err := f.e.SubmitResult(addr(1), task, 0, MaxScore+1); !errors.Is(err, ErrInvalidScore) {
		t.Errorf("score over max: got %v, want ErrInvalidScore", err)
	}

	if err := f.e.SubmitResult(addr(1), 99, 0, 50); !errors.Is(err, ErrNotFound) {
		t.Errorf("unknown task: got %v, want ErrNotFound", err)
	}
}

func TestModelVerificationReqRejections(t *testing.T) {
	f := newFixture(t)

	a := f.mint(u1, RootAsset)

	cases := []struct {
		name      string
		caller    ids.Address
		asset     AssetID
		requester ids.Address
		capacity  uint32
		quorum    uint32
		want      error
	}{
		{"requester not caller", u2, a, u1, 3, 2, ErrUnauthorized},
		{"not owner", u2, a, u2, 3, 2, ErrUnauthorized},
		{"zero quorum", u1, a, u1, 3, 0, ErrInvalidQuorum},
		{"quorum over capacity", u1, a, u1, 2, 3, ErrInvalidQuorum},
		{"capacity too large", u1, a, u1, MaxTaskCapacity + 1, 2, ErrInvalidQuorum},
		{"missing asset", u1, 9, u1, 3, 2, ErrNotFound},
	}

	for _, c := range cases {
		_, err := f.e.ModelVerificationReq(c.caller, c.asset, c.requester, c.capacity, c.quorum)
		if !errors.Is(err, c.want) {
			t.Errorf("%s: got %v, want %v", c.name, err, c.want)
		}
	}

	if _, err := f.e.ModelVerificationReq(u1, a, u1, 3, 2); err != nil {
		t.Fatalf("ModelVerificationReq: %v", err)
	}

	if _, err := f.e.ModelVerificationReq(u1, a, u1, 3, 2); !errors.Is(err, ErrTaskOpen) {
		t.Errorf("second task: got %v, want ErrTaskOpen", err)
	}
}

func TestRegisterForTaskRejections(t *testing.T) {
	f := newFixture(t)

	a := f.mint(u1, RootAsset)
	f.makeWorkers(addr(1))

	task, err := f.e.ModelVerificationReq(u1, a, u1, 3, 1)
	if err != nil {
		t.Fatalf("ModelVerificationReq: %v", err)
	}

	if err := f.e.RegisterForTask(addr(1), 77); !errors.Is(err, ErrNotFound) {
		t.Errorf("unknown task: got %v, want ErrNotFound", err)
	}

	if err := f.e.RegisterWorker(addr(2), nil); err != nil {
		t.Fatalf("RegisterWorker: %v", err)
	}

	if err := f.e.RegisterForTask(addr(2), task); !errors.Is(err, ErrNotWorker) {
		t.Errorf("pending worker: got %v, want ErrNotWorker", err)
	}

	if err := f.e.RegisterForTask(addr(1), task); err != nil {
		t.Fatalf("RegisterForTask: %v", err)
	}

	if err := f.e.RegisterForTask(addr(1), task); !errors.Is(err, ErrAlreadyRegistered) {
		t.Errorf("twice: got %v, want ErrAlreadyRegistered", err)
	}
}

func TestNewTaskAfterVerification(t *testing.T) {
	f := newFixture(t)

	a := f.mint(u1, RootAsset)
	f.verify(u1, a)

	if _, err := f.e.ModelVerificationReq(u1, a, u1, 1, 1); err != nil {
		t.Errorf("task after verification: %v", err)
	}
}
