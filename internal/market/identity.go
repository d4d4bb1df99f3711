package market

import (
	"fmt"

	"LineageMarket/internal/ids"
	"LineageMarket/internal/logger"
)

// Vote values accepted by VerifyWorker.
const (
	VoteApprove int8 = 1
	VoteReject  int8 = -1
)

// RegisterWorker enrolls caller as a Pending worker.
func (e *Engine) RegisterWorker(caller ids.Address, attestation []byte) error {
	return e.update("register_worker", func(tx *txn) error {
		return tx.registerWorker(caller, attestation)
	})
}

// RegisterVerifier enrolls caller as a verifier.
func (e *Engine) RegisterVerifier(caller ids.Address) error {
	return e.update("register_verifier", func(tx *txn) error {
		return tx.registerVerifier(caller)
	})
}

// VerifyWorker records caller's vote on worker. The worker latches Verified
// once positive votes exceed half of the verifiers enrolled at that moment.
func (e *Engine) VerifyWorker(caller, worker ids.Address, vote int8) error {
	return e.update("verify_worker", func(tx *txn) error {
		return tx.verifyWorker(caller, worker, vote)
	})
}

// IsWorker reports whether addr is a Verified worker.
func (e *Engine) IsWorker(addr ids.Address) (bool, error) {
	var ok bool

	err := e.view(func(tx *txn) error {
		var err error
		ok, err = tx.isWorker(addr)
		return err
	})

	return ok, err
}

// Worker returns the worker record of addr.
func (e *Engine) Worker(addr ids.Address) (*Worker, error) {
	var w *Worker

	err := e.view(func(tx *txn) error {
		var err error
		if w, err = tx.worker(addr); err != nil {
			return err
		}

		if w == nil {
			return ErrNotFound
		}

		return nil
	})

	return w, err
}

// IsVerifier reports whether addr is an enrolled verifier.
func (e *Engine) IsVerifier(addr ids.Address) (bool, error) {
	var ok bool

	err := e.view(func(tx *txn) error {
		var err error
		ok, err = tx.flag(addrKey(verifierPrefix, addr))
		return err
	})

	return ok, err
}

// VerifierCount returns the number of enrolled verifiers.
func (e *Engine) VerifierCount() (uint64, error) {
	var n uint64

	err := e.view(func(tx *txn) error {
		var err error
		n, err = tx.counter(metaVerifierCount)
		return err
	})

	return n, err
}

func (tx *txn) worker(addr ids.Address) (*Worker, error) {
	return load(tx.kv, addrKey(workerPrefix, addr), decodeWorker)
}

func (tx *txn) putWorker(w *Worker) error {
	return tx.kv.Set(addrKey(workerPrefix, w.Address), encodeWorker(w))
}

func (tx *txn) isWorker(addr ids.Address) (bool, error) {
	w, err := tx.worker(addr)
	if err != nil {
		return false, err
	}

	return w != nil && w.Status == WorkerVerified, nil
}

func (tx *txn) registerWorker(caller ids.Address, attestation []byte) error {
	existing, err := tx.worker(caller)
	if err != nil {
		return err
	}

	if existing != nil {
		return ErrAlreadyRegistered
	}

	w := &Worker{
		Address:     caller,
		Attestation: attestation,
		Status:      WorkerPending,
	}

	if err := tx.putWorker(w); err != nil {
		return fmt.Errorf("store worker:\n%w", err)
	}

	tx.afterCommit(func() {
		logger.Info("worker registered", "worker", caller.Short())
	})

	return nil
}

func (tx *txn) registerVerifier(caller ids.Address) error {
	key := addrKey(verifierPrefix, caller)

	enrolled, err := tx.flag(key)
	if err != nil {
		return err
	}

	if enrolled {
		return ErrAlreadyRegistered
	}

	if err := tx.setFlag(key); err != nil {
		return fmt.Errorf("store verifier:\n%w", err)
	}

	count, err := tx.nextID(metaVerifierCount)
	if err != nil {
		return fmt.Errorf("bump verifier count:\n%w", err)
	}

	tx.afterCommit(func() {
		logger.Info("verifier registered", "verifier", caller.Short(), "verifiers", count)
	})

	return nil
}

func (tx *txn) verifyWorker(caller, worker ids.Address, vote int8) error {
	isVerifier, err := tx.flag(addrKey(verifierPrefix, caller))
	if err != nil {
		return err
	}

	if !isVerifier {
		return ErrNotAVerifier
	}

	w, err := tx.worker(worker)
	if err != nil {
		return err
	}

	if w == nil {
		return ErrNotFound
	}

	if vote != VoteApprove && vote != VoteReject {
		return ErrInvalidVote
	}

	vk := voteKey(worker, caller)

	voted, err := tx.flag(vk)
	if err != nil {
		return err
	}

	if voted {
		return ErrAlreadyVoted
	}

	if w.Status == WorkerVerified {
		return ErrAlreadyVerified
	}

	if err := tx.kv.Set(vk, []byte{byte(vote)}); err != nil {
		return fmt.Errorf("store vote:\n%w", err)
	}

	if vote == VoteApprove {
		w.Positive++
	} else {
		w.Negative++
	}

	verifiers, err := tx.counter(metaVerifierCount)
	if err != nil {
		return err
	}

	latched := 2*uint64(w.Positive) > verifiers
	if latched {
		w.Status = WorkerVerified
		w.VerifiedAt = tx.now
	}

	if err := tx.putWorker(w); err != nil {
		return fmt.Errorf("store worker:\n%w", err)
	}

	tx.afterCommit(func() {
		logger.Debug("vote recorded",
			"worker", worker.Short(),
			"verifier", caller.Short(),
			"vote", vote,
			"positive", w.Positive,
			"verifiers", verifiers,
		)

		if latched {
			logger.Info("worker verified", "worker", worker.Short(), "positive", w.Positive)
		}
	})

	return nil
}
