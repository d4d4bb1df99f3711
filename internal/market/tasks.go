package market

import (
	"fmt"

	"LineageMarket/internal/ids"
	"LineageMarket/internal/logger"
)

const (
	// MaxScore is the highest score a head may submit.
	MaxScore = 100

	// MaxTaskCapacity bounds the registrant list of one task.
	MaxTaskCapacity = 256
)

// ModelVerificationReq opens a verification task for assetID. requester must
// be caller and the asset's current owner. Returns the new task id.
func (e *Engine) ModelVerificationReq(caller ids.Address, assetID AssetID, requester ids.Address, capacity, quorum uint32) (TaskID, error) {
	var id TaskID

	err := e.update("model_verification_req", func(tx *txn) error {
		var err error
		id, err = tx.openTask(caller, assetID, requester, capacity, quorum)
		return err
	})

	return id, err
}

// RegisterForTask appends caller to the task's registrant list.
func (e *Engine) RegisterForTask(caller ids.Address, taskID TaskID) error {
	return e.update("register_for_task", func(tx *txn) error {
		return tx.registerForTask(caller, taskID)
	})
}

// SubmitResult records a head's score. The task verifies once quorum scores exist.
func (e *Engine) SubmitResult(caller ids.Address, taskID TaskID, position, score uint32) error {
	return e.update("submit_result", func(tx *txn) error {
		return tx.submitResult(caller, taskID, position, score)
	})
}

// Task returns the task record of id.
func (e *Engine) Task(id TaskID) (*Task, error) {
	var t *Task

	err := e.view(func(tx *txn) error {
		var err error
		t, err = tx.mustTask(id)
		return err
	})

	return t, err
}

func (tx *txn) task(id TaskID) (*Task, error) {
	return load(tx.kv, idKey(taskPrefix, uint64(id)), decodeTask)
}

func (tx *txn) mustTask(id TaskID) (*Task, error) {
	t, err := tx.task(id)
	if err != nil {
		return nil, err
	}

	if t == nil {
		return nil, ErrNotFound
	}

	return t, nil
}

func (tx *txn) putTask(t *Task) error {
	if err := tx.kv.Set(idKey(taskPrefix, uint64(t.ID)), encodeTask(t)); err != nil {
		return fmt.Errorf("store task:\n%w", err)
	}

	return nil
}

func (tx *txn) openTask(caller ids.Address, assetID AssetID, requester ids.Address, capacity, quorum uint32) (TaskID, error) {
	if requester != caller {
		return 0, ErrUnauthorized
	}

	if quorum < 1 || quorum > capacity || capacity > MaxTaskCapacity {
		return 0, ErrInvalidQuorum
	}

	if _, err := tx.mustAsset(assetID); err != nil {
		return 0, err
	}

	owner, err := tx.ownerOf(assetID)
	if err != nil {
		return 0, err
	}

	if owner != requester {
		return 0, ErrUnauthorized
	}

	openKey := idKey(openTaskPrefix, uint64(assetID))

	open, err := tx.flag(openKey)
	if err != nil {
		return 0, err
	}

	if open {
		return 0, ErrTaskOpen
	}

	seq, err := tx.nextID(metaTaskSeq)
	if err != nil {
		return 0, fmt.Errorf("next task id:\n%w", err)
	}

	t := &Task{
		ID:        TaskID(seq),
		AssetID:   assetID,
		Requester: requester,
		Capacity:  capacity,
		Quorum:    quorum,
	}

	if err := tx.putTask(t); err != nil {
		return 0, err
	}

	if err := tx.kv.Set(openKey, u64(seq)); err != nil {
		return 0, fmt.Errorf("mark task open:\n%w", err)
	}

	tx.afterCommit(func() {
		logger.Info("verification task opened",
			"task", t.ID,
			"asset", assetID,
			"capacity", capacity,
			"quorum", quorum,
		)
	})

	return t.ID, nil
}

func (tx *txn) registerForTask(caller ids.Address, taskID TaskID) error {
	t, err := tx.mustTask(taskID)
	if err != nil {
		return err
	}

	if t.Verified {
		return ErrTaskClosed
	}

	worker, err := tx.isWorker(caller)
	if err != nil {
		return err
	}

	if !worker {
		return ErrNotWorker
	}

	if t.hasRegistered(caller) {
		return ErrAlreadyRegistered
	}

	if uint32(len(t.Registrants)) >= t.Capacity {
		return ErrTaskFull
	}

	t.Registrants = append(t.Registrants, caller)
	position := len(t.Registrants) - 1

	if err := tx.putTask(t); err != nil {
		return err
	}

	tx.afterCommit(func() {
		logger.Debug("task registrant",
			"task", taskID,
			"worker", caller.Short(),
			"position", position,
			"head", uint32(position) < t.Quorum,
		)
	})

	return nil
}

func (tx *txn) submitResult(caller ids.Address, taskID TaskID, position, score uint32) error {
	t, err := tx.mustTask(taskID)
	if err != nil {
		return err
	}

	if t.Verified {
		return ErrTaskClosed
	}

	if !t.IsHead(caller, position) {
		return ErrNotHead
	}

	if t.hasSubmitted(caller) {
		return ErrAlreadySubmitted
	}

	if score > MaxScore {
		return ErrInvalidScore
	}

	t.Scores = append(t.Scores, HeadScore{Head: caller, Score: score})

	finalized := uint32(len(t.Scores)) == t.Quorum
	if finalized {
		var sum uint64
		for _, s := range t.Scores {
			sum += uint64(s.Score)
		}

		t.Verified = true
		t.MeanScore = uint32(sum / uint64(len(t.Scores)))

		if err := tx.setFlag(idKey(verifiedPrefix, uint64(t.AssetID))); err != nil {
			return fmt.Errorf("mark asset verified:\n%w", err)
		}

		if err := tx.kv.Delete(idKey(openTaskPrefix, uint64(t.AssetID))); err != nil {
			return fmt.Errorf("close task:\n%w", err)
		}
	}

	if err := tx.putTask(t); err != nil {
		return err
	}

	tx.afterCommit(func() {
		logger.Debug("score submitted", "task", taskID, "head", caller.Short(), "score", score)

		if finalized {
			logger.Info("asset verified", "asset", t.AssetID, "task", taskID, "mean_score", t.MeanScore)
		}
	})

	return nil
}
