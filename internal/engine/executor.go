package engine

import (
	"context"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/core/types"
	"github.com/registrylabs/registry-cli/internal/classify"
	clierr "github.com/registrylabs/registry-cli/internal/errors"
	"github.com/registrylabs/registry-cli/internal/signer"
)

// ExecuteOptions tunes submission and confirmation waits.
type ExecuteOptions struct {
	// WalletTimeout bounds how long Execute blocks before reporting
	// WALLET_TIMEOUT. The submission itself keeps running.
	WalletTimeout  time.Duration
	PollInterval   time.Duration
	ConfirmTimeout time.Duration
}

func DefaultExecuteOptions() ExecuteOptions {
	return ExecuteOptions{
		WalletTimeout:  40 * time.Second,
		PollInterval:   2 * time.Second,
		ConfirmTimeout: 5 * time.Minute,
	}
}

// LateResultFunc is invoked when a confirmation lands after the wallet
// timeout was already reported for the attempt.
type LateResultFunc func(attempt SubmissionAttempt, receipt *types.Receipt)

// minedRevertMessage marks a revert observed in a mined receipt, as opposed
// to the preflight "call would revert" rejection. The kind is shared; the
// message tells the two apart in diagnostics.
const minedRevertMessage = "transaction reverted on-chain"

// execOutcome is what the submission goroutine eventually produces.
type execOutcome struct {
	receipt *types.Receipt
	err     error
}

// resultSlot is a single-assignment cell deciding who reports the outcome:
// the submission goroutine or the timeout timer. Whichever settles first
// owns the report; the loser's value is still readable.
type resultSlot struct {
	once    sync.Once
	done    chan struct{}
	outcome execOutcome
}

func newResultSlot() *resultSlot {
	return &resultSlot{done: make(chan struct{})}
}

// settle stores the outcome if the slot is empty and reports whether this
// call won the assignment.
func (s *resultSlot) settle(out execOutcome) bool {
	won := false
	s.once.Do(func() {
		s.outcome = out
		won = true
		close(s.done)
	})
	return won
}

// Executor signs, broadcasts and confirms action transactions, bounding the
// caller's wait without abandoning the submission.
type Executor struct {
	backend  Backend
	txSigner signer.Signer
	store    AttemptStore
	observer Observer
	opts     ExecuteOptions
}

func NewExecutor(backend Backend, txSigner signer.Signer, store AttemptStore, observer Observer, opts ExecuteOptions) *Executor {
	if opts.WalletTimeout <= 0 {
		opts.WalletTimeout = 40 * time.Second
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 2 * time.Second
	}
	if opts.ConfirmTimeout <= 0 {
		opts.ConfirmTimeout = 5 * time.Minute
	}
	return &Executor{backend: backend, txSigner: txSigner, store: store, observer: observer, opts: opts}
}

// Execute submits the request and waits up to WalletTimeout for a receipt.
// On timeout it returns a WALLET_TIMEOUT error while the confirmation wait
// continues in the background; a receipt that arrives afterwards moves the
// same attempt from timed_out to confirmed and is handed to late.
//
// The attempt must be in StateSubmitting when Execute is called.
func (e *Executor) Execute(ctx context.Context, req *ActionRequest, gasLimit uint64, attempt *SubmissionAttempt, late LateResultFunc) (*types.Receipt, error) {
	// The attempt record is shared between the reporting path and the
	// background confirmation path; mu covers both.
	var mu sync.Mutex

	tx, err := submitCall(ctx, e.backend, e.txSigner, req.Target, req.Data, gasLimit)
	if err != nil {
		classified := classify.Classify(err)
		if terr := transition(attempt, StateFailed, e.observer); terr == nil {
			attempt.Error = classified.Message
			attempt.ErrorKind = string(classified.Kind)
			e.persist(attempt)
		}
		return nil, classified
	}

	mu.Lock()
	attempt.TxHash = tx.Hash().Hex()
	attempt.GasLimit = tx.Gas()
	attempt.SubmittedAt = time.Now().UTC().Format(time.RFC3339)
	if err := transition(attempt, StateAwaitingConfirmation, e.observer); err != nil {
		mu.Unlock()
		return nil, err
	}
	e.persist(attempt)
	mu.Unlock()

	slot := newResultSlot()

	// The confirmation wait must survive the caller giving up, so it runs
	// on a context detached from cancellation but not from the process.
	confirmCtx := context.WithoutCancel(ctx)
	go func() {
		receipt, err := waitReceipt(confirmCtx, e.backend, tx.Hash(), e.opts.PollInterval, e.opts.ConfirmTimeout)
		out := execOutcome{receipt: receipt, err: err}
		if slot.settle(out) {
			return
		}
		// The timeout already reported. Apply the outcome to the stored
		// attempt and notify the late hook.
		mu.Lock()
		defer mu.Unlock()
		if err != nil {
			if attempt.State == StateTimedOut {
				if terr := transition(attempt, StateFailed, e.observer); terr == nil {
					attempt.Error = err.Error()
					attempt.ErrorKind = string(clierr.KindOf(err))
					e.persist(attempt)
				}
			}
			return
		}
		if attempt.State != StateTimedOut {
			return
		}
		if receipt.Status != types.ReceiptStatusSuccessful {
			// A revert that lands after the timeout is a failure, not a
			// late confirmation.
			if terr := transition(attempt, StateFailed, e.observer); terr == nil {
				attempt.Error = minedRevertMessage
				attempt.ErrorKind = string(clierr.KindSimulationReverted)
				e.persist(attempt)
			}
			return
		}
		if terr := transition(attempt, StateConfirmed, e.observer); terr == nil {
			attempt.TimedOut = true
			e.persist(attempt)
			if late != nil {
				late(*attempt, receipt)
			}
		}
	}()

	timer := time.NewTimer(e.opts.WalletTimeout)
	defer timer.Stop()

	select {
	case <-slot.done:
	case <-timer.C:
		timeoutErr := clierr.New(clierr.KindWalletTimeout, "no confirmation within the wallet wait window").
			WithDetails("tx " + tx.Hash().Hex())
		if slot.settle(execOutcome{err: timeoutErr}) {
			mu.Lock()
			terr := transition(attempt, StateTimedOut, e.observer)
			if terr == nil {
				attempt.TimedOut = true
				attempt.Error = timeoutErr.Message
				attempt.ErrorKind = string(clierr.KindWalletTimeout)
				e.persist(attempt)
			}
			mu.Unlock()
			if terr != nil {
				return nil, terr
			}
			return nil, timeoutErr
		}
		// The real outcome landed between the timer firing and settle;
		// report it instead of the stale timeout.
	}

	out := slot.outcome
	mu.Lock()
	defer mu.Unlock()
	if out.err != nil {
		classified := classify.Classify(out.err)
		if terr := transition(attempt, StateFailed, e.observer); terr == nil {
			attempt.Error = classified.Message
			attempt.ErrorKind = string(classified.Kind)
			e.persist(attempt)
		}
		return nil, classified
	}
	if out.receipt.Status != types.ReceiptStatusSuccessful {
		failure := clierr.New(clierr.KindSimulationReverted, minedRevertMessage).
			WithDetails("tx " + tx.Hash().Hex())
		if terr := transition(attempt, StateFailed, e.observer); terr == nil {
			attempt.Error = failure.Message
			attempt.ErrorKind = string(failure.Kind)
			e.persist(attempt)
		}
		return nil, failure
	}
	if terr := transition(attempt, StateConfirmed, e.observer); terr != nil {
		return nil, terr
	}
	e.persist(attempt)
	return out.receipt, nil
}

func (e *Executor) persist(attempt *SubmissionAttempt) {
	if e.store == nil {
		return
	}
	// Persistence is best-effort bookkeeping; the live outcome wins.
	_ = e.store.SaveAttempt(*attempt)
}
