package engine

import (
	"context"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/registrylabs/registry-cli/internal/classify"
	clierr "github.com/registrylabs/registry-cli/internal/errors"
	"github.com/registrylabs/registry-cli/internal/signer"
)

// Pipeline orchestrates one paid action end to end: idempotency check,
// allowance negotiation, preflight, submission and receipt interpretation.
type Pipeline struct {
	backend  Backend
	txSigner signer.Signer
	store    AttemptStore
	observer Observer

	negotiate NegotiateOptions
	execute   ExecuteOptions

	mu       sync.Mutex
	inFlight map[string]bool
}

func NewPipeline(backend Backend, txSigner signer.Signer, store AttemptStore, observer Observer, negotiate NegotiateOptions, execute ExecuteOptions) *Pipeline {
	return &Pipeline{
		backend:   backend,
		txSigner:  txSigner,
		store:     store,
		observer:  observer,
		negotiate: negotiate,
		execute:   execute,
		inFlight:  make(map[string]bool),
	}
}

// Submit runs the full pipeline for the request. At most one submission per
// action key is in flight; a concurrent second call is rejected rather than
// queued.
func (p *Pipeline) Submit(ctx context.Context, req *ActionRequest) (DomainResult, error) {
	release, err := p.claim(req.ActionKey)
	if err != nil {
		return DomainResult{}, err
	}
	defer release()

	// The fresh attempt is first persisted on its first transition, so the
	// guard's lookup below still sees the previous attempt for this key.
	return p.run(ctx, req, NewAttempt(req))
}

// Retry re-runs the request after a non-terminal failure. If the previous
// attempt timed out awaiting confirmation, its receipt is checked first: a
// confirmation that landed in the meantime short-circuits the retry instead
// of submitting a duplicate.
func (p *Pipeline) Retry(ctx context.Context, req *ActionRequest) (DomainResult, error) {
	release, err := p.claim(req.ActionKey)
	if err != nil {
		return DomainResult{}, err
	}
	defer release()

	if p.store != nil {
		prior, ok, err := p.store.LatestAttempt(req.ActionKey)
		if err == nil && ok {
			if prior.State == StateConfirmed && prior.Result != nil {
				return *prior.Result, nil
			}
			if prior.State == StateTimedOut && prior.TxHash != "" {
				if result, resolved := p.resolveTimedOut(ctx, req, prior); resolved {
					return result, nil
				}
			}
		}
	}

	return p.run(ctx, req, NewAttempt(req))
}

// resolveTimedOut checks whether the timed-out attempt's transaction has
// since confirmed, and if so finalizes that attempt in place.
func (p *Pipeline) resolveTimedOut(ctx context.Context, req *ActionRequest, prior SubmissionAttempt) (DomainResult, bool) {
	receipt, err := p.backend.TransactionReceipt(ctx, common.HexToHash(prior.TxHash))
	if err != nil || receipt == nil || receipt.Status != 1 {
		return DomainResult{}, false
	}
	result := InterpretReceipt(req.ActionKey, receipt, req.Target)
	if terr := transition(&prior, StateConfirmed, p.observer); terr != nil {
		return DomainResult{}, false
	}
	prior.Result = &result
	p.persist(&prior)
	return result, true
}

func (p *Pipeline) run(ctx context.Context, req *ActionRequest, attempt *SubmissionAttempt) (DomainResult, error) {
	guard := NewGuard(p.backend, p.store)
	check, err := guard.Check(ctx, req)
	if err != nil {
		return DomainResult{}, p.fail(attempt, err)
	}
	if check.AlreadySatisfied {
		if terr := transition(attempt, StateConfirmed, p.observer); terr != nil {
			return DomainResult{}, terr
		}
		attempt.Result = check.EquivalentResult
		p.persist(attempt)
		return *check.EquivalentResult, nil
	}

	if req.Payment != nil {
		if terr := transition(attempt, StateNegotiating, p.observer); terr != nil {
			return DomainResult{}, terr
		}
		p.persist(attempt)
		negotiator := NewNegotiator(p.backend, p.txSigner, NewToken(p.backend, req.Payment.Token), p.negotiate)
		if _, err := negotiator.Ensure(ctx, req.Payment.Spender, req.Payment.Required); err != nil {
			return DomainResult{}, p.fail(attempt, err)
		}
	}

	if terr := transition(attempt, StateSimulating, p.observer); terr != nil {
		return DomainResult{}, terr
	}
	p.persist(attempt)
	simulator := NewSimulator(p.backend, p.txSigner)
	if err := simulator.Simulate(ctx, req); err != nil {
		return DomainResult{}, p.fail(attempt, err)
	}
	gasLimit := simulator.Estimate(ctx, req)

	if terr := transition(attempt, StateSubmitting, p.observer); terr != nil {
		return DomainResult{}, terr
	}
	p.persist(attempt)
	executor := NewExecutor(p.backend, p.txSigner, p.store, p.observer, p.execute)
	receipt, err := executor.Execute(ctx, req, gasLimit, attempt, p.applyLateResult(req))
	if err != nil {
		// Execute already moved the attempt to its resting state.
		return DomainResult{}, err
	}

	result := InterpretReceipt(req.ActionKey, receipt, req.Target)
	attempt.Result = &result
	p.persist(attempt)
	return result, nil
}

// applyLateResult records the interpreted outcome of a confirmation that
// arrived after the wallet timeout was reported.
func (p *Pipeline) applyLateResult(req *ActionRequest) LateResultFunc {
	return func(attempt SubmissionAttempt, receipt *types.Receipt) {
		result := InterpretReceipt(req.ActionKey, receipt, req.Target)
		attempt.Result = &result
		p.persist(&attempt)
	}
}

// claim takes the per-action in-flight slot or reports the action as busy.
func (p *Pipeline) claim(actionKey string) (func(), error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.inFlight[actionKey] {
		return nil, clierr.New(clierr.KindBlocked, "another submission for this action is already in flight").
			WithDetails(actionKey)
	}
	p.inFlight[actionKey] = true
	return func() {
		p.mu.Lock()
		delete(p.inFlight, actionKey)
		p.mu.Unlock()
	}, nil
}

func (p *Pipeline) fail(attempt *SubmissionAttempt, err error) error {
	classified := classify.Classify(err)
	if transition(attempt, StateFailed, p.observer) == nil {
		attempt.Error = classified.Message
		attempt.ErrorKind = string(classified.Kind)
		p.persist(attempt)
	}
	return classified
}

func (p *Pipeline) persist(attempt *SubmissionAttempt) {
	if p.store == nil {
		return
	}
	_ = p.store.SaveAttempt(*attempt)
}
