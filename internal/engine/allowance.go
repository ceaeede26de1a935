package engine

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/registrylabs/registry-cli/internal/classify"
	clierr "github.com/registrylabs/registry-cli/internal/errors"
	"github.com/registrylabs/registry-cli/internal/signer"
)

// NegotiateOptions tunes the allowance confirmation loop. The poll cap is a
// tunable constant, not a hard contract.
type NegotiateOptions struct {
	PollBase            time.Duration
	PollStep            time.Duration
	PollCap             time.Duration
	PollAttempts        int
	ConfirmPollInterval time.Duration
	ConfirmTimeout      time.Duration
}

func DefaultNegotiateOptions() NegotiateOptions {
	return NegotiateOptions{
		PollBase:            500 * time.Millisecond,
		PollStep:            300 * time.Millisecond,
		PollCap:             2 * time.Second,
		PollAttempts:        32,
		ConfirmPollInterval: 2 * time.Second,
		ConfirmTimeout:      2 * time.Minute,
	}
}

// Negotiator ensures the on-chain allowance covers a dynamically-priced fee,
// issuing an approval transaction only when necessary.
type Negotiator struct {
	backend  Backend
	txSigner signer.Signer
	token    *Token
	opts     NegotiateOptions
}

func NewNegotiator(backend Backend, txSigner signer.Signer, token *Token, opts NegotiateOptions) *Negotiator {
	if opts.PollBase <= 0 {
		opts.PollBase = 500 * time.Millisecond
	}
	if opts.PollStep < 0 {
		opts.PollStep = 300 * time.Millisecond
	}
	if opts.PollCap <= 0 {
		opts.PollCap = 2 * time.Second
	}
	if opts.PollAttempts <= 0 {
		opts.PollAttempts = 32
	}
	if opts.ConfirmPollInterval <= 0 {
		opts.ConfirmPollInterval = 2 * time.Second
	}
	if opts.ConfirmTimeout <= 0 {
		opts.ConfirmTimeout = 2 * time.Minute
	}
	return &Negotiator{backend: backend, txSigner: txSigner, token: token, opts: opts}
}

// Ensure makes allowance(owner, spender) >= the current required fee. The
// fee is re-quoted at entry and re-checked after confirmation: a quote taken
// before the approval wait cannot be trusted afterwards.
func (n *Negotiator) Ensure(ctx context.Context, spender common.Address, required RequiredAmountFn) (AllowanceState, error) {
	owner := n.txSigner.Address()

	requiredNow, err := required(ctx)
	if err != nil {
		return AllowanceState{}, classify.Classify(err)
	}
	current, err := n.token.Allowance(ctx, owner, spender)
	if err != nil {
		return AllowanceState{}, classify.Classify(err)
	}
	state := AllowanceState{Owner: owner, Spender: spender, Allowance: current, Required: requiredNow}
	if requiredNow.Sign() == 0 || current.Cmp(requiredNow) >= 0 {
		return state, nil
	}

	// The requirement can never be met if the balance itself is short;
	// surface that before asking for a signature.
	balance, err := n.token.BalanceOf(ctx, owner)
	if err != nil {
		return AllowanceState{}, classify.Classify(err)
	}
	if balance.Cmp(requiredNow) < 0 {
		return AllowanceState{}, clierr.New(clierr.KindInsufficientBalance, "credit balance does not cover the required fee").
			WithDetails(fmt.Sprintf("required=%s balance=%s", requiredNow, balance))
	}

	if err := n.approve(ctx, spender, current, requiredNow); err != nil {
		return AllowanceState{}, err
	}

	if err := n.pollAllowance(ctx, owner, spender, requiredNow); err != nil {
		return AllowanceState{}, err
	}

	// Final authoritative re-check: the fee may have moved again while we
	// waited for the approval to land.
	finalRequired, err := required(ctx)
	if err != nil {
		return AllowanceState{}, classify.Classify(err)
	}
	finalAllowance, err := n.token.Allowance(ctx, owner, spender)
	if err != nil {
		return AllowanceState{}, classify.Classify(err)
	}
	if finalAllowance.Cmp(finalRequired) < 0 {
		return AllowanceState{}, clierr.New(clierr.KindAllowanceNotConfirmed, "allowance no longer covers the current fee").
			WithDetails(fmt.Sprintf("required=%s allowance=%s", finalRequired, finalAllowance))
	}
	return AllowanceState{Owner: owner, Spender: spender, Allowance: finalAllowance, Required: finalRequired}, nil
}

// approve issues the approval transaction and waits for its confirmation.
// Policy: an exact-amount approval is preferred for least privilege; if the
// exact-amount call fails for a non-final reason, a single incremental
// approval for the missing delta is issued instead, because delta-based
// adjustment is safer than overwriting under spend races.
func (n *Negotiator) approve(ctx context.Context, spender common.Address, current, requiredNow *big.Int) error {
	tx, err := submitCall(ctx, n.backend, n.txSigner, n.token.Address(), n.token.PackApprove(spender, requiredNow), 0)
	if err != nil {
		classified := classify.Classify(err)
		if !classified.Retryable() {
			return classified
		}
		delta := new(big.Int).Sub(requiredNow, current)
		tx, err = submitCall(ctx, n.backend, n.txSigner, n.token.Address(), n.token.PackIncreaseAllowance(spender, delta), 0)
		if err != nil {
			return classify.Classify(err)
		}
	}

	receipt, err := waitReceipt(ctx, n.backend, tx.Hash(), n.opts.ConfirmPollInterval, n.opts.ConfirmTimeout)
	if err != nil {
		return clierr.Wrap(clierr.KindAllowanceNotConfirmed, "approval confirmation not observed", err)
	}
	if receipt.Status != 1 {
		return clierr.New(clierr.KindAllowanceNotConfirmed, "approval transaction reverted on-chain").
			WithDetails("tx " + tx.Hash().Hex())
	}
	return nil
}

// pollAllowance re-reads the allowance with bounded exponential backoff
// until it reaches the required amount. Read-after-write on the ledger is
// not instantaneous relative to the confirmation signal.
func (n *Negotiator) pollAllowance(ctx context.Context, owner, spender common.Address, requiredNow *big.Int) error {
	var last *big.Int
	for attempt := 0; attempt < n.opts.PollAttempts; attempt++ {
		current, err := n.token.Allowance(ctx, owner, spender)
		if err == nil {
			last = current
			if current.Cmp(requiredNow) >= 0 {
				return nil
			}
		}
		select {
		case <-ctx.Done():
			return clierr.Wrap(clierr.KindAllowanceNotConfirmed, "allowance confirmation interrupted", ctx.Err())
		case <-time.After(n.backoffDelay(attempt)):
		}
	}
	detail := fmt.Sprintf("required=%s", requiredNow)
	if last != nil {
		detail = fmt.Sprintf("required=%s last_observed=%s", requiredNow, last)
	}
	return clierr.New(clierr.KindAllowanceNotConfirmed, "allowance did not reach the required amount in time").
		WithDetails(detail)
}

func (n *Negotiator) backoffDelay(attempt int) time.Duration {
	delay := n.opts.PollBase + time.Duration(attempt)*n.opts.PollStep
	if delay > n.opts.PollCap {
		delay = n.opts.PollCap
	}
	return delay
}
