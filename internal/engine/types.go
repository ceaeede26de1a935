package engine

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	clierr "github.com/registrylabs/registry-cli/internal/errors"
)

// RequiredAmountFn returns the authoritative fee at call time. It is invoked
// fresh at every negotiation point; quotes are never cached because the fee
// is dynamically priced.
type RequiredAmountFn func(ctx context.Context) (*big.Int, error)

// PaymentRequirement describes the approve-then-act payment of a request.
type PaymentRequirement struct {
	Token    common.Address
	Spender  common.Address
	Required RequiredAmountFn
}

// ActionRequest is one logical attempt at one paid registry action. It is
// immutable once constructed; planners in the app layer build it.
type ActionRequest struct {
	// ActionKey identifies the action's effect (payer + method + target id),
	// used for idempotency and attempt bookkeeping.
	ActionKey string
	Method    string
	Target    common.Address
	Data      []byte
	// StatusData is the calldata of the registry view that reports whether
	// the action's effect already holds. Empty means the action has no
	// idempotency view.
	StatusData []byte
	// Payment is nil for free actions.
	Payment *PaymentRequirement
	// Snapshot carries the serializable request description persisted with
	// attempts so a retry can be rebuilt after a restart.
	Snapshot RequestSnapshot
}

// RequestSnapshot is the durable form of an ActionRequest.
type RequestSnapshot struct {
	Method     string `json:"method"`
	Target     string `json:"target"`
	Data       string `json:"data"`
	StatusData string `json:"status_data,omitempty"`
	Token      string `json:"token,omitempty"`
	Spender    string `json:"spender,omitempty"`
	ChainID    int64  `json:"chain_id"`
}

// AllowanceState is the outcome of one allowance negotiation. It is derived
// fresh on every run and never reused across pipeline runs.
type AllowanceState struct {
	Owner     common.Address
	Spender   common.Address
	Allowance *big.Int
	Required  *big.Int
}

// IdempotencyResult reports whether the action's effect already holds.
type IdempotencyResult struct {
	AlreadySatisfied bool
	EquivalentResult *DomainResult
}

// DomainResult is the structured outcome handed back to the caller. It is
// always confirmable: TxHash and BlockNumber are filled even when event
// decoding is degraded.
type DomainResult struct {
	ActionKey        string            `json:"action_key"`
	TxHash           string            `json:"tx_hash,omitempty"`
	BlockNumber      uint64            `json:"block_number,omitempty"`
	Event            string            `json:"event,omitempty"`
	Fields           map[string]string `json:"fields,omitempty"`
	FeePaid          string            `json:"fee_paid,omitempty"`
	AlreadySatisfied bool              `json:"already_satisfied,omitempty"`
}

// AttemptState is the named state of a submission attempt.
type AttemptState string

const (
	StateIdle                 AttemptState = "idle"
	StateNegotiating          AttemptState = "negotiating"
	StateSimulating           AttemptState = "simulating"
	StateSubmitting           AttemptState = "submitting"
	StateAwaitingConfirmation AttemptState = "awaiting_confirmation"
	StateTimedOut             AttemptState = "timed_out"
	StateConfirmed            AttemptState = "confirmed"
	StateFailed               AttemptState = "failed"
)

// timed_out is deliberately not terminal: a confirmation arriving after the
// timeout was reported moves the same attempt to confirmed.
var allowedTransitions = map[AttemptState][]AttemptState{
	StateIdle:                 {StateNegotiating, StateSimulating, StateConfirmed, StateFailed},
	StateNegotiating:          {StateSimulating, StateFailed},
	StateSimulating:           {StateSubmitting, StateFailed},
	StateSubmitting:           {StateAwaitingConfirmation, StateFailed},
	StateAwaitingConfirmation: {StateConfirmed, StateTimedOut, StateFailed},
	StateTimedOut:             {StateConfirmed, StateFailed},
}

// Terminal reports whether no further transition is legal from s.
func (s AttemptState) Terminal() bool {
	return len(allowedTransitions[s]) == 0
}

// SubmissionAttempt records one live submission of an ActionRequest. At most
// one attempt per request is in flight; a new attempt is only created by an
// explicit retry.
type SubmissionAttempt struct {
	AttemptID   string          `json:"attempt_id"`
	ActionKey   string          `json:"action_key"`
	State       AttemptState    `json:"state"`
	TxHash      string          `json:"tx_hash,omitempty"`
	GasLimit    uint64          `json:"gas_limit,omitempty"`
	SubmittedAt string          `json:"submitted_at,omitempty"`
	TimedOut    bool            `json:"timed_out"`
	Error       string          `json:"error,omitempty"`
	ErrorKind   string          `json:"error_kind,omitempty"`
	CreatedAt   string          `json:"created_at"`
	UpdatedAt   string          `json:"updated_at"`
	Request     RequestSnapshot `json:"request"`
	Result      *DomainResult   `json:"result,omitempty"`
}

func NewAttempt(req *ActionRequest) *SubmissionAttempt {
	now := time.Now().UTC().Format(time.RFC3339)
	return &SubmissionAttempt{
		AttemptID: newAttemptID(),
		ActionKey: req.ActionKey,
		State:     StateIdle,
		CreatedAt: now,
		UpdatedAt: now,
		Request:   req.Snapshot,
	}
}

func (a *SubmissionAttempt) Touch() {
	a.UpdatedAt = time.Now().UTC().Format(time.RFC3339)
}

// Observer is an optional diagnostic hook notified on every attempt state
// transition. It must not be used for correctness decisions.
type Observer func(attempt *SubmissionAttempt, from, to AttemptState)

// transition moves the attempt to a new state, enforcing the machine above.
func transition(a *SubmissionAttempt, to AttemptState, observer Observer) error {
	from := a.State
	legal := false
	for _, next := range allowedTransitions[from] {
		if next == to {
			legal = true
			break
		}
	}
	if !legal {
		return clierr.New(clierr.KindInternal, fmt.Sprintf("illegal attempt transition %s -> %s", from, to))
	}
	a.State = to
	a.Touch()
	if observer != nil {
		observer(a, from, to)
	}
	return nil
}

func newAttemptID() string {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		return fmt.Sprintf("att_%d", time.Now().UnixNano())
	}
	return "att_" + hex.EncodeToString(buf)
}

// AttemptStore is the durable record of attempts and their receipts; the
// engine uses it for retry short-circuiting and late-arrival application.
// Implementations must be safe for concurrent use.
type AttemptStore interface {
	SaveAttempt(attempt SubmissionAttempt) error
	LatestAttempt(actionKey string) (SubmissionAttempt, bool, error)
}
