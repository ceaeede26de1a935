package engine

import (
	"context"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	clierr "github.com/registrylabs/registry-cli/internal/errors"
)

func newTestPipeline(backend *fakeBackend, store AttemptStore, observer Observer) *Pipeline {
	return NewPipeline(backend, &fakeSigner{addr: testOwnerAddr}, store, observer, fastNegotiateOptions(), fastExecuteOptions())
}

func TestSubmitEndToEndWithApproval(t *testing.T) {
	backend := newFakeBackend()
	backend.balance = big.NewInt(100)
	backend.allowance = big.NewInt(0)
	backend.allowanceLag = 1 // allowance becomes visible on the second poll
	versionID := common.HexToHash("0x1111111111111111111111111111111111111111111111111111111111111111")
	backend.actionLogs = append(backend.actionLogs, endorsedLog(versionID, 10))

	var transitions []AttemptState
	var mu sync.Mutex
	observer := func(_ *SubmissionAttempt, _, to AttemptState) {
		mu.Lock()
		transitions = append(transitions, to)
		mu.Unlock()
	}

	store := &memStore{}
	pipeline := newTestPipeline(backend, store, observer)
	req := endorseRequest(backend, 10)

	result, err := pipeline.Submit(context.Background(), req)
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if result.FeePaid != "10" {
		t.Fatalf("expected fee_paid 10, got %q", result.FeePaid)
	}
	if result.Event != "VersionEndorsed" {
		t.Fatalf("expected VersionEndorsed event, got %q", result.Event)
	}
	if got := backend.sentToToken(); got != 1 {
		t.Fatalf("expected exactly one approval, got %d", got)
	}
	if got := backend.sentTotal(); got != 2 {
		t.Fatalf("expected approval plus action, got %d transactions", got)
	}

	mu.Lock()
	defer mu.Unlock()
	want := []AttemptState{StateNegotiating, StateSimulating, StateSubmitting, StateAwaitingConfirmation, StateConfirmed}
	if len(transitions) != len(want) {
		t.Fatalf("unexpected transition trail %v", transitions)
	}
	for i, state := range want {
		if transitions[i] != state {
			t.Fatalf("transition %d: want %s, got %s", i, state, transitions[i])
		}
	}

	stored, found, err := store.LatestAttempt(req.ActionKey)
	if err != nil || !found {
		t.Fatalf("expected stored attempt, found=%v err=%v", found, err)
	}
	if stored.State != StateConfirmed || stored.Result == nil {
		t.Fatalf("stored attempt incomplete: state=%s result=%v", stored.State, stored.Result)
	}
}

func TestSubmitSufficientAllowanceSkipsApproval(t *testing.T) {
	backend := newFakeBackend()
	backend.balance = big.NewInt(100)
	backend.allowance = big.NewInt(50)
	versionID := common.HexToHash("0x1111111111111111111111111111111111111111111111111111111111111111")
	backend.actionLogs = append(backend.actionLogs, endorsedLog(versionID, 10))

	pipeline := newTestPipeline(backend, &memStore{}, nil)
	if _, err := pipeline.Submit(context.Background(), endorseRequest(backend, 10)); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if got := backend.sentToToken(); got != 0 {
		t.Fatalf("expected no approvals with a sufficient allowance, got %d", got)
	}
	if got := backend.sentTotal(); got != 1 {
		t.Fatalf("expected only the action transaction, got %d", got)
	}
}

func TestSubmitShortCircuitsWhenAlreadySatisfied(t *testing.T) {
	backend := newFakeBackend()
	backend.statusSatisfied = true

	pipeline := newTestPipeline(backend, &memStore{}, nil)
	result, err := pipeline.Submit(context.Background(), endorseRequest(backend, 10))
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if !result.AlreadySatisfied {
		t.Fatal("expected already-satisfied result")
	}
	if backend.sentTotal() != 0 {
		t.Fatalf("expected no transactions for a satisfied action, got %d", backend.sentTotal())
	}
}

func TestSubmitSatisfiedPrefersStoredResult(t *testing.T) {
	backend := newFakeBackend()
	backend.statusSatisfied = true
	store := &memStore{}
	req := endorseRequest(backend, 10)

	prior := SubmissionAttempt{
		AttemptID: "att_prior",
		ActionKey: req.ActionKey,
		State:     StateConfirmed,
		Result: &DomainResult{
			ActionKey: req.ActionKey,
			TxHash:    "0xdeadbeef",
			Event:     "VersionEndorsed",
			FeePaid:   "10",
		},
	}
	if err := store.SaveAttempt(prior); err != nil {
		t.Fatalf("seed store: %v", err)
	}

	result, err := newTestPipeline(backend, store, nil).Submit(context.Background(), req)
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if result.TxHash != "0xdeadbeef" || result.FeePaid != "10" {
		t.Fatalf("expected the stored result to be returned, got %+v", result)
	}
	if !result.AlreadySatisfied {
		t.Fatal("stored result must be marked already satisfied")
	}
}

func TestSubmitSimulationRevertFailsBeforeBroadcast(t *testing.T) {
	backend := newFakeBackend()
	backend.simulateErr = errContains("execution reverted")

	store := &memStore{}
	_, err := newTestPipeline(backend, store, nil).Submit(context.Background(), endorseRequest(backend, -1))
	if clierr.KindOf(err) != clierr.KindSimulationReverted {
		t.Fatalf("expected SIMULATION_REVERTED, got %v", err)
	}
	if backend.sentTotal() != 0 {
		t.Fatalf("a failed preflight must not broadcast, got %d transactions", backend.sentTotal())
	}
	stored, found, _ := store.LatestAttempt(endorseRequest(backend, -1).ActionKey)
	if !found || stored.State != StateFailed {
		t.Fatalf("expected failed stored attempt, found=%v state=%s", found, stored.State)
	}
}

func TestSubmitRejectsConcurrentSameAction(t *testing.T) {
	backend := newFakeBackend()
	backend.receiptDelay = 80 * time.Millisecond

	pipeline := newTestPipeline(backend, &memStore{}, nil)
	req := endorseRequest(backend, -1)

	done := make(chan error, 1)
	go func() {
		_, err := pipeline.Submit(context.Background(), req)
		done <- err
	}()
	time.Sleep(20 * time.Millisecond)

	_, err := pipeline.Submit(context.Background(), endorseRequest(backend, -1))
	if clierr.KindOf(err) != clierr.KindBlocked {
		t.Fatalf("expected BLOCKED for a concurrent submission, got %v", err)
	}
	if err := <-done; err != nil {
		t.Fatalf("first submission should succeed: %v", err)
	}
}

func TestRetryOfConfirmedAttemptShortCircuits(t *testing.T) {
	backend := newFakeBackend()
	store := &memStore{}
	req := endorseRequest(backend, -1)

	prior := SubmissionAttempt{
		AttemptID: "att_prior",
		ActionKey: req.ActionKey,
		State:     StateConfirmed,
		Result:    &DomainResult{ActionKey: req.ActionKey, TxHash: "0xabc", FeePaid: "10"},
	}
	if err := store.SaveAttempt(prior); err != nil {
		t.Fatalf("seed store: %v", err)
	}

	result, err := newTestPipeline(backend, store, nil).Retry(context.Background(), req)
	if err != nil {
		t.Fatalf("Retry failed: %v", err)
	}
	if result.TxHash != "0xabc" {
		t.Fatalf("expected the confirmed result back, got %+v", result)
	}
	if backend.sentTotal() != 0 {
		t.Fatalf("retry of a confirmed action must not broadcast, got %d", backend.sentTotal())
	}
}

func TestRetryResolvesTimedOutAttemptFromReceipt(t *testing.T) {
	backend := newFakeBackend()
	store := &memStore{}
	req := endorseRequest(backend, -1)
	versionID := common.HexToHash("0x1111111111111111111111111111111111111111111111111111111111111111")
	backend.actionLogs = append(backend.actionLogs, endorsedLog(versionID, 10))

	// Broadcast once to mine a receipt the timed-out attempt can point at.
	executor := NewExecutor(backend, &fakeSigner{addr: testOwnerAddr}, nil, nil, fastExecuteOptions())
	attempt := NewAttempt(req)
	if err := transition(attempt, StateSimulating, nil); err != nil {
		t.Fatal(err)
	}
	if err := transition(attempt, StateSubmitting, nil); err != nil {
		t.Fatal(err)
	}
	if _, err := executor.Execute(context.Background(), req, 150_000, attempt, nil); err != nil {
		t.Fatalf("seed submission failed: %v", err)
	}

	timedOut := SubmissionAttempt{
		AttemptID: "att_timeout",
		ActionKey: req.ActionKey,
		State:     StateTimedOut,
		TxHash:    attempt.TxHash,
		TimedOut:  true,
	}
	if err := store.SaveAttempt(timedOut); err != nil {
		t.Fatalf("seed store: %v", err)
	}

	result, err := newTestPipeline(backend, store, nil).Retry(context.Background(), req)
	if err != nil {
		t.Fatalf("Retry failed: %v", err)
	}
	if result.FeePaid != "10" || result.Event != "VersionEndorsed" {
		t.Fatalf("expected the late receipt to be interpreted, got %+v", result)
	}
	if backend.sentTotal() != 1 {
		t.Fatalf("retry must not re-broadcast when the receipt landed, got %d", backend.sentTotal())
	}

	stored, found, _ := store.LatestAttempt(req.ActionKey)
	if !found || stored.State != StateConfirmed {
		t.Fatalf("timed-out attempt should be finalized, found=%v state=%s", found, stored.State)
	}
}

func TestRetryWithoutPriorRunsFullPipeline(t *testing.T) {
	backend := newFakeBackend()
	versionID := common.HexToHash("0x1111111111111111111111111111111111111111111111111111111111111111")
	backend.actionLogs = append(backend.actionLogs, endorsedLog(versionID, 10))

	result, err := newTestPipeline(backend, &memStore{}, nil).Retry(context.Background(), endorseRequest(backend, -1))
	if err != nil {
		t.Fatalf("Retry failed: %v", err)
	}
	if result.TxHash == "" {
		t.Fatal("expected a fresh submission result")
	}
}
