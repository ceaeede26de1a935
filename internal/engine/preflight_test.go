package engine

import (
	"context"
	"testing"

	clierr "github.com/registrylabs/registry-cli/internal/errors"
)

func TestSimulateClassifiesRevert(t *testing.T) {
	backend := newFakeBackend()
	backend.simulateErr = errContains("execution reverted: version not registered")

	s := NewSimulator(backend, &fakeSigner{addr: testOwnerAddr})
	err := s.Simulate(context.Background(), endorseRequest(backend, -1))
	if clierr.KindOf(err) != clierr.KindSimulationReverted {
		t.Fatalf("expected SIMULATION_REVERTED, got %v", err)
	}
}

func TestSimulateSucceedsOnCleanCall(t *testing.T) {
	backend := newFakeBackend()
	s := NewSimulator(backend, &fakeSigner{addr: testOwnerAddr})
	if err := s.Simulate(context.Background(), endorseRequest(backend, -1)); err != nil {
		t.Fatalf("Simulate failed: %v", err)
	}
}

func TestEstimatePadsRawEstimate(t *testing.T) {
	backend := newFakeBackend()
	backend.estimateGas = 100_000

	s := NewSimulator(backend, &fakeSigner{addr: testOwnerAddr})
	if got := s.Estimate(context.Background(), endorseRequest(backend, -1)); got != 130_000 {
		t.Fatalf("expected 130000 padded gas, got %d", got)
	}
}

func TestEstimateFailureYieldsZero(t *testing.T) {
	backend := newFakeBackend()
	backend.estimateErr = errContains("estimator offline")

	s := NewSimulator(backend, &fakeSigner{addr: testOwnerAddr})
	if got := s.Estimate(context.Background(), endorseRequest(backend, -1)); got != 0 {
		t.Fatalf("estimation failure must not block submission, got %d", got)
	}
}
