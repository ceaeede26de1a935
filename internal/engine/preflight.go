package engine

import (
	"context"

	"github.com/ethereum/go-ethereum"
	"github.com/registrylabs/registry-cli/internal/classify"
	"github.com/registrylabs/registry-cli/internal/signer"
)

const (
	gasPadNumerator   = 120
	gasPadDenominator = 100
	gasPadFlat        = 10_000
)

// Simulator runs the action's calldata as a read-only call before spending
// real gas, and turns a raw node estimate into a padded gas limit.
type Simulator struct {
	backend  Backend
	txSigner signer.Signer
}

func NewSimulator(backend Backend, txSigner signer.Signer) *Simulator {
	return &Simulator{backend: backend, txSigner: txSigner}
}

// Simulate executes the call against latest state without broadcasting.
// Failures are classified so a revert surfaces the same taxonomy a live
// submission would.
func (s *Simulator) Simulate(ctx context.Context, req *ActionRequest) error {
	msg := ethereum.CallMsg{From: s.txSigner.Address(), To: &req.Target, Data: req.Data}
	if _, err := s.backend.CallContract(ctx, msg, nil); err != nil {
		return classify.Classify(err)
	}
	return nil
}

// Estimate returns a padded gas limit for the call, or zero when estimation
// fails. Zero tells the submitter to let the node pick a limit at send time
// rather than blocking the action on a flaky estimator.
func (s *Simulator) Estimate(ctx context.Context, req *ActionRequest) uint64 {
	msg := ethereum.CallMsg{From: s.txSigner.Address(), To: &req.Target, Data: req.Data}
	raw, err := s.backend.EstimateGas(ctx, msg)
	if err != nil {
		return 0
	}
	return padGas(raw)
}

func padGas(raw uint64) uint64 {
	return raw*gasPadNumerator/gasPadDenominator + gasPadFlat
}
