package engine

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum"
	clierr "github.com/registrylabs/registry-cli/internal/errors"
)

// Guard answers "does the action's effect already hold on-chain?" before any
// payment or submission work starts.
type Guard struct {
	backend Backend
	store   AttemptStore
}

func NewGuard(backend Backend, store AttemptStore) *Guard {
	return &Guard{backend: backend, store: store}
}

// Check consults the registry's status view for the request. When the effect
// already holds it also looks up the stored result of the attempt that
// produced it, so the caller gets the original receipt data when available.
func (g *Guard) Check(ctx context.Context, req *ActionRequest) (IdempotencyResult, error) {
	if len(req.StatusData) == 0 {
		return IdempotencyResult{}, nil
	}
	out, err := g.backend.CallContract(ctx, ethereum.CallMsg{To: &req.Target, Data: req.StatusData}, nil)
	if err != nil {
		return IdempotencyResult{}, clierr.Wrap(clierr.KindUnavailable, "read action status", err)
	}
	if new(big.Int).SetBytes(out).Sign() == 0 {
		return IdempotencyResult{}, nil
	}

	result := &DomainResult{ActionKey: req.ActionKey, AlreadySatisfied: true}
	if g.store != nil {
		if prior, ok, err := g.store.LatestAttempt(req.ActionKey); err == nil && ok && prior.Result != nil {
			stored := *prior.Result
			stored.AlreadySatisfied = true
			result = &stored
		}
	}
	return IdempotencyResult{AlreadySatisfied: true, EquivalentResult: result}, nil
}
