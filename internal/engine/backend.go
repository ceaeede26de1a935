package engine

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	clierr "github.com/registrylabs/registry-cli/internal/errors"
	"github.com/registrylabs/registry-cli/internal/signer"
)

// Backend is the subset of an Ethereum RPC client the engine needs.
// *ethclient.Client satisfies it; tests use an in-memory fake.
type Backend interface {
	ChainID(ctx context.Context) (*big.Int, error)
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	SuggestGasTipCap(ctx context.Context) (*big.Int, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

// signerNonceLocks serializes nonce acquisition and broadcast per
// signer+chain, so concurrent action families cannot race the same nonce.
var signerNonceLocks sync.Map

func acquireSignerNonceLock(chainID *big.Int, addr common.Address) (unlock func()) {
	key := fmt.Sprintf("%s|%s", chainID.String(), addr.Hex())
	actual, _ := signerNonceLocks.LoadOrStore(key, &sync.Mutex{})
	mu := actual.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

// submitCall builds, signs and broadcasts one EIP-1559 call to the target.
// A zero gasLimit asks the node for an estimate without padding; callers
// that want padded estimates resolve the limit beforehand.
func submitCall(ctx context.Context, backend Backend, txSigner signer.Signer, to common.Address, data []byte, gasLimit uint64) (*types.Transaction, error) {
	chainID, err := backend.ChainID(ctx)
	if err != nil {
		return nil, clierr.Wrap(clierr.KindUnavailable, "read chain id", err)
	}
	msg := ethereum.CallMsg{From: txSigner.Address(), To: &to, Data: data}
	if gasLimit == 0 {
		gasLimit, err = backend.EstimateGas(ctx, msg)
		if err != nil {
			return nil, err
		}
	}
	tipCap, err := resolveTipCap(ctx, backend)
	if err != nil {
		return nil, err
	}
	header, err := backend.HeaderByNumber(ctx, nil)
	if err != nil {
		return nil, clierr.Wrap(clierr.KindUnavailable, "fetch latest header", err)
	}
	baseFee := header.BaseFee
	if baseFee == nil {
		baseFee = big.NewInt(1_000_000_000)
	}
	feeCap := new(big.Int).Mul(baseFee, big.NewInt(2))
	feeCap.Add(feeCap, tipCap)

	unlock := acquireSignerNonceLock(chainID, txSigner.Address())
	defer unlock()

	nonce, err := backend.PendingNonceAt(ctx, txSigner.Address())
	if err != nil {
		return nil, clierr.Wrap(clierr.KindUnavailable, "fetch nonce", err)
	}
	tx := types.NewTx(&types.DynamicFeeTx{
		ChainID:   chainID,
		Nonce:     nonce,
		GasTipCap: tipCap,
		GasFeeCap: feeCap,
		Gas:       gasLimit,
		To:        &to,
		Value:     big.NewInt(0),
		Data:      data,
	})
	signed, err := txSigner.SignTx(chainID, tx)
	if err != nil {
		return nil, err
	}
	if err := backend.SendTransaction(ctx, signed); err != nil {
		return nil, err
	}
	return signed, nil
}

func resolveTipCap(ctx context.Context, backend Backend) (*big.Int, error) {
	tipCap, err := backend.SuggestGasTipCap(ctx)
	if err != nil {
		return big.NewInt(2_000_000_000), nil // 2 gwei fallback
	}
	return tipCap, nil
}

// waitReceipt polls for the receipt of txHash until it appears or the wait
// budget runs out. Transient polling failures are ignored until the budget
// is exhausted.
func waitReceipt(ctx context.Context, backend Backend, txHash common.Hash, pollInterval, timeout time.Duration) (*types.Receipt, error) {
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		receipt, err := backend.TransactionReceipt(waitCtx, txHash)
		if err == nil && receipt != nil {
			return receipt, nil
		}
		if err != nil && !errors.Is(err, ethereum.NotFound) {
			// Ignore transient RPC polling failures until timeout.
		}
		select {
		case <-waitCtx.Done():
			return nil, clierr.Wrap(clierr.KindUnavailable, "timed out waiting for receipt", waitCtx.Err())
		case <-ticker.C:
		}
	}
}
