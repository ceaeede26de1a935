package engine

import (
	"context"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	clierr "github.com/registrylabs/registry-cli/internal/errors"
	"github.com/registrylabs/registry-cli/internal/registry"
)

var erc20ABI = mustABI(registry.ERC20MinimalABI)

// Token reads and mutates the credit token through a Backend. Allowance and
// balance are always read fresh; nothing here caches chain state.
type Token struct {
	backend Backend
	addr    common.Address
}

func NewToken(backend Backend, addr common.Address) *Token {
	return &Token{backend: backend, addr: addr}
}

func (t *Token) Address() common.Address { return t.addr }

func (t *Token) Allowance(ctx context.Context, owner, spender common.Address) (*big.Int, error) {
	out, err := t.view(ctx, owner, "allowance", owner, spender)
	if err != nil {
		return nil, clierr.Wrap(clierr.KindUnavailable, "read allowance", err)
	}
	return new(big.Int).SetBytes(out), nil
}

func (t *Token) BalanceOf(ctx context.Context, owner common.Address) (*big.Int, error) {
	out, err := t.view(ctx, owner, "balanceOf", owner)
	if err != nil {
		return nil, clierr.Wrap(clierr.KindUnavailable, "read balance", err)
	}
	return new(big.Int).SetBytes(out), nil
}

func (t *Token) Decimals(ctx context.Context) (int, error) {
	out, err := t.view(ctx, common.Address{}, "decimals")
	if err != nil {
		return 0, clierr.Wrap(clierr.KindUnavailable, "read token decimals", err)
	}
	return int(new(big.Int).SetBytes(out).Int64()), nil
}

func (t *Token) PackApprove(spender common.Address, amount *big.Int) []byte {
	data, err := erc20ABI.Pack("approve", spender, amount)
	if err != nil {
		panic(err) // static ABI, cannot fail
	}
	return data
}

func (t *Token) PackIncreaseAllowance(spender common.Address, delta *big.Int) []byte {
	data, err := erc20ABI.Pack("increaseAllowance", spender, delta)
	if err != nil {
		panic(err)
	}
	return data
}

func (t *Token) view(ctx context.Context, from common.Address, method string, args ...any) ([]byte, error) {
	data, err := erc20ABI.Pack(method, args...)
	if err != nil {
		return nil, err
	}
	return t.backend.CallContract(ctx, ethereum.CallMsg{From: from, To: &t.addr, Data: data}, nil)
}

func mustABI(raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic(err)
	}
	return parsed
}
