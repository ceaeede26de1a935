package app

import (
	"context"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/registrylabs/registry-cli/internal/engine"
	clierr "github.com/registrylabs/registry-cli/internal/errors"
	"github.com/registrylabs/registry-cli/internal/id"
	"github.com/registrylabs/registry-cli/internal/registry"
	"github.com/registrylabs/registry-cli/internal/signer"
)

// chainSession bundles everything a chain-touching command needs: the dialed
// backend, resolved contract addresses and (optionally) the signer.
type chainSession struct {
	chain    id.Chain
	backend  engine.Backend
	signer   signer.Signer
	registry common.Address
	token    common.Address
	close    func()
}

func (s *runtimeState) openSession(ctx context.Context, needSigner bool) (*chainSession, error) {
	chain, err := id.ParseChain(s.settings.Chain)
	if err != nil {
		return nil, err
	}
	rpcURL, err := registry.ResolveRPCURL(s.settings.RPCURL, chain.EVMChainID)
	if err != nil {
		return nil, clierr.Wrap(clierr.KindUsage, "resolve rpc endpoint", err)
	}
	backend, closeFn, err := s.dialBackend(ctx, rpcURL)
	if err != nil {
		return nil, err
	}

	session := &chainSession{chain: chain, backend: backend, close: closeFn}

	registryAddr, ok := registry.ResolveRegistry(s.settings.RegistryAddr, chain.EVMChainID)
	if !ok {
		session.shutdown()
		return nil, clierr.New(clierr.KindUsage, "no registry deployment for this chain; provide --registry-address")
	}
	if !id.ValidAddress(registryAddr) {
		session.shutdown()
		return nil, clierr.New(clierr.KindUsage, "registry address is not a valid EVM address")
	}
	session.registry = common.HexToAddress(registryAddr)

	tokenAddr, ok := registry.ResolveCreditToken(s.settings.TokenAddr, chain.EVMChainID)
	if ok && id.ValidAddress(tokenAddr) {
		session.token = common.HexToAddress(tokenAddr)
	} else {
		// Unknown deployments publish their own token address.
		token, err := engine.RegistryCreditToken(ctx, backend, session.registry)
		if err != nil {
			session.shutdown()
			return nil, err
		}
		session.token = token
	}

	if needSigner {
		txSigner, err := s.loadSigner(s.settings.KeySource)
		if err != nil {
			if _, ok := clierr.As(err); !ok {
				err = clierr.Wrap(clierr.KindUsage, "load signing key", err)
			}
			session.shutdown()
			return nil, err
		}
		session.signer = txSigner
	}
	return session, nil
}

func (c *chainSession) shutdown() {
	if c.close != nil {
		c.close()
	}
}

// feeFn returns a RequiredAmountFn quoting the named fee fresh on each call.
func (c *chainSession) feeFn(feeMethod string) engine.RequiredAmountFn {
	return func(ctx context.Context) (*big.Int, error) {
		return engine.RegistryFee(ctx, c.backend, c.registry, feeMethod)
	}
}

func (s *runtimeState) newPipeline(session *chainSession, attemptStore engine.AttemptStore) *engine.Pipeline {
	negotiate := engine.DefaultNegotiateOptions()
	negotiate.PollAttempts = s.settings.PollAttempts
	execute := engine.DefaultExecuteOptions()
	execute.WalletTimeout = s.settings.WalletTimeout
	return engine.NewPipeline(session.backend, session.signer, attemptStore, nil, negotiate, execute)
}

func actionKey(method string, chain id.Chain, payer common.Address, targetID string) string {
	return strings.Join([]string{method, chain.CAIP2, strings.ToLower(payer.Hex()), strings.ToLower(targetID)}, "|")
}

func feeMethodFor(method string) string {
	if method == "mintAsset" {
		return "mintFee"
	}
	return "endorsementFee"
}

func snapshotFor(method string, session *chainSession, data, statusData []byte) engine.RequestSnapshot {
	return engine.RequestSnapshot{
		Method:     method,
		Target:     session.registry.Hex(),
		Data:       "0x" + common.Bytes2Hex(data),
		StatusData: "0x" + common.Bytes2Hex(statusData),
		Token:      session.token.Hex(),
		Spender:    session.registry.Hex(),
		ChainID:    session.chain.EVMChainID,
	}
}
