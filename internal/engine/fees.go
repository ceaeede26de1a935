package engine

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	clierr "github.com/registrylabs/registry-cli/internal/errors"
)

// RegistryFee reads the current fee for a registry method (endorsementFee or
// mintFee). The quote is never cached; callers wrap this in a
// RequiredAmountFn so every negotiation point sees a fresh value.
func RegistryFee(ctx context.Context, backend Backend, contract common.Address, feeMethod string) (*big.Int, error) {
	data, err := registryABI.Pack(feeMethod)
	if err != nil {
		return nil, clierr.Wrap(clierr.KindInternal, "pack fee call", err)
	}
	out, err := backend.CallContract(ctx, ethereum.CallMsg{To: &contract, Data: data}, nil)
	if err != nil {
		return nil, clierr.Wrap(clierr.KindUnavailable, "read registry fee", err)
	}
	return new(big.Int).SetBytes(out), nil
}

// RegistryCreditToken reads the credit token address the registry charges in.
func RegistryCreditToken(ctx context.Context, backend Backend, contract common.Address) (common.Address, error) {
	data, err := registryABI.Pack("creditToken")
	if err != nil {
		return common.Address{}, clierr.Wrap(clierr.KindInternal, "pack creditToken call", err)
	}
	out, err := backend.CallContract(ctx, ethereum.CallMsg{To: &contract, Data: data}, nil)
	if err != nil {
		return common.Address{}, clierr.Wrap(clierr.KindUnavailable, "read credit token address", err)
	}
	return common.BytesToAddress(out), nil
}

// PackEndorseVersion builds the endorseVersion calldata.
func PackEndorseVersion(versionID common.Hash, proof []byte, publicInputs []*big.Int) ([]byte, error) {
	data, err := registryABI.Pack("endorseVersion", versionID, proof, publicInputs)
	if err != nil {
		return nil, clierr.Wrap(clierr.KindInternal, "pack endorseVersion", err)
	}
	return data, nil
}

// PackMintAsset builds the mintAsset calldata.
func PackMintAsset(assetID common.Hash, uri string, proof []byte, publicInputs []*big.Int) ([]byte, error) {
	data, err := registryABI.Pack("mintAsset", assetID, uri, proof, publicInputs)
	if err != nil {
		return nil, clierr.Wrap(clierr.KindInternal, "pack mintAsset", err)
	}
	return data, nil
}

// PackIsEndorsed builds the endorsement status view calldata.
func PackIsEndorsed(endorser common.Address, versionID common.Hash) ([]byte, error) {
	data, err := registryABI.Pack("isEndorsed", endorser, versionID)
	if err != nil {
		return nil, clierr.Wrap(clierr.KindInternal, "pack isEndorsed", err)
	}
	return data, nil
}

// PackAssetMinted builds the mint status view calldata.
func PackAssetMinted(assetID common.Hash) ([]byte, error) {
	data, err := registryABI.Pack("assetMinted", assetID)
	if err != nil {
		return nil, clierr.Wrap(clierr.KindInternal, "pack assetMinted", err)
	}
	return data, nil
}
