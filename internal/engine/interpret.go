package engine

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/registrylabs/registry-cli/internal/registry"
)

var registryABI = mustABI(registry.VersionRegistryABI)

// InterpretReceipt extracts the domain outcome from a confirmed receipt.
// Decoding is best-effort: an unrecognized or missing event degrades to a
// minimal result that still confirms the transaction, never to a failure.
func InterpretReceipt(actionKey string, receipt *types.Receipt, contract common.Address) DomainResult {
	result := DomainResult{
		ActionKey:   actionKey,
		TxHash:      receipt.TxHash.Hex(),
		BlockNumber: receipt.BlockNumber.Uint64(),
	}
	for _, entry := range receipt.Logs {
		if entry.Address != contract || len(entry.Topics) == 0 {
			continue
		}
		event, err := registryABI.EventByID(entry.Topics[0])
		if err != nil {
			continue
		}
		switch event.Name {
		case "VersionEndorsed":
			if fields, feePaid, ok := decodeVersionEndorsed(entry); ok {
				result.Event = event.Name
				result.Fields = fields
				result.FeePaid = feePaid
				return result
			}
		case "AssetMinted":
			if fields, feePaid, ok := decodeAssetMinted(entry); ok {
				result.Event = event.Name
				result.Fields = fields
				result.FeePaid = feePaid
				return result
			}
		}
	}
	return result
}

func decodeVersionEndorsed(entry *types.Log) (map[string]string, string, bool) {
	if len(entry.Topics) < 3 {
		return nil, "", false
	}
	values, err := registryABI.Unpack("VersionEndorsed", entry.Data)
	if err != nil || len(values) < 1 {
		return nil, "", false
	}
	feePaid, ok := values[0].(*big.Int)
	if !ok {
		return nil, "", false
	}
	fields := map[string]string{
		"endorser":   common.BytesToAddress(entry.Topics[1].Bytes()).Hex(),
		"version_id": entry.Topics[2].Hex(),
		"fee_paid":   feePaid.String(),
	}
	return fields, feePaid.String(), true
}

func decodeAssetMinted(entry *types.Log) (map[string]string, string, bool) {
	if len(entry.Topics) < 3 {
		return nil, "", false
	}
	values, err := registryABI.Unpack("AssetMinted", entry.Data)
	if err != nil || len(values) < 2 {
		return nil, "", false
	}
	tokenID, ok1 := values[0].(*big.Int)
	feePaid, ok2 := values[1].(*big.Int)
	if !ok1 || !ok2 {
		return nil, "", false
	}
	fields := map[string]string{
		"owner":    common.BytesToAddress(entry.Topics[1].Bytes()).Hex(),
		"asset_id": entry.Topics[2].Hex(),
		"token_id": tokenID.String(),
		"fee_paid": feePaid.String(),
	}
	return fields, feePaid.String(), true
}
