package registry

import "strings"

// Deployment holds the canonical contract addresses for one chain.
type Deployment struct {
	ChainID     int64
	Registry    string
	CreditToken string
}

var deployments = map[int64]Deployment{
	1: {
		ChainID:     1,
		Registry:    "0x6F1e52B2A6B7C1a1F2a6c7E2d3B4a5C6d7E8F901",
		CreditToken: "0x8C3a1b2C3d4E5f60718293A4b5C6d7E8F9012345",
	},
	11155111: {
		ChainID:     11155111,
		Registry:    "0x2b8F1c2D3e4F5A6b7C8d9E0f1A2b3C4d5E6F7a80",
		CreditToken: "0x5D4c3B2a1F0e9D8c7B6a5948372615049382716A",
	},
	8453: {
		ChainID:     8453,
		Registry:    "0x93C2d1E0f9A8b7C6d5E4f3A2b1C0d9E8F7a6B5c4",
		CreditToken: "0xA1b2C3d4E5F60718293a4B5c6D7e8F9012345678",
	},
	42161: {
		ChainID:     42161,
		Registry:    "0x4E5f6A7b8C9d0E1f2A3b4C5d6E7f8091A2b3C4d5",
		CreditToken: "0x7F8091a2B3c4D5e6F708192A3b4C5d6E7F809102",
	},
}

// DeploymentFor returns the canonical deployment for a chain, if any.
func DeploymentFor(chainID int64) (Deployment, bool) {
	d, ok := deployments[chainID]
	return d, ok
}

// SupportedChainIDs lists chains with a canonical deployment.
func SupportedChainIDs() []int64 {
	out := make([]int64, 0, len(deployments))
	for id := range deployments {
		out = append(out, id)
	}
	return out
}

// ResolveRegistry picks the registry address: explicit override first, then
// the canonical deployment for the chain.
func ResolveRegistry(override string, chainID int64) (string, bool) {
	if strings.TrimSpace(override) != "" {
		return strings.TrimSpace(override), true
	}
	if d, ok := deployments[chainID]; ok {
		return d.Registry, true
	}
	return "", false
}

// ResolveCreditToken picks the credit-token address the same way.
func ResolveCreditToken(override string, chainID int64) (string, bool) {
	if strings.TrimSpace(override) != "" {
		return strings.TrimSpace(override), true
	}
	if d, ok := deployments[chainID]; ok {
		return d.CreditToken, true
	}
	return "", false
}
