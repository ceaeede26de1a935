package id

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	clierr "github.com/registrylabs/registry-cli/internal/errors"
)

var (
	eip155ChainPattern = regexp.MustCompile(`^eip155:[0-9]+$`)
	evmAddressPattern  = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)
	bytes32Pattern     = regexp.MustCompile(`^0x[0-9a-fA-F]{64}$`)
)

// Chain identifies an EVM chain by CAIP-2 identifier or a friendly slug.
type Chain struct {
	Name       string
	Slug       string
	CAIP2      string
	EVMChainID int64
}

var knownChains = []Chain{
	{Name: "Ethereum", Slug: "ethereum", CAIP2: "eip155:1", EVMChainID: 1},
	{Name: "Base", Slug: "base", CAIP2: "eip155:8453", EVMChainID: 8453},
	{Name: "Arbitrum One", Slug: "arbitrum", CAIP2: "eip155:42161", EVMChainID: 42161},
	{Name: "Sepolia", Slug: "sepolia", CAIP2: "eip155:11155111", EVMChainID: 11155111},
}

// ParseChain accepts a slug ("base"), a CAIP-2 id ("eip155:8453"), or a bare
// numeric chain id.
func ParseChain(input string) (Chain, error) {
	v := strings.ToLower(strings.TrimSpace(input))
	if v == "" {
		return Chain{}, clierr.New(clierr.KindUsage, "chain identifier is required")
	}
	for _, c := range knownChains {
		if c.Slug == v || strings.EqualFold(c.CAIP2, v) {
			return c, nil
		}
	}
	if eip155ChainPattern.MatchString(v) {
		raw := strings.TrimPrefix(v, "eip155:")
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			return Chain{}, clierr.New(clierr.KindUsage, fmt.Sprintf("invalid chain id %q", input))
		}
		return Chain{Name: v, Slug: v, CAIP2: v, EVMChainID: id}, nil
	}
	if id, err := strconv.ParseInt(v, 10, 64); err == nil && id > 0 {
		return Chain{Name: v, Slug: v, CAIP2: fmt.Sprintf("eip155:%d", id), EVMChainID: id}, nil
	}
	return Chain{}, clierr.New(clierr.KindUsage, fmt.Sprintf("unrecognized chain %q", input))
}

// ValidAddress reports whether v is a well-formed EVM address.
func ValidAddress(v string) bool {
	return evmAddressPattern.MatchString(strings.TrimSpace(v))
}

// ParseBytes32 validates a 32-byte hex identifier (version or asset id).
func ParseBytes32(input, label string) (string, error) {
	v := strings.TrimSpace(input)
	if v == "" {
		return "", clierr.New(clierr.KindUsage, fmt.Sprintf("%s is required", label))
	}
	if !bytes32Pattern.MatchString(v) {
		return "", clierr.New(clierr.KindUsage, fmt.Sprintf("%s must be a 0x-prefixed 32-byte hex string", label))
	}
	return strings.ToLower(v), nil
}
