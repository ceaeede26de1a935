// Package classify maps heterogeneous raw failures (provider errors, decoded
// contract reverts, engine timeouts) onto the closed error taxonomy. It is
// the single source of truth for that mapping: nothing outside this package
// pattern-matches raw provider messages.
package classify

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	clierr "github.com/registrylabs/registry-cli/internal/errors"
	"github.com/registrylabs/registry-cli/internal/registry"
)

// Solidity builtin revert selectors.
var (
	errorStringSelector = common.FromHex("0x08c379a0") // Error(string)
	panicSelector       = common.FromHex("0x4e487b71") // Panic(uint256)
)

var registryABI = mustABI(registry.VersionRegistryABI)

// kindByContractError maps the registry's named custom errors to taxonomy
// kinds. Contract-level errors are the most specific signal available and
// are tried first.
var kindByContractError = map[string]clierr.Kind{
	"InsufficientAllowance": clierr.KindInsufficientAllowance,
	"InsufficientBalance":   clierr.KindInsufficientBalance,
	"AlreadyEndorsed":       clierr.KindAlreadySatisfied,
	"AlreadyMinted":         clierr.KindAlreadySatisfied,
	"InvalidTarget":         clierr.KindInvalidTarget,
}

// matcher inspects a raw error and its flattened message. Matchers are
// independent and tried in a fixed priority order.
type matcher func(err error, msg string) (*clierr.Error, bool)

var chain = []matcher{
	matchAlreadyClassified,
	matchContractError,
	matchProviderCode,
	matchMessagePattern,
}

// Classify normalizes any raw failure into a classified error. The original
// error is always preserved in the cause chain; the raw text lands in
// Details so the display message stays short.
func Classify(err error) *clierr.Error {
	if err == nil {
		return nil
	}
	msg := strings.ToLower(err.Error())
	for _, match := range chain {
		if classified, ok := match(err, msg); ok {
			return classified
		}
	}
	return clierr.Wrap(clierr.KindUnknown, "operation failed", err).WithDetails(err.Error())
}

func matchAlreadyClassified(err error, _ string) (*clierr.Error, bool) {
	if typed, ok := clierr.As(err); ok {
		return typed, true
	}
	return nil, false
}

// dataError is the go-ethereum rpc error shape that carries revert data.
type dataError interface {
	Error() string
	ErrorData() interface{}
}

func matchContractError(err error, _ string) (*clierr.Error, bool) {
	data := revertDataFromError(err)
	if len(data) < 4 {
		return nil, false
	}
	if name, detail, ok := decodeNamedError(data); ok {
		kind, known := kindByContractError[name]
		if !known {
			kind = clierr.KindSimulationReverted
		}
		return clierr.Wrap(kind, fmt.Sprintf("contract rejected call: %s", name), err).WithDetails(detail), true
	}
	if reason, ok := decodeErrorString(data); ok {
		if classified, matched := classifyReason(reason, err); matched {
			return classified, true
		}
		return clierr.Wrap(clierr.KindSimulationReverted, fmt.Sprintf("call reverted: %s", reason), err).WithDetails(reason), true
	}
	if bytes.Equal(data[:4], panicSelector) {
		return clierr.Wrap(clierr.KindSimulationReverted, "call reverted with a panic", err).WithDetails("0x" + common.Bytes2Hex(data)), true
	}
	// Unrecognized custom error selector: still a revert, keep the selector
	// around for diagnostics.
	return clierr.Wrap(clierr.KindSimulationReverted, "call reverted with an unrecognized error", err).
		WithDetails("selector 0x" + common.Bytes2Hex(data[:4])), true
}

// rpcError matches go-ethereum's rpc.Error and EIP-1193 style coded errors.
type rpcError interface {
	Error() string
	ErrorCode() int
}

func matchProviderCode(err error, _ string) (*clierr.Error, bool) {
	var coded rpcError
	if !errors.As(err, &coded) {
		return nil, false
	}
	switch coded.ErrorCode() {
	case 4001: // EIP-1193 userRejectedRequest
		return clierr.Wrap(clierr.KindUserRejected, "signature request declined", err).WithDetails(err.Error()), true
	case 4100, 4200:
		return clierr.Wrap(clierr.KindUserRejected, "wallet refused the request", err).WithDetails(err.Error()), true
	case -32000:
		// Generic server error: fall through to message patterns, which can
		// distinguish "insufficient funds" from transport noise.
		return nil, false
	}
	return nil, false
}

var messagePatterns = []struct {
	kind     clierr.Kind
	message  string
	patterns []string
}{
	{clierr.KindUserRejected, "signature request declined", []string{
		"user rejected", "user denied", "rejected by user", "action_rejected", "request rejected",
	}},
	{clierr.KindInsufficientBalance, "insufficient token balance", []string{
		"insufficient funds", "insufficient balance", "transfer amount exceeds balance",
	}},
	{clierr.KindInsufficientAllowance, "spending allowance too low", []string{
		"insufficient allowance", "exceeds allowance",
	}},
	{clierr.KindSimulationReverted, "call would revert", []string{
		"execution reverted", "always failing transaction", "gas required exceeds allowance",
	}},
	{clierr.KindUnavailable, "provider unavailable", []string{
		"connection refused", "i/o timeout", "context deadline exceeded", "nonce too low",
		"replacement transaction underpriced", "already known", "503", "502",
	}},
}

func matchMessagePattern(err error, msg string) (*clierr.Error, bool) {
	for _, entry := range messagePatterns {
		for _, pattern := range entry.patterns {
			if strings.Contains(msg, pattern) {
				return clierr.Wrap(entry.kind, entry.message, err).WithDetails(err.Error()), true
			}
		}
	}
	return nil, false
}

func classifyReason(reason string, cause error) (*clierr.Error, bool) {
	lower := strings.ToLower(reason)
	for _, entry := range messagePatterns {
		for _, pattern := range entry.patterns {
			if strings.Contains(lower, pattern) {
				return clierr.Wrap(entry.kind, entry.message, cause).WithDetails(reason), true
			}
		}
	}
	return nil, false
}

// revertDataFromError digs the raw revert bytes out of an rpc error, if the
// provider attached them.
func revertDataFromError(err error) []byte {
	var withData dataError
	if !errors.As(err, &withData) {
		return nil
	}
	switch v := withData.ErrorData().(type) {
	case string:
		return common.FromHex(v)
	case []byte:
		return v
	default:
		return nil
	}
}

// decodeNamedError matches the data against the registry's custom errors and
// renders the decoded arguments for diagnostics.
func decodeNamedError(data []byte) (name, detail string, ok bool) {
	for errName, abiErr := range registryABI.Errors {
		if len(abiErr.ID) < 4 || !bytes.Equal(data[:4], abiErr.ID[:4]) {
			continue
		}
		args, unpackErr := abiErr.Inputs.Unpack(data[4:])
		if unpackErr != nil {
			return errName, "0x" + common.Bytes2Hex(data), true
		}
		parts := make([]string, 0, len(args))
		for i, arg := range args {
			label := abiErr.Inputs[i].Name
			if label == "" {
				label = fmt.Sprintf("arg%d", i)
			}
			parts = append(parts, fmt.Sprintf("%s=%v", label, arg))
		}
		return errName, fmt.Sprintf("%s(%s)", errName, strings.Join(parts, ", ")), true
	}
	return "", "", false
}

// decodeErrorString decodes the standard Error(string) revert payload.
func decodeErrorString(data []byte) (string, bool) {
	if len(data) < 4 || !bytes.Equal(data[:4], errorStringSelector) {
		return "", false
	}
	stringTy, err := abi.NewType("string", "", nil)
	if err != nil {
		return "", false
	}
	args := abi.Arguments{{Type: stringTy}}
	decoded, err := args.Unpack(data[4:])
	if err != nil || len(decoded) != 1 {
		return "", false
	}
	reason, ok := decoded[0].(string)
	return reason, ok
}

func mustABI(raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic(err)
	}
	return parsed
}
