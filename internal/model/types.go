package model

import "time"

const EnvelopeVersion = "v1"

// Envelope is the stable output contract of every command. Scripts key off
// version, success and error.type; everything else may grow.
type Envelope struct {
	Version  string       `json:"version"`
	Success  bool         `json:"success"`
	Data     any          `json:"data,omitempty"`
	Error    *ErrorBody   `json:"error"`
	Warnings []string     `json:"warnings,omitempty"`
	Meta     EnvelopeMeta `json:"meta"`
}

type ErrorBody struct {
	Code      int    `json:"code"`
	Type      string `json:"type"`
	Message   string `json:"message"`
	Details   string `json:"details,omitempty"`
	Retryable bool   `json:"retryable"`
}

type EnvelopeMeta struct {
	RequestID string    `json:"request_id"`
	Timestamp time.Time `json:"timestamp"`
	Command   string    `json:"command"`
	ChainID   string    `json:"chain_id,omitempty"`
}

// ActionOutcome is the data payload of endorse, mint and retry.
type ActionOutcome struct {
	ActionKey        string            `json:"action_key"`
	TxHash           string            `json:"tx_hash,omitempty"`
	BlockNumber      uint64            `json:"block_number,omitempty"`
	Event            string            `json:"event,omitempty"`
	Fields           map[string]string `json:"fields,omitempty"`
	FeePaidBaseUnits string            `json:"fee_paid_base_units,omitempty"`
	FeePaidDecimal   string            `json:"fee_paid_decimal,omitempty"`
	AlreadySatisfied bool              `json:"already_satisfied,omitempty"`
	AttemptState     string            `json:"attempt_state,omitempty"`
}

// AllowanceInfo is the data payload of allowance show/ensure.
type AllowanceInfo struct {
	Owner              string `json:"owner"`
	Spender            string `json:"spender"`
	Token              string `json:"token"`
	AllowanceBaseUnits string `json:"allowance_base_units"`
	AllowanceDecimal   string `json:"allowance_decimal,omitempty"`
	RequiredBaseUnits  string `json:"required_base_units,omitempty"`
	RequiredDecimal    string `json:"required_decimal,omitempty"`
	Sufficient         bool   `json:"sufficient"`
}

// AttemptInfo is the data payload of attempts list/show.
type AttemptInfo struct {
	AttemptID   string         `json:"attempt_id"`
	ActionKey   string         `json:"action_key"`
	State       string         `json:"state"`
	TxHash      string         `json:"tx_hash,omitempty"`
	TimedOut    bool           `json:"timed_out"`
	Error       string         `json:"error,omitempty"`
	ErrorKind   string         `json:"error_kind,omitempty"`
	CreatedAt   string         `json:"created_at"`
	UpdatedAt   string         `json:"updated_at"`
	SubmittedAt string         `json:"submitted_at,omitempty"`
	Result      *ActionOutcome `json:"result,omitempty"`
}

// FeeInfo is the data payload of fee queries.
type FeeInfo struct {
	Action           string `json:"action"`
	FeeBaseUnits     string `json:"fee_base_units"`
	FeeDecimal       string `json:"fee_decimal,omitempty"`
	Token            string `json:"token"`
	TokenDecimals    int    `json:"token_decimals,omitempty"`
	QuotedAtBlock    uint64 `json:"quoted_at_block,omitempty"`
	RegistryContract string `json:"registry_contract"`
}
