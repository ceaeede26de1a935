package prover

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	clierr "github.com/registrylabs/registry-cli/internal/errors"
	"github.com/registrylabs/registry-cli/internal/httpx"
)

// Client fetches endorsement proofs from a proving service. The proof bytes
// and public inputs are opaque here; they are attached to the action calldata
// unchanged and verified on-chain.
type Client struct {
	baseURL string
	http    *httpx.Client
}

func New(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    httpx.New(30*time.Second, 2),
	}
}

// Proof is one proving-service response.
type Proof struct {
	Proof        []byte
	PublicInputs []string
}

type proofRequest struct {
	Subject   string `json:"subject"`
	VersionID string `json:"version_id"`
}

type proofResponse struct {
	Proof        string   `json:"proof"`
	PublicInputs []string `json:"public_inputs"`
}

// EndorsementProof requests a proof binding the subject address to the
// version being endorsed.
func (c *Client) EndorsementProof(ctx context.Context, subject, versionID string) (Proof, error) {
	if c.baseURL == "" {
		return Proof{}, clierr.New(clierr.KindUsage, "proving service URL is not configured")
	}
	body, err := json.Marshal(proofRequest{Subject: subject, VersionID: versionID})
	if err != nil {
		return Proof{}, clierr.Wrap(clierr.KindInternal, "encode proof request", err)
	}
	var resp proofResponse
	if _, err := httpx.DoBodyJSON(ctx, c.http, http.MethodPost, c.baseURL+"/v1/proofs/endorsement", body, nil, &resp); err != nil {
		return Proof{}, err
	}
	return decodeProof(resp)
}

// MintProof requests a proof authorizing the mint of the asset.
func (c *Client) MintProof(ctx context.Context, subject, assetID string) (Proof, error) {
	if c.baseURL == "" {
		return Proof{}, clierr.New(clierr.KindUsage, "proving service URL is not configured")
	}
	body, err := json.Marshal(proofRequest{Subject: subject, VersionID: assetID})
	if err != nil {
		return Proof{}, clierr.Wrap(clierr.KindInternal, "encode proof request", err)
	}
	var resp proofResponse
	if _, err := httpx.DoBodyJSON(ctx, c.http, http.MethodPost, c.baseURL+"/v1/proofs/mint", body, nil, &resp); err != nil {
		return Proof{}, err
	}
	return decodeProof(resp)
}

func decodeProof(resp proofResponse) (Proof, error) {
	raw := strings.TrimPrefix(resp.Proof, "0x")
	if raw == "" {
		return Proof{}, clierr.New(clierr.KindUnavailable, "proving service returned an empty proof")
	}
	proof, err := hex.DecodeString(raw)
	if err != nil {
		return Proof{}, clierr.Wrap(clierr.KindUnavailable, "decode proof bytes", err)
	}
	for i, input := range resp.PublicInputs {
		if !validPublicInput(input) {
			return Proof{}, clierr.New(clierr.KindUnavailable, fmt.Sprintf("invalid public input at index %d", i))
		}
	}
	return Proof{Proof: proof, PublicInputs: resp.PublicInputs}, nil
}

func validPublicInput(v string) bool {
	v = strings.TrimPrefix(v, "0x")
	if v == "" {
		return false
	}
	for _, r := range v {
		if !strings.ContainsRune("0123456789abcdefABCDEF", r) {
			return false
		}
	}
	return true
}
