package app

import (
	"context"
	"fmt"
	"math/big"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"

	"github.com/registrylabs/registry-cli/internal/engine"
	clierr "github.com/registrylabs/registry-cli/internal/errors"
	"github.com/registrylabs/registry-cli/internal/id"
	"github.com/registrylabs/registry-cli/internal/model"
	"github.com/registrylabs/registry-cli/internal/prover"
)

type proofFlags struct {
	proofHex     string
	proofFile    string
	publicInputs []string
}

func (f *proofFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.proofHex, "proof", "", "Proof bytes as hex")
	cmd.Flags().StringVar(&f.proofFile, "proof-file", "", "Path to a file with proof hex")
	cmd.Flags().StringArrayVar(&f.publicInputs, "public-input", nil, "Public input as hex (repeatable)")
}

// resolveProof returns the proof bytes and public inputs, preferring explicit
// flags and falling back to the configured proving service.
func (s *runtimeState) resolveProof(ctx context.Context, flags proofFlags, kind, subject, targetID string) ([]byte, []*big.Int, error) {
	raw := strings.TrimSpace(flags.proofHex)
	if raw == "" && flags.proofFile != "" {
		buf, err := os.ReadFile(flags.proofFile)
		if err != nil {
			return nil, nil, clierr.Wrap(clierr.KindUsage, "read proof file", err)
		}
		raw = strings.TrimSpace(string(buf))
	}

	if raw != "" {
		proof, err := decodeHexBytes(raw, "proof")
		if err != nil {
			return nil, nil, err
		}
		inputs, err := parsePublicInputs(flags.publicInputs)
		if err != nil {
			return nil, nil, err
		}
		return proof, inputs, nil
	}

	client := prover.New(s.settings.ProverURL)
	var (
		fetched prover.Proof
		err     error
	)
	if kind == "mint" {
		fetched, err = client.MintProof(ctx, subject, targetID)
	} else {
		fetched, err = client.EndorsementProof(ctx, subject, targetID)
	}
	if err != nil {
		return nil, nil, err
	}
	inputs, err := parsePublicInputs(fetched.PublicInputs)
	if err != nil {
		return nil, nil, err
	}
	return fetched.Proof, inputs, nil
}

func (s *runtimeState) newEndorseCommand() *cobra.Command {
	var versionArg string
	var proof proofFlags
	cmd := &cobra.Command{
		Use:   "endorse",
		Short: "Endorse a version, paying the endorsement fee in credit tokens",
		RunE: func(cmd *cobra.Command, args []string) error {
			versionID, err := id.ParseBytes32(versionArg, "--version")
			if err != nil {
				return err
			}

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			session, err := s.openSession(ctx, true)
			if err != nil {
				return err
			}
			defer session.shutdown()

			proofBytes, inputs, err := s.resolveProof(ctx, proof, "endorse", session.signer.Address().Hex(), versionID)
			if err != nil {
				return err
			}

			req, err := buildEndorseRequest(session, versionID, proofBytes, inputs)
			if err != nil {
				return err
			}
			return s.submitAction(ctx, cmd, session, req)
		},
	}
	cmd.Flags().StringVar(&versionArg, "version", "", "Version id (0x-prefixed 32-byte hex)")
	proof.register(cmd)
	_ = cmd.MarkFlagRequired("version")
	return cmd
}

func (s *runtimeState) newMintCommand() *cobra.Command {
	var assetArg, uriArg string
	var proof proofFlags
	cmd := &cobra.Command{
		Use:   "mint",
		Short: "Mint an asset token, paying the mint fee in credit tokens",
		RunE: func(cmd *cobra.Command, args []string) error {
			assetID, err := id.ParseBytes32(assetArg, "--asset")
			if err != nil {
				return err
			}
			if strings.TrimSpace(uriArg) == "" {
				return clierr.New(clierr.KindUsage, "--uri is required")
			}

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			session, err := s.openSession(ctx, true)
			if err != nil {
				return err
			}
			defer session.shutdown()

			proofBytes, inputs, err := s.resolveProof(ctx, proof, "mint", session.signer.Address().Hex(), assetID)
			if err != nil {
				return err
			}

			req, err := buildMintRequest(session, assetID, uriArg, proofBytes, inputs)
			if err != nil {
				return err
			}
			return s.submitAction(ctx, cmd, session, req)
		},
	}
	cmd.Flags().StringVar(&assetArg, "asset", "", "Asset id (0x-prefixed 32-byte hex)")
	cmd.Flags().StringVar(&uriArg, "uri", "", "Asset metadata URI")
	proof.register(cmd)
	_ = cmd.MarkFlagRequired("asset")
	return cmd
}

func (s *runtimeState) newRetryCommand() *cobra.Command {
	var keyArg string
	cmd := &cobra.Command{
		Use:   "retry",
		Short: "Retry a failed or timed-out action",
		RunE: func(cmd *cobra.Command, args []string) error {
			key := strings.TrimSpace(keyArg)
			if key == "" {
				return clierr.New(clierr.KindUsage, "--action-key is required")
			}

			attemptStore, err := s.openStore()
			if err != nil {
				return err
			}
			prior, found, err := attemptStore.LatestAttempt(key)
			if err != nil {
				return clierr.Wrap(clierr.KindInternal, "read prior attempt", err)
			}
			if !found {
				return clierr.New(clierr.KindUsage, "no prior attempt for this action key")
			}

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			session, err := s.openSession(ctx, true)
			if err != nil {
				return err
			}
			defer session.shutdown()

			if prior.Request.ChainID != session.chain.EVMChainID {
				return clierr.New(clierr.KindUsage,
					fmt.Sprintf("attempt belongs to chain %d, current chain is %d", prior.Request.ChainID, session.chain.EVMChainID))
			}

			req, err := requestFromSnapshot(session, key, prior.Request)
			if err != nil {
				return err
			}

			pipeline := s.newPipeline(session, attemptStore)
			result, err := pipeline.Retry(ctx, req)
			if err != nil {
				return err
			}
			return s.emitOutcome(cmd, session, result)
		},
	}
	cmd.Flags().StringVar(&keyArg, "action-key", "", "Action key of the attempt to retry")
	return cmd
}

func (s *runtimeState) submitAction(ctx context.Context, cmd *cobra.Command, session *chainSession, req *engine.ActionRequest) error {
	attemptStore, err := s.openStore()
	if err != nil {
		return err
	}
	pipeline := s.newPipeline(session, attemptStore)
	result, err := pipeline.Submit(ctx, req)
	if err != nil {
		return err
	}
	return s.emitOutcome(cmd, session, result)
}

func (s *runtimeState) emitOutcome(cmd *cobra.Command, session *chainSession, result engine.DomainResult) error {
	outcome := model.ActionOutcome{
		ActionKey:        result.ActionKey,
		TxHash:           result.TxHash,
		BlockNumber:      result.BlockNumber,
		Event:            result.Event,
		Fields:           result.Fields,
		FeePaidBaseUnits: result.FeePaid,
		AlreadySatisfied: result.AlreadySatisfied,
		AttemptState:     string(engine.StateConfirmed),
	}
	if result.FeePaid != "" {
		// Best-effort decimal rendering; base units are authoritative.
		if decimals, err := engine.NewToken(session.backend, session.token).Decimals(context.Background()); err == nil {
			outcome.FeePaidDecimal = id.FormatDecimal(result.FeePaid, decimals)
		}
	}
	return s.emitSuccess(trimRootPath(cmd.CommandPath()), session.chain.CAIP2, outcome)
}

func buildEndorseRequest(session *chainSession, versionID string, proofBytes []byte, inputs []*big.Int) (*engine.ActionRequest, error) {
	vid := common.HexToHash(versionID)
	payer := session.signer.Address()
	data, err := engine.PackEndorseVersion(vid, proofBytes, inputs)
	if err != nil {
		return nil, err
	}
	statusData, err := engine.PackIsEndorsed(payer, vid)
	if err != nil {
		return nil, err
	}
	req := &engine.ActionRequest{
		ActionKey:  actionKey("endorseVersion", session.chain, payer, versionID),
		Method:     "endorseVersion",
		Target:     session.registry,
		Data:       data,
		StatusData: statusData,
		Payment: &engine.PaymentRequirement{
			Token:    session.token,
			Spender:  session.registry,
			Required: session.feeFn("endorsementFee"),
		},
	}
	req.Snapshot = snapshotFor(req.Method, session, data, statusData)
	return req, nil
}

func buildMintRequest(session *chainSession, assetID, uri string, proofBytes []byte, inputs []*big.Int) (*engine.ActionRequest, error) {
	aid := common.HexToHash(assetID)
	payer := session.signer.Address()
	data, err := engine.PackMintAsset(aid, uri, proofBytes, inputs)
	if err != nil {
		return nil, err
	}
	statusData, err := engine.PackAssetMinted(aid)
	if err != nil {
		return nil, err
	}
	req := &engine.ActionRequest{
		ActionKey:  actionKey("mintAsset", session.chain, payer, assetID),
		Method:     "mintAsset",
		Target:     session.registry,
		Data:       data,
		StatusData: statusData,
		Payment: &engine.PaymentRequirement{
			Token:    session.token,
			Spender:  session.registry,
			Required: session.feeFn("mintFee"),
		},
	}
	req.Snapshot = snapshotFor(req.Method, session, data, statusData)
	return req, nil
}

// requestFromSnapshot rebuilds an ActionRequest from the durable snapshot of
// a prior attempt, so a retry survives process restarts.
func requestFromSnapshot(session *chainSession, key string, snap engine.RequestSnapshot) (*engine.ActionRequest, error) {
	data, err := decodeHexBytes(snap.Data, "stored calldata")
	if err != nil {
		return nil, err
	}
	var statusData []byte
	if snap.StatusData != "" && snap.StatusData != "0x" {
		statusData, err = decodeHexBytes(snap.StatusData, "stored status calldata")
		if err != nil {
			return nil, err
		}
	}
	req := &engine.ActionRequest{
		ActionKey:  key,
		Method:     snap.Method,
		Target:     common.HexToAddress(snap.Target),
		Data:       data,
		StatusData: statusData,
		Snapshot:   snap,
	}
	if snap.Token != "" {
		req.Payment = &engine.PaymentRequirement{
			Token:    common.HexToAddress(snap.Token),
			Spender:  common.HexToAddress(snap.Spender),
			Required: session.feeFn(feeMethodFor(snap.Method)),
		}
	}
	return req, nil
}

func decodeHexBytes(input, label string) ([]byte, error) {
	v := strings.TrimPrefix(strings.TrimSpace(input), "0x")
	if v == "" {
		return nil, clierr.New(clierr.KindUsage, label+" is empty")
	}
	buf := common.FromHex("0x" + v)
	if len(buf) == 0 {
		return nil, clierr.New(clierr.KindUsage, label+" is not valid hex")
	}
	return buf, nil
}

func parsePublicInputs(inputs []string) ([]*big.Int, error) {
	out := make([]*big.Int, 0, len(inputs))
	for i, input := range inputs {
		v := strings.TrimPrefix(strings.TrimSpace(input), "0x")
		n, ok := new(big.Int).SetString(v, 16)
		if !ok {
			return nil, clierr.New(clierr.KindUsage, fmt.Sprintf("public input %d is not valid hex", i))
		}
		out = append(out, n)
	}
	return out, nil
}
