package app

import (
	"context"
	"strings"

	"github.com/spf13/cobra"

	"github.com/registrylabs/registry-cli/internal/engine"
	clierr "github.com/registrylabs/registry-cli/internal/errors"
	"github.com/registrylabs/registry-cli/internal/id"
	"github.com/registrylabs/registry-cli/internal/model"
)

func normalizeFeeAction(input string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(input)) {
	case "", "endorse", "endorsement", "endorseversion":
		return "endorsementFee", nil
	case "mint", "mintasset":
		return "mintFee", nil
	default:
		return "", clierr.New(clierr.KindUsage, "action must be endorse or mint")
	}
}

func (s *runtimeState) newFeeCommand() *cobra.Command {
	root := &cobra.Command{Use: "fee", Short: "Registry fee quotes"}
	var actionArg string
	show := &cobra.Command{
		Use:   "show",
		Short: "Quote the current fee for an action",
		RunE: func(cmd *cobra.Command, args []string) error {
			feeMethod, err := normalizeFeeAction(actionArg)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(context.Background(), s.settings.Timeout)
			defer cancel()
			session, err := s.openSession(ctx, false)
			if err != nil {
				return err
			}
			defer session.shutdown()

			fee, err := engine.RegistryFee(ctx, session.backend, session.registry, feeMethod)
			if err != nil {
				return err
			}
			info := model.FeeInfo{
				Action:           strings.TrimSuffix(feeMethod, "Fee"),
				FeeBaseUnits:     fee.String(),
				Token:            session.token.Hex(),
				RegistryContract: session.registry.Hex(),
			}
			if decimals, err := engine.NewToken(session.backend, session.token).Decimals(ctx); err == nil {
				info.TokenDecimals = decimals
				info.FeeDecimal = id.FormatDecimal(fee.String(), decimals)
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), session.chain.CAIP2, info)
		},
	}
	show.Flags().StringVar(&actionArg, "action", "endorse", "Action to quote (endorse|mint)")
	root.AddCommand(show)
	return root
}

func (s *runtimeState) newAllowanceCommand() *cobra.Command {
	root := &cobra.Command{Use: "allowance", Short: "Credit token allowance for the registry"}

	var showAction string
	show := &cobra.Command{
		Use:   "show",
		Short: "Show the signer's allowance against the current fee",
		RunE: func(cmd *cobra.Command, args []string) error {
			feeMethod, err := normalizeFeeAction(showAction)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(context.Background(), s.settings.Timeout)
			defer cancel()
			session, err := s.openSession(ctx, true)
			if err != nil {
				return err
			}
			defer session.shutdown()

			token := engine.NewToken(session.backend, session.token)
			owner := session.signer.Address()
			allowance, err := token.Allowance(ctx, owner, session.registry)
			if err != nil {
				return err
			}
			required, err := engine.RegistryFee(ctx, session.backend, session.registry, feeMethod)
			if err != nil {
				return err
			}

			info := model.AllowanceInfo{
				Owner:              owner.Hex(),
				Spender:            session.registry.Hex(),
				Token:              session.token.Hex(),
				AllowanceBaseUnits: allowance.String(),
				RequiredBaseUnits:  required.String(),
				Sufficient:         allowance.Cmp(required) >= 0,
			}
			if decimals, err := token.Decimals(ctx); err == nil {
				info.AllowanceDecimal = id.FormatDecimal(allowance.String(), decimals)
				info.RequiredDecimal = id.FormatDecimal(required.String(), decimals)
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), session.chain.CAIP2, info)
		},
	}
	show.Flags().StringVar(&showAction, "action", "endorse", "Action whose fee to compare against (endorse|mint)")

	var ensureAction string
	ensure := &cobra.Command{
		Use:   "ensure",
		Short: "Negotiate the allowance up to the current fee if needed",
		RunE: func(cmd *cobra.Command, args []string) error {
			feeMethod, err := normalizeFeeAction(ensureAction)
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

			negotiateOpts := engine.DefaultNegotiateOptions()
			negotiateOpts.PollAttempts = s.settings.PollAttempts
			token := engine.NewToken(session.backend, session.token)
			negotiator := engine.NewNegotiator(session.backend, session.signer, token, negotiateOpts)

			state, err := negotiator.Ensure(ctx, session.registry, session.feeFn(feeMethod))
			if err != nil {
				return err
			}

			info := model.AllowanceInfo{
				Owner:              state.Owner.Hex(),
				Spender:            state.Spender.Hex(),
				Token:              session.token.Hex(),
				AllowanceBaseUnits: state.Allowance.String(),
				RequiredBaseUnits:  state.Required.String(),
				Sufficient:         state.Allowance.Cmp(state.Required) >= 0,
			}
			if decimals, err := token.Decimals(ctx); err == nil {
				info.AllowanceDecimal = id.FormatDecimal(state.Allowance.String(), decimals)
				info.RequiredDecimal = id.FormatDecimal(state.Required.String(), decimals)
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), session.chain.CAIP2, info)
		},
	}
	ensure.Flags().StringVar(&ensureAction, "action", "endorse", "Action whose fee to ensure (endorse|mint)")

	root.AddCommand(show)
	root.AddCommand(ensure)
	return root
}
