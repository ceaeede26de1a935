package app

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/spf13/cobra"

	"github.com/registrylabs/registry-cli/internal/config"
	"github.com/registrylabs/registry-cli/internal/engine"
	clierr "github.com/registrylabs/registry-cli/internal/errors"
	"github.com/registrylabs/registry-cli/internal/model"
	"github.com/registrylabs/registry-cli/internal/out"
	"github.com/registrylabs/registry-cli/internal/policy"
	"github.com/registrylabs/registry-cli/internal/registry"
	"github.com/registrylabs/registry-cli/internal/schema"
	"github.com/registrylabs/registry-cli/internal/signer"
	"github.com/registrylabs/registry-cli/internal/store"
	"github.com/registrylabs/registry-cli/internal/version"
)

type Runner struct {
	stdout io.Writer
	stderr io.Writer
	now    func() time.Time
}

func NewRunner() *Runner {
	return NewRunnerWithWriters(os.Stdout, os.Stderr)
}

func NewRunnerWithWriters(stdout, stderr io.Writer) *Runner {
	return &Runner{
		stdout: stdout,
		stderr: stderr,
		now:    time.Now,
	}
}

type runtimeState struct {
	runner      *Runner
	flags       config.GlobalFlags
	settings    config.Settings
	root        *cobra.Command
	lastCommand string
	store       *store.Store

	// dialBackend and loadSigner are swappable in tests.
	dialBackend func(ctx context.Context, rpcURL string) (engine.Backend, func(), error)
	loadSigner  func(source string) (signer.Signer, error)
}

func (r *Runner) Run(args []string) int {
	state := &runtimeState{
		runner:      r,
		dialBackend: dialEthBackend,
		loadSigner: func(source string) (signer.Signer, error) {
			return signer.NewLocalSignerFromEnv(source)
		},
	}
	root := state.newRootCommand()
	state.root = root
	root.SetArgs(args)
	root.SetOut(r.stdout)
	root.SetErr(r.stderr)
	root.SilenceUsage = true
	root.SilenceErrors = true

	err := root.Execute()
	err = normalizeRunError(err)
	if state.store != nil {
		_ = state.store.Close()
	}
	if err == nil {
		return 0
	}

	state.renderError("", err)
	return clierr.ExitCode(err)
}

func dialEthBackend(ctx context.Context, rpcURL string) (engine.Backend, func(), error) {
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, nil, clierr.Wrap(clierr.KindUnavailable, "connect to rpc endpoint", err)
	}
	return client, client.Close, nil
}

func (s *runtimeState) newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   version.CLIName,
		Short: "Paid write-operations against the on-chain version registry",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == "help" {
				return nil
			}
			settings, err := config.Load(s.flags)
			if err != nil {
				return clierr.Wrap(clierr.KindUsage, "load configuration", err)
			}
			s.settings = settings

			path := trimRootPath(cmd.CommandPath())
			s.lastCommand = path
			return policy.CheckCommandAllowed(settings.EnableCommands, path)
		},
	}
	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return clierr.Wrap(clierr.KindUsage, "parse flags", err)
	})

	cmd.PersistentFlags().BoolVar(&s.flags.JSON, "json", false, "Output JSON (default)")
	cmd.PersistentFlags().BoolVar(&s.flags.Plain, "plain", false, "Output plain text")
	cmd.PersistentFlags().StringVar(&s.flags.Select, "select", "", "Select fields from data (comma-separated)")
	cmd.PersistentFlags().BoolVar(&s.flags.ResultsOnly, "results-only", false, "Output only data payload")
	cmd.PersistentFlags().StringVar(&s.flags.EnableCommands, "enable-commands", "", "Allowlist command paths (comma-separated)")
	cmd.PersistentFlags().BoolVar(&s.flags.Strict, "strict", false, "Fail on degraded results")
	cmd.PersistentFlags().StringVar(&s.flags.Timeout, "timeout", "", "RPC request timeout")
	cmd.PersistentFlags().IntVar(&s.flags.Retries, "retries", -1, "Retries per HTTP request")
	cmd.PersistentFlags().StringVar(&s.flags.Chain, "chain", "", "Chain id/name/CAIP-2")
	cmd.PersistentFlags().StringVar(&s.flags.RPCURL, "rpc-url", "", "RPC endpoint override")
	cmd.PersistentFlags().StringVar(&s.flags.RegistryAddr, "registry-address", "", "Registry contract address override")
	cmd.PersistentFlags().StringVar(&s.flags.TokenAddr, "token-address", "", "Credit token address override")
	cmd.PersistentFlags().StringVar(&s.flags.ProverURL, "prover-url", "", "Proving service base URL")
	cmd.PersistentFlags().StringVar(&s.flags.KeySource, "key-source", "", "Signer key source (auto|env|file|keystore)")
	cmd.PersistentFlags().StringVar(&s.flags.WalletTimeout, "wallet-timeout", "", "Confirmation wait before reporting a timeout")
	cmd.PersistentFlags().IntVar(&s.flags.PollAttempts, "poll-attempts", 0, "Allowance confirmation poll attempts")
	cmd.PersistentFlags().BoolVar(&s.flags.Yes, "yes", false, "Skip interactive confirmation")
	cmd.PersistentFlags().StringVar(&s.flags.ConfigPath, "config", "", "Path to config file")

	cmd.AddCommand(s.newSchemaCommand())
	cmd.AddCommand(s.newChainsCommand())
	cmd.AddCommand(s.newFeeCommand())
	cmd.AddCommand(s.newEndorseCommand())
	cmd.AddCommand(s.newMintCommand())
	cmd.AddCommand(s.newRetryCommand())
	cmd.AddCommand(s.newAttemptsCommand())
	cmd.AddCommand(s.newAllowanceCommand())
	cmd.AddCommand(newVersionCommand())

	return cmd
}

func newVersionCommand() *cobra.Command {
	var long bool
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print CLI version",
		Run: func(cmd *cobra.Command, args []string) {
			if long {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), version.Long())
				return
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), version.CLIVersion)
		},
	}
	cmd.Flags().BoolVar(&long, "long", false, "Print extended build metadata")
	return cmd
}

func (s *runtimeState) newSchemaCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "schema [command path]",
		Short: "Print machine-readable command schema",
		Args:  cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := ""
			if len(args) > 0 {
				path = strings.Join(args, " ")
			}
			data, err := schema.Build(s.root, path)
			if err != nil {
				return clierr.Wrap(clierr.KindUsage, "build schema", err)
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), "", data)
		},
	}
}

func (s *runtimeState) newChainsCommand() *cobra.Command {
	root := &cobra.Command{Use: "chains", Short: "Supported chains"}
	list := &cobra.Command{
		Use:   "list",
		Short: "List chains with canonical registry deployments",
		RunE: func(cmd *cobra.Command, args []string) error {
			ids := registry.SupportedChainIDs()
			sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
			data := make([]map[string]any, 0, len(ids))
			for _, chainID := range ids {
				d, _ := registry.DeploymentFor(chainID)
				entry := map[string]any{
					"chain_id":     fmt.Sprintf("eip155:%d", chainID),
					"registry":     d.Registry,
					"credit_token": d.CreditToken,
				}
				if rpc, ok := registry.DefaultRPCURL(chainID); ok {
					entry["default_rpc"] = rpc
				}
				data = append(data, entry)
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), "", data)
		},
	}
	root.AddCommand(list)
	return root
}

func (s *runtimeState) emitSuccess(commandPath, chainID string, data any) error {
	env := model.Envelope{
		Version: model.EnvelopeVersion,
		Success: true,
		Data:    data,
		Error:   nil,
		Meta: model.EnvelopeMeta{
			RequestID: newRequestID(),
			Timestamp: s.runner.now().UTC(),
			Command:   commandPath,
			ChainID:   chainID,
		},
	}
	return out.Render(s.runner.stdout, env, s.settings)
}

func (s *runtimeState) renderError(commandPath string, err error) {
	if strings.TrimSpace(commandPath) == "" {
		commandPath = s.lastCommand
		if commandPath == "" {
			commandPath = version.CLIName
		}
	}
	kind := clierr.KindOf(err)
	message := err.Error()
	details := ""
	if cErr, ok := clierr.As(err); ok {
		message = cErr.Message
		if cErr.Cause != nil {
			message = fmt.Sprintf("%s: %v", cErr.Message, cErr.Cause)
		}
		details = cErr.Details
	}

	settings := s.settings
	if settings.OutputMode == "" {
		settings.OutputMode = "json"
	}
	settings.ResultsOnly = false
	settings.SelectFields = nil
	env := model.Envelope{
		Version: model.EnvelopeVersion,
		Success: false,
		Data:    []any{},
		Error: &model.ErrorBody{
			Code:      clierr.ExitCode(err),
			Type:      string(kind),
			Message:   message,
			Details:   details,
			Retryable: clierr.Retryable(kind),
		},
		Meta: model.EnvelopeMeta{
			RequestID: newRequestID(),
			Timestamp: s.runner.now().UTC(),
			Command:   commandPath,
		},
	}
	_ = out.Render(s.runner.stderr, env, settings)
}

func (s *runtimeState) openStore() (*store.Store, error) {
	if s.store != nil {
		return s.store, nil
	}
	attemptStore, err := store.Open(s.settings.AttemptStorePath, s.settings.AttemptLockPath)
	if err != nil {
		return nil, clierr.Wrap(clierr.KindInternal, "open attempt store", err)
	}
	s.store = attemptStore
	return attemptStore, nil
}

func trimRootPath(commandPath string) string {
	parts := strings.Fields(strings.TrimSpace(commandPath))
	if len(parts) > 0 && parts[0] == version.CLIName {
		parts = parts[1:]
	}
	return strings.Join(parts, " ")
}

func normalizeRunError(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := clierr.As(err); ok {
		return err
	}
	if isLikelyUsageError(err) {
		return clierr.Wrap(clierr.KindUsage, "invalid command input", err)
	}
	return clierr.Wrap(clierr.KindInternal, "execute command", err)
}

func isLikelyUsageError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(strings.TrimSpace(err.Error()))
	patterns := []string{
		"unknown command",
		"unknown flag",
		"required flag(s)",
		"flag needs an argument",
		"requires at least",
		"requires exactly",
		"accepts ",
		"invalid argument",
		"invalid args",
	}
	for _, p := range patterns {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}

func newRequestID() string {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		return fmt.Sprintf("req_%d", time.Now().UnixNano())
	}
	return "req_" + hex.EncodeToString(buf)
}

func splitCSV(input string) []string {
	parts := strings.Split(input, ",")
	items := make([]string, 0, len(parts))
	for _, part := range parts {
		v := strings.ToLower(strings.TrimSpace(part))
		if v != "" {
			items = append(items, v)
		}
	}
	return items
}
