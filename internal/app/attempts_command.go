package app

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/registrylabs/registry-cli/internal/engine"
	clierr "github.com/registrylabs/registry-cli/internal/errors"
	"github.com/registrylabs/registry-cli/internal/model"
)

func (s *runtimeState) newAttemptsCommand() *cobra.Command {
	root := &cobra.Command{Use: "attempts", Short: "Submission attempt records"}

	var stateFilter string
	var limit int
	list := &cobra.Command{
		Use:   "list",
		Short: "List recent submission attempts",
		RunE: func(cmd *cobra.Command, args []string) error {
			attemptStore, err := s.openStore()
			if err != nil {
				return err
			}
			attempts, err := attemptStore.List(strings.TrimSpace(stateFilter), limit)
			if err != nil {
				return clierr.Wrap(clierr.KindInternal, "list attempts", err)
			}
			data := make([]model.AttemptInfo, 0, len(attempts))
			for _, attempt := range attempts {
				data = append(data, attemptInfo(attempt))
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), "", data)
		},
	}
	list.Flags().StringVar(&stateFilter, "state", "", "Filter by attempt state")
	list.Flags().IntVar(&limit, "limit", 20, "Maximum attempts to return")

	var attemptID string
	show := &cobra.Command{
		Use:   "show",
		Short: "Show one submission attempt",
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(attemptID) == "" {
				return clierr.New(clierr.KindUsage, "--id is required")
			}
			attemptStore, err := s.openStore()
			if err != nil {
				return err
			}
			attempt, err := attemptStore.Get(strings.TrimSpace(attemptID))
			if err != nil {
				return clierr.Wrap(clierr.KindUsage, "load attempt", err)
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), "", attemptInfo(attempt))
		},
	}
	show.Flags().StringVar(&attemptID, "id", "", "Attempt id")

	root.AddCommand(list)
	root.AddCommand(show)
	return root
}

func attemptInfo(attempt engine.SubmissionAttempt) model.AttemptInfo {
	info := model.AttemptInfo{
		AttemptID:   attempt.AttemptID,
		ActionKey:   attempt.ActionKey,
		State:       string(attempt.State),
		TxHash:      attempt.TxHash,
		TimedOut:    attempt.TimedOut,
		Error:       attempt.Error,
		ErrorKind:   attempt.ErrorKind,
		CreatedAt:   attempt.CreatedAt,
		UpdatedAt:   attempt.UpdatedAt,
		SubmittedAt: attempt.SubmittedAt,
	}
	if attempt.Result != nil {
		info.Result = &model.ActionOutcome{
			ActionKey:        attempt.Result.ActionKey,
			TxHash:           attempt.Result.TxHash,
			BlockNumber:      attempt.Result.BlockNumber,
			Event:            attempt.Result.Event,
			Fields:           attempt.Result.Fields,
			FeePaidBaseUnits: attempt.Result.FeePaid,
			AlreadySatisfied: attempt.Result.AlreadySatisfied,
		}
	}
	return info
}
