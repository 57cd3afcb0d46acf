package cmd

import (
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/3leaps/mesosproxy/internal/observability"
	"github.com/3leaps/mesosproxy/pkg/processproxy"
)

var statusCmd = &cobra.Command{
	Use:   "status <kernel_id>",
	Short: "Report whether a kernel's framework is still alive",
	Long: `Load the persisted session for a kernel, ask the Mesos master for the state
of its framework, and report whether it is still alive. A framework the master
reports as completed marks the session TERMINATED.`,
	Args: cobra.ExactArgs(1),
	RunE: runStatus,
}

var statusJSON bool

func init() {
	rootCmd.AddCommand(statusCmd)
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "Emit a JSONL session record")
}

func runStatus(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	kernelID := strings.TrimSpace(args[0])

	deps, err := newRuntimeDeps(ctx, currentConfig(), "")
	if err != nil {
		return err
	}
	proxy, rec, err := deps.restoreProxy(ctx, kernelID)
	if err != nil {
		return err
	}

	alive := false
	if !recordFinished(rec.State, rec.ApplicationID) {
		alive, err = proxy.Poll(ctx)
		if err != nil {
			return exitError(exitServiceUnavailable, "Failed to query framework state", err)
		}
	}

	if !alive && rec.State == processproxy.StateRunning.String() {
		rec.State = processproxy.StateTerminated.String()
		rec.SavedAt = time.Time{}
		if err := deps.store.Save(ctx, rec); err != nil {
			observability.CLILogger.Warn("Failed to update kernel session", zap.Error(err))
		}
	}

	out := newRecordWriter(cmd.OutOrStdout(), statusJSON, rec.Endpoint)
	defer func() { _ = out.Close() }()
	if err := out.session(ctx, rec, &alive); err != nil {
		return exitError(exitFileWriteError, "Failed to write output", err)
	}
	return nil
}

// recordFinished reports whether a record can be known dead without asking
// the master: a terminal state with no framework to query.
func recordFinished(state, applicationID string) bool {
	if applicationID != "" {
		return false
	}
	return state == processproxy.StateTerminated.String() || state == processproxy.StateFailed.String()
}
