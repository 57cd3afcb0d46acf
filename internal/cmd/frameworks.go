package cmd

import (
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/3leaps/mesosproxy/internal/observability"
	"github.com/3leaps/mesosproxy/pkg/mesos"
	"github.com/3leaps/mesosproxy/pkg/output"
)

var frameworksCmd = &cobra.Command{
	Use:   "frameworks",
	Short: "Inspect frameworks known to the Mesos master",
}

var frameworksListCmd = &cobra.Command{
	Use:   "list",
	Short: "List active and completed frameworks",
	Long: `List the frameworks the Mesos master knows about.

--match filters framework ids with a glob (doublestar syntax, e.g.
"*-0042" or "{a,b}*").

Examples:
  mesosproxy frameworks list
  mesosproxy frameworks list --state active --match '*-00[0-9][0-9]'
  mesosproxy frameworks list --json`,
	Args: cobra.NoArgs,
	RunE: runFrameworksList,
}

var frameworksStateCmd = &cobra.Command{
	Use:   "state <framework_id>",
	Short: "Classify one framework as ACTIVE, COMPLETED or UNKNOWN",
	Args:  cobra.ExactArgs(1),
	RunE:  runFrameworksState,
}

var (
	frameworksMatch string
	frameworksState string
	frameworksJSON  bool
)

func init() {
	rootCmd.AddCommand(frameworksCmd)
	frameworksCmd.AddCommand(frameworksListCmd)
	frameworksCmd.AddCommand(frameworksStateCmd)

	frameworksListCmd.Flags().StringVar(&frameworksMatch, "match", "", "Glob filter on framework ids")
	frameworksListCmd.Flags().StringVar(&frameworksState, "state", "all", "Which frameworks to list: active, completed or all")
	frameworksListCmd.Flags().BoolVar(&frameworksJSON, "json", false, "Emit JSONL framework records")
}

type frameworkEntry struct {
	ID    string
	State mesos.FrameworkState
}

// filterFrameworks returns the frameworks selected by state and pattern,
// active first, each group in master order.
func filterFrameworks(active, completed []string, state, pattern string) ([]frameworkEntry, error) {
	if pattern != "" && !doublestar.ValidatePattern(pattern) {
		return nil, fmt.Errorf("invalid glob %q", pattern)
	}
	var wantActive, wantCompleted bool
	switch strings.ToLower(strings.TrimSpace(state)) {
	case "", "all":
		wantActive, wantCompleted = true, true
	case "active":
		wantActive = true
	case "completed":
		wantCompleted = true
	default:
		return nil, fmt.Errorf("unknown state %q (want active, completed or all)", state)
	}

	var out []frameworkEntry
	add := func(ids []string, s mesos.FrameworkState) {
		for _, id := range ids {
			if pattern != "" {
				if ok, _ := doublestar.Match(pattern, id); !ok {
					continue
				}
			}
			out = append(out, frameworkEntry{ID: id, State: s})
		}
	}
	if wantActive {
		add(active, mesos.FrameworkActive)
	}
	if wantCompleted {
		add(completed, mesos.FrameworkCompleted)
	}
	return out, nil
}

func runFrameworksList(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	cfg := currentConfig()
	start := time.Now()

	master, err := newMaster(cfg, "", observability.CLILogger)
	if err != nil {
		return exitError(exitInvalidArgument, "Invalid Mesos endpoint", err)
	}

	active, completed, err := master.ListFrameworks(ctx)
	if err != nil {
		return exitError(exitServiceUnavailable, "Failed to list frameworks", err)
	}

	entries, err := filterFrameworks(active, completed, frameworksState, frameworksMatch)
	if err != nil {
		return exitError(exitInvalidArgument, "Invalid filter", err)
	}

	if frameworksJSON {
		w := output.NewJSONLWriter(cmd.OutOrStdout(), uuid.NewString(), cfg.Mesos.Endpoint)
		defer func() { _ = w.Close() }()
		for _, e := range entries {
			if err := w.WriteFramework(ctx, &output.FrameworkRecord{ID: e.ID, State: e.State.String()}); err != nil {
				return exitError(exitFileWriteError, "Failed to write output", err)
			}
		}
		elapsed := time.Since(start)
		return w.WriteSummary(ctx, &output.SummaryRecord{
			Active:        len(active),
			Completed:     len(completed),
			Matched:       len(entries),
			Duration:      elapsed,
			DurationHuman: elapsed.Round(time.Millisecond).String(),
		})
	}

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "STATE\tFRAMEWORK ID")
	for _, e := range entries {
		_, _ = fmt.Fprintf(tw, "%s\t%s\n", e.State, e.ID)
	}
	return tw.Flush()
}

func runFrameworksState(cmd *cobra.Command, args []string) error {
	master, err := newMaster(currentConfig(), "", observability.CLILogger)
	if err != nil {
		return exitError(exitInvalidArgument, "Invalid Mesos endpoint", err)
	}
	state, err := master.FrameworkState(cmd.Context(), strings.TrimSpace(args[0]))
	if err != nil {
		return exitError(exitServiceUnavailable, "Failed to query framework state", err)
	}
	_, _ = fmt.Fprintln(cmd.OutOrStdout(), state)
	return nil
}
