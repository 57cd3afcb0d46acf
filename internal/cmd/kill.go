package cmd

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/3leaps/mesosproxy/internal/observability"
	"github.com/3leaps/mesosproxy/pkg/processproxy"
)

var killCmd = &cobra.Command{
	Use:   "kill <kernel_id>",
	Short: "Signal a kernel or tear down its framework",
	Long: `Deliver a signal to a kernel. The default, kill, asks the Mesos master to
tear the framework down and waits for it to be reported completed. Other
signals are forwarded to the local launcher process. Signal 0 only checks
that the framework is alive.

Examples:
  mesosproxy kill 3f7c0c1e
  mesosproxy kill 3f7c0c1e --signal int
  mesosproxy kill 3f7c0c1e --keep`,
	Args: cobra.ExactArgs(1),
	RunE: runKill,
}

var (
	killSignal string
	killKeep   bool
)

func init() {
	rootCmd.AddCommand(killCmd)
	killCmd.Flags().StringVarP(&killSignal, "signal", "s", "kill", "Signal: kill, term, int, hup, usr1, usr2, 0 or a number")
	killCmd.Flags().BoolVar(&killKeep, "keep", false, "Keep the session record after a successful kill")
}

func runKill(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	kernelID := strings.TrimSpace(args[0])

	sig, err := parseSignal(killSignal)
	if err != nil {
		return exitError(exitInvalidArgument, "Invalid --signal", err)
	}

	deps, err := newRuntimeDeps(ctx, currentConfig(), "")
	if err != nil {
		return err
	}
	proxy, rec, err := deps.restoreProxy(ctx, kernelID)
	if err != nil {
		return err
	}

	err = proxy.SendSignal(ctx, sig)
	switch {
	case errors.Is(err, processproxy.ErrProcessExited):
		return exitError(exitFailure, "Kernel is not running", err)
	case errors.Is(err, processproxy.ErrTerminationFailed):
		return exitError(exitServiceUnavailable, "Kernel teardown failed", err)
	case err != nil:
		return exitError(exitServiceUnavailable, "Signal failed", err)
	}

	if sig != syscall.SIGKILL {
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "kernel_id=%s signal=%s delivered=true\n", kernelID, killSignal)
		return nil
	}

	proxy.Cleanup(ctx)
	if killKeep {
		rec.State = proxy.State().String()
		rec.SavedAt = time.Time{}
		if err := deps.store.Save(ctx, rec); err != nil {
			observability.CLILogger.Warn("Failed to update kernel session", zap.Error(err))
		}
	} else if err := deps.store.Delete(ctx, kernelID); err != nil {
		observability.CLILogger.Warn("Failed to delete kernel session", zap.Error(err))
	}
	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "kernel_id=%s state=%s\n", kernelID, proxy.State())
	return nil
}

var signalNames = map[string]syscall.Signal{
	"kill": syscall.SIGKILL,
	"term": syscall.SIGTERM,
	"int":  syscall.SIGINT,
	"hup":  syscall.SIGHUP,
	"usr1": syscall.SIGUSR1,
	"usr2": syscall.SIGUSR2,
}

// parseSignal accepts a signal name with or without the SIG prefix, or a
// number.
func parseSignal(s string) (syscall.Signal, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	name = strings.TrimPrefix(name, "sig")
	if name == "" {
		return syscall.SIGKILL, nil
	}
	if sig, ok := signalNames[name]; ok {
		return sig, nil
	}
	n, err := strconv.Atoi(name)
	if err != nil || n < 0 || n > 64 {
		return 0, fmt.Errorf("unknown signal %q", s)
	}
	return syscall.Signal(n), nil
}
