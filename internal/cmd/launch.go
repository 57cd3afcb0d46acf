package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/3leaps/mesosproxy/internal/observability"
	"github.com/3leaps/mesosproxy/pkg/output"
	"github.com/3leaps/mesosproxy/pkg/processproxy"
	"github.com/3leaps/mesosproxy/pkg/sessionstore"
)

var launchCmd = &cobra.Command{
	Use:   "launch [flags] [-- argv...]",
	Short: "Launch a kernel and supervise its Mesos framework",
	Long: `Start a kernel launcher locally, wait for the Mesos framework it submits to
become active, then supervise it until the framework completes or the command
is interrupted. Interrupting tears the framework down.

The launcher runs in the foreground; its output is captured under the
sessions directory and scanned for the framework id.

Examples:
  mesosproxy launch -- /opt/kernels/spark/bin/run.sh --kernel-id {kernel_id}
  mesosproxy launch --spec kernel.yaml --kernel-id 3f7c0c1e
  mesosproxy launch --env SPARK_HOME=/opt/spark --json -- ./run.sh`,
	RunE: runLaunch,
}

var (
	launchSpecPath string
	launchKernelID string
	launchEnv      []string
	launchDir      string
	launchJSON     bool
)

func init() {
	rootCmd.AddCommand(launchCmd)

	launchCmd.Flags().StringVar(&launchSpecPath, "spec", "", "Kernel launch spec (YAML or JSON)")
	launchCmd.Flags().StringVar(&launchKernelID, "kernel-id", "", "Kernel id (default: generated)")
	launchCmd.Flags().StringArrayVarP(&launchEnv, "env", "e", nil, "Extra launcher environment KEY=VALUE (repeatable)")
	launchCmd.Flags().StringVar(&launchDir, "dir", "", "Launcher working directory")
	launchCmd.Flags().BoolVar(&launchJSON, "json", false, "Emit JSONL session records")
}

func runLaunch(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg := currentConfig()

	env, err := parseEnvFlags(launchEnv)
	if err != nil {
		return exitError(exitInvalidArgument, "Invalid --env", err)
	}

	kernelID, pcfg, command, err := buildLaunch(launchSpecPath, launchKernelID, args, env, launchDir, cfg.ProcessProxy())
	if err != nil {
		return exitError(exitInvalidArgument, "Invalid launch request", err)
	}

	deps, err := newRuntimeDeps(ctx, cfg, pcfg.Endpoint)
	if err != nil {
		return err
	}
	proxy, err := deps.newProxy(kernelID, pcfg)
	if err != nil {
		return exitError(exitInvalidArgument, "Invalid proxy configuration", err)
	}

	out := newRecordWriter(cmd.OutOrStdout(), launchJSON, pcfg.Endpoint)
	defer func() { _ = out.Close() }()

	observability.CLILogger.Info("Launching kernel",
		zap.String("kernel_id", kernelID),
		zap.String("endpoint", pcfg.Endpoint),
		zap.Strings("argv", command.Argv))

	if err := proxy.Launch(ctx, command); err != nil {
		cleanupCtx, cancel := context.WithTimeout(context.Background(), pcfg.EffectiveShutdownWaitTime()+5*time.Second)
		defer cancel()
		proxy.Cleanup(cleanupCtx)
		rec := &sessionstore.Record{
			ProcessInfo: processproxy.ProcessInfo{KernelID: kernelID},
			State:       processproxy.StateFailed.String(),
			Endpoint:    pcfg.Endpoint,
		}
		if serr := deps.store.Save(cleanupCtx, rec); serr != nil {
			observability.CLILogger.Warn("Failed to record failed launch", zap.Error(serr))
		}
		if errors.Is(err, context.Canceled) {
			return exitError(exitSignalInt, "Launch interrupted", err)
		}
		return exitError(exitServiceUnavailable, "Kernel startup failed", err)
	}

	rec, err := deps.saveSession(ctx, proxy, pcfg.Endpoint)
	if err != nil {
		return err
	}
	if err := out.session(ctx, rec, nil); err != nil {
		return exitError(exitFileWriteError, "Failed to write output", err)
	}

	superviseErr := supervise(ctx, proxy, pcfg.PollInterval, observability.CLILogger)

	// ctx may already be cancelled; teardown and persistence get their own budget.
	finishCtx, cancel := context.WithTimeout(context.Background(),
		pcfg.EffectiveShutdownWaitTime()+time.Duration(pcfg.MaxPollAttempts)*pcfg.PollInterval+10*time.Second)
	defer cancel()

	var killErr error
	if superviseErr != nil {
		observability.CLILogger.Info("Interrupted, tearing down kernel", zap.String("kernel_id", kernelID))
		killErr = proxy.Kill(finishCtx)
	}
	proxy.Cleanup(finishCtx)

	rec.State = proxy.State().String()
	rec.SavedAt = time.Time{}
	if err := deps.store.Save(finishCtx, rec); err != nil {
		observability.CLILogger.Warn("Failed to update kernel session", zap.Error(err))
	}
	_ = out.session(finishCtx, rec, nil)

	switch {
	case killErr != nil:
		return exitError(exitServiceUnavailable, "Kernel teardown failed", killErr)
	case superviseErr != nil:
		return exitError(exitSignalInt, "Interrupted", superviseErr)
	}
	return nil
}

// buildLaunch resolves the kernel id, proxy config and launch command from
// either a launch spec or the trailing argv.
func buildLaunch(specPath, kernelID string, argv []string, env map[string]string, dir string, pcfg processproxy.Config) (string, processproxy.Config, processproxy.Command, error) {
	kernelID = strings.TrimSpace(kernelID)
	if specPath != "" {
		if len(argv) > 0 {
			return "", pcfg, processproxy.Command{}, fmt.Errorf("--spec and a trailing argv are mutually exclusive")
		}
		spec, err := processproxy.LoadLaunchSpec(specPath)
		if err != nil {
			return "", pcfg, processproxy.Command{}, err
		}
		if kernelID == "" {
			kernelID = strings.TrimSpace(spec.KernelID)
		}
		if kernelID == "" {
			kernelID = uuid.NewString()
		}
		command := spec.CommandFor(kernelID)
		command.Env = mergeEnv(command.Env, env)
		if dir != "" {
			command.Dir = dir
		}
		return kernelID, spec.Apply(pcfg), command, nil
	}

	if len(argv) == 0 {
		return "", pcfg, processproxy.Command{}, fmt.Errorf("either --spec or a launcher argv after -- is required")
	}
	if kernelID == "" {
		kernelID = uuid.NewString()
	}
	command := processproxy.Command{KernelID: kernelID, Env: env, Dir: dir}
	for _, arg := range argv {
		command.Argv = append(command.Argv, strings.ReplaceAll(arg, "{kernel_id}", kernelID))
	}
	return kernelID, pcfg, command, nil
}

// supervise polls until the application completes (nil) or ctx is done
// (ctx.Err()). Poll failures are logged and retried.
func supervise(ctx context.Context, proxy processproxy.ProcessProxy, interval time.Duration, logger *zap.Logger) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
		alive, err := proxy.Poll(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			logger.Debug("Poll failed", zap.Error(err))
			continue
		}
		if !alive {
			logger.Info("Kernel application completed")
			return nil
		}
	}
}

func parseEnvFlags(values []string) (map[string]string, error) {
	if len(values) == 0 {
		return nil, nil
	}
	env := make(map[string]string, len(values))
	for _, kv := range values {
		k, v, ok := strings.Cut(kv, "=")
		k = strings.TrimSpace(k)
		if !ok || k == "" {
			return nil, fmt.Errorf("expected KEY=VALUE, got %q", kv)
		}
		env[k] = v
	}
	return env, nil
}

func mergeEnv(base, extra map[string]string) map[string]string {
	if len(extra) == 0 {
		return base
	}
	out := make(map[string]string, len(base)+len(extra))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range extra {
		out[k] = v
	}
	return out
}

// recordWriter renders session records as JSONL or key=value lines.
type recordWriter struct {
	w     io.Writer
	jsonl *output.JSONLWriter
}

func newRecordWriter(w io.Writer, jsonl bool, endpoint string) *recordWriter {
	rw := &recordWriter{w: w}
	if jsonl {
		rw.jsonl = output.NewJSONLWriter(w, uuid.NewString(), endpoint)
	}
	return rw
}

func (rw *recordWriter) session(ctx context.Context, rec *sessionstore.Record, alive *bool) error {
	sr := sessionRecord(rec, alive)
	if rw.jsonl != nil {
		return rw.jsonl.WriteSession(ctx, sr)
	}
	line := fmt.Sprintf("kernel_id=%s state=%s", sr.KernelID, sr.State)
	if sr.ApplicationID != "" {
		line += " application_id=" + sr.ApplicationID
	}
	if sr.PID > 0 {
		line += fmt.Sprintf(" pid=%d", sr.PID)
	}
	if alive != nil {
		line += fmt.Sprintf(" alive=%t", *alive)
	}
	_, err := fmt.Fprintln(rw.w, line)
	return err
}

func (rw *recordWriter) Close() error {
	if rw.jsonl != nil {
		return rw.jsonl.Close()
	}
	return nil
}

func sessionRecord(rec *sessionstore.Record, alive *bool) *output.SessionRecord {
	return &output.SessionRecord{
		KernelID:      rec.KernelID,
		ApplicationID: rec.ApplicationID,
		PID:           rec.PID,
		IP:            rec.IP,
		State:         rec.State,
		Alive:         alive,
		SavedAt:       rec.SavedAt,
	}
}
