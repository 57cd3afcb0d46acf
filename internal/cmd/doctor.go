package cmd

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/3leaps/mesosproxy/internal/config"
	"github.com/3leaps/mesosproxy/internal/observability"
)

var doctorTimeout time.Duration

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Run diagnostic checks",
	Long: `Run diagnostic checks on the environment, the Mesos master and the session
store, and suggest fixes for common issues.

Examples:
  mesosproxy doctor
  mesosproxy doctor --endpoint http://mesos-master:5050`,
	Args: cobra.NoArgs,
	RunE: runDoctor,
}

func init() {
	rootCmd.AddCommand(doctorCmd)
	doctorCmd.Flags().DurationVar(&doctorTimeout, "timeout", 10*time.Second, "Timeout for each remote check")
}

type doctorCheck struct {
	name string
	run  func(ctx context.Context) (string, error)
}

func runDoctor(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	cfg := currentConfig()
	log := observability.CLILogger

	log.Info("=== " + rootCmd.Name() + " doctor ===")
	log.Info("Running diagnostic checks...")

	checks := []doctorCheck{
		{"Go runtime", func(context.Context) (string, error) {
			return fmt.Sprintf("%s %s/%s", runtime.Version(), runtime.GOOS, runtime.GOARCH), nil
		}},
		{"Data directory", func(context.Context) (string, error) {
			dir := config.DataDir()
			if err := os.MkdirAll(dir, 0755); err != nil {
				return dir, err
			}
			return dir, nil
		}},
		{"Mesos master", func(ctx context.Context) (string, error) {
			master, err := newMaster(cfg, "", log)
			if err != nil {
				return cfg.Mesos.Endpoint, err
			}
			healthy, err := master.Health(ctx)
			if err != nil {
				return cfg.Mesos.Endpoint, err
			}
			if !healthy {
				return cfg.Mesos.Endpoint, fmt.Errorf("master reports unhealthy")
			}
			return cfg.Mesos.Endpoint, nil
		}},
		{"Session store", func(ctx context.Context) (string, error) {
			store, err := newSessionStore(ctx, cfg)
			if err != nil {
				return cfg.Sessions.Backend, err
			}
			recs, err := store.List(ctx)
			if err != nil {
				return cfg.Sessions.Backend, err
			}
			return fmt.Sprintf("%s (%d sessions)", cfg.Sessions.Backend, len(recs)), nil
		}},
	}

	failed := 0
	for i, c := range checks {
		cctx, cancel := context.WithTimeout(ctx, doctorTimeout)
		detail, err := c.run(cctx)
		cancel()

		prefix := fmt.Sprintf("[%d/%d] Checking %s...", i+1, len(checks), c.name)
		if err != nil {
			failed++
			log.Error(prefix+" ❌ "+detail, zap.Error(err))
			continue
		}
		log.Info(prefix + " ✅ " + detail)
	}

	if failed > 0 {
		log.Warn("⚠️  Some checks failed. Review the output above for details.")
		return exitError(exitServiceUnavailable, "Diagnostics failed", fmt.Errorf("%d of %d checks failed", failed, len(checks)))
	}
	log.Info("✅ All checks passed!")
	return nil
}
