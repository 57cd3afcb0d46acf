// Package cmd implements the mesosproxy command line.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/3leaps/mesosproxy/internal/config"
	"github.com/3leaps/mesosproxy/internal/observability"
)

// VersionInfo describes the running build.
type VersionInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildDate string `json:"build_date"`
}

var versionInfo = VersionInfo{Version: "dev", Commit: "unknown", BuildDate: "unknown"}

// SetVersionInfo records build metadata injected by main.
func SetVersionInfo(version, commit, buildDate string) {
	versionInfo.Version = version
	versionInfo.Commit = commit
	versionInfo.BuildDate = buildDate
}

var (
	cfgFile      string
	verbose      bool
	endpointFlag string
	loadedConfig *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "mesosproxy",
	Short: "Launch and manage kernels running as Mesos frameworks",
	Long: `mesosproxy launches kernel launchers locally, tracks the Mesos framework
each one submits, and confirms, polls, signals and tears down that framework
through the Mesos master operator API.

Configuration is read from mesosproxy.yaml (working directory or app data
directory), MESOSPROXY_* environment variables and flags, in increasing
precedence.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentPreRunE = initRuntime
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Config file (default: mesosproxy.yaml in . or the app data dir)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVar(&endpointFlag, "endpoint", "", "Mesos master endpoint (overrides mesos.endpoint)")
}

func initRuntime(cmd *cobra.Command, _ []string) error {
	overrides := map[string]any{}
	if endpointFlag != "" {
		overrides["mesos.endpoint"] = endpointFlag
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := config.LoadFile(ctx, cfgFile, overrides)
	if err != nil {
		return exitError(exitInvalidArgument, "Invalid configuration", err)
	}
	loadedConfig = cfg

	observability.InitCLILogger(rootCmd.Name(), cliLogLevel(verbose, cfg.Logging.Level))
	observability.CLILogger.Debug("Loaded configuration",
		zap.String("endpoint", cfg.Mesos.Endpoint),
		zap.String("sessions_backend", cfg.Sessions.Backend))
	return nil
}

// cliLogLevel is debug under --verbose, else the configured logging.level.
func cliLogLevel(verbose bool, configured string) zapcore.Level {
	if verbose {
		return zapcore.DebugLevel
	}
	return observability.ParseLevel(configured)
}

// currentConfig returns the configuration loaded for this invocation.
func currentConfig() *config.Config {
	if loadedConfig != nil {
		return loadedConfig
	}
	return config.GetConfig()
}

// Execute runs the root command and returns the process exit code.
func Execute(ctx context.Context) int {
	err := rootCmd.ExecuteContext(ctx)
	if err == nil {
		return 0
	}
	fmt.Fprintln(os.Stderr, "Error:", err)
	return ExitCode(err)
}

// cliError carries the exit code for a failed command.
type cliError struct {
	code    int
	message string
	err     error
}

func (e *cliError) Error() string {
	if e.err == nil {
		return e.message
	}
	return fmt.Sprintf("%s: %v", e.message, e.err)
}

func (e *cliError) Unwrap() error { return e.err }

// exitError creates an error that will cause the CLI to exit with the given code.
func exitError(code int, message string, err error) error {
	return &cliError{code: code, message: message, err: err}
}

// ExitCode maps err to a process exit code.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var ce *cliError
	if errors.As(err, &ce) {
		return ce.code
	}
	return exitFailure
}
