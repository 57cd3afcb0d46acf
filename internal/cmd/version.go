package cmd

import (
	"fmt"
	"runtime"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"
)

var versionJSON bool

var versionCmd = &cobra.Command{
	Use:               "version",
	Short:             "Print version information",
	Args:              cobra.NoArgs,
	PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
	RunE: func(cmd *cobra.Command, _ []string) error {
		if versionJSON {
			b, err := json.Marshal(versionInfo)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), string(b))
			return err
		}
		_, err := fmt.Fprintf(cmd.OutOrStdout(), "%s %s (commit %s, built %s, %s/%s)\n",
			rootCmd.Name(), versionInfo.Version, versionInfo.Commit, versionInfo.BuildDate,
			runtime.GOOS, runtime.GOARCH)
		return err
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
	versionCmd.Flags().BoolVar(&versionJSON, "json", false, "Print as JSON")
}
