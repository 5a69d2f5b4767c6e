package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mercantile/chatkit/internal/config"
)

// Version information (injected at build time via ldflags)
var (
	AppVersion = "development"
	BuildTime  = "unknown"
	GitCommit  = "unknown"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runVersion(cmd)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}

func runVersion(cmd *cobra.Command) error {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "chatkit %s\n", AppVersion)
	fmt.Fprintf(out, "Build Time: %s\n", BuildTime)
	fmt.Fprintf(out, "Git Commit: %s\n", GitCommit)

	// Configuration is informational here; a broken config file should not
	// prevent the version from printing.
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(out, "\nConfiguration: unavailable (%v)\n", err)
		return nil
	}

	fmt.Fprintln(out, "\nConfiguration:")
	fmt.Fprintf(out, "  Endpoint: %s\n", cfg.Endpoint)
	if cfg.Token != "" {
		fmt.Fprintln(out, "  Token: configured")
	} else {
		fmt.Fprintln(out, "  Token: not set (export CHATKIT_TOKEN=your-token)")
	}
	fmt.Fprintf(out, "  Upload caps: %d files, %d bytes\n", cfg.MaxUploadFiles, cfg.MaxUploadBytes)
	fmt.Fprintf(out, "  History page size: %d\n", cfg.HistoryPageSize)
	return nil
}
