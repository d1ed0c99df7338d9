package main

import (
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newCLI().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "geolookup",
		Short: "Look up IP addresses in a MaxMind DB",
		Long: `geolookup answers IP address queries from a MaxMind DB file,
either as an HTTP and gRPC service or directly on the command line.`,
		Args:                  cobra.NoArgs,
		DisableFlagsInUseLine: true,
		Run: func(cmd *cobra.Command, _ []string) {
			_ = cmd.Help()
		},
	}
}

// newCLI assembles the root command with all of its subcommands.
func newCLI() *cobra.Command {
	rootCmd := newRootCmd()
	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newLookupCmd())
	rootCmd.AddCommand(newVerifyCmd())

	return rootCmd
}

// setupLogger installs a JSON slog logger writing to w as the default.
func setupLogger(w io.Writer, level slog.Level) *slog.Logger {
	logger := slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)
	return logger
}
