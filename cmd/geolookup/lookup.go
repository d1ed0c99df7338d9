package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/TomasB/geolookup/internal/config"
	"github.com/TomasB/geolookup/internal/data"
	"github.com/TomasB/geolookup/internal/handler/lookup"
	"github.com/spf13/cobra"
)

func newLookupCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "lookup IP...",
		Short: "Print the record of each IP address as one JSON line",
		Long: `Print the record of each IP address as one JSON line.

Records keep the key order of the database. Addresses that cannot be
looked up are printed with an error and make the command fail after all
addresses have been processed.`,
		Args:         cobra.MinimumNArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := dbPath(cmd)
			if err != nil {
				return err
			}
			setupLogger(os.Stderr, levelFlag(cmd))

			reader, err := data.Open(path)
			if err != nil {
				return err
			}
			defer reader.Close()

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetEscapeHTML(false)

			failed := 0
			for _, ip := range args {
				res, err := reader.Lookup(ip)
				line := lookup.NewResponse(ip, res)
				if err != nil {
					line.Error = err.Error()
					failed++
				}
				if err := enc.Encode(line); err != nil {
					return fmt.Errorf("failed to write result: %w", err)
				}
			}

			if failed > 0 {
				return fmt.Errorf("%d of %d lookups failed", failed, len(args))
			}
			return nil
		},
	}

	cmd.Flags().String("db", "", "path to the MaxMind DB file [MMDB_PATH]")
	cmd.Flags().String("log-level", "warn", "debug, info, warn or error")
	return cmd
}

func newVerifyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "verify",
		Short:        "Verify the structure of a database and print its metadata",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path, err := dbPath(cmd)
			if err != nil {
				return err
			}
			setupLogger(os.Stderr, levelFlag(cmd))

			reader, err := data.Open(path, data.WithVerify())
			if err != nil {
				return err
			}
			defer reader.Close()

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(reader.Metadata())
		},
	}

	cmd.Flags().String("db", "", "path to the MaxMind DB file [MMDB_PATH]")
	cmd.Flags().String("log-level", "warn", "debug, info, warn or error")
	return cmd
}

// dbPath resolves the database path from --db or MMDB_PATH.
func dbPath(cmd *cobra.Command) (string, error) {
	vip := config.DefaultViper()
	if err := config.BindFlags(vip, cmd.Flags()); err != nil {
		return "", err
	}
	path := vip.GetString("mmdb_path")
	if path == "" {
		return "", errors.New("no database given: use --db or set MMDB_PATH")
	}
	return path, nil
}

func levelFlag(cmd *cobra.Command) slog.Level {
	level, _ := cmd.Flags().GetString("log-level")
	return config.ParseLevel(level)
}
