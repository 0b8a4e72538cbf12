package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/petal-labs/namewatch/daemon"
	"github.com/petal-labs/namewatch/journal"
)

// NewJournalCmd creates the "journal" subcommand.
func NewJournalCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "journal",
		Short: "List journaled name disappearances",
		RunE:  runJournal,
	}

	cmd.Flags().String("dsn", "", "SQLite journal path (default: the journal DSN from the config file)")
	cmd.Flags().String("config", "", "Path to config file")
	cmd.Flags().String("name", "", "Only show firings for this name")
	cmd.Flags().Int("limit", 0, "Maximum number of firings to show (0 = all)")
	cmd.Flags().String("format", "text", "Output format: text | json")

	return cmd
}

func runJournal(cmd *cobra.Command, _ []string) error {
	dsn, _ := cmd.Flags().GetString("dsn")
	explicitPath, _ := cmd.Flags().GetString("config")
	name, _ := cmd.Flags().GetString("name")
	limit, _ := cmd.Flags().GetInt("limit")
	format, _ := cmd.Flags().GetString("format")
	out := cmd.OutOrStdout()

	if format != "text" && format != "json" {
		return exitError(exitConfig, "unknown format %q (want text or json)", format)
	}
	if limit < 0 {
		return exitError(exitConfig, "limit must not be negative")
	}

	if dsn == "" {
		path, found, err := daemon.DiscoverConfigPath(explicitPath)
		if err != nil {
			return exitError(exitFileNotFound, "%v", err)
		}
		if !found {
			return exitError(exitConfig, "no journal DSN: pass --dsn or configure journal.dsn in a config file")
		}
		cfg, err := daemon.LoadConfig(path)
		if err != nil {
			return exitError(exitConfig, "%v", err)
		}
		dsn = cfg.Journal.DSN
		if dsn == "" {
			return exitError(exitConfig, "config %q has no journal.dsn (the daemon is using an in-memory journal)", path)
		}
	}

	j, err := journal.NewSQLiteJournal(journal.SQLiteJournalConfig{DSN: dsn})
	if err != nil {
		return exitError(exitRuntime, "opening journal: %v", err)
	}
	defer func() {
		_ = j.Close()
	}()

	records, err := j.List(cmd.Context(), name, limit)
	if err != nil {
		return exitError(exitRuntime, "listing journal: %v", err)
	}

	return printJournal(out, format, records)
}

func printJournal(out io.Writer, format string, records []journal.Record) error {
	if format == "json" {
		if records == nil {
			records = []journal.Record{}
		}
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(records)
	}

	if len(records) == 0 {
		fmt.Fprintln(out, "no firings recorded")
		return nil
	}
	for _, rec := range records {
		fmt.Fprintf(out, "%s  %s  was %s  (%d callbacks)\n",
			rec.FiredAt.UTC().Format(time.RFC3339), rec.Name, rec.OldOwner, rec.Callbacks)
	}
	return nil
}
