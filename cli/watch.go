package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/petal-labs/namewatch/dbusconn"
	"github.com/petal-labs/namewatch/watch"
)

// NewWatchCmd creates the "watch" subcommand.
func NewWatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch <name>...",
		Short: "Wait for bus names to disappear",
		Long: "Watch one or more bus names and report when each loses its owner.\n" +
			"By default the command returns after the first name disappears.",
		Args: cobra.MinimumNArgs(1),
		RunE: runWatch,
	}

	cmd.Flags().String("bus", "system", "Bus to connect to: system | session | <address>")
	cmd.Flags().Bool("all", false, "Wait until every watched name has disappeared")
	cmd.Flags().Duration("timeout", 0, "Give up after this long (0 = wait forever)")
	cmd.Flags().String("format", "text", "Output format: text | json")

	return cmd
}

func runWatch(cmd *cobra.Command, args []string) error {
	bus, _ := cmd.Flags().GetString("bus")
	waitAll, _ := cmd.Flags().GetBool("all")
	timeout, _ := cmd.Flags().GetDuration("timeout")
	format, _ := cmd.Flags().GetString("format")
	out := cmd.OutOrStdout()

	if format != "text" && format != "json" {
		return exitError(exitConfig, "unknown format %q (want text or json)", format)
	}

	names := dedupe(args)

	conn, err := dbusconn.Connect(dbusconn.Config{Bus: bus})
	if err != nil {
		return exitError(exitConnect, "connecting to %s bus: %v", bus, err)
	}
	defer func() {
		_ = conn.Close()
	}()

	// Each name fires at most once, so a buffer of len(names) means
	// the dispatch goroutine never blocks on us.
	fired := make(chan string, len(names))

	watcher, err := watch.NewWatcher(watch.WatcherConfig{Conn: conn})
	if err != nil {
		return exitError(exitRuntime, "creating watcher: %v", err)
	}
	for _, name := range names {
		err := watcher.Watch(name, func(lost string, _ any) {
			fired <- lost
		}, name)
		if err != nil {
			return exitError(exitRuntime, "watching %q: %v", name, err)
		}
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	want := 1
	if waitAll {
		want = len(names)
	}

	for seen := 0; seen < want; {
		select {
		case name := <-fired:
			seen++
			printFiring(out, format, name)
		case <-ctx.Done():
			if ctx.Err() == context.DeadlineExceeded {
				return exitError(exitTimeout, "timed out after %s with %d of %d names still present",
					timeout, len(names)-seen, len(names))
			}
			// Interrupted by the user; not an error.
			return nil
		}
	}
	return nil
}

func printFiring(out io.Writer, format, name string) {
	if format == "json" {
		_ = json.NewEncoder(out).Encode(map[string]string{
			"event":   "name.lost",
			"name":    name,
			"lost_at": time.Now().UTC().Format(time.RFC3339Nano),
		})
		return
	}
	fmt.Fprintf(out, "lost %s\n", name)
}

func dedupe(names []string) []string {
	seen := make(map[string]struct{}, len(names))
	out := make([]string, 0, len(names))
	for _, name := range names {
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		out = append(out, name)
	}
	return out
}
