package commands

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/openfroyo/pinpoint-eventstream/pkg/stores"
)

func newHistoryCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Read the invocation journal",
		Long: `The journal is an optional SQLite database recording every invocation
and each step's outcome. Enable it with journal.enabled and journal.path, or
by setting EVENTSTREAM_JOURNAL_PATH.

The journal is audit history only. Create and delete never read it.`,
	}

	cmd.AddCommand(newHistoryListCommand())
	cmd.AddCommand(newHistoryShowCommand())
	cmd.AddCommand(newHistoryPruneCommand())

	return cmd
}

func newHistoryListCommand() *cobra.Command {
	var (
		appID  string
		limit  int
		offset int
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recent invocations, newest first",
		Example: `  eventstreamctl history list
  eventstreamctl history list --app-id app123 --limit 10`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withJournal(cmd.Context(), func(store *stores.SQLiteStore) error {
				invocations, err := store.ListInvocations(cmd.Context(), stores.ListOptions{
					ApplicationID: appID,
					Limit:         limit,
					Offset:        offset,
				})
				if err != nil {
					return err
				}

				out := cmd.OutOrStdout()
				if jsonOutput {
					return printJSON(out, invocations)
				}
				if len(invocations) == 0 {
					fmt.Fprintln(out, "No invocations recorded.")
					return nil
				}

				table := newTable(out, "ID", "EVENT", "APPLICATION", "PHASE", "STARTED", "ERROR")
				for _, inv := range invocations {
					table.Append([]string{
						inv.ID,
						inv.EventType,
						inv.ApplicationID,
						inv.Phase,
						inv.StartedAt.Local().Format(time.DateTime),
						deref(inv.ErrorKind),
					})
				}
				table.Render()
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&appID, "app-id", "", "only show this application")
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum number of invocations")
	cmd.Flags().IntVar(&offset, "offset", 0, "skip this many invocations")

	return cmd
}

func newHistoryShowCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <invocation-id>",
		Short: "Show one invocation and its steps",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withJournal(cmd.Context(), func(store *stores.SQLiteStore) error {
				inv, err := store.GetInvocation(cmd.Context(), args[0])
				if err != nil {
					return err
				}

				out := cmd.OutOrStdout()
				if jsonOutput {
					return printJSON(out, inv)
				}

				fmt.Fprintf(out, "Invocation: %s\n", inv.ID)
				fmt.Fprintf(out, "Event:      %s %s\n", inv.EventType, inv.ApplicationID)
				if inv.RequestID != "" {
					fmt.Fprintf(out, "Request:    %s\n", inv.RequestID)
				}
				fmt.Fprintf(out, "Phase:      %s\n", inv.Phase)
				fmt.Fprintf(out, "Started:    %s\n", inv.StartedAt.Local().Format(time.DateTime))
				if inv.CompletedAt != nil {
					fmt.Fprintf(out, "Took:       %s\n", inv.CompletedAt.Sub(inv.StartedAt).Round(time.Millisecond))
				}
				if inv.StreamArn != "" {
					fmt.Fprintf(out, "StreamArn:  %s\n", inv.StreamArn)
				}
				if inv.PinpointRoleArn != "" {
					fmt.Fprintf(out, "RoleArn:    %s\n", inv.PinpointRoleArn)
				}
				if inv.Error != nil {
					fmt.Fprintf(out, "Error:      [%s] %s\n", deref(inv.ErrorKind), *inv.Error)
				}

				if len(inv.Steps) == 0 {
					return nil
				}
				fmt.Fprintln(out)
				table := newTable(out, "#", "STEP", "RESOURCE", "STATUS", "DURATION", "ERROR")
				for _, s := range inv.Steps {
					table.Append([]string{
						fmt.Sprint(s.Seq),
						s.Name,
						s.Resource,
						s.Status,
						s.Duration.Round(time.Millisecond).String(),
						deref(s.Error),
					})
				}
				table.Render()
				return nil
			})
		},
	}
	return cmd
}

func newHistoryPruneCommand() *cobra.Command {
	var olderThan time.Duration

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete invocations older than a cutoff",
		Example: `  # Keep the last 30 days
  eventstreamctl history prune --older-than 720h`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if olderThan <= 0 {
				return fmt.Errorf("--older-than must be positive")
			}
			return withJournal(cmd.Context(), func(store *stores.SQLiteStore) error {
				n, err := store.DeleteInvocationsBefore(cmd.Context(), time.Now().Add(-olderThan))
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if jsonOutput {
					return printJSON(out, map[string]int64{"deleted": n})
				}
				fmt.Fprintf(out, "Deleted %d invocation(s)\n", n)
				return nil
			})
		},
	}

	cmd.Flags().DurationVar(&olderThan, "older-than", 30*24*time.Hour, "age of the newest invocation to delete")
	return cmd
}

// withJournal opens the configured journal for fn. It fails when the
// journal is not configured rather than creating an empty one.
func withJournal(ctx context.Context, fn func(store *stores.SQLiteStore) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if !cfg.Journal.Enabled {
		return fmt.Errorf("journal is not enabled; set journal.enabled or EVENTSTREAM_JOURNAL_PATH")
	}

	store, err := stores.Open(ctx, stores.Config{Path: cfg.Journal.Path})
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.HealthCheck(ctx); err != nil {
		return fmt.Errorf("journal %s is not usable: %w", cfg.Journal.Path, err)
	}
	return fn(store)
}

func newTable(w io.Writer, headers ...string) *tablewriter.Table {
	table := tablewriter.NewWriter(w)
	table.SetHeader(headers)
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(true)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("  ")
	table.SetNoWhiteSpace(true)
	return table
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
