package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/rhuss/homebrain/pkg/api"
	"github.com/rhuss/homebrain/pkg/transport"
)

func newThreadsCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "threads",
		Short: "Inspect stored threads",
		Long: `Inspect threads in the configured store. Only the sqlite and postgres
stores outlive a process, so with the memory store these commands see
nothing.`,
	}

	var (
		limit  int
		order  string
		asJSON bool
	)

	list := &cobra.Command{
		Use:   "list",
		Short: "List threads, most recently updated first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withStore(cmd.Context(), opts, func(store transport.CheckpointStore) error {
				threads, err := store.List(cmd.Context(), transport.ListOptions{Limit: limit, Order: order}.Normalize())
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd.OutOrStdout(), threads)
				}
				return printThreads(cmd.OutOrStdout(), threads)
			})
		},
	}
	list.Flags().IntVar(&limit, "limit", 20, "maximum number of threads (1-100)")
	list.Flags().StringVar(&order, "order", "desc", "sort by last update: asc or desc")
	list.Flags().BoolVar(&asJSON, "json", false, "print JSON")

	show := &cobra.Command{
		Use:   "show <thread-id>",
		Short: "Show a thread's routing state and history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !api.ValidateThreadID(args[0]) {
				return fmt.Errorf("invalid thread id %q", args[0])
			}
			return withStore(cmd.Context(), opts, func(store transport.CheckpointStore) error {
				state, err := store.Load(cmd.Context(), args[0])
				if err != nil {
					return fmt.Errorf("load thread %s: %w", args[0], err)
				}
				if asJSON {
					return writeJSON(cmd.OutOrStdout(), state)
				}
				return printThread(cmd.OutOrStdout(), state)
			})
		},
	}
	show.Flags().BoolVar(&asJSON, "json", false, "print JSON")

	cmd.AddCommand(list, show)
	return cmd
}

func withStore(ctx context.Context, opts *rootOptions, fn func(transport.CheckpointStore) error) error {
	cfg, err := opts.load()
	if err != nil {
		return err
	}
	if cfg.Storage.Type == "memory" {
		slog.Warn("memory storage is empty in a new process; configure sqlite or postgres")
	}
	store, err := openStore(ctx, cfg.Storage)
	if err != nil {
		return err
	}
	defer store.Close()
	return fn(store)
}

func printThreads(w io.Writer, list *api.ThreadList) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "THREAD\tROUTE\tMESSAGES\tSTATUS\tUPDATED")
	for _, t := range list.Data {
		status := "resolved"
		if t.Suspended {
			status = "awaiting clarification"
		}
		route := string(t.Route)
		if route == "" {
			route = "-"
		}
		updated := time.Unix(t.UpdatedAt, 0).UTC().Format(time.RFC3339)
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\n", t.ThreadID, route, t.MessageCount, status, updated)
	}
	return tw.Flush()
}

func printThread(w io.Writer, s *api.ConversationState) error {
	fmt.Fprintf(w, "thread:     %s (version %d)\n", s.ThreadID, s.Version)
	fmt.Fprintf(w, "route:      %s (confidence %.2f, %s)\n", s.Route, s.RouteConfidence, s.RouteReason)
	if s.NeedsHumanReview {
		fmt.Fprintln(w, "review:     flagged")
	}
	if s.Pending != nil {
		fmt.Fprintf(w, "pending:    %s %v\n", s.Pending.Prompt, s.Pending.Options)
	}
	fmt.Fprintf(w, "updated:    %s\n\n", s.UpdatedAt.UTC().Format(time.RFC3339))

	for _, m := range s.Messages {
		label := string(m.Role)
		if m.Name != "" {
			label += "(" + m.Name + ")"
		}
		text := m.Text()
		for _, c := range m.ToolCalls {
			text += fmt.Sprintf(" [call %s %s]", c.Name, c.Arguments)
		}
		fmt.Fprintf(w, "%-16s %s\n", label+":", text)
	}
	return nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
