package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"coursedrop/internal/history"
)

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	var outcomeFlag string
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent upload outcomes",
		RunE: func(cmd *cobra.Command, args []string) error {
			filter, err := historyFilter(outcomeFlag, limit)
			if err != nil {
				return err
			}
			return ctx.withHistory(func(store *history.Store) error {
				entries, err := store.List(cmd.Context(), filter)
				if err != nil {
					return err
				}
				if ctx.JSONMode() {
					if entries == nil {
						entries = []history.Entry{}
					}
					return writeJSON(cmd, entries)
				}
				out := cmd.OutOrStdout()
				if len(entries) == 0 {
					fmt.Fprintln(out, "No uploads recorded")
					return nil
				}
				rows := make([][]string, 0, len(entries))
				for _, e := range entries {
					where := e.Destination
					if e.Outcome == history.OutcomeRejected {
						where = e.Message
					}
					rows = append(rows, []string{
						fmt.Sprintf("%d", e.ID),
						e.CreatedAt.Local().Format(time.DateTime),
						e.Filename,
						string(e.Outcome),
						where,
					})
				}
				fmt.Fprintln(out, renderTable(
					[]string{"ID", "When", "File", "Outcome", "Destination / Reason"},
					rows,
					[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft, alignLeft},
				))
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&outcomeFlag, "outcome", "", "Filter by outcome (placed, rejected)")
	cmd.Flags().IntVarP(&limit, "limit", "n", history.DefaultListLimit, "Maximum rows to show")
	cmd.AddCommand(newHistoryClearCommand(ctx))
	return cmd
}

func newHistoryClearCommand(ctx *commandContext) *cobra.Command {
	var outcomeFlag string

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete upload history rows",
		RunE: func(cmd *cobra.Command, args []string) error {
			filter, err := historyFilter(outcomeFlag, 0)
			if err != nil {
				return err
			}
			return ctx.withHistory(func(store *history.Store) error {
				removed, err := store.Clear(cmd.Context(), filter.Outcome)
				if err != nil {
					return err
				}
				if ctx.JSONMode() {
					return writeJSON(cmd, map[string]any{"removed": removed})
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed %d history entries\n", removed)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&outcomeFlag, "outcome", "", "Only clear rows with this outcome (placed, rejected)")
	return cmd
}

func historyFilter(outcomeFlag string, limit int) (history.Filter, error) {
	filter := history.Filter{Limit: limit}
	value := strings.ToLower(strings.TrimSpace(outcomeFlag))
	if value == "" {
		return filter, nil
	}
	outcome, ok := history.ParseOutcome(value)
	if !ok {
		return filter, fmt.Errorf("invalid outcome %q (use placed or rejected)", outcomeFlag)
	}
	filter.Outcome = outcome
	return filter, nil
}
