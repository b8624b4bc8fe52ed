package main

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"attentionguard/internal/ipc"
	"attentionguard/internal/records"
	"attentionguard/internal/sources"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "status [source]",
		Short: "Show daemon status and aggregated statistics",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			registry, err := ctx.registry()
			if err != nil {
				return err
			}
			return ctx.withClient(cmd, func(rpcCtx context.Context, client *ipc.Client) error {
				status, err := client.Status(rpcCtx)
				if err != nil {
					return err
				}
				list, err := client.ListRecords(rpcCtx)
				if err != nil {
					return err
				}
				recs := list.Records
				if len(args) == 1 {
					resp, err := client.GetStats(rpcCtx, args[0])
					if err != nil {
						return err
					}
					if !resp.Found {
						return fmt.Errorf("no statistics for source %q", args[0])
					}
					recs = []records.Record{resp.Record}
				}
				if jsonOutput {
					return writeJSON(cmd, map[string]any{"status": status, "records": recs})
				}

				out := cmd.OutOrStdout()
				colorize := shouldColorize(out)
				for _, line := range renderSectionHeader("Daemon", colorize) {
					fmt.Fprintln(out, line)
				}
				fmt.Fprintln(out, renderStatusLine("Daemon", statusOK, fmt.Sprintf("running (pid %d)", status.PID), colorize))
				persistKind, persistText := statusInfo, "ephemeral (memory)"
				if status.Aggregate.Durable {
					persistKind, persistText = statusOK, "durable ("+status.Aggregate.Backend+")"
				}
				fmt.Fprintln(out, renderStatusLine("Persistence", persistKind, persistText, colorize))
				fmt.Fprintln(out, renderStatusLine("Surfaces", statusInfo, strconv.Itoa(status.Aggregate.ActiveSurfaces)+" active", colorize))
				if status.APIAddress != "" {
					fmt.Fprintln(out, renderStatusLine("HTTP API", statusInfo, status.APIAddress, colorize))
				}
				fmt.Fprintln(out)

				if len(recs) == 0 {
					fmt.Fprintln(out, "No statistics recorded yet")
					return nil
				}
				fmt.Fprintln(out, renderRecordsTable(recs, registry, colorize))
				if len(args) == 1 {
					fmt.Fprintln(out, renderBreakdown(recs[0]))
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Emit JSON")
	return cmd
}

func renderRecordsTable(recs []records.Record, registry *sources.Registry, colorize bool) string {
	rows := make([][]string, 0, len(recs))
	for _, rec := range recs {
		name := rec.Source
		if src, ok := registry.Lookup(rec.Source); ok {
			name = accent(src.Name, src.Color, colorize)
		}
		rows = append(rows, []string{
			name,
			strconv.Itoa(rec.Total),
			strconv.Itoa(rec.Ads),
			strconv.Itoa(rec.Algorithmic),
			strconv.Itoa(rec.Social),
			strconv.Itoa(rec.Organic),
			fmt.Sprintf("%.1f%%", rec.Rate()),
			formatWhen(rec.LastUpdate),
		})
	}
	return renderTable(
		[]string{"Source", "Total", "Ads", "Algorithmic", "Social", "Organic", "Rate", "Updated"},
		rows,
		recordsFooter(recs),
	)
}

// recordsFooter sums the counts of several records; a single record needs
// no footer.
func recordsFooter(recs []records.Record) []string {
	if len(recs) < 2 {
		return nil
	}
	var sum records.Record
	for _, rec := range recs {
		sum.Total += rec.Total
		sum.Ads += rec.Ads
		sum.Algorithmic += rec.Algorithmic
		sum.Social += rec.Social
		sum.Organic += rec.Organic
	}
	return []string{
		"All",
		strconv.Itoa(sum.Total),
		strconv.Itoa(sum.Ads),
		strconv.Itoa(sum.Algorithmic),
		strconv.Itoa(sum.Social),
		strconv.Itoa(sum.Organic),
		fmt.Sprintf("%.1f%%", sum.Rate()),
		"",
	}
}

func renderBreakdown(rec records.Record) string {
	var rows [][]string
	for _, name := range sortedKeys(rec.Categories) {
		rows = append(rows, []string{"category", name, strconv.Itoa(rec.Categories[name])})
	}
	for _, name := range sortedKeys(rec.Severities) {
		rows = append(rows, []string{"severity", name, strconv.Itoa(rec.Severities[name])})
	}
	if len(rows) == 0 {
		return "No labelled evidence"
	}
	return renderTable([]string{"Kind", "Name", "Count"}, rows, nil)
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func formatWhen(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04:05")
}

func newResetCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "reset [source]",
		Short: "Reset statistics for one source, or all sources",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			source := ""
			if len(args) == 1 {
				source = strings.ToLower(strings.TrimSpace(args[0]))
			}
			return ctx.withClient(cmd, func(rpcCtx context.Context, client *ipc.Client) error {
				if _, err := client.Reset(rpcCtx, source); err != nil {
					return err
				}
				if source == "" {
					fmt.Fprintln(cmd.OutOrStdout(), "Reset statistics for all sources")
				} else {
					fmt.Fprintf(cmd.OutOrStdout(), "Reset statistics for %s\n", source)
				}
				return nil
			})
		},
	}
}

func newPersistCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:       "persist on|off",
		Short:     "Toggle durable persistence of statistics",
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"on", "off"},
		RunE: func(cmd *cobra.Command, args []string) error {
			durable := args[0] == "on"
			return ctx.withClient(cmd, func(rpcCtx context.Context, client *ipc.Client) error {
				resp, err := client.SetPersistence(rpcCtx, durable)
				if err != nil {
					return err
				}
				if resp.Durable {
					fmt.Fprintf(cmd.OutOrStdout(), "Durable persistence enabled (%s)\n", resp.Backend)
				} else {
					fmt.Fprintln(cmd.OutOrStdout(), "Durable persistence disabled; statistics last until the daemon exits")
				}
				return nil
			})
		},
	}
}
