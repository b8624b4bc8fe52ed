package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"attentionguard/internal/labels"
	"attentionguard/internal/observe"
)

func newClassifyCommand(ctx *commandContext) *cobra.Command {
	var sourceID string
	var textFlag string
	var itemID string
	var explicitAd bool
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "classify",
		Short: "Match text against a source's rules and print the classification",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			registry, err := ctx.registry()
			if err != nil {
				return err
			}
			src, err := resolveSource(registry, sourceID)
			if err != nil {
				return err
			}

			text := textFlag
			if text == "" {
				data, err := io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return fmt.Errorf("read stdin: %w", err)
				}
				text = strings.TrimSpace(string(data))
			}
			if text == "" {
				return fmt.Errorf("no text to classify")
			}

			ev := observe.Evaluator{Source: src, Rules: registry.Rules(src.ID), Normalize: cfg.Classification.NormalizeText}
			result := ev.Evaluate(observe.Candidate{ID: itemID, Text: text, Ad: explicitAd})
			if jsonOutput {
				return writeJSON(cmd, result)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "ID:             %s\n", result.ID)
			fmt.Fprintf(out, "Classification: %s\n", result.Classification)
			fmt.Fprintf(out, "Severity:       %s\n", labels.HighestSeverity(result.Labels))
			if len(result.Labels) == 0 {
				fmt.Fprintln(out, "No evidence labels")
				return nil
			}
			rows := make([][]string, 0, len(result.Labels))
			for _, lbl := range result.Labels {
				rows = append(rows, []string{lbl.Category, string(lbl.Kind), string(lbl.Severity), lbl.Text})
			}
			fmt.Fprintln(out, renderTable([]string{"Category", "Kind", "Severity", "Evidence"}, rows, nil))
			return nil
		},
	}
	cmd.Flags().StringVarP(&sourceID, "source", "s", "", "Source id whose rules apply (reddit, twitter, ...)")
	cmd.Flags().StringVarP(&textFlag, "text", "t", "", "Text to classify (default: read stdin)")
	cmd.Flags().StringVar(&itemID, "id", "", "Stable item id exposed by the source")
	cmd.Flags().BoolVar(&explicitAd, "ad", false, "Mark the item as structurally identified advertising")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Emit JSON")
	_ = cmd.MarkFlagRequired("source")
	return cmd
}
