package main

import (
	"fmt"
	"io"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"attentionguard/internal/aggregate"
	"attentionguard/internal/ipc"
)

const watchPollWait = 10 * time.Second

func newWatchCommand(ctx *commandContext) *cobra.Command {
	var since uint64
	var once bool
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Follow aggregator events from the daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.dialClient()
			if err != nil {
				return err
			}
			defer client.Close()

			runCtx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)
			wait := int(watchPollWait / time.Millisecond)
			if once {
				wait = 0
			}
			for {
				resp, err := client.Events(runCtx, ipc.EventsRequest{Since: since, WaitMillis: wait})
				if err != nil {
					if runCtx.Err() != nil {
						return nil
					}
					return err
				}
				since = resp.Next
				for _, evt := range resp.Events {
					if jsonOutput {
						if err := writeJSON(cmd, evt); err != nil {
							return err
						}
						continue
					}
					printEvent(out, evt, colorize)
				}
				if once {
					return nil
				}
			}
		},
	}
	cmd.Flags().Uint64Var(&since, "since", 0, "Only show events after this sequence")
	cmd.Flags().BoolVar(&once, "once", false, "Print buffered events and exit")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Emit one JSON object per event")
	return cmd
}

func printEvent(out io.Writer, evt aggregate.Event, colorize bool) {
	parts := []string{
		fmt.Sprintf("#%d", evt.Sequence),
		evt.Timestamp.Local().Format("15:04:05"),
		string(evt.Type),
	}
	if evt.Source != "" {
		parts = append(parts, "source="+evt.Source)
	}
	if evt.SurfaceID != "" {
		parts = append(parts, "surface="+evt.SurfaceID)
	}
	switch {
	case evt.Indicator != nil:
		parts = append(parts, renderIndicator(*evt.Indicator, colorize))
	case evt.Stats != nil:
		parts = append(parts, fmt.Sprintf("total=%d rate=%.1f%%", evt.Stats.Total, evt.Stats.Rate()))
	case evt.Durable != nil:
		parts = append(parts, "durable="+yesNo(*evt.Durable))
	}
	if evt.Address != "" {
		parts = append(parts, "address="+evt.Address)
	}
	fmt.Fprintln(out, strings.Join(parts, " "))
}
