package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"attentionguard/internal/aggregate"
	"attentionguard/internal/ipc"
	"attentionguard/internal/logging"
	"attentionguard/internal/observe"
)

const (
	maxFeedLine      = 1 << 20
	refreshPollWait  = 10 * time.Second
	refreshRetryWait = time.Second
)

func newFeedCommand(ctx *commandContext) *cobra.Command {
	var sourceID string
	var surfaceID string
	var address string
	var closeOnExit bool

	cmd := &cobra.Command{
		Use:   "feed",
		Short: "Observe a surface fed by JSON lines on stdin and report to the daemon",
		Long: "Each stdin line is a JSON object {\"id\",\"text\",\"labels\",\"ad\",\"signals\"}.\n" +
			"Lines are classified, de-duplicated per surface and reported as cumulative\n" +
			"statistics. The command exits after stdin closes and a final report.",
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
			if strings.TrimSpace(surfaceID) == "" {
				surfaceID = "feed-" + uuid.NewString()[:8]
			}

			logger, err := logging.New(logging.Options{Level: cfg.Logging.Level, Format: cfg.Logging.Format, OutputPaths: []string{"stderr"}})
			if err != nil {
				return err
			}

			client, err := ctx.dialClient()
			if err != nil {
				return err
			}
			defer client.Close()

			runCtx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if address != "" {
				if _, err := client.SurfaceActivated(runCtx, surfaceID, address); err != nil {
					return fmt.Errorf("activate surface: %w", err)
				}
			}
			status, err := client.Status(runCtx)
			if err != nil {
				return err
			}

			feed := observe.NewFeed()
			loop, err := observe.New(observe.Options{
				SurfaceID: surfaceID,
				Source:    src,
				Rules:     registry.Rules(src.ID),
				Adapter:   feed,
				Reporter:  ipc.Reporter{Client: client},
				Changes:   feed,
				Normalize: cfg.Classification.NormalizeText,
				Defaults: observe.Timing{
					Debounce:   cfg.DefaultDebounce(),
					CheckDelay: cfg.CheckDelay(),
					Periodic:   cfg.PeriodicInterval(),
				},
				Logger: logger,
			})
			if err != nil {
				return err
			}
			if err := loop.Start(runCtx); err != nil {
				return err
			}

			watchCtx, cancelWatch := context.WithCancel(runCtx)
			g, gctx := errgroup.WithContext(watchCtx)
			g.Go(func() error {
				followDaemon(gctx, client, surfaceID, src.ID, status.Aggregate.LastEvent, feed, loop)
				return nil
			})
			readErr := readCandidates(runCtx, cmd.InOrStdin(), feed, cmd.ErrOrStderr())
			cancelWatch()
			_ = g.Wait()

			drainCtx, cancelDrain := context.WithTimeout(context.WithoutCancel(runCtx), rpcTimeout)
			defer cancelDrain()
			if err := loop.Drain(drainCtx); err != nil {
				return err
			}
			if closeOnExit {
				_ = client.SurfaceClosed(drainCtx, surfaceID)
			}
			if readErr != nil {
				return readErr
			}

			stats := loop.Stats()
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s: %d items (ads %d, algorithmic %d, social %d, organic %d), manipulation rate %.1f%%\n",
				src.Name, surfaceID, stats.Total, stats.Ads, stats.Algorithmic, stats.Social, stats.Organic, stats.Rate)
			return nil
		},
	}
	cmd.Flags().StringVarP(&sourceID, "source", "s", "", "Source id of the observed surface")
	cmd.Flags().StringVar(&surfaceID, "surface", "", "Surface id (default: generated)")
	cmd.Flags().StringVar(&address, "address", "", "Report the surface as navigated to this address first")
	cmd.Flags().BoolVar(&closeOnExit, "close", false, "Report the surface closed on exit")
	_ = cmd.MarkFlagRequired("source")
	return cmd
}

// readCandidates appends each JSON line of r to feed until EOF. Malformed
// lines are reported and skipped.
func readCandidates(ctx context.Context, r io.Reader, feed *observe.Feed, errOut io.Writer) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxFeedLine)
	lineNo := 0
	for scanner.Scan() {
		if ctx.Err() != nil {
			return nil
		}
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var c observe.Candidate
		if err := json.Unmarshal([]byte(line), &c); err != nil {
			fmt.Fprintf(errOut, "line %d: skipping malformed candidate: %v\n", lineNo, err)
			continue
		}
		feed.Append(c)
	}
	if err := scanner.Err(); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("read candidates: %w", err)
	}
	return nil
}

// followDaemon long-polls the daemon. A refresh request aimed at surfaceID
// forces a rescan; a reset of sourceID (or of every source) clears the feed
// and the loop's session so the cleared record stays cleared.
func followDaemon(ctx context.Context, client *ipc.Client, surfaceID, sourceID string, since uint64, feed *observe.Feed, loop *observe.Loop) {
	for ctx.Err() == nil {
		resp, err := client.Events(ctx, ipc.EventsRequest{Since: since, WaitMillis: int(refreshPollWait / time.Millisecond)})
		if err != nil {
			select {
			case <-ctx.Done():
				return
			case <-time.After(refreshRetryWait):
			}
			continue
		}
		since = resp.Next
		for _, evt := range resp.Events {
			applyDaemonEvent(ctx, evt, surfaceID, sourceID, feed, loop)
		}
	}
}

func applyDaemonEvent(ctx context.Context, evt aggregate.Event, surfaceID, sourceID string, feed *observe.Feed, loop *observe.Loop) {
	switch {
	case evt.Type == aggregate.EventRefreshRequested && evt.SurfaceID == surfaceID:
		loop.Refresh()
	case evt.Type == aggregate.EventReset && (evt.Source == "" || evt.Source == sourceID):
		feed.Clear()
		loop.Reset(ctx)
	}
}
