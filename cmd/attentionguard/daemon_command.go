package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"attentionguard/internal/daemonctl"
	"attentionguard/internal/daemonrun"
)

const (
	startTimeout    = 10 * time.Second
	stopGracePeriod = 10 * time.Second
)

func newDaemonCommand(ctx *commandContext) *cobra.Command {
	var development bool

	cmd := &cobra.Command{
		Use:   "daemon",
		Short: "Run the aggregator daemon in the foreground",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			return daemonrun.Run(cmd.Context(), cfg, daemonrun.Options{Development: development})
		},
	}
	cmd.Flags().BoolVar(&development, "dev", false, "Include source locations in log output")
	return cmd
}

func newStartCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the daemon in the background",
		RunE: func(cmd *cobra.Command, args []string) error {
			executable, err := os.Executable()
			if err != nil {
				return fmt.Errorf("resolve executable: %w", err)
			}
			opts := daemonctl.LaunchOptions{SocketPath: ctx.socketPath()}
			if ctx.configFlag != nil {
				opts.ConfigPath = *ctx.configFlag
			}
			if ctx.logLevelFlag != nil {
				opts.LogLevel = *ctx.logLevelFlag
			}
			result, err := daemonctl.EnsureStarted(cmd.Context(), executable, opts, startTimeout)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if result.AlreadyRunning {
				fmt.Fprintf(out, "Daemon already running (pid %d)\n", result.PID)
				return nil
			}
			fmt.Fprintf(out, "Daemon started (pid %d)\n", result.PID)
			return nil
		},
	}
}

func newStopCommand(ctx *commandContext) *cobra.Command {
	var grace time.Duration

	cmd := &cobra.Command{
		Use:   "stop",
		Short: "Stop the background daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			result, err := daemonctl.Stop(cmd.Context(), ctx.socketPath(), grace)
			if errors.Is(err, daemonctl.ErrDaemonNotRunning) {
				result, err = stopFromPIDFile(cmd, ctx, grace)
			}
			if errors.Is(err, daemonctl.ErrDaemonNotRunning) {
				fmt.Fprintln(out, "Daemon is not running")
				return nil
			}
			if err != nil {
				return err
			}
			if result.ForcedKill {
				fmt.Fprintf(out, "Daemon did not exit in %s; killed pid %d\n", grace, result.PID)
				return nil
			}
			fmt.Fprintf(out, "Daemon stopped (pid %d)\n", result.PID)
			return nil
		},
	}
	cmd.Flags().DurationVar(&grace, "grace", stopGracePeriod, "Time to wait after SIGTERM before SIGKILL")
	return cmd
}

// stopFromPIDFile handles a daemon whose socket is gone but whose pid file
// still names a live process.
func stopFromPIDFile(cmd *cobra.Command, ctx *commandContext, grace time.Duration) (daemonctl.StopResult, error) {
	cfg, err := ctx.ensureConfig()
	if err != nil {
		return daemonctl.StopResult{}, err
	}
	pid, err := daemonrun.ReadPID(cfg)
	if err != nil || !daemonctl.Alive(pid) {
		return daemonctl.StopResult{}, daemonctl.ErrDaemonNotRunning
	}
	return daemonctl.StopPID(cmd.Context(), pid, grace)
}
