package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"attentionguard/internal/config"
	"attentionguard/internal/ipc"
	"attentionguard/internal/sources"
)

const rpcTimeout = 10 * time.Second

type commandContext struct {
	socketFlag   *string
	configFlag   *string
	logLevelFlag *string

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

func newCommandContext(socketFlag, configFlag, logLevelFlag *string) *commandContext {
	return &commandContext{
		socketFlag:   socketFlag,
		configFlag:   configFlag,
		logLevelFlag: logLevelFlag,
	}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, _, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if c.logLevelFlag != nil {
			if level := strings.ToLower(strings.TrimSpace(*c.logLevelFlag)); level != "" {
				cfg.Logging.Level = level
				if err := cfg.Validate(); err != nil {
					c.configErr = err
					return
				}
			}
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

func (c *commandContext) socketPath() string {
	if c.socketFlag != nil && strings.TrimSpace(*c.socketFlag) != "" {
		return *c.socketFlag
	}
	if cfg, err := c.ensureConfig(); err == nil {
		return cfg.Paths.SocketPath
	}
	return ""
}

func (c *commandContext) registry() (*sources.Registry, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	return sources.Load(cfg.Classification.RulesDir)
}

// withClient dials the daemon and bounds fn by rpcTimeout.
func (c *commandContext) withClient(cmd *cobra.Command, fn func(context.Context, *ipc.Client) error) error {
	client, err := c.dialClient()
	if err != nil {
		return err
	}
	defer client.Close()
	ctx, cancel := context.WithTimeout(cmd.Context(), rpcTimeout)
	defer cancel()
	return fn(ctx, client)
}

func (c *commandContext) dialClient() (*ipc.Client, error) {
	socket := c.socketPath()
	if socket == "" {
		return nil, errors.New("connect to daemon: no socket path configured")
	}
	client, err := ipc.Dial(socket)
	if err != nil {
		return nil, wrapDialError(err, socket)
	}
	return client, nil
}

// resolveSource finds sourceID in the registry. Rule packs may name sources
// without an address pattern; those resolve to a bare source.
func resolveSource(registry *sources.Registry, sourceID string) (sources.Source, error) {
	if src, ok := registry.Lookup(sourceID); ok {
		return src, nil
	}
	ruled := registry.RuleSources()
	if !slices.Contains(ruled, sourceID) {
		known := slices.Compact(slices.Sorted(slices.Values(append(sourceIDs(registry.Sources()), ruled...))))
		return sources.Source{}, fmt.Errorf("unknown source %q (known: %s)", sourceID, strings.Join(known, ", "))
	}
	return sources.Source{ID: sourceID, Name: sourceID, IDPrefix: sourceID}, nil
}

func sourceIDs(list []sources.Source) []string {
	ids := make([]string, 0, len(list))
	for _, src := range list {
		ids = append(ids, src.ID)
	}
	return ids
}

func wrapDialError(err error, socket string) error {
	switch {
	case errors.Is(err, syscall.ENOENT) || os.IsNotExist(err):
		return fmt.Errorf("connect to daemon: socket %s not found; start it with `attentionguard daemon`", socket)
	case errors.Is(err, syscall.ECONNREFUSED):
		return fmt.Errorf("connect to daemon: socket %s refused the connection; verify the daemon is running", socket)
	default:
		return fmt.Errorf("connect to daemon: %w", err)
	}
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
