// Command jnetemu runs one or more userspace UDP WAN emulator instances
// from a TOML configuration file.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joeycumines/logiface"
	"github.com/spf13/cobra"

	"github.com/mucaho/jnetemu/internal/config"
	"github.com/mucaho/jnetemu/internal/logging"
	"github.com/mucaho/jnetemu/netem"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "jnetemu",
		Short: "Userspace UDP WAN emulator",
		Long: `jnetemu binds one or more UDP endpoints and relays traffic between
fixed peer pairs, applying configurable loss, duplication, delay and
jitter, so application code can be exercised against realistic
wide-area network behavior without a dedicated test network.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), configPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "jnetemu.toml", "path to the TOML configuration file")

	return cmd
}

func run(ctx context.Context, configPath string) error {
	file, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger := logging.New(logging.WithLevel(parseLevel(file.LogLevel)))
	netem.SetReactorLogger(logger)

	instances := make([]*netem.Instance, 0, len(file.Instances))
	for _, ic := range file.Instances {
		inst, _, err := config.BuildInstance(ic, logger)
		if err != nil {
			return fmt.Errorf("jnetemu: building instance %q: %w", ic.Name, err)
		}
		instances = append(instances, inst)
	}

	startCtx, cancelStart := context.WithCancel(ctx)
	defer cancelStart()
	for i, inst := range instances {
		if err := inst.Start(startCtx); err != nil {
			return fmt.Errorf("jnetemu: starting instance %q: %w", file.Instances[i].Name, err)
		}
	}

	sigCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-sigCtx.Done()

	stopCtx, cancelStop := context.WithCancel(context.Background())
	defer cancelStop()
	for i, inst := range instances {
		if err := inst.Stop(stopCtx); err != nil {
			logger.Error("instance shutdown failed", "instance", file.Instances[i].Name, "error", err)
		}
	}
	return nil
}

func parseLevel(s string) logiface.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "trace":
		return logiface.LevelTrace
	case "debug":
		return logiface.LevelDebug
	case "warning", "warn":
		return logiface.LevelWarning
	case "error", "err":
		return logiface.LevelError
	case "":
		return logiface.LevelInformational
	default:
		return logiface.LevelInformational
	}
}
