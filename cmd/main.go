// Copyright 2025.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Adembc/lazynode/internal/adapters/config"
	"github.com/Adembc/lazynode/internal/adapters/data/file"
	"github.com/Adembc/lazynode/internal/adapters/flags"
	"github.com/Adembc/lazynode/internal/adapters/logger"
	"github.com/Adembc/lazynode/internal/adapters/marzban"
	"github.com/Adembc/lazynode/internal/adapters/metrics"
	"github.com/Adembc/lazynode/internal/adapters/ssh"
	"github.com/Adembc/lazynode/internal/adapters/telegram"
	"github.com/Adembc/lazynode/internal/adapters/ui"
	"github.com/Adembc/lazynode/internal/core/domain"
	"github.com/Adembc/lazynode/internal/core/ports"
	"github.com/Adembc/lazynode/internal/core/services"
)

var (
	version   = "develop"
	gitCommit = "unknown"
)

const tokenEnv = "TELEGRAM_BOT_TOKEN"

// app is what every subcommand needs, built once flags are parsed.
type app struct {
	flags  ports.FlagsProvider
	log    *zap.SugaredLogger
	osCfg  ports.ConfigProvider
	cfg    domain.Config
	panels ports.PanelService
	repo   ports.PanelRepository
}

func main() {
	rt := &app{}

	rootCmd := &cobra.Command{
		Use:   ui.AppName,
		Short: "Telegram bot that registers Marzban panels and provisions nodes for them",
		RunE: func(cmd *cobra.Command, args []string) error {
			return rt.runBot(cmd)
		},
	}
	rootCmd.SilenceUsage = true
	rt.flags = flags.NewCobraFlags(rootCmd)

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		return rt.init()
	}
	rootCmd.PersistentPostRun = func(cmd *cobra.Command, args []string) {
		if rt.log != nil {
			//nolint:errcheck // log.Sync may return an error which is safe to ignore here
			rt.log.Sync()
		}
	}

	panelsCmd := &cobra.Command{
		Use:   "panels",
		Short: "Inspect the panel registry",
	}
	panelsCmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List registered panels without starting the bot",
		RunE: func(cmd *cobra.Command, args []string) error {
			panels, err := rt.panels.ListPanels()
			if err != nil {
				return err
			}
			if len(panels) == 0 {
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "no panels registered in %s\n", rt.cfg.PanelsFile)
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), ui.Table(domain.PanelRows(panels)))
			return err
		},
	})

	rootCmd.AddCommand(panelsCmd, &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return nil
		},
		Run: func(cmd *cobra.Command, args []string) {
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s %s (%s)\n", ui.AppName, version, gitCommit)
		},
	})

	if err := rootCmd.Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func (rt *app) init() error {
	fp := rt.flags
	osCfg, err := config.NewOSConfig(fp.GetFlag(flags.FlagConfigDir))
	if err != nil {
		return fmt.Errorf("failed to resolve config directory: %w", err)
	}
	rt.osCfg = osCfg

	log, err := logger.New("LAZYNODE", osCfg.LogPath("lazynode.log"), fp.IsDebug())
	if err != nil {
		return fmt.Errorf("failed to set up logging: %w", err)
	}
	rt.log = log

	cfg, err := file.NewConfigManager(log, osCfg.ConfigPath("config.yaml")).Load()
	if err != nil {
		log.Warnf("Failed to read config, using defaults: %v", err)
	}
	rt.cfg = cfg

	rt.repo = file.NewPanelRepo(log, cfg.PanelsFile)
	rt.panels = services.NewPanelService(log, rt.repo)
	log.Debugw("configuration loaded", "panels_file", cfg.PanelsFile, "max_in_flight", cfg.MaxInFlight, "metrics_addr", cfg.MetricsAddr)
	return nil
}

func (rt *app) runBot(cmd *cobra.Command) error {
	token := rt.flags.GetFlag(flags.FlagToken)
	if token == "" {
		token = rt.osCfg.GetEnvOrDefault(tokenEnv, "")
	}
	if token == "" {
		return fmt.Errorf("a bot token is required: pass --%s or set %s", flags.FlagToken, tokenEnv)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	prom := metrics.NewPrometheus(rt.log)
	if rt.cfg.MetricsAddr != "" {
		go func() {
			if err := prom.Serve(ctx, rt.cfg.MetricsAddr); err != nil {
				rt.log.Errorw("metrics listener stopped", "address", rt.cfg.MetricsAddr, "error", err)
			}
		}()
	}

	workflow := services.NewProvisioningWorkflow(rt.log, rt.repo, marzban.New(rt.log), ssh.NewProvisioner(rt.log), prom, rt.cfg.AddAsNewHost)
	conversation := services.NewConversationService(rt.log, rt.panels, workflow, rt.cfg)

	bot, err := telegram.New(rt.log, token, conversation, rt.cfg.PollTimeout)
	if err != nil {
		return fmt.Errorf("failed to log in to telegram: %w", err)
	}

	rt.log.Infow("bot started", "version", version, "commit", gitCommit, "allowed_users", len(rt.cfg.AllowedUsers))
	err = bot.Run(ctx)

	rt.log.Infow("waiting for in-flight provisioning runs")
	conversation.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
