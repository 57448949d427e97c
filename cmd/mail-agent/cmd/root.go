// Copyright 2024 Package Tracking System
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

package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/fang"
	"github.com/spf13/cobra"

	"mail-agent/internal/auditlog"
	"mail-agent/internal/decision"
	"mail-agent/internal/llm"
	"mail-agent/internal/notify"
	"mail-agent/internal/server"
	"mail-agent/internal/workers"
)

const (
	// Version information
	Version   = "1.0.0"
	BuildDate = "development"
)

// globalOptions holds flags shared by every command
type globalOptions struct {
	configFile string
	dryRun     bool
	interval   time.Duration
	format     string
	quiet      bool
}

// Execute builds the command tree and runs it
func Execute() error {
	return fang.Execute(context.Background(), newRootCmd())
}

func newRootCmd() *cobra.Command {
	opts := &globalOptions{}

	rootCmd := &cobra.Command{
		Use:   "mail-agent",
		Short: "Autonomous email triage and reply agent",
		Long: `Mail Agent v1.0.0

DESCRIPTION:
    Polls a mailbox for unread email, classifies each message with a
    language model, and acts on it: urgent mail is flagged, whitelisted
    senders get a drafted reply, spam is archived and blacklisted senders
    trigger a notification. Every decision is appended to a daily log.

CONFIGURATION:
    Settings come from mail-agent.yaml (or --config), a .env file and the
    environment. Every key has a MAIL_AGENT_ variable, for example
    MAIL_AGENT_AGENT_CHECK_INTERVAL. Common short names also work:

        GMAIL_CLIENT_ID / GMAIL_CLIENT_SECRET   - OAuth2 client
        GMAIL_CREDENTIALS_FILE                  - credentials.json instead
        GMAIL_TOKEN_FILE                        - token storage (default: token.json)
        IMAP_SERVER / IMAP_USERNAME / IMAP_PASSWORD
        LLM_PROVIDER                            - openai, anthropic, ollama, gemini
        OPENAI_API_KEY / ANTHROPIC_API_KEY / GEMINI_API_KEY
        WHITELIST / BLACKLIST                   - comma-separated sender fragments
        CHECK_INTERVAL                          - poll interval (default: 60s)
        TELEGRAM_BOT_TOKEN / TELEGRAM_CHAT_ID   - optional alerts

EXAMPLES:
    # Watch the inbox without sending anything
    mail-agent --dry-run

    # Poll every five minutes using a YAML config
    mail-agent --config=mail-agent.yaml --interval=5m

    # Show what the agent decided recently
    mail-agent history --limit 20`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAgent(cmd, opts)
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&opts.configFile, "config", "", "config file (YAML/TOML/JSON, or a .env file)")
	flags.StringVarP(&opts.format, "format", "f", "table", "output format for subcommands (table, json)")
	flags.BoolVarP(&opts.quiet, "quiet", "q", false, "minimal output")
	rootCmd.Flags().BoolVar(&opts.dryRun, "dry-run", false, "print replies instead of sending them")
	rootCmd.Flags().DurationVar(&opts.interval, "interval", 0, "poll interval (overrides agent.check_interval)")

	rootCmd.AddCommand(
		newListCmd(opts),
		newSearchCmd(opts),
		newReadCmd(opts),
		newSuggestCmd(opts),
		newSendCmd(opts),
		newHistoryCmd(opts),
		newAuthCmd(opts),
	)

	return rootCmd
}

// runAgent is the main execution function for the polling agent
func runAgent(cmd *cobra.Command, opts *globalOptions) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfiguration(cmd, opts)
	if err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	out := cmd.OutOrStdout()
	logger := newLogger(cfg.Log, cmd.ErrOrStderr())

	logger.Info("Starting mail agent",
		"version", Version,
		"build_date", BuildDate)
	logger.Info("Configuration loaded successfully",
		"mailbox", cfg.Mailbox.Provider,
		"llm_provider", cfg.LLM.Provider,
		"dry_run", cfg.Agent.DryRun,
		"check_interval", cfg.Agent.CheckInterval)

	if configJSON, err := cfg.ToJSON(); err == nil {
		logger.Debug("Configuration details", "config", configJSON)
	}

	gateway, err := openGateway(ctx, cfg, logger, cmd.InOrStdin(), cmd.ErrOrStderr())
	if err != nil {
		logger.Error("Failed to create mail gateway", "error", err)
		return fmt.Errorf("failed to create mail gateway: %w", err)
	}
	defer gateway.Close()

	if err := gateway.HealthCheck(ctx); err != nil {
		logger.Error("Mailbox health check failed", "error", err)
		return fmt.Errorf("mailbox health check failed: %w", err)
	}

	model, err := llm.New(cfg.LLMSettings(), logger)
	if err != nil {
		return fmt.Errorf("failed to create model client: %w", err)
	}

	var journalOpts []auditlog.Option
	var history server.History
	if cfg.Log.SQLitePath != "" {
		store, err := auditlog.OpenStore(ctx, cfg.Log.SQLitePath)
		if err != nil {
			return fmt.Errorf("failed to open decision history: %w", err)
		}
		defer store.Close()
		journalOpts = append(journalOpts, auditlog.WithMirror(store))
		history = store
		logger.Info("Decision history enabled", "db_path", cfg.Log.SQLitePath)
	}
	journal := auditlog.NewJournal(cfg.Log.Dir, out, logger, journalOpts...)

	var notifier notify.Notifier
	if cfg.Notify.TelegramToken != "" {
		telegram, err := notify.NewTelegram(notify.TelegramConfig{
			Token:  cfg.Notify.TelegramToken,
			ChatID: cfg.Notify.TelegramChatID,
		}, logger)
		if err != nil {
			return fmt.Errorf("failed to create telegram notifier: %w", err)
		}
		notifier = telegram
		logger.Info("Telegram alerts enabled")
	}

	agent := workers.NewAgent(&workers.AgentConfig{
		CheckInterval:     cfg.Agent.CheckInterval,
		ProcessingTimeout: cfg.Agent.ProcessingTimeout,
		MaxResults:        cfg.Agent.MaxResults,
		Query:             cfg.Agent.Query,
		DryRun:            cfg.Agent.DryRun,
	}, workers.AgentDeps{
		Mailbox:    gateway,
		Classifier: model,
		Engine:     decision.NewEngine(model),
		Lists: decision.SenderLists{
			Whitelist: cfg.Agent.Whitelist,
			Blacklist: cfg.Agent.Blacklist,
		},
		SpamFilter: decision.NewSpamFilter(cfg.Agent.SpamKeywords, cfg.Agent.SpamSenders),
		Executor:   workers.NewExecutor(gateway, notifier, cfg.Agent.DryRun, out, logger),
		Recorder:   journal,
		Out:        out,
		Logger:     logger,
	})

	serverDone := make(chan struct{})
	if cfg.Server.Addr != "" {
		srv := server.New(cfg.Server.Addr, cfg.Server.ShutdownTimeout, agent, history, logger)
		go func() {
			defer close(serverDone)
			if err := srv.Run(ctx); err != nil {
				logger.Error("Status server error", "error", err)
			}
		}()
	} else {
		close(serverDone)
	}

	err = agent.Run(ctx)
	stop()
	<-serverDone

	logger.Info("Mail agent stopped", "processed", agent.Stats().Processed)
	return err
}
