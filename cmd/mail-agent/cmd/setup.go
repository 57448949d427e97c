package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"mail-agent/internal/config"
	"mail-agent/internal/email"
)

// loadConfiguration loads configuration and applies CLI flag overrides
func loadConfiguration(cmd *cobra.Command, opts *globalOptions) (*config.Config, error) {
	v := viper.New()

	envFile := ""
	if opts.configFile != "" {
		if isEnvFile(opts.configFile) {
			envFile = opts.configFile
		} else {
			v.SetConfigFile(opts.configFile)
		}
	}
	if err := config.LoadEnvFile(envFile); err != nil {
		return nil, err
	}

	if flag := cmd.Flags().Lookup("dry-run"); flag != nil && flag.Changed {
		v.Set("agent.dry_run", opts.dryRun)
	}
	if flag := cmd.Flags().Lookup("interval"); flag != nil && flag.Changed {
		v.Set("agent.check_interval", opts.interval.String())
	}

	return config.LoadWithViper(v)
}

// isEnvFile reports whether path names a dotenv file rather than a structured config
func isEnvFile(path string) bool {
	base := filepath.Base(path)
	return strings.HasSuffix(base, ".env") || strings.HasPrefix(base, ".env") || !strings.Contains(base, ".")
}

// newLogger builds the structured logger. Text output is colored only on a terminal.
func newLogger(cfg config.LogConfig, w io.Writer) *slog.Logger {
	level := parseLevel(cfg.Level)

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})
	} else {
		handler = tint.NewHandler(w, &tint.Options{
			Level:      level,
			TimeFormat: time.DateTime,
			NoColor:    !isTerminal(w),
		})
	}
	return slog.New(handler)
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func isTerminal(v any) bool {
	f, ok := v.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// openGateway connects the configured mailbox provider. The interactive
// OAuth flow is offered only when stdin is a terminal.
func openGateway(ctx context.Context, cfg *config.Config, logger *slog.Logger, in io.Reader, prompt io.Writer) (email.Gateway, error) {
	switch cfg.Mailbox.Provider {
	case "gmail":
		logger.Info("Using Gmail API with OAuth2 authentication")
		gmailConfig := gmailSettings(cfg)
		if isTerminal(in) {
			gmailConfig.Authorizer = email.NewAuthorizer(in, prompt)
		}
		return email.NewGmailClient(ctx, gmailConfig, logger)

	case "imap":
		logger.Info("Using IMAP mailbox", "server", cfg.IMAP.Server, "mailbox", cfg.IMAP.Mailbox)
		return email.NewIMAPClient(&email.IMAPConfig{
			Server:      cfg.IMAP.Server,
			SMTPServer:  cfg.IMAP.SMTPServer,
			Username:    cfg.IMAP.Username,
			Password:    cfg.IMAP.Password,
			Mailbox:     cfg.IMAP.Mailbox,
			DialTimeout: cfg.IMAP.DialTimeout,
		}, logger)

	default:
		return nil, fmt.Errorf("unsupported mailbox provider: %s", cfg.Mailbox.Provider)
	}
}

func gmailSettings(cfg *config.Config) *email.GmailConfig {
	return &email.GmailConfig{
		ClientID:        cfg.Gmail.ClientID,
		ClientSecret:    cfg.Gmail.ClientSecret,
		CredentialsFile: cfg.Gmail.CredentialsFile,
		RefreshToken:    cfg.Gmail.RefreshToken,
		TokenFile:       cfg.Gmail.TokenFile,
		UserID:          cfg.Gmail.UserID,
		RequestTimeout:  cfg.Gmail.RequestTimeout,
	}
}
