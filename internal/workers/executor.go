package workers

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"mail-agent/internal/decision"
	"mail-agent/internal/email"
	"mail-agent/internal/notify"
)

const previewLength = 100

var (
	urgentStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("9"))
	replyStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("10"))
	archiveStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	notifyStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("11"))
	unknownStyle = lipgloss.NewStyle().Italic(true)
)

func actionLabel(t decision.ActionType) string {
	label := strings.ToUpper(string(t))
	switch t {
	case decision.ActionUrgent:
		return urgentStyle.Render(label)
	case decision.ActionReply:
		return replyStyle.Render(label)
	case decision.ActionArchive:
		return archiveStyle.Render(label)
	case decision.ActionNotify:
		return notifyStyle.Render(label)
	default:
		return unknownStyle.Render(label)
	}
}

// Executor performs the side effect of a decided action
type Executor struct {
	sender   email.Sender
	notifier notify.Notifier
	dryRun   bool
	out      io.Writer
	logger   *slog.Logger
}

// NewExecutor creates an executor. notifier may be nil.
func NewExecutor(sender email.Sender, notifier notify.Notifier, dryRun bool, out io.Writer, logger *slog.Logger) *Executor {
	if out == nil {
		out = io.Discard
	}
	return &Executor{
		sender:   sender,
		notifier: notifier,
		dryRun:   dryRun,
		out:      out,
		logger:   logger.With("component", "executor"),
	}
}

// Execute prints the action and then performs it. Only replies touch the
// mailbox; archive is not implemented and leaves the message untouched.
func (e *Executor) Execute(ctx context.Context, action decision.Action, msg email.ParsedMessage) error {
	fmt.Fprintf(e.out, "\n Email from: %s\n", msg.From)
	fmt.Fprintf(e.out, "    Subject: %s\n", msg.Subject)
	fmt.Fprintf(e.out, "    Action: %s\n", actionLabel(action.Type))

	switch action.Type {
	case decision.ActionUrgent, decision.ActionNotify:
		fmt.Fprintf(e.out, "    Reason: %s\n", action.Reason)
		e.notify(ctx, action, msg)
		return nil

	case decision.ActionArchive:
		fmt.Fprintf(e.out, "    Reason: %s\n", action.Reason)
		return nil

	case decision.ActionReply:
		return e.reply(ctx, action, msg)

	default:
		if action.Reason != "" {
			fmt.Fprintf(e.out, "    Reason: %s\n", action.Reason)
		}
		fmt.Fprintln(e.out, "    No action taken")
		return nil
	}
}

func (e *Executor) reply(ctx context.Context, action decision.Action, msg email.ParsedMessage) error {
	if e.dryRun {
		fmt.Fprintln(e.out, "    [DRY RUN] Would send reply:")
		fmt.Fprintf(e.out, "    %s...\n", preview(action.Message))
		return nil
	}

	out := email.OutgoingMessage{
		To:       msg.From,
		Subject:  "Re: " + msg.Subject,
		Body:     action.Message,
		ThreadID: msg.ThreadID,
	}

	if _, err := e.sender.SendMessage(ctx, out); err != nil {
		return fmt.Errorf("failed to send reply to %s: %w", msg.From, err)
	}

	fmt.Fprintln(e.out, "    Reply sent!")
	return nil
}

func (e *Executor) notify(ctx context.Context, action decision.Action, msg email.ParsedMessage) {
	if e.notifier == nil {
		return
	}

	alert := notify.Alert{
		Kind:    strings.ToUpper(string(action.Type)),
		From:    msg.From,
		Subject: msg.Subject,
		Reason:  action.Reason,
	}
	if err := e.notifier.Notify(ctx, alert); err != nil {
		e.logger.Warn("Notification failed", "message_id", msg.ID, "error", err)
	}
}

func preview(text string) string {
	runes := []rune(text)
	if len(runes) > previewLength {
		return string(runes[:previewLength])
	}
	return text
}
