package workers

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"google.golang.org/api/gmail/v1"

	"mail-agent/internal/decision"
	"mail-agent/internal/email"
	"mail-agent/internal/llm"
)

// Mailbox is the read side of the mail gateway
type Mailbox interface {
	ListMessages(ctx context.Context, maxResults int64, query string) ([]email.MessageRef, error)
	GetMessage(ctx context.Context, id string) (*gmail.Message, error)
}

// Recorder appends decisions to the audit trail
type Recorder interface {
	Append(ctx context.Context, msg email.ParsedMessage, cls decision.Classification, action decision.Action) error
}

// AgentConfig configures the polling loop
type AgentConfig struct {
	CheckInterval     time.Duration
	ProcessingTimeout time.Duration
	MaxResults        int64
	Query             string
	DryRun            bool
}

// Agent runs the perceive, classify, decide, act loop. The seen set is
// owned by the loop goroutine and never shared.
type Agent struct {
	config     *AgentConfig
	mailbox    Mailbox
	classifier llm.Classifier
	engine     *decision.Engine
	lists      decision.SenderLists
	spam       *decision.SpamFilter
	executor   *Executor
	recorder   Recorder

	seen    map[string]struct{}
	out     io.Writer
	logger  *slog.Logger
	metrics *Metrics
	now     func() time.Time
}

// AgentDeps groups the collaborators of an Agent
type AgentDeps struct {
	Mailbox    Mailbox
	Classifier llm.Classifier
	Engine     *decision.Engine
	Lists      decision.SenderLists
	SpamFilter *decision.SpamFilter
	Executor   *Executor
	Recorder   Recorder
	Out        io.Writer
	Logger     *slog.Logger
}

// Metrics tracks loop statistics
type Metrics struct {
	Ticks        atomic.Int64
	Processed    atomic.Int64
	Errors       atomic.Int64
	SendFailures atomic.Int64
	Seen         atomic.Int64
	LastTick     atomic.Value // time.Time
	LastError    atomic.Value // string
}

// Stats is a point-in-time copy of Metrics
type Stats struct {
	Ticks        int64     `json:"ticks"`
	Processed    int64     `json:"processed"`
	Errors       int64     `json:"errors"`
	SendFailures int64     `json:"send_failures"`
	Seen         int64     `json:"seen"`
	LastTick     time.Time `json:"last_tick,omitempty"`
	LastError    string    `json:"last_error,omitempty"`
	DryRun       bool      `json:"dry_run"`
}

// NewAgent creates a polling agent
func NewAgent(config *AgentConfig, deps AgentDeps) *Agent {
	out := deps.Out
	if out == nil {
		out = io.Discard
	}
	spam := deps.SpamFilter
	if spam == nil {
		spam = decision.NewSpamFilter(nil, nil)
	}

	return &Agent{
		config:     config,
		mailbox:    deps.Mailbox,
		classifier: deps.Classifier,
		engine:     deps.Engine,
		lists:      deps.Lists,
		spam:       spam,
		executor:   deps.Executor,
		recorder:   deps.Recorder,
		seen:       make(map[string]struct{}),
		out:        out,
		logger:     deps.Logger.With("component", "agent"),
		metrics:    &Metrics{},
		now:        time.Now,
	}
}

// Stats returns current loop statistics
func (a *Agent) Stats() Stats {
	stats := Stats{
		Ticks:        a.metrics.Ticks.Load(),
		Processed:    a.metrics.Processed.Load(),
		Errors:       a.metrics.Errors.Load(),
		SendFailures: a.metrics.SendFailures.Load(),
		Seen:         a.metrics.Seen.Load(),
		DryRun:       a.config.DryRun,
	}
	if v, ok := a.metrics.LastTick.Load().(time.Time); ok {
		stats.LastTick = v
	}
	if v, ok := a.metrics.LastError.Load().(string); ok {
		stats.LastError = v
	}
	return stats
}

// Run polls until ctx is cancelled. A tick in flight is allowed to finish;
// cancellation is observed between ticks and while sleeping.
func (a *Agent) Run(ctx context.Context) error {
	mode := "LIVE"
	if a.config.DryRun {
		mode = "DRY RUN"
	}
	fmt.Fprintln(a.out, "Email agent starting...")
	fmt.Fprintf(a.out, "     Mode: %s\n", mode)
	fmt.Fprintf(a.out, "     Checking every %s\n\n\n", a.config.CheckInterval)

	a.logger.Info("Starting agent",
		"check_interval", a.config.CheckInterval,
		"query", a.config.Query,
		"max_results", a.config.MaxResults,
		"dry_run", a.config.DryRun)

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			fmt.Fprintln(a.out, "\n\nAgent stopped by user")
			a.logger.Info("Agent stopped", "processed", a.metrics.Processed.Load())
			return nil
		case <-timer.C:
		}

		a.tick(ctx)
		timer.Reset(a.config.CheckInterval)
	}
}

// tick runs one cycle detached from ctx cancellation but bounded by the
// processing timeout. Errors are reported and swallowed.
func (a *Agent) tick(ctx context.Context) {
	tickCtx := context.WithoutCancel(ctx)
	if a.config.ProcessingTimeout > 0 {
		var cancel context.CancelFunc
		tickCtx, cancel = context.WithTimeout(tickCtx, a.config.ProcessingTimeout)
		defer cancel()
	}

	if _, err := a.RunOnce(tickCtx); err != nil {
		a.metrics.Errors.Add(1)
		a.metrics.LastError.Store(err.Error())
		fmt.Fprintf(a.out, "Error: %v\n", err)
	}
}

// RunOnce performs a single perceive, decide, act cycle and returns the
// number of messages handled. The first error aborts the rest of the batch.
func (a *Agent) RunOnce(ctx context.Context) (int, error) {
	runID := uuid.NewString()
	logger := a.logger.With("run_id", runID)
	start := a.now()

	a.metrics.Ticks.Add(1)
	a.metrics.LastTick.Store(start)

	fresh, err := a.checkForNewEmails(ctx)
	if err != nil {
		logger.Error("Failed to list messages", "error", err)
		return 0, err
	}

	if len(fresh) == 0 {
		fmt.Fprintf(a.out, "[%s] No new emails..\n", start.Format("15:04:05"))
		return 0, nil
	}

	fmt.Fprintf(a.out, "Found %d new email(s)\n\n", len(fresh))
	logger.Info("Processing batch", "count", len(fresh))

	processed := 0
	for _, ref := range fresh {
		if err := a.process(ctx, logger, ref.ID); err != nil {
			logger.Error("Failed to process message", "message_id", ref.ID, "error", err)
			return processed, err
		}
		processed++
		a.metrics.Processed.Add(1)
	}

	logger.Info("Batch complete", "processed", processed, "duration", a.now().Sub(start))
	return processed, nil
}

// checkForNewEmails lists unread mail and drops ids already handled
func (a *Agent) checkForNewEmails(ctx context.Context) ([]email.MessageRef, error) {
	refs, err := a.mailbox.ListMessages(ctx, a.config.MaxResults, a.config.Query)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}

	fresh := make([]email.MessageRef, 0, len(refs))
	for _, ref := range refs {
		if _, ok := a.seen[ref.ID]; !ok {
			fresh = append(fresh, ref)
		}
	}
	return fresh, nil
}

func (a *Agent) process(ctx context.Context, logger *slog.Logger, id string) error {
	raw, err := a.mailbox.GetMessage(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to get message %s: %w", id, err)
	}

	msg := email.ParseMessage(raw)
	if msg.ID == "" {
		msg.ID = id
	}

	membership := a.lists.Membership(msg.From)

	var cls decision.Classification
	if membership != decision.Whitelisted && a.spam.IsObviousSpam(msg) {
		cls = decision.Classified(decision.Spam)
		logger.Debug("Pre-filter flagged spam", "message_id", id, "from", msg.From)
	} else {
		label, err := a.classifier.Classify(ctx, msg)
		if err != nil {
			return fmt.Errorf("failed to classify message %s: %w", id, err)
		}
		cls = decision.ParseClassification(label)
	}

	action, err := a.engine.Decide(ctx, msg, cls, membership)
	if err != nil {
		return fmt.Errorf("failed to decide action for %s: %w", id, err)
	}

	if err := a.recorder.Append(ctx, msg, cls, action); err != nil {
		return fmt.Errorf("failed to record decision for %s: %w", id, err)
	}

	if err := a.executor.Execute(ctx, action, msg); err != nil {
		// The message is still marked seen and will not be retried.
		a.metrics.SendFailures.Add(1)
		a.metrics.LastError.Store(err.Error())
		logger.Error("Action failed", "message_id", id, "action", action.Type, "error", err)
		fmt.Fprintf(a.out, "Error: %v\n", err)
	}

	a.markSeen(id)

	logger.Info("Processed message",
		"message_id", id,
		"from", msg.From,
		"membership", membership.String(),
		"classification", cls.String(),
		"action", action.Type)
	return nil
}

func (a *Agent) markSeen(id string) {
	if _, ok := a.seen[id]; ok {
		return
	}
	a.seen[id] = struct{}{}
	a.metrics.Seen.Add(1)
}
