package decision

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"mail-agent/internal/email"
)

// ActionType is the kind of response chosen for a message
type ActionType string

const (
	ActionUrgent  ActionType = "urgent"
	ActionReply   ActionType = "reply"
	ActionArchive ActionType = "archive"
	ActionNotify  ActionType = "notify"
	ActionUnknown ActionType = "unknown"
)

// Action is the decided response to a message. Message is set only for
// replies and Reason for everything else.
type Action struct {
	Type    ActionType `json:"type"`
	Message string     `json:"message,omitempty"`
	Reason  string     `json:"reason,omitempty"`
}

// Membership describes where a sender falls in the configured lists
type Membership int

const (
	Neither Membership = iota
	Whitelisted
	Blacklisted
)

func (m Membership) String() string {
	switch m {
	case Whitelisted:
		return "whitelisted"
	case Blacklisted:
		return "blacklisted"
	default:
		return "neither"
	}
}

// ErrEmptyReply is returned when the reply generator produces no text
var ErrEmptyReply = errors.New("reply generator returned an empty draft")

// ReplyGenerator drafts a single contextual reply
type ReplyGenerator interface {
	GenerateReply(ctx context.Context, msg email.ParsedMessage) (string, error)
}

// SenderLists holds the whitelist and blacklist sender patterns
type SenderLists struct {
	Whitelist []string
	Blacklist []string
}

// Membership classifies sender against the lists. Blacklist wins.
func (l SenderLists) Membership(sender string) Membership {
	if matchesAny(sender, l.Blacklist) {
		return Blacklisted
	}
	if matchesAny(sender, l.Whitelist) {
		return Whitelisted
	}
	return Neither
}

func matchesAny(sender string, patterns []string) bool {
	lower := strings.ToLower(sender)
	for _, pattern := range patterns {
		pattern = strings.ToLower(strings.TrimSpace(pattern))
		if pattern != "" && strings.Contains(lower, pattern) {
			return true
		}
	}
	return false
}

// Engine maps a classified message to an Action
type Engine struct {
	replies ReplyGenerator
}

// NewEngine creates a decision engine
func NewEngine(replies ReplyGenerator) *Engine {
	return &Engine{replies: replies}
}

// Decide applies the response policy. The reply generator is the only
// collaborator and is called only for whitelisted non-urgent mail.
func (e *Engine) Decide(ctx context.Context, msg email.ParsedMessage, cls Classification, membership Membership) (Action, error) {
	switch membership {
	case Blacklisted:
		return Action{Type: ActionNotify, Reason: "Blacklisted sender: " + msg.From}, nil

	case Whitelisted:
		switch cls.Label {
		case Routine, Spam, Personal:
			draft, err := e.replies.GenerateReply(ctx, msg)
			if err != nil {
				return Action{}, fmt.Errorf("failed to generate reply for %s: %w", msg.ID, err)
			}
			if strings.TrimSpace(draft) == "" {
				return Action{}, ErrEmptyReply
			}
			return Action{Type: ActionReply, Message: draft}, nil
		default:
			return Action{Type: ActionUrgent, Reason: "Urgent email from whitelisted sender"}, nil
		}
	}

	switch cls.Label {
	case Urgent:
		return Action{Type: ActionUrgent, Reason: "Urgent email requiring immediate attention"}, nil
	case Routine:
		return Action{Type: ActionNotify, Reason: "Not whitelisted routine email"}, nil
	case Spam:
		return Action{Type: ActionArchive, Reason: "Classified as spam"}, nil
	case Personal:
		return Action{Type: ActionNotify, Reason: "Personal email"}, nil
	default:
		return Action{Type: ActionUnknown, Reason: "Unknown classification"}, nil
	}
}
