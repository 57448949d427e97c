package email

import (
	"context"

	"google.golang.org/api/gmail/v1"
)

// Gateway defines the interface for mailbox providers
type Gateway interface {
	// ListMessages returns up to maxResults message references matching query
	ListMessages(ctx context.Context, maxResults int64, query string) ([]MessageRef, error)

	// GetMessage retrieves the raw payload of a specific message
	GetMessage(ctx context.Context, id string) (*gmail.Message, error)

	// SendMessage sends a new email, or a threaded reply when ThreadID is set
	SendMessage(ctx context.Context, msg OutgoingMessage) (*SendResult, error)

	// HealthCheck verifies the mailbox connection is working
	HealthCheck(ctx context.Context) error

	// Close cleans up resources
	Close() error
}

// Sender is the subset of Gateway needed to deliver replies
type Sender interface {
	SendMessage(ctx context.Context, msg OutgoingMessage) (*SendResult, error)
}

// MessageRef identifies a message returned by a list operation
type MessageRef struct {
	ID       string `json:"id"`
	ThreadID string `json:"thread_id,omitempty"`
}

// ParsedMessage is the flattened, decoded representation of a mailbox item
type ParsedMessage struct {
	ID       string `json:"id"`
	ThreadID string `json:"thread_id,omitempty"`
	From     string `json:"from"`
	Subject  string `json:"subject"`
	Date     string `json:"date"`
	Snippet  string `json:"snippet"`
	Body     string `json:"body"`
}

// OutgoingMessage describes an email to send
type OutgoingMessage struct {
	To       string
	Subject  string
	Body     string
	ThreadID string
}

// SendResult is the provider's acknowledgement of a sent message
type SendResult struct {
	ID       string `json:"id"`
	ThreadID string `json:"thread_id,omitempty"`
}
