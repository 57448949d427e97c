package workers

import (
	"context"
	"encoding/base64"
	"errors"
	"io"
	"log/slog"
	"sync"

	"github.com/stretchr/testify/mock"
	"google.golang.org/api/gmail/v1"

	"mail-agent/internal/decision"
	"mail-agent/internal/email"
	"mail-agent/internal/notify"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeMailbox serves a fixed inbox and records sends
type fakeMailbox struct {
	mu       sync.Mutex
	messages map[string]*gmail.Message
	order    []string
	listErr  error
	getErr   error
	sendErr  error
	sent     []email.OutgoingMessage
	lists    int
}

func newFakeMailbox() *fakeMailbox {
	return &fakeMailbox{messages: make(map[string]*gmail.Message)}
}

func (f *fakeMailbox) add(id, threadID, from, subject, snippet, body string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.messages[id] = &gmail.Message{
		Id:       id,
		ThreadId: threadID,
		Snippet:  snippet,
		Payload: &gmail.MessagePart{
			MimeType: "text/plain",
			Headers: []*gmail.MessagePartHeader{
				{Name: "From", Value: from},
				{Name: "Subject", Value: subject},
				{Name: "Date", Value: "Mon, 1 Jan 2024 10:00:00 +0000"},
			},
			Body: &gmail.MessagePartBody{Data: base64.URLEncoding.EncodeToString([]byte(body))},
		},
	}
	f.order = append(f.order, id)
}

func (f *fakeMailbox) ListMessages(ctx context.Context, maxResults int64, query string) ([]email.MessageRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.lists++
	if f.listErr != nil {
		return nil, f.listErr
	}
	var refs []email.MessageRef
	for _, id := range f.order {
		if maxResults > 0 && int64(len(refs)) >= maxResults {
			break
		}
		refs = append(refs, email.MessageRef{ID: id, ThreadID: f.messages[id].ThreadId})
	}
	return refs, nil
}

func (f *fakeMailbox) GetMessage(ctx context.Context, id string) (*gmail.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.getErr != nil {
		return nil, f.getErr
	}
	msg, ok := f.messages[id]
	if !ok {
		return nil, errors.New("not found")
	}
	return msg, nil
}

func (f *fakeMailbox) SendMessage(ctx context.Context, out email.OutgoingMessage) (*email.SendResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.sendErr != nil {
		return nil, f.sendErr
	}
	f.sent = append(f.sent, out)
	return &email.SendResult{ID: "sent-" + out.ThreadID, ThreadID: out.ThreadID}, nil
}

func (f *fakeMailbox) sentMessages() []email.OutgoingMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]email.OutgoingMessage(nil), f.sent...)
}

type MockModel struct {
	mock.Mock
}

func (m *MockModel) Classify(ctx context.Context, msg email.ParsedMessage) (string, error) {
	args := m.Called(ctx, msg)
	return args.String(0), args.Error(1)
}

func (m *MockModel) GenerateReply(ctx context.Context, msg email.ParsedMessage) (string, error) {
	args := m.Called(ctx, msg)
	return args.String(0), args.Error(1)
}

type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) Notify(ctx context.Context, alert notify.Alert) error {
	return m.Called(ctx, alert).Error(0)
}

type recordedEntry struct {
	ID             string
	Classification string
	Action         decision.Action
}

type memoryRecorder struct {
	entries []recordedEntry
	err     error
}

func (r *memoryRecorder) Append(ctx context.Context, msg email.ParsedMessage, cls decision.Classification, action decision.Action) error {
	if r.err != nil {
		return r.err
	}
	r.entries = append(r.entries, recordedEntry{ID: msg.ID, Classification: cls.String(), Action: action})
	return nil
}
