package workers

import (
	"bytes"
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"mail-agent/internal/decision"
)

type agentFixture struct {
	agent    *Agent
	mailbox  *fakeMailbox
	model    *MockModel
	recorder *memoryRecorder
	out      *bytes.Buffer
}

func newAgentFixture(t *testing.T, dryRun bool) *agentFixture {
	t.Helper()

	mailbox := newFakeMailbox()
	model := new(MockModel)
	recorder := &memoryRecorder{}
	out := &bytes.Buffer{}

	config := &AgentConfig{
		CheckInterval:     10 * time.Millisecond,
		ProcessingTimeout: time.Second,
		MaxResults:        100,
		Query:             "is:unread",
		DryRun:            dryRun,
	}

	agent := NewAgent(config, AgentDeps{
		Mailbox:    mailbox,
		Classifier: model,
		Engine:     decision.NewEngine(model),
		Lists: decision.SenderLists{
			Whitelist: []string{"boss@company.com"},
			Blacklist: []string{"noreply@"},
		},
		Executor: NewExecutor(mailbox, nil, dryRun, out, testLogger()),
		Recorder: recorder,
		Out:      out,
		Logger:   testLogger(),
	})

	return &agentFixture{agent: agent, mailbox: mailbox, model: model, recorder: recorder, out: out}
}

func TestAgent_IdleNotice(t *testing.T) {
	f := newAgentFixture(t, false)

	processed, err := f.agent.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, processed)
	assert.Regexp(t, regexp.MustCompile(`^\[\d{2}:\d{2}:\d{2}\] No new emails\.\.\n$`), f.out.String())
}

func TestAgent_BlacklistedSenderIsNotified(t *testing.T) {
	f := newAgentFixture(t, false)
	f.mailbox.add("m1", "t1", "noreply@service.com", "Password reset", "Reset your password", "Click the link")
	f.model.On("Classify", mock.Anything, mock.Anything).Return("urgent", nil)

	processed, err := f.agent.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, processed)

	require.Len(t, f.recorder.entries, 1)
	assert.Equal(t, decision.Action{Type: decision.ActionNotify, Reason: "Blacklisted sender: noreply@service.com"}, f.recorder.entries[0].Action)
	assert.Empty(t, f.mailbox.sentMessages())
	f.model.AssertNotCalled(t, "GenerateReply", mock.Anything, mock.Anything)
	assert.Contains(t, f.out.String(), "Reason: Blacklisted sender: noreply@service.com")
}

func TestAgent_WhitelistedSpamGetsReply(t *testing.T) {
	f := newAgentFixture(t, false)
	f.mailbox.add("m2", "thread-2", "boss@company.com", "50% off lunch today!", "Team lunch promo", "Want to grab lunch?")
	f.model.On("Classify", mock.Anything, mock.Anything).Return("spam", nil).Once()
	f.model.On("GenerateReply", mock.Anything, mock.Anything).Return("Sure, see you at noon.", nil).Once()

	processed, err := f.agent.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, processed)

	sent := f.mailbox.sentMessages()
	require.Len(t, sent, 1)
	assert.Equal(t, "boss@company.com", sent[0].To)
	assert.Equal(t, "Re: 50% off lunch today!", sent[0].Subject)
	assert.Equal(t, "Sure, see you at noon.", sent[0].Body)
	assert.Equal(t, "thread-2", sent[0].ThreadID)

	require.Len(t, f.recorder.entries, 1)
	assert.Equal(t, "spam", f.recorder.entries[0].Classification)
	assert.Equal(t, decision.ActionReply, f.recorder.entries[0].Action.Type)
	assert.Contains(t, f.out.String(), "Reply sent!")
	f.model.AssertExpectations(t)
}

func TestAgent_PreFilterSkipsClassifier(t *testing.T) {
	f := newAgentFixture(t, false)
	f.mailbox.add("m3", "", "promo@shop.com", "50% off today!", "Limited time", "Buy buy buy")

	_, err := f.agent.RunOnce(context.Background())
	require.NoError(t, err)

	f.model.AssertNotCalled(t, "Classify", mock.Anything, mock.Anything)
	require.Len(t, f.recorder.entries, 1)
	assert.Equal(t, "spam", f.recorder.entries[0].Classification)
	assert.Equal(t, decision.Action{Type: decision.ActionArchive, Reason: "Classified as spam"}, f.recorder.entries[0].Action)
}

func TestAgent_UnrecognizedLabelReachesLog(t *testing.T) {
	f := newAgentFixture(t, false)
	f.mailbox.add("m4", "", "stranger@example.com", "Question", "Quick question", "Hi")
	f.model.On("Classify", mock.Anything, mock.Anything).Return("Newsletter-ish", nil)

	_, err := f.agent.RunOnce(context.Background())
	require.NoError(t, err)

	require.Len(t, f.recorder.entries, 1)
	assert.Equal(t, "Newsletter-ish", f.recorder.entries[0].Classification)
	assert.Equal(t, decision.ActionUnknown, f.recorder.entries[0].Action.Type)
	assert.Contains(t, f.out.String(), "No action taken")
}

func TestAgent_SeenMessagesAreSkipped(t *testing.T) {
	f := newAgentFixture(t, false)
	f.mailbox.add("m5", "", "stranger@example.com", "Status", "All good", "Weekly status")
	f.model.On("Classify", mock.Anything, mock.Anything).Return("routine", nil).Once()

	processed, err := f.agent.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, processed)

	f.out.Reset()
	processed, err = f.agent.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, processed)
	assert.Contains(t, f.out.String(), "No new emails..")

	f.model.AssertNumberOfCalls(t, "Classify", 1)
	assert.Len(t, f.recorder.entries, 1)
	assert.Equal(t, int64(1), f.agent.Stats().Seen)
}

func TestAgent_DryRunDoesNotSend(t *testing.T) {
	f := newAgentFixture(t, true)
	f.mailbox.add("m6", "t6", "boss@company.com", "Lunch", "Lunch?", "Lunch tomorrow?")
	f.model.On("Classify", mock.Anything, mock.Anything).Return("personal", nil)
	f.model.On("GenerateReply", mock.Anything, mock.Anything).Return("Yes, lunch works great for me tomorrow.", nil)

	_, err := f.agent.RunOnce(context.Background())
	require.NoError(t, err)

	assert.Empty(t, f.mailbox.sentMessages())
	assert.Contains(t, f.out.String(), "[DRY RUN] Would send reply:")
	assert.Contains(t, f.out.String(), "Yes, lunch works great for me tomorrow....")
}

func TestAgent_SendFailureStillMarksSeen(t *testing.T) {
	f := newAgentFixture(t, false)
	f.mailbox.sendErr = errors.New("smtp down")
	f.mailbox.add("m7", "", "boss@company.com", "Hi", "Hi", "Hi")
	f.model.On("Classify", mock.Anything, mock.Anything).Return("routine", nil).Once()
	f.model.On("GenerateReply", mock.Anything, mock.Anything).Return("Hello!", nil).Once()

	processed, err := f.agent.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, processed)

	stats := f.agent.Stats()
	assert.Equal(t, int64(1), stats.SendFailures)
	assert.Equal(t, int64(1), stats.Seen)
	assert.Contains(t, stats.LastError, "smtp down")

	processed, err = f.agent.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, processed)
	f.model.AssertExpectations(t)
}

func TestAgent_ErrorsAbortTickWithoutMarkingSeen(t *testing.T) {
	testCases := []struct {
		name  string
		setup func(f *agentFixture)
	}{
		{
			name:  "list error",
			setup: func(f *agentFixture) { f.mailbox.listErr = errors.New("network down") },
		},
		{
			name:  "get error",
			setup: func(f *agentFixture) { f.mailbox.getErr = errors.New("quota") },
		},
		{
			name: "classify error",
			setup: func(f *agentFixture) {
				f.model.On("Classify", mock.Anything, mock.Anything).Return("", errors.New("model down"))
			},
		},
		{
			name: "reply error",
			setup: func(f *agentFixture) {
				f.mailbox.order = []string{"w1"}
				f.model.On("Classify", mock.Anything, mock.Anything).Return("routine", nil)
				f.model.On("GenerateReply", mock.Anything, mock.Anything).Return("", errors.New("model down"))
			},
		},
		{
			name:  "journal error",
			setup: func(f *agentFixture) { f.recorder.err = errors.New("disk full") },
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			f := newAgentFixture(t, false)
			f.mailbox.add("s1", "", "stranger@example.com", "Hello", "Hello", "Hello")
			f.mailbox.add("w1", "", "boss@company.com", "Hello", "Hello", "Hello")
			tc.setup(f)
			f.model.On("Classify", mock.Anything, mock.Anything).Return("urgent", nil).Maybe()

			processed, err := f.agent.RunOnce(context.Background())
			require.Error(t, err)
			assert.Equal(t, 0, processed)
			assert.Equal(t, int64(0), f.agent.Stats().Seen)
			assert.Empty(t, f.mailbox.sentMessages())
		})
	}
}

func TestAgent_RunStopsOnCancel(t *testing.T) {
	f := newAgentFixture(t, true)
	f.mailbox.add("m8", "", "stranger@example.com", "Ping", "Ping", "Ping")
	f.model.On("Classify", mock.Anything, mock.Anything).Return("personal", nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.agent.Run(ctx) }()

	require.Eventually(t, func() bool { return f.agent.Stats().Ticks >= 2 }, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("agent did not stop")
	}

	stats := f.agent.Stats()
	assert.Equal(t, int64(1), stats.Processed)
	assert.False(t, stats.LastTick.IsZero())
}

func TestAgent_TickSwallowsErrors(t *testing.T) {
	f := newAgentFixture(t, false)
	f.mailbox.listErr = errors.New("network down")

	f.agent.tick(context.Background())

	stats := f.agent.Stats()
	assert.Equal(t, int64(1), stats.Errors)
	assert.Contains(t, stats.LastError, "network down")
	assert.Contains(t, f.out.String(), "Error: failed to list messages: network down")
}
