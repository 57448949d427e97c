package decision

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"mail-agent/internal/email"
)

type MockReplyGenerator struct {
	mock.Mock
}

func (m *MockReplyGenerator) GenerateReply(ctx context.Context, msg email.ParsedMessage) (string, error) {
	args := m.Called(ctx, msg)
	return args.String(0), args.Error(1)
}

var testLists = SenderLists{
	Whitelist: []string{"boss@company.com", "@family.org"},
	Blacklist: []string{"noreply@", "no-reply@"},
}

var allClassifications = []Classification{
	Classified(Urgent),
	Classified(Routine),
	Classified(Spam),
	Classified(Personal),
	ParseClassification("maybe?"),
	ParseClassification(""),
}

func TestSenderLists_Membership(t *testing.T) {
	testCases := []struct {
		sender   string
		expected Membership
	}{
		{"NoReply@service.com", Blacklisted},
		{"Boss <boss@company.com>", Whitelisted},
		{"mom@FAMILY.org", Whitelisted},
		{"noreply@family.org", Blacklisted},
		{"stranger@example.com", Neither},
		{"", Neither},
	}

	for _, tc := range testCases {
		t.Run(tc.sender, func(t *testing.T) {
			assert.Equal(t, tc.expected, testLists.Membership(tc.sender))
		})
	}
}

func TestSenderLists_IgnoresBlankPatterns(t *testing.T) {
	lists := SenderLists{Whitelist: []string{"", "  "}}
	assert.Equal(t, Neither, lists.Membership("anyone@example.com"))
}

func TestDecide_BlacklistDominates(t *testing.T) {
	replies := new(MockReplyGenerator)
	engine := NewEngine(replies)
	msg := email.ParsedMessage{ID: "1", From: "noreply@service.com", Subject: "Password reset"}

	for _, cls := range allClassifications {
		t.Run(cls.String(), func(t *testing.T) {
			action, err := engine.Decide(context.Background(), msg, cls, Blacklisted)
			require.NoError(t, err)
			assert.Equal(t, Action{Type: ActionNotify, Reason: "Blacklisted sender: noreply@service.com"}, action)
		})
	}

	replies.AssertNotCalled(t, "GenerateReply", mock.Anything, mock.Anything)
}

func TestDecide_WhitelistedRepliesToNonUrgent(t *testing.T) {
	msg := email.ParsedMessage{ID: "2", From: "boss@company.com", Subject: "Lunch"}

	for _, label := range []Label{Routine, Spam, Personal} {
		t.Run(label.String(), func(t *testing.T) {
			replies := new(MockReplyGenerator)
			replies.On("GenerateReply", mock.Anything, msg).Return("Sounds good!", nil).Once()

			action, err := NewEngine(replies).Decide(context.Background(), msg, Classified(label), Whitelisted)
			require.NoError(t, err)
			assert.Equal(t, ActionReply, action.Type)
			assert.Equal(t, "Sounds good!", action.Message)
			assert.Empty(t, action.Reason)
			replies.AssertExpectations(t)
		})
	}
}

func TestDecide_WhitelistedUrgentOrUnknown(t *testing.T) {
	replies := new(MockReplyGenerator)
	engine := NewEngine(replies)
	msg := email.ParsedMessage{ID: "3", From: "boss@company.com"}

	for _, cls := range []Classification{Classified(Urgent), ParseClassification("banana"), ParseClassification("")} {
		t.Run(cls.String(), func(t *testing.T) {
			action, err := engine.Decide(context.Background(), msg, cls, Whitelisted)
			require.NoError(t, err)
			assert.Equal(t, Action{Type: ActionUrgent, Reason: "Urgent email from whitelisted sender"}, action)
		})
	}

	replies.AssertNotCalled(t, "GenerateReply", mock.Anything, mock.Anything)
}

func TestDecide_WhitelistedReplyErrors(t *testing.T) {
	msg := email.ParsedMessage{ID: "4", From: "boss@company.com"}

	t.Run("generator error", func(t *testing.T) {
		replies := new(MockReplyGenerator)
		replies.On("GenerateReply", mock.Anything, msg).Return("", errors.New("model down"))

		_, err := NewEngine(replies).Decide(context.Background(), msg, Classified(Routine), Whitelisted)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "model down")
	})

	t.Run("empty draft", func(t *testing.T) {
		replies := new(MockReplyGenerator)
		replies.On("GenerateReply", mock.Anything, msg).Return("   ", nil)

		_, err := NewEngine(replies).Decide(context.Background(), msg, Classified(Personal), Whitelisted)
		assert.ErrorIs(t, err, ErrEmptyReply)
	})
}

func TestDecide_NeitherDispatchesOnClassification(t *testing.T) {
	replies := new(MockReplyGenerator)
	engine := NewEngine(replies)
	msg := email.ParsedMessage{ID: "5", From: "stranger@example.com"}

	testCases := []struct {
		cls      Classification
		expected Action
	}{
		{Classified(Urgent), Action{Type: ActionUrgent, Reason: "Urgent email requiring immediate attention"}},
		{Classified(Routine), Action{Type: ActionNotify, Reason: "Not whitelisted routine email"}},
		{Classified(Spam), Action{Type: ActionArchive, Reason: "Classified as spam"}},
		{Classified(Personal), Action{Type: ActionNotify, Reason: "Personal email"}},
		{ParseClassification("newsletter"), Action{Type: ActionUnknown, Reason: "Unknown classification"}},
		{ParseClassification(""), Action{Type: ActionUnknown, Reason: "Unknown classification"}},
	}

	for _, tc := range testCases {
		t.Run(tc.cls.String(), func(t *testing.T) {
			action, err := engine.Decide(context.Background(), msg, tc.cls, Neither)
			require.NoError(t, err)
			assert.Equal(t, tc.expected, action)
		})
	}

	replies.AssertNotCalled(t, "GenerateReply", mock.Anything, mock.Anything)
}
