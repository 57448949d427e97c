package decision

import (
	"strings"

	"mail-agent/internal/email"
)

// DefaultSpamKeywords are marketing and automation phrases
var DefaultSpamKeywords = []string{
	"unsubscribe",
	"% off",
	"limited time",
	"act now",
	"click here",
	"free gift",
	"winner",
	"congratulations",
	"special offer",
	"exclusive offer",
	"promo code",
	"newsletter",
	"buy now",
	"order now",
	"lottery",
}

// DefaultSpamSenders are sender substrings of bulk mailers
var DefaultSpamSenders = []string{
	"promo@",
	"marketing@",
	"newsletter@",
	"deals@",
	"offers@",
	"mailer-daemon@",
	"bulk@",
}

// SpamFilter is a keyword heuristic that runs before classification
type SpamFilter struct {
	keywords []string
	senders  []string
}

// NewSpamFilter creates a filter. Nil lists fall back to the defaults.
func NewSpamFilter(keywords, senders []string) *SpamFilter {
	if keywords == nil {
		keywords = DefaultSpamKeywords
	}
	if senders == nil {
		senders = DefaultSpamSenders
	}
	return &SpamFilter{
		keywords: lowerAll(keywords),
		senders:  lowerAll(senders),
	}
}

// IsObviousSpam reports whether msg is spam without asking the model
func (f *SpamFilter) IsObviousSpam(msg email.ParsedMessage) bool {
	blob := strings.ToLower(msg.Subject + " " + msg.From + " " + msg.Snippet)
	for _, keyword := range f.keywords {
		if strings.Contains(blob, keyword) {
			return true
		}
	}

	sender := strings.ToLower(msg.From)
	for _, pattern := range f.senders {
		if strings.Contains(sender, pattern) {
			return true
		}
	}
	return false
}

func lowerAll(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.ToLower(strings.TrimSpace(v)); v != "" {
			out = append(out, v)
		}
	}
	return out
}
