package decision

import (
	"strings"
	"unicode"
)

// Label is the closed set of message intents
type Label int

const (
	// Unrecognized marks a model response outside the known labels
	Unrecognized Label = iota
	Urgent
	Routine
	Spam
	Personal
)

var labelNames = map[Label]string{
	Urgent:   "urgent",
	Routine:  "routine",
	Spam:     "spam",
	Personal: "personal",
}

// String returns the label name
func (l Label) String() string {
	if name, ok := labelNames[l]; ok {
		return name
	}
	return "unknown"
}

// Classification is a label plus the raw model text it was parsed from
type Classification struct {
	Label Label
	Raw   string
}

// Classified returns a recognized classification
func Classified(label Label) Classification {
	return Classification{Label: label, Raw: label.String()}
}

// ParseClassification maps free model text to a Classification. The first
// word is accepted so "Spam." and "urgent - needs reply" both match.
func ParseClassification(raw string) Classification {
	normalized := strings.ToLower(strings.TrimSpace(raw))
	normalized = strings.TrimFunc(normalized, isNoise)

	candidates := []string{normalized}
	if fields := strings.Fields(normalized); len(fields) > 1 {
		candidates = append(candidates, strings.TrimFunc(fields[0], isNoise))
	}

	for _, candidate := range candidates {
		for label, name := range labelNames {
			if candidate == name {
				return Classification{Label: label, Raw: raw}
			}
		}
	}

	return Classification{Label: Unrecognized, Raw: strings.TrimSpace(raw)}
}

func isNoise(r rune) bool {
	return unicode.IsPunct(r) || unicode.IsSpace(r) || unicode.IsSymbol(r)
}

// String returns the label name, or the raw text for an unrecognized label
func (c Classification) String() string {
	if c.Label != Unrecognized {
		return c.Label.String()
	}
	if c.Raw == "" {
		return "unknown"
	}
	return c.Raw
}

// Recognized reports whether the classification is in the closed set
func (c Classification) Recognized() bool {
	return c.Label != Unrecognized
}
