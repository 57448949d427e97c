package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"

	"mail-agent/internal/auditlog"
	"mail-agent/internal/email"
)

const previewLength = 100

var replyLabels = []string{"Casual", "Professional", "Detailed"}

// OutputFormatter renders command results as a table or JSON
type OutputFormatter struct {
	format  string
	quiet   bool
	out     io.Writer
	errOut  io.Writer
	heading lipgloss.Style
}

// NewOutputFormatter creates a formatter writing to out and errOut
func NewOutputFormatter(format string, quiet bool, out, errOut io.Writer) *OutputFormatter {
	heading := lipgloss.NewStyle().Bold(true)
	if termenv.EnvNoColor() {
		heading = lipgloss.NewStyle()
	}
	return &OutputFormatter{
		format:  format,
		quiet:   quiet,
		out:     out,
		errOut:  errOut,
		heading: heading,
	}
}

// PrintMessages prints a mailbox listing
func (f *OutputFormatter) PrintMessages(messages []email.ParsedMessage) error {
	if f.quiet {
		for _, msg := range messages {
			fmt.Fprintln(f.out, msg.ID)
		}
		return nil
	}

	switch f.format {
	case "json":
		return f.encode(messages)
	case "table":
		return f.printMessagesTable(messages)
	default:
		return fmt.Errorf("unsupported format: %s", f.format)
	}
}

// PrintMessage prints one message in full
func (f *OutputFormatter) PrintMessage(msg email.ParsedMessage) error {
	if f.quiet {
		fmt.Fprintln(f.out, msg.Body)
		return nil
	}

	switch f.format {
	case "json":
		return f.encode(msg)
	case "table":
		fmt.Fprintln(f.out, f.heading.Render(msg.Subject))
		fmt.Fprintf(f.out, "From: %s\n", msg.From)
		fmt.Fprintf(f.out, "Date: %s\n", msg.Date)
		fmt.Fprintf(f.out, "ID: %s\n", msg.ID)
		if msg.ThreadID != "" {
			fmt.Fprintf(f.out, "Thread: %s\n", msg.ThreadID)
		}
		fmt.Fprintf(f.out, "\n%s\n", msg.Body)
		return nil
	default:
		return fmt.Errorf("unsupported format: %s", f.format)
	}
}

// PrintSuggestions prints reply drafts labelled by tone
func (f *OutputFormatter) PrintSuggestions(suggestions []string) error {
	if f.format == "json" && !f.quiet {
		return f.encode(map[string][]string{"suggestions": suggestions})
	}

	for i, suggestion := range suggestions {
		if f.quiet {
			fmt.Fprintln(f.out, suggestion)
			continue
		}
		label := fmt.Sprintf("Option %d", i+1)
		if i < len(replyLabels) {
			label = replyLabels[i]
		}
		fmt.Fprintf(f.out, "%s\n%s\n\n", f.heading.Render(label+":"), suggestion)
	}
	return nil
}

// PrintDecisions prints audit entries
func (f *OutputFormatter) PrintDecisions(entries []auditlog.Entry) error {
	if f.quiet {
		for _, entry := range entries {
			fmt.Fprintf(f.out, "%s %s\n", entry.ActionType, entry.MessageID)
		}
		return nil
	}

	switch f.format {
	case "json":
		return f.encode(entries)
	case "table":
		return f.printDecisionsTable(entries)
	default:
		return fmt.Errorf("unsupported format: %s", f.format)
	}
}

// PrintSuccess prints a success message
func (f *OutputFormatter) PrintSuccess(message string) {
	if !f.quiet {
		fmt.Fprintf(f.out, "✓ %s\n", message)
	}
}

// PrintError prints an error message
func (f *OutputFormatter) PrintError(err error) {
	if !f.quiet {
		fmt.Fprintf(f.errOut, "✗ Error: %v\n", err)
	}
}

// PrintInfo prints an informational message
func (f *OutputFormatter) PrintInfo(message string) {
	if !f.quiet {
		fmt.Fprintf(f.out, "ℹ %s\n", message)
	}
}

func (f *OutputFormatter) encode(v any) error {
	enc := json.NewEncoder(f.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (f *OutputFormatter) printMessagesTable(messages []email.ParsedMessage) error {
	if len(messages) == 0 {
		fmt.Fprintln(f.out, "No messages found.")
		return nil
	}

	for i, msg := range messages {
		if i > 0 {
			fmt.Fprintln(f.out)
		}
		fmt.Fprintf(f.out, "Subject: %s\n", msg.Subject)
		fmt.Fprintf(f.out, "ID: %s\n", msg.ID)
		fmt.Fprintf(f.out, "From: %s\n", msg.From)
		fmt.Fprintf(f.out, "Date: %s\n", msg.Date)
		fmt.Fprintf(f.out, "Preview: %s\n", truncate(singleLine(msg.Snippet), previewLength))
	}
	return nil
}

func (f *OutputFormatter) printDecisionsTable(entries []auditlog.Entry) error {
	if len(entries) == 0 {
		fmt.Fprintln(f.out, "No decisions recorded.")
		return nil
	}

	w := tabwriter.NewWriter(f.out, 0, 0, 2, ' ', 0)
	defer w.Flush()

	fmt.Fprintln(w, "TIME\tFROM\tSUBJECT\tCLASSIFICATION\tACTION\tREASON")
	for _, entry := range entries {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			entry.Timestamp.Local().Format("2006-01-02 15:04"),
			truncate(entry.From, 30),
			truncate(entry.Subject, 35),
			entry.Classification,
			strings.ToUpper(entry.ActionType),
			truncate(entry.ActionReason, 40))
	}
	return nil
}

func singleLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// truncate shortens s to maxLen runes, ending with "..."
func truncate(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return "..."
	}
	return string(runes[:maxLen-3]) + "..."
}
