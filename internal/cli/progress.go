package cli

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// ProgressSpinner shows a spinner on a terminal while a slow call runs
type ProgressSpinner struct {
	spinner spinner.Model
	message string
	plain   bool
	out     io.Writer
	style   lipgloss.Style

	program *tea.Program
	done    chan struct{}
	once    sync.Once
}

// NewProgressSpinner creates a spinner. With plain set, or in CI, the
// message is printed once instead.
func NewProgressSpinner(message string, plain bool, out io.Writer) *ProgressSpinner {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("12"))

	return &ProgressSpinner{
		spinner: s,
		message: message,
		plain:   plain || os.Getenv("CI") != "",
		out:     out,
		style:   lipgloss.NewStyle().Foreground(lipgloss.Color("8")),
		done:    make(chan struct{}),
	}
}

// Start begins the spinner in a goroutine
func (p *ProgressSpinner) Start() {
	if p.plain {
		fmt.Fprintf(p.out, "%s...\n", p.message)
		close(p.done)
		return
	}

	p.program = tea.NewProgram(&spinnerModel{spinner: p.spinner, message: p.message, style: p.style},
		tea.WithOutput(p.out), tea.WithInput(nil))

	go func() {
		defer close(p.done)
		_, _ = p.program.Run()
	}()
}

// Stop stops the spinner and waits for the terminal to be restored
func (p *ProgressSpinner) Stop() {
	p.once.Do(func() {
		if p.program != nil {
			p.program.Quit()
		}
		<-p.done
	})
}

type spinnerModel struct {
	spinner spinner.Model
	message string
	style   lipgloss.Style
}

func (s *spinnerModel) Init() tea.Cmd {
	return s.spinner.Tick
}

func (s *spinnerModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return s, tea.Quit
	case spinner.TickMsg:
		var cmd tea.Cmd
		s.spinner, cmd = s.spinner.Update(msg)
		return s, cmd
	}
	return s, nil
}

func (s *spinnerModel) View() string {
	return fmt.Sprintf("%s %s", s.spinner.View(), s.style.Render(s.message))
}
