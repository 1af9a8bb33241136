package cli

import (
	"context"
	"io"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	verrors "github.com/villain-cms/villain/pkg/core/errors"
)

var (
	promptStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#7C3AED"))
	defaultStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#6B7280")).Italic(true)
	doneStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#10B981"))
)

// Prompt is one value to ask for.
type Prompt struct {
	Name    string
	Label   string
	Default string
	Secret  bool
}

// promptModel asks for each prompt in turn.
type promptModel struct {
	prompts  []Prompt
	input    textinput.Model
	current  int
	values   map[string]string
	answered []string
	aborted  bool
}

func newPromptModel(prompts []Prompt) promptModel {
	m := promptModel{prompts: prompts, values: make(map[string]string, len(prompts))}
	m.input = textinput.New()
	m.input.CharLimit = 1024
	m.input.Width = 60
	m.resetInput()
	return m
}

func (m *promptModel) resetInput() {
	m.input.Reset()
	if m.current >= len(m.prompts) {
		m.input.Blur()
		return
	}
	p := m.prompts[m.current]
	m.input.Placeholder = p.Default
	m.input.EchoMode = textinput.EchoNormal
	if p.Secret {
		m.input.EchoMode = textinput.EchoPassword
	}
	m.input.Focus()
}

func (m promptModel) Init() tea.Cmd {
	return textinput.Blink
}

func (m promptModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if key, ok := msg.(tea.KeyMsg); ok {
		switch key.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			m.aborted = true
			return m, tea.Quit
		case tea.KeyEnter:
			p := m.prompts[m.current]
			value := strings.TrimSpace(m.input.Value())
			if value == "" {
				value = p.Default
			}
			m.values[p.Name] = value
			shown := value
			if p.Secret {
				shown = strings.Repeat("*", len(value))
			}
			m.answered = append(m.answered, promptStyle.Render(label(p)+":")+" "+doneStyle.Render(shown))
			m.current++
			m.resetInput()
			if m.current >= len(m.prompts) {
				return m, tea.Quit
			}
			return m, nil
		}
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m promptModel) View() string {
	var b strings.Builder
	for _, line := range m.answered {
		b.WriteString(line + "\n")
	}
	if m.current < len(m.prompts) {
		p := m.prompts[m.current]
		b.WriteString(promptStyle.Render(label(p) + ":"))
		if p.Default != "" {
			b.WriteString(" " + defaultStyle.Render("["+p.Default+"]"))
		}
		b.WriteString(" " + m.input.View() + "\n")
	}
	return b.String()
}

func label(p Prompt) string {
	if p.Label != "" {
		return p.Label
	}
	return p.Name
}

// ReadLines prompts for every value on out, reading keys from in. An empty
// answer takes the prompt's default.
func ReadLines(ctx context.Context, prompts []Prompt, in io.Reader, out io.Writer) (map[string]string, error) {
	if len(prompts) == 0 {
		return map[string]string{}, nil
	}
	opts := []tea.ProgramOption{tea.WithContext(ctx)}
	if in != nil {
		opts = append(opts, tea.WithInput(in))
	}
	if out != nil {
		opts = append(opts, tea.WithOutput(out))
	}

	final, err := tea.NewProgram(newPromptModel(prompts), opts...).Run()
	if err != nil {
		return nil, verrors.Wrap(err, "read input").WithCode(verrors.CodeInvalidInput)
	}
	m := final.(promptModel)
	if m.aborted {
		return nil, verrors.New("input aborted by user").WithCode(verrors.CodeInvalidInput)
	}
	return m.values, nil
}
