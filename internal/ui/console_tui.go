package ui

import (
	"bytes"
	"context"
	"errors"
	"os"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
)

// maxScrollback bounds the lines kept by the console view.
const maxScrollback = 1000

type commandDoneMsg struct {
	output string
	quit   bool
}

// consoleModel is the bubbletea console: a scrollback above a prompt.
// Commands run off the update loop and report back with commandDoneMsg.
type consoleModel struct {
	ctx     context.Context
	console *Console
	input   textinput.Model
	spinner spinner.Model
	lines   []string
	busy    bool
	height  int
	styles  Styles
}

func newConsoleModel(ctx context.Context, c *Console) *consoleModel {
	ti := textinput.New()
	ti.Placeholder = "query, lexical:query, vector:query, compare:query, stats, help"
	ti.Prompt = "search> "
	ti.Focus()

	styles := GetStyles(c.cfg.NoColor)
	ti.PromptStyle = styles.Prompt

	s := spinner.New()
	s.Spinner = spinner.Dot

	return &consoleModel{
		ctx:     ctx,
		console: c,
		input:   ti,
		spinner: s,
		lines:   strings.Split(HelpText, "\n"),
		height:  24,
		styles:  styles,
	}
}

func (m *consoleModel) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.spinner.Tick)
}

func (m *consoleModel) run(cmd Command) tea.Cmd {
	return func() tea.Msg {
		var buf bytes.Buffer
		quit := m.console.Execute(m.ctx, cmd, &buf)
		return commandDoneMsg{output: strings.TrimRight(buf.String(), "\n"), quit: quit}
	}
}

func (m *consoleModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			return m, tea.Quit
		case tea.KeyEnter:
			if m.busy {
				return m, nil
			}
			line := m.input.Value()
			m.input.SetValue("")
			cmd := ParseCommand(line)
			switch cmd.Kind {
			case CommandEmpty:
				return m, nil
			case CommandExit:
				return m, tea.Quit
			}
			m.appendLines("", m.styles.Prompt.Render("search> ")+line)
			m.busy = true
			return m, m.run(cmd)
		}
	case tea.WindowSizeMsg:
		m.height = msg.Height
		m.input.Width = max(msg.Width-10, 20)
	case commandDoneMsg:
		m.busy = false
		if msg.output != "" {
			m.appendLines(strings.Split(msg.output, "\n")...)
		}
		if msg.quit {
			return m, tea.Quit
		}
		return m, nil
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *consoleModel) appendLines(lines ...string) {
	m.lines = append(m.lines, lines...)
	if over := len(m.lines) - maxScrollback; over > 0 {
		m.lines = m.lines[over:]
	}
}

func (m *consoleModel) View() string {
	// Header, blank line and prompt take three rows.
	visible := max(m.height-3, 1)
	lines := m.lines
	if len(lines) > visible {
		lines = lines[len(lines)-visible:]
	}

	var sb strings.Builder
	sb.WriteString(m.styles.Header.Render("lfsearch console"))
	if root := m.console.cfg.RootDir; root != "" {
		sb.WriteString(m.styles.Dim.Render(" • " + root))
	}
	sb.WriteString("\n")
	sb.WriteString(strings.Join(lines, "\n"))
	sb.WriteString("\n\n")
	if m.busy {
		sb.WriteString(m.spinner.View() + " searching...")
	} else {
		sb.WriteString(m.input.View())
	}
	return sb.String()
}

func (c *Console) runTUI(ctx context.Context) error {
	opts := []tea.ProgramOption{tea.WithContext(ctx), tea.WithAltScreen()}
	if f, ok := c.cfg.Output.(*os.File); ok {
		opts = append(opts, tea.WithOutput(f))
	}
	_, err := tea.NewProgram(newConsoleModel(ctx, c), opts...).Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}
