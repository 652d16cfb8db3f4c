package main

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/wippyai/wasm2c/cgen"
	"github.com/wippyai/wasm2c/engine"
	"github.com/wippyai/wasm2c/ir"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	funcStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#98FB98"))

	typeStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#87CEEB"))

	selectedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4"))

	resultStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#90EE90"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))

	codeStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#7D56F4"))
)

type interactiveModel struct {
	err      error
	engine   *engine.WazeroEngine
	instance *engine.WazeroInstance
	module   *ir.Module
	opts     cgen.Options
	filename string
	result   string
	output   bytes.Buffer
	funcs    []*ir.Function
	inputs   []textinput.Model
	code     viewport.Model
	selected int
	focusIdx int
	width    int
	height   int
	state    modelState
	back     modelState
}

type modelState int

const (
	stateSelectFunc modelState = iota
	stateInputArgs
	stateShowResult
	stateShowCode
)

func newInteractiveModel(filename string, opts cgen.Options) *interactiveModel {
	return &interactiveModel{
		filename: filename,
		opts:     opts,
		state:    stateSelectFunc,
		code:     viewport.New(80, 20),
	}
}

type loadedMsg struct {
	err    error
	eng    *engine.WazeroEngine
	inst   *engine.WazeroInstance
	module *ir.Module
}

type callResultMsg struct {
	err    error
	result string
}

type codeMsg struct {
	err  error
	code string
}

func (m *interactiveModel) Init() tea.Cmd {
	return m.loadModule
}

func (m *interactiveModel) loadModule() tea.Msg {
	ctx := context.Background()

	mod, err := loadModule(m.filename)
	if err != nil {
		return loadedMsg{err: err}
	}

	eng, err := engine.NewWazeroEngine(ctx)
	if err != nil {
		return loadedMsg{err: err}
	}
	compiled, err := eng.LoadModule(ctx, mod)
	if err != nil {
		eng.Close(ctx)
		return loadedMsg{err: err}
	}
	inst, err := compiled.InstantiateWithConfig(ctx, &engine.InstanceConfig{
		Stdout: &m.output,
		Args:   []string{m.filename},
	})
	if err != nil {
		eng.Close(ctx)
		return loadedMsg{err: err}
	}

	return loadedMsg{eng: eng, inst: inst, module: mod}
}

func (m *interactiveModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.code.Width = max(msg.Width-4, 20)
		m.code.Height = max(msg.Height-8, 5)

	case tea.KeyMsg:
		if m.state == stateInputArgs && msg.String() != "ctrl+c" && msg.String() != "enter" &&
			msg.String() != "tab" && msg.String() != "esc" {
			break
		}
		switch msg.String() {
		case "ctrl+c", "q":
			ctx := context.Background()
			if m.instance != nil {
				m.instance.Close(ctx)
			}
			if m.engine != nil {
				m.engine.Close(ctx)
			}
			return m, tea.Quit

		case "up", "k":
			if m.state == stateSelectFunc && m.selected > 0 {
				m.selected--
			}

		case "down", "j":
			if m.state == stateSelectFunc && m.selected < len(m.funcs)-1 {
				m.selected++
			}

		case "c":
			if (m.state == stateSelectFunc || m.state == stateShowResult) && len(m.funcs) > 0 {
				m.back = m.state
				return m, m.generateCode
			}

		case "enter":
			switch m.state {
			case stateSelectFunc:
				if len(m.funcs) == 0 {
					break
				}
				m.prepareInputs()
				if len(m.inputs) == 0 {
					return m, m.callFunction
				}
				m.state = stateInputArgs

			case stateInputArgs:
				return m, m.callFunction

			case stateShowResult:
				m.state = stateSelectFunc
				m.result = ""
				m.err = nil
			}

		case "tab":
			if m.state == stateInputArgs && len(m.inputs) > 1 {
				m.inputs[m.focusIdx].Blur()
				m.focusIdx = (m.focusIdx + 1) % len(m.inputs)
				m.inputs[m.focusIdx].Focus()
			}

		case "esc":
			switch m.state {
			case stateInputArgs:
				m.state = stateSelectFunc
				m.inputs = nil
			case stateShowResult:
				m.state = stateSelectFunc
				m.result = ""
				m.err = nil
			case stateShowCode:
				m.state = m.back
			}
		}

	case loadedMsg:
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.engine = msg.eng
		m.instance = msg.inst
		m.module = msg.module
		m.funcs = msg.module.Funcs

	case callResultMsg:
		m.result = msg.result
		m.err = msg.err
		m.state = stateShowResult

	case codeMsg:
		if msg.err != nil {
			m.result = ""
			m.err = msg.err
			m.state = stateShowResult
			return m, nil
		}
		m.code.SetContent(msg.code)
		m.code.GotoTop()
		m.state = stateShowCode
	}

	switch m.state {
	case stateInputArgs:
		var cmds []tea.Cmd
		for i := range m.inputs {
			var cmd tea.Cmd
			m.inputs[i], cmd = m.inputs[i].Update(msg)
			cmds = append(cmds, cmd)
		}
		return m, tea.Batch(cmds...)
	case stateShowCode:
		var cmd tea.Cmd
		m.code, cmd = m.code.Update(msg)
		return m, cmd
	}

	return m, nil
}

func (m *interactiveModel) prepareInputs() {
	f := m.funcs[m.selected]
	m.inputs = make([]textinput.Model, len(f.Params))
	for i, t := range f.Params {
		ti := textinput.New()
		ti.Placeholder = t.String()
		ti.Prompt = paramName(f, i) + ": "
		ti.Width = 40
		if i == 0 {
			ti.Focus()
		}
		m.inputs[i] = ti
	}
	m.focusIdx = 0
}

func (m *interactiveModel) callFunction() tea.Msg {
	if m.instance == nil {
		return callResultMsg{err: fmt.Errorf("module not loaded")}
	}

	f := m.funcs[m.selected]
	args := make([]engine.Value, len(m.inputs))
	for i, input := range m.inputs {
		v, err := engine.ParseValue(f.Params[i], input.Value())
		if err != nil {
			return callResultMsg{err: err}
		}
		args[i] = v
	}

	m.output.Reset()
	results, err := m.instance.Call(context.Background(), f.Name, args...)

	var b strings.Builder
	if out := m.output.String(); out != "" {
		b.WriteString(out)
		if !strings.HasSuffix(out, "\n") {
			b.WriteByte('\n')
		}
		b.WriteByte('\n')
	}
	if err != nil {
		return callResultMsg{err: err, result: b.String()}
	}
	vals := make([]string, len(results))
	for i, r := range results {
		vals[i] = r.String()
	}
	if len(vals) == 0 {
		b.WriteString("(no result)")
	} else {
		b.WriteString("= " + strings.Join(vals, ", "))
	}
	return callResultMsg{result: b.String()}
}

// generateCode returns the C text of the selected function. Functions not
// reachable from the entry are generated as an entry of their own.
func (m *interactiveModel) generateCode() tea.Msg {
	f := m.funcs[m.selected]
	res, err := cgen.Generate(m.module, m.opts)
	if err == nil {
		if fs, ok := res.Function(f.Name); ok {
			return codeMsg{code: fs.Source}
		}
	}
	opts := m.opts
	opts.Entry = f.Name
	res, err = cgen.Generate(m.module, opts)
	if err != nil {
		return codeMsg{err: err}
	}
	return codeMsg{code: res.Source}
}

func (m *interactiveModel) View() string {
	if m.err != nil && m.state != stateShowResult {
		return errorStyle.Render(fmt.Sprintf("Error: %v\n\nPress q to quit.", m.err))
	}

	if m.module == nil {
		return "Loading module..."
	}

	var b strings.Builder

	b.WriteString(titleStyle.Render("wasm2c"))
	b.WriteString(" ")
	b.WriteString(m.filename)
	b.WriteString("\n\n")

	switch m.state {
	case stateSelectFunc:
		b.WriteString("Select a function to call:\n\n")
		for i, f := range m.funcs {
			cursor := "  "
			if i == m.selected {
				cursor = "> "
				b.WriteString(selectedStyle.Render(cursor + m.formatFunc(f)))
			} else {
				b.WriteString(cursor + m.formatFunc(f))
			}
			b.WriteString("\n")
		}
		b.WriteString("\n")
		b.WriteString(helpStyle.Render("↑/↓ select • enter call • c view C • q quit"))

	case stateInputArgs:
		f := m.funcs[m.selected]
		b.WriteString(fmt.Sprintf("Calling %s\n\n", funcStyle.Render(f.Name)))
		for i, input := range m.inputs {
			b.WriteString(input.View())
			b.WriteString(" ")
			b.WriteString(typeStyle.Render(f.Params[i].String()))
			b.WriteString("\n")
		}
		b.WriteString("\n")
		b.WriteString(helpStyle.Render("tab next field • enter call • esc back"))

	case stateShowResult:
		f := m.funcs[m.selected]
		b.WriteString(fmt.Sprintf("Result of %s:\n\n", funcStyle.Render(f.Name)))
		b.WriteString(m.result)
		if m.err != nil {
			b.WriteString(errorStyle.Render(fmt.Sprintf("Error: %v", m.err)))
		} else {
			b.WriteString(resultStyle.Render(""))
		}
		b.WriteString("\n\n")
		b.WriteString(helpStyle.Render("enter continue • c view C • q quit"))

	case stateShowCode:
		f := m.funcs[m.selected]
		b.WriteString(fmt.Sprintf("Generated C for %s:\n", funcStyle.Render(f.Name)))
		b.WriteString(codeStyle.Render(m.code.View()))
		b.WriteString("\n")
		b.WriteString(helpStyle.Render(fmt.Sprintf("↑/↓ scroll • %3.f%% • esc back • q quit", m.code.ScrollPercent()*100)))
	}

	return b.String()
}

func (m *interactiveModel) formatFunc(f *ir.Function) string {
	var params []string
	for i, t := range f.Params {
		params = append(params, paramName(f, i)+": "+typeStyle.Render(t.String()))
	}
	var results []string
	for _, t := range f.Returns {
		results = append(results, typeStyle.Render(t.String()))
	}
	result := ""
	if len(results) > 0 {
		result = " -> " + strings.Join(results, ", ")
	}
	return funcStyle.Render(f.Name) + "(" + strings.Join(params, ", ") + ")" + result
}

func paramName(f *ir.Function, i int) string {
	if l, ok := f.Local(uint32(i)); ok && l.Name != "" {
		return l.Name
	}
	return fmt.Sprintf("arg%d", i)
}

func runInteractive(filename string, opts cgen.Options) error {
	p := tea.NewProgram(newInteractiveModel(filename, opts), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
