package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"

	"github.com/wippyai/dynbind/catalog"
	"github.com/wippyai/dynbind/proxy"
	"github.com/wippyai/dynbind/runtime"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	memberStyle = lipgloss.NewStyle().
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
)

// member is one selectable row: a method, or a property read or write.
type member struct {
	name    string
	params  []catalog.ParamDescriptor
	setter  bool
	getter  bool
	display string
}

type browserState int

const (
	stateSelectMember browserState = iota
	stateInputArgs
	stateShowResult
)

// interactiveModel browses native objects. Object results are pushed on a
// stack so they can be explored in turn.
type interactiveModel struct {
	err      error
	rt       *runtime.Runtime
	opts     options
	stack    []*proxy.Proxy
	members  []member
	inputs   []textinput.Model
	result   string
	child    *proxy.Proxy
	selected int
	focusIdx int
	state    browserState
}

type loadedMsg struct {
	err  error
	rt   *runtime.Runtime
	root *proxy.Proxy
}

type callResultMsg struct {
	err    error
	child  *proxy.Proxy
	result string
}

func newInteractiveModel(opts options) *interactiveModel {
	return &interactiveModel{opts: opts, state: stateSelectMember}
}

func (m *interactiveModel) Init() tea.Cmd {
	return m.load
}

func (m *interactiveModel) load() tea.Msg {
	ctx := context.Background()
	rt, err := open(ctx, m.opts.modules)
	if err != nil {
		return loadedMsg{err: err}
	}
	args := make([]any, len(m.opts.factoryArgs))
	for i, a := range m.opts.factoryArgs {
		args[i] = a
	}
	v, err := rt.Call(ctx, m.opts.symbol, m.opts.iface, args...)
	if err != nil {
		rt.Close(ctx)
		return loadedMsg{err: err}
	}
	root, ok := v.(*proxy.Proxy)
	if !ok {
		rt.Close(ctx)
		return loadedMsg{err: fmt.Errorf("%s returned %v, not an object", m.opts.symbol, v)}
	}
	return loadedMsg{rt: rt, root: root}
}

func (m *interactiveModel) current() *proxy.Proxy {
	return m.stack[len(m.stack)-1]
}

func (m *interactiveModel) push(p *proxy.Proxy) {
	m.stack = append(m.stack, p)
	m.members = members(p.Describe())
	m.selected = 0
}

func (m *interactiveModel) pop() {
	if len(m.stack) < 2 {
		return
	}
	m.current().Close()
	m.stack = m.stack[:len(m.stack)-1]
	m.members = members(m.current().Describe())
	m.selected = 0
}

func members(d *catalog.InterfaceDescriptor) []member {
	var out []member
	for _, md := range d.Methods {
		out = append(out, member{name: md.Name, params: md.Params, display: formatMethod(md)})
	}
	for _, pd := range d.Properties {
		if pd.Readable {
			out = append(out, member{name: pd.Name, getter: true, display: "get " + formatProperty(pd)})
		}
		if pd.Writable {
			out = append(out, member{
				name:    pd.Name,
				setter:  true,
				params:  []catalog.ParamDescriptor{{Name: pd.Name, Type: pd.Type}},
				display: "set " + formatProperty(pd),
			})
		}
	}
	return out
}

func (m *interactiveModel) quit() (tea.Model, tea.Cmd) {
	ctx := context.Background()
	if m.rt != nil {
		m.rt.Close(ctx)
	}
	return m, tea.Quit
}

func (m *interactiveModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c":
			return m.quit()

		case "q":
			if m.state != stateInputArgs {
				return m.quit()
			}

		case "up", "k":
			if m.state == stateSelectMember && m.selected > 0 {
				m.selected--
			}

		case "down", "j":
			if m.state == stateSelectMember && m.selected < len(m.members)-1 {
				m.selected++
			}

		case "enter":
			switch m.state {
			case stateSelectMember:
				if len(m.members) == 0 {
					break
				}
				m.prepareInputs()
				if len(m.inputs) == 0 {
					return m, m.callMember
				}
				m.state = stateInputArgs

			case stateInputArgs:
				return m, m.callMember

			case stateShowResult:
				m.clearResult()
			}

		case "o":
			if m.state == stateShowResult && m.child != nil {
				child := m.child
				m.child = nil
				m.clearResult()
				m.push(child)
			}

		case "tab":
			if m.state == stateInputArgs && len(m.inputs) > 1 {
				m.inputs[m.focusIdx].Blur()
				m.focusIdx = (m.focusIdx + 1) % len(m.inputs)
				m.inputs[m.focusIdx].Focus()
			}

		case "esc":
			switch m.state {
			case stateSelectMember:
				m.pop()
			case stateInputArgs:
				m.state = stateSelectMember
				m.inputs = nil
			case stateShowResult:
				m.clearResult()
			}
		}

	case loadedMsg:
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.rt = msg.rt
		m.push(msg.root)

	case callResultMsg:
		m.result = msg.result
		m.err = msg.err
		m.child = msg.child
		m.state = stateShowResult
	}

	if m.state == stateInputArgs {
		var cmds []tea.Cmd
		for i := range m.inputs {
			var cmd tea.Cmd
			m.inputs[i], cmd = m.inputs[i].Update(msg)
			cmds = append(cmds, cmd)
		}
		return m, tea.Batch(cmds...)
	}

	return m, nil
}

func (m *interactiveModel) clearResult() {
	if m.child != nil {
		m.child.Close()
		m.child = nil
	}
	m.state = stateSelectMember
	m.result = ""
	m.err = nil
}

func (m *interactiveModel) prepareInputs() {
	mb := m.members[m.selected]
	m.inputs = make([]textinput.Model, len(mb.params))
	for i, p := range mb.params {
		ti := textinput.New()
		ti.Placeholder = p.Type.String()
		ti.Prompt = p.Name + ": "
		ti.Width = 40
		if i == 0 {
			ti.Focus()
		}
		m.inputs[i] = ti
	}
	m.focusIdx = 0
}

func (m *interactiveModel) callMember() tea.Msg {
	ctx := context.Background()
	p := m.current()
	mb := m.members[m.selected]

	args := make([]any, len(m.inputs))
	for i, input := range m.inputs {
		v, err := parseArg(input.Value(), mb.params[i].Type)
		if err != nil {
			return callResultMsg{err: fmt.Errorf("%s: %w", mb.params[i].Name, err)}
		}
		args[i] = v
	}

	var (
		v   any
		err error
	)
	switch {
	case mb.getter:
		v, err = p.Get(ctx, mb.name)
	case mb.setter:
		err = p.Set(ctx, mb.name, args[0])
	default:
		v, err = p.Invoke(ctx, mb.name, args...)
	}
	if err != nil {
		return callResultMsg{err: err}
	}
	if child, ok := v.(*proxy.Proxy); ok {
		return callResultMsg{child: child, result: child.String()}
	}
	return callResultMsg{result: formatValue(ctx, v)}
}

func (m *interactiveModel) View() string {
	if m.err != nil && m.state != stateShowResult {
		return errorStyle.Render(fmt.Sprintf("Error: %v\n\nPress q to quit.", m.err))
	}

	if len(m.stack) == 0 {
		return "Loading modules..."
	}

	var b strings.Builder

	b.WriteString(titleStyle.Render("dynbind"))
	b.WriteString(" ")
	path := make([]string, len(m.stack))
	for i, p := range m.stack {
		path[i] = p.Interface()
	}
	b.WriteString(strings.Join(path, " / "))
	b.WriteString("\n\n")

	switch m.state {
	case stateSelectMember:
		b.WriteString(fmt.Sprintf("Members of %s:\n\n", m.current()))
		for i, mb := range m.members {
			if i == m.selected {
				b.WriteString(selectedStyle.Render("> " + mb.display))
			} else {
				b.WriteString("  " + memberStyle.Render(mb.display))
			}
			b.WriteString("\n")
		}
		b.WriteString("\n")
		help := "↑/↓ select • enter call • q quit"
		if len(m.stack) > 1 {
			help += " • esc back"
		}
		b.WriteString(helpStyle.Render(help))

	case stateInputArgs:
		mb := m.members[m.selected]
		b.WriteString(fmt.Sprintf("Calling %s\n\n", memberStyle.Render(mb.name)))
		for i, input := range m.inputs {
			b.WriteString(input.View())
			b.WriteString(" ")
			b.WriteString(typeStyle.Render(mb.params[i].Type.String()))
			b.WriteString("\n")
		}
		b.WriteString("\n")
		b.WriteString(helpStyle.Render("tab next field • enter call • esc back"))

	case stateShowResult:
		mb := m.members[m.selected]
		b.WriteString(fmt.Sprintf("Result of %s:\n\n", memberStyle.Render(mb.name)))
		if m.err != nil {
			b.WriteString(errorStyle.Render(fmt.Sprintf("Error: %v", m.err)))
		} else {
			b.WriteString(resultStyle.Render(m.result))
		}
		b.WriteString("\n\n")
		help := "enter continue • q quit"
		if m.child != nil {
			help = "o open • " + help
		}
		b.WriteString(helpStyle.Render(help))
	}

	return b.String()
}

func runInteractive(opts options) error {
	if !term.IsTerminal(int(os.Stdout.Fd())) {
		return fmt.Errorf("interactive mode needs a terminal")
	}
	if opts.symbol == "" {
		return fmt.Errorf("no factory symbol given; use -symbol")
	}
	p := tea.NewProgram(newInteractiveModel(opts), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
