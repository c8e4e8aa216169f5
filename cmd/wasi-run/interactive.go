package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/wippyai/wasi-bridge/linker"
	"github.com/wippyai/wasi-bridge/runtime"
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

	stubStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFD166"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))
)

// pageSize is the number of entries shown around the selection.
const pageSize = 18

type entry struct {
	namespace string
	name      string
	signature string
	state     string
}

type filterMode int

const (
	filterImported filterMode = iota
	filterStubbed
	filterAll
	filterForeign
)

func (f filterMode) String() string {
	switch f {
	case filterImported:
		return "imported"
	case filterStubbed:
		return "stubbed"
	case filterAll:
		return "all host functions"
	case filterForeign:
		return "foreign"
	default:
		return "unknown"
	}
}

type modelState int

const (
	stateList modelState = iota
	stateDetail
)

type browserModel struct {
	err      error
	report   *linker.Report
	filename string
	exports  []string
	entries  []entry
	search   textinput.Model
	selected int
	filter   filterMode
	state    modelState
	command  bool
	start    bool
}

func newBrowserModel(filename string, report *linker.Report, exports []string, command bool) *browserModel {
	search := textinput.New()
	search.Prompt = "/"
	search.Placeholder = "filter by name"
	search.Width = 30

	m := &browserModel{
		report:   report,
		filename: filename,
		exports:  exports,
		search:   search,
		command:  command,
	}
	m.refresh()
	return m
}

// refresh rebuilds the visible entries from the filter and search text.
func (m *browserModel) refresh() {
	var states []linker.State
	switch m.filter {
	case filterImported:
		states = []linker.State{linker.Present, linker.Stubbed}
	case filterStubbed:
		states = []linker.State{linker.Stubbed}
	case filterAll:
		states = []linker.State{linker.Present, linker.Stubbed, linker.Absent}
	}

	query := strings.ToLower(m.search.Value())
	keep := func(name string) bool {
		return query == "" || strings.Contains(strings.ToLower(name), query)
	}

	m.entries = m.entries[:0]
	for _, b := range m.report.Filter("", states...) {
		if keep(b.Name) {
			m.entries = append(m.entries, entry{b.Namespace, b.Name, b.Signature(), b.State.String()})
		}
	}
	if m.filter == filterForeign {
		for _, imp := range m.report.Foreign {
			if keep(imp.Name) {
				m.entries = append(m.entries, entry{imp.Module, imp.Name, linker.Signature(imp.Params, imp.Results), "foreign"})
			}
		}
	}
	if m.selected >= len(m.entries) {
		m.selected = max(len(m.entries)-1, 0)
	}
}

func (m *browserModel) Init() tea.Cmd {
	return nil
}

func (m *browserModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	key, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}

	if m.search.Focused() {
		switch key.String() {
		case "enter", "esc":
			m.search.Blur()
			return m, nil
		}
		var cmd tea.Cmd
		m.search, cmd = m.search.Update(msg)
		m.refresh()
		return m, cmd
	}

	switch key.String() {
	case "ctrl+c", "q":
		return m, tea.Quit

	case "r":
		if !m.command {
			m.err = fmt.Errorf("%s does not export %s", m.filename, runtime.StartFunction)
			return m, nil
		}
		m.start = true
		return m, tea.Quit

	case "up", "k":
		if m.state == stateList && m.selected > 0 {
			m.selected--
		}

	case "down", "j":
		if m.state == stateList && m.selected < len(m.entries)-1 {
			m.selected++
		}

	case "tab":
		if m.state == stateList {
			m.filter = (m.filter + 1) % (filterForeign + 1)
			m.selected = 0
			m.refresh()
		}

	case "/":
		if m.state == stateList {
			return m, m.search.Focus()
		}

	case "enter":
		if m.state == stateList && len(m.entries) > 0 {
			m.state = stateDetail
		} else {
			m.state = stateList
		}

	case "esc":
		m.state = stateList
		m.err = nil
	}
	return m, nil
}

func (m *browserModel) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("WASI Link Report"))
	b.WriteString(" ")
	b.WriteString(m.filename)
	b.WriteString("\n\n")

	switch m.state {
	case stateList:
		fmt.Fprintf(&b, "Showing %s (%d)   present %d • stubbed %d • foreign %d\n",
			m.filter, len(m.entries),
			m.report.Count(linker.Present), m.report.Count(linker.Stubbed), len(m.report.Foreign))
		if m.search.Focused() || m.search.Value() != "" {
			b.WriteString(m.search.View())
			b.WriteString("\n")
		}
		b.WriteString("\n")

		if len(m.entries) == 0 {
			b.WriteString(helpStyle.Render("  nothing to show"))
			b.WriteString("\n")
		}
		first := max(m.selected-pageSize/2, 0)
		last := min(first+pageSize, len(m.entries))
		for i := first; i < last; i++ {
			line := m.formatEntry(m.entries[i])
			if i == m.selected {
				b.WriteString(selectedStyle.Render("> " + line))
			} else {
				b.WriteString("  " + line)
			}
			b.WriteString("\n")
		}
		b.WriteString("\n")
		b.WriteString(helpStyle.Render("↑/↓ select • tab filter • / search • enter details • r run • q quit"))

	case stateDetail:
		e := m.entries[m.selected]
		fmt.Fprintf(&b, "%s.%s\n\n", e.namespace, funcStyle.Render(e.name))
		fmt.Fprintf(&b, "signature  %s\n", typeStyle.Render(e.signature))
		fmt.Fprintf(&b, "state      %s\n", m.renderState(e.state))
		fmt.Fprintf(&b, "exports    %s\n\n", strings.Join(m.exports, ", "))
		b.WriteString(helpStyle.Render("enter/esc back • r run • q quit"))
	}

	if m.err != nil {
		b.WriteString("\n\n")
		b.WriteString(errorStyle.Render(fmt.Sprintf("Error: %v", m.err)))
	}
	return b.String()
}

func (m *browserModel) formatEntry(e entry) string {
	return fmt.Sprintf("%-24s %s %s %s",
		e.namespace, funcStyle.Render(e.name), typeStyle.Render(e.signature), m.renderState(e.state))
}

func (m *browserModel) renderState(state string) string {
	switch state {
	case "stubbed", "foreign":
		return stubStyle.Render(state)
	default:
		return state
	}
}

// browse shows the link report and reports whether the user asked to run
// the module.
func browse(filename string, mod *runtime.Module) (bool, error) {
	p := tea.NewProgram(newBrowserModel(filename, mod.Imports(), mod.Exports(), mod.Command()), tea.WithAltScreen())
	final, err := p.Run()
	if err != nil {
		return false, err
	}
	return final.(*browserModel).start, nil
}
