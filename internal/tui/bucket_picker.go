package tui

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/egoavara/modmgr/internal/i18n"
	"github.com/egoavara/modmgr/internal/search"
)

// BucketPickerModel lets the user choose which bucket to install a package
// from when several buckets carry the same name.
type BucketPickerModel struct {
	name      string
	options   []search.Entry
	cursor    int
	quitting  bool
	confirmed bool
}

var (
	pickTitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("205")).
			MarginBottom(1)

	pickOptionStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("252"))

	pickSelectedStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("229")).
				Background(lipgloss.Color("57")).
				Bold(true).
				Padding(0, 1)

	pickDescStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("243")).
			MarginLeft(4)

	pickBoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("62")).
			Padding(1, 2)
)

// NewBucketPickerModel creates a picker over the candidate entries for name.
func NewBucketPickerModel(name string, options []search.Entry) BucketPickerModel {
	return BucketPickerModel{name: name, options: options}
}

func (m BucketPickerModel) Init() tea.Cmd {
	return nil
}

func (m BucketPickerModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	key, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}

	switch key.String() {
	case "ctrl+c", "q", "esc":
		m.quitting = true
		return m, tea.Quit

	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}

	case "down", "j":
		if m.cursor < len(m.options)-1 {
			m.cursor++
		}

	case "enter", " ":
		if len(m.options) > 0 {
			m.confirmed = true
		}
		m.quitting = true
		return m, tea.Quit
	}
	return m, nil
}

func (m BucketPickerModel) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder
	b.WriteString(pickTitleStyle.Render(i18n.T("pick.title", map[string]any{"Name": m.name})))
	b.WriteString("\n\n")

	for i, opt := range m.options {
		label := fmt.Sprintf("%s (%s)", opt.Bucket, versionLabel(opt))
		if i == m.cursor {
			b.WriteString(pickSelectedStyle.Render("▸ " + label))
		} else {
			b.WriteString(pickOptionStyle.Render("  " + label))
		}
		b.WriteString("\n")
		if opt.Description != "" {
			b.WriteString(pickDescStyle.Render(opt.Description))
			b.WriteString("\n")
		}
	}

	b.WriteString("\n")
	b.WriteString(helpStyle.Render("↑/↓: " + i18n.T("pick.help.move", nil) + " | Enter: " + i18n.T("pick.help.select", nil)))
	return pickBoxStyle.Render(b.String())
}

// Selected returns the chosen entry and whether the user confirmed it.
func (m BucketPickerModel) Selected() (search.Entry, bool) {
	if !m.confirmed || len(m.options) == 0 {
		return search.Entry{}, false
	}
	return m.options[m.cursor], true
}

// RunBucketPicker asks the user to choose between same-named packages.
func RunBucketPicker(name string, options []search.Entry) (search.Entry, bool, error) {
	p := tea.NewProgram(NewBucketPickerModel(name, options))
	final, err := p.Run()
	if err != nil {
		return search.Entry{}, false, err
	}
	e, ok := final.(BucketPickerModel).Selected()
	return e, ok, nil
}
