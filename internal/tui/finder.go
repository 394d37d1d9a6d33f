package tui

import (
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/sahilm/fuzzy"

	"github.com/egoavara/modmgr/internal/i18n"
	"github.com/egoavara/modmgr/internal/search"
)

// Action is the change the finder will apply to a package.
type Action int

const (
	ActionNone Action = iota
	ActionInstall
	ActionUninstall
)

// PackageItem wraps a bucket entry with its install state
type PackageItem struct {
	Entry     search.Entry
	Installed bool // currently installed
	Selected  bool // user toggled selection
}

// ID returns "name@bucket".
func (p PackageItem) ID() string {
	return fmt.Sprintf("%s@%s", p.Entry.Name, p.Entry.Bucket)
}

// Action compares the selection with the install state.
func (p PackageItem) Action() Action {
	switch {
	case p.Installed && !p.Selected:
		return ActionUninstall
	case !p.Installed && p.Selected:
		return ActionInstall
	default:
		return ActionNone
	}
}

// FinderResult holds the result of TUI selection
type FinderResult struct {
	ToInstall   []PackageItem
	ToUninstall []PackageItem
	Cancelled   bool
}

// ViewMode represents the current view mode
type ViewMode int

const (
	ModeList ViewMode = iota
	ModeConfirm
)

type finderKeyMap struct {
	Up      key.Binding
	Down    key.Binding
	Toggle  key.Binding
	Confirm key.Binding
	Back    key.Binding
	Quit    key.Binding
}

func (k finderKeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Up, k.Down, k.Toggle, k.Confirm, k.Back}
}

func (k finderKeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{k.ShortHelp(), {k.Quit}}
}

var finderKeys = finderKeyMap{
	Up:      key.NewBinding(key.WithKeys("up", "ctrl+p"), key.WithHelp("↑", "up")),
	Down:    key.NewBinding(key.WithKeys("down", "ctrl+n"), key.WithHelp("↓", "down")),
	Toggle:  key.NewBinding(key.WithKeys("tab"), key.WithHelp("tab", "toggle")),
	Confirm: key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "apply")),
	Back:    key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "clear/quit")),
	Quit:    key.NewBinding(key.WithKeys("ctrl+c"), key.WithHelp("ctrl+c", "quit")),
}

var confirmKeys = struct {
	Yes key.Binding
	No  key.Binding
}{
	Yes: key.NewBinding(key.WithKeys("y", "Y", "enter")),
	No:  key.NewBinding(key.WithKeys("n", "N", "esc", "q")),
}

// Model is the bubbletea model for the package finder. visible holds indexes
// into items in display order.
type Model struct {
	items     []PackageItem
	visible   []int
	cursor    int
	width     int
	height    int
	search    textinput.Model
	help      help.Model
	mode      ViewMode
	quitting  bool
	confirmed bool
}

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("205")).
			Padding(0, 1)

	bucketHeaderStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("99")).
				Bold(true)

	selectedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("229")).
			Background(lipgloss.Color("57")).
			Bold(true)

	normalStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("252"))
	installedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("34"))
	addStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	dropStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	helpStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))

	previewStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("62")).
			Padding(1)

	modalStyle = lipgloss.NewStyle().
			Border(lipgloss.DoubleBorder()).
			BorderForeground(lipgloss.Color("205")).
			Padding(1, 2).
			Align(lipgloss.Center)
)

// NewModel creates a finder over items.
func NewModel(items []PackageItem) Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "type to filter..."
	ti.CharLimit = 50
	ti.Width = 30
	ti.Focus()

	m := Model{
		items:  items,
		search: ti,
		help:   help.New(),
		mode:   ModeList,
	}
	m.applyFilter()
	return m
}

func (m Model) Init() tea.Cmd {
	return textinput.Blink
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.help.Width = msg.Width
		return m, nil
	case tea.KeyMsg:
		if m.mode == ModeConfirm {
			return m.updateConfirm(msg)
		}
		return m.updateList(msg)
	}
	return m, nil
}

func (m Model) updateList(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, finderKeys.Quit):
		m.quitting = true
		return m, tea.Quit

	case key.Matches(msg, finderKeys.Back):
		if m.search.Value() != "" {
			m.search.SetValue("")
			m.applyFilter()
			return m, nil
		}
		m.quitting = true
		return m, tea.Quit

	case key.Matches(msg, finderKeys.Up):
		if m.cursor > 0 {
			m.cursor--
		}
		return m, nil

	case key.Matches(msg, finderKeys.Down):
		if m.cursor < len(m.visible)-1 {
			m.cursor++
		}
		return m, nil

	case key.Matches(msg, finderKeys.Toggle):
		if idx, ok := m.current(); ok {
			m.items[idx].Selected = !m.items[idx].Selected
		}
		return m, nil

	case key.Matches(msg, finderKeys.Confirm):
		if m.hasChanges() {
			m.mode = ModeConfirm
		}
		return m, nil
	}

	// Everything else edits the query.
	before := m.search.Value()
	var cmd tea.Cmd
	m.search, cmd = m.search.Update(msg)
	if m.search.Value() != before {
		m.applyFilter()
	}
	return m, cmd
}

func (m Model) updateConfirm(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, confirmKeys.Yes):
		m.confirmed = true
		m.quitting = true
		return m, tea.Quit
	case key.Matches(msg, confirmKeys.No):
		m.mode = ModeList
	}
	return m, nil
}

// current returns the index in items under the cursor.
func (m Model) current() (int, bool) {
	if m.cursor < 0 || m.cursor >= len(m.visible) {
		return 0, false
	}
	return m.visible[m.cursor], true
}

// applyFilter recomputes visible. An empty query lists everything grouped by
// bucket; otherwise fuzzy matches come best first.
func (m *Model) applyFilter() {
	query := strings.ToLower(strings.TrimSpace(m.search.Value()))

	m.visible = m.visible[:0]
	if query == "" {
		for i := range m.items {
			m.visible = append(m.visible, i)
		}
	} else {
		haystack := make([]string, len(m.items))
		for i, item := range m.items {
			e := item.Entry
			haystack[i] = strings.ToLower(strings.Join([]string{e.Name, e.Bucket, e.Type, e.Description}, " "))
		}
		for _, match := range fuzzy.Find(query, haystack) {
			m.visible = append(m.visible, match.Index)
		}
	}

	if m.cursor >= len(m.visible) {
		m.cursor = max(0, len(m.visible)-1)
	}
}

func (m Model) hasChanges() bool {
	for _, item := range m.items {
		if item.Action() != ActionNone {
			return true
		}
	}
	return false
}

func (m Model) changes() (install, uninstall []PackageItem) {
	for _, item := range m.items {
		switch item.Action() {
		case ActionInstall:
			install = append(install, item)
		case ActionUninstall:
			uninstall = append(uninstall, item)
		}
	}
	return install, uninstall
}

func (m Model) View() string {
	if m.quitting && !m.confirmed {
		return ""
	}
	if m.mode == ModeConfirm {
		return m.confirmView()
	}
	return m.listView()
}

func (m Model) listView() string {
	const listWidth = 44
	previewWidth := max(30, m.width-listWidth-6)
	listHeight := max(5, m.height-8)

	var b strings.Builder
	b.WriteString(titleStyle.Render(i18n.T("TUIHeader", map[string]any{"Count": len(m.items)})))
	b.WriteString("\n\n")

	lines, cursorLine := m.listLines()
	start := 0
	if cursorLine >= listHeight {
		start = cursorLine - listHeight + 1
	}
	end := min(start+listHeight, len(lines))

	list := lipgloss.NewStyle().Width(listWidth).Render(strings.Join(lines[start:end], "\n"))
	preview := previewStyle.Width(previewWidth).Height(listHeight).Render(m.previewView(previewWidth))
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, list, "  ", preview))
	b.WriteString("\n\n")

	b.WriteString(m.search.View())
	b.WriteString("\n")
	b.WriteString(m.help.View(finderKeys))
	return b.String()
}

// listLines renders the visible rows, inserting a bucket header whenever the
// bucket changes while unfiltered. It also returns the line of the cursor.
func (m Model) listLines() ([]string, int) {
	grouped := m.search.Value() == ""
	var lines []string
	cursorLine := 0
	lastBucket := ""

	for row, idx := range m.visible {
		item := m.items[idx]
		if grouped && item.Entry.Bucket != lastBucket {
			lines = append(lines, bucketHeaderStyle.Render(item.Entry.Bucket))
			lastBucket = item.Entry.Bucket
		}
		if row == m.cursor {
			cursorLine = len(lines)
		}
		lines = append(lines, m.row(item, row == m.cursor, !grouped))
	}
	return lines, cursorLine
}

func (m Model) row(item PackageItem, active, withBucket bool) string {
	var mark string
	style := normalStyle
	switch item.Action() {
	case ActionInstall:
		mark, style = "[+]", addStyle
	case ActionUninstall:
		mark, style = "[-]", dropStyle
	default:
		mark = "[ ]"
		if item.Installed {
			mark, style = "[*]", installedStyle
		}
	}

	name := item.Entry.Name
	if withBucket {
		name = item.ID()
	}
	text := fmt.Sprintf("%s %s (%s)", mark, name, versionLabel(item.Entry))

	if active {
		return selectedStyle.Render("> " + text)
	}
	return style.Render("  " + text)
}

func (m Model) previewView(width int) string {
	idx, ok := m.current()
	if !ok {
		return i18n.T("TUIPreviewEmpty", nil)
	}
	item := m.items[idx]
	e := item.Entry

	var b strings.Builder
	fmt.Fprintf(&b, "Name: %s\n", e.Name)
	fmt.Fprintf(&b, "Bucket: %s\n", e.Bucket)
	fmt.Fprintf(&b, "Version: %s\n", versionLabel(e))
	if e.Type != "" {
		fmt.Fprintf(&b, "Type: %s\n", e.Type)
	}
	if item.Installed {
		b.WriteString(installedStyle.Render("Status: Installed") + "\n")
	}
	b.WriteString("\n")

	if e.Description != "" {
		desc := lipgloss.NewStyle().Width(max(10, width-4)).Render(e.Description)
		fmt.Fprintf(&b, "Description:\n%s\n\n", desc)
	}
	if e.Remote != "" {
		fmt.Fprintf(&b, "Remote: %s\n", e.Remote)
	}
	return b.String()
}

// versionLabel shows remote pointers, whose version is unknown until cloned.
func versionLabel(e search.Entry) string {
	switch {
	case e.Remote != "":
		return "remote"
	case e.Version == "":
		return "latest"
	default:
		return "v" + e.Version
	}
}

func (m Model) confirmView() string {
	install, uninstall := m.changes()

	var b strings.Builder
	b.WriteString(i18n.T("ConfirmTitle", nil))
	b.WriteString("\n\n")

	section := func(style lipgloss.Style, titleID, sign string, list []PackageItem) {
		if len(list) == 0 {
			return
		}
		b.WriteString(style.Render(i18n.T(titleID, map[string]any{"Count": len(list)}, len(list))))
		b.WriteString("\n")
		for _, item := range list {
			fmt.Fprintf(&b, "  %s %s (%s)\n", sign, item.ID(), versionLabel(item.Entry))
		}
		b.WriteString("\n")
	}
	section(addStyle, "ToInstall", "+", install)
	section(dropStyle, "ToUninstall", "-", uninstall)

	b.WriteString("\n")
	b.WriteString(helpStyle.Render("[y] " + i18n.T("Confirm", nil) + "  [n] " + i18n.T("Cancel", nil)))
	return modalStyle.Render(b.String())
}

// NewItems flattens bucket entries into finder items sorted by bucket and
// name. Installed packages start selected.
func NewItems(entries map[string][]search.Entry, installed func(name string) bool) []PackageItem {
	var items []PackageItem
	for _, list := range entries {
		for _, e := range list {
			on := installed(e.Name)
			items = append(items, PackageItem{Entry: e, Installed: on, Selected: on})
		}
	}

	sort.Slice(items, func(i, j int) bool {
		if items[i].Entry.Bucket != items[j].Entry.Bucket {
			return items[i].Entry.Bucket < items[j].Entry.Bucket
		}
		return items[i].Entry.Name < items[j].Entry.Name
	})
	return items
}

// Result returns the confirmed changes of a finished model.
func (m Model) Result() *FinderResult {
	if !m.confirmed {
		return &FinderResult{Cancelled: true}
	}
	install, uninstall := m.changes()
	return &FinderResult{ToInstall: install, ToUninstall: uninstall}
}

// RunPackageFinder launches the interactive fuzzy finder for packages
func RunPackageFinder(entries map[string][]search.Entry, installed func(name string) bool) (*FinderResult, error) {
	items := NewItems(entries, installed)
	if len(items) == 0 {
		return nil, fmt.Errorf("%s", i18n.T("NoPackagesAvailable", nil))
	}

	final, err := tea.NewProgram(NewModel(items), tea.WithAltScreen()).Run()
	if err != nil {
		return nil, err
	}
	return final.(Model).Result(), nil
}
