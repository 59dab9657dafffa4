// Package tui holds the interactive adapter picker.
package tui

import (
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"netgazer/internal/adapter"
)

// ErrAborted is returned by Pick when the user quits without choosing.
var ErrAborted = errors.New("no adapter selected")

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240"))
)

// PickerModel lets the user choose one adapter from a table.
type PickerModel struct {
	table    table.Model
	selected int
	done     bool
}

// NewPickerModel builds a picker over handles.
func NewPickerModel(handles []*adapter.Handle) PickerModel {
	columns := []table.Column{
		{Title: "#", Width: 4},
		{Title: "Name", Width: 20},
		{Title: "Description", Width: 50},
	}
	rows := make([]table.Row, len(handles))
	for i, h := range handles {
		desc := h.Description()
		if desc == "" {
			desc = "none"
		}
		rows[i] = table.Row{strconv.Itoa(h.Index()), h.Name(), desc}
	}

	// Height counts the header rows too.
	height := min(len(rows), 15) + 2
	t := table.New(
		table.WithColumns(columns),
		table.WithRows(rows),
		table.WithFocused(true),
		table.WithHeight(height),
	)

	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(lipgloss.Color("240")).
		BorderBottom(true).
		Bold(true)
	s.Selected = s.Selected.
		Foreground(lipgloss.Color("229")).
		Background(lipgloss.Color("57")).
		Bold(false)
	t.SetStyles(s)

	return PickerModel{table: t, selected: -1}
}

func (m PickerModel) Init() tea.Cmd { return nil }

func (m PickerModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if msg, ok := msg.(tea.KeyMsg); ok {
		switch msg.String() {
		case "q", "esc", "ctrl+c":
			m.done = true
			return m, tea.Quit
		case "enter":
			if len(m.table.Rows()) > 0 {
				m.selected = m.table.Cursor()
			}
			m.done = true
			return m, tea.Quit
		}
	}

	var cmd tea.Cmd
	m.table, cmd = m.table.Update(msg)
	return m, cmd
}

func (m PickerModel) View() string {
	if m.done {
		return ""
	}
	return titleStyle.Render("Select an adapter") + "\n" +
		boxStyle.Render(m.table.View()) +
		"\n↑/↓ move • enter select • q quit\n"
}

// Selected returns the chosen row, or false if the user quit.
func (m PickerModel) Selected() (int, bool) {
	return m.selected, m.selected >= 0
}

// Pick runs the picker on the given terminal streams and returns the chosen
// adapter index.
func Pick(handles []*adapter.Handle, in io.Reader, out io.Writer) (int, error) {
	if len(handles) == 0 {
		return -1, ErrAborted
	}
	final, err := tea.NewProgram(NewPickerModel(handles), tea.WithInput(in), tea.WithOutput(out)).Run()
	if err != nil {
		return -1, fmt.Errorf("adapter picker: %w", err)
	}
	idx, ok := final.(PickerModel).Selected()
	if !ok {
		return -1, ErrAborted
	}
	return idx, nil
}
