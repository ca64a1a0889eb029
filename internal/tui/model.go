package tui

import (
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"

	"github.com/dbaudit/collector/internal/query"
)

type screen int

const (
	screenForm screen = iota
	screenTable
)

// Model is the auditctl console: a query-window form feeding a results
// table, mirroring this codebase's other consoles' form-then-table flow.
type Model struct {
	Backend Backend

	screen screen
	form   *windowForm
	table  table.Model
	rows   []query.Row

	begin, end int64
	status     string
	width      int
	height     int
}

func NewModel(backend Backend) Model {
	columns := []table.Column{
		{Title: "Time", Width: 20},
		{Title: "Type", Width: 14},
		{Title: "Result", Width: 10},
		{Title: "User", Width: 12},
		{Title: "Database", Width: 12},
		{Title: "Object", Width: 20},
	}
	t := table.New(table.WithColumns(columns), table.WithFocused(true), table.WithHeight(15))
	s := table.DefaultStyles()
	s.Header = s.Header.BorderStyle(lipgloss.NormalBorder()).BorderForeground(ColorMuted).BorderBottom(true).Bold(true)
	s.Selected = s.Selected.Foreground(ColorText).Background(ColorMuted).Bold(true)
	t.SetStyles(s)

	return Model{
		Backend: backend,
		screen:  screenForm,
		form:    newWindowForm(),
		table:   t,
		status:  "enter a time window and press enter",
	}
}

func (m Model) Init() tea.Cmd {
	return m.form.form.Init()
}

type queryResultMsg struct {
	rows []query.Row
	err  error
}

type deleteResultMsg struct {
	n   int
	err error
}

func (m Model) runQuery() tea.Cmd {
	return func() tea.Msg {
		rows, err := m.Backend.Query(m.begin, m.end)
		return queryResultMsg{rows: rows, err: err}
	}
}

func (m Model) runDelete() tea.Cmd {
	return func() tea.Msg {
		n, err := m.Backend.Delete(m.begin, m.end)
		return deleteResultMsg{n: n, err: err}
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.table.SetHeight(msg.Height - 8)

	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			return m, tea.Quit
		}
		if m.screen == screenTable {
			switch msg.String() {
			case "q":
				return m, tea.Quit
			case "n":
				m.screen = screenForm
				m.form = newWindowForm()
				return m, m.form.form.Init()
			case "x":
				m.status = "deleting..."
				return m, m.runDelete()
			}
			var cmd tea.Cmd
			m.table, cmd = m.table.Update(msg)
			return m, cmd
		}

	case queryResultMsg:
		if msg.err != nil {
			m.status = "query failed: " + msg.err.Error()
			m.screen = screenForm
			return m, nil
		}
		m.rows = msg.rows
		m.table.SetRows(rowsToTable(msg.rows))
		m.status = fmt.Sprintf("%d record(s) in window", len(msg.rows))
		m.screen = screenTable
		return m, nil

	case deleteResultMsg:
		if msg.err != nil {
			m.status = "delete failed: " + msg.err.Error()
			return m, nil
		}
		m.status = fmt.Sprintf("deleted %d record(s); press n to re-query", msg.n)
		return m, nil
	}

	if m.screen == screenForm {
		newForm, cmd := m.form.form.Update(msg)
		if f, ok := newForm.(*huh.Form); ok {
			m.form.form = f
		}
		if m.form.form.State == huh.StateCompleted {
			begin, end, err := m.form.Window()
			if err != nil {
				m.status = "invalid window: " + err.Error()
				return m, nil
			}
			m.begin, m.end = begin, end
			m.status = "querying..."
			return m, m.runQuery()
		}
		return m, cmd
	}

	return m, nil
}

func (m Model) View() string {
	header := StyleHeader.Render("AUDIT CONSOLE") + "\n"
	status := StyleSubtitle.Render(m.status) + "\n\n"

	var body string
	switch m.screen {
	case screenForm:
		body = m.form.form.View()
	case screenTable:
		body = StyleCard.Render(m.table.View()) + "\n" +
			StyleHelp.Render("[n] new query  [x] delete window  [q] quit")
	}

	return StyleApp.Render(header + status + body)
}

func rowsToTable(rows []query.Row) []table.Row {
	out := make([]table.Row, len(rows))
	for i, r := range rows {
		out[i] = table.Row{
			time.Unix(r.Time, 0).UTC().Format(time.RFC3339),
			r.Type,
			r.Result,
			r.UserName,
			r.DatabaseName,
			r.ObjectName,
		}
	}
	return out
}
