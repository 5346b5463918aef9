package cli

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/matzehuels/gitpkg/pkg/graph"
	"github.com/matzehuels/gitpkg/pkg/resolver"
)

var (
	listDimStyle   = lipgloss.NewStyle().Foreground(colorDim)
	detailKeyStyle = lipgloss.NewStyle().Foreground(colorGray).Width(14)
)

// =============================================================================
// PlanModel - Interactive plan browser
// =============================================================================

// PlanModel is the bubbletea model for browsing a resolved plan. The
// selected entry's details, dependencies and dependents are shown below
// the table.
type PlanModel struct {
	Plan   []resolver.PlanEntry
	Graph  *graph.Graph
	Cursor int
	Height int
	Offset int
}

// NewPlanModel creates a browser over res.
func NewPlanModel(res *resolver.Result) PlanModel {
	return PlanModel{Plan: res.Plan, Graph: res.Graph, Height: 12}
}

func (m PlanModel) Init() tea.Cmd {
	return nil
}

func (m PlanModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		case "up", "k":
			if m.Cursor > 0 {
				m.Cursor--
				if m.Cursor < m.Offset {
					m.Offset = m.Cursor
				}
			}
		case "down", "j":
			if m.Cursor < len(m.Plan)-1 {
				m.Cursor++
				if m.Cursor >= m.Offset+m.Height {
					m.Offset = m.Cursor - m.Height + 1
				}
			}
		case "home", "g":
			m.Cursor, m.Offset = 0, 0
		case "end", "G":
			m.Cursor = len(m.Plan) - 1
			if m.Cursor >= m.Height {
				m.Offset = m.Cursor - m.Height + 1
			}
		}
	case tea.WindowSizeMsg:
		// Leave room for the header and the detail pane.
		m.Height = msg.Height - 18
		if m.Height < 5 {
			m.Height = 5
		}
	}
	return m, nil
}

func (m PlanModel) View() string {
	var b strings.Builder

	b.WriteString(StyleTitle.Render("Installation Plan"))
	b.WriteString("\n")
	b.WriteString(listDimStyle.Render("↑/↓ navigate  q quit"))
	b.WriteString("\n\n")

	if len(m.Plan) == 0 {
		b.WriteString(listDimStyle.Render("Nothing to install"))
		b.WriteString("\n")
		return b.String()
	}

	end := min(m.Offset+m.Height, len(m.Plan))
	b.WriteString(planTable(m.Plan[m.Offset:end], m.Cursor-m.Offset).Render())
	b.WriteString("\n")
	b.WriteString(listDimStyle.Render(fmt.Sprintf("  [%d/%d]", m.Cursor+1, len(m.Plan))))
	b.WriteString("\n\n")
	b.WriteString(m.details(m.Plan[m.Cursor]))
	return b.String()
}

func (m PlanModel) details(p resolver.PlanEntry) string {
	var b strings.Builder
	line := func(k, v string) {
		if v == "" {
			v = "-"
		}
		b.WriteString(detailKeyStyle.Render(k) + " " + StyleValue.Render(v) + "\n")
	}
	line("source", p.Source+" ("+p.Location+")")
	line("path", p.Path)
	line("commit", p.Commit)
	line("ref", p.Ref)
	line("worktree", p.MaterializedPath)
	line("install path", p.InstallPath)
	if m.Graph != nil {
		line("depends on", strings.Join(m.Graph.Dependencies(p.Name), ", "))
		line("needed by", strings.Join(m.Graph.Dependents(p.Name), ", "))
	}
	return b.String()
}

// runPlanBrowser opens the interactive browser on the terminal.
func runPlanBrowser(res *resolver.Result) error {
	_, err := tea.NewProgram(NewPlanModel(res)).Run()
	return err
}
