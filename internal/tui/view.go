package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/alexisbeaulieu97/portly/internal/snapshot"
)

// View renders the current model state
func (m Model) View() string {
	switch m.viewMode {
	case ViewConfirm:
		return m.overlay(m.renderConfirm())
	case ViewError:
		return m.overlay(m.renderError())
	case ViewHelp:
		return m.overlay(m.renderHelp())
	default:
		return m.renderMain()
	}
}

func (m Model) renderMain() string {
	var content strings.Builder

	content.WriteString(m.renderHeader())
	content.WriteString("\n")

	for _, warning := range m.warnings {
		content.WriteString(warningStyle.Render("! " + warning))
		content.WriteString("\n")
	}

	if m.filtering || m.filter.Value() != "" {
		content.WriteString(m.filter.View())
		content.WriteString("\n")
	}

	content.WriteString(m.renderList())
	content.WriteString("\n")
	content.WriteString(consoleStyle.Width(m.width - 2).Render(m.viewport.View()))
	content.WriteString("\n")
	content.WriteString(m.renderStatus())
	content.WriteString("\n")
	content.WriteString(m.renderFooter())

	return content.String()
}

// renderHeader renders the title and the list tabs
func (m Model) renderHeader() string {
	tabs := make([]string, 0, len(snapshot.Lists))
	for i, list := range snapshot.Lists {
		label := tabLabel(list, len(m.snap.Items(list)), m.snap.Loaded(list))
		if i == m.tab {
			tabs = append(tabs, activeTabStyle.Render(label))
		} else {
			tabs = append(tabs, tabStyle.Render(label))
		}
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, append([]string{titleStyle.Render("portly")}, tabs...)...)
}

// renderList renders the visible window of the current tab
func (m Model) renderList() string {
	items := m.visibleItems()
	if len(items) == 0 {
		switch {
		case m.filter.Value() != "":
			return emptyStateStyle.Render("No packages match the filter")
		case !m.snap.Loaded(m.List()):
			return emptyStateStyle.Render("Not loaded yet")
		default:
			return emptyStateStyle.Render("No packages")
		}
	}

	rows := m.listHeight()
	start := m.offset
	end := start + rows
	if end > len(items) {
		end = len(items)
	}

	lines := make([]string, 0, end-start+2)
	if start > 0 {
		lines = append(lines, footerStyle.Render(fmt.Sprintf("  ▲ %d more", start)))
	}
	for i := start; i < end; i++ {
		lines = append(lines, m.renderItem(items[i], i == m.cursor))
	}
	if end < len(items) {
		lines = append(lines, footerStyle.Render(fmt.Sprintf("  ▼ %d more", len(items)-end)))
	}
	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

func (m Model) renderItem(item string, atCursor bool) string {
	mark := "  "
	if m.selected[m.selectionKey(item)] {
		mark = markStyle.Render("✓ ")
	}
	if atCursor {
		return cursorItemStyle.MaxWidth(m.width - 2).Render(mark + item)
	}
	return itemStyle.MaxWidth(m.width - 2).Render(mark + item)
}

func (m Model) renderStatus() string {
	status := m.status
	if m.running {
		return fmt.Sprintf("%s %s  %s  %s", m.spinner.View(), statusStyle.Render(status), m.progress.View(), m.steps.View())
	}
	if n := m.selectionCount(); n > 0 {
		status = fmt.Sprintf("%s  [%d selected]", status, n)
	}
	return statusStyle.Render(status)
}

func (m Model) renderFooter() string {
	if m.running {
		return footerStyle.Render("c/esc cancel • ctrl+u/ctrl+d scroll console • q quit")
	}
	return footerStyle.Render("r refresh • s sync • i install • d uninstall • u update • space select • / filter • ? help • q quit")
}

func (m Model) renderConfirm() string {
	var b strings.Builder
	b.WriteString(confirmTitleStyle.Render("Confirm " + string(m.confirmAction)))
	b.WriteString("\n")
	b.WriteString(m.confirmMessage)
	if m.confirmCommand != "" {
		b.WriteString("\n\n")
		b.WriteString(commandStyle.Render(m.confirmCommand))
	}
	b.WriteString("\n\nRequires elevated privileges. Continue? [y/N]")
	return confirmBoxStyle.MaxWidth(m.width - 4).Render(b.String())
}

func (m Model) renderError() string {
	var b strings.Builder
	b.WriteString(errorTitleStyle.Render(m.errorTitle))
	b.WriteString("\n")
	b.WriteString(m.errorMsg)
	b.WriteString("\n\n")
	b.WriteString(footerStyle.Render("x/esc dismiss"))
	return errorBoxStyle.MaxWidth(m.width - 4).Render(b.String())
}

func (m Model) renderHelp() string {
	bindings := [][2]string{
		{"tab / 1-3", "switch list"},
		{"↑↓ / jk", "move"},
		{"space", "select package"},
		{"/", "filter the list"},
		{"r", "refresh all lists"},
		{"s", "sync repositories"},
		{"i", "install selection"},
		{"d", "uninstall selection"},
		{"u", "update selection or @world"},
		{"c / esc", "cancel running command"},
		{"q", "quit"},
	}
	lines := make([]string, 0, len(bindings))
	for _, kv := range bindings {
		lines = append(lines, helpKeyStyle.Render(kv[0])+helpDescStyle.Render(kv[1]))
	}
	return helpBoxStyle.Render(lipgloss.JoinVertical(lipgloss.Left, lines...))
}

func (m Model) overlay(box string) string {
	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, box)
}
