// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Cybenetics Labs

package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/cybenetics/powenetics-go/pkg/powenetics"
)

// Messages from the measurement goroutine
type frameMsg struct {
	rows     []table.Row
	received time.Time
}

type streamStoppedMsg struct {
	err error
}

type watchModel struct {
	portName   string
	tbl        table.Model
	frames     int
	lastUpdate time.Time
	streamErr  error
	quitting   bool
	width      int
	height     int
}

func newWatchModel(portName string) watchModel {
	columns := []table.Column{
		{Title: "Ch", Width: 3},
		{Title: "Rail", Width: 20},
		{Title: "Voltage (V)", Width: 12},
		{Title: "Current (A)", Width: 12},
		{Title: "Power (W)", Width: 12},
		{Title: "Energy (J)", Width: 14},
	}

	tbl := table.New(
		table.WithColumns(columns),
		table.WithHeight(powenetics.ChannelCount),
	)

	styles := table.DefaultStyles()
	styles.Header = styles.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(lipgloss.Color("240")).
		BorderBottom(true).
		Bold(true)
	styles.Selected = lipgloss.NewStyle() // no row cursor in a read-only view
	tbl.SetStyles(styles)

	return watchModel{
		portName: portName,
		tbl:      tbl,
		width:    80,
		height:   24,
	}
}

// buildRows copies the snapshot into display rows. The snapshot is only
// valid during the subscriber callback, so the copy happens there.
func buildRows(d *powenetics.Data) []table.Row {
	rows := make([]table.Row, 0, powenetics.ChannelCount)
	for _, ch := range d.Channels() {
		rows = append(rows, table.Row{
			fmt.Sprintf("%d", ch.ID()),
			ch.Name(),
			fmt.Sprintf("%.3f", float64(ch.Voltage())/1e3),
			fmt.Sprintf("%.3f", float64(ch.Current())/1e3),
			fmt.Sprintf("%.3f", float64(ch.Power())/1e6),
			fmt.Sprintf("%.3f", float64(ch.Energy())/1e9),
		})
	}
	return rows
}

func (m watchModel) Init() tea.Cmd {
	return tea.EnterAltScreen
}

func (m watchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case frameMsg:
		m.frames++
		m.lastUpdate = msg.received
		m.tbl.SetRows(msg.rows)

	case streamStoppedMsg:
		m.streamErr = msg.err
		// A clean stop happens when our own quit vote lands; only an
		// unexpected stop is worth keeping the error for.
		if m.quitting && m.streamErr == nil {
			return m, nil
		}
		return m, tea.Quit
	}

	return m, nil
}

func (m watchModel) View() string {
	if m.quitting && m.streamErr == nil {
		return "Stopping measurement...\n"
	}

	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("12")).
		Background(lipgloss.Color("235")).
		Padding(0, 1)

	headerStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("241"))

	errorStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("9")).
		Bold(true)

	boxStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("240")).
		Padding(0, 1)

	var s strings.Builder
	s.WriteString(titleStyle.Render("POWENETICS - LIVE MEASUREMENT"))
	s.WriteString("\n")
	s.WriteString(headerStyle.Render(fmt.Sprintf("Port: %s @ %d baud | Press 'q' to quit",
		m.portName, powenetics.BaudRate)))
	s.WriteString("\n\n")

	if m.frames == 0 {
		s.WriteString(headerStyle.Render("Waiting for first frame..."))
		s.WriteString("\n\n")
	}

	s.WriteString(boxStyle.Render(m.tbl.View()))
	s.WriteString("\n")

	if m.frames > 0 {
		s.WriteString(headerStyle.Render(fmt.Sprintf("Frames: %d | Last update: %s",
			m.frames, m.lastUpdate.Format("15:04:05.000"))))
		s.WriteString("\n")
	}

	if m.streamErr != nil {
		s.WriteString(errorStyle.Render(fmt.Sprintf("Stream stopped: %v", m.streamErr)))
		s.WriteString("\n")
	}

	return s.String()
}
