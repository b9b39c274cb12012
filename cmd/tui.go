// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/Thermoquad/deyestat/pkg/deye"
)

// Event log entry
type eventLogEntry struct {
	timestamp time.Time
	message   string
	isError   bool // true for errors, false for info
}

// TUI model
type model struct {
	connInfo      string
	interval      time.Duration
	showAll       bool
	filter        deye.Filter
	stats         *deye.Statistics
	readings      table.Model
	eventLog      []eventLogEntry
	maxLogEntries int
	serial        uint32
	lastRead      time.Time
	powerOnTime   uint64 // seconds
	hasPowerOn    bool
	suspect       bool
	width         int
	height        int
	quitting      bool
}

// Messages
type tickMsg time.Time
type discoveredMsg struct {
	serial uint32
	err    error
}
type readingMsg struct {
	at        time.Time
	frame     *deye.Frame
	err       error
	anomalies []deye.ValidationError
}

// formatUptime formats uptime in seconds to human-friendly string
func formatUptime(seconds uint64) string {
	minutes := seconds / 60
	hours := minutes / 60
	days := hours / 24

	seconds %= 60
	minutes %= 60
	hours %= 24

	plural := func(n uint64, unit string) string {
		if n == 1 {
			return "1 " + unit
		}
		return fmt.Sprintf("%d %ss", n, unit)
	}

	parts := []string{}
	if days > 0 {
		parts = append(parts, plural(days, "day"))
	}
	if hours > 0 {
		parts = append(parts, plural(hours, "hour"))
	}
	if minutes > 0 {
		parts = append(parts, plural(minutes, "minute"))
	}
	if seconds > 0 || len(parts) == 0 {
		parts = append(parts, plural(seconds, "second"))
	}

	// Join with commas and "and" for last item
	if len(parts) == 1 {
		return parts[0]
	}
	if len(parts) == 2 {
		return parts[0] + " and " + parts[1]
	}
	last := parts[len(parts)-1]
	rest := strings.Join(parts[:len(parts)-1], ", ")
	return rest + ", and " + last
}

func newReadingsTable() table.Model {
	t := table.New(
		table.WithColumns([]table.Column{
			{Title: "Field", Width: 26},
			{Title: "Value", Width: 22},
			{Title: "Unit", Width: 5},
			{Title: "Status", Width: 12},
		}),
		table.WithHeight(10),
		table.WithFocused(true),
	)

	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(lipgloss.Color("240")).
		BorderBottom(true).
		Bold(true)
	s.Selected = s.Selected.
		Foreground(lipgloss.Color("229")).
		Background(lipgloss.Color("57"))
	t.SetStyles(s)
	return t
}

// readingRows converts decoded registers to table rows
func readingRows(values []*deye.Value) []table.Row {
	rows := make([]table.Row, 0, len(values))
	for _, v := range values {
		status := "ok"
		if !v.InRange() {
			status = "out of range"
		}
		rows = append(rows, table.Row{v.Name(), v.Text(), v.Unit(), status})
	}
	return rows
}

func initialModel(connInfo string, interval time.Duration, showAll bool, filter deye.Filter, stats *deye.Statistics) model {
	return model{
		connInfo:      connInfo,
		interval:      interval,
		showAll:       showAll,
		filter:        filter,
		stats:         stats,
		readings:      newReadingsTable(),
		eventLog:      make([]eventLogEntry, 0),
		maxLogEntries: 100,
		width:         80,
		height:        24,
	}
}

func (m model) Init() tea.Cmd {
	return tickCmd()
}

func tickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
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
		if h := m.height - 22; h > 5 {
			m.readings.SetHeight(h)
		}

	case tickMsg:
		// Redraw so rates and ages stay current
		return m, tickCmd()

	case discoveredMsg:
		if msg.err != nil {
			m.addLogEntry(fmt.Sprintf("DISCOVERY FAILED: %v", msg.err), true)
		} else {
			m.serial = msg.serial
			m.addLogEntry(fmt.Sprintf("Logger serial %s", deye.FormatSerial(msg.serial)), false)
		}
		return m, nil

	case readingMsg:
		m.applyReading(msg)
		return m, nil
	}

	var cmd tea.Cmd
	m.readings, cmd = m.readings.Update(msg)
	return m, cmd
}

// applyReading records one poll result
func (m *model) applyReading(msg readingMsg) {
	if msg.frame == nil {
		m.addLogEntry(fmt.Sprintf("EXCHANGE FAILED: %v", msg.err), true)
		return
	}

	m.lastRead = msg.at
	m.suspect = msg.frame.Suspect()
	if v, ok := msg.frame.Get(deye.NamePowerOnTime); ok {
		m.powerOnTime = v.Uint()
		m.hasPowerOn = true
	}
	registers := 0
	if fm := msg.frame.Message(); fm != nil {
		registers = fm.RegisterCount()
		m.readings.SetRows(readingRows(m.filter.Apply(fm.Readings())))
	}

	if msg.err != nil {
		m.addLogEntry(fmt.Sprintf("seq %d: %v", msg.frame.Sequence(), msg.err), true)
	}
	for _, a := range msg.anomalies {
		m.addLogEntry(fmt.Sprintf("seq %d: %s", msg.frame.Sequence(), a.Message), true)
	}
	if msg.err == nil && len(msg.anomalies) == 0 && m.showAll {
		m.addLogEntry(fmt.Sprintf("seq %d: %d registers (valid)", msg.frame.Sequence(), registers), false)
	}
}

func (m *model) addLogEntry(message string, isError bool) {
	entry := eventLogEntry{
		timestamp: time.Now(),
		message:   message,
		isError:   isError,
	}
	m.eventLog = append(m.eventLog, entry)

	// Keep only last N entries
	if len(m.eventLog) > m.maxLogEntries {
		m.eventLog = m.eventLog[len(m.eventLog)-m.maxLogEntries:]
	}
}

func (m model) View() string {
	if m.quitting {
		return "Shutting down...\n"
	}

	// Styles
	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("12")).
		Background(lipgloss.Color("235")).
		Padding(0, 1)

	headerStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("241"))

	statsLabelStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("12")).
		Bold(true)

	statsValueStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("10"))

	errorStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("9")).
		Bold(true)

	warningStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("11"))

	boxStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("240")).
		Padding(0, 1)

	// Header
	var s strings.Builder
	s.WriteString(titleStyle.Render("DEYESTAT - INVERTER MONITOR"))
	s.WriteString("\n")
	s.WriteString(headerStyle.Render(fmt.Sprintf("%s | Poll: %v | Press 'q' to quit", m.connInfo, m.interval)))
	s.WriteString("\n\n")

	// Logger status
	if m.serial == 0 {
		s.WriteString(warningStyle.Render("⏳ Discovering logger..."))
	} else {
		s.WriteString(statsValueStyle.Render("✓ Logger " + deye.FormatSerial(m.serial)))
		if m.hasPowerOn {
			s.WriteString(headerStyle.Render(", powered on " + formatUptime(m.powerOnTime)))
		}
		if !m.lastRead.IsZero() {
			s.WriteString(headerStyle.Render(fmt.Sprintf(" | last read %s ago", time.Since(m.lastRead).Round(time.Second))))
		}
		if m.suspect {
			s.WriteString(" " + errorStyle.Render("[SUSPECT]"))
		}
	}
	s.WriteString("\n\n")

	// Statistics
	snap := m.stats.Snapshot()
	var validPercent, errorPercent float64
	totalErrors := snap.ChecksumErrors + snap.CRCErrors + snap.DecodeErrors + snap.FramingErrors +
		snap.Exceptions + snap.Timeouts + snap.TransportErrors
	if snap.TotalExchanges > 0 {
		validPercent = float64(snap.ValidFrames) * 100.0 / float64(snap.TotalExchanges)
		errorPercent = float64(totalErrors) * 100.0 / float64(snap.TotalExchanges)
	}

	statsContent := strings.Builder{}
	statsContent.WriteString(fmt.Sprintf("%s %s   %s %s   %s %s\n",
		statsLabelStyle.Render("Exchanges:"), statsValueStyle.Render(fmt.Sprintf("%d", snap.TotalExchanges)),
		statsLabelStyle.Render("Valid:"), statsValueStyle.Render(fmt.Sprintf("%d (%.1f%%)", snap.ValidFrames, validPercent)),
		statsLabelStyle.Render("Errors:"), errorStyle.Render(fmt.Sprintf("%d (%.1f%%)", totalErrors, errorPercent)),
	))

	if snap.ChecksumErrors > 0 || snap.CRCErrors > 0 || snap.DecodeErrors > 0 {
		statsContent.WriteString(fmt.Sprintf("%s %s   %s %s   %s %s\n",
			statsLabelStyle.Render("Checksum:"), errorStyle.Render(fmt.Sprintf("%d", snap.ChecksumErrors)),
			statsLabelStyle.Render("CRC:"), errorStyle.Render(fmt.Sprintf("%d", snap.CRCErrors)),
			statsLabelStyle.Render("Decode:"), errorStyle.Render(fmt.Sprintf("%d", snap.DecodeErrors)),
		))
	}

	if snap.Timeouts > 0 || snap.TransportErrors > 0 {
		statsContent.WriteString(fmt.Sprintf("%s %s   %s %s\n",
			statsLabelStyle.Render("Timeouts:"), errorStyle.Render(fmt.Sprintf("%d", snap.Timeouts)),
			statsLabelStyle.Render("Transport:"), errorStyle.Render(fmt.Sprintf("%d", snap.TransportErrors)),
		))
	}

	if snap.AnomalousValues > 0 || snap.Exceptions > 0 {
		statsContent.WriteString(fmt.Sprintf("%s %s   %s %s\n",
			statsLabelStyle.Render("Anomalous:"), warningStyle.Render(fmt.Sprintf("%d", snap.AnomalousValues)),
			statsLabelStyle.Render("Exceptions:"), warningStyle.Render(fmt.Sprintf("%d", snap.Exceptions)),
		))
	}

	statsContent.WriteString(fmt.Sprintf("%s %s   %s %s",
		statsLabelStyle.Render("Exchange Rate:"), statsValueStyle.Render(fmt.Sprintf("%.2f /s", snap.ExchangeRate)),
		statsLabelStyle.Render("Error Rate:"), func() string {
			if snap.ErrorRate > 0 {
				return errorStyle.Render(fmt.Sprintf("%.2f err/s", snap.ErrorRate))
			}
			return statsValueStyle.Render(fmt.Sprintf("%.2f err/s", snap.ErrorRate))
		}(),
	))

	s.WriteString(boxStyle.Render(statsContent.String()))
	s.WriteString("\n\n")

	// Readings
	s.WriteString(statsLabelStyle.Render("Registers:"))
	s.WriteString("\n")
	if len(m.readings.Rows()) == 0 {
		s.WriteString(boxStyle.Render(headerStyle.Render("(no readings yet)")))
	} else {
		s.WriteString(boxStyle.Render(m.readings.View()))
	}
	s.WriteString("\n\n")

	// Event log
	s.WriteString(statsLabelStyle.Render("Recent Events:"))
	s.WriteString("\n")

	logHeight := 5
	logContent := strings.Builder{}
	startIdx := len(m.eventLog) - logHeight
	if startIdx < 0 {
		startIdx = 0
	}

	if len(m.eventLog) == 0 {
		logContent.WriteString(headerStyle.Render("  (no events yet)"))
	} else {
		for i := startIdx; i < len(m.eventLog); i++ {
			entry := m.eventLog[i]
			timestamp := entry.timestamp.Format("01/02/06 15:04:05.000")
			if entry.isError {
				logContent.WriteString(fmt.Sprintf("%s %s\n",
					headerStyle.Render(timestamp),
					errorStyle.Render("✗ "+entry.message),
				))
			} else {
				logContent.WriteString(fmt.Sprintf("%s %s\n",
					headerStyle.Render(timestamp),
					warningStyle.Render("ℹ "+entry.message),
				))
			}
		}
	}

	width := m.width - 4
	if width < 20 {
		width = 20
	}
	s.WriteString(boxStyle.Width(width).Render(logContent.String()))

	return s.String()
}
