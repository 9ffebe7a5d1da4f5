// internal/reporting/message.go
package reporting

import "strings"

// Message holds everything rendered into the chat summary.
type Message struct {
	SummaryDate string
	Report      *Report
	AIText      string
	AIErrorCode string
	// ShowAIUnavailable appends "AI: unavailable (code)" when no insight
	// was produced.
	ShowAIUnavailable bool
}

// Render formats the summary as plain chat text ending in a newline.
func (m Message) Render() string {
	lines := []string{
		"🗓 Daily Ops Summary – " + m.SummaryDate,
		"",
		"Overall:",
		m.Report.OverallStatus,
		"",
		"Highlights:",
	}
	for _, h := range m.Report.Highlights {
		lines = append(lines, "• "+h)
	}
	if len(m.Report.WatchList) > 0 {
		lines = append(lines, "", "Watch:")
		for _, w := range m.Report.WatchList {
			lines = append(lines, "• "+w)
		}
	}
	if m.AIText != "" {
		lines = append(lines, "", "AI Insight:", m.AIText)
	}
	if m.AIText == "" && m.AIErrorCode != "" && m.ShowAIUnavailable {
		lines = append(lines, "AI: unavailable ("+m.AIErrorCode+")")
	}
	return strings.TrimSpace(strings.Join(lines, "\n")) + "\n"
}
