package format

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Styles controls how segments are drawn on a terminal.
type Styles struct {
	Code lipgloss.Style
	Pre  lipgloss.Style
}

// DefaultStyles returns the styles used by the terminal front ends.
func DefaultStyles() Styles {
	return Styles{
		Code: lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
		Pre: lipgloss.NewStyle().
			Foreground(lipgloss.Color("252")).
			Background(lipgloss.Color("236")).
			Padding(0, 1),
	}
}

// ANSI renders raw text for a terminal using the given styles.
func ANSI(raw string, st Styles) string {
	var sb strings.Builder
	for _, seg := range Parse(raw) {
		switch seg.Kind {
		case KindText:
			sb.WriteString(seg.Text)
		case KindCode:
			sb.WriteString(st.Code.Render(seg.Text))
		case KindPre:
			if sb.Len() > 0 && !strings.HasSuffix(sb.String(), "\n") {
				sb.WriteByte('\n')
			}
			sb.WriteString(st.Pre.Render(strings.Trim(seg.Text, "\n")))
			sb.WriteByte('\n')
		case KindBreak:
			sb.WriteByte('\n')
		}
	}
	return sb.String()
}
