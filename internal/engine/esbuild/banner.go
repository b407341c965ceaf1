package esbuild

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"git.home.luguber.info/inful/tachyon/internal/engine"
)

var (
	bannerArrowStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#10B981"))
	bannerLabelStyle = lipgloss.NewStyle().Bold(true)
	bannerURLStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#06B6D4"))
	bannerMutedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#6B7280"))
)

// renderURLBanner formats the dev-server addresses for the terminal.
func renderURLBanner(urls engine.ServerURLs) string {
	var sb strings.Builder
	line := func(label, value string, style lipgloss.Style) {
		sb.WriteString("  ")
		sb.WriteString(bannerArrowStyle.Render("➜"))
		sb.WriteString("  ")
		sb.WriteString(bannerLabelStyle.Render(label))
		sb.WriteString(strings.Repeat(" ", 9-len(label)))
		sb.WriteString(style.Render(value))
		sb.WriteString("\n")
	}
	for _, u := range urls.Local {
		line("Local:", u, bannerURLStyle)
	}
	if len(urls.Network) == 0 {
		line("Network:", "set server.host to expose", bannerMutedStyle)
	}
	for _, u := range urls.Network {
		line("Network:", u, bannerURLStyle)
	}
	return sb.String()
}
