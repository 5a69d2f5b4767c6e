package tui

import (
	"fmt"
	"strings"

	"charm.land/lipgloss/v2"

	"github.com/mercantile/chatkit/internal/artifact"
)

// Brand accent for the storefront assistant.
const accentOrange = "#FF6B35"

// CHATKIT ASCII art (filled block style).
var bannerArt = []string{
	" ██████╗██╗  ██╗ █████╗ ████████╗██╗  ██╗██╗████████╗",
	"██╔════╝██║  ██║██╔══██╗╚══██╔══╝██║ ██╔╝██║╚══██╔══╝",
	"██║     ███████║███████║   ██║   █████╔╝ ██║   ██║   ",
	"██║     ██╔══██║██╔══██║   ██║   ██╔═██╗ ██║   ██║   ",
	"╚██████╗██║  ██║██║  ██║   ██║   ██║  ██╗██║   ██║   ",
	" ╚═════╝╚═╝  ╚═╝╚═╝  ╚═╝   ╚═╝   ╚═╝  ╚═╝╚═╝   ╚═╝   ",
}

// Styles contains all lipgloss styles for the TUI.
type Styles struct {
	Banner     lipgloss.Style
	User       lipgloss.Style
	Assistant  lipgloss.Style
	System     lipgloss.Style
	Tips       lipgloss.Style
	Error      lipgloss.Style
	Prompt     lipgloss.Style
	Separator  lipgloss.Style
	Attachment lipgloss.Style
	Product    lipgloss.Style
}

// DefaultStyles returns the default style configuration.
func DefaultStyles() Styles {
	return Styles{
		Banner:     lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color(accentOrange)),
		User:       lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("86")),
		Assistant:  lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212")),
		System:     lipgloss.NewStyle().Italic(true).Foreground(lipgloss.Color("240")),
		Tips:       lipgloss.NewStyle().Foreground(lipgloss.Color("255")),
		Error:      lipgloss.NewStyle().Foreground(lipgloss.Color("196")),
		Prompt:     lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("86")),
		Separator:  lipgloss.NewStyle().Foreground(lipgloss.Color("240")),
		Attachment: lipgloss.NewStyle().Foreground(lipgloss.Color("117")),
		Product:    lipgloss.NewStyle().Foreground(lipgloss.Color("222")),
	}
}

// RenderBanner returns the ASCII art banner as a styled string.
func (s Styles) RenderBanner() string {
	var b strings.Builder
	for _, line := range bannerArt {
		_, _ = b.WriteString(s.Banner.Render(line))
		_, _ = b.WriteString("\n")
	}
	return b.String()
}

// welcomeTips contains getting started tips displayed under the banner.
var welcomeTips = []string{
	"Tips for getting started:",
	"  • Ask about products, orders or returns in plain language",
	"  • Use /attach <path> to add a file to your next message",
	"  • Press Ctrl+C to cancel, Ctrl+D to exit",
	"  • PgUp at the top of the transcript loads older messages",
}

// RenderWelcomeTips returns styled welcome tips.
func (s Styles) RenderWelcomeTips() string {
	var b strings.Builder
	for _, tip := range welcomeTips {
		_, _ = b.WriteString(s.Tips.Render(tip))
		_, _ = b.WriteString("\n")
	}
	return b.String()
}

// renderArtifact formats a structured payload under an assistant message.
// Product results list one line per item; other types fall back to a count.
func (m *Model) renderArtifact(a artifact.Artifact) string {
	var b strings.Builder

	switch a.Type {
	case artifact.TypeProductSearchResults:
		_, _ = b.WriteString(m.styles.System.Render(fmt.Sprintf("  %d product(s):", len(a.Data))))
		for _, item := range a.Data {
			_, _ = b.WriteString("\n")
			_, _ = b.WriteString(m.styles.Product.Render("  • " + productLine(item)))
		}
	default:
		_, _ = b.WriteString(m.styles.System.Render(fmt.Sprintf("  [%s: %d item(s)]", a.Type, len(a.Data))))
	}
	return b.String()
}

// productLine builds a display line from the loosely-typed item fields.
func productLine(item artifact.Item) string {
	name := stringField(item, "name", "title")
	if name == "" {
		name = stringField(item, artifact.IdentityKey)
	}

	if price, ok := item["price"]; ok {
		return fmt.Sprintf("%s — %v", name, price)
	}
	return name
}

func stringField(item artifact.Item, keys ...string) string {
	for _, k := range keys {
		if v, ok := item[k].(string); ok && v != "" {
			return v
		}
	}
	return ""
}
