// Package botcontext renders a bot's stored knowledge into the single text
// blob that is placed in the system prompt.
package botcontext

import (
	"strings"

	"github.com/markdave123-py/smartbot/internal/models"
)

// Materialize returns everything the model is allowed to know about the bot.
// Automatic bots yield their extracted document text verbatim. Manual bots
// yield a fixed template of the organization profile. An empty string means
// there is no usable data. The result is never truncated.
func Materialize(mode string, src models.ContextSource) string {
	switch mode {
	case models.ModeAutomatic:
		return src.Content
	case models.ModeManual:
		if isEmptyProfile(src) {
			return ""
		}
		return renderProfile(src)
	default:
		return ""
	}
}

func renderProfile(src models.ContextSource) string {
	var b strings.Builder
	b.WriteString("Organization Name: " + src.Name + "\n")
	b.WriteString("Website: " + src.Website + "\n")
	b.WriteString("Industry: " + src.Industry + "\n")
	b.WriteString("About: " + src.About + "\n")

	b.WriteString("\nEmployees:\n")
	for _, e := range src.Employees {
		writeEntry(&b, e.Name, e.Role)
	}
	b.WriteString("\nProducts:\n")
	for _, p := range src.Products {
		writeEntry(&b, p.Name, p.Details)
	}
	b.WriteString("\nServices:\n")
	for _, s := range src.Services {
		writeEntry(&b, s.Name, s.Details)
	}
	return b.String()
}

func writeEntry(b *strings.Builder, name, detail string) {
	b.WriteString("- ")
	b.WriteString(name)
	b.WriteString(": ")
	b.WriteString(detail)
	b.WriteByte('\n')
}

func isEmptyProfile(src models.ContextSource) bool {
	for _, s := range []string{src.Name, src.Website, src.Industry, src.About} {
		if strings.TrimSpace(s) != "" {
			return false
		}
	}
	return len(src.Employees) == 0 && len(src.Products) == 0 && len(src.Services) == 0
}
