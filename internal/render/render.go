// Package render turns recipe data into chat and terminal text.
package render

import (
	"fmt"
	"strings"

	"piatto/internal/api"
	"piatto/internal/recipe"

	"github.com/PuerkitoBio/goquery"
)

// PlainText strips markup from backend rich text and collapses whitespace.
// Input without markup is returned trimmed.
func PlainText(html string) string {
	if !strings.ContainsAny(html, "<&") {
		return strings.Join(strings.Fields(html), " ")
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return strings.Join(strings.Fields(html), " ")
	}

	// Remove noise
	doc.Find("script, style, iframe, nav, footer").Each(func(i int, s *goquery.Selection) {
		s.Remove()
	})
	// Keep list items and paragraphs apart
	doc.Find("li, p, br, h1, h2, h3").Each(func(i int, s *goquery.Selection) {
		s.AppendHtml(" ")
	})

	return strings.Join(strings.Fields(doc.Text()), " ")
}

// EscapeMarkdown escapes the characters Telegram's legacy Markdown treats as
// entity delimiters.
func EscapeMarkdown(s string) string {
	r := strings.NewReplacer("_", "\\_", "*", "\\*", "`", "\\`", "[", "\\[")
	return r.Replace(s)
}

// ImageIcon is the marker shown next to an option for its image status.
func ImageIcon(s recipe.ImageStatus) string {
	switch s {
	case recipe.ImageLoaded:
		return "🖼"
	case recipe.ImageError:
		return "⚠️"
	default:
		return "⏳"
	}
}

// StatusIcon is the marker for a library decision.
func StatusIcon(s recipe.Status) string {
	switch s {
	case recipe.StatusSaved:
		return "✅"
	case recipe.StatusDiscarded:
		return "🗑"
	default:
		return ""
	}
}

// OptionsMarkdown formats recipe options with their image status.
func OptionsMarkdown(opts []recipe.Option, images map[int64]recipe.ImageStatus) string {
	var sb strings.Builder
	sb.WriteString("🍽 *Deine Rezeptvorschläge*\n\n")

	for i, o := range opts {
		if o.IsPlaceholder() {
			sb.WriteString(fmt.Sprintf("%d. ⏳ _%s_\n\n", i+1, EscapeMarkdown(o.Label())))
			continue
		}
		sb.WriteString(fmt.Sprintf("%d. %s *%s*", i+1, ImageIcon(images[o.ID]), EscapeMarkdown(o.Title)))
		if meta := optionMeta(o); meta != "" {
			sb.WriteString(" (" + EscapeMarkdown(meta) + ")")
		}
		sb.WriteString("\n")
		if desc := PlainText(o.Description); desc != "" {
			sb.WriteString(fmt.Sprintf("_%s_\n", EscapeMarkdown(desc)))
		}
		sb.WriteString("\n")
	}
	return strings.TrimRight(sb.String(), "\n")
}

func optionMeta(o recipe.Option) string {
	var parts []string
	if o.TotalTimeMinutes > 0 {
		parts = append(parts, fmt.Sprintf("%d min", o.TotalTimeMinutes))
	}
	if o.Difficulty != "" {
		parts = append(parts, o.Difficulty)
	}
	if o.FoodCategory != "" {
		parts = append(parts, o.FoodCategory)
	}
	return strings.Join(parts, ", ")
}

// CookingMarkdown formats the instructions of a cooking session, marking
// the current step.
func CookingMarkdown(cs *api.CookingSession, steps []api.Instruction) string {
	var sb strings.Builder
	title := "Kochen"
	if cs != nil && cs.RecipeTitle != "" {
		title = cs.RecipeTitle
	}
	sb.WriteString(fmt.Sprintf("👩‍🍳 *%s*\n\n", EscapeMarkdown(title)))

	for i, st := range steps {
		marker := "  "
		if cs != nil && i == cs.State {
			marker = "➡️"
		}
		sb.WriteString(fmt.Sprintf("%s %d. %s", marker, i+1, EscapeMarkdown(PlainText(st.Text))))
		if st.TimerSeconds > 0 {
			sb.WriteString(fmt.Sprintf(" ⏱ %s", formatTimer(st.TimerSeconds)))
		}
		sb.WriteString("\n")
	}
	return strings.TrimRight(sb.String(), "\n")
}

// HistoryMarkdown formats the cooking chat.
func HistoryMarkdown(history []api.PromptEntry) string {
	var sb strings.Builder
	for _, h := range history {
		who := "🤖"
		if h.Role == "user" {
			who = "🙋"
		}
		sb.WriteString(fmt.Sprintf("%s %s\n", who, EscapeMarkdown(PlainText(h.Content))))
	}
	return strings.TrimRight(sb.String(), "\n")
}

func formatTimer(seconds int) string {
	if seconds%60 == 0 {
		return fmt.Sprintf("%d min", seconds/60)
	}
	return fmt.Sprintf("%d:%02d min", seconds/60, seconds%60)
}
