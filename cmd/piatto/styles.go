package main

import (
	"fmt"
	"strings"

	"piatto/internal/api"
	"piatto/internal/recipe"
	"piatto/internal/render"

	"github.com/charmbracelet/lipgloss"
)

var (
	colorPass   = lipgloss.AdaptiveColor{Light: "#86b300", Dark: "#c2d94c"}
	colorWarn   = lipgloss.AdaptiveColor{Light: "#f2ae49", Dark: "#ffb454"}
	colorFail   = lipgloss.AdaptiveColor{Light: "#f07171", Dark: "#f07178"}
	colorMuted  = lipgloss.AdaptiveColor{Light: "#828c99", Dark: "#6c7680"}
	colorAccent = lipgloss.AdaptiveColor{Light: "#399ee6", Dark: "#59c2ff"}
)

var (
	passStyle   = lipgloss.NewStyle().Foreground(colorPass)
	warnStyle   = lipgloss.NewStyle().Foreground(colorWarn)
	failStyle   = lipgloss.NewStyle().Foreground(colorFail)
	mutedStyle  = lipgloss.NewStyle().Foreground(colorMuted)
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(colorAccent)
	titleStyle  = lipgloss.NewStyle().Bold(true)
)

// formatOptions lists the recipe options with their id, image state and the
// decision made for them, if any.
func formatOptions(opts []recipe.Option, images map[int64]recipe.ImageStatus, statuses map[int64]recipe.Status) string {
	var sb strings.Builder
	sb.WriteString(headerStyle.Render("Deine Rezeptvorschläge"))
	sb.WriteString("\n")
	if len(opts) == 0 {
		sb.WriteString(mutedStyle.Render("  keine Vorschläge"))
		sb.WriteString("\n")
		return sb.String()
	}

	for _, o := range opts {
		icon := ""
		if images != nil {
			icon = render.ImageIcon(images[o.ID]) + " "
		}
		if o.IsPlaceholder() {
			fmt.Fprintf(&sb, "  %s%s\n", icon, mutedStyle.Render(o.Label()))
			continue
		}

		line := fmt.Sprintf("  %s[%d] %s", icon, o.ID, titleStyle.Render(o.Title))
		if st, ok := statuses[o.ID]; ok && st != recipe.StatusPending {
			line += " " + render.StatusIcon(st)
		}
		sb.WriteString(line + "\n")

		var meta []string
		if o.TotalTimeMinutes > 0 {
			meta = append(meta, fmt.Sprintf("%d min", o.TotalTimeMinutes))
		}
		if o.Difficulty != "" {
			meta = append(meta, o.Difficulty)
		}
		if o.FoodCategory != "" {
			meta = append(meta, o.FoodCategory)
		}
		if len(meta) > 0 {
			sb.WriteString("      " + mutedStyle.Render(strings.Join(meta, " · ")) + "\n")
		}
		if desc := render.PlainText(o.Description); desc != "" {
			sb.WriteString("      " + desc + "\n")
		}
	}
	return sb.String()
}

// formatCooking shows the cooking session with the current step highlighted.
func formatCooking(cs *api.CookingSession, steps []api.Instruction) string {
	var sb strings.Builder
	title := cs.RecipeTitle
	if title == "" {
		title = fmt.Sprintf("Rezept %d", cs.RecipeID)
	}
	sb.WriteString(headerStyle.Render("👩‍🍳 "+title) + "\n")
	if len(steps) == 0 {
		sb.WriteString(mutedStyle.Render("  keine Anleitung verfügbar") + "\n")
		return sb.String()
	}

	for i, step := range steps {
		text := render.PlainText(step.Text)
		if step.TimerSeconds > 0 {
			text += mutedStyle.Render(fmt.Sprintf(" (⏱ %d:%02d min)", step.TimerSeconds/60, step.TimerSeconds%60))
		}
		if i == cs.State {
			fmt.Fprintf(&sb, "%s %s\n", passStyle.Render(fmt.Sprintf("➡️  %d.", i+1)), titleStyle.Render(text))
		} else {
			fmt.Fprintf(&sb, "   %s %s\n", mutedStyle.Render(fmt.Sprintf("%d.", i+1)), text)
		}
	}
	return sb.String()
}

// formatHistory renders the cooking chat.
func formatHistory(history []api.PromptEntry) string {
	if len(history) == 0 {
		return mutedStyle.Render("Noch keine Fragen gestellt.") + "\n"
	}
	var sb strings.Builder
	for _, e := range history {
		who := warnStyle.Render("Du:")
		if e.Role == "assistant" {
			who = passStyle.Render("Piatto:")
		}
		fmt.Fprintf(&sb, "%s %s\n", who, e.Content)
	}
	return sb.String()
}
