package render

import (
	"strings"
	"testing"

	"piatto/internal/api"
	"piatto/internal/recipe"
)

func TestPlainText(t *testing.T) {
	html := `
		<div>
			<script>alert('bad');</script>
			<style>.x{}</style>
			<p>Cremiges Risotto</p><ul><li>mit Steinpilzen</li><li>und Parmesan</li></ul>
			<iframe src="ads"></iframe>
		</div>`

	got := PlainText(html)
	want := "Cremiges Risotto mit Steinpilzen und Parmesan"
	if got != want {
		t.Errorf("Expected %q, got %q", want, got)
	}
	if strings.Contains(got, "alert") {
		t.Error("Script content should be removed")
	}

	if got := PlainText("  schlicht   und\neinfach "); got != "schlicht und einfach" {
		t.Errorf("Expected plain text to be normalized, got %q", got)
	}
}

func TestOptionsMarkdown(t *testing.T) {
	opts := []recipe.Option{
		{ID: -1},
		{ID: 5, Title: "Pilz_Risotto", TotalTimeMinutes: 30, Difficulty: "leicht", Description: "<b>cremig</b>"},
		{ID: 6, Title: "Linsensuppe"},
	}
	images := map[int64]recipe.ImageStatus{5: recipe.ImageLoaded, 6: recipe.ImageError}

	out := OptionsMarkdown(opts, images)

	if !strings.Contains(out, "🍽 *Deine Rezeptvorschläge*") {
		t.Error("Missing header")
	}
	if !strings.Contains(out, "1. ⏳ _Rezept 1 wird erstellt…_") {
		t.Errorf("Missing placeholder line in:\n%s", out)
	}
	if !strings.Contains(out, "2. 🖼 *Pilz\\_Risotto* (30 min, leicht)") {
		t.Errorf("Missing loaded option in:\n%s", out)
	}
	if !strings.Contains(out, "_cremig_") {
		t.Error("Missing description")
	}
	if !strings.Contains(out, "3. ⚠️ *Linsensuppe*") {
		t.Error("Missing errored option")
	}
}

func TestCookingMarkdown(t *testing.T) {
	cs := &api.CookingSession{ID: 1, RecipeTitle: "Risotto", State: 1}
	steps := []api.Instruction{
		{Step: 1, Text: "Zwiebeln hacken"},
		{Step: 2, Text: "Reis anbraten", TimerSeconds: 90},
	}

	out := CookingMarkdown(cs, steps)

	if !strings.Contains(out, "*Risotto*") {
		t.Error("Missing title")
	}
	if !strings.Contains(out, "➡️ 2. Reis anbraten ⏱ 1:30 min") {
		t.Errorf("Current step not marked in:\n%s", out)
	}
	if strings.Contains(out, "➡️ 1.") {
		t.Error("Only the current step should be marked")
	}
}

func TestHistoryMarkdown(t *testing.T) {
	out := HistoryMarkdown([]api.PromptEntry{
		{Role: "user", Content: "Wie lange?"},
		{Role: "assistant", Content: "18 Minuten."},
	})
	want := "🙋 Wie lange?\n🤖 18 Minuten."
	if out != want {
		t.Errorf("Expected %q, got %q", want, out)
	}
}
