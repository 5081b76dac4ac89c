package recipe

import "testing"

func TestPlaceholders(t *testing.T) {
	opts := Placeholders(PlaceholderCount)
	if len(opts) != 3 {
		t.Fatalf("Expected 3 placeholders, got %d", len(opts))
	}
	for i, o := range opts {
		if o.ID != int64(-(i + 1)) {
			t.Errorf("Expected placeholder id %d, got %d", -(i + 1), o.ID)
		}
		if !o.IsPlaceholder() {
			t.Errorf("Expected option %d to be a placeholder", o.ID)
		}
	}
}

func TestOptionLabel(t *testing.T) {
	url := "x.png"
	cases := []struct {
		name string
		opt  Option
		want string
	}{
		{"Placeholder", Option{ID: -2}, "Rezept 2 wird erstellt…"},
		{"WithTime", Option{ID: 5, Title: "Risotto", TotalTimeMinutes: 35}, "Risotto (35 min)"},
		{"WithoutTime", Option{ID: 6, Title: "Salat", ImageURL: &url}, "Salat"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.opt.Label(); got != tc.want {
				t.Errorf("Expected '%s', got '%s'", tc.want, got)
			}
		})
	}
}

func TestImageStatusTerminal(t *testing.T) {
	if ImageLoading.Terminal() {
		t.Error("Expected loading to be non-terminal")
	}
	if !ImageLoaded.Terminal() || !ImageError.Terminal() {
		t.Error("Expected loaded and error to be terminal")
	}
}
