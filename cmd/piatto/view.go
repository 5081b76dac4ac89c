package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"piatto/internal/wizard"

	"github.com/charmbracelet/huh"
)

// terminalView asks confirmations with huh and prints wizard errors as they
// appear. The options are printed by the commands once they settle.
type terminalView struct {
	out       io.Writer
	assumeYes bool

	mu      sync.Mutex
	lastErr string
	loading bool
}

func newTerminalView(out io.Writer, assumeYes bool) *terminalView {
	return &terminalView{out: out, assumeYes: assumeYes}
}

func (v *terminalView) Confirm(_ context.Context, message string) (bool, error) {
	if v.assumeYes {
		return true, nil
	}
	var ok bool
	err := huh.NewConfirm().
		Title(message).
		Affirmative("Ja").
		Negative("Nein").
		Value(&ok).
		Run()
	if errors.Is(err, huh.ErrUserAborted) {
		return false, nil
	}
	return ok, err
}

func (v *terminalView) Render(s wizard.State) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if s.Loading && !v.loading {
		fmt.Fprintln(v.out, mutedStyle.Render("⏳ Rezepte werden erstellt…"))
	}
	v.loading = s.Loading

	if s.Error != "" && s.Error != v.lastErr {
		fmt.Fprintln(v.out, failStyle.Render(s.Error))
	}
	v.lastErr = s.Error
}
