package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"piatto/internal/messages"
	"piatto/internal/recipe"
	"piatto/internal/wizard"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"
)

var (
	generatePrompt      string
	generateIngredients string
	generateWait        time.Duration
	assumeYes           bool
)

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate recipe suggestions",
	Long: `Describe what you feel like eating and list the ingredients you have.
Without --prompt an interactive form asks for both.

Generating again while suggestions are open continues the same preparing
session, so earlier suggestions are taken into account.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		w := application.Wizard(newTerminalView(cmd.OutOrStdout(), assumeYes))
		defer w.Close()

		if _, err := w.Restore(ctx); err != nil {
			fmt.Fprintln(cmd.ErrOrStderr(), warnStyle.Render(messages.RestoreFailed))
		}

		prompt, ingredients := generatePrompt, generateIngredients
		if prompt == "" {
			if err := askPrompt(&prompt, &ingredients); err != nil {
				if errors.Is(err, huh.ErrUserAborted) {
					return nil
				}
				return err
			}
		}

		w.SetPrompt(prompt)
		if err := w.SubmitPrompt(); err != nil {
			return err
		}
		w.SetIngredients(wizard.ParseIngredients(ingredients))
		if err := w.Generate(ctx); err != nil {
			return err
		}

		waitForImages(ctx, w, generateWait)
		printState(cmd, w.State())
		return nil
	},
}

var optionsCmd = &cobra.Command{
	Use:   "options",
	Short: "Show the suggestions of the open preparing session",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		w := application.Wizard(newTerminalView(cmd.OutOrStdout(), true))
		defer w.Close()

		ok, err := w.Restore(ctx)
		if err != nil {
			return err
		}
		if !ok {
			fmt.Fprintln(cmd.OutOrStdout(), mutedStyle.Render(messages.NoPreparingActive))
			return nil
		}
		waitForImages(ctx, w, generateWait)
		printState(cmd, w.State())
		return nil
	},
}

var finishCmd = &cobra.Command{
	Use:     "finish",
	Aliases: []string{"discard-all"},
	Short:   "Close the preparing session and drop the remaining suggestions",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		w := application.Wizard(newTerminalView(cmd.OutOrStdout(), assumeYes))
		defer w.Close()

		ok, err := w.Restore(ctx)
		if err != nil {
			return err
		}
		if !ok {
			fmt.Fprintln(cmd.OutOrStdout(), mutedStyle.Render(messages.NoPreparingActive))
			return nil
		}

		before := w.State().SessionID
		if err := w.Back(ctx); err != nil {
			return err
		}
		if w.State().SessionID == before {
			return nil
		}
		fmt.Fprintln(cmd.OutOrStdout(), passStyle.Render("✓ Sitzung beendet"))
		return nil
	},
}

func askPrompt(prompt, ingredients *string) error {
	return huh.NewForm(
		huh.NewGroup(
			huh.NewText().
				Title("Worauf hast du Lust?").
				Placeholder("z.B. etwas Schnelles mit Pilzen").
				CharLimit(2000).
				Value(prompt).
				Validate(func(s string) error {
					if strings.TrimSpace(s) == "" {
						return errors.New(messages.PromptRequired)
					}
					return nil
				}),
		),
		huh.NewGroup(
			huh.NewText().
				Title("Welche Zutaten hast du?").
				Description("Durch Komma oder Zeilenumbruch getrennt, optional").
				Value(ingredients),
		),
	).WithTheme(huh.ThemeDracula()).Run()
}

// waitForImages blocks until every option has its image or failed, or until
// max has passed.
func waitForImages(ctx context.Context, w *wizard.Controller, max time.Duration) {
	if max <= 0 {
		return
	}
	timer := time.NewTimer(max)
	defer timer.Stop()
	select {
	case <-w.Poller().Done():
	case <-timer.C:
	case <-ctx.Done():
	}
}

func printState(cmd *cobra.Command, s wizard.State) {
	fmt.Fprint(cmd.OutOrStdout(), formatOptions(s.Options, s.Images, nil))
	if len(s.AnalyzedIngredients) > 0 {
		fmt.Fprintln(cmd.OutOrStdout(), mutedStyle.Render("Erkannte Zutaten: "+strings.Join(s.AnalyzedIngredients, ", ")))
	}
	for _, o := range s.Options {
		if !o.IsPlaceholder() && s.Images[o.ID] == recipe.ImageLoading {
			fmt.Fprintln(cmd.OutOrStdout(), mutedStyle.Render(fmt.Sprintf("Bild für Rezept %d wird noch erstellt.", o.ID)))
		}
	}
}

func init() {
	generateCmd.Flags().StringVarP(&generatePrompt, "prompt", "p", "", "what you feel like eating")
	generateCmd.Flags().StringVarP(&generateIngredients, "ingredients", "i", "", "ingredients you have, comma separated")
	for _, c := range []*cobra.Command{generateCmd, optionsCmd} {
		c.Flags().DurationVar(&generateWait, "wait", 2*time.Minute, "how long to wait for recipe images (0 to skip)")
	}
	finishCmd.Flags().BoolVarP(&assumeYes, "yes", "y", false, "do not ask for confirmation")

	rootCmd.AddCommand(generateCmd, optionsCmd, finishCmd)
}
