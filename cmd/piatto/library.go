package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"piatto/internal/library"
	"piatto/internal/messages"
	"piatto/internal/recipe"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"
)

var saveAssign bool

var saveCmd = &cobra.Command{
	Use:   "save [RECIPE_ID...]",
	Short: "Save suggestions to your library",
	Long: `Save one or more suggestions of the open preparing session. Without ids
a list of the open suggestions is shown to pick from.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		tracker, err := openTracker(ctx, cmd)
		if err != nil || tracker == nil {
			return err
		}

		ids, err := parseIDs(args)
		if err != nil {
			return err
		}
		if len(ids) == 0 {
			if ids, err = pickRecipes(tracker.Pending()); err != nil {
				if errors.Is(err, huh.ErrUserAborted) {
					return nil
				}
				return err
			}
		}

		if err := tracker.SaveAll(ctx, ids); err != nil {
			return err
		}
		saved := tracker.Saved()
		for _, o := range saved {
			fmt.Fprintln(cmd.OutOrStdout(), passStyle.Render("💾 "+messages.RecipeSaved+" "+o.Title))
		}
		if saveAssign && len(saved) > 0 {
			return runAssign(ctx, cmd, saved)
		}
		return nil
	},
}

var discardCmd = &cobra.Command{
	Use:   "discard RECIPE_ID...",
	Short: "Drop suggestions from the open preparing session",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		ids, err := parseIDs(args)
		if err != nil {
			return err
		}
		tracker, err := openTracker(ctx, cmd)
		if err != nil || tracker == nil {
			return err
		}
		for _, id := range ids {
			if err := tracker.Discard(ctx, id); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), mutedStyle.Render(fmt.Sprintf("🗑 %s (%d)", messages.RecipeDiscarded, id)))
		}
		return nil
	},
}

var reviewCmd = &cobra.Command{
	Use:   "review",
	Short: "Go through the suggestions one by one",
	Long: `Decide for every open suggestion whether to save or discard it. The last
decision can be taken back for a few seconds.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		tracker, err := openTracker(ctx, cmd)
		if err != nil || tracker == nil {
			return err
		}
		err = review(ctx, cmd, tracker)
		if errors.Is(err, huh.ErrUserAborted) {
			err = nil
		}
		fmt.Fprint(cmd.OutOrStdout(), formatOptions(optionsOf(tracker), nil, statusesOf(tracker)))
		if err == nil && saveAssign && len(tracker.Saved()) > 0 {
			return runAssign(ctx, cmd, tracker.Saved())
		}
		return err
	},
}

const (
	actionSave    = "save"
	actionDiscard = "discard"
	actionSkip    = "skip"
	actionUndo    = "undo"
)

func review(ctx context.Context, cmd *cobra.Command, tracker *library.Tracker) error {
	var last int64
	for {
		pending := tracker.Pending()
		if len(pending) == 0 {
			return nil
		}
		o := pending[0]

		choices := []huh.Option[string]{
			huh.NewOption("💾 Speichern", actionSave),
			huh.NewOption("🗑 Verwerfen", actionDiscard),
			huh.NewOption("Später entscheiden", actionSkip),
		}
		if last != 0 && tracker.CanUndo(last) {
			choices = append(choices, huh.NewOption("↩️ Letzte Entscheidung rückgängig", actionUndo))
		}

		var action string
		err := huh.NewSelect[string]().
			Title(o.Label()).
			Description(o.Difficulty).
			Options(choices...).
			Value(&action).
			Run()
		if err != nil {
			return err
		}

		switch action {
		case actionSave:
			err = tracker.Save(ctx, o.ID)
			last = o.ID
		case actionDiscard:
			err = tracker.Discard(ctx, o.ID)
			last = o.ID
		case actionUndo:
			err = tracker.Undo(ctx, last)
			last = 0
		case actionSkip:
			return nil
		}
		if err != nil {
			fmt.Fprintln(cmd.ErrOrStderr(), failStyle.Render(errorText(err)))
			if !errors.Is(err, library.ErrUndoExpired) {
				return err
			}
		}
	}
}

// openTracker restores the preparing session and tracks its options. It
// returns nil without error when no session is open.
func openTracker(ctx context.Context, cmd *cobra.Command) (*library.Tracker, error) {
	w := application.Wizard(newTerminalView(cmd.OutOrStdout(), true))
	defer w.Close()

	ok, err := w.Restore(ctx)
	if err != nil {
		return nil, err
	}
	if !ok {
		fmt.Fprintln(cmd.OutOrStdout(), mutedStyle.Render(messages.NoPreparingActive))
		return nil, nil
	}
	s := w.State()
	return application.Tracker(s.SessionID, s.Options), nil
}

func pickRecipes(opts []recipe.Option) ([]int64, error) {
	if len(opts) == 0 {
		return nil, nil
	}
	choices := make([]huh.Option[int64], 0, len(opts))
	for _, o := range opts {
		choices = append(choices, huh.NewOption(o.Label(), o.ID))
	}
	var ids []int64
	err := huh.NewMultiSelect[int64]().
		Title("Welche Rezepte möchtest du speichern?").
		Options(choices...).
		Value(&ids).
		Run()
	return ids, err
}

func optionsOf(t *library.Tracker) []recipe.Option {
	entries := t.Entries()
	opts := make([]recipe.Option, 0, len(entries))
	for _, e := range entries {
		opts = append(opts, e.Option)
	}
	return opts
}

func statusesOf(t *library.Tracker) map[int64]recipe.Status {
	statuses := map[int64]recipe.Status{}
	for _, e := range t.Entries() {
		statuses[e.Option.ID] = e.Status
	}
	return statuses
}

func parseIDs(args []string) ([]int64, error) {
	ids := make([]int64, 0, len(args))
	for _, a := range args {
		id, err := strconv.ParseInt(a, 10, 64)
		if err != nil || id <= 0 {
			return nil, fmt.Errorf("invalid recipe id %q", a)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func init() {
	saveCmd.Flags().BoolVar(&saveAssign, "assign", false, "sort the saved recipes into collections afterwards")
	reviewCmd.Flags().BoolVar(&saveAssign, "assign", false, "sort the saved recipes into collections afterwards")
	rootCmd.AddCommand(saveCmd, discardCmd, reviewCmd)
}
