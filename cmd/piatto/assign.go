package main

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"piatto/internal/collection"
	"piatto/internal/messages"
	"piatto/internal/recipe"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"
)

// newCollectionChoice is the pseudo collection that opens the name prompt.
const newCollectionChoice int64 = -1

var assignCmd = &cobra.Command{
	Use:   "assign RECIPE_ID...",
	Short: "Sort saved recipes into collections",
	Long: `Walk through the given recipes and choose the collections each one
belongs to. The choice for one recipe is suggested for the next.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ids, err := parseIDs(args)
		if err != nil {
			return err
		}
		recipes := make([]recipe.Option, 0, len(ids))
		for _, id := range ids {
			recipes = append(recipes, recipe.Option{ID: id, Title: fmt.Sprintf("Rezept %d", id)})
		}
		return runAssign(cmd.Context(), cmd, recipes)
	},
}

var collectionsCmd = &cobra.Command{
	Use:   "collections",
	Short: "List your collections",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cols, err := application.Collections().Load(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), headerStyle.Render("Deine Sammlungen"))
		for _, c := range cols {
			fmt.Fprintf(cmd.OutOrStdout(), "  [%d] %s %s\n", c.ID, titleStyle.Render(c.Name),
				mutedStyle.Render(fmt.Sprintf("(%d Rezepte)", len(c.RecipeIDs))))
		}
		return nil
	},
}

func runAssign(ctx context.Context, cmd *cobra.Command, recipes []recipe.Option) error {
	svc := application.Collections()
	flow, err := svc.Start(ctx, recipes)
	if err != nil {
		return err
	}

	for {
		selected, err := pickCollections(flow)
		if errors.Is(err, huh.ErrUserAborted) {
			return nil
		}
		if err != nil {
			return err
		}

		if i := slices.Index(selected, newCollectionChoice); i >= 0 {
			selected = slices.Delete(selected, i, i+1)
			c, err := createCollection(ctx, svc)
			if err != nil && !errors.Is(err, huh.ErrUserAborted) {
				fmt.Fprintln(cmd.ErrOrStderr(), failStyle.Render(errorText(err)))
			}
			if c != nil {
				flow.AddCollection(*c)
				selected = append(selected, c.ID)
			}
		}
		flow.Select(selected...)

		if !flow.IsLast() {
			if err := flow.Next(); err != nil {
				fmt.Fprintln(cmd.ErrOrStderr(), warnStyle.Render(errorText(err)))
			}
			continue
		}
		if err := flow.Validate(); err != nil {
			fmt.Fprintln(cmd.ErrOrStderr(), warnStyle.Render(errorText(err)))
			continue
		}
		if err := flow.Save(ctx, application.Client()); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), passStyle.Render("✓ "+messages.CollectionsSaved))
		return nil
	}
}

func pickCollections(flow *collection.Flow) ([]int64, error) {
	current := flow.Current()
	choices := make([]huh.Option[int64], 0, len(flow.Collections())+1)
	for _, c := range flow.Collections() {
		choices = append(choices, huh.NewOption(c.Name, c.ID).Selected(flow.IsSelected(c.ID)))
	}
	choices = append(choices, huh.NewOption("➕ Neue Sammlung", newCollectionChoice))

	selected := flow.Selected(current.ID)
	err := huh.NewMultiSelect[int64]().
		Title(fmt.Sprintf("(%d/%d) %s", flow.Index()+1, flow.Len(), current.Label())).
		Description("In welche Sammlungen gehört dieses Rezept?").
		Options(choices...).
		Value(&selected).
		Run()
	return selected, err
}

func createCollection(ctx context.Context, svc *collection.Service) (*recipe.Collection, error) {
	var name string
	if err := huh.NewInput().Title("Name der neuen Sammlung").Value(&name).Run(); err != nil {
		return nil, err
	}
	return svc.Create(ctx, name)
}

func init() {
	rootCmd.AddCommand(assignCmd, collectionsCmd)
}
