package main

import (
	"fmt"
	"strconv"
	"strings"

	"piatto/internal/cooking"

	"github.com/spf13/cobra"
)

var cookCmd = &cobra.Command{
	Use:   "cook",
	Short: "Cook a saved recipe step by step",
}

var cookStartCmd = &cobra.Command{
	Use:   "start RECIPE_ID",
	Short: "Start a cooking session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		recipeID, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid recipe id %q", args[0])
		}
		svc := application.Cooking()
		if _, err := svc.Start(cmd.Context(), recipeID); err != nil {
			return err
		}
		return showCooking(cmd, svc)
	},
}

var cookShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the instructions of the running session",
	RunE: func(cmd *cobra.Command, _ []string) error {
		svc, err := resumeCooking(cmd)
		if err != nil {
			return err
		}
		return showCooking(cmd, svc)
	},
}

var cookNextCmd = &cobra.Command{
	Use:   "next",
	Short: "Go to the next step",
	RunE:  stepCommand(func(cmd *cobra.Command, svc *cooking.Service) error { return svc.Next(cmd.Context()) }),
}

var cookPrevCmd = &cobra.Command{
	Use:   "prev",
	Short: "Go to the previous step",
	RunE:  stepCommand(func(cmd *cobra.Command, svc *cooking.Service) error { return svc.Prev(cmd.Context()) }),
}

var cookStepCmd = &cobra.Command{
	Use:   "step N",
	Short: "Jump to step N",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		n, err := strconv.Atoi(args[0])
		if err != nil {
			return cooking.ErrStepOutOfRange
		}
		return stepCommand(func(cmd *cobra.Command, svc *cooking.Service) error {
			return svc.GoTo(cmd.Context(), n-1)
		})(cmd, args)
	},
}

var cookAskCmd = &cobra.Command{
	Use:   "ask QUESTION...",
	Short: "Ask the cooking assistant",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := resumeCooking(cmd)
		if err != nil {
			return err
		}
		answer, err := svc.Ask(cmd.Context(), strings.Join(args, " "))
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), passStyle.Render("Piatto:")+" "+answer)
		return nil
	},
}

var cookHistoryCmd = &cobra.Command{
	Use:   "history",
	Short: "Show the questions and answers of the running session",
	RunE: func(cmd *cobra.Command, _ []string) error {
		svc, err := resumeCooking(cmd)
		if err != nil {
			return err
		}
		history, err := svc.History(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprint(cmd.OutOrStdout(), formatHistory(history))
		return nil
	},
}

var cookResetCmd = &cobra.Command{
	Use:   "regenerate",
	Short: "Discard and regenerate the instructions",
	RunE: func(cmd *cobra.Command, _ []string) error {
		svc, err := resumeCooking(cmd)
		if err != nil {
			return err
		}
		if err := svc.ResetInstructions(cmd.Context()); err != nil {
			return err
		}
		return showCooking(cmd, svc)
	},
}

var cookFinishCmd = &cobra.Command{
	Use:   "finish",
	Short: "End the cooking session",
	RunE: func(cmd *cobra.Command, _ []string) error {
		svc, err := resumeCooking(cmd)
		if err != nil {
			return err
		}
		if err := svc.Finish(cmd.Context()); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), passStyle.Render("✓ Guten Appetit!"))
		return nil
	},
}

func resumeCooking(cmd *cobra.Command) (*cooking.Service, error) {
	svc := application.Cooking()
	if _, err := svc.Resume(cmd.Context()); err != nil {
		return nil, err
	}
	return svc, nil
}

func stepCommand(move func(*cobra.Command, *cooking.Service) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, _ []string) error {
		svc, err := resumeCooking(cmd)
		if err != nil {
			return err
		}
		if err := move(cmd, svc); err != nil {
			return err
		}
		return showCooking(cmd, svc)
	}
}

func showCooking(cmd *cobra.Command, svc *cooking.Service) error {
	cs := svc.Current()
	if cs == nil {
		return cooking.ErrNoSession
	}
	steps, err := svc.Instructions(cmd.Context())
	if err != nil {
		return err
	}
	fmt.Fprint(cmd.OutOrStdout(), formatCooking(cs, steps))
	return nil
}

func init() {
	cookCmd.AddCommand(cookStartCmd, cookShowCmd, cookNextCmd, cookPrevCmd, cookStepCmd,
		cookAskCmd, cookHistoryCmd, cookResetCmd, cookFinishCmd)
	rootCmd.AddCommand(cookCmd)
}
