package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var planCmd = &cobra.Command{
	Use:   "plan [path]",
	Short: "Resolve the stack and show the ordered deploy plan",
	Long: `Resolves the declared stack: builds the dependency graph, checks for
cycles, completes unset fields through the completion service and applies
connection side effects. Nothing is deployed.

Fields marked with * were filled in by the completion service; explicitly
declared values are never overridden.`,
	RunE: runPlan,
}

func runPlan(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	session, err := loadSession(ctx, args)
	if err != nil {
		return err
	}

	fmt.Print("Resolving stack... ")
	plan, err := newPlanner().Plan(ctx, session)
	if err != nil {
		fmt.Println("FAILED")
		return fmt.Errorf("resolution failed: %w", err)
	}
	fmt.Println("OK")

	fmt.Println("\nStax will perform the following actions:")
	renderPlanSteps(plan)
	renderPlanSummary(plan)
	return nil
}
