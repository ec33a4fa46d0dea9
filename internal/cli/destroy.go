package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/stax-io/stax/internal/engine"
)

var (
	destroyAutoApprove bool
	destroyTarget      string
)

var destroyCmd = &cobra.Command{
	Use:   "destroy [path]",
	Short: "Destroy the stack in reverse deploy order",
	Long: `Destroys the declared stack. The destroy order is the exact reverse of
the deploy order, so dependents are always torn down before their
dependencies.

With --target, only the named composite's leaf resources are destroyed, in
the same reverse-topological order.`,
	RunE: runDestroy,
}

func init() {
	destroyCmd.Flags().BoolVar(&destroyAutoApprove, "auto-approve", false, "Skip interactive approval before destroying")
	destroyCmd.Flags().StringVar(&destroyTarget, "target", "", "Destroy only the named composite")
}

func runDestroy(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	session, err := loadSession(ctx, args)
	if err != nil {
		return err
	}

	planner := newPlanner()

	fmt.Print("Resolving stack... ")
	var plan *engine.Plan
	if destroyTarget != "" {
		plan, err = planner.DestroyComposite(ctx, session, destroyTarget)
	} else {
		plan, err = planner.Destroy(ctx, session)
	}
	if err != nil {
		fmt.Println("FAILED")
		return fmt.Errorf("resolution failed: %w", err)
	}
	fmt.Println("OK")

	if len(plan.Steps) == 0 {
		fmt.Println("Nothing to destroy.")
		return nil
	}

	fmt.Println("\nStax will destroy the following resources:")
	renderPlanSteps(plan)
	renderPlanSummary(plan)

	if !confirm("Do you really want to destroy these resources?", destroyAutoApprove) {
		fmt.Println("Destroy cancelled.")
		return nil
	}

	b, err := newRegistry().Get(flagBackend)
	if err != nil {
		return err
	}

	fmt.Printf("\nDestroying %d resources...\n", len(plan.Steps))
	results, err := b.Destroy(ctx, plan)
	renderResults(results)
	if err != nil {
		return fmt.Errorf("destroy failed: %w", err)
	}

	fmt.Printf("\nDestroy complete! Resources: %d destroyed.\n", plan.Summary.Destroy)
	return nil
}
