package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var applyAutoApprove bool

var applyCmd = &cobra.Command{
	Use:   "apply [path]",
	Short: "Resolve the stack and deploy it",
	Long: `Resolves the declared stack and hands the ordered operation list to the
provisioning backend. Any failure during resolution aborts before anything
reaches the backend.`,
	RunE: runApply,
}

func init() {
	applyCmd.Flags().BoolVar(&applyAutoApprove, "auto-approve", false, "Skip interactive approval of plan before applying")
}

func runApply(cmd *cobra.Command, args []string) error {
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

	if len(plan.Steps) == 0 {
		fmt.Println("Nothing to deploy.")
		return nil
	}

	fmt.Println("\nStax will perform the following actions:")
	renderPlanSteps(plan)
	renderPlanSummary(plan)

	if !confirm("Do you want to perform these actions?", applyAutoApprove) {
		fmt.Println("Apply cancelled.")
		return nil
	}

	b, err := newRegistry().Get(flagBackend)
	if err != nil {
		return err
	}

	fmt.Printf("\nDeploying %d resources...\n", len(plan.Steps))
	results, err := b.Deploy(ctx, plan)
	renderResults(results)
	if err != nil {
		return fmt.Errorf("deploy failed: %w", err)
	}

	fmt.Printf("\nApply complete! Resources: %d deployed.\n", plan.Summary.Create)
	return nil
}
