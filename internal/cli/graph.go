package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/stax-io/stax/internal/engine"
)

var graphCmd = &cobra.Command{
	Use:   "graph [path]",
	Short: "Output the dependency graph in DOT format",
	Long: `Generates a visual representation of the resource dependency graph
in Graphviz DOT format. Pipe the output to 'dot' to generate an image:

  stax graph | dot -Tpng > graph.png`,
	RunE: runGraph,
}

func runGraph(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	session, err := loadSession(ctx, args)
	if err != nil {
		return err
	}

	g, err := engine.BuildGraph(session)
	if err != nil {
		return fmt.Errorf("failed to build graph: %w", err)
	}

	fmt.Println("digraph stax {")
	fmt.Println("  rankdir = \"BT\";")
	fmt.Println("  node [shape = rect];")
	fmt.Println()

	for _, name := range g.DeployOrder() {
		fmt.Printf("  %q;\n", name)
	}
	fmt.Println()

	for _, name := range g.DeployOrder() {
		for _, dep := range g.Dependencies(name) {
			fmt.Printf("  %q -> %q;\n", name, dep)
		}
	}

	fmt.Println("}")
	return nil
}
