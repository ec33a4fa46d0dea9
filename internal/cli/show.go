package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var showJSON bool

var showCmd = &cobra.Command{
	Use:   "show [path]",
	Short: "Show the fully resolved stack",
	Long: `Resolves the declared stack and prints the result: every field filled in,
connection side effects applied, resources in deploy order. YAML by
default, JSON with --json.`,
	RunE: runShow,
}

func init() {
	showCmd.Flags().BoolVar(&showJSON, "json", false, "Output in JSON format")
}

// resolvedView is the serialized shape of a resolved plan.
type resolvedView struct {
	Order     []string           `yaml:"order" json:"order"`
	Networks  []string           `yaml:"networks,omitempty" json:"networks,omitempty"`
	Volumes   []string           `yaml:"volumes,omitempty" json:"volumes,omitempty"`
	Resources []resolvedResource `yaml:"resources" json:"resources"`
}

type resolvedResource struct {
	Name   string         `yaml:"name" json:"name"`
	Kind   string         `yaml:"kind" json:"kind"`
	Config map[string]any `yaml:"config" json:"config"`
}

func runShow(cmd *cobra.Command, args []string) error {
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
	fmt.Println()

	view := resolvedView{
		Order:    plan.Order,
		Networks: plan.Networks,
		Volumes:  plan.Volumes,
	}
	for _, step := range plan.Steps {
		view.Resources = append(view.Resources, resolvedResource{
			Name:   step.Resource.Name(),
			Kind:   string(step.Resource.Kind()),
			Config: step.Config,
		})
	}

	if showJSON {
		data, err := json.MarshalIndent(view, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal plan: %w", err)
		}
		fmt.Println(string(data))
		return nil
	}

	data, err := yaml.Marshal(view)
	if err != nil {
		return fmt.Errorf("failed to marshal plan: %w", err)
	}
	fmt.Print(string(data))
	return nil
}
