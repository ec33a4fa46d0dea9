package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/stax-io/stax/internal/backend"
	"github.com/stax-io/stax/internal/backend/docker"
	"github.com/stax-io/stax/internal/backend/null"
	"github.com/stax-io/stax/internal/completion"
	"github.com/stax-io/stax/internal/engine"
	"github.com/stax-io/stax/internal/eval"
	"github.com/stax-io/stax/internal/stack"
)

// resolveEntrypoint turns an optional path argument into a working directory
// and a PKL entrypoint. The default entrypoint is stack.pkl.
func resolveEntrypoint(args []string) (wd, entryPoint string, err error) {
	wd, err = os.Getwd()
	if err != nil {
		return "", "", fmt.Errorf("failed to get working directory: %w", err)
	}
	entryPoint = "stack.pkl"

	if len(args) > 0 {
		absPath, err := filepath.Abs(args[0])
		if err != nil {
			return "", "", fmt.Errorf("failed to resolve path %s: %w", args[0], err)
		}
		info, err := os.Stat(absPath)
		if err != nil {
			return "", "", fmt.Errorf("failed to stat path %s: %w", args[0], err)
		}
		if info.IsDir() {
			wd = absPath
		} else {
			wd = filepath.Dir(absPath)
			entryPoint = filepath.Base(absPath)
		}
	}
	return wd, entryPoint, nil
}

// loadSession evaluates the declaration and builds a fresh session.
func loadSession(ctx context.Context, args []string) (*stack.Session, error) {
	wd, entryPoint, err := resolveEntrypoint(args)
	if err != nil {
		return nil, err
	}

	fmt.Print("Loading declaration... ")
	session, err := eval.NewEvaluator(wd).LoadStack(ctx, entryPoint)
	if err != nil {
		fmt.Println("FAILED")
		return nil, fmt.Errorf("failed to load declaration: %w", err)
	}
	fmt.Println("OK")
	return session, nil
}

// newPlanner builds a planner from the global flags. Without a completion
// endpoint, any object with unset fields fails the run.
func newPlanner() *engine.Planner {
	var completer completion.Completer
	if flagCompletionURL != "" {
		completer = completion.NewClient(completion.ClientOptions{
			Endpoint:   flagCompletionURL,
			Model:      flagCompletionMode,
			APIKey:     completionAPIKey(),
			MaxRetries: flagRetries,
		})
	}
	return engine.NewPlanner(completer, engine.Options{
		CompletionParallelism: flagParallelism,
	})
}

func completionAPIKey() string {
	if flagCompletionKey != "" {
		return flagCompletionKey
	}
	return os.Getenv("STAX_COMPLETION_API_KEY")
}

// newRegistry wires the built-in backends.
func newRegistry() *backend.Registry {
	registry := backend.NewRegistry()
	registry.Register("docker", func() (backend.Backend, error) { return docker.New(), nil })
	registry.Register("null", func() (backend.Backend, error) { return null.New(), nil })
	return registry
}

// renderPlanSteps prints the ordered operation list in the plan output
// style: green + for create, red - for destroy.
func renderPlanSteps(plan *engine.Plan) {
	for _, step := range plan.Steps {
		symbol, color := "+", "\033[32m"
		if step.Operation == engine.OpDestroy {
			symbol, color = "-", "\033[31m"
		}

		fmt.Printf("\n%s  %s %s \"%s\" {%s\n", color, symbol, step.Resource.Kind(), step.Resource.Name(), "\033[0m")
		for _, spec := range step.Resource.Fields().Specs() {
			if v, ok := step.Resource.Fields().Get(spec.Name); ok {
				marker := " "
				if !step.Resource.Fields().IsExplicit(spec.Name) {
					marker = "*" // completed by the service
				}
				fmt.Printf("%s     %s %s = %v\n", color, marker, spec.Name, formatValue(v))
			}
		}
		for _, e := range step.Resource.Env() {
			fmt.Printf("%s       env %s = %q\n", color, e.Name, e.Value)
		}
		fmt.Printf("%s    }%s\n", color, "\033[0m")
	}

	if len(plan.Networks) > 0 {
		fmt.Printf("\nShared networks: %v\n", plan.Networks)
	}
	if len(plan.Volumes) > 0 {
		fmt.Printf("Shared volumes:  %v\n", plan.Volumes)
	}
}

// renderPlanSummary prints the plan summary counts.
func renderPlanSummary(plan *engine.Plan) {
	fmt.Println("\nPlan Summary:")
	fmt.Printf("  Create:  %d\n", plan.Summary.Create)
	fmt.Printf("  Destroy: %d\n", plan.Summary.Destroy)
}

// renderResults prints per-resource backend results.
func renderResults(results []backend.Result) {
	for _, r := range results {
		status := "ok"
		if r.Err != nil {
			status = "failed: " + r.Err.Error()
		}
		if r.ID != "" {
			fmt.Printf("  %s %s (%s): %s\n", r.Operation, r.Name, r.ID, status)
		} else {
			fmt.Printf("  %s %s: %s\n", r.Operation, r.Name, status)
		}
	}
}

// formatValue returns a human-readable representation of a value.
func formatValue(v any) string {
	if v == nil {
		return "null"
	}
	if s, ok := v.(string); ok {
		return fmt.Sprintf("%q", s)
	}
	return fmt.Sprintf("%v", v)
}

// confirm prompts the user unless auto-approval is set.
func confirm(prompt string, autoApprove bool) bool {
	if autoApprove {
		return true
	}
	fmt.Printf("\n%s (y/n): ", prompt)
	var response string
	fmt.Scanln(&response)
	return response == "y" || response == "yes"
}
