package cli

import (
	"github.com/spf13/cobra"

	"github.com/stax-io/stax/internal/logging"
)

var (
	flagLogLevel       string
	flagLogFormat      string
	flagBackend        string
	flagCompletionURL  string
	flagCompletionKey  string
	flagCompletionMode string
	flagRetries        int
	flagParallelism    int
)

var rootCmd = &cobra.Command{
	Use:   "stax",
	Short: "Declarative container stacks with service-completed fields",
	Long: `Stax deploys declared container stacks whose unset fields are filled in
by a completion service before anything is materialized.

It provides:
  • Typed resources (containers, files, repositories) and composites
  • Typed connections with automatic env injection and health checks
  • Deterministic dependency ordering, destroy as its exact reverse
  • Explicit values always win over completed ones`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logging.Init(flagLogLevel, flagLogFormat)
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&flagLogFormat, "log-format", "text", "Log format (text, json)")
	rootCmd.PersistentFlags().StringVar(&flagBackend, "backend", "docker", "Provisioning backend (docker, null)")
	rootCmd.PersistentFlags().StringVar(&flagCompletionURL, "completion-url", "", "Completion service endpoint")
	rootCmd.PersistentFlags().StringVar(&flagCompletionKey, "completion-api-key", "", "Completion service API key")
	rootCmd.PersistentFlags().StringVar(&flagCompletionMode, "completion-model", "", "Model hint forwarded to the completion service")
	rootCmd.PersistentFlags().IntVar(&flagRetries, "completion-retries", 0, "Max retries for completion calls (0 = default)")
	rootCmd.PersistentFlags().IntVar(&flagParallelism, "parallelism", 0, "Max concurrent completion calls (0 = default)")

	rootCmd.AddCommand(planCmd)
	rootCmd.AddCommand(applyCmd)
	rootCmd.AddCommand(destroyCmd)
	rootCmd.AddCommand(graphCmd)
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(versionCmd)
}
