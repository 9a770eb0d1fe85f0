package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/simonyos/roundtable/internal/config"
	"github.com/simonyos/roundtable/internal/llm"
)

var (
	providerJSONFlag    bool
	providerTimeoutFlag time.Duration
)

var providerCmd = &cobra.Command{
	Use:     "provider",
	Aliases: []string{"providers", "backend"},
	Short:   "Inspect model backends",
	Long: `Inspect the model backends personas can use.

Examples:
  roundtable provider list
  roundtable provider validate openai
  roundtable provider models ollama`,
}

var providerListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List backends and whether they are configured",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		logger, err := newLogger()
		if err != nil {
			return err
		}
		defer logger.Sync()

		creds := config.Credentials{}
		for _, p := range newRegistry(logger).List() {
			state := "no key needed"
			if p.RequiresKey() {
				if _, ok := creds.Credential(p.ID()); ok {
					state = "key configured"
				} else {
					state = errorStyle().Render("key missing")
				}
			}
			fmt.Printf("  %-12s %-22s %s\n", p.ID(), p.Name(), state)
		}
		return nil
	},
}

var providerValidateCmd = &cobra.Command{
	Use:   "validate <backend>",
	Short: "Check the configured credential of a backend",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		logger, err := newLogger()
		if err != nil {
			return err
		}
		defer logger.Sync()

		p, ok := newRegistry(logger).Get(args[0])
		if !ok {
			return fmt.Errorf("unknown backend: %s", args[0])
		}

		ctx, cancel := signalContext(cmd.Context())
		defer cancel()
		ctx, timeout := withTimeout(ctx, providerTimeoutFlag)
		defer timeout()

		credential, _ := config.Credentials{}.Credential(p.ID())
		result := llm.Validate(ctx, p, credential)

		if providerJSONFlag {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(result)
		}
		if result.Valid {
			fmt.Printf("%s: valid (%d models)\n", p.Name(), result.ModelCount)
			return nil
		}
		fmt.Println(errorStyle().Render(p.Name() + ": invalid credential or backend unreachable"))
		return nil
	},
}

var providerModelsCmd = &cobra.Command{
	Use:   "models [backend]",
	Short: "List the models offered by one or all backends",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		logger, err := newLogger()
		if err != nil {
			return err
		}
		defer logger.Sync()

		ctx, cancel := signalContext(cmd.Context())
		defer cancel()
		ctx, timeout := withTimeout(ctx, providerTimeoutFlag)
		defer timeout()

		registry := newRegistry(logger)
		creds := config.Credentials{}

		var models []llm.Model
		if len(args) == 1 {
			p, ok := registry.Get(args[0])
			if !ok {
				return fmt.Errorf("unknown backend: %s", args[0])
			}
			credential, _ := creds.Credential(p.ID())
			models = p.FetchModels(ctx, credential)
		} else {
			models = registry.AllModels(ctx, creds)
		}

		if providerJSONFlag {
			if models == nil {
				models = []llm.Model{}
			}
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(models)
		}
		if len(models) == 0 {
			fmt.Println("No models found.")
			return nil
		}
		for _, m := range models {
			fmt.Printf("  %-12s %s\n", m.Backend, m.ID)
		}
		return nil
	},
}

func init() {
	providerCmd.PersistentFlags().BoolVar(&providerJSONFlag, "json", false, "Print JSON")
	providerCmd.PersistentFlags().DurationVar(&providerTimeoutFlag, "timeout", 15*time.Second, "Give up on backends after this long")

	providerCmd.AddCommand(providerListCmd)
	providerCmd.AddCommand(providerValidateCmd)
	providerCmd.AddCommand(providerModelsCmd)
	rootCmd.AddCommand(providerCmd)
}
