package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/simonyos/roundtable/internal/config"
	"github.com/simonyos/roundtable/internal/llm"
	"github.com/simonyos/roundtable/internal/orchestrator"
	"github.com/simonyos/roundtable/internal/persona"
)

var (
	personaNameFlag        string
	personaAvatarFlag      string
	personaBackendFlag     string
	personaModelFlag       string
	personaPromptFlag      string
	personaPromptFileFlag  string
	personaPositionFlag    string
	personaTemperatureFlag float64
	personaMaxTokensFlag   int
)

var personaCmd = &cobra.Command{
	Use:     "persona",
	Aliases: []string{"personas"},
	Short:   "Manage personas",
	Long: `Manage the personas that take part in conversations.

Personas can be created from flags or imported from Markdown and YAML files.
Files in ./.roundtable/personas and ~/.config/roundtable/personas are picked
up by 'roundtable persona defaults'.

Examples:
  roundtable persona list
  roundtable persona create --name Skeptic --backend ollama --model llama3 --prompt "You doubt everything."
  roundtable persona import ./personas
  roundtable persona defaults`,
}

var personaListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List saved personas",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(false)
		if err != nil {
			return err
		}
		defer a.Close()

		personas, err := a.store.ListPersonas(cmd.Context())
		if err != nil {
			return err
		}
		if len(personas) == 0 {
			fmt.Println("No personas yet.")
			fmt.Println("\nUse 'roundtable persona defaults' to install the built-in templates.")
			return nil
		}

		fmt.Println(titleStyle().Render("Personas"))
		fmt.Println()
		for _, p := range personas {
			printPersonaLine(p)
		}
		return nil
	},
}

var personaShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a persona",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(false)
		if err != nil {
			return err
		}
		defer a.Close()

		p, err := a.store.GetPersona(cmd.Context(), args[0])
		if err != nil {
			return err
		}

		fmt.Println(titleStyle().Render(strings.TrimSpace(p.Avatar + " " + p.Name)))
		fmt.Printf("  ID:          %s\n", p.ID)
		fmt.Printf("  Model:       %s\n", p.ModelLabel())
		if p.Position != "" {
			fmt.Printf("  Position:    %s\n", p.Position)
		}
		fmt.Printf("  Temperature: %.2f\n", p.Temperature)
		fmt.Printf("  Max tokens:  %d\n", p.MaxTokens)
		fmt.Println()
		fmt.Println(p.SystemPrompt)
		return nil
	},
}

var personaCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a persona",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		prompt := personaPromptFlag
		if personaPromptFileFlag != "" {
			data, err := os.ReadFile(personaPromptFileFlag)
			if err != nil {
				return fmt.Errorf("failed to read prompt file: %w", err)
			}
			prompt = strings.TrimSpace(string(data))
		}

		p := orchestrator.Persona{
			Name:         personaNameFlag,
			Avatar:       personaAvatarFlag,
			SystemPrompt: prompt,
			Position:     personaPositionFlag,
			Temperature:  personaTemperatureFlag,
			MaxTokens:    personaMaxTokensFlag,
			Backend:      personaBackendFlag,
			Model:        personaModelFlag,
		}
		if err := persona.Validate(p); err != nil {
			return err
		}

		a, err := openApp(false)
		if err != nil {
			return err
		}
		defer a.Close()

		if _, ok := a.registry.Get(p.Backend); !ok {
			return fmt.Errorf("%w: %s", orchestrator.ErrUnknownBackend, p.Backend)
		}
		if err := a.store.SavePersona(cmd.Context(), &p); err != nil {
			return err
		}
		fmt.Printf("Created persona %s (%s)\n", p.Name, p.ID)
		return nil
	},
}

var personaImportCmd = &cobra.Command{
	Use:   "import <file|dir>...",
	Short: "Import personas from Markdown or YAML files",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var personas []orchestrator.Persona
		var errs []error
		for _, path := range args {
			loaded, err := loadPersonaPath(path)
			if err != nil {
				errs = append(errs, err)
			}
			personas = append(personas, loaded...)
		}

		a, err := openApp(false)
		if err != nil {
			return err
		}
		defer a.Close()

		n, err := savePersonas(cmd.Context(), a, personas)
		fmt.Printf("Imported %d persona(s).\n", n)
		return errors.Join(append(errs, err)...)
	},
}

var personaDefaultsCmd = &cobra.Command{
	Use:   "defaults",
	Short: "Install the built-in persona templates",
	Long: `Install the built-in persona templates.

Persona files found in ./.roundtable/personas and ~/.config/roundtable/personas
override built-in templates with the same id.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		personas, loadErr := persona.LoadAll(config.GetPersonaPaths()...)

		a, err := openApp(false)
		if err != nil {
			return err
		}
		defer a.Close()

		n, err := savePersonas(cmd.Context(), a, personas)
		fmt.Printf("Installed %d persona(s).\n", n)
		return errors.Join(loadErr, err)
	},
}

var personaDeleteCmd = &cobra.Command{
	Use:     "delete <id>",
	Aliases: []string{"rm"},
	Short:   "Delete a persona",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(false)
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.store.DeletePersona(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Printf("Deleted persona %s.\n", args[0])
		return nil
	},
}

func loadPersonaPath(path string) ([]orchestrator.Persona, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		return persona.LoadDir(path)
	}
	return persona.LoadFile(path)
}

// savePersonas stores personas whose backend is registered and reports how many were saved
func savePersonas(ctx context.Context, a *app, personas []orchestrator.Persona) (int, error) {
	var errs []error
	saved := 0
	for i := range personas {
		p := &personas[i]
		if _, ok := a.registry.Get(p.Backend); !ok {
			errs = append(errs, fmt.Errorf("%s: %w: %s", p.Name, orchestrator.ErrUnknownBackend, p.Backend))
			continue
		}
		if err := a.store.SavePersona(ctx, p); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", p.Name, err))
			continue
		}
		saved++
	}
	return saved, errors.Join(errs...)
}

func printPersonaLine(p orchestrator.Persona) {
	name := strings.TrimSpace(p.Avatar + " " + p.Name)
	fmt.Printf("  %-24s %s\n", name, mutedStyle().Render(p.ID))
	fmt.Printf("  %-24s %s  temp %.2f  max %d\n", "", p.ModelLabel(), p.Temperature, p.MaxTokens)
	if p.Position != "" {
		fmt.Printf("  %-24s position: %s\n", "", p.Position)
	}
	fmt.Println()
}

func init() {
	personaCreateCmd.Flags().StringVar(&personaNameFlag, "name", "", "Display name (required)")
	personaCreateCmd.Flags().StringVar(&personaAvatarFlag, "avatar", "", "Avatar shown next to the name")
	personaCreateCmd.Flags().StringVar(&personaBackendFlag, "backend", "", "Backend id (required)")
	personaCreateCmd.Flags().StringVar(&personaModelFlag, "model", "", "Model id (required)")
	personaCreateCmd.Flags().StringVar(&personaPromptFlag, "prompt", "", "System prompt")
	personaCreateCmd.Flags().StringVar(&personaPromptFileFlag, "prompt-file", "", "Read the system prompt from a file")
	personaCreateCmd.Flags().StringVar(&personaPositionFlag, "position", "", "Stance used by debate mode")
	personaCreateCmd.Flags().Float64Var(&personaTemperatureFlag, "temperature", llm.DefaultTemperature, "Sampling temperature (0-2)")
	personaCreateCmd.Flags().IntVar(&personaMaxTokensFlag, "max-tokens", llm.DefaultMaxTokens, "Maximum tokens per turn")
	_ = personaCreateCmd.MarkFlagRequired("name")
	_ = personaCreateCmd.MarkFlagRequired("backend")
	_ = personaCreateCmd.MarkFlagRequired("model")
	personaCreateCmd.MarkFlagsMutuallyExclusive("prompt", "prompt-file")

	personaCmd.AddCommand(personaListCmd)
	personaCmd.AddCommand(personaShowCmd)
	personaCmd.AddCommand(personaCreateCmd)
	personaCmd.AddCommand(personaImportCmd)
	personaCmd.AddCommand(personaDefaultsCmd)
	personaCmd.AddCommand(personaDeleteCmd)
	rootCmd.AddCommand(personaCmd)
}
