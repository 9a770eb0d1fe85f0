package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/simonyos/roundtable/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or change settings",
	Long: `Show or change roundtable settings: API keys, local backend URLs, the
database path, logging and the NATS relay.

Values set here win over environment variables.

Examples:
  roundtable config                                  # Show every setting and where it comes from
  roundtable config set openrouter <key>             # Store an OpenRouter API key
  roundtable config set ollama_url http://gpu:11434  # Point at a remote Ollama
  roundtable config unset openai                     # Fall back to OPENAI_API_KEY`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		printSettings()
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Store a setting",
	Long: `Store a setting in the config file.

Keys and aliases:
  openrouter_api_key (openrouter)   openai_api_key (openai)
  anthropic_api_key (anthropic)     xai_api_key (xai, grok)
  openclaw_token (openclaw)         ollama_url, lmstudio_url, openclaw_url
  database_path (db)                log_level, log_format
  nats_url (nats)`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.Set(args[0], args[1]); err != nil {
			return err
		}
		e, _ := config.Describe(args[0])
		fmt.Printf("%s = %s\n", e.Name, e.Value)
		return nil
	},
}

var configGetCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Print the effective value of a setting",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		e, ok := config.Describe(args[0])
		if !ok {
			return fmt.Errorf("unknown config key: %s", args[0])
		}
		fmt.Println(describeEntry(e))
		return nil
	},
}

var configUnsetCmd = &cobra.Command{
	Use:     "unset <key>",
	Aliases: []string{"delete", "remove"},
	Short:   "Remove a setting from the config file",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.Delete(args[0]); err != nil {
			return err
		}
		e, _ := config.Describe(args[0])
		fmt.Println(describeEntry(e))
		return nil
	},
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print the config file location",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Println(config.ConfigPath())
		return nil
	},
}

func describeEntry(e config.Entry) string {
	switch {
	case e.Value == "":
		return fmt.Sprintf("%s is not set", e.Name)
	case e.FromEnv:
		return fmt.Sprintf("%s = %s %s", e.Name, e.Value, mutedStyle().Render("(from "+e.Env+")"))
	default:
		return fmt.Sprintf("%s = %s", e.Name, e.Value)
	}
}

func printSettings() {
	fmt.Println(titleStyle().Render("Settings"))
	fmt.Printf("  file      %s\n", config.ConfigPath())
	fmt.Printf("  database  %s\n\n", databasePath())

	for _, e := range config.Entries() {
		value := e.Value
		switch {
		case value == "":
			value = mutedStyle().Render("-")
		case e.FromEnv:
			value += mutedStyle().Render(" (env)")
		}
		fmt.Printf("  %-20s %-26s %s\n", e.Name, mutedStyle().Render(e.Env), value)
	}
}

func init() {
	configCmd.AddCommand(configSetCmd, configGetCmd, configUnsetCmd, configPathCmd)
	rootCmd.AddCommand(configCmd)
}
