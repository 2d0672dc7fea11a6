package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/arin/llmchat/internal/config"
	"github.com/arin/llmchat/internal/provider"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage llmchat configuration",
}

var setKeyCmd = &cobra.Command{
	Use:   "set-key <provider> <api-key>",
	Short: "Save the API key for a provider",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := strings.ToLower(args[0])
		if err := config.SetAPIKey(name, args[1]); err != nil {
			return fmt.Errorf("failed to save API key: %w", err)
		}
		fmt.Printf("API key for %s saved.\n", name)
		return nil
	},
}

var setModelCmd = &cobra.Command{
	Use:   "set-model <provider> <model-name>",
	Short: "Set the default model for a provider (skips the selection menu)",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := strings.ToLower(args[0])
		if err := config.SetModel(name, args[1]); err != nil {
			return fmt.Errorf("failed to save model: %w", err)
		}
		fmt.Printf("Default %s model set to %s.\n", name, args[1])
		return nil
	},
}

var setPromptCmd = &cobra.Command{
	Use:   "set-prompt <text>",
	Short: "Set the system prompt",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.SetSystemPrompt(strings.Join(args, " ")); err != nil {
			return fmt.Errorf("failed to save system prompt: %w", err)
		}
		fmt.Println("System prompt saved.")
		return nil
	},
}

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		for _, name := range provider.Names() {
			fmt.Printf("%-11s key: %-16s", name, config.MaskKey(cfg.APIKey(name)))
			if m := cfg.Model(name); m != "" {
				fmt.Printf("  model: %s", m)
			}
			if e := cfg.Endpoint(name); e != "" {
				fmt.Printf("  endpoint: %s", e)
			}
			fmt.Println()
		}
		fmt.Println()
		fmt.Printf("System prompt: %s\n", cfg.SystemPrompt)
		fmt.Printf("Temperature:   %g\n", cfg.Temperature)
		fmt.Printf("Max tokens:    %d\n", cfg.MaxTokens)
		fmt.Printf("Top-p:         %g\n", cfg.TopP)
		fmt.Printf("Max history:   %d\n", cfg.MaxHistory)
		fmt.Printf("Max message:   %d chars\n", cfg.MaxMessageLength)
		fmt.Printf("Thinking:      %t\n", cfg.ShowThinking)
		fmt.Printf("Tools:         %t\n", cfg.Tools)
		fmt.Printf("Timeout:       %s\n", cfg.Timeout())
		fmt.Printf("Config Dir:    %s\n", config.Dir())
		return nil
	},
}

func init() {
	configCmd.AddCommand(setKeyCmd)
	configCmd.AddCommand(setModelCmd)
	configCmd.AddCommand(setPromptCmd)
	configCmd.AddCommand(showCmd)
}
