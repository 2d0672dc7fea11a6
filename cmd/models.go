package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/arin/llmchat/internal/chat"
	"github.com/arin/llmchat/internal/config"
	"github.com/arin/llmchat/internal/provider"
)

var modelsCmd = &cobra.Command{
	Use:   "models <provider> [filter...]",
	Short: "List the models a provider offers",
	Long: `List the models available from a provider. Filters match whole words,
case-insensitively, and all of them must match: "3" matches gpt-3 but not 13b.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("configuration error: %w", err)
		}

		name := strings.ToLower(args[0])
		p, err := newProfile(cfg, name, false)
		if err != nil {
			return err
		}
		if err := provider.CheckKey(p); err != nil {
			return err
		}

		models, err := listModels(cmd.Context(), chat.NewHTTPClient(cfg.Timeout()), p)
		if err != nil {
			return err
		}
		matches := provider.FilterModels(models, args[1:])
		if len(matches) == 0 {
			return fmt.Errorf("no %s models match %q", name, strings.Join(args[1:], " "))
		}
		for _, m := range matches {
			fmt.Println(m)
		}
		return nil
	},
}
