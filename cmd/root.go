package cmd

import (
	"os"
	"path/filepath"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/arin/llmchat/internal/config"
)

var (
	modelFlag    string
	systemFlag   string
	toolsFlag    bool
	noThinking   bool
	debugLogging bool
)

var rootCmd = &cobra.Command{
	Use:   "llmchat <provider> [model filter...]",
	Short: "Stream chats with LLM providers from the terminal",
	Long: `llmchat opens an interactive chat with a hosted LLM provider and
streams the reply as it arrives.

Providers: gemini, openrouter, groq, together, cerebras, novita, ollama

Examples:
  llmchat groq                 pick a Groq model from a menu
  llmchat gemini flash         only models matching "flash"
  llmchat openrouter -m meta-llama/llama-3.3-70b-instruct
  llmchat gemini --tools       enable URL context and Google Search

Type /help inside a chat for the list of commands.`,
	Args:                       cobra.ArbitraryArgs,
	RunE:                       runChat,
	PersistentPreRunE:          setupLogging,
	SilenceUsage:               true,
	SilenceErrors:              true,
	TraverseChildren:           true,
	SuggestionsMinimumDistance: 1,
}

func init() {
	rootCmd.Flags().StringVarP(&modelFlag, "model", "m", "", "Use this model and skip the selection menu")
	rootCmd.Flags().StringVar(&systemFlag, "system", "", "Override the system prompt for this chat")
	rootCmd.Flags().BoolVar(&toolsFlag, "tools", false, "Enable provider-side tools (Gemini only)")
	rootCmd.Flags().BoolVar(&noThinking, "no-thinking", false, "Hide model reasoning output")
	rootCmd.PersistentFlags().BoolVar(&debugLogging, "debug", false, "Write debug logs to ~/.llmchat/debug.log")

	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(modelsCmd)
	rootCmd.AddCommand(sessionsCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(doctorCmd)
}

// SetVersion sets the version reported by --version.
func SetVersion(v string) {
	rootCmd.Version = v
}

// Execute is the entry point called from main.
func Execute() error {
	return rootCmd.Execute()
}

// setupLogging routes diagnostics away from the streamed answer: with
// --debug they go to a file, otherwise only warnings reach stderr.
func setupLogging(cmd *cobra.Command, args []string) error {
	if !debugLogging {
		log.SetLevel(log.WarnLevel)
		log.SetOutput(os.Stderr)
		return nil
	}

	if err := os.MkdirAll(config.Dir(), 0o700); err != nil {
		return err
	}
	f, err := os.OpenFile(filepath.Join(config.Dir(), "debug.log"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	log.SetOutput(f)
	log.SetLevel(log.DebugLevel)
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true, DisableColors: true})
	log.WithField("command", cmd.Name()).Debug("debug logging enabled")
	return nil
}
