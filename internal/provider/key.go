package provider

import (
	"errors"
	"fmt"
	"strings"
)

// ErrPlaceholderKey means the configured API key is empty or obviously not real.
var ErrPlaceholderKey = errors.New("unusable API key")

// CheckKey rejects empty and placeholder keys before any request is made.
// A local inference server needs no key.
func CheckKey(p Profile) error {
	if p.Quirk == QuirkInferenceServer && p.IsLocal() {
		return nil
	}
	if reason := keyProblem(p.Name, p.APIKey); reason != "" {
		return fmt.Errorf("%w: key for %s %s (set %s or run 'llmchat config set-key %s')",
			ErrPlaceholderKey, strings.ToUpper(p.Name), reason, KeyEnv(p.Name), p.Name)
	}
	return nil
}

func keyProblem(name, key string) string {
	switch {
	case key == "":
		return "is empty"
	case strings.HasPrefix(key, "YOUR_"), strings.HasSuffix(key, "-HERE"), strings.Contains(key, "..."):
		return "appears to be a placeholder"
	case name == "gemini" && key == "-":
		return "is the default placeholder '-'"
	case name == "openrouter" && key == "sk-or-v1-":
		return "is an incomplete OpenRouter key"
	case name == "groq" && strings.HasPrefix(key, "gsk_") && len(key) < 10:
		return "looks like an incomplete Groq key"
	case name == "cerebras" && key == "csk-":
		return "is the bare Cerebras prefix"
	case (name == "novita" || name == "ollama") && len(key) < 10:
		return "is too short to be valid"
	}
	return ""
}
