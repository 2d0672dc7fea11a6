package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/arin/llmchat/internal/chat"
	"github.com/arin/llmchat/internal/config"
	"github.com/arin/llmchat/internal/provider"
)

const reachTimeout = 3 * time.Second

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check configuration, API keys and provider reachability",
	Long: `Run a health check on your llmchat setup. Verifies that the configuration
loads and validates, which providers have usable API keys, and that every
keyed provider answers its models endpoint.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		green := color.New(color.FgGreen)
		red := color.New(color.FgRed)
		yellow := color.New(color.FgYellow)
		dim := color.New(color.FgHiBlack)
		cyan := color.New(color.FgCyan, color.Bold)

		cyan.Fprintf(os.Stderr, "\n  llmchat doctor\n\n")

		pass, fail, warn := 0, 0, 0

		check := func(name string, fn func() (string, error)) {
			detail, err := fn()
			if err != nil {
				if strings.HasPrefix(err.Error(), "warn:") {
					yellow.Fprintf(os.Stderr, "  ⚠ %s\n", name)
					dim.Fprintf(os.Stderr, "    %s\n", strings.TrimPrefix(err.Error(), "warn:"))
					warn++
				} else {
					red.Fprintf(os.Stderr, "  ✗ %s\n", name)
					dim.Fprintf(os.Stderr, "    %s\n", err.Error())
					fail++
				}
			} else {
				green.Fprintf(os.Stderr, "  ✓ %s", name)
				if detail != "" {
					dim.Fprintf(os.Stderr, " (%s)", detail)
				}
				fmt.Fprintln(os.Stderr)
				pass++
			}
		}

		check("Config directory", func() (string, error) {
			dir := config.Dir()
			info, err := os.Stat(dir)
			if err != nil {
				return "", fmt.Errorf("warn:%s not found, it will be created on first use", dir)
			}
			if !info.IsDir() {
				return "", fmt.Errorf("%s exists but is not a directory", dir)
			}
			return dir, nil
		})

		cfg, cfgErr := config.Load()
		check("Configuration valid", func() (string, error) {
			if cfgErr != nil {
				return "", cfgErr
			}
			return fmt.Sprintf("temperature %g, max tokens %d, history %d", cfg.Temperature, cfg.MaxTokens, cfg.MaxHistory), nil
		})
		if cfgErr != nil {
			cfg = config.Default()
		}

		client := chat.NewHTTPClient(reachTimeout)
		keyed := 0
		for _, name := range provider.Names() {
			p, err := newProfile(cfg, name, false)
			if err != nil {
				continue
			}
			keyErr := provider.CheckKey(p)
			check(fmt.Sprintf("%s API key", name), func() (string, error) {
				if keyErr != nil {
					return "", fmt.Errorf("warn:%v", keyErr)
				}
				if p.IsLocal() {
					return "local server, no key needed", nil
				}
				return config.MaskKey(p.APIKey), nil
			})
			if keyErr != nil {
				continue
			}
			keyed++

			check(fmt.Sprintf("%s reachable", name), func() (string, error) {
				return reach(cmd.Context(), client, p)
			})
		}

		check("Usable providers", func() (string, error) {
			if keyed == 0 {
				return "", errors.New("no provider has a usable API key, run: llmchat config set-key <provider> <key>")
			}
			return fmt.Sprintf("%d of %d", keyed, len(provider.Names())), nil
		})

		check("System info", func() (string, error) {
			return fmt.Sprintf("%s/%s", runtime.GOOS, runtime.GOARCH), nil
		})

		fmt.Fprintln(os.Stderr)
		total := pass + fail + warn
		if fail == 0 && warn == 0 {
			green.Fprintf(os.Stderr, "  All %d checks passed. You're good to go.\n\n", total)
		} else if fail == 0 {
			yellow.Fprintf(os.Stderr, "  %d passed, %d warnings. Everything works, but some providers are not set up.\n\n", pass, warn)
		} else {
			red.Fprintf(os.Stderr, "  %d passed, %d failed, %d warnings. Fix the failures above.\n\n", pass, fail, warn)
		}

		return nil
	},
}

// reach lists the provider's models within reachTimeout.
func reach(ctx context.Context, client *http.Client, p provider.Profile) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, reachTimeout)
	defer cancel()

	start := time.Now()
	models, err := provider.FetchModels(ctx, client, p)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%d models in %dms", len(models), time.Since(start).Milliseconds()), nil
}
