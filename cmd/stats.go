package cmd

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/arin/llmchat/internal/stats"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show chat usage and latency statistics",
	Long: `Display a dashboard of your chats: turn counts, success rate, time to
first byte, total response time, outcome and provider breakdowns and the
most-used models.

Data is collected automatically and stored locally in ~/.llmchat/stats.json.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		summary, err := stats.Summarize()
		if err != nil {
			return fmt.Errorf("failed to load stats: %w", err)
		}

		cyan := color.New(color.FgCyan, color.Bold)
		green := color.New(color.FgGreen)
		yellow := color.New(color.FgYellow)
		dim := color.New(color.FgHiBlack)

		cyan.Fprintf(os.Stderr, "\n  llmchat stats\n\n")

		if summary.TotalTurns == 0 {
			dim.Fprintln(os.Stderr, "  No data yet. Chat for a while and come back.")
			fmt.Fprintln(os.Stderr)
			return nil
		}

		green.Fprintf(os.Stderr, "  Turns:       ")
		fmt.Fprintf(os.Stderr, "%d total", summary.TotalTurns)
		dim.Fprintf(os.Stderr, "  (%d today, %d this week)\n", summary.TodayCount, summary.ThisWeekCount)

		green.Fprintf(os.Stderr, "  Success:     ")
		if summary.SuccessRate >= 90 {
			fmt.Fprintf(os.Stderr, "%.0f%%\n", summary.SuccessRate)
		} else {
			yellow.Fprintf(os.Stderr, "%.0f%%\n", summary.SuccessRate)
		}

		green.Fprintf(os.Stderr, "  First byte:  ")
		fmt.Fprintf(os.Stderr, "%dms avg\n", summary.AvgFirstByteMs)
		green.Fprintf(os.Stderr, "  Total time:  ")
		fmt.Fprintf(os.Stderr, "%dms avg\n", summary.AvgTotalMs)

		printBreakdown("Outcomes", summary.StatusBreakdown, summary.TotalTurns)
		printBreakdown("Providers", summary.ProviderBreakdown, summary.TotalTurns)

		if len(summary.TopModels) > 0 {
			fmt.Fprintln(os.Stderr)
			cyan.Fprintln(os.Stderr, "  Top Models")
			for i, mc := range summary.TopModels {
				model := mc.Model
				if len(model) > 50 {
					model = model[:50] + "..."
				}
				dim.Fprintf(os.Stderr, "  %d. ", i+1)
				fmt.Fprintf(os.Stderr, "%s ", model)
				dim.Fprintf(os.Stderr, "(%dx)\n", mc.Count)
			}
		}

		fmt.Fprintln(os.Stderr)
		return nil
	},
}

func printBreakdown(title string, counts map[string]int, total int) {
	if len(counts) == 0 {
		return
	}
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if counts[keys[i]] != counts[keys[j]] {
			return counts[keys[i]] > counts[keys[j]]
		}
		return keys[i] < keys[j]
	})

	dim := color.New(color.FgHiBlack)
	fmt.Fprintln(os.Stderr)
	color.New(color.FgCyan, color.Bold).Fprintf(os.Stderr, "  %s\n", title)
	for _, k := range keys {
		pct := float64(counts[k]) / float64(total) * 100
		bar := strings.Repeat("█", int(pct/5))
		dim.Fprintf(os.Stderr, "  %-12s ", k)
		fmt.Fprintf(os.Stderr, "%s %d (%.0f%%)\n", bar, counts[k], pct)
	}
}
