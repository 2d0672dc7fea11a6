package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/fatih/color"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/arin/llmchat/internal/chat"
	"github.com/arin/llmchat/internal/config"
	"github.com/arin/llmchat/internal/provider"
	"github.com/arin/llmchat/internal/stats"
	"github.com/arin/llmchat/internal/store"
	"github.com/arin/llmchat/internal/ui"
)

const sessionsFile = "sessions.db"

func runChat(cmd *cobra.Command, args []string) error {
	if len(args) == 0 {
		return cmd.Help()
	}
	name, filters := strings.ToLower(args[0]), args[1:]

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}
	if systemFlag != "" {
		cfg.SystemPrompt = systemFlag
	}
	if noThinking {
		cfg.ShowThinking = false
	}

	p, err := newProfile(cfg, name, toolsFlag || cfg.Tools)
	if err != nil {
		return err
	}
	if err := provider.CheckKey(p); err != nil {
		return err
	}

	client := chat.NewHTTPClient(cfg.Timeout())
	in := bufio.NewReader(os.Stdin)

	model, err := chooseModel(cmd.Context(), in, client, p, cfg, filters)
	if err != nil {
		return err
	}

	st, err := store.Open(filepath.Join(config.Dir(), sessionsFile))
	if err != nil {
		return fmt.Errorf("failed to open session store: %w", err)
	}
	defer st.Close()

	sess := chat.NewSession(p, model, chat.Options{
		SystemPrompt: cfg.SystemPrompt,
		Sampling: provider.Sampling{
			Temperature: cfg.Temperature,
			MaxTokens:   cfg.MaxTokens,
			TopP:        cfg.TopP,
		},
		MaxHistory:       cfg.MaxHistory,
		MaxMessageLength: cfg.MaxMessageLength,
		ShowThinking:     cfg.ShowThinking,
		Client:           client,
	})

	return newREPL(sess, st, in).run(cmd.Context())
}

// newREPL wires a session to the terminal. Placeholders and spinners are
// drawn on stderr, so that is the stream checked for a terminal.
func newREPL(sess *chat.Session, st *store.Store, in *bufio.Reader) *repl {
	return &repl{
		sess:        sess,
		store:       st,
		in:          in,
		interactive: ui.Interactive(os.Stderr),
	}
}

func newProfile(cfg *config.Config, name string, tools bool) (provider.Profile, error) {
	return provider.New(name, provider.Options{
		APIKey:  cfg.APIKey(name),
		BaseURL: cfg.Endpoint(name),
		Tools:   tools,
	})
}

// chooseModel resolves the model for a chat: the --model flag, then the
// configured default when no filter is given, then the provider's model
// list narrowed by filters.
func chooseModel(ctx context.Context, in *bufio.Reader, client *http.Client, p provider.Profile, cfg *config.Config, filters []string) (string, error) {
	if modelFlag != "" {
		return modelFlag, nil
	}
	if len(filters) == 0 && cfg.Model(p.Name) != "" {
		return cfg.Model(p.Name), nil
	}

	models, err := listModels(ctx, client, p)
	if err != nil {
		return "", err
	}
	matches := provider.FilterModels(models, filters)

	dim := color.New(color.FgHiBlack)
	switch len(matches) {
	case 0:
		if len(filters) > 0 {
			return "", fmt.Errorf("no %s models match %q", p.Name, strings.Join(filters, " "))
		}
		return "", fmt.Errorf("%s returned no models", p.Name)
	case 1:
		dim.Fprintf(os.Stderr, "Using model: %s\n", matches[0])
		return matches[0], nil
	}
	return selectModel(in, matches)
}

func listModels(ctx context.Context, client *http.Client, p provider.Profile) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, config.DefaultModelsTimeout*time.Second)
	defer cancel()

	var sp *ui.Spinner
	if ui.Interactive(os.Stderr) {
		sp = ui.NewSpinner(fmt.Sprintf("Fetching %s models…", p.Name))
		sp.Start()
	}
	models, err := provider.FetchModels(ctx, client, p)
	if err != nil {
		if sp != nil {
			sp.Fail(fmt.Sprintf("Could not reach %s", p.Name))
		}
		return nil, fmt.Errorf("failed to list %s models: %w", p.Name, err)
	}
	if sp != nil {
		sp.Success(fmt.Sprintf("Found %d %s models", len(models), p.Name))
	}
	return models, nil
}

// selectModel shows a numbered menu and reads the choice from in.
func selectModel(in *bufio.Reader, models []string) (string, error) {
	cyan := color.New(color.FgCyan, color.Bold)
	dim := color.New(color.FgHiBlack)

	cyan.Fprintln(os.Stderr, "Available models:")
	width := len(strconv.Itoa(len(models)))
	for i, m := range models {
		dim.Fprintf(os.Stderr, "  %*d. ", width, i+1)
		fmt.Fprintln(os.Stderr, m)
	}

	for {
		fmt.Fprintf(os.Stderr, "Select model [1-%d]: ", len(models))
		line, err := in.ReadString('\n')
		choice := strings.TrimSpace(line)
		if choice != "" {
			if n, convErr := strconv.Atoi(choice); convErr == nil && n >= 1 && n <= len(models) {
				return models[n-1], nil
			}
			color.New(color.FgYellow).Fprintf(os.Stderr, "Enter a number between 1 and %d.\n", len(models))
		}
		if err != nil {
			return "", errors.New("no model selected")
		}
	}
}

// repl is the interactive loop of a chat.
type repl struct {
	sess        *chat.Session
	store       *store.Store
	in          *bufio.Reader
	interactive bool
}

func (r *repl) run(ctx context.Context) error {
	cyan := color.New(color.FgCyan, color.Bold)
	dim := color.New(color.FgHiBlack)
	green := color.New(color.FgGreen, color.Bold)

	fmt.Fprintln(os.Stderr)
	cyan.Fprintf(os.Stderr, "llmchat · %s · %s\n", r.sess.Profile.Name, r.sess.Model)
	dim.Fprintf(os.Stderr, "Type /help for commands, 'exit' to quit.\n\n")

	for {
		green.Fprint(os.Stderr, "You: ")
		line, err := r.in.ReadString('\n')
		if err != nil && line == "" {
			fmt.Fprintln(os.Stderr)
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}

		input := strings.TrimSpace(line)
		switch {
		case input == "quit" || input == "exit":
			dim.Fprintln(os.Stderr, "Goodbye.")
			return nil
		case strings.HasPrefix(input, "/"):
			r.command(ctx, input)
		case input == "" && r.sess.Image == nil:
			continue
		default:
			r.turn(ctx, input)
		}
		fmt.Fprintln(os.Stderr)
	}
}

// turn sends one message. Ctrl-C during the turn interrupts only the turn.
func (r *repl) turn(ctx context.Context, input string) {
	turnCtx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	res, err := r.sess.Send(turnCtx, input, ui.NewStream(os.Stdout, os.Stderr, r.interactive))
	if err != nil {
		color.New(color.FgRed).Fprintf(os.Stderr, "%v\n", err)
		return
	}

	rec := stats.Record{
		TurnID:           res.TurnID,
		Provider:         r.sess.Profile.Name,
		Model:            r.sess.Model,
		Status:           res.Status.String(),
		FirstByteLatency: res.FirstByte,
		TotalLatency:     res.Elapsed,
		Chars:            utf8.RuneCountInString(res.Text),
		Committed:        res.Committed,
	}
	if err := stats.Save(rec); err != nil {
		log.WithError(err).Warn("failed to save turn stats")
	}
}
