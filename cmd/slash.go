package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"

	"github.com/arin/llmchat/internal/attach"
	"github.com/arin/llmchat/internal/history"
	"github.com/arin/llmchat/internal/store"
)

const slashHelp = `Commands:
  /history            show the conversation so far
  /save <name>        save the conversation under name
  /load <name>        replace the conversation with a saved one
  /sessions           list saved conversations
  /clear              delete all saved conversations
  /export <file>      write the conversation to a JSON file
  /import <file>      replace the conversation with a JSON file
  /upload <path>      attach an image to your next message
  /image              show the attached image
  /clearimage         drop the attached image
  /togglethinking     show or hide model reasoning
  /help               show this help
  exit, quit          leave the chat`

// command runs a slash command. Failures are printed, never fatal.
func (r *repl) command(ctx context.Context, input string) {
	name, arg, _ := strings.Cut(input, " ")
	arg = strings.TrimSpace(arg)

	var err error
	switch strings.ToLower(name) {
	case "/help":
		fmt.Fprintln(os.Stderr, slashHelp)
	case "/history":
		r.showHistory()
	case "/save":
		err = r.save(ctx, arg)
	case "/load":
		err = r.load(ctx, arg)
	case "/sessions":
		err = printSessions(ctx, r.store)
	case "/clear":
		err = r.clearSessions(ctx)
	case "/export":
		err = r.export(arg)
	case "/import":
		err = r.importFile(arg)
	case "/upload":
		err = r.upload(arg)
	case "/image":
		r.showImage()
	case "/clearimage":
		r.sess.Image = nil
		color.New(color.FgHiBlack).Fprintln(os.Stderr, "Image attachment cleared.")
	case "/togglethinking":
		r.sess.ShowThinking = !r.sess.ShowThinking
		state := "hidden"
		if r.sess.ShowThinking {
			state = "shown"
		}
		color.New(color.FgHiBlack).Fprintf(os.Stderr, "Thinking output is now %s.\n", state)
	default:
		err = fmt.Errorf("unknown command %q, type /help for the list", name)
	}

	if err != nil {
		color.New(color.FgRed).Fprintf(os.Stderr, "%v\n", err)
	}
}

func (r *repl) showHistory() {
	msgs := r.sess.History.Messages()
	dim := color.New(color.FgHiBlack)
	if len(msgs) == 0 {
		dim.Fprintln(os.Stderr, "History is empty.")
		return
	}

	roles := map[history.Role]*color.Color{
		history.RoleSystem:    color.New(color.FgMagenta),
		history.RoleUser:      color.New(color.FgGreen, color.Bold),
		history.RoleAssistant: color.New(color.FgCyan, color.Bold),
	}
	for i, m := range msgs {
		dim.Fprintf(os.Stderr, "[%d] ", i+1)
		roles[m.Role].Fprintf(os.Stderr, "%s: ", m.Role)
		fmt.Fprintln(os.Stderr, m.Content)
		if m.Image != nil {
			dim.Fprintf(os.Stderr, "    [image: %s, %s]\n", imageLabel(m.Image), m.Image.MIME)
		}
	}
}

func (r *repl) save(ctx context.Context, name string) error {
	if name == "" {
		return errors.New("usage: /save <name>")
	}
	if err := store.ValidateName(name); err != nil {
		return err
	}
	msgs := r.sess.History.Messages()
	if err := r.store.Save(ctx, name, r.sess.Profile.Name, r.sess.Model, msgs); err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	color.New(color.FgGreen).Fprintf(os.Stderr, "Saved %d messages as %q.\n", len(msgs), name)
	return nil
}

func (r *repl) load(ctx context.Context, name string) error {
	if name == "" {
		return errors.New("usage: /load <name>")
	}
	saved, err := r.store.Load(ctx, name)
	if err != nil {
		return err
	}
	if err := r.sess.Load(saved.History); err != nil {
		return fmt.Errorf("cannot load %q: %w", name, err)
	}

	color.New(color.FgGreen).Fprintf(os.Stderr, "Loaded %q (%d messages).\n", name, r.sess.History.Len())
	if saved.Provider != r.sess.Profile.Name || saved.Model != r.sess.Model {
		color.New(color.FgHiBlack).Fprintf(os.Stderr, "Saved with %s/%s, continuing with %s/%s.\n",
			saved.Provider, saved.Model, r.sess.Profile.Name, r.sess.Model)
	}
	return nil
}

func (r *repl) clearSessions(ctx context.Context) error {
	list, err := r.store.List(ctx)
	if err != nil {
		return err
	}
	if len(list) == 0 {
		color.New(color.FgHiBlack).Fprintln(os.Stderr, "No saved sessions.")
		return nil
	}

	color.New(color.FgYellow).Fprintf(os.Stderr, "Delete all %d saved sessions? [y/N]: ", len(list))
	answer, _ := r.in.ReadString('\n')
	if a := strings.ToLower(strings.TrimSpace(answer)); a != "y" && a != "yes" {
		color.New(color.FgHiBlack).Fprintln(os.Stderr, "Cancelled.")
		return nil
	}

	n, err := r.store.DeleteAll(ctx)
	if err != nil {
		return err
	}
	color.New(color.FgGreen).Fprintf(os.Stderr, "Deleted %d sessions.\n", n)
	return nil
}

func (r *repl) export(path string) error {
	if path == "" {
		return errors.New("usage: /export <file>")
	}
	msgs := r.sess.History.Messages()
	if err := history.Export(path, msgs); err != nil {
		return fmt.Errorf("failed to export: %w", err)
	}
	color.New(color.FgGreen).Fprintf(os.Stderr, "Exported %d messages to %s.\n", len(msgs), path)
	return nil
}

func (r *repl) importFile(path string) error {
	if path == "" {
		return errors.New("usage: /import <file>")
	}
	msgs, err := history.Import(path)
	if err != nil {
		return fmt.Errorf("failed to import %s: %w", path, err)
	}
	if err := r.sess.Load(msgs); err != nil {
		return fmt.Errorf("failed to import %s: %w", path, err)
	}
	color.New(color.FgGreen).Fprintf(os.Stderr, "Imported %d messages from %s.\n", r.sess.History.Len(), path)
	return nil
}

func (r *repl) upload(path string) error {
	if path == "" {
		return errors.New("usage: /upload <path>")
	}
	img, size, err := attach.Load(path)
	if err != nil {
		return err
	}
	r.sess.Image = img
	color.New(color.FgGreen).Fprintf(os.Stderr, "Attached %s (%s, %.1f KB). It will be sent with your next message.\n",
		imageLabel(img), img.MIME, float64(size)/1024)
	return nil
}

func (r *repl) showImage() {
	dim := color.New(color.FgHiBlack)
	if r.sess.Image == nil {
		dim.Fprintln(os.Stderr, "No image attached.")
		return
	}
	dim.Fprintf(os.Stderr, "Attached: %s (%s)\n", imageLabel(r.sess.Image), r.sess.Image.MIME)
}

func imageLabel(img *history.Image) string {
	if img.Path != "" {
		return img.Path
	}
	return "inline image"
}
