// Package provider describes the LLM HTTP APIs llmchat can talk to.
//
// A Profile is a closed capability bundle: the wire family decides how
// frames are read and payloads are shaped, and a quirk flag covers the
// providers that deviate from their family's defaults.
package provider

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/arin/llmchat/internal/wire"
)

// Family is the wire format a provider speaks.
type Family int

const (
	OpenAICompatible Family = iota
	GeminiStyle
)

func (f Family) String() string {
	if f == GeminiStyle {
		return "gemini"
	}
	return "openai"
}

// Quirk marks a provider that deviates from its family.
type Quirk int

const (
	QuirkNone Quirk = iota
	// QuirkNoSampling omits max-tokens and top-p from the payload.
	QuirkNoSampling
	// QuirkInferenceServer is the Ollama-style server: bare JSON lines,
	// message.content/message.thinking/done frames and sampling under "options".
	QuirkInferenceServer
)

// ErrUnknownProvider is returned by New for names outside Names().
var ErrUnknownProvider = errors.New("unknown provider")

type entry struct {
	family     Family
	quirk      Quirk
	baseURL    string
	chatPath   string
	modelsPath string
	keyEnv     string
}

var order = []string{"gemini", "openrouter", "groq", "together", "cerebras", "novita", "ollama"}

var known = map[string]entry{
	"gemini":     {GeminiStyle, QuirkNone, "https://generativelanguage.googleapis.com/v1beta", "/models/", "/models", "GEMINI_API_KEY"},
	"openrouter": {OpenAICompatible, QuirkNone, "https://openrouter.ai/api/v1", "/chat/completions", "/models", "OPENROUTER_API_KEY"},
	"groq":       {OpenAICompatible, QuirkNone, "https://api.groq.com/openai/v1", "/chat/completions", "/models", "GROQ_API_KEY"},
	"together":   {OpenAICompatible, QuirkNoSampling, "https://api.together.ai/v1", "/chat/completions", "/models", "TOGETHER_API_KEY"},
	"cerebras":   {OpenAICompatible, QuirkNone, "https://api.cerebras.ai/v1", "/chat/completions", "/models", "CEREBRAS_API_KEY"},
	"novita":     {OpenAICompatible, QuirkNone, "https://api.novita.ai/v3/openai", "/chat/completions", "/models", "NOVITA_API_KEY"},
	"ollama":     {OpenAICompatible, QuirkInferenceServer, "https://ollama.com", "/api/chat", "/api/tags", "OLLAMA_API_KEY"},
}

// Names lists the supported providers in display order.
func Names() []string {
	return append([]string(nil), order...)
}

// KeyEnv returns the environment variable holding the provider's API key.
func KeyEnv(name string) string {
	return known[strings.ToLower(name)].keyEnv
}

// Options customizes a profile at session start.
type Options struct {
	APIKey string
	// BaseURL replaces the provider's default API root.
	BaseURL string
	// Tools enables Gemini tool calling (URL context and Google Search).
	Tools bool
}

// Profile is the static description of one provider for a session.
type Profile struct {
	Name      string
	Family    Family
	Quirk     Quirk
	BaseURL   string
	ChatURL   string
	ModelsURL string
	APIKey    string
	Tools     bool
}

// New builds the profile for a provider name.
func New(name string, opts Options) (Profile, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	e, ok := known[name]
	if !ok {
		return Profile{}, fmt.Errorf("%w %q (choose from: %s)", ErrUnknownProvider, name, strings.Join(order, ", "))
	}

	base := e.baseURL
	if opts.BaseURL != "" {
		base = strings.TrimRight(opts.BaseURL, "/")
	}

	return Profile{
		Name:      name,
		Family:    e.family,
		Quirk:     e.quirk,
		BaseURL:   base,
		ChatURL:   base + e.chatPath,
		ModelsURL: base + e.modelsPath,
		APIKey:    opts.APIKey,
		Tools:     opts.Tools && e.family == GeminiStyle,
	}, nil
}

// IsOpenAICompatible reports whether the profile uses the OpenAI-style wire format.
func (p Profile) IsOpenAICompatible() bool {
	return p.Family == OpenAICompatible
}

// IsLocal reports whether the API root points at this machine.
func (p Profile) IsLocal() bool {
	u, err := url.Parse(p.BaseURL)
	if err != nil {
		return false
	}
	switch u.Hostname() {
	case "localhost", "127.0.0.1", "::1":
		return true
	}
	return false
}

// ChatEndpoint is the streaming chat URL for model.
func (p Profile) ChatEndpoint(model string) string {
	if p.Family == GeminiStyle {
		return p.ChatURL + model + ":streamGenerateContent?alt=sse"
	}
	return p.ChatURL
}

// Normalize extracts the delta carried by one stream frame.
func (p Profile) Normalize(frame []byte) wire.Delta {
	switch {
	case !p.IsOpenAICompatible():
		return wire.Gemini(frame, p.Tools)
	case p.Quirk == QuirkInferenceServer:
		return wire.Ollama(frame)
	default:
		return wire.OpenAI(frame)
	}
}

// NewChatRequest builds the streaming POST for model with an encoded payload.
func (p Profile) NewChatRequest(ctx context.Context, model string, payload []byte) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.ChatEndpoint(model), bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if p.Family == GeminiStyle {
		req.Header.Set("Accept", "text/event-stream")
	} else {
		req.Header.Set("Accept", "application/json")
	}
	p.authorize(req)
	return req, nil
}

func (p Profile) authorize(req *http.Request) {
	if p.APIKey != "" {
		if p.Family == GeminiStyle {
			req.Header.Set("x-goog-api-key", p.APIKey)
		} else {
			req.Header.Set("Authorization", "Bearer "+p.APIKey)
		}
	}
	if p.Name == "openrouter" {
		req.Header.Set("HTTP-Referer", "https://github.com/arin/llmchat")
		req.Header.Set("X-Title", "llmchat")
	}
}
