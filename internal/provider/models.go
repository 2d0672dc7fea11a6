package provider

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"slices"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
)

const maxModelListBytes = 10 << 20

// FetchModels lists the model identifiers the provider offers.
func FetchModels(ctx context.Context, client *http.Client, p Profile) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.ModelsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	p.authorize(req)

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("network error fetching models: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxModelListBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read model list: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("HTTP %d fetching models: %s", resp.StatusCode, truncate(string(body), 200))
	}
	if !gjson.ValidBytes(body) {
		log.Debugf("model list from %s: %s", p.Name, truncate(string(body), 300))
		return nil, fmt.Errorf("invalid JSON from model endpoint: %s", truncate(string(body), 300))
	}

	root := gjson.ParseBytes(body)
	if e := root.Get("error"); e.Exists() && e.Type != gjson.Null && e.Raw != `""` {
		msg := e.String()
		if m := e.Get("message"); m.Exists() {
			msg = m.String()
		}
		return nil, fmt.Errorf("API error: %s", msg)
	}

	return parseModels(p, root), nil
}

func parseModels(p Profile, root gjson.Result) []string {
	var models []string
	add := func(id string) {
		if id != "" {
			models = append(models, id)
		}
	}

	switch {
	case p.Family == GeminiStyle:
		for _, m := range root.Get("models").Array() {
			name := m.Get("name").String()
			if strings.HasPrefix(name, "models/embedding") {
				continue
			}
			generates := false
			for _, method := range m.Get("supportedGenerationMethods").Array() {
				if strings.Contains(method.String(), "generateContent") {
					generates = true
					break
				}
			}
			if generates {
				add(strings.Replace(name, "models/", "", 1))
			}
		}
		return models

	case p.Quirk == QuirkInferenceServer:
		for _, m := range root.Get("models").Array() {
			add(m.Get("name").String())
		}
		return models
	}

	list := root.Get("data")
	if root.IsArray() {
		list = root
	}
	for _, m := range list.Array() {
		add(m.Get("id").String())
	}
	slices.Sort(models)
	return models
}

// FilterModels keeps the models matching every filter as a whole word,
// case-insensitively. "pro" matches "gemini-2.5-pro" but not "gemini-2.5-prod".
func FilterModels(models []string, filters []string) []string {
	if len(filters) == 0 {
		return models
	}

	patterns := make([]*regexp.Regexp, 0, len(filters))
	for _, f := range filters {
		f = strings.ToLower(strings.TrimSpace(f))
		if f == "" {
			continue
		}
		patterns = append(patterns, regexp.MustCompile(`(?:^|[^a-z0-9])`+regexp.QuoteMeta(f)+`(?:[^a-z0-9]|$)`))
	}

	var out []string
	for _, m := range models {
		lower := strings.ToLower(m)
		matched := true
		for _, re := range patterns {
			if !re.MatchString(lower) {
				matched = false
				break
			}
		}
		if matched {
			out = append(out, m)
		}
	}
	return out
}

// truncate shortens s to n characters without splitting a rune.
func truncate(s string, n int) string {
	count := 0
	for i := range s {
		if count == n {
			return s[:i] + "..."
		}
		count++
	}
	return s
}
