package history

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/kaptinlin/jsonrepair"
)

// fileMu guards concurrent access to export files.
var fileMu sync.Mutex

// Export writes msgs to path as an indented JSON array.
func Export(path string, msgs []Message) error {
	fileMu.Lock()
	defer fileMu.Unlock()

	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return err
		}
	}

	data, err := json.MarshalIndent(msgs, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

// Import reads a JSON session export. Hand-edited files are repaired before
// decoding, and the provider-shaped formats written by older chat scripts
// (Gemini "parts", OpenAI multipart "content", Ollama "images") are accepted.
func Import(path string) ([]Message, error) {
	fileMu.Lock()
	defer fileMu.Unlock()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var raw []rawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		repaired, repairErr := jsonrepair.JSONRepair(string(data))
		if repairErr != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidSession, err)
		}
		if err := json.Unmarshal([]byte(repaired), &raw); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidSession, err)
		}
	}

	msgs := make([]Message, 0, len(raw))
	for i, r := range raw {
		m, err := r.normalize()
		if err != nil {
			return nil, fmt.Errorf("%w: message %d: %v", ErrInvalidSession, i, err)
		}
		msgs = append(msgs, m)
	}

	if err := Validate(msgs); err != nil {
		return nil, err
	}
	return msgs, nil
}

// rawMessage accepts every message shape Import understands.
type rawMessage struct {
	Role    string          `json:"role"`
	Content json.RawMessage `json:"content"`
	Image   *Image          `json:"image,omitempty"`
	Images  []string        `json:"images,omitempty"`
	Parts   []struct {
		Text       string `json:"text"`
		InlineData *struct {
			MimeType string `json:"mimeType"`
			Data     string `json:"data"`
		} `json:"inlineData"`
	} `json:"parts,omitempty"`
}

type rawContentPart struct {
	Type     string `json:"type"`
	Text     string `json:"text"`
	ImageURL *struct {
		URL string `json:"url"`
	} `json:"image_url"`
}

func (r rawMessage) normalize() (Message, error) {
	m := Message{Role: Role(r.Role), Image: r.Image}
	if r.Role == "model" {
		m.Role = RoleAssistant
	}

	switch {
	case len(r.Content) > 0 && r.Content[0] == '"':
		if err := json.Unmarshal(r.Content, &m.Content); err != nil {
			return m, err
		}
	case len(r.Content) > 0 && r.Content[0] == '[':
		var parts []rawContentPart
		if err := json.Unmarshal(r.Content, &parts); err != nil {
			return m, err
		}
		for _, p := range parts {
			switch {
			case p.Type == "text" && m.Content == "":
				m.Content = p.Text
			case p.Type == "image_url" && p.ImageURL != nil && m.Image == nil:
				m.Image = parseDataURI(p.ImageURL.URL)
			}
		}
	}

	for _, p := range r.Parts {
		if p.Text != "" && m.Content == "" {
			m.Content = p.Text
		}
		if p.InlineData != nil && m.Image == nil {
			m.Image = &Image{MIME: p.InlineData.MimeType, Data: p.InlineData.Data}
		}
	}

	if len(r.Images) > 0 && m.Image == nil {
		m.Image = &Image{MIME: "image/png", Data: r.Images[0]}
	}
	return m, nil
}

// parseDataURI decodes "data:<mime>;base64,<data>".
func parseDataURI(uri string) *Image {
	rest, ok := strings.CutPrefix(uri, "data:")
	if !ok {
		return nil
	}
	mime, data, ok := strings.Cut(rest, ";base64,")
	if !ok {
		return nil
	}
	return &Image{MIME: mime, Data: data}
}
