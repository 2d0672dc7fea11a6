package provider

import (
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/sashabaranov/go-openai"
	"github.com/tidwall/sjson"
	"google.golang.org/genai"

	"github.com/arin/llmchat/internal/history"
)

// Sampling holds the generation parameters sent with every request.
type Sampling struct {
	Temperature float64
	MaxTokens   int
	TopP        float64
}

// Payload encodes the request body for model and the given history.
func (p Profile) Payload(model string, msgs []history.Message, s Sampling) ([]byte, error) {
	if p.Family == GeminiStyle {
		return p.geminiPayload(msgs, s)
	}
	return p.openAIPayload(model, msgs, s)
}

type geminiRequest struct {
	Contents         []*genai.Content        `json:"contents"`
	GenerationConfig *genai.GenerationConfig `json:"generationConfig"`
	Tools            []*genai.Tool           `json:"tools,omitempty"`
}

func (p Profile) geminiPayload(msgs []history.Message, s Sampling) ([]byte, error) {
	req := geminiRequest{
		Contents: make([]*genai.Content, 0, len(msgs)),
		GenerationConfig: &genai.GenerationConfig{
			Temperature:     genai.Ptr(float32(s.Temperature)),
			TopP:            genai.Ptr(float32(s.TopP)),
			MaxOutputTokens: int32(s.MaxTokens),
		},
	}

	for _, m := range msgs {
		if m.Role == history.RoleSystem {
			continue
		}
		content := &genai.Content{Role: genai.RoleUser}
		if m.Role == history.RoleAssistant {
			content.Role = genai.RoleModel
		}
		if m.Content != "" {
			content.Parts = append(content.Parts, &genai.Part{Text: m.Content})
		}
		if m.Image != nil {
			raw, err := base64.StdEncoding.DecodeString(m.Image.Data)
			if err != nil {
				return nil, fmt.Errorf("image %s: %w", m.Image.Path, err)
			}
			content.Parts = append(content.Parts, &genai.Part{
				InlineData: &genai.Blob{MIMEType: m.Image.MIME, Data: raw},
			})
		}
		req.Contents = append(req.Contents, content)
	}

	if p.Tools {
		req.Tools = []*genai.Tool{
			{URLContext: &genai.URLContext{}},
			{GoogleSearch: &genai.GoogleSearch{}},
		}
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}
	return body, nil
}

func (p Profile) openAIPayload(model string, msgs []history.Message, s Sampling) ([]byte, error) {
	req := openai.ChatCompletionRequest{
		Model:    model,
		Messages: make([]openai.ChatCompletionMessage, 0, len(msgs)),
		Stream:   true,
	}
	for _, m := range msgs {
		req.Messages = append(req.Messages, p.openAIMessage(m))
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	// go-openai drops zero values; set sampling explicitly so a zero
	// temperature is still sent.
	set := func(path string, v any) {
		if err == nil {
			body, err = sjson.SetBytes(body, path, v)
		}
	}
	set("temperature", s.Temperature)

	switch p.Quirk {
	case QuirkNone:
		set("max_tokens", s.MaxTokens)
		set("top_p", s.TopP)
	case QuirkInferenceServer:
		set("options", map[string]any{"num_predict": s.MaxTokens, "top_p": s.TopP})
		for i, m := range msgs {
			if m.Image != nil {
				set(fmt.Sprintf("messages.%d.images", i), []string{m.Image.Data})
			}
		}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to encode sampling: %w", err)
	}
	return body, nil
}

func (p Profile) openAIMessage(m history.Message) openai.ChatCompletionMessage {
	msg := openai.ChatCompletionMessage{Role: string(m.Role)}
	if m.Image == nil || p.Quirk == QuirkInferenceServer {
		msg.Content = m.Content
		return msg
	}

	if m.Content != "" {
		msg.MultiContent = append(msg.MultiContent, openai.ChatMessagePart{
			Type: openai.ChatMessagePartTypeText,
			Text: m.Content,
		})
	}
	msg.MultiContent = append(msg.MultiContent, openai.ChatMessagePart{
		Type: openai.ChatMessagePartTypeImageURL,
		ImageURL: &openai.ChatMessageImageURL{
			URL: "data:" + m.Image.MIME + ";base64," + m.Image.Data,
		},
	})
	return msg
}
