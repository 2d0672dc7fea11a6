package chat

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/arin/llmchat/internal/history"
	"github.com/arin/llmchat/internal/provider"
)

type recorder struct {
	events []Event
}

func (r *recorder) Render(e Event) { r.events = append(r.events, e) }

func (r *recorder) text(kind EventKind) string {
	var b strings.Builder
	for _, e := range r.events {
		if e.Kind == kind {
			b.WriteString(e.Text)
		}
	}
	return b.String()
}

func (r *recorder) count(kind EventKind) int {
	n := 0
	for _, e := range r.events {
		if e.Kind == kind {
			n++
		}
	}
	return n
}

// streamServer replies to every request with the given body lines and
// records the request payloads.
type streamServer struct {
	*httptest.Server
	mu       sync.Mutex
	payloads []string
}

func newStreamServer(t *testing.T, status int, lines ...string) *streamServer {
	t.Helper()
	s := &streamServer{}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		s.mu.Lock()
		s.payloads = append(s.payloads, string(body))
		s.mu.Unlock()

		w.WriteHeader(status)
		for _, line := range lines {
			fmt.Fprint(w, line+"\n")
			w.(http.Flusher).Flush()
		}
	}))
	t.Cleanup(s.Close)
	return s
}

func (s *streamServer) payload(i int) gjson.Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	return gjson.Parse(s.payloads[i])
}

func newTestSession(t *testing.T, name, baseURL string, client *http.Client) *Session {
	t.Helper()
	p, err := provider.New(name, provider.Options{BaseURL: baseURL, APIKey: "test-key-123456"})
	require.NoError(t, err)
	return NewSession(p, "test-model", Options{
		SystemPrompt: "sys",
		Sampling:     provider.Sampling{Temperature: 0.7, MaxTokens: 3000, TopP: 0.9},
		ShowThinking: true,
		Client:       client,
	})
}

func TestSend_OpenAIHelloWorld(t *testing.T) {
	srv := newStreamServer(t, http.StatusOK,
		`data: {"choices":[{"delta":{"content":"Hello"}}]}`,
		``,
		`data: {"choices":[{"delta":{"content":" world"},"finish_reason":"stop"}]}`,
		``,
		`data: [DONE]`,
	)
	s := newTestSession(t, "groq", srv.URL, srv.Client())
	rec := &recorder{}

	res, err := s.Send(context.Background(), "hi", rec)
	require.NoError(t, err)

	assert.Equal(t, StatusSuccess, res.Status)
	assert.Equal(t, "Hello world", res.Text)
	assert.Equal(t, "stop", res.Finish)
	assert.True(t, res.Committed)
	assert.NotEmpty(t, res.TurnID)

	assert.Equal(t, "Hello world", rec.text(EventVisible))
	assert.Equal(t, 1, rec.count(EventFirstByte))
	assert.Equal(t, EventWaiting, rec.events[0].Kind)

	msgs := s.History.Messages()
	require.Len(t, msgs, 3)
	assert.Equal(t, history.RoleSystem, msgs[0].Role)
	assert.Equal(t, history.Message{Role: history.RoleAssistant, Content: "Hello world"}, msgs[2])

	sent := srv.payload(0)
	assert.Equal(t, "test-model", sent.Get("model").String())
	assert.Equal(t, "hi", sent.Get("messages.1.content").String())
}

func TestSend_GeminiPromptBlock(t *testing.T) {
	srv := newStreamServer(t, http.StatusOK,
		`data: {"promptFeedback":{"blockReason":"SAFETY"}}`,
	)
	s := newTestSession(t, "gemini", srv.URL, srv.Client())
	rec := &recorder{}

	res, err := s.Send(context.Background(), "something bad", rec)
	require.NoError(t, err)

	assert.Equal(t, StatusContentBlocked, res.Status)
	assert.Contains(t, res.Message, "SAFETY")
	assert.False(t, res.Committed)
	assert.True(t, res.RolledBack)
	assert.Equal(t, 0, s.History.Len())
	assert.Equal(t, 1, rec.count(EventError))
}

func TestSend_GeminiBlockKeepsPartialTextOutOfHistory(t *testing.T) {
	srv := newStreamServer(t, http.StatusOK,
		`data: {"candidates":[{"content":{"parts":[{"text":"Part"}]}}]}`,
		`data: {"candidates":[{"content":{"parts":[{"text":"ial"}]}}],"promptFeedback":{"blockReason":"OTHER"}}`,
	)
	s := newTestSession(t, "gemini", srv.URL, srv.Client())
	rec := &recorder{}

	res, err := s.Send(context.Background(), "q", rec)
	require.NoError(t, err)

	assert.Equal(t, StatusContentBlocked, res.Status)
	assert.Equal(t, "Partial", rec.text(EventVisible))
	assert.Equal(t, 0, s.History.Len())
}

func TestSend_ThinkTagSplitAcrossDeltas(t *testing.T) {
	srv := newStreamServer(t, http.StatusOK,
		`data: {"choices":[{"delta":{"content":"<thi"}}]}`,
		`data: {"choices":[{"delta":{"content":"nk>reasoning</think>answer"}}]}`,
		`data: [DONE]`,
	)
	s := newTestSession(t, "cerebras", srv.URL, srv.Client())
	rec := &recorder{}

	res, err := s.Send(context.Background(), "q", rec)
	require.NoError(t, err)

	assert.Equal(t, StatusSuccess, res.Status)
	assert.Equal(t, "answer", res.Text)
	assert.Equal(t, "reasoning", res.Thinking)
	assert.Equal(t, "answer", rec.text(EventVisible))
	assert.Equal(t, "reasoning", rec.text(EventThinking))
	assert.Equal(t, "<think></think>", rec.text(EventTag))

	last, _ := s.History.Last()
	assert.Equal(t, "answer", last.Content)
}

func TestSend_HiddenThinking(t *testing.T) {
	srv := newStreamServer(t, http.StatusOK,
		`data: {"choices":[{"delta":{"reasoning":"plan"}}]}`,
		`data: {"choices":[{"delta":{"content":"<think>more</think>done"}}]}`,
		`data: [DONE]`,
	)
	s := newTestSession(t, "groq", srv.URL, srv.Client())
	s.ShowThinking = false
	rec := &recorder{}

	res, err := s.Send(context.Background(), "q", rec)
	require.NoError(t, err)

	assert.Equal(t, "planmore", res.Thinking)
	assert.Equal(t, "done", res.Text)
	assert.Zero(t, rec.count(EventThinking))
	assert.Zero(t, rec.count(EventTag))
}

func TestSend_StructuralThinkingBypassesTags(t *testing.T) {
	srv := newStreamServer(t, http.StatusOK,
		`data: {"choices":[{"delta":{"reasoning_content":"<think>"}}]}`,
		`data: {"choices":[{"delta":{"content":"visible"}}]}`,
		`data: [DONE]`,
	)
	s := newTestSession(t, "novita", srv.URL, srv.Client())

	res, err := s.Send(context.Background(), "q", &recorder{})
	require.NoError(t, err)

	assert.Equal(t, "visible", res.Text)
	assert.Equal(t, "<think>", res.Thinking)
}

func TestSend_EmptyStreamRollsBack(t *testing.T) {
	srv := newStreamServer(t, http.StatusOK, `: keep-alive`, ``, `data: [DONE]`)
	s := newTestSession(t, "groq", srv.URL, srv.Client())
	before := s.History.Len()
	rec := &recorder{}

	res, err := s.Send(context.Background(), "q", rec)
	require.NoError(t, err)

	assert.Equal(t, StatusEmpty, res.Status)
	assert.True(t, res.RolledBack)
	assert.Equal(t, before, s.History.Len())
	assert.Equal(t, "(empty response)", rec.text(EventInfo))
	assert.Zero(t, rec.count(EventFirstByte))
}

func TestSend_ErrorFrameRollsBack(t *testing.T) {
	srv := newStreamServer(t, http.StatusOK,
		`data: {"choices":[{"delta":{"content":"par"}}]}`,
		`data: {"error":{"message":"rate limited","code":429}}`,
		`data: {"choices":[{"delta":{"content":"never"}}]}`,
	)
	s := newTestSession(t, "openrouter", srv.URL, srv.Client())
	before := s.History.Len()
	rec := &recorder{}

	res, err := s.Send(context.Background(), "q", rec)
	require.NoError(t, err)

	assert.Equal(t, StatusError, res.Status)
	assert.Equal(t, "API error: rate limited", res.Message)
	assert.Equal(t, before, s.History.Len())
	assert.NotContains(t, rec.text(EventVisible), "never")
}

func TestSend_HTTPErrorStatus(t *testing.T) {
	srv := newStreamServer(t, http.StatusInternalServerError, `{"error":"boom"}`)
	s := newTestSession(t, "together", srv.URL, srv.Client())

	res, err := s.Send(context.Background(), "q", &recorder{})
	require.NoError(t, err)

	assert.Equal(t, StatusError, res.Status)
	assert.Equal(t, `HTTP 500: {"error":"boom"}`, res.Message)
	assert.True(t, res.RolledBack)
}

func TestSend_TransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	s := newTestSession(t, "groq", url, http.DefaultClient)
	res, err := s.Send(context.Background(), "q", &recorder{})
	require.NoError(t, err)

	assert.Equal(t, StatusError, res.Status)
	assert.True(t, strings.HasPrefix(res.Message, "Connection error: "))
	assert.LessOrEqual(t, len(res.Message), len("Connection error: ")+153)
	assert.Equal(t, 1, s.History.Len())
}

func TestSend_SafetyFinishWithoutText(t *testing.T) {
	srv := newStreamServer(t, http.StatusOK,
		`data: {"candidates":[{"finishReason":"SAFETY"}]}`,
	)
	s := newTestSession(t, "gemini", srv.URL, srv.Client())

	res, err := s.Send(context.Background(), "q", &recorder{})
	require.NoError(t, err)

	assert.Equal(t, StatusError, res.Status)
	assert.Equal(t, "Stream ended by API (reason: SAFETY)", res.Message)
	assert.Equal(t, 0, s.History.Len())
}

func TestSend_SafetyFinishWithTextCommits(t *testing.T) {
	srv := newStreamServer(t, http.StatusOK,
		`data: {"candidates":[{"content":{"parts":[{"text":"Some text"}]}}]}`,
		`data: {"candidates":[{"content":{"parts":[{"text":""}]},"safetyRatings":[{"blocked":true}]}]}`,
		`data: {"candidates":[{"content":{"parts":[{"text":"not read"}]}}]}`,
	)
	s := newTestSession(t, "gemini", srv.URL, srv.Client())
	rec := &recorder{}

	res, err := s.Send(context.Background(), "q", rec)
	require.NoError(t, err)

	assert.Equal(t, StatusSuccess, res.Status)
	assert.Equal(t, "SAFETY", res.Finish)
	assert.Equal(t, "Some text", res.Text)
	assert.True(t, res.Committed)
	assert.Contains(t, rec.text(EventWarning), "SAFETY")
	assert.Equal(t, 2, s.History.Len())
}

func TestSend_InferenceServerLines(t *testing.T) {
	srv := newStreamServer(t, http.StatusOK,
		`{"message":{"role":"assistant","content":"Hi"},"done":false}`,
		`{"message":{"role":"assistant","content":"!"},"done":true}`,
		`{"message":{"role":"assistant","content":"IGNORED"},"done":false}`,
	)
	s := newTestSession(t, "ollama", srv.URL, srv.Client())

	res, err := s.Send(context.Background(), "q", &recorder{})
	require.NoError(t, err)

	assert.Equal(t, StatusSuccess, res.Status)
	assert.Equal(t, "Hi!", res.Text)
	assert.Equal(t, int64(3000), srv.payload(0).Get("options.num_predict").Int())
}

func TestSend_ToolCallsAreShownOnly(t *testing.T) {
	srv := newStreamServer(t, http.StatusOK,
		`data: {"candidates":[{"content":{"parts":[{"text":"Let me check."},{"functionCall":{"name":"lookup","args":{}}}]}}]}`,
	)
	p, err := provider.New("gemini", provider.Options{BaseURL: srv.URL, APIKey: "k", Tools: true})
	require.NoError(t, err)
	s := NewSession(p, "m", Options{Client: srv.Client()})
	rec := &recorder{}

	res, err := s.Send(context.Background(), "q", rec)
	require.NoError(t, err)

	require.Len(t, res.ToolCalls, 1)
	assert.Equal(t, 1, rec.count(EventToolCall))
	assert.Equal(t, "Let me check.", res.Text)
	assert.Equal(t, int64(2), srv.payload(0).Get("tools.#").Int())
}

func TestSend_InterruptCommitsPartialText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `data: {"choices":[{"delta":{"content":"partial"}}]}`+"\n\n")
		w.(http.Flusher).Flush()
		<-r.Context().Done()
	}))
	defer srv.Close()

	s := newTestSession(t, "groq", srv.URL, srv.Client())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rec := &recorder{}
	r := RendererFunc(func(e Event) {
		rec.Render(e)
		if e.Kind == EventVisible {
			cancel()
		}
	})

	res, err := s.Send(ctx, "q", r)
	require.NoError(t, err)

	assert.Equal(t, StatusInterrupted, res.Status)
	assert.True(t, res.Committed)
	assert.Equal(t, "partial", res.Text)
	assert.Contains(t, rec.text(EventInfo), "Partial response saved")
	assert.Equal(t, 3, s.History.Len())
}

func TestSend_InterruptBeforeAnyText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	s := newTestSession(t, "groq", srv.URL, srv.Client())
	ctx, cancel := context.WithCancel(context.Background())
	r := RendererFunc(func(e Event) {
		if e.Kind == EventWaiting {
			cancel()
		}
	})

	res, err := s.Send(ctx, "q", r)
	require.NoError(t, err)

	assert.Equal(t, StatusInterrupted, res.Status)
	assert.True(t, res.RolledBack)
	assert.Equal(t, 1, s.History.Len())
}

func TestSend_LongResponseTruncated(t *testing.T) {
	srv := newStreamServer(t, http.StatusOK,
		`data: {"choices":[{"delta":{"content":"abcdefghij"}}]}`,
		`data: [DONE]`,
	)
	s := newTestSession(t, "groq", srv.URL, srv.Client())
	s.MaxMessageLength = 4
	rec := &recorder{}

	res, err := s.Send(context.Background(), "q", rec)
	require.NoError(t, err)

	assert.Equal(t, "abcd", res.Text)
	assert.Contains(t, rec.text(EventWarning), "truncated at 4")
}

func TestSend_TruncationKeepsCharactersWhole(t *testing.T) {
	srv := newStreamServer(t, http.StatusOK,
		`data: {"choices":[{"delta":{"content":"aé日本"}}]}`,
		`data: [DONE]`,
	)
	s := newTestSession(t, "groq", srv.URL, srv.Client())
	s.MaxMessageLength = 2

	res, err := s.Send(context.Background(), "q", &recorder{})
	require.NoError(t, err)

	assert.Equal(t, "aé", res.Text)
	last, ok := s.History.Last()
	require.True(t, ok)
	assert.Equal(t, "aé", last.Content)
	assert.True(t, utf8.ValidString(last.Content))
}

func TestUserMessage_LimitCountsCharacters(t *testing.T) {
	s := newTestSession(t, "groq", "", nil)
	s.MaxMessageLength = 10

	msg, err := s.UserMessage(strings.Repeat("é", 10))
	require.NoError(t, err)
	assert.Equal(t, strings.Repeat("é", 10), msg.Content)

	_, err = s.UserMessage(strings.Repeat("é", 11))
	assert.ErrorIs(t, err, ErrMessageTooLong)
	assert.Contains(t, err.Error(), "11 chars, max 10")
}

func TestTruncate_MultiByte(t *testing.T) {
	assert.Equal(t, "日本語...", truncate("日本語テキスト", 3))
	assert.Equal(t, "日本語", truncate("日本語", 3))
	assert.True(t, utf8.ValidString(truncate(strings.Repeat("é", 200), 150)))
}

func TestSend_ThinkingOnlyRollsBack(t *testing.T) {
	srv := newStreamServer(t, http.StatusOK,
		`data: {"choices":[{"delta":{"content":"<think>only thoughts"}}]}`,
		`data: [DONE]`,
	)
	s := newTestSession(t, "groq", srv.URL, srv.Client())

	res, err := s.Send(context.Background(), "q", &recorder{})
	require.NoError(t, err)

	assert.Equal(t, StatusSuccess, res.Status)
	assert.False(t, res.Committed)
	assert.True(t, res.RolledBack)
	assert.Equal(t, "only thoughts", res.Thinking)
}

func TestSend_RejectsBadInputWithoutTouchingHistory(t *testing.T) {
	s := newTestSession(t, "groq", "http://127.0.0.1:1", http.DefaultClient)
	s.MaxMessageLength = 5

	_, err := s.Send(context.Background(), "too long for it", &recorder{})
	assert.ErrorIs(t, err, ErrMessageTooLong)

	_, err = s.Send(context.Background(), "", &recorder{})
	assert.ErrorIs(t, err, ErrEmptyInput)

	assert.Equal(t, 1, s.History.Len())
}

func TestSend_GeminiFirstMessageCarriesSystemPrompt(t *testing.T) {
	srv := newStreamServer(t, http.StatusOK,
		`data: {"candidates":[{"content":{"parts":[{"text":"ok"}]},"finishReason":"STOP"}]}`,
	)
	s := newTestSession(t, "gemini", srv.URL, srv.Client())

	_, err := s.Send(context.Background(), "hello", &recorder{})
	require.NoError(t, err)
	_, err = s.Send(context.Background(), "again", &recorder{})
	require.NoError(t, err)

	first := srv.payload(0)
	assert.Equal(t, "sys\n\nUser: hello", first.Get("contents.0.parts.0.text").String())
	assert.False(t, first.Get("systemInstruction").Exists())

	second := srv.payload(1)
	assert.Equal(t, int64(3), second.Get("contents.#").Int())
	assert.Equal(t, "model", second.Get("contents.1.role").String())
	assert.Equal(t, "again", second.Get("contents.2.parts.0.text").String())
}

func TestSend_ImageOnlyMessage(t *testing.T) {
	srv := newStreamServer(t, http.StatusOK,
		`data: {"candidates":[{"content":{"parts":[{"text":"A cat."}]}}]}`,
	)
	s := newTestSession(t, "gemini", srv.URL, srv.Client())
	data := base64.StdEncoding.EncodeToString([]byte("img"))
	s.Image = &history.Image{Path: "cat.png", MIME: "image/png", Data: data}

	res, err := s.Send(context.Background(), "", &recorder{})
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, res.Status)
	assert.Nil(t, s.Image)

	sent := srv.payload(0)
	assert.Equal(t, "sys\n\n"+DefaultImagePrompt, sent.Get("contents.0.parts.0.text").String())
	assert.Equal(t, data, sent.Get("contents.0.parts.1.inlineData.data").String())
}

func TestSend_HistoryWindow(t *testing.T) {
	srv := newStreamServer(t, http.StatusOK,
		`data: {"candidates":[{"content":{"parts":[{"text":"r"}]}}]}`,
	)
	s := newTestSession(t, "gemini", srv.URL, srv.Client())
	s.MaxHistory = 4

	for i := range 5 {
		_, err := s.Send(context.Background(), fmt.Sprintf("m%d", i), &recorder{})
		require.NoError(t, err)
	}

	// Each overflow evicts a whole user/model pair.
	msgs := s.History.Messages()
	require.Len(t, msgs, 4)
	assert.Equal(t, history.RoleUser, msgs[0].Role)
	assert.Equal(t, "m3", msgs[0].Content)
	assert.Equal(t, "m4", msgs[2].Content)
}

func TestUserMessage_AlternatingAfterLoadHasNoPrefix(t *testing.T) {
	p, err := provider.New("gemini", provider.Options{})
	require.NoError(t, err)
	s := NewSession(p, "m", Options{SystemPrompt: "sys"})

	require.NoError(t, s.Load([]history.Message{
		{Role: history.RoleUser, Content: "old"},
		{Role: history.RoleAssistant, Content: "reply"},
	}))
	msg, err := s.UserMessage("next")
	require.NoError(t, err)
	assert.Equal(t, "next", msg.Content)
}

func TestLoad_DropsSystemMessageForAlternating(t *testing.T) {
	p, err := provider.New("gemini", provider.Options{})
	require.NoError(t, err)
	s := NewSession(p, "m", Options{SystemPrompt: "sys"})

	require.NoError(t, s.Load([]history.Message{
		{Role: history.RoleSystem, Content: "saved prompt"},
		{Role: history.RoleUser, Content: "old"},
		{Role: history.RoleAssistant, Content: "reply"},
	}))
	msgs := s.History.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, history.RoleUser, msgs[0].Role)
}

func TestLoad_RejectsInvalidHistory(t *testing.T) {
	p, err := provider.New("groq", provider.Options{})
	require.NoError(t, err)
	s := NewSession(p, "m", Options{SystemPrompt: "sys"})

	err = s.Load([]history.Message{
		{Role: history.RoleUser, Content: "hi"},
		{Role: history.RoleSystem, Content: "late"},
	})
	assert.ErrorIs(t, err, history.ErrInvalidSession)
	assert.Equal(t, 1, s.History.Len(), "history must be untouched on failure")
}

func TestLoad_AlternatingRejectsBrokenTurnOrder(t *testing.T) {
	p, err := provider.New("gemini", provider.Options{})
	require.NoError(t, err)
	s := NewSession(p, "m", Options{SystemPrompt: "sys"})

	err = s.Load([]history.Message{
		{Role: history.RoleAssistant, Content: "a"},
		{Role: history.RoleUser, Content: "u1"},
		{Role: history.RoleUser, Content: "u2"},
	})
	assert.ErrorIs(t, err, history.ErrInvalidSession)
	assert.Equal(t, 0, s.History.Len())
}

func TestStatus_String(t *testing.T) {
	assert.Equal(t, "success", StatusSuccess.String())
	assert.Equal(t, "blocked", StatusContentBlocked.String())
	assert.Equal(t, "interrupted", StatusInterrupted.String())
}
