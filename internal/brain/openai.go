package brain

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/0x6d61/mcpchat/pkg/schema"
)

const (
	defaultOpenAIBaseURL   = "https://api.openai.com"
	openAIChatCompletePath = "/v1/chat/completions"
)

// openAIBrain は OpenAI Chat Completions API（function calling）向けの Brain 実装。
// tool_calls / role:"tool" でツール呼び出しを構造のまま送れるため履歴は構造を保持する。
type openAIBrain struct {
	nativeHistory
	cfg    Config
	client *http.Client
}

func newOpenAIBrain(cfg Config) *openAIBrain {
	return &openAIBrain{
		cfg:    cfg,
		client: &http.Client{Timeout: 120 * time.Second},
	}
}

func (b *openAIBrain) Provider() string { return string(ProviderOpenAI) }
func (b *openAIBrain) Model() string    { return b.cfg.Model }

type openAIFunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

type openAIToolCall struct {
	ID       string             `json:"id"`
	Type     string             `json:"type"`
	Function openAIFunctionCall `json:"function"`
}

type openAIMessage struct {
	Role       string           `json:"role"`
	Content    *string          `json:"content"`
	ToolCalls  []openAIToolCall `json:"tool_calls,omitempty"`
	ToolCallID string           `json:"tool_call_id,omitempty"`
}

type openAIToolDef struct {
	Type     string `json:"type"`
	Function struct {
		Name        string         `json:"name"`
		Description string         `json:"description,omitempty"`
		Parameters  map[string]any `json:"parameters,omitempty"`
	} `json:"function"`
}

type openAIRequest struct {
	Model       string          `json:"model"`
	Messages    []openAIMessage `json:"messages"`
	MaxTokens   int             `json:"max_tokens"`
	Temperature float64         `json:"temperature"`
	Stop        []string        `json:"stop,omitempty"`
	Tools       []openAIToolDef `json:"tools,omitempty"`
}

// openAIResponse は Chat Completions API のレスポンス構造体（必要最小限）。
type openAIResponse struct {
	Choices []struct {
		Message struct {
			Content   *string          `json:"content"`
			ToolCalls []openAIToolCall `json:"tool_calls"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}

func strPtr(s string) *string { return &s }

// toOpenAIMessages は履歴を Chat Completions の messages 配列へ変換する。
// ToolResult は role:"tool" メッセージ、ToolUse はアシスタントの tool_calls になる。
func toOpenAIMessages(system string, history []schema.Message) ([]openAIMessage, error) {
	var out []openAIMessage
	if system != "" {
		out = append(out, openAIMessage{Role: "system", Content: strPtr(system)})
	}

	for _, m := range history {
		switch m.Role {
		case schema.RoleAssistant:
			msg := openAIMessage{Role: "assistant"}
			if text := schema.ExtractText(m.Content); text != "" {
				msg.Content = strPtr(text)
			}
			for _, tu := range m.ToolUses() {
				args, err := json.Marshal(tu.Input)
				if err != nil {
					return nil, fmt.Errorf("openai: marshal tool arguments for %q: %w", tu.Name, err)
				}
				msg.ToolCalls = append(msg.ToolCalls, openAIToolCall{
					ID:       tu.ID,
					Type:     "function",
					Function: openAIFunctionCall{Name: tu.Name, Arguments: string(args)},
				})
			}
			if msg.Content == nil && len(msg.ToolCalls) == 0 {
				msg.Content = strPtr("")
			}
			out = append(out, msg)

		default:
			for _, tr := range schema.ToolResults(m.Content) {
				out = append(out, openAIMessage{Role: "tool", ToolCallID: tr.ToolUseID, Content: strPtr(tr.Content)})
			}
			text := schema.ExtractText(m.Content)
			if text != "" || len(schema.ToolResults(m.Content)) == 0 {
				out = append(out, openAIMessage{Role: "user", Content: strPtr(text)})
			}
		}
	}
	return out, nil
}

func (b *openAIBrain) Chat(ctx context.Context, history []schema.Message, opts ChatOptions) (*schema.Message, error) {
	if len(history) == 0 {
		return nil, ErrEmptyHistory
	}

	messages, err := toOpenAIMessages(opts.System, history)
	if err != nil {
		return nil, err
	}

	body := openAIRequest{
		Model:       b.cfg.Model,
		Messages:    messages,
		MaxTokens:   MaxOutputTokens,
		Temperature: opts.Temperature,
		Stop:        opts.StopSequences,
	}
	for _, t := range opts.Tools {
		var def openAIToolDef
		def.Type = "function"
		def.Function.Name = t.Name
		def.Function.Description = t.Description
		def.Function.Parameters = t.InputSchema
		body.Tools = append(body.Tools, def)
	}

	bodyBytes, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("openai: marshal request: %w", err)
	}

	baseURL := b.cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultOpenAIBaseURL
	}
	// BaseURL が既に /v1 で終わっている場合は /chat/completions のみ付加
	// Ollama: http://server:11434/v1 → http://server:11434/v1/chat/completions
	base := strings.TrimRight(baseURL, "/")
	var url string
	if strings.HasSuffix(base, "/v1") {
		url = base + "/chat/completions"
	} else {
		url = base + openAIChatCompletePath
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("openai: create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	if b.cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+b.cfg.Token)
	}

	resp, err := b.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("openai: send request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("openai: read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("openai: API error %d: %s", resp.StatusCode, string(respBytes))
	}

	return parseOpenAIResponse(respBytes)
}

func parseOpenAIResponse(data []byte) (*schema.Message, error) {
	var resp openAIResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("openai: unmarshal response: %w", err)
	}

	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("openai: empty choices in response")
	}
	choice := resp.Choices[0]

	var blocks []schema.Block
	if choice.Message.Content != nil && *choice.Message.Content != "" {
		blocks = append(blocks, schema.Text{Text: *choice.Message.Content})
	}
	for _, tc := range choice.Message.ToolCalls {
		input := map[string]any{}
		if tc.Function.Arguments != "" {
			if err := json.Unmarshal([]byte(tc.Function.Arguments), &input); err != nil {
				return nil, fmt.Errorf("openai: parse arguments for %q: %w", tc.Function.Name, err)
			}
		}
		blocks = append(blocks, schema.ToolUse{ID: tc.ID, Name: tc.Function.Name, Input: input})
	}
	if len(blocks) == 0 {
		blocks = schema.TextBlocks("")
	}

	return assistantReply(blocks, openAIStopReason(choice.FinishReason)), nil
}

func openAIStopReason(finish string) schema.StopReason {
	switch finish {
	case "length":
		return schema.StopMaxTokens
	case "tool_calls":
		return schema.StopToolUse
	default:
		return schema.StopEndTurn
	}
}
