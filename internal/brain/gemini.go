package brain

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/0x6d61/mcpchat/pkg/schema"
)

const (
	defaultGeminiBaseURL = "https://generativelanguage.googleapis.com"
	geminiAPIVersion     = "v1beta"
)

// Gemini の finishReason
const (
	geminiFinishStop      = "STOP"
	geminiFinishMaxTokens = "MAX_TOKENS"
)

// geminiBrain は Gemini (Generative Language API) 向けの Brain 実装。
// Gemini の会話履歴はテキストのみで扱うため、ツール結果もテキストに平坦化する。
type geminiBrain struct {
	textHistory
	cfg    Config
	client *http.Client
}

func newGeminiBrain(cfg Config) *geminiBrain {
	return &geminiBrain{
		cfg:    cfg,
		client: &http.Client{Timeout: 120 * time.Second},
	}
}

func (b *geminiBrain) Provider() string { return string(ProviderGemini) }
func (b *geminiBrain) Model() string    { return b.cfg.Model }

// Gemini REST のリクエスト型（必要最小限）

type geminiTextPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Role  string           `json:"role,omitempty"`
	Parts []geminiTextPart `json:"parts"`
}

type geminiGenerationConfig struct {
	Temperature     float64  `json:"temperature"`
	MaxOutputTokens int      `json:"maxOutputTokens"`
	StopSequences   []string `json:"stopSequences,omitempty"`
}

type geminiFunctionDeclaration struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

type geminiTool struct {
	FunctionDeclarations []geminiFunctionDeclaration `json:"functionDeclarations"`
}

type geminiRequest struct {
	Contents          []geminiContent        `json:"contents"`
	SystemInstruction *geminiContent         `json:"systemInstruction,omitempty"`
	GenerationConfig  geminiGenerationConfig `json:"generationConfig"`
	Tools             []geminiTool           `json:"tools,omitempty"`
}

// geminiResponse は generateContent のレスポンス構造体（必要最小限）。
type geminiResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text         string `json:"text"`
				FunctionCall *struct {
					Name string         `json:"name"`
					Args map[string]any `json:"args"`
				} `json:"functionCall"`
			} `json:"parts"`
		} `json:"content"`
		FinishReason string `json:"finishReason"`
	} `json:"candidates"`
	PromptFeedback *struct {
		BlockReason string `json:"blockReason"`
	} `json:"promptFeedback"`
}

// geminiRole は履歴のロールを Gemini のロールへ写像する（assistant → model）。
func geminiRole(r schema.Role) string {
	if r == schema.RoleUser {
		return "user"
	}
	return "model"
}

// buildGeminiRequest は履歴とオプションから generateContent のリクエストを組み立てる。
// 最後のターン以外を文脈とし、最後のターンのテキストをユーザーからの即時プロンプトとして送る。
func buildGeminiRequest(history []schema.Message, opts ChatOptions) geminiRequest {
	contents := make([]geminiContent, 0, len(history))
	// 空テキストのターン（ToolUse だけの応答）も省略せずに送り、user/model の交互を保つ
	for _, m := range history[:len(history)-1] {
		contents = append(contents, geminiContent{
			Role:  geminiRole(m.Role),
			Parts: []geminiTextPart{{Text: schema.ExtractText(m.Content)}},
		})
	}
	last := history[len(history)-1]
	contents = append(contents, geminiContent{
		Role:  "user",
		Parts: []geminiTextPart{{Text: schema.ExtractText(last.Content)}},
	})

	req := geminiRequest{
		Contents: contents,
		GenerationConfig: geminiGenerationConfig{
			Temperature:     opts.Temperature,
			MaxOutputTokens: MaxOutputTokens,
			StopSequences:   opts.StopSequences,
		},
	}
	if opts.System != "" {
		req.SystemInstruction = &geminiContent{Parts: []geminiTextPart{{Text: opts.System}}}
	}
	if len(opts.Tools) > 0 {
		decls := make([]geminiFunctionDeclaration, 0, len(opts.Tools))
		for _, t := range opts.Tools {
			params := ConvertToolSchema(t.InputSchema)
			// 引数なしの OBJECT は Gemini に拒否されるため parameters ごと省略する
			if props, _ := params["properties"].(map[string]any); len(props) == 0 {
				params = nil
			}
			decls = append(decls, geminiFunctionDeclaration{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  params,
			})
		}
		req.Tools = []geminiTool{{FunctionDeclarations: decls}}
	}
	return req
}

func (b *geminiBrain) Chat(ctx context.Context, history []schema.Message, opts ChatOptions) (*schema.Message, error) {
	if len(history) == 0 {
		return nil, ErrEmptyHistory
	}

	bodyBytes, err := json.Marshal(buildGeminiRequest(history, opts))
	if err != nil {
		return nil, fmt.Errorf("gemini: marshal request: %w", err)
	}

	baseURL := b.cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultGeminiBaseURL
	}
	endpoint := fmt.Sprintf("%s/%s/models/%s:generateContent",
		strings.TrimRight(baseURL, "/"), geminiAPIVersion, url.PathEscape(b.cfg.Model))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("gemini: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", b.cfg.Token)

	resp, err := b.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("gemini: send request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("gemini: read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("gemini: API error %d: %s", resp.StatusCode, string(respBytes))
	}

	return b.parseResponse(respBytes)
}

// parseResponse は generateContent のレスポンスを schema.Message に変換する。
//
// 優先順位:
//  1. functionCall パートがあれば ToolUse ブロック 1 つ（StopToolUse）
//  2. それ以外はテキストパートを連結した Text ブロック 1 つ
func (b *geminiBrain) parseResponse(data []byte) (*schema.Message, error) {
	var resp geminiResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("gemini: unmarshal response: %w", err)
	}

	if len(resp.Candidates) == 0 {
		if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
			return nil, fmt.Errorf("gemini: prompt blocked: %s", resp.PromptFeedback.BlockReason)
		}
		return nil, fmt.Errorf("gemini: empty candidates in response")
	}
	cand := resp.Candidates[0]

	for _, part := range cand.Content.Parts {
		if part.FunctionCall == nil || part.FunctionCall.Name == "" {
			continue
		}
		args := part.FunctionCall.Args
		if args == nil {
			args = map[string]any{}
		}
		return assistantReply([]schema.Block{schema.ToolUse{
			ID:    toolCallID(part.FunctionCall.Name, b.cfg.UniqueToolCallIDs),
			Name:  part.FunctionCall.Name,
			Input: args,
		}}, schema.StopToolUse), nil
	}

	var sb strings.Builder
	for _, part := range cand.Content.Parts {
		sb.WriteString(part.Text)
	}

	// テキストが無く、かつ正常終了でもない（SAFETY 等）場合はレスポンス不正として扱う
	if len(cand.Content.Parts) == 0 &&
		cand.FinishReason != geminiFinishStop && cand.FinishReason != geminiFinishMaxTokens {
		return nil, fmt.Errorf("gemini: no content in response (finish reason %q)", cand.FinishReason)
	}

	return assistantReply(schema.TextBlocks(sb.String()), geminiStopReason(cand.FinishReason)), nil
}

// geminiStopReason は finishReason を StopReason に写像する。未知・欠落は end_turn。
func geminiStopReason(finish string) schema.StopReason {
	switch finish {
	case geminiFinishMaxTokens:
		return schema.StopMaxTokens
	default:
		return schema.StopEndTurn
	}
}

// GeminiModel は models.list が返すモデル情報（必要最小限）。
type GeminiModel struct {
	Name                       string   `json:"name"`
	DisplayName                string   `json:"displayName"`
	SupportedGenerationMethods []string `json:"supportedGenerationMethods"`
}

// ListGeminiModels は generateContent をサポートするモデルの一覧を返す。
// ページングは pageToken が空になるまで辿る。
func ListGeminiModels(ctx context.Context, cfg Config) ([]GeminiModel, error) {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultGeminiBaseURL
	}
	client := &http.Client{Timeout: 30 * time.Second}

	var out []GeminiModel
	pageToken := ""
	for {
		endpoint := fmt.Sprintf("%s/%s/models", strings.TrimRight(baseURL, "/"), geminiAPIVersion)
		if pageToken != "" {
			endpoint += "?pageToken=" + url.QueryEscape(pageToken)
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return nil, fmt.Errorf("gemini: create request: %w", err)
		}
		req.Header.Set("x-goog-api-key", cfg.Token)

		resp, err := client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("gemini: list models: %w", err)
		}
		data, err := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("gemini: read response: %w", err)
		}
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("gemini: API error %d: %s", resp.StatusCode, string(data))
		}

		var page struct {
			Models        []GeminiModel `json:"models"`
			NextPageToken string        `json:"nextPageToken"`
		}
		if err := json.Unmarshal(data, &page); err != nil {
			return nil, fmt.Errorf("gemini: unmarshal models: %w", err)
		}
		for _, m := range page.Models {
			if slices.Contains(m.SupportedGenerationMethods, "generateContent") {
				out = append(out, m)
			}
		}
		if page.NextPageToken == "" {
			return out, nil
		}
		pageToken = page.NextPageToken
	}
}
