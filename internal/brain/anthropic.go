package brain

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/0x6d61/mcpchat/pkg/schema"
)

// anthropicBrain は Anthropic Messages API（公式 SDK）向けの Brain 実装。
// Messages API はコンテンツブロックをそのまま扱えるため、履歴も構造のまま保持する。
type anthropicBrain struct {
	nativeHistory
	cfg    Config
	client anthropic.Client
}

func newAnthropicBrain(cfg Config) *anthropicBrain {
	opts := []option.RequestOption{
		// リトライは呼び出し側の責務
		option.WithMaxRetries(0),
	}

	// 認証方式に応じてヘッダーを設定する。
	// AuthAPIKey     → x-api-key ヘッダー
	// AuthOAuthToken → Authorization: Bearer + OAuth 必須ヘッダー
	switch cfg.AuthType {
	case AuthOAuthToken:
		opts = append(opts,
			option.WithAuthToken(cfg.Token),
			option.WithHeader("anthropic-beta", "oauth-2025-04-20"),
		)
	default:
		opts = append(opts, option.WithAPIKey(cfg.Token))
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &anthropicBrain{
		cfg:    cfg,
		client: anthropic.NewClient(opts...),
	}
}

func (b *anthropicBrain) Provider() string { return string(ProviderAnthropic) }
func (b *anthropicBrain) Model() string    { return b.cfg.Model }

func (b *anthropicBrain) Chat(ctx context.Context, history []schema.Message, opts ChatOptions) (*schema.Message, error) {
	if len(history) == 0 {
		return nil, ErrEmptyHistory
	}

	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(b.cfg.Model),
		MaxTokens:   MaxOutputTokens,
		Messages:    toAnthropicMessages(history),
		Temperature: anthropic.Float(opts.Temperature),
	}
	if opts.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: opts.System}}
	}
	if len(opts.StopSequences) > 0 {
		params.StopSequences = opts.StopSequences
	}
	if len(opts.Tools) > 0 {
		params.Tools = toAnthropicTools(opts.Tools)
	}

	resp, err := b.client.Messages.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("anthropic: %w", err)
	}

	return parseAnthropicMessage(resp)
}

func toAnthropicMessages(history []schema.Message) []anthropic.MessageParam {
	out := make([]anthropic.MessageParam, 0, len(history))
	for _, m := range history {
		blocks := make([]anthropic.ContentBlockParamUnion, 0, len(m.Content))
		for _, blk := range m.Content {
			switch blk := blk.(type) {
			case schema.Text:
				blocks = append(blocks, anthropic.NewTextBlock(blk.Text))
			case schema.ToolUse:
				input := blk.Input
				if input == nil {
					input = map[string]any{}
				}
				blocks = append(blocks, anthropic.NewToolUseBlock(blk.ID, input, blk.Name))
			case schema.ToolResult:
				blocks = append(blocks, anthropic.NewToolResultBlock(blk.ToolUseID, blk.Content, blk.IsError))
			}
		}
		switch m.Role {
		case schema.RoleAssistant:
			out = append(out, anthropic.NewAssistantMessage(blocks...))
		default:
			out = append(out, anthropic.NewUserMessage(blocks...))
		}
	}
	return out
}

// toAnthropicTools はツール記述子を Anthropic のツール定義へ変換する。
// Messages API は JSON Schema をそのまま受け付けるため properties 以下は無変換で渡す。
func toAnthropicTools(tools []schema.Tool) []anthropic.ToolUnionParam {
	out := make([]anthropic.ToolUnionParam, 0, len(tools))
	for _, t := range tools {
		tool := anthropic.ToolParam{
			Name: t.Name,
			InputSchema: anthropic.ToolInputSchemaParam{
				Properties: t.InputSchema["properties"],
				Required:   stringList(t.InputSchema["required"]),
			},
		}
		if t.Description != "" {
			tool.Description = anthropic.String(t.Description)
		}
		out = append(out, anthropic.ToolUnionParam{OfTool: &tool})
	}
	return out
}

func parseAnthropicMessage(resp *anthropic.Message) (*schema.Message, error) {
	blocks := make([]schema.Block, 0, len(resp.Content))
	for _, block := range resp.Content {
		switch block.Type {
		case "text":
			blocks = append(blocks, schema.Text{Text: block.Text})
		case "tool_use":
			input := map[string]any{}
			if len(block.Input) > 0 {
				if err := json.Unmarshal(block.Input, &input); err != nil {
					return nil, fmt.Errorf("anthropic: parse tool input for %q: %w", block.Name, err)
				}
			}
			blocks = append(blocks, schema.ToolUse{ID: block.ID, Name: block.Name, Input: input})
		}
	}
	return assistantReply(blocks, anthropicStopReason(resp.StopReason)), nil
}

func anthropicStopReason(r anthropic.StopReason) schema.StopReason {
	switch r {
	case anthropic.StopReasonMaxTokens:
		return schema.StopMaxTokens
	case anthropic.StopReasonToolUse:
		return schema.StopToolUse
	default:
		return schema.StopEndTurn
	}
}
