package brain

import (
	"context"

	"github.com/0x6d61/mcpchat/pkg/schema"
)

// ollamaBrain は Ollama の OpenAI 互換 API を使う Brain 実装。
//
// 現在は openAIBrain に委譲しているが、Ollama 固有の挙動が必要になった場合は
// このファイルだけを変更すれば済む（openai.go に影響を与えない）。
//
// Ollama の OpenAI 互換 API:
//
//	POST <base_url>/v1/chat/completions
//	Authorization ヘッダーは無視される（認証不要）
type ollamaBrain struct {
	*openAIBrain
}

func newOllamaBrain(cfg Config) *ollamaBrain {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultOllamaBaseURL
	}
	return &ollamaBrain{openAIBrain: newOpenAIBrain(cfg)}
}

// Provider はプロバイダー名を返す。
func (b *ollamaBrain) Provider() string { return string(ProviderOllama) }

// Chat は OpenAI 互換 API 経由で委譲する。
func (b *ollamaBrain) Chat(ctx context.Context, history []schema.Message, opts ChatOptions) (*schema.Message, error) {
	return b.openAIBrain.Chat(ctx, history, opts)
}
