// Package brain は LLM プロバイダーとの対話を共通インターフェースで抽象化する。
// 会話履歴（schema.Message）と各プロバイダー固有のワイヤー形式との相互変換を担う。
// Gemini / Anthropic / OpenAI / Ollama をサポートする。
package brain

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/0x6d61/mcpchat/pkg/schema"
)

// Provider は LLM プロバイダーを識別する。
type Provider string

const (
	ProviderGemini    Provider = "gemini"
	ProviderAnthropic Provider = "anthropic"
	ProviderOpenAI    Provider = "openai"
	ProviderOllama    Provider = "ollama"
)

// AuthType は認証方式を識別する。
type AuthType string

const (
	// AuthAPIKey は通常の API キー認証。
	AuthAPIKey AuthType = "api_key"

	// AuthOAuthToken は Anthropic の OAuth トークン認証（Authorization: Bearer ヘッダー）。
	AuthOAuthToken AuthType = "oauth_token"
)

// MaxOutputTokens は生成 1 回あたりの出力トークン上限。呼び出し側からは変更できない。
const MaxOutputTokens = 8000

// デフォルトモデル
const (
	DefaultGeminiModel    = "gemini-2.5-flash"
	DefaultAnthropicModel = "claude-sonnet-4-5"
	DefaultOpenAIModel    = "gpt-4o"
	DefaultOllamaModel    = "llama3.2"
	DefaultOllamaBaseURL  = "http://localhost:11434"
)

var (
	// ErrEmptyHistory は空の履歴で Chat を呼んだときに返る。
	ErrEmptyHistory = errors.New("brain: history must not be empty")

	// ErrMissingCredentials はモデル名や API 認証情報が見つからないときに返る。
	ErrMissingCredentials = errors.New("brain: credentials not found")
)

// Config は Brain の設定を保持する。セッション単位で生成し、プロセス全体では共有しない。
type Config struct {
	Provider Provider
	Model    string
	AuthType AuthType
	Token    string
	BaseURL  string // テスト時にモックサーバーを指定するために使う（空なら公式エンドポイント）

	// UniqueToolCallIDs が true の場合、ツール呼び出し ID を持たないプロバイダー（Gemini）で
	// "call_<name>_<random>" 形式の一意な ID を生成する。false なら "call_<name>"。
	UniqueToolCallIDs bool
}

// ChatOptions は 1 回の Chat 呼び出しの生成パラメータ。
type ChatOptions struct {
	System        string
	Temperature   float64
	StopSequences []string
	Tools         []schema.Tool
}

// Brain は LLM との対話インターフェース。
// 実装は呼び出し間で状態を保持しない。
type Brain interface {
	// AppendUserMessage はユーザーメッセージを履歴に追加した新しいスライスを返す。
	AppendUserMessage(history []schema.Message, blocks ...schema.Block) []schema.Message
	// AppendAssistantMessage はアシスタントメッセージを履歴に追加した新しいスライスを返す。
	AppendAssistantMessage(history []schema.Message, blocks ...schema.Block) []schema.Message
	// Chat は履歴全体を送信し、アシスタントの応答を返す。
	// プロバイダー呼び出しのエラーはそのまま（ラップして）呼び出し元へ返す。リトライはしない。
	Chat(ctx context.Context, history []schema.Message, opts ChatOptions) (*schema.Message, error)
	// Provider はプロバイダー名を返す。
	Provider() string
	// Model はモデル名を返す。
	Model() string
}

// New は Config に基づいて適切な Brain 実装を返す。
func New(cfg Config) (Brain, error) {
	if cfg.Model == "" {
		return nil, fmt.Errorf("brain: model must not be empty: %w", ErrMissingCredentials)
	}
	if cfg.Token == "" && cfg.Provider != ProviderOllama {
		return nil, fmt.Errorf("brain: token must not be empty: %w", ErrMissingCredentials)
	}

	switch cfg.Provider {
	case ProviderGemini:
		return newGeminiBrain(cfg), nil
	case ProviderAnthropic:
		return newAnthropicBrain(cfg), nil
	case ProviderOpenAI:
		return newOpenAIBrain(cfg), nil
	case ProviderOllama:
		return newOllamaBrain(cfg), nil
	default:
		return nil, fmt.Errorf("brain: unknown provider %q (supported: gemini, anthropic, openai, ollama)", cfg.Provider)
	}
}

// ConfigHint は LoadConfig へのヒント（プロバイダー・モデル）を保持する。
// 認証情報は環境変数から自動解決する。
type ConfigHint struct {
	Provider Provider
	Model    string
	BaseURL  string
}

// LoadConfig は環境変数から認証情報を解決して Config を返す。
//
// 解決優先順位（Gemini）:
//  1. GOOGLE_API_KEY → AuthAPIKey
//  2. GEMINI_API_KEY → AuthAPIKey
//
// モデル名は hint.Model → GEMINI_MODEL → DefaultGeminiModel の順。
//
// 解決優先順位（Anthropic）:
//  1. ANTHROPIC_API_KEY    → AuthAPIKey
//  2. ANTHROPIC_AUTH_TOKEN → AuthOAuthToken
//
// OpenAI は OPENAI_API_KEY、Ollama は認証不要（OLLAMA_BASE_URL / OLLAMA_MODEL）。
func LoadConfig(hint ConfigHint) (Config, error) {
	cfg := Config{
		Provider: hint.Provider,
		Model:    hint.Model,
		BaseURL:  hint.BaseURL,
		AuthType: AuthAPIKey,
	}

	switch hint.Provider {
	case ProviderGemini:
		cfg.Model = firstNonEmpty(cfg.Model, os.Getenv("GEMINI_MODEL"), DefaultGeminiModel)
		cfg.Token = firstNonEmpty(os.Getenv("GOOGLE_API_KEY"), os.Getenv("GEMINI_API_KEY"))
		if cfg.Token == "" {
			return cfg, fmt.Errorf("%w: Gemini\n  export GOOGLE_API_KEY=...", ErrMissingCredentials)
		}
		return cfg, nil

	case ProviderAnthropic:
		cfg.Model = firstNonEmpty(cfg.Model, DefaultAnthropicModel)
		if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" {
			cfg.Token = key
			return cfg, nil
		}
		if token := os.Getenv("ANTHROPIC_AUTH_TOKEN"); token != "" {
			cfg.Token = token
			cfg.AuthType = AuthOAuthToken
			return cfg, nil
		}
		return cfg, fmt.Errorf(
			"%w: Anthropic\n"+
				"  - API キー:    export ANTHROPIC_API_KEY=sk-ant-api03-...\n"+
				"  - OAuth 認証: export ANTHROPIC_AUTH_TOKEN=...",
			ErrMissingCredentials,
		)

	case ProviderOpenAI:
		cfg.Model = firstNonEmpty(cfg.Model, DefaultOpenAIModel)
		if key := os.Getenv("OPENAI_API_KEY"); key != "" {
			cfg.Token = key
			return cfg, nil
		}
		return cfg, fmt.Errorf("%w: OpenAI\n  export OPENAI_API_KEY=sk-...", ErrMissingCredentials)

	case ProviderOllama:
		cfg.Model = firstNonEmpty(cfg.Model, os.Getenv("OLLAMA_MODEL"), DefaultOllamaModel)
		cfg.BaseURL = firstNonEmpty(cfg.BaseURL, os.Getenv("OLLAMA_BASE_URL"), DefaultOllamaBaseURL)
		return cfg, nil

	default:
		return cfg, fmt.Errorf("brain: unknown provider %q", hint.Provider)
	}
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
