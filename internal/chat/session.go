// Package chat は会話履歴を保持し、Brain と MCP ツールの往復（ツールループ）を駆動する。
package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/0x6d61/mcpchat/internal/brain"
	"github.com/0x6d61/mcpchat/internal/mcp"
	"github.com/0x6d61/mcpchat/pkg/schema"
)

// DefaultMaxToolRounds は 1 ターンで許すツール往復回数の既定値
const DefaultMaxToolRounds = 10

var (
	// ErrTooManyToolRounds はツール往復が上限に達したときに返る。
	ErrTooManyToolRounds = errors.New("chat: too many tool rounds")

	// ErrMissingDocumentID は "/command" に doc_id が無いときに返る。
	ErrMissingDocumentID = errors.New("chat: command requires a document id")
)

// Gateway はツールとドキュメントへのアクセスを提供する。*mcp.MCPManager が実装する。
type Gateway interface {
	Tools() []schema.Tool
	ExecuteToolRequests(ctx context.Context, msg schema.Message) []schema.Block
	DocumentIDs(ctx context.Context) ([]string, error)
	ReadDocument(ctx context.Context, docID string) (string, error)
	Prompts(ctx context.Context) ([]mcp.Prompt, error)
	PromptMessages(ctx context.Context, name string, args map[string]string) ([]schema.Message, error)
}

// Recorder は履歴に追加されたメッセージを永続化する。*transcript.Recorder が実装する。
type Recorder interface {
	Record(ctx context.Context, msg schema.Message) error
}

// Options は Session の生成パラメータ
type Options struct {
	System        string
	Temperature   float64
	MaxToolRounds int

	// History は再開時の初期履歴
	History []schema.Message

	Events   chan<- Event // nil ならイベントを送らない
	Recorder Recorder     // nil なら記録しない
	Logger   *slog.Logger // nil ならログを捨てる
}

// Session は 1 つの会話。Run は直列化されるため複数 goroutine から呼んでよい。
type Session struct {
	mu      sync.Mutex
	brain   brain.Brain
	gateway Gateway
	opts    Options
	logger  *slog.Logger
	history []schema.Message
}

// New は Session を構築する
func New(br brain.Brain, gw Gateway, opts Options) *Session {
	if opts.MaxToolRounds <= 0 {
		opts.MaxToolRounds = DefaultMaxToolRounds
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Session{
		brain:   br,
		gateway: gw,
		opts:    opts,
		logger:  logger,
		history: append([]schema.Message(nil), opts.History...),
	}
}

// Provider はプロバイダー名を返す
func (s *Session) Provider() string { return s.brain.Provider() }

// Model はモデル名を返す
func (s *Session) Model() string { return s.brain.Model() }

// Tools は現在利用可能なツールを返す
func (s *Session) Tools() []schema.Tool { return s.gateway.Tools() }

// DocumentIDs は @mention の補完候補を返す
func (s *Session) DocumentIDs(ctx context.Context) ([]string, error) {
	return s.gateway.DocumentIDs(ctx)
}

// Prompts は /command の補完候補を返す
func (s *Session) Prompts(ctx context.Context) ([]mcp.Prompt, error) {
	return s.gateway.Prompts(ctx)
}

// History は履歴のコピーを返す
func (s *Session) History() []schema.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]schema.Message(nil), s.history...)
}

// Reset は履歴を空にする
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = nil
}

// Run はクエリを 1 ターン処理し、最終的なアシスタントの応答テキストを返す。
//
// "/name doc_id" はドキュメントサーバーのプロンプト name を取得して履歴に追加する。
// それ以外は @mention を解決したプロンプトをユーザーメッセージとして追加する。
// その後、モデルが tool_use で止まる間はツールを実行して結果を返し続ける。
func (s *Session) Run(ctx context.Context, query string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	text, err := s.run(ctx, query)
	if err != nil {
		s.emit(Event{Type: EventError, Text: err.Error()})
		return "", err
	}
	return text, nil
}

func (s *Session) run(ctx context.Context, query string) (string, error) {
	if name, docID, ok := ParseCommand(query); ok {
		if docID == "" {
			return "", fmt.Errorf("%w: /%s", ErrMissingDocumentID, name)
		}
		msgs, err := s.gateway.PromptMessages(ctx, name, map[string]string{"doc_id": docID})
		if err != nil {
			return "", fmt.Errorf("chat: prompt %q: %w", name, err)
		}
		for _, m := range msgs {
			if m.Role == schema.RoleAssistant {
				s.appendAssistant(ctx, m.Content...)
			} else {
				s.appendUser(ctx, m.Content...)
			}
			s.emit(Event{Type: EventUser, Text: m.Text()})
		}
	} else {
		s.emit(Event{Type: EventUser, Text: query})
		s.appendUser(ctx, schema.TextBlocks(s.buildPrompt(ctx, query))...)
	}

	opts := brain.ChatOptions{
		System:      s.opts.System,
		Temperature: s.opts.Temperature,
		Tools:       s.gateway.Tools(),
	}

	for round := 0; ; round++ {
		if round >= s.opts.MaxToolRounds {
			return "", fmt.Errorf("%w: limit %d", ErrTooManyToolRounds, s.opts.MaxToolRounds)
		}

		resp, err := s.brain.Chat(ctx, s.history, opts)
		if err != nil {
			return "", err
		}
		s.appendAssistant(ctx, resp.Content...)

		if resp.StopReason != schema.StopToolUse {
			text := resp.Text()
			s.emit(Event{Type: EventAssistant, Text: text})
			return text, nil
		}

		if text := resp.Text(); text != "" {
			s.emit(Event{Type: EventAssistant, Text: text})
		}
		names := make(map[string]string)
		for _, tu := range resp.ToolUses() {
			names[tu.ID] = tu.Name
			input, _ := json.Marshal(tu.Input)
			s.emit(Event{Type: EventToolCall, Tool: tu.Name, CallID: tu.ID, Text: string(input)})
		}

		results := s.gateway.ExecuteToolRequests(ctx, *resp)
		for _, tr := range schema.ToolResults(results) {
			s.emit(Event{Type: EventToolResult, Tool: names[tr.ToolUseID], CallID: tr.ToolUseID,
				Text: tr.Content, IsError: tr.IsError})
		}
		s.appendUser(ctx, results...)
	}
}

func (s *Session) appendUser(ctx context.Context, blocks ...schema.Block) {
	s.history = s.brain.AppendUserMessage(s.history, blocks...)
	s.record(ctx)
}

func (s *Session) appendAssistant(ctx context.Context, blocks ...schema.Block) {
	s.history = s.brain.AppendAssistantMessage(s.history, blocks...)
	s.record(ctx)
}

// record は直前に追加したメッセージを Recorder に渡す。記録の失敗で会話は止めない。
func (s *Session) record(ctx context.Context) {
	if s.opts.Recorder == nil || len(s.history) == 0 {
		return
	}
	if err := s.opts.Recorder.Record(ctx, s.history[len(s.history)-1]); err != nil {
		s.logger.Warn("record message failed", "error", err)
	}
}

func (s *Session) emit(e Event) {
	if s.opts.Events == nil {
		return
	}
	select {
	case s.opts.Events <- e:
	default:
		// TUI が処理しきれない場合は捨てる
	}
}
