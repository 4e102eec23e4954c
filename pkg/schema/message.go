// Package schema defines the provider-agnostic conversation types shared by the
// Brain (LLM adapters), the MCP tool gateway and the TUI.
package schema

// Role は会話ターンの話者。
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// StopReason は生成が停止した理由の分類。
type StopReason string

const (
	// StopEndTurn は通常の完了。
	StopEndTurn StopReason = "end_turn"
	// StopMaxTokens は出力トークン上限に達した。
	StopMaxTokens StopReason = "max_tokens"
	// StopToolUse はモデルがツール呼び出しを要求した。
	// ToolUse ブロックを含むアシスタントメッセージは常にこの値を持つ。
	StopToolUse StopReason = "tool_use"
)

// Block はメッセージ内容の 1 単位。Text / ToolUse / ToolResult のいずれか。
// 利用側は型スイッチで全ケースを処理する。
type Block interface {
	// BlockType は JSON 表現の "type" フィールド値を返す。
	BlockType() string
	block()
}

// Text はプレーンテキストのブロック。
type Text struct {
	Text string
}

// ToolUse はアシスタントからのツール呼び出し要求。
type ToolUse struct {
	ID    string
	Name  string
	Input map[string]any
}

// ToolResult はツール実行結果。ToolUseID は同じ会話で先に出現した ToolUse.ID を参照する。
type ToolResult struct {
	ToolUseID string
	Content   string
	IsError   bool
}

func (Text) BlockType() string       { return "text" }
func (ToolUse) BlockType() string    { return "tool_use" }
func (ToolResult) BlockType() string { return "tool_result" }

func (Text) block()       {}
func (ToolUse) block()    {}
func (ToolResult) block() {}

// Message は会話履歴の 1 ターン。
type Message struct {
	Role    Role
	Content []Block
	// StopReason は Chat が返したアシスタント応答にのみ設定される。
	StopReason StopReason
}

// TextBlocks は文字列を単一の Text ブロックに正規化する。
func TextBlocks(s string) []Block {
	return []Block{Text{Text: s}}
}

// NewTextMessage は単一 Text ブロックのメッセージを返す。
func NewTextMessage(role Role, text string) Message {
	return Message{Role: role, Content: TextBlocks(text)}
}

// Text はメッセージ中の Text ブロックを改行で連結して返す。
func (m Message) Text() string {
	return ExtractText(m.Content)
}

// ToolUses はメッセージ中の ToolUse ブロックを出現順に返す。
func (m Message) ToolUses() []ToolUse {
	var out []ToolUse
	for _, b := range m.Content {
		if tu, ok := b.(ToolUse); ok {
			out = append(out, tu)
		}
	}
	return out
}

// Tool は MCP サーバーから取得したツール記述子。
type Tool struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"input_schema"`
}
