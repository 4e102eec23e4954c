package chat

// EventType は Session から TUI へ送るイベントの種別。
type EventType string

const (
	// EventUser はユーザー入力（またはプロンプトから追加されたメッセージ）が履歴に入ったとき。
	EventUser EventType = "user"
	// EventToolCall はモデルがツール呼び出しを要求したとき。
	EventToolCall EventType = "tool_call"
	// EventToolResult はツールの実行結果が返ったとき。
	EventToolResult EventType = "tool_result"
	// EventAssistant はモデルのテキスト応答。
	EventAssistant EventType = "assistant"
	// EventError はターンが失敗したとき。
	EventError EventType = "error"
)

// Event は Session から TUI へ送るメッセージ。
type Event struct {
	Type    EventType
	Text    string
	Tool    string // EventToolCall / EventToolResult 時のツール名
	CallID  string // EventToolCall / EventToolResult 時の呼び出し ID
	IsError bool   // EventToolResult 時に使用
}
