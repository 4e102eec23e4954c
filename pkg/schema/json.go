package schema

import (
	"encoding/json"
	"fmt"
)

// wireBlock はセッション履歴フォーマットにおけるブロックの JSON 表現。
type wireBlock struct {
	Type      string         `json:"type"`
	Text      string         `json:"text,omitempty"`
	ID        string         `json:"id,omitempty"`
	Name      string         `json:"name,omitempty"`
	Input     map[string]any `json:"input,omitempty"`
	ToolUseID string         `json:"tool_use_id,omitempty"`
	Content   string         `json:"content,omitempty"`
	IsError   bool           `json:"is_error,omitempty"`
}

type wireMessage struct {
	Role       Role            `json:"role"`
	Content    json.RawMessage `json:"content"`
	StopReason StopReason      `json:"stop_reason,omitempty"`
}

func toWire(b Block) (wireBlock, error) {
	switch b := b.(type) {
	case Text:
		return wireBlock{Type: b.BlockType(), Text: b.Text}, nil
	case ToolUse:
		input := b.Input
		if input == nil {
			input = map[string]any{}
		}
		return wireBlock{Type: b.BlockType(), ID: b.ID, Name: b.Name, Input: input}, nil
	case ToolResult:
		return wireBlock{Type: b.BlockType(), ToolUseID: b.ToolUseID, Content: b.Content, IsError: b.IsError}, nil
	default:
		return wireBlock{}, fmt.Errorf("schema: unsupported block %T", b)
	}
}

func fromWire(w wireBlock) (Block, error) {
	switch w.Type {
	case "text":
		return Text{Text: w.Text}, nil
	case "tool_use":
		return ToolUse{ID: w.ID, Name: w.Name, Input: w.Input}, nil
	case "tool_result":
		return ToolResult{ToolUseID: w.ToolUseID, Content: w.Content, IsError: w.IsError}, nil
	default:
		return nil, fmt.Errorf("schema: unknown block type %q", w.Type)
	}
}

// MarshalJSON は {role, content:[blocks...]} 形式に変換する。
func (m Message) MarshalJSON() ([]byte, error) {
	blocks := make([]wireBlock, 0, len(m.Content))
	for _, b := range m.Content {
		w, err := toWire(b)
		if err != nil {
			return nil, err
		}
		blocks = append(blocks, w)
	}
	content, err := json.Marshal(blocks)
	if err != nil {
		return nil, err
	}
	return json.Marshal(wireMessage{Role: m.Role, Content: content, StopReason: m.StopReason})
}

// UnmarshalJSON は content が文字列でもブロック配列でも受け付ける。
// 文字列は単一 Text ブロックに正規化する。
func (m *Message) UnmarshalJSON(data []byte) error {
	var w wireMessage
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	switch w.Role {
	case RoleUser, RoleAssistant:
	default:
		return fmt.Errorf("schema: unknown role %q", w.Role)
	}

	msg := Message{Role: w.Role, StopReason: w.StopReason}
	if len(w.Content) == 0 || string(w.Content) == "null" {
		*m = msg
		return nil
	}

	var s string
	if err := json.Unmarshal(w.Content, &s); err == nil {
		msg.Content = TextBlocks(s)
		*m = msg
		return nil
	}

	var blocks []wireBlock
	if err := json.Unmarshal(w.Content, &blocks); err != nil {
		return fmt.Errorf("schema: content must be a string or a block array: %w", err)
	}
	for _, wb := range blocks {
		b, err := fromWire(wb)
		if err != nil {
			return err
		}
		msg.Content = append(msg.Content, b)
	}
	*m = msg
	return nil
}
