package schema

import (
	"encoding/json"
	"reflect"
	"strings"
	"testing"
)

func TestExtractText_Empty(t *testing.T) {
	if got := ExtractText(nil); got != "" {
		t.Errorf("ExtractText(nil) = %q, want empty", got)
	}
	if got := ExtractText([]Block{}); got != "" {
		t.Errorf("ExtractText([]) = %q, want empty", got)
	}
}

func TestExtractText_SkipsNonText(t *testing.T) {
	blocks := []Block{
		Text{Text: "a"},
		ToolUse{ID: "call_x", Name: "x"},
		ToolResult{ToolUseID: "call_x", Content: "ignored"},
		Text{Text: "b"},
	}
	if got := ExtractText(blocks); got != "a\nb" {
		t.Errorf("ExtractText = %q, want %q", got, "a\nb")
	}
}

func TestExtractText_NoTextBlocks(t *testing.T) {
	blocks := []Block{ToolUse{ID: "call_x", Name: "x"}}
	if got := ExtractText(blocks); got != "" {
		t.Errorf("ExtractText = %q, want empty", got)
	}
}

func TestExtractText_Idempotent(t *testing.T) {
	cases := [][]Block{
		nil,
		{Text{Text: "only"}},
		{Text{Text: "line1\nline2"}, Text{Text: ""}, Text{Text: "tail"}},
		{ToolUse{ID: "1", Name: "n"}, Text{Text: "x"}},
	}
	for _, blocks := range cases {
		once := ExtractText(blocks)
		twice := ExtractText([]Block{Text{Text: once}})
		if once != twice {
			t.Errorf("not idempotent: %q vs %q", once, twice)
		}
	}
}

func TestMessage_ToolUses(t *testing.T) {
	m := Message{
		Role: RoleAssistant,
		Content: []Block{
			Text{Text: "let me check"},
			ToolUse{ID: "a", Name: "read_document"},
			ToolUse{ID: "b", Name: "edit_document"},
		},
	}
	uses := m.ToolUses()
	if len(uses) != 2 {
		t.Fatalf("expected 2 tool uses, got %d", len(uses))
	}
	if uses[0].ID != "a" || uses[1].ID != "b" {
		t.Errorf("tool uses out of order: %+v", uses)
	}
}

func TestFirstToolResult(t *testing.T) {
	if FirstToolResult(nil) {
		t.Error("empty blocks should not report a tool result")
	}
	if FirstToolResult([]Block{Text{Text: "x"}, ToolResult{}}) {
		t.Error("tool result in second position should not count")
	}
	if !FirstToolResult([]Block{ToolResult{ToolUseID: "call_foo"}}) {
		t.Error("expected leading tool result to be detected")
	}
}

func TestMessage_JSONHistoryFormat(t *testing.T) {
	msg := Message{
		Role: RoleAssistant,
		Content: []Block{
			Text{Text: "reading"},
			ToolUse{ID: "call_read_document", Name: "read_document", Input: map[string]any{"doc_id": "plan.md"}},
		},
		StopReason: StopToolUse,
	}
	data, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	s := string(data)
	for _, want := range []string{`"role":"assistant"`, `"type":"tool_use"`, `"doc_id":"plan.md"`, `"stop_reason":"tool_use"`} {
		if !strings.Contains(s, want) {
			t.Errorf("expected %s in %s", want, s)
		}
	}

	var back Message
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if !reflect.DeepEqual(back, msg) {
		t.Errorf("round trip mismatch:\n got  %#v\n want %#v", back, msg)
	}
}

func TestMessage_UnmarshalStringContent(t *testing.T) {
	var m Message
	if err := json.Unmarshal([]byte(`{"role":"user","content":"hello"}`), &m); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if len(m.Content) != 1 {
		t.Fatalf("expected 1 block, got %d", len(m.Content))
	}
	if txt, ok := m.Content[0].(Text); !ok || txt.Text != "hello" {
		t.Errorf("expected Text{hello}, got %#v", m.Content[0])
	}
}

func TestMessage_UnmarshalToolResult(t *testing.T) {
	raw := `{"role":"user","content":[{"type":"tool_result","tool_use_id":"call_foo","content":"42","is_error":true}]}`
	var m Message
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	want := ToolResult{ToolUseID: "call_foo", Content: "42", IsError: true}
	if m.Content[0] != want {
		t.Errorf("got %#v, want %#v", m.Content[0], want)
	}
}

func TestMessage_UnmarshalErrors(t *testing.T) {
	cases := map[string]string{
		"unknown role":  `{"role":"system","content":"x"}`,
		"unknown block": `{"role":"user","content":[{"type":"image"}]}`,
		"bad content":   `{"role":"user","content":42}`,
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			var m Message
			if err := json.Unmarshal([]byte(raw), &m); err == nil {
				t.Error("expected error, got nil")
			}
		})
	}
}
