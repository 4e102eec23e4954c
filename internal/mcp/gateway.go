package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/yosida95/uritemplate/v3"

	"github.com/0x6d61/mcpchat/pkg/schema"
)

// ErrUnknownTool はどのサーバーも提供していないツールが要求されたときに返る。
var ErrUnknownTool = errors.New("mcp: unknown tool")

// DocumentListURI はドキュメント ID 一覧のリソース URI
const DocumentListURI = "docs://documents"

// documentURI は 1 ドキュメントのリソース URI テンプレート。
// doc_id の "/" や空白はパーセントエンコードされる。
var documentURI = uritemplate.MustNew("docs://documents/{doc_id}")

// DocumentURI は docID を読むためのリソース URI を返す
func DocumentURI(docID string) (string, error) {
	uri, err := documentURI.Expand(uritemplate.Values{"doc_id": uritemplate.String(docID)})
	if err != nil {
		return "", fmt.Errorf("mcp: invalid document id %q: %w", docID, err)
	}
	return uri, nil
}

// Tools は全サーバーのツールを Brain に渡す記述子へ変換して返す
func (m *MCPManager) Tools() []schema.Tool {
	all := m.ListAllTools()
	out := make([]schema.Tool, 0, len(all))
	for _, t := range all {
		out = append(out, schema.Tool{
			Name:        t.Name,
			Description: t.Description,
			InputSchema: t.InputSchema,
		})
	}
	return out
}

// ExecuteToolRequests は msg 中の ToolUse ブロックを順に実行し、対応する ToolResult を返す。
//
// 成功時の Content は返されたテキスト項目の JSON 配列。
// 未知のツールや呼び出し失敗はエラー内容を Content に持つ IsError=true の結果になる。
// エラーは会話を止めずモデルへ返すため、この関数自体はエラーを返さない。
func (m *MCPManager) ExecuteToolRequests(ctx context.Context, msg schema.Message) []schema.Block {
	uses := msg.ToolUses()
	results := make([]schema.Block, 0, len(uses))
	for _, tu := range uses {
		results = append(results, m.executeTool(ctx, tu))
	}
	return results
}

func (m *MCPManager) executeTool(ctx context.Context, tu schema.ToolUse) schema.ToolResult {
	fail := func(err error) schema.ToolResult {
		m.logger.Warn("tool call failed", "tool", tu.Name, "id", tu.ID, "error", err)
		return schema.ToolResult{ToolUseID: tu.ID, Content: err.Error(), IsError: true}
	}

	server, ok := m.FindTool(tu.Name)
	if !ok {
		return fail(fmt.Errorf("%w: could not find tool %q", ErrUnknownTool, tu.Name))
	}

	m.logger.Info("calling tool", "server", server, "tool", tu.Name, "id", tu.ID)
	res, err := m.CallTool(ctx, server, tu.Name, tu.Input)
	if err != nil {
		return fail(fmt.Errorf("error executing tool %q: %w", tu.Name, err))
	}

	texts := res.Texts()
	for i := range texts {
		texts[i] = Truncate(texts[i], m.truncate)
	}
	data, err := json.Marshal(texts)
	if err != nil {
		return fail(fmt.Errorf("mcp: encode result of %q: %w", tu.Name, err))
	}
	return schema.ToolResult{ToolUseID: tu.ID, Content: string(data), IsError: res.IsError}
}

// DocumentIDs はドキュメントサーバーが公開しているドキュメント ID の一覧を返す
func (m *MCPManager) DocumentIDs(ctx context.Context) ([]string, error) {
	client, err := m.DocumentClient()
	if err != nil {
		return nil, err
	}
	text, ok, err := client.ReadResource(ctx, DocumentListURI)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	var ids []string
	if err := json.Unmarshal([]byte(text), &ids); err != nil {
		return nil, fmt.Errorf("mcp: parse document list: %w", err)
	}
	return ids, nil
}

// ReadDocument はドキュメント本文を返す
func (m *MCPManager) ReadDocument(ctx context.Context, docID string) (string, error) {
	client, err := m.DocumentClient()
	if err != nil {
		return "", err
	}
	uri, err := DocumentURI(docID)
	if err != nil {
		return "", err
	}
	text, _, err := client.ReadResource(ctx, uri)
	return text, err
}

// Prompts はドキュメントサーバーのプロンプト一覧を返す
func (m *MCPManager) Prompts(ctx context.Context) ([]Prompt, error) {
	client, err := m.DocumentClient()
	if err != nil {
		return nil, err
	}
	return client.ListPrompts(ctx)
}

// PromptMessages はプロンプトを取得し、会話履歴に追加できるメッセージ列へ変換する
func (m *MCPManager) PromptMessages(ctx context.Context, name string, args map[string]string) ([]schema.Message, error) {
	client, err := m.DocumentClient()
	if err != nil {
		return nil, err
	}
	msgs, err := client.GetPrompt(ctx, name, args)
	if err != nil {
		return nil, err
	}

	out := make([]schema.Message, 0, len(msgs))
	for _, pm := range msgs {
		role := schema.RoleUser
		if pm.Role == string(schema.RoleAssistant) {
			role = schema.RoleAssistant
		}
		out = append(out, schema.NewTextMessage(role, pm.Content.Text))
	}
	return out, nil
}
