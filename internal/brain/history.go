package brain

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/0x6d61/mcpchat/pkg/schema"
)

// textHistory はテキストのみの履歴しか扱えないプロバイダー向けの Append 実装。
// 全メッセージを単一 Text ブロックに平坦化して保存する。
type textHistory struct{}

func (textHistory) AppendUserMessage(history []schema.Message, blocks ...schema.Block) []schema.Message {
	return append(history, schema.NewTextMessage(schema.RoleUser, flattenUserBlocks(blocks)))
}

// AppendAssistantMessage は Text ブロックだけを連結する。ToolUse だけの応答は空文字列になり、
// 呼び出し内容は次のユーザーターンの "Tool {id}: ..." 行でモデルに伝わる。
func (textHistory) AppendAssistantMessage(history []schema.Message, blocks ...schema.Block) []schema.Message {
	return append(history, schema.NewTextMessage(schema.RoleAssistant, schema.ExtractText(blocks)))
}

// flattenUserBlocks はユーザーメッセージを 1 つのテキストへ変換する。
// 先頭が ToolResult の場合は全 ToolResult を "Tool {id}: {content}" の行にまとめる。
func flattenUserBlocks(blocks []schema.Block) string {
	if !schema.FirstToolResult(blocks) {
		return schema.ExtractText(blocks)
	}
	results := schema.ToolResults(blocks)
	lines := make([]string, 0, len(results))
	for _, tr := range results {
		id := tr.ToolUseID
		if id == "" {
			id = "unknown"
		}
		lines = append(lines, fmt.Sprintf("Tool %s: %s", id, tr.Content))
	}
	return strings.Join(lines, "\n")
}

// nativeHistory はツール呼び出しを履歴に構造のまま保持できるプロバイダー向けの Append 実装。
type nativeHistory struct{}

func (nativeHistory) AppendUserMessage(history []schema.Message, blocks ...schema.Block) []schema.Message {
	return append(history, schema.Message{Role: schema.RoleUser, Content: cloneBlocks(blocks)})
}

func (nativeHistory) AppendAssistantMessage(history []schema.Message, blocks ...schema.Block) []schema.Message {
	return append(history, schema.Message{Role: schema.RoleAssistant, Content: cloneBlocks(blocks)})
}

// cloneBlocks は呼び出し元の可変長引数スライスと履歴を切り離す。
func cloneBlocks(blocks []schema.Block) []schema.Block {
	out := make([]schema.Block, len(blocks))
	copy(out, blocks)
	return out
}

// toolCallID はプロバイダーが呼び出し ID を返さない場合に ID を合成する。
// unique=false では同じツールへの呼び出しは同じ ID になる。
func toolCallID(name string, unique bool) string {
	if !unique {
		return "call_" + name
	}
	return "call_" + name + "_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}

// assistantReply は blocks からアシスタント応答を組み立てる。
// ToolUse ブロックを含む場合は reason に関わらず StopToolUse にする。
func assistantReply(blocks []schema.Block, reason schema.StopReason) *schema.Message {
	msg := &schema.Message{Role: schema.RoleAssistant, Content: blocks, StopReason: reason}
	if len(msg.ToolUses()) > 0 {
		msg.StopReason = schema.StopToolUse
	}
	return msg
}
