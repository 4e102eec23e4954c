package chat

import (
	"context"
	"fmt"
	"slices"
	"strings"
)

// mentionPrompt は @mention されたドキュメントを埋め込むプロンプト。
// 1 つ目の %s がクエリ、2 つ目が <document> 要素の列。
const mentionPrompt = `The user has a question:
<query>
%s
</query>

The following context may be useful in answering their question:
<context>
%s
</context>

Note the user's query might contain references to documents like "@report.pdf". The "@" is only
included as a way of mentioning the doc. The document id does not include the "@".
Answer the user's question directly and concisely. Start with the exact information they need.
Don't refer to or mention the provided context in any way. Just use it to inform your answer.`

// ExtractMentions はクエリ中の @word を出現順・重複なしで返す（"@" は除く）。
func ExtractMentions(query string) []string {
	var out []string
	for _, word := range strings.Fields(query) {
		if !strings.HasPrefix(word, "@") || len(word) == 1 {
			continue
		}
		id := word[1:]
		if !slices.Contains(out, id) {
			out = append(out, id)
		}
	}
	return out
}

// ParseCommand は "/name doc_id" 形式の入力を分解する。
// "/" で始まらない入力は ok=false。doc_id が無い場合は空文字を返す。
func ParseCommand(query string) (name, docID string, ok bool) {
	words := strings.Fields(query)
	if len(words) == 0 || !strings.HasPrefix(words[0], "/") {
		return "", "", false
	}
	name = strings.TrimPrefix(words[0], "/")
	if len(words) > 1 {
		docID = words[1]
	}
	return name, docID, true
}

// buildPrompt はクエリを <query> で包み、言及されたドキュメントの本文を <document> として添える。
// ドキュメント一覧に無い ID は無視する。
func (s *Session) buildPrompt(ctx context.Context, query string) string {
	var docs strings.Builder
	if mentions := ExtractMentions(query); len(mentions) > 0 {
		ids, err := s.gateway.DocumentIDs(ctx)
		if err != nil {
			s.logger.Warn("list documents failed", "error", err)
		}
		for _, id := range ids {
			if !slices.Contains(mentions, id) {
				continue
			}
			content, err := s.gateway.ReadDocument(ctx, id)
			if err != nil {
				s.logger.Warn("read mentioned document failed", "doc_id", id, "error", err)
				continue
			}
			fmt.Fprintf(&docs, "<document id=\"%s\">\n%s\n</document>\n", id, content)
		}
	}
	return fmt.Sprintf(mentionPrompt, query, docs.String())
}
