package docserver

import (
	"sort"
	"strings"
)

// SearchResult は検索結果 1 件
type SearchResult struct {
	DocID      string `json:"doc_id"`
	Section    string `json:"section,omitempty"` // マッチ行の直前の Markdown 見出し
	Snippet    string `json:"snippet"`
	MatchCount int    `json:"match_count"`
}

// snippetContext はスニペットに含める前後の行数
const snippetContext = 2

// Search はクエリに一致するドキュメントを返す。
//   - クエリをスペースで分割し、全キーワードが本文のどこかに含まれるドキュメントだけを返す（大文字小文字は無視）
//   - スニペットは最初にキーワードが出現した行の前後
//   - マッチ数の降順、同数なら登録順
//   - maxResults > 0 なら件数を制限する
func (s *Store) Search(query string, maxResults int) []SearchResult {
	keywords := strings.Fields(strings.ToLower(query))
	if len(keywords) == 0 {
		return nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var results []SearchResult
	for _, id := range s.order {
		if r, ok := searchDocument(id, s.docs[id], keywords); ok {
			results = append(results, r)
		}
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].MatchCount > results[j].MatchCount
	})
	if maxResults > 0 && len(results) > maxResults {
		results = results[:maxResults]
	}
	return results
}

func searchDocument(id, content string, keywords []string) (SearchResult, bool) {
	lines := strings.Split(content, "\n")
	found := make([]bool, len(keywords))
	var (
		section, matchSection string
		firstMatch            = -1
		count                 int
	)

	for i, line := range lines {
		if strings.HasPrefix(line, "#") {
			section = strings.TrimSpace(strings.TrimLeft(line, "#"))
		}
		lower := strings.ToLower(line)
		hit := false
		for ki, kw := range keywords {
			if n := strings.Count(lower, kw); n > 0 {
				found[ki] = true
				count += n
				hit = true
			}
		}
		if hit && firstMatch < 0 {
			firstMatch = i
			matchSection = section
		}
	}

	for _, f := range found {
		if !f {
			return SearchResult{}, false
		}
	}
	return SearchResult{
		DocID:      id,
		Section:    matchSection,
		Snippet:    buildSnippet(lines, firstMatch, snippetContext),
		MatchCount: count,
	}, true
}

// buildSnippet は line の前後 context 行を結合する
func buildSnippet(lines []string, line, context int) string {
	if line < 0 || len(lines) == 0 {
		return ""
	}
	start := max(line-context, 0)
	end := min(line+context+1, len(lines))
	return strings.Join(lines[start:end], "\n")
}
