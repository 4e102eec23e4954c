package docserver

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// textExtensions は LoadDir が読み込む拡張子
var textExtensions = map[string]bool{".md": true, ".markdown": true, ".txt": true}

// LoadDir は dir 以下のテキストファイル（.md / .markdown / .txt）を読み込む。
// ID は dir からのスラッシュ区切り相対パス。隠しファイルとディレクトリはスキップする。
// maxBytes > 0 ならそれを超えるファイルは読み込まない。
func LoadDir(dir string, maxBytes int64) ([]Document, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("docserver: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("docserver: %s is not a directory", dir)
	}

	var docs []Document
	err = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil // 読めないディレクトリはスキップ
		}
		if path != dir && strings.HasPrefix(d.Name(), ".") {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() || !textExtensions[strings.ToLower(filepath.Ext(d.Name()))] {
			return nil
		}

		if maxBytes > 0 {
			if fi, err := d.Info(); err == nil && fi.Size() > maxBytes {
				return nil
			}
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return nil
		}
		// Windows パス区切り文字をスラッシュに変換
		docs = append(docs, Document{ID: filepath.ToSlash(rel), Content: string(data)})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("docserver: walk %s: %w", dir, err)
	}

	sort.Slice(docs, func(i, j int) bool { return docs[i].ID < docs[j].ID })
	return docs, nil
}
