// Package docserver はインメモリのドキュメントストアを MCP サーバーとして公開する。
// ツール（read_document / edit_document / search_documents）、リソース（docs://documents）、
// プロンプト（rewrite_markdown / summarize）を提供する。
package docserver

import (
	"errors"
	"fmt"
	"strings"
	"sync"
)

// ErrDocumentNotFound は存在しないドキュメント ID を指定したときに返る。
var ErrDocumentNotFound = errors.New("document not found")

// Document はドキュメント 1 件
type Document struct {
	ID      string
	Content string
}

// SeedDocuments は起動時に格納されるドキュメント
var SeedDocuments = []Document{
	{"deposition.md", "This deposition covers the testimony of Angela Smith, P.E."},
	{"report.pdf", "The report details the state of a 20m condenser tower."},
	{"financials.docx", "These financials outline the project's budget and expenditures."},
	{"outlook.pdf", "This document presents the projected future performance of the system."},
	{"plan.md", "The plan outlines the steps for the project's implementation."},
	{"spec.txt", "These specifications define the technical requirements for the equipment."},
}

// Store はドキュメントを ID で保持する。並行利用に安全。
type Store struct {
	mu    sync.RWMutex
	order []string
	docs  map[string]string
}

// NewStore は docs を登録順に格納した Store を返す。
func NewStore(docs []Document) *Store {
	s := &Store{docs: make(map[string]string, len(docs))}
	for _, d := range docs {
		if _, dup := s.docs[d.ID]; !dup {
			s.order = append(s.order, d.ID)
		}
		s.docs[d.ID] = d.Content
	}
	return s
}

// IDs は登録順のドキュメント ID を返す。
func (s *Store) IDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, len(s.order))
	copy(out, s.order)
	return out
}

// Get はドキュメント本文を返す。
func (s *Store) Get(id string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	content, ok := s.docs[id]
	if !ok {
		return "", notFound(id)
	}
	return content, nil
}

// Edit は本文中の oldStr をすべて newStr に置き換える。
func (s *Store) Edit(id, oldStr, newStr string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	content, ok := s.docs[id]
	if !ok {
		return notFound(id)
	}
	if oldStr == "" {
		return fmt.Errorf("old_str must not be empty")
	}
	s.docs[id] = strings.ReplaceAll(content, oldStr, newStr)
	return nil
}

func notFound(id string) error {
	return fmt.Errorf("doc with id %s not found: %w", id, ErrDocumentNotFound)
}
