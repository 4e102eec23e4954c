// Package transcript は会話履歴を SQLite に追記保存し、Markdown へ書き出す。
package transcript

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/0x6d61/mcpchat/pkg/schema"
)

// Session は保存済みセッションの概要
type Session struct {
	ID        string
	StartedAt time.Time
	Messages  int
}

// Store は SQLite による追記専用のトランスクリプトストア。
type Store struct {
	db *sql.DB
}

// NewSessionID は新しいセッション ID を返す
func NewSessionID() string {
	return uuid.NewString()
}

// Open は path のデータベースを開き、スキーマを作成する。
// 親ディレクトリが無ければ作成する。
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("transcript: mkdir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("transcript: open database: %w", err)
	}

	s := &Store{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("transcript: init schema: %w", err)
	}
	return s, nil
}

// Close はデータベース接続を閉じる
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func (s *Store) initSchema() error {
	const ddl = `
CREATE TABLE IF NOT EXISTS messages (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    session_id TEXT NOT NULL,
    role TEXT NOT NULL,
    body TEXT NOT NULL,
    created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_messages_session ON messages(session_id, id);
`
	_, err := s.db.Exec(ddl)
	return err
}

// Append は msg を sessionID のトランスクリプトに追記する
func (s *Store) Append(ctx context.Context, sessionID string, msg schema.Message) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("transcript: encode message: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO messages (session_id, role, body, created_at) VALUES (?, ?, ?, ?)`,
		sessionID, string(msg.Role), string(body), time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("transcript: insert: %w", err)
	}
	return nil
}

// Load は sessionID のメッセージを追記順に返す
func (s *Store) Load(ctx context.Context, sessionID string) ([]schema.Message, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT body FROM messages WHERE session_id = ? ORDER BY id`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("transcript: query: %w", err)
	}
	defer rows.Close()

	var out []schema.Message
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, fmt.Errorf("transcript: scan: %w", err)
		}
		var msg schema.Message
		if err := json.Unmarshal([]byte(body), &msg); err != nil {
			return nil, fmt.Errorf("transcript: decode message: %w", err)
		}
		out = append(out, msg)
	}
	return out, rows.Err()
}

// Sessions は保存済みセッションを新しい順に返す
func (s *Store) Sessions(ctx context.Context) ([]Session, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT session_id, MIN(created_at), COUNT(*)
FROM messages
GROUP BY session_id
ORDER BY MIN(id) DESC`)
	if err != nil {
		return nil, fmt.Errorf("transcript: query sessions: %w", err)
	}
	defer rows.Close()

	var out []Session
	for rows.Next() {
		var (
			sess    Session
			started string
		)
		if err := rows.Scan(&sess.ID, &started, &sess.Messages); err != nil {
			return nil, fmt.Errorf("transcript: scan session: %w", err)
		}
		sess.StartedAt, _ = time.Parse(time.RFC3339Nano, started)
		out = append(out, sess)
	}
	return out, rows.Err()
}

// Recorder は Store を特定セッションに束ねたもの。chat.Recorder を満たす。
type Recorder struct {
	store     *Store
	sessionID string
}

// Recorder は sessionID に追記する Recorder を返す
func (s *Store) Recorder(sessionID string) *Recorder {
	return &Recorder{store: s, sessionID: sessionID}
}

// SessionID は記録先のセッション ID を返す
func (r *Recorder) SessionID() string { return r.sessionID }

// Record は msg を追記する
func (r *Recorder) Record(ctx context.Context, msg schema.Message) error {
	return r.store.Append(ctx, r.sessionID, msg)
}
