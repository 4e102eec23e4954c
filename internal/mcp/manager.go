package mcp

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
)

// DocumentServerName は @mention・プロンプト・リソースの取得元となるサーバー名
const DocumentServerName = "docs"

// MCPManager は複数の MCP サーバーを管理し、ツールの集約・ルーティングを行う
type MCPManager struct {
	mu      sync.RWMutex
	clients map[string]*MCPClient   // サーバー名 → クライアント
	configs []ServerConfig          // 設定されたサーバー一覧（起動順）
	tools   map[string][]ToolSchema // サーバー名 → ツール一覧

	truncate TruncateConfig
	logger   *slog.Logger
}

// Option は MCPManager の生成オプション
type Option func(*MCPManager)

// WithLogger はログ出力先を設定する
func WithLogger(l *slog.Logger) Option {
	return func(m *MCPManager) { m.logger = l }
}

// WithTruncate はツール出力の切り捨て設定を変更する
func WithTruncate(cfg TruncateConfig) Option {
	return func(m *MCPManager) { m.truncate = cfg }
}

// NewManager は設定ファイルからマネージャーを作成する。
// configPath が空、またはファイルが存在しない場合はサーバー無しのマネージャーを返す
// （AddServer で組み込みサーバーを追加できる）。
func NewManager(configPath string, opts ...Option) (*MCPManager, error) {
	m := &MCPManager{
		clients:  make(map[string]*MCPClient),
		tools:    make(map[string][]ToolSchema),
		truncate: DefaultTruncateConfig,
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(m)
	}

	if configPath == "" {
		return m, nil
	}
	cfg, err := LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("mcp: failed to load config: %w", err)
	}
	if cfg != nil {
		for _, s := range cfg.Servers {
			if s.Disabled {
				m.logger.Info("mcp server disabled", "server", s.Name)
				continue
			}
			m.configs = append(m.configs, s)
		}
	}
	return m, nil
}

// AddServer はサーバー定義を追加する。StartAll より前に呼ぶこと。
// 同名のサーバーが既にあればエラーを返す。
func (m *MCPManager) AddServer(cfg ServerConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.configs {
		if c.Name == cfg.Name {
			return fmt.Errorf("mcp: duplicate server name %q", cfg.Name)
		}
	}
	m.configs = append(m.configs, cfg)
	return nil
}

// Servers は起動に成功したサーバー名を設定順に返す
func (m *MCPManager) Servers() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var names []string
	for _, cfg := range m.configs {
		if _, ok := m.clients[cfg.Name]; ok {
			names = append(names, cfg.Name)
		}
	}
	return names
}

// StartAll は全サーバーを起動し、Initialize と ListTools を実行する。
// 個別のサーバー起動に失敗した場合はログに警告を出して続行する。
func (m *MCPManager) StartAll(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, cfg := range m.configs {
		// 環境変数を "KEY=VALUE" 形式に変換
		var env []string
		if len(cfg.Env) > 0 {
			// ホスト環境を引き継ぎつつ追加する
			env = os.Environ()
			for k, v := range cfg.Env {
				env = append(env, k+"="+v)
			}
		}

		client, err := NewStdioClient(cfg.Command, cfg.Args, env)
		if err != nil {
			m.logger.Warn("failed to start mcp server", "server", cfg.Name, "error", err)
			continue
		}
		m.clients[cfg.Name] = client
		m.initClient(ctx, cfg.Name, client)
	}

	return nil
}

// startAllWithClients は既に注入済みのクライアントに対して Initialize と ListTools を実行する。
func (m *MCPManager) startAllWithClients(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, cfg := range m.configs {
		client, ok := m.clients[cfg.Name]
		if !ok {
			continue
		}
		m.initClient(ctx, cfg.Name, client)
	}
	return nil
}

// initClient はハンドシェイクとツール一覧取得を行う。失敗したクライアントは閉じて除外する。
// m.mu を保持した状態で呼ぶ。
func (m *MCPManager) initClient(ctx context.Context, name string, client *MCPClient) {
	if err := client.Initialize(ctx); err != nil {
		m.logger.Warn("failed to initialize mcp server", "server", name, "error", err)
		_ = client.Close()
		delete(m.clients, name)
		return
	}

	tools, err := client.ListTools(ctx)
	if err != nil {
		m.logger.Warn("failed to list tools", "server", name, "error", err)
		_ = client.Close()
		delete(m.clients, name)
		return
	}

	// サーバー名を各ツールに設定
	for i := range tools {
		tools[i].Server = name
	}
	m.tools[name] = tools
	m.logger.Info("mcp server ready", "server", name, "tools", len(tools))
}

// ListAllTools は全サーバーのツールを設定順に集約して返す
func (m *MCPManager) ListAllTools() []ToolSchema {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var all []ToolSchema
	for _, cfg := range m.configs {
		all = append(all, m.tools[cfg.Name]...)
	}
	return all
}

// FindTool はツール名から所属サーバーを探す。
// 複数サーバーが同名ツールを持つ場合は設定順で先のサーバーが優先される。
func (m *MCPManager) FindTool(name string) (server string, ok bool) {
	for _, t := range m.ListAllTools() {
		if t.Name == name {
			return t.Server, true
		}
	}
	return "", false
}

// CallTool は指定されたサーバーのツールを呼び出す
func (m *MCPManager) CallTool(ctx context.Context, server, tool string, args map[string]any) (*CallResult, error) {
	client, err := m.client(server)
	if err != nil {
		return nil, err
	}
	return client.CallTool(ctx, tool, args)
}

// DocumentClient はドキュメントサーバーのクライアントを返す
func (m *MCPManager) DocumentClient() (*MCPClient, error) {
	return m.client(DocumentServerName)
}

func (m *MCPManager) client(server string) (*MCPClient, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	client, ok := m.clients[server]
	if !ok {
		return nil, fmt.Errorf("mcp: unknown server %q", server)
	}
	return client, nil
}

// Close は全 MCP サーバーのプロセスを終了させる
func (m *MCPManager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var lastErr error
	for name, client := range m.clients {
		if err := client.Close(); err != nil {
			m.logger.Warn("failed to close mcp server", "server", name, "error", err)
			lastErr = err
		}
		delete(m.clients, name)
	}
	return lastErr
}
