package mcp

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// mockServerPair はテスト用のモックサーバーと対応するクライアントのペア
type mockServerPair struct {
	mock   *mockMCPServer
	client *MCPClient
}

// newTestManager はテスト用の MCPManager をモッククライアント付きで作成する。
// 各サーバー設定に対してモック MCP サーバーを起動し、マネージャーに注入する。
func newTestManager(t *testing.T, configs []ServerConfig) (*MCPManager, []*mockServerPair) {
	t.Helper()

	pairs := make([]*mockServerPair, len(configs))
	clients := make(map[string]*MCPClient, len(configs))

	for i, cfg := range configs {
		mock, client := newMockMCPServer(t)
		pairs[i] = &mockServerPair{mock: mock, client: client}
		clients[cfg.Name] = client
	}

	m := newEmptyManager()
	m.clients = clients
	m.configs = configs

	return m, pairs
}

// newEmptyManager はサーバー定義を持たないマネージャーを返す
func newEmptyManager() *MCPManager {
	m, _ := NewManager("")
	return m
}

func TestManager_NewManager_NoConfigFile(t *testing.T) {
	// 設定ファイルが存在しない場合はサーバー無しのマネージャーを返す
	m, err := NewManager("/nonexistent/path/mcp.yaml")
	if err != nil {
		t.Fatalf("expected nil error, got: %v", err)
	}
	if m == nil {
		t.Fatal("expected non-nil manager for missing config file")
	}
	if len(m.configs) != 0 {
		t.Errorf("expected no configs, got %d", len(m.configs))
	}
}

func TestManager_NewManager_EmptyServers(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "mcp.yaml")
	if err := os.WriteFile(path, []byte("servers: []\n"), 0644); err != nil {
		t.Fatal(err)
	}

	m, err := NewManager(path)
	if err != nil {
		t.Fatalf("expected nil error, got: %v", err)
	}
	if m == nil {
		t.Fatal("expected non-nil manager")
	}
	if len(m.ListAllTools()) != 0 {
		t.Error("expected no tools for empty servers config")
	}
}

func TestManager_NewManager_ValidConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "mcp.yaml")
	content := `servers:
  - name: docs-mirror
    command: echo
    args: ["hello"]
  - name: off-server
    command: echo
    disabled: true
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	m, err := NewManager(path)
	if err != nil {
		t.Fatalf("expected nil error, got: %v", err)
	}
	if m == nil {
		t.Fatal("expected non-nil manager")
	}
	if len(m.configs) != 1 {
		t.Fatalf("expected 1 config, got %d", len(m.configs))
	}
	if m.configs[0].Name != "docs-mirror" {
		t.Errorf("expected server name 'docs-mirror', got '%s'", m.configs[0].Name)
	}
}

func TestManager_ListAllTools_Aggregation(t *testing.T) {
	// 複数サーバーのツールが集約されること
	configs := []ServerConfig{
		{Name: "notes", Command: "echo"},
		{Name: "wiki", Command: "echo"},
	}
	mgr, pairs := newTestManager(t, configs)
	defer func() {
		for _, p := range pairs {
			p.mock.close()
			p.client.Close()
		}
	}()

	// 手動でツールを登録（StartAll をスキップして直接テスト）
	mgr.tools["notes"] = []ToolSchema{
		{Server: "notes", Name: "read_note", Description: "Read a note"},
		{Server: "notes", Name: "list_notes", Description: "List notes"},
	}
	mgr.tools["wiki"] = []ToolSchema{
		{Server: "wiki", Name: "search_wiki", Description: "Search the wiki"},
	}

	tools := mgr.ListAllTools()
	if len(tools) != 3 {
		t.Fatalf("expected 3 tools, got %d", len(tools))
	}

	// サーバー名が正しく設定されているか確認
	names := map[string]bool{}
	for _, tool := range tools {
		names[tool.Name] = true
	}
	for _, expected := range []string{"read_note", "list_notes", "search_wiki"} {
		if !names[expected] {
			t.Errorf("expected tool '%s' in aggregated list", expected)
		}
	}
}

func TestManager_CallTool_Routing(t *testing.T) {
	// 正しいサーバーにルーティングされること
	configs := []ServerConfig{
		{Name: "notes", Command: "echo"},
	}
	mgr, pairs := newTestManager(t, configs)
	defer func() {
		for _, p := range pairs {
			p.mock.close()
			p.client.Close()
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	errCh := make(chan error, 1)
	var result *CallResult
	go func() {
		var err error
		result, err = mgr.CallTool(ctx, "notes", "fetch_page", map[string]any{"key": "value"})
		errCh <- err
	}()

	// モックサーバーでリクエストを処理
	req := pairs[0].mock.readRequest(t)
	if req.Method != "tools/call" {
		t.Fatalf("expected method 'tools/call', got '%s'", req.Method)
	}

	// params を検証
	paramsBytes, _ := json.Marshal(req.Params)
	var params map[string]any
	json.Unmarshal(paramsBytes, &params)
	if params["name"] != "fetch_page" {
		t.Errorf("expected tool name 'fetch_page', got '%v'", params["name"])
	}

	pairs[0].mock.writeResponse(t, req.ID, map[string]any{
		"content": []map[string]any{
			{"type": "text", "text": "note contents from notes"},
		},
	})

	if err := <-errCh; err != nil {
		t.Fatalf("CallTool returned error: %v", err)
	}
	if result == nil {
		t.Fatal("expected non-nil result")
	}
	if result.Content[0].Text != "note contents from notes" {
		t.Errorf("unexpected result text: '%s'", result.Content[0].Text)
	}
}

func TestManager_CallTool_UnknownServer(t *testing.T) {
	// 存在しないサーバーへのルーティングはエラー
	configs := []ServerConfig{
		{Name: "notes", Command: "echo"},
	}
	mgr, pairs := newTestManager(t, configs)
	defer func() {
		for _, p := range pairs {
			p.mock.close()
			p.client.Close()
		}
	}()

	ctx := context.Background()
	_, err := mgr.CallTool(ctx, "nonexistent-server", "tool", nil)
	if err == nil {
		t.Fatal("expected error for unknown server")
	}
}

func TestManager_AddServer(t *testing.T) {
	mgr := newEmptyManager()

	if err := mgr.AddServer(ServerConfig{Name: DocumentServerName, Command: "mcpchat", Args: []string{"-serve-docs"}}); err != nil {
		t.Fatalf("AddServer: %v", err)
	}
	if err := mgr.AddServer(ServerConfig{Name: "extra", Command: "python"}); err != nil {
		t.Fatalf("AddServer: %v", err)
	}
	if err := mgr.AddServer(ServerConfig{Name: "extra", Command: "node"}); err == nil {
		t.Error("expected error for duplicate server name")
	}
	if len(mgr.configs) != 2 || mgr.configs[0].Name != DocumentServerName {
		t.Errorf("unexpected configs: %+v", mgr.configs)
	}
}

func TestManager_FindTool_FirstServerWins(t *testing.T) {
	configs := []ServerConfig{
		{Name: "notes", Command: "echo"},
		{Name: "wiki", Command: "echo"},
	}
	mgr, pairs := newTestManager(t, configs)
	defer func() {
		for _, p := range pairs {
			p.mock.close()
			p.client.Close()
		}
	}()

	mgr.tools["notes"] = []ToolSchema{{Server: "notes", Name: "shared"}}
	mgr.tools["wiki"] = []ToolSchema{{Server: "wiki", Name: "shared"}, {Server: "wiki", Name: "wiki_only"}}

	if server, ok := mgr.FindTool("shared"); !ok || server != "notes" {
		t.Errorf("FindTool(shared): got %q, %v", server, ok)
	}
	if server, ok := mgr.FindTool("wiki_only"); !ok || server != "wiki" {
		t.Errorf("FindTool(wiki_only): got %q, %v", server, ok)
	}
	if _, ok := mgr.FindTool("missing"); ok {
		t.Error("FindTool(missing): expected not found")
	}
}

func TestManager_ListAllTools_ConfigOrder(t *testing.T) {
	mgr := newEmptyManager()
	mgr.configs = []ServerConfig{{Name: "z"}, {Name: "a"}}
	mgr.tools["a"] = []ToolSchema{{Server: "a", Name: "a1"}}
	mgr.tools["z"] = []ToolSchema{{Server: "z", Name: "z1"}}

	tools := mgr.ListAllTools()
	if len(tools) != 2 || tools[0].Name != "z1" || tools[1].Name != "a1" {
		t.Errorf("expected config order [z1 a1], got %+v", tools)
	}
}

func TestManager_Close(t *testing.T) {
	configs := []ServerConfig{
		{Name: "notes", Command: "echo"},
		{Name: "wiki", Command: "echo"},
	}
	mgr, _ := newTestManager(t, configs)

	// Close はエラーなく完了するべき
	err := mgr.Close()
	if err != nil {
		t.Fatalf("Close returned error: %v", err)
	}

	// Close 後の CallTool はエラー
	ctx := context.Background()
	_, err = mgr.CallTool(ctx, "notes", "tool", nil)
	if err == nil {
		t.Error("expected error after Close")
	}
}

func TestManager_NewManager_InvalidYAML(t *testing.T) {
	// 不正な YAML ファイルの場合はエラーを返す
	dir := t.TempDir()
	path := filepath.Join(dir, "mcp.yaml")
	if err := os.WriteFile(path, []byte("{{{invalid yaml"), 0644); err != nil {
		t.Fatal(err)
	}

	m, err := NewManager(path)
	if err == nil {
		t.Fatal("expected error for invalid YAML config")
	}
	if m != nil {
		t.Error("expected nil manager on error")
	}
}

func TestManager_StartAllWithClients_InitializeFailure(t *testing.T) {
	// Initialize が失敗するサーバーは除外されてエラーにならない
	configs := []ServerConfig{
		{Name: "broken-calendar", Command: "echo"},
		{Name: "weather", Command: "echo"},
	}
	mgr, pairs := newTestManager(t, configs)
	defer func() {
		for _, p := range pairs {
			p.mock.close()
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		errCh <- mgr.startAllWithClients(ctx)
	}()

	// broken-calendar: initialize リクエストを読み取ってエラーレスポンスを返す
	req1 := pairs[0].mock.readRequest(t)
	pairs[0].mock.writeErrorResponse(t, req1.ID, -32600, "initialization failed")

	// weather: 正常に処理
	req2 := pairs[1].mock.readRequest(t)
	pairs[1].mock.writeResponse(t, req2.ID, map[string]any{
		"protocolVersion": "2024-11-05",
		"capabilities":    map[string]any{},
		"serverInfo":      map[string]any{"name": "ok", "version": "1.0"},
	})
	notif := pairs[1].mock.readNotification(t)
	if notif["method"] != "notifications/initialized" {
		t.Fatalf("expected notifications/initialized, got '%v'", notif["method"])
	}
	req3 := pairs[1].mock.readRequest(t)
	pairs[1].mock.writeResponse(t, req3.ID, map[string]any{
		"tools": []map[string]any{
			{"name": "get_weather", "description": "works", "inputSchema": map[string]any{"type": "object"}},
		},
	})

	if err := <-errCh; err != nil {
		t.Fatalf("startAllWithClients returned error: %v", err)
	}

	// broken-calendar はクライアントから除外されていること
	if _, ok := mgr.clients["broken-calendar"]; ok {
		t.Error("expected broken-calendar to be removed from clients")
	}

	// weather のツールは登録されていること
	tools := mgr.ListAllTools()
	if len(tools) != 1 {
		t.Fatalf("expected 1 tool, got %d", len(tools))
	}
	if tools[0].Name != "get_weather" {
		t.Errorf("expected tool 'get_weather', got '%s'", tools[0].Name)
	}
	if tools[0].Server != "weather" {
		t.Errorf("expected server 'weather', got '%s'", tools[0].Server)
	}
}

func TestManager_StartAllWithClients_ListToolsFailure(t *testing.T) {
	// Initialize は成功するが ListTools が失敗するサーバー
	configs := []ServerConfig{
		{Name: "flaky-search", Command: "echo"},
	}
	mgr, pairs := newTestManager(t, configs)
	defer func() {
		for _, p := range pairs {
			p.mock.close()
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		errCh <- mgr.startAllWithClients(ctx)
	}()

	mock := pairs[0].mock

	// Initialize: 正常処理
	req := mock.readRequest(t)
	mock.writeResponse(t, req.ID, map[string]any{
		"protocolVersion": "2024-11-05",
		"capabilities":    map[string]any{},
		"serverInfo":      map[string]any{"name": "test", "version": "1.0"},
	})
	_ = mock.readNotification(t)

	// ListTools: エラーレスポンスを返す
	req = mock.readRequest(t)
	mock.writeErrorResponse(t, req.ID, -32601, "tools/list not supported")

	if err := <-errCh; err != nil {
		t.Fatalf("startAllWithClients returned error: %v", err)
	}

	// サーバーはクライアントから除外されていること
	if _, ok := mgr.clients["flaky-search"]; ok {
		t.Error("expected flaky-search to be removed from clients")
	}

	// ツールは登録されていないこと
	tools := mgr.ListAllTools()
	if len(tools) != 0 {
		t.Errorf("expected 0 tools, got %d", len(tools))
	}
}

func TestManager_StartAllWithClients_MissingClient(t *testing.T) {
	// configs にあるがクライアントが注入されていないサーバーはスキップされる
	configs := []ServerConfig{
		{Name: "missing-server", Command: "echo"},
	}
	mgr := newEmptyManager() // 空: クライアントなし
	mgr.configs = configs

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	err := mgr.startAllWithClients(ctx)
	if err != nil {
		t.Fatalf("startAllWithClients returned error: %v", err)
	}

	// ツールは登録されていないこと
	tools := mgr.ListAllTools()
	if len(tools) != 0 {
		t.Errorf("expected 0 tools, got %d", len(tools))
	}
}

func TestManager_Close_NoClients(t *testing.T) {
	// クライアントがない場合の Close
	mgr := newEmptyManager()

	err := mgr.Close()
	if err != nil {
		t.Fatalf("Close returned error: %v", err)
	}
}

func TestManager_Close_MultipleClients(t *testing.T) {
	// 複数クライアントが正常に Close されること
	configs := []ServerConfig{
		{Name: "notes", Command: "echo"},
		{Name: "wiki", Command: "echo"},
	}
	mgr, _ := newTestManager(t, configs)

	err := mgr.Close()
	if err != nil {
		t.Fatalf("Close returned error: %v", err)
	}

	// Close 後はクライアントが空になっていること
	if len(mgr.clients) != 0 {
		t.Errorf("expected 0 clients after Close, got %d", len(mgr.clients))
	}
}

func TestManager_StartAll_WithMock(t *testing.T) {
	// StartAll がイニシャライズとツール一覧取得を行うことを確認
	configs := []ServerConfig{
		{Name: "glossary", Command: "echo"},
	}
	mgr, pairs := newTestManager(t, configs)
	defer func() {
		for _, p := range pairs {
			p.mock.close()
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		errCh <- mgr.startAllWithClients(ctx)
	}()

	mock := pairs[0].mock

	// 1. initialize リクエストを処理
	req := mock.readRequest(t)
	if req.Method != "initialize" {
		t.Fatalf("expected method 'initialize', got '%s'", req.Method)
	}
	mock.writeResponse(t, req.ID, map[string]any{
		"protocolVersion": "2024-11-05",
		"capabilities":    map[string]any{},
		"serverInfo":      map[string]any{"name": "mock", "version": "1.0"},
	})

	// 2. notifications/initialized を読み取る
	notif := mock.readNotification(t)
	if notif["method"] != "notifications/initialized" {
		t.Fatalf("expected notifications/initialized, got '%v'", notif["method"])
	}

	// 3. tools/list リクエストを処理
	req = mock.readRequest(t)
	if req.Method != "tools/list" {
		t.Fatalf("expected method 'tools/list', got '%s'", req.Method)
	}
	mock.writeResponse(t, req.ID, map[string]any{
		"tools": []map[string]any{
			{
				"name":        "lookup_term",
				"description": "A mock tool",
				"inputSchema": map[string]any{"type": "object"},
			},
		},
	})

	if err := <-errCh; err != nil {
		t.Fatalf("startAllWithClients returned error: %v", err)
	}

	// ツールが正しく登録されたか確認
	tools := mgr.ListAllTools()
	if len(tools) != 1 {
		t.Fatalf("expected 1 tool, got %d", len(tools))
	}
	if tools[0].Name != "lookup_term" {
		t.Errorf("expected tool name 'lookup_term', got '%s'", tools[0].Name)
	}
	if tools[0].Server != "glossary" {
		t.Errorf("expected server 'glossary', got '%s'", tools[0].Server)
	}
}
