package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"sync"
	"sync/atomic"
	"time"
)

// ErrClientClosed は Close 済みのクライアントを使ったときに返る。
var ErrClientClosed = errors.New("mcp: client is closed")

// protocolVersion はクライアントが提示する MCP プロトコルバージョン
const protocolVersion = "2024-11-05"

// maxLineSize はサーバー出力 1 行の上限（ドキュメント本文を含むレスポンス向け）
const maxLineSize = 4 * 1024 * 1024

// JSON-RPC 2.0 メッセージ型

type jsonRPCRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int64  `json:"id,omitempty"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

type jsonRPCResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int64           `json:"id"`
	Method  string          `json:"method,omitempty"` // サーバー発の通知・リクエストの場合のみ
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *jsonRPCError   `json:"error,omitempty"`
}

type jsonRPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// MCPClient は MCP サーバーとの JSON-RPC 2.0 over stdio 通信を管理する。
// stdout は 1 本の読み取りゴルーチンだけが読み、レスポンスを id で待機中のリクエストへ配る。
type MCPClient struct {
	stdin   io.WriteCloser
	stdout  io.ReadCloser
	scanner *bufio.Scanner
	cmd     *exec.Cmd // サブプロセスモード時のみ非 nil

	writeMu sync.Mutex // stdin 書き込みの排他制御

	pendingMu sync.Mutex
	pending   map[int64]chan jsonRPCResponse
	readErr   error // 読み取りゴルーチンの終了理由（pendingMu で保護）
	readOnce  sync.Once

	nextID atomic.Int64
	closed atomic.Bool
}

// NewStdioClient は MCP サーバーをサブプロセスとして起動し、クライアントを返す。
// env は "KEY=VALUE" 形式の環境変数リスト。
func NewStdioClient(command string, args []string, env []string) (*MCPClient, error) {
	cmd := exec.Command(command, args...) // nosemgrep: go.lang.security.audit.dangerous-exec-command.dangerous-exec-command -- command は mcp.yaml かコマンドライン引数で利用者自身が指定する
	if len(env) > 0 {
		cmd.Env = env
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("mcp: failed to create stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		_ = stdin.Close()
		return nil, fmt.Errorf("mcp: failed to create stdout pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		_ = stdin.Close()
		return nil, fmt.Errorf("mcp: failed to start server %s: %w", command, err)
	}

	c := newClientFromPipes(stdin, stdout)
	c.cmd = cmd
	return c, nil
}

// newClientFromPipes は io.Pipe ベースのクライアントを作成する（テスト・インプロセス接続用）
func newClientFromPipes(stdin io.WriteCloser, stdout io.ReadCloser) *MCPClient {
	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	return &MCPClient{
		stdin:   stdin,
		stdout:  stdout,
		scanner: scanner,
		pending: make(map[int64]chan jsonRPCResponse),
	}
}

// Initialize は MCP プロトコルのハンドシェイクを行う。
// initialize リクエスト → レスポンス受信 → notifications/initialized 通知の順に実行する。
func (c *MCPClient) Initialize(ctx context.Context) error {
	if c.closed.Load() {
		return ErrClientClosed
	}

	result, err := c.sendRequest(ctx, "initialize", map[string]any{
		"protocolVersion": protocolVersion,
		"capabilities":    map[string]any{},
		"clientInfo": map[string]any{
			"name":    "mcpchat",
			"version": "0.1.0",
		},
	})
	if err != nil {
		return fmt.Errorf("mcp: initialize failed: %w", err)
	}
	_ = result // サーバーの capabilities は現時点では使わない

	// notifications/initialized 通知を送信（id なし）
	if err := c.sendNotification("notifications/initialized"); err != nil {
		return fmt.Errorf("mcp: failed to send initialized notification: %w", err)
	}

	return nil
}

// ListTools は MCP サーバーからツール一覧を取得する
func (c *MCPClient) ListTools(ctx context.Context) ([]ToolSchema, error) {
	var resp struct {
		Tools []ToolSchema `json:"tools"`
	}
	if err := c.call(ctx, "tools/list", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Tools, nil
}

// CallTool は MCP サーバーのツールを呼び出す
func (c *MCPClient) CallTool(ctx context.Context, name string, args map[string]any) (*CallResult, error) {
	params := map[string]any{
		"name": name,
	}
	if args != nil {
		params["arguments"] = args
	}

	var callResult CallResult
	if err := c.call(ctx, "tools/call", params, &callResult); err != nil {
		return nil, err
	}
	return &callResult, nil
}

// ListPrompts は MCP サーバーからプロンプト一覧を取得する
func (c *MCPClient) ListPrompts(ctx context.Context) ([]Prompt, error) {
	var resp struct {
		Prompts []Prompt `json:"prompts"`
	}
	if err := c.call(ctx, "prompts/list", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Prompts, nil
}

// GetPrompt は引数を埋め込んだプロンプトのメッセージ列を取得する
func (c *MCPClient) GetPrompt(ctx context.Context, name string, args map[string]string) ([]PromptMessage, error) {
	params := map[string]any{"name": name}
	if len(args) > 0 {
		params["arguments"] = args
	}

	var resp struct {
		Messages []PromptMessage `json:"messages"`
	}
	if err := c.call(ctx, "prompts/get", params, &resp); err != nil {
		return nil, err
	}
	return resp.Messages, nil
}

// ListResources は MCP サーバーからリソース一覧を取得する
func (c *MCPClient) ListResources(ctx context.Context) ([]Resource, error) {
	var resp struct {
		Resources []Resource `json:"resources"`
	}
	if err := c.call(ctx, "resources/list", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Resources, nil
}

// ReadResource はリソースを読み、最初のテキストコンテンツを返す。
// テキストを持つコンテンツが無ければ空文字列と ok=false を返す。
func (c *MCPClient) ReadResource(ctx context.Context, uri string) (text string, ok bool, err error) {
	var resp struct {
		Contents []ResourceContents `json:"contents"`
	}
	if err := c.call(ctx, "resources/read", map[string]any{"uri": uri}, &resp); err != nil {
		return "", false, err
	}
	if len(resp.Contents) == 0 || resp.Contents[0].Text == "" {
		return "", false, nil
	}
	return resp.Contents[0].Text, true, nil
}

// Close はクライアントを閉じ、サブプロセスを終了させる
func (c *MCPClient) Close() error {
	if c.closed.Swap(true) {
		return nil // 既に閉じている
	}

	// stdin を閉じてサーバーに EOF を通知
	_ = c.stdin.Close()
	_ = c.stdout.Close()

	// サブプロセスがある場合は待機（タイムアウト付き）
	if c.cmd != nil {
		done := make(chan error, 1)
		go func() {
			done <- c.cmd.Wait()
		}()

		select {
		case <-done:
		case <-time.After(5 * time.Second):
			// タイムアウトしたらプロセスを強制終了
			_ = c.cmd.Process.Kill()
			<-done
		}
	}

	return nil
}

// call は method を呼び出し、result を out にデコードする
func (c *MCPClient) call(ctx context.Context, method string, params, out any) error {
	if c.closed.Load() {
		return ErrClientClosed
	}

	result, err := c.sendRequest(ctx, method, params)
	if err != nil {
		return fmt.Errorf("mcp: %s failed: %w", method, err)
	}
	if err := json.Unmarshal(result, out); err != nil {
		return fmt.Errorf("mcp: failed to parse %s response: %w", method, err)
	}
	return nil
}

// sendRequest は JSON-RPC リクエストを送信し、レスポンスを待つ。
// ctx がキャンセルされると待機をやめ、遅れて届いたレスポンスは readLoop が読み捨てる。
func (c *MCPClient) sendRequest(ctx context.Context, method string, params any) (json.RawMessage, error) {
	c.readOnce.Do(func() { go c.readLoop() })

	id := c.nextID.Add(1)
	ch := make(chan jsonRPCResponse, 1)

	c.pendingMu.Lock()
	if c.readErr != nil {
		err := c.readErr
		c.pendingMu.Unlock()
		return nil, err
	}
	c.pending[id] = ch
	c.pendingMu.Unlock()
	defer func() {
		c.pendingMu.Lock()
		delete(c.pending, id)
		c.pendingMu.Unlock()
	}()

	req := jsonRPCRequest{
		JSONRPC: "2.0",
		ID:      id,
		Method:  method,
		Params:  params,
	}

	data, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}
	data = append(data, '\n')

	if err := c.write(data); err != nil {
		return nil, fmt.Errorf("failed to write request: %w", err)
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case resp, ok := <-ch:
		if !ok {
			c.pendingMu.Lock()
			err := c.readErr
			c.pendingMu.Unlock()
			return nil, err
		}
		if resp.Error != nil {
			return nil, fmt.Errorf("JSON-RPC error %d: %s", resp.Error.Code, resp.Error.Message)
		}
		return resp.Result, nil
	}
}

// readLoop は stdout を読み続け、レスポンスを id で待機中のリクエストへ渡す。
// 終了時は待機中の全リクエストのチャネルを閉じ、以降のリクエストは readErr で失敗する。
func (c *MCPClient) readLoop() {
	for c.scanner.Scan() {
		line := c.scanner.Bytes()
		// 非 JSON 行（MCP サーバーのバナー出力等）をスキップ
		if len(line) == 0 || line[0] != '{' {
			continue
		}
		var resp jsonRPCResponse
		if err := json.Unmarshal(line, &resp); err != nil {
			c.fail(fmt.Errorf("failed to parse response: %w", err))
			return
		}
		// サーバー発の通知は読み捨てる
		if resp.Method != "" {
			continue
		}
		c.pendingMu.Lock()
		if ch, ok := c.pending[resp.ID]; ok {
			delete(c.pending, resp.ID)
			ch <- resp
		}
		c.pendingMu.Unlock()
	}

	err := c.scanner.Err()
	if err == nil {
		err = fmt.Errorf("unexpected EOF")
	}
	c.fail(err)
}

// fail は読み取りの終了を記録し、待機中のリクエストを解放する
func (c *MCPClient) fail(err error) {
	c.pendingMu.Lock()
	defer c.pendingMu.Unlock()
	if c.readErr == nil {
		c.readErr = err
	}
	for id, ch := range c.pending {
		close(ch)
		delete(c.pending, id)
	}
}

// write は 1 メッセージを stdin に書き込む
func (c *MCPClient) write(data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_, err := c.stdin.Write(data)
	return err
}

// sendNotification は JSON-RPC 通知を送信する（id なし、レスポンス不要）
func (c *MCPClient) sendNotification(method string) error {
	msg := map[string]any{
		"jsonrpc": "2.0",
		"method":  method,
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}
	data = append(data, '\n')

	if err := c.write(data); err != nil {
		return fmt.Errorf("failed to write notification: %w", err)
	}

	return nil
}
