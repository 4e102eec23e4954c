package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"slices"
	"strings"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/0x6d61/mcpchat/internal/brain"
	"github.com/0x6d61/mcpchat/internal/chat"
	"github.com/0x6d61/mcpchat/internal/config"
	"github.com/0x6d61/mcpchat/internal/docserver"
	"github.com/0x6d61/mcpchat/internal/mcp"
	"github.com/0x6d61/mcpchat/internal/transcript"
	"github.com/0x6d61/mcpchat/internal/tui"
)

func main() {
	var (
		provider   = flag.String("provider", "", "LLM プロバイダー: gemini, anthropic, openai, ollama（省略時は設定ファイル）")
		model      = flag.String("model", "", "モデル名（省略時はプロバイダーのデフォルト）")
		configPath = flag.String("config", "config/config.yaml", "設定ファイル")
		mcpConfig  = flag.String("mcp-config", "", "外部 MCP サーバー設定（省略時は設定ファイルの mcp_config）")
		transcr    = flag.String("transcript", "", "会話を保存する SQLite ファイル（省略時は設定ファイルの transcript）")
		docsDir    = flag.String("docs-dir", "", "ドキュメントサーバーに追加で読み込むディレクトリ（.md / .txt）")
		resume     = flag.String("resume", "", "transcript に保存したセッション ID から会話を再開する")
		sessions   = flag.Bool("sessions", false, "transcript に保存したセッションを一覧して終了する")
		serveDocs  = flag.Bool("serve-docs", false, "ドキュメント MCP サーバーとして stdio で動作する")
		listModels = flag.Bool("list-models", false, "generateContent に対応した Gemini モデルを一覧して終了する")
	)
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, `◆ mcpchat: chat with an LLM over MCP tools and documents

Usage:
  mcpchat [flags] ["server command"...]

Each extra argument is started as an additional MCP server, e.g. "uv run my_server.py".

Flags:
`)
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, `
Environment:
  GOOGLE_API_KEY        Gemini API キー（GEMINI_API_KEY も可）
  GEMINI_MODEL          Gemini モデル名 (default: %s)
  ANTHROPIC_API_KEY     Anthropic API キー
  ANTHROPIC_AUTH_TOKEN  Anthropic OAuth トークン
  OPENAI_API_KEY        OpenAI API キー
  OLLAMA_BASE_URL       Ollama サーバー URL (default: %s)

Chat:
  @plan.md                 ドキュメントを会話に添付
  /summarize plan.md       ドキュメントサーバーのプロンプトを実行
  /clear /export /tools    組み込みコマンド（/help で一覧）
`, brain.DefaultGeminiModel, brain.DefaultOllamaBaseURL)
	}
	flag.Parse()

	// --- Config ---
	if err := config.LoadEnv(".env"); err != nil {
		fmt.Fprintln(os.Stderr, "環境変数読み込みエラー:", err)
		os.Exit(1)
	}
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "設定エラー:", err)
		os.Exit(1)
	}
	if *provider != "" {
		cfg.Provider = *provider
	}
	if *model != "" {
		cfg.Model = *model
	}
	if *mcpConfig != "" {
		cfg.MCPConfig = *mcpConfig
	}
	if *transcr != "" {
		cfg.Transcript = *transcr
	}
	if *docsDir != "" {
		cfg.DocsDir = *docsDir
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, "設定エラー:", err)
		os.Exit(1)
	}

	// --- Logger ---
	logger, closeLog, err := openLogger(cfg.Log)
	if err != nil {
		fmt.Fprintln(os.Stderr, "ログ初期化エラー:", err)
		os.Exit(1)
	}
	defer closeLog()

	// グレースフルシャットダウン
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// --- Document server mode ---
	if *serveDocs {
		if err := serveDocuments(ctx, cfg.DocsDir, logger.With("component", "docserver")); err != nil {
			logger.Error("document server stopped", "error", err)
			os.Exit(1)
		}
		return
	}

	// --- Transcript ---
	var store *transcript.Store
	if cfg.Transcript != "" {
		store, err = transcript.Open(cfg.Transcript)
		if err != nil {
			fmt.Fprintln(os.Stderr, "トランスクリプトエラー:", err)
			os.Exit(1)
		}
		defer store.Close()
	}
	if *sessions {
		if store == nil {
			fmt.Fprintln(os.Stderr, "-sessions には -transcript（または設定の transcript）が必要です")
			os.Exit(1)
		}
		if err := printSessions(ctx, store); err != nil {
			fmt.Fprintln(os.Stderr, "トランスクリプトエラー:", err)
			os.Exit(1)
		}
		return
	}

	// --- Brain ---
	brainCfg, err := brain.LoadConfig(brain.ConfigHint{
		Provider: brain.Provider(cfg.Provider),
		Model:    cfg.Model,
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, "Brain 設定エラー:", err)
		os.Exit(1)
	}
	brainCfg.UniqueToolCallIDs = cfg.UniqueCallIDs

	if *listModels {
		if err := printGeminiModels(ctx, brainCfg); err != nil {
			fmt.Fprintln(os.Stderr, "モデル一覧エラー:", err)
			os.Exit(1)
		}
		return
	}

	br, err := brain.New(brainCfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Brain 初期化エラー:", err)
		os.Exit(1)
	}
	logger.Info("brain ready", "provider", br.Provider(), "model", br.Model())

	// --- MCP ---
	manager, err := newManager(cfg, logger, flag.Args())
	if err != nil {
		fmt.Fprintln(os.Stderr, "MCP 設定エラー:", err)
		os.Exit(1)
	}
	defer manager.Close()
	if err := manager.StartAll(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "MCP 起動エラー:", err)
		os.Exit(1)
	}

	// --- Chat session ---
	opts := chat.Options{
		System:        cfg.SystemPrompt,
		Temperature:   cfg.Temperature,
		MaxToolRounds: cfg.MaxToolRounds,
		Logger:        logger.With("component", "chat"),
	}
	if store != nil {
		sessionID := *resume
		if sessionID == "" {
			sessionID = transcript.NewSessionID()
		} else {
			opts.History, err = store.Load(ctx, sessionID)
			if err != nil {
				fmt.Fprintln(os.Stderr, "トランスクリプトエラー:", err)
				os.Exit(1)
			}
		}
		opts.Recorder = store.Recorder(sessionID)
		logger.Info("recording transcript", "path", cfg.Transcript, "session", sessionID)
	} else if *resume != "" {
		fmt.Fprintln(os.Stderr, "-resume には -transcript（または設定の transcript）が必要です")
		os.Exit(1)
	}

	events := make(chan chat.Event, 512)
	opts.Events = events
	session := chat.New(br, manager, opts)

	// --- TUI ---
	m := tui.New(ctx, session, events)
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil {
		fmt.Fprintln(os.Stderr, "TUI エラー:", err)
		os.Exit(1)
	}
}

// openLogger はログファイルに書き込む slog.Logger を返す。
// TUI が端末を占有するため標準エラーには書かない。
func openLogger(cfg config.LogConfig) (*slog.Logger, func(), error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		return nil, nil, err
	}
	if dir := filepath.Dir(cfg.File); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, nil, err
		}
	}
	f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, err
	}
	logger := slog.New(slog.NewTextHandler(f, &slog.HandlerOptions{Level: level}))
	return logger, func() { _ = f.Close() }, nil
}

// newManager は外部サーバー設定・ドキュメントサーバー・引数で指定されたサーバーを登録する。
func newManager(cfg *config.AppConfig, logger *slog.Logger, extra []string) (*mcp.MCPManager, error) {
	manager, err := mcp.NewManager(cfg.MCPConfig,
		mcp.WithLogger(logger.With("component", "mcp")),
		mcp.WithTruncate(mcp.TruncateConfig{
			HeadLines: cfg.Truncate.HeadLines,
			TailLines: cfg.Truncate.TailLines,
		}),
	)
	if err != nil {
		return nil, err
	}

	// ドキュメントサーバーは自分自身を -serve-docs で起動する
	self, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("locate executable: %w", err)
	}
	docsArgs := []string{"-serve-docs", "-config", flagValue("config")}
	if cfg.DocsDir != "" {
		docsArgs = append(docsArgs, "-docs-dir", cfg.DocsDir)
	}
	if err := manager.AddServer(mcp.ServerConfig{
		Name:    mcp.DocumentServerName,
		Command: self,
		Args:    docsArgs,
	}); err != nil {
		return nil, err
	}

	for i, arg := range extra {
		fields := strings.Fields(arg)
		if len(fields) == 0 {
			continue
		}
		if err := manager.AddServer(mcp.ServerConfig{
			Name:    fmt.Sprintf("arg%d-%s", i+1, filepath.Base(fields[len(fields)-1])),
			Command: fields[0],
			Args:    fields[1:],
		}); err != nil {
			return nil, err
		}
	}
	return manager, nil
}

// maxDocumentBytes は -docs-dir から読み込むファイルサイズの上限
const maxDocumentBytes = 1 << 20

// serveDocuments はドキュメントサーバーを stdio で実行する。
// 組み込みのドキュメントに dir 以下のファイルを加えて公開する。
func serveDocuments(ctx context.Context, dir string, logger *slog.Logger) error {
	docs := slices.Clone(docserver.SeedDocuments)
	if dir != "" {
		loaded, err := docserver.LoadDir(dir, maxDocumentBytes)
		if err != nil {
			return err
		}
		logger.Info("loaded documents", "dir", dir, "count", len(loaded))
		docs = append(docs, loaded...)
	}
	return docserver.New(docserver.NewStore(docs), logger).Run(ctx)
}

func flagValue(name string) string {
	if f := flag.Lookup(name); f != nil {
		return f.Value.String()
	}
	return ""
}

func printGeminiModels(ctx context.Context, cfg brain.Config) error {
	if cfg.Provider != brain.ProviderGemini {
		return fmt.Errorf("-list-models requires -provider gemini (got %s)", cfg.Provider)
	}
	models, err := brain.ListGeminiModels(ctx, cfg)
	if err != nil {
		return err
	}
	for _, m := range models {
		fmt.Printf("%s\t%s\n", strings.TrimPrefix(m.Name, "models/"), m.DisplayName)
	}
	return nil
}

func printSessions(ctx context.Context, store *transcript.Store) error {
	list, err := store.Sessions(ctx)
	if err != nil {
		return err
	}
	for _, s := range list {
		fmt.Printf("%s\t%s\t%d messages\n", s.ID, s.StartedAt.Local().Format("2006-01-02 15:04"), s.Messages)
	}
	return nil
}
