package docserver

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/yosida95/uritemplate/v3"
)

// リソース URI
const (
	ListURI          = "docs://documents"
	documentTemplate = "docs://documents/{doc_id}"
)

// documentURI は読み込み時に URI から doc_id を取り出す（パーセントエンコードを戻す）
var documentURI = uritemplate.MustNew(documentTemplate)

// Version はサーバーが名乗るバージョン
const Version = "v1.0.0"

type readDocumentInput struct {
	DocID string `json:"doc_id" jsonschema:"The ID of the document to read."`
}

type editDocumentInput struct {
	DocID  string `json:"doc_id" jsonschema:"The ID of the document to edit."`
	OldStr string `json:"old_str" jsonschema:"The old content to be replaced in the document."`
	NewStr string `json:"new_str" jsonschema:"The new content to replace the old content with."`
}

type searchDocumentsInput struct {
	Query      string `json:"query" jsonschema:"Space separated keywords. Every keyword must appear in a matching document."`
	MaxResults int    `json:"max_results,omitempty" jsonschema:"Maximum number of results (default 5)."`
}

// defaultSearchResults は max_results 省略時の件数
const defaultSearchResults = 5

// Server はドキュメント MCP サーバー
type Server struct {
	store  *Store
	server *mcp.Server
	logger *slog.Logger
}

// New は store を公開する MCP サーバーを組み立てる。logger が nil ならログを捨てる。
func New(store *Store, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	s := &Server{
		store:  store,
		server: mcp.NewServer(&mcp.Implementation{Name: "DocumentMCP", Version: Version}, nil),
		logger: logger,
	}
	s.registerTools()
	s.registerResources()
	s.registerPrompts()
	return s
}

// MCPServer は内部の mcp.Server を返す（インメモリ接続のテスト用）
func (s *Server) MCPServer() *mcp.Server { return s.server }

// Run は stdio 上でサーバーを実行する。クライアントが切断するか ctx がキャンセルされるまでブロックする。
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info("document server starting", "documents", len(s.store.IDs()))
	if err := s.server.Run(ctx, &mcp.StdioTransport{}); err != nil {
		return fmt.Errorf("docserver: %w", err)
	}
	return nil
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{Content: []mcp.Content{&mcp.TextContent{Text: text}}}
}

func (s *Server) registerTools() {
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "read_document",
		Description: "Reads the contents of a document given its string ID.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, in readDocumentInput) (*mcp.CallToolResult, any, error) {
		content, err := s.store.Get(in.DocID)
		if err != nil {
			s.logger.Warn("read_document failed", "doc_id", in.DocID, "error", err)
			return nil, nil, err
		}
		return textResult(content), nil, nil
	})

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "edit_document",
		Description: "Edits the contents of a document given its string ID and new content.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, in editDocumentInput) (*mcp.CallToolResult, any, error) {
		if err := s.store.Edit(in.DocID, in.OldStr, in.NewStr); err != nil {
			s.logger.Warn("edit_document failed", "doc_id", in.DocID, "error", err)
			return nil, nil, err
		}
		s.logger.Info("document edited", "doc_id", in.DocID)
		return &mcp.CallToolResult{Content: []mcp.Content{}}, nil, nil
	})

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "search_documents",
		Description: "Searches all documents for keywords and returns matching document IDs with a snippet.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, in searchDocumentsInput) (*mcp.CallToolResult, any, error) {
		limit := in.MaxResults
		if limit <= 0 {
			limit = defaultSearchResults
		}
		results := s.store.Search(in.Query, limit)
		if len(results) == 0 {
			return textResult("no documents matched"), nil, nil
		}
		data, err := json.Marshal(results)
		if err != nil {
			return nil, nil, fmt.Errorf("docserver: encode results: %w", err)
		}
		return textResult(string(data)), nil, nil
	})
}

func (s *Server) registerResources() {
	s.server.AddResource(&mcp.Resource{
		URI:         ListURI,
		Name:        "documents",
		Description: "Returns a list of all available document IDs",
		MIMEType:    "application/json",
	}, func(ctx context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
		data, err := json.Marshal(s.store.IDs())
		if err != nil {
			return nil, fmt.Errorf("docserver: encode ids: %w", err)
		}
		return &mcp.ReadResourceResult{Contents: []*mcp.ResourceContents{
			{URI: ListURI, MIMEType: "application/json", Text: string(data)},
		}}, nil
	})

	s.server.AddResourceTemplate(&mcp.ResourceTemplate{
		URITemplate: documentTemplate,
		Name:        "document",
		Description: "Returns the content of a specific document",
		MIMEType:    "text/plain",
	}, func(ctx context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
		uri := req.Params.URI
		docID := documentURI.Match(uri).Get("doc_id").String()
		content, err := s.store.Get(docID)
		if err != nil {
			return nil, mcp.ResourceNotFoundError(uri)
		}
		return &mcp.ReadResourceResult{Contents: []*mcp.ResourceContents{
			{URI: uri, MIMEType: "text/plain", Text: content},
		}}, nil
	})
}

// documentPrompt は doc_id を 1 つ取り、本文を埋め込んだユーザーメッセージを返すプロンプトを登録する
func (s *Server) documentPrompt(name, description, argDescription, instruction string) {
	s.server.AddPrompt(&mcp.Prompt{
		Name:        name,
		Description: description,
		Arguments: []*mcp.PromptArgument{
			{Name: "doc_id", Description: argDescription, Required: true},
		},
	}, func(ctx context.Context, req *mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
		docID := req.Params.Arguments["doc_id"]
		content, err := s.store.Get(docID)
		if err != nil {
			return nil, err
		}
		return &mcp.GetPromptResult{
			Description: description,
			Messages: []*mcp.PromptMessage{{
				Role:    "user",
				Content: &mcp.TextContent{Text: instruction + "\n\n" + content},
			}},
		}, nil
	})
}

func (s *Server) registerPrompts() {
	s.documentPrompt("rewrite_markdown",
		"Rewrites a document in markdown format",
		"The ID of the document to rewrite",
		"Please rewrite the following document in proper markdown format:")
	s.documentPrompt("summarize",
		"Summarizes a document",
		"The ID of the document to summarize",
		"Please provide a concise summary of the following document:")
}
