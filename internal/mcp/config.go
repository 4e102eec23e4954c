package mcp

import (
	"errors"
	"fmt"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"
)

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// ErrInvalidServerConfig は mcp.yaml のサーバー定義が不正なときに返る。
var ErrInvalidServerConfig = errors.New("mcp: invalid server config")

// LoadConfig は mcp.yaml を読み込んで検証する。
// ファイルが存在しない場合は nil, nil を返す。
// command / args / env の ${VAR} はホスト環境変数で展開する。
func LoadConfig(path string) (*MCPConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("mcp: failed to read config %s: %w", path, err)
	}

	var cfg MCPConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("mcp: failed to parse config %s: %w", path, err)
	}

	for i := range cfg.Servers {
		s := &cfg.Servers[i]
		s.Command = expandEnv(s.Command)
		for j, a := range s.Args {
			s.Args[j] = expandEnv(a)
		}
		for k, v := range s.Env {
			s.Env[k] = expandEnv(v)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &cfg, nil
}

// Validate はサーバー名の重複・予約名・空コマンドを検出する。
// ドキュメントサーバー名は組み込みサーバーが使うため予約済み。
func (c *MCPConfig) Validate() error {
	seen := make(map[string]bool, len(c.Servers))
	for i, s := range c.Servers {
		switch {
		case s.Name == "":
			return fmt.Errorf("%w: servers[%d] has no name", ErrInvalidServerConfig, i)
		case s.Name == DocumentServerName:
			return fmt.Errorf("%w: server name %q is reserved", ErrInvalidServerConfig, s.Name)
		case seen[s.Name]:
			return fmt.Errorf("%w: duplicate server name %q", ErrInvalidServerConfig, s.Name)
		case s.Command == "" && !s.Disabled:
			return fmt.Errorf("%w: server %q has no command", ErrInvalidServerConfig, s.Name)
		}
		seen[s.Name] = true
	}
	return nil
}

func expandEnv(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		return os.Getenv(match[2 : len(match)-1])
	})
}
