// Package config は mcpchat の設定（config/config.yaml と .env）を読み込む。
package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// ErrInvalidConfig は設定値の検証に失敗したときに返る。
var ErrInvalidConfig = errors.New("config: invalid configuration")

// TruncateConfig はツール出力の切り捨て設定
type TruncateConfig struct {
	HeadLines int `yaml:"head_lines"`
	TailLines int `yaml:"tail_lines"`
}

// LogConfig はログ出力の設定
type LogConfig struct {
	// File はログファイルのパス。TUI が端末を占有するため標準出力には書かない。
	File string `yaml:"file"`
	// Level は debug / info / warn / error のいずれか
	Level string `yaml:"level"`
}

// AppConfig は config/config.yaml の統合設定構造
type AppConfig struct {
	Provider      string         `yaml:"provider"`
	Model         string         `yaml:"model"`
	Temperature   float64        `yaml:"temperature"`
	SystemPrompt  string         `yaml:"system_prompt"`
	MaxToolRounds int            `yaml:"max_tool_rounds"`
	MCPConfig     string         `yaml:"mcp_config"`
	Transcript    string         `yaml:"transcript"`
	DocsDir       string         `yaml:"docs_dir"`
	UniqueCallIDs bool           `yaml:"unique_tool_call_ids"`
	Truncate      TruncateConfig `yaml:"truncate"`
	Log           LogConfig      `yaml:"log"`

	// temperatureSet は YAML で temperature が明示されたかどうか（0.0 を有効値として扱うため）
	temperatureSet bool
}

// Default はファイルが無い場合の設定を返す
func Default() *AppConfig {
	cfg := &AppConfig{}
	cfg.applyDefaults()
	return cfg
}

// applyDefaults はゼロ値のフィールドにデフォルト値を適用する
func (c *AppConfig) applyDefaults() {
	if c.Provider == "" {
		c.Provider = "gemini"
	}
	if !c.temperatureSet && c.Temperature == 0 {
		c.Temperature = 1.0
	}
	if c.MaxToolRounds == 0 {
		c.MaxToolRounds = 10
	}
	if c.MCPConfig == "" {
		c.MCPConfig = "config/mcp.yaml"
	}
	if c.Truncate.HeadLines == 0 && c.Truncate.TailLines == 0 {
		c.Truncate = TruncateConfig{HeadLines: 200, TailLines: 50}
	}
	if c.Log.File == "" {
		c.Log.File = "mcpchat.log"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
}

// Validate は設定値の整合性を確認する
func (c *AppConfig) Validate() error {
	switch c.Provider {
	case "gemini", "anthropic", "openai", "ollama":
	default:
		return fmt.Errorf("%w: unknown provider %q", ErrInvalidConfig, c.Provider)
	}
	if c.Temperature < 0 || c.Temperature > 2 {
		return fmt.Errorf("%w: temperature %.2f out of range [0, 2]", ErrInvalidConfig, c.Temperature)
	}
	if c.MaxToolRounds < 1 {
		return fmt.Errorf("%w: max_tool_rounds must be positive, got %d", ErrInvalidConfig, c.MaxToolRounds)
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("%w: unknown log level %q", ErrInvalidConfig, c.Log.Level)
	}
	return nil
}

// Load は config/config.yaml を読み込む。
// ${VAR} 環境変数を展開する。
// ファイルが存在しない場合はデフォルトの AppConfig を返す。
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Default(), nil
		}
		return nil, fmt.Errorf("config: failed to read %s: %w", path, err)
	}

	var cfg AppConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: failed to parse %s: %w", path, err)
	}

	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err == nil {
		_, cfg.temperatureSet = raw["temperature"]
	}

	// パス系・プロンプトの ${VAR} を展開
	cfg.SystemPrompt = expandEnvString(cfg.SystemPrompt)
	cfg.MCPConfig = expandEnvString(cfg.MCPConfig)
	cfg.Transcript = expandEnvString(cfg.Transcript)
	cfg.DocsDir = expandEnvString(cfg.DocsDir)
	cfg.Log.File = expandEnvString(cfg.Log.File)

	cfg.applyDefaults()

	return &cfg, nil
}

// LoadEnv は .env ファイルを読み込んで環境変数に設定する。
// 既に設定済みの環境変数は上書きしない。ファイルが無い場合は何もしない。
func LoadEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	var existing []string
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			existing = append(existing, p)
		}
	}
	if len(existing) == 0 {
		return nil
	}
	if err := godotenv.Load(existing...); err != nil {
		return fmt.Errorf("config: failed to load env: %w", err)
	}
	return nil
}

// expandEnvString は文字列内の ${VAR} をホスト環境変数で展開する
func expandEnvString(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		varName := match[2 : len(match)-1]
		return os.Getenv(varName)
	})
}
