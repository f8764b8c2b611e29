package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"github.com/run-bigpig/opsagent/pkg/tracing"
)

// EnvPrefix prefixes every environment override, e.g. OPSAGENT_TRACING_ENABLED
const EnvPrefix = "opsagent"

// DefaultFile is read when no file is given and it exists in the working
// directory
const DefaultFile = "opsagent.yaml"

// Config is the whole process configuration. Values come from defaults, then
// the YAML file, then environment variables.
type Config struct {
	Tracing  TracingConfig  `yaml:"tracing" split_words:"true"`
	Log      LogConfig      `yaml:"log"`
	LLM      LLMConfig      `yaml:"llm"`
	Weaviate WeaviateConfig `yaml:"weaviate"`
	MCP      MCPConfig      `yaml:"mcp"`
	Tools    ToolsConfig    `yaml:"tools"`
	Agent    AgentConfig    `yaml:"agent"`
}

// TracingConfig mirrors tracing.Config
type TracingConfig struct {
	Enabled        bool   `yaml:"enabled"`
	Exporter       string `yaml:"exporter"`
	Endpoint       string `yaml:"endpoint"`
	Insecure       bool   `yaml:"insecure"`
	CaptureContent bool   `yaml:"capture_content" split_words:"true"`
	ServiceName    string `yaml:"service_name" split_words:"true"`
}

// LogConfig configures the zerolog logger
type LogConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// LLMConfig configures the OpenAI client
type LLMConfig struct {
	Model       string  `yaml:"model"`
	APIKey      string  `yaml:"api_key" envconfig:"OPENAI_API_KEY"`
	BaseURL     string  `yaml:"base_url" split_words:"true"`
	Temperature float64 `yaml:"temperature"`
}

// WeaviateConfig locates the runbook index
type WeaviateConfig struct {
	Host   string `yaml:"host"`
	Scheme string `yaml:"scheme"`
	APIKey string `yaml:"api_key" split_words:"true"`
	Class  string `yaml:"class"`
}

// MCPConfig configures the MCP server and the MCP servers used as tool
// sources
type MCPConfig struct {
	Addr    string            `yaml:"addr"`
	Servers []MCPServerConfig `yaml:"servers" ignored:"true"`
}

// MCPServerConfig is one upstream MCP server. Command starts a stdio server;
// URL points at an HTTP one.
type MCPServerConfig struct {
	Name    string   `yaml:"name"`
	Command string   `yaml:"command"`
	Args    []string `yaml:"args"`
	URL     string   `yaml:"url"`
}

// ToolsConfig configures the built-in tools
type ToolsConfig struct {
	AllowedCommands []string      `yaml:"allowed_commands" split_words:"true"`
	CommandTimeout  time.Duration `yaml:"command_timeout" split_words:"true"`
	MaxIterations   int           `yaml:"max_iterations" split_words:"true"`
}

// AgentConfig is the agent persona rendered into its system prompt
type AgentConfig struct {
	Name      string `yaml:"name"`
	Role      string `yaml:"role"`
	Goal      string `yaml:"goal"`
	Backstory string `yaml:"backstory"`
}

// Default returns the configuration used when nothing is set
func Default() *Config {
	return &Config{
		Tracing: TracingConfig{
			Exporter:    tracing.ExporterConsole,
			ServiceName: tracing.DefaultServiceName,
		},
		Log: LogConfig{
			Level: "info",
		},
		LLM: LLMConfig{
			Model: "gpt-4o-mini",
		},
		Weaviate: WeaviateConfig{
			Scheme: "http",
			Class:  "Runbook",
		},
		MCP: MCPConfig{
			Addr: ":8083",
		},
		Tools: ToolsConfig{
			AllowedCommands: []string{"df", "du", "free", "uptime", "ps", "systemctl", "journalctl", "kubectl"},
			CommandTimeout:  30 * time.Second,
			MaxIterations:   8,
		},
		Agent: AgentConfig{
			Name:      "sre",
			Role:      "Site reliability engineer on call",
			Goal:      "Find the root cause of {question} using the available tools and answer concisely",
			Backstory: "You investigate production incidents by running read-only diagnostics and consulting runbooks before drawing conclusions.",
		},
	}
}

// Load builds the configuration. An empty path falls back to DefaultFile
// when it exists; an explicit path must exist.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		if _, err := os.Stat(DefaultFile); err == nil {
			path = DefaultFile
		}
	}
	if path != "" {
		if err := loadFile(path, cfg); err != nil {
			return nil, err
		}
	}

	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, fmt.Errorf("failed to read environment: %w", err)
	}

	return cfg, nil
}

func loadFile(path string, cfg *Config) error {
	if !isValidFilePath(path) {
		return fmt.Errorf("invalid config file path: %s", path)
	}

	data, err := os.ReadFile(path) // #nosec G304 - Path is validated with isValidFilePath() before use
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to unmarshal config file: %w", err)
	}
	return nil
}

// isValidFilePath rejects traversal, kernel pseudo filesystems and anything
// that is not a regular file
func isValidFilePath(filePath string) bool {
	if filePath == "" {
		return false
	}

	cleanPath := filepath.Clean(filePath)
	if strings.Contains(cleanPath, "..") {
		return false
	}

	absPath, err := filepath.Abs(cleanPath)
	if err != nil {
		return false
	}
	if strings.HasPrefix(absPath, "/proc") ||
		strings.HasPrefix(absPath, "/sys") ||
		strings.HasPrefix(absPath, "/dev") {
		return false
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return false
	}
	return fileInfo.Mode().IsRegular()
}

// TracingConfig converts to the tracing package's startup config
func (c *Config) TracingConfig() tracing.Config {
	return tracing.Config{
		Enabled:        c.Tracing.Enabled,
		Exporter:       c.Tracing.Exporter,
		Endpoint:       c.Tracing.Endpoint,
		Insecure:       c.Tracing.Insecure,
		CaptureContent: c.Tracing.CaptureContent,
		ServiceName:    c.Tracing.ServiceName,
	}
}

// SystemPrompt renders the persona, replacing {key} placeholders with
// variables
func (a AgentConfig) SystemPrompt(variables map[string]string) string {
	role := a.Role
	goal := a.Goal
	backstory := a.Backstory

	for key, value := range variables {
		placeholder := fmt.Sprintf("{%s}", key)
		role = strings.ReplaceAll(role, placeholder, value)
		goal = strings.ReplaceAll(goal, placeholder, value)
		backstory = strings.ReplaceAll(backstory, placeholder, value)
	}

	return fmt.Sprintf("# Role\n%s\n\n# Goal\n%s\n\n# Backstory\n%s", role, goal, backstory)
}
