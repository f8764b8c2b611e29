package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "opsagent.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)

	assert.False(t, cfg.Tracing.Enabled)
	assert.Equal(t, "console", cfg.Tracing.Exporter)
	assert.Equal(t, "opsagent", cfg.Tracing.ServiceName)
	assert.False(t, cfg.Tracing.CaptureContent)
	assert.Equal(t, "gpt-4o-mini", cfg.LLM.Model)
	assert.Equal(t, ":8083", cfg.MCP.Addr)
	assert.Equal(t, "Runbook", cfg.Weaviate.Class)
	assert.Equal(t, 30*time.Second, cfg.Tools.CommandTimeout)
}

func TestLoadFileThenEnv(t *testing.T) {
	path := writeFile(t, `
tracing:
  enabled: true
  exporter: otlp
  endpoint: http://collector:4318
  capture_content: true
llm:
  model: gpt-4o
tools:
  allowed_commands: [df, uptime]
  command_timeout: 5s
mcp:
  servers:
    - name: k8s
      command: mcp-k8s
      args: ["--read-only"]
agent:
  name: oncall
`)
	t.Setenv("OPSAGENT_TRACING_EXPORTER", "otlp-grpc")
	t.Setenv("OPSAGENT_TRACING_SERVICE_NAME", "opsagent-staging")
	t.Setenv("OPENAI_API_KEY", "sk-test")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.True(t, cfg.Tracing.Enabled)
	assert.Equal(t, "otlp-grpc", cfg.Tracing.Exporter)
	assert.Equal(t, "http://collector:4318", cfg.Tracing.Endpoint)
	assert.True(t, cfg.Tracing.CaptureContent)
	assert.Equal(t, "opsagent-staging", cfg.Tracing.ServiceName)
	assert.Equal(t, "gpt-4o", cfg.LLM.Model)
	assert.Equal(t, "sk-test", cfg.LLM.APIKey)
	assert.Equal(t, []string{"df", "uptime"}, cfg.Tools.AllowedCommands)
	assert.Equal(t, 5*time.Second, cfg.Tools.CommandTimeout)
	require.Len(t, cfg.MCP.Servers, 1)
	assert.Equal(t, []string{"--read-only"}, cfg.MCP.Servers[0].Args)
	assert.Equal(t, "oncall", cfg.Agent.Name)
	assert.Equal(t, "Runbook", cfg.Weaviate.Class)

	tc := cfg.TracingConfig()
	assert.True(t, tc.Enabled)
	assert.True(t, tc.CaptureContent)
	assert.Equal(t, "otlp-grpc", tc.Exporter)
}

func TestPrefixedAPIKeyWins(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("OPENAI_API_KEY", "sk-fallback")
	t.Setenv("OPSAGENT_LLM_OPENAI_API_KEY", "sk-prefixed")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "sk-prefixed", cfg.LLM.APIKey)
}

func TestLoadRejectsBadInput(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = Load(t.TempDir())
	assert.Error(t, err)

	_, err = Load(writeFile(t, "tracing: [not, a, map]"))
	assert.Error(t, err)

	t.Setenv("OPSAGENT_TRACING_ENABLED", "maybe")
	_, err = Load(writeFile(t, "log:\n  level: debug\n"))
	assert.Error(t, err)
}

func TestSystemPrompt(t *testing.T) {
	agent := AgentConfig{
		Role:      "{team} on-call engineer",
		Goal:      "Explain {question}",
		Backstory: "You support the {team} team.",
	}

	prompt := agent.SystemPrompt(map[string]string{
		"team":     "payments",
		"question": "the 5xx spike",
	})

	assert.Contains(t, prompt, "# Role\npayments on-call engineer")
	assert.Contains(t, prompt, "# Goal\nExplain the 5xx spike")
	assert.Contains(t, prompt, "# Backstory\nYou support the payments team.")
}
