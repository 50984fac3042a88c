// Package config loads the layered runtime configuration: built-in
// defaults, merged with enterprise-wide, user-home,
// project, and project-local override files (lowest to highest
// precedence), topped with RUNTIME_-prefixed environment variables.
package config

import "time"

// Config is the root configuration object for one agentcored process.
type Config struct {
	Agent       AgentConfig       `json:"agent" yaml:"agent"`
	Providers   ProvidersConfig   `json:"providers" yaml:"providers"`
	Tools       ToolsConfig       `json:"tools" yaml:"tools"`
	Permissions PermissionsConfig `json:"permissions" yaml:"permissions"`
	Hooks       HooksConfig       `json:"hooks" yaml:"hooks"`
	MCP         MCPConfig         `json:"mcp" yaml:"mcp"`
	Context     ContextConfig     `json:"context" yaml:"context"`
	Logging     LoggingConfig     `json:"logging" yaml:"logging"`
}

// AgentConfig holds the defaults new AgentTask configurations inherit
// when a field is left unset.
type AgentConfig struct {
	DefaultModel   string        `json:"default_model" yaml:"default_model"`
	TokenLimit     int           `json:"token_limit" yaml:"token_limit"`
	TimeLimit      time.Duration `json:"time_limit" yaml:"time_limit"`
	MaxIterations  int           `json:"max_iterations" yaml:"max_iterations"`
	IterationTimeout time.Duration `json:"iteration_timeout" yaml:"iteration_timeout"`
}

// ProvidersConfig selects and configures the LLM backends an Executor can
// be built against.
type ProvidersConfig struct {
	Default   string                 `json:"default" yaml:"default"`
	Anthropic AnthropicProviderConfig `json:"anthropic" yaml:"anthropic"`
	OpenAI    OpenAIProviderConfig    `json:"openai" yaml:"openai"`
	Bedrock   BedrockProviderConfig   `json:"bedrock" yaml:"bedrock"`
}

type AnthropicProviderConfig struct {
	APIKey       string `json:"api_key" yaml:"api_key"`
	BaseURL      string `json:"base_url,omitempty" yaml:"base_url,omitempty"`
	DefaultModel string `json:"default_model" yaml:"default_model"`
	MaxRetries   int    `json:"max_retries" yaml:"max_retries"`
}

type OpenAIProviderConfig struct {
	APIKey       string `json:"api_key" yaml:"api_key"`
	BaseURL      string `json:"base_url,omitempty" yaml:"base_url,omitempty"`
	DefaultModel string `json:"default_model" yaml:"default_model"`
	MaxRetries   int    `json:"max_retries" yaml:"max_retries"`
}

type BedrockProviderConfig struct {
	Region       string `json:"region" yaml:"region"`
	DefaultModel string `json:"default_model" yaml:"default_model"`
	MaxRetries   int    `json:"max_retries" yaml:"max_retries"`
}

// ToolsConfig configures tool dispatch and the shell manager.
type ToolsConfig struct {
	Concurrency       int           `json:"concurrency" yaml:"concurrency"`
	PerToolTimeout    time.Duration `json:"per_tool_timeout" yaml:"per_tool_timeout"`
	ShellSessionTTL   time.Duration `json:"shell_session_ttl" yaml:"shell_session_ttl"`
	WebFetchAllowlist []string      `json:"web_fetch_allowlist,omitempty" yaml:"web_fetch_allowlist,omitempty"`
	WorkingDir        string        `json:"working_dir,omitempty" yaml:"working_dir,omitempty"`
}

// PermissionsConfig configures the default permission engine.
type PermissionsConfig struct {
	DefaultLevel string `json:"default_level" yaml:"default_level"`
	RulesFile    string `json:"rules_file,omitempty" yaml:"rules_file,omitempty"`
	Profile      string `json:"profile,omitempty" yaml:"profile,omitempty"`
}

// HooksConfig points at the hook definition files merged at load time.
type HooksConfig struct {
	GlobalFile  string `json:"global_file,omitempty" yaml:"global_file,omitempty"`
	ProjectFile string `json:"project_file,omitempty" yaml:"project_file,omitempty"`
}

// MCPConfig lists the MCP servers the manager should know about.
type MCPConfig struct {
	Servers []MCPServerEntry `json:"servers,omitempty" yaml:"servers,omitempty"`
}

type MCPServerEntry struct {
	ID         string            `json:"id" yaml:"id"`
	Transport  string            `json:"transport" yaml:"transport"`
	Command    string            `json:"command,omitempty" yaml:"command,omitempty"`
	Args       []string          `json:"args,omitempty" yaml:"args,omitempty"`
	Env        map[string]string `json:"env,omitempty" yaml:"env,omitempty"`
	URL        string            `json:"url,omitempty" yaml:"url,omitempty"`
	AutoStart  bool              `json:"auto_start,omitempty" yaml:"auto_start,omitempty"`
}

// ContextConfig configures the context engine's default budget strategy.
type ContextConfig struct {
	Strategy          string `json:"strategy" yaml:"strategy"`
	PreserveLast      int    `json:"preserve_last" yaml:"preserve_last"`
	ToolResultCapChars int   `json:"tool_result_cap_chars" yaml:"tool_result_cap_chars"`
}

// LoggingConfig configures the process-wide Logger.
type LoggingConfig struct {
	Level  string `json:"level" yaml:"level"`
	Format string `json:"format" yaml:"format"`
}

// Defaults returns the built-in configuration, the lowest-precedence
// layer every other source is merged on top of.
func Defaults() *Config {
	return &Config{
		Agent: AgentConfig{
			DefaultModel:     "claude-sonnet-4-20250514",
			TokenLimit:       200_000,
			TimeLimit:        10 * time.Minute,
			MaxIterations:    50,
			IterationTimeout: 2 * time.Minute,
		},
		Providers: ProvidersConfig{
			Default: "anthropic",
			Anthropic: AnthropicProviderConfig{
				DefaultModel: "claude-sonnet-4-20250514",
				MaxRetries:   3,
			},
			OpenAI: OpenAIProviderConfig{
				DefaultModel: "gpt-4o",
				MaxRetries:   3,
			},
			Bedrock: BedrockProviderConfig{
				Region:       "us-east-1",
				DefaultModel: "anthropic.claude-3-5-sonnet-20241022-v2:0",
				MaxRetries:   3,
			},
		},
		Tools: ToolsConfig{
			Concurrency:     4,
			PerToolTimeout:  30 * time.Second,
			ShellSessionTTL: 30 * time.Minute,
		},
		Permissions: PermissionsConfig{
			DefaultLevel: "ask",
		},
		Context: ContextConfig{
			Strategy:           "composite",
			PreserveLast:       4,
			ToolResultCapChars: 20_000,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}
