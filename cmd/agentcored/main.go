// Command agentcored wires the coordination core together and runs one
// agent task from the command line. The interactive REPL lives in a
// separate binary; this entrypoint exists so the runtime can be
// exercised and scripted headlessly.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/corefield/agentcore/internal/agent"
	"github.com/corefield/agentcore/internal/agent/providers"
	"github.com/corefield/agentcore/internal/config"
	"github.com/corefield/agentcore/internal/hooks"
	"github.com/corefield/agentcore/internal/mcp"
	"github.com/corefield/agentcore/internal/observability"
	"github.com/corefield/agentcore/internal/policy"
	"github.com/corefield/agentcore/internal/shell"
	"github.com/corefield/agentcore/internal/tools"
	"github.com/corefield/agentcore/internal/tools/builtin"
	"github.com/corefield/agentcore/internal/tools/mcpbridge"
	"github.com/corefield/agentcore/pkg/models"
)

func main() {
	var (
		prompt    = flag.String("p", "", "task prompt (reads stdin when empty)")
		agentType = flag.String("type", "general", "agent type: explore, plan, code_review, general")
		workDir   = flag.String("dir", "", "workspace directory (default: cwd)")
		yes       = flag.Bool("yes", false, "auto-approve ask-level tool calls instead of denying")
		stream    = flag.Bool("stream", false, "print streaming events instead of only the final result")
	)
	flag.Parse()

	if err := run(*prompt, *agentType, *workDir, *yes, *stream); err != nil {
		fmt.Fprintln(os.Stderr, "agentcored:", err)
		os.Exit(1)
	}
}

func run(prompt, agentType, workDir string, autoApprove, streaming bool) error {
	home, _ := os.UserHomeDir()
	cfg, err := config.Load(config.Sources{
		Enterprise:   "/etc/agentcore/config.yaml",
		UserHome:     filepath.Join(home, ".config", "agentcore", "config.yaml"),
		Project:      ".agentcore/config.yaml",
		ProjectLocal: ".agentcore/config.local.yaml",
	}, os.Environ())
	if err != nil {
		return err
	}

	logger := observability.NewLogger(observability.LogConfig{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: os.Stderr,
	})
	ctx := context.Background()

	if workDir == "" {
		workDir = cfg.Tools.WorkingDir
	}
	if workDir == "" {
		workDir, _ = os.Getwd()
	}

	if prompt == "" {
		data, err := io.ReadAll(os.Stdin)
		if err != nil || len(data) == 0 {
			return fmt.Errorf("no prompt: pass -p or pipe one on stdin")
		}
		prompt = string(data)
	}

	// Permission engine: profile defaults, then persisted rule files.
	rules, defaultLevel, err := policy.LoadRules(
		filepath.Join(home, ".config", "agentcore", "permissions.json"),
		".agentcore/permissions.json",
	)
	if err != nil {
		return err
	}
	if defaultLevel == "" {
		defaultLevel = policy.Level(cfg.Permissions.DefaultLevel)
	}
	profile := policy.Profile(cfg.Permissions.Profile)
	if profile == "" {
		profile = policy.ProfileCoding
	}
	engine, err := policy.NewEngineForProfile(profile, rules, defaultLevel)
	if err != nil {
		return err
	}

	// Hook bus: bundled handlers first, then persisted subprocess hooks
	// at global and project scope.
	hookBus := hooks.NewRegistry(logger.Slog(ctx))
	hooks.RegisterBundled(hookBus, logger.Slog(ctx))
	subprocessHooks, err := hooks.LoadAll(
		cfg.Hooks.GlobalFile,
		cfg.Hooks.ProjectFile,
		filepath.Join(home, ".config", "agentcore", "hooks.json"),
		".agentcore/hooks.json",
	)
	if err != nil {
		return err
	}
	for _, h := range subprocessHooks {
		hookBus.AddSubprocessHook(h)
	}

	// Shell manager and tool registry.
	shellManager := shell.Default()
	shellManager.Registry().SetSessionTTL(cfg.Tools.ShellSessionTTL)
	defer shellManager.KillAll()

	registry := tools.NewRegistry()
	if err := builtin.Register(registry, builtin.Options{
		ShellManager:  shellManager,
		WebAllowHosts: cfg.Tools.WebFetchAllowlist,
	}); err != nil {
		return err
	}

	// MCP servers, merged into the same registry.
	if len(cfg.MCP.Servers) > 0 {
		mcpCfg := &mcp.Config{Enabled: true}
		for _, entry := range cfg.MCP.Servers {
			mcpCfg.Servers = append(mcpCfg.Servers, &mcp.ServerConfig{
				ID:        entry.ID,
				Transport: mcp.Transport(entry.Transport),
				Command:   entry.Command,
				Args:      entry.Args,
				Env:       entry.Env,
				URL:       entry.URL,
				AutoStart: entry.AutoStart,
			})
		}
		manager := mcp.NewManager(mcpCfg, logger.Slog(ctx))
		if err := manager.StartAutoStart(ctx); err != nil {
			logger.Warn(ctx, "mcp auto-start", "error", err)
		}
		defer manager.Stop()
		if err := mcpbridge.Sync(registry, manager); err != nil {
			return err
		}
	}

	var prompter tools.Prompter
	if autoApprove {
		prompter = tools.PrompterFunc(func(ctx context.Context, call models.ToolCall, def models.ToolDefinition) (bool, error) {
			return true, nil
		})
	}
	dispatcher := tools.NewDispatcher(registry, engine, hookBus, prompter, logger)

	provider, err := buildProvider(ctx, cfg)
	if err != nil {
		return err
	}

	executor := agent.NewExecutor(provider, registry, dispatcher, hookBus, logger, agent.Config{
		DefaultModel:         cfg.Agent.DefaultModel,
		IterationTimeout:     cfg.Agent.IterationTimeout,
		MaxConcurrentTools:   cfg.Tools.Concurrency,
		DefaultMaxIterations: cfg.Agent.MaxIterations,
	})

	task := &models.AgentTask{
		TaskID:    uuid.New().String(),
		AgentType: models.AgentType(agentType),
		Prompt:    prompt,
		Configuration: models.AgentConfiguration{
			TokenLimit: cfg.Agent.TokenLimit,
			TimeLimit:  cfg.Agent.TimeLimit,
		},
		Context: models.ContextSnapshot{WorkingDir: workDir},
	}

	// Ctrl-C cancels the run; a second one kills the process.
	cancelToken := agent.NewCancelToken()
	sigs := make(chan os.Signal, 2)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigs
		logger.Info(ctx, "cancellation requested")
		hookBus.TriggerAsync(ctx, &hooks.Payload{
			Category: hooks.CategoryUser, Event: hooks.EventInterrupt,
			Timestamp: time.Now(), SessionID: task.TaskID,
		})
		cancelToken.Cancel()
	}()

	hookBus.TriggerAsync(ctx, &hooks.Payload{
		Category: hooks.CategorySession, Event: hooks.EventStart,
		Timestamp: time.Now(), SessionID: task.TaskID,
	})
	hookBus.TriggerAsync(ctx, &hooks.Payload{
		Category: hooks.CategoryUser, Event: hooks.EventPromptSubmit,
		Timestamp: time.Now(), SessionID: task.TaskID,
		Data: map[string]any{"prompt_chars": len(prompt)},
	})

	var result *models.AgentResult
	if streaming {
		for ev := range executor.Stream(ctx, task, cancelToken) {
			switch ev.Kind {
			case agent.EventLLMChunk:
				fmt.Print(ev.Text)
			case agent.EventToolStart:
				fmt.Fprintf(os.Stderr, "\n[tool %s]\n", ev.ToolCall.Name)
			case agent.EventAgentEnd:
				result = ev.Result
			}
		}
		fmt.Println()
	} else {
		result = executor.Execute(ctx, task, cancelToken)
	}

	hookBus.TriggerAsync(ctx, &hooks.Payload{
		Category: hooks.CategorySession, Event: hooks.EventEnd,
		Timestamp: time.Now(), SessionID: task.TaskID,
	})

	out, err := json.MarshalIndent(result.ToMap(), "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	if !result.Success {
		os.Exit(1)
	}
	return nil
}

// buildProvider selects the configured provider, falling back to
// well-known environment variables for credentials.
func buildProvider(ctx context.Context, cfg *config.Config) (agent.LLMProvider, error) {
	switch cfg.Providers.Default {
	case "openai":
		apiKey := cfg.Providers.OpenAI.APIKey
		if apiKey == "" {
			apiKey = os.Getenv("OPENAI_API_KEY")
		}
		return providers.NewOpenAIProvider(providers.OpenAIConfig{
			APIKey:       apiKey,
			BaseURL:      cfg.Providers.OpenAI.BaseURL,
			DefaultModel: cfg.Providers.OpenAI.DefaultModel,
			MaxRetries:   cfg.Providers.OpenAI.MaxRetries,
		})
	case "bedrock":
		return providers.NewBedrockProvider(ctx, providers.BedrockConfig{
			Region:       cfg.Providers.Bedrock.Region,
			DefaultModel: cfg.Providers.Bedrock.DefaultModel,
			MaxRetries:   cfg.Providers.Bedrock.MaxRetries,
		})
	default:
		apiKey := cfg.Providers.Anthropic.APIKey
		if apiKey == "" {
			apiKey = os.Getenv("ANTHROPIC_API_KEY")
		}
		return providers.NewAnthropicProvider(providers.AnthropicConfig{
			APIKey:       apiKey,
			BaseURL:      cfg.Providers.Anthropic.BaseURL,
			DefaultModel: cfg.Providers.Anthropic.DefaultModel,
			MaxRetries:   cfg.Providers.Anthropic.MaxRetries,
		})
	}
}
