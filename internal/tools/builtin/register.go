package builtin

import (
	"github.com/corefield/agentcore/internal/shell"
	"github.com/corefield/agentcore/internal/tools"
)

// Options configures the built-in tool set.
type Options struct {
	// ShellManager backs the background-shell tools. Defaults to the
	// process-wide manager.
	ShellManager *shell.Manager

	// WebAllowHosts exempts hosts from web_fetch's private-target guard.
	WebAllowHosts []string
}

// Register adds every built-in tool to the registry under the
// "builtin" source.
func Register(registry *tools.Registry, opts Options) error {
	manager := opts.ShellManager
	if manager == nil {
		manager = shell.Default()
	}

	all := []tools.Tool{
		ReadTool{},
		WriteTool{},
		EditTool{},
		ExecTool{},
		ShellCreateTool{Manager: manager},
		ShellOutputTool{Manager: manager},
		ShellWaitTool{Manager: manager},
		ShellKillTool{Manager: manager},
		NewWebFetchTool(opts.WebAllowHosts),
		GitStatusTool{},
	}
	for _, t := range all {
		if err := registry.Register("builtin", t); err != nil {
			return err
		}
	}
	return nil
}
