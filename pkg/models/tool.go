package models

// ToolCategory classifies a tool for permission-rule matching and grouping.
type ToolCategory string

const (
	CategoryFile  ToolCategory = "file"
	CategoryShell ToolCategory = "shell"
	CategoryWeb   ToolCategory = "web"
	CategoryVCS   ToolCategory = "vcs"
	CategoryOther ToolCategory = "other"
)

// ToolDefinition describes one callable tool: its name, what it does, the
// shape of its arguments, and a requires-confirmation flag. The flag is
// carried with the definition only: the tool dispatcher does not read it,
// and whether a call is confirmed is decided by the permission rules alone.
type ToolDefinition struct {
	Name                 string         `json:"name"`
	Description          string         `json:"description"`
	Category             ToolCategory   `json:"category"`
	ParameterSchema      JSONSchema     `json:"parameters"`
	RequiresConfirmation bool           `json:"requires_confirmation,omitempty"`
}

// JSONSchema is a JSON-Schema-equivalent parameter description. It is kept
// as a raw map (not a typed struct) so tool authors, plugins, and MCP
// servers can all register parameter specs at runtime without the
// executor recompiling anything to serialise them into LLM tool
// definitions.
type JSONSchema map[string]any

// AsLLMFunction renders the definition into the {type:"function",
// function:{name,description,parameters}} shape the chat-completions wire
// format expects.
func (d ToolDefinition) AsLLMFunction() map[string]any {
	params := map[string]any(d.ParameterSchema)
	if params == nil {
		params = map[string]any{"type": "object", "properties": map[string]any{}}
	}
	return map[string]any{
		"type": "function",
		"function": map[string]any{
			"name":        d.Name,
			"description": d.Description,
			"parameters":  params,
		},
	}
}
