package providers

import (
	"encoding/json"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/document"
	bedrocktypes "github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	openai "github.com/sashabaranov/go-openai"

	"github.com/corefield/agentcore/pkg/models"
)

// schemaOrEmpty returns the tool's parameter schema, substituting the
// empty-object schema when none was registered.
func schemaOrEmpty(def models.ToolDefinition) map[string]any {
	if len(def.ParameterSchema) > 0 {
		return map[string]any(def.ParameterSchema)
	}
	return map[string]any{"type": "object", "properties": map[string]any{}}
}

// toAnthropicTools converts tool definitions to the Anthropic SDK shape.
func toAnthropicTools(defs []models.ToolDefinition) ([]anthropic.ToolUnionParam, error) {
	if len(defs) == 0 {
		return nil, nil
	}
	out := make([]anthropic.ToolUnionParam, 0, len(defs))
	for _, def := range defs {
		raw, err := json.Marshal(schemaOrEmpty(def))
		if err != nil {
			return nil, fmt.Errorf("invalid tool schema for %s: %w", def.Name, err)
		}
		var schema anthropic.ToolInputSchemaParam
		if err := json.Unmarshal(raw, &schema); err != nil {
			return nil, fmt.Errorf("invalid tool schema for %s: %w", def.Name, err)
		}
		param := anthropic.ToolUnionParamOfTool(schema, def.Name)
		if param.OfTool == nil {
			return nil, fmt.Errorf("invalid tool schema for %s: missing tool definition", def.Name)
		}
		param.OfTool.Description = anthropic.String(def.Description)
		out = append(out, param)
	}
	return out, nil
}

// toOpenAITools converts tool definitions to the chat-completions
// {type:"function", function:{...}} shape.
func toOpenAITools(defs []models.ToolDefinition) []openai.Tool {
	out := make([]openai.Tool, 0, len(defs))
	for _, def := range defs {
		out = append(out, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        def.Name,
				Description: def.Description,
				Parameters:  schemaOrEmpty(def),
			},
		})
	}
	return out
}

// toBedrockTools converts tool definitions to the Converse tool config.
func toBedrockTools(defs []models.ToolDefinition) *bedrocktypes.ToolConfiguration {
	tools := make([]bedrocktypes.Tool, len(defs))
	for i, def := range defs {
		tools[i] = &bedrocktypes.ToolMemberToolSpec{
			Value: bedrocktypes.ToolSpecification{
				Name:        aws.String(def.Name),
				Description: aws.String(def.Description),
				InputSchema: &bedrocktypes.ToolInputSchemaMemberJson{Value: document.NewLazyDocument(schemaOrEmpty(def))},
			},
		}
	}
	return &bedrocktypes.ToolConfiguration{Tools: tools}
}
