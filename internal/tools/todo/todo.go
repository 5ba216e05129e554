// Package todo implements the per-conversation scratchpad tools
// (create_todo, complete_todo, list_todos). The list lives on
// models.Conversation.Todos and never leaves the conversation: these tools
// are always allowed and bypass the permission mediator entirely.
package todo

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/haasonsaas/nexus/pkg/models"
)

const (
	CreateName   = "create_todo"
	CompleteName = "complete_todo"
	ListName     = "list_todos"
)

// Definitions returns the tool definitions for the todo scratchpad, for
// inclusion in a provider's tool list.
func Definitions() []models.ToolDefinition {
	return []models.ToolDefinition{
		{
			Name:        CreateName,
			Description: "Add an item to the conversation's todo scratchpad.",
			Origin:      models.OriginBuiltin,
			InputSchema: mustSchema(map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"description": map[string]interface{}{
						"type":        "string",
						"description": "What needs to be done.",
					},
				},
				"required": []string{"description"},
			}),
		},
		{
			Name:        CompleteName,
			Description: "Mark a todo scratchpad item completed by id.",
			Origin:      models.OriginBuiltin,
			InputSchema: mustSchema(map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"id": map[string]interface{}{
						"type":        "string",
						"description": "Id of the todo item to mark completed.",
					},
				},
				"required": []string{"id"},
			}),
		},
		{
			Name:        ListName,
			Description: "List the conversation's current todo scratchpad.",
			Origin:      models.OriginBuiltin,
			InputSchema: mustSchema(map[string]interface{}{
				"type":       "object",
				"properties": map[string]interface{}{},
			}),
		},
	}
}

// IsTodoTool reports whether name names one of this package's tools.
func IsTodoTool(name string) bool {
	switch name {
	case CreateName, CompleteName, ListName:
		return true
	default:
		return false
	}
}

// Dispatch executes a todo tool against conv in place. ok is false if name
// does not name a todo tool, in which case callers should fall through to
// the ordinary registry dispatch path.
func Dispatch(conv *models.Conversation, name string, input json.RawMessage) (result models.ToolResult, ok bool) {
	switch name {
	case CreateName:
		return create(conv, input), true
	case CompleteName:
		return complete(conv, input), true
	case ListName:
		return list(conv), true
	default:
		return models.ToolResult{}, false
	}
}

func create(conv *models.Conversation, input json.RawMessage) models.ToolResult {
	var params struct {
		Description string `json:"description"`
	}
	if err := json.Unmarshal(input, &params); err != nil {
		return errorResult(fmt.Sprintf("invalid parameters: %v", err))
	}
	if params.Description == "" {
		return errorResult("description is required")
	}

	item := models.TodoItem{ID: uuid.NewString(), Description: params.Description}
	conv.Todos = append(conv.Todos, item)
	return okResult(map[string]interface{}{"todo": item})
}

func complete(conv *models.Conversation, input json.RawMessage) models.ToolResult {
	var params struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(input, &params); err != nil {
		return errorResult(fmt.Sprintf("invalid parameters: %v", err))
	}
	if params.ID == "" {
		return errorResult("id is required")
	}

	for i := range conv.Todos {
		if conv.Todos[i].ID == params.ID {
			conv.Todos[i].Completed = true
			return okResult(map[string]interface{}{"todo": conv.Todos[i]})
		}
	}
	return errorResult("todo not found: " + params.ID)
}

func list(conv *models.Conversation) models.ToolResult {
	return okResult(map[string]interface{}{"todos": conv.Todos})
}

func okResult(payload map[string]interface{}) models.ToolResult {
	encoded, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return errorResult(fmt.Sprintf("encode result: %v", err))
	}
	return models.ToolResult{Content: string(encoded)}
}

func errorResult(message string) models.ToolResult {
	encoded, err := json.Marshal(map[string]string{"error": message})
	if err != nil {
		return models.ToolResult{Content: message, IsError: true}
	}
	return models.ToolResult{Content: string(encoded), IsError: true}
}

func mustSchema(v map[string]interface{}) json.RawMessage {
	payload, err := json.Marshal(v)
	if err != nil {
		return json.RawMessage(`{"type":"object"}`)
	}
	return payload
}
