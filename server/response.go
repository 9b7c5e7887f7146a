package server

import (
	"strings"

	"github.com/bytedance/sonic"
	"github.com/life4/genesis/slices"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mykhaliev/tool-bench/model"
)

// ConvertResult maps an MCP tool result onto the benchmark's response shape.
// A result flagged IsError becomes an error response whose message is the
// concatenated text content.
func ConvertResult(result *mcp.CallToolResult) model.ToolResponse {
	if result == nil {
		return model.ErrorResponse("tool returned no result")
	}

	items := slices.Map(result.Content, convertContent)

	if result.IsError {
		texts := slices.Map(
			slices.Filter(items, func(c model.ContentItem) bool { return c.Text != "" }),
			func(c model.ContentItem) string { return c.Text },
		)
		msg := strings.Join(texts, "\n")
		if msg == "" {
			msg = "Unknown error"
		}
		return model.ToolResponse{
			Status: model.StatusError,
			Error:  &model.ToolError{Message: msg},
		}
	}

	return model.ToolResponse{
		Status: model.StatusSuccess,
		Data: &model.Envelope{
			Content:           items,
			StructuredContent: result.StructuredContent,
		},
	}
}

func convertContent(c mcp.Content) model.ContentItem {
	if text, ok := mcp.AsTextContent(c); ok {
		return model.ContentItem{Type: "text", Text: text.Text}
	}

	// images, audio and resources keep their type but carry no text
	item := model.ContentItem{Type: "unknown"}
	raw, err := sonic.Marshal(c)
	if err != nil {
		return item
	}
	var head struct {
		Type string `json:"type"`
	}
	if err := sonic.Unmarshal(raw, &head); err == nil && head.Type != "" {
		item.Type = head.Type
	}
	return item
}

// ConvertTools maps MCP tool metadata onto ToolDefinition. The input schema is
// carried as a generic JSON object.
func ConvertTools(tools []mcp.Tool) []model.ToolDefinition {
	return slices.Map(tools, func(t mcp.Tool) model.ToolDefinition {
		def := model.ToolDefinition{Name: t.Name, Description: t.Description}

		raw, err := sonic.Marshal(t)
		if err != nil {
			return def
		}
		var decoded struct {
			InputSchema map[string]any `json:"inputSchema"`
		}
		if err := sonic.Unmarshal(raw, &decoded); err == nil {
			def.InputSchema = decoded.InputSchema
		}
		return def
	})
}
