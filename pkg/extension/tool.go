package extension

import (
	"context"
	"encoding/json"
	"log/slog"
)

// Tool is a named, schema-validated, callable capability an extension
// exposes to the agent layer.
type Tool struct {
	// Name must match ^[a-z][a-z0-9_-]*$.
	Name string `json:"name"`

	// Description is shown to the model; must be non-empty after
	// trimming whitespace.
	Description string `json:"description"`

	// InputSchema is a JSON Schema document describing the tool's
	// input. It must compile; callers' input is validated against it
	// before Execute runs.
	InputSchema json.RawMessage `json:"inputSchema"`

	// Execute runs the tool. The context carries cancellation.
	Execute ExecuteFunc `json:"-"`
}

// ExecuteFunc runs a tool with parsed input. Implementations should
// return a ToolResult with IsError set for expected failures; a non-nil
// error is reserved for infrastructure problems and is converted by the
// host into an error result rather than propagated.
type ExecuteFunc func(ctx context.Context, input map[string]any, ec ExecContext) (*ToolResult, error)

// ExecContext carries per-execution collaborators into a tool.
type ExecContext struct {
	Task          Task
	ExtensionName string
	State         StateStore
	Logger        *slog.Logger
}

// ContentType tags a ContentItem variant.
type ContentType string

const (
	ContentText  ContentType = "text"
	ContentImage ContentType = "image"
	ContentMedia ContentType = "media"
)

// ContentItem is one piece of tool output.
type ContentItem struct {
	Type ContentType `json:"type"`

	// Text is set for ContentText items.
	Text string `json:"text,omitempty"`

	// MimeType and Data are set for image/media items.
	MimeType string `json:"mimeType,omitempty"`
	Data     []byte `json:"data,omitempty"`
}

// TextContent builds a single-item text result payload.
func TextContent(text string) []ContentItem {
	return []ContentItem{{Type: ContentText, Text: text}}
}

// ToolResult is what a tool execution returns.
type ToolResult struct {
	Content []ContentItem  `json:"content"`
	Details map[string]any `json:"details,omitempty"`
	IsError bool           `json:"isError,omitempty"`
}

// ErrorResult builds a failed-but-non-throwing tool result.
func ErrorResult(msg string) *ToolResult {
	return &ToolResult{Content: TextContent(msg), IsError: true}
}

// RegisteredTool pairs a validated tool with its owning extension's
// metadata name. It is the unit returned by tool aggregation.
type RegisteredTool struct {
	ExtensionName string `json:"extensionName"`
	Tool          Tool   `json:"tool"`
}
