package extension

import "context"

// Event payloads. Each hook receives the current, possibly
// already-patched event and may return a patch that is shallow-merged
// into the event seen by the next extension and ultimately by the
// event's original source. A nil patch leaves the event unchanged.
//
// Patches use pointer (or nil-able) fields so "unset" and "set to
// zero" stay distinguishable.

// ToolCalledEvent fires before a tool executes.
type ToolCalledEvent struct {
	ToolName string         `json:"toolName"`
	Input    map[string]any `json:"input"`
}

// ToolFinishedEvent fires after a tool executed.
type ToolFinishedEvent struct {
	ToolName string         `json:"toolName"`
	Input    map[string]any `json:"input"`
}

// ToolEventPatch is the partial override a tool hook may return.
// Input entries are shallow-merged over the event's input map.
type ToolEventPatch struct {
	ToolName *string
	Input    map[string]any
}

// Project identifies an opened project by its base directory.
type Project struct {
	BaseDir string `json:"baseDir"`
}

// ProjectOpenedEvent fires when a project is opened.
type ProjectOpenedEvent struct {
	Project Project `json:"project"`
}

// Provider names an LLM provider inside a provider profile.
type Provider struct {
	Name string `json:"name"`
}

// ProviderProfile selects the provider configuration an agent runs with.
type ProviderProfile struct {
	Provider Provider `json:"provider"`
}

// AgentStartedEvent fires when an agent run begins. A hook may return a
// patch carrying a replacement provider profile.
type AgentStartedEvent struct {
	Prompt          string          `json:"prompt"`
	Model           string          `json:"model"`
	ProviderProfile ProviderProfile `json:"providerProfile"`
}

// AgentStartedPatch overrides fields of AgentStartedEvent.
type AgentStartedPatch struct {
	ProviderProfile *ProviderProfile
}

// Response is one model response within a prompt cycle.
type Response struct {
	EditedFiles []string `json:"editedFiles,omitempty"`
}

// PromptStartedEvent fires when a prompt cycle begins.
type PromptStartedEvent struct {
	Responses []Response `json:"responses"`
}

// PromptFinishedEvent fires when a prompt cycle completes.
type PromptFinishedEvent struct {
	Responses []Response `json:"responses"`
}

// PromptEventPatch replaces the response list when non-nil.
type PromptEventPatch struct {
	Responses []Response
}

// FilesAddedEvent fires when files are added to the workspace.
type FilesAddedEvent struct {
	Files []FileRef `json:"files"`
}

// FileRef references a workspace file by path.
type FileRef struct {
	Path string `json:"path"`
}

// AgentProfileUpdatedEvent fires when an agent profile changes.
type AgentProfileUpdatedEvent struct {
	Profile AgentProfile `json:"profile"`
}

// Hook interfaces, one per event shape. Dispatch visits implementers in
// registration order; an error or panic from one hook is isolated and
// never blocks the next.

type ProjectOpenHandler interface {
	OnProjectOpen(ctx context.Context, ev ProjectOpenedEvent) error
}

type ToolCalledHandler interface {
	OnToolCalled(ctx context.Context, ev ToolCalledEvent) (*ToolEventPatch, error)
}

type ToolFinishedHandler interface {
	OnToolFinished(ctx context.Context, ev ToolFinishedEvent) (*ToolEventPatch, error)
}

type AgentStartedHandler interface {
	OnAgentStarted(ctx context.Context, ev AgentStartedEvent) (*AgentStartedPatch, error)
}

type PromptStartedHandler interface {
	OnPromptStarted(ctx context.Context, ev PromptStartedEvent) (*PromptEventPatch, error)
}

type PromptFinishedHandler interface {
	OnPromptFinished(ctx context.Context, ev PromptFinishedEvent) (*PromptEventPatch, error)
}

type FilesAddedHandler interface {
	OnFilesAdded(ctx context.Context, ev FilesAddedEvent) error
}

type AgentProfileUpdatedHandler interface {
	OnAgentProfileUpdated(ctx context.Context, ev AgentProfileUpdatedEvent) error
}
