// Package extension defines the contract between the Loom host and
// third-party extensions: the capability-set interfaces an extension may
// implement, the event payloads delivered to hooks, and the tool
// definition shape consumed by the aggregation layer.
//
// An extension implements any subset of the hook interfaces below; none
// is mandatory. The host discovers capabilities structurally at load
// time, so an extension is just a value that happens to satisfy one or
// more of these interfaces.
package extension

import (
	"context"
	"encoding/json"
)

// Extension is the capability-set contract. Any value can be an
// extension; the host inspects it for the optional hook interfaces
// declared in this package. Identity is the combination of the declared
// metadata name and the originating module path.
type Extension any

// Metadata describes an extension. It is immutable once registered.
type Metadata struct {
	Name        string `json:"name"`
	Version     string `json:"version"`
	Description string `json:"description"`
	Author      string `json:"author"`
}

// Capability tags an extension's declared capability class. Tags are
// declarative documentation only; the host enforces nothing based on
// them.
type Capability string

const (
	CapabilityEvents Capability = "events"
	CapabilityTools  Capability = "tools"
)

// Task identifies the unit of agent work on whose behalf tools are
// aggregated and events are dispatched. ProjectDir scopes visibility of
// project-bound extensions.
type Task struct {
	ID         string
	ProjectDir string
}

// AgentProfile describes an agent persona an extension may contribute.
type AgentProfile struct {
	Slug         string `json:"slug"`
	Name         string `json:"name"`
	Description  string `json:"description,omitempty"`
	RoleDefinition string `json:"roleDefinition,omitempty"`
	Model        string `json:"model,omitempty"`
}

// Initializer is implemented by extensions that need setup on load.
type Initializer interface {
	OnLoad(ctx context.Context, host Host) error
}

// Closer is implemented by extensions that need teardown on unload.
type Closer interface {
	OnUnload(ctx context.Context) error
}

// ToolProvider supplies callable tools for a task. Suppliers are
// invoked on every aggregation request; returned tools are validated
// individually and invalid ones dropped.
type ToolProvider interface {
	Tools(ctx context.Context, req ToolRequest) ([]Tool, error)
}

// AgentProvider supplies agent profiles.
type AgentProvider interface {
	Agents(ctx context.Context) ([]AgentProfile, error)
}

// ToolRequest carries the aggregation context handed to ToolProvider.
type ToolRequest struct {
	Task    Task
	Mode    string
	Profile *AgentProfile
}

// Host is the narrow surface an extension receives at load time. State
// access is scoped to the extension's own id; extensions cannot read
// each other's state.
type Host interface {
	// State returns the extension's durable key-value store.
	State() StateStore
}

// StateStore is the persisted per-extension key-value collaborator.
type StateStore interface {
	// Get returns the stored JSON value, or ok=false when absent.
	Get(ctx context.Context, key string) (json.RawMessage, bool, error)

	// Set upserts a JSON-encodable value and updates its timestamp.
	Set(ctx context.Context, key string, value any) error
}
