package manager

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/haasonsaas/loom/pkg/extension"
)

// overrideEntry records the winner of a tool name collision: the
// extension that owns the surviving definition and the registration
// priority it won with.
type overrideEntry struct {
	extensionName string
	priority      int
	index         int
}

// candidate is one validated tool waiting for override resolution.
type candidate struct {
	tool     extension.RegisteredTool
	priority int
}

// Tools aggregates the callable tools visible to a task: built-in
// tools first, then each visible extension's supplier output in
// registration order, with tools in supplier order. Suppliers run
// inside isolation; a supplier that fails contributes zero tools.
// Invalid tools are dropped individually. Name collisions resolve
// through an explicit override table: the definition registered with
// the highest priority wins, which lets an extension deliberately
// shadow a built-in or an earlier extension's tool.
func (m *Manager) Tools(ctx context.Context, task extension.Task, mode string, profile *extension.AgentProfile) []extension.RegisteredTool {
	req := extension.ToolRequest{Task: task, Mode: mode, Profile: profile}

	var ordered []candidate
	for _, t := range m.builtins {
		ordered = append(ordered, candidate{
			tool:     extension.RegisteredTool{ExtensionName: BuiltinExtensionName, Tool: t},
			priority: 0,
		})
	}

	for _, entry := range m.registry.ListFor(task.ProjectDir) {
		provider, ok := entry.Extension.(extension.ToolProvider)
		if !ok {
			continue
		}

		tools, err := m.callSupplier(ctx, provider, req)
		if err != nil {
			m.logger.Warn("tool supplier failed",
				"extension", entry.Metadata.Name,
				"error", err)
			m.countDropped(entry.Metadata.Name, "supplier_error")
			continue
		}

		for _, t := range tools {
			report := extension.ValidateTool(t)
			if !report.Valid {
				m.logger.Warn("invalid tool dropped",
					"extension", entry.Metadata.Name,
					"tool", t.Name,
					"errors", report.Errors)
				m.countDropped(entry.Metadata.Name, "invalid")
				continue
			}
			ordered = append(ordered, candidate{
				tool:     extension.RegisteredTool{ExtensionName: entry.Metadata.Name, Tool: t},
				priority: entry.Priority,
			})
		}
	}

	// Build the override table. Within equal priorities (duplicates
	// from one extension) the later definition wins, matching supplier
	// order.
	overrides := make(map[string]overrideEntry, len(ordered))
	for i, c := range ordered {
		name := c.tool.Tool.Name
		prev, seen := overrides[name]
		if !seen || c.priority >= prev.priority {
			if seen {
				m.logger.Info("tool overridden",
					"tool", name,
					"winner", c.tool.ExtensionName,
					"shadowed", prev.extensionName)
				if m.metrics != nil {
					m.metrics.ToolOverrides.Inc()
				}
			}
			overrides[name] = overrideEntry{
				extensionName: c.tool.ExtensionName,
				priority:      c.priority,
				index:         i,
			}
		}
	}

	out := make([]extension.RegisteredTool, 0, len(overrides))
	for i, c := range ordered {
		if overrides[c.tool.Tool.Name].index == i {
			out = append(out, c.tool)
		}
	}
	return out
}

// callSupplier invokes a tool supplier inside isolation. A panic or
// error is reported as ErrSupplier and yields zero tools.
func (m *Manager) callSupplier(ctx context.Context, provider extension.ToolProvider, req extension.ToolRequest) (tools []extension.Tool, err error) {
	defer func() {
		if p := recover(); p != nil {
			tools = nil
			err = fmt.Errorf("%w: panic: %v", extension.ErrSupplier, p)
		}
	}()

	tools, err = provider.Tools(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", extension.ErrSupplier, err)
	}
	return tools, nil
}

// ExecuteTool validates the raw input against the named tool's schema
// and runs it. Failures of any kind come back as a result tagged
// IsError with a human-readable message, never as an error the agent
// pipeline has to unwind.
func (m *Manager) ExecuteTool(ctx context.Context, task extension.Task, name string, raw json.RawMessage) *extension.ToolResult {
	var target *extension.RegisteredTool
	for _, rt := range m.Tools(ctx, task, "", nil) {
		if rt.Tool.Name == name {
			t := rt
			target = &t
			break
		}
	}
	if target == nil {
		m.countExec(name, "error")
		return extension.ErrorResult("tool not found: " + name)
	}

	input, err := extension.ParseInput(target.Tool, raw)
	if err != nil {
		m.countExec(name, "error")
		return extension.ErrorResult(err.Error())
	}

	manifestID := m.manifestIDFor(target.ExtensionName)
	ec := extension.ExecContext{
		Task:          task,
		ExtensionName: target.ExtensionName,
		State:         m.scopedState(manifestID),
		Logger:        m.logger.With("tool", name),
	}

	start := time.Now()
	result, err := m.callExecute(ctx, target.Tool, input, ec)
	switch {
	case err != nil:
		m.countExec(name, "error")
		m.logger.Warn("tool execution failed", "tool", name, "error", err, "duration", time.Since(start))
		return extension.ErrorResult(fmt.Sprintf("tool %s failed: %v", name, err))
	case result == nil:
		m.countExec(name, "error")
		return extension.ErrorResult(fmt.Sprintf("tool %s returned no result", name))
	case result.IsError:
		m.countExec(name, "error")
		return result
	default:
		m.countExec(name, "success")
		return result
	}
}

func (m *Manager) callExecute(ctx context.Context, t extension.Tool, input map[string]any, ec extension.ExecContext) (result *extension.ToolResult, err error) {
	defer func() {
		if p := recover(); p != nil {
			result = nil
			err = fmt.Errorf("panic: %v", p)
		}
	}()
	return t.Execute(ctx, input, ec)
}

// manifestIDFor maps an extension's metadata name back to its manifest
// id for state scoping. Built-in tools share the host's scope.
func (m *Manager) manifestIDFor(extensionName string) string {
	if extensionName == BuiltinExtensionName {
		return BuiltinExtensionName
	}
	for _, entry := range m.registry.All() {
		if entry.Metadata.Name == extensionName {
			m.mu.Lock()
			id, ok := m.manifestIDs[entry.ModulePath]
			m.mu.Unlock()
			if ok {
				return id
			}
			return extensionName
		}
	}
	return extensionName
}

func (m *Manager) countDropped(extensionName, reason string) {
	if m.metrics != nil {
		m.metrics.ToolsDropped.WithLabelValues(extensionName, reason).Inc()
	}
}

func (m *Manager) countExec(tool, status string) {
	if m.metrics != nil {
		m.metrics.ToolExecutions.WithLabelValues(tool, status).Inc()
	}
}
