package manager

import (
	"context"
	"fmt"

	"github.com/haasonsaas/loom/pkg/extension"
)

// Event dispatch is an explicit reducer: the event is folded
// left-to-right across the visible extensions in registration order,
// each hook seeing the output of the previous one and the final value
// going back to the event's original source. A hook that errors or
// panics is logged and skipped; its turn never blocks or corrupts the
// others'.

// dispatchFold folds an event through every visible extension that
// implements the hook selected by pick, merging non-nil patches.
func dispatchFold[E any, P any](
	m *Manager,
	ctx context.Context,
	hook string,
	projectDir string,
	ev E,
	pick func(ext extension.Extension) (func(context.Context, E) (*P, error), bool),
	merge func(E, *P) E,
) E {
	for _, entry := range m.registry.ListFor(projectDir) {
		call, ok := pick(entry.Extension)
		if !ok {
			continue
		}

		patch, err := safeCall(ctx, call, ev)
		if err != nil {
			m.logger.Warn("extension hook failed",
				"hook", hook,
				"extension", entry.Metadata.Name,
				"error", fmt.Errorf("%w: %v", extension.ErrHook, err))
			m.countHook(hook, "error")
			continue
		}
		m.countHook(hook, "ok")

		if patch != nil {
			ev = merge(ev, patch)
		}
	}
	return ev
}

// dispatchNotify visits observe-only hooks that return no patch.
func dispatchNotify[E any](
	m *Manager,
	ctx context.Context,
	hook string,
	projectDir string,
	ev E,
	pick func(ext extension.Extension) (func(context.Context, E) error, bool),
) {
	for _, entry := range m.registry.ListFor(projectDir) {
		call, ok := pick(entry.Extension)
		if !ok {
			continue
		}

		if err := safeNotify(ctx, call, ev); err != nil {
			m.logger.Warn("extension hook failed",
				"hook", hook,
				"extension", entry.Metadata.Name,
				"error", fmt.Errorf("%w: %v", extension.ErrHook, err))
			m.countHook(hook, "error")
			continue
		}
		m.countHook(hook, "ok")
	}
}

func safeCall[E any, P any](ctx context.Context, call func(context.Context, E) (*P, error), ev E) (patch *P, err error) {
	defer func() {
		if p := recover(); p != nil {
			patch = nil
			err = fmt.Errorf("panic: %v", p)
		}
	}()
	return call(ctx, ev)
}

func safeNotify[E any](ctx context.Context, call func(context.Context, E) error, ev E) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic: %v", p)
		}
	}()
	return call(ctx, ev)
}

// DispatchToolCalled folds a tool-called event across the task's
// visible extensions and returns the event the caller should act on.
func (m *Manager) DispatchToolCalled(ctx context.Context, task extension.Task, ev extension.ToolCalledEvent) extension.ToolCalledEvent {
	return dispatchFold(m, ctx, "onToolCalled", task.ProjectDir, ev,
		func(e extension.Extension) (func(context.Context, extension.ToolCalledEvent) (*extension.ToolEventPatch, error), bool) {
			h, ok := e.(extension.ToolCalledHandler)
			if !ok {
				return nil, false
			}
			return h.OnToolCalled, true
		},
		mergeToolCalled)
}

// DispatchToolFinished folds a tool-finished event.
func (m *Manager) DispatchToolFinished(ctx context.Context, task extension.Task, ev extension.ToolFinishedEvent) extension.ToolFinishedEvent {
	return dispatchFold(m, ctx, "onToolFinished", task.ProjectDir, ev,
		func(e extension.Extension) (func(context.Context, extension.ToolFinishedEvent) (*extension.ToolEventPatch, error), bool) {
			h, ok := e.(extension.ToolFinishedHandler)
			if !ok {
				return nil, false
			}
			return h.OnToolFinished, true
		},
		mergeToolFinished)
}

// DispatchAgentStarted folds an agent-started event; extensions may
// swap in a different provider profile.
func (m *Manager) DispatchAgentStarted(ctx context.Context, task extension.Task, ev extension.AgentStartedEvent) extension.AgentStartedEvent {
	return dispatchFold(m, ctx, "onAgentStarted", task.ProjectDir, ev,
		func(e extension.Extension) (func(context.Context, extension.AgentStartedEvent) (*extension.AgentStartedPatch, error), bool) {
			h, ok := e.(extension.AgentStartedHandler)
			if !ok {
				return nil, false
			}
			return h.OnAgentStarted, true
		},
		func(ev extension.AgentStartedEvent, p *extension.AgentStartedPatch) extension.AgentStartedEvent {
			if p.ProviderProfile != nil {
				ev.ProviderProfile = *p.ProviderProfile
			}
			return ev
		})
}

// DispatchPromptStarted folds a prompt-started event.
func (m *Manager) DispatchPromptStarted(ctx context.Context, task extension.Task, ev extension.PromptStartedEvent) extension.PromptStartedEvent {
	return dispatchFold(m, ctx, "onPromptStarted", task.ProjectDir, ev,
		func(e extension.Extension) (func(context.Context, extension.PromptStartedEvent) (*extension.PromptEventPatch, error), bool) {
			h, ok := e.(extension.PromptStartedHandler)
			if !ok {
				return nil, false
			}
			return h.OnPromptStarted, true
		},
		func(ev extension.PromptStartedEvent, p *extension.PromptEventPatch) extension.PromptStartedEvent {
			if p.Responses != nil {
				ev.Responses = p.Responses
			}
			return ev
		})
}

// DispatchPromptFinished folds a prompt-finished event.
func (m *Manager) DispatchPromptFinished(ctx context.Context, task extension.Task, ev extension.PromptFinishedEvent) extension.PromptFinishedEvent {
	return dispatchFold(m, ctx, "onPromptFinished", task.ProjectDir, ev,
		func(e extension.Extension) (func(context.Context, extension.PromptFinishedEvent) (*extension.PromptEventPatch, error), bool) {
			h, ok := e.(extension.PromptFinishedHandler)
			if !ok {
				return nil, false
			}
			return h.OnPromptFinished, true
		},
		func(ev extension.PromptFinishedEvent, p *extension.PromptEventPatch) extension.PromptFinishedEvent {
			if p.Responses != nil {
				ev.Responses = p.Responses
			}
			return ev
		})
}

// DispatchProjectOpened notifies extensions visible to the opened
// project.
func (m *Manager) DispatchProjectOpened(ctx context.Context, ev extension.ProjectOpenedEvent) {
	dispatchNotify(m, ctx, "onProjectOpen", ev.Project.BaseDir, ev,
		func(e extension.Extension) (func(context.Context, extension.ProjectOpenedEvent) error, bool) {
			h, ok := e.(extension.ProjectOpenHandler)
			if !ok {
				return nil, false
			}
			return h.OnProjectOpen, true
		})
}

// DispatchFilesAdded notifies extensions of workspace file additions.
func (m *Manager) DispatchFilesAdded(ctx context.Context, task extension.Task, ev extension.FilesAddedEvent) {
	dispatchNotify(m, ctx, "onFilesAdded", task.ProjectDir, ev,
		func(e extension.Extension) (func(context.Context, extension.FilesAddedEvent) error, bool) {
			h, ok := e.(extension.FilesAddedHandler)
			if !ok {
				return nil, false
			}
			return h.OnFilesAdded, true
		})
}

// DispatchAgentProfileUpdated notifies extensions of profile changes.
func (m *Manager) DispatchAgentProfileUpdated(ctx context.Context, task extension.Task, ev extension.AgentProfileUpdatedEvent) {
	dispatchNotify(m, ctx, "onAgentProfileUpdated", task.ProjectDir, ev,
		func(e extension.Extension) (func(context.Context, extension.AgentProfileUpdatedEvent) error, bool) {
			h, ok := e.(extension.AgentProfileUpdatedHandler)
			if !ok {
				return nil, false
			}
			return h.OnAgentProfileUpdated, true
		})
}

func mergeToolCalled(ev extension.ToolCalledEvent, p *extension.ToolEventPatch) extension.ToolCalledEvent {
	if p.ToolName != nil {
		ev.ToolName = *p.ToolName
	}
	ev.Input = mergeInput(ev.Input, p.Input)
	return ev
}

func mergeToolFinished(ev extension.ToolFinishedEvent, p *extension.ToolEventPatch) extension.ToolFinishedEvent {
	if p.ToolName != nil {
		ev.ToolName = *p.ToolName
	}
	ev.Input = mergeInput(ev.Input, p.Input)
	return ev
}

// mergeInput shallow-merges patch entries over the event input without
// mutating the original map.
func mergeInput(base, patch map[string]any) map[string]any {
	if len(patch) == 0 {
		return base
	}
	merged := make(map[string]any, len(base)+len(patch))
	for k, v := range base {
		merged[k] = v
	}
	for k, v := range patch {
		merged[k] = v
	}
	return merged
}

func (m *Manager) countHook(hook, status string) {
	if m.metrics != nil {
		m.metrics.HookDispatches.WithLabelValues(hook, status).Inc()
	}
}
