package manager

import (
	"context"
	"fmt"
	"testing"

	"github.com/haasonsaas/loom/pkg/extension"
)

// renameHook patches the tool name and records that it ran.
type renameHook struct {
	rename string
	input  map[string]any
	err    error
	panic  bool
	called *[]string
	label  string
}

func (h *renameHook) OnToolCalled(ctx context.Context, ev extension.ToolCalledEvent) (*extension.ToolEventPatch, error) {
	if h.called != nil {
		*h.called = append(*h.called, h.label)
	}
	if h.panic {
		panic("hook exploded")
	}
	if h.err != nil {
		return nil, h.err
	}
	var patch extension.ToolEventPatch
	if h.rename != "" {
		name := h.rename
		patch.ToolName = &name
	}
	patch.Input = h.input
	if patch.ToolName == nil && patch.Input == nil {
		return nil, nil
	}
	return &patch, nil
}

// finishHook observes tool-finished events, optionally failing.
type finishHook struct {
	input map[string]any
	err   error
	panic bool
}

func (h *finishHook) OnToolFinished(ctx context.Context, ev extension.ToolFinishedEvent) (*extension.ToolEventPatch, error) {
	if h.panic {
		panic("hook exploded")
	}
	if h.err != nil {
		return nil, h.err
	}
	if h.input == nil {
		return nil, nil
	}
	return &extension.ToolEventPatch{Input: h.input}, nil
}

// openObserver records project-open notifications.
type openObserver struct {
	opened []string
	err    error
}

func (o *openObserver) OnProjectOpen(ctx context.Context, ev extension.ProjectOpenedEvent) error {
	o.opened = append(o.opened, ev.Project.BaseDir)
	return o.err
}

func TestDispatchToolCalledFoldsPatches(t *testing.T) {
	m, reg := newTestManager(t)
	reg.Register(&renameHook{rename: "renamed", input: map[string]any{"extra": 1}},
		extension.Metadata{Name: "patcher"}, "/ext/patcher", "")
	reg.Register(&renameHook{input: map[string]any{"more": 2}},
		extension.Metadata{Name: "appender"}, "/ext/appender", "")

	original := map[string]any{"arg": "v"}
	out := m.DispatchToolCalled(context.Background(), extension.Task{},
		extension.ToolCalledEvent{ToolName: "original", Input: original})

	if out.ToolName != "renamed" {
		t.Fatalf("tool name = %q", out.ToolName)
	}
	if out.Input["arg"] != "v" || out.Input["extra"] != 1 || out.Input["more"] != 2 {
		t.Fatalf("merged input = %v", out.Input)
	}
	// The caller's map is never mutated.
	if len(original) != 1 {
		t.Fatalf("original input mutated: %v", original)
	}
}

func TestDispatchErrorIsolation(t *testing.T) {
	m, reg := newTestManager(t)
	var called []string
	reg.Register(&renameHook{label: "first", called: &called, input: map[string]any{"a": 1}},
		extension.Metadata{Name: "first"}, "/ext/1", "")
	reg.Register(&renameHook{label: "second", called: &called, err: fmt.Errorf("hook down")},
		extension.Metadata{Name: "second"}, "/ext/2", "")
	reg.Register(&renameHook{label: "third", called: &called, panic: true},
		extension.Metadata{Name: "third"}, "/ext/3", "")
	reg.Register(&renameHook{label: "fourth", called: &called, input: map[string]any{"b": 2}},
		extension.Metadata{Name: "fourth"}, "/ext/4", "")

	out := m.DispatchToolCalled(context.Background(), extension.Task{},
		extension.ToolCalledEvent{ToolName: "x", Input: map[string]any{}})

	if len(called) != 4 {
		t.Fatalf("every hook should get a turn: %v", called)
	}
	// Failed hooks contribute nothing; the rest still merge.
	if out.Input["a"] != 1 || out.Input["b"] != 2 {
		t.Fatalf("merged input = %v", out.Input)
	}
}

func TestDispatchToolFinishedSurvivesFailingMiddleHook(t *testing.T) {
	m, reg := newTestManager(t)
	reg.Register(&finishHook{input: map[string]any{"first": true}},
		extension.Metadata{Name: "first"}, "/ext/1", "")
	reg.Register(&finishHook{err: fmt.Errorf("hook down")},
		extension.Metadata{Name: "second"}, "/ext/2", "")
	reg.Register(&finishHook{input: map[string]any{"third": true}},
		extension.Metadata{Name: "third"}, "/ext/3", "")

	out := m.DispatchToolFinished(context.Background(), extension.Task{},
		extension.ToolFinishedEvent{ToolName: "fmt", Input: map[string]any{}})

	if out.Input["first"] != true || out.Input["third"] != true {
		t.Fatalf("surviving hooks' contributions missing: %v", out.Input)
	}
}

func TestDispatchOrderIsRegistrationOrder(t *testing.T) {
	m, reg := newTestManager(t)
	var called []string
	for i, name := range []string{"a", "b", "c"} {
		reg.Register(&renameHook{label: name, called: &called},
			extension.Metadata{Name: name}, fmt.Sprintf("/ext/%d", i), "")
	}

	m.DispatchToolCalled(context.Background(), extension.Task{}, extension.ToolCalledEvent{ToolName: "x"})
	if len(called) != 3 || called[0] != "a" || called[1] != "b" || called[2] != "c" {
		t.Fatalf("call order = %v", called)
	}
}

func TestDispatchScopesToProject(t *testing.T) {
	m, reg := newTestManager(t)
	global := &openObserver{}
	bound := &openObserver{}
	other := &openObserver{}
	reg.Register(global, extension.Metadata{Name: "global"}, "/ext/global", "")
	reg.Register(bound, extension.Metadata{Name: "bound"}, "/ext/bound", "/project/dir")
	reg.Register(other, extension.Metadata{Name: "other"}, "/ext/other", "/other/project")

	m.DispatchProjectOpened(context.Background(),
		extension.ProjectOpenedEvent{Project: extension.Project{BaseDir: "/project/dir"}})

	if len(global.opened) != 1 || len(bound.opened) != 1 {
		t.Fatalf("visible extensions not notified: global=%v bound=%v", global.opened, bound.opened)
	}
	if len(other.opened) != 0 {
		t.Fatalf("out-of-scope extension was notified: %v", other.opened)
	}
}

func TestDispatchAgentStartedProfileSwap(t *testing.T) {
	m, reg := newTestManager(t)
	reg.Register(&profileSwapper{provider: "local-llm"},
		extension.Metadata{Name: "router"}, "/ext/router", "")

	out := m.DispatchAgentStarted(context.Background(), extension.Task{}, extension.AgentStartedEvent{
		Prompt:          "fix the bug",
		ProviderProfile: extension.ProviderProfile{Provider: extension.Provider{Name: "default"}},
	})
	if out.ProviderProfile.Provider.Name != "local-llm" {
		t.Fatalf("profile not swapped: %+v", out.ProviderProfile)
	}
	if out.Prompt != "fix the bug" {
		t.Fatalf("unrelated field changed: %+v", out)
	}
}

type profileSwapper struct {
	provider string
}

func (p *profileSwapper) OnAgentStarted(ctx context.Context, ev extension.AgentStartedEvent) (*extension.AgentStartedPatch, error) {
	return &extension.AgentStartedPatch{
		ProviderProfile: &extension.ProviderProfile{Provider: extension.Provider{Name: p.provider}},
	}, nil
}

type promptTrimmer struct{}

func (promptTrimmer) OnPromptFinished(ctx context.Context, ev extension.PromptFinishedEvent) (*extension.PromptEventPatch, error) {
	if len(ev.Responses) <= 1 {
		return nil, nil
	}
	return &extension.PromptEventPatch{Responses: ev.Responses[:1]}, nil
}

func TestDispatchPromptFinished(t *testing.T) {
	m, reg := newTestManager(t)
	reg.Register(promptTrimmer{}, extension.Metadata{Name: "trimmer"}, "/ext/trimmer", "")

	out := m.DispatchPromptFinished(context.Background(), extension.Task{}, extension.PromptFinishedEvent{
		Responses: []extension.Response{
			{EditedFiles: []string{"a.go"}},
			{EditedFiles: []string{"b.go"}},
		},
	})
	if len(out.Responses) != 1 || out.Responses[0].EditedFiles[0] != "a.go" {
		t.Fatalf("unexpected responses: %+v", out.Responses)
	}
}
