package manager

import (
	"context"
	"fmt"
	"testing"

	"github.com/haasonsaas/loom/pkg/extension"
)

type agentExt struct {
	profiles []extension.AgentProfile
	err      error
	panic    bool
}

func (a *agentExt) Agents(ctx context.Context) ([]extension.AgentProfile, error) {
	if a.panic {
		panic("provider exploded")
	}
	return a.profiles, a.err
}

func TestAgentsAggregation(t *testing.T) {
	m, reg := newTestManager(t)
	reg.Register(&agentExt{profiles: []extension.AgentProfile{
		{Slug: "reviewer", Name: "Reviewer"},
		{Slug: "", Name: "nameless"},
	}}, extension.Metadata{Name: "first"}, "/ext/first", "")
	reg.Register(&agentExt{err: fmt.Errorf("backend down")},
		extension.Metadata{Name: "broken"}, "/ext/broken", "")
	reg.Register(&agentExt{panic: true},
		extension.Metadata{Name: "panicking"}, "/ext/panicking", "")
	reg.Register(&agentExt{profiles: []extension.AgentProfile{
		{Slug: "tester", Name: "Tester"},
	}}, extension.Metadata{Name: "last"}, "/ext/last", "")

	got := m.Agents(context.Background(), extension.Task{})
	if len(got) != 2 {
		t.Fatalf("profiles = %+v", got)
	}
	if got[0].Slug != "reviewer" || got[1].Slug != "tester" {
		t.Fatalf("unexpected order: %+v", got)
	}
}

func TestAgentsSlugCollisionLastWins(t *testing.T) {
	m, reg := newTestManager(t)
	reg.Register(&agentExt{profiles: []extension.AgentProfile{{Slug: "reviewer", Model: "small"}}},
		extension.Metadata{Name: "first"}, "/ext/first", "")
	reg.Register(&agentExt{profiles: []extension.AgentProfile{{Slug: "reviewer", Model: "large"}}},
		extension.Metadata{Name: "second"}, "/ext/second", "")

	got := m.Agents(context.Background(), extension.Task{})
	if len(got) != 1 || got[0].Model != "large" {
		t.Fatalf("profiles = %+v", got)
	}
}
