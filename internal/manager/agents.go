package manager

import (
	"context"
	"fmt"
	"strings"

	"github.com/haasonsaas/loom/pkg/extension"
)

// Agents aggregates the agent profiles contributed by the task's
// visible extensions, in registration order. Providers run inside
// isolation like tool suppliers; a failing provider contributes zero
// profiles. Profiles without a slug are dropped, and a later
// registration's profile replaces an earlier one with the same slug.
func (m *Manager) Agents(ctx context.Context, task extension.Task) []extension.AgentProfile {
	var out []extension.AgentProfile
	index := make(map[string]int)

	for _, entry := range m.registry.ListFor(task.ProjectDir) {
		provider, ok := entry.Extension.(extension.AgentProvider)
		if !ok {
			continue
		}

		profiles, err := m.callAgents(ctx, provider)
		if err != nil {
			m.logger.Warn("agent provider failed",
				"extension", entry.Metadata.Name,
				"error", err)
			continue
		}

		for _, p := range profiles {
			if strings.TrimSpace(p.Slug) == "" {
				m.logger.Warn("agent profile without slug dropped",
					"extension", entry.Metadata.Name)
				continue
			}
			if i, seen := index[p.Slug]; seen {
				out[i] = p
				continue
			}
			index[p.Slug] = len(out)
			out = append(out, p)
		}
	}
	return out
}

func (m *Manager) callAgents(ctx context.Context, provider extension.AgentProvider) (profiles []extension.AgentProfile, err error) {
	defer func() {
		if p := recover(); p != nil {
			profiles = nil
			err = fmt.Errorf("%w: panic: %v", extension.ErrSupplier, p)
		}
	}()

	profiles, err = provider.Agents(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", extension.ErrSupplier, err)
	}
	return profiles, nil
}
