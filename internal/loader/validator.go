package loader

import (
	"fmt"

	"github.com/haasonsaas/loom/pkg/extension"
)

// CapabilityReport records which hooks an extension instance
// implements, checked structurally at load time.
type CapabilityReport struct {
	Hooks         []string
	ProvidesTools bool
	ProvidesAgents bool
}

// Empty reports whether the instance implements nothing at all.
func (r CapabilityReport) Empty() bool {
	return len(r.Hooks) == 0 && !r.ProvidesTools && !r.ProvidesAgents
}

// Validate inspects an extension's exported shape and produces an
// explicit pass/fail result. An instance implementing no capability is
// rejected: it could never contribute anything.
func Validate(ext extension.Extension) (CapabilityReport, error) {
	if ext == nil {
		return CapabilityReport{}, fmt.Errorf("%w: extension instance is nil", extension.ErrLoad)
	}

	var report CapabilityReport
	add := func(name string, ok bool) {
		if ok {
			report.Hooks = append(report.Hooks, name)
		}
	}

	_, onLoad := ext.(extension.Initializer)
	add("onLoad", onLoad)
	_, onUnload := ext.(extension.Closer)
	add("onUnload", onUnload)
	_, projectOpen := ext.(extension.ProjectOpenHandler)
	add("onProjectOpen", projectOpen)
	_, toolCalled := ext.(extension.ToolCalledHandler)
	add("onToolCalled", toolCalled)
	_, toolFinished := ext.(extension.ToolFinishedHandler)
	add("onToolFinished", toolFinished)
	_, agentStarted := ext.(extension.AgentStartedHandler)
	add("onAgentStarted", agentStarted)
	_, promptStarted := ext.(extension.PromptStartedHandler)
	add("onPromptStarted", promptStarted)
	_, promptFinished := ext.(extension.PromptFinishedHandler)
	add("onPromptFinished", promptFinished)
	_, profileUpdated := ext.(extension.AgentProfileUpdatedHandler)
	add("onAgentProfileUpdated", profileUpdated)
	_, filesAdded := ext.(extension.FilesAddedHandler)
	add("onFilesAdded", filesAdded)

	_, report.ProvidesTools = ext.(extension.ToolProvider)
	_, report.ProvidesAgents = ext.(extension.AgentProvider)

	if report.Empty() {
		return report, fmt.Errorf("%w: extension implements no capability", extension.ErrLoad)
	}
	return report, nil
}
