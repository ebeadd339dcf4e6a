// Package indexer is a project-scoped extension that maintains a code
// index through an external indexing worker and exposes a search tool
// over it. It is the reference consumer of the job controller pattern:
// builds are single-flight per project, invalidated when files change,
// and cancellable without leaving orphaned processes.
package indexer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"

	invopop "github.com/invopop/jsonschema"

	"github.com/haasonsaas/loom/internal/jobctl"
	"github.com/haasonsaas/loom/internal/loader"
	"github.com/haasonsaas/loom/internal/observability"
	"github.com/haasonsaas/loom/internal/worker"
	"github.com/haasonsaas/loom/pkg/extension"
)

// FactoryID is the manifest id the indexer factory serves.
const FactoryID = "code-indexer"

const (
	defaultBuildProgram = "loom-indexer"
	defaultQueryProgram = "loom-indexer"
)

// Extension builds and queries a per-project code index.
type Extension struct {
	ctrl         *jobctl.Controller
	projectDir   string
	buildProgram string
	queryProgram string
	logger       *slog.Logger

	mu     sync.Mutex
	builds sync.WaitGroup
}

// Register wires the indexer factory into the loader so manifests with
// id "code-indexer" resolve to this extension. The manifest's
// projectDir binds the instance; invalidation and cancellation key on
// it, so it is mandatory.
func Register(l *loader.Loader, runner worker.Runner, logger *slog.Logger, metrics *observability.Metrics) {
	l.RegisterFactory(FactoryID, func(manifest *extension.Manifest, cfg map[string]any) (extension.Extension, error) {
		return New(manifest.ProjectDir, cfg, runner, logger, metrics)
	})
}

// New builds an indexer bound to projectDir. The binding is what
// staleness marks and unload cancellation key on, so an empty
// projectDir is a construction error rather than a silent global
// instance.
func New(projectDir string, cfg map[string]any, runner worker.Runner, logger *slog.Logger, metrics *observability.Metrics) (*Extension, error) {
	if projectDir == "" {
		return nil, fmt.Errorf("indexer requires a project directory")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if runner == nil {
		runner = worker.ExecRunner{}
	}

	e := &Extension{
		projectDir:   projectDir,
		buildProgram: defaultBuildProgram,
		queryProgram: defaultQueryProgram,
		logger:       logger.With("component", "indexer"),
	}
	if v, ok := cfg["buildProgram"].(string); ok && v != "" {
		e.buildProgram = v
	}
	if v, ok := cfg["queryProgram"].(string); ok && v != "" {
		e.queryProgram = v
	}

	e.ctrl = jobctl.New(runner, e.buildSpec,
		jobctl.WithLogger(e.logger),
		jobctl.WithMetrics(metrics))
	return e, nil
}

// Controller exposes the job controller for host-side invalidation
// wiring (file watcher callbacks).
func (e *Extension) Controller() *jobctl.Controller { return e.ctrl }

func (e *Extension) buildSpec(key string) worker.Spec {
	return worker.Spec{
		Program: e.buildProgram,
		Args:    []string{"build", "--project", key},
		Dir:     key,
	}
}

// OnProjectOpen starts a background index build for the opened project.
func (e *Extension) OnProjectOpen(ctx context.Context, ev extension.ProjectOpenedEvent) error {
	dir := ev.Project.BaseDir
	e.builds.Add(1)
	go func() {
		defer e.builds.Done()
		outcome := e.ctrl.Ensure(context.WithoutCancel(ctx), dir)
		if !outcome.Built() {
			e.logger.Warn("initial index build did not complete", "project", dir, "outcome", outcome.String())
		}
	}()
	return nil
}

// OnFilesAdded invalidates the index so the next search rebuilds it.
func (e *Extension) OnFilesAdded(ctx context.Context, ev extension.FilesAddedEvent) error {
	if len(ev.Files) > 0 {
		e.ctrl.MarkStale(e.key())
	}
	return nil
}

// OnPromptFinished invalidates the index when the prompt cycle edited
// files.
func (e *Extension) OnPromptFinished(ctx context.Context, ev extension.PromptFinishedEvent) (*extension.PromptEventPatch, error) {
	for _, resp := range ev.Responses {
		if len(resp.EditedFiles) > 0 {
			e.ctrl.MarkStale(e.key())
			break
		}
	}
	return nil, nil
}

// OnUnload cancels any in-flight build and waits for background builds
// to settle.
func (e *Extension) OnUnload(ctx context.Context) error {
	e.ctrl.Cancel(e.key())
	e.ctrl.CancelQueries(e.key())
	e.builds.Wait()
	return nil
}

// searchArgs is the search tool's input contract.
type searchArgs struct {
	Query      string `json:"query" jsonschema:"title=Query,description=Search expression matched against the code index"`
	MaxResults int    `json:"maxResults,omitempty" jsonschema:"title=Max results,description=Cap on returned matches"`
}

var (
	searchSchemaOnce sync.Once
	searchSchema     json.RawMessage
	searchSchemaErr  error
)

// SearchInputSchema reflects the search tool schema from searchArgs.
func SearchInputSchema() (json.RawMessage, error) {
	searchSchemaOnce.Do(func() {
		r := &invopop.Reflector{
			Anonymous:      true,
			DoNotReference: true,
		}
		schema := r.Reflect(&searchArgs{})
		schema.Version = ""
		searchSchema, searchSchemaErr = json.Marshal(schema)
	})
	return searchSchema, searchSchemaErr
}

// Tools contributes the search tool for tasks in this extension's
// project.
func (e *Extension) Tools(ctx context.Context, req extension.ToolRequest) ([]extension.Tool, error) {
	schema, err := SearchInputSchema()
	if err != nil {
		return nil, fmt.Errorf("reflect search schema: %w", err)
	}

	return []extension.Tool{{
		Name:        "search_codebase",
		Description: "Search the project's code index for symbols, definitions and references.",
		InputSchema: schema,
		Execute:     e.executeSearch,
	}}, nil
}

func (e *Extension) executeSearch(ctx context.Context, input map[string]any, ec extension.ExecContext) (*extension.ToolResult, error) {
	query, _ := input["query"].(string)
	if query == "" {
		return extension.ErrorResult("search query is required"), nil
	}

	key := ec.Task.ProjectDir
	if key == "" {
		key = e.key()
	}

	// Make sure the index is current before searching. A failed or
	// aborted build leaves the project in its prior state and surfaces
	// as an error result, to be retried on next access.
	outcome := e.ctrl.Ensure(ctx, key)
	if !outcome.Built() {
		return extension.ErrorResult(fmt.Sprintf("code index unavailable: build %s", outcome.String())), nil
	}

	args := []string{"search", "--project", key, "--query", query}
	if max, ok := input["maxResults"].(float64); ok && max > 0 {
		args = append(args, "--max-results", strconv.Itoa(int(max)))
	}

	res, err := e.ctrl.Query(ctx, key, worker.Spec{
		Program: e.queryProgram,
		Args:    args,
		Dir:     key,
	})
	switch {
	case errors.Is(err, worker.ErrAborted):
		return extension.ErrorResult("search aborted"), nil
	case err != nil:
		e.logger.Warn("search worker failed", "project", key, "error", err)
		return extension.ErrorResult(fmt.Sprintf("search failed: exit %d", res.ExitCode)), nil
	}

	return &extension.ToolResult{
		Content: extension.TextContent(res.Stdout),
		Details: map[string]any{"durationMs": res.Duration.Milliseconds()},
	}, nil
}

// key is the controller key when no task context narrows it: the
// extension's bound project directory.
func (e *Extension) key() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.projectDir
}
