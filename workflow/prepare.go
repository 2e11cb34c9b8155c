package workflow

import (
	"context"

	"github.com/chatforge/workflow/graph/emit"
	"github.com/chatforge/workflow/graph/model"
	"github.com/chatforge/workflow/graph/tool"
)

// PreparedWorkflow is the Preparation Service's output: a compiled graph
// plus every collaborator bound for this run (spec.md §4.3).
type PreparedWorkflow struct {
	Graph     *CompiledGraph
	LLM       model.ChatModel
	Tools     map[string]tool.Tool
	Retriever Retriever
	Config    WorkflowConfig
}

// TemplateCatalog resolves a named template to a blueprint, applying params.
type TemplateCatalog interface {
	Resolve(ctx context.Context, name string, params map[string]interface{}) (*WorkflowBlueprint, error)
}

// DefinitionStore fetches a stored blueprint by id, checked against userID
// for ownership.
type DefinitionStore interface {
	Get(ctx context.Context, id, userID string) (*WorkflowBlueprint, error)
}

// ModelResolver resolves an LLM handle for (provider, model).
type ModelResolver interface {
	Resolve(provider, modelName string) (model.ChatModel, error)
}

// ToolSource loads the tool set filtered by an allowlist.
type ToolSource interface {
	Load(allowed []string) (map[string]tool.Tool, error)
}

// RetrieverFactory constructs a retriever view filtered by document IDs,
// checked against userID for ownership at query time.
type RetrieverFactory interface {
	For(userID string, documentIDs []string) (Retriever, error)
}

// Preparer implements the Preparation Service: `prepare(source, config,
// userId) -> PreparedWorkflow` (spec.md §4.3).
type Preparer struct {
	Templates  TemplateCatalog
	Defs       DefinitionStore
	Models     ModelResolver
	ToolSource ToolSource
	Retrievers RetrieverFactory
	Builder    *Builder
}

// Prepare resolves source into a Blueprint, binds every collaborator the
// compiled graph will need, and installs the system message. It fails with
// NotFound, Unauthorized, ValidationError, or ConfigError (never a bare
// error) so every caller can branch on Kind.
func (p *Preparer) Prepare(ctx context.Context, source WorkflowSource, cfg WorkflowConfig, userID string, emitter emit.Emitter) (*PreparedWorkflow, error) {
	if err := source.Validate(); err != nil {
		return nil, err
	}

	blueprint, err := p.resolveBlueprint(ctx, source, userID)
	if err != nil {
		return nil, err
	}

	llm, err := p.Models.Resolve(cfg.Provider, cfg.Model)
	if err != nil {
		return nil, ConfigErrorf("resolve model %s/%s: %v", cfg.Provider, cfg.Model, err)
	}

	tools := map[string]tool.Tool{}
	if cfg.EnableTools {
		tools, err = p.ToolSource.Load(cfg.AllowedTools)
		if err != nil {
			return nil, ConfigErrorf("load tools: %v", err)
		}
	}

	var retriever Retriever
	if cfg.EnableRetrieval {
		retriever, err = p.Retrievers.For(userID, cfg.DocumentIDs)
		if err != nil {
			return nil, ConfigErrorf("bind retriever: %v", err)
		}
	}

	cfg = installSystemMessage(blueprint, cfg)

	compiled, err := p.Builder.Build(ctx, blueprint, cfg, emitter)
	if err != nil {
		return nil, err
	}

	return &PreparedWorkflow{
		Graph:     compiled,
		LLM:       llm,
		Tools:     tools,
		Retriever: retriever,
		Config:    cfg,
	}, nil
}

func (p *Preparer) resolveBlueprint(ctx context.Context, source WorkflowSource, userID string) (*WorkflowBlueprint, error) {
	switch source.Kind {
	case SourceInline:
		return source.Inline, nil

	case SourceDefinition:
		blueprint, err := p.Defs.Get(ctx, source.DefinitionID, userID)
		if err != nil {
			return nil, NotFoundf("definition %s: %v", source.DefinitionID, err)
		}
		return blueprint, nil

	case SourceTemplate:
		blueprint, err := p.Templates.Resolve(ctx, source.TemplateName, source.TemplateParams)
		if err != nil {
			return nil, NotFoundf("template %s: %v", source.TemplateName, err)
		}
		return blueprint, nil

	default:
		return nil, ValidationErrorf("unknown source kind %q", source.Kind)
	}
}

// installSystemMessage sets cfg.SystemMessage to a default derived from the
// blueprint's start node config when the caller didn't supply one, so every
// prepared run carries a system message even for inline/template sources
// that never declared one explicitly.
func installSystemMessage(b *WorkflowBlueprint, cfg WorkflowConfig) WorkflowConfig {
	if cfg.SystemMessage != "" {
		return cfg
	}
	start, ok := b.StartNode()
	if !ok {
		return cfg
	}
	if msg, ok := start.Config["systemMessage"].(string); ok && msg != "" {
		cfg.SystemMessage = msg
	}
	return cfg
}
