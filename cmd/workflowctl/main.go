// Package main implements workflowctl, the operator-facing entry point for
// the workflow execution core: it wires every collaborator the Control API
// needs and exposes that API over HTTP, the same cobra-root-plus-RunE shape
// C360Studio-semspec's own cmd/semspec/main.go uses.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/chatforge/workflow/config"
	"github.com/chatforge/workflow/graph/model"
	"github.com/chatforge/workflow/graph/model/anthropic"
	"github.com/chatforge/workflow/graph/model/google"
	"github.com/chatforge/workflow/graph/model/openai"
	"github.com/chatforge/workflow/graph/tool"
	"github.com/chatforge/workflow/persistence/postgres"
	"github.com/chatforge/workflow/persistence/sqlite"
	"github.com/chatforge/workflow/retrieval/pgvector"
	"github.com/chatforge/workflow/subscribers"
	"github.com/chatforge/workflow/templates"
	"github.com/chatforge/workflow/workflow"
	"github.com/chatforge/workflow/workflow/nodes"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/chatforge/workflow/graph"
)

// Build information (set via ldflags).
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var configPath string

	rootCmd := &cobra.Command{
		Use:     "workflowctl",
		Short:   "Workflow execution core control plane",
		Long:    "workflowctl serves the workflow execution core's Control API: run, validate, and inspect chat/agent workflows.",
		Version: fmt.Sprintf("%s (built %s)", Version, BuildTime),
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context(), configPath)
		},
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config file")

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	return rootCmd.ExecuteContext(ctx)
}

func serve(ctx context.Context, configPath string) error {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	deps, err := wire(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("wire dependencies: %w", err)
	}
	defer deps.Close()

	mux := http.NewServeMux()
	registerRoutes(mux, deps.API, logger)
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: cfg.Server.Addr, Handler: mux}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("workflowctl listening", "addr", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

// deps holds every long-lived collaborator wire constructs, so serve can
// close them cleanly on shutdown.
type deps struct {
	API      *workflow.API
	sqliteDB *sqlite.Store
	pgPool   *pgxpool.Pool
	rdb      *redis.Client
	audit    *subscribers.AuditLogger
	persist  *subscribers.PersistenceUpdater
}

func (d *deps) Close() {
	if d.persist != nil {
		d.persist.Close()
	}
	if d.audit != nil {
		d.audit.Close()
	}
	if d.sqliteDB != nil {
		d.sqliteDB.Close()
	}
	if d.pgPool != nil {
		d.pgPool.Close()
	}
	if d.rdb != nil {
		d.rdb.Close()
	}
}

// wire assembles the full dependency graph the Control API rides on top of:
// registry, builder, limiter, preparer, executor, and the subscriber
// fan-out, following exactly the Preparation/Executor/Control-API wiring
// spec.md §4 describes.
func wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*deps, error) {
	d := &deps{}

	registry := workflow.NewRegistry()
	nodes.RegisterAll(registry)

	var rdb *redis.Client
	if cfg.Redis.Addr != "" {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		d.rdb = rdb
	}

	execStore, messageStore, conversationStore, err := wirePersistence(ctx, cfg, d)
	if err != nil {
		return nil, err
	}

	retrieverFactory, err := wireRetrieval(ctx, cfg)
	if err != nil {
		return nil, err
	}

	catalog, err := templates.NewCatalog()
	if err != nil {
		return nil, fmt.Errorf("load builtin templates: %w", err)
	}
	if err := catalog.LoadDir(cfg.Templates.Dir); err != nil {
		return nil, fmt.Errorf("load template overlay: %w", err)
	}

	builder := workflow.NewBuilder(registry, rdb)
	preparer := &workflow.Preparer{
		Templates:  catalog,
		Defs:       noDefinitionStore{},
		Models:     &modelResolver{providers: cfg.Providers},
		ToolSource: &toolSource{},
		Retrievers: retrieverFactory,
		Builder:    builder,
	}

	limiter := workflow.NewLimiter(mapLimits(cfg.Limits), rdb)
	processor := &workflow.ResultProcessor{Messages: messageStore, Conversations: conversationStore}

	metrics := graph.NewPrometheusMetrics(prometheus.DefaultRegisterer)

	persistUpdater := subscribers.NewPersistenceUpdater(execStore, logger)
	d.persist = persistUpdater
	metricsCollector := subscribers.NewMetricsCollector(metrics)

	var auditLogger *subscribers.AuditLogger
	if cfg.NATS.URL != "" {
		auditLogger, err = subscribers.NewAuditLogger(cfg.NATS.URL, cfg.NATS.SubjectPrefix, logger)
		if err != nil {
			return nil, fmt.Errorf("connect audit logger: %w", err)
		}
		d.audit = auditLogger
	}

	emitter := subscribers.NewFanOutEmitter(persistUpdater, metricsCollector, auditLogger)

	executor := workflow.NewExecutor(preparer, limiter, processor, emitter)
	validator := workflow.NewValidator(registry)
	d.API = workflow.NewAPI(executor, validator, registry, execStore)

	return d, nil
}

func wirePersistence(ctx context.Context, cfg *config.Config, d *deps) (workflow.ExecutionStore, workflow.MessageStore, workflow.ConversationStore, error) {
	if cfg.Postgres.DSN != "" {
		pool, err := pgxpool.New(ctx, cfg.Postgres.DSN)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("connect postgres: %w", err)
		}
		d.pgPool = pool
		store := postgres.New(pool)
		if err := store.Init(ctx); err != nil {
			return nil, nil, nil, fmt.Errorf("init postgres schema: %w", err)
		}
		return store, store, store, nil
	}

	store, err := sqlite.Open(cfg.SQLite.Path)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("open sqlite: %w", err)
	}
	d.sqliteDB = store
	if err := store.Init(ctx); err != nil {
		return nil, nil, nil, fmt.Errorf("init sqlite schema: %w", err)
	}
	return store, store, store, nil
}

// wireRetrieval builds a pgvector-backed RetrieverFactory when postgres and
// an OpenAI key are both configured. Retrieval nodes that run without one
// simply fail with a ConfigError at prepare time — there is no in-process
// fallback vector store in this build.
func wireRetrieval(ctx context.Context, cfg *config.Config) (workflow.RetrieverFactory, error) {
	if cfg.Postgres.DSN == "" {
		return noRetrieverFactory{}, nil
	}
	provider, ok := cfg.Providers["openai"]
	if !ok || provider.APIKey == "" {
		return noRetrieverFactory{}, nil
	}

	pool, err := pgxpool.New(ctx, cfg.Postgres.DSN)
	if err != nil {
		return nil, fmt.Errorf("connect postgres for retrieval: %w", err)
	}
	embedder := pgvector.NewOpenAIEmbedder(provider.APIKey, "text-embedding-3-small")
	store := pgvector.New(pool, embedder, 5)
	dim := cfg.Postgres.EmbeddingDimension
	if dim == 0 {
		dim = embedder.Dimensions()
	}
	if err := store.Init(ctx, dim); err != nil {
		return nil, fmt.Errorf("init pgvector schema: %w", err)
	}
	return store, nil
}

func mapLimits(c config.LimitsConfig) workflow.LimitsConfig {
	def := workflow.DefaultLimitsConfig()
	limits := workflow.LimitsConfig{
		MaxConcurrentPerUser: c.MaxConcurrentRunsPerUser,
		MaxTokensPerUserDay:  c.DailyTokenBudget,
		MaxStepsPerWorkflow:  def.MaxStepsPerWorkflow,
		MaxBlueprintNodes:    c.MaxBlueprintNodes,
		RunWallClockDeadline: def.RunWallClockDeadline,
	}
	if c.NodeTimeout > 0 {
		limits.RunWallClockDeadline = c.NodeTimeout
	}
	return limits
}

// modelResolver dispatches a (provider, model) pair to the matching
// provider SDK adapter, constructing a fresh client per call — every
// adapter here is a thin, stateless wrapper, so there is no pooling benefit
// to caching them across runs.
type modelResolver struct {
	providers map[string]config.ProviderConfig
}

func (r *modelResolver) Resolve(provider, modelName string) (model.ChatModel, error) {
	pc, ok := r.providers[provider]
	if !ok || pc.APIKey == "" {
		return nil, workflow.ConfigErrorf("provider %q is not configured", provider)
	}
	switch provider {
	case "openai":
		return openai.NewChatModel(pc.APIKey, modelName), nil
	case "anthropic":
		return anthropic.NewChatModel(pc.APIKey, modelName), nil
	case "google":
		return google.NewChatModel(pc.APIKey, modelName), nil
	default:
		return nil, workflow.ConfigErrorf("unknown model provider %q", provider)
	}
}

// toolSource loads the fixed built-in tool set, filtered to the blueprint's
// allowlist. The only real tool wired today is HTTPTool; MockTool is left
// to tests rather than exposed to a live deployment.
type toolSource struct{}

func (t *toolSource) Load(allowed []string) (map[string]tool.Tool, error) {
	httpTool := tool.NewHTTPTool()
	available := map[string]tool.Tool{
		httpTool.Name(): httpTool,
	}
	if len(allowed) == 0 {
		return map[string]tool.Tool{}, nil
	}
	out := make(map[string]tool.Tool, len(allowed))
	for _, name := range allowed {
		if t, ok := available[name]; ok {
			out[name] = t
		}
	}
	return out, nil
}

// noDefinitionStore reports every lookup as not-found: no spec component
// names a durable store of user-authored blueprint definitions, so
// SourceDefinition resolves only once such a store is configured here.
type noDefinitionStore struct{}

func (noDefinitionStore) Get(ctx context.Context, id, userID string) (*workflow.WorkflowBlueprint, error) {
	return nil, workflow.NotFoundf("blueprint definition %s is not available: no definition store is configured", id)
}

// noRetrieverFactory rejects retrieval-enabled runs until postgres and an
// embedding provider are both configured.
type noRetrieverFactory struct{}

func (noRetrieverFactory) For(userID string, documentIDs []string) (workflow.Retriever, error) {
	return nil, workflow.ConfigErrorf("document retrieval is not configured: set postgres.dsn and an openai provider key")
}

// registerRoutes exposes the Control API over plain net/http handlers.
// No router dependency is wired in: the surface is five small JSON
// endpoints and the standard library's ServeMux is sufficient.
func registerRoutes(mux *http.ServeMux, api *workflow.API, logger *slog.Logger) {
	mux.HandleFunc("POST /v1/executions", func(w http.ResponseWriter, r *http.Request) {
		var input workflow.WorkflowInput
		if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		result, _, err := api.ExecuteWorkflow(r.Context(), input, workflow.ModeUnary)
		if err != nil {
			writeError(w, http.StatusUnprocessableEntity, err)
			return
		}
		writeJSON(w, http.StatusOK, result.ToChatResponse())
	})

	mux.HandleFunc("POST /v1/validate", func(w http.ResponseWriter, r *http.Request) {
		var b workflow.WorkflowBlueprint
		if err := json.NewDecoder(r.Body).Decode(&b); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		writeJSON(w, http.StatusOK, api.ValidateWorkflow(&b))
	})

	mux.HandleFunc("GET /v1/node-types", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, api.ListNodeTypes())
	})

	mux.HandleFunc("GET /v1/executions/{id}", func(w http.ResponseWriter, r *http.Request) {
		exec, err := api.GetExecution(r.Context(), r.PathValue("id"))
		if err != nil {
			writeError(w, http.StatusNotFound, err)
			return
		}
		writeJSON(w, http.StatusOK, exec)
	})

	mux.HandleFunc("GET /v1/executions", func(w http.ResponseWriter, r *http.Request) {
		filter := workflow.ExecutionFilter{UserID: r.URL.Query().Get("userId")}
		list, err := api.ListExecutions(r.Context(), filter)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, list)
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
