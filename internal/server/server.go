package server

import (
	"context"
	"embed"
	"io/fs"
	"log/slog"
	"net"
	"net/http"
	"sync"

	"github.com/rakunlabs/ada"
	"github.com/periplon/metis/internal/config"
	"github.com/periplon/metis/internal/mockengine"
	"github.com/periplon/metis/internal/persistence"
	"github.com/periplon/metis/internal/registry"
	"github.com/periplon/metis/internal/session"
	"github.com/periplon/metis/pkg/mcp"

	mfolder "github.com/rakunlabs/ada/handler/folder"
	mcors "github.com/rakunlabs/ada/middleware/cors"
	mforwardauth "github.com/rakunlabs/ada/middleware/forwardauth"
	mlog "github.com/rakunlabs/ada/middleware/log"
	mrecover "github.com/rakunlabs/ada/middleware/recover"
	mrequestid "github.com/rakunlabs/ada/middleware/requestid"
	mserver "github.com/rakunlabs/ada/middleware/server"
	mtelemetry "github.com/rakunlabs/ada/middleware/telemetry"
)

//go:embed dist/*
var uiFS embed.FS

// Server hosts the spec's two external surfaces on one ada mux: the /mcp
// JSON-RPC+SSE transport (spec §4.I, §6) and the Management HTTP API
// (archetype CRUD, commit log, tags, rollback, settings — spec §4.J, §6).
type Server struct {
	config config.Server

	server *ada.Server

	// persist is the Persistence Core (spec §4.J) backing the Management
	// HTTP API's archetype CRUD, commit log, tags, and rollback.
	persist *persistence.Store

	// sessions is the Session Manager (spec §4.H) backing the /mcp
	// JSON-RPC + SSE transport.
	sessions *session.Manager

	// settings is the live, mutable server configuration exposed through
	// GET/PUT /api/config/settings.
	settings   *config.Config
	settingsMu sync.RWMutex

	// settingsPath is where POST /api/config/save-disk persists settings.
	settingsPath string

	// mcpServer is the Protocol Dispatcher the /mcp transport and the
	// registry package's archetype sync both operate on.
	mcpServer *mcp.MCP

	// mockEngine backs every tool/resource/prompt handler registered by
	// internal/registry.
	mockEngine *mockengine.Engine
}

// MetisDeps bundles the components New wires onto the ada mux.
type MetisDeps struct {
	Persist      *persistence.Store
	Sessions     *session.Manager
	Settings     *config.Config
	SettingsPath string
	MCPServer    *mcp.MCP
	MockEngine   *mockengine.Engine
}

// syncRegistry re-derives the /mcp Protocol Dispatcher's tool/resource/
// prompt collections from the Persistence Core's current archetype set.
// Called once at startup and after every write to one of those three
// archetype kinds.
func (s *Server) syncRegistry(ctx context.Context) error {
	if s.mcpServer == nil || s.mockEngine == nil || s.persist == nil {
		return nil
	}
	return registry.Sync(ctx, s.mcpServer, s.mockEngine, s.persist)
}

func New(ctx context.Context, cfg config.Server, deps MetisDeps) (*Server, error) {
	mux := ada.New()
	mux.Use(
		mrecover.Middleware(),
		mserver.Middleware(config.Service),
		mcors.Middleware(),
		mrequestid.Middleware(),
		mlog.Middleware(),
		mtelemetry.Middleware(),
	)

	s := &Server{
		config:       cfg,
		server:       mux,
		persist:      deps.Persist,
		sessions:     deps.Sessions,
		settings:     deps.Settings,
		settingsPath: deps.SettingsPath,
		mcpServer:    deps.MCPServer,
		mockEngine:   deps.MockEngine,
	}

	if err := s.syncRegistry(ctx); err != nil {
		slog.Error("initial registry sync failed", "error", err)
	}

	if cfg.BasePath != "" {
		slog.Info("configuring server with base path", "base_path", cfg.BasePath)
	}

	baseGroup := mux.Group(cfg.BasePath)

	if cfg.ForwardAuth != nil {
		slog.Info("forward auth enabled", "url", cfg.ForwardAuth.Address)
		baseGroup.Use(mforwardauth.Middleware(mforwardauth.WithConfig(*cfg.ForwardAuth)))
	} else {
		slog.Info("forward auth disabled (no forward_auth config)")
	}

	// MCP transport (spec §6): JSON-RPC over HTTP POST, upgrading to SSE
	// for streaming methods; GET resumes a session's event stream.
	baseGroup.POST("/mcp", s.MCPEndpoint)
	baseGroup.GET("/mcp", s.MCPResumeEndpoint)

	// Liveness and metrics.
	baseGroup.GET("/health", s.HealthAPI)
	baseGroup.GET("/metrics", s.MetricsAPI)

	// Management HTTP API: archetype CRUD, commit log, tags, rollback,
	// and live settings (spec §6, §4.J).
	managementGroup := baseGroup.Group("/api")
	for _, res := range archetypeResources {
		managementGroup.GET("/"+res.segment, s.listArchetypesAPI(res.kind))
		managementGroup.POST("/"+res.segment, s.createArchetypeAPI(res.kind))
		managementGroup.GET("/"+res.segment+"/*", s.getArchetypeAPI(res.kind))
		managementGroup.PUT("/"+res.segment+"/*", s.updateArchetypeAPI(res.kind))
		managementGroup.DELETE("/"+res.segment+"/*", s.deleteArchetypeAPI(res.kind))
	}
	managementGroup.GET("/commits", s.ListCommitsAPI)
	managementGroup.GET("/commits/*", s.GetCommitAPI)
	managementGroup.GET("/tags", s.ListTagsAPI)
	managementGroup.POST("/tags", s.CreateTagAPI)
	managementGroup.POST("/rollback", s.RollbackAPI)

	configGroup := managementGroup.Group("/config")
	configGroup.GET("/settings", s.GetSettingsAPI)
	configGroup.PUT("/settings", s.PutSettingsAPI)
	configGroup.POST("/save-disk", s.SaveSettingsDiskAPI)
	configGroup.POST("/save-s3", s.SaveSettingsS3API)

	// ////////////////////////////////////////////

	f, err := fs.Sub(uiFS, "dist")
	if err != nil {
		return nil, err
	}

	folderM, err := mfolder.New(&mfolder.Config{
		BasePath:       cfg.BasePath,
		Index:          true,
		StripIndexName: true,
		SPA:            true,
		PrefixPath:     cfg.BasePath,
		CacheRegex: []*mfolder.RegexCacheStore{
			{
				Regex:        `index\.html$`,
				CacheControl: "no-store",
			},
		},
	})
	if err != nil {
		return nil, err
	}

	folderM.SetFs(http.FS(f))

	baseGroup.Handle("/*", folderM)

	return s, nil
}

func (s *Server) Start(ctx context.Context) error {
	return s.server.StartWithContext(ctx, net.JoinHostPort(s.config.Host, s.config.Port))
}
