package boardapi

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-playground/validator/v10"

	"github.com/ateam/orchestrator/board"
	"github.com/ateam/orchestrator/internal/activity"
	"github.com/ateam/orchestrator/internal/broker"
	"github.com/ateam/orchestrator/internal/claims"
	"github.com/ateam/orchestrator/internal/hooks"
	"github.com/ateam/orchestrator/internal/missions"
	"github.com/ateam/orchestrator/internal/store"
)

// Store is the subset of persistence the HTTP boundary reads directly,
// beyond what it reaches through claims.Manager / missions.Engine /
// activity.Log / hooks.Ingestor.
type Store interface {
	EnsureProject(id, displayName string) error
	ProjectExists(id string) (bool, error)
	EnsureStages(projectID string) error
	GetStageConfigs(projectID string) ([]board.StageConfig, error)
	SetWIPLimit(projectID string, stage board.Stage, limit *int) error
	CreateItem(it *board.Item) error
	GetItem(projectID, id string) (*board.Item, error)
	ListItems(projectID string, includeArchived bool) ([]board.Item, error)
	UpdateItem(projectID, id string, fields store.UpdateItemFields) (*board.Item, error)
	MoveItem(projectID, id string, from, to board.Stage, changedBy, note string) (*board.Item, error)
	IncrementRejectionCount(projectID, id string) error
	AddDependency(itemID, dependsOnID string) error
	ProjectDependencies(projectID string) ([]board.ItemDependency, error)
	ActiveClaimForItem(itemID string) (*board.AgentClaim, error)
	ActiveClaimsForProject(projectID string) ([]board.AgentClaim, error)
	CreateMission(m *board.Mission) error
	GetMission(projectID, id string) (*board.Mission, error)
	ListMissions(projectID string) ([]board.Mission, error)
	ActiveMissionID(projectID string) (string, error)
	LatestMissionID(projectID string) (string, error)
	AllHistory(projectID string) ([]board.HistoryEntry, error)
	WorkLog(itemID string) ([]board.WorkLogEntry, error)
	ListProjects() ([]board.Project, error)
}

// Server wires the board engine, claim manager, mission lifecycle, event
// broker, hook ingestor, and activity log behind chi routes.
type Server struct {
	store     Store
	claims    *claims.Manager
	missions  *missions.Engine
	activity  *activity.Log
	hooks     *hooks.Ingestor
	broker    *broker.Broker
	logger    *slog.Logger
	validate  *validator.Validate
	router    chi.Router
	metrics   *metricsSet
}

// Config bundles the components NewServer wires together.
type Config struct {
	Store    Store
	Claims   *claims.Manager
	Missions *missions.Engine
	Activity *activity.Log
	Hooks    *hooks.Ingestor
	Broker   *broker.Broker
	Logger   *slog.Logger
}

// NewServer builds a Server and mounts its routes.
func NewServer(cfg Config) *Server {
	s := &Server{
		store:    cfg.Store,
		claims:   cfg.Claims,
		missions: cfg.Missions,
		activity: cfg.Activity,
		hooks:    cfg.Hooks,
		broker:   cfg.Broker,
		logger:   cfg.Logger,
		validate: validator.New(),
		metrics:  newMetricsSet(),
	}
	s.metrics.wireBroker(cfg.Broker)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(s.metrics.instrument)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PATCH", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "X-Project-ID"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/healthz", s.handleHealthz)
	r.Handle("/metrics", s.metrics.handler())

	r.Route("/api", func(r chi.Router) {
		r.Get("/projects", s.handleListProjects)
		r.Post("/projects", s.handleCreateProject)

		r.Group(func(r chi.Router) {
			r.Use(s.requireProject)

			r.Get("/board", s.handleGetBoard)
			r.Get("/board/health", s.handleGetBoardHealth)
			r.Post("/board/move", s.handleMoveItem)
			r.Post("/board/claim", s.handleClaim)
			r.Post("/board/release", s.handleRelease)
			r.Get("/board/events", s.handleEvents)

			r.Get("/items", s.handleListItems)
			r.Post("/items", s.handleCreateItem)
			r.Patch("/items/{id}", s.handleUpdateItem)
			r.Post("/items/{id}/reject", s.handleRejectItem)
			r.Get("/items/{id}/worklog", s.handleItemWorkLog)

			r.Post("/agents/start", s.handleAgentStart)
			r.Post("/agents/stop", s.handleAgentStop)

			r.Get("/missions", s.handleListMissions)
			r.Post("/missions", s.handleCreateMission)
			r.Get("/missions/current", s.handleCurrentMission)
			r.Post("/missions/precheck", s.handleMissionPrecheck)
			r.Post("/missions/postcheck", s.handleMissionPostcheck)
			r.Post("/missions/archive", s.handleMissionArchive)

			r.Get("/activity", s.handleListActivity)
			r.Post("/activity", s.handleAppendActivity)

			r.Post("/hooks/events", s.handleHookEvents)
			r.Post("/hooks/events/prune", s.handleHookPrune)

			r.Patch("/stages/{stageId}", s.handleSetWIPLimit)
		})
	})

	s.router = r
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

// NewHTTPServer builds an *http.Server wrapping the boardapi router with
// the timeouts the teacher's cmd/factory/main.go configures for its own
// http.Server.
func NewHTTPServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0, // long-lived SSE connections must not be cut off
		IdleTimeout:  60 * time.Second,
	}
}
