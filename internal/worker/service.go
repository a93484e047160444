// Package worker provides the HTTP worker service for keeper.
package worker

import (
	"context"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"github.com/heritagewhisper/keeper/internal/catalog"
	"github.com/heritagewhisper/keeper/internal/chapters"
	"github.com/heritagewhisper/keeper/internal/config"
	gormdb "github.com/heritagewhisper/keeper/internal/db/gorm"
	"github.com/heritagewhisper/keeper/internal/generator"
	"github.com/heritagewhisper/keeper/internal/rotation"
	"github.com/heritagewhisper/keeper/internal/worker/sse"
	"github.com/heritagewhisper/keeper/pkg/models"
)

// Service is the keeper worker: prompt lifecycle, story intake, chapter
// organization and the SSE event stream behind one chi router.
type Service struct {
	version string
	config  *config.Config

	store        *gormdb.Store
	promptStore  *gormdb.PromptStore
	storyStore   *gormdb.StoryStore
	chapterStore *gormdb.ChapterStore

	generator *generator.Generator
	organizer *chapters.Organizer
	rotator   *rotation.Rotator
	catalog   *catalog.Catalog

	sseBroadcaster *sse.Broadcaster

	router    chi.Router
	server    *http.Server
	ready     atomic.Bool
	startTime time.Time

	ctx    context.Context
	cancel context.CancelFunc
}

// Deps bundles the collaborators the service needs.
type Deps struct {
	Version      string
	Config       *config.Config
	Store        *gormdb.Store
	PromptStore  *gormdb.PromptStore
	StoryStore   *gormdb.StoryStore
	ChapterStore *gormdb.ChapterStore
	Generator    *generator.Generator
	Organizer    *chapters.Organizer
	Rotator      *rotation.Rotator
	Catalog      *catalog.Catalog
}

// New assembles the service and its routes.
func New(deps Deps) *Service {
	ctx, cancel := context.WithCancel(context.Background())

	svc := &Service{
		version:        deps.Version,
		config:         deps.Config,
		store:          deps.Store,
		promptStore:    deps.PromptStore,
		storyStore:     deps.StoryStore,
		chapterStore:   deps.ChapterStore,
		generator:      deps.Generator,
		organizer:      deps.Organizer,
		rotator:        deps.Rotator,
		catalog:        deps.Catalog,
		sseBroadcaster: sse.NewBroadcaster(),
		router:         chi.NewRouter(),
		startTime:      time.Now(),
		ctx:            ctx,
		cancel:         cancel,
	}

	// Generation events reach SSE listeners as they land.
	if svc.generator != nil {
		svc.generator.OnPromptCreated = func(p *models.Prompt) {
			svc.sseBroadcaster.Publish(sse.EventPromptCreated, p.UserID, p)
		}
	}

	svc.setupRoutes()
	return svc
}

func (s *Service) setupRoutes() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(requestLogger)
	s.router.Use(middleware.Recoverer)

	s.router.Get("/api/health", s.handleHealth)
	s.router.Get("/api/ready", s.handleReady)
	s.router.Get("/api/version", s.handleVersion)

	s.router.Group(func(r chi.Router) {
		r.Use(authMiddleware([]byte(s.config.AuthSecret)))
		r.Use(s.requireReady)

		r.Route("/api/prompts", func(r chi.Router) {
			r.Get("/", s.handleListPrompts)
			r.Post("/", s.handleCreatePrompt)
			r.Get("/queued", s.handleListQueued)
			r.Get("/archived", s.handleListArchived)
			r.Get("/next", s.handleNextPrompt)
			r.Post("/dismiss", s.handleDismissPrompt)
			r.Post("/queue", s.handleQueuePrompt)
			r.Post("/restore", s.handleRestorePrompt)
			r.Post("/cleanup", s.handleCleanup)
			r.Post("/emergency-cleanup", s.handleEmergencyCleanup)
			r.Post("/queue-next", s.handleQueueNext)
		})

		r.Route("/api/stories", func(r chi.Router) {
			r.Get("/", s.handleListStories)
			r.Post("/", s.handleCreateStory)
		})

		r.Route("/api/chapters", func(r chi.Router) {
			r.Get("/", s.handleListChapters)
			r.Post("/organize", s.handleOrganizeChapters)
		})

		r.Get("/api/events", s.handleEvents)
	})
}

// requireReady rejects API traffic until startup finished.
func (s *Service) requireReady(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.ready.Load() {
			writeError(w, http.StatusServiceUnavailable, "service is starting")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// requestLogger logs one line per request through zerolog.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("duration", time.Since(start)).
			Msg("http request")
	})
}

// Start begins serving and marks the service ready.
func (s *Service) Start() error {
	addr := fmt.Sprintf("127.0.0.1:%d", s.config.WorkerPort)
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.ready.Store(true)
	log.Info().Str("addr", addr).Str("version", s.version).Msg("worker listening")

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("serve: %w", err)
	}
	return nil
}

// Shutdown stops the server gracefully.
func (s *Service) Shutdown(ctx context.Context) error {
	s.ready.Store(false)
	s.cancel()
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Router exposes the handler tree, mainly for tests.
func (s *Service) Router() http.Handler {
	return s.router
}
