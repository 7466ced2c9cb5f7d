// Package web implements the gymlog web server: server-rendered pages for
// listing exercises, viewing per-exercise history with the personal record,
// and form handlers for creating exercises and logging sets.
package web

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"time"

	"github.com/didip/tollbooth/v8"
	log "github.com/go-pkgz/lgr"
	"github.com/go-pkgz/rest"
	"github.com/go-pkgz/rest/logger"
	"github.com/go-pkgz/routegroup"
	"github.com/go-playground/validator/v10"

	"github.com/pkondratev/gymlog/app/eventlog"
	"github.com/pkondratev/gymlog/app/store"
)

//go:embed templates/*.html
var templatesFS embed.FS

//go:embed static/*
var staticFS embed.FS

// formLimiter caps form submissions per client IP, requests per second
var formLimiter = tollbooth.NewLimiter(50, nil)

// Persistence defines storage operations used by the handlers
type Persistence interface {
	CreateExercise(ctx context.Context, name string) (store.Exercise, error)
	GetExercise(ctx context.Context, id int64) (store.Exercise, error)
	ListExercises(ctx context.Context) ([]store.Exercise, error)
	AddSet(ctx context.Context, exerciseID int64, weight float64, reps int, performedAt time.Time) (store.Set, error)
	ListSets(ctx context.Context, exerciseID int64) ([]store.Set, error)
	MaxWeight(ctx context.Context, exerciseID int64) (float64, bool, error)
	Close() error
}

// EventLogger records one line per notable action in the append-only trace
type EventLogger interface {
	Log(message string)
}

// Server represents the web server
type Server struct {
	store     Persistence
	events    EventLogger
	templates map[string]*template.Template
	secret    []byte
	version   string
	validate  *validator.Validate
	csrf      *http.CrossOriginProtection
}

// TemplateData holds data for page templates
type TemplateData struct {
	Flash          *flashMessage
	Exercises      []store.Exercise
	Exercise       store.Exercise
	Sets           []store.Set
	PersonalRecord float64
	HasRecord      bool
	CurrentYear    int
	Version        string
}

// Config holds server configuration
type Config struct {
	DBPath       string
	EventLogPath string
	Secret       string // signing key for the flash cookie
	Version      string
}

// New creates a new web server with its own store and event logger
func New(cfg Config) (*Server, error) {
	st, err := store.New(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("web server initialization failed: failed to create store at %q: %w", cfg.DBPath, err)
	}

	s := &Server{
		store:    st,
		events:   eventlog.New(cfg.EventLogPath),
		secret:   []byte(cfg.Secret),
		version:  cfg.Version,
		validate: validator.New(),
		csrf:     http.NewCrossOriginProtection(),
	}

	templates, err := s.parseTemplates()
	if err != nil {
		if closeErr := st.Close(); closeErr != nil {
			return nil, fmt.Errorf("web server initialization failed: failed to parse HTML templates: %w (also failed to close store: %v)", err, closeErr)
		}
		return nil, fmt.Errorf("web server initialization failed: failed to parse HTML templates: %w", err)
	}
	s.templates = templates

	return s, nil
}

// Run starts the web server and blocks until the context is canceled
func (s *Server) Run(ctx context.Context, address string) error {
	server := &http.Server{
		Addr:              address,
		Handler:           s.routes(),
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       30 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("[WARN] failed to shutdown server: %v", err)
		}
	}()

	log.Printf("[INFO] starting web server on %s", address)
	err := server.ListenAndServe()
	if closeErr := s.store.Close(); closeErr != nil {
		log.Printf("[WARN] failed to close store: %v", closeErr)
	}
	if err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("web server failed: %w", err)
	}
	return nil
}

// routes returns the http.Handler with all routes configured
func (s *Server) routes() http.Handler {
	router := routegroup.New(http.NewServeMux())

	// global middleware - applied to all routes
	router.Use(
		rest.RealIP,
		rest.Recoverer(log.Default()),
		rest.Throttle(1000),
		rest.AppInfo("gymlog", "pkondratev", s.version),
		rest.Ping,
		rest.Trace,
		rest.SizeLimit(64*1024), // 64KB max request size
		logger.New(logger.Log(log.Default()), logger.Prefix("[DEBUG]")).Handler,
	)

	// pages
	router.HandleFunc("GET /{$}", s.handleIndex)
	router.HandleFunc("GET /exercise/{id}", s.handleExercise)

	// mutations, rate limited and CSRF protected
	router.With(s.csrf.Handler, tollbooth.HTTPMiddleware(formLimiter)).HandleFunc("POST /exercises", s.handleCreateExercise)
	router.With(s.csrf.Handler, tollbooth.HTTPMiddleware(formLimiter)).HandleFunc("POST /exercise/{id}/sets", s.handleAddSet)

	// static files
	fsys, err := fs.Sub(staticFS, "static")
	if err != nil {
		log.Printf("[ERROR] failed to create static file system: %v", err)
		router.Handle("GET /static/", http.FileServer(http.FS(staticFS)))
	} else {
		router.HandleFiles("/static/", http.FS(fsys))
	}

	return router
}

// render renders a template into a buffer first so a failure never
// produces a half-written page
func (s *Server) render(w http.ResponseWriter, page, tmplName string, data any) {
	tmpl, ok := s.templates[page]
	if !ok {
		log.Printf("[WARN] template %s not found", page)
		http.Error(w, "Template not found", http.StatusInternalServerError)
		return
	}

	buf := new(bytes.Buffer)
	if err := tmpl.ExecuteTemplate(buf, tmplName, data); err != nil {
		log.Printf("[WARN] failed to execute template: %v", err)
		http.Error(w, "Template error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if _, err := buf.WriteTo(w); err != nil {
		log.Printf("[WARN] failed to write response: %v", err)
	}
}

// parseTemplates parses page templates, each page combined with the base layout
func (s *Server) parseTemplates() (map[string]*template.Template, error) {
	templates := make(map[string]*template.Template)

	funcMap := template.FuncMap{
		"humanTime": s.humanTime,
	}

	for _, page := range []string{"index", "exercise"} {
		tmpl, err := template.New("base.html").Funcs(funcMap).ParseFS(templatesFS,
			"templates/base.html", "templates/"+page+".html")
		if err != nil {
			return nil, fmt.Errorf("failed to parse %s template: %w", page, err)
		}
		templates[page] = tmpl
	}

	return templates, nil
}

// template helper functions

func (s *Server) humanTime(t time.Time) string {
	return t.Format("Jan 2, 2006 15:04")
}
