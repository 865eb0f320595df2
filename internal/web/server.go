// Package web serves the leafcare JSON API.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/conorfennell/leafcare/internal/catalog"
	"github.com/conorfennell/leafcare/internal/domain"
	"github.com/conorfennell/leafcare/internal/garden"
	"github.com/conorfennell/leafcare/internal/identify"
	"github.com/conorfennell/leafcare/internal/metrics"
)

const (
	maxJSONBytes  = 1 << 20
	maxImageBytes = 10 << 20
)

// Messages shown when an upstream service fails. Details go to the log.
const (
	msgAIUnavailable     = "Could not reach the plant identification service. Check your connection and try again."
	msgImagesUnavailable = "Could not reach the image service. Check your connection and try again."
)

// Identifier is the AI identification service.
type Identifier interface {
	IdentifyImage(ctx context.Context, image []byte, mime string) (domain.Identification, error)
	IdentifyName(ctx context.Context, name string) (domain.Identification, error)
	Diagnose(ctx context.Context, image []byte, mime string) (domain.Diagnosis, error)
	Chat(ctx context.Context, plantContext string, history []domain.ChatMessage, message string) (string, error)
}

// ImageFinder looks up reference images for a plant name.
type ImageFinder interface {
	Images(ctx context.Context, name string) ([]string, error)
	// Thumbnails resolves one image per name. Names without an image are
	// missing from the result.
	Thumbnails(ctx context.Context, names []string) map[string]string
}

// Catalog is the local care-guide catalog.
type Catalog interface {
	Search(query string, limit int) []catalog.Match
	Lookup(name string) (catalog.Entry, bool)
	Sync(ctx context.Context) (catalog.SyncStats, error)
}

// Options holds the Server's dependencies. Garden is required; a nil
// Identifier, Images or Catalog disables the routes that need it.
type Options struct {
	Garden     *garden.Service
	Identifier Identifier
	Images     ImageFinder
	Catalog    Catalog
	Metrics    *metrics.Metrics
	// Clock returns the current instant in the user's time zone.
	Clock  func() time.Time
	Logger *slog.Logger
}

// Server holds the dependencies for the HTTP server.
type Server struct {
	garden     *garden.Service
	identifier Identifier
	images     ImageFinder
	catalog    Catalog
	metrics    *metrics.Metrics
	clock      func() time.Time
	log        *slog.Logger
	validate   *validator.Validate
	router     *http.ServeMux
}

// NewServer creates and configures a new server.
func NewServer(opts Options) *Server {
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	s := &Server{
		garden:     opts.Garden,
		identifier: opts.Identifier,
		images:     opts.Images,
		catalog:    opts.Catalog,
		metrics:    opts.Metrics,
		clock:      opts.Clock,
		log:        opts.Logger.With("component", "web"),
		validate:   validator.New(validator.WithRequiredStructEnabled()),
		router:     http.NewServeMux(),
	}
	s.routes()
	return s
}

// ServeHTTP implements the http.Handler interface.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	rec := &statusRecorder{ResponseWriter: w, code: http.StatusOK}
	s.router.ServeHTTP(rec, r)

	route := r.Pattern
	if route == "" {
		route = "unmatched"
	}
	s.metrics.HTTPRequest(r.Method, route, rec.code)
}

// routes sets up the routing for the server.
func (s *Server) routes() {
	s.router.HandleFunc("GET /healthz", s.handleHealth())
	s.router.Handle("GET /metrics", s.metrics.Handler())

	s.router.HandleFunc("GET /api/profile", s.handleGetProfile())
	s.router.HandleFunc("PUT /api/profile", s.handlePutProfile())

	s.router.HandleFunc("GET /api/plants", s.handleListPlants())
	s.router.HandleFunc("POST /api/plants", s.handleAddPlant())
	s.router.HandleFunc("GET /api/plants/{id}", s.handleGetPlant())
	s.router.HandleFunc("DELETE /api/plants/{id}", s.handleRemovePlant())
	s.router.HandleFunc("GET /api/plants/{id}/history", s.handleHistory())
	s.router.HandleFunc("GET /api/plants/{id}/activity", s.handleActivity())
	s.router.HandleFunc("GET /api/plants/{id}/care", s.handleCareLabels())

	s.router.HandleFunc("GET /api/reminders", s.handleListReminders())
	s.router.HandleFunc("POST /api/reminders", s.handleAddReminder())
	s.router.HandleFunc("DELETE /api/reminders/{id}", s.handleDeleteReminder())

	s.router.HandleFunc("GET /api/tasks/due", s.handleDueTasks())
	s.router.HandleFunc("POST /api/tasks/complete", s.handleCompleteTask())

	s.router.HandleFunc("GET /api/favorites", s.handleListFavorites())
	s.router.HandleFunc("POST /api/favorites", s.handleAddFavorite())
	s.router.HandleFunc("DELETE /api/favorites/{id}", s.handleRemoveFavorite())

	s.router.HandleFunc("POST /api/identify", s.handleIdentify())
	s.router.HandleFunc("POST /api/diagnose", s.handleDiagnose())
	s.router.HandleFunc("POST /api/chat", s.handleChat())
	s.router.HandleFunc("GET /api/images", s.handleImages())

	s.router.HandleFunc("GET /api/catalog", s.handleSearchCatalog())
	s.router.HandleFunc("POST /api/catalog/sync", s.handleSyncCatalog())
}

func (s *Server) handleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

type errorBody struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if v == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, errorBody{Error: msg})
}

// fail maps err onto a status code. Upstream failures get a generic
// message; the cause is logged.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, garden.ErrInvalid):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, garden.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, identify.ErrUnavailable), errors.Is(err, identify.ErrBadResponse):
		s.log.Warn("Identification service failed", "path", r.URL.Path, "error", err)
		writeError(w, http.StatusBadGateway, msgAIUnavailable)
	case errors.Is(err, context.Canceled):
		// Client went away; nothing useful to write.
	default:
		s.log.Error("Request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

// decode reads a JSON body into v. Garden payloads are validated by the
// garden itself.
func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBytes))
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

// check validates a request type owned by this package.
func (s *Server) check(w http.ResponseWriter, v any) bool {
	err := s.validate.Struct(v)
	if err == nil {
		return true
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("%s failed %q", verrs[0].Namespace(), verrs[0].Tag()))
		return false
	}
	writeError(w, http.StatusBadRequest, err.Error())
	return false
}

type statusRecorder struct {
	http.ResponseWriter
	code int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.code = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}
