package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"shortlinks/pkg/logging"
	"shortlinks/pkg/middleware"
	"shortlinks/pkg/service"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
)

const maxBodyBytes = 64 << 10

type Handler struct {
	linkService *service.LinkService
	validate    *validator.Validate
	logger      *logging.Logger
	assetsDir   string
}

// NewHandler builds the HTTP handlers. A non-empty assetsDir is served under /qr/.
func NewHandler(linkService *service.LinkService, logger *logging.Logger, assetsDir string) *Handler {
	return &Handler{
		linkService: linkService,
		validate:    validator.New(validator.WithRequiredStructEnabled()),
		logger:      logger,
		assetsDir:   assetsDir,
	}
}

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

func (h *Handler) CreateLink(w http.ResponseWriter, r *http.Request) {
	var req service.CreateLinkRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(&req); err != nil {
		h.writeError(w, r, fmt.Errorf("%w: malformed JSON body", service.ErrInvalidInput))
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		h.writeError(w, r, fmt.Errorf("%w: %s", service.ErrInvalidInput, describeValidation(err)))
		return
	}

	resp, err := h.linkService.CreateLink(r.Context(), &req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (h *Handler) Redirect(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")
	target, err := h.linkService.Resolve(r.Context(), code)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	// Every hit has to reach us to be counted.
	w.Header().Set("Cache-Control", "no-store")
	http.Redirect(w, r, target, http.StatusFound)
}

func (h *Handler) GetLink(w http.ResponseWriter, r *http.Request) {
	link, err := h.linkService.GetLink(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, link)
}

func (h *Handler) ListLinks(w http.ResponseWriter, r *http.Request) {
	links, err := h.linkService.ListLinks(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, links)
}

func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.linkService.StatsByDay(r.Context(), r.URL.Query().Get("code"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	kind := service.Kind(err)
	status := http.StatusInternalServerError
	message := "internal error"

	switch {
	case errors.Is(err, service.ErrInvalidInput):
		status, message = http.StatusBadRequest, err.Error()
	case errors.Is(err, service.ErrConflict):
		status, message = http.StatusConflict, service.ErrConflict.Error()
	case errors.Is(err, service.ErrNotFound):
		status, message = http.StatusNotFound, service.ErrNotFound.Error()
	case errors.Is(err, service.ErrExhausted):
		message = service.ErrExhausted.Error()
	case !errors.Is(err, service.ErrStorageFailure):
		h.logger.Error(r.Context(), "unexpected handler error", "path", r.URL.Path, "error", err)
	}
	writeJSON(w, status, errorBody{Error: errorDetail{Kind: kind, Message: message}})
}

func describeValidation(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		field := strings.ToLower(fe.Field())
		switch fe.Tag() {
		case "required":
			parts = append(parts, field+" is required")
		case "max":
			parts = append(parts, fmt.Sprintf("%s must be at most %s characters", field, fe.Param()))
		default:
			parts = append(parts, fmt.Sprintf("%s failed %s", field, fe.Tag()))
		}
	}
	return strings.Join(parts, "; ")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// NewRouter returns a chi router with the common middleware stack.
func NewRouter(requestLogger *middleware.RequestLogger) *chi.Mux {
	r := chi.NewRouter()
	r.Use(chimw.RealIP)
	r.Use(requestLogger.Correlate)
	r.Use(requestLogger.Log)
	r.Use(chimw.Recoverer)
	return r
}

// SetupRoutes mounts the full API: link management, stats, redirects and QR assets.
func SetupRoutes(r chi.Router, handler *Handler) {
	r.Get("/health", handler.HealthCheck)
	r.Route("/v1", func(r chi.Router) {
		r.Post("/links", handler.CreateLink)
		r.Get("/links", handler.ListLinks)
		r.Get("/links/{code}", handler.GetLink)
		r.Get("/stats", handler.Stats)
	})
	r.Get("/r/{code}", handler.Redirect)
	if handler.assetsDir != "" {
		r.Handle("/qr/*", http.StripPrefix("/qr/", http.FileServer(http.Dir(handler.assetsDir))))
	}
}

// SetupRedirectRoutes mounts only what the redirect tier serves.
func SetupRedirectRoutes(r chi.Router, handler *Handler) {
	r.Get("/health", handler.HealthCheck)
	r.Get("/r/{code}", handler.Redirect)
}
