// Package api is the CDP control plane from spec.md §6: a tiny chi
// router exposing process health, Prometheus metrics, and a validate-only
// endpoint for a pipeline document, generalized from the teacher's
// server.go router/middleware/CORS shape down to the three routes the
// runtime actually needs (no workflow CRUD, no A2A bridge — those had no
// CDP equivalent).
package api

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"gopkg.in/yaml.v3"

	"github.com/soochol/cdp/internal/pipeline"
)

// Server serves the process's health, metrics, and template validation
// endpoints. It holds no pipeline state — runPipeline owns that — so it
// can run alongside a pipeline or standalone for CI template checks.
type Server struct {
	registry *pipeline.Registry
}

func NewServer(registry *pipeline.Registry) *Server {
	if registry == nil {
		registry = pipeline.DefaultRegistry()
	}
	return &Server{registry: registry}
}

// Handler builds the control-plane router. healthPath and metricsPath
// come from HTTP_SERVER_HEALTH_PATH / HTTP_SERVER_METRICS_PATH
// (internal/config); metricsHandler may be nil to omit the route
// entirely (e.g. a dedicated metrics listener serves it elsewhere).
func (s *Server) Handler(healthPath string, metricsPath string, metricsHandler http.Handler) http.Handler {
	if healthPath == "" {
		healthPath = "/healthz"
	}
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST"},
		AllowedHeaders: []string{"Content-Type"},
	}))

	r.Get(healthPath, s.healthz)
	if metricsHandler != nil && metricsPath != "" {
		r.Handle(metricsPath, metricsHandler)
	}
	r.Post("/validate", s.validate)

	return r
}

func (s *Server) healthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

type validateResponse struct {
	Valid bool   `json:"valid"`
	Name  string `json:"name,omitempty"`
	Error string `json:"error,omitempty"`
}

// validate accepts a YAML or JSON pipeline document in the request body
// and runs it through the same makePipelineTemplate parse-and-validate
// path cmd/cdp uses for `-t`, without ever running it (spec.md §4.I).
func (s *Server) validate(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		http.Error(w, "failed to read request body", http.StatusBadRequest)
		return
	}

	var raw map[string]any
	if err := yaml.Unmarshal(body, &raw); err != nil {
		respondValidation(w, validateResponse{Error: "parse: " + err.Error()})
		return
	}

	tpl, err := pipeline.Parse(raw)
	if err != nil {
		respondValidation(w, validateResponse{Error: err.Error()})
		return
	}
	if err := pipeline.Validate(tpl, s.registry); err != nil {
		respondValidation(w, validateResponse{Error: err.Error()})
		return
	}
	respondValidation(w, validateResponse{Valid: true, Name: tpl.Name})
}

func respondValidation(w http.ResponseWriter, resp validateResponse) {
	w.Header().Set("Content-Type", "application/json")
	if resp.Error != "" {
		w.WriteHeader(http.StatusUnprocessableEntity)
	}
	json.NewEncoder(w).Encode(resp)
}
