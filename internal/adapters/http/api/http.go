// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"

	"github.com/Brian-Chae/mind-breeze-ai-report-sub010/internal/adapters/repository"
	"github.com/Brian-Chae/mind-breeze-ai-report-sub010/internal/domain/catalog"
	"github.com/Brian-Chae/mind-breeze-ai-report-sub010/internal/domain/model"
	"github.com/Brian-Chae/mind-breeze-ai-report-sub010/internal/domain/pipeline"
	"github.com/Brian-Chae/mind-breeze-ai-report-sub010/internal/domain/types"
	"github.com/Brian-Chae/mind-breeze-ai-report-sub010/pkg/logger"
)

// maxBodyBytes bounds every JSON request body.
const maxBodyBytes = 1 << 20

// GateService opens and drives quality gates.
type GateService interface {
	OpenGate(ctx context.Context, req types.OpenGateRequest) (types.GateStatus, error)
	AddSamples(ctx context.Context, sessionID string, batch types.SampleBatch) (types.GateStatus, error)
	GateState(ctx context.Context, sessionID string) (types.GateStatus, error)
	ReopenGate(ctx context.Context, sessionID string) (types.GateStatus, error)
	SealSession(ctx context.Context, sessionID string, req types.SealRequest) (model.MeasurementSession, error)
	GetSession(ctx context.Context, sessionID string) (model.MeasurementSession, error)
}

// JobService submits and tracks analysis jobs.
type JobService interface {
	SubmitJob(ctx context.Context, req pipeline.SubmitRequest) (model.PipelineJob, bool, error)
	GetJob(ctx context.Context, jobID string) (model.PipelineJob, error)
	ListJobs(ctx context.Context, f repository.Filter) ([]model.PipelineJob, error)
	CancelJob(ctx context.Context, jobID string) (model.PipelineJob, error)
	ResumeJob(ctx context.Context, jobID string) (model.PipelineJob, error)
	SubscribeJob(jobID string, fn func(model.PipelineJob)) (func(), error)
}

// EngineService ranks and rates engines.
type EngineService interface {
	RankEngines(ctx context.Context, required model.DataTypes, budget int) ([]catalog.RankedEngine, error)
	RateEngine(ctx context.Context, engineID string, rating float64) (model.EngineUsage, error)
}

// AccountService administers credit balances.
type AccountService interface {
	TopUp(ctx context.Context, accountID string, amount int) (int, error)
	Balance(ctx context.Context, accountID string) (int, error)
}

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	GateService
	JobService
	EngineService
	AccountService
	StatsProvider
}

// Server wires HTTP routes for the business API.
type Server struct {
	healthHandler   *HealthHandler
	statsHandler    *StatsHandler
	gatesHandler    *GatesHandler
	jobsHandler     *JobsHandler
	enginesHandler  *EnginesHandler
	accountsHandler *AccountsHandler

	corsOrigins []string
	mounts      []func(chi.Router)
	logger      logger.Logger
}

// Option configures a Server.
type Option func(*Server)

// WithCORSOrigins enables CORS for the given origins.
func WithCORSOrigins(origins []string) Option {
	return func(s *Server) {
		s.corsOrigins = origins
	}
}

// WithLogger sets the request logger.
func WithLogger(l logger.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithMount registers extra routes, e.g. the API docs, on the root router.
func WithMount(fn func(chi.Router)) Option {
	return func(s *Server) {
		if fn != nil {
			s.mounts = append(s.mounts, fn)
		}
	}
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, opts ...Option) *Server {
	s := &Server{
		healthHandler:   NewHealthHandler(),
		statsHandler:    NewStatsHandler(deps),
		gatesHandler:    NewGatesHandler(deps),
		jobsHandler:     NewJobsHandler(deps),
		enginesHandler:  NewEnginesHandler(deps),
		accountsHandler: NewAccountsHandler(deps),
		logger:          logger.Named("http"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler builds the router with every route attached.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(RequestLogger(s.logger))
	r.Use(middleware.Recoverer)
	if len(s.corsOrigins) > 0 {
		r.Use(cors.New(cors.Options{
			AllowedOrigins: s.corsOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
			AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
			ExposedHeaders: []string{"X-Request-ID"},
			MaxAge:         300,
		}).Handler)
	}

	r.Get("/healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	r.Get("/stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/engines", func(r chi.Router) {
			r.Get("/", MetricsMiddleware(s.enginesHandler.HandleList, "engines"))
			r.Post("/{id}/ratings", MetricsMiddleware(s.enginesHandler.HandleRate, "engine_ratings"))
		})
		r.Route("/gates", func(r chi.Router) {
			r.Post("/", MetricsMiddleware(s.gatesHandler.HandleOpen, "gates"))
			r.Get("/{id}", MetricsMiddleware(s.gatesHandler.HandleGet, "gate"))
			r.Post("/{id}/samples", MetricsMiddleware(s.gatesHandler.HandleSamples, "gate_samples"))
			r.Post("/{id}/reopen", MetricsMiddleware(s.gatesHandler.HandleReopen, "gate_reopen"))
		})
		r.Route("/sessions", func(r chi.Router) {
			r.Get("/{id}", MetricsMiddleware(s.gatesHandler.HandleGetSession, "session"))
			r.Post("/{id}/seal", MetricsMiddleware(s.gatesHandler.HandleSeal, "session_seal"))
		})
		r.Route("/jobs", func(r chi.Router) {
			r.Post("/", MetricsMiddleware(s.jobsHandler.HandleSubmit, "jobs"))
			r.Get("/", MetricsMiddleware(s.jobsHandler.HandleList, "jobs"))
			r.Get("/{id}", MetricsMiddleware(s.jobsHandler.HandleGet, "job"))
			r.Delete("/{id}", MetricsMiddleware(s.jobsHandler.HandleCancel, "job_cancel"))
			r.Post("/{id}/resume", MetricsMiddleware(s.jobsHandler.HandleResume, "job_resume"))
			r.Get("/{id}/events", s.jobsHandler.HandleEvents)
		})
		r.Route("/accounts/{id}", func(r chi.Router) {
			r.Get("/balance", MetricsMiddleware(s.accountsHandler.HandleBalance, "account_balance"))
			r.Post("/credits", MetricsMiddleware(s.accountsHandler.HandleTopUp, "account_credits"))
		})
	})

	for _, mount := range s.mounts {
		mount(r)
	}
	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, types.ErrorResponse{Code: code, Message: msg})
}

// fail maps err onto its status code and writes it.
func fail(w http.ResponseWriter, err error) {
	status, code := statusFor(err)
	writeError(w, status, code, err)
}

// decodeJSON reads a bounded JSON body into v. An empty body leaves v
// untouched when allowEmpty is set.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any, allowEmpty bool) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if allowEmpty && errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("%w: %w", ErrBadRequest, err)
	}
	return nil
}
