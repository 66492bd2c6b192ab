package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"adminhub/internal/analytics"
	"adminhub/internal/auth"
	"adminhub/internal/service"
	"adminhub/internal/storage"
	"adminhub/internal/ws"
)

// Permissions guarding the write routes.
const (
	PermFlowsWrite      = "flows:write"
	PermQuestionsWrite  = "questions:write"
	PermGradingWrite    = "grading:write"
	PermBroadcastsWrite = "broadcasts:write"
	PermBotUsersWrite   = "bot-users:write"
)

// DashboardSource feeds the dashboard handlers.
type DashboardSource interface {
	Counter(series string) (analytics.Counter, bool)
	analytics.HitSource
	analytics.TextSource
}

// HealthCheck probes one backing service.
type HealthCheck func(ctx context.Context) error

type Dependencies struct {
	Flows      *service.FlowService
	Grading    *service.GradingService
	Broadcasts *service.BroadcastService
	BotUsers   *service.BotUserService
	Accounts   *service.AccountService
	Bot        *service.BotService

	Dashboard *analytics.Dashboard
	Analytics DashboardSource
	Language  string

	Storage    storage.Storage
	Policies   storage.Policies
	PresignTTL time.Duration

	Hub            *ws.Hub
	JWT            *auth.JWTConfig
	AllowedOrigins []string

	Location       *time.Location
	RequestTimeout time.Duration
	Health         map[string]HealthCheck
	Metrics        *Metrics
	Gatherer       prometheus.Gatherer
	Log            *zap.Logger
}

func Routes(d Dependencies) http.Handler {
	if d.Location == nil {
		d.Location = time.UTC
	}
	if d.JWT.OnError == nil {
		d.JWT.OnError = d.fail
	}
	write := d.JWT.RequirePermission

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(RequestLogger(d.Log))
	r.Use(middleware.Recoverer)
	if d.Metrics != nil {
		r.Use(d.Metrics.Middleware)
	}

	r.Get("/healthz", d.healthz)
	if d.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{}))
	}
	if _, ok := d.Storage.(*storage.LocalStorage); ok {
		r.Get("/files/*", d.serveFile)
		r.With(d.JWT.Middleware, d.JWT.RequireActive, write(PermFlowsWrite)).Put("/files/*", d.putFile)
	}

	r.Route("/v1", func(r chi.Router) {
		r.Post("/login/account", d.login)

		r.Group(func(r chi.Router) {
			r.Use(d.JWT.Middleware)
			r.Use(d.JWT.RequireActive)

			r.Get("/ws", d.wsHandler)

			r.Group(func(r chi.Router) {
				if d.RequestTimeout > 0 {
					r.Use(middleware.Timeout(d.RequestTimeout))
				}

				r.Get("/users/me", d.currentUser)
				r.Get("/bot/me", d.getBot)

				// Flow endpoints
				r.Get("/flows", d.listFlows)
				r.With(write(PermFlowsWrite)).Post("/flows", d.createFlow)
				r.With(write(PermFlowsWrite)).Delete("/flows", d.deleteFlows)
				r.Get("/flows/{id}", d.getFlow)
				r.With(write(PermFlowsWrite)).Put("/flows/{id}", d.updateFlow)

				// Question endpoints
				r.Get("/questions", d.listQuestions)
				r.With(write(PermQuestionsWrite)).Post("/questions", d.createQuestion)
				r.With(write(PermQuestionsWrite)).Delete("/questions", d.deleteQuestions)
				r.Get("/questions/{id}", d.getQuestion)

				// Grading endpoints
				r.Get("/grading", d.listGrading)
				r.With(write(PermGradingWrite)).Post("/grading/{id}/grade", d.gradeMessage)
				r.With(write(PermGradingWrite)).Post("/grading/{id}/skip", d.skipMessage)

				// Broadcast endpoints
				r.Get("/broadcasts", d.listBroadcasts)
				r.With(write(PermBroadcastsWrite)).Post("/broadcasts", d.sendBroadcast)
				r.Get("/broadcasts/tags", d.broadcastTags)
				r.Post("/broadcasts/targets", d.broadcastTargets)
				r.Get("/broadcasts/templates", d.listTemplates)
				r.With(write(PermBroadcastsWrite)).Post("/broadcasts/templates", d.createTemplate)
				r.Get("/broadcasts/templates/{id}", d.getTemplate)
				r.With(write(PermBroadcastsWrite)).Put("/broadcasts/templates/{id}", d.updateTemplate)
				r.With(write(PermBroadcastsWrite)).Delete("/broadcasts/templates/{id}", d.deleteTemplate)
				r.Get("/broadcasts/{id}", d.getBroadcast)

				// Bot user endpoints
				r.Get("/bot-users/{id}", d.getBotUser)
				r.With(write(PermBotUsersWrite)).Put("/bot-users/{id}", d.updateBotUser)
				r.Get("/conversations", d.listConversations)
				r.Get("/conversations/{userId}/messages", d.listMessages)

				// Dashboard endpoints
				r.Get("/dashboard/top-part/{series}", d.dashboardSummary)
				r.Get("/dashboard/bottom-part/top-questions", d.topQuestions)
				r.Get("/dashboard/word-cloud", d.wordCloud)

				// File endpoints
				r.With(write(PermFlowsWrite)).Post("/upload", d.upload)
				r.With(write(PermFlowsWrite)).Post("/upload/presign", d.presignUpload)
			})
		})
	})

	return r
}

func (d Dependencies) healthz(w http.ResponseWriter, r *http.Request) {
	status := map[string]string{}
	healthy := true
	for name, check := range d.Health {
		if err := check(r.Context()); err != nil {
			d.Log.Warn("health check failed", zap.String("service", name), zap.Error(err))
			status[name] = "down"
			healthy = false
			continue
		}
		status[name] = "up"
	}

	code := http.StatusOK
	if !healthy {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]interface{}{
		"healthy":  healthy,
		"services": status,
	})
}
