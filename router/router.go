package router

import (
	"net/http"

	handler "brkdash/internal/configdoc"
	"brkdash/internal/configdoc/service"
	"brkdash/middleware"
	"brkdash/socket"

	"github.com/go-chi/chi/v5"
)

// Deps are the collaborators the HTTP surface needs. Hub, Prober and Audit
// are optional; a nil Audit leaves /api/audit unrouted.
type Deps struct {
	Service        *service.ConfigService
	Hub            *socket.Hub
	Prober         handler.StatusChecker
	Audit          handler.AuditLister
	AllowedOrigins []string
}

func Setup(deps Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestLogger)
	r.Use(middleware.CORSMiddleware(deps.AllowedOrigins))

	// WebSocket
	if deps.Hub != nil {
		r.Get("/ws", func(w http.ResponseWriter, r *http.Request) {
			socket.ServeWs(deps.Hub, w, r)
		})
	}

	// REST API
	h := handler.NewConfigHandler(deps.Service, deps.Prober, deps.Audit)

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", h.Health)
		r.Get("/services/status", h.ServicesStatus)
		if deps.Audit != nil {
			r.Get("/audit", h.ListAudit)
		}

		r.Get("/config", h.GetSetupConfig)
		r.Post("/config/save", h.SaveSetupConfig)
		r.Delete("/config/reset", h.ResetSetupConfig)

		r.Route("/company-config", func(r chi.Router) {
			r.Get("/", h.GetCompanyConfig)
			r.Post("/", h.SaveCompanyConfig)
			r.Delete("/reset", h.ResetCompanyConfig)

			r.Get("/backups", h.ListBackups)
			r.Delete("/backups", h.DeleteBackups)
			r.Get("/backups/{filename}", h.DownloadBackup)

			r.Post("/{collection}", h.AddEntity)
			r.Put("/{collection}/{id}", h.UpdateEntity)
			r.Delete("/{collection}/{id}", h.DeleteEntity)
		})
	})

	return r
}
